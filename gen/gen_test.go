package gen

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/expr"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/runtime"
	"github.com/deepnoodle-ai/anvil/types"
)

func newGenerator(t *testing.T, opts ...Option) *Generator {
	t.Helper()
	return NewGenerator(runtime.NewLoader(runtime.NewRegistry()), opts...)
}

func invoke(t *testing.T, c *runtime.Class, name, descriptor string, args ...runtime.Value) runtime.Value {
	t.Helper()
	m, ok := c.Method(name, descriptor)
	require.True(t, ok, "method %s%s", name, descriptor)
	got, err := m.Invoke(args...)
	require.NoError(t, err)
	return got
}

func TestGenerateAndRun(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Math", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "add", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	m.Body().Append(expr.Return(expr.Add(m.ParameterVariable(0), m.ParameterVariable(1))))

	g := newGenerator(t)
	c, err := g.DefineClass(def)
	require.NoError(t, err)
	require.Equal(t, int32(55), invoke(t, c, "add", "(II)I", int32(13), int32(42)))
}

// comparisons builds one boolean method per relational operator and operand
// type, e.g. lt_I(II)Z, ge_D(DD)Z.
func comparisons(t *testing.T) *runtime.Class {
	t.Helper()
	ops := []struct {
		name string
		f    func(left, right ir.Expression) ir.Expression
	}{
		{"lt", expr.LessThan},
		{"le", expr.LessThanOrEqual},
		{"gt", expr.GreaterThan},
		{"ge", expr.GreaterThanOrEqual},
		{"eq", expr.Equal},
		{"ne", expr.NotEqual},
	}
	operands := []struct {
		suffix string
		typ    types.Type
	}{
		{"I", types.Int},
		{"J", types.Long},
		{"F", types.Float},
		{"D", types.Double},
	}
	def := ir.NewClass(ir.AccPublic, "test.Compare", types.Type{})
	for _, o := range ops {
		for _, p := range operands {
			m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, o.name+"_"+p.suffix, types.Boolean,
				ir.Param("a", p.typ), ir.Param("b", p.typ))
			m.Body().Append(expr.Return(o.f(m.ParameterVariable(0), m.ParameterVariable(1))))
		}
	}
	c, err := newGenerator(t).DefineClass(def)
	require.NoError(t, err)
	return c
}

func TestComparisonSemantics(t *testing.T) {
	c := comparisons(t)
	check := func(name, descriptor string, a, b runtime.Value, want bool) {
		t.Helper()
		got := invoke(t, c, name, descriptor, a, b)
		wantI := int32(0)
		if want {
			wantI = 1
		}
		require.Equal(t, wantI, got, "%s(%v, %v)", name, a, b)
	}

	check("lt_I", "(II)Z", int32(1), int32(2), true)
	check("lt_I", "(II)Z", int32(2), int32(2), false)
	check("le_I", "(II)Z", int32(2), int32(2), true)
	check("gt_I", "(II)Z", int32(3), int32(2), true)
	check("ge_I", "(II)Z", int32(1), int32(2), false)
	check("eq_I", "(II)Z", int32(-7), int32(-7), true)
	check("ne_I", "(II)Z", int32(-7), int32(-7), false)

	check("lt_J", "(JJ)Z", int64(math.MinInt64), int64(math.MaxInt64), true)
	check("gt_J", "(JJ)Z", int64(math.MinInt64), int64(math.MaxInt64), false)
	check("eq_J", "(JJ)Z", int64(5), int64(5), true)

	check("lt_F", "(FF)Z", float32(1.5), float32(2.5), true)
	check("ge_F", "(FF)Z", float32(2.5), float32(2.5), true)
	check("lt_D", "(DD)Z", 1.5, 2.5, true)
	check("ne_D", "(DD)Z", 1.5, 2.5, true)
}

func TestComparisonNaNSemantics(t *testing.T) {
	c := comparisons(t)
	nan := math.NaN()
	nanF := float32(math.NaN())

	// every ordering against NaN is false; only != is true
	for _, name := range []string{"lt_D", "le_D", "gt_D", "ge_D", "eq_D"} {
		require.Equal(t, int32(0), invoke(t, c, name, "(DD)Z", nan, 1.0), name)
		require.Equal(t, int32(0), invoke(t, c, name, "(DD)Z", 1.0, nan), name)
		require.Equal(t, int32(0), invoke(t, c, name, "(DD)Z", nan, nan), name)
	}
	require.Equal(t, int32(1), invoke(t, c, "ne_D", "(DD)Z", nan, nan))

	require.Equal(t, int32(0), invoke(t, c, "lt_F", "(FF)Z", nanF, float32(1)))
	require.Equal(t, int32(0), invoke(t, c, "gt_F", "(FF)Z", nanF, float32(1)))
	require.Equal(t, int32(1), invoke(t, c, "ne_F", "(FF)Z", nanF, nanF))
}

func TestControlFlowThroughPipeline(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Loops", types.Type{})

	// sum of 1..n with a while loop
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "sum", types.Int, ir.Param("n", types.Int))
	sum, err := m.Scope().DeclareVariable(types.Int, "sum")
	require.NoError(t, err)
	i, err := m.Scope().DeclareVariable(types.Int, "i")
	require.NoError(t, err)
	m.Body().
		Append(sum.Set(expr.Int(0))).
		Append(i.Set(expr.Int(1))).
		Append(&ir.WhileLoop{
			Condition: expr.LessThanOrEqual(i, m.ParameterVariable(0)),
			Body: ir.NewBlock().
				Append(sum.Set(expr.Add(sum, i))).
				Append(i.Increment()),
		}).
		Append(expr.Return(sum))

	c, err := newGenerator(t).DefineClass(def)
	require.NoError(t, err)
	require.Equal(t, int32(55), invoke(t, c, "sum", "(I)I", int32(10)))
	require.Equal(t, int32(0), invoke(t, c, "sum", "(I)I", int32(0)))
}

func TestCaughtAndUncaughtThrowables(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Div", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "div", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	m.Body().Append(&ir.TryCatch{
		TryBody: ir.NewBlock().
			Append(expr.Return(expr.Divide(m.ParameterVariable(0), m.ParameterVariable(1)))),
		CatchBlocks: []ir.CatchBlock{{
			Handler: ir.NewBlock().
				Append(ir.Instr(op.Pop)).
				Append(expr.Return(expr.Int(-1))),
			ExceptionTypes: []types.Type{types.Class("anvil.ArithmeticException")},
		}},
	})
	unchecked := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "unchecked", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	unchecked.Body().Append(expr.Return(
		expr.Divide(unchecked.ParameterVariable(0), unchecked.ParameterVariable(1))))

	c, err := newGenerator(t).DefineClass(def)
	require.NoError(t, err)

	require.Equal(t, int32(5), invoke(t, c, "div", "(II)I", int32(10), int32(2)))
	require.Equal(t, int32(-1), invoke(t, c, "div", "(II)I", int32(1), int32(0)))

	bad, _ := c.Method("unchecked", "(II)I")
	_, err = bad.Invoke(int32(1), int32(0))
	var thrown *runtime.Thrown
	require.ErrorAs(t, err, &thrown)
	require.Equal(t, "anvil.ArithmeticException", thrown.Class.Name())
}

func TestCompilationErrorCarriesDisassembly(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Bad", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "make", types.ArrayOf(types.Int))
	m.Body().Append(expr.Return(expr.NewArray(types.Int, expr.Int(-1))))

	_, err := newGenerator(t).DefineClass(def)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "test.Bad", cerr.Class)
	require.NotEmpty(t, cerr.Disassembly)
	require.Contains(t, cerr.Disassembly, "make")

	var serr *classfile.StructuralError
	require.ErrorAs(t, err, &serr)
}

func TestVerificationRejectsUnresolvableReference(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Dangling", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "f", types.Int)
	m.Body().Append(expr.Return(
		expr.InvokeStatic(types.Class("test.Nowhere"), "g", types.Int, nil)))

	_, err := newGenerator(t).DefineClass(def)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	require.Contains(t, err.Error(), "test.Nowhere")

	// the same definition loads with verification off, failing only when run
	c, err := newGenerator(t, WithVerify(false)).DefineClass(def)
	require.NoError(t, err)
	f, _ := c.Method("f", "()I")
	_, err = f.Invoke()
	require.Error(t, err)
}

func TestInitializerFailureIsNotACompilationError(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Broken", types.Type{})
	clinit := def.DeclareClassInitializer()
	clinit.Body().
		Append(expr.Throw(expr.NewInstance(types.Class("anvil.RuntimeException"), nil))).
		Append(ir.ReturnVoid())

	_, err := newGenerator(t).DefineClass(def)
	var ie *runtime.InitializationError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "test.Broken", ie.Class)
	var cerr *CompilationError
	require.False(t, errors.As(err, &cerr), "module was well-formed")
}

func TestBatchOfUniqueClassesCrossReference(t *testing.T) {
	const n = 8
	defs := make([]*ir.ClassDefinition, 0, n)
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := ir.UniqueClassName("test.generated", "Node")
		def := ir.NewClass(ir.AccPublic, name, types.Type{})
		m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "id", types.Int)
		if i == 0 {
			m.Body().Append(expr.Return(expr.Int(0)))
		} else {
			// each class counts through its predecessor
			m.Body().Append(expr.Return(expr.Add(expr.Int(1),
				expr.InvokeStatic(types.Class(names[i-1]), "id", types.Int, nil))))
		}
		defs = append(defs, def)
		names = append(names, name)
	}

	g := newGenerator(t)
	classes, err := g.DefineClasses(defs)
	require.NoError(t, err)
	require.Len(t, classes, n)

	seen := map[string]bool{}
	for _, c := range classes {
		require.False(t, seen[c.Name()])
		seen[c.Name()] = true
	}
	require.Equal(t, int32(n-1), invoke(t, classes[n-1], "id", "()I"))
}

func TestHiddenClassPipeline(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Hidden", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "data", types.String)
	m.Body().Append(expr.Return(expr.ClassData(types.String)))

	g := newGenerator(t)
	c, err := g.DefineHiddenClass(def, "payload")
	require.NoError(t, err)
	require.True(t, c.IsHidden())
	require.Contains(t, c.Name(), "test.Hidden/0x")
	require.Equal(t, "payload", invoke(t, c, "data", "()Lanvil/String;"))
}

func TestDumpWriterAndDir(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Dumped", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "add", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	m.Body().Append(expr.Return(expr.Add(m.ParameterVariable(0), m.ParameterVariable(1))))

	var buf bytes.Buffer
	dir := t.TempDir()
	_, err := newGenerator(t, WithDumpWriter(&buf), WithDumpDir(dir)).DefineClass(def)
	require.NoError(t, err)

	require.Contains(t, buf.String(), "IADD")

	raw, err := os.ReadFile(filepath.Join(dir, "Dumped.avcm"))
	require.NoError(t, err)
	cf, err := classfile.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "test/Dumped", cf.Name)
}
