package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/expr"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

func newTestLoader(t *testing.T) *DynamicLoader {
	t.Helper()
	return NewLoader(NewRegistry())
}

func mustDefine(t *testing.T, l *DynamicLoader, def *ir.ClassDefinition) *Class {
	t.Helper()
	data, err := classfile.Encode(def)
	require.NoError(t, err)
	c, err := l.DefineClass(data)
	require.NoError(t, err)
	return c
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()

	object, ok := r.Lookup(ObjectClass)
	require.True(t, ok)
	require.Nil(t, object.Super())

	arith, ok := r.Lookup(ArithmeticExceptionClass)
	require.True(t, ok)
	throwable, ok := r.Lookup(ThrowableClass)
	require.True(t, ok)
	require.True(t, arith.AssignableTo(throwable))
	require.True(t, arith.AssignableTo(object))
	require.False(t, throwable.AssignableTo(arith))
}

func TestChildRegistryDelegation(t *testing.T) {
	parent := NewRegistry()
	child := NewChildRegistry(parent)

	_, ok := child.Lookup(ObjectClass)
	require.True(t, ok, "builtins visible through the parent")

	l := NewLoader(child)
	def := ir.NewClass(ir.AccPublic, "test.Child", types.Type{})
	mustDefine(t, l, def)

	_, ok = child.Lookup("test.Child")
	require.True(t, ok)
	_, ok = parent.Lookup("test.Child")
	require.False(t, ok, "definitions land in the child")
}

func TestDefineAndInvokeStaticMethod(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Math", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "add", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	m.Body().Append(expr.Return(expr.Add(m.ParameterVariable(0), m.ParameterVariable(1))))

	l := newTestLoader(t)
	c := mustDefine(t, l, def)
	require.Equal(t, "test.Math", c.Name())

	add, ok := c.Method("add", "(II)I")
	require.True(t, ok)
	got, err := add.Invoke(int32(13), int32(42))
	require.NoError(t, err)
	require.Equal(t, int32(55), got)

	_, err = add.Invoke(int32(1))
	require.ErrorContains(t, err, "takes 2 arguments")
}

func TestDefineRejectsDuplicates(t *testing.T) {
	l := newTestLoader(t)
	def := ir.NewClass(ir.AccPublic, "test.Once", types.Type{})
	data, err := classfile.Encode(def)
	require.NoError(t, err)

	_, err = l.DefineClass(data)
	require.NoError(t, err)
	_, err = l.DefineClass(data)
	require.ErrorContains(t, err, "already defined")

	_, err = l.DefineClasses([][]byte{data, data})
	require.ErrorContains(t, err, "twice in the batch")
}

func TestBatchLinksMutualReferences(t *testing.T) {
	base := ir.NewClass(ir.AccPublic, "test.Base", types.Type{})
	impl := ir.NewClass(ir.AccPublic, "test.Impl", types.Class("test.Base"))

	implData, err := classfile.Encode(impl)
	require.NoError(t, err)
	baseData, err := classfile.Encode(base)
	require.NoError(t, err)

	l := newTestLoader(t)
	// subclass first: linking must see the whole batch
	classes, err := l.DefineClasses([][]byte{implData, baseData})
	require.NoError(t, err)
	require.Same(t, classes[1], classes[0].Super())
}

func TestLinkFailsOnMissingSuper(t *testing.T) {
	orphan := ir.NewClass(ir.AccPublic, "test.Orphan", types.Class("test.Missing"))
	data, err := classfile.Encode(orphan)
	require.NoError(t, err)

	_, err = newTestLoader(t).DefineClass(data)
	require.ErrorContains(t, err, "class not found: test.Missing")
}

func TestInstanceFieldsAndConstructor(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Point", types.Type{})
	def.DeclareField(ir.AccPrivate, "x", types.Int)

	ctor := def.DeclareConstructor(ir.AccPublic, ir.Param("x", types.Int))
	this, err := ctor.Scope().GetThis()
	require.NoError(t, err)
	x, err := ctor.Scope().GetVariable("x")
	require.NoError(t, err)
	ctor.Body().
		Append(expr.InvokeSpecial(this, types.Object, "<init>", types.Void, nil)).
		Append(expr.SetField(this, "x", types.Int, x)).
		Append(ir.ReturnVoid())

	getX := def.DeclareMethod(ir.AccPublic, "x", types.Int)
	getThis, err := getX.Scope().GetThis()
	require.NoError(t, err)
	getX.Body().Append(expr.Return(expr.GetField(getThis, "x", types.Int)))

	l := newTestLoader(t)
	c := mustDefine(t, l, def)

	inst := c.NewInstance()
	require.Equal(t, int32(0), inst.Field("x"), "declared default before construction")

	init, ok := c.Method("<init>", "(I)V")
	require.True(t, ok)
	_, err = init.Invoke(inst, int32(7))
	require.NoError(t, err)
	require.Equal(t, int32(7), inst.Field("x"))

	getter, ok := c.Method("x", "()I")
	require.True(t, ok)
	got, err := getter.Invoke(inst)
	require.NoError(t, err)
	require.Equal(t, int32(7), got)
}

func TestClassInitializerRunsOnce(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Counter", types.Type{})
	def.DeclareField(ir.AccPrivate|ir.AccStatic, "count", types.Int)

	clinit := def.DeclareClassInitializer()
	clinit.Body().
		Append(expr.SetStatic(def.Type(), "count", expr.Int(41))).
		Append(ir.ReturnVoid())

	get := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "count", types.Int)
	get.Body().Append(expr.Return(expr.GetStatic(def.Type(), "count", types.Int)))

	bump := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "bump", types.Int)
	bump.Body().
		Append(expr.SetStatic(def.Type(), "count",
			expr.Add(expr.GetStatic(def.Type(), "count", types.Int), expr.Int(1)))).
		Append(expr.Return(expr.GetStatic(def.Type(), "count", types.Int)))

	l := newTestLoader(t)
	c := mustDefine(t, l, def)

	getter, _ := c.Method("count", "()I")
	got, err := getter.Invoke()
	require.NoError(t, err)
	require.Equal(t, int32(41), got)

	bumper, _ := c.Method("bump", "()I")
	got, err = bumper.Invoke()
	require.NoError(t, err)
	require.Equal(t, int32(42), got, "initializer must not run again")
}

func TestFailedInitializerSticksAsInitializationError(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Broken", types.Type{})
	clinit := def.DeclareClassInitializer()
	clinit.Body().
		Append(expr.Throw(expr.NewInstance(types.Class(RuntimeExceptionClass), nil))).
		Append(ir.ReturnVoid())
	get := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "zero", types.Int)
	get.Body().Append(expr.Return(expr.Int(0)))

	l := newTestLoader(t)
	c := mustDefine(t, l, def)

	m, _ := c.Method("zero", "()I")
	_, err := m.Invoke()
	var ie *InitializationError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "test.Broken", ie.Class)

	// the first outcome sticks
	_, err2 := m.Invoke()
	require.Equal(t, err, err2)
}

func TestUncaughtThrowableSurfacesAsThrown(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Boom", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "boom", types.Void)
	m.Body().Append(expr.Throw(expr.NewInstance(types.Class(RuntimeExceptionClass), nil)))

	l := newTestLoader(t)
	c := mustDefine(t, l, def)

	boom, _ := c.Method("boom", "()V")
	_, err := boom.Invoke()
	var thrown *Thrown
	require.ErrorAs(t, err, &thrown)
	require.Equal(t, RuntimeExceptionClass, thrown.Class.Name())
}

func TestDivideByZeroIsCatchable(t *testing.T) {
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
			ExceptionTypes: []types.Type{types.Class(ArithmeticExceptionClass)},
		}},
	})

	l := newTestLoader(t)
	c := mustDefine(t, l, def)
	div, _ := c.Method("div", "(II)I")

	got, err := div.Invoke(int32(10), int32(2))
	require.NoError(t, err)
	require.Equal(t, int32(5), got)

	got, err = div.Invoke(int32(1), int32(0))
	require.NoError(t, err)
	require.Equal(t, int32(-1), got)
}

func TestCallSiteBindingTable(t *testing.T) {
	l := newTestLoader(t)
	sum := func(args ...Value) (Value, error) {
		return args[0].(int32) + args[1].(int32), nil
	}
	require.NoError(t, l.BindCallSite(7, sum))
	require.ErrorContains(t, l.BindCallSite(7, sum), "already bound")

	def := ir.NewClass(ir.AccPublic, "test.Dyn", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "combine", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	m.Body().Append(expr.Return(expr.InvokeDynamic(
		"combine", types.Int, []types.Type{types.Int, types.Int},
		ir.CallSiteBinding(7),
		m.ParameterVariable(0), m.ParameterVariable(1))))

	c := mustDefine(t, l, def)

	require.ErrorContains(t, l.BindCallSite(8, sum), "frozen")

	combine, _ := c.Method("combine", "(II)I")
	got, err := combine.Invoke(int32(20), int32(22))
	require.NoError(t, err)
	require.Equal(t, int32(42), got)
}

func TestUnboundCallSiteFails(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Unbound", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "f", types.Int)
	m.Body().Append(expr.Return(expr.InvokeDynamic(
		"f", types.Int, nil, ir.CallSiteBinding(99))))

	l := newTestLoader(t)
	c := mustDefine(t, l, def)
	f, _ := c.Method("f", "()I")
	_, err := f.Invoke()
	require.ErrorContains(t, err, "99")
}

func TestHiddenClassWithClassData(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Hidden", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "data", types.String)
	m.Body().Append(expr.Return(expr.ClassData(types.String)))

	data, err := classfile.Encode(def)
	require.NoError(t, err)

	l := newTestLoader(t)
	first, err := l.DefineHiddenClass(data, "hello")
	require.NoError(t, err)
	second, err := l.DefineHiddenClass(data, "world")
	require.NoError(t, err)

	require.True(t, first.IsHidden())
	require.Contains(t, first.Name(), "test.Hidden/0x")
	require.NotEqual(t, first.Name(), second.Name())

	_, ok := l.Registry().Lookup("test.Hidden")
	require.False(t, ok, "hidden classes are never registered")

	get, ok := first.Method("data", "()Lanvil/String;")
	require.True(t, ok)
	got, err := get.Invoke()
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	get2, _ := second.Method("data", "()Lanvil/String;")
	got, err = get2.Invoke()
	require.NoError(t, err)
	require.Equal(t, "world", got)
}

func TestBuiltinConstructorAndMessage(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Msg", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "boom", types.Void)
	m.Body().Append(expr.Throw(expr.NewInstance(
		types.Class(ExceptionClass), []types.Type{types.String}, expr.String("it broke"))))

	l := newTestLoader(t)
	c := mustDefine(t, l, def)
	boom, _ := c.Method("boom", "()V")
	_, err := boom.Invoke()
	var thrown *Thrown
	require.ErrorAs(t, err, &thrown)
	require.ErrorContains(t, thrown, "it broke")
}
