package ir

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/anvil/types"
)

func TestScopeSlotLayout(t *testing.T) {
	def := NewClass(AccPublic, "test.Slots", types.Type{})
	m := def.DeclareMethod(AccPublic, "run", types.Void,
		Param("a", types.Int), Param("b", types.Long), Param("c", types.Object))
	scope := m.Scope()

	this, err := scope.GetThis()
	require.NoError(t, err)
	require.Equal(t, 0, this.Slot())

	a, err := scope.GetVariable("a")
	require.NoError(t, err)
	require.Equal(t, 1, a.Slot())

	// long takes two slots
	b, err := scope.GetVariable("b")
	require.NoError(t, err)
	require.Equal(t, 2, b.Slot())

	c, err := scope.GetVariable("c")
	require.NoError(t, err)
	require.Equal(t, 4, c.Slot())

	require.Equal(t, 5, scope.MaxLocals())
}

func TestScopeStaticHasNoThis(t *testing.T) {
	def := NewClass(AccPublic, "test.Static", types.Type{})
	m := def.DeclareMethod(AccStatic, "run", types.Void, Param("a", types.Int))
	scope := m.Scope()

	_, err := scope.GetThis()
	require.Error(t, err)

	a, err := scope.GetVariable("a")
	require.NoError(t, err)
	require.Equal(t, 0, a.Slot())
}

func TestScopeDeclareErrors(t *testing.T) {
	def := NewClass(AccPublic, "test.Declare", types.Type{})
	scope := def.DeclareMethod(AccStatic, "run", types.Void).Scope()

	_, err := scope.DeclareVariable(types.Int, "x")
	require.NoError(t, err)
	_, err = scope.DeclareVariable(types.Long, "x")
	require.Error(t, err)
	_, err = scope.DeclareVariable(types.Int, "this")
	require.Error(t, err)

	_, err = scope.GetVariable("missing")
	require.Error(t, err)
}

func TestTempVariableReuse(t *testing.T) {
	def := NewClass(AccPublic, "test.Temps", types.Type{})
	scope := def.DeclareMethod(AccStatic, "run", types.Void).Scope()

	t1 := scope.GetOrCreateTempVariable(types.Int)
	t2 := scope.GetOrCreateTempVariable(types.Int)
	require.NotEqual(t, t1.Slot(), t2.Slot())

	require.NoError(t, scope.ReleaseTempVariableForReuse(t1))
	require.NoError(t, scope.ReleaseTempVariableForReuse(t2))

	// most recently released comes back first
	t3 := scope.GetOrCreateTempVariable(types.Int)
	require.Same(t, t2, t3)
	t4 := scope.GetOrCreateTempVariable(types.Int)
	require.Same(t, t1, t4)

	// a different type never reuses released slots of another type
	t5 := scope.GetOrCreateTempVariable(types.Long)
	require.NotEqual(t, t1.Slot(), t5.Slot())
	require.NotEqual(t, t2.Slot(), t5.Slot())
}

func TestTempVariableNaming(t *testing.T) {
	def := NewClass(AccPublic, "test.TempNames", types.Type{})
	scope := def.DeclareMethod(AccStatic, "run", types.Void).Scope()

	t1 := scope.CreateTempVariable(types.Long)
	t2 := scope.CreateTempVariable(types.Int)
	require.Equal(t, "temp_0", t1.Name())
	// the counter advances by the previous temp's width
	require.Equal(t, "temp_2", t2.Name())

	got, err := scope.GetTempVariable("temp_2")
	require.NoError(t, err)
	require.Same(t, t2, got)
}

func TestTempVariableReleaseErrors(t *testing.T) {
	def := NewClass(AccPublic, "test.Release", types.Type{})
	scope := def.DeclareMethod(AccStatic, "run", types.Void).Scope()

	temp := scope.GetOrCreateTempVariable(types.Int)
	require.NoError(t, scope.ReleaseTempVariableForReuse(temp))
	require.Error(t, scope.ReleaseTempVariableForReuse(temp), "double release")

	named, err := scope.DeclareVariable(types.Int, "named")
	require.NoError(t, err)
	require.Error(t, scope.ReleaseTempVariableForReuse(named), "not a temp")
	require.Error(t, scope.ReleaseTempVariableForReuse(nil))
}

func TestVariableSetTypeMismatchPanics(t *testing.T) {
	def := NewClass(AccPublic, "test.Set", types.Type{})
	scope := def.DeclareMethod(AccStatic, "run", types.Void).Scope()
	v, err := scope.DeclareVariable(types.Int, "x")
	require.NoError(t, err)

	require.Panics(t, func() {
		v.Set(longValue{})
	})
}

type longValue struct{}

func (longValue) Type() types.Type                { return types.Long }
func (longValue) Lower(ctx *Context, sink CodeSink) {}

func TestIncrementUnsupportedTypePanics(t *testing.T) {
	def := NewClass(AccPublic, "test.Inc", types.Type{})
	scope := def.DeclareMethod(AccStatic, "run", types.Void).Scope()

	f, err := scope.DeclareVariable(types.Float, "f")
	require.NoError(t, err)
	require.Panics(t, func() { f.Increment() })

	o, err := scope.DeclareVariable(types.Object, "o")
	require.NoError(t, err)
	require.Panics(t, func() { o.Increment() })

	i, err := scope.DeclareVariable(types.Int, "i")
	require.NoError(t, err)
	require.NotPanics(t, func() { i.Increment() })
}

func TestMemberNameValidation(t *testing.T) {
	def := NewClass(AccPublic, "test.Names", types.Type{})

	require.Panics(t, func() { def.DeclareField(AccPrivate, "", types.Int) })
	require.Panics(t, func() { def.DeclareField(AccPrivate, "a.b", types.Int) })
	require.Panics(t, func() { def.DeclareMethod(AccPublic, "bad/name", types.Void) })
	require.Panics(t, func() { def.DeclareMethod(AccPublic, "bad<name>", types.Void) })

	require.NotPanics(t, func() { def.DeclareConstructor(AccPublic) })
	require.NotPanics(t, func() { def.DeclareClassInitializer() })
}

func TestUniqueClassName(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		name := UniqueClassName("test.generated", "Gen")
		require.False(t, seen[name], "name %s repeated", name)
		seen[name] = true
	}
}

func TestDeclareClassInitializerIsCached(t *testing.T) {
	def := NewClass(AccPublic, "test.Clinit", types.Type{})
	first := def.DeclareClassInitializer()
	second := def.DeclareClassInitializer()
	require.Same(t, first, second)
	require.Equal(t, "<clinit>", first.Name())
	require.True(t, first.IsStatic())
}

func TestMethodDescriptorRendering(t *testing.T) {
	def := NewClass(AccPublic, "test.Desc", types.Type{})
	m := def.DeclareMethod(AccPublic, "f", types.Double,
		Param("a", types.Int), Param("b", types.ArrayOf(types.Object)))
	require.Equal(t, "(I[Lanvil/Object;)D", m.Descriptor())

	for i := 0; i < len(m.Parameters()); i++ {
		v := m.ParameterVariable(i)
		require.Equal(t, m.Parameters()[i].Name(), v.Name())
		require.Equal(t, fmt.Sprintf("%s", m.Parameters()[i].Type()), v.Type().String())
	}
}
