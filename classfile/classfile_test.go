package classfile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/anvil/expr"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

func addClass(t *testing.T) *ir.ClassDefinition {
	t.Helper()
	def := ir.NewClass(ir.AccPublic, "test.Add", types.Type{})
	def.DeclareDefaultConstructor(ir.AccPublic)
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "add", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	m.Body().Append(expr.Return(expr.Add(m.ParameterVariable(0), m.ParameterVariable(1))))
	return def
}

func TestEncodeParseRoundTrip(t *testing.T) {
	def := addClass(t)
	def.DeclareField(ir.AccPrivate, "count", types.Long)

	data, err := Encode(def)
	require.NoError(t, err)

	cf, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, "test/Add", cf.Name)
	require.Equal(t, "anvil/Object", cf.SuperClass)
	require.Equal(t, uint16(ir.AccPublic), cf.Access)
	require.Len(t, cf.Body.Fields, 1)
	require.Equal(t, "J", cf.Body.Fields[0].Descriptor)
	require.Len(t, cf.Body.Methods, 2)

	add := cf.Body.Methods[1]
	require.Equal(t, "add", add.Name)
	require.Equal(t, "(II)I", add.Descriptor)
	require.NotEmpty(t, add.Code)
	require.Equal(t, uint16(2), add.MaxStack)
	require.Equal(t, uint16(2), add.MaxLocals)
	require.Equal(t, []string{"a", "b"}, add.LocalNames)

	// re-encoding the parsed form is byte-identical
	again, err := cf.Encode()
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestShallowHeaderAgreesWithFullParse(t *testing.T) {
	def := ir.NewClass(ir.AccPublic|ir.AccFinal, "test.Impl", types.Class("test.Base"),
		types.Interface("test.Iface"), types.Interface("test.Other"))
	data, err := Encode(def)
	require.NoError(t, err)

	header, err := ParseHeader(data)
	require.NoError(t, err)
	full, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, *header, full.Header)
	require.Equal(t, "test/Base", header.SuperClass)
	require.Equal(t, []string{"test/Iface", "test/Other"}, header.Interfaces)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("not a class module"))
	require.Error(t, err)
	_, err = ParseHeader([]byte{'A', 'V'})
	require.Error(t, err)

	// wrong version
	def := addClass(t)
	data, err := Encode(def)
	require.NoError(t, err)
	data[4] = 0xFF
	_, err = Parse(data)
	require.ErrorContains(t, err, "version")
}

func TestUnmarkedLabelIsStructural(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Bad", types.Type{})
	m := def.DeclareMethod(ir.AccStatic, "run", types.Void)
	m.Body().GotoLabel(ir.NewLabel("nowhere")).Append(ir.ReturnVoid())

	_, err := Encode(def)
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Reason, "never marked")
	require.Equal(t, "run", serr.Method)
}

func TestDoublyMarkedLabelIsStructural(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Bad", types.Type{})
	m := def.DeclareMethod(ir.AccStatic, "run", types.Void)
	label := ir.NewLabel("twice")
	m.Body().Mark(label).Mark(label).Append(ir.ReturnVoid())

	_, err := Encode(def)
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Reason, "marked twice")
}

func TestNegativeArraySizeIsStructural(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Bad", types.Type{})
	m := def.DeclareMethod(ir.AccStatic, "run", types.Void)
	m.Body().
		Append(expr.Pop(expr.NewArray(types.Int, expr.Int(-3)))).
		Append(ir.ReturnVoid())

	_, err := Encode(def)
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Reason, "negative")
}

func TestStackUnderflowIsStructural(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Bad", types.Type{})
	m := def.DeclareMethod(ir.AccStatic, "run", types.Void)
	m.Body().Append(ir.Instr(op.IAdd)).Append(ir.ReturnVoid())

	_, err := Encode(def)
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Reason, "underflow")
}

func TestFallingOffTheEndIsStructural(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Bad", types.Type{})
	m := def.DeclareMethod(ir.AccStatic, "run", types.Void)
	m.Body().Push(ir.IntConstant(1)).Append(ir.Instr(op.Pop))

	_, err := Encode(def)
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Reason, "falls off")
}

func TestConstantPoolDeduplicates(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Dedup", types.Type{})
	m := def.DeclareMethod(ir.AccStatic, "run", types.Int)
	m.Body().
		Push(ir.IntConstant(7)).
		Push(ir.IntConstant(7)).
		Append(ir.Instr(op.IAdd)).
		Append(ir.Instr(op.IReturn))

	cf, err := Lower(def)
	require.NoError(t, err)
	require.Len(t, cf.Body.Methods[0].Consts, 1)
}

func TestHandlerTableRoundTrip(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Handlers", types.Type{})
	m := def.DeclareMethod(ir.AccStatic, "run", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	body := ir.NewBlock().
		Append(expr.Return(expr.Divide(m.ParameterVariable(0), m.ParameterVariable(1))))
	handler := ir.NewBlock().
		Append(ir.Instr(op.Pop)).
		Append(expr.Return(expr.Int(-1)))
	m.Body().Append(&ir.TryCatch{
		TryBody: body,
		CatchBlocks: []ir.CatchBlock{
			{Handler: handler, ExceptionTypes: []types.Type{types.Class("anvil.ArithmeticException")}},
			{Handler: ir.NewBlock().Append(ir.Instr(op.Pop)).Append(expr.Return(expr.Int(-2)))},
		},
	})

	data, err := Encode(def)
	require.NoError(t, err)
	cf, err := Parse(data)
	require.NoError(t, err)

	handlers := cf.Body.Methods[0].Handlers
	require.Len(t, handlers, 2)
	require.Equal(t, "Lanvil/ArithmeticException;", handlers[0].Exception)
	require.Empty(t, handlers[1].Exception, "catch-anything entry")
	require.Less(t, handlers[0].Start, handlers[0].End)
}

type mapResolver map[string]bool

func (r mapResolver) ResolveClass(name string) error {
	if r[name] {
		return nil
	}
	return &notFound{name}
}

type notFound struct{ name string }

func (e *notFound) Error() string { return "class not found: " + e.name }

func TestVerifyResolvesReferencedClasses(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Refs", types.Class("test.Base"))
	m := def.DeclareMethod(ir.AccStatic, "make", types.Class("test.Point"))
	m.Body().Append(expr.Return(
		expr.NewInstance(types.Class("test.Point"), nil)))

	data, err := Encode(def)
	require.NoError(t, err)

	ok := mapResolver{"test.Base": true, "test.Point": true}
	require.NoError(t, Verify(data, ok))

	missing := mapResolver{"test.Base": true}
	err = Verify(data, missing)
	require.Error(t, err)
	require.Contains(t, err.Error(), "test.Point")
}

func TestVerifyRejectsCorruptedMaxStack(t *testing.T) {
	def := addClass(t)
	cf, err := Lower(def)
	require.NoError(t, err)
	cf.Body.Methods[1].MaxStack = 0
	data, err := cf.Encode()
	require.NoError(t, err)

	err = Verify(data, mapResolver{"anvil.Object": true})
	require.Error(t, err)
	require.Contains(t, err.Error(), "max stack")
}
