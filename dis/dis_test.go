package dis

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/expr"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

func plainDisassembly(t *testing.T, def *ir.ClassDefinition) string {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	data, err := classfile.Encode(def)
	require.NoError(t, err)
	text, err := String(data)
	require.NoError(t, err)
	return text
}

func TestDisassembleMethod(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Math", types.Type{})
	def.DeclareField(ir.AccPrivate, "count", types.Long)
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "add", types.Int,
		ir.Param("a", types.Int), ir.Param("b", types.Int))
	m.Body().Append(expr.Return(expr.Add(m.ParameterVariable(0), m.ParameterVariable(1))))

	text := plainDisassembly(t, def)
	require.Contains(t, text, "class test/Math extends anvil/Object")
	require.Contains(t, text, "J count")
	require.Contains(t, text, "add(II)I")
	require.Contains(t, text, "stack=2 locals=2 (a, b)")
	require.Contains(t, text, "IADD")
	require.Contains(t, text, "IRETURN")
}

func TestDisassembleRendersConstantsAndBranches(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Branchy", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "pick", types.Int,
		ir.Param("flag", types.Boolean))
	m.Body().Append(&ir.IfStatement{
		Condition: m.ParameterVariable(0),
		IfTrue:    expr.Return(expr.Int(42)),
		IfFalse:   expr.Return(expr.Int(7)),
	})

	text := plainDisassembly(t, def)
	// branch targets render as code offsets, constants with their entry
	require.Contains(t, text, "IFEQ ->")
	require.Contains(t, text, "<int 42>")
}

func TestDisassembleHandlerTable(t *testing.T) {
	def := ir.NewClass(ir.AccPublic, "test.Catchy", types.Type{})
	m := def.DeclareMethod(ir.AccPublic|ir.AccStatic, "safe", types.Int,
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

	text := plainDisassembly(t, def)
	require.Contains(t, text, "catch [")
	require.Contains(t, text, "(Lanvil/ArithmeticException;)")
}

func TestDisassembleRejectsGarbage(t *testing.T) {
	_, err := String([]byte("not a class module"))
	require.Error(t, err)
}
