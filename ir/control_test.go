package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

func lowerToText(t *testing.T, node Node) string {
	t.Helper()
	def := NewClass(AccPublic, "test.Lowering", types.Type{})
	m := def.DeclareMethod(AccStatic, "run", types.Void)
	sink := NewTextSink("")
	node.Lower(NewContext(m.Scope()), sink)
	return sink.String()
}

func TestIfStatementLowering(t *testing.T) {
	s := &IfStatement{
		Condition: PushConstant(BoolConstant(true)),
		IfTrue:    Instr(op.Nop),
		IfFalse:   Instr(op.Pop),
	}
	text := lowerToText(t, s)
	require.Contains(t, text, "IFEQ if_false_2")
	require.Contains(t, text, "GOTO if_end_1")
	require.Contains(t, text, "if_false_2:")
	require.Contains(t, text, "if_end_1:")
}

func TestIfWithoutElseSkipsFalseLabel(t *testing.T) {
	s := &IfStatement{
		Condition: PushConstant(BoolConstant(true)),
		IfTrue:    Instr(op.Nop),
	}
	text := lowerToText(t, s)
	require.Contains(t, text, "IFEQ if_end_1")
	require.NotContains(t, text, "if_false")
}

func TestWhileLoopLowering(t *testing.T) {
	s := &WhileLoop{
		Condition: PushConstant(BoolConstant(true)),
		Body:      Instr(op.Nop),
	}
	text := lowerToText(t, s)
	require.Contains(t, text, "while_begin_1:")
	require.Contains(t, text, "IFEQ while_end_2")
	require.Contains(t, text, "GOTO while_begin_1")
}

func TestDoWhileLowersConditionAfterBody(t *testing.T) {
	s := &DoWhileLoop{
		Body:      Instr(op.Nop),
		Condition: PushConstant(BoolConstant(false)),
	}
	text := lowerToText(t, s)
	require.Contains(t, text, "do_while_begin_1:")
	require.Contains(t, text, "IFNE do_while_begin_1")
}

func TestSwitchStatementLowering(t *testing.T) {
	s := &SwitchStatement{Expression: PushConstant(IntConstant(2))}
	s.AddCase(1, Instr(op.Nop))
	s.AddCase(2, Instr(op.Nop))
	text := lowerToText(t, s)
	require.Contains(t, text, "LOOKUPSWITCH default=switch_default_2")
	require.Contains(t, text, "1: switch_case_1_3")
	require.Contains(t, text, "2: switch_case_2_4")
	// no fall-through: every case exits to the end label
	require.Contains(t, text, "GOTO switch_end_1")
}

func TestSwitchDuplicateKeyPanics(t *testing.T) {
	s := &SwitchStatement{Expression: PushConstant(IntConstant(0))}
	s.AddCase(7, Instr(op.Nop))
	require.Panics(t, func() { s.AddCase(7, Instr(op.Nop)) })
}

func TestTryCatchLowering(t *testing.T) {
	s := &TryCatch{
		TryBody: Instr(op.Nop),
		CatchBlocks: []CatchBlock{
			{Handler: Instr(op.Pop), ExceptionTypes: []types.Type{types.Exception, types.Throwable}},
			{Handler: Instr(op.Pop)},
		},
	}
	text := lowerToText(t, s)
	require.Contains(t, text, "try_start_1:")
	require.Contains(t, text, "try_end_2:")
	require.Contains(t, text, "GOTO try_done_3")
	require.Contains(t, text, "handler_0_4:")
	require.Contains(t, text, "handler_1_5:")
	// one table entry per declared type, then a catch-anything entry
	require.Contains(t, text, ".catch [try_start_1, try_end_2) -> handler_0_4 (anvil.Exception)")
	require.Contains(t, text, ".catch [try_start_1, try_end_2) -> handler_0_4 (anvil.Throwable)")
	require.Contains(t, text, ".catch [try_start_1, try_end_2) -> handler_1_5 (any)")
}

func TestBlockCommentAppearsInText(t *testing.T) {
	b := NewBlock().Comment("compute %s", "sum").Append(Instr(op.Nop))
	text := lowerToText(t, b)
	require.Contains(t, text, "// compute sum")
	require.Contains(t, text, "NOP")
}

func TestJumpRejectsNonBranchOpcode(t *testing.T) {
	require.Panics(t, func() { Jump(op.IAdd, NewLabel("x")) })
	require.NotPanics(t, func() { Jump(op.IfNull, NewLabel("x")) })
}
