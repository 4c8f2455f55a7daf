package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

type andExpression struct {
	left  ir.Expression
	right ir.Expression
}

// And computes left && right with short-circuit evaluation: the right
// operand is not evaluated when the left is false.
func And(left, right ir.Expression) ir.Expression {
	checkBoolean("&&", left)
	checkBoolean("&&", right)
	return andExpression{left: left, right: right}
}

func (e andExpression) Type() types.Type { return types.Boolean }

func (e andExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	falseLabel := ctx.FreshLabel("and_false")
	endLabel := ctx.FreshLabel("and_end")

	e.left.Lower(ctx, sink)
	sink.Branch(op.IfEq, falseLabel)
	e.right.Lower(ctx, sink)
	sink.Branch(op.IfEq, falseLabel)
	sink.Constant(ir.BoolConstant(true))
	sink.Branch(op.Goto, endLabel)
	sink.Mark(falseLabel)
	sink.Constant(ir.BoolConstant(false))
	sink.Mark(endLabel)
}

func (e andExpression) String() string {
	return fmt.Sprintf("(%s && %s)", e.left, e.right)
}

type orExpression struct {
	left  ir.Expression
	right ir.Expression
}

// Or computes left || right with short-circuit evaluation.
func Or(left, right ir.Expression) ir.Expression {
	checkBoolean("||", left)
	checkBoolean("||", right)
	return orExpression{left: left, right: right}
}

func (e orExpression) Type() types.Type { return types.Boolean }

func (e orExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	trueLabel := ctx.FreshLabel("or_true")
	endLabel := ctx.FreshLabel("or_end")

	e.left.Lower(ctx, sink)
	sink.Branch(op.IfNe, trueLabel)
	e.right.Lower(ctx, sink)
	sink.Branch(op.IfNe, trueLabel)
	sink.Constant(ir.BoolConstant(false))
	sink.Branch(op.Goto, endLabel)
	sink.Mark(trueLabel)
	sink.Constant(ir.BoolConstant(true))
	sink.Mark(endLabel)
}

func (e orExpression) String() string {
	return fmt.Sprintf("(%s || %s)", e.left, e.right)
}

type notExpression struct {
	value ir.Expression
}

// Not computes !value.
func Not(value ir.Expression) ir.Expression {
	checkBoolean("!", value)
	return notExpression{value: value}
}

func (e notExpression) Type() types.Type { return types.Boolean }

func (e notExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	trueLabel := ctx.FreshLabel("not_true")
	endLabel := ctx.FreshLabel("not_end")

	e.value.Lower(ctx, sink)
	sink.Branch(op.IfEq, trueLabel)
	sink.Constant(ir.BoolConstant(false))
	sink.Branch(op.Goto, endLabel)
	sink.Mark(trueLabel)
	sink.Constant(ir.BoolConstant(true))
	sink.Mark(endLabel)
}

func (e notExpression) String() string {
	return fmt.Sprintf("(!%s)", e.value)
}

type ifThenElseExpression struct {
	condition ir.Expression
	ifTrue    ir.Expression
	ifFalse   ir.Expression
}

// IfThenElse computes the ternary condition ? ifTrue : ifFalse. Both
// branches must have the same type, which becomes the expression's type.
func IfThenElse(condition, ifTrue, ifFalse ir.Expression) ir.Expression {
	checkBoolean("conditional", condition)
	if !ifTrue.Type().Equal(ifFalse.Type()) {
		panic(fmt.Sprintf("expr: conditional branch types do not match: %s vs %s", ifTrue.Type(), ifFalse.Type()))
	}
	return ifThenElseExpression{condition: condition, ifTrue: ifTrue, ifFalse: ifFalse}
}

func (e ifThenElseExpression) Type() types.Type { return e.ifTrue.Type() }

func (e ifThenElseExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	falseLabel := ctx.FreshLabel("cond_false")
	endLabel := ctx.FreshLabel("cond_end")

	e.condition.Lower(ctx, sink)
	sink.Branch(op.IfEq, falseLabel)
	e.ifTrue.Lower(ctx, sink)
	sink.Branch(op.Goto, endLabel)
	sink.Mark(falseLabel)
	e.ifFalse.Lower(ctx, sink)
	sink.Mark(endLabel)
}
