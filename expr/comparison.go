package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// comparisonExpression lowers to a conditional jump producing a boolean.
// Int operands compare directly with the two-operand branch. Long and
// floating operands first reduce through a comparator instruction, then
// branch on the resulting int. The comparator variant is chosen so that an
// unordered (NaN) comparison always falls on the false side of the branch.
type comparisonExpression struct {
	name       string
	comparator op.Code // Invalid when the branch compares two values itself
	branch     op.Code
	left       ir.Expression
	right      ir.Expression
}

func (e comparisonExpression) Type() types.Type { return types.Boolean }

func (e comparisonExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	trueLabel := ctx.FreshLabel("cmp_true")
	endLabel := ctx.FreshLabel("cmp_end")

	e.left.Lower(ctx, sink)
	e.right.Lower(ctx, sink)
	if e.comparator != op.Invalid {
		sink.Instruction(e.comparator)
	}
	sink.Branch(e.branch, trueLabel)
	sink.Constant(ir.BoolConstant(false))
	sink.Branch(op.Goto, endLabel)
	sink.Mark(trueLabel)
	sink.Constant(ir.BoolConstant(true))
	sink.Mark(endLabel)
}

func (e comparisonExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left, e.name, e.right)
}

// ordering builds a relational comparison. The float comparator argument
// selects which unordered bias is needed: < and <= use the G variants so NaN
// compares false, > and >= use the L variants.
func ordering(name string, intBranch, afterCmp, floatCmp, doubleCmp op.Code, left, right ir.Expression) ir.Expression {
	cat := checkSameNumericType(name, left, right)
	e := comparisonExpression{name: name, left: left, right: right}
	switch cat {
	case categoryInt:
		e.comparator = op.Invalid
		e.branch = intBranch
	case categoryLong:
		e.comparator = op.LCmp
		e.branch = afterCmp
	case categoryFloat:
		e.comparator = floatCmp
		e.branch = afterCmp
	case categoryDouble:
		e.comparator = doubleCmp
		e.branch = afterCmp
	}
	return e
}

// LessThan compares left < right.
func LessThan(left, right ir.Expression) ir.Expression {
	return ordering("<", op.IfICmpLt, op.IfLt, op.FCmpG, op.DCmpG, left, right)
}

// LessThanOrEqual compares left <= right.
func LessThanOrEqual(left, right ir.Expression) ir.Expression {
	return ordering("<=", op.IfICmpLe, op.IfLe, op.FCmpG, op.DCmpG, left, right)
}

// GreaterThan compares left > right.
func GreaterThan(left, right ir.Expression) ir.Expression {
	return ordering(">", op.IfICmpGt, op.IfGt, op.FCmpL, op.DCmpL, left, right)
}

// GreaterThanOrEqual compares left >= right.
func GreaterThanOrEqual(left, right ir.Expression) ir.Expression {
	return ordering(">=", op.IfICmpGe, op.IfGe, op.FCmpL, op.DCmpL, left, right)
}

// equality builds an equality comparison. Reference operands compare by
// identity. Floating operands use the L comparator: NaN != NaN is true and
// NaN == NaN is false either way, since the unordered result is nonzero.
func equality(name string, intBranch, refBranch, afterCmp op.Code, left, right ir.Expression) ir.Expression {
	if left.Type().IsReference() && right.Type().IsReference() {
		return comparisonExpression{name: name, comparator: op.Invalid, branch: refBranch, left: left, right: right}
	}
	if !left.Type().Equal(right.Type()) {
		panic(fmt.Sprintf("expr: %s operand types do not match: %s vs %s", name, left.Type(), right.Type()))
	}
	if left.Type().Equal(types.Boolean) {
		return comparisonExpression{name: name, comparator: op.Invalid, branch: intBranch, left: left, right: right}
	}
	e := comparisonExpression{name: name, left: left, right: right}
	switch categoryOf(left.Type()) {
	case categoryInt:
		e.comparator = op.Invalid
		e.branch = intBranch
	case categoryLong:
		e.comparator = op.LCmp
		e.branch = afterCmp
	case categoryFloat:
		e.comparator = op.FCmpL
		e.branch = afterCmp
	case categoryDouble:
		e.comparator = op.DCmpL
		e.branch = afterCmp
	default:
		panic(fmt.Sprintf("expr: %s is not defined for type %s", name, left.Type()))
	}
	return e
}

// Equal compares left == right. References compare by identity.
func Equal(left, right ir.Expression) ir.Expression {
	return equality("==", op.IfICmpEq, op.IfACmpEq, op.IfEq, left, right)
}

// NotEqual compares left != right. References compare by identity.
func NotEqual(left, right ir.Expression) ir.Expression {
	return equality("!=", op.IfICmpNe, op.IfACmpNe, op.IfNe, left, right)
}

type isNullExpression struct {
	branch op.Code
	value  ir.Expression
}

// IsNull tests a reference for null.
func IsNull(value ir.Expression) ir.Expression {
	if !value.Type().IsReference() {
		panic(fmt.Sprintf("expr: null check requires a reference, got %s", value.Type()))
	}
	return isNullExpression{branch: op.IfNull, value: value}
}

// IsNotNull tests a reference for non-null.
func IsNotNull(value ir.Expression) ir.Expression {
	if !value.Type().IsReference() {
		panic(fmt.Sprintf("expr: null check requires a reference, got %s", value.Type()))
	}
	return isNullExpression{branch: op.IfNonNull, value: value}
}

func (e isNullExpression) Type() types.Type { return types.Boolean }

func (e isNullExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	trueLabel := ctx.FreshLabel("null_true")
	endLabel := ctx.FreshLabel("null_end")

	e.value.Lower(ctx, sink)
	sink.Branch(e.branch, trueLabel)
	sink.Constant(ir.BoolConstant(false))
	sink.Branch(op.Goto, endLabel)
	sink.Mark(trueLabel)
	sink.Constant(ir.BoolConstant(true))
	sink.Mark(endLabel)
}
