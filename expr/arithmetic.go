package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

type binaryExpression struct {
	name  string
	code  op.Code
	typ   types.Type
	left  ir.Expression
	right ir.Expression
}

func (e binaryExpression) Type() types.Type { return e.typ }

func (e binaryExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.left.Lower(ctx, sink)
	e.right.Lower(ctx, sink)
	sink.Instruction(e.code)
}

func (e binaryExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left, e.name, e.right)
}

// selectArithmetic picks the opcode from the per-category family
// [int, long, float, double].
func selectArithmetic(cat arithmeticCategory, family [4]op.Code) op.Code {
	switch cat {
	case categoryInt:
		return family[0]
	case categoryLong:
		return family[1]
	case categoryFloat:
		return family[2]
	default:
		return family[3]
	}
}

func arithmetic(name string, family [4]op.Code, left, right ir.Expression) ir.Expression {
	cat := checkSameNumericType(name, left, right)
	return binaryExpression{
		name:  name,
		code:  selectArithmetic(cat, family),
		typ:   left.Type(),
		left:  left,
		right: right,
	}
}

// Add computes left + right for matching numeric operands.
func Add(left, right ir.Expression) ir.Expression {
	return arithmetic("+", [4]op.Code{op.IAdd, op.LAdd, op.FAdd, op.DAdd}, left, right)
}

// Subtract computes left - right.
func Subtract(left, right ir.Expression) ir.Expression {
	return arithmetic("-", [4]op.Code{op.ISub, op.LSub, op.FSub, op.DSub}, left, right)
}

// Multiply computes left * right.
func Multiply(left, right ir.Expression) ir.Expression {
	return arithmetic("*", [4]op.Code{op.IMul, op.LMul, op.FMul, op.DMul}, left, right)
}

// Divide computes left / right. Integer division by zero raises an
// arithmetic exception at run time.
func Divide(left, right ir.Expression) ir.Expression {
	return arithmetic("/", [4]op.Code{op.IDiv, op.LDiv, op.FDiv, op.DDiv}, left, right)
}

// Remainder computes left % right.
func Remainder(left, right ir.Expression) ir.Expression {
	return arithmetic("%", [4]op.Code{op.IRem, op.LRem, op.FRem, op.DRem}, left, right)
}

func integral(name string, intCode, longCode op.Code, left, right ir.Expression) ir.Expression {
	cat := checkSameNumericType(name, left, right)
	var code op.Code
	switch cat {
	case categoryInt:
		code = intCode
	case categoryLong:
		code = longCode
	default:
		panic(fmt.Sprintf("expr: %s is not defined for type %s", name, left.Type()))
	}
	return binaryExpression{name: name, code: code, typ: left.Type(), left: left, right: right}
}

// BitwiseAnd computes left & right for int or long operands.
func BitwiseAnd(left, right ir.Expression) ir.Expression {
	return integral("&", op.IAnd, op.LAnd, left, right)
}

// BitwiseOr computes left | right.
func BitwiseOr(left, right ir.Expression) ir.Expression {
	return integral("|", op.IOr, op.LOr, left, right)
}

// BitwiseXor computes left ^ right.
func BitwiseXor(left, right ir.Expression) ir.Expression {
	return integral("^", op.IXor, op.LXor, left, right)
}

func shift(name string, intCode, longCode op.Code, value, amount ir.Expression) ir.Expression {
	if categoryOf(amount.Type()) != categoryInt {
		panic(fmt.Sprintf("expr: shift amount must be int, got %s", amount.Type()))
	}
	var code op.Code
	switch categoryOf(value.Type()) {
	case categoryInt:
		code = intCode
	case categoryLong:
		code = longCode
	default:
		panic(fmt.Sprintf("expr: %s is not defined for type %s", name, value.Type()))
	}
	return binaryExpression{name: name, code: code, typ: value.Type(), left: value, right: amount}
}

// ShiftLeft computes value << amount. The amount is always int.
func ShiftLeft(value, amount ir.Expression) ir.Expression {
	return shift("<<", op.IShl, op.LShl, value, amount)
}

// ShiftRight computes the arithmetic (sign-extending) value >> amount.
func ShiftRight(value, amount ir.Expression) ir.Expression {
	return shift(">>", op.IShr, op.LShr, value, amount)
}

// ShiftRightUnsigned computes the logical (zero-filling) value >>> amount.
func ShiftRightUnsigned(value, amount ir.Expression) ir.Expression {
	return shift(">>>", op.IUshr, op.LUshr, value, amount)
}

type negateExpression struct {
	code  op.Code
	value ir.Expression
}

// Negate computes -value for a numeric operand.
func Negate(value ir.Expression) ir.Expression {
	var code op.Code
	switch categoryOf(value.Type()) {
	case categoryInt:
		code = op.INeg
	case categoryLong:
		code = op.LNeg
	case categoryFloat:
		code = op.FNeg
	case categoryDouble:
		code = op.DNeg
	default:
		panic(fmt.Sprintf("expr: negate is not defined for type %s", value.Type()))
	}
	return negateExpression{code: code, value: value}
}

func (e negateExpression) Type() types.Type { return e.value.Type() }

func (e negateExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.value.Lower(ctx, sink)
	sink.Instruction(e.code)
}
