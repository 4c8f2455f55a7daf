package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

type castExpression struct {
	value ir.Expression
	to    types.Type
	ops   []op.Code
	check bool
}

// Cast converts value to the target type. Numeric casts select the primitive
// conversion instruction sequence; reference-to-reference casts emit a
// checked cast verified at run time. Casting between a primitive and a
// reference type, or to or from boolean or void, panics.
func Cast(value ir.Expression, to types.Type) ir.Expression {
	from := value.Type()
	if from.Equal(to) {
		return value
	}
	if from.IsReference() && to.IsReference() {
		return castExpression{value: value, to: to, check: true}
	}
	if !from.IsPrimitive() || !to.IsPrimitive() {
		panic(fmt.Sprintf("expr: cannot cast %s to %s", from, to))
	}
	ops, ok := conversion(from.PrimitiveKind(), to.PrimitiveKind())
	if !ok {
		panic(fmt.Sprintf("expr: cannot cast %s to %s", from, to))
	}
	return castExpression{value: value, to: to, ops: ops}
}

// conversion returns the instruction sequence converting between primitive
// kinds. Conversions to byte, short, and char first widen to int if needed,
// then truncate. Boolean and void participate in no conversions.
func conversion(from, to types.PrimitiveKind) ([]op.Code, bool) {
	if from == types.BooleanKind || to == types.BooleanKind ||
		from == types.VoidKind || to == types.VoidKind {
		return nil, false
	}

	// Reduce the target to its computational category first.
	switch to {
	case types.ByteKind:
		ops, ok := conversion(from, types.IntKind)
		if !ok {
			return nil, false
		}
		return append(ops, op.I2B), true
	case types.ShortKind:
		ops, ok := conversion(from, types.IntKind)
		if !ok {
			return nil, false
		}
		return append(ops, op.I2S), true
	case types.CharKind:
		ops, ok := conversion(from, types.IntKind)
		if !ok {
			return nil, false
		}
		return append(ops, op.I2C), true
	}

	fromCat := kindCategory(from)
	toCat := kindCategory(to)
	if fromCat == toCat {
		return nil, true
	}
	table := map[[2]arithmeticCategory]op.Code{
		{categoryInt, categoryLong}:     op.I2L,
		{categoryInt, categoryFloat}:    op.I2F,
		{categoryInt, categoryDouble}:   op.I2D,
		{categoryLong, categoryInt}:     op.L2I,
		{categoryLong, categoryFloat}:   op.L2F,
		{categoryLong, categoryDouble}:  op.L2D,
		{categoryFloat, categoryInt}:    op.F2I,
		{categoryFloat, categoryLong}:   op.F2L,
		{categoryFloat, categoryDouble}: op.F2D,
		{categoryDouble, categoryInt}:   op.D2I,
		{categoryDouble, categoryLong}:  op.D2L,
		{categoryDouble, categoryFloat}: op.D2F,
	}
	code, ok := table[[2]arithmeticCategory{fromCat, toCat}]
	if !ok {
		return nil, false
	}
	return []op.Code{code}, true
}

func kindCategory(k types.PrimitiveKind) arithmeticCategory {
	switch k {
	case types.ByteKind, types.ShortKind, types.CharKind, types.IntKind:
		return categoryInt
	case types.LongKind:
		return categoryLong
	case types.FloatKind:
		return categoryFloat
	case types.DoubleKind:
		return categoryDouble
	default:
		return categoryNone
	}
}

func (e castExpression) Type() types.Type { return e.to }

func (e castExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.value.Lower(ctx, sink)
	if e.check {
		sink.Type(op.CheckCast, e.to)
		return
	}
	for _, code := range e.ops {
		sink.Instruction(code)
	}
}

func (e castExpression) String() string {
	return fmt.Sprintf("((%s) %s)", e.to, e.value)
}

type instanceOfExpression struct {
	value ir.Expression
	test  types.Type
}

// InstanceOf tests whether value is a non-null instance of the given
// reference type.
func InstanceOf(value ir.Expression, t types.Type) ir.Expression {
	if !value.Type().IsReference() {
		panic(fmt.Sprintf("expr: instanceof requires a reference, got %s", value.Type()))
	}
	if !t.IsReference() {
		panic(fmt.Sprintf("expr: instanceof requires a reference type, got %s", t))
	}
	return instanceOfExpression{value: value, test: t}
}

func (e instanceOfExpression) Type() types.Type { return types.Boolean }

func (e instanceOfExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.value.Lower(ctx, sink)
	sink.Type(op.InstanceOf, e.test)
}

func (e instanceOfExpression) String() string {
	return fmt.Sprintf("(%s instanceof %s)", e.value, e.test)
}
