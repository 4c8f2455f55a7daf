// Package expr builds typed expressions over the ir node tree: literals,
// arithmetic, comparisons, short-circuit logic, casts, field and array
// access, object construction, and invocations.
//
// Every constructor validates its operand types eagerly and panics on
// misuse. A mistyped expression is a programming error in the caller, not a
// runtime condition, so it surfaces at construction time rather than as a
// malformed class module later.
package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/types"
)

// arithmeticCategory classifies a type for instruction selection. Narrow
// integer kinds compute as int.
type arithmeticCategory int

const (
	categoryNone arithmeticCategory = iota
	categoryInt
	categoryLong
	categoryFloat
	categoryDouble
)

func categoryOf(t types.Type) arithmeticCategory {
	if !t.IsPrimitive() {
		return categoryNone
	}
	switch t.PrimitiveKind() {
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

func checkSameNumericType(what string, left, right ir.Expression) arithmeticCategory {
	if !left.Type().Equal(right.Type()) {
		panic(fmt.Sprintf("expr: %s operand types do not match: %s vs %s", what, left.Type(), right.Type()))
	}
	cat := categoryOf(left.Type())
	if cat == categoryNone {
		panic(fmt.Sprintf("expr: %s is not defined for type %s", what, left.Type()))
	}
	return cat
}

func checkBoolean(what string, e ir.Expression) {
	if !e.Type().Equal(types.Boolean) {
		panic(fmt.Sprintf("expr: %s requires a boolean operand, got %s", what, e.Type()))
	}
}
