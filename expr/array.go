package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

func checkIntIndex(what string, index ir.Expression) {
	if !index.Type().Equal(types.Int) {
		panic(fmt.Sprintf("expr: %s index must be int, got %s", what, index.Type()))
	}
}

// arrayAccessOp selects the per-element-type opcode from the family
// [int, long, float, double, reference]. Narrow integer kinds share the int
// form.
func arrayAccessOp(element types.Type, family [5]op.Code) op.Code {
	if element.IsReference() {
		return family[4]
	}
	switch categoryOf(element) {
	case categoryInt:
		return family[0]
	case categoryLong:
		return family[1]
	case categoryFloat:
		return family[2]
	case categoryDouble:
		return family[3]
	default:
		// boolean shares the int form
		if element.Equal(types.Boolean) {
			return family[0]
		}
		panic(fmt.Sprintf("expr: arrays of %s are not supported", element))
	}
}

type newArrayExpression struct {
	arrayType types.Type
	length    ir.Expression
}

// NewArray allocates an array of the given element type. The length must be
// an int expression; a negative length raises at run time, and a length that
// is a negative literal is rejected when the class module is encoded.
func NewArray(element types.Type, length ir.Expression) ir.Expression {
	checkIntIndex("array length", length)
	if element.Equal(types.Void) {
		panic("expr: cannot allocate an array of void")
	}
	return newArrayExpression{arrayType: types.ArrayOf(element), length: length}
}

func (e newArrayExpression) Type() types.Type { return e.arrayType }

func (e newArrayExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.length.Lower(ctx, sink)
	sink.Type(op.NewArray, e.arrayType)
}

func (e newArrayExpression) String() string {
	return fmt.Sprintf("new %s", e.arrayType)
}

type getElementExpression struct {
	array   ir.Expression
	index   ir.Expression
	element types.Type
}

// GetElement reads array[index].
func GetElement(array, index ir.Expression) ir.Expression {
	element, err := array.Type().Element()
	if err != nil {
		panic(fmt.Sprintf("expr: element access on non-array type %s", array.Type()))
	}
	checkIntIndex("array", index)
	return getElementExpression{array: array, index: index, element: element}
}

func (e getElementExpression) Type() types.Type { return e.element }

func (e getElementExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.array.Lower(ctx, sink)
	e.index.Lower(ctx, sink)
	sink.Instruction(arrayAccessOp(e.element, [5]op.Code{op.IALoad, op.LALoad, op.FALoad, op.DALoad, op.AALoad}))
}

func (e getElementExpression) String() string {
	return fmt.Sprintf("%s[%s]", e.array, e.index)
}

type setElementExpression struct {
	array   ir.Expression
	index   ir.Expression
	value   ir.Expression
	element types.Type
}

// SetElement writes array[index] = value. The result is void.
func SetElement(array, index, value ir.Expression) ir.Expression {
	element, err := array.Type().Element()
	if err != nil {
		panic(fmt.Sprintf("expr: element access on non-array type %s", array.Type()))
	}
	checkIntIndex("array", index)
	if !value.Type().Equal(element) {
		panic(fmt.Sprintf("expr: cannot store %s into %s", value.Type(), array.Type()))
	}
	return setElementExpression{array: array, index: index, value: value, element: element}
}

func (e setElementExpression) Type() types.Type { return types.Void }

func (e setElementExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.array.Lower(ctx, sink)
	e.index.Lower(ctx, sink)
	e.value.Lower(ctx, sink)
	sink.Instruction(arrayAccessOp(e.element, [5]op.Code{op.IAStore, op.LAStore, op.FAStore, op.DAStore, op.AAStore}))
}

type lengthExpression struct {
	array ir.Expression
}

// Length reads an array's length.
func Length(array ir.Expression) ir.Expression {
	if !array.Type().IsArray() {
		panic(fmt.Sprintf("expr: length of non-array type %s", array.Type()))
	}
	return lengthExpression{array: array}
}

func (e lengthExpression) Type() types.Type { return types.Int }

func (e lengthExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.array.Lower(ctx, sink)
	sink.Instruction(op.ArrayLength)
}

func (e lengthExpression) String() string {
	return fmt.Sprintf("%s.length", e.array)
}
