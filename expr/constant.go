package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

type constantExpression struct {
	c ir.Constant
}

func (e constantExpression) Type() types.Type { return e.c.Type() }

func (e constantExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	sink.Constant(e.c)
}

func (e constantExpression) String() string { return e.c.String() }

// Int pushes an int literal.
func Int(v int32) ir.Expression {
	return constantExpression{c: ir.IntConstant(v)}
}

// Long pushes a long literal.
func Long(v int64) ir.Expression {
	return constantExpression{c: ir.LongConstant(v)}
}

// Float pushes a float literal.
func Float(v float32) ir.Expression {
	return constantExpression{c: ir.FloatConstant(v)}
}

// Double pushes a double literal.
func Double(v float64) ir.Expression {
	return constantExpression{c: ir.DoubleConstant(v)}
}

// String pushes a string literal.
func String(v string) ir.Expression {
	return constantExpression{c: ir.StringConstant(v)}
}

// Bool pushes a boolean literal.
func Bool(v bool) ir.Expression {
	return booleanConstant{value: v}
}

type booleanConstant struct {
	value bool
}

func (e booleanConstant) Type() types.Type { return types.Boolean }

func (e booleanConstant) Lower(ctx *ir.Context, sink ir.CodeSink) {
	sink.Constant(ir.BoolConstant(e.value))
}

func (e booleanConstant) String() string { return fmt.Sprintf("%t", e.value) }

// ClassLiteral pushes a class literal.
func ClassLiteral(t types.Type) ir.Expression {
	return constantExpression{c: ir.ClassConstant(t)}
}

type nullExpression struct {
	typ types.Type
}

// Null pushes the null reference, statically typed as t. Panics if t is not
// a reference type.
func Null(t types.Type) ir.Expression {
	if !t.IsReference() {
		panic(fmt.Sprintf("expr: null cannot have primitive type %s", t))
	}
	return nullExpression{typ: t}
}

func (e nullExpression) Type() types.Type { return e.typ }

func (e nullExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	sink.Instruction(op.ConstNull)
}

func (e nullExpression) String() string { return "null" }

type classDataExpression struct {
	typ types.Type
}

// ClassData pushes the data value attached to the class when it was loaded,
// statically typed as t. Loading a class that was not defined with class
// data pushes null.
func ClassData(t types.Type) ir.Expression {
	if !t.IsReference() {
		panic(fmt.Sprintf("expr: class data cannot have primitive type %s", t))
	}
	return classDataExpression{typ: t}
}

func (e classDataExpression) Type() types.Type { return e.typ }

func (e classDataExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	sink.Instruction(op.ClassData)
	if !e.typ.Equal(types.Object) {
		sink.Type(op.CheckCast, e.typ)
	}
}
