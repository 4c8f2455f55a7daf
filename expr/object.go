package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

func checkArguments(what string, parameterTypes []types.Type, args []ir.Expression) {
	if len(parameterTypes) != len(args) {
		panic(fmt.Sprintf("expr: %s takes %d arguments, got %d", what, len(parameterTypes), len(args)))
	}
	for i, a := range args {
		if !a.Type().Equal(parameterTypes[i]) {
			panic(fmt.Sprintf("expr: %s argument %d must be %s, got %s", what, i, parameterTypes[i], a.Type()))
		}
	}
}

type newInstanceExpression struct {
	typ            types.Type
	parameterTypes []types.Type
	args           []ir.Expression
}

// NewInstance allocates an instance of t and invokes the constructor with
// the given parameter types on it. Argument types must match exactly.
func NewInstance(t types.Type, parameterTypes []types.Type, args ...ir.Expression) ir.Expression {
	if !t.IsClass() {
		panic(fmt.Sprintf("expr: cannot instantiate %s", t))
	}
	checkArguments(t.SimpleName()+" constructor", parameterTypes, args)
	return newInstanceExpression{typ: t, parameterTypes: parameterTypes, args: args}
}

func (e newInstanceExpression) Type() types.Type { return e.typ }

func (e newInstanceExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	sink.Type(op.New, e.typ)
	sink.Instruction(op.Dup)
	for _, a := range e.args {
		a.Lower(ctx, sink)
	}
	sink.Invoke(op.InvokeSpecial, e.typ, "<init>", types.Void, e.parameterTypes)
}

func (e newInstanceExpression) String() string {
	return fmt.Sprintf("new %s(...)", e.typ)
}

type getFieldExpression struct {
	instance  ir.Expression
	owner     types.Type
	name      string
	fieldType types.Type
}

// GetField reads an instance field. The field owner is the instance's
// static type.
func GetField(instance ir.Expression, name string, fieldType types.Type) ir.Expression {
	if !instance.Type().IsClass() {
		panic(fmt.Sprintf("expr: field access on non-class type %s", instance.Type()))
	}
	return getFieldExpression{instance: instance, owner: instance.Type(), name: name, fieldType: fieldType}
}

func (e getFieldExpression) Type() types.Type { return e.fieldType }

func (e getFieldExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.instance.Lower(ctx, sink)
	sink.Field(op.GetField, e.owner, e.name, e.fieldType)
}

func (e getFieldExpression) String() string {
	return fmt.Sprintf("%s.%s", e.instance, e.name)
}

type setFieldExpression struct {
	instance ir.Expression
	owner    types.Type
	name     string
	value    ir.Expression
}

// SetField writes an instance field; the value type must match exactly.
// The result is void.
func SetField(instance ir.Expression, name string, fieldType types.Type, value ir.Expression) ir.Expression {
	if !instance.Type().IsClass() {
		panic(fmt.Sprintf("expr: field access on non-class type %s", instance.Type()))
	}
	if !value.Type().Equal(fieldType) {
		panic(fmt.Sprintf("expr: cannot assign %s to field %s of type %s", value.Type(), name, fieldType))
	}
	return setFieldExpression{instance: instance, owner: instance.Type(), name: name, value: value}
}

func (e setFieldExpression) Type() types.Type { return types.Void }

func (e setFieldExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.instance.Lower(ctx, sink)
	e.value.Lower(ctx, sink)
	sink.Field(op.PutField, e.owner, e.name, e.value.Type())
}

type getStaticExpression struct {
	owner     types.Type
	name      string
	fieldType types.Type
}

// GetStatic reads a static field.
func GetStatic(owner types.Type, name string, fieldType types.Type) ir.Expression {
	return getStaticExpression{owner: owner, name: name, fieldType: fieldType}
}

func (e getStaticExpression) Type() types.Type { return e.fieldType }

func (e getStaticExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	sink.Field(op.GetStatic, e.owner, e.name, e.fieldType)
}

func (e getStaticExpression) String() string {
	return fmt.Sprintf("%s.%s", e.owner, e.name)
}

type setStaticExpression struct {
	owner types.Type
	name  string
	value ir.Expression
}

// SetStatic writes a static field. The result is void.
func SetStatic(owner types.Type, name string, value ir.Expression) ir.Expression {
	return setStaticExpression{owner: owner, name: name, value: value}
}

func (e setStaticExpression) Type() types.Type { return types.Void }

func (e setStaticExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.value.Lower(ctx, sink)
	sink.Field(op.PutStatic, e.owner, e.name, e.value.Type())
}

type popExpression struct {
	value ir.Expression
}

// Pop evaluates value for its side effects and discards the result.
func Pop(value ir.Expression) ir.Expression {
	if value.Type().Equal(types.Void) {
		panic("expr: cannot pop a void expression")
	}
	return popExpression{value: value}
}

func (e popExpression) Type() types.Type { return types.Void }

func (e popExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	e.value.Lower(ctx, sink)
	sink.Instruction(op.Pop)
}

type throwNode struct {
	value ir.Expression
}

// Throw raises the given throwable. Control transfers to the innermost
// matching handler or unwinds out of the method.
func Throw(value ir.Expression) ir.Node {
	if !value.Type().IsReference() {
		panic(fmt.Sprintf("expr: cannot throw a value of type %s", value.Type()))
	}
	return throwNode{value: value}
}

func (n throwNode) Lower(ctx *ir.Context, sink ir.CodeSink) {
	n.value.Lower(ctx, sink)
	sink.Instruction(op.Throw)
}

type returnNode struct {
	value ir.Expression
}

// Return returns the given value from the enclosing method.
func Return(value ir.Expression) ir.Node {
	if value.Type().Equal(types.Void) {
		panic("expr: use ir.ReturnVoid to return from a void method")
	}
	return returnNode{value: value}
}

func (n returnNode) Lower(ctx *ir.Context, sink ir.CodeSink) {
	n.value.Lower(ctx, sink)
	sink.Instruction(ir.ReturnForType(n.value.Type()))
}
