package expr

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

type invokeExpression struct {
	code           op.Code
	instance       ir.Expression // nil for static invocations
	owner          types.Type
	name           string
	returnType     types.Type
	parameterTypes []types.Type
	args           []ir.Expression
}

func (e invokeExpression) Type() types.Type { return e.returnType }

func (e invokeExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	if e.instance != nil {
		e.instance.Lower(ctx, sink)
	}
	for _, a := range e.args {
		a.Lower(ctx, sink)
	}
	sink.Invoke(e.code, e.owner, e.name, e.returnType, e.parameterTypes)
}

func (e invokeExpression) String() string {
	if e.instance != nil {
		return fmt.Sprintf("%s.%s(...)", e.instance, e.name)
	}
	return fmt.Sprintf("%s.%s(...)", e.owner, e.name)
}

// InvokeStatic calls a static method, evaluating the arguments in order.
func InvokeStatic(owner types.Type, name string, returnType types.Type, parameterTypes []types.Type, args ...ir.Expression) ir.Expression {
	checkArguments(owner.SimpleName()+"."+name, parameterTypes, args)
	return invokeExpression{
		code:           op.InvokeStatic,
		owner:          owner,
		name:           name,
		returnType:     returnType,
		parameterTypes: parameterTypes,
		args:           args,
	}
}

// Invoke calls an instance method on the given receiver, selecting virtual
// or interface dispatch from the receiver's static type.
func Invoke(instance ir.Expression, name string, returnType types.Type, parameterTypes []types.Type, args ...ir.Expression) ir.Expression {
	owner := instance.Type()
	if !owner.IsClass() {
		panic(fmt.Sprintf("expr: cannot invoke method on type %s", owner))
	}
	code := op.InvokeVirtual
	if owner.IsInterface() {
		code = op.InvokeInterface
	}
	checkArguments(owner.SimpleName()+"."+name, parameterTypes, args)
	return invokeExpression{
		code:           code,
		instance:       instance,
		owner:          owner,
		name:           name,
		returnType:     returnType,
		parameterTypes: parameterTypes,
		args:           args,
	}
}

// InvokeSpecial calls a method on the given receiver with exact dispatch,
// bypassing virtual resolution. Used for superclass and private calls.
func InvokeSpecial(instance ir.Expression, owner types.Type, name string, returnType types.Type, parameterTypes []types.Type, args ...ir.Expression) ir.Expression {
	checkArguments(owner.SimpleName()+"."+name, parameterTypes, args)
	return invokeExpression{
		code:           op.InvokeSpecial,
		instance:       instance,
		owner:          owner,
		name:           name,
		returnType:     returnType,
		parameterTypes: parameterTypes,
		args:           args,
	}
}

type invokeDynamicExpression struct {
	name           string
	returnType     types.Type
	parameterTypes []types.Type
	bootstrap      ir.BootstrapMethod
	args           []ir.Expression
}

// InvokeDynamic calls through a dynamic call site resolved by the given
// bootstrap on first execution.
func InvokeDynamic(name string, returnType types.Type, parameterTypes []types.Type, bootstrap ir.BootstrapMethod, args ...ir.Expression) ir.Expression {
	checkArguments("dynamic "+name, parameterTypes, args)
	return invokeDynamicExpression{
		name:           name,
		returnType:     returnType,
		parameterTypes: parameterTypes,
		bootstrap:      bootstrap,
		args:           args,
	}
}

func (e invokeDynamicExpression) Type() types.Type { return e.returnType }

func (e invokeDynamicExpression) Lower(ctx *ir.Context, sink ir.CodeSink) {
	for _, a := range e.args {
		a.Lower(ctx, sink)
	}
	sink.InvokeDynamic(e.name, e.returnType, e.parameterTypes, e.bootstrap)
}

func (e invokeDynamicExpression) String() string {
	return fmt.Sprintf("invokedynamic %s(...)", e.name)
}
