package ir

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// BinderType is the pseudo-class whose bootstrap routine resolves dynamic
// call sites through the loader's call-site binding table.
var BinderType = types.Class("anvil.runtime.Binder")

// BootstrapMethod identifies the routine that resolves a dynamic call site,
// together with its literal bootstrap arguments.
type BootstrapMethod struct {
	Owner types.Type
	Name  string
	Args  []Constant
}

// CallSiteBinding returns the conventional bootstrap that resolves a dynamic
// call site by looking up the given key in the loader's binding table.
func CallSiteBinding(key int64) BootstrapMethod {
	return BootstrapMethod{
		Owner: BinderType,
		Name:  "bindCallSite",
		Args:  []Constant{LongConstant(key)},
	}
}

// checkUnqualifiedName rejects empty member names and names containing
// reserved punctuation, excepting the two initializer pseudo-names.
func checkUnqualifiedName(name string) {
	if name == "" {
		panic("ir: member name is empty")
	}
	if name == "<init>" || name == "<clinit>" {
		return
	}
	if strings.ContainsAny(name, ".;[/<>") {
		panic(fmt.Sprintf("ir: invalid member name: %q", name))
	}
}

type invokeNode struct {
	code           op.Code
	owner          types.Type
	name           string
	returnType     types.Type
	parameterTypes []types.Type
}

func newInvoke(code op.Code, owner types.Type, name string, returnType types.Type, parameterTypes []types.Type) Node {
	checkUnqualifiedName(name)
	return invokeNode{
		code:           code,
		owner:          owner,
		name:           name,
		returnType:     returnType,
		parameterTypes: parameterTypes,
	}
}

func (n invokeNode) Lower(ctx *Context, sink CodeSink) {
	sink.Invoke(n.code, n.owner, n.name, n.returnType, n.parameterTypes)
}

// InvokeStatic creates a static invocation instruction.
func InvokeStatic(owner types.Type, name string, returnType types.Type, parameterTypes ...types.Type) Node {
	return newInvoke(op.InvokeStatic, owner, name, returnType, parameterTypes)
}

// Invoke creates an instance invocation instruction, selecting the virtual
// or interface form from the declared target type's interface flag.
func Invoke(owner types.Type, name string, returnType types.Type, parameterTypes ...types.Type) Node {
	if owner.IsInterface() {
		return newInvoke(op.InvokeInterface, owner, name, returnType, parameterTypes)
	}
	return newInvoke(op.InvokeVirtual, owner, name, returnType, parameterTypes)
}

// InvokeVirtual creates a virtual invocation instruction.
func InvokeVirtual(owner types.Type, name string, returnType types.Type, parameterTypes ...types.Type) Node {
	return newInvoke(op.InvokeVirtual, owner, name, returnType, parameterTypes)
}

// InvokeInterface creates an interface invocation instruction.
func InvokeInterface(owner types.Type, name string, returnType types.Type, parameterTypes ...types.Type) Node {
	return newInvoke(op.InvokeInterface, owner, name, returnType, parameterTypes)
}

// InvokeSpecial creates an exact (non-virtual) invocation instruction, used
// for constructors and superclass dispatch.
func InvokeSpecial(owner types.Type, name string, returnType types.Type, parameterTypes ...types.Type) Node {
	return newInvoke(op.InvokeSpecial, owner, name, returnType, parameterTypes)
}

// InvokeConstructor creates an invocation of the constructor with the given
// parameter types.
func InvokeConstructor(owner types.Type, parameterTypes ...types.Type) Node {
	return newInvoke(op.InvokeSpecial, owner, "<init>", types.Void, parameterTypes)
}

type invokeDynamicNode struct {
	name           string
	returnType     types.Type
	parameterTypes []types.Type
	bootstrap      BootstrapMethod
}

// InvokeDynamic creates a dynamic call-site invocation resolved through the
// given bootstrap.
func InvokeDynamic(name string, returnType types.Type, parameterTypes []types.Type, bootstrap BootstrapMethod) Node {
	checkUnqualifiedName(name)
	return invokeDynamicNode{
		name:           name,
		returnType:     returnType,
		parameterTypes: parameterTypes,
		bootstrap:      bootstrap,
	}
}

func (n invokeDynamicNode) Lower(ctx *Context, sink CodeSink) {
	sink.InvokeDynamic(n.name, n.returnType, n.parameterTypes, n.bootstrap)
}

type getFieldNode struct {
	code      op.Code
	owner     types.Type
	name      string
	fieldType types.Type
}

// FieldAccess creates a raw field access instruction.
func FieldAccess(code op.Code, owner types.Type, name string, fieldType types.Type) Node {
	checkUnqualifiedName(name)
	return getFieldNode{code: code, owner: owner, name: name, fieldType: fieldType}
}

func (n getFieldNode) Lower(ctx *Context, sink CodeSink) {
	sink.Field(n.code, n.owner, n.name, n.fieldType)
}
