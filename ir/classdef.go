package ir

import (
	"fmt"
	"sync/atomic"

	"github.com/deepnoodle-ai/anvil/types"
)

// Access holds the access flags of a class, method, or field.
type Access uint16

const (
	AccPublic    Access = 0x0001
	AccPrivate   Access = 0x0002
	AccProtected Access = 0x0004
	AccStatic    Access = 0x0008
	AccFinal     Access = 0x0010
	AccInterface Access = 0x0200
	AccAbstract  Access = 0x0400
	AccSynthetic Access = 0x1000
)

// Has reports whether all the given flags are set.
func (a Access) Has(flags Access) bool {
	return a&flags == flags
}

func (a Access) String() string {
	var parts []string
	add := func(flag Access, name string) {
		if a.Has(flag) {
			parts = append(parts, name)
		}
	}
	add(AccPublic, "public")
	add(AccPrivate, "private")
	add(AccProtected, "protected")
	add(AccStatic, "static")
	add(AccFinal, "final")
	add(AccInterface, "interface")
	add(AccAbstract, "abstract")
	add(AccSynthetic, "synthetic")
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

var classNameSeq atomic.Int64

// UniqueClassName generates a class name that is unique for the lifetime of
// the process. The counter is monotonic and never resets, so concurrent
// generation calls always produce distinct names.
func UniqueClassName(packageName, baseName string) string {
	n := classNameSeq.Add(1)
	return fmt.Sprintf("%s.%s_%d", packageName, baseName, n)
}

// Annotation attaches structured metadata to a class, method, or field.
type Annotation struct {
	Type   types.Type
	Values map[string]Constant
}

// ClassDefinition declares one class: its own type, superclass, and
// interface list are fixed at construction; fields, methods, and annotations
// are appended afterward. Construction is append-only; there is no way to
// remove a declared member.
type ClassDefinition struct {
	access      Access
	typ         types.Type
	superClass  types.Type
	interfaces  []types.Type
	fields      []*FieldDefinition
	methods     []*MethodDefinition
	annotations []Annotation
	clinit      *MethodDefinition
}

// NewClass declares a class with a dotted binary name. A zero superclass
// defaults to the runtime's root object class.
func NewClass(access Access, name string, superClass types.Type, interfaces ...types.Type) *ClassDefinition {
	if superClass.IsZero() {
		superClass = types.Object
	}
	typ := types.Class(name)
	if access.Has(AccInterface) {
		typ = typ.AsInterface()
	}
	return &ClassDefinition{
		access:     access,
		typ:        typ,
		superClass: superClass,
		interfaces: interfaces,
	}
}

// Access returns the class access flags.
func (c *ClassDefinition) Access() Access { return c.access }

// Type returns the class's own type.
func (c *ClassDefinition) Type() types.Type { return c.typ }

// Name returns the dotted binary name.
func (c *ClassDefinition) Name() string { return c.typ.BinaryName() }

// SuperClass returns the declared superclass.
func (c *ClassDefinition) SuperClass() types.Type { return c.superClass }

// Interfaces returns the implemented interface list.
func (c *ClassDefinition) Interfaces() []types.Type { return c.interfaces }

// Fields returns the declared fields in declaration order.
func (c *ClassDefinition) Fields() []*FieldDefinition { return c.fields }

// Methods returns the declared methods in declaration order.
func (c *ClassDefinition) Methods() []*MethodDefinition { return c.methods }

// Annotations returns the class annotations.
func (c *ClassDefinition) Annotations() []Annotation { return c.annotations }

// AddAnnotation appends a class annotation.
func (c *ClassDefinition) AddAnnotation(a Annotation) *ClassDefinition {
	c.annotations = append(c.annotations, a)
	return c
}

// DeclareField appends a field declaration.
func (c *ClassDefinition) DeclareField(access Access, name string, t types.Type) *FieldDefinition {
	checkUnqualifiedName(name)
	f := &FieldDefinition{access: access, name: name, typ: t}
	c.fields = append(c.fields, f)
	return f
}

// DeclareMethod appends a method declaration. The method's scope is created
// here from its static/instance-ness and parameter list; the body starts as
// an empty block.
func (c *ClassDefinition) DeclareMethod(access Access, name string, returnType types.Type, parameters ...Parameter) *MethodDefinition {
	checkUnqualifiedName(name)
	thisType := types.Type{}
	if !access.Has(AccStatic) {
		thisType = c.typ
	}
	scope, err := newScope(thisType, parameters)
	if err != nil {
		panic(fmt.Sprintf("ir: declaring method %s.%s: %v", c.Name(), name, err))
	}
	m := &MethodDefinition{
		owner:      c,
		access:     access,
		name:       name,
		returnType: returnType,
		parameters: parameters,
		scope:      scope,
		body:       NewBlock(),
	}
	c.methods = append(c.methods, m)
	return m
}

// DeclareConstructor appends a constructor declaration.
func (c *ClassDefinition) DeclareConstructor(access Access, parameters ...Parameter) *MethodDefinition {
	return c.DeclareMethod(access, "<init>", types.Void, parameters...)
}

// DeclareDefaultConstructor appends a constructor that only calls the
// superclass constructor.
func (c *ClassDefinition) DeclareDefaultConstructor(access Access) *MethodDefinition {
	ctor := c.DeclareConstructor(access)
	this, _ := ctor.Scope().GetThis()
	ctor.Body().
		Append(this).
		Append(InvokeConstructor(c.superClass)).
		Append(ReturnVoid())
	return ctor
}

// DeclareClassInitializer returns the static initializer, declaring it on
// first use.
func (c *ClassDefinition) DeclareClassInitializer() *MethodDefinition {
	if c.clinit == nil {
		c.clinit = c.DeclareMethod(AccStatic, "<clinit>", types.Void)
	}
	return c.clinit
}

// FieldDefinition declares one field.
type FieldDefinition struct {
	access      Access
	name        string
	typ         types.Type
	annotations []Annotation
}

// Access returns the field access flags.
func (f *FieldDefinition) Access() Access { return f.access }

// Name returns the field name.
func (f *FieldDefinition) Name() string { return f.name }

// Type returns the field type.
func (f *FieldDefinition) Type() types.Type { return f.typ }

// Annotations returns the field annotations.
func (f *FieldDefinition) Annotations() []Annotation { return f.annotations }

// AddAnnotation appends a field annotation.
func (f *FieldDefinition) AddAnnotation(a Annotation) *FieldDefinition {
	f.annotations = append(f.annotations, a)
	return f
}

// MethodDefinition declares one method: its scope, created at declaration
// time, and its body tree, appended by the caller.
type MethodDefinition struct {
	owner       *ClassDefinition
	access      Access
	name        string
	returnType  types.Type
	parameters  []Parameter
	exceptions  []types.Type
	annotations []Annotation
	scope       *Scope
	body        *Block
}

// Owner returns the declaring class.
func (m *MethodDefinition) Owner() *ClassDefinition { return m.owner }

// Access returns the method access flags.
func (m *MethodDefinition) Access() Access { return m.access }

// IsStatic reports whether the method is static.
func (m *MethodDefinition) IsStatic() bool { return m.access.Has(AccStatic) }

// Name returns the method name.
func (m *MethodDefinition) Name() string { return m.name }

// ReturnType returns the declared return type.
func (m *MethodDefinition) ReturnType() types.Type { return m.returnType }

// Parameters returns the declared parameters.
func (m *MethodDefinition) Parameters() []Parameter { return m.parameters }

// ParameterTypes returns the declared parameter types.
func (m *MethodDefinition) ParameterTypes() []types.Type {
	out := make([]types.Type, len(m.parameters))
	for i, p := range m.parameters {
		out[i] = p.typ
	}
	return out
}

// ParameterVariable returns the scope variable bound to the i'th parameter.
func (m *MethodDefinition) ParameterVariable(i int) *Variable {
	v, err := m.scope.GetVariable(m.parameters[i].name)
	if err != nil {
		panic(fmt.Sprintf("ir: parameter %d of %s.%s: %v", i, m.owner.Name(), m.name, err))
	}
	return v
}

// Descriptor returns the method descriptor, e.g. "(IJ)V".
func (m *MethodDefinition) Descriptor() string {
	return types.MethodDescriptor(m.returnType, m.ParameterTypes())
}

// Scope returns the method's variable scope.
func (m *MethodDefinition) Scope() *Scope { return m.scope }

// Body returns the method body block.
func (m *MethodDefinition) Body() *Block { return m.body }

// This returns the "this" variable; it fails on static methods.
func (m *MethodDefinition) This() (*Variable, error) {
	return m.scope.GetThis()
}

// Exceptions returns the declared thrown exception types.
func (m *MethodDefinition) Exceptions() []types.Type { return m.exceptions }

// AddException declares a thrown exception type.
func (m *MethodDefinition) AddException(t types.Type) *MethodDefinition {
	m.exceptions = append(m.exceptions, t)
	return m
}

// Annotations returns the method annotations.
func (m *MethodDefinition) Annotations() []Annotation { return m.annotations }

// AddAnnotation appends a method annotation.
func (m *MethodDefinition) AddAnnotation(a Annotation) *MethodDefinition {
	m.annotations = append(m.annotations, a)
	return m
}
