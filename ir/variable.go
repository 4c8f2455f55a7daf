package ir

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// Variable is a named local variable bound to a slot by the Scope that owns
// it. A Variable is itself an expression that loads its value.
type Variable struct {
	name string
	typ  types.Type
	slot int
	temp bool
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Type returns the variable's static type.
func (v *Variable) Type() types.Type { return v.typ }

// Slot returns the local-variable slot assigned by the owning scope.
func (v *Variable) Slot() int { return v.slot }

// Lower emits the type-selected load instruction.
func (v *Variable) Lower(ctx *Context, sink CodeSink) {
	sink.Local(LoadForType(v.typ), v.slot)
}

func (v *Variable) String() string { return v.name }

// Set returns a void expression storing value into this variable.
func (v *Variable) Set(value Expression) Expression {
	if !value.Type().Equal(v.typ) {
		panic(fmt.Sprintf("ir: cannot assign %s to variable %s of type %s", value.Type(), v.name, v.typ))
	}
	return &setVariable{variable: v, value: value}
}

type setVariable struct {
	variable *Variable
	value    Expression
}

func (s *setVariable) Type() types.Type { return types.Void }

func (s *setVariable) Lower(ctx *Context, sink CodeSink) {
	s.value.Lower(ctx, sink)
	sink.Local(StoreForType(s.variable.typ), s.variable.slot)
}

// Increment returns a void expression incrementing this variable by one.
// Byte, short, and int variables use the dedicated increment instruction;
// long falls back to load, add constant 1, store. Panics for any other type.
func (v *Variable) Increment() Expression {
	if v.typ.IsPrimitive() {
		switch v.typ.PrimitiveKind() {
		case types.ByteKind, types.ShortKind, types.IntKind:
			return &incrementVariable{variable: v}
		case types.LongKind:
			return &longIncrementVariable{variable: v}
		}
	}
	panic(fmt.Sprintf("ir: variable %s of type %s does not support incrementing", v.name, v.typ))
}

type incrementVariable struct {
	variable *Variable
}

func (i *incrementVariable) Type() types.Type { return types.Void }

func (i *incrementVariable) Lower(ctx *Context, sink CodeSink) {
	sink.Increment(i.variable.slot, 1)
}

type longIncrementVariable struct {
	variable *Variable
}

func (i *longIncrementVariable) Type() types.Type { return types.Void }

func (i *longIncrementVariable) Lower(ctx *Context, sink CodeSink) {
	v := i.variable
	sink.Local(op.LLoad, v.slot)
	sink.Constant(LongConstant(1))
	sink.Instruction(op.LAdd)
	sink.Local(op.LStore, v.slot)
}

// Parameter declares a method parameter.
type Parameter struct {
	name string
	typ  types.Type
}

// Param constructs a method parameter.
func Param(name string, t types.Type) Parameter {
	return Parameter{name: name, typ: t}
}

// Name returns the parameter name.
func (p Parameter) Name() string { return p.name }

// Type returns the parameter type.
func (p Parameter) Type() types.Type { return p.typ }

// Scope allocates local-variable slots for one method body. Slot numbering
// advances by the storage width of each variable's type: wide 64-bit types
// occupy two slots.
type Scope struct {
	variables map[string]*Variable
	temps     map[string]*Variable
	order     []*Variable
	released  map[string][]*Variable // per-type free list, LIFO
	inFreeLst map[*Variable]bool
	this      *Variable
	nextSlot  int
	tempSeq   int
}

// newScope builds the scope for a method: slot 0 holds "this" on instance
// methods, followed by the declared parameters in order.
func newScope(thisType types.Type, parameters []Parameter) (*Scope, error) {
	s := &Scope{
		variables: map[string]*Variable{},
		temps:     map[string]*Variable{},
		released:  map[string][]*Variable{},
		inFreeLst: map[*Variable]bool{},
	}
	if !thisType.IsZero() {
		s.this = &Variable{name: "this", typ: thisType, slot: 0}
		s.variables["this"] = s.this
		s.order = append(s.order, s.this)
		s.nextSlot = 1
	}
	for _, p := range parameters {
		if _, err := s.DeclareVariable(p.typ, p.name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DeclareVariable binds a named variable to a fresh slot. It fails if the
// name is already in use or is the reserved "this" identifier.
func (s *Scope) DeclareVariable(t types.Type, name string) (*Variable, error) {
	if name == "this" {
		return nil, fmt.Errorf("the %q variable cannot be declared", "this")
	}
	if _, exists := s.variables[name]; exists {
		return nil, fmt.Errorf("there is already a variable named %q", name)
	}
	v := &Variable{name: name, typ: t, slot: s.nextSlot}
	s.nextSlot += t.Width()
	s.variables[name] = v
	s.order = append(s.order, v)
	return v, nil
}

// CreateTempVariable allocates a new slot for a temporary, naming it by an
// incrementing counter. The counter advances by the type's storage width so
// temp names are stable against slot layout.
func (s *Scope) CreateTempVariable(t types.Type) *Variable {
	v := &Variable{
		name: fmt.Sprintf("temp_%d", s.tempSeq),
		typ:  t,
		slot: s.nextSlot,
		temp: true,
	}
	s.tempSeq += t.Width()
	s.nextSlot += t.Width()
	s.temps[v.name] = v
	s.order = append(s.order, v)
	return v
}

// GetOrCreateTempVariable reuses the most recently released temporary of the
// same type, or allocates a new one.
func (s *Scope) GetOrCreateTempVariable(t types.Type) *Variable {
	key := t.Descriptor()
	free := s.released[key]
	if len(free) == 0 {
		return s.CreateTempVariable(t)
	}
	v := free[len(free)-1]
	s.released[key] = free[:len(free)-1]
	delete(s.inFreeLst, v)
	return v
}

// ReleaseTempVariableForReuse returns a temporary to the per-type free list.
// Releasing a variable that was not obtained as a temp, or releasing the
// same variable twice, is an error.
func (s *Scope) ReleaseTempVariableForReuse(v *Variable) error {
	if v == nil {
		return fmt.Errorf("temp variable is nil")
	}
	if owned := s.temps[v.name]; owned != v {
		return fmt.Errorf("invalid temp variable release: %s", v.name)
	}
	if s.inFreeLst[v] {
		return fmt.Errorf("temp variable %s already released", v.name)
	}
	key := v.typ.Descriptor()
	s.released[key] = append(s.released[key], v)
	s.inFreeLst[v] = true
	return nil
}

// GetVariable looks up a declared variable or parameter by name.
func (s *Scope) GetVariable(name string) (*Variable, error) {
	v, ok := s.variables[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not defined", name)
	}
	return v, nil
}

// GetTempVariable looks up a temporary by its generated name.
func (s *Scope) GetTempVariable(name string) (*Variable, error) {
	v, ok := s.temps[name]
	if !ok {
		return nil, fmt.Errorf("temp variable %q not defined", name)
	}
	return v, nil
}

// GetThis returns the "this" variable. It fails on static methods.
func (s *Scope) GetThis() (*Variable, error) {
	if s.this == nil {
		return nil, fmt.Errorf("static methods do not have a %q variable", "this")
	}
	return s.this, nil
}

// Variables returns every variable allocated in this scope, in slot order.
func (s *Scope) Variables() []*Variable {
	out := make([]*Variable, len(s.order))
	copy(out, s.order)
	return out
}

// MaxLocals returns the frame size in slots required by this scope.
func (s *Scope) MaxLocals() int { return s.nextSlot }
