package runtime

import (
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/anvil/hierarchy"
	"github.com/deepnoodle-ai/anvil/ir"
)

// Names of the built-in classes every registry provides.
const (
	ObjectClass                    = "anvil.Object"
	ThrowableClass                 = "anvil.Throwable"
	ExceptionClass                 = "anvil.Exception"
	RuntimeExceptionClass          = "anvil.RuntimeException"
	ArithmeticExceptionClass       = "anvil.ArithmeticException"
	NullPointerExceptionClass      = "anvil.NullPointerException"
	IndexOutOfBoundsExceptionClass = "anvil.IndexOutOfBoundsException"
	ClassCastExceptionClass        = "anvil.ClassCastException"
	NegativeArraySizeClass         = "anvil.NegativeArraySizeException"
	StringClass                    = "anvil.String"
	ClassClass                     = "anvil.Class"
)

// Registry holds the classes visible to a loader, keyed by binary name. A
// registry may delegate to a parent; lookups consult the parent first, the
// way loaders delegate upward, and definitions always land in this registry.
type Registry struct {
	parent  *Registry
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewRegistry creates a registry pre-populated with the built-in classes:
// the Object root, the throwable hierarchy, and the exceptions the machine
// itself raises.
func NewRegistry() *Registry {
	r := &Registry{classes: map[string]*Class{}}
	r.installBuiltins()
	return r
}

// NewChildRegistry creates an empty registry delegating to a parent.
func NewChildRegistry(parent *Registry) *Registry {
	return &Registry{parent: parent, classes: map[string]*Class{}}
}

// Lookup finds a class by dotted binary name, consulting the parent first.
func (r *Registry) Lookup(name string) (*Class, bool) {
	if r.parent != nil {
		if c, ok := r.parent.Lookup(name); ok {
			return c, true
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// LookupClass exposes the registry as a hierarchy resolution source.
func (r *Registry) LookupClass(binaryName string) (*hierarchy.LoadedClass, bool) {
	c, ok := r.Lookup(binaryName)
	if !ok {
		return nil, false
	}
	lc := &hierarchy.LoadedClass{Name: c.name, Access: c.access}
	if c.super != nil {
		lc.Super = c.super.name
	}
	for _, iface := range c.interfaces {
		lc.Interfaces = append(lc.Interfaces, iface.name)
	}
	return lc, true
}

// register adds a class, rejecting duplicate names anywhere in the chain.
func (r *Registry) register(c *Class) error {
	if _, exists := r.Lookup(c.name); exists {
		return fmt.Errorf("class %s is already defined", c.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.classes[c.name]; exists {
		return fmt.Errorf("class %s is already defined", c.name)
	}
	r.classes[c.name] = c
	return nil
}

func (r *Registry) installBuiltins() {
	object := &Class{
		name:       ObjectClass,
		access:     ir.AccPublic,
		methods:    map[string]*Method{},
		natives:    map[string]NativeMethod{},
		fieldDescs: map[string]string{},
		statics:    map[string]Value{},
	}
	object.natives["<init>()V"] = func(receiver *Instance, args []Value) (Value, error) {
		return nil, nil
	}

	throwable := builtinClass(ThrowableClass, object)
	throwable.fieldDescs["message"] = "Lanvil/String;"
	throwable.natives["<init>()V"] = func(receiver *Instance, args []Value) (Value, error) {
		return nil, nil
	}
	throwable.natives["<init>(Lanvil/String;)V"] = func(receiver *Instance, args []Value) (Value, error) {
		receiver.SetField("message", args[0])
		return nil, nil
	}
	throwable.natives["getMessage()Lanvil/String;"] = func(receiver *Instance, args []Value) (Value, error) {
		return receiver.Field("message"), nil
	}

	exception := builtinClass(ExceptionClass, throwable)
	runtimeExc := builtinClass(RuntimeExceptionClass, exception)

	classes := []*Class{
		object, throwable, exception, runtimeExc,
		builtinClass(ArithmeticExceptionClass, runtimeExc),
		builtinClass(NullPointerExceptionClass, runtimeExc),
		builtinClass(IndexOutOfBoundsExceptionClass, runtimeExc),
		builtinClass(ClassCastExceptionClass, runtimeExc),
		builtinClass(NegativeArraySizeClass, runtimeExc),
		builtinClass(StringClass, object),
		builtinClass(ClassClass, object),
	}
	for _, c := range classes {
		r.classes[c.name] = c
	}
}

func builtinClass(name string, super *Class) *Class {
	return &Class{
		name:       name,
		access:     ir.AccPublic,
		super:      super,
		methods:    map[string]*Method{},
		natives:    map[string]NativeMethod{},
		fieldDescs: map[string]string{},
		statics:    map[string]Value{},
	}
}
