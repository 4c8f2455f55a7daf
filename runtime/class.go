package runtime

import (
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/types"
)

// NativeMethod implements a built-in class method in Go.
type NativeMethod func(receiver *Instance, args []Value) (Value, error)

// Class is a loaded class: its resolved hierarchy links, its methods, and
// its static state.
type Class struct {
	name       string // dotted binary name
	access     ir.Access
	super      *Class
	interfaces []*Class
	file       *classfile.ClassFile // nil for built-in classes
	loader     *DynamicLoader
	methods    map[string]*Method       // key: name + descriptor
	natives    map[string]NativeMethod  // key: name + descriptor
	fieldDescs map[string]string        // declared instance fields
	statics    map[string]Value
	classData  Value
	hidden     bool

	initOnce sync.Once
	initErr  error
}

// Name returns the dotted binary name. Hidden classes carry a per-load
// suffix after a slash.
func (c *Class) Name() string { return c.name }

// Access returns the class access flags.
func (c *Class) Access() ir.Access { return c.access }

// Super returns the superclass, nil only for the hierarchy root.
func (c *Class) Super() *Class { return c.super }

// Interfaces returns the directly implemented interfaces.
func (c *Class) Interfaces() []*Class { return c.interfaces }

// IsHidden reports whether the class was defined as hidden: it is not
// registered under its name and cannot be resolved by other classes.
func (c *Class) IsHidden() bool { return c.hidden }

// ClassData returns the value attached when the class was defined.
func (c *Class) ClassData() Value { return c.classData }

// Method looks up a declared or inherited method by name and descriptor.
func (c *Class) Method(name, descriptor string) (*Method, bool) {
	key := name + descriptor
	for cl := c; cl != nil; cl = cl.super {
		if m, ok := cl.methods[key]; ok {
			return m, true
		}
	}
	return nil, false
}

// native looks up a built-in method implementation by name and descriptor.
func (c *Class) native(name, descriptor string) (NativeMethod, *Class, bool) {
	key := name + descriptor
	for cl := c; cl != nil; cl = cl.super {
		if n, ok := cl.natives[key]; ok {
			return n, cl, true
		}
	}
	return nil, nil, false
}

// fieldDescriptor finds the declared descriptor of an instance field,
// searching the superclass chain.
func (c *Class) fieldDescriptor(name string) (string, bool) {
	for cl := c; cl != nil; cl = cl.super {
		if d, ok := cl.fieldDescs[name]; ok {
			return d, true
		}
	}
	return "", false
}

// AssignableTo reports whether values of this class may be used where the
// other class is expected.
func (c *Class) AssignableTo(other *Class) bool {
	seen := map[*Class]bool{}
	queue := []*Class{c}
	for len(queue) > 0 {
		cl := queue[0]
		queue = queue[1:]
		if cl == nil || seen[cl] {
			continue
		}
		seen[cl] = true
		if cl == other {
			return true
		}
		queue = append(queue, cl.super)
		queue = append(queue, cl.interfaces...)
	}
	return false
}

// NewInstance allocates an instance with every declared field set to its
// type's default value. Constructors run separately.
func (c *Class) NewInstance() *Instance {
	inst := &Instance{class: c, fields: map[string]Value{}}
	for cl := c; cl != nil; cl = cl.super {
		for name, desc := range cl.fieldDescs {
			inst.fields[name] = defaultValue(desc)
		}
	}
	return inst
}

// Initialize runs the class initializer exactly once. Every later call
// returns the first outcome. Failures are reported as InitializationError.
func (c *Class) Initialize() error {
	c.initOnce.Do(func() {
		if c.super != nil {
			if err := c.super.Initialize(); err != nil {
				c.initErr = &InitializationError{Class: c.name, Err: err}
				return
			}
		}
		if c.file == nil {
			return
		}
		clinit, ok := c.methods["<clinit>()V"]
		if !ok {
			return
		}
		if _, err := c.loader.call(clinit, nil); err != nil {
			c.initErr = &InitializationError{Class: c.name, Err: err}
		}
	})
	return c.initErr
}

// Method is an invokable method of a loaded class.
type Method struct {
	class *Class
	def   classfile.Method
}

// Class returns the declaring class.
func (m *Method) Class() *Class { return m.class }

// Name returns the method name.
func (m *Method) Name() string { return m.def.Name }

// Descriptor returns the method descriptor.
func (m *Method) Descriptor() string { return m.def.Descriptor }

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool {
	return ir.Access(m.def.Access).Has(ir.AccStatic)
}

// Invoke executes the method. Instance methods take the receiver as the
// first argument. An uncaught throwable is returned as *Thrown.
func (m *Method) Invoke(args ...Value) (Value, error) {
	if err := m.class.Initialize(); err != nil {
		return nil, err
	}
	_, parameterTypes, err := types.ParseMethodDescriptor(m.def.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("method %s.%s: %w", m.class.name, m.def.Name, err)
	}
	want := len(parameterTypes)
	if !m.IsStatic() {
		want++
	}
	if len(args) != want {
		return nil, fmt.Errorf("method %s.%s takes %d arguments, got %d",
			m.class.name, m.def.Name, want, len(args))
	}
	return m.class.loader.call(m, args)
}
