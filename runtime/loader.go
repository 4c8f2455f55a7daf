package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/types"
)

var hiddenSeq atomic.Int64

// DynamicLoader defines class modules into a registry and carries the
// call-site binding table dynamic invocations resolve through. Bindings may
// be added until the first class is defined; after that the table is frozen,
// so code can never observe a binding appearing or changing.
type DynamicLoader struct {
	registry *Registry

	mu       sync.Mutex
	bindings map[int64]Callable
	frozen   bool
}

// NewLoader creates a loader over the given registry.
func NewLoader(registry *Registry) *DynamicLoader {
	return &DynamicLoader{
		registry: registry,
		bindings: map[int64]Callable{},
	}
}

// Registry returns the loader's registry.
func (l *DynamicLoader) Registry() *Registry { return l.registry }

// BindCallSite registers a dynamic call site target under a key. Binding a
// duplicate key, or binding after the first class was defined, is an error.
func (l *DynamicLoader) BindCallSite(key int64, target Callable) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return fmt.Errorf("call site %d: binding table is frozen once classes are defined", key)
	}
	if _, dup := l.bindings[key]; dup {
		return fmt.Errorf("call site %d is already bound", key)
	}
	l.bindings[key] = target
	return nil
}

func (l *DynamicLoader) binding(key int64) (Callable, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	target, ok := l.bindings[key]
	return target, ok
}

func (l *DynamicLoader) freeze() {
	l.mu.Lock()
	l.frozen = true
	l.mu.Unlock()
}

// DefineClasses parses and links a batch of class modules, registering each
// under its name. Modules in the batch may reference each other regardless
// of order. No initializer runs here.
func (l *DynamicLoader) DefineClasses(modules [][]byte) ([]*Class, error) {
	l.freeze()
	parsed := make([]*classfile.ClassFile, len(modules))
	batch := map[string]*Class{}
	classes := make([]*Class, len(modules))
	for i, data := range modules {
		cf, err := classfile.Parse(data)
		if err != nil {
			return nil, err
		}
		parsed[i] = cf
		c := newClass(l, cf, types.ClassFromPath(cf.Name).BinaryName())
		if _, dup := batch[c.name]; dup {
			return nil, fmt.Errorf("class %s appears twice in the batch", c.name)
		}
		batch[c.name] = c
		classes[i] = c
	}
	// link after the whole batch is known so mutual references resolve
	for i, c := range classes {
		if err := l.link(c, parsed[i], batch); err != nil {
			return nil, err
		}
	}
	for _, c := range classes {
		if err := l.registry.register(c); err != nil {
			return nil, err
		}
	}
	return classes, nil
}

// DefineClass defines a single class module.
func (l *DynamicLoader) DefineClass(data []byte) (*Class, error) {
	classes, err := l.DefineClasses([][]byte{data})
	if err != nil {
		return nil, err
	}
	return classes[0], nil
}

// DefineHiddenClass defines a class that is not registered under its name:
// no other class can resolve it, and defining it repeatedly never collides.
// The classData value is attached to the class and retrievable by its code.
func (l *DynamicLoader) DefineHiddenClass(data []byte, classData Value) (*Class, error) {
	l.freeze()
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s/0x%x", types.ClassFromPath(cf.Name).BinaryName(), hiddenSeq.Add(1))
	c := newClass(l, cf, name)
	c.hidden = true
	c.classData = classData
	if err := l.link(c, cf, nil); err != nil {
		return nil, err
	}
	return c, nil
}

func newClass(l *DynamicLoader, cf *classfile.ClassFile, name string) *Class {
	c := &Class{
		name:       name,
		access:     ir.Access(cf.Access),
		file:       cf,
		loader:     l,
		methods:    map[string]*Method{},
		natives:    map[string]NativeMethod{},
		fieldDescs: map[string]string{},
		statics:    map[string]Value{},
	}
	for _, f := range cf.Body.Fields {
		if ir.Access(f.Access).Has(ir.AccStatic) {
			c.statics[f.Name] = defaultValue(f.Descriptor)
		} else {
			c.fieldDescs[f.Name] = f.Descriptor
		}
	}
	for i := range cf.Body.Methods {
		m := &cf.Body.Methods[i]
		c.methods[m.Name+m.Descriptor] = &Method{class: c, def: *m}
	}
	return c
}

// link resolves the superclass and interfaces, consulting the defining batch
// before the registry.
func (l *DynamicLoader) link(c *Class, cf *classfile.ClassFile, batch map[string]*Class) error {
	resolve := func(pathName string) (*Class, error) {
		name := types.ClassFromPath(pathName).BinaryName()
		if batch != nil {
			if bc, ok := batch[name]; ok {
				return bc, nil
			}
		}
		if rc, ok := l.registry.Lookup(name); ok {
			return rc, nil
		}
		return nil, fmt.Errorf("linking %s: class not found: %s", c.name, name)
	}
	if cf.SuperClass != "" {
		super, err := resolve(cf.SuperClass)
		if err != nil {
			return err
		}
		c.super = super
	}
	for _, iface := range cf.Interfaces {
		ic, err := resolve(iface)
		if err != nil {
			return err
		}
		c.interfaces = append(c.interfaces, ic)
	}
	return nil
}

// LookupMethod finds a method on a registered class.
func (l *DynamicLoader) LookupMethod(className, name, descriptor string) (*Method, error) {
	c, ok := l.registry.Lookup(className)
	if !ok {
		return nil, fmt.Errorf("class not found: %s", className)
	}
	m, ok := c.Method(name, descriptor)
	if !ok {
		return nil, fmt.Errorf("method not found: %s.%s%s", className, name, descriptor)
	}
	return m, nil
}
