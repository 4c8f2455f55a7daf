// Package hierarchy resolves class hierarchy facts (superclass, interfaces,
// access flags) lazily, consulting in-batch definitions, raw class module
// bytes, an external resource lookup, and already loaded classes, in that
// order. Results are cached per resolver, so a resolver must not outlive the
// generation batch it was built for.
package hierarchy

import (
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/types"
)

// ClassInfo is the resolved view of one class. Exactly one of Definition and
// File is set when the class came from the batch or from bytes; both are nil
// for classes known only through the loaded source or an external lookup. In
// shallow mode File is nil even for byte-backed classes, since only the
// header is read.
type ClassInfo struct {
	Type       types.Type
	Access     ir.Access
	Superclass types.Type // zero only for the hierarchy root
	Interfaces []types.Type
	Definition *ir.ClassDefinition
	File       *classfile.ClassFile
}

// IsInterface reports whether the resolved class is an interface.
func (ci *ClassInfo) IsInterface() bool {
	return ci.Access.Has(ir.AccInterface)
}

// LoadedClass describes a class already defined in a running loader.
type LoadedClass struct {
	Name       string // dotted binary name
	Access     ir.Access
	Super      string // dotted binary name; empty only for the root
	Interfaces []string
}

// LoadedSource exposes the classes a loader has already defined.
type LoadedSource interface {
	LookupClass(binaryName string) (*LoadedClass, bool)
}

// ClassNotFoundError reports a name that no resolution source could supply.
type ClassNotFoundError struct {
	Name string
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class not found: %s", e.Name)
}

// ResourceLookup reads class module bytes for a binary name from an external
// store. It returns nil bytes (and no error) when the name is unknown.
type ResourceLookup func(binaryName string) ([]byte, error)

// Resolver resolves and caches class hierarchy facts for one generation
// batch. It is safe for concurrent use.
type Resolver struct {
	defs     map[string]*ir.ClassDefinition
	bytecode map[string][]byte
	resource ResourceLookup
	loaded   LoadedSource
	shallow  bool

	mu    sync.Mutex
	cache map[string]*ClassInfo
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBytecode adds encoded class modules keyed by dotted binary name.
func WithBytecode(bytecode map[string][]byte) Option {
	return func(r *Resolver) {
		for name, data := range bytecode {
			r.bytecode[name] = data
		}
	}
}

// WithResourceLookup adds an external byte store consulted after in-batch
// definitions and explicit bytecode.
func WithResourceLookup(lookup ResourceLookup) Option {
	return func(r *Resolver) { r.resource = lookup }
}

// WithLoadedClasses adds a loader's already defined classes as the final
// resolution source.
func WithLoadedClasses(loaded LoadedSource) Option {
	return func(r *Resolver) { r.loaded = loaded }
}

// WithShallow restricts byte-backed resolution to the module header. The
// resolved hierarchy facts are identical to a full parse; only the parsed
// body is unavailable.
func WithShallow() Option {
	return func(r *Resolver) { r.shallow = true }
}

// NewResolver builds a resolver over the given in-batch definitions.
func NewResolver(defs []*ir.ClassDefinition, opts ...Option) *Resolver {
	r := &Resolver{
		defs:     map[string]*ir.ClassDefinition{},
		bytecode: map[string][]byte{},
		cache:    map[string]*ClassInfo{},
	}
	for _, def := range defs {
		r.defs[def.Name()] = def
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the hierarchy facts for a dotted binary name, consulting
// each source in order and caching the result.
func (r *Resolver) Resolve(binaryName string) (*ClassInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.cache[binaryName]; ok {
		return info, nil
	}
	info, err := r.resolve(binaryName)
	if err != nil {
		return nil, err
	}
	r.cache[binaryName] = info
	return info, nil
}

// ResolveClass reports whether a name resolves, discarding the facts. It
// satisfies the verifier's resolver contract.
func (r *Resolver) ResolveClass(binaryName string) error {
	_, err := r.Resolve(binaryName)
	return err
}

func (r *Resolver) resolve(binaryName string) (*ClassInfo, error) {
	if def, ok := r.defs[binaryName]; ok {
		info := &ClassInfo{
			Type:       def.Type(),
			Access:     def.Access(),
			Superclass: def.SuperClass(),
			Interfaces: def.Interfaces(),
			Definition: def,
		}
		return info, nil
	}
	if data, ok := r.bytecode[binaryName]; ok {
		return r.fromBytes(binaryName, data)
	}
	if r.resource != nil {
		data, err := r.resource(binaryName)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", binaryName, err)
		}
		if data != nil {
			return r.fromBytes(binaryName, data)
		}
	}
	if r.loaded != nil {
		if lc, ok := r.loaded.LookupClass(binaryName); ok {
			return fromLoaded(lc), nil
		}
	}
	// The hierarchy root is a format constant and always resolvable.
	if binaryName == types.Object.BinaryName() {
		return &ClassInfo{Type: types.Object}, nil
	}
	return nil, &ClassNotFoundError{Name: binaryName}
}

func (r *Resolver) fromBytes(binaryName string, data []byte) (*ClassInfo, error) {
	info := &ClassInfo{}
	var header *classfile.Header
	if r.shallow {
		h, err := classfile.ParseHeader(data)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", binaryName, err)
		}
		header = h
	} else {
		cf, err := classfile.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", binaryName, err)
		}
		header = &cf.Header
		info.File = cf
	}
	info.Access = ir.Access(header.Access)
	t := types.ClassFromPath(header.Name)
	if info.IsInterface() {
		t = t.AsInterface()
	}
	info.Type = t
	if header.SuperClass != "" {
		info.Superclass = types.ClassFromPath(header.SuperClass)
	}
	for _, iface := range header.Interfaces {
		info.Interfaces = append(info.Interfaces, types.ClassFromPath(iface).AsInterface())
	}
	if info.Type.BinaryName() != binaryName {
		return nil, fmt.Errorf("resolving %s: module declares class %s", binaryName, info.Type.BinaryName())
	}
	return info, nil
}

func fromLoaded(lc *LoadedClass) *ClassInfo {
	info := &ClassInfo{Access: lc.Access}
	t := types.Class(lc.Name)
	if lc.Access.Has(ir.AccInterface) {
		t = t.AsInterface()
	}
	info.Type = t
	if lc.Super != "" {
		info.Superclass = types.Class(lc.Super)
	}
	for _, iface := range lc.Interfaces {
		info.Interfaces = append(info.Interfaces, types.Interface(iface))
	}
	return info
}

// IsAssignable reports whether a value of type from may be used where type
// to is expected, walking superclasses and transitive interfaces.
func (r *Resolver) IsAssignable(from, to types.Type) (bool, error) {
	if !from.IsReference() || !to.IsReference() {
		return from.Equal(to), nil
	}
	if from.Equal(to) || to.Equal(types.Object) {
		return true, nil
	}
	if from.IsArray() || to.IsArray() {
		return false, nil
	}
	seen := map[string]bool{}
	queue := []string{from.BinaryName()}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		if name == to.BinaryName() {
			return true, nil
		}
		info, err := r.Resolve(name)
		if err != nil {
			return false, err
		}
		if !info.Superclass.IsZero() {
			queue = append(queue, info.Superclass.BinaryName())
		}
		for _, iface := range info.Interfaces {
			queue = append(queue, iface.BinaryName())
		}
	}
	return false, nil
}

// CommonSuperclass returns the nearest class both types are assignable to.
// Interfaces and arrays merge to the root.
func (r *Resolver) CommonSuperclass(a, b types.Type) (types.Type, error) {
	if !a.IsReference() || !b.IsReference() {
		return types.Type{}, fmt.Errorf("no common superclass of %s and %s", a, b)
	}
	if a.Equal(b) {
		return a, nil
	}
	if a.IsArray() || b.IsArray() || a.IsInterface() || b.IsInterface() {
		return types.Object, nil
	}
	ancestors := map[string]bool{}
	for name := a.BinaryName(); ; {
		ancestors[name] = true
		info, err := r.Resolve(name)
		if err != nil {
			return types.Type{}, err
		}
		if info.Superclass.IsZero() {
			break
		}
		name = info.Superclass.BinaryName()
	}
	for name := b.BinaryName(); ; {
		if ancestors[name] {
			return types.Class(name), nil
		}
		info, err := r.Resolve(name)
		if err != nil {
			return types.Type{}, err
		}
		if info.Superclass.IsZero() {
			break
		}
		name = info.Superclass.BinaryName()
	}
	return types.Object, nil
}
