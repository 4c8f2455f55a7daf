package classfile

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// StructuralError reports a class definition that cannot be encoded into a
// well-formed module: an unmarked or doubly marked label, an operand that
// does not fit the format's 16-bit fields, a statically negative array size,
// or inconsistent operand stack depths.
type StructuralError struct {
	Class  string
	Method string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("class %s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("class %s method %s: %s", e.Class, e.Method, e.Reason)
}

// Encode lowers a class definition and serializes it to class module bytes.
func Encode(def *ir.ClassDefinition) ([]byte, error) {
	cf, err := Lower(def)
	if err != nil {
		return nil, err
	}
	return cf.Encode()
}

// Lower builds the parsed module form of a class definition without
// serializing it.
func Lower(def *ir.ClassDefinition) (*ClassFile, error) {
	cf := &ClassFile{
		Header: Header{
			Access:     uint16(def.Access()),
			Name:       def.Type().PathName(),
			SuperClass: def.SuperClass().PathName(),
		},
	}
	for _, iface := range def.Interfaces() {
		cf.Interfaces = append(cf.Interfaces, iface.PathName())
	}
	cf.Body.Annotations = lowerAnnotations(def.Annotations())
	for _, f := range def.Fields() {
		cf.Body.Fields = append(cf.Body.Fields, Field{
			Access:      uint16(f.Access()),
			Name:        f.Name(),
			Descriptor:  f.Type().Descriptor(),
			Annotations: lowerAnnotations(f.Annotations()),
		})
	}
	for _, m := range def.Methods() {
		method, err := lowerMethod(def, m)
		if err != nil {
			return nil, err
		}
		cf.Body.Methods = append(cf.Body.Methods, method)
	}
	return cf, nil
}

func lowerMethod(def *ir.ClassDefinition, m *ir.MethodDefinition) (Method, error) {
	method := Method{
		Access:      uint16(m.Access()),
		Name:        m.Name(),
		Descriptor:  m.Descriptor(),
		Annotations: lowerAnnotations(m.Annotations()),
	}
	for _, e := range m.Exceptions() {
		method.Exceptions = append(method.Exceptions, e.Descriptor())
	}
	if m.Access().Has(ir.AccAbstract) {
		return method, nil
	}

	enc := newMethodEncoder(def.Name(), m.Name())
	ctx := ir.NewContext(m.Scope())
	m.Body().Lower(ctx, enc)
	if err := enc.finish(); err != nil {
		return Method{}, err
	}

	maxStack, err := computeMaxStack(def.Name(), m.Name(), enc.code, enc.pool.entries, enc.handlers)
	if err != nil {
		return Method{}, err
	}
	method.MaxStack = uint16(maxStack)
	method.MaxLocals = uint16(m.Scope().MaxLocals())
	method.Code = enc.code
	method.Consts = enc.pool.entries
	method.Handlers = enc.handlers
	for _, v := range m.Scope().Variables() {
		method.LocalNames = append(method.LocalNames, v.Name())
	}
	return method, nil
}

func lowerAnnotations(annotations []ir.Annotation) []Annotation {
	var out []Annotation
	for _, a := range annotations {
		la := Annotation{Type: a.Type.Descriptor()}
		if len(a.Values) > 0 {
			la.Values = map[string]Entry{}
			for k, v := range a.Values {
				la.Values[k] = constEntry(v)
			}
		}
		out = append(out, la)
	}
	return out
}

func constEntry(c ir.Constant) Entry {
	switch c.Kind {
	case ir.ConstantInt:
		return Entry{Kind: EntryInt, Int: c.Int}
	case ir.ConstantLong:
		return Entry{Kind: EntryLong, Int: c.Int}
	case ir.ConstantFloat:
		return Entry{Kind: EntryFloat, Float: c.Float}
	case ir.ConstantDouble:
		return Entry{Kind: EntryDouble, Float: c.Float}
	case ir.ConstantString:
		return Entry{Kind: EntryString, Str: c.Str}
	case ir.ConstantClass:
		return Entry{Kind: EntryClass, Class: c.Class.Descriptor()}
	default:
		panic(fmt.Sprintf("classfile: invalid constant kind %d", c.Kind))
	}
}

type branchPatch struct {
	pos   int // byte position of the 16-bit target operand
	label *ir.Label
}

type handlerRecord struct {
	start, end, target *ir.Label
	exception          types.Type
}

// methodEncoder lowers one method body into code bytes and a constant pool.
// Instructions are an opcode byte followed by big-endian 16-bit operands.
// The first failure sticks; later calls are ignored and the error surfaces
// from finish.
type methodEncoder struct {
	class  string
	method string
	code   []byte
	pool   *pool
	marks  map[*ir.Label]int
	pat    []branchPatch
	raw    []handlerRecord
	swPat  []switchPatch
	// set when the last emitted instruction pushed an int literal, used to
	// reject statically negative array sizes
	lastIntConst *int64
	handlers     []Handler
	err          error
}

type switchPatch struct {
	entry    int // pool index of the switch table
	defaultT *ir.Label
	targets  []*ir.Label
}

func newMethodEncoder(class, method string) *methodEncoder {
	return &methodEncoder{
		class:  class,
		method: method,
		pool:   newPool(),
		marks:  map[*ir.Label]int{},
	}
}

func (e *methodEncoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = &StructuralError{
			Class:  e.class,
			Method: e.method,
			Reason: fmt.Sprintf(format, args...),
		}
	}
}

func (e *methodEncoder) emit(code op.Code, operands ...int) {
	if e.err != nil {
		return
	}
	e.lastIntConst = nil
	if want := op.GetInfo(code).OperandCount; want != len(operands) {
		e.fail("opcode %s takes %d operands, got %d", code, want, len(operands))
		return
	}
	e.code = append(e.code, byte(code))
	for _, v := range operands {
		if v < 0 || v > 0xFFFF {
			e.fail("operand %d of %s does not fit in 16 bits", v, code)
			return
		}
		e.code = append(e.code, byte(v>>8), byte(v))
	}
}

func (e *methodEncoder) addEntry(entry Entry) int {
	idx := e.pool.add(entry)
	if e.pool.size() > 0x10000 {
		e.fail("constant pool overflow")
		return 0
	}
	return int(idx)
}

func (e *methodEncoder) Instruction(code op.Code) {
	e.emit(code)
}

func (e *methodEncoder) Local(code op.Code, slot int) {
	e.emit(code, slot)
}

func (e *methodEncoder) Increment(slot int, delta int) {
	if delta < 0 || delta > 0xFFFF {
		e.fail("increment delta %d does not fit in 16 bits", delta)
		return
	}
	e.emit(op.IInc, slot, delta)
}

func (e *methodEncoder) Branch(code op.Code, target *ir.Label) {
	if e.err != nil {
		return
	}
	if !op.IsBranch(code) {
		e.fail("opcode %s is not a branch", code)
		return
	}
	e.lastIntConst = nil
	e.code = append(e.code, byte(code))
	e.pat = append(e.pat, branchPatch{pos: len(e.code), label: target})
	e.code = append(e.code, 0, 0)
}

func (e *methodEncoder) Mark(label *ir.Label) {
	if e.err != nil {
		return
	}
	if _, dup := e.marks[label]; dup {
		e.fail("label %s marked twice", label)
		return
	}
	e.marks[label] = len(e.code)
}

func (e *methodEncoder) Constant(c ir.Constant) {
	if e.err != nil {
		return
	}
	idx := e.addEntry(constEntry(c))
	e.emit(op.Const, idx)
	if c.Kind == ir.ConstantInt {
		v := c.Int
		e.lastIntConst = &v
	}
}

func (e *methodEncoder) Type(code op.Code, t types.Type) {
	if e.err != nil {
		return
	}
	if code == op.NewArray && e.lastIntConst != nil && *e.lastIntConst < 0 {
		e.fail("array size is a negative constant: %d", *e.lastIntConst)
		return
	}
	idx := e.addEntry(Entry{Kind: EntryClass, Class: t.Descriptor()})
	e.emit(code, idx)
}

func (e *methodEncoder) Field(code op.Code, owner types.Type, name string, fieldType types.Type) {
	if e.err != nil {
		return
	}
	idx := e.addEntry(Entry{
		Kind:       EntryField,
		Owner:      owner.Descriptor(),
		Name:       name,
		Descriptor: fieldType.Descriptor(),
	})
	e.emit(code, idx)
}

func (e *methodEncoder) Invoke(code op.Code, owner types.Type, name string, returnType types.Type, parameterTypes []types.Type) {
	if e.err != nil {
		return
	}
	idx := e.addEntry(Entry{
		Kind:       EntryMethod,
		Owner:      owner.Descriptor(),
		Name:       name,
		Descriptor: types.MethodDescriptor(returnType, parameterTypes),
		Interface:  code == op.InvokeInterface,
	})
	e.emit(code, idx)
}

func (e *methodEncoder) InvokeDynamic(name string, returnType types.Type, parameterTypes []types.Type, bootstrap ir.BootstrapMethod) {
	if e.err != nil {
		return
	}
	bs := &Bootstrap{
		Owner: bootstrap.Owner.Descriptor(),
		Name:  bootstrap.Name,
	}
	for _, a := range bootstrap.Args {
		bs.Args = append(bs.Args, constEntry(a))
	}
	idx := e.addEntry(Entry{
		Kind:       EntryDynamic,
		Name:       name,
		Descriptor: types.MethodDescriptor(returnType, parameterTypes),
		Bootstrap:  bs,
	})
	e.emit(op.InvokeDynamic, idx)
}

func (e *methodEncoder) Switch(defaultTarget *ir.Label, keys []int32, targets []*ir.Label) {
	if e.err != nil {
		return
	}
	if len(keys) != len(targets) {
		e.fail("switch has %d keys but %d targets", len(keys), len(targets))
		return
	}
	entry := Entry{Kind: EntrySwitch, Keys: keys, Targets: make([]uint16, len(targets))}
	idx := len(e.pool.entries)
	e.pool.entries = append(e.pool.entries, entry)
	if e.pool.size() > 0x10000 {
		e.fail("constant pool overflow")
		return
	}
	e.swPat = append(e.swPat, switchPatch{entry: idx, defaultT: defaultTarget, targets: targets})
	e.emit(op.LookupSwitch, idx)
}

func (e *methodEncoder) Catch(start, end, handler *ir.Label, exception types.Type) {
	if e.err != nil {
		return
	}
	e.raw = append(e.raw, handlerRecord{start: start, end: end, target: handler, exception: exception})
}

// offsetOf resolves a marked label to a code offset that fits the format.
func (e *methodEncoder) offsetOf(label *ir.Label) (uint16, bool) {
	pos, ok := e.marks[label]
	if !ok {
		e.fail("label %s is never marked", label)
		return 0, false
	}
	if pos > 0xFFFF {
		e.fail("offset of label %s does not fit in 16 bits", label)
		return 0, false
	}
	return uint16(pos), true
}

// finish resolves every recorded label reference and builds the exception
// handler table.
func (e *methodEncoder) finish() error {
	if e.err != nil {
		return e.err
	}
	for _, p := range e.pat {
		off, ok := e.offsetOf(p.label)
		if !ok {
			return e.err
		}
		e.code[p.pos] = byte(off >> 8)
		e.code[p.pos+1] = byte(off)
	}
	for _, sp := range e.swPat {
		entry := &e.pool.entries[sp.entry]
		off, ok := e.offsetOf(sp.defaultT)
		if !ok {
			return e.err
		}
		entry.Default = off
		for i, t := range sp.targets {
			off, ok := e.offsetOf(t)
			if !ok {
				return e.err
			}
			entry.Targets[i] = off
		}
	}
	for _, h := range e.raw {
		start, ok := e.offsetOf(h.start)
		if !ok {
			return e.err
		}
		end, ok := e.offsetOf(h.end)
		if !ok {
			return e.err
		}
		target, ok := e.offsetOf(h.target)
		if !ok {
			return e.err
		}
		if end < start {
			e.fail("handler range [%d, %d) is inverted", start, end)
			return e.err
		}
		handler := Handler{Start: start, End: end, Target: target}
		if !h.exception.IsZero() {
			handler.Exception = h.exception.Descriptor()
		}
		e.handlers = append(e.handlers, handler)
	}
	return e.err
}
