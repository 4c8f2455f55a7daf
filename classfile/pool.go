package classfile

import (
	"fmt"
	"strings"
)

// EntryKind tags the payload of a constant pool Entry.
type EntryKind uint8

const (
	EntryInt EntryKind = iota + 1
	EntryLong
	EntryFloat
	EntryDouble
	EntryString
	EntryClass
	EntryField
	EntryMethod
	EntryDynamic
	EntrySwitch
)

// Entry is one constant pool slot. Pools are per-method: instruction
// operands index into the declaring method's pool, never another's.
type Entry struct {
	Kind       EntryKind  `cbor:"kind"`
	Int        int64      `cbor:"int,omitempty"`
	Float      float64    `cbor:"float,omitempty"`
	Str        string     `cbor:"str,omitempty"`
	Class      string     `cbor:"class,omitempty"`      // type descriptor
	Owner      string     `cbor:"owner,omitempty"`      // owning class descriptor
	Name       string     `cbor:"name,omitempty"`       // member name
	Descriptor string     `cbor:"descriptor,omitempty"` // field or method descriptor
	Interface  bool       `cbor:"interface,omitempty"`  // interface dispatch for methods
	Bootstrap  *Bootstrap `cbor:"bootstrap,omitempty"`
	Default    uint16     `cbor:"default,omitempty"` // switch default target offset
	Keys       []int32    `cbor:"keys,omitempty"`
	Targets    []uint16   `cbor:"targets,omitempty"` // switch case target offsets
}

// Bootstrap identifies the routine resolving a dynamic call site.
type Bootstrap struct {
	Owner string  `cbor:"owner"` // owning class descriptor
	Name  string  `cbor:"name"`
	Args  []Entry `cbor:"args,omitempty"`
}

func (e Entry) String() string {
	switch e.Kind {
	case EntryInt:
		return fmt.Sprintf("int %d", e.Int)
	case EntryLong:
		return fmt.Sprintf("long %d", e.Int)
	case EntryFloat:
		return fmt.Sprintf("float %g", e.Float)
	case EntryDouble:
		return fmt.Sprintf("double %g", e.Float)
	case EntryString:
		return fmt.Sprintf("string %q", e.Str)
	case EntryClass:
		return fmt.Sprintf("class %s", e.Class)
	case EntryField:
		return fmt.Sprintf("field %s.%s %s", e.Owner, e.Name, e.Descriptor)
	case EntryMethod:
		return fmt.Sprintf("method %s.%s%s", e.Owner, e.Name, e.Descriptor)
	case EntryDynamic:
		return fmt.Sprintf("dynamic %s%s", e.Name, e.Descriptor)
	case EntrySwitch:
		return fmt.Sprintf("switch (%d keys)", len(e.Keys))
	default:
		return "<invalid>"
	}
}

// pool builds a per-method constant pool with value-based deduplication for
// simple constants. Member references and switch tables are appended as-is;
// they are rare enough that sharing them buys nothing.
type pool struct {
	entries []Entry
	index   map[string]uint16
}

func newPool() *pool {
	return &pool{index: map[string]uint16{}}
}

// add appends an entry, reusing an existing slot for identical simple
// constants. The caller checks the pool size afterward; indexes are 16-bit.
func (p *pool) add(e Entry) uint16 {
	var key string
	switch e.Kind {
	case EntryInt, EntryLong:
		key = fmt.Sprintf("%d:%d", e.Kind, e.Int)
	case EntryFloat, EntryDouble:
		key = fmt.Sprintf("%d:%x", e.Kind, e.Float)
	case EntryString:
		key = fmt.Sprintf("%d:%s", e.Kind, e.Str)
	case EntryClass:
		key = fmt.Sprintf("%d:%s", e.Kind, e.Class)
	case EntryField, EntryMethod:
		key = strings.Join([]string{fmt.Sprint(e.Kind), e.Owner, e.Name, e.Descriptor, fmt.Sprint(e.Interface)}, ":")
	}
	if key != "" {
		if idx, ok := p.index[key]; ok {
			return idx
		}
	}
	idx := uint16(len(p.entries))
	p.entries = append(p.entries, e)
	if key != "" {
		p.index[key] = idx
	}
	return idx
}

func (p *pool) size() int { return len(p.entries) }
