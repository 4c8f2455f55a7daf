// Package classfile defines the anvil binary class module format and the
// encoder that lowers an ir.ClassDefinition into it.
//
// A class module is a fixed binary header followed by a canonically encoded
// CBOR body. The header carries only the facts needed for hierarchy
// resolution (access flags, class name, superclass, interfaces) at fixed,
// cheap-to-read positions, so a shallow read never touches the body. The
// body carries fields, methods, per-method code, constants, and exception
// handler tables.
package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies an anvil class module.
var Magic = [4]byte{'A', 'V', 'C', 'M'}

// Version is the format version written by this encoder. A module with a
// different version is rejected on read.
const Version uint16 = 1

// encMode encodes the body deterministically: the same definition always
// produces the same bytes.
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

// Header holds the hierarchy-relevant facts of a class module. It is
// readable without decoding the body.
type Header struct {
	Access     uint16
	Name       string // slashed path name, e.g. "pkg/Name"
	SuperClass string // slashed path name; empty only for the hierarchy root
	Interfaces []string
}

// ClassFile is a fully parsed class module.
type ClassFile struct {
	Header
	Body Body
}

// Body carries everything beyond the header.
type Body struct {
	Fields      []Field      `cbor:"fields,omitempty"`
	Methods     []Method     `cbor:"methods,omitempty"`
	Annotations []Annotation `cbor:"annotations,omitempty"`
}

// Field describes one declared field.
type Field struct {
	Access      uint16       `cbor:"access"`
	Name        string       `cbor:"name"`
	Descriptor  string       `cbor:"descriptor"`
	Annotations []Annotation `cbor:"annotations,omitempty"`
}

// Method describes one declared method together with its encoded code.
type Method struct {
	Access      uint16       `cbor:"access"`
	Name        string       `cbor:"name"`
	Descriptor  string       `cbor:"descriptor"`
	MaxStack    uint16       `cbor:"maxStack"`
	MaxLocals   uint16       `cbor:"maxLocals"`
	Code        []byte       `cbor:"code,omitempty"`
	Consts      []Entry      `cbor:"consts,omitempty"`
	Handlers    []Handler    `cbor:"handlers,omitempty"`
	LocalNames  []string     `cbor:"localNames,omitempty"`
	Exceptions  []string     `cbor:"exceptions,omitempty"`
	Annotations []Annotation `cbor:"annotations,omitempty"`
}

// Handler is one exception table entry: while the program counter is within
// [Start, End) and a throwable assignable to Exception is raised, control
// transfers to Target with the throwable as the only stack value. An empty
// Exception catches anything.
type Handler struct {
	Start     uint16 `cbor:"start"`
	End       uint16 `cbor:"end"`
	Target    uint16 `cbor:"target"`
	Exception string `cbor:"exception,omitempty"` // type descriptor
}

// Annotation is structured metadata attached to a class, field, or method.
type Annotation struct {
	Type   string           `cbor:"type"` // type descriptor
	Values map[string]Entry `cbor:"values,omitempty"`
}

// Encode serializes a parsed class module back to bytes.
func (cf *ClassFile) Encode() ([]byte, error) {
	body, err := encMode.Marshal(&cf.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding class body: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(Magic[:])
	writeU16(&buf, Version)
	writeU16(&buf, cf.Access)
	writeString(&buf, cf.Name)
	writeString(&buf, cf.SuperClass)
	writeU16(&buf, uint16(len(cf.Interfaces)))
	for _, iface := range cf.Interfaces {
		writeString(&buf, iface)
	}
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(body)))
	buf.Write(lenBytes[:])
	buf.Write(body)
	return buf.Bytes(), nil
}

// ParseHeader reads only the fixed header of a class module. The body is
// not decoded or validated.
func ParseHeader(data []byte) (*Header, error) {
	r := &reader{data: data}
	var magic [4]byte
	r.bytes(magic[:])
	if r.err == nil && magic != Magic {
		return nil, fmt.Errorf("not a class module: bad magic %q", magic)
	}
	version := r.u16()
	if r.err == nil && version != Version {
		return nil, fmt.Errorf("unsupported class module version %d", version)
	}
	h := &Header{}
	h.Access = r.u16()
	h.Name = r.string()
	h.SuperClass = r.string()
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		h.Interfaces = append(h.Interfaces, r.string())
	}
	if r.err != nil {
		return nil, fmt.Errorf("truncated class module header: %w", r.err)
	}
	return h, nil
}

// Parse reads a complete class module.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	var magic [4]byte
	r.bytes(magic[:])
	if r.err == nil && magic != Magic {
		return nil, fmt.Errorf("not a class module: bad magic %q", magic)
	}
	version := r.u16()
	if r.err == nil && version != Version {
		return nil, fmt.Errorf("unsupported class module version %d", version)
	}
	cf := &ClassFile{}
	cf.Access = r.u16()
	cf.Name = r.string()
	cf.SuperClass = r.string()
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.string())
	}
	bodyLen := int(r.u32())
	body := make([]byte, bodyLen)
	r.bytes(body)
	if r.err != nil {
		return nil, fmt.Errorf("truncated class module: %w", r.err)
	}
	if err := cbor.Unmarshal(body, &cf.Body); err != nil {
		return nil, fmt.Errorf("decoding class body: %w", err)
	}
	return cf, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU16(buf, uint16(len(s)))
	buf.WriteString(s)
}

type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) bytes(out []byte) {
	if r.err != nil {
		return
	}
	if r.pos+len(out) > len(r.data) {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d", len(out), r.pos, len(r.data)-r.pos)
		return
	}
	copy(out, r.data[r.pos:])
	r.pos += len(out)
}

func (r *reader) u16() uint16 {
	var b [2]byte
	r.bytes(b[:])
	if r.err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}

func (r *reader) u32() uint32 {
	var b [4]byte
	r.bytes(b[:])
	if r.err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (r *reader) string() string {
	n := int(r.u16())
	if r.err != nil {
		return ""
	}
	b := make([]byte, n)
	r.bytes(b)
	if r.err != nil {
		return ""
	}
	return string(b)
}
