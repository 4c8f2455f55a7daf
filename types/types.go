// Package types models the type descriptors used throughout anvil.
//
// A Type is an immutable value describing a primitive, array, or class type.
// Two Types are equal exactly when they denote the same runtime type, which
// is determined by comparing descriptor strings, never identities.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a type.
type Kind int

const (
	KindPrimitive Kind = iota
	KindArray
	KindClass
)

// PrimitiveKind identifies one of the machine's primitive types.
type PrimitiveKind int

const (
	invalidPrimitive PrimitiveKind = iota
	VoidKind
	BooleanKind
	CharKind
	ByteKind
	ShortKind
	IntKind
	LongKind
	FloatKind
	DoubleKind
)

var primitiveDescriptors = map[PrimitiveKind]string{
	VoidKind:    "V",
	BooleanKind: "Z",
	CharKind:    "C",
	ByteKind:    "B",
	ShortKind:   "S",
	IntKind:     "I",
	LongKind:    "J",
	FloatKind:   "F",
	DoubleKind:  "D",
}

var primitiveNames = map[PrimitiveKind]string{
	VoidKind:    "void",
	BooleanKind: "boolean",
	CharKind:    "char",
	ByteKind:    "byte",
	ShortKind:   "short",
	IntKind:     "int",
	LongKind:    "long",
	FloatKind:   "float",
	DoubleKind:  "double",
}

// ErrNotArray is returned when the element type of a non-array is requested.
var ErrNotArray = errors.New("invalid operation: type is not an array")

// Type is an immutable descriptor for a primitive, array, or class type.
// The zero Type is invalid and reports IsZero.
type Type struct {
	kind      Kind
	primitive PrimitiveKind
	element   *Type
	name      string // binary name for classes, e.g. "anvil.Object"
	iface     bool
	signature string
}

// Primitive constructs a primitive type descriptor.
func Primitive(kind PrimitiveKind) Type {
	return Type{kind: KindPrimitive, primitive: kind}
}

// Predefined primitive types.
var (
	Void    = Primitive(VoidKind)
	Boolean = Primitive(BooleanKind)
	Char    = Primitive(CharKind)
	Byte    = Primitive(ByteKind)
	Short   = Primitive(ShortKind)
	Int     = Primitive(IntKind)
	Long    = Primitive(LongKind)
	Float   = Primitive(FloatKind)
	Double  = Primitive(DoubleKind)
)

// Built-in classes of the anvil runtime. Object is the hierarchy root.
var (
	Object    = Class("anvil.Object")
	Throwable = Class("anvil.Throwable")
	Exception = Class("anvil.Exception")
	String    = Class("anvil.String")
	ClassType = Class("anvil.Class")
)

// Class constructs a class type from a dotted binary name ("pkg.Name").
func Class(binaryName string) Type {
	return Type{kind: KindClass, name: binaryName}
}

// Interface constructs a class type flagged as an interface.
func Interface(binaryName string) Type {
	return Type{kind: KindClass, name: binaryName, iface: true}
}

// ClassFromPath constructs a class type from a slashed path name ("pkg/Name").
func ClassFromPath(pathName string) Type {
	return Class(strings.ReplaceAll(pathName, "/", "."))
}

// ArrayOf constructs an array type with the given element type.
func ArrayOf(element Type) Type {
	elem := element
	return Type{kind: KindArray, element: &elem}
}

// Kind returns the category of this type.
func (t Type) Kind() Kind { return t.kind }

// IsZero reports whether this is the invalid zero Type.
func (t Type) IsZero() bool {
	return t.kind == KindPrimitive && t.primitive == invalidPrimitive
}

// IsPrimitive reports whether this is a primitive type.
func (t Type) IsPrimitive() bool { return t.kind == KindPrimitive }

// IsArray reports whether this is an array type.
func (t Type) IsArray() bool { return t.kind == KindArray }

// IsClass reports whether this is a class (or interface) type.
func (t Type) IsClass() bool { return t.kind == KindClass }

// IsReference reports whether values of this type live on the heap.
func (t Type) IsReference() bool { return t.kind != KindPrimitive }

// IsInterface reports whether this class type was declared as an interface.
// The flag is metadata: it does not participate in equality and must be
// populated (directly or via the hierarchy resolver) for externally supplied
// types, or invocation instruction selection will be wrong.
func (t Type) IsInterface() bool { return t.iface }

// AsInterface returns a copy of this class type flagged as an interface.
func (t Type) AsInterface() Type {
	t.iface = true
	return t
}

// WithSignature returns a copy carrying a generic signature string.
func (t Type) WithSignature(signature string) Type {
	t.signature = signature
	return t
}

// Signature returns the generic signature metadata, if any.
func (t Type) Signature() string { return t.signature }

// PrimitiveKind returns the primitive kind. Only meaningful for primitives.
func (t Type) PrimitiveKind() PrimitiveKind { return t.primitive }

// Element returns the element type of an array. It fails with ErrNotArray
// for any other kind.
func (t Type) Element() (Type, error) {
	if t.kind != KindArray {
		return Type{}, fmt.Errorf("%w: %s", ErrNotArray, t)
	}
	return *t.element, nil
}

// Descriptor returns the binary descriptor string, e.g. "I", "[J",
// "Lanvil/Object;".
func (t Type) Descriptor() string {
	switch t.kind {
	case KindPrimitive:
		return primitiveDescriptors[t.primitive]
	case KindArray:
		return "[" + t.element.Descriptor()
	default:
		return "L" + t.PathName() + ";"
	}
}

// BinaryName returns the dotted name for classes ("pkg.Name"), the language
// name for primitives ("int"), and element name + "[]" for arrays.
func (t Type) BinaryName() string {
	switch t.kind {
	case KindPrimitive:
		return primitiveNames[t.primitive]
	case KindArray:
		return t.element.BinaryName() + "[]"
	default:
		return t.name
	}
}

// PathName returns the slashed class name used inside descriptors and the
// binary module header ("pkg/Name"). Only meaningful for class types.
func (t Type) PathName() string {
	return strings.ReplaceAll(t.name, ".", "/")
}

// SimpleName returns the class name without its package.
func (t Type) SimpleName() string {
	name := t.BinaryName()
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// Width returns the number of local-variable slots a value of this type
// occupies: two for long and double, zero for void, one otherwise.
func (t Type) Width() int {
	if t.kind == KindPrimitive {
		switch t.primitive {
		case VoidKind:
			return 0
		case LongKind, DoubleKind:
			return 2
		}
	}
	return 1
}

// Equal reports whether two descriptors denote the same runtime type.
func (t Type) Equal(other Type) bool {
	return t.Descriptor() == other.Descriptor()
}

func (t Type) String() string {
	return t.BinaryName()
}

// MethodDescriptor renders a method descriptor such as "(IJ)V".
func MethodDescriptor(returnType Type, parameterTypes []Type) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range parameterTypes {
		b.WriteString(p.Descriptor())
	}
	b.WriteByte(')')
	b.WriteString(returnType.Descriptor())
	return b.String()
}

// ParseDescriptor parses a single type descriptor.
func ParseDescriptor(desc string) (Type, error) {
	t, rest, err := parseDescriptor(desc)
	if err != nil {
		return Type{}, err
	}
	if rest != "" {
		return Type{}, fmt.Errorf("trailing characters in descriptor %q", desc)
	}
	return t, nil
}

// ParseMethodDescriptor parses a method descriptor such as "(IJ)V".
func ParseMethodDescriptor(desc string) (returnType Type, parameterTypes []Type, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return Type{}, nil, fmt.Errorf("invalid method descriptor %q", desc)
	}
	rest := desc[1:]
	for len(rest) > 0 && rest[0] != ')' {
		var t Type
		t, rest, err = parseDescriptor(rest)
		if err != nil {
			return Type{}, nil, fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		parameterTypes = append(parameterTypes, t)
	}
	if len(rest) == 0 {
		return Type{}, nil, fmt.Errorf("unterminated method descriptor %q", desc)
	}
	returnType, trailing, err := parseDescriptor(rest[1:])
	if err != nil || trailing != "" {
		return Type{}, nil, fmt.Errorf("invalid return type in method descriptor %q", desc)
	}
	return returnType, parameterTypes, nil
}

func parseDescriptor(desc string) (Type, string, error) {
	if desc == "" {
		return Type{}, "", errors.New("empty descriptor")
	}
	switch desc[0] {
	case 'V':
		return Void, desc[1:], nil
	case 'Z':
		return Boolean, desc[1:], nil
	case 'C':
		return Char, desc[1:], nil
	case 'B':
		return Byte, desc[1:], nil
	case 'S':
		return Short, desc[1:], nil
	case 'I':
		return Int, desc[1:], nil
	case 'J':
		return Long, desc[1:], nil
	case 'F':
		return Float, desc[1:], nil
	case 'D':
		return Double, desc[1:], nil
	case '[':
		elem, rest, err := parseDescriptor(desc[1:])
		if err != nil {
			return Type{}, "", err
		}
		return ArrayOf(elem), rest, nil
	case 'L':
		end := strings.IndexByte(desc, ';')
		if end < 0 {
			return Type{}, "", fmt.Errorf("unterminated class descriptor %q", desc)
		}
		return ClassFromPath(desc[1:end]), desc[end+1:], nil
	default:
		return Type{}, "", fmt.Errorf("unrecognized descriptor %q", desc)
	}
}
