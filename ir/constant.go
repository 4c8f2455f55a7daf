package ir

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/types"
)

// ConstantKind tags the payload of a Constant.
type ConstantKind uint8

const (
	ConstantInt ConstantKind = iota + 1
	ConstantLong
	ConstantFloat
	ConstantDouble
	ConstantString
	ConstantClass
)

// Constant is a literal value embeddable in a method's constant table.
type Constant struct {
	Kind  ConstantKind
	Int   int64
	Float float64
	Str   string
	Class types.Type
}

// IntConstant wraps an int literal (also used for boolean, byte, short, char).
func IntConstant(v int32) Constant {
	return Constant{Kind: ConstantInt, Int: int64(v)}
}

// BoolConstant wraps a boolean literal as its int encoding.
func BoolConstant(v bool) Constant {
	if v {
		return IntConstant(1)
	}
	return IntConstant(0)
}

// LongConstant wraps a long literal.
func LongConstant(v int64) Constant {
	return Constant{Kind: ConstantLong, Int: v}
}

// FloatConstant wraps a float literal.
func FloatConstant(v float32) Constant {
	return Constant{Kind: ConstantFloat, Float: float64(v)}
}

// DoubleConstant wraps a double literal.
func DoubleConstant(v float64) Constant {
	return Constant{Kind: ConstantDouble, Float: v}
}

// StringConstant wraps a string literal.
func StringConstant(v string) Constant {
	return Constant{Kind: ConstantString, Str: v}
}

// ClassConstant wraps a class literal.
func ClassConstant(t types.Type) Constant {
	return Constant{Kind: ConstantClass, Class: t}
}

// Type returns the static type of the value the constant pushes.
func (c Constant) Type() types.Type {
	switch c.Kind {
	case ConstantInt:
		return types.Int
	case ConstantLong:
		return types.Long
	case ConstantFloat:
		return types.Float
	case ConstantDouble:
		return types.Double
	case ConstantString:
		return types.String
	case ConstantClass:
		return types.ClassType
	default:
		return types.Type{}
	}
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstantInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstantLong:
		return fmt.Sprintf("%dL", c.Int)
	case ConstantFloat:
		return fmt.Sprintf("%gf", c.Float)
	case ConstantDouble:
		return fmt.Sprintf("%g", c.Float)
	case ConstantString:
		return fmt.Sprintf("%q", c.Str)
	case ConstantClass:
		return c.Class.BinaryName() + ".class"
	default:
		return "<invalid>"
	}
}
