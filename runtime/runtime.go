// Package runtime loads anvil class modules and executes their code on a
// stack machine.
//
// Values are held boxed: int32 for the int family (including boolean, which
// computes as 0 or 1), int64 for long, float32 and float64 for the floating
// types, and references for instances, arrays, classes, and strings. Local
// variable slots follow the format's width rule, so a long or double
// occupies two slots with the second slot unused; the operand stack holds
// one value per slot regardless of width.
package runtime

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/types"
)

// Value is anything the machine can hold: int32, int64, float32, float64,
// string, *Instance, *Array, *Class, or nil.
type Value any

// Callable is a bound dynamic call site target.
type Callable func(args ...Value) (Value, error)

// Instance is an object of a loaded class.
type Instance struct {
	class  *Class
	fields map[string]Value
}

// Class returns the instance's class.
func (i *Instance) Class() *Class { return i.class }

// Field reads a field by name.
func (i *Instance) Field(name string) Value { return i.fields[name] }

// SetField writes a field by name.
func (i *Instance) SetField(name string, v Value) { i.fields[name] = v }

func (i *Instance) String() string {
	return fmt.Sprintf("%s@%p", i.class.Name(), i)
}

// Array is a fixed-length array of values of one element type.
type Array struct {
	element string // element type descriptor
	values  []Value
}

// NewArrayValue allocates an array of the given element type filled with the
// type's default value.
func NewArrayValue(element types.Type, length int) *Array {
	a := &Array{element: element.Descriptor(), values: make([]Value, length)}
	def := defaultValue(element.Descriptor())
	for i := range a.values {
		a.values[i] = def
	}
	return a
}

// Len returns the array length.
func (a *Array) Len() int { return len(a.values) }

// Get reads the element at index. Bounds are the caller's problem.
func (a *Array) Get(index int) Value { return a.values[index] }

// Set writes the element at index.
func (a *Array) Set(index int, v Value) { a.values[index] = v }

// ElementDescriptor returns the element type descriptor.
func (a *Array) ElementDescriptor() string { return a.element }

func defaultValue(descriptor string) Value {
	switch descriptor {
	case "Z", "B", "S", "C", "I":
		return int32(0)
	case "J":
		return int64(0)
	case "F":
		return float32(0)
	case "D":
		return float64(0)
	default:
		return nil
	}
}

// Thrown is a throwable propagating out of executed code. It implements
// error so it travels the ordinary Go error path; an uncaught throwable
// surfaces from Invoke as this type.
type Thrown struct {
	Class *Class
	Value Value
}

func (t *Thrown) Error() string {
	if inst, ok := t.Value.(*Instance); ok {
		if msg, ok := inst.Field("message").(string); ok && msg != "" {
			return fmt.Sprintf("uncaught %s: %s", t.Class.Name(), msg)
		}
	}
	return fmt.Sprintf("uncaught %s", t.Class.Name())
}

// InitializationError reports a class initializer that failed. It is
// distinct from a compilation failure: the module was well-formed and
// loaded, but its <clinit> raised or could not complete.
type InitializationError struct {
	Class string
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initializing class %s: %v", e.Class, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }
