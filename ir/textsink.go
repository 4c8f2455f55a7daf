package ir

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// TextSink renders lowered instructions as readable text. It is used for
// diagnostics: compilation errors attach the textified form of the failing
// class so the caller can see what was emitted.
type TextSink struct {
	sb     strings.Builder
	indent string
}

// NewTextSink creates a textifier with the given indentation prefix.
func NewTextSink(indent string) *TextSink {
	return &TextSink{indent: indent}
}

func (t *TextSink) line(format string, args ...any) {
	t.sb.WriteString(t.indent)
	fmt.Fprintf(&t.sb, format, args...)
	t.sb.WriteByte('\n')
}

func (t *TextSink) comment(text string) {
	t.line("// %s", text)
}

// String returns the rendered text.
func (t *TextSink) String() string { return t.sb.String() }

func (t *TextSink) Instruction(code op.Code) {
	t.line("%s", code)
}

func (t *TextSink) Local(code op.Code, slot int) {
	t.line("%s %d", code, slot)
}

func (t *TextSink) Increment(slot int, delta int) {
	t.line("%s %d %d", op.IInc, slot, delta)
}

func (t *TextSink) Branch(code op.Code, target *Label) {
	t.line("%s %s", code, target)
}

func (t *TextSink) Mark(label *Label) {
	t.sb.WriteString(t.indent)
	fmt.Fprintf(&t.sb, "%s:\n", label)
}

func (t *TextSink) Constant(c Constant) {
	t.line("%s %s", op.Const, c)
}

func (t *TextSink) Type(code op.Code, typ types.Type) {
	t.line("%s %s", code, typ)
}

func (t *TextSink) Field(code op.Code, owner types.Type, name string, fieldType types.Type) {
	t.line("%s %s.%s %s", code, owner.BinaryName(), name, fieldType.Descriptor())
}

func (t *TextSink) Invoke(code op.Code, owner types.Type, name string, returnType types.Type, parameterTypes []types.Type) {
	t.line("%s %s.%s%s", code, owner.BinaryName(), name, types.MethodDescriptor(returnType, parameterTypes))
}

func (t *TextSink) InvokeDynamic(name string, returnType types.Type, parameterTypes []types.Type, bootstrap BootstrapMethod) {
	args := make([]string, len(bootstrap.Args))
	for i, a := range bootstrap.Args {
		args[i] = a.String()
	}
	t.line("%s %s%s [%s.%s(%s)]",
		op.InvokeDynamic, name, types.MethodDescriptor(returnType, parameterTypes),
		bootstrap.Owner.BinaryName(), bootstrap.Name, strings.Join(args, ", "))
}

func (t *TextSink) Switch(defaultTarget *Label, keys []int32, targets []*Label) {
	t.line("%s default=%s", op.LookupSwitch, defaultTarget)
	for i, k := range keys {
		t.line("  %d: %s", k, targets[i])
	}
}

func (t *TextSink) Catch(start, end, handler *Label, exception types.Type) {
	name := "any"
	if !exception.IsZero() {
		name = exception.BinaryName()
	}
	t.line(".catch [%s, %s) -> %s (%s)", start, end, handler, name)
}

// TextifyMethod renders one method declaration and its lowered body.
func TextifyMethod(m *MethodDefinition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s %s%s", m.Access(), m.Name(), m.Descriptor())
	if len(m.Exceptions()) > 0 {
		names := make([]string, len(m.Exceptions()))
		for i, e := range m.Exceptions() {
			names[i] = e.BinaryName()
		}
		fmt.Fprintf(&sb, " throws %s", strings.Join(names, ", "))
	}
	sb.WriteString(" {\n")
	sink := NewTextSink("    ")
	ctx := NewContext(m.Scope())
	func() {
		defer func() {
			if r := recover(); r != nil {
				sink.line("// textify aborted: %v", r)
			}
		}()
		m.Body().Lower(ctx, sink)
	}()
	sb.WriteString(sink.String())
	sb.WriteString("  }\n")
	return sb.String()
}

// TextifyClass renders a whole class definition, lowering each method body
// into readable instruction text.
func TextifyClass(c *ClassDefinition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s class %s extends %s", c.Access(), c.Name(), c.SuperClass().BinaryName())
	if len(c.Interfaces()) > 0 {
		names := make([]string, len(c.Interfaces()))
		for i, iface := range c.Interfaces() {
			names[i] = iface.BinaryName()
		}
		fmt.Fprintf(&sb, " implements %s", strings.Join(names, ", "))
	}
	sb.WriteString(" {\n")
	for _, f := range c.Fields() {
		fmt.Fprintf(&sb, "  %s %s %s\n", f.Access(), f.Type(), f.Name())
	}
	if len(c.Fields()) > 0 && len(c.Methods()) > 0 {
		sb.WriteByte('\n')
	}
	for i, m := range c.Methods() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(TextifyMethod(m))
	}
	sb.WriteString("}\n")
	return sb.String()
}
