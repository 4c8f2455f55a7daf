// Package dis disassembles binary class modules into readable text.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
)

var (
	headerColor  = color.New(color.FgGreen, color.Bold)
	opcodeColor  = color.New(color.FgCyan)
	operandColor = color.New(color.FgYellow)
	labelColor   = color.New(color.FgMagenta)
)

// Disassemble parses a class module and writes its disassembly to w.
func Disassemble(data []byte, w io.Writer) error {
	cf, err := classfile.Parse(data)
	if err != nil {
		return err
	}
	return Print(cf, w)
}

// String disassembles a class module to a string.
func String(data []byte) (string, error) {
	var sb strings.Builder
	if err := Disassemble(data, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Print writes the disassembly of an already parsed module to w.
func Print(cf *classfile.ClassFile, w io.Writer) error {
	if _, err := headerColor.Fprintf(w, "%s class %s", ir.Access(cf.Access), cf.Name); err != nil {
		return err
	}
	if cf.SuperClass != "" {
		fmt.Fprintf(w, " extends %s", cf.SuperClass)
	}
	if len(cf.Interfaces) > 0 {
		fmt.Fprintf(w, " implements %s", strings.Join(cf.Interfaces, ", "))
	}
	fmt.Fprintln(w)

	for _, f := range cf.Body.Fields {
		fmt.Fprintf(w, "  %s %s %s\n", ir.Access(f.Access), f.Descriptor, f.Name)
	}
	for i := range cf.Body.Methods {
		fmt.Fprintln(w)
		if err := printMethod(w, &cf.Body.Methods[i]); err != nil {
			return err
		}
	}
	return nil
}

func printMethod(w io.Writer, m *classfile.Method) error {
	if _, err := headerColor.Fprintf(w, "  %s %s%s\n", ir.Access(m.Access), m.Name, m.Descriptor); err != nil {
		return err
	}
	if len(m.Code) == 0 {
		return nil
	}
	fmt.Fprintf(w, "    stack=%d locals=%d", m.MaxStack, m.MaxLocals)
	if len(m.LocalNames) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(m.LocalNames, ", "))
	}
	fmt.Fprintln(w)

	pc := 0
	for pc < len(m.Code) {
		code := op.Code(m.Code[pc])
		info := op.GetInfo(code)
		if info.Name == "" {
			return fmt.Errorf("unknown opcode %d at offset %d", m.Code[pc], pc)
		}
		fmt.Fprintf(w, "    %4d  %s", pc, opcodeColor.Sprint(info.Name))
		for n := 0; n < info.OperandCount; n++ {
			base := pc + 1 + 2*n
			value := int(m.Code[base])<<8 | int(m.Code[base+1])
			fmt.Fprintf(w, " %s", formatOperand(code, n, value, m.Consts))
		}
		fmt.Fprintln(w)
		pc += 1 + 2*info.OperandCount
	}

	for _, h := range m.Handlers {
		exception := h.Exception
		if exception == "" {
			exception = "any"
		}
		fmt.Fprintf(w, "    catch [%d, %d) -> %d (%s)\n", h.Start, h.End, h.Target, exception)
	}
	return nil
}

// formatOperand renders one 16-bit operand: branch targets as offsets,
// constant indexes with the entry they name, and plain numbers otherwise.
func formatOperand(code op.Code, n, value int, consts []classfile.Entry) string {
	if op.IsBranch(code) {
		return labelColor.Sprintf("->%d", value)
	}
	if n == 0 && operandIsConstant(code) {
		if value < len(consts) {
			entry := consts[value]
			if entry.Kind == classfile.EntrySwitch {
				var cases []string
				for i, k := range entry.Keys {
					cases = append(cases, fmt.Sprintf("%d->%d", k, entry.Targets[i]))
				}
				cases = append(cases, fmt.Sprintf("default->%d", entry.Default))
				return operandColor.Sprintf("{%s}", strings.Join(cases, ", "))
			}
			return operandColor.Sprintf("#%d <%s>", value, entry)
		}
		return operandColor.Sprintf("#%d <out of range>", value)
	}
	return operandColor.Sprintf("%d", value)
}

func operandIsConstant(code op.Code) bool {
	switch code {
	case op.Const, op.New, op.NewArray, op.CheckCast, op.InstanceOf,
		op.GetField, op.PutField, op.GetStatic, op.PutStatic,
		op.InvokeStatic, op.InvokeVirtual, op.InvokeInterface,
		op.InvokeSpecial, op.InvokeDynamic, op.LookupSwitch:
		return true
	}
	return false
}
