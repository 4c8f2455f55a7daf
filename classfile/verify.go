package classfile

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// Resolver reports whether a class name is resolvable in the current
// generation batch. The hierarchy resolver satisfies this.
type Resolver interface {
	ResolveClass(binaryName string) error
}

// Verify parses a class module and checks it for structural soundness:
// every referenced class resolves, every method's code simulates cleanly,
// recorded stack and local limits are sufficient, and handler ranges lie
// within the code. All findings are collected and reported together.
func Verify(data []byte, resolver Resolver) error {
	cf, err := Parse(data)
	if err != nil {
		return err
	}
	var result *multierror.Error

	check := func(desc string, where string) {
		if err := verifyTypeDescriptor(desc, resolver); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", where, err))
		}
	}

	if cf.SuperClass != "" {
		if err := resolver.ResolveClass(types.ClassFromPath(cf.SuperClass).BinaryName()); err != nil {
			result = multierror.Append(result, fmt.Errorf("superclass of %s: %w", cf.Name, err))
		}
	}
	for _, iface := range cf.Interfaces {
		if err := resolver.ResolveClass(types.ClassFromPath(iface).BinaryName()); err != nil {
			result = multierror.Append(result, fmt.Errorf("interface of %s: %w", cf.Name, err))
		}
	}
	for _, f := range cf.Body.Fields {
		check(f.Descriptor, fmt.Sprintf("field %s.%s", cf.Name, f.Name))
	}

	for _, m := range cf.Body.Methods {
		where := fmt.Sprintf("method %s.%s", cf.Name, m.Name)
		if err := verifyMethodDescriptor(m.Descriptor, resolver); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", where, err))
		}
		for _, exc := range m.Exceptions {
			check(exc, where)
		}
		if len(m.Code) == 0 {
			continue
		}

		maxStack, err := computeMaxStack(cf.Name, m.Name, m.Code, m.Consts, m.Handlers)
		if err != nil {
			result = multierror.Append(result, err)
		} else if maxStack > int(m.MaxStack) {
			result = multierror.Append(result, fmt.Errorf(
				"%s: recorded max stack %d is less than required %d", where, m.MaxStack, maxStack))
		}

		for _, h := range m.Handlers {
			if int(h.Start) > len(m.Code) || int(h.End) > len(m.Code) || int(h.Target) >= len(m.Code) {
				result = multierror.Append(result, fmt.Errorf(
					"%s: handler [%d, %d) -> %d lies outside the code", where, h.Start, h.End, h.Target))
			}
			if h.Exception != "" {
				check(h.Exception, where)
			}
		}

		result = multierror.Append(result, verifyCode(cf.Name, &m, resolver))
	}
	return result.ErrorOrNil()
}

// verifyCode walks the instruction stream checking operand sanity: constant
// indexes in range, slot operands within MaxLocals, and referenced members'
// owners resolvable.
func verifyCode(class string, m *Method, resolver Resolver) error {
	var result *multierror.Error
	where := fmt.Sprintf("method %s.%s", class, m.Name)
	pc := 0
	for pc < len(m.Code) {
		code := op.Code(m.Code[pc])
		info := op.GetInfo(code)
		if info.Name == "" {
			// already reported by the simulation
			break
		}
		operand := func(n int) int {
			base := pc + 1 + 2*n
			return int(m.Code[base])<<8 | int(m.Code[base+1])
		}
		switch code {
		case op.ILoad, op.LLoad, op.FLoad, op.DLoad, op.ALoad,
			op.IStore, op.LStore, op.FStore, op.DStore, op.AStore, op.IInc:
			if operand(0) >= int(m.MaxLocals) {
				result = multierror.Append(result, fmt.Errorf(
					"%s: slot %d at offset %d exceeds max locals %d", where, operand(0), pc, m.MaxLocals))
			}
		case op.Const, op.New, op.NewArray, op.CheckCast, op.InstanceOf,
			op.GetField, op.PutField, op.GetStatic, op.PutStatic,
			op.InvokeStatic, op.InvokeVirtual, op.InvokeInterface,
			op.InvokeSpecial, op.InvokeDynamic, op.LookupSwitch:
			idx := operand(0)
			if idx >= len(m.Consts) {
				result = multierror.Append(result, fmt.Errorf(
					"%s: constant index %d at offset %d out of range", where, idx, pc))
				break
			}
			entry := m.Consts[idx]
			switch entry.Kind {
			case EntryClass:
				if err := verifyTypeDescriptor(entry.Class, resolver); err != nil {
					result = multierror.Append(result, fmt.Errorf("%s at offset %d: %w", where, pc, err))
				}
			case EntryField, EntryMethod:
				if err := verifyTypeDescriptor(entry.Owner, resolver); err != nil {
					result = multierror.Append(result, fmt.Errorf("%s at offset %d: %w", where, pc, err))
				}
			}
		}
		pc += 1 + 2*info.OperandCount
	}
	return result.ErrorOrNil()
}

// verifyTypeDescriptor parses a type descriptor and resolves the class it
// mentions, unwrapping arrays to their element type first.
func verifyTypeDescriptor(desc string, resolver Resolver) error {
	t, err := types.ParseDescriptor(desc)
	if err != nil {
		return err
	}
	for t.IsArray() {
		t, _ = t.Element()
	}
	if !t.IsClass() {
		return nil
	}
	return resolver.ResolveClass(t.BinaryName())
}

// verifyMethodDescriptor resolves every class mentioned by a method
// descriptor.
func verifyMethodDescriptor(desc string, resolver Resolver) error {
	returnType, parameterTypes, err := types.ParseMethodDescriptor(desc)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, t := range append(parameterTypes, returnType) {
		for t.IsArray() {
			t, _ = t.Element()
		}
		if t.IsClass() {
			if err := resolver.ResolveClass(t.BinaryName()); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}
