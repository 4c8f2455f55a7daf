package runtime

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/classfile"
	"github.com/deepnoodle-ai/anvil/ir"
	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// throwNew builds a throwable of a built-in exception class.
func (l *DynamicLoader) throwNew(className, message string) *Thrown {
	c, ok := l.registry.Lookup(className)
	if !ok {
		// built-ins are installed by every registry
		panic(fmt.Sprintf("runtime: built-in class %s missing", className))
	}
	inst := c.NewInstance()
	if message != "" {
		inst.SetField("message", message)
	}
	return &Thrown{Class: c, Value: inst}
}

// classOf maps a reference value to its class. Arrays have no class and are
// handled by their callers.
func (l *DynamicLoader) classOf(v Value) (*Class, bool) {
	switch x := v.(type) {
	case *Instance:
		return x.class, true
	case string:
		c, ok := l.registry.Lookup(StringClass)
		return c, ok
	case *Class:
		c, ok := l.registry.Lookup(ClassClass)
		return c, ok
	default:
		return nil, false
	}
}

// classForDescriptor resolves a class type descriptor against the registry.
func (l *DynamicLoader) classForDescriptor(desc string) (*Class, error) {
	t, err := types.ParseDescriptor(desc)
	if err != nil {
		return nil, err
	}
	c, ok := l.registry.Lookup(t.BinaryName())
	if !ok {
		return nil, fmt.Errorf("class not found: %s", t.BinaryName())
	}
	return c, nil
}

// call executes one method activation. Locals are laid out per the format's
// width rule; the operand stack holds one value per slot. An uncaught
// throwable is returned as *Thrown.
func (l *DynamicLoader) call(m *Method, args []Value) (result Value, err error) {
	code := m.def.Code
	consts := m.def.Consts

	locals := make([]Value, m.def.MaxLocals)
	_, parameterTypes, derr := types.ParseMethodDescriptor(m.def.Descriptor)
	if derr != nil {
		return nil, fmt.Errorf("method %s.%s: %w", m.class.name, m.def.Name, derr)
	}
	slot := 0
	argIdx := 0
	if !m.IsStatic() {
		locals[0] = args[0]
		slot = 1
		argIdx = 1
	}
	for _, p := range parameterTypes {
		locals[slot] = args[argIdx]
		slot += p.Width()
		argIdx++
	}

	stack := make([]Value, 0, m.def.MaxStack)
	pc := 0

	// Verified code never trips a failed type assertion; code that was
	// tampered with after verification surfaces here instead of panicking.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("invalid code in %s.%s at offset %d: %v", m.class.name, m.def.Name, pc, r)
		}
	}()

	push := func(v Value) { stack = append(stack, v) }
	pop := func() Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	popI := func() int32 { return pop().(int32) }
	popL := func() int64 { return pop().(int64) }
	popF := func() float32 { return pop().(float32) }
	popD := func() float64 { return pop().(float64) }
	operand := func(n int) int {
		base := pc + 1 + 2*n
		return int(code[base])<<8 | int(code[base+1])
	}
	entryAt := func() (classfile.Entry, error) {
		idx := operand(0)
		if idx >= len(consts) {
			return classfile.Entry{}, fmt.Errorf("constant index %d out of range in %s.%s", idx, m.class.name, m.def.Name)
		}
		return consts[idx], nil
	}

	// handle transfers control to the innermost handler covering the
	// current pc whose exception class matches.
	handle := func(t *Thrown) (bool, error) {
		for _, h := range m.def.Handlers {
			if pc < int(h.Start) || pc >= int(h.End) {
				continue
			}
			if h.Exception != "" {
				hc, err := l.classForDescriptor(h.Exception)
				if err != nil {
					return false, err
				}
				if !t.Class.AssignableTo(hc) {
					continue
				}
			}
			stack = stack[:0]
			push(t.Value)
			pc = int(h.Target)
			return true, nil
		}
		return false, nil
	}
	// raise either transfers to a handler or reports the throwable as the
	// activation's outcome. The boolean tells the main loop to continue.
	var pendingErr error
	raise := func(t *Thrown) bool {
		handled, herr := handle(t)
		if herr != nil {
			pendingErr = herr
			return false
		}
		if !handled {
			pendingErr = t
			return false
		}
		return true
	}

	for {
		if pc < 0 || pc >= len(code) {
			return nil, fmt.Errorf("program counter %d out of range in %s.%s", pc, m.class.name, m.def.Name)
		}
		opcode := op.Code(code[pc])
		next := pc + 1 + 2*op.GetInfo(opcode).OperandCount

		switch opcode {
		case op.Nop:

		case op.Const:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			v, err := l.constValue(entry)
			if err != nil {
				return nil, err
			}
			push(v)

		case op.ConstNull:
			push(nil)

		case op.ILoad, op.LLoad, op.FLoad, op.DLoad, op.ALoad:
			push(locals[operand(0)])

		case op.IStore, op.LStore, op.FStore, op.DStore, op.AStore:
			locals[operand(0)] = pop()

		case op.IInc:
			s := operand(0)
			locals[s] = locals[s].(int32) + int32(int16(operand(1)))

		case op.Pop:
			pop()
		case op.Dup:
			v := pop()
			push(v)
			push(v)
		case op.Swap:
			b, a := pop(), pop()
			push(b)
			push(a)

		case op.IAdd:
			b, a := popI(), popI()
			push(a + b)
		case op.LAdd:
			b, a := popL(), popL()
			push(a + b)
		case op.FAdd:
			b, a := popF(), popF()
			push(a + b)
		case op.DAdd:
			b, a := popD(), popD()
			push(a + b)
		case op.ISub:
			b, a := popI(), popI()
			push(a - b)
		case op.LSub:
			b, a := popL(), popL()
			push(a - b)
		case op.FSub:
			b, a := popF(), popF()
			push(a - b)
		case op.DSub:
			b, a := popD(), popD()
			push(a - b)
		case op.IMul:
			b, a := popI(), popI()
			push(a * b)
		case op.LMul:
			b, a := popL(), popL()
			push(a * b)
		case op.FMul:
			b, a := popF(), popF()
			push(a * b)
		case op.DMul:
			b, a := popD(), popD()
			push(a * b)
		case op.IDiv:
			b, a := popI(), popI()
			if b == 0 {
				if raise(l.throwNew(ArithmeticExceptionClass, "division by zero")) {
					continue
				}
				return nil, pendingErr
			}
			push(a / b)
		case op.LDiv:
			b, a := popL(), popL()
			if b == 0 {
				if raise(l.throwNew(ArithmeticExceptionClass, "division by zero")) {
					continue
				}
				return nil, pendingErr
			}
			push(a / b)
		case op.FDiv:
			b, a := popF(), popF()
			push(a / b)
		case op.DDiv:
			b, a := popD(), popD()
			push(a / b)
		case op.IRem:
			b, a := popI(), popI()
			if b == 0 {
				if raise(l.throwNew(ArithmeticExceptionClass, "division by zero")) {
					continue
				}
				return nil, pendingErr
			}
			push(a % b)
		case op.LRem:
			b, a := popL(), popL()
			if b == 0 {
				if raise(l.throwNew(ArithmeticExceptionClass, "division by zero")) {
					continue
				}
				return nil, pendingErr
			}
			push(a % b)
		case op.FRem:
			b, a := popF(), popF()
			push(floatRem(a, b))
		case op.DRem:
			b, a := popD(), popD()
			push(doubleRem(a, b))
		case op.INeg:
			push(-popI())
		case op.LNeg:
			push(-popL())
		case op.FNeg:
			push(-popF())
		case op.DNeg:
			push(-popD())

		case op.IAnd:
			b, a := popI(), popI()
			push(a & b)
		case op.LAnd:
			b, a := popL(), popL()
			push(a & b)
		case op.IOr:
			b, a := popI(), popI()
			push(a | b)
		case op.LOr:
			b, a := popL(), popL()
			push(a | b)
		case op.IXor:
			b, a := popI(), popI()
			push(a ^ b)
		case op.LXor:
			b, a := popL(), popL()
			push(a ^ b)
		case op.IShl:
			b, a := popI(), popI()
			push(a << uint(b&31))
		case op.LShl:
			b, a := popI(), popL()
			push(a << uint(b&63))
		case op.IShr:
			b, a := popI(), popI()
			push(a >> uint(b&31))
		case op.LShr:
			b, a := popI(), popL()
			push(a >> uint(b&63))
		case op.IUshr:
			b, a := popI(), popI()
			push(int32(uint32(a) >> uint(b&31)))
		case op.LUshr:
			b, a := popI(), popL()
			push(int64(uint64(a) >> uint(b&63)))

		case op.LCmp:
			b, a := popL(), popL()
			push(compareOrdered(a, b))
		case op.FCmpL:
			b, a := popF(), popF()
			push(compareFloat(float64(a), float64(b), -1))
		case op.FCmpG:
			b, a := popF(), popF()
			push(compareFloat(float64(a), float64(b), 1))
		case op.DCmpL:
			b, a := popD(), popD()
			push(compareFloat(a, b, -1))
		case op.DCmpG:
			b, a := popD(), popD()
			push(compareFloat(a, b, 1))

		case op.Goto:
			pc = operand(0)
			continue
		case op.IfEq:
			if popI() == 0 {
				pc = operand(0)
				continue
			}
		case op.IfNe:
			if popI() != 0 {
				pc = operand(0)
				continue
			}
		case op.IfLt:
			if popI() < 0 {
				pc = operand(0)
				continue
			}
		case op.IfGe:
			if popI() >= 0 {
				pc = operand(0)
				continue
			}
		case op.IfGt:
			if popI() > 0 {
				pc = operand(0)
				continue
			}
		case op.IfLe:
			if popI() <= 0 {
				pc = operand(0)
				continue
			}
		case op.IfICmpEq:
			b, a := popI(), popI()
			if a == b {
				pc = operand(0)
				continue
			}
		case op.IfICmpNe:
			b, a := popI(), popI()
			if a != b {
				pc = operand(0)
				continue
			}
		case op.IfICmpLt:
			b, a := popI(), popI()
			if a < b {
				pc = operand(0)
				continue
			}
		case op.IfICmpGe:
			b, a := popI(), popI()
			if a >= b {
				pc = operand(0)
				continue
			}
		case op.IfICmpGt:
			b, a := popI(), popI()
			if a > b {
				pc = operand(0)
				continue
			}
		case op.IfICmpLe:
			b, a := popI(), popI()
			if a <= b {
				pc = operand(0)
				continue
			}
		case op.IfACmpEq:
			b, a := pop(), pop()
			if a == b {
				pc = operand(0)
				continue
			}
		case op.IfACmpNe:
			b, a := pop(), pop()
			if a != b {
				pc = operand(0)
				continue
			}
		case op.IfNull:
			if pop() == nil {
				pc = operand(0)
				continue
			}
		case op.IfNonNull:
			if pop() != nil {
				pc = operand(0)
				continue
			}

		case op.LookupSwitch:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			if entry.Kind != classfile.EntrySwitch {
				return nil, fmt.Errorf("LOOKUPSWITCH operand is not a switch table in %s.%s", m.class.name, m.def.Name)
			}
			key := popI()
			target := int(entry.Default)
			for i, k := range entry.Keys {
				if k == key {
					target = int(entry.Targets[i])
					break
				}
			}
			pc = target
			continue

		case op.I2L:
			push(int64(popI()))
		case op.I2F:
			push(float32(popI()))
		case op.I2D:
			push(float64(popI()))
		case op.L2I:
			push(int32(popL()))
		case op.L2F:
			push(float32(popL()))
		case op.L2D:
			push(float64(popL()))
		case op.F2I:
			push(floatToInt(float64(popF())))
		case op.F2L:
			push(floatToLong(float64(popF())))
		case op.F2D:
			push(float64(popF()))
		case op.D2I:
			push(floatToInt(popD()))
		case op.D2L:
			push(floatToLong(popD()))
		case op.D2F:
			push(float32(popD()))
		case op.I2B:
			push(int32(int8(popI())))
		case op.I2S:
			push(int32(int16(popI())))
		case op.I2C:
			push(int32(uint16(popI())))

		case op.New:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			c, err := l.instantiable(entry.Class, m)
			if err != nil {
				return nil, err
			}
			push(c.NewInstance())

		case op.NewArray:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			t, perr := types.ParseDescriptor(entry.Class)
			if perr != nil {
				return nil, perr
			}
			element, eerr := t.Element()
			if eerr != nil {
				return nil, fmt.Errorf("NEWARRAY operand %s is not an array type", entry.Class)
			}
			length := popI()
			if length < 0 {
				if raise(l.throwNew(NegativeArraySizeClass, fmt.Sprintf("%d", length))) {
					continue
				}
				return nil, pendingErr
			}
			push(NewArrayValue(element, int(length)))

		case op.ArrayLength:
			a, ok := pop().(*Array)
			if !ok || a == nil {
				if raise(l.throwNew(NullPointerExceptionClass, "array is null")) {
					continue
				}
				return nil, pendingErr
			}
			push(int32(a.Len()))

		case op.IALoad, op.LALoad, op.FALoad, op.DALoad, op.AALoad:
			index := popI()
			a, ok := pop().(*Array)
			if !ok || a == nil {
				if raise(l.throwNew(NullPointerExceptionClass, "array is null")) {
					continue
				}
				return nil, pendingErr
			}
			if index < 0 || int(index) >= a.Len() {
				if raise(l.throwNew(IndexOutOfBoundsExceptionClass, fmt.Sprintf("index %d, length %d", index, a.Len()))) {
					continue
				}
				return nil, pendingErr
			}
			push(a.Get(int(index)))

		case op.IAStore, op.LAStore, op.FAStore, op.DAStore, op.AAStore:
			v := pop()
			index := popI()
			a, ok := pop().(*Array)
			if !ok || a == nil {
				if raise(l.throwNew(NullPointerExceptionClass, "array is null")) {
					continue
				}
				return nil, pendingErr
			}
			if index < 0 || int(index) >= a.Len() {
				if raise(l.throwNew(IndexOutOfBoundsExceptionClass, fmt.Sprintf("index %d, length %d", index, a.Len()))) {
					continue
				}
				return nil, pendingErr
			}
			a.Set(int(index), v)

		case op.CheckCast:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			v := pop()
			ok, cerr := l.castable(v, entry.Class)
			if cerr != nil {
				return nil, cerr
			}
			if !ok {
				if raise(l.throwNew(ClassCastExceptionClass, fmt.Sprintf("cannot cast to %s", entry.Class))) {
					continue
				}
				return nil, pendingErr
			}
			push(v)

		case op.InstanceOf:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			v := pop()
			if v == nil {
				push(int32(0))
				break
			}
			ok, cerr := l.castable(v, entry.Class)
			if cerr != nil {
				return nil, cerr
			}
			if ok {
				push(int32(1))
			} else {
				push(int32(0))
			}

		case op.GetField:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			inst, ok := pop().(*Instance)
			if !ok || inst == nil {
				if raise(l.throwNew(NullPointerExceptionClass, "field access on null")) {
					continue
				}
				return nil, pendingErr
			}
			push(inst.Field(entry.Name))

		case op.PutField:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			v := pop()
			inst, ok := pop().(*Instance)
			if !ok || inst == nil {
				if raise(l.throwNew(NullPointerExceptionClass, "field access on null")) {
					continue
				}
				return nil, pendingErr
			}
			inst.SetField(entry.Name, v)

		case op.GetStatic:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			owner, v, err := l.staticSlot(entry, m)
			if err != nil {
				return nil, err
			}
			// skip for self-access so a class initializer can touch its own
			// statics without re-entering initialization
			if owner != m.class {
				if err := owner.Initialize(); err != nil {
					return nil, err
				}
			}
			push(v())

		case op.PutStatic:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			owner, _, err := l.staticSlot(entry, m)
			if err != nil {
				return nil, err
			}
			if owner != m.class {
				if err := owner.Initialize(); err != nil {
					return nil, err
				}
			}
			owner.statics[entry.Name] = pop()

		case op.ClassData:
			push(m.class.classData)

		case op.InvokeStatic, op.InvokeVirtual, op.InvokeInterface,
			op.InvokeSpecial, op.InvokeDynamic:
			entry, err := entryAt()
			if err != nil {
				return nil, err
			}
			value, hasValue, ierr := l.invoke(opcode, entry, m, &stack)
			if ierr != nil {
				if t, ok := ierr.(*Thrown); ok {
					if raise(t) {
						continue
					}
					return nil, pendingErr
				}
				return nil, ierr
			}
			if hasValue {
				push(value)
			}

		case op.Return:
			return nil, nil
		case op.IReturn, op.LReturn, op.FReturn, op.DReturn, op.AReturn:
			return pop(), nil

		case op.Throw:
			v := pop()
			inst, ok := v.(*Instance)
			if !ok || inst == nil {
				if raise(l.throwNew(NullPointerExceptionClass, "throwing null")) {
					continue
				}
				return nil, pendingErr
			}
			if raise(&Thrown{Class: inst.class, Value: inst}) {
				continue
			}
			return nil, pendingErr

		default:
			return nil, fmt.Errorf("unknown opcode %d at offset %d in %s.%s", code[pc], pc, m.class.name, m.def.Name)
		}

		pc = next
	}
}

// constValue materializes a constant pool entry.
func (l *DynamicLoader) constValue(entry classfile.Entry) (Value, error) {
	switch entry.Kind {
	case classfile.EntryInt:
		return int32(entry.Int), nil
	case classfile.EntryLong:
		return entry.Int, nil
	case classfile.EntryFloat:
		return float32(entry.Float), nil
	case classfile.EntryDouble:
		return entry.Float, nil
	case classfile.EntryString:
		return entry.Str, nil
	case classfile.EntryClass:
		return l.classForDescriptor(entry.Class)
	default:
		return nil, fmt.Errorf("constant entry %s cannot be pushed", entry)
	}
}

// instantiable resolves a class descriptor for NEW, allowing a hidden class
// to instantiate itself through its original name.
func (l *DynamicLoader) instantiable(desc string, m *Method) (*Class, error) {
	if c, ok := l.selfReference(desc, m); ok {
		return c, nil
	}
	return l.classForDescriptor(desc)
}

// selfReference reports whether a descriptor names the executing method's
// own class. Hidden classes are only reachable this way, since they are
// never registered.
func (l *DynamicLoader) selfReference(desc string, m *Method) (*Class, bool) {
	t, err := types.ParseDescriptor(desc)
	if err != nil || m.class.file == nil {
		return nil, false
	}
	if types.ClassFromPath(m.class.file.Name).BinaryName() == t.BinaryName() {
		return m.class, true
	}
	return nil, false
}

// staticSlot resolves the class owning a static field reference.
func (l *DynamicLoader) staticSlot(entry classfile.Entry, m *Method) (*Class, func() Value, error) {
	var owner *Class
	if c, ok := l.selfReference(entry.Owner, m); ok {
		owner = c
	} else {
		c, err := l.classForDescriptor(entry.Owner)
		if err != nil {
			return nil, nil, err
		}
		owner = c
	}
	for c := owner; c != nil; c = c.super {
		if _, ok := c.statics[entry.Name]; ok {
			name := entry.Name
			return c, func() Value { return c.statics[name] }, nil
		}
	}
	return nil, nil, fmt.Errorf("static field not found: %s.%s", owner.name, entry.Name)
}

// invoke executes an invocation instruction: it pops the arguments (and
// receiver), resolves the target, and runs it. The returned boolean reports
// whether a result value should be pushed.
func (l *DynamicLoader) invoke(opcode op.Code, entry classfile.Entry, m *Method, stack *[]Value) (Value, bool, error) {
	returnType, parameterTypes, err := types.ParseMethodDescriptor(entry.Descriptor)
	if err != nil {
		return nil, false, fmt.Errorf("bad method descriptor %q: %w", entry.Descriptor, err)
	}
	hasResult := !returnType.Equal(types.Void)

	s := *stack
	n := len(parameterTypes)
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = s[len(s)-1]
		s = s[:len(s)-1]
	}

	if opcode == op.InvokeDynamic {
		*stack = s
		value, derr := l.invokeDynamic(entry, args)
		return value, hasResult, derr
	}

	var receiver Value
	if opcode != op.InvokeStatic {
		receiver = s[len(s)-1]
		s = s[:len(s)-1]
	}
	*stack = s

	var owner *Class
	if c, ok := l.selfReference(entry.Owner, m); ok {
		owner = c
	} else {
		c, cerr := l.classForDescriptor(entry.Owner)
		if cerr != nil {
			return nil, false, cerr
		}
		owner = c
	}

	dispatch := owner
	if opcode == op.InvokeVirtual || opcode == op.InvokeInterface {
		if receiver == nil {
			return nil, false, l.throwNew(NullPointerExceptionClass, "method call on null")
		}
		if rc, ok := l.classOf(receiver); ok {
			dispatch = rc
		}
	}
	if opcode == op.InvokeSpecial && receiver == nil {
		return nil, false, l.throwNew(NullPointerExceptionClass, "method call on null")
	}

	if dispatch != m.class {
		if err := dispatch.Initialize(); err != nil {
			return nil, false, err
		}
	}

	if target, ok := dispatch.Method(entry.Name, entry.Descriptor); ok {
		callArgs := args
		if opcode != op.InvokeStatic {
			callArgs = append([]Value{receiver}, args...)
		}
		value, cerr := l.call(target, callArgs)
		return value, hasResult, cerr
	}
	if native, _, ok := dispatch.native(entry.Name, entry.Descriptor); ok {
		inst, _ := receiver.(*Instance)
		value, nerr := native(inst, args)
		return value, hasResult, nerr
	}
	return nil, false, fmt.Errorf("method not found: %s.%s%s", dispatch.name, entry.Name, entry.Descriptor)
}

// invokeDynamic resolves a dynamic call site through the loader's binding
// table. Only the call-site binding bootstrap is recognized.
func (l *DynamicLoader) invokeDynamic(entry classfile.Entry, args []Value) (Value, error) {
	bs := entry.Bootstrap
	if bs == nil {
		return nil, fmt.Errorf("dynamic call site %s has no bootstrap", entry.Name)
	}
	if bs.Owner != ir.BinderType.Descriptor() || bs.Name != "bindCallSite" ||
		len(bs.Args) != 1 || bs.Args[0].Kind != classfile.EntryLong {
		return nil, fmt.Errorf("unsupported bootstrap %s.%s for call site %s", bs.Owner, bs.Name, entry.Name)
	}
	key := bs.Args[0].Int
	target, ok := l.binding(key)
	if !ok {
		return nil, fmt.Errorf("no call site bound for key %d", key)
	}
	return target(args...)
}

// castable reports whether a value may be treated as the descriptor's type.
// Null is castable to anything.
func (l *DynamicLoader) castable(v Value, desc string) (bool, error) {
	if v == nil {
		return true, nil
	}
	t, err := types.ParseDescriptor(desc)
	if err != nil {
		return false, err
	}
	if a, ok := v.(*Array); ok {
		if t.Equal(types.Object) {
			return true, nil
		}
		element, eerr := t.Element()
		if eerr != nil {
			return false, nil
		}
		return element.Descriptor() == a.ElementDescriptor(), nil
	}
	if t.IsArray() {
		return false, nil
	}
	vc, ok := l.classOf(v)
	if !ok {
		return false, nil
	}
	if t.Equal(types.Object) {
		return true, nil
	}
	tc, ok := l.registry.Lookup(t.BinaryName())
	if !ok {
		return false, fmt.Errorf("class not found: %s", t.BinaryName())
	}
	return vc.AssignableTo(tc), nil
}
