package classfile

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// computeMaxStack simulates the operand stack over every reachable path and
// returns the maximum depth. Depths are logical values, one slot per value
// regardless of width. The simulation doubles as a structural check: it
// rejects underflow, branches into the middle of an instruction, and control
// paths that reach the same offset with different depths.
func computeMaxStack(class, method string, code []byte, consts []Entry, handlers []Handler) (int, error) {
	sim := &stackSim{class: class, method: method, code: code, consts: consts}
	if err := sim.findBoundaries(); err != nil {
		return 0, err
	}
	sim.depths = map[int]int{}

	if err := sim.enqueue(0, 0); err != nil {
		return 0, err
	}
	// a handler entry receives exactly the thrown value
	for _, h := range handlers {
		if err := sim.enqueue(int(h.Target), 1); err != nil {
			return 0, err
		}
	}
	for len(sim.work) > 0 {
		item := sim.work[len(sim.work)-1]
		sim.work = sim.work[:len(sim.work)-1]
		if err := sim.run(item.offset, item.depth); err != nil {
			return 0, err
		}
	}
	return sim.maxDepth, nil
}

type workItem struct {
	offset int
	depth  int
}

type stackSim struct {
	class      string
	method     string
	code       []byte
	consts     []Entry
	boundaries map[int]bool
	depths     map[int]int
	work       []workItem
	maxDepth   int
}

func (s *stackSim) structural(format string, args ...any) error {
	return &StructuralError{
		Class:  s.class,
		Method: s.method,
		Reason: fmt.Sprintf(format, args...),
	}
}

// findBoundaries decodes the code linearly once to learn where instructions
// start, so branch targets can be validated.
func (s *stackSim) findBoundaries() error {
	s.boundaries = map[int]bool{}
	pc := 0
	for pc < len(s.code) {
		s.boundaries[pc] = true
		code := op.Code(s.code[pc])
		info := op.GetInfo(code)
		if info.Name == "" {
			return s.structural("unknown opcode %d at offset %d", s.code[pc], pc)
		}
		pc += 1 + 2*info.OperandCount
	}
	if pc != len(s.code) {
		return s.structural("code is truncated mid-instruction")
	}
	return nil
}

// enqueue records the stack depth at a branch target, or rejects the target
// when a different depth was already recorded there.
func (s *stackSim) enqueue(offset, depth int) error {
	if offset == len(s.code) {
		return s.structural("control falls off the end of the code at offset %d", offset)
	}
	if !s.boundaries[offset] {
		return s.structural("branch target %d is not an instruction boundary", offset)
	}
	if prev, seen := s.depths[offset]; seen {
		if prev != depth {
			return s.structural("inconsistent stack depth at offset %d: %d vs %d", offset, prev, depth)
		}
		return nil
	}
	s.depths[offset] = depth
	s.work = append(s.work, workItem{offset: offset, depth: depth})
	return nil
}

func (s *stackSim) operand(pc, n int) int {
	base := pc + 1 + 2*n
	return int(s.code[base])<<8 | int(s.code[base+1])
}

func (s *stackSim) entry(pc int) (Entry, error) {
	idx := s.operand(pc, 0)
	if idx >= len(s.consts) {
		return Entry{}, s.structural("constant index %d out of range at offset %d", idx, pc)
	}
	return s.consts[idx], nil
}

// run simulates one straight-line segment starting at offset with the given
// stack depth, enqueueing every branch target it encounters.
func (s *stackSim) run(offset, depth int) error {
	pc := offset
	for pc < len(s.code) {
		code := op.Code(s.code[pc])
		info := op.GetInfo(code)
		next := pc + 1 + 2*info.OperandCount

		pops, pushes, err := s.effect(pc, code)
		if err != nil {
			return err
		}
		depth -= pops
		if depth < 0 {
			return s.structural("stack underflow at offset %d (%s)", pc, code)
		}
		depth += pushes
		if depth > s.maxDepth {
			s.maxDepth = depth
		}

		switch {
		case code == op.Goto:
			return s.enqueue(s.operand(pc, 0), depth)
		case op.IsBranch(code):
			if err := s.enqueue(s.operand(pc, 0), depth); err != nil {
				return err
			}
		case code == op.LookupSwitch:
			entry, err := s.entry(pc)
			if err != nil {
				return err
			}
			if entry.Kind != EntrySwitch {
				return s.structural("LOOKUPSWITCH operand at offset %d is not a switch table", pc)
			}
			if err := s.enqueue(int(entry.Default), depth); err != nil {
				return err
			}
			for _, t := range entry.Targets {
				if err := s.enqueue(int(t), depth); err != nil {
					return err
				}
			}
			return nil
		case code == op.Throw,
			code == op.Return, code == op.IReturn, code == op.LReturn,
			code == op.FReturn, code == op.DReturn, code == op.AReturn:
			return nil
		}

		if next >= len(s.code) {
			return s.structural("control falls off the end of the code at offset %d", pc)
		}

		// fall through to the next instruction; stop if this position was
		// already simulated with the same depth
		if prev, seen := s.depths[next]; seen {
			if prev != depth {
				return s.structural("inconsistent stack depth at offset %d: %d vs %d", next, prev, depth)
			}
			return nil
		}
		s.depths[next] = depth
		pc = next
	}
	return nil
}

// effect returns the pop and push counts of the instruction at pc.
func (s *stackSim) effect(pc int, code op.Code) (pops, pushes int, err error) {
	switch code {
	case op.Nop, op.IInc, op.Goto:
		return 0, 0, nil
	case op.Const, op.ConstNull, op.ClassData,
		op.ILoad, op.LLoad, op.FLoad, op.DLoad, op.ALoad,
		op.New, op.GetStatic:
		return 0, 1, nil
	case op.IStore, op.LStore, op.FStore, op.DStore, op.AStore,
		op.Pop, op.PutStatic,
		op.IfEq, op.IfNe, op.IfLt, op.IfGe, op.IfGt, op.IfLe,
		op.IfNull, op.IfNonNull,
		op.LookupSwitch, op.Throw, op.IReturn, op.LReturn, op.FReturn,
		op.DReturn, op.AReturn:
		return 1, 0, nil
	case op.Return:
		return 0, 0, nil
	case op.Dup:
		return 1, 2, nil
	case op.Swap:
		return 2, 2, nil
	case op.IAdd, op.LAdd, op.FAdd, op.DAdd,
		op.ISub, op.LSub, op.FSub, op.DSub,
		op.IMul, op.LMul, op.FMul, op.DMul,
		op.IDiv, op.LDiv, op.FDiv, op.DDiv,
		op.IRem, op.LRem, op.FRem, op.DRem,
		op.IAnd, op.LAnd, op.IOr, op.LOr, op.IXor, op.LXor,
		op.IShl, op.LShl, op.IShr, op.LShr, op.IUshr, op.LUshr,
		op.LCmp, op.FCmpL, op.FCmpG, op.DCmpL, op.DCmpG,
		op.IALoad, op.LALoad, op.FALoad, op.DALoad, op.AALoad:
		return 2, 1, nil
	case op.INeg, op.LNeg, op.FNeg, op.DNeg,
		op.I2L, op.I2F, op.I2D, op.L2I, op.L2F, op.L2D,
		op.F2I, op.F2L, op.F2D, op.D2I, op.D2L, op.D2F,
		op.I2B, op.I2S, op.I2C,
		op.NewArray, op.ArrayLength, op.CheckCast, op.InstanceOf:
		return 1, 1, nil
	case op.IfICmpEq, op.IfICmpNe, op.IfICmpLt, op.IfICmpGe,
		op.IfICmpGt, op.IfICmpLe, op.IfACmpEq, op.IfACmpNe:
		return 2, 0, nil
	case op.IAStore, op.LAStore, op.FAStore, op.DAStore, op.AAStore:
		return 3, 0, nil
	case op.GetField:
		return 1, 1, nil
	case op.PutField:
		return 2, 0, nil
	case op.InvokeStatic, op.InvokeVirtual, op.InvokeInterface,
		op.InvokeSpecial, op.InvokeDynamic:
		entry, err := s.entry(pc)
		if err != nil {
			return 0, 0, err
		}
		returnType, parameterTypes, derr := types.ParseMethodDescriptor(entry.Descriptor)
		if derr != nil {
			return 0, 0, s.structural("bad method descriptor at offset %d: %v", pc, derr)
		}
		pops = len(parameterTypes)
		if code != op.InvokeStatic && code != op.InvokeDynamic {
			pops++ // receiver
		}
		if !returnType.Equal(types.Void) {
			pushes = 1
		}
		return pops, pushes, nil
	default:
		return 0, 0, s.structural("unknown opcode %s at offset %d", code, pc)
	}
}
