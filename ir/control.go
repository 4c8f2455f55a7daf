package ir

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// Structured control flow nodes lower into blocks of labels and jumps at
// emission time. The labels are synthesized through Context.FreshLabel so
// their names are unique per lowering. A structured node must not be
// attached to two method bodies; callers that need the same shape twice
// rebuild the subtree.

// IfStatement executes IfTrue when Condition leaves a non-zero int on the
// stack, otherwise IfFalse (which may be nil).
type IfStatement struct {
	Condition Node
	IfTrue    Node
	IfFalse   Node
}

// Lower emits: condition, IFEQ false, true branch, GOTO end, false branch.
func (s *IfStatement) Lower(ctx *Context, sink CodeSink) {
	if s.Condition == nil {
		panic("ir: if statement requires a condition")
	}
	endLabel := ctx.FreshLabel("if_end")
	falseLabel := ctx.FreshLabel("if_false")

	s.Condition.Lower(ctx, sink)
	if s.IfFalse == nil {
		sink.Branch(op.IfEq, endLabel)
		if s.IfTrue != nil {
			s.IfTrue.Lower(ctx, sink)
		}
	} else {
		sink.Branch(op.IfEq, falseLabel)
		if s.IfTrue != nil {
			s.IfTrue.Lower(ctx, sink)
		}
		sink.Branch(op.Goto, endLabel)
		sink.Mark(falseLabel)
		s.IfFalse.Lower(ctx, sink)
	}
	sink.Mark(endLabel)
}

// WhileLoop evaluates Condition before each iteration of Body.
type WhileLoop struct {
	Condition Node
	Body      Node
}

func (s *WhileLoop) Lower(ctx *Context, sink CodeSink) {
	beginLabel := ctx.FreshLabel("while_begin")
	endLabel := ctx.FreshLabel("while_end")

	sink.Mark(beginLabel)
	s.Condition.Lower(ctx, sink)
	sink.Branch(op.IfEq, endLabel)
	if s.Body != nil {
		s.Body.Lower(ctx, sink)
	}
	sink.Branch(op.Goto, beginLabel)
	sink.Mark(endLabel)
}

// DoWhileLoop executes Body before evaluating Condition.
type DoWhileLoop struct {
	Body      Node
	Condition Node
}

func (s *DoWhileLoop) Lower(ctx *Context, sink CodeSink) {
	beginLabel := ctx.FreshLabel("do_while_begin")

	sink.Mark(beginLabel)
	if s.Body != nil {
		s.Body.Lower(ctx, sink)
	}
	s.Condition.Lower(ctx, sink)
	sink.Branch(op.IfNe, beginLabel)
}

// ForLoop is the classic initialize/condition/update loop.
type ForLoop struct {
	Initialize Node
	Condition  Node
	Update     Node
	Body       Node
}

func (s *ForLoop) Lower(ctx *Context, sink CodeSink) {
	beginLabel := ctx.FreshLabel("for_begin")
	endLabel := ctx.FreshLabel("for_end")

	if s.Initialize != nil {
		s.Initialize.Lower(ctx, sink)
	}
	sink.Mark(beginLabel)
	if s.Condition != nil {
		s.Condition.Lower(ctx, sink)
		sink.Branch(op.IfEq, endLabel)
	}
	if s.Body != nil {
		s.Body.Lower(ctx, sink)
	}
	if s.Update != nil {
		s.Update.Lower(ctx, sink)
	}
	sink.Branch(op.Goto, beginLabel)
	sink.Mark(endLabel)
}

// SwitchCase pairs an int key with its body.
type SwitchCase struct {
	Key  int32
	Body Node
}

// SwitchStatement dispatches on an int expression. Each case body jumps to
// the end when it completes; there is no fall-through.
type SwitchStatement struct {
	Expression Node
	Default    Node
	cases      []SwitchCase
	seen       map[int32]bool
}

// AddCase appends a case. Duplicate keys panic.
func (s *SwitchStatement) AddCase(key int32, body Node) *SwitchStatement {
	if s.seen == nil {
		s.seen = map[int32]bool{}
	}
	if s.seen[key] {
		panic(fmt.Sprintf("ir: duplicate switch case %d", key))
	}
	s.seen[key] = true
	s.cases = append(s.cases, SwitchCase{Key: key, Body: body})
	return s
}

func (s *SwitchStatement) Lower(ctx *Context, sink CodeSink) {
	endLabel := ctx.FreshLabel("switch_end")
	defaultLabel := ctx.FreshLabel("switch_default")

	keys := make([]int32, len(s.cases))
	targets := make([]*Label, len(s.cases))
	for i, c := range s.cases {
		keys[i] = c.Key
		targets[i] = ctx.FreshLabel(fmt.Sprintf("switch_case_%d", c.Key))
	}

	s.Expression.Lower(ctx, sink)
	sink.Switch(defaultLabel, keys, targets)

	for i, c := range s.cases {
		sink.Mark(targets[i])
		if c.Body != nil {
			c.Body.Lower(ctx, sink)
		}
		sink.Branch(op.Goto, endLabel)
	}

	sink.Mark(defaultLabel)
	if s.Default != nil {
		s.Default.Lower(ctx, sink)
	}
	sink.Mark(endLabel)
}

// CatchBlock pairs a handler with the exception types it covers. An empty
// type list catches anything.
type CatchBlock struct {
	Handler        Node
	ExceptionTypes []types.Type
}

// TryCatch guards a try body with one handler block per catch clause.
type TryCatch struct {
	TryBody     Node
	CatchBlocks []CatchBlock
}

// Lower emits: start label, try body, end label, GOTO done, each handler
// preceded by its own label, done label. The exception table is populated
// per catch clause from the recorded start/end/handler triple, one entry per
// declared exception type, or one catch-anything entry for a clause with no
// types.
func (s *TryCatch) Lower(ctx *Context, sink CodeSink) {
	tryStart := ctx.FreshLabel("try_start")
	tryEnd := ctx.FreshLabel("try_end")
	doneLabel := ctx.FreshLabel("try_done")

	sink.Mark(tryStart)
	if s.TryBody != nil {
		s.TryBody.Lower(ctx, sink)
	}
	sink.Mark(tryEnd)
	sink.Branch(op.Goto, doneLabel)

	handlers := make([]*Label, len(s.CatchBlocks))
	for i, catch := range s.CatchBlocks {
		handlers[i] = ctx.FreshLabel(fmt.Sprintf("handler_%d", i))
		sink.Mark(handlers[i])
		if catch.Handler != nil {
			catch.Handler.Lower(ctx, sink)
		}
	}
	sink.Mark(doneLabel)

	for i, catch := range s.CatchBlocks {
		if len(catch.ExceptionTypes) == 0 {
			sink.Catch(tryStart, tryEnd, handlers[i], types.Type{})
			continue
		}
		for _, t := range catch.ExceptionTypes {
			sink.Catch(tryStart, tryEnd, handlers[i], t)
		}
	}
}
