// Package ir models executable code for the anvil virtual machine as a tree
// of nodes: blocks, labels, jumps, typed variable access, field access,
// invocations, and structured control flow that lowers itself into primitive
// instructions at emission time.
//
// Nodes are built single-threaded and are not mutated once attached to a
// method body. Lowering is driven through the narrow CodeSink contract, which
// the binary class module encoder implements; the ir package itself never
// produces bytes.
package ir

import (
	"fmt"

	"github.com/deepnoodle-ai/anvil/op"
	"github.com/deepnoodle-ai/anvil/types"
)

// Node is one unit of executable code. Lowering a node emits the primitive
// instructions it stands for into the sink.
type Node interface {
	Lower(ctx *Context, sink CodeSink)
}

// Expression is a node that leaves exactly one value of its static type on
// the operand stack (or nothing, for void-typed expressions). The declared
// type must equal the type actually produced by the node's lowering.
type Expression interface {
	Node
	Type() types.Type
}

// CodeSink is the contract through which lowered instructions reach the
// binary encoder. Implementations may fail internally (a sticky error
// surfaced when encoding completes); lowering itself does not observe
// failures.
type CodeSink interface {
	// Instruction emits an opcode with no operand.
	Instruction(code op.Code)

	// Local emits a load/store opcode addressing a local variable slot.
	Local(code op.Code, slot int)

	// Increment emits the fast-path integer increment of a slot.
	Increment(slot int, delta int)

	// Branch emits a jump to a label.
	Branch(code op.Code, target *Label)

	// Mark binds a label to the current code position.
	Mark(label *Label)

	// Constant pushes a literal constant.
	Constant(c Constant)

	// Type emits an opcode with a type operand (NEW, NEWARRAY, CHECKCAST,
	// INSTANCEOF).
	Type(code op.Code, t types.Type)

	// Field emits a field access.
	Field(code op.Code, owner types.Type, name string, fieldType types.Type)

	// Invoke emits a static/virtual/interface/special invocation.
	Invoke(code op.Code, owner types.Type, name string, returnType types.Type, parameterTypes []types.Type)

	// InvokeDynamic emits a dynamic call site.
	InvokeDynamic(name string, returnType types.Type, parameterTypes []types.Type, bootstrap BootstrapMethod)

	// Switch emits a lookup-switch over int keys.
	Switch(defaultTarget *Label, keys []int32, targets []*Label)

	// Catch records an exception-table entry covering [start, end) with the
	// given handler. A zero exception type records a catch-anything entry.
	Catch(start, end, handler *Label, exception types.Type)
}

// Label marks a jump target. Jump nodes reference labels by identity.
type Label struct {
	name string
}

// NewLabel creates a label with a diagnostic name.
func NewLabel(name string) *Label {
	return &Label{name: name}
}

// Name returns the label's diagnostic name.
func (l *Label) Name() string { return l.name }

func (l *Label) String() string { return l.name }

// Context carries per-method state needed during lowering: the method scope
// for slot lookups, and a counter used to synthesize unique label names when
// structured control flow lowers itself.
type Context struct {
	scope    *Scope
	labelSeq int
}

// NewContext creates a lowering context for one method body.
func NewContext(scope *Scope) *Context {
	return &Context{scope: scope}
}

// Scope returns the method scope.
func (c *Context) Scope() *Scope { return c.scope }

// FreshLabel synthesizes a label whose name is unique within this context.
// Structured control flow must use this for the targets it creates so that
// lowering the same construct shape twice never collides.
func (c *Context) FreshLabel(prefix string) *Label {
	c.labelSeq++
	return NewLabel(fmt.Sprintf("%s_%d", prefix, c.labelSeq))
}

// Block is an ordered sequence of nodes. It is mutable while under
// construction and emitted in order once attached to a method.
type Block struct {
	comment string
	nodes   []Node
}

// NewBlock creates an empty block.
func NewBlock() *Block {
	return &Block{}
}

// Comment attaches a diagnostic comment rendered by the textifier.
func (b *Block) Comment(format string, args ...any) *Block {
	b.comment = fmt.Sprintf(format, args...)
	return b
}

// Append adds a node to the end of the block.
func (b *Block) Append(node Node) *Block {
	b.nodes = append(b.nodes, node)
	return b
}

// Mark appends a label marker.
func (b *Block) Mark(label *Label) *Block {
	return b.Append(MarkLabel(label))
}

// GotoLabel appends an unconditional jump.
func (b *Block) GotoLabel(label *Label) *Block {
	return b.Append(Goto(label))
}

// Push appends a constant push.
func (b *Block) Push(c Constant) *Block {
	return b.Append(PushConstant(c))
}

// Nodes returns the nodes appended so far.
func (b *Block) Nodes() []Node { return b.nodes }

// Len returns the number of nodes in the block.
func (b *Block) Len() int { return len(b.nodes) }

// Lower emits each child in order.
func (b *Block) Lower(ctx *Context, sink CodeSink) {
	if b.comment != "" {
		if ts, ok := sink.(*TextSink); ok {
			ts.comment(b.comment)
		}
	}
	for _, node := range b.nodes {
		node.Lower(ctx, sink)
	}
}

type instructionNode struct {
	code op.Code
}

// Instr creates a node emitting a single no-operand opcode.
func Instr(code op.Code) Node {
	return instructionNode{code: code}
}

func (n instructionNode) Lower(ctx *Context, sink CodeSink) {
	sink.Instruction(n.code)
}

type jumpNode struct {
	code   op.Code
	target *Label
}

// Jump creates a conditional or unconditional jump to a label.
func Jump(code op.Code, target *Label) Node {
	if !op.IsBranch(code) {
		panic(fmt.Sprintf("ir: opcode %s is not a branch", code))
	}
	return jumpNode{code: code, target: target}
}

// Goto creates an unconditional jump to a label.
func Goto(target *Label) Node {
	return jumpNode{code: op.Goto, target: target}
}

func (n jumpNode) Lower(ctx *Context, sink CodeSink) {
	sink.Branch(n.code, n.target)
}

type markLabelNode struct {
	label *Label
}

// MarkLabel creates a node binding a label to its position in the stream.
func MarkLabel(label *Label) Node {
	return markLabelNode{label: label}
}

func (n markLabelNode) Lower(ctx *Context, sink CodeSink) {
	sink.Mark(n.label)
}

type pushConstantNode struct {
	c Constant
}

// PushConstant creates a node pushing a literal constant.
func PushConstant(c Constant) Node {
	return pushConstantNode{c: c}
}

func (n pushConstantNode) Lower(ctx *Context, sink CodeSink) {
	sink.Constant(n.c)
}

// ReturnVoid creates a node returning from a void method.
func ReturnVoid() Node {
	return Instr(op.Return)
}

// LoadForType returns the load opcode for values of the given type. Narrow
// integer kinds share ILOAD.
func LoadForType(t types.Type) op.Code {
	if t.IsReference() {
		return op.ALoad
	}
	switch t.PrimitiveKind() {
	case types.LongKind:
		return op.LLoad
	case types.FloatKind:
		return op.FLoad
	case types.DoubleKind:
		return op.DLoad
	case types.VoidKind:
		panic("ir: cannot load a void value")
	default:
		return op.ILoad
	}
}

// StoreForType returns the store opcode for values of the given type.
func StoreForType(t types.Type) op.Code {
	if t.IsReference() {
		return op.AStore
	}
	switch t.PrimitiveKind() {
	case types.LongKind:
		return op.LStore
	case types.FloatKind:
		return op.FStore
	case types.DoubleKind:
		return op.DStore
	case types.VoidKind:
		panic("ir: cannot store a void value")
	default:
		return op.IStore
	}
}

// ReturnForType returns the return opcode for the given method return type.
func ReturnForType(t types.Type) op.Code {
	if t.IsReference() {
		return op.AReturn
	}
	switch t.PrimitiveKind() {
	case types.VoidKind:
		return op.Return
	case types.LongKind:
		return op.LReturn
	case types.FloatKind:
		return op.FReturn
	case types.DoubleKind:
		return op.DReturn
	default:
		return op.IReturn
	}
}
