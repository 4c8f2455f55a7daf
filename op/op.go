// Package op defines the opcodes understood by the anvil virtual machine
// and emitted by the class module encoder.
//
// The instruction set is type-tagged: loads, stores, arithmetic, and array
// accesses select a distinct opcode per operand category (int, long, float,
// double, reference). Narrow integer kinds (boolean, byte, short, char, int)
// share the int instruction family.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint8

const (
	Invalid Code = 0

	// Execution
	Nop Code = 1

	// Constants
	Const     Code = 2 // operand: constant pool index
	ConstNull Code = 3

	// Local variable access (operand: slot)
	ILoad Code = 10
	LLoad Code = 11
	FLoad Code = 12
	DLoad Code = 13
	ALoad Code = 14

	IStore Code = 15
	LStore Code = 16
	FStore Code = 17
	DStore Code = 18
	AStore Code = 19

	IInc Code = 20 // operands: slot, signed delta

	// Operand stack
	Pop  Code = 25
	Dup  Code = 26
	Swap Code = 27

	// Arithmetic
	IAdd Code = 30
	LAdd Code = 31
	FAdd Code = 32
	DAdd Code = 33
	ISub Code = 34
	LSub Code = 35
	FSub Code = 36
	DSub Code = 37
	IMul Code = 38
	LMul Code = 39
	FMul Code = 40
	DMul Code = 41
	IDiv Code = 42
	LDiv Code = 43
	FDiv Code = 44
	DDiv Code = 45
	IRem Code = 46
	LRem Code = 47
	FRem Code = 48
	DRem Code = 49
	INeg Code = 50
	LNeg Code = 51
	FNeg Code = 52
	DNeg Code = 53

	// Bitwise and shifts
	IAnd  Code = 54
	LAnd  Code = 55
	IOr   Code = 56
	LOr   Code = 57
	IXor  Code = 58
	LXor  Code = 59
	IShl  Code = 60
	LShl  Code = 61
	IShr  Code = 62
	LShr  Code = 63
	IUshr Code = 64
	LUshr Code = 65

	// Comparators that reduce a wide or floating comparison to a signed int.
	// The L and G variants differ only in how an unordered (NaN) comparison
	// is reported: L pushes -1, G pushes 1.
	LCmp  Code = 70
	FCmpL Code = 71
	FCmpG Code = 72
	DCmpL Code = 73
	DCmpG Code = 74

	// Branches (operand: absolute code offset)
	Goto      Code = 80
	IfEq      Code = 81 // jump if int == 0
	IfNe      Code = 82
	IfLt      Code = 83
	IfGe      Code = 84
	IfGt      Code = 85
	IfLe      Code = 86
	IfICmpEq  Code = 87 // jump comparing two ints
	IfICmpNe  Code = 88
	IfICmpLt  Code = 89
	IfICmpGe  Code = 90
	IfICmpGt  Code = 91
	IfICmpLe  Code = 92
	IfACmpEq  Code = 93 // jump comparing two references
	IfACmpNe  Code = 94
	IfNull    Code = 95
	IfNonNull Code = 96

	LookupSwitch Code = 99 // operand: constant pool index of a switch table

	// Primitive conversions
	I2L Code = 100
	I2F Code = 101
	I2D Code = 102
	L2I Code = 103
	L2F Code = 104
	L2D Code = 105
	F2I Code = 106
	F2L Code = 107
	F2D Code = 108
	D2I Code = 109
	D2L Code = 110
	D2F Code = 111
	I2B Code = 112
	I2S Code = 113
	I2C Code = 114

	// Objects and arrays (operand: constant pool index unless noted)
	New         Code = 120
	NewArray    Code = 121
	ArrayLength Code = 122 // no operand
	IALoad      Code = 123 // no operand
	LALoad      Code = 124
	FALoad      Code = 125
	DALoad      Code = 126
	AALoad      Code = 127
	IAStore     Code = 128
	LAStore     Code = 129
	FAStore     Code = 130
	DAStore     Code = 131
	AAStore     Code = 132
	CheckCast   Code = 133
	InstanceOf  Code = 134
	GetField    Code = 135
	PutField    Code = 136
	GetStatic   Code = 137
	PutStatic   Code = 138
	ClassData   Code = 139 // no operand; pushes the class data attached at load time

	// Invocation (operand: constant pool index of a method or dynamic ref)
	InvokeStatic    Code = 140
	InvokeVirtual   Code = 141
	InvokeInterface Code = 142
	InvokeSpecial   Code = 143
	InvokeDynamic   Code = 144

	// Returns
	Return  Code = 150
	IReturn Code = 151
	LReturn Code = 152
	FReturn Code = 153
	DReturn Code = 154
	AReturn Code = 155

	// Exceptions
	Throw Code = 160
)

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{Nop, "NOP", 0},
		{Const, "CONST", 1},
		{ConstNull, "CONST_NULL", 0},
		{ILoad, "ILOAD", 1},
		{LLoad, "LLOAD", 1},
		{FLoad, "FLOAD", 1},
		{DLoad, "DLOAD", 1},
		{ALoad, "ALOAD", 1},
		{IStore, "ISTORE", 1},
		{LStore, "LSTORE", 1},
		{FStore, "FSTORE", 1},
		{DStore, "DSTORE", 1},
		{AStore, "ASTORE", 1},
		{IInc, "IINC", 2},
		{Pop, "POP", 0},
		{Dup, "DUP", 0},
		{Swap, "SWAP", 0},
		{IAdd, "IADD", 0},
		{LAdd, "LADD", 0},
		{FAdd, "FADD", 0},
		{DAdd, "DADD", 0},
		{ISub, "ISUB", 0},
		{LSub, "LSUB", 0},
		{FSub, "FSUB", 0},
		{DSub, "DSUB", 0},
		{IMul, "IMUL", 0},
		{LMul, "LMUL", 0},
		{FMul, "FMUL", 0},
		{DMul, "DMUL", 0},
		{IDiv, "IDIV", 0},
		{LDiv, "LDIV", 0},
		{FDiv, "FDIV", 0},
		{DDiv, "DDIV", 0},
		{IRem, "IREM", 0},
		{LRem, "LREM", 0},
		{FRem, "FREM", 0},
		{DRem, "DREM", 0},
		{INeg, "INEG", 0},
		{LNeg, "LNEG", 0},
		{FNeg, "FNEG", 0},
		{DNeg, "DNEG", 0},
		{IAnd, "IAND", 0},
		{LAnd, "LAND", 0},
		{IOr, "IOR", 0},
		{LOr, "LOR", 0},
		{IXor, "IXOR", 0},
		{LXor, "LXOR", 0},
		{IShl, "ISHL", 0},
		{LShl, "LSHL", 0},
		{IShr, "ISHR", 0},
		{LShr, "LSHR", 0},
		{IUshr, "IUSHR", 0},
		{LUshr, "LUSHR", 0},
		{LCmp, "LCMP", 0},
		{FCmpL, "FCMPL", 0},
		{FCmpG, "FCMPG", 0},
		{DCmpL, "DCMPL", 0},
		{DCmpG, "DCMPG", 0},
		{Goto, "GOTO", 1},
		{IfEq, "IFEQ", 1},
		{IfNe, "IFNE", 1},
		{IfLt, "IFLT", 1},
		{IfGe, "IFGE", 1},
		{IfGt, "IFGT", 1},
		{IfLe, "IFLE", 1},
		{IfICmpEq, "IF_ICMPEQ", 1},
		{IfICmpNe, "IF_ICMPNE", 1},
		{IfICmpLt, "IF_ICMPLT", 1},
		{IfICmpGe, "IF_ICMPGE", 1},
		{IfICmpGt, "IF_ICMPGT", 1},
		{IfICmpLe, "IF_ICMPLE", 1},
		{IfACmpEq, "IF_ACMPEQ", 1},
		{IfACmpNe, "IF_ACMPNE", 1},
		{IfNull, "IFNULL", 1},
		{IfNonNull, "IFNONNULL", 1},
		{LookupSwitch, "LOOKUPSWITCH", 1},
		{I2L, "I2L", 0},
		{I2F, "I2F", 0},
		{I2D, "I2D", 0},
		{L2I, "L2I", 0},
		{L2F, "L2F", 0},
		{L2D, "L2D", 0},
		{F2I, "F2I", 0},
		{F2L, "F2L", 0},
		{F2D, "F2D", 0},
		{D2I, "D2I", 0},
		{D2L, "D2L", 0},
		{D2F, "D2F", 0},
		{I2B, "I2B", 0},
		{I2S, "I2S", 0},
		{I2C, "I2C", 0},
		{New, "NEW", 1},
		{NewArray, "NEWARRAY", 1},
		{ArrayLength, "ARRAYLENGTH", 0},
		{IALoad, "IALOAD", 0},
		{LALoad, "LALOAD", 0},
		{FALoad, "FALOAD", 0},
		{DALoad, "DALOAD", 0},
		{AALoad, "AALOAD", 0},
		{IAStore, "IASTORE", 0},
		{LAStore, "LASTORE", 0},
		{FAStore, "FASTORE", 0},
		{DAStore, "DASTORE", 0},
		{AAStore, "AASTORE", 0},
		{CheckCast, "CHECKCAST", 1},
		{InstanceOf, "INSTANCEOF", 1},
		{GetField, "GETFIELD", 1},
		{PutField, "PUTFIELD", 1},
		{GetStatic, "GETSTATIC", 1},
		{PutStatic, "PUTSTATIC", 1},
		{ClassData, "CLASSDATA", 0},
		{InvokeStatic, "INVOKESTATIC", 1},
		{InvokeVirtual, "INVOKEVIRTUAL", 1},
		{InvokeInterface, "INVOKEINTERFACE", 1},
		{InvokeSpecial, "INVOKESPECIAL", 1},
		{InvokeDynamic, "INVOKEDYNAMIC", 1},
		{Return, "RETURN", 0},
		{IReturn, "IRETURN", 0},
		{LReturn, "LRETURN", 0},
		{FReturn, "FRETURN", 0},
		{DReturn, "DRETURN", 0},
		{AReturn, "ARETURN", 0},
		{Throw, "THROW", 0},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Code:         o.op,
			Name:         o.name,
			OperandCount: o.count,
		}
	}
}

// GetInfo returns the Info for the given opcode.
func GetInfo(code Code) Info {
	return infos[code]
}

// IsBranch indicates whether the opcode's operand is a code offset.
func IsBranch(code Code) bool {
	return code >= Goto && code <= IfNonNull
}

func (c Code) String() string {
	info := infos[c]
	if info.Name == "" {
		return "UNKNOWN"
	}
	return info.Name
}
