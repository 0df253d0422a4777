// Package op defines the opcode set used by the monty compiler and virtual
// machine. Bytecode is a flat byte sequence: one opcode byte followed by a
// fixed, per-opcode number of operand bytes (no operand, a u8/i8, a u16/i16,
// or a compound pair such as u16+u8).
package op

// Code is a single opcode byte.
type Code byte

// Width describes the operand encoding that follows an opcode byte.
type Width int

const (
	WidthNone    Width = iota // no operand
	WidthU8                   // one unsigned byte
	WidthI8                   // one signed byte
	WidthU16                  // one unsigned 16-bit value (little-endian)
	WidthI16                  // one signed 16-bit value (little-endian), used by jumps
	WidthU8U8                 // two unsigned bytes, e.g. CallFunctionKw's argc/kwargc pair
	WidthU16U8                // a u16 followed by a u8
)

const (
	Invalid Code = 0

	// Stack
	Pop  Code = 1
	Dup  Code = 2
	Rot2 Code = 3
	Rot3 Code = 4

	// Literals
	LoadConst    Code = 10
	LoadNone     Code = 11
	LoadTrue     Code = 12
	LoadFalse    Code = 13
	LoadSmallInt Code = 14

	// Variables
	LoadLocal0  Code = 20
	LoadLocal1  Code = 21
	LoadLocal2  Code = 22
	LoadLocal3  Code = 23
	LoadLocal   Code = 24
	LoadLocalW  Code = 25
	StoreLocal  Code = 26
	StoreLocalW Code = 27
	DeleteLocal Code = 28
	LoadGlobal  Code = 29
	StoreGlobal Code = 30
	LoadCell    Code = 31
	StoreCell   Code = 32

	// Arithmetic / bitwise, binary
	BinaryAdd      Code = 40
	BinarySub      Code = 41
	BinaryMul      Code = 42
	BinaryDiv      Code = 43
	BinaryFloorDiv Code = 44
	BinaryMod      Code = 45
	BinaryPow      Code = 46
	BinaryAnd      Code = 47
	BinaryOr       Code = 48
	BinaryXor      Code = 49
	BinaryLShift   Code = 50
	BinaryRShift   Code = 51
	BinaryMatMul   Code = 52

	// In-place variants, one per arithmetic/bitwise op above
	InplaceAdd      Code = 60
	InplaceSub      Code = 61
	InplaceMul      Code = 62
	InplaceDiv      Code = 63
	InplaceFloorDiv Code = 64
	InplaceMod      Code = 65
	InplacePow      Code = 66
	InplaceAnd      Code = 67
	InplaceOr       Code = 68
	InplaceXor      Code = 69
	InplaceLShift   Code = 70
	InplaceRShift   Code = 71
	InplaceMatMul   Code = 72

	// Comparison
	CompareEq Code = 80
	CompareNe Code = 81
	CompareLt Code = 82
	CompareLe Code = 83
	CompareGt Code = 84
	CompareGe Code = 85
	CompareIs Code = 86
	CompareIsNot Code = 87
	CompareIn    Code = 88
	CompareNotIn Code = 89
	// CompareExceptionMatch pops the type operand on top of stack, tests
	// the exception beneath it against that type and pushes the result,
	// used by the except-clause dispatcher the compiler emits for
	// try/except lowering.
	CompareExceptionMatch Code = 90

	// Unary
	UnaryNot    Code = 100
	UnaryNeg    Code = 101
	UnaryPos    Code = 102
	UnaryInvert Code = 103

	// Collections
	BuildList    Code = 110
	BuildTuple   Code = 111
	BuildDict    Code = 112
	BuildSet     Code = 113
	BuildFString Code = 114

	// Attribute / subscript
	BinarySubscr Code = 120
	StoreSubscr  Code = 121
	DeleteSubscr Code = 122
	LoadAttr     Code = 123
	StoreAttr    Code = 124
	DeleteAttr   Code = 125

	// Calls
	CallFunction   Code = 130
	CallFunctionKw Code = 131
	CallMethod     Code = 132
	CallExternal   Code = 133

	// Control flow
	Jump               Code = 140
	JumpIfTrue         Code = 141
	JumpIfFalse        Code = 142
	JumpIfTrueOrPop    Code = 143
	JumpIfFalseOrPop   Code = 144

	// Iteration
	GetIter Code = 150
	ForIter Code = 151

	// Function creation
	MakeFunction Code = 160
	MakeClosure  Code = 161

	// Exceptions
	Raise           Code = 170
	RaiseFrom       Code = 171
	Reraise         Code = 172
	ClearException  Code = 173

	// Return
	ReturnValue Code = 180

	// Unpacking
	UnpackSequence Code = 190
	UnpackEx       Code = 191

	// Other
	Nop Code = 255
)

// Info describes an opcode: its mnemonic and its operand encoding.
type Info struct {
	Code  Code
	Name  string
	Width Width
}

var infos = make([]Info, 256)

func init() {
	for _, i := range []Info{
		{Pop, "POP", WidthNone},
		{Dup, "DUP", WidthNone},
		{Rot2, "ROT2", WidthNone},
		{Rot3, "ROT3", WidthNone},

		{LoadConst, "LOAD_CONST", WidthU16},
		{LoadNone, "LOAD_NONE", WidthNone},
		{LoadTrue, "LOAD_TRUE", WidthNone},
		{LoadFalse, "LOAD_FALSE", WidthNone},
		{LoadSmallInt, "LOAD_SMALL_INT", WidthI8},

		{LoadLocal0, "LOAD_LOCAL_0", WidthNone},
		{LoadLocal1, "LOAD_LOCAL_1", WidthNone},
		{LoadLocal2, "LOAD_LOCAL_2", WidthNone},
		{LoadLocal3, "LOAD_LOCAL_3", WidthNone},
		{LoadLocal, "LOAD_LOCAL", WidthU8},
		{LoadLocalW, "LOAD_LOCAL_W", WidthU16},
		{StoreLocal, "STORE_LOCAL", WidthU8},
		{StoreLocalW, "STORE_LOCAL_W", WidthU16},
		{DeleteLocal, "DELETE_LOCAL", WidthU8},
		{LoadGlobal, "LOAD_GLOBAL", WidthU16},
		{StoreGlobal, "STORE_GLOBAL", WidthU16},
		{LoadCell, "LOAD_CELL", WidthU16},
		{StoreCell, "STORE_CELL", WidthU16},

		{BinaryAdd, "BINARY_ADD", WidthNone},
		{BinarySub, "BINARY_SUB", WidthNone},
		{BinaryMul, "BINARY_MUL", WidthNone},
		{BinaryDiv, "BINARY_DIV", WidthNone},
		{BinaryFloorDiv, "BINARY_FLOORDIV", WidthNone},
		{BinaryMod, "BINARY_MOD", WidthNone},
		{BinaryPow, "BINARY_POW", WidthNone},
		{BinaryAnd, "BINARY_AND", WidthNone},
		{BinaryOr, "BINARY_OR", WidthNone},
		{BinaryXor, "BINARY_XOR", WidthNone},
		{BinaryLShift, "BINARY_LSHIFT", WidthNone},
		{BinaryRShift, "BINARY_RSHIFT", WidthNone},
		{BinaryMatMul, "BINARY_MATMUL", WidthNone},

		{InplaceAdd, "INPLACE_ADD", WidthNone},
		{InplaceSub, "INPLACE_SUB", WidthNone},
		{InplaceMul, "INPLACE_MUL", WidthNone},
		{InplaceDiv, "INPLACE_DIV", WidthNone},
		{InplaceFloorDiv, "INPLACE_FLOORDIV", WidthNone},
		{InplaceMod, "INPLACE_MOD", WidthNone},
		{InplacePow, "INPLACE_POW", WidthNone},
		{InplaceAnd, "INPLACE_AND", WidthNone},
		{InplaceOr, "INPLACE_OR", WidthNone},
		{InplaceXor, "INPLACE_XOR", WidthNone},
		{InplaceLShift, "INPLACE_LSHIFT", WidthNone},
		{InplaceRShift, "INPLACE_RSHIFT", WidthNone},
		{InplaceMatMul, "INPLACE_MATMUL", WidthNone},

		{CompareEq, "COMPARE_EQ", WidthNone},
		{CompareNe, "COMPARE_NE", WidthNone},
		{CompareLt, "COMPARE_LT", WidthNone},
		{CompareLe, "COMPARE_LE", WidthNone},
		{CompareGt, "COMPARE_GT", WidthNone},
		{CompareGe, "COMPARE_GE", WidthNone},
		{CompareIs, "COMPARE_IS", WidthNone},
		{CompareIsNot, "COMPARE_IS_NOT", WidthNone},
		{CompareIn, "COMPARE_IN", WidthNone},
		{CompareNotIn, "COMPARE_NOT_IN", WidthNone},
		{CompareExceptionMatch, "COMPARE_EXCEPTION_MATCH", WidthNone},

		{UnaryNot, "UNARY_NOT", WidthNone},
		{UnaryNeg, "UNARY_NEG", WidthNone},
		{UnaryPos, "UNARY_POS", WidthNone},
		{UnaryInvert, "UNARY_INVERT", WidthNone},

		{BuildList, "BUILD_LIST", WidthU16},
		{BuildTuple, "BUILD_TUPLE", WidthU16},
		{BuildDict, "BUILD_DICT", WidthU16},
		{BuildSet, "BUILD_SET", WidthU16},
		{BuildFString, "BUILD_FSTRING", WidthU16},

		{BinarySubscr, "BINARY_SUBSCR", WidthNone},
		{StoreSubscr, "STORE_SUBSCR", WidthNone},
		{DeleteSubscr, "DELETE_SUBSCR", WidthNone},
		{LoadAttr, "LOAD_ATTR", WidthU16},
		{StoreAttr, "STORE_ATTR", WidthU16},
		{DeleteAttr, "DELETE_ATTR", WidthU16},

		{CallFunction, "CALL_FUNCTION", WidthU8},
		{CallFunctionKw, "CALL_FUNCTION_KW", WidthU8U8},
		{CallMethod, "CALL_METHOD", WidthU16U8},
		{CallExternal, "CALL_EXTERNAL", WidthU16U8},

		{Jump, "JUMP", WidthI16},
		{JumpIfTrue, "JUMP_IF_TRUE", WidthI16},
		{JumpIfFalse, "JUMP_IF_FALSE", WidthI16},
		{JumpIfTrueOrPop, "JUMP_IF_TRUE_OR_POP", WidthI16},
		{JumpIfFalseOrPop, "JUMP_IF_FALSE_OR_POP", WidthI16},

		{GetIter, "GET_ITER", WidthNone},
		{ForIter, "FOR_ITER", WidthI16},

		{MakeFunction, "MAKE_FUNCTION", WidthU16},
		{MakeClosure, "MAKE_CLOSURE", WidthU16U8},

		{Raise, "RAISE", WidthNone},
		{RaiseFrom, "RAISE_FROM", WidthNone},
		{Reraise, "RERAISE", WidthNone},
		{ClearException, "CLEAR_EXCEPTION", WidthNone},

		{ReturnValue, "RETURN_VALUE", WidthNone},

		{UnpackSequence, "UNPACK_SEQUENCE", WidthU8},
		{UnpackEx, "UNPACK_EX", WidthU8U8},

		{Nop, "NOP", WidthNone},
	} {
		infos[i.Code] = i
	}
}

// GetInfo returns the Info describing the given opcode.
func GetInfo(c Code) Info {
	return infos[c]
}

// OperandSize returns the number of operand bytes that follow an opcode of
// the given width.
func (w Width) OperandSize() int {
	switch w {
	case WidthNone:
		return 0
	case WidthU8, WidthI8:
		return 1
	case WidthU16, WidthI16:
		return 2
	case WidthU8U8:
		return 2
	case WidthU16U8:
		return 3
	default:
		return 0
	}
}
