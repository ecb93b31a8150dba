package chunk

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP  Opcode = 0 // no operation
	OpPOP  Opcode = 1 // discard top of stack
	OpDUP  Opcode = 2 // duplicate top of stack
	OpDUP2 Opcode = 3 // duplicate the top two values, keeping their order
	OpROT2 Opcode = 4 // swap the top two values
	OpROT3 Opcode = 5 // move top to third position, lift the other two
)

// Constants
const (
	OpDCONST Opcode = 6  // push Double constant (index)
	OpICONST Opcode = 7  // push Integer constant (index)
	OpSCONST Opcode = 8  // push Utf8 constant (index)
	OpFALSE  Opcode = 9  // push false
	OpTRUE   Opcode = 10 // push true
	OpNULL   Opcode = 11 // push null
)

// Unary Operations
const (
	OpNEGATIVE Opcode = 12
	OpPOSITIVE Opcode = 13
	OpNOT      Opcode = 14
)

// Binary Operations
const (
	OpADD        Opcode = 15
	OpSUB        Opcode = 16
	OpMUL        Opcode = 17
	OpDIV        Opcode = 18
	OpMOD        Opcode = 19
	OpINSTANCEOF Opcode = 20
	OpRANGE      Opcode = 21
	OpEQ         Opcode = 22
	OpNOTEQ      Opcode = 23
	OpGT         Opcode = 24
	OpGTEQ       Opcode = 25
	OpLT         Opcode = 26
	OpLTEQ       Opcode = 27
	OpLS         Opcode = 28 // left shift
	OpRS         Opcode = 29 // right shift
)

// Control Flow
const (
	OpPopJumpIfFalse   Opcode = 30 // pop, jump if falsy (jump)
	OpPopJumpIfTrue    Opcode = 31 // pop, jump if truthy (jump)
	OpPopJumpIfNotNull Opcode = 32 // pop, jump if not null (jump)
	OpJumpIfFalse      Opcode = 33 // peek, jump if falsy (jump)
	OpJumpIfTrue       Opcode = 34 // peek, jump if truthy (jump)
	OpJUMP             Opcode = 35 // unconditional jump (jump)
	OpLOOP             Opcode = 36 // backward jump (u16 distance)
)

// Local Variables
const (
	OpLOAD     Opcode = 37 // push slot (u8)
	OpLOAD0    Opcode = 38
	OpLOAD1    Opcode = 39
	OpLOAD2    Opcode = 40
	OpLOAD3    Opcode = 41
	OpLOAD4    Opcode = 42
	OpSTORE    Opcode = 43 // store top into slot (u8), keep top
	OpSTORE0   Opcode = 44
	OpSTORE1   Opcode = 45
	OpSTORE2   Opcode = 46
	OpSTORE3   Opcode = 47
	OpSTORE4   Opcode = 48
	OpPopStore Opcode = 49 // pop into slot (u8)
)

// Upvalues
const (
	OpLoadUpvalue  Opcode = 50 // push captured upvalue (u8)
	OpStoreUpvalue Opcode = 51 // store top into captured upvalue (u8)
)

// Attributes and Items
const (
	OpGetAttr Opcode = 52 // pop object, push object.name (index)
	OpSetAttr Opcode = 53 // pop object, pop value, object.name = value, push value (index)
	OpGetItem Opcode = 54 // pop object, pop key, push object[key]
	OpSetItem Opcode = 55 // pop object, pop key, pop value, object[key] = value, push value
)

// Scopes and Globals
const (
	OpCLOSE        Opcode = 56 // close the upvalues of the listed slots (index of CloseIndexes)
	OpGlobalDefine Opcode = 57 // pop into a new or existing global (index)
	OpGlobalSet    Opcode = 58 // store top into an existing global (index)
	OpGlobalGet    Opcode = 59 // push global (index)
)

// Calls
const (
	OpINVOKE     Opcode = 60 // pop receiver, call receiver.name (u8 argc, index)
	OpCallGlobal Opcode = 61 // call a global (u8 argc, index)
	OpCallSlot   Opcode = 62 // call a local slot (u8 argc, u8 slot)
	OpCallEx     Opcode = 63 // pop callee, call with spread bit-set (u8 argc, index)
	OpCALL       Opcode = 64 // pop callee, call (u8 argc)
	OpReturnNil  Opcode = 65
	OpRETURN     Opcode = 66
)

// Definitions
const (
	OpCLASS       Opcode = 67 // materialize a class (index of ClassInfo, u8 super slot)
	OpSuperGet    Opcode = 68 // pop superclass, pop receiver, push bound method (index)
	OpSuperInvoke Opcode = 69 // pop superclass, pop receiver, call super method (u8 argc, index)
	OpFUN         Opcode = 70 // materialize a function (index of MethodInfo)
)

// Errors
const (
	OpRAISE       Opcode = 71 // pop error and raise it
	OpMatchErrors Opcode = 72 // pop N classes, jump if the error beneath matches none (jump, u8 count)
)

// Modules
const (
	OpImportName Opcode = 73 // pop module, push module.name (index)
	OpIMPORT     Opcode = 74 // pop path, bind loaded module to global (index)
)

// Collections
const (
	OpNewArray   Opcode = 75 // push array with capacity from Integer constant (index)
	OpBuildTuple Opcode = 76 // pop N values into a tuple, top of stack first (u8)
	OpAPPEND     Opcode = 77 // pop N values, top first, onto the array beneath them (u8)
	OpNewMap     Opcode = 78 // push map with capacity from Integer constant (index)
	OpPUT        Opcode = 79 // pop N key-then-value pairs into the map beneath them (u8)
)

// Misc
const (
	OpASSERT Opcode = 80 // pop message, raise AssertionError
	OpPRINT  Opcode = 81 // pop and print unless null
	OpEXIT   Opcode = 82 // halt the VM
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes how one operand of an instruction is encoded.
type OperandKind int

const (
	OperandIndex  OperandKind = iota // variable width pool index
	OperandUint8                     // one unsigned byte
	OperandJump                      // signed big-endian 16-bit offset
	OperandUint16                    // unsigned big-endian 16-bit value
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string        // human-readable name
	Operands    []OperandKind // operand layout, in order
	StackEffect int           // net effect on stack (-1 = variable)
}

var (
	noOperands    []OperandKind
	indexOperand  = []OperandKind{OperandIndex}
	uint8Operand  = []OperandKind{OperandUint8}
	jumpOperand   = []OperandKind{OperandJump}
	argcAndIndex  = []OperandKind{OperandUint8, OperandIndex}
	argcAndUint8  = []OperandKind{OperandUint8, OperandUint8}
	indexAndUint8 = []OperandKind{OperandIndex, OperandUint8}
)

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:  {"NOP", noOperands, 0},
	OpPOP:  {"POP", noOperands, -1},
	OpDUP:  {"DUP", noOperands, 1},
	OpDUP2: {"DUP_2", noOperands, 2},
	OpROT2: {"ROT_2", noOperands, 0},
	OpROT3: {"ROT_3", noOperands, 0},

	OpDCONST: {"DCONST", indexOperand, 1},
	OpICONST: {"ICONST", indexOperand, 1},
	OpSCONST: {"SCONST", indexOperand, 1},
	OpFALSE:  {"FALSE", noOperands, 1},
	OpTRUE:   {"TRUE", noOperands, 1},
	OpNULL:   {"NULL", noOperands, 1},

	OpNEGATIVE: {"NEGATIVE", noOperands, 0},
	OpPOSITIVE: {"POSITIVE", noOperands, 0},
	OpNOT:      {"NOT", noOperands, 0},

	OpADD:        {"ADD", noOperands, -1},
	OpSUB:        {"SUB", noOperands, -1},
	OpMUL:        {"MUL", noOperands, -1},
	OpDIV:        {"DIV", noOperands, -1},
	OpMOD:        {"MOD", noOperands, -1},
	OpINSTANCEOF: {"INSTANCE_OF", noOperands, -1},
	OpRANGE:      {"RANGE", noOperands, -1},
	OpEQ:         {"EQ", noOperands, -1},
	OpNOTEQ:      {"NOTEQ", noOperands, -1},
	OpGT:         {"GT", noOperands, -1},
	OpGTEQ:       {"GTEQ", noOperands, -1},
	OpLT:         {"LT", noOperands, -1},
	OpLTEQ:       {"LTEQ", noOperands, -1},
	OpLS:         {"LS", noOperands, -1},
	OpRS:         {"RS", noOperands, -1},

	OpPopJumpIfFalse:   {"POP_JUMP_IF_FALSE", jumpOperand, -1},
	OpPopJumpIfTrue:    {"POP_JUMP_IF_TRUE", jumpOperand, -1},
	OpPopJumpIfNotNull: {"POP_JUMP_IF_NOT_NULL", jumpOperand, -1},
	OpJumpIfFalse:      {"JUMP_IF_FALSE", jumpOperand, 0},
	OpJumpIfTrue:       {"JUMP_IF_TRUE", jumpOperand, 0},
	OpJUMP:             {"JUMP", jumpOperand, 0},
	OpLOOP:             {"LOOP", []OperandKind{OperandUint16}, 0},

	OpLOAD:     {"LOAD", uint8Operand, 1},
	OpLOAD0:    {"LOAD0", noOperands, 1},
	OpLOAD1:    {"LOAD1", noOperands, 1},
	OpLOAD2:    {"LOAD2", noOperands, 1},
	OpLOAD3:    {"LOAD3", noOperands, 1},
	OpLOAD4:    {"LOAD4", noOperands, 1},
	OpSTORE:    {"STORE", uint8Operand, 0},
	OpSTORE0:   {"STORE0", noOperands, 0},
	OpSTORE1:   {"STORE1", noOperands, 0},
	OpSTORE2:   {"STORE2", noOperands, 0},
	OpSTORE3:   {"STORE3", noOperands, 0},
	OpSTORE4:   {"STORE4", noOperands, 0},
	OpPopStore: {"POP_STORE", uint8Operand, -1},

	OpLoadUpvalue:  {"LOAD_UPVALUE", uint8Operand, 1},
	OpStoreUpvalue: {"STORE_UPVALUE", uint8Operand, 0},

	OpGetAttr: {"GET_ATTR", indexOperand, 0},
	OpSetAttr: {"SET_ATTR", indexOperand, -1},
	OpGetItem: {"GET_ITEM", noOperands, -1},
	OpSetItem: {"SET_ITEM", noOperands, -2},

	OpCLOSE:        {"CLOSE", indexOperand, 0},
	OpGlobalDefine: {"GLOBAL_DEFINE", indexOperand, -1},
	OpGlobalSet:    {"GLOBAL_SET", indexOperand, 0},
	OpGlobalGet:    {"GLOBAL_GET", indexOperand, 1},

	OpINVOKE:     {"INVOKE", argcAndIndex, -1},
	OpCallGlobal: {"CALL_GLOBAL", argcAndIndex, -1},
	OpCallSlot:   {"CALL_SLOT", argcAndUint8, -1},
	OpCallEx:     {"CALL_EX", argcAndIndex, -1},
	OpCALL:       {"CALL", uint8Operand, -1},
	OpReturnNil:  {"RETURN_NIL", noOperands, 0},
	OpRETURN:     {"RETURN", noOperands, -1},

	OpCLASS:       {"CLASS", indexAndUint8, -1},
	OpSuperGet:    {"SUPER_GET", indexOperand, -1},
	OpSuperInvoke: {"SUPER_INVOKE", argcAndIndex, -1},
	OpFUN:         {"FUN", indexOperand, 1},

	OpRAISE:       {"RAISE", noOperands, -1},
	OpMatchErrors: {"MATCH_ERRORS", []OperandKind{OperandJump, OperandUint8}, -1},

	OpImportName: {"IMPORT_NAME", indexOperand, 0},
	OpIMPORT:     {"IMPORT", indexOperand, -1},

	OpNewArray:   {"NEW_ARRAY", indexOperand, 1},
	OpBuildTuple: {"BUILT_TUPLE", uint8Operand, -1},
	OpAPPEND:     {"APPEND", uint8Operand, -1},
	OpNewMap:     {"NEW_MAP", indexOperand, 1},
	OpPUT:        {"PUT", uint8Operand, -1},

	OpASSERT: {"ASSERT", noOperands, -1},
	OpPRINT:  {"PRINT", noOperands, -1},
	OpEXIT:   {"EXIT", noOperands, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// InstructionLength returns the encoded length of the instruction starting at
// pc, including the opcode byte. Pool-index operands are measured in place.
func InstructionLength(code []byte, pc int) int {
	op := Opcode(code[pc])
	n := 1
	for _, kind := range op.Info().Operands {
		switch kind {
		case OperandIndex:
			n += IndexWidthAt(code, pc+n)
		case OperandUint8:
			n++
		case OperandJump, OperandUint16:
			n += 2
		}
	}
	return n
}
