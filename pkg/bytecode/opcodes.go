package bytecode

import "fmt"

// Opcode is a single-byte instruction tag. Every instruction carries one
// u32 operand; opcodes that do not need it ignore it.
type Opcode byte

const (
	// ========================================================================
	// Core set (0x01-0x1E). These values are part of the .nac format.
	// ========================================================================

	OpLoadConst          Opcode = 0x01 // push Constants[arg]
	OpLoadName           Opcode = 0x02 // push namespace/global/builtin Names[arg]
	OpStoreName          Opcode = 0x03 // pop into namespace/global Names[arg]
	OpCallFunc           Opcode = 0x04 // [f, a1..an] -> result; arg = n
	OpReturn             Opcode = 0x05 // pop and return from the frame
	OpJumpIfFalse        Opcode = 0x06 // pop; jump to arg if falsy
	OpJump               Opcode = 0x07 // jump to arg
	OpPop                Opcode = 0x08 // discard TOS
	OpBinaryAdd          Opcode = 0x09 // a + b
	OpBinarySub          Opcode = 0x0A // a - b
	OpBinaryMul          Opcode = 0x0B // a * b
	OpBinaryDiv          Opcode = 0x0C // a / b (always float)
	OpBinaryMod          Opcode = 0x0D // a % b
	OpBinaryEqual        Opcode = 0x0E // a == b
	OpBinaryNotEqual     Opcode = 0x0F // a != b
	OpBinaryLess         Opcode = 0x10 // a < b
	OpBinaryLessEqual    Opcode = 0x11 // a <= b
	OpBinaryGreater      Opcode = 0x12 // a > b
	OpBinaryGreaterEqual Opcode = 0x13 // a >= b
	OpPrint              Opcode = 0x14 // pop arg values, print them, push None
	OpBuildList          Opcode = 0x15 // pop arg values into a list
	OpBuildDict          Opcode = 0x16 // pop arg key/value pairs into a dict
	OpGetItem            Opcode = 0x17 // [obj, key] -> obj[key]
	OpSetItem            Opcode = 0x18 // [value, obj, key] -> (obj[key] = value)
	OpForIter            Opcode = 0x19 // push next(TOS) or pop TOS and jump to arg
	OpBreakLoop          Opcode = 0x1A // unwind to the innermost loop, jump to its break target
	OpContinueLoop       Opcode = 0x1B // unwind to the innermost loop, jump to its continue target
	OpSetupLoop          Opcode = 0x1C // push Loop block; break = arg, continue = next instruction
	OpPopBlock           Opcode = 0x1D // pop the innermost block
	OpAwait              Opcode = 0x1E // pop awaitable, suspend to the scheduler, push result

	// ========================================================================
	// Stack manipulation (0x20-0x2F)
	// ========================================================================

	OpNop  Opcode = 0x20 // no operation
	OpDup  Opcode = 0x21 // duplicate TOS
	OpRot2 Opcode = 0x22 // swap the two top values
	OpRot3 Opcode = 0x23 // [a, b, c] -> [c, a, b]
	OpLine Opcode = 0x24 // source line marker; arg = line
	OpDup2 Opcode = 0x25 // [a, b] -> [a, b, a, b]

	// ========================================================================
	// Locals and closures (0x30-0x3F)
	// ========================================================================

	OpLoadLocal    Opcode = 0x30 // push local slot arg
	OpStoreLocal   Opcode = 0x31 // pop into local slot arg
	OpDeleteLocal  Opcode = 0x32 // unbind local slot arg (or its cell)
	OpLoadCell     Opcode = 0x33 // push contents of the cell in slot arg
	OpStoreCell    Opcode = 0x34 // pop into the cell in slot arg
	OpLoadUpvalue  Opcode = 0x35 // push contents of upvalue arg
	OpStoreUpvalue Opcode = 0x36 // pop into upvalue arg
	OpDeleteName   Opcode = 0x37 // unbind namespace/global Names[arg]

	// ========================================================================
	// Functions (0x40-0x4F)
	// ========================================================================

	OpFuncEntry    Opcode = 0x40 // function header start; arg = positional count
	OpFuncInfo     Opcode = 0x41 // flags<<24 | kwonly<<16 | local slot count
	OpFuncName     Opcode = 0x42 // Names[arg] is the function name
	OpFuncParam    Opcode = 0x43 // Names[arg&^HasDefault]; HasDefault bit marks a default
	OpFuncCell     Opcode = 0x44 // local slot arg is a cell
	OpFuncCapture  Opcode = 0x45 // FromLocal|slot or upvalue index of the enclosing frame
	OpFuncBody     Opcode = 0x46 // end of header
	OpMakeFunction Opcode = 0x47 // pop defaults, push closure for the header at arg
	OpCallFuncEx   Opcode = 0x48 // [f, args tuple, (kwargs dict if arg&1)] -> result
	OpYield        Opcode = 0x49 // pop value, suspend the generator, push sent value

	// ========================================================================
	// Attributes and items (0x50-0x57)
	// ========================================================================

	OpLoadAttr   Opcode = 0x50 // [obj] -> obj.Names[arg]
	OpStoreAttr  Opcode = 0x51 // [value, obj] -> (obj.Names[arg] = value)
	OpDeleteAttr Opcode = 0x52 // [obj] -> (del obj.Names[arg])
	OpDeleteItem Opcode = 0x53 // [obj, key] -> (del obj[key])
	OpBuildSlice Opcode = 0x54 // pop arg (2 or 3) bounds, push slice

	// ========================================================================
	// Additional operators (0x58-0x6F)
	// ========================================================================

	OpBinaryFloorDiv Opcode = 0x58 // a // b
	OpBinaryPow      Opcode = 0x59 // a ** b
	OpBinaryMatMul   Opcode = 0x5A // a @ b
	OpBinaryBitAnd   Opcode = 0x5B // a & b
	OpBinaryBitOr    Opcode = 0x5C // a | b
	OpBinaryBitXor   Opcode = 0x5D // a ^ b
	OpBinaryLShift   Opcode = 0x5E // a << b
	OpBinaryRShift   Opcode = 0x5F // a >> b
	OpBinaryIn       Opcode = 0x60 // a in b
	OpBinaryNotIn    Opcode = 0x61 // a not in b
	OpBinaryIs       Opcode = 0x62 // a is b
	OpBinaryIsNot    Opcode = 0x63 // a is not b
	OpUnaryNeg       Opcode = 0x64 // -a
	OpUnaryPos       Opcode = 0x65 // +a
	OpUnaryNot       Opcode = 0x66 // not a
	OpUnaryInvert    Opcode = 0x67 // ~a

	// ========================================================================
	// Short circuit jumps (0x70-0x77)
	// ========================================================================

	OpJumpIfTrue       Opcode = 0x70 // pop; jump to arg if truthy
	OpJumpIfFalseOrPop Opcode = 0x71 // jump to arg keeping TOS if falsy, else pop
	OpJumpIfTrueOrPop  Opcode = 0x72 // jump to arg keeping TOS if truthy, else pop

	// ========================================================================
	// Builders (0x78-0x87)
	// ========================================================================

	OpBuildTuple   Opcode = 0x78 // pop arg values into a tuple
	OpBuildSet     Opcode = 0x79 // pop arg values into a set
	OpListAppend   Opcode = 0x7A // pop v; append to the list arg slots down
	OpListExtend   Opcode = 0x7B // pop iterable; extend the list or set arg slots down
	OpListToTuple  Opcode = 0x7C // replace the list on TOS with a tuple
	OpSetAdd       Opcode = 0x7D // pop v; add to the set arg slots down
	OpDictInsert   Opcode = 0x7E // pop k, v; insert into the dict arg slots down
	OpDictMerge    Opcode = 0x7F // pop mapping; merge into the dict arg slots down
	OpDictRest     Opcode = 0x80 // [mapping, keys tuple] -> copy without keys
	OpBuildString  Opcode = 0x81 // concatenate arg strings
	OpFormatValue  Opcode = 0x82 // format TOS; arg = conversion | FormatHasSpec
	OpBuildElement Opcode = 0x83 // [tag, props, c1..cn] -> element; arg = n

	// ========================================================================
	// Iteration and unpacking (0x88-0x8F)
	// ========================================================================

	OpGetIter       Opcode = 0x88 // replace TOS with iter(TOS)
	OpUnpackSeq     Opcode = 0x89 // pop sequence, push arg items (first on top)
	OpUnpackEx      Opcode = 0x8A // before | after<<8 items around a starred list
	OpYieldFromIter Opcode = 0x8B // FOR_ITER, but leave the iterator's return value when exhausted

	// ========================================================================
	// Pattern tests (0x90-0x97)
	// ========================================================================

	OpMatchSeq    Opcode = 0x90 // [s] -> [s, is sequence of length arg&^MatchAtLeast]
	OpMatchMap    Opcode = 0x91 // [s] -> [s, is mapping]
	OpMatchClass  Opcode = 0x92 // [s, cls] -> [s, isinstance(s, cls)]
	OpGetMatchArg Opcode = 0x93 // [s, cls] -> [value, found]; arg = index or MatchKeyword|name

	// ========================================================================
	// Exceptions (0x98-0x9F)
	// ========================================================================

	OpSetupExcept  Opcode = 0x98 // push Except block with handler arg
	OpSetupFinally Opcode = 0x99 // push Finally block with handler arg
	OpPopExcept    Opcode = 0x9A // leave the innermost handler
	OpRaise        Opcode = 0x9B // arg 0 re-raise, 1 raise TOS, 2 raise TOS1 from TOS
	OpExceptMatch  Opcode = 0x9C // [type] -> [handled exception matches type]
	OpEndFinally   Opcode = 0x9D // leave a finally handler, re-raising a pending exception
	OpLoadExc      Opcode = 0x9E // push the handled exception
	OpWithExit     Opcode = 0x9F // pop __exit__ and call it with the pending exception

	// ========================================================================
	// Classes and modules (0xA0-0xA7)
	// ========================================================================

	OpBuildClass  Opcode = 0xA0 // [body, name, b1..bn] -> class; arg = n
	OpImportName  Opcode = 0xA1 // push module Names[arg]
	OpImportFrom  Opcode = 0xA2 // [m] -> [m, m.Names[arg]]
	OpImportStar  Opcode = 0xA3 // pop module, bind its public names
	OpExport      Opcode = 0xA4 // mark Names[arg] exported
)

// Operand flag bits.
const (
	HasDefault    uint32 = 1 << 31 // FuncParam: parameter has a default value
	FromLocal     uint32 = 1 << 31 // FuncCapture: capture the enclosing local cell
	MatchAtLeast  uint32 = 1 << 31 // MatchSeq: length is a lower bound
	MatchKeyword  uint32 = 1 << 31 // GetMatchArg: operand is a name index
	FormatHasSpec uint32 = 1 << 2  // FormatValue: a format spec string is on TOS
	CallHasKwargs uint32 = 1       // CallFuncEx: a kwargs dict is on TOS
)

// FormatValue conversions (low two bits of the operand).
const (
	ConvNone  uint32 = 0
	ConvStr   uint32 = 1
	ConvRepr  uint32 = 2
	ConvASCII uint32 = 3
)

// OperandKind says how an instruction's operand is interpreted.
type OperandKind uint8

const (
	OperandNone  OperandKind = iota // ignored
	OperandConst                    // constant pool index
	OperandName                     // name table index
	OperandJump                     // absolute instruction index
	OperandCount                    // number of stack values
	OperandSlot                     // local slot or upvalue index
	OperandFunc                     // index of a FuncEntry instruction
	OperandRaw                      // packed or opcode specific
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string      // Human-readable name
	StackPop  int         // How many values popped from stack (-1 = variable)
	StackPush int         // How many values pushed to stack (-1 = variable)
	Operand   OperandKind // Operand interpretation
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Core
	OpLoadConst:          {"LOAD_CONST", 0, 1, OperandConst},
	OpLoadName:           {"LOAD_NAME", 0, 1, OperandName},
	OpStoreName:          {"STORE_NAME", 1, 0, OperandName},
	OpCallFunc:           {"CALL_FUNC", -1, 1, OperandCount},
	OpReturn:             {"RETURN", 1, 0, OperandNone},
	OpJumpIfFalse:        {"JUMP_IF_FALSE", 1, 0, OperandJump},
	OpJump:               {"JUMP", 0, 0, OperandJump},
	OpPop:                {"POP", 1, 0, OperandNone},
	OpBinaryAdd:          {"BINARY_ADD", 2, 1, OperandNone},
	OpBinarySub:          {"BINARY_SUB", 2, 1, OperandNone},
	OpBinaryMul:          {"BINARY_MUL", 2, 1, OperandNone},
	OpBinaryDiv:          {"BINARY_DIV", 2, 1, OperandNone},
	OpBinaryMod:          {"BINARY_MOD", 2, 1, OperandNone},
	OpBinaryEqual:        {"BINARY_EQUAL", 2, 1, OperandNone},
	OpBinaryNotEqual:     {"BINARY_NOT_EQUAL", 2, 1, OperandNone},
	OpBinaryLess:         {"BINARY_LESS", 2, 1, OperandNone},
	OpBinaryLessEqual:    {"BINARY_LESS_EQUAL", 2, 1, OperandNone},
	OpBinaryGreater:      {"BINARY_GREATER", 2, 1, OperandNone},
	OpBinaryGreaterEqual: {"BINARY_GREATER_EQUAL", 2, 1, OperandNone},
	OpPrint:              {"PRINT", -1, 1, OperandCount},
	OpBuildList:          {"BUILD_LIST", -1, 1, OperandCount},
	OpBuildDict:          {"BUILD_DICT", -1, 1, OperandCount},
	OpGetItem:            {"GET_ITEM", 2, 1, OperandNone},
	OpSetItem:            {"SET_ITEM", 3, 0, OperandNone},
	OpForIter:            {"FOR_ITER", 1, -1, OperandJump},
	OpBreakLoop:          {"BREAK_LOOP", 0, 0, OperandNone},
	OpContinueLoop:       {"CONTINUE_LOOP", 0, 0, OperandNone},
	OpSetupLoop:          {"SETUP_LOOP", 0, 0, OperandJump},
	OpPopBlock:           {"POP_BLOCK", 0, 0, OperandNone},
	OpAwait:              {"AWAIT", 1, 1, OperandNone},

	// Stack
	OpNop:  {"NOP", 0, 0, OperandNone},
	OpDup:  {"DUP", 1, 2, OperandNone},
	OpRot2: {"ROT_TWO", 2, 2, OperandNone},
	OpRot3: {"ROT_THREE", 3, 3, OperandNone},
	OpLine: {"LINE", 0, 0, OperandRaw},
	OpDup2: {"DUP_TWO", 2, 4, OperandNone},

	// Locals and closures
	OpLoadLocal:    {"LOAD_LOCAL", 0, 1, OperandSlot},
	OpStoreLocal:   {"STORE_LOCAL", 1, 0, OperandSlot},
	OpDeleteLocal:  {"DELETE_LOCAL", 0, 0, OperandSlot},
	OpLoadCell:     {"LOAD_CELL", 0, 1, OperandSlot},
	OpStoreCell:    {"STORE_CELL", 1, 0, OperandSlot},
	OpLoadUpvalue:  {"LOAD_UPVALUE", 0, 1, OperandSlot},
	OpStoreUpvalue: {"STORE_UPVALUE", 1, 0, OperandSlot},
	OpDeleteName:   {"DELETE_NAME", 0, 0, OperandName},

	// Functions
	OpFuncEntry:    {"FUNC_ENTRY", 0, 0, OperandCount},
	OpFuncInfo:     {"FUNC_INFO", 0, 0, OperandRaw},
	OpFuncName:     {"FUNC_NAME", 0, 0, OperandName},
	OpFuncParam:    {"FUNC_PARAM", 0, 0, OperandRaw},
	OpFuncCell:     {"FUNC_CELL", 0, 0, OperandSlot},
	OpFuncCapture:  {"FUNC_CAPTURE", 0, 0, OperandRaw},
	OpFuncBody:     {"FUNC_BODY", 0, 0, OperandNone},
	OpMakeFunction: {"MAKE_FUNCTION", -1, 1, OperandFunc},
	OpCallFuncEx:   {"CALL_FUNC_EX", -1, 1, OperandRaw},
	OpYield:        {"YIELD", 1, 1, OperandNone},

	// Attributes and items
	OpLoadAttr:   {"LOAD_ATTR", 1, 1, OperandName},
	OpStoreAttr:  {"STORE_ATTR", 2, 0, OperandName},
	OpDeleteAttr: {"DELETE_ATTR", 1, 0, OperandName},
	OpDeleteItem: {"DELETE_ITEM", 2, 0, OperandNone},
	OpBuildSlice: {"BUILD_SLICE", -1, 1, OperandCount},

	// Operators
	OpBinaryFloorDiv: {"BINARY_FLOOR_DIV", 2, 1, OperandNone},
	OpBinaryPow:      {"BINARY_POW", 2, 1, OperandNone},
	OpBinaryMatMul:   {"BINARY_MATMUL", 2, 1, OperandNone},
	OpBinaryBitAnd:   {"BINARY_BIT_AND", 2, 1, OperandNone},
	OpBinaryBitOr:    {"BINARY_BIT_OR", 2, 1, OperandNone},
	OpBinaryBitXor:   {"BINARY_BIT_XOR", 2, 1, OperandNone},
	OpBinaryLShift:   {"BINARY_LSHIFT", 2, 1, OperandNone},
	OpBinaryRShift:   {"BINARY_RSHIFT", 2, 1, OperandNone},
	OpBinaryIn:       {"BINARY_IN", 2, 1, OperandNone},
	OpBinaryNotIn:    {"BINARY_NOT_IN", 2, 1, OperandNone},
	OpBinaryIs:       {"BINARY_IS", 2, 1, OperandNone},
	OpBinaryIsNot:    {"BINARY_IS_NOT", 2, 1, OperandNone},
	OpUnaryNeg:       {"UNARY_NEG", 1, 1, OperandNone},
	OpUnaryPos:       {"UNARY_POS", 1, 1, OperandNone},
	OpUnaryNot:       {"UNARY_NOT", 1, 1, OperandNone},
	OpUnaryInvert:    {"UNARY_INVERT", 1, 1, OperandNone},

	// Short circuit
	OpJumpIfTrue:       {"JUMP_IF_TRUE", 1, 0, OperandJump},
	OpJumpIfFalseOrPop: {"JUMP_IF_FALSE_OR_POP", 1, -1, OperandJump},
	OpJumpIfTrueOrPop:  {"JUMP_IF_TRUE_OR_POP", 1, -1, OperandJump},

	// Builders
	OpBuildTuple:   {"BUILD_TUPLE", -1, 1, OperandCount},
	OpBuildSet:     {"BUILD_SET", -1, 1, OperandCount},
	OpListAppend:   {"LIST_APPEND", 1, 0, OperandCount},
	OpListExtend:   {"LIST_EXTEND", 1, 0, OperandCount},
	OpListToTuple:  {"LIST_TO_TUPLE", 1, 1, OperandNone},
	OpSetAdd:       {"SET_ADD", 1, 0, OperandCount},
	OpDictInsert:   {"DICT_INSERT", 2, 0, OperandCount},
	OpDictMerge:    {"DICT_MERGE", 1, 0, OperandCount},
	OpDictRest:     {"DICT_REST", 2, 1, OperandNone},
	OpBuildString:  {"BUILD_STRING", -1, 1, OperandCount},
	OpFormatValue:  {"FORMAT_VALUE", -1, 1, OperandRaw},
	OpBuildElement: {"BUILD_ELEMENT", -1, 1, OperandCount},

	// Iteration
	OpGetIter:       {"GET_ITER", 1, 1, OperandNone},
	OpUnpackSeq:     {"UNPACK_SEQ", 1, -1, OperandCount},
	OpUnpackEx:      {"UNPACK_EX", 1, -1, OperandRaw},
	OpYieldFromIter: {"YIELD_FROM_ITER", 1, -1, OperandJump},

	// Patterns
	OpMatchSeq:    {"MATCH_SEQ", 1, 2, OperandRaw},
	OpMatchMap:    {"MATCH_MAP", 1, 2, OperandNone},
	OpMatchClass:  {"MATCH_CLASS", 2, 2, OperandNone},
	OpGetMatchArg: {"GET_MATCH_ARG", 2, 2, OperandRaw},

	// Exceptions
	OpSetupExcept:  {"SETUP_EXCEPT", 0, 0, OperandJump},
	OpSetupFinally: {"SETUP_FINALLY", 0, 0, OperandJump},
	OpPopExcept:    {"POP_EXCEPT", 0, 0, OperandNone},
	OpRaise:        {"RAISE", -1, 0, OperandCount},
	OpExceptMatch:  {"EXCEPT_MATCH", 1, 1, OperandNone},
	OpEndFinally:   {"END_FINALLY", 0, 0, OperandNone},
	OpLoadExc:      {"LOAD_EXC", 0, 1, OperandNone},
	OpWithExit:     {"WITH_EXIT", 1, 0, OperandNone},

	// Classes and modules
	OpBuildClass: {"BUILD_CLASS", -1, 1, OperandCount},
	OpImportName: {"IMPORT_NAME", 0, 1, OperandName},
	OpImportFrom: {"IMPORT_FROM", 1, 2, OperandName},
	OpImportStar: {"IMPORT_STAR", 1, 0, OperandNone},
	OpExport:     {"EXPORT", 0, 0, OperandName},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump returns true if the operand of op is an instruction index.
func (op Opcode) IsJump() bool {
	return GetOpcodeInfo(op).Operand == OperandJump
}

// IsFuncHeader returns true for the instructions that make up a function header.
func (op Opcode) IsFuncHeader() bool {
	return op >= OpFuncEntry && op <= OpFuncBody
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
