package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Format version of .nac files produced by this package. A module with a
// newer major version is rejected; minor versions are backwards compatible.
const (
	VersionMajor uint8 = 1
	VersionMinor uint8 = 0
)

// Magic bytes for bytecode files: "NAG\0".
var Magic = []byte{'N', 'A', 'G', 0}

// ErrCorrupt is wrapped by every decoding and validation failure.
var ErrCorrupt = errors.New("corrupt bytecode module")

func corruptf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// ConstKind is the type tag of a constant pool entry.
type ConstKind uint8

const (
	ConstInt    ConstKind = 0
	ConstFloat  ConstKind = 1
	ConstString ConstKind = 2
	ConstBool   ConstKind = 3
	ConstNone   ConstKind = 4
)

func (k ConstKind) String() string {
	switch k {
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	case ConstBool:
		return "bool"
	case ConstNone:
		return "none"
	default:
		return fmt.Sprintf("ConstKind(%d)", uint8(k))
	}
}

// Constant is one constant pool entry. Only the field selected by Kind is
// meaningful.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// IntConst, FloatConst, StringConst, BoolConst and NoneConst build constants.
func IntConst(v int64) Constant { return Constant{Kind: ConstInt, Int: v} }
func FloatConst(v float64) Constant { return Constant{Kind: ConstFloat, Float: v} }
func StringConst(v string) Constant { return Constant{Kind: ConstString, Str: v} }
func BoolConst(v bool) Constant { return Constant{Kind: ConstBool, Bool: v} }
func NoneConst() Constant { return Constant{Kind: ConstNone} }

// String renders the constant the way source code would spell it.
func (c Constant) String() string {
	switch c.Kind {
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case ConstString:
		return strconv.Quote(c.Str)
	case ConstBool:
		if c.Bool {
			return "True"
		}
		return "False"
	case ConstNone:
		return "None"
	}
	return c.Kind.String()
}

// constKey identifies a constant for deduplication. Floats are keyed by
// their bit pattern so 0.0 and -0.0 stay distinct.
type constKey struct {
	kind ConstKind
	bits uint64
	str  string
}

func (c Constant) key() constKey {
	k := constKey{kind: c.Kind}
	switch c.Kind {
	case ConstInt:
		k.bits = uint64(c.Int)
	case ConstFloat:
		k.bits = math.Float64bits(c.Float)
	case ConstString:
		k.str = c.Str
	case ConstBool:
		if c.Bool {
			k.bits = 1
		}
	}
	return k
}

// Instruction is one opcode with its operand.
type Instruction struct {
	Op  Opcode
	Arg uint32
}

func (in Instruction) String() string {
	if GetOpcodeInfo(in.Op).Operand == OperandNone {
		return in.Op.String()
	}
	return fmt.Sprintf("%s %d", in.Op, in.Arg)
}

// Module is a compiled compilation unit: constant pool, name table and a
// flat instruction array. Top-level code starts at instruction 0; function
// bodies are embedded behind jumps.
type Module struct {
	Major        uint8
	Minor        uint8
	Constants    []Constant
	Names        []string
	Instructions []Instruction

	constIndex map[constKey]uint32
	nameIndex  map[string]uint32
}

// NewModule creates an empty module with the current version.
func NewModule() *Module {
	return &Module{
		Major:        VersionMajor,
		Minor:        VersionMinor,
		Constants:    make([]Constant, 0, 16),
		Names:        make([]string, 0, 16),
		Instructions: make([]Instruction, 0, 256),
	}
}

// AddConstant adds a constant to the pool and returns its index.
// If the constant already exists, returns the existing index.
func (m *Module) AddConstant(c Constant) uint32 {
	if m.constIndex == nil {
		m.constIndex = make(map[constKey]uint32, len(m.Constants))
		for i, existing := range m.Constants {
			if _, dup := m.constIndex[existing.key()]; !dup {
				m.constIndex[existing.key()] = uint32(i)
			}
		}
	}
	k := c.key()
	if idx, ok := m.constIndex[k]; ok {
		return idx
	}
	idx := uint32(len(m.Constants))
	m.Constants = append(m.Constants, c)
	m.constIndex[k] = idx
	return idx
}

// AddName adds an identifier to the name table and returns its index.
// If the name already exists, returns the existing index.
func (m *Module) AddName(name string) uint32 {
	if m.nameIndex == nil {
		m.nameIndex = make(map[string]uint32, len(m.Names))
		for i, existing := range m.Names {
			if _, dup := m.nameIndex[existing]; !dup {
				m.nameIndex[existing] = uint32(i)
			}
		}
	}
	if idx, ok := m.nameIndex[name]; ok {
		return idx
	}
	idx := uint32(len(m.Names))
	m.Names = append(m.Names, name)
	m.nameIndex[name] = idx
	return idx
}

// Emit appends an instruction and returns its index.
func (m *Module) Emit(op Opcode, arg uint32) int {
	m.Instructions = append(m.Instructions, Instruction{Op: op, Arg: arg})
	return len(m.Instructions) - 1
}

// Len returns the number of instructions.
func (m *Module) Len() int {
	return len(m.Instructions)
}

// ---------------------------------------------------------------------------
// Binary encoding
// ---------------------------------------------------------------------------

// MarshalBinary encodes the module in .nac format:
//
//	[magic:4] [major:1] [minor:1]
//	[const_count:4] ([tag:1] [payload])...
//	[name_count:4] ([len:4] [utf8])...
//	[instr_count:4] ([op:1] [arg:4])...
//
// All integers are little endian.
func (m *Module) MarshalBinary() ([]byte, error) {
	size := 6 + 12 + len(m.Instructions)*5 + len(m.Constants)*9
	for _, n := range m.Names {
		size += 4 + len(n)
	}
	buf := make([]byte, 0, size)

	buf = append(buf, Magic...)
	buf = append(buf, m.Major, m.Minor)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Constants)))
	for i, c := range m.Constants {
		buf = append(buf, byte(c.Kind))
		switch c.Kind {
		case ConstInt:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Int))
		case ConstFloat:
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c.Float))
		case ConstString:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Str)))
			buf = append(buf, c.Str...)
		case ConstBool:
			if c.Bool {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case ConstNone:
		default:
			return nil, fmt.Errorf("bytecode: constant %d has unknown kind %d", i, c.Kind)
		}
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Names)))
	for _, n := range m.Names {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(n)))
		buf = append(buf, n...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Instructions)))
	for _, in := range m.Instructions {
		buf = append(buf, byte(in.Op))
		buf = binary.LittleEndian.AppendUint32(buf, in.Arg)
	}
	return buf, nil
}

// Encode writes the .nac encoding of the module to w.
func (m *Module) Encode(w io.Writer) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// reader walks a byte slice, remembering the first short read.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = corruptf("unexpected end of data reading %s at offset %d", what, r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8(what string) uint8 {
	if b := r.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u32(what string) uint32 {
	if b := r.take(4, what); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64(what string) uint64 {
	if b := r.take(8, what); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// count reads a u32 element count and sanity checks it against the
// remaining input, given the minimum encoded size of one element.
func (r *reader) count(minSize int, what string) int {
	n := r.u32(what + " count")
	if r.err == nil && uint64(n)*uint64(minSize) > uint64(len(r.data)-r.pos) {
		r.err = corruptf("%s count %d exceeds remaining data", what, n)
	}
	return int(n)
}

// UnmarshalBinary decodes a module from .nac bytes. It checks framing and
// version only; call Validate before executing untrusted modules.
func (m *Module) UnmarshalBinary(data []byte) error {
	if len(data) < 6 {
		return corruptf("module too short: need at least 6 bytes, got %d", len(data))
	}
	if !bytes.Equal(data[:4], Magic) {
		return corruptf("invalid magic: expected %q, got %q", Magic, data[:4])
	}
	r := &reader{data: data, pos: 4}
	major, minor := r.u8("major version"), r.u8("minor version")
	if major > VersionMajor {
		return fmt.Errorf("bytecode: module version %d.%d is newer than supported version %d.%d",
			major, minor, VersionMajor, VersionMinor)
	}

	nconst := r.count(1, "constant")
	consts := make([]Constant, 0, nconst)
	for i := 0; i < nconst && r.err == nil; i++ {
		c := Constant{Kind: ConstKind(r.u8("constant tag"))}
		switch c.Kind {
		case ConstInt:
			c.Int = int64(r.u64("int constant"))
		case ConstFloat:
			c.Float = math.Float64frombits(r.u64("float constant"))
		case ConstString:
			n := r.u32("string length")
			c.Str = string(r.take(int(n), "string constant"))
		case ConstBool:
			c.Bool = r.u8("bool constant") != 0
		case ConstNone:
		default:
			if r.err == nil {
				return corruptf("constant %d has unknown tag %d", i, c.Kind)
			}
		}
		consts = append(consts, c)
	}

	nname := r.count(4, "name")
	names := make([]string, 0, nname)
	for i := 0; i < nname && r.err == nil; i++ {
		n := r.u32("name length")
		names = append(names, string(r.take(int(n), "name")))
	}

	ninstr := r.count(5, "instruction")
	instrs := make([]Instruction, 0, ninstr)
	for i := 0; i < ninstr && r.err == nil; i++ {
		op := Opcode(r.u8("opcode"))
		instrs = append(instrs, Instruction{Op: op, Arg: r.u32("operand")})
	}
	if r.err != nil {
		return r.err
	}
	if r.pos != len(data) {
		return corruptf("%d trailing bytes after instructions", len(data)-r.pos)
	}

	*m = Module{Major: major, Minor: minor, Constants: consts, Names: names, Instructions: instrs}
	return nil
}

// Decode reads a .nac module from r.
func Decode(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: read module: %w", err)
	}
	m := &Module{}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks that every opcode is known and every operand that refers
// to the constant pool, the name table, an instruction or a function
// header is in range.
func (m *Module) Validate() error {
	n := len(m.Instructions)
	if n == 0 {
		return corruptf("module has no instructions")
	}
	for i, in := range m.Instructions {
		info, ok := opcodeInfoTable[in.Op]
		if !ok {
			return corruptf("instruction %d: unknown opcode 0x%02X", i, byte(in.Op))
		}
		switch info.Operand {
		case OperandConst:
			if int(in.Arg) >= len(m.Constants) {
				return corruptf("instruction %d: %s constant index %d out of range", i, in.Op, in.Arg)
			}
		case OperandName:
			if int(in.Arg) >= len(m.Names) {
				return corruptf("instruction %d: %s name index %d out of range", i, in.Op, in.Arg)
			}
		case OperandJump:
			if int(in.Arg) >= n {
				return corruptf("instruction %d: %s target %d out of range", i, in.Op, in.Arg)
			}
		case OperandFunc:
			if _, err := m.Function(int(in.Arg)); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		}
		switch in.Op {
		case OpFuncEntry:
			if _, err := m.Function(i); err != nil {
				return err
			}
		case OpGetMatchArg:
			if in.Arg&MatchKeyword != 0 && int(in.Arg&^MatchKeyword) >= len(m.Names) {
				return corruptf("instruction %d: GET_MATCH_ARG name index out of range", i)
			}
		case OpBuildSlice:
			if in.Arg != 2 && in.Arg != 3 {
				return corruptf("instruction %d: BUILD_SLICE with %d operands", i, in.Arg)
			}
		}
	}
	return nil
}
