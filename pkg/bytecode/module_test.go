package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

// sampleModule builds a module with one function `inc(n, step=1)`.
func sampleModule() *Module {
	m := NewModule()
	one := m.AddConstant(IntConst(1))
	none := m.AddConstant(NoneConst())
	inc := m.AddName("inc")

	m.Emit(OpLoadConst, one) // default for step
	skip := m.Emit(OpJump, 0)
	entry := m.Emit(OpFuncEntry, 2)
	m.Emit(OpFuncInfo, PackFuncInfo(0, 0, 2))
	m.Emit(OpFuncName, inc)
	m.Emit(OpFuncParam, m.AddName("n"))
	m.Emit(OpFuncParam, m.AddName("step")|HasDefault)
	m.Emit(OpFuncBody, 0)
	m.Emit(OpLoadLocal, 0)
	m.Emit(OpLoadLocal, 1)
	m.Emit(OpBinaryAdd, 0)
	m.Emit(OpReturn, 0)
	m.Instructions[skip].Arg = uint32(m.Len())
	m.Emit(OpMakeFunction, uint32(entry))
	m.Emit(OpStoreName, inc)
	m.Emit(OpLoadConst, none)
	m.Emit(OpReturn, 0)
	return m
}

func TestModuleAddConstantDeduplicates(t *testing.T) {
	m := NewModule()
	a := m.AddConstant(IntConst(5))
	b := m.AddConstant(StringConst("5"))
	c := m.AddConstant(IntConst(5))
	d := m.AddConstant(FloatConst(5))

	if a != c {
		t.Errorf("duplicate int constant got index %d, want %d", c, a)
	}
	if a == b || a == d || b == d {
		t.Errorf("distinct constants share an index: %d %d %d", a, b, d)
	}
	if len(m.Constants) != 3 {
		t.Errorf("got %d constants, want 3", len(m.Constants))
	}

	zero := m.AddConstant(FloatConst(0))
	negZero := m.AddConstant(FloatConst(math.Copysign(0, -1)))
	if zero == negZero {
		t.Error("0.0 and -0.0 must be distinct constants")
	}
}

func TestModuleAddNameDeduplicates(t *testing.T) {
	m := NewModule()
	if m.AddName("x") != 0 || m.AddName("y") != 1 || m.AddName("x") != 0 {
		t.Errorf("names = %v", m.Names)
	}
}

func TestModuleRoundTrip(t *testing.T) {
	m := sampleModule()
	m.AddConstant(FloatConst(2.5))
	m.AddConstant(StringConst("héllo"))
	m.AddConstant(BoolConst(true))
	m.AddConstant(IntConst(-42))

	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Major != VersionMajor || got.Minor != VersionMinor {
		t.Errorf("version = %d.%d", got.Major, got.Minor)
	}
	if len(got.Constants) != len(m.Constants) {
		t.Fatalf("got %d constants, want %d", len(got.Constants), len(m.Constants))
	}
	for i := range m.Constants {
		if got.Constants[i] != m.Constants[i] {
			t.Errorf("constant %d = %+v, want %+v", i, got.Constants[i], m.Constants[i])
		}
	}
	if strings.Join(got.Names, ",") != strings.Join(m.Names, ",") {
		t.Errorf("names = %v, want %v", got.Names, m.Names)
	}
	if len(got.Instructions) != len(m.Instructions) {
		t.Fatalf("got %d instructions, want %d", len(got.Instructions), len(m.Instructions))
	}
	for i := range m.Instructions {
		if got.Instructions[i] != m.Instructions[i] {
			t.Errorf("instruction %d = %v, want %v", i, got.Instructions[i], m.Instructions[i])
		}
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	// Decoded modules keep deduplicating.
	if idx := got.AddConstant(IntConst(1)); idx != 0 {
		t.Errorf("AddConstant after decode = %d, want 0", idx)
	}
}

func TestModuleEncodingLayout(t *testing.T) {
	m := NewModule()
	m.AddConstant(IntConst(7))
	m.AddName("x")
	m.Emit(OpLoadConst, 0)
	m.Emit(OpReturn, 0)

	data, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{'N', 'A', 'G', 0, 1, 0}
	want = binary.LittleEndian.AppendUint32(want, 1)
	want = append(want, 0)
	want = binary.LittleEndian.AppendUint64(want, 7)
	want = binary.LittleEndian.AppendUint32(want, 1)
	want = binary.LittleEndian.AppendUint32(want, 1)
	want = append(want, 'x')
	want = binary.LittleEndian.AppendUint32(want, 2)
	want = append(want, 0x01, 0, 0, 0, 0)
	want = append(want, 0x05, 0, 0, 0, 0)

	if !bytes.Equal(data, want) {
		t.Errorf("encoding =\n% x\nwant\n% x", data, want)
	}
}

func TestModuleDecodeErrors(t *testing.T) {
	valid, err := sampleModule().MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	badMagic := append([]byte{}, valid...)
	badMagic[0] = 'X'

	newer := append([]byte{}, valid...)
	newer[4] = VersionMajor + 1

	badTag := []byte{'N', 'A', 'G', 0, 1, 0, 1, 0, 0, 0, 9}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"too short", []byte("NAG"), "too short"},
		{"bad magic", badMagic, "magic"},
		{"newer major version", newer, "newer"},
		{"truncated", valid[:len(valid)-3], "exceeds remaining"},
		{"trailing bytes", append(append([]byte{}, valid...), 0), "trailing"},
		{"unknown constant tag", badTag, "unknown tag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Module
			err := m.UnmarshalBinary(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestModuleMinorVersionAccepted(t *testing.T) {
	data, err := sampleModule().MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	data[5] = VersionMinor + 3
	var m Module
	if err := m.UnmarshalBinary(data); err != nil {
		t.Errorf("newer minor version rejected: %v", err)
	}
}

func TestModuleValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Module)
	}{
		{"unknown opcode", func(m *Module) { m.Instructions[0].Op = 0xEE }},
		{"constant out of range", func(m *Module) { m.Instructions[0].Arg = 99 }},
		{"jump out of range", func(m *Module) { m.Instructions[1].Arg = 1000 }},
		{"name out of range", func(m *Module) { m.Emit(OpLoadName, 50) }},
		{"make function without header", func(m *Module) { m.Emit(OpMakeFunction, 0) }},
		{"broken header", func(m *Module) { m.Instructions[3].Op = OpNop }},
		{"param count mismatch", func(m *Module) { m.Instructions[2].Arg = 3 }},
		{"bad slice arity", func(m *Module) { m.Emit(OpBuildSlice, 4) }},
	}

	if err := sampleModule().Validate(); err != nil {
		t.Fatalf("sample module invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			tt.mutate(m)
			err := m.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("error %v does not wrap ErrCorrupt", err)
			}
		})
	}

	if err := NewModule().Validate(); err == nil {
		t.Error("empty module should not validate")
	}
}

func TestFunctionHeader(t *testing.T) {
	m := sampleModule()
	h, err := m.Function(2)
	if err != nil {
		t.Fatalf("Function: %v", err)
	}
	if h.Name != "inc" || h.PosCount != 2 || h.LocalCount != 2 || h.Body != 8 {
		t.Errorf("header = %+v", h)
	}
	if len(h.Params) != 2 || h.Params[0].HasDefault || !h.Params[1].HasDefault {
		t.Errorf("params = %+v", h.Params)
	}
	if h.DefaultCount() != 1 {
		t.Errorf("DefaultCount() = %d, want 1", h.DefaultCount())
	}
	if _, err := m.Function(0); err == nil {
		t.Error("expected error for non-header instruction")
	}
}
