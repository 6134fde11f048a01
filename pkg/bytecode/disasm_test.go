package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleEmpty(t *testing.T) {
	output := NewModule().Disassemble()
	if !strings.Contains(output, "Nagini bytecode v1.0") {
		t.Errorf("Disassembly missing header:\n%s", output)
	}
}

func TestDisassembleModule(t *testing.T) {
	output := sampleModule().DisassembleWithName("sample")

	for _, want := range []string{
		"; === sample ===",
		"; Constants:",
		"int    1",
		"; Names:",
		"; function inc",
		"FUNC_PARAM           step (default)",
		"MAKE_FUNCTION        0002 ; inc",
		"JUMP                 -> 0012",
		"STORE_NAME           0 ; inc",
		"BINARY_ADD",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleInstructionOutOfRange(t *testing.T) {
	if got := NewModule().DisassembleInstruction(3); got != "<end of code>" {
		t.Errorf("got %q", got)
	}
}

func TestDisassembleOperandForms(t *testing.T) {
	m := NewModule()
	m.AddName("x")
	tests := []struct {
		in   Instruction
		want string
	}{
		{Instruction{OpMatchSeq, 2 | MatchAtLeast}, "len>=2"},
		{Instruction{OpMatchSeq, 3}, "len==3"},
		{Instruction{OpUnpackEx, 1 | 2<<8}, "before=1 after=2"},
		{Instruction{OpGetMatchArg, 0 | MatchKeyword}, "GET_MATCH_ARG        x"},
		{Instruction{OpFormatValue, ConvRepr | FormatHasSpec}, "!r spec"},
		{Instruction{OpFuncCapture, 3 | FromLocal}, "local 3"},
		{Instruction{OpFuncCapture, 1}, "upvalue 1"},
	}
	for _, tt := range tests {
		m.Instructions = []Instruction{tt.in}
		if got := m.DisassembleInstruction(0); !strings.Contains(got, tt.want) {
			t.Errorf("DisassembleInstruction(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
