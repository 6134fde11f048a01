package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestCoreOpcodeValues(t *testing.T) {
	tests := []struct {
		op   Opcode
		want byte
	}{
		{OpLoadConst, 0x01},
		{OpLoadName, 0x02},
		{OpStoreName, 0x03},
		{OpCallFunc, 0x04},
		{OpReturn, 0x05},
		{OpJumpIfFalse, 0x06},
		{OpJump, 0x07},
		{OpPop, 0x08},
		{OpBinaryAdd, 0x09},
		{OpBinaryGreaterEqual, 0x13},
		{OpPrint, 0x14},
		{OpBuildList, 0x15},
		{OpBuildDict, 0x16},
		{OpGetItem, 0x17},
		{OpSetItem, 0x18},
		{OpForIter, 0x19},
		{OpBreakLoop, 0x1A},
		{OpContinueLoop, 0x1B},
		{OpSetupLoop, 0x1C},
		{OpPopBlock, 0x1D},
		{OpAwait, 0x1E},
	}

	for _, tt := range tests {
		if byte(tt.op) != tt.want {
			t.Errorf("%s = 0x%02X, want 0x%02X", tt.op, byte(tt.op), tt.want)
		}
	}
}

func TestCoreOpcodesAreContiguous(t *testing.T) {
	for b := 0x01; b <= 0x1E; b++ {
		if !Opcode(b).IsValid() {
			t.Errorf("opcode 0x%02X is not defined", b)
		}
	}
	if Opcode(0x00).IsValid() || Opcode(0x1F).IsValid() {
		t.Error("0x00 and 0x1F must stay unassigned")
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpPop, "POP"},
		{OpDup, "DUP"},
		{OpLoadConst, "LOAD_CONST"},
		{OpBinaryAdd, "BINARY_ADD"},
		{OpJump, "JUMP"},
		{OpReturn, "RETURN"},
		{OpMakeFunction, "MAKE_FUNCTION"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	got := Opcode(0xEE).String()
	if !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
}

func TestOpcodeClassification(t *testing.T) {
	jumps := []Opcode{OpJump, OpJumpIfFalse, OpJumpIfTrue, OpForIter, OpYieldFromIter, OpSetupLoop,
		OpSetupExcept, OpSetupFinally, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop}
	for _, op := range jumps {
		if !op.IsJump() {
			t.Errorf("%s.IsJump() = false", op)
		}
	}
	for _, op := range []Opcode{OpLoadConst, OpCallFunc, OpBreakLoop, OpMakeFunction} {
		if op.IsJump() {
			t.Errorf("%s.IsJump() = true", op)
		}
	}
	for _, op := range []Opcode{OpFuncEntry, OpFuncInfo, OpFuncParam, OpFuncBody} {
		if !op.IsFuncHeader() {
			t.Errorf("%s.IsFuncHeader() = false", op)
		}
	}
	if OpMakeFunction.IsFuncHeader() {
		t.Error("MAKE_FUNCTION is not a header instruction")
	}
}
