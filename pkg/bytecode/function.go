package bytecode

import "strings"

// FuncFlags describe a function's calling convention and kind.
type FuncFlags uint8

const (
	FlagVarArgs   FuncFlags = 1 << 0 // has *args
	FlagKwArgs    FuncFlags = 1 << 1 // has **kwargs
	FlagGenerator FuncFlags = 1 << 2 // body contains yield
	FlagCoroutine FuncFlags = 1 << 3 // async def
	FlagClassBody FuncFlags = 1 << 4 // class body; runs in a namespace dict
)

func (f FuncFlags) String() string {
	var parts []string
	for _, fl := range []struct {
		bit  FuncFlags
		name string
	}{
		{FlagVarArgs, "varargs"},
		{FlagKwArgs, "kwargs"},
		{FlagGenerator, "generator"},
		{FlagCoroutine, "coroutine"},
		{FlagClassBody, "class"},
	} {
		if f&fl.bit != 0 {
			parts = append(parts, fl.name)
		}
	}
	return strings.Join(parts, "|")
}

// PackFuncInfo builds the FuncInfo operand.
func PackFuncInfo(flags FuncFlags, kwonly, locals int) uint32 {
	return uint32(flags)<<24 | uint32(kwonly&0xFF)<<16 | uint32(locals&0xFFFF)
}

// Param is one declared parameter. Parameters occupy local slots in
// declaration order: positional, *args, keyword-only, **kwargs.
type Param struct {
	Name       string
	HasDefault bool
}

// Capture says where a closure's upvalue comes from in the enclosing frame.
type Capture struct {
	FromLocal bool // cell in the enclosing frame's local slot Index
	Index     int  // local slot, or the enclosing frame's upvalue index
}

// FuncHeader is the decoded header of a function embedded in a module.
type FuncHeader struct {
	Entry       int // index of the FuncEntry instruction
	Body        int // index of the first body instruction
	Name        string
	Flags       FuncFlags
	PosCount    int
	KwOnlyCount int
	LocalCount  int
	Params      []Param
	Cells       []int
	Captures    []Capture
}

// DefaultCount returns the number of parameters with defaults, which is
// the number of values MakeFunction pops.
func (h *FuncHeader) DefaultCount() int {
	n := 0
	for _, p := range h.Params {
		if p.HasDefault {
			n++
		}
	}
	return n
}

// Function decodes the function header starting at entry.
func (m *Module) Function(entry int) (*FuncHeader, error) {
	code := m.Instructions
	if entry < 0 || entry >= len(code) || code[entry].Op != OpFuncEntry {
		return nil, corruptf("no function header at instruction %d", entry)
	}
	h := &FuncHeader{Entry: entry, PosCount: int(code[entry].Arg)}
	i := entry + 1
	expect := func(op Opcode) (uint32, bool) {
		if i >= len(code) || code[i].Op != op {
			return 0, false
		}
		i++
		return code[i-1].Arg, true
	}

	info, ok := expect(OpFuncInfo)
	if !ok {
		return nil, corruptf("function at %d: missing FUNC_INFO", entry)
	}
	h.Flags = FuncFlags(info >> 24)
	h.KwOnlyCount = int(info >> 16 & 0xFF)
	h.LocalCount = int(info & 0xFFFF)

	nameIdx, ok := expect(OpFuncName)
	if !ok || int(nameIdx) >= len(m.Names) {
		return nil, corruptf("function at %d: missing or invalid FUNC_NAME", entry)
	}
	h.Name = m.Names[nameIdx]

	for i < len(code) && code[i].Op == OpFuncParam {
		idx := code[i].Arg &^ HasDefault
		if int(idx) >= len(m.Names) {
			return nil, corruptf("function %s: parameter name index %d out of range", h.Name, idx)
		}
		h.Params = append(h.Params, Param{Name: m.Names[idx], HasDefault: code[i].Arg&HasDefault != 0})
		i++
	}
	for i < len(code) && code[i].Op == OpFuncCell {
		h.Cells = append(h.Cells, int(code[i].Arg))
		i++
	}
	for i < len(code) && code[i].Op == OpFuncCapture {
		c := code[i].Arg
		h.Captures = append(h.Captures, Capture{FromLocal: c&FromLocal != 0, Index: int(c &^ FromLocal)})
		i++
	}
	if _, ok := expect(OpFuncBody); !ok {
		return nil, corruptf("function %s: missing FUNC_BODY", h.Name)
	}
	h.Body = i

	want := h.PosCount + h.KwOnlyCount
	if h.Flags&FlagVarArgs != 0 {
		want++
	}
	if h.Flags&FlagKwArgs != 0 {
		want++
	}
	if len(h.Params) != want {
		return nil, corruptf("function %s: %d parameters declared, header describes %d", h.Name, len(h.Params), want)
	}
	if want > h.LocalCount {
		return nil, corruptf("function %s: %d parameters but only %d local slots", h.Name, want, h.LocalCount)
	}
	for _, slot := range h.Cells {
		if slot >= h.LocalCount {
			return nil, corruptf("function %s: cell slot %d out of range", h.Name, slot)
		}
	}
	if h.Body >= len(code) {
		return nil, corruptf("function %s: empty body", h.Name)
	}
	return h, nil
}
