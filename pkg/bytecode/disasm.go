package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the module.
func (m *Module) Disassemble() string {
	return m.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable listing with a name header.
func (m *Module) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Nagini bytecode v%d.%d\n\n", m.Major, m.Minor))

	// Constants
	if len(m.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range m.Constants {
			display := c.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %-6s %s\n", i, c.Kind, display))
		}
		sb.WriteString("\n")
	}

	// Names
	if len(m.Names) > 0 {
		sb.WriteString("; Names:\n")
		for i, n := range m.Names {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, n))
		}
		sb.WriteString("\n")
	}

	// Code section
	sb.WriteString("; Code:\n")
	for _, line := range m.DisassembleToLines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// DisassembleToLines returns the disassembly as a slice of lines.
func (m *Module) DisassembleToLines() []string {
	lines := make([]string, 0, len(m.Instructions))
	for i := range m.Instructions {
		if m.Instructions[i].Op == OpFuncEntry {
			if h, err := m.Function(i); err == nil {
				lines = append(lines, fmt.Sprintf("      ; function %s (%s) params=%d locals=%d",
					h.Name, h.Flags, len(h.Params), h.LocalCount))
			}
		}
		lines = append(lines, fmt.Sprintf("%04d  %s", i, m.DisassembleInstruction(i)))
	}
	return lines
}

// DisassembleInstruction returns a human-readable representation of a single instruction.
func (m *Module) DisassembleInstruction(index int) string {
	if index < 0 || index >= len(m.Instructions) {
		return "<end of code>"
	}
	in := m.Instructions[index]
	info := GetOpcodeInfo(in.Op)

	switch info.Operand {
	case OperandNone:
		return info.Name
	case OperandConst:
		if int(in.Arg) < len(m.Constants) {
			display := m.Constants[in.Arg].String()
			if len(display) > 20 {
				display = display[:17] + "..."
			}
			return fmt.Sprintf("%-20s %d ; %s", info.Name, in.Arg, display)
		}
	case OperandName:
		return fmt.Sprintf("%-20s %d ; %s", info.Name, in.Arg, m.name(in.Arg))
	case OperandJump:
		return fmt.Sprintf("%-20s -> %04d", info.Name, in.Arg)
	}

	switch in.Op {
	case OpFuncInfo:
		return fmt.Sprintf("%-20s flags=%s kwonly=%d locals=%d", info.Name,
			FuncFlags(in.Arg>>24), in.Arg>>16&0xFF, in.Arg&0xFFFF)
	case OpFuncParam:
		suffix := ""
		if in.Arg&HasDefault != 0 {
			suffix = " (default)"
		}
		return fmt.Sprintf("%-20s %s%s", info.Name, m.name(in.Arg&^HasDefault), suffix)
	case OpFuncCapture:
		if in.Arg&FromLocal != 0 {
			return fmt.Sprintf("%-20s local %d", info.Name, in.Arg&^FromLocal)
		}
		return fmt.Sprintf("%-20s upvalue %d", info.Name, in.Arg)
	case OpMakeFunction:
		if h, err := m.Function(int(in.Arg)); err == nil {
			return fmt.Sprintf("%-20s %04d ; %s", info.Name, in.Arg, h.Name)
		}
	case OpUnpackEx:
		return fmt.Sprintf("%-20s before=%d after=%d", info.Name, in.Arg&0xFF, in.Arg>>8)
	case OpMatchSeq:
		if in.Arg&MatchAtLeast != 0 {
			return fmt.Sprintf("%-20s len>=%d", info.Name, in.Arg&^MatchAtLeast)
		}
		return fmt.Sprintf("%-20s len==%d", info.Name, in.Arg)
	case OpGetMatchArg:
		if in.Arg&MatchKeyword != 0 {
			return fmt.Sprintf("%-20s %s", info.Name, m.name(in.Arg&^MatchKeyword))
		}
	case OpFormatValue:
		conv := [...]string{"", "!s", "!r", "!a"}[in.Arg&3]
		if in.Arg&FormatHasSpec != 0 {
			conv += " spec"
		}
		return strings.TrimSpace(fmt.Sprintf("%-20s %s", info.Name, conv))
	}
	return fmt.Sprintf("%-20s %d", info.Name, in.Arg)
}

func (m *Module) name(idx uint32) string {
	if int(idx) < len(m.Names) {
		return m.Names[idx]
	}
	return fmt.Sprintf("<name %d>", idx)
}
