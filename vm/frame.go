package vm

import (
	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Frame: execution state of one function, class body or module body
// ---------------------------------------------------------------------------

type blockKind uint8

const (
	blockLoop blockKind = iota
	blockExcept
	blockFinally
)

// block is an entry of a frame's block stack. level is the operand stack
// depth when the block was set up; excLevel is the depth of the handled
// exception stack.
type block struct {
	kind     blockKind
	handler  int // break target for loops, handler address otherwise
	start    int // instruction after the setup, the continue target of loops
	level    int
	excLevel int
}

// Frame is the activation of a function. Generators and coroutines keep
// their frame between resumptions.
type Frame struct {
	fn     *Function // nil for a module body
	module *Module
	code   []bytecode.Instruction
	ip     int
	name   string
	line   int

	stack    []Value
	locals   []Value
	cells    []*Cell // cells[i] != nil when slot i is a cell
	upvalues []*Cell
	blocks   []block

	// excs is the handled-exception stack. A nil entry marks a finally
	// clause entered without an exception.
	excs []*Exception

	// ns is the namespace of a class body.
	ns *Dict

	started bool    // a generator frame has run at least once
	waiting *Future // future a suspended coroutine frame waits on
}

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() Value {
	n := len(f.stack)
	if n == 0 {
		panic(fatalf("stack underflow at instruction %d in %s", f.ip-1, f.name))
	}
	v := f.stack[n-1]
	f.stack[n-1] = nil
	f.stack = f.stack[:n-1]
	return v
}

func (f *Frame) top() Value {
	if len(f.stack) == 0 {
		panic(fatalf("stack underflow at instruction %d in %s", f.ip-1, f.name))
	}
	return f.stack[len(f.stack)-1]
}

// peek returns the value n slots below the top; peek(1) is TOS.
func (f *Frame) peek(n int) Value {
	if n < 1 || n > len(f.stack) {
		panic(fatalf("stack underflow at instruction %d in %s", f.ip-1, f.name))
	}
	return f.stack[len(f.stack)-n]
}

// popN pops n values and returns them in push order.
func (f *Frame) popN(n int) []Value {
	if n > len(f.stack) {
		panic(fatalf("stack underflow at instruction %d in %s", f.ip-1, f.name))
	}
	start := len(f.stack) - n
	vals := make([]Value, n)
	copy(vals, f.stack[start:])
	for i := start; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	f.stack = f.stack[:start]
	return vals
}

// truncate drops the stack back to depth.
func (f *Frame) truncate(depth int) {
	for i := depth; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	if depth < len(f.stack) {
		f.stack = f.stack[:depth]
	}
}

// slot checks a local slot index. Module bodies have no header, so their
// hidden temporaries grow the slot table on demand.
func (f *Frame) slot(i int) int {
	if i >= len(f.locals) {
		if f.fn != nil {
			panic(fatalf("local slot %d out of range in %s", i, f.name))
		}
		grown := make([]Value, i+1)
		copy(grown, f.locals)
		f.locals = grown
		cells := make([]*Cell, i+1)
		copy(cells, f.cells)
		f.cells = cells
	}
	return i
}

func (f *Frame) cell(i int) *Cell {
	if i < 0 || i >= len(f.cells) || f.cells[i] == nil {
		panic(fatalf("local slot %d of %s is not a cell", i, f.name))
	}
	return f.cells[i]
}

func (f *Frame) upvalue(i int) *Cell {
	if i < 0 || i >= len(f.upvalues) {
		panic(fatalf("upvalue %d out of range in %s", i, f.name))
	}
	return f.upvalues[i]
}

// jump validates and sets the instruction pointer.
func (f *Frame) jump(target uint32) {
	if int(target) >= len(f.code) {
		panic(fatalf("jump to %d out of range in %s", target, f.name))
	}
	f.ip = int(target)
}

func (f *Frame) pushBlock(kind blockKind, handler uint32) {
	f.blocks = append(f.blocks, block{
		kind:     kind,
		handler:  int(handler),
		start:    f.ip,
		level:    len(f.stack),
		excLevel: len(f.excs),
	})
}

func (f *Frame) popBlock() block {
	if len(f.blocks) == 0 {
		panic(fatalf("block stack underflow at instruction %d in %s", f.ip-1, f.name))
	}
	b := f.blocks[len(f.blocks)-1]
	f.blocks = f.blocks[:len(f.blocks)-1]
	return b
}

// unwindLoop pops blocks down to the innermost loop, which stays on the
// block stack, and truncates the stack to its level.
func (f *Frame) unwindLoop() block {
	for i := len(f.blocks) - 1; i >= 0; i-- {
		if f.blocks[i].kind == blockLoop {
			f.blocks = f.blocks[:i+1]
			f.truncate(f.blocks[i].level)
			return f.blocks[i]
		}
	}
	panic(fatalf("loop control outside a loop at instruction %d in %s", f.ip-1, f.name))
}

func (f *Frame) currentException() *Exception {
	if len(f.excs) == 0 {
		return nil
	}
	return f.excs[len(f.excs)-1]
}

// handle routes exc to the innermost except or finally block, reporting
// false when the frame has none.
func (f *Frame) handle(exc *Exception) bool {
	for len(f.blocks) > 0 {
		b := f.popBlock()
		if b.kind == blockLoop {
			continue
		}
		f.truncate(b.level)
		f.excs = f.excs[:b.excLevel]
		f.excs = append(f.excs, exc)
		f.ip = b.handler
		return true
	}
	return false
}

// traceEntry describes the frame's current position.
func (f *Frame) traceEntry() TraceEntry {
	return TraceEntry{Module: f.module.Name, Function: f.name, Line: f.line}
}

// newFrame creates the activation of fn with bound locals.
func newFrame(fn *Function, locals []Value) *Frame {
	h := fn.Header
	f := &Frame{
		fn:       fn,
		module:   fn.Module,
		code:     fn.Module.Code.Instructions,
		ip:       h.Body,
		name:     fn.Name,
		locals:   locals,
		upvalues: fn.Upvalues,
	}
	if len(h.Cells) > 0 {
		f.cells = make([]*Cell, len(locals))
		for _, slot := range h.Cells {
			f.cells[slot] = &Cell{Value: locals[slot]}
			locals[slot] = nil
		}
	}
	return f
}
