// Package bytecode defines the Nagini compiled module format and the
// compiler that produces it from a parsed program.
//
// A Module is a constant pool, a name table and one flat array of
// fixed-width instructions (one opcode byte and one u32 operand). Modules
// serialize to the ".nac" format:
//
//	"NAG\0" major minor
//	u32 constant count, then tag byte and payload per constant
//	u32 name count, then u32 length and UTF-8 bytes per name
//	u32 instruction count, then opcode byte and u32 operand per instruction
//
// All integers are little endian. Opcodes 0x01 through 0x1E are the core
// set and their values are fixed; extended opcodes start at 0x20.
//
// # Functions
//
// Function bodies live in the same instruction array as top-level code.
// A function is a header (FuncEntry, FuncInfo, FuncName, FuncParam, FuncCell,
// FuncCapture, FuncBody) followed by its body, and the enclosing code jumps
// over both before executing MakeFunction with the FuncEntry index.
// Module.Function decodes a header.
//
// # Compiler
//
// Compile runs a scope analysis pass over the program, deciding for every
// name whether it is a global (LoadName/StoreName), a local slot, a cell
// captured by an inner function or an upvalue inherited from an enclosing
// one, and then generates code in a single walk with forward-patched jumps.
//
// Blocks at run time form a stack: SetupLoop, SetupExcept and SetupFinally
// push, PopBlock pops. break, continue and return that leave a finally or
// with region emit the cleanup inline before transferring control.
//
// # Disassembly
//
// Module.Disassemble renders a listing with the constant pool, the name
// table and one line per instruction, annotating operands with the
// constant, name or jump target they refer to.
package bytecode
