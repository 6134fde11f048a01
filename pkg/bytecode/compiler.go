package bytecode

import (
	"fmt"

	"github.com/nagini-lang/nagini/compiler"
)

// ---------------------------------------------------------------------------
// Bytecode compiler: AST -> Module
// ---------------------------------------------------------------------------

// maxLocals is the number of local slots a FuncInfo operand can describe.
const maxLocals = 0xFFFF

// CompileError reports a construct that parses but cannot be compiled.
type CompileError struct {
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
}

func newCompileError(prog *compiler.Program, id compiler.NodeID, format string, args ...interface{}) *CompileError {
	e := &CompileError{Message: fmt.Sprintf(format, args...)}
	if n := prog.Node(id); n != nil {
		e.Line = n.Span().Start.Line
		e.Column = n.Span().Start.Column
	}
	return e
}

// blockKind classifies the compile-time block stack, which mirrors the
// runtime block stack plus the handler regions that hold an entry on the
// handled-exception stack.
type blockKind uint8

const (
	blockLoop        blockKind = iota // SetupLoop
	blockExcept                       // SetupExcept
	blockFinally                      // SetupFinally of a try statement
	blockWith                         // SetupFinally of a with statement
	blockHandler                      // inside an except clause
	blockFinallyBody                  // inside a finally clause
)

type block struct {
	kind    blockKind
	forLoop bool              // the loop keeps its iterator on the stack
	finally []compiler.NodeID // body of a blockFinally
}

// unit is the code generation state of one function, class body or the
// module itself.
type unit struct {
	scope   *scope
	blocks  []block
	nlocals int
}

// Compiler converts a parsed program into a Module.
type Compiler struct {
	prog   *compiler.Program
	module *Module
	scopes map[compiler.NodeID]*scope
	unit   *unit
	line   int
}

// Compile translates prog into a bytecode module. Errors are reported as
// *CompileError.
func Compile(prog *compiler.Program) (m *Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*CompileError)
			if !ok {
				panic(r)
			}
			m, err = nil, ce
		}
	}()

	c := &Compiler{
		prog:   prog,
		module: NewModule(),
	}
	c.scopes = analyzeScopes(prog)
	c.unit = &unit{scope: c.scopes[compiler.NoNode]}

	body := prog.Body
	var result compiler.NodeID = compiler.NoNode
	if n := len(body); n > 0 {
		if es, ok := prog.Node(body[n-1]).(*compiler.ExprStmt); ok {
			result = es.Value
			body = body[:n-1]
		}
	}
	c.compileStatements(body)
	if result.Valid() {
		c.emitLine(c.lineOf(prog.Body[len(prog.Body)-1]))
		c.compileExpr(result)
	} else {
		c.emitConst(NoneConst())
	}
	c.emit(OpReturn, 0)
	return c.module, nil
}

func (c *Compiler) errorf(id compiler.NodeID, format string, args ...interface{}) {
	panic(newCompileError(c.prog, id, format, args...))
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) emit(op Opcode, arg uint32) int {
	return c.module.Emit(op, arg)
}

// emitJump emits a jump whose target is patched later.
func (c *Compiler) emitJump(op Opcode) int {
	return c.module.Emit(op, 0)
}

// patch points the jump at index to the next instruction.
func (c *Compiler) patch(index int) {
	c.module.Instructions[index].Arg = uint32(c.module.Len())
}

func (c *Compiler) patchAll(indices []int) {
	for _, i := range indices {
		c.patch(i)
	}
}

func (c *Compiler) here() uint32 {
	return uint32(c.module.Len())
}

func (c *Compiler) emitConst(k Constant) {
	c.emit(OpLoadConst, c.module.AddConstant(k))
}

func (c *Compiler) name(s string) uint32 {
	return c.module.AddName(s)
}

func (c *Compiler) lineOf(id compiler.NodeID) int {
	if n := c.prog.Node(id); n != nil {
		return n.Span().Start.Line
	}
	return c.line
}

func (c *Compiler) setLine(id compiler.NodeID) {
	c.line = c.lineOf(id)
}

func (c *Compiler) emitLine(line int) {
	c.emit(OpLine, uint32(line))
}

// newTemp allocates a hidden local slot in the current function.
func (c *Compiler) newTemp(id compiler.NodeID) uint32 {
	u := c.unit
	if u.nlocals >= maxLocals {
		c.errorf(id, "too many local variables in '%s'", u.scope.name)
	}
	slot := u.nlocals
	u.nlocals++
	return uint32(slot)
}

// ---------------------------------------------------------------------------
// Names
// ---------------------------------------------------------------------------

func (c *Compiler) loadName(name string) {
	switch kind, idx := c.unit.scope.resolve(name); kind {
	case nameLocal:
		c.emit(OpLoadLocal, uint32(idx))
	case nameCell:
		c.emit(OpLoadCell, uint32(idx))
	case nameFree:
		c.emit(OpLoadUpvalue, uint32(idx))
	default:
		c.emit(OpLoadName, c.name(name))
	}
}

func (c *Compiler) storeName(name string) {
	switch kind, idx := c.unit.scope.resolve(name); kind {
	case nameLocal:
		c.emit(OpStoreLocal, uint32(idx))
	case nameCell:
		c.emit(OpStoreCell, uint32(idx))
	case nameFree:
		c.emit(OpStoreUpvalue, uint32(idx))
	default:
		c.emit(OpStoreName, c.name(name))
	}
}

func (c *Compiler) deleteName(id compiler.NodeID, name string) {
	switch kind, idx := c.unit.scope.resolve(name); kind {
	case nameLocal, nameCell:
		c.emit(OpDeleteLocal, uint32(idx))
	case nameFree:
		c.errorf(id, "cannot delete free variable '%s'", name)
	default:
		c.emit(OpDeleteName, c.name(name))
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// funcSpec describes a function-like body to compile.
type funcSpec struct {
	node   compiler.NodeID
	name   string
	params []compiler.Param
	flags  FuncFlags
	body   func()
}

// compileFunction emits the defaults, the skipped header and body, and the
// MakeFunction that builds the closure.
func (c *Compiler) compileFunction(fs funcSpec) {
	sc := c.scopes[fs.node]
	if sc == nil {
		c.errorf(fs.node, "internal error: no scope for '%s'", fs.name)
	}

	for _, p := range fs.params {
		if p.Default.Valid() {
			c.compileExpr(p.Default)
		}
	}

	skip := c.emitJump(OpJump)
	entry := c.emitFuncHeader(fs, sc)

	outer, outerLine := c.unit, c.line
	c.unit = &unit{scope: sc, nlocals: sc.nslots}
	fs.body()
	c.emitConst(NoneConst())
	c.emit(OpReturn, 0)
	if c.unit.nlocals > maxLocals {
		c.errorf(fs.node, "too many local variables in '%s'", fs.name)
	}
	c.module.Instructions[entry+1].Arg = PackFuncInfo(c.funcFlags(fs, sc), kwOnlyCount(fs.params), c.unit.nlocals)
	c.unit, c.line = outer, outerLine

	c.patch(skip)
	c.emit(OpMakeFunction, uint32(entry))
}

func (c *Compiler) funcFlags(fs funcSpec, sc *scope) FuncFlags {
	flags := fs.flags
	for _, p := range fs.params {
		switch p.Kind {
		case compiler.ParamVarArgs:
			flags |= FlagVarArgs
		case compiler.ParamKwArgs:
			flags |= FlagKwArgs
		}
	}
	if sc.generator {
		flags |= FlagGenerator
	}
	if sc.async {
		flags |= FlagCoroutine
	}
	return flags
}

func kwOnlyCount(params []compiler.Param) int {
	n := 0
	for _, p := range params {
		if p.Kind == compiler.ParamKwOnly {
			n++
		}
	}
	return n
}

// emitFuncHeader writes FuncEntry through FuncBody. The FuncInfo operand
// is filled in once the body's local count is known.
func (c *Compiler) emitFuncHeader(fs funcSpec, sc *scope) int {
	pos := 0
	for _, p := range fs.params {
		if p.Kind == compiler.ParamNormal {
			pos++
		}
	}
	if kwOnlyCount(fs.params) > 0xFF {
		c.errorf(fs.node, "too many keyword-only parameters in '%s'", fs.name)
	}
	entry := c.emit(OpFuncEntry, uint32(pos))
	c.emit(OpFuncInfo, 0)
	c.emit(OpFuncName, c.name(fs.name))
	for _, p := range fs.params {
		arg := c.name(p.Name)
		if p.Default.Valid() {
			arg |= HasDefault
		}
		c.emit(OpFuncParam, arg)
	}
	for _, slot := range sc.cells() {
		c.emit(OpFuncCell, uint32(slot))
	}
	for _, name := range sc.frees {
		src, ok := c.unit.scope.captureSource(name)
		if !ok {
			c.errorf(fs.node, "internal error: cannot capture '%s' for '%s'", name, fs.name)
		}
		c.emit(OpFuncCapture, src)
	}
	c.emit(OpFuncBody, 0)
	return entry
}

// applyDecorators calls the decorators already on the stack, innermost
// first, on the value above them.
func (c *Compiler) applyDecorators(decorators []compiler.NodeID) {
	for range decorators {
		c.emit(OpCallFunc, 1)
	}
}

func (c *Compiler) compileFunctionDef(id compiler.NodeID, n *compiler.FunctionDef) {
	for _, d := range n.Decorators {
		c.compileExpr(d)
	}
	c.compileFunction(funcSpec{
		node:   id,
		name:   n.Name,
		params: n.Params,
		body:   func() { c.compileStatements(n.Body) },
	})
	c.applyDecorators(n.Decorators)
	c.storeName(n.Name)
}

func (c *Compiler) compileClassDef(id compiler.NodeID, n *compiler.ClassDef) {
	if len(n.Keywords) > 0 {
		c.errorf(id, "class keyword arguments are not supported")
	}
	for _, d := range n.Decorators {
		c.compileExpr(d)
	}
	c.compileFunction(funcSpec{
		node:  id,
		name:  n.Name,
		flags: FlagClassBody,
		body:  func() { c.compileStatements(n.Body) },
	})
	c.emitConst(StringConst(n.Name))
	for _, b := range n.Bases {
		c.compileExpr(b)
	}
	c.emit(OpBuildClass, uint32(len(n.Bases)))
	c.applyDecorators(n.Decorators)
	c.storeName(n.Name)
}

func (c *Compiler) compileLambda(id compiler.NodeID, n *compiler.Lambda) {
	c.compileFunction(funcSpec{
		node:   id,
		name:   "<lambda>",
		params: n.Params,
		body: func() {
			c.compileExpr(n.Body)
			c.emit(OpReturn, 0)
		},
	})
}
