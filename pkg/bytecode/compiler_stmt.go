package bytecode

import (
	"github.com/nagini-lang/nagini/compiler"
)

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(ids []compiler.NodeID) {
	for _, id := range ids {
		c.compileStatement(id)
	}
}

func (c *Compiler) compileStatement(id compiler.NodeID) {
	c.setLine(id)
	c.emitLine(c.line)

	switch n := c.prog.Node(id).(type) {
	case *compiler.ExprStmt:
		c.compileExpr(n.Value)
		c.emit(OpPop, 0)
	case *compiler.Assignment:
		c.compileAssignment(id, n)
	case *compiler.Destructuring:
		c.compileExpr(n.Value)
		c.compileStore(n.Target)
	case *compiler.If:
		c.compileIf(n)
	case *compiler.While:
		c.compileWhile(n)
	case *compiler.For:
		c.compileFor(id, n)
	case *compiler.Break:
		c.compileLoopExit(id, OpBreakLoop)
	case *compiler.Continue:
		c.compileLoopExit(id, OpContinueLoop)
	case *compiler.Return:
		c.compileReturn(id, n)
	case *compiler.Pass, *compiler.Global, *compiler.Nonlocal:
	case *compiler.FunctionDef:
		c.compileFunctionDef(id, n)
	case *compiler.ClassDef:
		c.compileClassDef(id, n)
	case *compiler.Try:
		c.compileTry(n)
	case *compiler.With:
		if n.Async {
			c.errorf(id, "'async with' is not supported")
		}
		c.compileWith(n.Items, n.Body)
	case *compiler.Raise:
		c.compileRaise(n)
	case *compiler.Assert:
		c.compileAssert(n)
	case *compiler.Del:
		for _, t := range n.Targets {
			c.compileDelete(t)
		}
	case *compiler.Import:
		c.compileImport(n)
	case *compiler.Export:
		c.compileExport(n)
	case *compiler.Match:
		c.compileMatch(id, n)
	default:
		c.errorf(id, "unexpected %s in statement position", c.prog.Node(id).Kind())
	}
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

func (c *Compiler) compileAssignment(id compiler.NodeID, n *compiler.Assignment) {
	if !n.Value.Valid() {
		// Bare annotation: nothing to evaluate or bind.
		return
	}
	if n.Op != compiler.OpNone {
		c.compileAugmented(id, n.Targets[0], n.Op, n.Value)
		return
	}
	c.compileExpr(n.Value)
	for i, t := range n.Targets {
		if i < len(n.Targets)-1 {
			c.emit(OpDup, 0)
		}
		c.compileStore(t)
	}
}

func (c *Compiler) compileAugmented(id, target compiler.NodeID, op compiler.Operator, value compiler.NodeID) {
	binop := binaryOpcode(op)
	switch t := c.prog.Node(target).(type) {
	case *compiler.Identifier:
		c.loadName(t.Name)
		c.compileExpr(value)
		c.emit(binop, 0)
		c.storeName(t.Name)
	case *compiler.Attribute:
		attr := c.name(t.Name)
		c.compileExpr(t.Value)
		c.emit(OpDup, 0)
		c.emit(OpLoadAttr, attr)
		c.compileExpr(value)
		c.emit(binop, 0)
		c.emit(OpRot2, 0)
		c.emit(OpStoreAttr, attr)
	case *compiler.Subscript:
		c.compileExpr(t.Value)
		c.compileExpr(t.Index)
		c.emit(OpDup2, 0)
		c.emit(OpGetItem, 0)
		c.compileExpr(value)
		c.emit(binop, 0)
		c.emit(OpRot3, 0)
		c.emit(OpSetItem, 0)
	default:
		c.errorf(id, "illegal target for augmented assignment")
	}
}

// compileStore pops TOS into target.
func (c *Compiler) compileStore(target compiler.NodeID) {
	switch t := c.prog.Node(target).(type) {
	case *compiler.Identifier:
		c.storeName(t.Name)
	case *compiler.Attribute:
		c.compileExpr(t.Value)
		c.emit(OpStoreAttr, c.name(t.Name))
	case *compiler.Subscript:
		c.compileExpr(t.Value)
		c.compileExpr(t.Index)
		c.emit(OpSetItem, 0)
	case *compiler.DestructurePattern:
		c.compileDestructure(target, t)
	default:
		c.errorf(target, "cannot assign to %s", c.prog.Node(target).Kind())
	}
}

func (c *Compiler) compileDelete(target compiler.NodeID) {
	switch t := c.prog.Node(target).(type) {
	case *compiler.Identifier:
		c.deleteName(target, t.Name)
	case *compiler.Attribute:
		c.compileExpr(t.Value)
		c.emit(OpDeleteAttr, c.name(t.Name))
	case *compiler.Subscript:
		c.compileExpr(t.Value)
		c.compileExpr(t.Index)
		c.emit(OpDeleteItem, 0)
	case *compiler.TupleLiteral:
		for _, e := range t.Elts {
			c.compileDelete(e)
		}
	case *compiler.ListLiteral:
		for _, e := range t.Elts {
			c.compileDelete(e)
		}
	default:
		c.errorf(target, "cannot delete %s", c.prog.Node(target).Kind())
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func (c *Compiler) pushBlock(b block) {
	c.unit.blocks = append(c.unit.blocks, b)
}

func (c *Compiler) popBlock() {
	c.unit.blocks = c.unit.blocks[:len(c.unit.blocks)-1]
}

func (c *Compiler) compileIf(n *compiler.If) {
	c.compileExpr(n.Cond)
	elseJump := c.emitJump(OpJumpIfFalse)
	c.compileStatements(n.Body)
	if len(n.Else) == 0 {
		c.patch(elseJump)
		return
	}
	endJump := c.emitJump(OpJump)
	c.patch(elseJump)
	c.compileStatements(n.Else)
	c.patch(endJump)
}

//	SetupLoop Lbreak
//	Lcont: cond; JumpIfFalse Lexit; body; Jump Lcont
//	Lexit: PopBlock; else
//	Lbreak:
func (c *Compiler) compileWhile(n *compiler.While) {
	setup := c.emitJump(OpSetupLoop)
	top := c.here()
	c.compileExpr(n.Cond)
	exit := c.emitJump(OpJumpIfFalse)

	c.pushBlock(block{kind: blockLoop})
	c.compileStatements(n.Body)
	c.popBlock()
	c.emit(OpJump, top)

	c.patch(exit)
	c.emit(OpPopBlock, 0)
	c.compileStatements(n.Else)
	c.patch(setup)
}

//	<iter>; GetIter; SetupLoop Lbreak
//	Lcont: ForIter Lexit; <store>; body; Jump Lcont
//	Lexit: PopBlock; else; Jump Lend
//	Lbreak: Pop
//	Lend:
func (c *Compiler) compileFor(id compiler.NodeID, n *compiler.For) {
	if n.Async {
		c.errorf(id, "'async for' is not supported")
	}
	c.compileExpr(n.Iter)
	c.emit(OpGetIter, 0)
	setup := c.emitJump(OpSetupLoop)
	top := c.here()
	exit := c.emitJump(OpForIter)
	c.compileStore(n.Target)

	c.pushBlock(block{kind: blockLoop, forLoop: true})
	c.compileStatements(n.Body)
	c.popBlock()
	c.emit(OpJump, top)

	c.patch(exit)
	c.emit(OpPopBlock, 0)
	c.compileStatements(n.Else)
	end := c.emitJump(OpJump)
	c.patch(setup)
	c.emit(OpPop, 0)
	c.patch(end)
}

// innermostLoop returns the index of the innermost loop block, or -1.
func (c *Compiler) innermostLoop() int {
	for i := len(c.unit.blocks) - 1; i >= 0; i-- {
		if c.unit.blocks[i].kind == blockLoop {
			return i
		}
	}
	return -1
}

// compileLoopExit emits break or continue, first unwinding every block
// between the statement and the innermost loop.
func (c *Compiler) compileLoopExit(id compiler.NodeID, op Opcode) {
	loop := c.innermostLoop()
	if loop < 0 {
		if op == OpBreakLoop {
			c.errorf(id, "'break' outside loop")
		}
		c.errorf(id, "'continue' not properly in loop")
	}
	c.unwindBlocks(loop+1, false)
	c.emit(op, 0)
}

// unwindBlocks emits the cleanup for every compile-time block at index
// >= downTo, innermost first. Loops are only crossed by return, which also
// drops a for loop's iterator when popIters is set.
func (c *Compiler) unwindBlocks(downTo int, popIters bool) {
	blocks := c.unit.blocks
	for i := len(blocks) - 1; i >= downTo; i-- {
		b := blocks[i]
		switch b.kind {
		case blockLoop:
			c.emit(OpPopBlock, 0)
			if b.forLoop && popIters {
				c.emit(OpPop, 0)
			}
		case blockExcept:
			c.emit(OpPopBlock, 0)
		case blockHandler, blockFinallyBody:
			c.emit(OpPopExcept, 0)
		case blockWith:
			c.emit(OpPopBlock, 0)
			c.emit(OpWithExit, 0)
			c.emit(OpEndFinally, 0)
		case blockFinally:
			c.emit(OpPopBlock, 0)
			saved := c.unit.blocks
			c.unit.blocks = append([]block(nil), blocks[:i]...)
			c.pushBlock(block{kind: blockFinallyBody})
			c.compileStatements(b.finally)
			c.unit.blocks = saved
			c.emit(OpEndFinally, 0)
		}
	}
}

// needsUnwind reports whether any enclosing block runs code on exit.
func (c *Compiler) needsUnwind() bool {
	for _, b := range c.unit.blocks {
		if b.kind == blockFinally || b.kind == blockWith {
			return true
		}
	}
	return false
}

func (c *Compiler) compileReturn(id compiler.NodeID, n *compiler.Return) {
	if n.Value.Valid() {
		c.compileExpr(n.Value)
	} else {
		c.emitConst(NoneConst())
	}
	if !c.needsUnwind() {
		c.emit(OpReturn, 0)
		return
	}
	tmp := c.newTemp(id)
	c.emit(OpStoreLocal, tmp)
	c.unwindBlocks(0, true)
	c.emit(OpLoadLocal, tmp)
	c.emit(OpReturn, 0)
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

//	[SetupFinally Lfin]
//	SetupExcept Lh; body; PopBlock; else; Jump Lend
//	Lh: <T>; ExceptMatch; JumpIfFalse Lnext; [LoadExc; store]; body; PopExcept; Jump Lend
//	    ...
//	    Raise 0
//	Lend: [PopBlock; Lfin: finally; EndFinally]
func (c *Compiler) compileTry(n *compiler.Try) {
	hasFinally := len(n.Finally) > 0
	var setupFinally int
	if hasFinally {
		setupFinally = c.emitJump(OpSetupFinally)
		c.pushBlock(block{kind: blockFinally, finally: n.Finally})
	}

	if len(n.Handlers) > 0 {
		c.compileTryExcept(n)
	} else {
		c.compileStatements(n.Body)
		c.compileStatements(n.Else)
	}

	if hasFinally {
		c.popBlock()
		c.emit(OpPopBlock, 0)
		c.patch(setupFinally)
		c.pushBlock(block{kind: blockFinallyBody})
		c.compileStatements(n.Finally)
		c.popBlock()
		c.emit(OpEndFinally, 0)
	}
}

func (c *Compiler) compileTryExcept(n *compiler.Try) {
	setup := c.emitJump(OpSetupExcept)
	c.pushBlock(block{kind: blockExcept})
	c.compileStatements(n.Body)
	c.popBlock()
	c.emit(OpPopBlock, 0)
	c.compileStatements(n.Else)
	ends := []int{c.emitJump(OpJump)}

	c.patch(setup)
	bare := false
	for _, hid := range n.Handlers {
		h := c.prog.Node(hid).(*compiler.ExceptHandler)
		c.setLine(hid)
		next := -1
		if h.Type.Valid() {
			c.compileExpr(h.Type)
			c.emit(OpExceptMatch, 0)
			next = c.emitJump(OpJumpIfFalse)
		} else {
			bare = true
		}
		if h.Name != "" {
			c.emit(OpLoadExc, 0)
			c.storeName(h.Name)
		}
		c.pushBlock(block{kind: blockHandler})
		c.compileStatements(h.Body)
		c.popBlock()
		c.emit(OpPopExcept, 0)
		ends = append(ends, c.emitJump(OpJump))
		if next >= 0 {
			c.patch(next)
		}
		if bare {
			break
		}
	}
	if !bare {
		c.emit(OpRaise, 0)
	}
	c.patchAll(ends)
}

func (c *Compiler) compileRaise(n *compiler.Raise) {
	switch {
	case !n.Exc.Valid():
		c.emit(OpRaise, 0)
	case !n.Cause.Valid():
		c.compileExpr(n.Exc)
		c.emit(OpRaise, 1)
	default:
		c.compileExpr(n.Exc)
		c.compileExpr(n.Cause)
		c.emit(OpRaise, 2)
	}
}

func (c *Compiler) compileAssert(n *compiler.Assert) {
	c.compileExpr(n.Test)
	ok := c.emitJump(OpJumpIfTrue)
	c.emit(OpLoadName, c.name("AssertionError"))
	if n.Msg.Valid() {
		c.compileExpr(n.Msg)
		c.emit(OpCallFunc, 1)
	}
	c.emit(OpRaise, 1)
	c.patch(ok)
}

//	<ctx>; Dup; LoadAttr __exit__; Rot2; LoadAttr __enter__; CallFunc 0; <store>|Pop
//	SetupFinally Lh; body; PopBlock
//	Lh: WithExit; EndFinally
func (c *Compiler) compileWith(items []compiler.WithItem, body []compiler.NodeID) {
	if len(items) == 0 {
		c.compileStatements(body)
		return
	}
	item := items[0]
	c.compileExpr(item.Context)
	c.emit(OpDup, 0)
	c.emit(OpLoadAttr, c.name("__exit__"))
	c.emit(OpRot2, 0)
	c.emit(OpLoadAttr, c.name("__enter__"))
	c.emit(OpCallFunc, 0)
	if item.Target.Valid() {
		c.compileStore(item.Target)
	} else {
		c.emit(OpPop, 0)
	}

	setup := c.emitJump(OpSetupFinally)
	c.pushBlock(block{kind: blockWith})
	c.compileWith(items[1:], body)
	c.popBlock()
	c.emit(OpPopBlock, 0)
	c.patch(setup)
	c.emit(OpWithExit, 0)
	c.emit(OpEndFinally, 0)
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

func (c *Compiler) compileImport(n *compiler.Import) {
	if !n.From {
		for _, name := range n.Names {
			c.emit(OpImportName, c.name(name.Name))
			c.storeName(importBinding(name, false))
		}
		return
	}
	c.emit(OpImportName, c.name(n.Module))
	if n.Star {
		c.emit(OpImportStar, 0)
		return
	}
	for _, name := range n.Names {
		c.emit(OpImportFrom, c.name(name.Name))
		c.storeName(importBinding(name, true))
	}
	c.emit(OpPop, 0)
}

func (c *Compiler) compileExport(n *compiler.Export) {
	names := n.Names
	if n.Decl.Valid() {
		c.compileStatement(n.Decl)
		names = declaredNames(c.prog, n.Decl)
	}
	for _, name := range names {
		c.emit(OpExport, c.name(name))
	}
}

// declaredNames lists the names an exported declaration binds.
func declaredNames(prog *compiler.Program, id compiler.NodeID) []string {
	var names []string
	var collect func(t compiler.NodeID)
	collect = func(t compiler.NodeID) {
		switch n := prog.Node(t).(type) {
		case *compiler.Identifier:
			names = append(names, n.Name)
		case *compiler.DestructurePattern:
			for _, e := range n.Elts {
				collect(e)
			}
			if n.Rest.Valid() {
				collect(n.Rest)
			}
		}
	}
	switch n := prog.Node(id).(type) {
	case *compiler.FunctionDef:
		names = append(names, n.Name)
	case *compiler.ClassDef:
		names = append(names, n.Name)
	case *compiler.Assignment:
		for _, t := range n.Targets {
			collect(t)
		}
	case *compiler.Destructuring:
		collect(n.Target)
	}
	return names
}
