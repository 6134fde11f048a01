package bytecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nagini-lang/nagini/compiler"
)

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOpcodes = map[compiler.Operator]Opcode{
	compiler.OpAdd:      OpBinaryAdd,
	compiler.OpSub:      OpBinarySub,
	compiler.OpMul:      OpBinaryMul,
	compiler.OpDiv:      OpBinaryDiv,
	compiler.OpFloorDiv: OpBinaryFloorDiv,
	compiler.OpMod:      OpBinaryMod,
	compiler.OpPow:      OpBinaryPow,
	compiler.OpMatMul:   OpBinaryMatMul,
	compiler.OpBitAnd:   OpBinaryBitAnd,
	compiler.OpBitOr:    OpBinaryBitOr,
	compiler.OpBitXor:   OpBinaryBitXor,
	compiler.OpLShift:   OpBinaryLShift,
	compiler.OpRShift:   OpBinaryRShift,
	compiler.OpEq:       OpBinaryEqual,
	compiler.OpNotEq:    OpBinaryNotEqual,
	compiler.OpLt:       OpBinaryLess,
	compiler.OpLtEq:     OpBinaryLessEqual,
	compiler.OpGt:       OpBinaryGreater,
	compiler.OpGtEq:     OpBinaryGreaterEqual,
	compiler.OpIn:       OpBinaryIn,
	compiler.OpNotIn:    OpBinaryNotIn,
	compiler.OpIs:       OpBinaryIs,
	compiler.OpIsNot:    OpBinaryIsNot,
}

func binaryOpcode(op compiler.Operator) Opcode {
	if code, ok := binaryOpcodes[op]; ok {
		return code
	}
	return OpNop
}

func (c *Compiler) compileExprs(ids []compiler.NodeID) {
	for _, id := range ids {
		c.compileExpr(id)
	}
}

// compileExpr emits code that pushes the value of id.
func (c *Compiler) compileExpr(id compiler.NodeID) {
	switch n := c.prog.Node(id).(type) {
	case *compiler.Literal:
		c.emitConst(c.literalConst(id, n, false))
	case *compiler.Identifier:
		c.loadName(n.Name)
	case *compiler.TemplateString:
		c.compileTemplate(n)
	case *compiler.BinaryOp:
		c.compileExpr(n.Left)
		c.compileExpr(n.Right)
		op := binaryOpcode(n.Op)
		if op == OpNop {
			c.errorf(id, "unsupported binary operator %s", n.Op)
		}
		c.emit(op, 0)
	case *compiler.UnaryOp:
		c.compileUnary(id, n)
	case *compiler.BoolOp:
		c.compileBoolOp(n)
	case *compiler.Compare:
		c.compileCompare(n)
	case *compiler.Call:
		c.compileCall(n)
	case *compiler.Attribute:
		c.compileExpr(n.Value)
		c.emit(OpLoadAttr, c.name(n.Name))
	case *compiler.Subscript:
		c.compileExpr(n.Value)
		c.compileExpr(n.Index)
		c.emit(OpGetItem, 0)
	case *compiler.Slice:
		c.compileSlice(n)
	case *compiler.ListLiteral:
		c.compileSequence(n.Elts, OpBuildList)
	case *compiler.TupleLiteral:
		c.compileSequence(n.Elts, OpBuildTuple)
	case *compiler.SetLiteral:
		c.compileSequence(n.Elts, OpBuildSet)
	case *compiler.DictLiteral:
		c.compileDict(n)
	case *compiler.Lambda:
		c.compileLambda(id, n)
	case *compiler.Comprehension:
		c.compileComprehension(id, n)
	case *compiler.Await:
		c.compileExpr(n.Value)
		c.emit(OpAwait, 0)
	case *compiler.Yield:
		if n.Value.Valid() {
			c.compileExpr(n.Value)
		} else {
			c.emitConst(NoneConst())
		}
		c.emit(OpYield, 0)
	case *compiler.YieldFrom:
		c.compileYieldFrom(n)
	case *compiler.IfExp:
		c.compileExpr(n.Test)
		orElse := c.emitJump(OpJumpIfFalse)
		c.compileExpr(n.Body)
		end := c.emitJump(OpJump)
		c.patch(orElse)
		c.compileExpr(n.Else)
		c.patch(end)
	case *compiler.JSXElement:
		c.compileElement(n)
	case *compiler.JSXFragment:
		c.emitConst(NoneConst())
		c.emit(OpBuildDict, 0)
		c.compileChildren(n.Children)
	case *compiler.JSXText:
		c.emitConst(StringConst(n.Value))
	case *compiler.Spread:
		c.errorf(id, "can't use starred expression here")
	default:
		c.errorf(id, "unexpected %s in expression", c.prog.Node(id).Kind())
	}
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// literalConst converts a literal to a constant. neg folds a leading minus
// into numeric literals.
func (c *Compiler) literalConst(id compiler.NodeID, n *compiler.Literal, neg bool) Constant {
	switch n.LitKind {
	case compiler.LitInt:
		v, err := parseIntLiteral(n.Value, neg)
		if err != nil {
			c.errorf(id, "%s", err.Error())
		}
		return IntConst(v)
	case compiler.LitFloat:
		text := strings.ReplaceAll(n.Value, "_", "")
		v, err := strconv.ParseFloat(text, 64)
		if err != nil && !isRangeErr(err) {
			c.errorf(id, "invalid float literal %q", n.Value)
		}
		if neg {
			v = -v
		}
		return FloatConst(v)
	case compiler.LitString:
		return StringConst(n.Value)
	case compiler.LitBool:
		return BoolConst(n.Value == "True")
	}
	return NoneConst()
}

// parseIntLiteral parses a decimal, hex, octal or binary integer literal.
func parseIntLiteral(lexeme string, neg bool) (int64, error) {
	text := strings.ReplaceAll(lexeme, "_", "")
	if len(text) > 1 && text[0] == '0' && text[1] >= '0' && text[1] <= '9' {
		if strings.Trim(text, "0") != "" {
			return 0, fmt.Errorf("leading zeros in decimal integer literals are not permitted: %s", lexeme)
		}
		text = "0"
	}
	if neg {
		text = "-" + text
	}
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		if isRangeErr(err) {
			return 0, fmt.Errorf("integer literal too large: %s", lexeme)
		}
		return 0, fmt.Errorf("invalid integer literal %q", lexeme)
	}
	return v, nil
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

func (c *Compiler) compileUnary(id compiler.NodeID, n *compiler.UnaryOp) {
	if n.Op == compiler.OpNeg {
		if lit, ok := c.prog.Node(n.Operand).(*compiler.Literal); ok &&
			(lit.LitKind == compiler.LitInt || lit.LitKind == compiler.LitFloat) {
			c.emitConst(c.literalConst(n.Operand, lit, true))
			return
		}
	}
	c.compileExpr(n.Operand)
	switch n.Op {
	case compiler.OpNeg:
		c.emit(OpUnaryNeg, 0)
	case compiler.OpPos:
		c.emit(OpUnaryPos, 0)
	case compiler.OpNot:
		c.emit(OpUnaryNot, 0)
	case compiler.OpInvert:
		c.emit(OpUnaryInvert, 0)
	default:
		c.errorf(id, "unsupported unary operator %s", n.Op)
	}
}

// compileTemplate emits each segment and joins them with BuildString.
func (c *Compiler) compileTemplate(n *compiler.TemplateString) {
	c.compileSegments(n.Parts)
}

// compileSegments leaves the joined string of parts on the stack. A format
// spec with nested fields is built the same way before FormatValue.
func (c *Compiler) compileSegments(parts []compiler.TemplateSegment) {
	count := 0
	for _, part := range parts {
		if !part.Expr.Valid() {
			if part.Text == "" {
				continue
			}
			c.emitConst(StringConst(part.Text))
			count++
			continue
		}
		c.compileExpr(part.Expr)
		arg := conversionArg(part.Conversion)
		switch {
		case len(part.Spec) > 0:
			c.compileSegments(part.Spec)
			arg |= FormatHasSpec
		case part.FormatSpec != "":
			c.emitConst(StringConst(part.FormatSpec))
			arg |= FormatHasSpec
		}
		c.emit(OpFormatValue, arg)
		count++
	}
	if count == 0 {
		c.emitConst(StringConst(""))
		return
	}
	c.emit(OpBuildString, uint32(count))
}

func conversionArg(conv byte) uint32 {
	switch conv {
	case 's':
		return ConvStr
	case 'r':
		return ConvRepr
	case 'a':
		return ConvASCII
	}
	return ConvNone
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

//	<a>; JumpIfFalseOrPop Lend; <b>; JumpIfFalseOrPop Lend; <c>
//	Lend:
func (c *Compiler) compileBoolOp(n *compiler.BoolOp) {
	jump := OpJumpIfFalseOrPop
	if n.Op == compiler.OpOr {
		jump = OpJumpIfTrueOrPop
	}
	var ends []int
	for i, v := range n.Values {
		c.compileExpr(v)
		if i < len(n.Values)-1 {
			ends = append(ends, c.emitJump(jump))
		}
	}
	c.patchAll(ends)
}

//	<a>; <b>; Dup; Rot3; op; JumpIfFalseOrPop Lclean; <c>; op; Jump Lend
//	Lclean: Rot2; Pop
//	Lend:
func (c *Compiler) compileCompare(n *compiler.Compare) {
	c.compileExpr(n.Left)
	if len(n.Ops) == 1 {
		c.compileExpr(n.Comparators[0])
		c.emit(binaryOpcode(n.Ops[0]), 0)
		return
	}
	var cleanup []int
	last := len(n.Ops) - 1
	for i, op := range n.Ops {
		c.compileExpr(n.Comparators[i])
		if i < last {
			c.emit(OpDup, 0)
			c.emit(OpRot3, 0)
			c.emit(binaryOpcode(op), 0)
			cleanup = append(cleanup, c.emitJump(OpJumpIfFalseOrPop))
			continue
		}
		c.emit(binaryOpcode(op), 0)
	}
	end := c.emitJump(OpJump)
	c.patchAll(cleanup)
	c.emit(OpRot2, 0)
	c.emit(OpPop, 0)
	c.patch(end)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (c *Compiler) compileCall(n *compiler.Call) {
	simple := len(n.Keywords) == 0
	for _, a := range n.Args {
		if _, ok := c.prog.Node(a).(*compiler.Spread); ok {
			simple = false
		}
	}

	if simple && c.isBuiltinPrint(n.Func) {
		c.compileExprs(n.Args)
		c.emit(OpPrint, uint32(len(n.Args)))
		return
	}

	c.compileExpr(n.Func)
	if simple {
		c.compileExprs(n.Args)
		c.emit(OpCallFunc, uint32(len(n.Args)))
		return
	}

	c.emit(OpBuildList, 0)
	for _, a := range n.Args {
		if sp, ok := c.prog.Node(a).(*compiler.Spread); ok {
			c.compileExpr(sp.Value)
			c.emit(OpListExtend, 1)
		} else {
			c.compileExpr(a)
			c.emit(OpListAppend, 1)
		}
	}
	c.emit(OpListToTuple, 0)

	var flags uint32
	if len(n.Keywords) > 0 {
		flags |= CallHasKwargs
		c.emit(OpBuildDict, 0)
		for _, kw := range n.Keywords {
			if kw.Name == "" {
				c.compileExpr(kw.Value)
				c.emit(OpDictMerge, 1)
				continue
			}
			c.emitConst(StringConst(kw.Name))
			c.compileExpr(kw.Value)
			c.emit(OpDictInsert, 1)
		}
	}
	c.emit(OpCallFuncEx, flags)
}

// isBuiltinPrint reports whether fn names the print builtin: a global
// lookup that nothing in the module or the current namespace rebinds.
func (c *Compiler) isBuiltinPrint(fn compiler.NodeID) bool {
	id, ok := c.prog.Node(fn).(*compiler.Identifier)
	if !ok || id.Name != "print" {
		return false
	}
	s := c.unit.scope
	if kind, _ := s.resolve("print"); kind != nameGlobal {
		return false
	}
	if s.symbols["print"]&symBound != 0 {
		return false
	}
	mod := c.scopes[compiler.NoNode]
	return mod.symbols["print"]&symBound == 0
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

// compileSequence builds a list, tuple or set. Starred elements switch to
// incremental construction.
func (c *Compiler) compileSequence(elts []compiler.NodeID, build Opcode) {
	starred := false
	for _, e := range elts {
		if _, ok := c.prog.Node(e).(*compiler.Spread); ok {
			starred = true
		}
	}
	if !starred {
		c.compileExprs(elts)
		c.emit(build, uint32(len(elts)))
		return
	}

	container, add := OpBuildList, OpListAppend
	if build == OpBuildSet {
		container, add = OpBuildSet, OpSetAdd
	}
	c.emit(container, 0)
	for _, e := range elts {
		if sp, ok := c.prog.Node(e).(*compiler.Spread); ok {
			c.compileExpr(sp.Value)
			c.emit(OpListExtend, 1)
			continue
		}
		c.compileExpr(e)
		c.emit(add, 1)
	}
	if build == OpBuildTuple {
		c.emit(OpListToTuple, 0)
	}
}

func (c *Compiler) compileDict(n *compiler.DictLiteral) {
	merged := false
	for _, k := range n.Keys {
		if !k.Valid() {
			merged = true
		}
	}
	if !merged {
		for i := range n.Keys {
			c.compileExpr(n.Keys[i])
			c.compileExpr(n.Values[i])
		}
		c.emit(OpBuildDict, uint32(len(n.Keys)))
		return
	}
	c.emit(OpBuildDict, 0)
	for i, k := range n.Keys {
		if !k.Valid() {
			c.compileExpr(n.Values[i])
			c.emit(OpDictMerge, 1)
			continue
		}
		c.compileExpr(k)
		c.compileExpr(n.Values[i])
		c.emit(OpDictInsert, 1)
	}
}

func (c *Compiler) compileSlice(n *compiler.Slice) {
	for _, part := range []compiler.NodeID{n.Lower, n.Upper} {
		if part.Valid() {
			c.compileExpr(part)
		} else {
			c.emitConst(NoneConst())
		}
	}
	if n.Step.Valid() {
		c.compileExpr(n.Step)
		c.emit(OpBuildSlice, 3)
		return
	}
	c.emit(OpBuildSlice, 2)
}

// ---------------------------------------------------------------------------
// Comprehensions and generators
// ---------------------------------------------------------------------------

// compileComprehension compiles the comprehension body as a function taking
// the outermost iterator and calls it immediately.
func (c *Compiler) compileComprehension(id compiler.NodeID, n *compiler.Comprehension) {
	if len(n.Generators) == 0 {
		c.errorf(id, "comprehension without a for clause")
	}
	param := compiler.Param{Name: comprehensionArg, Annotation: compiler.NoNode, Default: compiler.NoNode}
	c.compileFunction(funcSpec{
		node:   id,
		name:   comprehensionName(n.CompKind),
		params: []compiler.Param{param},
		body:   func() { c.compileComprehensionBody(n) },
	})
	c.compileExpr(n.Generators[0].Iter)
	c.emit(OpGetIter, 0)
	c.emit(OpCallFunc, 1)
}

func (c *Compiler) compileComprehensionBody(n *compiler.Comprehension) {
	switch n.CompKind {
	case compiler.CompList:
		c.emit(OpBuildList, 0)
	case compiler.CompSet:
		c.emit(OpBuildSet, 0)
	case compiler.CompDict:
		c.emit(OpBuildDict, 0)
	}

	type loop struct {
		top  uint32
		exit int
	}
	loops := make([]loop, len(n.Generators))
	for i, g := range n.Generators {
		if i == 0 {
			c.emit(OpLoadLocal, 0)
		} else {
			c.compileExpr(g.Iter)
			c.emit(OpGetIter, 0)
		}
		loops[i].top = c.here()
		loops[i].exit = c.emitJump(OpForIter)
		c.compileStore(g.Target)
		for _, cond := range g.Ifs {
			c.compileExpr(cond)
			c.emit(OpJumpIfFalse, loops[i].top)
		}
	}

	depth := uint32(len(n.Generators) + 1)
	switch n.CompKind {
	case compiler.CompList:
		c.compileExpr(n.Elt)
		c.emit(OpListAppend, depth)
	case compiler.CompSet:
		c.compileExpr(n.Elt)
		c.emit(OpSetAdd, depth)
	case compiler.CompDict:
		c.compileExpr(n.Elt)
		c.compileExpr(n.Value)
		c.emit(OpDictInsert, depth)
	case compiler.CompGenerator:
		c.compileExpr(n.Elt)
		c.emit(OpYield, 0)
		c.emit(OpPop, 0)
	}

	for i := len(loops) - 1; i >= 0; i-- {
		c.emit(OpJump, loops[i].top)
		c.patch(loops[i].exit)
	}
	if n.CompKind == compiler.CompGenerator {
		c.emitConst(NoneConst())
	}
	c.emit(OpReturn, 0)
}

//	<iter>; GetIter
//	L: YieldFromIter Lend; Yield; Pop; Jump L
//	Lend: (the iterator's return value)
func (c *Compiler) compileYieldFrom(n *compiler.YieldFrom) {
	c.compileExpr(n.Value)
	c.emit(OpGetIter, 0)
	top := c.here()
	end := c.emitJump(OpYieldFromIter)
	c.emit(OpYield, 0)
	c.emit(OpPop, 0)
	c.emit(OpJump, top)
	c.patch(end)
}

// ---------------------------------------------------------------------------
// JSX
// ---------------------------------------------------------------------------

//	<tag>; <props dict>; <children...>; BuildElement n
func (c *Compiler) compileElement(n *compiler.JSXElement) {
	if isIntrinsicTag(n.Tag) {
		c.emitConst(StringConst(n.Tag))
	} else {
		parts := strings.Split(n.Tag, ".")
		c.loadName(parts[0])
		for _, attr := range parts[1:] {
			c.emit(OpLoadAttr, c.name(attr))
		}
	}

	c.emit(OpBuildDict, 0)
	for _, a := range n.Attrs {
		if a.Spread {
			c.compileExpr(a.Value)
			c.emit(OpDictMerge, 1)
			continue
		}
		c.emitConst(StringConst(a.Name))
		if a.Value.Valid() {
			c.compileExpr(a.Value)
		} else {
			c.emitConst(BoolConst(true))
		}
		c.emit(OpDictInsert, 1)
	}
	c.compileChildren(n.Children)
}

func (c *Compiler) compileChildren(children []compiler.NodeID) {
	count := 0
	for _, ch := range children {
		if sp, ok := c.prog.Node(ch).(*compiler.Spread); ok {
			// Spread children become a list; the VM flattens lists.
			c.compileExpr(sp.Value)
			c.emit(OpBuildList, 0)
			c.emit(OpRot2, 0)
			c.emit(OpListExtend, 1)
			count++
			continue
		}
		if t, ok := c.prog.Node(ch).(*compiler.JSXText); ok && strings.TrimSpace(t.Value) == "" {
			continue
		}
		c.compileExpr(ch)
		count++
	}
	c.emit(OpBuildElement, uint32(count))
}

// isIntrinsicTag reports whether tag names a host element rather than a
// component: lowercase and undotted.
func isIntrinsicTag(tag string) bool {
	_, component := componentHead(tag)
	return !component
}
