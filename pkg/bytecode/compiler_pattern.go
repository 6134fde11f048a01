package bytecode

import (
	"github.com/nagini-lang/nagini/compiler"
)

// ---------------------------------------------------------------------------
// match statements
//
// The subject is kept in a hidden local so case bodies run at the
// statement's stack level. Each case tests a fresh load of it; a pattern
// consumes the value under test on success and jumps to a failure label on
// mismatch. Failure labels are keyed by how many values remain on the stack
// so each can pop exactly what its jump left.
// ---------------------------------------------------------------------------

// failures collects pending failure jumps by stack depth.
type failures map[int][]int

func (f failures) add(depth, jump int) {
	f[depth] = append(f[depth], jump)
}

// emitFailLabels places the failure labels for every depth above base,
// popping one value per level, so that all of them arrive at base.
func (c *Compiler) emitFailLabels(f failures, base int) {
	max := base
	for d := range f {
		if d > max {
			max = d
		}
	}
	for d := max; d > base; d-- {
		c.patchAll(f[d])
		c.emit(OpPop, 0)
	}
	c.patchAll(f[base])
}

func (c *Compiler) compileMatch(id compiler.NodeID, n *compiler.Match) {
	c.compileExpr(n.Subject)
	subject := c.newTemp(id)
	c.emit(OpStoreLocal, subject)
	var ends []int
	for _, cid := range n.Cases {
		cs := c.prog.Node(cid).(*compiler.Case)
		c.setLine(cid)
		fail := failures{}

		c.emit(OpLoadLocal, subject)
		c.compilePattern(cs.Pattern, 1, fail)
		if cs.Guard.Valid() {
			c.compileExpr(cs.Guard)
			fail.add(0, c.emitJump(OpJumpIfFalse))
		}
		c.compileStatements(cs.Body)
		ends = append(ends, c.emitJump(OpJump))

		c.emitFailLabels(fail, 0)
	}
	c.patchAll(ends)
}

// compilePattern tests the value on top of the stack, where depth counts
// it and everything above the subject.
func (c *Compiler) compilePattern(id compiler.NodeID, depth int, fail failures) {
	switch p := c.prog.Node(id).(type) {
	case *compiler.WildcardPattern:
		c.emit(OpPop, 0)

	case *compiler.CapturePattern:
		c.storeName(p.Name)

	case *compiler.LiteralPattern:
		c.compileExpr(p.Value)
		if isSingleton(c.prog, p.Value) {
			c.emit(OpBinaryIs, 0)
		} else {
			c.emit(OpBinaryEqual, 0)
		}
		fail.add(depth-1, c.emitJump(OpJumpIfFalse))

	case *compiler.ValuePattern:
		c.compileExpr(p.Value)
		c.emit(OpBinaryEqual, 0)
		fail.add(depth-1, c.emitJump(OpJumpIfFalse))

	case *compiler.AsPattern:
		if p.Pattern.Valid() {
			c.emit(OpDup, 0)
			c.compilePattern(p.Pattern, depth+1, fail)
		}
		c.storeName(p.Name)

	case *compiler.OrPattern:
		c.compileOrPattern(p, depth, fail)

	case *compiler.SequencePattern:
		c.compileSequencePattern(id, p, depth, fail)

	case *compiler.MappingPattern:
		c.compileMappingPattern(p, depth, fail)

	case *compiler.ClassPattern:
		c.compileClassPattern(p, depth, fail)

	default:
		c.errorf(id, "unexpected %s in pattern", c.prog.Node(id).Kind())
	}
}

// isSingleton reports whether id is None, True or False, which patterns
// compare by identity.
func isSingleton(prog *compiler.Program, id compiler.NodeID) bool {
	lit, ok := prog.Node(id).(*compiler.Literal)
	return ok && (lit.LitKind == compiler.LitNone || lit.LitKind == compiler.LitBool)
}

//	for each alternative but the last:
//	    Dup; <alt>; Pop; Jump Lok; <alt failures pop back to the value>
//	<last alt>
//	Lok:
func (c *Compiler) compileOrPattern(p *compiler.OrPattern, depth int, fail failures) {
	var ok []int
	for i, alt := range p.Patterns {
		if i == len(p.Patterns)-1 {
			c.compilePattern(alt, depth, fail)
			break
		}
		local := failures{}
		c.emit(OpDup, 0)
		c.compilePattern(alt, depth+1, local)
		c.emit(OpPop, 0)
		ok = append(ok, c.emitJump(OpJump))
		c.emitFailLabels(local, depth)
	}
	c.patchAll(ok)
}

func (c *Compiler) compileSequencePattern(id compiler.NodeID, p *compiler.SequencePattern, depth int, fail failures) {
	n := len(p.Patterns)
	arg := uint32(n)
	if p.Star >= 0 {
		arg |= MatchAtLeast
	}
	c.emit(OpMatchSeq, arg)
	fail.add(depth, c.emitJump(OpJumpIfFalse))

	if p.Star < 0 {
		c.emit(OpUnpackSeq, uint32(n))
		for i, sub := range p.Patterns {
			c.compilePattern(sub, depth-1+n-i, fail)
		}
		return
	}

	before, after := p.Star, n-p.Star
	if before > 0xFF || after > 0xFFFFFF {
		c.errorf(id, "too many sub-patterns around a star pattern")
	}
	c.emit(OpUnpackEx, uint32(before)|uint32(after)<<8)
	top := depth - 1 + n + 1
	for i := 0; i < before; i++ {
		c.compilePattern(p.Patterns[i], top-i, fail)
	}
	if p.StarName != "" {
		c.storeName(p.StarName)
	} else {
		c.emit(OpPop, 0)
	}
	top -= before + 1
	for i := 0; i < after; i++ {
		c.compilePattern(p.Patterns[before+i], top-i, fail)
	}
}

//	MatchMap; JumpIfFalse fail
//	per key: Dup; <key>; Rot2; BinaryIn; JumpIfFalse fail
//	per key: Dup; <key>; GetItem; <pattern>
//	<keys>; BuildTuple n; DictRest; <store rest> | Pop
func (c *Compiler) compileMappingPattern(p *compiler.MappingPattern, depth int, fail failures) {
	c.emit(OpMatchMap, 0)
	fail.add(depth, c.emitJump(OpJumpIfFalse))
	for _, key := range p.Keys {
		c.emit(OpDup, 0)
		c.compileExpr(key)
		c.emit(OpRot2, 0)
		c.emit(OpBinaryIn, 0)
		fail.add(depth, c.emitJump(OpJumpIfFalse))
	}
	for i, key := range p.Keys {
		c.emit(OpDup, 0)
		c.compileExpr(key)
		c.emit(OpGetItem, 0)
		c.compilePattern(p.Patterns[i], depth+1, fail)
	}
	if p.Rest == "" {
		c.emit(OpPop, 0)
		return
	}
	for _, key := range p.Keys {
		c.compileExpr(key)
	}
	c.emit(OpBuildTuple, uint32(len(p.Keys)))
	c.emit(OpDictRest, 0)
	c.storeName(p.Rest)
}

//	<cls>; MatchClass; JumpIfFalse fail
//	per argument: Dup; <cls>; GetMatchArg i|MatchKeyword|name; JumpIfFalse fail; <pattern>
//	Pop
func (c *Compiler) compileClassPattern(p *compiler.ClassPattern, depth int, fail failures) {
	c.compileExpr(p.Class)
	c.emit(OpMatchClass, 0)
	fail.add(depth, c.emitJump(OpJumpIfFalse))

	sub := func(arg uint32, pat compiler.NodeID) {
		c.emit(OpDup, 0)
		c.compileExpr(p.Class)
		c.emit(OpGetMatchArg, arg)
		fail.add(depth+1, c.emitJump(OpJumpIfFalse))
		c.compilePattern(pat, depth+1, fail)
	}
	for i, pat := range p.Patterns {
		sub(uint32(i), pat)
	}
	for i, name := range p.KwdNames {
		sub(MatchKeyword|c.name(name), p.KwdPatterns[i])
	}
	c.emit(OpPop, 0)
}

// ---------------------------------------------------------------------------
// Destructuring assignment
// ---------------------------------------------------------------------------

// compileDestructure pops a value and unpacks it into the pattern targets.
func (c *Compiler) compileDestructure(id compiler.NodeID, p *compiler.DestructurePattern) {
	if p.DestructKind == compiler.DestructMapping {
		for i, key := range p.Keys {
			c.emit(OpDup, 0)
			c.compileExpr(key)
			c.emit(OpGetItem, 0)
			c.compileStore(p.Elts[i])
		}
		if !p.Rest.Valid() {
			c.emit(OpPop, 0)
			return
		}
		for _, key := range p.Keys {
			c.compileExpr(key)
		}
		c.emit(OpBuildTuple, uint32(len(p.Keys)))
		c.emit(OpDictRest, 0)
		c.compileStore(p.Rest)
		return
	}

	if p.Star < 0 {
		c.emit(OpUnpackSeq, uint32(len(p.Elts)))
	} else {
		before, after := p.Star, len(p.Elts)-p.Star-1
		if before > 0xFF || after > 0xFFFFFF {
			c.errorf(id, "too many expressions in star-unpacking assignment")
		}
		c.emit(OpUnpackEx, uint32(before)|uint32(after)<<8)
	}
	for _, e := range p.Elts {
		c.compileStore(e)
	}
}
