package compiler

// ---------------------------------------------------------------------------
// Expressions
//
// Precedence, low to high:
//   lambda < if-else < or < and < not < comparisons < | < ^ < & < << >>
//   < + - < * / // % @ < unary - + ~ await < ** < call, subscript, attribute
// ---------------------------------------------------------------------------

// canStartExpr reports whether the current token can begin an expression.
func (p *Parser) canStartExpr() bool {
	switch p.tok.Type {
	case TokenIdentifier, TokenInteger, TokenFloat, TokenString, TokenTemplateString,
		TokenTrue, TokenFalse, TokenNone, TokenLParen, TokenLBracket, TokenLBrace,
		TokenMinus, TokenPlus, TokenTilde, TokenNot, TokenAwait, TokenLambda,
		TokenStar, TokenLt, TokenEllipsis, TokenYield:
		return true
	}
	return false
}

// parseExprList parses `expr (, expr)* [,]`, producing a tuple when a comma
// is present.
func (p *Parser) parseExprList() NodeID {
	start := p.tok.Pos
	first := p.parseStarOrTest()
	if !p.at(TokenComma) {
		if sp, ok := p.node(first).(*Spread); ok {
			p.failAt(sp.SpanVal.Start, "can't use starred expression here")
		}
		return first
	}
	elts := []NodeID{first}
	for p.accept(TokenComma) {
		if !p.canStartExpr() || p.at(TokenYield) {
			break
		}
		elts = append(elts, p.parseStarOrTest())
	}
	return p.add(&TupleLiteral{base: spanned(p.span(start)), Elts: elts})
}

// parseExprListOrYield is the right-hand side of an assignment or an
// expression statement.
func (p *Parser) parseExprListOrYield() NodeID {
	if p.at(TokenYield) {
		return p.parseYield()
	}
	return p.parseExprList()
}

func (p *Parser) parseYield() NodeID {
	start := p.expect(TokenYield).Pos
	if p.accept(TokenFrom) {
		value := p.parseTest()
		return p.add(&YieldFrom{base: spanned(p.span(start)), Value: value})
	}
	value := NoNode
	if p.canStartExpr() && !p.at(TokenYield) {
		value = p.parseExprList()
	}
	return p.add(&Yield{base: spanned(p.span(start)), Value: value})
}

func (p *Parser) parseStarOrTest() NodeID {
	if p.at(TokenStar) {
		start := p.advance().Pos
		value := p.parseOr()
		return p.add(&Spread{base: spanned(p.span(start)), Value: value})
	}
	return p.parseTest()
}

// parseTest parses a full single expression including lambda and the
// conditional expression.
func (p *Parser) parseTest() NodeID {
	if p.at(TokenLambda) {
		return p.parseLambda()
	}
	if p.at(TokenYield) {
		p.fail("'yield' outside parentheses")
	}
	start := p.tok.Pos
	body := p.parseOr()
	if !p.at(TokenIf) {
		return body
	}
	p.advance()
	test := p.parseOr()
	p.expect(TokenElse)
	orelse := p.parseTest()
	return p.add(&IfExp{base: spanned(p.span(start)), Test: test, Body: body, Else: orelse})
}

// parseTestNoCond parses an expression without a trailing conditional, as
// used in comprehension conditions.
func (p *Parser) parseTestNoCond() NodeID {
	if p.at(TokenLambda) {
		return p.parseLambda()
	}
	return p.parseOr()
}

func (p *Parser) parseLambda() NodeID {
	start := p.expect(TokenLambda).Pos
	params := p.parseParams(TokenColon, false)
	p.expect(TokenColon)
	body := p.parseTest()
	return p.add(&Lambda{base: spanned(p.span(start)), Params: params, Body: body})
}

func (p *Parser) parseOr() NodeID {
	start := p.tok.Pos
	first := p.parseAnd()
	if !p.at(TokenOr) {
		return first
	}
	values := []NodeID{first}
	for p.accept(TokenOr) {
		values = append(values, p.parseAnd())
	}
	return p.add(&BoolOp{base: spanned(p.span(start)), Op: OpOr, Values: values})
}

func (p *Parser) parseAnd() NodeID {
	start := p.tok.Pos
	first := p.parseNot()
	if !p.at(TokenAnd) {
		return first
	}
	values := []NodeID{first}
	for p.accept(TokenAnd) {
		values = append(values, p.parseNot())
	}
	return p.add(&BoolOp{base: spanned(p.span(start)), Op: OpAnd, Values: values})
}

func (p *Parser) parseNot() NodeID {
	if p.at(TokenNot) {
		start := p.advance().Pos
		operand := p.parseNot()
		return p.add(&UnaryOp{base: spanned(p.span(start)), Op: OpNot, Operand: operand})
	}
	return p.parseComparison()
}

// comparisonOp returns the comparison operator at the cursor and the number
// of tokens it spans.
func (p *Parser) comparisonOp() (Operator, int) {
	switch p.tok.Type {
	case TokenEq:
		return OpEq, 1
	case TokenNotEq:
		return OpNotEq, 1
	case TokenLt:
		return OpLt, 1
	case TokenGt:
		return OpGt, 1
	case TokenLtEq:
		return OpLtEq, 1
	case TokenGtEq:
		return OpGtEq, 1
	case TokenIn:
		return OpIn, 1
	case TokenNot:
		if p.peek(1).Type == TokenIn {
			return OpNotIn, 2
		}
	case TokenIs:
		if p.peek(1).Type == TokenNot {
			return OpIsNot, 2
		}
		return OpIs, 1
	}
	return OpNone, 0
}

// parseComparison handles comparisons. A '<' reached here follows a
// complete operand, so it is always less-than and never a JSX tag.
func (p *Parser) parseComparison() NodeID {
	start := p.tok.Pos
	left := p.parseBinary(precBitOr)
	var ops []Operator
	var comparators []NodeID
	for {
		op, n := p.comparisonOp()
		if op == OpNone {
			break
		}
		for i := 0; i < n; i++ {
			p.advance()
		}
		ops = append(ops, op)
		comparators = append(comparators, p.parseBinary(precBitOr))
	}
	switch len(ops) {
	case 0:
		return left
	case 1:
		return p.add(&BinaryOp{base: spanned(p.span(start)), Op: ops[0], Left: left, Right: comparators[0]})
	}
	return p.add(&Compare{base: spanned(p.span(start)), Left: left, Ops: ops, Comparators: comparators})
}

const (
	precBitOr = iota + 1
	precBitXor
	precBitAnd
	precShift
	precAdditive
	precMultiplicative
)

var binaryOps = map[TokenType]struct {
	op   Operator
	prec int
}{
	TokenPipe:        {OpBitOr, precBitOr},
	TokenCaret:       {OpBitXor, precBitXor},
	TokenAmp:         {OpBitAnd, precBitAnd},
	TokenLShift:      {OpLShift, precShift},
	TokenRShift:      {OpRShift, precShift},
	TokenPlus:        {OpAdd, precAdditive},
	TokenMinus:       {OpSub, precAdditive},
	TokenStar:        {OpMul, precMultiplicative},
	TokenSlash:       {OpDiv, precMultiplicative},
	TokenDoubleSlash: {OpFloorDiv, precMultiplicative},
	TokenPercent:     {OpMod, precMultiplicative},
	TokenAt:          {OpMatMul, precMultiplicative},
}

// parseBinary is the precedence-climbing loop for the arithmetic and
// bitwise tiers; all of them are left associative.
func (p *Parser) parseBinary(minPrec int) NodeID {
	start := p.tok.Pos
	left := p.parseUnary()
	for {
		info, ok := binaryOps[p.tok.Type]
		if !ok || info.prec < minPrec {
			return left
		}
		p.advance()
		right := p.parseBinary(info.prec + 1)
		left = p.add(&BinaryOp{base: spanned(p.span(start)), Op: info.op, Left: left, Right: right})
	}
}

func (p *Parser) parseUnary() NodeID {
	start := p.tok.Pos
	var op Operator
	switch p.tok.Type {
	case TokenMinus:
		op = OpNeg
	case TokenPlus:
		op = OpPos
	case TokenTilde:
		op = OpInvert
	case TokenAwait:
		p.advance()
		value := p.parseUnary()
		return p.add(&Await{base: spanned(p.span(start)), Value: value})
	default:
		return p.parsePower()
	}
	p.advance()
	operand := p.parseUnary()
	return p.add(&UnaryOp{base: spanned(p.span(start)), Op: op, Operand: operand})
}

// parsePower parses `postfix ** unary`, which is right associative and
// binds tighter than a unary operator on its left.
func (p *Parser) parsePower() NodeID {
	start := p.tok.Pos
	left := p.parsePostfix(p.parsePrimary())
	if !p.accept(TokenDoubleStar) {
		return left
	}
	right := p.parseUnary()
	return p.add(&BinaryOp{base: spanned(p.span(start)), Op: OpPow, Left: left, Right: right})
}

func (p *Parser) parsePostfix(left NodeID) NodeID {
	start := p.node(left).Span().Start
	for {
		switch p.tok.Type {
		case TokenLParen:
			p.advance()
			args, keywords := p.parseCallArgs()
			p.expect(TokenRParen)
			left = p.add(&Call{base: spanned(p.span(start)), Func: left, Args: args, Keywords: keywords})
		case TokenLBracket:
			p.advance()
			index := p.parseSubscript()
			p.expect(TokenRBracket)
			left = p.add(&Subscript{base: spanned(p.span(start)), Value: left, Index: index})
		case TokenDot:
			p.advance()
			name := p.expectName()
			left = p.add(&Attribute{base: spanned(p.span(start)), Value: left, Name: name})
		default:
			return left
		}
	}
}

// parseCallArgs parses arguments up to the closing ')'.
func (p *Parser) parseCallArgs() ([]NodeID, []Keyword) {
	var args []NodeID
	var keywords []Keyword
	for !p.at(TokenRParen) {
		argPos := p.tok.Pos
		switch {
		case p.at(TokenDoubleStar):
			p.advance()
			keywords = append(keywords, Keyword{Value: p.parseTest()})
		case p.at(TokenStar):
			if len(keywords) > 0 && keywords[len(keywords)-1].Name == "" {
				p.fail("iterable argument unpacking follows keyword argument unpacking")
			}
			args = append(args, p.parseStarOrTest())
		case p.at(TokenIdentifier) && p.peek(1).Type == TokenAssign:
			name := p.advance().Literal
			p.advance()
			for _, kw := range keywords {
				if kw.Name == name {
					p.errorAt(argPos, "keyword argument repeated: %s", name)
				}
			}
			keywords = append(keywords, Keyword{Name: name, Value: p.parseTest()})
		default:
			if len(keywords) > 0 {
				p.fail("positional argument follows keyword argument")
			}
			arg := p.parseTest()
			if p.at(TokenFor) || p.at(TokenAsync) {
				arg = p.parseComprehension(argPos, CompGenerator, arg, NoNode)
			}
			args = append(args, arg)
		}
		if !p.accept(TokenComma) {
			break
		}
	}
	return args, keywords
}

// parseSubscript parses an index, slice or tuple of them.
func (p *Parser) parseSubscript() NodeID {
	start := p.tok.Pos
	first := p.parseSliceItem()
	if !p.at(TokenComma) {
		return first
	}
	elts := []NodeID{first}
	for p.accept(TokenComma) && !p.at(TokenRBracket) {
		elts = append(elts, p.parseSliceItem())
	}
	return p.add(&TupleLiteral{base: spanned(p.span(start)), Elts: elts})
}

func (p *Parser) parseSliceItem() NodeID {
	start := p.tok.Pos
	lower := NoNode
	if !p.at(TokenColon) {
		lower = p.parseStarOrTest()
		if !p.at(TokenColon) {
			return lower
		}
	}
	p.expect(TokenColon)
	upper, step := NoNode, NoNode
	if !p.at(TokenColon) && !p.at(TokenRBracket) && !p.at(TokenComma) {
		upper = p.parseTest()
	}
	if p.accept(TokenColon) {
		if !p.at(TokenRBracket) && !p.at(TokenComma) {
			step = p.parseTest()
		}
	}
	return p.add(&Slice{base: spanned(p.span(start)), Lower: lower, Upper: upper, Step: step})
}

// ---------------------------------------------------------------------------
// Primaries
// ---------------------------------------------------------------------------

func (p *Parser) parsePrimary() NodeID {
	start := p.tok.Pos
	switch p.tok.Type {
	case TokenIdentifier:
		name := p.advance().Literal
		return p.add(&Identifier{base: spanned(p.span(start)), Name: name})
	case TokenInteger:
		lit := p.advance().Literal
		return p.add(&Literal{base: spanned(p.span(start)), LitKind: LitInt, Value: lit})
	case TokenFloat:
		lit := p.advance().Literal
		return p.add(&Literal{base: spanned(p.span(start)), LitKind: LitFloat, Value: lit})
	case TokenString, TokenTemplateString:
		return p.parseStrings()
	case TokenTrue, TokenFalse:
		lit := p.advance().Literal
		return p.add(&Literal{base: spanned(p.span(start)), LitKind: LitBool, Value: lit})
	case TokenNone:
		p.advance()
		return p.add(&Literal{base: spanned(p.span(start)), LitKind: LitNone, Value: "None"})
	case TokenEllipsis:
		p.advance()
		return p.add(&Literal{base: spanned(p.span(start)), LitKind: LitNone, Value: "..."})
	case TokenLParen:
		return p.parseParen()
	case TokenLBracket:
		return p.parseListDisplay()
	case TokenLBrace:
		return p.parseBraceDisplay()
	case TokenLt:
		// '<' in primary position: a tag if a name or '>' follows.
		next := p.peek(1).Type
		if next == TokenIdentifier || next == TokenGt || next.IsKeyword() {
			return p.parseJSX()
		}
	}
	p.fail("unexpected %s", p.tokDesc())
	return NoNode
}

// parseStrings concatenates adjacent string and template literals.
func (p *Parser) parseStrings() NodeID {
	start := p.tok.Pos
	var segs []TemplateSegment
	template := false
	appendText := func(s string) {
		if n := len(segs); n > 0 && segs[n-1].Expr == NoNode {
			segs[n-1].Text += s
			return
		}
		segs = append(segs, TemplateSegment{Text: s, Expr: NoNode})
	}
	for p.at(TokenString) || p.at(TokenTemplateString) {
		tok := p.advance()
		if tok.Type == TokenString {
			appendText(tok.Literal)
			continue
		}
		template = true
		for _, part := range tok.Parts {
			if !part.IsExpr() {
				appendText(part.Text)
				continue
			}
			segs = append(segs, p.templateField(part))
		}
	}
	if !template {
		text := ""
		if len(segs) > 0 {
			text = segs[0].Text
		}
		return p.add(&Literal{base: spanned(p.span(start)), LitKind: LitString, Value: text})
	}
	return p.add(&TemplateString{base: spanned(p.span(start)), Parts: segs})
}

// templateField parses an interpolated part and the fields nested in its
// format spec.
func (p *Parser) templateField(part TemplatePart) TemplateSegment {
	seg := TemplateSegment{
		Expr:       p.subParse(part.Tokens),
		Conversion: part.Conversion,
		FormatSpec: part.FormatSpec,
	}
	for _, sp := range part.Spec {
		if !sp.IsExpr() {
			seg.Spec = append(seg.Spec, TemplateSegment{Text: sp.Text, Expr: NoNode})
			continue
		}
		seg.Spec = append(seg.Spec, p.templateField(sp))
	}
	return seg
}

// parseParen parses a parenthesized group, tuple, yield or generator
// expression.
func (p *Parser) parseParen() NodeID {
	start := p.expect(TokenLParen).Pos
	if p.accept(TokenRParen) {
		return p.add(&TupleLiteral{base: spanned(p.span(start))})
	}
	if p.at(TokenYield) {
		y := p.parseYield()
		p.expect(TokenRParen)
		return y
	}
	first := p.parseStarOrTest()
	if p.at(TokenFor) || p.at(TokenAsync) {
		comp := p.parseComprehension(start, CompGenerator, first, NoNode)
		p.expect(TokenRParen)
		p.setSpan(comp, p.span(start))
		return comp
	}
	if !p.at(TokenComma) {
		p.expect(TokenRParen)
		if _, ok := p.node(first).(*Spread); ok {
			p.failAt(start, "can't use starred expression here")
		}
		return first
	}
	elts := []NodeID{first}
	for p.accept(TokenComma) && !p.at(TokenRParen) {
		elts = append(elts, p.parseStarOrTest())
	}
	p.expect(TokenRParen)
	return p.add(&TupleLiteral{base: spanned(p.span(start)), Elts: elts})
}

func (p *Parser) parseListDisplay() NodeID {
	start := p.expect(TokenLBracket).Pos
	if p.accept(TokenRBracket) {
		return p.add(&ListLiteral{base: spanned(p.span(start))})
	}
	first := p.parseStarOrTest()
	if p.at(TokenFor) || p.at(TokenAsync) {
		comp := p.parseComprehension(start, CompList, first, NoNode)
		p.expect(TokenRBracket)
		p.setSpan(comp, p.span(start))
		return comp
	}
	elts := []NodeID{first}
	for p.accept(TokenComma) && !p.at(TokenRBracket) {
		elts = append(elts, p.parseStarOrTest())
	}
	p.expect(TokenRBracket)
	return p.add(&ListLiteral{base: spanned(p.span(start)), Elts: elts})
}

// parseBraceDisplay parses a dict or set literal or comprehension.
func (p *Parser) parseBraceDisplay() NodeID {
	start := p.expect(TokenLBrace).Pos
	if p.accept(TokenRBrace) {
		return p.add(&DictLiteral{base: spanned(p.span(start))})
	}

	if p.at(TokenDoubleStar) || !p.isSetDisplay() {
		var keys, values []NodeID
		for !p.at(TokenRBrace) {
			if p.accept(TokenDoubleStar) {
				keys = append(keys, NoNode)
				values = append(values, p.parseBinary(precBitOr))
			} else {
				k := p.parseTest()
				p.expect(TokenColon)
				v := p.parseTest()
				if len(keys) == 0 && (p.at(TokenFor) || p.at(TokenAsync)) {
					comp := p.parseComprehension(start, CompDict, k, v)
					p.expect(TokenRBrace)
					p.setSpan(comp, p.span(start))
					return comp
				}
				keys = append(keys, k)
				values = append(values, v)
			}
			if !p.accept(TokenComma) {
				break
			}
		}
		p.expect(TokenRBrace)
		return p.add(&DictLiteral{base: spanned(p.span(start)), Keys: keys, Values: values})
	}

	first := p.parseStarOrTest()
	if p.at(TokenFor) || p.at(TokenAsync) {
		comp := p.parseComprehension(start, CompSet, first, NoNode)
		p.expect(TokenRBrace)
		p.setSpan(comp, p.span(start))
		return comp
	}
	elts := []NodeID{first}
	for p.accept(TokenComma) && !p.at(TokenRBrace) {
		elts = append(elts, p.parseStarOrTest())
	}
	p.expect(TokenRBrace)
	return p.add(&SetLiteral{base: spanned(p.span(start)), Elts: elts})
}

// isSetDisplay looks ahead from just inside '{' for a top-level ':' before
// the first top-level ',' or '}'. Lambdas and slices nest inside brackets,
// except a lambda's own ':' which is skipped.
func (p *Parser) isSetDisplay() bool {
	depth := 0
	lambdas := 0
	for i := p.pos; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case TokenLParen, TokenLBracket, TokenLBrace:
			depth++
		case TokenRParen, TokenRBracket:
			depth--
		case TokenRBrace:
			if depth == 0 {
				return true
			}
			depth--
		case TokenLambda:
			if depth == 0 {
				lambdas++
			}
		case TokenColon:
			if depth == 0 {
				if lambdas > 0 {
					lambdas--
					continue
				}
				return false
			}
		case TokenComma, TokenFor:
			if depth == 0 {
				return true
			}
		case TokenEOF:
			return true
		}
	}
	return true
}

// parseComprehension parses the `for ... in ... if ...` clauses following
// elt (and value, for dict comprehensions).
func (p *Parser) parseComprehension(start Position, kind CompKind, elt, value NodeID) NodeID {
	if sp, ok := p.node(elt).(*Spread); ok {
		p.failAt(sp.SpanVal.Start, "iterable unpacking cannot be used in comprehension")
	}
	var gens []CompFor
	for p.at(TokenFor) || p.at(TokenAsync) {
		async := p.accept(TokenAsync)
		p.expect(TokenFor)
		gen := CompFor{Async: async}
		gen.Target = p.parseTargetList()
		p.expect(TokenIn)
		gen.Iter = p.parseOr()
		for p.accept(TokenIf) {
			gen.Ifs = append(gen.Ifs, p.parseTestNoCond())
		}
		gens = append(gens, gen)
	}
	return p.add(&Comprehension{base: spanned(p.span(start)), CompKind: kind, Elt: elt, Value: value, Generators: gens})
}

func (p *Parser) setSpan(id NodeID, sp Span) {
	if c, ok := p.node(id).(*Comprehension); ok {
		c.SpanVal = sp
	}
}

// ---------------------------------------------------------------------------
// Assignment targets
// ---------------------------------------------------------------------------

// parseTargetList parses one or more comma-separated targets. More than
// one target, a trailing comma or a starred element gives a sequence
// DestructurePattern.
func (p *Parser) parseTargetList() NodeID {
	start := p.tok.Pos
	first := p.parseTarget()
	if !p.at(TokenComma) {
		if p.isStarTarget(first) {
			p.failAt(start, "starred assignment target must be in a list or tuple")
		}
		return first
	}
	elts := []NodeID{first}
	for p.accept(TokenComma) {
		if p.at(TokenAssign) || p.at(TokenIn) || p.at(TokenNewline) || p.at(TokenColon) {
			break
		}
		elts = append(elts, p.parseTarget())
	}
	return p.sequencePattern(start, elts)
}

func (p *Parser) isStarTarget(id NodeID) bool {
	sp, ok := p.node(id).(*Spread)
	return ok && !sp.Double
}

func (p *Parser) sequencePattern(start Position, elts []NodeID) NodeID {
	star := -1
	for i, e := range elts {
		if p.isStarTarget(e) {
			if star >= 0 {
				p.failAt(p.node(e).Span().Start, "multiple starred expressions in assignment")
			}
			star = i
			elts[i] = p.node(e).(*Spread).Value
		}
	}
	return p.add(&DestructurePattern{
		base:         spanned(p.span(start)),
		DestructKind: DestructSequence,
		Elts:         elts,
		Star:         star,
		Rest:         NoNode,
	})
}

// parseTarget parses a single assignment target: a name, attribute,
// subscript, starred target or nested pattern.
func (p *Parser) parseTarget() NodeID {
	start := p.tok.Pos
	switch p.tok.Type {
	case TokenStar:
		p.advance()
		inner := p.parseTarget()
		return p.add(&Spread{base: spanned(p.span(start)), Value: inner})
	case TokenLParen, TokenLBracket:
		closer := TokenRParen
		if p.advance().Type == TokenLBracket {
			closer = TokenRBracket
		}
		var elts []NodeID
		for !p.at(closer) {
			elts = append(elts, p.parseTarget())
			if !p.accept(TokenComma) {
				break
			}
		}
		p.expect(closer)
		if closer == TokenRParen && len(elts) == 1 && !p.isStarTarget(elts[0]) && p.tokens[p.pos-2].Type != TokenComma {
			return elts[0]
		}
		return p.sequencePattern(start, elts)
	case TokenLBrace:
		return p.parseMappingTarget()
	}
	target := p.parsePostfix(p.parsePrimary())
	p.checkTarget(target, true)
	return target
}

// parseMappingTarget parses `{key: target, name, **rest}`. A bare name is
// shorthand for `"name": name`.
func (p *Parser) parseMappingTarget() NodeID {
	start := p.expect(TokenLBrace).Pos
	pat := &DestructurePattern{DestructKind: DestructMapping, Star: -1, Rest: NoNode}
	for !p.at(TokenRBrace) {
		if p.accept(TokenDoubleStar) {
			if pat.Rest != NoNode {
				p.fail("multiple ** targets in mapping pattern")
			}
			pat.Rest = p.parseTarget()
		} else if p.at(TokenIdentifier) && (p.peek(1).Type == TokenComma || p.peek(1).Type == TokenRBrace) {
			tok := p.advance()
			sp := Span{Start: tok.Pos, End: tok.End}
			pat.Keys = append(pat.Keys, p.add(&Literal{base: spanned(sp), LitKind: LitString, Value: tok.Literal}))
			pat.Elts = append(pat.Elts, p.add(&Identifier{base: spanned(sp), Name: tok.Literal}))
		} else {
			key := p.parseTest()
			p.expect(TokenColon)
			pat.Keys = append(pat.Keys, key)
			pat.Elts = append(pat.Elts, p.parseTarget())
		}
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(TokenRBrace)
	pat.SpanVal = p.span(start)
	return p.add(pat)
}

// checkTarget verifies that id can be assigned to. Destructure patterns
// are allowed only when nested is true.
func (p *Parser) checkTarget(id NodeID, nested bool) {
	switch n := p.node(id).(type) {
	case *Identifier:
		if n.Name == "__debug__" {
			p.failAt(n.SpanVal.Start, "cannot assign to __debug__")
		}
		return
	case *Attribute, *Subscript:
		return
	case *DestructurePattern:
		if nested {
			return
		}
	}
	n := p.node(id)
	p.failAt(n.Span().Start, "cannot assign to %s", targetDesc(n))
}

func targetDesc(n Node) string {
	switch v := n.(type) {
	case *Literal:
		return "literal"
	case *Call:
		return "function call"
	case *BinaryOp, *UnaryOp, *BoolOp, *Compare:
		return "expression"
	case *Lambda:
		return "lambda"
	case *Comprehension:
		return "comprehension"
	case *TupleLiteral, *ListLiteral, *DictLiteral:
		return "literal; use a destructuring target"
	default:
		return v.Kind().String()
	}
}
