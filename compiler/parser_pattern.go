package compiler

// ---------------------------------------------------------------------------
// match/case patterns
// ---------------------------------------------------------------------------

// patItem is an element of a sequence pattern before assembly.
type patItem struct {
	id   NodeID
	star bool
	name string
	pos  Position
}

// parsePattern parses the pattern of a case clause, which may be an open
// sequence `a, b, *rest`.
func (p *Parser) parsePattern() NodeID {
	start := p.tok.Pos
	first := p.parseSeqItem()
	if !p.at(TokenComma) {
		if first.star {
			p.failAt(first.pos, "star pattern outside of a sequence pattern")
		}
		return first.id
	}
	items := []patItem{first}
	for p.accept(TokenComma) {
		if p.at(TokenColon) || p.at(TokenIf) {
			break
		}
		items = append(items, p.parseSeqItem())
	}
	return p.buildSequencePattern(start, items)
}

func (p *Parser) parseSeqItem() patItem {
	pos := p.tok.Pos
	if p.accept(TokenStar) {
		name := p.expectName()
		if name == "_" {
			name = ""
		}
		return patItem{id: NoNode, star: true, name: name, pos: pos}
	}
	return patItem{id: p.parseAsPattern(), pos: pos}
}

func (p *Parser) buildSequencePattern(start Position, items []patItem) NodeID {
	seq := &SequencePattern{Star: -1}
	for _, it := range items {
		if it.star {
			if seq.Star >= 0 {
				p.failAt(it.pos, "multiple starred names in sequence pattern")
			}
			seq.Star = len(seq.Patterns)
			seq.StarName = it.name
			continue
		}
		seq.Patterns = append(seq.Patterns, it.id)
	}
	seq.SpanVal = p.span(start)
	return p.add(seq)
}

func (p *Parser) parseAsPattern() NodeID {
	start := p.tok.Pos
	pat := p.parseOrPattern()
	if !p.accept(TokenAs) {
		return pat
	}
	name := p.expectName()
	if name == "_" {
		p.failAt(start, "cannot use '_' as a target")
	}
	return p.add(&AsPattern{base: spanned(p.span(start)), Pattern: pat, Name: name})
}

func (p *Parser) parseOrPattern() NodeID {
	start := p.tok.Pos
	first := p.parseClosedPattern()
	if !p.at(TokenPipe) {
		return first
	}
	pats := []NodeID{first}
	for p.accept(TokenPipe) {
		pats = append(pats, p.parseClosedPattern())
	}
	return p.add(&OrPattern{base: spanned(p.span(start)), Patterns: pats})
}

func (p *Parser) parseClosedPattern() NodeID {
	start := p.tok.Pos
	switch p.tok.Type {
	case TokenIdentifier:
		if p.tok.Literal == "_" && p.peek(1).Type != TokenDot && p.peek(1).Type != TokenLParen {
			p.advance()
			return p.add(&WildcardPattern{spanned(p.span(start))})
		}
		name, dotted := p.parseNameChain()
		if p.at(TokenLParen) {
			return p.parseClassPattern(start, name)
		}
		if dotted {
			return p.add(&ValuePattern{base: spanned(p.span(start)), Value: name})
		}
		return p.add(&CapturePattern{base: spanned(p.span(start)), Name: p.node(name).(*Identifier).Name})

	case TokenInteger, TokenFloat, TokenString, TokenTrue, TokenFalse, TokenNone, TokenMinus:
		value := p.parseLiteralKey()
		return p.add(&LiteralPattern{base: spanned(p.span(start)), Value: value})

	case TokenLParen:
		p.advance()
		if p.accept(TokenRParen) {
			return p.add(&SequencePattern{base: spanned(p.span(start)), Star: -1})
		}
		first := p.parseSeqItem()
		if !p.at(TokenComma) {
			p.expect(TokenRParen)
			if first.star {
				p.failAt(first.pos, "star pattern outside of a sequence pattern")
			}
			return first.id
		}
		items := []patItem{first}
		for p.accept(TokenComma) && !p.at(TokenRParen) {
			items = append(items, p.parseSeqItem())
		}
		p.expect(TokenRParen)
		return p.buildSequencePattern(start, items)

	case TokenLBracket:
		p.advance()
		var items []patItem
		for !p.at(TokenRBracket) {
			items = append(items, p.parseSeqItem())
			if !p.accept(TokenComma) {
				break
			}
		}
		p.expect(TokenRBracket)
		return p.buildSequencePattern(start, items)

	case TokenLBrace:
		return p.parseMappingPattern()

	case TokenTemplateString:
		p.fail("patterns may not match formatted string literals")
	}
	p.fail("invalid pattern: unexpected %s", p.tokDesc())
	return NoNode
}

// parseNameChain parses `a.b.c` into an Identifier or Attribute chain.
func (p *Parser) parseNameChain() (NodeID, bool) {
	start := p.tok.Pos
	name := p.expectName()
	id := p.add(&Identifier{base: spanned(p.span(start)), Name: name})
	dotted := false
	for p.at(TokenDot) {
		p.advance()
		attr := p.expectName()
		id = p.add(&Attribute{base: spanned(p.span(start)), Value: id, Name: attr})
		dotted = true
	}
	return id, dotted
}

// parseLiteralKey parses a literal usable in a pattern: numbers (optionally
// negated), strings, True, False and None.
func (p *Parser) parseLiteralKey() NodeID {
	start := p.tok.Pos
	if p.accept(TokenMinus) {
		if !p.at(TokenInteger) && !p.at(TokenFloat) {
			p.fail("expected number after '-' in pattern")
		}
		operand := p.parsePrimary()
		return p.add(&UnaryOp{base: spanned(p.span(start)), Op: OpNeg, Operand: operand})
	}
	switch p.tok.Type {
	case TokenInteger, TokenFloat, TokenTrue, TokenFalse, TokenNone:
		return p.parsePrimary()
	case TokenString:
		return p.parseStrings()
	}
	p.fail("expected literal in pattern, got %s", p.tokDesc())
	return NoNode
}

func (p *Parser) parseClassPattern(start Position, class NodeID) NodeID {
	p.expect(TokenLParen)
	cp := &ClassPattern{Class: class}
	for !p.at(TokenRParen) {
		if p.at(TokenIdentifier) && p.peek(1).Type == TokenAssign {
			name := p.advance().Literal
			p.advance()
			cp.KwdNames = append(cp.KwdNames, name)
			cp.KwdPatterns = append(cp.KwdPatterns, p.parseAsPattern())
		} else {
			if len(cp.KwdNames) > 0 {
				p.fail("positional patterns follow keyword patterns")
			}
			cp.Patterns = append(cp.Patterns, p.parseAsPattern())
		}
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(TokenRParen)
	cp.SpanVal = p.span(start)
	return p.add(cp)
}

func (p *Parser) parseMappingPattern() NodeID {
	start := p.expect(TokenLBrace).Pos
	mp := &MappingPattern{}
	for !p.at(TokenRBrace) {
		if p.accept(TokenDoubleStar) {
			if mp.Rest != "" {
				p.fail("multiple ** in mapping pattern")
			}
			mp.Rest = p.expectName()
		} else {
			if mp.Rest != "" {
				p.fail("** rest must be the last item of a mapping pattern")
			}
			var key NodeID
			if p.at(TokenIdentifier) {
				key, _ = p.parseNameChain()
				if _, ok := p.node(key).(*Attribute); !ok {
					p.failAt(p.node(key).Span().Start, "mapping pattern keys may only match literals and attribute lookups")
				}
			} else {
				key = p.parseLiteralKey()
			}
			p.expect(TokenColon)
			mp.Keys = append(mp.Keys, key)
			mp.Patterns = append(mp.Patterns, p.parseAsPattern())
		}
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(TokenRBrace)
	mp.SpanVal = p.span(start)
	return p.add(mp)
}
