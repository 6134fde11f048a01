package compiler

import "strings"

// ---------------------------------------------------------------------------
// JSX elements
//
// Only reached from parsePrimary, so a '<' seen here is in operand
// position. Text children are rebuilt from token lexemes; a line break
// inside an element is only possible within brackets.
// ---------------------------------------------------------------------------

func (p *Parser) parseJSX() NodeID {
	start := p.expect(TokenLt).Pos

	if p.accept(TokenGt) {
		children := p.parseJSXChildren("")
		return p.add(&JSXFragment{base: spanned(p.span(start)), Children: children})
	}

	tag := p.parseJSXName()
	el := &JSXElement{Tag: tag}
	for !p.at(TokenGt) && !p.at(TokenSlash) {
		el.Attrs = append(el.Attrs, p.parseJSXAttr())
	}
	if p.accept(TokenSlash) {
		p.expect(TokenGt)
		el.SelfClosing = true
		el.SpanVal = p.span(start)
		return p.add(el)
	}
	p.expect(TokenGt)
	el.Children = p.parseJSXChildren(tag)
	el.SpanVal = p.span(start)
	return p.add(el)
}

// parseJSXName reads a tag or attribute name. Names may contain '-' and
// '.' when written without spaces, and may be keywords.
func (p *Parser) parseJSXName() string {
	if !p.at(TokenIdentifier) && !p.tok.Type.IsKeyword() {
		p.fail("expected tag name, got %s", p.tokDesc())
	}
	last := p.advance()
	name := last.Literal
	for (p.at(TokenMinus) || p.at(TokenDot)) && p.tok.Pos.Offset == last.End.Offset {
		next := p.peek(1)
		if (next.Type != TokenIdentifier && !next.Type.IsKeyword()) || next.Pos.Offset != p.tok.End.Offset {
			break
		}
		sep := p.advance().Literal
		last = p.advance()
		name += sep + last.Literal
	}
	return name
}

func (p *Parser) parseJSXAttr() JSXAttr {
	if p.accept(TokenLBrace) {
		p.expect(TokenEllipsis)
		value := p.parseTest()
		p.expect(TokenRBrace)
		return JSXAttr{Value: value, Spread: true}
	}
	attr := JSXAttr{Name: p.parseJSXName(), Value: NoNode}
	if !p.accept(TokenAssign) {
		return attr
	}
	start := p.tok.Pos
	switch p.tok.Type {
	case TokenString:
		lit := p.advance().Literal
		attr.Value = p.add(&Literal{base: spanned(p.span(start)), LitKind: LitString, Value: lit})
	case TokenLBrace:
		p.advance()
		attr.Value = p.parseTest()
		p.expect(TokenRBrace)
	case TokenLt:
		attr.Value = p.parseJSX()
	default:
		p.fail("expected attribute value, got %s", p.tokDesc())
	}
	return attr
}

// parseJSXChildren parses children up to the closing tag for tag ("" for a
// fragment) and consumes the closing tag.
func (p *Parser) parseJSXChildren(tag string) []NodeID {
	var children []NodeID
	for {
		switch p.tok.Type {
		case TokenEOF, TokenNewline, TokenIndent, TokenDedent:
			if tag == "" {
				p.fail("unclosed JSX fragment")
			}
			p.fail("unclosed JSX element <%s>", tag)

		case TokenLt:
			if p.peek(1).Type == TokenSlash {
				closePos := p.tok.Pos
				p.advance()
				p.advance()
				name := ""
				if !p.at(TokenGt) {
					name = p.parseJSXName()
				}
				if name != tag {
					p.failAt(closePos, "expected closing tag </%s>, got </%s>", tag, name)
				}
				p.expect(TokenGt)
				return children
			}
			children = append(children, p.parseJSX())

		case TokenLBrace:
			p.advance()
			if p.accept(TokenRBrace) {
				continue
			}
			var child NodeID
			if p.at(TokenEllipsis) {
				start := p.advance().Pos
				value := p.parseTest()
				child = p.add(&Spread{base: spanned(p.span(start)), Value: value})
			} else {
				child = p.parseTest()
			}
			p.expect(TokenRBrace)
			children = append(children, child)

		default:
			children = append(children, p.parseJSXText())
		}
	}
}

// parseJSXText joins the lexemes of consecutive non-structural tokens,
// keeping a single space wherever the source had a gap.
func (p *Parser) parseJSXText() NodeID {
	start := p.tok.Pos
	var sb strings.Builder
	prevEnd := -1
	for {
		switch p.tok.Type {
		case TokenLt, TokenLBrace, TokenEOF, TokenNewline, TokenIndent, TokenDedent:
			return p.add(&JSXText{base: spanned(p.span(start)), Value: sb.String()})
		}
		tok := p.advance()
		if prevEnd >= 0 && tok.Pos.Offset > prevEnd {
			sb.WriteByte(' ')
		}
		switch tok.Type {
		case TokenString:
			sb.WriteString(`"` + tok.Literal + `"`)
		case TokenTemplateString:
			sb.WriteString(tok.Literal)
		default:
			sb.WriteString(tok.Literal)
		}
		prevEnd = tok.End.Offset
	}
}
