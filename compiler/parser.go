package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent with precedence climbing for expressions
// ---------------------------------------------------------------------------

// ParseError is a single syntax error.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
}

// ErrorList collects every syntax error found in one parse.
type ErrorList []*ParseError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", l[0].Error(), len(l)-1)
}

// Err returns l as an error, or nil if it is empty.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

func (l ErrorList) sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].Line != l[j].Line {
			return l[i].Line < l[j].Line
		}
		return l[i].Column < l[j].Column
	})
}

// bailout unwinds the parser to the nearest statement boundary.
type bailout struct{}

// Parser turns a token stream into a Program.
type Parser struct {
	tokens  []Token
	pos     int
	tok     Token
	prevEnd Position
	prog    *Program
	errors  ErrorList
}

// NewParser creates a parser over tokens. The slice must end with EOF.
func NewParser(tokens []Token) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != TokenEOF {
		tokens = append(tokens[:len(tokens):len(tokens)], Token{Type: TokenEOF})
	}
	p := &Parser{tokens: tokens, prog: &Program{}}
	p.tok = tokens[0]
	return p
}

// Parse parses a complete token stream. A non-nil error is an ErrorList
// holding every syntax error in the stream.
func Parse(tokens []Token) (*Program, error) {
	p := NewParser(tokens)
	prog := p.ParseProgram()
	if err := p.errors.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

// ParseSource lexes and parses source. Lexical errors are returned as
// *LexError, syntax errors as ErrorList.
func ParseSource(source string) (*Program, error) {
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

// ParseProgram parses statements until EOF.
func (p *Parser) ParseProgram() *Program {
	for !p.at(TokenEOF) {
		if p.at(TokenNewline) || p.at(TokenDedent) {
			p.advance()
			continue
		}
		p.prog.Body = append(p.prog.Body, p.parseStatementRecover()...)
	}
	p.errors.sort()
	return p.prog
}

// Errors returns the syntax errors recorded so far.
func (p *Parser) Errors() ErrorList {
	return p.errors
}

// ---------------------------------------------------------------------------
// Token cursor
// ---------------------------------------------------------------------------

func (p *Parser) advance() Token {
	t := p.tok
	if p.pos < len(p.tokens)-1 {
		p.pos++
		p.tok = p.tokens[p.pos]
	}
	if t.Type != TokenEOF {
		p.prevEnd = t.End
	}
	return t
}

func (p *Parser) peek(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) at(t TokenType) bool {
	return p.tok.Type == t
}

func (p *Parser) atName(name string) bool {
	return p.tok.Type == TokenIdentifier && p.tok.Literal == name
}

func (p *Parser) accept(t TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

// expect consumes a token of type t or fails.
func (p *Parser) expect(t TokenType) Token {
	if !p.at(t) {
		p.fail("expected %s, got %s", describe(t), p.tokDesc())
	}
	return p.advance()
}

func (p *Parser) expectName() string {
	if !p.at(TokenIdentifier) {
		p.fail("expected identifier, got %s", p.tokDesc())
	}
	return p.advance().Literal
}

func (p *Parser) tokDesc() string {
	switch p.tok.Type {
	case TokenIdentifier, TokenInteger, TokenFloat:
		return fmt.Sprintf("%q", p.tok.Literal)
	case TokenString, TokenTemplateString:
		return "string literal"
	}
	return describe(p.tok.Type)
}

func describe(t TokenType) string {
	switch t {
	case TokenEOF, TokenNewline, TokenIndent, TokenDedent:
		return strings.ToLower(t.String())
	case TokenIdentifier:
		return "identifier"
	}
	return fmt.Sprintf("'%s'", t)
}

// span returns the span from start to the end of the last consumed token.
func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevEnd}
}

func spanned(sp Span) base {
	return base{SpanVal: sp}
}

func (p *Parser) add(n Node) NodeID {
	return p.prog.Add(n)
}

func (p *Parser) node(id NodeID) Node {
	return p.prog.Node(id)
}

// ---------------------------------------------------------------------------
// Errors and recovery
// ---------------------------------------------------------------------------

// errorAt records an error without unwinding.
func (p *Parser) errorAt(pos Position, format string, args ...interface{}) {
	for _, e := range p.errors {
		if e.Line == pos.Line && e.Column == pos.Column {
			return
		}
	}
	p.errors = append(p.errors, &ParseError{Line: pos.Line, Column: pos.Column, Message: fmt.Sprintf(format, args...)})
}

// fail records an error at the current token and unwinds to the enclosing
// statement.
func (p *Parser) fail(format string, args ...interface{}) {
	p.errorAt(p.tok.Pos, format, args...)
	panic(bailout{})
}

func (p *Parser) failAt(pos Position, format string, args ...interface{}) {
	p.errorAt(pos, format, args...)
	panic(bailout{})
}

// parseStatementRecover parses one statement line, resynchronizing at the
// next statement boundary on error.
func (p *Parser) parseStatementRecover() (ids []NodeID) {
	start := p.pos
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			ids = nil
			p.synchronize()
			if p.pos == start && !p.at(TokenEOF) && !p.at(TokenDedent) {
				p.advance()
			}
		}
	}()
	return p.parseStatement()
}

// synchronize discards tokens up to the next NEWLINE at the current block
// nesting, skipping any block that the failed statement opened, or up to
// the DEDENT that closes the current block.
func (p *Parser) synchronize() {
	depth := 0
	for !p.at(TokenEOF) {
		switch p.tok.Type {
		case TokenIndent:
			depth++
		case TokenDedent:
			if depth == 0 {
				return
			}
			depth--
			if depth == 0 {
				p.advance()
				return
			}
		case TokenNewline:
			if depth == 0 {
				p.advance()
				if !p.at(TokenIndent) {
					return
				}
				continue
			}
		}
		p.advance()
	}
}

// subParse parses the token stream of a template expression into the same
// arena.
func (p *Parser) subParse(tokens []Token) (id NodeID) {
	sub := &Parser{tokens: tokens, prog: p.prog}
	if len(tokens) == 0 {
		return NoNode
	}
	sub.tok = tokens[0]
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			p.errors = append(p.errors, sub.errors...)
			panic(bailout{})
		}
	}()
	id = sub.parseExprList()
	if !sub.at(TokenEOF) {
		sub.fail("unexpected %s in template expression", sub.tokDesc())
	}
	return id
}
