package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: indentation-aware tokenizer for Nagini source
// ---------------------------------------------------------------------------

// LexErrorKind classifies a fatal lexical error.
type LexErrorKind int

const (
	InvalidCharacter LexErrorKind = iota
	UnterminatedString
	UnterminatedTemplate
	IndentationMismatch
	MixedIndentation
)

var lexErrorKindNames = [...]string{
	InvalidCharacter:     "InvalidCharacter",
	UnterminatedString:   "UnterminatedString",
	UnterminatedTemplate: "UnterminatedTemplate",
	IndentationMismatch:  "IndentationMismatch",
	MixedIndentation:     "MixedIndentation",
}

func (k LexErrorKind) String() string {
	if int(k) < len(lexErrorKindNames) {
		return lexErrorKindNames[k]
	}
	return fmt.Sprintf("LexErrorKind(%d)", k)
}

// LexError is the single error a failed Tokenize call returns.
type LexError struct {
	Kind    LexErrorKind
	Line    int
	Column  int
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
}

// Lexer tokenizes Nagini source code.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at EOF
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
	base    int  // offset added to positions (for template sub-lexers)

	indents       []string // indentation prefixes, seeded with ""
	depth         int      // open bracket depth
	nested        bool     // lexing a template expression
	lineHasTokens bool
	tokens        []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:   input,
		line:    1,
		indents: []string{""},
	}
	l.readChar()
	return l
}

// newSubLexer lexes an embedded template expression that starts at pos in
// the enclosing source. Brackets are treated as already open so line breaks
// inside the braces never produce structural tokens.
func newSubLexer(input string, pos Position) *Lexer {
	l := &Lexer{
		input:   input,
		line:    pos.Line,
		col:     pos.Column - 1,
		base:    pos.Offset,
		indents: []string{""},
		depth:   1,
		nested:  true,
	}
	l.readChar()
	return l
}

// Tokenize converts source into a token stream ending in EOF.
func Tokenize(source string) ([]Token, error) {
	return NewLexer(source).Tokenize()
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.col++
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

func (l *Lexer) eof() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) position() Position {
	return Position{Offset: l.base + l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) errorf(kind LexErrorKind, pos Position, format string, args ...interface{}) *LexError {
	return &LexError{Kind: kind, Line: pos.Line, Column: pos.Column, Message: fmt.Sprintf(format, args...)}
}

func (l *Lexer) emit(typ TokenType, literal string, start Position) {
	l.tokens = append(l.tokens, Token{Type: typ, Literal: literal, Pos: start, End: l.position()})
	if typ != TokenNewline && typ != TokenIndent && typ != TokenDedent {
		l.lineHasTokens = true
	}
}

// Tokenize runs the lexer to completion.
func (l *Lexer) Tokenize() ([]Token, error) {
	atLineStart := l.depth == 0
	for {
		if atLineStart && l.depth == 0 {
			if err := l.handleIndentation(); err != nil {
				return nil, err
			}
		}
		atLineStart = false

		l.skipBlanks()
		if l.eof() {
			break
		}

		if l.ch == '\n' {
			if l.depth == 0 && l.lineHasTokens {
				l.emit(TokenNewline, "\n", l.position())
				l.lineHasTokens = false
			}
			l.readChar()
			atLineStart = true
			continue
		}

		if err := l.lexToken(); err != nil {
			return nil, err
		}
	}

	end := l.position()
	if !l.nested {
		if l.lineHasTokens {
			l.tokens = append(l.tokens, Token{Type: TokenNewline, Literal: "\n", Pos: end, End: end})
			l.lineHasTokens = false
		}
		for len(l.indents) > 1 {
			l.indents = l.indents[:len(l.indents)-1]
			l.tokens = append(l.tokens, Token{Type: TokenDedent, Pos: end, End: end})
		}
	}
	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: end, End: end})
	return l.tokens, nil
}

// handleIndentation measures the leading whitespace of a physical line and
// emits INDENT/DEDENT tokens against the indent stack. Blank and
// comment-only lines are left alone.
func (l *Lexer) handleIndentation() error {
	start := l.position()
	begin := l.pos
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\f' {
		l.readChar()
	}
	if l.eof() || l.ch == '\n' || l.ch == '#' || (l.ch == '\r' && l.peekChar() == '\n') {
		return nil
	}
	prefix := strings.ReplaceAll(l.input[begin:l.pos], "\f", "")

	if strings.ContainsRune(prefix, ' ') && strings.ContainsRune(prefix, '\t') {
		return l.errorf(MixedIndentation, start, "indentation mixes tabs and spaces")
	}

	top := l.indents[len(l.indents)-1]
	switch {
	case prefix == top:
		return nil
	case len(prefix) > len(top) && strings.HasPrefix(prefix, top):
		l.indents = append(l.indents, prefix)
		l.tokens = append(l.tokens, Token{Type: TokenIndent, Literal: prefix, Pos: start, End: l.position()})
		return nil
	}

	for prefix != top {
		if len(l.indents) == 1 {
			return l.errorf(IndentationMismatch, start, "unindent does not match any outer indentation level")
		}
		l.indents = l.indents[:len(l.indents)-1]
		top = l.indents[len(l.indents)-1]
		l.tokens = append(l.tokens, Token{Type: TokenDedent, Pos: start, End: start})
	}
	return nil
}

// skipBlanks skips intra-line whitespace, comments and backslash line
// continuations. Newlines inside brackets are skipped as well.
func (l *Lexer) skipBlanks() {
	for !l.eof() {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\f':
			l.readChar()
		case l.ch == '\r':
			l.readChar()
		case l.ch == '#':
			for !l.eof() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '\\' && (l.peekChar() == '\n' || l.peekChar() == '\r'):
			l.readChar()
			if l.ch == '\r' {
				l.readChar()
			}
			l.readChar()
		case l.ch == '\n' && l.depth > 0:
			l.readChar()
		default:
			return
		}
	}
}

// lexToken reads one significant token.
func (l *Lexer) lexToken() error {
	start := l.position()

	switch {
	case isIdentStart(l.ch):
		return l.readIdentifierOrString(start)
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		l.readNumber(start)
		return nil
	case l.ch == '"' || l.ch == '\'':
		return l.readString(start, false, false)
	}

	if typ, lit, ok := l.matchOperator(); ok {
		for range lit {
			l.readChar()
		}
		switch typ {
		case TokenLParen, TokenLBracket, TokenLBrace:
			l.depth++
		case TokenRParen, TokenRBracket, TokenRBrace:
			if l.depth > 0 {
				l.depth--
			}
		}
		l.emit(typ, lit, start)
		return nil
	}

	return l.errorf(InvalidCharacter, start, "invalid character %q", l.ch)
}

var operators3 = map[string]TokenType{
	"**=": TokenDoubleStarAssign,
	"//=": TokenDoubleSlashAssign,
	"...": TokenEllipsis,
}

var operators2 = map[string]TokenType{
	"**": TokenDoubleStar,
	"//": TokenDoubleSlash,
	"==": TokenEq,
	"!=": TokenNotEq,
	"<=": TokenLtEq,
	">=": TokenGtEq,
	"<<": TokenLShift,
	">>": TokenRShift,
	"+=": TokenPlusAssign,
	"-=": TokenMinusAssign,
	"*=": TokenStarAssign,
	"/=": TokenSlashAssign,
	"%=": TokenPercentAssign,
	"->": TokenArrow,
}

var operators1 = map[byte]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'/': TokenSlash,
	'%': TokenPercent,
	'@': TokenAt,
	'=': TokenAssign,
	'<': TokenLt,
	'>': TokenGt,
	'&': TokenAmp,
	'|': TokenPipe,
	'^': TokenCaret,
	'~': TokenTilde,
	'(': TokenLParen,
	')': TokenRParen,
	'[': TokenLBracket,
	']': TokenRBracket,
	'{': TokenLBrace,
	'}': TokenRBrace,
	',': TokenComma,
	':': TokenColon,
	'.': TokenDot,
	';': TokenSemicolon,
}

// matchOperator finds the longest operator at the current position.
func (l *Lexer) matchOperator() (TokenType, string, bool) {
	rest := l.input[l.pos:]
	if len(rest) >= 3 {
		if typ, ok := operators3[rest[:3]]; ok {
			return typ, rest[:3], true
		}
	}
	if len(rest) >= 2 {
		if typ, ok := operators2[rest[:2]]; ok {
			return typ, rest[:2], true
		}
	}
	if len(rest) >= 1 {
		if typ, ok := operators1[rest[0]]; ok {
			return typ, rest[:1], true
		}
	}
	return 0, "", false
}

// readIdentifierOrString reads an identifier or keyword, or a prefixed
// string literal such as r'..' or f"..".
func (l *Lexer) readIdentifierOrString(start Position) error {
	begin := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	word := l.input[begin:l.pos]

	if l.ch == '"' || l.ch == '\'' {
		switch strings.ToLower(word) {
		case "r":
			return l.readString(start, true, false)
		case "f":
			return l.readString(start, false, true)
		case "rf", "fr":
			return l.readString(start, true, true)
		}
	}

	l.emit(LookupKeyword(word), word, start)
	return nil
}

// readNumber reads an integer or float literal. The lexeme is kept as
// written; conversion happens at compile time.
func (l *Lexer) readNumber(start Position) {
	begin := l.pos
	isFloat := false

	if l.ch == '0' && strings.ContainsRune("xXoObB", l.peekChar()) {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
		l.emit(TokenInteger, l.input[begin:l.pos], start)
		return
	}

	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) || l.ch == '.' && !isIdentStart(l.peekChar()) && l.peekChar() != '.' {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(rune(l.peekAt(2)))) {
			isFloat = true
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) || l.ch == '_' {
				l.readChar()
			}
		}
	}

	if isFloat {
		l.emit(TokenFloat, l.input[begin:l.pos], start)
	} else {
		l.emit(TokenInteger, l.input[begin:l.pos], start)
	}
}

// readString reads a quoted string starting at the opening quote.
func (l *Lexer) readString(start Position, raw, template bool) error {
	quote := l.ch
	triple := l.peekAt(1) == byte(quote) && l.peekAt(2) == byte(quote)
	if triple {
		l.readChar()
		l.readChar()
	}
	l.readChar()

	unterminated := UnterminatedString
	if template {
		unterminated = UnterminatedTemplate
	}

	var (
		sb    strings.Builder
		parts []TemplatePart
	)
	flushText := func() {
		if sb.Len() > 0 {
			parts = append(parts, TemplatePart{Text: sb.String()})
			sb.Reset()
		}
	}

	for {
		if l.eof() {
			return l.errorf(unterminated, start, "unterminated string literal")
		}
		if l.ch == '\n' && !triple {
			return l.errorf(unterminated, start, "unterminated string literal")
		}
		if l.ch == quote {
			if !triple {
				l.readChar()
				break
			}
			if l.peekAt(1) == byte(quote) && l.peekAt(2) == byte(quote) {
				l.readChar()
				l.readChar()
				l.readChar()
				break
			}
		}

		if template && l.ch == '{' {
			if l.peekChar() == '{' {
				sb.WriteRune('{')
				l.readChar()
				l.readChar()
				continue
			}
			flushText()
			part, err := l.readTemplateExpr(quote, triple)
			if err != nil {
				return err
			}
			parts = append(parts, part)
			continue
		}
		if template && l.ch == '}' {
			if l.peekChar() == '}' {
				sb.WriteRune('}')
				l.readChar()
				l.readChar()
				continue
			}
			return l.errorf(UnterminatedTemplate, l.position(), "single '}' is not allowed in template string")
		}

		if l.ch == '\\' && !raw {
			if err := l.readEscape(&sb); err != nil {
				return err
			}
			continue
		}
		if l.ch == '\\' && raw && (l.peekChar() == quote || l.peekChar() == '\\') {
			sb.WriteRune('\\')
			l.readChar()
		}

		sb.WriteRune(l.ch)
		l.readChar()
	}

	if !template {
		l.emit(TokenString, sb.String(), start)
		return nil
	}
	flushText()
	l.tokens = append(l.tokens, Token{
		Type:    TokenTemplateString,
		Literal: l.input[start.Offset-l.base : l.pos],
		Pos:     start,
		End:     l.position(),
		Parts:   parts,
	})
	l.lineHasTokens = true
	return nil
}

// readEscape decodes a backslash escape into sb.
func (l *Lexer) readEscape(sb *strings.Builder) error {
	escPos := l.position()
	l.readChar() // consume backslash
	switch l.ch {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '0':
		sb.WriteByte(0)
	case '\\':
		sb.WriteByte('\\')
	case '\'':
		sb.WriteByte('\'')
	case '"':
		sb.WriteByte('"')
	case '\n':
		// escaped newline joins lines
	case 'x', 'u':
		width := 2
		if l.ch == 'u' {
			width = 4
		}
		var code rune
		for i := 0; i < width; i++ {
			l.readChar()
			d := hexValue(l.ch)
			if d < 0 {
				return l.errorf(InvalidCharacter, escPos, "invalid escape sequence")
			}
			code = code*16 + rune(d)
		}
		sb.WriteRune(code)
	default:
		if l.eof() {
			return l.errorf(UnterminatedString, escPos, "unterminated string literal")
		}
		sb.WriteByte('\\')
		sb.WriteRune(l.ch)
	}
	l.readChar()
	return nil
}

// readTemplateExpr reads a {expr[!c][:spec]} span of a template string and
// re-lexes the expression text into its own token stream.
func (l *Lexer) readTemplateExpr(quote rune, triple bool) (TemplatePart, error) {
	open := l.position()
	l.readChar() // consume {
	exprPos := l.position()
	begin := l.pos

	depth := 0
	var part TemplatePart
	for {
		if l.eof() || (l.ch == '\n' && !triple) {
			return part, l.errorf(UnterminatedTemplate, open, "unterminated template expression")
		}
		if l.ch == quote && !triple {
			return part, l.errorf(UnterminatedTemplate, open, "unterminated template expression")
		}
		switch {
		case l.ch == '(' || l.ch == '[' || l.ch == '{':
			depth++
		case (l.ch == ')' || l.ch == ']') && depth > 0:
			depth--
		case l.ch == '}' && depth > 0:
			depth--
			l.readChar()
			continue
		case (l.ch == '\'' || l.ch == '"') && l.ch != quote:
			inner := l.ch
			l.readChar()
			for !l.eof() && l.ch != inner && l.ch != '\n' {
				l.readChar()
			}
		}
		if depth == 0 && (l.ch == '}' || l.ch == ':' || (l.ch == '!' && l.peekChar() != '=')) {
			break
		}
		l.readChar()
	}
	text := l.input[begin:l.pos]

	if l.ch == '!' {
		l.readChar()
		if l.ch != 'r' && l.ch != 's' && l.ch != 'a' {
			return part, l.errorf(UnterminatedTemplate, l.position(), "invalid conversion character %q", l.ch)
		}
		part.Conversion = byte(l.ch)
		l.readChar()
	}
	if l.ch == ':' {
		l.readChar()
		spec, err := l.readFormatSpec(quote, triple)
		if err != nil {
			return part, err
		}
		part.FormatSpec = spec.Text
		part.Spec = spec.Spec
	}
	if l.ch != '}' {
		return part, l.errorf(UnterminatedTemplate, open, "unterminated template expression")
	}
	l.readChar()

	if strings.TrimSpace(text) == "" {
		return part, l.errorf(UnterminatedTemplate, open, "empty expression in template string")
	}
	sub := newSubLexer(text, exprPos)
	toks, err := sub.Tokenize()
	if err != nil {
		return part, err
	}
	part.Tokens = toks
	part.Pos = exprPos
	return part, nil
}

// readFormatSpec reads the format spec of a replacement field up to its
// closing brace. Nested {expr} fields are lexed like top-level ones and
// returned in Spec next to the raw Text.
func (l *Lexer) readFormatSpec(quote rune, triple bool) (TemplatePart, error) {
	var spec TemplatePart
	begin, segBegin := l.pos, l.pos
	nested := false
	for !l.eof() && l.ch != '}' && l.ch != '\n' && (l.ch != quote || triple) {
		if l.ch != '{' {
			l.readChar()
			continue
		}
		if l.pos > segBegin {
			spec.Spec = append(spec.Spec, TemplatePart{Text: l.input[segBegin:l.pos]})
		}
		field, err := l.readTemplateExpr(quote, triple)
		if err != nil {
			return spec, err
		}
		spec.Spec = append(spec.Spec, field)
		nested = true
		segBegin = l.pos
	}
	spec.Text = l.input[begin:l.pos]
	if !nested {
		spec.Spec = nil
		return spec, nil
	}
	if l.pos > segBegin {
		spec.Spec = append(spec.Spec, TemplatePart{Text: l.input[segBegin:l.pos]})
	}
	return spec, nil
}

// ---------------------------------------------------------------------------
// Character classes
// ---------------------------------------------------------------------------

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return hexValue(r) >= 0
}

func hexValue(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10
	}
	return -1
}
