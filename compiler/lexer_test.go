package compiler

import (
	"errors"
	"testing"
)

func tokenTypes(t *testing.T, input string) []TokenType {
	t.Helper()
	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", input, err)
	}
	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func assertTypes(t *testing.T, input string, want []TokenType) {
	t.Helper()
	got := tokenTypes(t, input)
	if len(got) != len(want) {
		t.Fatalf("Tokenize(%q) = %v, want %v", input, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tokenize(%q) token[%d] = %v, want %v", input, i, got[i], want[i])
		}
	}
}

func TestLexerOperators(t *testing.T) {
	input := `( ) [ ] { } + - ** // -> ... == != <= >= << >> += **= @ ~`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenDoubleStar, "**"},
		{TokenDoubleSlash, "//"},
		{TokenArrow, "->"},
		{TokenEllipsis, "..."},
		{TokenEq, "=="},
		{TokenNotEq, "!="},
		{TokenLtEq, "<="},
		{TokenGtEq, ">="},
		{TokenLShift, "<<"},
		{TokenRShift, ">>"},
		{TokenPlusAssign, "+="},
		{TokenDoubleStarAssign, "**="},
		{TokenAt, "@"},
		{TokenTilde, "~"},
		{TokenNewline, "\n"},
		{TokenEOF, ""},
	}

	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != len(expected) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(expected), toks)
	}
	for i, exp := range expected {
		if toks[i].Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, toks[i].Type, exp.typ)
		}
		if toks[i].Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, toks[i].Literal, exp.lit)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	assertTypes(t, "def async await match case None True lambda", []TokenType{
		TokenDef, TokenAsync, TokenAwait, TokenIdentifier, TokenIdentifier,
		TokenNone, TokenTrue, TokenLambda, TokenNewline, TokenEOF,
	})
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"42", TokenInteger},
		{"0xFF", TokenInteger},
		{"0o17", TokenInteger},
		{"0b1010", TokenInteger},
		{"1_000_000", TokenInteger},
		{"3.14", TokenFloat},
		{".5", TokenFloat},
		{"1e10", TokenFloat},
		{"2.5e-3", TokenFloat},
	}

	for _, tc := range tests {
		toks, err := Tokenize(tc.input)
		if err != nil {
			t.Errorf("Tokenize(%q): %v", tc.input, err)
			continue
		}
		if toks[0].Type != tc.typ {
			t.Errorf("Tokenize(%q): type = %v, want %v", tc.input, toks[0].Type, tc.typ)
		}
		if toks[0].Literal != tc.input {
			t.Errorf("Tokenize(%q): literal = %q", tc.input, toks[0].Literal)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'hello'`, "hello"},
		{`"a\tb"`, "a\tb"},
		{`'it\'s'`, "it's"},
		{`r'a\nb'`, `a\nb`},
		{`"\x41\u00e9"`, "Aé"},
		{"\"\"\"line1\nline2\"\"\"", "line1\nline2"},
		{`'''a "quoted" b'''`, `a "quoted" b`},
	}

	for _, tc := range tests {
		toks, err := Tokenize(tc.input)
		if err != nil {
			t.Errorf("Tokenize(%q): %v", tc.input, err)
			continue
		}
		if toks[0].Type != TokenString {
			t.Errorf("Tokenize(%q): type = %v, want STRING", tc.input, toks[0].Type)
		}
		if toks[0].Literal != tc.want {
			t.Errorf("Tokenize(%q): literal = %q, want %q", tc.input, toks[0].Literal, tc.want)
		}
	}
}

func TestLexerTemplateString(t *testing.T) {
	toks, err := Tokenize(`f"hi {name!r:>10} {{x}}"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	tok := toks[0]
	if tok.Type != TokenTemplateString {
		t.Fatalf("type = %v, want TEMPLATE_STRING", tok.Type)
	}
	if len(tok.Parts) != 3 {
		t.Fatalf("got %d parts, want 3: %+v", len(tok.Parts), tok.Parts)
	}
	if tok.Parts[0].IsExpr() || tok.Parts[0].Text != "hi " {
		t.Errorf("part[0] = %+v, want text %q", tok.Parts[0], "hi ")
	}
	expr := tok.Parts[1]
	if !expr.IsExpr() {
		t.Fatalf("part[1] is not an expression")
	}
	if len(expr.Tokens) != 2 || expr.Tokens[0].Type != TokenIdentifier || expr.Tokens[0].Literal != "name" || expr.Tokens[1].Type != TokenEOF {
		t.Errorf("part[1] tokens = %v, want [IDENTIFIER(name) EOF]", expr.Tokens)
	}
	if expr.Conversion != 'r' {
		t.Errorf("conversion = %q, want 'r'", expr.Conversion)
	}
	if expr.FormatSpec != ">10" {
		t.Errorf("format spec = %q, want %q", expr.FormatSpec, ">10")
	}
	if tok.Parts[2].Text != " {x}" {
		t.Errorf("part[2] text = %q, want %q", tok.Parts[2].Text, " {x}")
	}
}

func TestLexerTemplateNestedExpression(t *testing.T) {
	toks, err := Tokenize(`f"{d['k'] + len([1, 2])}"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	parts := toks[0].Parts
	if len(parts) != 1 || !parts[0].IsExpr() {
		t.Fatalf("parts = %+v, want one expression", parts)
	}
	// d [ 'k' ] + len ( [ 1 , 2 ] ) EOF
	if n := len(parts[0].Tokens); n != 14 {
		t.Errorf("got %d expression tokens, want 14: %v", n, parts[0].Tokens)
	}
}

func TestLexerTemplateNestedSpec(t *testing.T) {
	toks, err := Tokenize(`f"{42:>{width}.{prec}f}"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	parts := toks[0].Parts
	if len(parts) != 1 || !parts[0].IsExpr() {
		t.Fatalf("parts = %+v, want one expression", parts)
	}
	field := parts[0]
	if field.FormatSpec != ">{width}.{prec}f" {
		t.Errorf("format spec = %q", field.FormatSpec)
	}
	spec := field.Spec
	if len(spec) != 4 {
		t.Fatalf("got %d spec parts, want 4: %+v", len(spec), spec)
	}
	if spec[0].Text != ">" || spec[2].Text != "." || spec[3].Text != "f" {
		t.Errorf("spec text = %q %q %q", spec[0].Text, spec[2].Text, spec[3].Text)
	}
	if !spec[1].IsExpr() || spec[1].Tokens[0].Literal != "width" {
		t.Errorf("spec[1] = %+v, want the width field", spec[1])
	}

	plain, err := Tokenize(`f"{x:>10}"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if plain[0].Parts[0].Spec != nil {
		t.Errorf("plain spec split into %+v", plain[0].Parts[0].Spec)
	}
}

func TestLexerIndentation(t *testing.T) {
	input := "if x:\n    y = 1\n    if z:\n        w\nv\n"
	assertTypes(t, input, []TokenType{
		TokenIf, TokenIdentifier, TokenColon, TokenNewline,
		TokenIndent, TokenIdentifier, TokenAssign, TokenInteger, TokenNewline,
		TokenIf, TokenIdentifier, TokenColon, TokenNewline,
		TokenIndent, TokenIdentifier, TokenNewline,
		TokenDedent, TokenDedent,
		TokenIdentifier, TokenNewline,
		TokenEOF,
	})
}

func TestLexerBlankAndCommentLines(t *testing.T) {
	input := "def f():\n\n    # comment\n    return 1\n        # deeper comment\n\nf()"
	assertTypes(t, input, []TokenType{
		TokenDef, TokenIdentifier, TokenLParen, TokenRParen, TokenColon, TokenNewline,
		TokenIndent, TokenReturn, TokenInteger, TokenNewline,
		TokenDedent,
		TokenIdentifier, TokenLParen, TokenRParen, TokenNewline,
		TokenEOF,
	})
}

func TestLexerBracketContinuation(t *testing.T) {
	assertTypes(t, "x = (1,\n     2)\ny = 3 + \\\n    4\n", []TokenType{
		TokenIdentifier, TokenAssign, TokenLParen, TokenInteger, TokenComma,
		TokenInteger, TokenRParen, TokenNewline,
		TokenIdentifier, TokenAssign, TokenInteger, TokenPlus, TokenInteger, TokenNewline,
		TokenEOF,
	})
}

func TestLexerIndentDedentBalance(t *testing.T) {
	inputs := []string{
		"a\n",
		"if a:\n    b\n",
		"if a:\n    if b:\n        if c:\n            d",
		"class A:\n  def f(self):\n    return [\n1,\n   2]\n  x = 1\ny = 2\n",
		"while x:\n\tif y:\n\t\tbreak\n\tz()\n",
		"try:\n    pass\nexcept E:\n    pass\nfinally:\n    pass",
	}

	for _, input := range inputs {
		indents, dedents := 0, 0
		for _, typ := range tokenTypes(t, input) {
			switch typ {
			case TokenIndent:
				indents++
			case TokenDedent:
				dedents++
			}
		}
		if indents != dedents {
			t.Errorf("Tokenize(%q): %d INDENT vs %d DEDENT", input, indents, dedents)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	toks, err := Tokenize("ab = 12\ncd")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	expected := []struct {
		line, col int
	}{
		{1, 1}, {1, 4}, {1, 6}, {1, 8}, {2, 1},
	}
	for i, exp := range expected {
		if toks[i].Pos.Line != exp.line || toks[i].Pos.Column != exp.col {
			t.Errorf("token[%d] %v at %d:%d, want %d:%d", i, toks[i], toks[i].Pos.Line, toks[i].Pos.Column, exp.line, exp.col)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  LexErrorKind
		line  int
	}{
		{"invalid character", "x = $", InvalidCharacter, 1},
		{"unterminated string", "x = 'abc\n", UnterminatedString, 1},
		{"unterminated triple string", "x = '''abc\n\n", UnterminatedString, 1},
		{"unterminated template", `x = f"abc {x"`, UnterminatedTemplate, 1},
		{"single brace in template", `x = f"a } b"`, UnterminatedTemplate, 1},
		{"mixed tabs and spaces in prefix", "if x:\n \ty\n", MixedIndentation, 2},
		{"tab line in space block", "if x:\n  a\n\tb\n", IndentationMismatch, 3},
		{"dedent to unknown width", "if x:\n    a\n  b\n", IndentationMismatch, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Tokenize(tc.input)
			if err == nil {
				t.Fatalf("Tokenize(%q) succeeded, want error", tc.input)
			}
			var lexErr *LexError
			if !errors.As(err, &lexErr) {
				t.Fatalf("error %T is not *LexError", err)
			}
			if lexErr.Kind != tc.kind {
				t.Errorf("kind = %v, want %v", lexErr.Kind, tc.kind)
			}
			if lexErr.Line != tc.line {
				t.Errorf("line = %d, want %d", lexErr.Line, tc.line)
			}
		})
	}
}
