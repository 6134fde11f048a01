package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types for the Nagini lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenNewline
	TokenIndent
	TokenDedent

	// Literals
	TokenIdentifier     // foo, Bar
	TokenInteger        // 42, 0xFF, 1_000
	TokenFloat          // 3.14, 1e10
	TokenString         // 'hello', """doc"""
	TokenTemplateString // f"hello {name}"

	// Keywords
	keywordStart
	TokenDef
	TokenAsync
	TokenAwait
	TokenClass
	TokenIf
	TokenElif
	TokenElse
	TokenWhile
	TokenFor
	TokenIn
	TokenTry
	TokenExcept
	TokenFinally
	TokenImport
	TokenFrom
	TokenAs
	TokenExport
	TokenReturn
	TokenBreak
	TokenContinue
	TokenRaise
	TokenWith
	TokenPass
	TokenDel
	TokenLambda
	TokenYield
	TokenAnd
	TokenOr
	TokenNot
	TokenIs
	TokenGlobal
	TokenNonlocal
	TokenAssert
	TokenTrue
	TokenFalse
	TokenNone
	keywordEnd

	// Operators
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenDoubleSlash // //
	TokenPercent     // %
	TokenDoubleStar  // **
	TokenAt          // @
	TokenAssign      // =
	TokenPlusAssign
	TokenMinusAssign
	TokenStarAssign
	TokenSlashAssign
	TokenDoubleSlashAssign
	TokenPercentAssign
	TokenDoubleStarAssign
	TokenEq          // ==
	TokenNotEq       // !=
	TokenLt          // <
	TokenGt          // >
	TokenLtEq        // <=
	TokenGtEq        // >=
	TokenLShift      // <<
	TokenRShift      // >>
	TokenAmp         // &
	TokenPipe        // |
	TokenCaret       // ^
	TokenTilde       // ~

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenColon     // :
	TokenDot       // .
	TokenSemicolon // ;
	TokenArrow     // ->
	TokenEllipsis  // ...
)

var tokenNames = map[TokenType]string{
	TokenEOF:            "EOF",
	TokenNewline:        "NEWLINE",
	TokenIndent:         "INDENT",
	TokenDedent:         "DEDENT",
	TokenIdentifier:     "IDENTIFIER",
	TokenInteger:        "INTEGER",
	TokenFloat:          "FLOAT",
	TokenString:         "STRING",
	TokenTemplateString: "TEMPLATE_STRING",

	TokenPlus:              "+",
	TokenMinus:             "-",
	TokenStar:              "*",
	TokenSlash:             "/",
	TokenDoubleSlash:       "//",
	TokenPercent:           "%",
	TokenDoubleStar:        "**",
	TokenAt:                "@",
	TokenAssign:            "=",
	TokenPlusAssign:        "+=",
	TokenMinusAssign:       "-=",
	TokenStarAssign:        "*=",
	TokenSlashAssign:       "/=",
	TokenDoubleSlashAssign: "//=",
	TokenPercentAssign:     "%=",
	TokenDoubleStarAssign:  "**=",
	TokenEq:                "==",
	TokenNotEq:             "!=",
	TokenLt:                "<",
	TokenGt:                ">",
	TokenLtEq:              "<=",
	TokenGtEq:              ">=",
	TokenLShift:            "<<",
	TokenRShift:            ">>",
	TokenAmp:               "&",
	TokenPipe:              "|",
	TokenCaret:             "^",
	TokenTilde:             "~",
	TokenLParen:            "(",
	TokenRParen:            ")",
	TokenLBracket:          "[",
	TokenRBracket:          "]",
	TokenLBrace:            "{",
	TokenRBrace:            "}",
	TokenComma:             ",",
	TokenColon:             ":",
	TokenDot:               ".",
	TokenSemicolon:         ";",
	TokenArrow:             "->",
	TokenEllipsis:          "...",
}

// keywords maps reserved words to their token types. Soft keywords
// (match, case) are lexed as identifiers and recognized by the parser.
var keywords = map[string]TokenType{
	"def":      TokenDef,
	"async":    TokenAsync,
	"await":    TokenAwait,
	"class":    TokenClass,
	"if":       TokenIf,
	"elif":     TokenElif,
	"else":     TokenElse,
	"while":    TokenWhile,
	"for":      TokenFor,
	"in":       TokenIn,
	"try":      TokenTry,
	"except":   TokenExcept,
	"finally":  TokenFinally,
	"import":   TokenImport,
	"from":     TokenFrom,
	"as":       TokenAs,
	"export":   TokenExport,
	"return":   TokenReturn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"raise":    TokenRaise,
	"with":     TokenWith,
	"pass":     TokenPass,
	"del":      TokenDel,
	"lambda":   TokenLambda,
	"yield":    TokenYield,
	"and":      TokenAnd,
	"or":       TokenOr,
	"not":      TokenNot,
	"is":       TokenIs,
	"global":   TokenGlobal,
	"nonlocal": TokenNonlocal,
	"assert":   TokenAssert,
	"True":     TokenTrue,
	"False":    TokenFalse,
	"None":     TokenNone,
}

func init() {
	for word, typ := range keywords {
		tokenNames[typ] = word
	}
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t > keywordStart && t < keywordEnd
}

// LookupKeyword returns the keyword token type for ident, or
// TokenIdentifier if ident is not reserved.
func LookupKeyword(ident string) TokenType {
	if typ, ok := keywords[ident]; ok {
		return typ
	}
	return TokenIdentifier
}

// Keywords returns the reserved words in sorted order.
func Keywords() []string {
	words := make([]string, 0, len(keywords))
	for w := range keywords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// TemplatePart is one segment of a template string: either literal text or
// an embedded expression given as its own token stream.
type TemplatePart struct {
	Text       string  // literal text (when Tokens is nil)
	Tokens     []Token // expression tokens, terminated by EOF
	Conversion byte    // 0, 'r' or 's'
	FormatSpec string  // text after ':' inside the braces
	// Spec splits FormatSpec into text and nested replacement fields. It
	// is nil when the spec is plain text.
	Spec []TemplatePart
	Pos  Position
}

// IsExpr reports whether the part is an embedded expression.
func (p TemplatePart) IsExpr() bool {
	return p.Tokens != nil
}

// Token represents a lexical token. Tokens are immutable once produced.
type Token struct {
	Type    TokenType
	Literal string   // the raw text, or the decoded value for strings
	Pos     Position // start position
	End     Position // position just after the token
	Parts   []TemplatePart
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewline, TokenIndent, TokenDedent:
		return t.Type.String()
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}
