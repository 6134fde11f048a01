package compiler

import (
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

var fuzzSeeds = []string{
	// Tokens
	`( ) [ ] { } , : ; . -> := ** // << >> <= >= == != += -= @`,
	// Numbers
	`42`, `0`, `0x1F`, `0o17`, `0b1010`, `1_000`, `3.14`, `1e10`, `1.5e-3`, `.5`,
	// Strings
	`"hello"`, `'hi'`, `""`, `"a\nb"`, `"""triple
quoted"""`, `r"raw\d"`, `b"bytes"`,
	// f-strings
	`f"{x}"`, `f"{x!r:>10}"`, `f"{{literal}}"`, `f"{a + {'k': 1}['k']}"`,
	// Indentation
	"if x:\n    y\n",
	"if x:\n    if y:\n        z\n    w\n",
	"def f():\n\treturn 1\n",
	"if x:\n        a\n    b\n",
	// Statements
	"def f(a, b=1, *args, c, **kw):\n    return a\n",
	"async def g():\n    await sleep(0)\n",
	"class A(B):\n    def m(self):\n        return super().m()\n",
	"for i in range(10):\n    continue\nelse:\n    pass\n",
	"try:\n    x\nexcept E as e:\n    raise\nfinally:\n    y\n",
	"with open() as f, g() as h:\n    pass\n",
	"match p:\n    case Point(x=0, y=y) if y > 0:\n        pass\n    case [1, *rest]:\n        pass\n    case {'k': v, **more}:\n        pass\n",
	"from m import a as b, c\nimport x.y\nexport z = 1\n",
	"lambda x, *y: x if y else None",
	"[x for x in xs if x for y in x]",
	"{k: v for k, v in d.items()}",
	// JSX
	`<div class="a">{x}</div>`, `<Comp {...props} n={1} />`, `<></>`, `<a><b>text</b></a>`,
	// Edge cases
	`"unterminated`, `"""unterminated`, `f"{unclosed`, `<div>`, `$`, `?`, "\\\n",
	// Unicode
	`"こんにちは"`, `café = 1`, `naïve`,
	// Empty and whitespace
	``, `   `, "\t\n\r", "\n\n\n",
}

func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		tokens, err := Tokenize(data)
		if err != nil {
			return
		}
		if len(tokens) == 0 || tokens[len(tokens)-1].Type != TokenEOF {
			t.Fatalf("token stream for %q does not end with EOF", data)
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzParser: ensure the parser never panics on arbitrary input.
// Syntax errors are acceptable; panics are not.
// ---------------------------------------------------------------------------

func FuzzParser(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", data, r)
			}
		}()

		prog, err := ParseSource(data)
		if err != nil {
			return
		}
		for _, id := range prog.Body {
			if prog.Node(id) == nil {
				t.Fatalf("top-level statement %d of %q is not in the arena", id, data)
			}
		}
	})
}
