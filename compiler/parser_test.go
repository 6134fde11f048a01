package compiler

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, input string) *Program {
	t.Helper()
	prog, err := ParseSource(input)
	if err != nil {
		t.Fatalf("ParseSource(%q): %v", input, err)
	}
	return prog
}

// exprOf returns the expression of the i-th top-level ExprStmt.
func exprOf(t *testing.T, prog *Program, i int) Node {
	t.Helper()
	stmt, ok := prog.Node(prog.Body[i]).(*ExprStmt)
	if !ok {
		t.Fatalf("statement %d is %T, want *ExprStmt", i, prog.Node(prog.Body[i]))
	}
	return prog.Node(stmt.Value)
}

func TestParserLiterals(t *testing.T) {
	tests := []struct {
		input string
		kind  LiteralKind
		value string
	}{
		{"42", LitInt, "42"},
		{"3.5", LitFloat, "3.5"},
		{"'hi'", LitString, "hi"},
		{"'a' \"b\"", LitString, "ab"},
		{"True", LitBool, "True"},
		{"None", LitNone, "None"},
	}

	for _, tc := range tests {
		prog := mustParse(t, tc.input)
		lit, ok := exprOf(t, prog, 0).(*Literal)
		if !ok {
			t.Errorf("Parse(%q): got %T, want *Literal", tc.input, exprOf(t, prog, 0))
			continue
		}
		if lit.LitKind != tc.kind || lit.Value != tc.value {
			t.Errorf("Parse(%q) = %v %q, want %v %q", tc.input, lit.LitKind, lit.Value, tc.kind, tc.value)
		}
	}
}

func TestParserPrecedence(t *testing.T) {
	prog := mustParse(t, "1 + 2 * 3\nnot a == b\n-x ** 2\na or b and c\n")

	add, ok := exprOf(t, prog, 0).(*BinaryOp)
	if !ok || add.Op != OpAdd {
		t.Fatalf("stmt 0 = %#v, want BinaryOp(+)", exprOf(t, prog, 0))
	}
	if mul, ok := prog.Node(add.Right).(*BinaryOp); !ok || mul.Op != OpMul {
		t.Errorf("right of + = %#v, want BinaryOp(*)", prog.Node(add.Right))
	}

	not, ok := exprOf(t, prog, 1).(*UnaryOp)
	if !ok || not.Op != OpNot {
		t.Fatalf("stmt 1 = %#v, want UnaryOp(not)", exprOf(t, prog, 1))
	}
	if eq, ok := prog.Node(not.Operand).(*BinaryOp); !ok || eq.Op != OpEq {
		t.Errorf("operand of not = %#v, want BinaryOp(==)", prog.Node(not.Operand))
	}

	neg, ok := exprOf(t, prog, 2).(*UnaryOp)
	if !ok || neg.Op != OpNeg {
		t.Fatalf("stmt 2 = %#v, want UnaryOp(-)", exprOf(t, prog, 2))
	}
	if pow, ok := prog.Node(neg.Operand).(*BinaryOp); !ok || pow.Op != OpPow {
		t.Errorf("operand of - = %#v, want BinaryOp(**)", prog.Node(neg.Operand))
	}

	or, ok := exprOf(t, prog, 3).(*BoolOp)
	if !ok || or.Op != OpOr || len(or.Values) != 2 {
		t.Fatalf("stmt 3 = %#v, want BoolOp(or) of 2", exprOf(t, prog, 3))
	}
	if and, ok := prog.Node(or.Values[1]).(*BoolOp); !ok || and.Op != OpAnd {
		t.Errorf("second operand of or = %#v, want BoolOp(and)", prog.Node(or.Values[1]))
	}
}

func TestParserChainedComparison(t *testing.T) {
	prog := mustParse(t, "a < b <= c\nx not in y\nx is not None\n")
	cmp, ok := exprOf(t, prog, 0).(*Compare)
	if !ok {
		t.Fatalf("got %T, want *Compare", exprOf(t, prog, 0))
	}
	if len(cmp.Ops) != 2 || cmp.Ops[0] != OpLt || cmp.Ops[1] != OpLtEq {
		t.Errorf("ops = %v, want [< <=]", cmp.Ops)
	}
	if op := exprOf(t, prog, 1).(*BinaryOp).Op; op != OpNotIn {
		t.Errorf("op = %v, want not in", op)
	}
	if op := exprOf(t, prog, 2).(*BinaryOp).Op; op != OpIsNot {
		t.Errorf("op = %v, want is not", op)
	}
}

func TestParserJSXDisambiguation(t *testing.T) {
	prog := mustParse(t, "a < b\n<div>text</div>\n")

	lt, ok := exprOf(t, prog, 0).(*BinaryOp)
	if !ok || lt.Op != OpLt {
		t.Fatalf("a < b parsed as %#v, want BinaryOp(<)", exprOf(t, prog, 0))
	}

	el, ok := exprOf(t, prog, 1).(*JSXElement)
	if !ok {
		t.Fatalf("<div>text</div> parsed as %T, want *JSXElement", exprOf(t, prog, 1))
	}
	if el.Tag != "div" || len(el.Children) != 1 {
		t.Fatalf("element = %+v, want div with one child", el)
	}
	if text, ok := prog.Node(el.Children[0]).(*JSXText); !ok || text.Value != "text" {
		t.Errorf("child = %#v, want JSXText(text)", prog.Node(el.Children[0]))
	}
}

func TestParserJSXAttributesAndChildren(t *testing.T) {
	prog := mustParse(t, `el = <Button onClick={handler} disabled label="Hi">Click {name}<br/></Button>`)
	assign := prog.Node(prog.Body[0]).(*Assignment)
	el, ok := prog.Node(assign.Value).(*JSXElement)
	if !ok {
		t.Fatalf("value = %T, want *JSXElement", prog.Node(assign.Value))
	}
	if el.Tag != "Button" {
		t.Errorf("tag = %q, want Button", el.Tag)
	}
	if len(el.Attrs) != 3 {
		t.Fatalf("got %d attrs, want 3", len(el.Attrs))
	}
	if el.Attrs[1].Name != "disabled" || el.Attrs[1].Value != NoNode {
		t.Errorf("attr[1] = %+v, want bare disabled", el.Attrs[1])
	}
	if lit, ok := prog.Node(el.Attrs[2].Value).(*Literal); !ok || lit.Value != "Hi" {
		t.Errorf("attr[2] value = %#v, want Literal(Hi)", prog.Node(el.Attrs[2].Value))
	}
	if len(el.Children) != 3 {
		t.Fatalf("got %d children, want 3", len(el.Children))
	}
	if _, ok := prog.Node(el.Children[1]).(*Identifier); !ok {
		t.Errorf("child[1] = %T, want *Identifier", prog.Node(el.Children[1]))
	}
	if br, ok := prog.Node(el.Children[2]).(*JSXElement); !ok || !br.SelfClosing {
		t.Errorf("child[2] = %#v, want self-closing element", prog.Node(el.Children[2]))
	}
}

func TestParserJSXFragment(t *testing.T) {
	prog := mustParse(t, "x = (\n    <>\n        <Item key={1} />\n        <Item key={2} />\n    </>\n)\n")
	assign := prog.Node(prog.Body[0]).(*Assignment)
	frag, ok := prog.Node(assign.Value).(*JSXFragment)
	if !ok {
		t.Fatalf("value = %T, want *JSXFragment", prog.Node(assign.Value))
	}
	if len(frag.Children) != 2 {
		t.Errorf("got %d children, want 2", len(frag.Children))
	}
}

func TestParserJSXMismatchedClosingTag(t *testing.T) {
	_, err := ParseSource("x = <a>hi</b>\n")
	if err == nil {
		t.Fatal("expected error for mismatched closing tag")
	}
	if !strings.Contains(err.Error(), "closing tag") {
		t.Errorf("error = %v, want closing tag message", err)
	}
}

func TestParserTupleVersusGrouping(t *testing.T) {
	prog := mustParse(t, "(1)\n(1,)\n()\n1, 2\n")
	if _, ok := exprOf(t, prog, 0).(*Literal); !ok {
		t.Errorf("(1) = %T, want *Literal", exprOf(t, prog, 0))
	}
	for i, want := range []int{1, 0, 2} {
		tup, ok := exprOf(t, prog, i+1).(*TupleLiteral)
		if !ok {
			t.Errorf("stmt %d = %T, want *TupleLiteral", i+1, exprOf(t, prog, i+1))
			continue
		}
		if len(tup.Elts) != want {
			t.Errorf("stmt %d has %d elements, want %d", i+1, len(tup.Elts), want)
		}
	}
}

func TestParserStatementCount(t *testing.T) {
	input := `import math
from util import a as b, c

@decorator
def f(x, *args, key=None, **kw) -> int:
    if x:
        return 1
    elif key:
        return 2
    else:
        return 3

class Point(Base):
    def __init__(self, x, y):
        self.x = x
        self.y = y

for i in range(10):
    pass
else:
    pass

while False:
    break

try:
    f(1)
except ValueError as e:
    raise RuntimeError("bad") from e
finally:
    done = True

with open("f") as fh, lock:
    pass

async def main():
    await f(1)

x = 1
del x
`
	prog := mustParse(t, input)
	want := []NodeKind{
		KindImport, KindImport, KindFunctionDef, KindClassDef, KindFor,
		KindWhile, KindTry, KindWith, KindAsyncFunctionDef, KindAssignment, KindDel,
	}
	if len(prog.Body) != len(want) {
		t.Fatalf("got %d statements, want %d", len(prog.Body), len(want))
	}
	for i, kind := range want {
		if got := prog.Node(prog.Body[i]).Kind(); got != kind {
			t.Errorf("statement %d = %v, want %v", i, got, kind)
		}
	}

	fn := prog.Node(prog.Body[2]).(*FunctionDef)
	if len(fn.Decorators) != 1 || len(fn.Params) != 4 {
		t.Errorf("f has %d decorators and %d params, want 1 and 4", len(fn.Decorators), len(fn.Params))
	}
	kinds := []ParamKind{ParamNormal, ParamVarArgs, ParamKwOnly, ParamKwArgs}
	for i, k := range kinds {
		if fn.Params[i].Kind != k {
			t.Errorf("param %d kind = %v, want %v", i, fn.Params[i].Kind, k)
		}
	}
}

func TestParserAssignments(t *testing.T) {
	prog := mustParse(t, "a = b = 1\nx += 2\ny: int = 3\nobj.attr[0] = 4\n")

	chain := prog.Node(prog.Body[0]).(*Assignment)
	if len(chain.Targets) != 2 {
		t.Errorf("chained assignment has %d targets, want 2", len(chain.Targets))
	}
	aug := prog.Node(prog.Body[1]).(*Assignment)
	if aug.Op != OpAdd {
		t.Errorf("augmented op = %v, want +", aug.Op)
	}
	ann := prog.Node(prog.Body[2]).(*Assignment)
	if ann.Annotation == NoNode || ann.Value == NoNode {
		t.Errorf("annotated assignment = %+v, want annotation and value", ann)
	}
	sub := prog.Node(prog.Body[3]).(*Assignment)
	if _, ok := prog.Node(sub.Targets[0]).(*Subscript); !ok {
		t.Errorf("target = %T, want *Subscript", prog.Node(sub.Targets[0]))
	}
}

func TestParserDestructuring(t *testing.T) {
	prog := mustParse(t, "a, b = 1, 2\n[first, *rest] = xs\n{k: v, **others} = d\n(x, (y, z)) = t\n")

	tests := []struct {
		kind DestructKind
		elts int
		star int
	}{
		{DestructSequence, 2, -1},
		{DestructSequence, 2, 1},
		{DestructMapping, 1, -1},
		{DestructSequence, 2, -1},
	}
	for i, tc := range tests {
		d, ok := prog.Node(prog.Body[i]).(*Destructuring)
		if !ok {
			t.Errorf("statement %d = %T, want *Destructuring", i, prog.Node(prog.Body[i]))
			continue
		}
		pat := prog.Node(d.Target).(*DestructurePattern)
		if pat.DestructKind != tc.kind || len(pat.Elts) != tc.elts || pat.Star != tc.star {
			t.Errorf("statement %d pattern = %+v, want kind %v elts %d star %d", i, pat, tc.kind, tc.elts, tc.star)
		}
	}

	mapping := prog.Node(prog.Node(prog.Body[2]).(*Destructuring).Target).(*DestructurePattern)
	if mapping.Rest == NoNode {
		t.Error("mapping pattern lost its **rest target")
	}
	nested := prog.Node(prog.Node(prog.Body[3]).(*Destructuring).Target).(*DestructurePattern)
	if _, ok := prog.Node(nested.Elts[1]).(*DestructurePattern); !ok {
		t.Errorf("nested element = %T, want *DestructurePattern", prog.Node(nested.Elts[1]))
	}
}

func TestParserCallArguments(t *testing.T) {
	prog := mustParse(t, "f(a, *b, c=1, **d)\n")
	call := exprOf(t, prog, 0).(*Call)
	if len(call.Args) != 2 || len(call.Keywords) != 2 {
		t.Fatalf("call has %d args and %d keywords, want 2 and 2", len(call.Args), len(call.Keywords))
	}
	if _, ok := prog.Node(call.Args[1]).(*Spread); !ok {
		t.Errorf("arg[1] = %T, want *Spread", prog.Node(call.Args[1]))
	}
	if call.Keywords[0].Name != "c" || call.Keywords[1].Name != "" {
		t.Errorf("keywords = %+v, want c and **", call.Keywords)
	}
}

func TestParserComprehensions(t *testing.T) {
	prog := mustParse(t, "[x * 2 for x in xs if x]\n{k: v for k, v in items}\n{x for x in s}\nsum(x for x in xs)\n")
	kinds := []CompKind{CompList, CompDict, CompSet}
	for i, kind := range kinds {
		comp, ok := exprOf(t, prog, i).(*Comprehension)
		if !ok {
			t.Errorf("stmt %d = %T, want *Comprehension", i, exprOf(t, prog, i))
			continue
		}
		if comp.CompKind != kind {
			t.Errorf("stmt %d kind = %v, want %v", i, comp.CompKind, kind)
		}
	}
	first := exprOf(t, prog, 0).(*Comprehension)
	if len(first.Generators) != 1 || len(first.Generators[0].Ifs) != 1 {
		t.Errorf("generators = %+v, want one clause with one condition", first.Generators)
	}
	call := exprOf(t, prog, 3).(*Call)
	if comp, ok := prog.Node(call.Args[0]).(*Comprehension); !ok || comp.CompKind != CompGenerator {
		t.Errorf("sum argument = %#v, want generator expression", prog.Node(call.Args[0]))
	}
}

func TestParserLambdaAndConditional(t *testing.T) {
	prog := mustParse(t, "f = lambda a, b=1: a if b else 0\n")
	assign := prog.Node(prog.Body[0]).(*Assignment)
	lam, ok := prog.Node(assign.Value).(*Lambda)
	if !ok {
		t.Fatalf("value = %T, want *Lambda", prog.Node(assign.Value))
	}
	if len(lam.Params) != 2 || lam.Params[1].Default == NoNode {
		t.Errorf("params = %+v, want a and b=1", lam.Params)
	}
	if _, ok := prog.Node(lam.Body).(*IfExp); !ok {
		t.Errorf("body = %T, want *IfExp", prog.Node(lam.Body))
	}
}

func TestParserTemplateString(t *testing.T) {
	prog := mustParse(t, `f"x={x + 1:>4}!"`)
	ts, ok := exprOf(t, prog, 0).(*TemplateString)
	if !ok {
		t.Fatalf("got %T, want *TemplateString", exprOf(t, prog, 0))
	}
	if len(ts.Parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(ts.Parts))
	}
	if ts.Parts[0].Text != "x=" || ts.Parts[2].Text != "!" {
		t.Errorf("text parts = %q, %q", ts.Parts[0].Text, ts.Parts[2].Text)
	}
	if _, ok := prog.Node(ts.Parts[1].Expr).(*BinaryOp); !ok {
		t.Errorf("interpolation = %T, want *BinaryOp", prog.Node(ts.Parts[1].Expr))
	}
	if ts.Parts[1].FormatSpec != ">4" {
		t.Errorf("format spec = %q, want >4", ts.Parts[1].FormatSpec)
	}
}

func TestParserTemplateNestedSpec(t *testing.T) {
	prog := mustParse(t, `f"{v:{fill}^{w + 2}}"`)
	ts := exprOf(t, prog, 0).(*TemplateString)
	spec := ts.Parts[0].Spec
	if len(spec) != 3 {
		t.Fatalf("got %d spec segments, want 3", len(spec))
	}
	if _, ok := prog.Node(spec[0].Expr).(*Identifier); !ok {
		t.Errorf("spec[0] = %T, want *Identifier", prog.Node(spec[0].Expr))
	}
	if spec[1].Expr.Valid() || spec[1].Text != "^" {
		t.Errorf("spec[1] = %+v, want text ^", spec[1])
	}
	if _, ok := prog.Node(spec[2].Expr).(*BinaryOp); !ok {
		t.Errorf("spec[2] = %T, want *BinaryOp", prog.Node(spec[2].Expr))
	}
}

func TestParserMatch(t *testing.T) {
	input := `match point:
    case [x, *rest]:
        pass
    case {"k": v, **kw}:
        pass
    case Point(x=0) | None:
        pass
    case _:
        pass
match = 5
match(x)
`
	prog := mustParse(t, input)
	if len(prog.Body) != 3 {
		t.Fatalf("got %d statements, want 3", len(prog.Body))
	}
	m, ok := prog.Node(prog.Body[0]).(*Match)
	if !ok {
		t.Fatalf("statement 0 = %T, want *Match", prog.Node(prog.Body[0]))
	}
	want := []NodeKind{KindSequencePattern, KindMappingPattern, KindOrPattern, KindWildcardPattern}
	if len(m.Cases) != len(want) {
		t.Fatalf("got %d cases, want %d", len(m.Cases), len(want))
	}
	for i, kind := range want {
		c := prog.Node(m.Cases[i]).(*Case)
		if got := prog.Node(c.Pattern).Kind(); got != kind {
			t.Errorf("case %d pattern = %v, want %v", i, got, kind)
		}
	}
	seq := prog.Node(prog.Node(m.Cases[0]).(*Case).Pattern).(*SequencePattern)
	if seq.Star != 1 || seq.StarName != "rest" {
		t.Errorf("sequence star = %d %q, want 1 rest", seq.Star, seq.StarName)
	}
	if _, ok := prog.Node(prog.Body[1]).(*Assignment); !ok {
		t.Errorf("match = 5 parsed as %T", prog.Node(prog.Body[1]))
	}
	if _, ok := exprOf(t, prog, 2).(*Call); !ok {
		t.Errorf("match(x) parsed as %T", exprOf(t, prog, 2))
	}
}

func TestParserExport(t *testing.T) {
	prog := mustParse(t, "export def f():\n    pass\nexport x = 1\nexport a, b\n")
	for i := 0; i < 3; i++ {
		if _, ok := prog.Node(prog.Body[i]).(*Export); !ok {
			t.Errorf("statement %d = %T, want *Export", i, prog.Node(prog.Body[i]))
		}
	}
	names := prog.Node(prog.Body[2]).(*Export).Names
	if len(names) != 2 {
		t.Errorf("export names = %v", names)
	}
}

func TestParserRecoversMultipleErrors(t *testing.T) {
	input := "x = 1 +\ny = 2\nprint(1 2)\nz = )\nw = 3\n"
	tokens, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	p := NewParser(tokens)
	prog := p.ParseProgram()

	errs := p.Errors()
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
	for i, line := range []int{1, 3, 4} {
		if errs[i].Line != line {
			t.Errorf("error %d on line %d, want %d", i, errs[i].Line, line)
		}
	}
	if len(prog.Body) != 2 {
		t.Errorf("recovered %d statements, want 2", len(prog.Body))
	}

	_, err = Parse(tokens)
	var list ErrorList
	if !errors.As(err, &list) || len(list) != 3 {
		t.Errorf("Parse error = %v, want ErrorList of 3", err)
	}
}

func TestParserErrorsInNestedBlock(t *testing.T) {
	input := "def f():\n    a = \n    b = 1\n    c = ]\nd = 2\n"
	_, err := ParseSource(input)
	var list ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("error = %v, want ErrorList", err)
	}
	if len(list) != 2 || list[0].Line != 2 || list[1].Line != 4 {
		t.Errorf("errors = %v, want lines 2 and 4", list)
	}
}

func TestParserInvalidParams(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"def A(*A, *B): 0\n", "* argument may appear only once"},
		{"def f(*, *rest): pass\n", "* argument may appear only once"},
		{"def f(a, *): pass\n", "named arguments must follow bare *"},
		{"def f(*, **kw): pass\n", "named arguments must follow bare *"},
		{"g = lambda *a, *b: 0\n", "* argument may appear only once"},
	}
	for _, tt := range tests {
		_, err := ParseSource(tt.input)
		var list ErrorList
		if !errors.As(err, &list) || len(list) == 0 {
			t.Errorf("ParseSource(%q) = %v, want ErrorList", tt.input, err)
			continue
		}
		if !strings.Contains(list[0].Message, tt.want) {
			t.Errorf("ParseSource(%q) error %q, want %q", tt.input, list[0].Message, tt.want)
		}
	}
}

func TestParserInvalidTargets(t *testing.T) {
	inputs := []string{
		"1 = x\n",
		"f() = 2\n",
		"a + b += 1\n",
		"*a = b\n",
	}
	for _, input := range inputs {
		if _, err := ParseSource(input); err == nil {
			t.Errorf("ParseSource(%q) succeeded, want error", input)
		}
	}
}

func TestParserLexErrorPassesThrough(t *testing.T) {
	_, err := ParseSource("if x:\n    a\n  b\n")
	var lexErr *LexError
	if !errors.As(err, &lexErr) || lexErr.Kind != IndentationMismatch {
		t.Errorf("error = %v, want IndentationMismatch LexError", err)
	}
}
