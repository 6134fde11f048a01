package bytecode

import (
	"errors"
	"strings"
	"testing"

	"github.com/nagini-lang/nagini/compiler"
)

func compileSource(t *testing.T, source string) *Module {
	t.Helper()
	prog, err := compiler.ParseSource(source)
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	m, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v\n%s", err, m.Disassemble())
	}
	return m
}

func countOp(m *Module, op Opcode) int {
	n := 0
	for _, in := range m.Instructions {
		if in.Op == op {
			n++
		}
	}
	return n
}

// functionNamed returns the header of the function called name.
func functionNamed(t *testing.T, m *Module, name string) *FuncHeader {
	t.Helper()
	for i, in := range m.Instructions {
		if in.Op != OpFuncEntry {
			continue
		}
		h, err := m.Function(i)
		if err != nil {
			t.Fatalf("Function(%d): %v", i, err)
		}
		if h.Name == name {
			return h
		}
	}
	t.Fatalf("no function %q in\n%s", name, m.Disassemble())
	return nil
}

// bodyOps returns the opcodes from a function's body up to its first
// RETURN, skipping LINE markers.
func bodyOps(m *Module, h *FuncHeader) []Opcode {
	var ops []Opcode
	for _, in := range m.Instructions[h.Body:] {
		if in.Op == OpLine {
			continue
		}
		ops = append(ops, in.Op)
		if in.Op == OpReturn {
			break
		}
	}
	return ops
}

func TestCompileAssignmentsShareConstants(t *testing.T) {
	m := compileSource(t, "x = 5\ny = 5")

	want := []Instruction{
		{OpLine, 1},
		{OpLoadConst, 0},
		{OpStoreName, 0},
		{OpLine, 2},
		{OpLoadConst, 0},
		{OpStoreName, 1},
		{OpLoadConst, 1},
		{OpReturn, 0},
	}
	if len(m.Instructions) != len(want) {
		t.Fatalf("got %d instructions, want %d:\n%s", len(m.Instructions), len(want), m.Disassemble())
	}
	for i := range want {
		if m.Instructions[i] != want[i] {
			t.Errorf("instruction %d = %v, want %v", i, m.Instructions[i], want[i])
		}
	}
	ints := 0
	for _, k := range m.Constants {
		if k.Kind == ConstInt {
			ints++
		}
	}
	if ints != 1 || m.Constants[0] != IntConst(5) {
		t.Errorf("constants = %v, want a single int 5", m.Constants)
	}
	if strings.Join(m.Names, ",") != "x,y" {
		t.Errorf("names = %v", m.Names)
	}
}

func TestCompileModuleResult(t *testing.T) {
	tests := []struct {
		source string
		last   Opcode // instruction before the final RETURN
	}{
		{"1 + 2", OpBinaryAdd},
		{"x = 1", OpLoadConst},
		{"x = 1\nx", OpLoadName},
	}
	for _, tt := range tests {
		m := compileSource(t, tt.source)
		n := len(m.Instructions)
		if m.Instructions[n-1].Op != OpReturn {
			t.Errorf("%q: last instruction %v, want RETURN", tt.source, m.Instructions[n-1])
		}
		if got := m.Instructions[n-2].Op; got != tt.last {
			t.Errorf("%q: result computed by %s, want %s", tt.source, got, tt.last)
		}
		if countOp(m, OpPop) != 0 {
			t.Errorf("%q: the final expression must not be popped", tt.source)
		}
	}
}

func TestCompileNegativeLiteralsFold(t *testing.T) {
	tests := []struct {
		source string
		want   Constant
	}{
		{"-5", IntConst(-5)},
		{"-9223372036854775808", IntConst(-9223372036854775808)},
		{"-2.5", FloatConst(-2.5)},
		{"0x_ff", IntConst(255)},
		{"0o17", IntConst(15)},
		{"0b101", IntConst(5)},
		{"1_000", IntConst(1000)},
		{"000", IntConst(0)},
	}
	for _, tt := range tests {
		m := compileSource(t, tt.source)
		if m.Constants[0] != tt.want {
			t.Errorf("%q: constant %v, want %v", tt.source, m.Constants[0], tt.want)
		}
		if countOp(m, OpUnaryNeg) != 0 {
			t.Errorf("%q: negation was not folded", tt.source)
		}
	}
}

func TestCompileFunction(t *testing.T) {
	m := compileSource(t, "def f(x, y=2, *rest, key=None, **opts):\n    return x + y\n")

	h := functionNamed(t, m, "f")
	if h.PosCount != 2 || h.KwOnlyCount != 1 || h.Flags != FlagVarArgs|FlagKwArgs {
		t.Errorf("header = %+v", h)
	}
	if h.LocalCount != 5 || h.DefaultCount() != 2 {
		t.Errorf("locals=%d defaults=%d, want 5 and 2", h.LocalCount, h.DefaultCount())
	}
	names := make([]string, len(h.Params))
	for i, p := range h.Params {
		names[i] = p.Name
	}
	if strings.Join(names, ",") != "x,y,rest,key,opts" {
		t.Errorf("params = %v", names)
	}

	want := []Opcode{OpLoadLocal, OpLoadLocal, OpBinaryAdd, OpReturn}
	got := bodyOps(m, h)
	if len(got) != len(want) {
		t.Fatalf("body = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("body[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if countOp(m, OpMakeFunction) != 1 {
		t.Error("expected one MAKE_FUNCTION")
	}
}

func TestCompileGeneratorAndCoroutineFlags(t *testing.T) {
	m := compileSource(t, "def gen():\n    yield 1\nasync def co():\n    await gen()\n")
	if h := functionNamed(t, m, "gen"); h.Flags&FlagGenerator == 0 {
		t.Errorf("gen flags = %s", h.Flags)
	}
	if h := functionNamed(t, m, "co"); h.Flags&FlagCoroutine == 0 {
		t.Errorf("co flags = %s", h.Flags)
	}
}

func TestCompilePrintFastPath(t *testing.T) {
	tests := []struct {
		source string
		print  bool
	}{
		{"print(1, 2)", true},
		{"def f():\n    print('x')\n", true},
		{"print = len\nprint(1)", false},
		{"def f(print):\n    print(1)\n", false},
		{"print(1, sep='')", false},
		{"print(*xs)", false},
	}
	for _, tt := range tests {
		m := compileSource(t, tt.source)
		if got := countOp(m, OpPrint) > 0; got != tt.print {
			t.Errorf("%q: PRINT emitted = %v, want %v", tt.source, got, tt.print)
		}
	}
}

func TestCompileCallWithKeywords(t *testing.T) {
	m := compileSource(t, "f(1, *a, k=2, **kw)")
	for _, op := range []Opcode{OpListAppend, OpListExtend, OpListToTuple, OpDictInsert, OpDictMerge} {
		if countOp(m, op) != 1 {
			t.Errorf("expected one %s", op)
		}
	}
	for _, in := range m.Instructions {
		if in.Op == OpCallFuncEx && in.Arg != CallHasKwargs {
			t.Errorf("CALL_FUNC_EX arg = %d, want %d", in.Arg, CallHasKwargs)
		}
	}
}

func TestCompileClosureCells(t *testing.T) {
	src := `def make():
    n = 0
    def inc():
        nonlocal n
        n += 1
        return n
    return inc
`
	m := compileSource(t, src)

	outer := functionNamed(t, m, "make")
	if len(outer.Cells) != 1 || outer.Cells[0] != 0 {
		t.Errorf("make cells = %v, want [0]", outer.Cells)
	}
	inner := functionNamed(t, m, "inc")
	if len(inner.Captures) != 1 || inner.Captures[0] != (Capture{FromLocal: true, Index: 0}) {
		t.Errorf("inc captures = %+v", inner.Captures)
	}
	ops := bodyOps(m, inner)
	hasLoad, hasStore := false, false
	for _, op := range ops {
		hasLoad = hasLoad || op == OpLoadUpvalue
		hasStore = hasStore || op == OpStoreUpvalue
	}
	if !hasLoad || !hasStore {
		t.Errorf("inc body = %v, want upvalue load and store", ops)
	}
	if countOp(m, OpStoreCell) == 0 {
		t.Error("make should store n through its cell")
	}
}

func TestCompileClassPassesFreeVariablesThrough(t *testing.T) {
	src := `def outer():
    x = 1
    class A:
        def get(self):
            return x
    return A
`
	m := compileSource(t, src)

	body := functionNamed(t, m, "A")
	if body.Flags&FlagClassBody == 0 {
		t.Errorf("class body flags = %s", body.Flags)
	}
	if len(body.Captures) != 1 || !body.Captures[0].FromLocal {
		t.Errorf("class body captures = %+v, want the local cell of outer", body.Captures)
	}
	get := functionNamed(t, m, "get")
	if len(get.Captures) != 1 || get.Captures[0] != (Capture{Index: 0}) {
		t.Errorf("get captures = %+v, want upvalue 0 of the class body", get.Captures)
	}
	if countOp(m, OpBuildClass) != 1 {
		t.Error("expected BUILD_CLASS")
	}
}

func TestCompileGlobalDeclaration(t *testing.T) {
	m := compileSource(t, "count = 0\ndef bump():\n    global count\n    count = count + 1\n")
	h := functionNamed(t, m, "bump")
	ops := bodyOps(m, h)
	want := []Opcode{OpLoadName, OpLoadConst, OpBinaryAdd, OpStoreName, OpLoadConst, OpReturn}
	if len(ops) != len(want) {
		t.Fatalf("body = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("body[%d] = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestCompileLoops(t *testing.T) {
	m := compileSource(t, "for i in range(3):\n    if i == 1:\n        continue\n    if i == 2:\n        break\nwhile False:\n    pass\n")
	if countOp(m, OpSetupLoop) != 2 || countOp(m, OpForIter) != 1 || countOp(m, OpGetIter) != 1 {
		t.Errorf("unexpected loop shape:\n%s", m.Disassemble())
	}
	if countOp(m, OpBreakLoop) != 1 || countOp(m, OpContinueLoop) != 1 {
		t.Errorf("expected one BREAK_LOOP and one CONTINUE_LOOP")
	}
}

func TestCompileBreakInlinesFinally(t *testing.T) {
	src := `for i in [1, 2]:
    try:
        break
    finally:
        print(i)
`
	m := compileSource(t, src)
	if got := countOp(m, OpPrint); got != 2 {
		t.Errorf("finally body emitted %d times, want 2 (inline and normal):\n%s", got, m.Disassemble())
	}
	if got := countOp(m, OpEndFinally); got != 2 {
		t.Errorf("END_FINALLY count = %d, want 2", got)
	}
}

func TestCompileReturnThroughWith(t *testing.T) {
	m := compileSource(t, "def f(a):\n    with a:\n        return 1\n")
	h := functionNamed(t, m, "f")
	if h.LocalCount != 2 {
		t.Errorf("locals = %d, want parameter plus return temp", h.LocalCount)
	}
	if got := countOp(m, OpWithExit); got != 2 {
		t.Errorf("WITH_EXIT count = %d, want 2", got)
	}
	if countOp(m, OpStoreLocal) != 1 || countOp(m, OpLoadLocal) != 2 {
		t.Errorf("return value should pass through a temp:\n%s", m.Disassemble())
	}
}

func TestCompileTryExcept(t *testing.T) {
	src := `try:
    x = 1
except ValueError as e:
    x = 2
except:
    x = 3
else:
    x = 4
finally:
    x = 5
`
	m := compileSource(t, src)
	checks := map[Opcode]int{
		OpSetupFinally: 1,
		OpSetupExcept:  1,
		OpExceptMatch:  1,
		OpLoadExc:      1,
		OpPopExcept:    2,
		OpEndFinally:   1,
		OpRaise:        0, // bare except catches everything
	}
	for op, want := range checks {
		if got := countOp(m, op); got != want {
			t.Errorf("%s count = %d, want %d", op, got, want)
		}
	}

	m = compileSource(t, "try:\n    pass\nexcept KeyError:\n    pass\n")
	if countOp(m, OpRaise) != 1 {
		t.Error("unmatched exception must be re-raised")
	}
}

func TestCompileChainedComparison(t *testing.T) {
	m := compileSource(t, "a < b <= c")
	for _, op := range []Opcode{OpDup, OpRot3, OpJumpIfFalseOrPop, OpRot2} {
		if countOp(m, op) != 1 {
			t.Errorf("expected one %s:\n%s", op, m.Disassemble())
		}
	}
}

func TestCompileAugmentedTargets(t *testing.T) {
	m := compileSource(t, "a.b += 1\nc[0] -= 2\n")
	if countOp(m, OpStoreAttr) != 1 || countOp(m, OpLoadAttr) != 1 {
		t.Error("attribute augmented assignment should load and store once")
	}
	if countOp(m, OpDup2) != 1 || countOp(m, OpSetItem) != 1 || countOp(m, OpRot3) != 1 {
		t.Errorf("subscript augmented assignment shape:\n%s", m.Disassemble())
	}
}

func TestCompileDestructuring(t *testing.T) {
	m := compileSource(t, "a, *b, c = xs\n{'k': d, **rest} = m\n")
	var ex uint32
	for _, in := range m.Instructions {
		if in.Op == OpUnpackEx {
			ex = in.Arg
		}
	}
	if ex != 1|1<<8 {
		t.Errorf("UNPACK_EX arg = %#x, want before=1 after=1", ex)
	}
	if countOp(m, OpDictRest) != 1 {
		t.Error("expected DICT_REST for **rest")
	}
}

func TestCompileComprehensions(t *testing.T) {
	m := compileSource(t, "[x * y for x in a if x for y in b]\n{k: v for k, v in d}\n(x for x in a)\n")

	list := functionNamed(t, m, "<listcomp>")
	if len(list.Params) != 1 || list.Params[0].Name != ".0" {
		t.Errorf("listcomp params = %+v", list.Params)
	}
	for _, in := range m.Instructions {
		switch in.Op {
		case OpListAppend:
			if in.Arg != 3 {
				t.Errorf("LIST_APPEND depth = %d, want 3", in.Arg)
			}
		case OpDictInsert:
			if in.Arg != 2 {
				t.Errorf("DICT_INSERT depth = %d, want 2", in.Arg)
			}
		}
	}
	if h := functionNamed(t, m, "<genexpr>"); h.Flags&FlagGenerator == 0 {
		t.Errorf("genexpr flags = %s", h.Flags)
	}
}

func TestCompileTopLevelAwait(t *testing.T) {
	m := compileSource(t, "async def add(a, b):\n    return a + b\nprint(await add(2, 2))\n")
	if countOp(m, OpAwait) != 1 {
		t.Errorf("expected one AWAIT in:\n%s", m.Disassemble())
	}
}

func TestCompileMatch(t *testing.T) {
	src := `match cmd:
    case [x, *rest]:
        pass
    case {"op": "add", **others}:
        pass
    case Point(x=0, y=yy) if yy > 0:
        pass
    case 1 | 2 as n:
        pass
    case None:
        pass
    case _:
        pass
`
	m := compileSource(t, src)
	for _, op := range []Opcode{OpMatchSeq, OpMatchMap, OpMatchClass, OpDictRest, OpUnpackEx, OpBinaryIs} {
		if countOp(m, op) == 0 {
			t.Errorf("expected %s in:\n%s", op, m.Disassemble())
		}
	}
	if got := countOp(m, OpGetMatchArg); got != 2 {
		t.Errorf("GET_MATCH_ARG count = %d, want 2", got)
	}
}

func TestCompileTemplateString(t *testing.T) {
	m := compileSource(t, "f\"a{x!r:>5}b\"")
	var format, build Instruction
	for _, in := range m.Instructions {
		switch in.Op {
		case OpFormatValue:
			format = in
		case OpBuildString:
			build = in
		}
	}
	if format.Arg != ConvRepr|FormatHasSpec {
		t.Errorf("FORMAT_VALUE arg = %d", format.Arg)
	}
	if build.Arg != 3 {
		t.Errorf("BUILD_STRING arg = %d, want 3", build.Arg)
	}
}

func TestCompileJSX(t *testing.T) {
	m := compileSource(t, "el = <div id=\"main\" hidden {...extra}><Item.Row n={1} />text</div>\n")
	if got := countOp(m, OpBuildElement); got != 2 {
		t.Errorf("BUILD_ELEMENT count = %d, want 2", got)
	}
	foundTag := false
	for _, k := range m.Constants {
		if k == StringConst("div") {
			foundTag = true
		}
	}
	if !foundTag {
		t.Error("intrinsic tag should be a string constant")
	}
	if countOp(m, OpDictMerge) != 1 {
		t.Error("spread attribute should merge into props")
	}
	if countOp(m, OpLoadAttr) != 1 {
		t.Error("dotted component tag should load an attribute")
	}
}

func TestCompileImportsAndExports(t *testing.T) {
	m := compileSource(t, "import os.path\nfrom m import a as b, c\nfrom n import *\nexport def f():\n    pass\nx = 1\nexport x\n")
	for _, op := range []Opcode{OpImportName, OpImportFrom, OpExport} {
		if countOp(m, op) < 1 {
			t.Errorf("missing %s", op)
		}
	}
	if countOp(m, OpImportStar) != 1 {
		t.Error("missing IMPORT_STAR")
	}
	var exported []string
	for _, in := range m.Instructions {
		if in.Op == OpExport {
			exported = append(exported, m.Names[in.Arg])
		}
	}
	if strings.Join(exported, ",") != "f,x" {
		t.Errorf("exported = %v", exported)
	}
	stored := map[string]bool{}
	for _, in := range m.Instructions {
		if in.Op == OpStoreName {
			stored[m.Names[in.Arg]] = true
		}
	}
	for _, name := range []string{"path", "b", "c"} {
		if !stored[name] {
			t.Errorf("import should bind %q", name)
		}
	}
}

func TestCompileDecorators(t *testing.T) {
	m := compileSource(t, "@a\n@b\ndef f():\n    pass\n")
	// Two decorator calls follow MAKE_FUNCTION.
	for i, in := range m.Instructions {
		if in.Op == OpMakeFunction {
			next := m.Instructions[i+1 : i+4]
			if next[0].Op != OpCallFunc || next[1].Op != OpCallFunc || next[2].Op != OpStoreName {
				t.Errorf("after MAKE_FUNCTION: %v", next)
			}
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		source string
		line   int
		want   string
	}{
		{"break", 1, "'break' outside loop"},
		{"x = 1\ncontinue", 2, "'continue' not properly in loop"},
		{"return 1", 1, "'return' outside function"},
		{"yield 1", 1, "'yield' outside function"},
		{"def f():\n    await g()\n", 2, "'await' outside async function"},
		{"class A:\n    x = await g()\n", 2, "'await' outside async function"},
		{"async def f():\n    return [await x for x in y]\n", 2, "'await' inside a comprehension is not supported"},
		{"async def f():\n    yield 1\n", 2, "'yield' inside async function"},
		{"[(yield x) for x in y]", 1, "'yield' inside comprehension"},
		{"nonlocal x", 1, "nonlocal declaration not allowed at module level"},
		{"def f():\n    nonlocal x\n", 1, "no binding for nonlocal 'x'"},
		{"x = 0123", 1, "leading zeros"},
		{"x = 99999999999999999999", 1, "too large"},
		{"x = 0b12", 1, "invalid integer literal"},
		{"def f():\n    from m import *\n", 2, "'import *' only allowed at module level"},
		{"class A(metaclass=M):\n    pass\n", 1, "class keyword arguments"},
		{"async def f():\n    async for x in y:\n        pass\n", 2, "'async for' is not supported"},
		{"def f():\n    x = 1\n    def g():\n        nonlocal x\n        del x\n", 5, "cannot delete free variable"},
	}

	for _, tt := range tests {
		prog, err := compiler.ParseSource(tt.source)
		if err != nil {
			t.Fatalf("ParseSource(%q): %v", tt.source, err)
		}
		_, err = Compile(prog)
		var ce *CompileError
		if !errors.As(err, &ce) {
			t.Errorf("%q: error = %v, want *CompileError", tt.source, err)
			continue
		}
		if !strings.Contains(ce.Message, tt.want) {
			t.Errorf("%q: message %q, want %q", tt.source, ce.Message, tt.want)
		}
		if ce.Line != tt.line {
			t.Errorf("%q: line %d, want %d", tt.source, ce.Line, tt.line)
		}
	}
}
