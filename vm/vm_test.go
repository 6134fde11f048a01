package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nagini-lang/nagini/compiler"
	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func compile(t *testing.T, source string) *bytecode.Module {
	t.Helper()
	prog, err := compiler.ParseSource(source)
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, source)
	}
	m, err := bytecode.Compile(prog)
	if err != nil {
		t.Fatalf("compile: %v\n%s", err, source)
	}
	return m
}

// run executes source and returns what it printed.
func run(t *testing.T, source string, opts ...Option) string {
	t.Helper()
	var out bytes.Buffer
	v := New(append([]Option{WithStdout(&out), WithStackCheck(true)}, opts...)...)
	if _, err := v.Run(context.Background(), compile(t, source)); err != nil {
		t.Fatalf("run: %v\noutput so far:\n%s", err, out.String())
	}
	return out.String()
}

// runErr executes source and returns the error it fails with.
func runErr(t *testing.T, source string) error {
	t.Helper()
	v := New(WithStdout(&bytes.Buffer{}))
	_, err := v.Run(context.Background(), compile(t, source))
	if err == nil {
		t.Fatalf("expected an error running:\n%s", source)
	}
	return err
}

func expectOutput(t *testing.T, source, want string) {
	t.Helper()
	if got := run(t, source); got != want {
		t.Errorf("output mismatch for:\n%s\ngot:\n%s\nwant:\n%s", source, got, want)
	}
}

// ---------------------------------------------------------------------------
// Expressions and statements
// ---------------------------------------------------------------------------

func TestResultOfLastExpression(t *testing.T) {
	tests := []struct {
		source string
		want   Value
	}{
		{"1 + 2 * 3", Int(7)},
		{"7 / 2", Float(3.5)},
		{"7 // 2", Int(3)},
		{"-7 // 2", Int(-4)},
		{"-7 % 3", Int(2)},
		{"2 ** 10", Int(1024)},
		{"1 + 0.5", Float(1.5)},
		{"'ab' * 3", Str("ababab")},
		{"not 0", True},
		{"1 < 2 < 3", True},
		{"1 < 3 < 2", False},
		{"x = 5\nx", Int(5)},
		{"0 or 'default'", Str("default")},
		{"'' and 1", Str("")},
		{"3 if True else 4", Int(3)},
		{"len([1, 2, 3])", Int(3)},
		{"x = 1", None},
	}
	for _, tt := range tests {
		v := New(WithStdout(&bytes.Buffer{}))
		got, err := v.Run(context.Background(), compile(t, tt.source))
		if err != nil {
			t.Errorf("%q: %v", tt.source, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q = %#v, want %#v", tt.source, got, tt.want)
		}
	}
}

func TestPrint(t *testing.T) {
	expectOutput(t, `
print(1, "two", 3.0, None, True)
print([1, "a"], (1,), {"k": [2]}, set())
print("a", "b", sep="-", end="!\n")
`, "1 two 3.0 None True\n[1, 'a'] (1,) {'k': [2]} set()\na-b!\n")
}

func TestControlFlow(t *testing.T) {
	expectOutput(t, `
total = 0
for i in range(10):
    if i % 2 == 0:
        continue
    if i > 7:
        break
    total += i
print(total)

n = 0
while n < 3:
    n += 1
else:
    print("while-else", n)

for x in []:
    pass
else:
    print("for-else")

for x in [1, 2]:
    if x == 2:
        break
else:
    print("not reached")
`, "16\nwhile-else 3\nfor-else\n")
}

func TestUnpacking(t *testing.T) {
	expectOutput(t, `
a, b = 1, 2
a, b = b, a
print(a, b)
first, *rest = [1, 2, 3, 4]
print(first, rest)
*init, last = "abc"
print(init, last)
(x, y), z = (1, 2), 3
print(x + y + z)
for k, v in {"a": 1, "b": 2}.items():
    print(k, v)
`, "2 1\n1 [2, 3, 4]\n['a', 'b'] c\n6\na 1\nb 2\n")
}

func TestUnpackingErrors(t *testing.T) {
	tests := []struct {
		source string
		typ    string
	}{
		{"a, b = [1, 2, 3]", "ValueError"},
		{"a, b, c = [1, 2]", "ValueError"},
		{"a, b = 5", "TypeError"},
	}
	for _, tt := range tests {
		err := runErr(t, tt.source)
		var re *RuntimeError
		if !errors.As(err, &re) || re.Type != tt.typ {
			t.Errorf("%q: got %v, want %s", tt.source, err, tt.typ)
		}
	}
}

func TestSubscriptsAndSlices(t *testing.T) {
	expectOutput(t, `
xs = [0, 1, 2, 3, 4, 5]
print(xs[-1], xs[1:3], xs[::2], xs[::-1][:2])
xs[0] = 10
xs[1:3] = ["a"]
print(xs)
del xs[0]
print(xs)
s = "hello"
print(s[1], s[-3:], s[::-1])
d = {}
d["k"] = 1
d["k"] += 1
print(d)
`, "5 [1, 2] [0, 2, 4] [5, 4]\n[10, 'a', 3, 4, 5]\n['a', 3, 4, 5]\ne llo olleh\n{'k': 2}\n")
}

func TestComprehensions(t *testing.T) {
	expectOutput(t, `
print([x * x for x in range(5) if x % 2 == 0])
print({x: x + 1 for x in range(3)})
print(sorted({c for c in "banana"}))
print([(i, j) for i in range(2) for j in range(i, 2)])
print(sum(x for x in range(101)))
x = "outer"
[x for x in range(3)]
print(x)
`, "[0, 4, 16]\n{0: 1, 1: 2, 2: 3}\n['a', 'b', 'n']\n[(0, 0), (0, 1), (1, 1)]\n5050\nouter\n")
}

func TestStrings(t *testing.T) {
	expectOutput(t, `
name = "world"
width = 8
print(f"hello {name}!")
print(f"{name!r} {3.14159:.2f} {42:>{width}} {255:x}")
print(f"{{braces}} {1 + 1}")
print("a,b,,c".split(","), " x ".strip(), "-".join(["a", "b"]))
print("{} and {name}".format(1, name="two"))
print("%s=%d (%.1f%%)" % ("x", 3, 12.5))
print("abc".upper(), "Hello".startswith("He"), "hello".find("l"), "a-b".replace("-", "+"))
`, "hello world!\n'world' 3.14       42 ff\n{braces} 2\n['a', 'b', '', 'c'] x a-b\n1 and two\nx=3 (12.5%)\nABC True 2 a+b\n")
}

// ---------------------------------------------------------------------------
// Functions and closures
// ---------------------------------------------------------------------------

func TestFunctionArguments(t *testing.T) {
	expectOutput(t, `
def f(a, b=2, *args, c=3, **kw):
    return (a, b, args, c, sorted(kw.items()))

print(f(1))
print(f(1, 5, 6, 7, c=8, z=9))
print(f(*[1, 2, 3], **{"c": 4, "y": 0}))

def kwonly(*, key):
    return key
print(kwonly(key="k"))
`, "(1, 2, (), 3, [])\n(1, 5, (6, 7), 8, [('z', 9)])\n(1, 2, (3,), 4, [('y', 0)])\nk\n")
}

func TestArgumentErrors(t *testing.T) {
	tests := []string{
		"def f(a): pass\nf()",
		"def f(a): pass\nf(1, 2)",
		"def f(a): pass\nf(1, a=2)",
		"def f(a): pass\nf(b=1)",
		"def f(*, k): pass\nf()",
	}
	for _, source := range tests {
		err := runErr(t, source)
		var re *RuntimeError
		if !errors.As(err, &re) || re.Type != "TypeError" {
			t.Errorf("%q: got %v, want TypeError", source, err)
		}
	}
}

func TestClosures(t *testing.T) {
	expectOutput(t, `
def counter():
    n = 0
    def inc():
        nonlocal n
        n += 1
        return n
    return inc

c1 = counter()
c2 = counter()
c1()
c1()
print(c1(), c2())

adders = [lambda x, i=i: x + i for i in range(3)]
print([a(10) for a in adders])

g = 1
def set_global():
    global g
    g = 2
set_global()
print(g)
`, "3 1\n[10, 11, 12]\n2\n")
}

func TestDefaultsEvaluatedOnce(t *testing.T) {
	expectOutput(t, `
def append(x, acc=[]):
    acc.append(x)
    return acc
append(1)
print(append(2))
`, "[1, 2]\n")
}

func TestRecursion(t *testing.T) {
	expectOutput(t, `
def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)
print(fib(20))
`, "6765\n")
}

func TestRecursionError(t *testing.T) {
	err := runErr(t, "def f():\n    return f()\nf()\n")
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	if re.Type != "RecursionError" {
		t.Errorf("Type = %q, want RecursionError", re.Type)
	}
}

func TestRecursionErrorIsCatchable(t *testing.T) {
	expectOutput(t, `
def f():
    return f()
try:
    f()
except RecursionError:
    print("caught")
`, "caught\n")
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

func TestTryExceptFinallyOrder(t *testing.T) {
	expectOutput(t, `
log = []
def f():
    try:
        log.append("try")
        raise ValueError("bad")
    except TypeError:
        log.append("wrong handler")
    except ValueError as e:
        log.append("except " + str(e))
    else:
        log.append("else")
    finally:
        log.append("finally")
    return log
print(f())

def g():
    try:
        return "from try"
    finally:
        print("finally runs before return")
print(g())

def h():
    for i in range(3):
        try:
            if i == 1:
                break
        finally:
            print("cleanup", i)
h()

try:
    pass
except Exception:
    print("no")
else:
    print("else branch")
`, "['try', 'except bad', 'finally']\nfinally runs before return\nfrom try\ncleanup 0\ncleanup 1\nelse branch\n")
}

func TestExceptionHierarchy(t *testing.T) {
	expectOutput(t, `
class AppError(Exception):
    pass

class NotFound(AppError):
    def __init__(self, key):
        super().__init__("missing " + key)
        self.key = key

try:
    raise NotFound("k")
except AppError as e:
    print(type(e).__name__, e, e.key, e.args)

try:
    {}["x"]
except LookupError as e:
    print("lookup", repr(e))

try:
    1 / 0
except (TypeError, ZeroDivisionError) as e:
    print("zero", e)

print(issubclass(NotFound, Exception), isinstance(NotFound("a"), BaseException))
`, "NotFound missing k k ('missing k',)\nlookup KeyError('x')\nzero division by zero\nTrue True\n")
}

func TestExceptionChaining(t *testing.T) {
	expectOutput(t, `
try:
    try:
        raise KeyError("inner")
    except KeyError as e:
        raise ValueError("outer") from e
except ValueError as e:
    print(repr(e.__cause__))

try:
    try:
        1 / 0
    except ZeroDivisionError:
        raise
except ZeroDivisionError:
    print("re-raised")
`, "KeyError('inner')\nre-raised\n")
}

func TestUncaughtException(t *testing.T) {
	source := `def inner():
    raise ValueError("boom")

def outer():
    inner()

outer()
`
	err := runErr(t, source)
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	if re.Type != "ValueError" || re.Message != "boom" {
		t.Errorf("got %s: %s, want ValueError: boom", re.Type, re.Message)
	}
	if len(re.Trace) != 3 {
		t.Fatalf("trace has %d entries, want 3: %v", len(re.Trace), re.Trace)
	}
	wantFuncs := []string{"<module>", "outer", "inner"}
	wantLines := []int{7, 5, 2}
	for i, e := range re.Trace {
		if e.Function != wantFuncs[i] || e.Line != wantLines[i] {
			t.Errorf("trace[%d] = %s line %d, want %s line %d", i, e.Function, e.Line, wantFuncs[i], wantLines[i])
		}
	}
	if !strings.HasSuffix(re.Error(), "ValueError: boom") {
		t.Errorf("Error() = %q", re.Error())
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		source string
		typ    string
	}{
		{"1 + 'a'", "TypeError"},
		{"undefined_name", "NameError"},
		{"[1][5]", "IndexError"},
		{"{}['k']", "KeyError"},
		{"1 % 0", "ZeroDivisionError"},
		{"int('x')", "ValueError"},
		{"None.attr", "AttributeError"},
		{"assert 1 == 2, 'nope'", "AssertionError"},
		{"next(iter([]))", "StopIteration"},
		{"2 ** 100", "OverflowError"},
		{"def f():\n    x\n    x = 1\nf()", "UnboundLocalError"},
		{"import nowhere", "ModuleNotFoundError"},
	}
	for _, tt := range tests {
		err := runErr(t, tt.source)
		var re *RuntimeError
		if !errors.As(err, &re) {
			t.Errorf("%q: expected *RuntimeError, got %T: %v", tt.source, err, err)
			continue
		}
		if re.Type != tt.typ {
			t.Errorf("%q: Type = %s, want %s (%s)", tt.source, re.Type, tt.typ, re.Message)
		}
	}
}

func TestWithStatement(t *testing.T) {
	expectOutput(t, `
class Resource:
    def __init__(self, name, swallow=False):
        self.name = name
        self.swallow = swallow
    def __enter__(self):
        print("enter", self.name)
        return self
    def __exit__(self, typ, val, tb):
        print("exit", self.name, typ.__name__ if typ else None)
        return self.swallow

with Resource("a") as r, Resource("b"):
    print("body", r.name)

with Resource("c", swallow=True):
    raise ValueError("hidden")
print("after")
`, "enter a\nenter b\nbody a\nexit b None\nexit a None\nenter c\nexit c ValueError\nafter\n")
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func TestClasses(t *testing.T) {
	expectOutput(t, `
class Shape:
    sides = 0
    def __init__(self, name):
        self.name = name
    def describe(self):
        return f"{self.name} with {self.sides} sides"
    def __repr__(self):
        return f"Shape({self.name!r})"

class Square(Shape):
    sides = 4
    def __init__(self, size):
        super().__init__("square")
        self.size = size
    def area(self):
        return self.size ** 2

sq = Square(3)
print(sq.describe(), sq.area())
print(isinstance(sq, Shape), Square.__name__, repr(Shape("x")))
m = sq.area
print(m())
print(Square.__mro__)
`, "square with 4 sides 9\nTrue Square Shape('x')\n9\n(<class '__main__.Square'>, <class '__main__.Shape'>, <class 'object'>)\n")
}

func TestOperatorDunders(t *testing.T) {
	expectOutput(t, `
class Vec:
    def __init__(self, x, y):
        self.x, self.y = x, y
    def __add__(self, other):
        return Vec(self.x + other.x, self.y + other.y)
    def __eq__(self, other):
        return self.x == other.x and self.y == other.y
    def __lt__(self, other):
        return (self.x, self.y) < (other.x, other.y)
    def __len__(self):
        return 2
    def __getitem__(self, i):
        return (self.x, self.y)[i]
    def __str__(self):
        return f"<{self.x}, {self.y}>"

v = Vec(1, 2) + Vec(3, 4)
print(v, v == Vec(4, 6), v != Vec(0, 0), len(v), v[1])
print(sorted([Vec(2, 0), Vec(1, 5)])[0])
print(list(v))
`, "<4, 6> True True 2 6\n<1, 5>\n[4, 6]\n")
}

func TestClassDecoratorsAndProperties(t *testing.T) {
	expectOutput(t, `
def trace(fn):
    def wrapper(*args):
        print("call", fn.__name__)
        return fn(*args)
    return wrapper

class Temp:
    scale = "C"
    def __init__(self, c):
        self._c = c
    @property
    def fahrenheit(self):
        return self._c * 9 / 5 + 32
    @staticmethod
    def unit():
        return "deg"
    @classmethod
    def describe(cls):
        return cls.scale
    @trace
    def bump(self):
        self._c += 1

t = Temp(100)
print(t.fahrenheit, Temp.unit(), t.describe())
t.bump()
print(t._c)
`, "212.0 deg C\ncall bump\n101\n")
}

// ---------------------------------------------------------------------------
// Generators
// ---------------------------------------------------------------------------

func TestGenerators(t *testing.T) {
	expectOutput(t, `
def count_up(n):
    i = 0
    while i < n:
        yield i
        i += 1
    return "done"

g = count_up(3)
print(next(g), next(g), next(g))
try:
    next(g)
except StopIteration as e:
    print("stopped", e.value)

def chain(*its):
    for it in its:
        yield from it

print(list(chain([1, 2], count_up(2), "ab")))

def fib():
    a, b = 0, 1
    while True:
        yield a
        a, b = b, a + b

out = []
for x in fib():
    if x > 50:
        break
    out.append(x)
print(out)
`, "0 1 2\nstopped done\n[1, 2, 0, 1, 'a', 'b']\n[0, 1, 1, 2, 3, 5, 8, 13, 21, 34]\n")
}

func TestGeneratorReturnValue(t *testing.T) {
	expectOutput(t, `
def sub():
    yield 1
    return "r"

def outer():
    x = yield from sub()
    print("got", x)
    y = yield from [2]
    print("list gives", y)
    return x + "!"

print(list(outer()))

g = outer()
for _ in g:
    pass
try:
    next(g)
except StopIteration as e:
    print("exhausted", e.value)

h = sub()
next(h)
try:
    next(h)
except StopIteration as e:
    print("stop", e.value)
`, "got r\nlist gives None\n[1, 2]\ngot r\nlist gives None\nexhausted None\nstop r\n")
}

func TestGeneratorFinallyOnException(t *testing.T) {
	expectOutput(t, `
def gen():
    try:
        yield 1
        raise ValueError("in gen")
    finally:
        print("gen cleanup")

try:
    for x in gen():
        print("got", x)
except ValueError as e:
    print("caught", e)
`, "got 1\ngen cleanup\ncaught in gen\n")
}

// ---------------------------------------------------------------------------
// Pattern matching
// ---------------------------------------------------------------------------

func TestMatch(t *testing.T) {
	expectOutput(t, `
class Point:
    __match_args__ = ("x", "y")
    def __init__(self, x, y):
        self.x, self.y = x, y

def describe(v):
    match v:
        case 0 | 1:
            return "small"
        case int(n) if n < 0:
            return f"negative {n}"
        case str() as s:
            return "string " + s
        case [x, y]:
            return f"pair {x} {y}"
        case [first, *rest]:
            return f"list {first} +{len(rest)}"
        case {"type": "user", "name": name, **extra}:
            return f"user {name} {sorted(extra)}"
        case Point(0, y=yy):
            return f"on y axis at {yy}"
        case Point(x, y):
            return f"point {x},{y}"
        case None:
            return "none"
        case _:
            return "other"

for v in [1, -5, "hi", [1, 2], [1, 2, 3], {"type": "user", "name": "ann", "id": 7},
          Point(0, 4), Point(2, 3), None, 3.5]:
    print(describe(v))
`, "small\nnegative -5\nstring hi\npair 1 2\nlist 1 +2\nuser ann ['id']\non y axis at 4\npoint 2,3\nnone\nother\n")
}

func TestMatchAtModuleLevel(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"capture", "match 3:\n    case 1:\n        print('one')\n    case x:\n        print('x', x)\n", "x 3\n"},
		{"literal", "match 'a':\n    case 'a':\n        print('hit')\n", "hit\n"},
		{"or", "match 2:\n    case 1 | 2:\n        print('or')\n", "or\n"},
		{"guard", "match 5:\n    case int(n) if n > 9:\n        print('big')\n    case int(n) if n > 1:\n        print('guarded', n)\n", "guarded 5\n"},
		{"sequence", "match (1, 2):\n    case (a, b):\n        print(a + b)\n", "3\n"},
		{"star", "match [1, 2, 3, 4]:\n    case [a, *mid, z]:\n        print(a, mid, z)\n", "1 [2, 3] 4\n"},
		{"mapping rest", "match {'k': 1, 'o': 2}:\n    case {'k': v, **rest}:\n        print(v, rest)\n", "1 {'o': 2}\n"},
		{"as", "match [1]:\n    case [int() as i] as whole:\n        print(i, whole)\n", "1 [1]\n"},
		{"no case matches", "match 1:\n    case 2:\n        print('two')\nprint('after')\n", "after\n"},
		{"in loop", "for v in [1, 'a', 2]:\n    match v:\n        case int():\n            print('int')\n        case _:\n            continue\n", "int\nint\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(t, tt.source); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Elements
// ---------------------------------------------------------------------------

func TestElements(t *testing.T) {
	expectOutput(t, `
items = ["a", "<b>"]
page = (<ul class="list" hidden={True} title={None}>
    {[<li>{x}</li> for x in items]}
</ul>)
print(page)

def Card(title, children):
    return <div class="card"><h1>{title}</h1>{children}</div>

print(<Card title="T"><p>body</p></Card>)
print(<><br /><span>{1 + 1}</span></>)
`, `<ul class="list" hidden><li>a</li><li>&lt;b&gt;</li></ul>
<div class="card"><h1>T</h1><p>body</p></div>
<br /><span>2</span>
`)
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func sourceImporter(t *testing.T, modules map[string]string) Importer {
	return ImporterFunc(func(name string) (*bytecode.Module, error) {
		src, ok := modules[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrModuleNotFound)
		}
		return compile(t, src), nil
	})
}

func TestImports(t *testing.T) {
	imp := sourceImporter(t, map[string]string{
		"util": `
print("util loaded")
export def double(x):
    return x * 2
export LIMIT = 10
def hidden():
    return "hidden"
`,
		"plain": `
def helper():
    return "helped"
_private = 1
`,
	})
	out := run(t, `
import util
from util import double, LIMIT
import util as u2
from plain import *
print(util.double(2), double(LIMIT), u2 is util)
print(helper())
try:
    from util import hidden
except ImportError as e:
    print("ImportError:", e)
import math
print(math.sqrt(16.0), math.floor(2.7), math.gcd(12, 18))
`, WithImporter(imp))
	want := "util loaded\n4 20 True\nhelped\nImportError: cannot import name 'hidden' from 'util'\n4.0 2 6\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestCircularImport(t *testing.T) {
	imp := sourceImporter(t, map[string]string{
		"a": "import b\n",
		"b": "import a\n",
	})
	v := New(WithStdout(&bytes.Buffer{}), WithImporter(imp))
	_, err := v.Run(context.Background(), compile(t, "import a\n"))
	var re *RuntimeError
	if !errors.As(err, &re) || re.Type != "ImportError" {
		t.Fatalf("got %v, want ImportError", err)
	}
}

// ---------------------------------------------------------------------------
// Host API
// ---------------------------------------------------------------------------

func TestCall(t *testing.T) {
	m := compile(t, `
calls = 0
def add(a, b):
    global calls
    calls += 1
    return a + b

async def later(x):
    await sleep(0)
    return x * 10
`)
	v := New(WithStdout(&bytes.Buffer{}))
	ctx := context.Background()
	got, err := v.Call(ctx, m, "add", Int(2), Int(3))
	if err != nil {
		t.Fatal(err)
	}
	if got != Int(5) {
		t.Errorf("add(2, 3) = %v, want 5", got)
	}
	got, err = v.Call(ctx, m, "later", Int(4))
	if err != nil {
		t.Fatal(err)
	}
	if got != Int(40) {
		t.Errorf("later(4) = %v, want 40", got)
	}
	if _, err := v.Call(ctx, m, "missing"); err == nil {
		t.Error("expected an error calling a missing global")
	}
}

func TestCancellation(t *testing.T) {
	m := compile(t, "while True:\n    pass\n")
	v := New(WithStdout(&bytes.Buffer{}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := v.Run(ctx, m)
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FatalError, got %T: %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v does not wrap context.DeadlineExceeded", err)
	}
}

func TestCancellationIsNotCatchable(t *testing.T) {
	m := compile(t, `
while True:
    try:
        while True:
            pass
    except BaseException:
        print("caught")
`)
	var out bytes.Buffer
	v := New(WithStdout(&out))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := v.Run(ctx, m); err == nil {
		t.Fatal("expected cancellation")
	}
	if out.Len() != 0 {
		t.Errorf("user code caught cancellation: %q", out.String())
	}
}

func TestInvalidModuleIsFatal(t *testing.T) {
	m := bytecode.NewModule()
	m.Instructions = []bytecode.Instruction{{Op: bytecode.OpJump, Arg: 99}}
	_, err := New().Run(context.Background(), m)
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FatalError, got %T: %v", err, err)
	}
}

func TestIndependentVMs(t *testing.T) {
	m := compile(t, "counter = 0\ndef bump():\n    global counter\n    counter += 1\n    return counter\n")
	ctx := context.Background()
	a, b := New(), New()
	for i := 0; i < 3; i++ {
		if _, err := a.Call(ctx, m, "bump"); err != nil {
			t.Fatal(err)
		}
	}
	got, err := b.Call(ctx, m, "bump")
	if err != nil {
		t.Fatal(err)
	}
	if got != Int(1) {
		t.Errorf("second VM saw counter %v, want 1", got)
	}
	if a.ID == b.ID {
		t.Errorf("VMs share ID %s", a.ID)
	}
}
