package bytecode

import (
	"testing"

	"github.com/nagini-lang/nagini/compiler"
)

// FuzzCompileValidate checks that every program the compiler accepts
// produces a module that passes Validate.
func FuzzCompileValidate(f *testing.F) {
	seeds := []string{
		"x = 1\nprint(x)\n",
		"def f(a, b=1, *args, c, **kw):\n    return a\n",
		"def A(*A,*B):00",
		"def f(*, k): k\n",
		"g = lambda *a, k=1: a\n",
		"async def g():\n    await sleep(0)\n",
		"match p:\n    case [1, *rest]:\n        pass\n    case {'k': v, **more}:\n        pass\n",
		"def gen():\n    x = yield from range(3)\n    return x\n",
		"print(f\"{1:>{2}}\")\n",
		"class A(B):\n    def m(self):\n        return super().m()\n",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, source string) {
		prog, err := compiler.ParseSource(source)
		if err != nil {
			return
		}
		m, err := Compile(prog)
		if err != nil {
			return
		}
		if err := m.Validate(); err != nil {
			t.Fatalf("compiled module for %q fails validation: %v\n%s", source, err, m.Disassemble())
		}
	})
}
