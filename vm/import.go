package vm

import (
	"errors"
	"math"

	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

// ErrModuleNotFound is returned by an Importer that has no module of the
// requested name.
var ErrModuleNotFound = errors.New("module not found")

// Importer resolves a dotted module name to compiled code.
type Importer interface {
	Import(name string) (*bytecode.Module, error)
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(name string) (*bytecode.Module, error)

func (f ImporterFunc) Import(name string) (*bytecode.Module, error) { return f(name) }

// importModule returns the module name, running it on first import.
func (vm *VM) importModule(name string) (*Module, error) {
	if m, ok := vm.modules[name]; ok {
		return m, nil
	}
	if vm.loading[name] {
		return nil, vm.newError(ImportErrorType, "cannot import module '%s' (most likely due to a circular import)", name)
	}
	if vm.importer == nil {
		return nil, vm.newError(ModuleNotFoundErrorType, "No module named '%s'", name)
	}
	code, err := vm.importer.Import(name)
	if err != nil {
		if errors.Is(err, ErrModuleNotFound) {
			return nil, vm.newError(ModuleNotFoundErrorType, "No module named '%s'", name)
		}
		return nil, vm.newError(ImportErrorType, "cannot load module '%s': %s", name, err)
	}
	if err := code.Validate(); err != nil {
		return nil, &FatalError{Message: "invalid module " + name, Err: err}
	}

	vm.log.Debugf("vm %s: importing %s", vm.ID, name)
	m := newModule(name, code)
	vm.loading[name] = true
	_, err = vm.runModule(m)
	delete(vm.loading, name)
	if err != nil {
		return nil, err
	}
	vm.modules[name] = m
	return m, nil
}

// importFrom implements `from m import name`.
func (vm *VM) importFrom(mod Value, name string) (Value, error) {
	m, ok := mod.(*Module)
	if !ok {
		return nil, fatalf("IMPORT_FROM on a %s", TypeName(mod))
	}
	v, found, err := vm.findAttr(m, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, vm.newError(ImportErrorType, "cannot import name '%s' from '%s'", name, m.Name)
	}
	return v, nil
}

// importStar binds the public names of mod in the current namespace.
func (vm *VM) importStar(f *Frame, mod Value) error {
	m, ok := mod.(*Module)
	if !ok {
		return fatalf("IMPORT_STAR on a %s", TypeName(mod))
	}
	ns := vm.namespace(f)
	for _, name := range m.publicNames() {
		v, ok := m.Globals.GetStr(name)
		if !ok {
			return vm.newError(ImportErrorType, "module '%s' exports undefined name '%s'", m.Name, name)
		}
		ns.SetStr(name, v)
	}
	return nil
}

// ---------------------------------------------------------------------------
// math
// ---------------------------------------------------------------------------

// mathModule builds the native math module.
func (vm *VM) mathModule() *Module {
	m := newModule("math", nil)
	g := m.Globals
	g.SetStr("pi", Float(math.Pi))
	g.SetStr("e", Float(math.E))
	g.SetStr("tau", Float(2*math.Pi))
	g.SetStr("inf", Float(math.Inf(1)))
	g.SetStr("nan", Float(math.NaN()))

	unary := func(name string, fn func(float64) float64, domain func(float64) bool) {
		g.SetStr(name, NewBuiltin(name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
			if err := vm.arity(name, args, 1, 1); err != nil {
				return nil, err
			}
			x, err := vm.floatArg(name, args[0])
			if err != nil {
				return nil, err
			}
			if domain != nil && !domain(x) {
				return nil, vm.valueError("math domain error")
			}
			return Float(fn(x)), nil
		}))
	}
	nonNegative := func(x float64) bool { return x >= 0 || math.IsNaN(x) }
	positive := func(x float64) bool { return x > 0 || math.IsNaN(x) }
	unit := func(x float64) bool { return x >= -1 && x <= 1 || math.IsNaN(x) }
	unary("sqrt", math.Sqrt, nonNegative)
	unary("exp", math.Exp, nil)
	unary("log2", math.Log2, positive)
	unary("log10", math.Log10, positive)
	unary("sin", math.Sin, nil)
	unary("cos", math.Cos, nil)
	unary("tan", math.Tan, nil)
	unary("asin", math.Asin, unit)
	unary("acos", math.Acos, unit)
	unary("atan", math.Atan, nil)
	unary("fabs", math.Abs, nil)
	unary("degrees", func(x float64) float64 { return x * 180 / math.Pi }, nil)
	unary("radians", func(x float64) float64 { return x * math.Pi / 180 }, nil)

	rounding := func(name string, fn func(float64) float64) {
		g.SetStr(name, NewBuiltin(name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
			if err := vm.arity(name, args, 1, 1); err != nil {
				return nil, err
			}
			if n, ok := toInt(args[0]); ok {
				return Int(n), nil
			}
			x, err := vm.floatArg(name, args[0])
			if err != nil {
				return nil, err
			}
			return vm.round(Float(fn(x)), None)
		}))
	}
	rounding("floor", math.Floor)
	rounding("ceil", math.Ceil)
	rounding("trunc", math.Trunc)

	predicate := func(name string, fn func(float64) bool) {
		g.SetStr(name, NewBuiltin(name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
			if err := vm.arity(name, args, 1, 1); err != nil {
				return nil, err
			}
			x, err := vm.floatArg(name, args[0])
			if err != nil {
				return nil, err
			}
			return Bool(fn(x)), nil
		}))
	}
	predicate("isnan", math.IsNaN)
	predicate("isinf", func(x float64) bool { return math.IsInf(x, 0) })
	predicate("isfinite", func(x float64) bool { return !math.IsInf(x, 0) && !math.IsNaN(x) })

	binary := func(name string, fn func(x, y float64) (float64, bool)) {
		g.SetStr(name, NewBuiltin(name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
			if err := vm.arity(name, args, 2, 2); err != nil {
				return nil, err
			}
			x, err := vm.floatArg(name, args[0])
			if err != nil {
				return nil, err
			}
			y, err := vm.floatArg(name, args[1])
			if err != nil {
				return nil, err
			}
			r, ok := fn(x, y)
			if !ok {
				return nil, vm.valueError("math domain error")
			}
			return Float(r), nil
		}))
	}
	binary("pow", func(x, y float64) (float64, bool) {
		return math.Pow(x, y), !(x == 0 && y < 0) && !(x < 0 && y != math.Trunc(y))
	})
	binary("atan2", func(y, x float64) (float64, bool) { return math.Atan2(y, x), true })
	binary("hypot", func(x, y float64) (float64, bool) { return math.Hypot(x, y), true })
	binary("fmod", func(x, y float64) (float64, bool) { return math.Mod(x, y), y != 0 })
	binary("copysign", func(x, y float64) (float64, bool) { return math.Copysign(x, y), true })

	g.SetStr("log", NewBuiltin("log", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("log", args, 1, 2); err != nil {
			return nil, err
		}
		x, err := vm.floatArg("log", args[0])
		if err != nil {
			return nil, err
		}
		if !positive(x) {
			return nil, vm.valueError("math domain error")
		}
		if len(args) == 1 {
			return Float(math.Log(x)), nil
		}
		base, err := vm.floatArg("log", args[1])
		if err != nil {
			return nil, err
		}
		if !positive(base) || base == 1 {
			return nil, vm.valueError("math domain error")
		}
		return Float(math.Log(x) / math.Log(base)), nil
	}))

	g.SetStr("isclose", NewBuiltin("isclose", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		kw, err := vm.keywords("isclose", kwargs, "rel_tol", "abs_tol")
		if err != nil {
			return nil, err
		}
		if err := vm.arity("isclose", args, 2, 2); err != nil {
			return nil, err
		}
		a, err := vm.floatArg("isclose", args[0])
		if err != nil {
			return nil, err
		}
		b, err := vm.floatArg("isclose", args[1])
		if err != nil {
			return nil, err
		}
		rel, abs := 1e-9, 0.0
		if v, ok := kw["rel_tol"]; ok {
			if rel, err = vm.floatArg("isclose", v); err != nil {
				return nil, err
			}
		}
		if v, ok := kw["abs_tol"]; ok {
			if abs, err = vm.floatArg("isclose", v); err != nil {
				return nil, err
			}
		}
		if a == b {
			return True, nil
		}
		diff := math.Abs(a - b)
		return Bool(diff <= math.Max(rel*math.Max(math.Abs(a), math.Abs(b)), abs)), nil
	}))

	g.SetStr("gcd", NewBuiltin("gcd", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		var r int64
		for _, a := range args {
			n, err := vm.intArg("gcd", a)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				n = -n
			}
			for n != 0 {
				r, n = n, r%n
			}
		}
		return Int(r), nil
	}))

	g.SetStr("factorial", NewBuiltin("factorial", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("factorial", args, 1, 1); err != nil {
			return nil, err
		}
		n, err := vm.intArg("factorial", args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, vm.valueError("factorial() not defined for negative values")
		}
		r := int64(1)
		for i := int64(2); i <= n; i++ {
			var ok bool
			if r, ok = mulInt(r, i); !ok {
				return nil, vm.overflow()
			}
		}
		return Int(r), nil
	}))

	return m
}
