package vm

import (
	"fmt"
	"strings"

	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// call invokes any callable value. kwargs may be nil.
func (vm *VM) call(fn Value, args []Value, kwargs *Dict) (Value, error) {
	if kwargs != nil && kwargs.Len() == 0 {
		kwargs = nil
	}
	switch f := fn.(type) {
	case *Function:
		return vm.callFunction(f, args, kwargs)
	case *Builtin:
		return f.Fn(vm, args, kwargs)
	case *BoundMethod:
		full := make([]Value, 0, len(args)+1)
		full = append(full, f.Self)
		full = append(full, args...)
		return vm.call(f.Func, full, kwargs)
	case *Class:
		return vm.instantiate(f, args, kwargs)
	case *StaticMethod:
		return vm.call(f.Func, args, kwargs)
	case *Instance:
		if m, ok := f.Class.Lookup("__call__"); ok {
			full := make([]Value, 0, len(args)+1)
			full = append(full, f)
			full = append(full, args...)
			return vm.call(m, full, kwargs)
		}
	}
	return nil, vm.typeError("'%s' object is not callable", TypeName(fn))
}

// callFunction binds arguments and runs fn, or wraps its frame in a
// generator or coroutine.
func (vm *VM) callFunction(fn *Function, args []Value, kwargs *Dict) (Value, error) {
	locals, err := vm.bindArgs(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	f := newFrame(fn, locals)
	switch {
	case fn.Header.Flags&bytecode.FlagGenerator != 0:
		return &Generator{frame: f, name: fn.Name}, nil
	case fn.Header.Flags&bytecode.FlagCoroutine != 0:
		return &Coroutine{frame: f, name: fn.Name}, nil
	}
	v, suspended, err := vm.execute(f)
	if err != nil {
		return nil, err
	}
	if suspended {
		panic(fatalf("function %s suspended outside a generator or coroutine", fn.Name))
	}
	return v, nil
}

// bindArgs maps call arguments onto the parameter slots: positional
// parameters, *args, keyword-only parameters and **kwargs, in that order.
func (vm *VM) bindArgs(fn *Function, args []Value, kwargs *Dict) ([]Value, error) {
	h := fn.Header
	locals := make([]Value, h.LocalCount)
	if len(h.Params) > len(locals) {
		panic(fatalf("function %s declares %d parameters but %d locals", fn.Name, len(h.Params), len(locals)))
	}
	hasVarArgs := h.Flags&bytecode.FlagVarArgs != 0
	hasKwArgs := h.Flags&bytecode.FlagKwArgs != 0
	kwStart := h.PosCount
	if hasVarArgs {
		kwStart++
	}
	kwEnd := kwStart + h.KwOnlyCount

	n := len(args)
	if n > h.PosCount {
		if !hasVarArgs {
			return nil, vm.typeError("%s() takes %s but %d %s given",
				fn.Name, plural(h.PosCount, "positional argument"), n, wasWere(n))
		}
		n = h.PosCount
	}
	copy(locals, args[:n])
	if hasVarArgs {
		locals[h.PosCount] = NewTuple(append([]Value(nil), args[n:]...)...)
	}

	var extra *Dict
	if hasKwArgs {
		extra = NewDict()
		locals[kwEnd] = extra
	}
	if kwargs != nil {
		var err error
		kwargs.Range(func(k, v Value) bool {
			name, ok := k.(Str)
			if !ok {
				err = vm.typeError("keywords must be strings")
				return false
			}
			slot := -1
			for i := 0; i < kwEnd; i++ {
				if (i < h.PosCount || i >= kwStart) && h.Params[i].Name == string(name) {
					slot = i
					break
				}
			}
			switch {
			case slot >= 0 && locals[slot] != nil:
				err = vm.typeError("%s() got multiple values for argument '%s'", fn.Name, name)
			case slot >= 0:
				locals[slot] = v
			case extra != nil:
				extra.SetStr(string(name), v)
			default:
				err = vm.typeError("%s() got an unexpected keyword argument '%s'", fn.Name, name)
			}
			return err == nil
		})
		if err != nil {
			return nil, err
		}
	}

	var missing []string
	for i := 0; i < kwEnd; i++ {
		if i >= h.PosCount && i < kwStart {
			continue
		}
		if locals[i] != nil {
			continue
		}
		if d, ok := fn.defaultFor(i); ok {
			locals[i] = d
			continue
		}
		missing = append(missing, "'"+h.Params[i].Name+"'")
		if i >= kwStart && len(missing) == 1 {
			return nil, vm.typeError("%s() missing 1 required keyword-only argument: %s", fn.Name, missing[0])
		}
	}
	if len(missing) > 0 {
		return nil, vm.typeError("%s() missing %d required positional %s: %s",
			fn.Name, len(missing), pluralWord(len(missing), "argument"), joinNames(missing))
	}
	return locals, nil
}

func plural(n int, word string) string {
	return fmt.Sprintf("%d %s", n, pluralWord(n, word))
}

func pluralWord(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}

// joinNames renders 'a', 'b' and 'c'.
func joinNames(names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

// instantiate calls a class.
func (vm *VM) instantiate(cls *Class, args []Value, kwargs *Dict) (Value, error) {
	if cls.construct != nil {
		return cls.construct(vm, args, kwargs)
	}
	if cls.builtin && !cls.subclassable {
		return nil, vm.typeError("cannot create '%s' instances", cls.Name)
	}
	inst := NewInstance(cls)
	init, ok := cls.Lookup("__init__")
	if !ok {
		if len(args) > 0 || kwargs != nil {
			return nil, vm.typeError("%s() takes no arguments", cls.Name)
		}
		return inst, nil
	}
	full := make([]Value, 0, len(args)+1)
	full = append(full, inst)
	full = append(full, args...)
	r, err := vm.call(init, full, kwargs)
	if err != nil {
		return nil, err
	}
	if !IsNone(r) {
		return nil, vm.typeError("__init__() should return None, not '%s'", TypeName(r))
	}
	return inst, nil
}

// ---------------------------------------------------------------------------
// Closures and classes
// ---------------------------------------------------------------------------

// makeFunction builds the closure for the header at entry, popping its
// defaults from f.
func (vm *VM) makeFunction(f *Frame, entry int) (*Function, error) {
	h, err := f.module.header(entry)
	if err != nil {
		panic(&FatalError{Message: "invalid function header", Err: err})
	}
	fn := &Function{
		Name:     h.Name,
		Module:   f.module,
		Header:   h,
		Defaults: f.popN(h.DefaultCount()),
	}
	if len(h.Captures) > 0 {
		fn.Upvalues = make([]*Cell, len(h.Captures))
		for i, c := range h.Captures {
			if c.FromLocal {
				fn.Upvalues[i] = f.cell(c.Index)
			} else {
				fn.Upvalues[i] = f.upvalue(c.Index)
			}
		}
	}
	if f.fn != nil && f.fn.Owner != nil && f.ns == nil {
		// nested functions of a method see the same class for super()
		fn.Owner = f.fn.Owner
	}
	return fn, nil
}

// runClassBody executes a class body in a fresh namespace and creates the
// class.
func (vm *VM) runClassBody(body Value, name string, bases []Value) (Value, error) {
	fn, ok := body.(*Function)
	if !ok || fn.Header.Flags&bytecode.FlagClassBody == 0 {
		panic(fatalf("BUILD_CLASS without a class body"))
	}
	ns := NewDict()
	ns.SetStr("__module__", Str(fn.Module.Name))
	ns.SetStr("__qualname__", Str(name))
	f := newFrame(fn, make([]Value, fn.Header.LocalCount))
	f.ns = ns
	if _, _, err := vm.execute(f); err != nil {
		return nil, err
	}
	return vm.buildClass(name, bases, ns)
}
