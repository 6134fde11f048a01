package vm

import (
	"math"
	"sort"
	"strconv"

	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// arity checks the positional argument count of a native function.
func (vm *VM) arity(name string, args []Value, min, max int) error {
	n := len(args)
	switch {
	case min == max && n != min:
		if min == 0 {
			return vm.typeError("%s() takes no arguments (%d given)", name, n)
		}
		if min == 1 {
			return vm.typeError("%s() takes exactly one argument (%d given)", name, n)
		}
		return vm.typeError("%s() takes exactly %d arguments (%d given)", name, min, n)
	case n < min:
		return vm.typeError("%s expected at least %d %s, got %d", name, min, pluralWord(min, "argument"), n)
	case max >= 0 && n > max:
		return vm.typeError("%s expected at most %d %s, got %d", name, max, pluralWord(max, "argument"), n)
	}
	return nil
}

// keywords returns the keyword arguments of a native call, rejecting names
// not in allowed.
func (vm *VM) keywords(name string, kwargs *Dict, allowed ...string) (map[string]Value, error) {
	if kwargs == nil {
		return nil, nil
	}
	kw := make(map[string]Value, kwargs.Len())
	var err error
	kwargs.Range(func(k, v Value) bool {
		key := string(k.(Str))
		for _, a := range allowed {
			if a == key {
				kw[key] = v
				return true
			}
		}
		err = vm.typeError("'%s' is an invalid keyword argument for %s()", key, name)
		return false
	})
	return kw, err
}

// optArg returns args[i], or def when the argument was not passed.
func optArg(args []Value, i int, def Value) Value {
	if i < len(args) {
		return args[i]
	}
	return def
}

func (vm *VM) intArg(name string, v Value) (int64, error) {
	if n, ok := toInt(v); ok {
		return n, nil
	}
	if r, ok, err := vm.callDunder(v, "__index__"); ok || err != nil {
		if err != nil {
			return 0, err
		}
		if n, ok := toInt(r); ok {
			return n, nil
		}
	}
	return 0, vm.typeError("%s: '%s' object cannot be interpreted as an integer", name, TypeName(v))
}

func (vm *VM) floatArg(name string, v Value) (float64, error) {
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return 0, vm.typeError("%s: must be real number, not %s", name, TypeName(v))
}

func (vm *VM) strArg(name string, v Value) (string, error) {
	if s, ok := v.(Str); ok {
		return string(s), nil
	}
	return "", vm.typeError("%s: argument must be str, not %s", name, TypeName(v))
}

// classArg accepts a class or a tuple of classes, as isinstance does.
func (vm *VM) classArg(name string, v Value) ([]*Class, error) {
	switch x := v.(type) {
	case *Class:
		return []*Class{x}, nil
	case *Tuple:
		var classes []*Class
		for _, item := range x.Items {
			cs, err := vm.classArg(name, item)
			if err != nil {
				return nil, err
			}
			classes = append(classes, cs...)
		}
		return classes, nil
	}
	return nil, vm.typeError("%s() arg 2 must be a type or tuple of types", name)
}

// ---------------------------------------------------------------------------
// Sorting
// ---------------------------------------------------------------------------

// sortValues sorts items in place by key(item), stably. reverse keeps
// equal items in their original order.
func (vm *VM) sortValues(items []Value, key Value, reverse bool) error {
	keys := items
	if key != nil && !IsNone(key) {
		keys = make([]Value, len(items))
		for i, item := range items {
			k, err := vm.call(key, []Value{item}, nil)
			if err != nil {
				return err
			}
			keys[i] = k
		}
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var err error
	sort.SliceStable(idx, func(i, j int) bool {
		if err != nil {
			return false
		}
		a, b := keys[idx[i]], keys[idx[j]]
		if reverse {
			a, b = b, a
		}
		var r Value
		r, err = vm.order(bytecode.OpBinaryLess, a, b)
		if err != nil {
			return false
		}
		lt, e := vm.truthy(r)
		if e != nil {
			err = e
		}
		return lt
	})
	if err != nil {
		return err
	}
	sorted := make([]Value, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
	return nil
}

// extreme implements min and max.
func (vm *VM) extreme(name string, op bytecode.Opcode, args []Value, kwargs *Dict) (Value, error) {
	kw, err := vm.keywords(name, kwargs, "key", "default")
	if err != nil {
		return nil, err
	}
	if err := vm.arity(name, args, 1, -1); err != nil {
		return nil, err
	}
	items := args
	if len(args) == 1 {
		if items, err = vm.toSlice(args[0]); err != nil {
			return nil, err
		}
	} else if _, ok := kw["default"]; ok {
		return nil, vm.typeError("Cannot specify a default for %s() with multiple positional arguments", name)
	}
	if len(items) == 0 {
		if d, ok := kw["default"]; ok {
			return d, nil
		}
		return nil, vm.valueError("%s() arg is an empty sequence", name)
	}
	key := kw["key"]
	keyOfItem := func(v Value) (Value, error) {
		if key == nil || IsNone(key) {
			return v, nil
		}
		return vm.call(key, []Value{v}, nil)
	}
	best := items[0]
	bestKey, err := keyOfItem(best)
	if err != nil {
		return nil, err
	}
	for _, item := range items[1:] {
		k, err := keyOfItem(item)
		if err != nil {
			return nil, err
		}
		r, err := vm.order(op, k, bestKey)
		if err != nil {
			return nil, err
		}
		better, err := vm.truthy(r)
		if err != nil {
			return nil, err
		}
		if better {
			best, bestKey = item, k
		}
	}
	return best, nil
}

// ---------------------------------------------------------------------------
// Builtins namespace
// ---------------------------------------------------------------------------

// newBuiltins creates the builtins namespace shared by every module of
// the VM.
func (vm *VM) newBuiltins() *Dict {
	d := NewDict()
	def := func(name string, fn BuiltinFunc) {
		d.SetStr(name, NewBuiltin(name, fn))
	}

	for _, c := range []*Class{
		ObjectType, TypeType, IntType, BoolType, FloatType, StrType,
		ListType, TupleType, DictType, SetType, RangeType, SliceType,
		StaticMethodType, ClassMethodType, PropertyType, SuperType,
	} {
		d.SetStr(c.Name, c)
	}
	for _, c := range exceptionClasses {
		d.SetStr(c.Name, c)
	}
	d.SetStr("None", None)
	d.SetStr("True", True)
	d.SetStr("False", False)

	def("print", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		kw, err := vm.keywords("print", kwargs, "sep", "end", "flush")
		if err != nil {
			return nil, err
		}
		sep, end := " ", "\n"
		if v, ok := kw["sep"]; ok && !IsNone(v) {
			if sep, err = vm.strArg("print", v); err != nil {
				return nil, err
			}
		}
		if v, ok := kw["end"]; ok && !IsNone(v) {
			if end, err = vm.strArg("print", v); err != nil {
				return nil, err
			}
		}
		return None, vm.print(args, sep, end)
	})

	def("len", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("len", args, 1, 1); err != nil {
			return nil, err
		}
		n, err := vm.length(args[0])
		return Int(n), err
	})

	def("repr", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("repr", args, 1, 1); err != nil {
			return nil, err
		}
		s, err := vm.repr(args[0])
		return Str(s), err
	})

	def("abs", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("abs", args, 1, 1); err != nil {
			return nil, err
		}
		switch x := args[0].(type) {
		case Int:
			if x == math.MinInt64 {
				return nil, vm.overflow()
			}
			if x < 0 {
				return -x, nil
			}
			return x, nil
		case Bool:
			return Int(boolInt(x)), nil
		case Float:
			return Float(math.Abs(float64(x))), nil
		}
		if r, ok, err := vm.callDunder(args[0], "__abs__"); ok || err != nil {
			return r, err
		}
		return nil, vm.typeError("bad operand type for abs(): '%s'", TypeName(args[0]))
	})

	def("min", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return vm.extreme("min", bytecode.OpBinaryLess, args, kwargs)
	})
	def("max", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return vm.extreme("max", bytecode.OpBinaryGreater, args, kwargs)
	})

	def("sum", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		kw, err := vm.keywords("sum", kwargs, "start")
		if err != nil {
			return nil, err
		}
		if err := vm.arity("sum", args, 1, 2); err != nil {
			return nil, err
		}
		total := optArg(args, 1, Int(0))
		if v, ok := kw["start"]; ok {
			total = v
		}
		if _, ok := total.(Str); ok {
			return nil, vm.typeError("sum() can't sum strings [use ''.join(seq) instead]")
		}
		err = vm.iterate(args[0], func(v Value) (bool, error) {
			var e error
			total, e = vm.binary(bytecode.OpBinaryAdd, total, v)
			return true, e
		})
		return total, err
	})

	def("sorted", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		kw, err := vm.keywords("sorted", kwargs, "key", "reverse")
		if err != nil {
			return nil, err
		}
		if err := vm.arity("sorted", args, 1, 1); err != nil {
			return nil, err
		}
		items, err := vm.toSlice(args[0])
		if err != nil {
			return nil, err
		}
		items = append([]Value(nil), items...)
		reverse, err := vm.truthy(orNone(kw["reverse"]))
		if err != nil {
			return nil, err
		}
		if err := vm.sortValues(items, kw["key"], reverse); err != nil {
			return nil, err
		}
		return NewList(items), nil
	})

	def("reversed", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("reversed", args, 1, 1); err != nil {
			return nil, err
		}
		if r, ok, err := vm.callDunder(args[0], "__reversed__"); ok || err != nil {
			return r, err
		}
		switch args[0].(type) {
		case *List, *Tuple, Str, *Range:
		default:
			return nil, vm.typeError("'%s' object is not reversible", TypeName(args[0]))
		}
		items, err := vm.toSlice(args[0])
		if err != nil {
			return nil, err
		}
		i := len(items)
		return &Iterator{Name: "reversed", next: func() (Value, bool, error) {
			if i == 0 {
				return nil, false, nil
			}
			i--
			return items[i], true, nil
		}}, nil
	})

	def("enumerate", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		kw, err := vm.keywords("enumerate", kwargs, "start")
		if err != nil {
			return nil, err
		}
		if err := vm.arity("enumerate", args, 1, 2); err != nil {
			return nil, err
		}
		var n int64
		if start := optArg(args, 1, kw["start"]); start != nil {
			if n, err = vm.intArg("enumerate", start); err != nil {
				return nil, err
			}
		}
		it, err := vm.iter(args[0])
		if err != nil {
			return nil, err
		}
		return &Iterator{Name: "enumerate", next: func() (Value, bool, error) {
			v, ok, err := vm.next(it)
			if !ok || err != nil {
				return nil, false, err
			}
			n++
			return NewTuple(Int(n-1), v), true, nil
		}}, nil
	})

	def("zip", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if _, err := vm.keywords("zip", kwargs); err != nil {
			return nil, err
		}
		its := make([]Value, len(args))
		for i, a := range args {
			it, err := vm.iter(a)
			if err != nil {
				return nil, err
			}
			its[i] = it
		}
		return &Iterator{Name: "zip", next: func() (Value, bool, error) {
			if len(its) == 0 {
				return nil, false, nil
			}
			items := make([]Value, len(its))
			for i, it := range its {
				v, ok, err := vm.next(it)
				if !ok || err != nil {
					return nil, false, err
				}
				items[i] = v
			}
			return NewTuple(items...), true, nil
		}}, nil
	})

	def("map", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("map", args, 2, -1); err != nil {
			return nil, err
		}
		fn := args[0]
		its := make([]Value, len(args)-1)
		for i, a := range args[1:] {
			it, err := vm.iter(a)
			if err != nil {
				return nil, err
			}
			its[i] = it
		}
		return &Iterator{Name: "map", next: func() (Value, bool, error) {
			items := make([]Value, len(its))
			for i, it := range its {
				v, ok, err := vm.next(it)
				if !ok || err != nil {
					return nil, false, err
				}
				items[i] = v
			}
			r, err := vm.call(fn, items, nil)
			return r, err == nil, err
		}}, nil
	})

	def("filter", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("filter", args, 2, 2); err != nil {
			return nil, err
		}
		fn := args[0]
		it, err := vm.iter(args[1])
		if err != nil {
			return nil, err
		}
		return &Iterator{Name: "filter", next: func() (Value, bool, error) {
			for {
				v, ok, err := vm.next(it)
				if !ok || err != nil {
					return nil, false, err
				}
				test := v
				if !IsNone(fn) {
					if test, err = vm.call(fn, []Value{v}, nil); err != nil {
						return nil, false, err
					}
				}
				keep, err := vm.truthy(test)
				if err != nil {
					return nil, false, err
				}
				if keep {
					return v, true, nil
				}
			}
		}}, nil
	})

	def("any", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("any", args, 1, 1); err != nil {
			return nil, err
		}
		found := false
		err := vm.iterate(args[0], func(v Value) (bool, error) {
			t, err := vm.truthy(v)
			found = t
			return !t, err
		})
		return Bool(found), err
	})

	def("all", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("all", args, 1, 1); err != nil {
			return nil, err
		}
		all := true
		err := vm.iterate(args[0], func(v Value) (bool, error) {
			t, err := vm.truthy(v)
			all = t
			return t, err
		})
		return Bool(all), err
	})

	def("iter", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("iter", args, 1, 1); err != nil {
			return nil, err
		}
		return vm.iter(args[0])
	})

	def("next", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("next", args, 1, 2); err != nil {
			return nil, err
		}
		switch args[0].(type) {
		case *Iterator, *Generator, *Instance:
		default:
			return nil, vm.typeError("'%s' object is not an iterator", TypeName(args[0]))
		}
		v, ok, err := vm.next(args[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			if len(args) == 2 {
				return args[1], nil
			}
			return nil, vm.stopIteration(v)
		}
		return v, nil
	})

	def("hasattr", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("hasattr", args, 2, 2); err != nil {
			return nil, err
		}
		name, err := vm.strArg("hasattr", args[1])
		if err != nil {
			return nil, err
		}
		_, err = vm.getAttr(args[0], name)
		if isError(err, AttributeErrorType) {
			return False, nil
		}
		return Bool(err == nil), err
	})

	def("getattr", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("getattr", args, 2, 3); err != nil {
			return nil, err
		}
		name, err := vm.strArg("getattr", args[1])
		if err != nil {
			return nil, err
		}
		v, err := vm.getAttr(args[0], name)
		if len(args) == 3 && isError(err, AttributeErrorType) {
			return args[2], nil
		}
		return v, err
	})

	def("setattr", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("setattr", args, 3, 3); err != nil {
			return nil, err
		}
		name, err := vm.strArg("setattr", args[1])
		if err != nil {
			return nil, err
		}
		return None, vm.setAttr(args[0], name, args[2])
	})

	def("delattr", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("delattr", args, 2, 2); err != nil {
			return nil, err
		}
		name, err := vm.strArg("delattr", args[1])
		if err != nil {
			return nil, err
		}
		return None, vm.delAttr(args[0], name)
	})

	def("round", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("round", args, 1, 2); err != nil {
			return nil, err
		}
		digits := optArg(args, 1, None)
		if r, ok, err := vm.callDunder(args[0], "__round__", digits); ok || err != nil {
			return r, err
		}
		return vm.round(args[0], digits)
	})

	def("format", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("format", args, 1, 2); err != nil {
			return nil, err
		}
		spec, err := vm.strArg("format", optArg(args, 1, Str("")))
		if err != nil {
			return nil, err
		}
		s, err := vm.format(args[0], spec)
		return Str(s), err
	})

	def("chr", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("chr", args, 1, 1); err != nil {
			return nil, err
		}
		n, err := vm.intArg("chr", args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 || n > 0x10FFFF {
			return nil, vm.valueError("chr() arg not in range(0x110000)")
		}
		return Str(string(rune(n))), nil
	})

	def("ord", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("ord", args, 1, 1); err != nil {
			return nil, err
		}
		s, ok := args[0].(Str)
		if !ok {
			return nil, vm.typeError("ord() expected string of length 1, but %s found", TypeName(args[0]))
		}
		rs := runes(s)
		if len(rs) != 1 {
			return nil, vm.typeError("ord() expected a character, but string of length %d found", len(rs))
		}
		return Int(rs[0]), nil
	})

	def("globals", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("globals", args, 0, 0); err != nil {
			return nil, err
		}
		f := vm.currentFrame()
		if f == nil {
			return NewDict(), nil
		}
		return f.module.Globals, nil
	})

	def("callable", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("callable", args, 1, 1); err != nil {
			return nil, err
		}
		switch x := args[0].(type) {
		case *Function, *Builtin, *BoundMethod, *Class, *StaticMethod:
			return True, nil
		case *Instance:
			_, ok := x.Class.Lookup("__call__")
			return Bool(ok), nil
		}
		return False, nil
	})

	def("hash", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("hash", args, 1, 1); err != nil {
			return nil, err
		}
		return vm.hash(args[0])
	})

	def("divmod", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("divmod", args, 2, 2); err != nil {
			return nil, err
		}
		q, err := vm.binary(bytecode.OpBinaryFloorDiv, args[0], args[1])
		if err != nil {
			return nil, err
		}
		r, err := vm.binary(bytecode.OpBinaryMod, args[0], args[1])
		if err != nil {
			return nil, err
		}
		return NewTuple(q, r), nil
	})

	def("isinstance", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("isinstance", args, 2, 2); err != nil {
			return nil, err
		}
		classes, err := vm.classArg("isinstance", args[1])
		if err != nil {
			return nil, err
		}
		for _, c := range classes {
			if isInstance(args[0], c) {
				return True, nil
			}
		}
		return False, nil
	})

	def("issubclass", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("issubclass", args, 2, 2); err != nil {
			return nil, err
		}
		c, ok := args[0].(*Class)
		if !ok {
			return nil, vm.typeError("issubclass() arg 1 must be a class")
		}
		classes, err := vm.classArg("issubclass", args[1])
		if err != nil {
			return nil, err
		}
		for _, other := range classes {
			if c.IsSubclass(other) {
				return True, nil
			}
		}
		return False, nil
	})

	// async
	def("sleep", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("sleep", args, 1, 2); err != nil {
			return nil, err
		}
		seconds, err := vm.floatArg("sleep", args[0])
		if err != nil {
			return nil, err
		}
		if seconds < 0 {
			return nil, vm.valueError("sleep length must be non-negative")
		}
		return vm.sleep(seconds, optArg(args, 1, None)), nil
	})

	def("gather", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if _, err := vm.keywords("gather", kwargs); err != nil {
			return nil, err
		}
		return vm.gather(args)
	})

	def("wait_for", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("wait_for", args, 2, 2); err != nil {
			return nil, err
		}
		seconds, err := vm.floatArg("wait_for", args[1])
		if err != nil {
			return nil, err
		}
		return vm.waitFor(args[0], seconds)
	})

	def("create_task", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("create_task", args, 1, 1); err != nil {
			return nil, err
		}
		c, ok := args[0].(*Coroutine)
		if !ok {
			return nil, vm.typeError("a coroutine was expected, got %s", TypeName(args[0]))
		}
		return vm.loop.Spawn(c)
	})

	def("run", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("run", args, 1, 1); err != nil {
			return nil, err
		}
		return vm.scheduler.Await(vm.ctx, args[0])
	})

	return d
}

// round implements round(x, ndigits) for numbers: half to even.
func (vm *VM) round(x, digits Value) (Value, error) {
	if IsNone(digits) {
		switch n := x.(type) {
		case Int:
			return n, nil
		case Bool:
			return Int(boolInt(n)), nil
		case Float:
			f := float64(n)
			if math.IsInf(f, 0) {
				return nil, vm.newError(OverflowErrorType, "cannot convert float infinity to integer")
			}
			if math.IsNaN(f) {
				return nil, vm.valueError("cannot convert float NaN to integer")
			}
			r := math.RoundToEven(f)
			if r >= math.MaxInt64 || r < math.MinInt64 {
				return nil, vm.overflow()
			}
			return Int(r), nil
		}
		return nil, vm.typeError("type %s doesn't define __round__ method", TypeName(x))
	}
	nd, err := vm.intArg("round", digits)
	if err != nil {
		return nil, err
	}
	switch n := x.(type) {
	case Int, Bool:
		v, _ := toInt(n)
		if nd >= 0 {
			return Int(v), nil
		}
		if nd < -18 {
			return Int(0), nil
		}
		p := int64(math.Pow10(int(-nd)))
		q := float64(v) / float64(p)
		return Int(int64(math.RoundToEven(q)) * p), nil
	case Float:
		f := float64(n)
		if math.IsInf(f, 0) || math.IsNaN(f) || nd > 308 {
			return n, nil
		}
		if nd < -308 {
			return Float(0), nil
		}
		if nd >= 0 {
			// round the exact binary value, so 2.675 (really 2.67499...) gives 2.67
			r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', int(nd), 64), 64)
			if err != nil {
				return n, nil
			}
			return Float(r), nil
		}
		p := math.Pow10(int(-nd))
		r := math.RoundToEven(f/p) * p
		if math.IsInf(r, 0) || math.IsNaN(r) {
			return n, nil
		}
		return Float(r), nil
	}
	return nil, vm.typeError("type %s doesn't define __round__ method", TypeName(x))
}
