package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// object
// ---------------------------------------------------------------------------

func registerObjectMethods() {
	ObjectType.method("__init__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if len(args) > 1 || kwargs != nil {
			return nil, vm.typeError("%s() takes no arguments", TypeName(args[0]))
		}
		return None, nil
	})
	ObjectType.method("__repr__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return Str("<" + TypeName(args[0]) + " object>"), nil
	})
	ObjectType.method("__str__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		s, err := vm.repr(args[0])
		return Str(s), err
	})

	PropertyType.method("setter", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("setter", args[1:], 1, 1); err != nil {
			return nil, err
		}
		p := args[0].(*Property)
		return &Property{Getter: p.Getter, Setter: args[1]}, nil
	})
	PropertyType.method("getter", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("getter", args[1:], 1, 1); err != nil {
			return nil, err
		}
		p := args[0].(*Property)
		return &Property{Getter: args[1], Setter: p.Setter}, nil
	})
}

// ---------------------------------------------------------------------------
// Built-in constructors
// ---------------------------------------------------------------------------

func registerConstructors() {
	IntType.construct = constructInt
	FloatType.construct = constructFloat
	BoolType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("bool", args, 0, 1); err != nil {
			return nil, err
		}
		t, err := vm.truthy(optArg(args, 0, False))
		return Bool(t), err
	}
	StrType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("str", args, 0, 1); err != nil {
			return nil, err
		}
		s, err := vm.str(optArg(args, 0, Str("")))
		return Str(s), err
	}
	ListType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("list", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return NewList(nil), nil
		}
		items, err := vm.toSlice(args[0])
		if err != nil {
			return nil, err
		}
		return NewList(append([]Value(nil), items...)), nil
	}
	TupleType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("tuple", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return NewTuple(), nil
		}
		if t, ok := args[0].(*Tuple); ok {
			return t, nil
		}
		items, err := vm.toSlice(args[0])
		if err != nil {
			return nil, err
		}
		return NewTuple(append([]Value(nil), items...)...), nil
	}
	SetType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("set", args, 0, 1); err != nil {
			return nil, err
		}
		s := NewSet()
		if len(args) == 0 {
			return s, nil
		}
		err := vm.iterate(args[0], func(v Value) (bool, error) {
			return true, vm.setAdd(s, v)
		})
		return s, err
	}
	DictType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("dict", args, 0, 1); err != nil {
			return nil, err
		}
		d := NewDict()
		if len(args) == 1 {
			if err := vm.dictUpdate(d, args[0]); err != nil {
				return nil, err
			}
		}
		if kwargs != nil {
			kwargs.Range(func(k, v Value) bool {
				d.setKey(staticKey(k), k, v)
				return true
			})
		}
		return d, nil
	}
	RangeType.construct = constructRange
	SliceType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("slice", args, 1, 3); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return &Slice{Start: None, Stop: args[0], Step: None}, nil
		}
		return &Slice{Start: args[0], Stop: args[1], Step: optArg(args, 2, None)}, nil
	}
	TypeType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		switch len(args) {
		case 1:
			return args[0].Type(), nil
		case 3:
			name, err := vm.strArg("type", args[0])
			if err != nil {
				return nil, err
			}
			bases, ok := args[1].(*Tuple)
			if !ok {
				return nil, vm.typeError("type() argument 2 must be tuple, not %s", TypeName(args[1]))
			}
			ns, ok := args[2].(*Dict)
			if !ok {
				return nil, vm.typeError("type() argument 3 must be dict, not %s", TypeName(args[2]))
			}
			return vm.buildClass(name, bases.Items, ns)
		}
		return nil, vm.typeError("type() takes 1 or 3 arguments")
	}
	StaticMethodType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("staticmethod", args, 1, 1); err != nil {
			return nil, err
		}
		return &StaticMethod{Func: args[0]}, nil
	}
	ClassMethodType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("classmethod", args, 1, 1); err != nil {
			return nil, err
		}
		return &ClassMethod{Func: args[0]}, nil
	}
	PropertyType.construct = func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		kw, err := vm.keywords("property", kwargs, "fget", "fset")
		if err != nil {
			return nil, err
		}
		if err := vm.arity("property", args, 0, 2); err != nil {
			return nil, err
		}
		p := &Property{Getter: optArg(args, 0, kw["fget"]), Setter: optArg(args, 1, kw["fset"])}
		if IsNone(p.Getter) {
			p.Getter = nil
		}
		if IsNone(p.Setter) {
			p.Setter = nil
		}
		return p, nil
	}
	SuperType.construct = constructSuper
}

func constructInt(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	kw, err := vm.keywords("int", kwargs, "base")
	if err != nil {
		return nil, err
	}
	if err := vm.arity("int", args, 0, 2); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Int(0), nil
	}
	baseVal := optArg(args, 1, kw["base"])
	if baseVal != nil {
		s, ok := args[0].(Str)
		if !ok {
			return nil, vm.typeError("int() can't convert non-string with explicit base")
		}
		base, err := vm.intArg("int", baseVal)
		if err != nil {
			return nil, err
		}
		if base != 0 && (base < 2 || base > 36) {
			return nil, vm.valueError("int() base must be >= 2 and <= 36, or 0")
		}
		return vm.parseInt(string(s), int(base))
	}
	switch x := args[0].(type) {
	case Int:
		return x, nil
	case Bool:
		return Int(boolInt(x)), nil
	case Float:
		f := float64(x)
		if math.IsInf(f, 0) {
			return nil, vm.newError(OverflowErrorType, "cannot convert float infinity to integer")
		}
		if math.IsNaN(f) {
			return nil, vm.valueError("cannot convert float NaN to integer")
		}
		t := math.Trunc(f)
		if t >= math.MaxInt64 || t < math.MinInt64 {
			return nil, vm.overflow()
		}
		return Int(t), nil
	case Str:
		return vm.parseInt(string(x), 10)
	}
	for _, name := range []string{"__int__", "__index__"} {
		if r, ok, err := vm.callDunder(args[0], name); ok || err != nil {
			if err != nil {
				return nil, err
			}
			if n, ok := toInt(r); ok {
				return Int(n), nil
			}
			return nil, vm.typeError("%s returned non-int (type %s)", name, TypeName(r))
		}
	}
	return nil, vm.typeError("int() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

// parseInt parses an int literal: surrounding whitespace, a sign,
// underscores between digits and, for base 0 or a matching base, a
// 0x/0o/0b prefix.
func (vm *VM) parseInt(s string, base int) (Value, error) {
	invalid := func() error {
		return vm.valueError("invalid literal for int() with base %d: %s", base, quoteStr(s))
	}
	t := strings.TrimSpace(s)
	sign := ""
	if t != "" && (t[0] == '+' || t[0] == '-') {
		sign, t = t[:1], t[1:]
	}
	if len(t) > 2 && t[0] == '0' {
		prefixBase := 0
		switch t[1] {
		case 'x', 'X':
			prefixBase = 16
		case 'o', 'O':
			prefixBase = 8
		case 'b', 'B':
			prefixBase = 2
		}
		if prefixBase != 0 && (base == 0 || base == prefixBase) {
			base, t = prefixBase, strings.TrimPrefix(t[2:], "_")
		}
	}
	if base == 0 {
		if len(t) > 1 && strings.Trim(t, "0_") != "" && t[0] == '0' {
			return nil, invalid()
		}
		base = 10
	}
	if t == "" || t[0] == '_' || t[len(t)-1] == '_' || strings.Contains(t, "__") {
		return nil, invalid()
	}
	n, err := strconv.ParseInt(sign+strings.ReplaceAll(t, "_", ""), base, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return nil, vm.newError(OverflowErrorType, "int too large to convert")
		}
		return nil, invalid()
	}
	return Int(n), nil
}

func constructFloat(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := vm.arity("float", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Float(0), nil
	}
	switch x := args[0].(type) {
	case Float:
		return x, nil
	case Int, Bool:
		f, _ := toFloat(x)
		return Float(f), nil
	case Str:
		t := strings.TrimSpace(string(x))
		if strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X") || strings.Contains(t, "__") {
			return nil, vm.valueError("could not convert string to float: %s", quoteStr(string(x)))
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(t, "_", ""), 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return Float(f), nil
			}
			return nil, vm.valueError("could not convert string to float: %s", quoteStr(string(x)))
		}
		return Float(f), nil
	}
	if r, ok, err := vm.callDunder(args[0], "__float__"); ok || err != nil {
		if err != nil {
			return nil, err
		}
		if f, ok := r.(Float); ok {
			return f, nil
		}
		return nil, vm.typeError("__float__ returned non-float (type %s)", TypeName(r))
	}
	return nil, vm.typeError("float() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

func constructRange(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := vm.arity("range", args, 1, 3); err != nil {
		return nil, err
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, err := vm.intArg("range", a)
		if err != nil {
			return nil, err
		}
		bounds[i] = n
	}
	r := &Range{Step: 1}
	switch len(bounds) {
	case 1:
		r.Stop = bounds[0]
	default:
		r.Start, r.Stop = bounds[0], bounds[1]
		if len(bounds) == 3 {
			r.Step = bounds[2]
		}
	}
	if r.Step == 0 {
		return nil, vm.valueError("range() arg 3 must not be zero")
	}
	return r, nil
}

// constructSuper implements super(). Without arguments it uses the class
// that defined the running method and the method's first argument.
func constructSuper(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := vm.arity("super", args, 0, 2); err != nil {
		return nil, err
	}
	if len(args) == 2 {
		cls, ok := args[0].(*Class)
		if !ok {
			return nil, vm.typeError("super() argument 1 must be a type, not %s", TypeName(args[0]))
		}
		self := args[1]
		selfCls := self.Type()
		if c, ok := self.(*Class); ok {
			selfCls = c
		}
		if !selfCls.IsSubclass(cls) {
			return nil, vm.typeError("super(type, obj): obj must be an instance or subtype of type")
		}
		return &Super{Class: cls, Self: self}, nil
	}
	if len(args) == 1 {
		return nil, vm.typeError("super() takes 0 or 2 arguments")
	}
	f := vm.currentFrame()
	if f == nil || f.fn == nil || f.fn.Owner == nil {
		return nil, vm.newError(RuntimeErrorType, "super(): no arguments")
	}
	if len(f.fn.Header.Params) == 0 {
		return nil, vm.newError(RuntimeErrorType, "super(): no arguments")
	}
	self := f.locals[0]
	if len(f.cells) > 0 && f.cells[0] != nil {
		self = f.cells[0].Value
	}
	if self == nil {
		return nil, vm.newError(RuntimeErrorType, "super(): arg[0] deleted")
	}
	return &Super{Class: f.fn.Owner, Self: self}, nil
}

// dictUpdate merges a mapping or an iterable of key/value pairs into d.
func (vm *VM) dictUpdate(d *Dict, src Value) error {
	if _, ok := src.(*Dict); ok {
		return vm.dictMerge(d, src)
	}
	if _, ok, err := vm.findAttr(src, "keys"); ok || err != nil {
		if err != nil {
			return err
		}
		return vm.dictMerge(d, src)
	}
	i := 0
	return vm.iterate(src, func(item Value) (bool, error) {
		pair, err := vm.toSlice(item)
		if err != nil {
			return false, vm.typeError("cannot convert dictionary update sequence element #%d to a sequence", i)
		}
		if len(pair) != 2 {
			return false, vm.valueError("dictionary update sequence element #%d has length %d; 2 is required", i, len(pair))
		}
		i++
		return true, vm.dictSet(d, pair[0], pair[1])
	})
}
