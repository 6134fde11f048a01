package vm

// ---------------------------------------------------------------------------
// list and tuple methods
// ---------------------------------------------------------------------------

func registerListMethods() {
	m := ListType.method

	m("append", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("append", args[1:], 1, 1); err != nil {
			return nil, err
		}
		l := args[0].(*List)
		l.Items = append(l.Items, args[1])
		return None, nil
	})

	m("extend", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("extend", args[1:], 1, 1); err != nil {
			return nil, err
		}
		l := args[0].(*List)
		items, err := vm.toSlice(args[1])
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, items...)
		return None, nil
	})

	m("insert", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("insert", args[1:], 2, 2); err != nil {
			return nil, err
		}
		l := args[0].(*List)
		i, err := vm.intArg("insert", args[1])
		if err != nil {
			return nil, err
		}
		n := int64(len(l.Items))
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		}
		if i > n {
			i = n
		}
		l.Items = append(l.Items, nil)
		copy(l.Items[i+1:], l.Items[i:])
		l.Items[i] = args[2]
		return None, nil
	})

	m("pop", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("pop", args[1:], 0, 1); err != nil {
			return nil, err
		}
		l := args[0].(*List)
		if len(l.Items) == 0 {
			return nil, vm.indexError("pop from empty list")
		}
		i, err := vm.index(optArg(args, 1, Int(-1)), len(l.Items), "pop")
		if err != nil {
			return nil, err
		}
		v := l.Items[i]
		copy(l.Items[i:], l.Items[i+1:])
		l.Items[len(l.Items)-1] = nil
		l.Items = l.Items[:len(l.Items)-1]
		return v, nil
	})

	m("remove", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("remove", args[1:], 1, 1); err != nil {
			return nil, err
		}
		l := args[0].(*List)
		i, err := vm.indexOf(l.Items, args[1])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, vm.valueError("list.remove(x): x not in list")
		}
		l.Items = append(l.Items[:i], l.Items[i+1:]...)
		return None, nil
	})

	m("index", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("index", args[1:], 1, 1); err != nil {
			return nil, err
		}
		i, err := vm.indexOf(args[0].(*List).Items, args[1])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			s, err := vm.repr(args[1])
			if err != nil {
				return nil, err
			}
			return nil, vm.valueError("%s is not in list", s)
		}
		return Int(i), nil
	})

	m("count", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("count", args[1:], 1, 1); err != nil {
			return nil, err
		}
		n, err := vm.countOf(args[0].(*List).Items, args[1])
		return Int(n), err
	})

	m("sort", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		kw, err := vm.keywords("sort", kwargs, "key", "reverse")
		if err != nil {
			return nil, err
		}
		if err := vm.arity("sort", args[1:], 0, 0); err != nil {
			return nil, err
		}
		reverse, err := vm.truthy(orNone(kw["reverse"]))
		if err != nil {
			return nil, err
		}
		return None, vm.sortValues(args[0].(*List).Items, kw["key"], reverse)
	})

	m("reverse", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("reverse", args[1:], 0, 0); err != nil {
			return nil, err
		}
		items := args[0].(*List).Items
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
		return None, nil
	})

	m("clear", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("clear", args[1:], 0, 0); err != nil {
			return nil, err
		}
		args[0].(*List).Items = nil
		return None, nil
	})

	m("copy", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("copy", args[1:], 0, 0); err != nil {
			return nil, err
		}
		return NewList(append([]Value(nil), args[0].(*List).Items...)), nil
	})
}

func registerTupleMethods() {
	TupleType.method("index", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("index", args[1:], 1, 1); err != nil {
			return nil, err
		}
		i, err := vm.indexOf(args[0].(*Tuple).Items, args[1])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, vm.valueError("tuple.index(x): x not in tuple")
		}
		return Int(i), nil
	})
	TupleType.method("count", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("count", args[1:], 1, 1); err != nil {
			return nil, err
		}
		n, err := vm.countOf(args[0].(*Tuple).Items, args[1])
		return Int(n), err
	})
}

// indexOf returns the position of the first item equal to v, or -1.
func (vm *VM) indexOf(items []Value, v Value) (int, error) {
	for i, item := range items {
		if identical(item, v) {
			return i, nil
		}
		eq, err := vm.equal(item, v)
		if err != nil {
			return 0, err
		}
		if eq {
			return i, nil
		}
	}
	return -1, nil
}

func (vm *VM) countOf(items []Value, v Value) (int, error) {
	n := 0
	for _, item := range items {
		eq := identical(item, v)
		if !eq {
			var err error
			if eq, err = vm.equal(item, v); err != nil {
				return 0, err
			}
		}
		if eq {
			n++
		}
	}
	return n, nil
}
