package vm

import (
	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// dict methods
// ---------------------------------------------------------------------------

// Views (keys, values, items) are list snapshots.
func registerDictMethods() {
	m := DictType.method

	m("keys", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("keys", args[1:], 0, 0); err != nil {
			return nil, err
		}
		return NewList(args[0].(*Dict).Keys()), nil
	})

	m("values", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("values", args[1:], 0, 0); err != nil {
			return nil, err
		}
		return NewList(args[0].(*Dict).Values()), nil
	})

	m("items", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("items", args[1:], 0, 0); err != nil {
			return nil, err
		}
		d := args[0].(*Dict)
		items := make([]Value, 0, d.Len())
		d.Range(func(k, v Value) bool {
			items = append(items, NewTuple(k, v))
			return true
		})
		return NewList(items), nil
	})

	m("get", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("get", args[1:], 1, 2); err != nil {
			return nil, err
		}
		v, ok, err := vm.dictGet(args[0].(*Dict), args[1])
		if err != nil {
			return nil, err
		}
		if !ok {
			return optArg(args, 2, None), nil
		}
		return v, nil
	})

	m("pop", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("pop", args[1:], 1, 2); err != nil {
			return nil, err
		}
		v, ok, err := vm.dictDelete(args[0].(*Dict), args[1])
		if err != nil {
			return nil, err
		}
		if !ok {
			if len(args) == 3 {
				return args[2], nil
			}
			return nil, vm.keyError(args[1])
		}
		return v, nil
	})

	m("popitem", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("popitem", args[1:], 0, 0); err != nil {
			return nil, err
		}
		d := args[0].(*Dict)
		keys := d.Keys()
		if len(keys) == 0 {
			return nil, vm.keyError(Str("popitem(): dictionary is empty"))
		}
		k := keys[len(keys)-1]
		v, _ := d.deleteKey(staticKey(k))
		return NewTuple(k, v), nil
	})

	m("setdefault", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("setdefault", args[1:], 1, 2); err != nil {
			return nil, err
		}
		d := args[0].(*Dict)
		v, ok, err := vm.dictGet(d, args[1])
		if err != nil || ok {
			return v, err
		}
		def := optArg(args, 2, None)
		return def, vm.dictSet(d, args[1], def)
	})

	m("update", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("update", args[1:], 0, 1); err != nil {
			return nil, err
		}
		d := args[0].(*Dict)
		if len(args) == 2 {
			if err := vm.dictUpdate(d, args[1]); err != nil {
				return nil, err
			}
		}
		if kwargs != nil {
			if err := vm.dictMerge(d, kwargs); err != nil {
				return nil, err
			}
		}
		return None, nil
	})

	m("clear", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("clear", args[1:], 0, 0); err != nil {
			return nil, err
		}
		args[0].(*Dict).Clear()
		return None, nil
	})

	m("copy", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("copy", args[1:], 0, 0); err != nil {
			return nil, err
		}
		return args[0].(*Dict).Copy(), nil
	})

	DictType.Attrs["fromkeys"] = &ClassMethod{Func: NewBuiltin("dict.fromkeys", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("fromkeys", args[1:], 1, 2); err != nil {
			return nil, err
		}
		d := NewDict()
		value := optArg(args, 2, None)
		err := vm.iterate(args[1], func(k Value) (bool, error) {
			return true, vm.dictSet(d, k, value)
		})
		return d, err
	})}
}

// ---------------------------------------------------------------------------
// set methods
// ---------------------------------------------------------------------------

// setArg converts the argument of a set operation method: any iterable.
func (vm *VM) setArg(v Value) (*Set, error) {
	if s, ok := v.(*Set); ok {
		return s, nil
	}
	s := NewSet()
	err := vm.iterate(v, func(item Value) (bool, error) {
		return true, vm.setAdd(s, item)
	})
	return s, err
}

func registerSetMethods() {
	m := SetType.method

	m("add", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("add", args[1:], 1, 1); err != nil {
			return nil, err
		}
		return None, vm.setAdd(args[0].(*Set), args[1])
	})

	m("remove", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("remove", args[1:], 1, 1); err != nil {
			return nil, err
		}
		ok, err := vm.setRemove(args[0].(*Set), args[1])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, vm.keyError(args[1])
		}
		return None, nil
	})

	m("discard", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("discard", args[1:], 1, 1); err != nil {
			return nil, err
		}
		_, err := vm.setRemove(args[0].(*Set), args[1])
		return None, err
	})

	m("pop", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("pop", args[1:], 0, 0); err != nil {
			return nil, err
		}
		s := args[0].(*Set)
		items := s.Items()
		if len(items) == 0 {
			return nil, vm.keyError(Str("pop from an empty set"))
		}
		s.d.deleteKey(staticKey(items[0]))
		return items[0], nil
	})

	m("clear", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("clear", args[1:], 0, 0); err != nil {
			return nil, err
		}
		args[0].(*Set).d.Clear()
		return None, nil
	})

	m("copy", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("copy", args[1:], 0, 0); err != nil {
			return nil, err
		}
		return args[0].(*Set).Copy(), nil
	})

	// union and friends accept any number of iterables.
	operation := func(name string, op bytecode.Opcode) {
		m(name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
			var result Value = args[0].(*Set).Copy()
			for _, a := range args[1:] {
				other, err := vm.setArg(a)
				if err != nil {
					return nil, err
				}
				if result, err = vm.setOperator(op, result.(*Set), other); err != nil {
					return nil, err
				}
			}
			return result, nil
		})
	}
	operation("union", bytecode.OpBinaryBitOr)
	operation("intersection", bytecode.OpBinaryBitAnd)
	operation("difference", bytecode.OpBinarySub)
	operation("symmetric_difference", bytecode.OpBinaryBitXor)

	m("update", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		s := args[0].(*Set)
		for _, a := range args[1:] {
			err := vm.iterate(a, func(item Value) (bool, error) {
				return true, vm.setAdd(s, item)
			})
			if err != nil {
				return nil, err
			}
		}
		return None, nil
	})

	relation := func(name string, op bytecode.Opcode, swap bool) {
		m(name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
			if err := vm.arity(name, args[1:], 1, 1); err != nil {
				return nil, err
			}
			other, err := vm.setArg(args[1])
			if err != nil {
				return nil, err
			}
			x, y := args[0].(*Set), other
			if swap {
				x, y = y, x
			}
			return vm.orderSets(op, x, y)
		})
	}
	relation("issubset", bytecode.OpBinaryLessEqual, false)
	relation("issuperset", bytecode.OpBinaryLessEqual, true)

	m("isdisjoint", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := vm.arity("isdisjoint", args[1:], 1, 1); err != nil {
			return nil, err
		}
		s := args[0].(*Set)
		disjoint := true
		err := vm.iterate(args[1], func(item Value) (bool, error) {
			in, err := vm.setHas(s, item)
			if in {
				disjoint = false
			}
			return !in, err
		})
		return Bool(disjoint), err
	})
}
