package vm

import (
	"errors"
	"math"
)

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

// index converts a subscript to a position in a sequence of length n.
func (vm *VM) index(key Value, n int, what string) (int, error) {
	i, ok := toInt(key)
	if !ok {
		if inst, isInst := key.(*Instance); isInst {
			if r, found, err := vm.callDunder(inst, "__index__"); found || err != nil {
				if err != nil {
					return 0, err
				}
				i, ok = toInt(r)
			}
		}
		if !ok {
			return 0, vm.typeError("%s indices must be integers or slices, not %s", what, TypeName(key))
		}
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, vm.indexError("%s index out of range", what)
	}
	return int(i), nil
}

// sliceBound converts an optional slice bound.
func (vm *VM) sliceBound(v Value) (int64, bool, error) {
	if IsNone(v) {
		return 0, false, nil
	}
	n, ok := toInt(v)
	if !ok {
		return 0, false, vm.typeError("slice indices must be integers or None")
	}
	return n, true, nil
}

// sliceIndices resolves s against a sequence of length n, returning the
// first index, the step and the number of selected items.
func (vm *VM) sliceIndices(s *Slice, n int) (start, step, count int, err error) {
	st, hasStep, err := vm.sliceBound(s.Step)
	if err != nil {
		return 0, 0, 0, err
	}
	if !hasStep {
		st = 1
	}
	if st == 0 {
		return 0, 0, 0, vm.valueError("slice step cannot be zero")
	}
	length := int64(n)
	lo, hi := int64(0), length
	if st < 0 {
		lo, hi = -1, length-1
	}
	adjust := func(v Value, def int64) (int64, error) {
		b, ok, err := vm.sliceBound(v)
		if err != nil || !ok {
			return def, err
		}
		if b < 0 {
			b += length
			if b < lo {
				b = lo
			}
		} else if b > hi {
			b = hi
		}
		return b, nil
	}
	defStart, defStop := lo, hi
	if st < 0 {
		defStart, defStop = hi, lo
	}
	a, err := adjust(s.Start, defStart)
	if err != nil {
		return 0, 0, 0, err
	}
	b, err := adjust(s.Stop, defStop)
	if err != nil {
		return 0, 0, 0, err
	}
	var c int64
	if st > 0 && a < b {
		c = (b - a + st - 1) / st
	} else if st < 0 && a > b {
		c = (a - b - st - 1) / -st
	}
	return int(a), int(st), int(c), nil
}

func selectSlice(items []Value, start, step, count int) []Value {
	r := make([]Value, count)
	for i := 0; i < count; i++ {
		r[i] = items[start+i*step]
	}
	return r
}

// getItem implements obj[key].
func (vm *VM) getItem(obj, key Value) (Value, error) {
	switch x := obj.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			start, step, count, err := vm.sliceIndices(s, len(x.Items))
			if err != nil {
				return nil, err
			}
			return NewList(selectSlice(x.Items, start, step, count)), nil
		}
		i, err := vm.index(key, len(x.Items), "list")
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case *Tuple:
		if s, ok := key.(*Slice); ok {
			start, step, count, err := vm.sliceIndices(s, len(x.Items))
			if err != nil {
				return nil, err
			}
			return NewTuple(selectSlice(x.Items, start, step, count)...), nil
		}
		i, err := vm.index(key, len(x.Items), "tuple")
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case Str:
		rs := runes(x)
		if s, ok := key.(*Slice); ok {
			start, step, count, err := vm.sliceIndices(s, len(rs))
			if err != nil {
				return nil, err
			}
			out := make([]rune, count)
			for i := range out {
				out[i] = rs[start+i*step]
			}
			return Str(out), nil
		}
		i, err := vm.index(key, len(rs), "string")
		if err != nil {
			return nil, err
		}
		return Str(rs[i]), nil
	case *Range:
		if s, ok := key.(*Slice); ok {
			start, step, count, err := vm.sliceIndices(s, x.Len())
			if err != nil {
				return nil, err
			}
			first := x.Start + int64(start)*x.Step
			st := x.Step * int64(step)
			return &Range{Start: first, Stop: first + int64(count)*st, Step: st}, nil
		}
		i, err := vm.index(key, x.Len(), "range object")
		if err != nil {
			return nil, err
		}
		return x.At(i), nil
	case *Dict:
		v, ok, err := vm.dictGet(x, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, vm.keyError(key)
		}
		return v, nil
	case *Instance:
		if r, ok, err := vm.callDunder(x, "__getitem__", key); ok || err != nil {
			return r, err
		}
	}
	return nil, vm.typeError("'%s' object is not subscriptable", TypeName(obj))
}

// setItem implements obj[key] = value.
func (vm *VM) setItem(obj, key, value Value) error {
	switch x := obj.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			return vm.setListSlice(x, s, value)
		}
		i, err := vm.index(key, len(x.Items), "list assignment")
		if err != nil {
			return err
		}
		x.Items[i] = value
		return nil
	case *Dict:
		return vm.dictSet(x, key, value)
	case *Instance:
		if _, ok, err := vm.callDunder(x, "__setitem__", key, value); ok || err != nil {
			return err
		}
	}
	return vm.typeError("'%s' object does not support item assignment", TypeName(obj))
}

func (vm *VM) setListSlice(l *List, s *Slice, value Value) error {
	items, err := vm.toSlice(value)
	if err != nil {
		return err
	}
	start, step, count, err := vm.sliceIndices(s, len(l.Items))
	if err != nil {
		return err
	}
	if step == 1 {
		tail := append([]Value(nil), l.Items[start+count:]...)
		l.Items = append(append(l.Items[:start], items...), tail...)
		return nil
	}
	if len(items) != count {
		return vm.valueError("attempt to assign sequence of size %d to extended slice of size %d", len(items), count)
	}
	for i, v := range items {
		l.Items[start+i*step] = v
	}
	return nil
}

// delItem implements del obj[key].
func (vm *VM) delItem(obj, key Value) error {
	switch x := obj.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			start, step, count, err := vm.sliceIndices(s, len(x.Items))
			if err != nil {
				return err
			}
			drop := make(map[int]bool, count)
			for i := 0; i < count; i++ {
				drop[start+i*step] = true
			}
			kept := x.Items[:0]
			for i, v := range x.Items {
				if !drop[i] {
					kept = append(kept, v)
				}
			}
			for i := len(kept); i < len(x.Items); i++ {
				x.Items[i] = nil
			}
			x.Items = kept
			return nil
		}
		i, err := vm.index(key, len(x.Items), "list assignment")
		if err != nil {
			return err
		}
		x.Items = append(x.Items[:i], x.Items[i+1:]...)
		return nil
	case *Dict:
		_, ok, err := vm.dictDelete(x, key)
		if err != nil {
			return err
		}
		if !ok {
			return vm.keyError(key)
		}
		return nil
	case *Instance:
		if _, ok, err := vm.callDunder(x, "__delitem__", key); ok || err != nil {
			return err
		}
	}
	return vm.typeError("'%s' object does not support item deletion", TypeName(obj))
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

// iter implements iter(v).
func (vm *VM) iter(v Value) (Value, error) {
	switch x := v.(type) {
	case *List:
		return sliceIterator("list_iterator", func() []Value { return x.Items }), nil
	case *Tuple:
		return sliceIterator("tuple_iterator", func() []Value { return x.Items }), nil
	case Str:
		rs := runes(x)
		i := 0
		return &Iterator{Name: "str_iterator", next: func() (Value, bool, error) {
			if i >= len(rs) {
				return nil, false, nil
			}
			i++
			return Str(rs[i-1]), true, nil
		}}, nil
	case *Dict:
		keys := x.Keys()
		return sliceIterator("dict_keyiterator", func() []Value { return keys }), nil
	case *Set:
		items := x.Items()
		return sliceIterator("set_iterator", func() []Value { return items }), nil
	case *Range:
		i, n := 0, x.Len()
		return &Iterator{Name: "range_iterator", next: func() (Value, bool, error) {
			if i >= n {
				return nil, false, nil
			}
			i++
			return x.At(i - 1), true, nil
		}}, nil
	case *Iterator, *Generator:
		return x, nil
	case *Instance:
		if r, ok, err := vm.callDunder(x, "__iter__"); ok || err != nil {
			if err != nil {
				return nil, err
			}
			if _, ok, _ := vm.findAttr(r, "__next__"); !ok {
				if _, native := r.(*Iterator); !native {
					if _, gen := r.(*Generator); !gen {
						return nil, vm.typeError("iter() returned non-iterator of type '%s'", TypeName(r))
					}
				}
			}
			return r, nil
		}
		if _, ok := x.Class.Lookup("__getitem__"); ok {
			i := int64(0)
			return &Iterator{Name: "iterator", next: func() (Value, bool, error) {
				r, _, err := vm.callDunder(x, "__getitem__", Int(i))
				if err != nil {
					var exc *Exception
					if errors.As(err, &exc) && (exc.Value.Class.IsSubclass(IndexErrorType) || exc.Value.Class.IsSubclass(StopIterationType)) {
						return nil, false, nil
					}
					return nil, false, err
				}
				i++
				return r, true, nil
			}}, nil
		}
	}
	return nil, vm.typeError("'%s' object is not iterable", TypeName(v))
}

// next advances an iterator, reporting false when it is exhausted. An
// exhausted generator also reports its return value.
func (vm *VM) next(it Value) (Value, bool, error) {
	switch x := it.(type) {
	case *Iterator:
		return x.Next()
	case *Generator:
		return vm.resumeGenerator(x)
	case *Instance:
		r, ok, err := vm.callDunder(x, "__next__")
		if ok {
			if err != nil {
				var exc *Exception
				if errors.As(err, &exc) && exc.Value.Class.IsSubclass(StopIterationType) {
					return exc.Value.Attrs["value"], false, nil
				}
				return nil, false, err
			}
			return r, true, nil
		}
	}
	return nil, false, vm.typeError("'%s' object is not an iterator", TypeName(it))
}

// iterate calls fn for each item of v until fn returns false.
func (vm *VM) iterate(v Value, fn func(Value) (bool, error)) error {
	switch x := v.(type) {
	case *List:
		for i := 0; i < len(x.Items); i++ {
			more, err := fn(x.Items[i])
			if err != nil || !more {
				return err
			}
		}
		return nil
	case *Tuple:
		for _, item := range x.Items {
			more, err := fn(item)
			if err != nil || !more {
				return err
			}
		}
		return nil
	}
	it, err := vm.iter(v)
	if err != nil {
		return err
	}
	for {
		item, ok, err := vm.next(it)
		if err != nil || !ok {
			return err
		}
		more, err := fn(item)
		if err != nil || !more {
			return err
		}
	}
}

// toSlice collects the items of an iterable. Lists and tuples are copied.
func (vm *VM) toSlice(v Value) ([]Value, error) {
	switch x := v.(type) {
	case *List:
		return append([]Value(nil), x.Items...), nil
	case *Tuple:
		return append([]Value(nil), x.Items...), nil
	}
	var items []Value
	err := vm.iterate(v, func(item Value) (bool, error) {
		items = append(items, item)
		return true, nil
	})
	return items, err
}

// length implements len(v).
func (vm *VM) length(v Value) (int, error) {
	switch x := v.(type) {
	case Str:
		return strLen(x), nil
	case *List:
		return len(x.Items), nil
	case *Tuple:
		return len(x.Items), nil
	case *Dict:
		return x.Len(), nil
	case *Set:
		return x.Len(), nil
	case *Range:
		return x.Len(), nil
	case *Element:
		return len(x.Children.Items), nil
	case *Instance:
		if r, ok, err := vm.callDunder(x, "__len__"); ok || err != nil {
			if err != nil {
				return 0, err
			}
			n, ok := toInt(r)
			if !ok {
				return 0, vm.typeError("'%s' object cannot be interpreted as an integer", TypeName(r))
			}
			if n < 0 {
				return 0, vm.valueError("__len__() should return >= 0")
			}
			return int(n), nil
		}
	}
	return 0, vm.typeError("object of type '%s' has no len()", TypeName(v))
}

// hash implements hash(v).
func (vm *VM) hash(v Value) (Int, error) {
	k, err := vm.hashKey(v)
	if err != nil {
		return 0, err
	}
	switch x := k.(type) {
	case int64:
		return Int(x), nil
	case float64:
		return Int(int64(math.Float64bits(x))), nil
	}
	var h uint64 = 14695981039346656037
	var b = []byte(keyString(k))
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return Int(int64(h >> 1)), nil
}
