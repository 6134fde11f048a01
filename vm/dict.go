package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Hash keys
// ---------------------------------------------------------------------------

// tupleKey is the hash key of a tuple: the encoded keys of its items.
type tupleKey string

// keyOf maps a hashable value to a comparable Go value such that values
// that compare equal share a key: 1, 1.0 and True are one key. Mutable
// containers are unhashable. Other heap values hash by identity.
func keyOf(v Value) (interface{}, bool) {
	switch x := v.(type) {
	case Int:
		return int64(x), true
	case Bool:
		if x {
			return int64(1), true
		}
		return int64(0), true
	case Float:
		f := float64(x)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), true
		}
		return f, true
	case Str:
		return string(x), true
	case NoneType:
		return x, true
	case nil:
		return NoneType{}, true
	case *Tuple:
		var b strings.Builder
		b.WriteByte('(')
		for _, item := range x.Items {
			k, ok := keyOf(item)
			if !ok {
				return nil, false
			}
			writeKey(&b, k)
			b.WriteByte(',')
		}
		return tupleKey(b.String()), true
	case *List, *Dict, *Set:
		return nil, false
	}
	return v, true
}

// hashKey is keyOf raising TypeError for unhashable values.
func (vm *VM) hashKey(v Value) (interface{}, error) {
	k, ok := keyOf(v)
	if !ok {
		return nil, vm.typeError("unhashable type: '%s'", TypeName(v))
	}
	return k, nil
}

// writeKey encodes a hash key with a type prefix so that keys of different
// kinds never collide inside a tuple key.
func writeKey(b *strings.Builder, k interface{}) {
	switch x := k.(type) {
	case int64:
		b.WriteString("i")
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		b.WriteString("f")
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		b.WriteString("s")
		b.WriteString(strconv.Quote(x))
	case NoneType:
		b.WriteString("n")
	case tupleKey:
		b.WriteString("t")
		b.WriteString(string(x))
	default:
		// heap values: the address is the identity
		fmt.Fprintf(b, "p%p", x)
	}
}

func keyString(k interface{}) string {
	var b strings.Builder
	writeKey(&b, k)
	return b.String()
}

// ---------------------------------------------------------------------------
// Dict: insertion-ordered hash map
// ---------------------------------------------------------------------------

type dictEntry struct {
	key   Value
	value Value
	used  bool
}

// Dict is an insertion-ordered mapping from hashable keys to values.
// Deleted entries leave tombstones until the table is compacted.
type Dict struct {
	entries []dictEntry
	index   map[interface{}]int
	live    int
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{index: make(map[interface{}]int)}
}

func (d *Dict) Type() *Class { return DictType }

// Len returns the number of entries.
func (d *Dict) Len() int { return d.live }

// dictGet looks up key.
func (vm *VM) dictGet(d *Dict, key Value) (Value, bool, error) {
	k, err := vm.hashKey(key)
	if err != nil {
		return nil, false, err
	}
	i, ok := d.index[k]
	if !ok {
		return nil, false, nil
	}
	return d.entries[i].value, true, nil
}

// dictSet inserts or replaces key.
func (vm *VM) dictSet(d *Dict, key, value Value) error {
	k, err := vm.hashKey(key)
	if err != nil {
		return err
	}
	d.setKey(k, key, value)
	return nil
}

// dictDelete removes key, reporting whether it was present.
func (vm *VM) dictDelete(d *Dict, key Value) (Value, bool, error) {
	k, err := vm.hashKey(key)
	if err != nil {
		return nil, false, err
	}
	v, ok := d.deleteKey(k)
	return v, ok, nil
}

func (d *Dict) setKey(k interface{}, key, value Value) {
	if i, ok := d.index[k]; ok {
		d.entries[i].value = value
		return
	}
	d.index[k] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: key, value: value, used: true})
	d.live++
}

func (d *Dict) deleteKey(k interface{}) (Value, bool) {
	i, ok := d.index[k]
	if !ok {
		return nil, false
	}
	v := d.entries[i].value
	d.entries[i] = dictEntry{}
	delete(d.index, k)
	d.live--
	if len(d.entries) > 16 && d.live < len(d.entries)/2 {
		d.compact()
	}
	return v, true
}

// compact drops tombstones and rebuilds the index.
func (d *Dict) compact() {
	entries := make([]dictEntry, 0, d.live)
	for _, e := range d.entries {
		if e.used {
			entries = append(entries, e)
		}
	}
	d.entries = entries
	d.index = make(map[interface{}]int, len(entries))
	for i, e := range d.entries {
		d.index[staticKey(e.key)] = i
	}
}

// Clear removes every entry.
func (d *Dict) Clear() {
	d.entries = nil
	d.index = make(map[interface{}]int)
	d.live = 0
}

// Keys returns the live keys in insertion order.
func (d *Dict) Keys() []Value {
	keys := make([]Value, 0, d.live)
	for _, e := range d.entries {
		if e.used {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Values returns the live values in insertion order.
func (d *Dict) Values() []Value {
	values := make([]Value, 0, d.live)
	for _, e := range d.entries {
		if e.used {
			values = append(values, e.value)
		}
	}
	return values
}

// Range calls fn for every entry in order until it returns false.
func (d *Dict) Range(fn func(key, value Value) bool) {
	for i := 0; i < len(d.entries); i++ {
		e := d.entries[i]
		if e.used && !fn(e.key, e.value) {
			return
		}
	}
}

// Copy returns a shallow copy.
func (d *Dict) Copy() *Dict {
	c := NewDict()
	d.Range(func(k, v Value) bool {
		c.setKey(staticKey(k), k, v)
		return true
	})
	return c
}

// GetStr looks up a string key. Namespaces are dicts keyed by Str.
func (d *Dict) GetStr(name string) (Value, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.entries[i].value, true
}

// SetStr binds a string key.
func (d *Dict) SetStr(name string, value Value) {
	d.setKey(name, Str(name), value)
}

// DeleteStr unbinds a string key.
func (d *Dict) DeleteStr(name string) bool {
	_, ok := d.deleteKey(name)
	return ok
}

// staticKey computes the key of a value already known to be hashable.
func staticKey(v Value) interface{} {
	k, _ := keyOf(v)
	return k
}

// ---------------------------------------------------------------------------
// Set: insertion-ordered hash set
// ---------------------------------------------------------------------------

// Set is a mutable set of hashable values, iterated in insertion order.
type Set struct {
	d *Dict
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{d: NewDict()}
}

func (s *Set) Type() *Class { return SetType }

// Len returns the number of members.
func (s *Set) Len() int { return s.d.Len() }

// Items returns the members in insertion order.
func (s *Set) Items() []Value { return s.d.Keys() }

func (vm *VM) setAdd(s *Set, v Value) error {
	return vm.dictSet(s.d, v, None)
}

func (vm *VM) setHas(s *Set, v Value) (bool, error) {
	_, ok, err := vm.dictGet(s.d, v)
	return ok, err
}

func (vm *VM) setRemove(s *Set, v Value) (bool, error) {
	_, ok, err := vm.dictDelete(s.d, v)
	return ok, err
}

// Copy returns a shallow copy.
func (s *Set) Copy() *Set {
	return &Set{d: s.d.Copy()}
}
