package vm

import (
	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Sequences
// ---------------------------------------------------------------------------

// List is a mutable sequence.
type List struct {
	Items []Value
}

// NewList wraps items without copying.
func NewList(items []Value) *List {
	return &List{Items: items}
}

func (l *List) Type() *Class { return ListType }

// Tuple is an immutable sequence.
type Tuple struct {
	Items []Value
}

// NewTuple wraps items without copying.
func NewTuple(items ...Value) *Tuple {
	return &Tuple{Items: items}
}

func (t *Tuple) Type() *Class { return TupleType }

// Range is the lazy integer sequence produced by range().
type Range struct {
	Start, Stop, Step int64
}

func (r *Range) Type() *Class { return RangeType }

// Len returns the number of integers in the range.
func (r *Range) Len() int {
	var n int64
	switch {
	case r.Step > 0 && r.Start < r.Stop:
		n = (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Start > r.Stop:
		n = (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return int(n)
}

// At returns the i-th element; i must be in range.
func (r *Range) At(i int) Int {
	return Int(r.Start + int64(i)*r.Step)
}

// Slice is the value of a[start:stop:step]; absent bounds are None.
type Slice struct {
	Start, Stop, Step Value
}

func (s *Slice) Type() *Class { return SliceType }

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// Cell holds a variable shared between a function and its closures. A nil
// Value means unbound.
type Cell struct {
	Value Value
}

// Function is a closure over a function header embedded in a module.
type Function struct {
	Name     string
	Module   *Module
	Header   *bytecode.FuncHeader
	Defaults []Value // one per parameter with a default, in parameter order
	Upvalues []*Cell
	Owner    *Class // class whose body defined the function, for super()
	Attrs    map[string]Value
}

func (f *Function) Type() *Class { return FunctionType }

// defaultFor returns the default of parameter i, if it has one.
func (f *Function) defaultFor(i int) (Value, bool) {
	if !f.Header.Params[i].HasDefault {
		return nil, false
	}
	n := 0
	for _, p := range f.Header.Params[:i] {
		if p.HasDefault {
			n++
		}
	}
	return f.Defaults[n], true
}

// BuiltinFunc implements a native function. kwargs is nil when the call
// passed no keyword arguments.
type BuiltinFunc func(vm *VM, args []Value, kwargs *Dict) (Value, error)

// Builtin is a native function or method.
type Builtin struct {
	Name string
	Fn   BuiltinFunc
}

func (b *Builtin) Type() *Class { return BuiltinType }

// NewBuiltin creates a native function.
func NewBuiltin(name string, fn BuiltinFunc) *Builtin {
	return &Builtin{Name: name, Fn: fn}
}

// BoundMethod pairs a callable with the receiver passed as its first
// argument.
type BoundMethod struct {
	Self Value
	Func Value
}

func (m *BoundMethod) Type() *Class { return MethodType }

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

// Module is a loaded module: its code, its globals and the names it
// exports. A module that exports nothing exposes every global.
type Module struct {
	Name    string
	Code    *bytecode.Module
	Globals *Dict
	exports []string
	export  map[string]bool

	consts []Value
	funcs  map[int]*bytecode.FuncHeader
}

func (m *Module) Type() *Class { return ModuleType }

func newModule(name string, code *bytecode.Module) *Module {
	m := &Module{
		Name:    name,
		Code:    code,
		Globals: NewDict(),
		funcs:   make(map[int]*bytecode.FuncHeader),
	}
	m.Globals.SetStr("__name__", Str(name))
	if code != nil {
		m.consts = make([]Value, len(code.Constants))
		for i, c := range code.Constants {
			m.consts[i] = constantValue(c)
		}
	}
	return m
}

// constantValue converts a constant pool entry.
func constantValue(c bytecode.Constant) Value {
	switch c.Kind {
	case bytecode.ConstInt:
		return Int(c.Int)
	case bytecode.ConstFloat:
		return Float(c.Float)
	case bytecode.ConstString:
		return Str(c.Str)
	case bytecode.ConstBool:
		return Bool(c.Bool)
	}
	return None
}

// markExported records an export declaration.
func (m *Module) markExported(name string) {
	if m.export == nil {
		m.export = make(map[string]bool)
	}
	if !m.export[name] {
		m.export[name] = true
		m.exports = append(m.exports, name)
	}
}

// Exports returns the exported names in declaration order.
func (m *Module) Exports() []string {
	return m.exports
}

// visible reports whether importers may see name.
func (m *Module) visible(name string) bool {
	if m.export == nil {
		return true
	}
	return m.export[name]
}

// publicNames lists the names bound by `from m import *`.
func (m *Module) publicNames() []string {
	if m.export != nil {
		return m.exports
	}
	var names []string
	for _, k := range m.Globals.Keys() {
		name := string(k.(Str))
		if len(name) > 0 && name[0] != '_' {
			names = append(names, name)
		}
	}
	return names
}

// header decodes and caches the function header at entry.
func (m *Module) header(entry int) (*bytecode.FuncHeader, error) {
	if h, ok := m.funcs[entry]; ok {
		return h, nil
	}
	h, err := m.Code.Function(entry)
	if err != nil {
		return nil, err
	}
	m.funcs[entry] = h
	return h, nil
}

// ---------------------------------------------------------------------------
// Elements
// ---------------------------------------------------------------------------

// Element is the value of a JSX expression. Tag is a string for intrinsic
// tags and the component value otherwise; a fragment has a None tag.
type Element struct {
	Tag      Value
	Props    *Dict
	Children *List
}

func (e *Element) Type() *Class { return ElementType }

// ---------------------------------------------------------------------------
// Iterators
// ---------------------------------------------------------------------------

// Iterator is a native iterator. next reports false when exhausted.
type Iterator struct {
	Name string
	next func() (Value, bool, error)
}

func (it *Iterator) Type() *Class { return IteratorType }

// Next advances the iterator.
func (it *Iterator) Next() (Value, bool, error) {
	return it.next()
}

// sliceIterator re-reads the slice on every step, so items appended to a
// list during iteration are visited.
func sliceIterator(name string, items func() []Value) *Iterator {
	i := 0
	return &Iterator{Name: name, next: func() (Value, bool, error) {
		xs := items()
		if i >= len(xs) {
			return nil, false, nil
		}
		i++
		return xs[i-1], true, nil
	}}
}

// Super is the proxy returned by super(): attribute lookup starts after
// Class in the MRO of Self's class.
type Super struct {
	Class *Class
	Self  Value
}

func (s *Super) Type() *Class { return SuperType }
