package vm

import (
	"unicode/utf8"
)

// Value is any Nagini runtime value. Every value knows its class; the
// concrete Go type is the variant tag that operators switch on.
//
// Immediate values:
//   - Int, Float, Str, Bool: Go scalars
//   - None: the single NoneType value
//
// Heap values are pointers (*List, *Dict, *Function, *Instance, ...) and
// are shared by reference within one VM.
type Value interface {
	Type() *Class
}

// Int is a 64-bit signed integer. Arithmetic that leaves the int64 range
// raises OverflowError.
type Int int64

// Float is an IEEE 754 double.
type Float float64

// Str is an immutable UTF-8 string. Indexing and len() count code points.
type Str string

// Bool is True or False. Bool is a subclass of int.
type Bool bool

// NoneType is the type of None.
type NoneType struct{}

// None is the null value.
var None Value = NoneType{}

// True and False are the Bool constants.
const (
	True  = Bool(true)
	False = Bool(false)
)

func (Int) Type() *Class      { return IntType }
func (Float) Type() *Class    { return FloatType }
func (Str) Type() *Class      { return StrType }
func (Bool) Type() *Class     { return BoolType }
func (NoneType) Type() *Class { return NoneClass }

// ---------------------------------------------------------------------------
// Type checking helpers
// ---------------------------------------------------------------------------

// IsNone reports whether v is None (or a nil interface).
func IsNone(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(NoneType)
	return ok
}

// TypeName returns the name of v's class, as used in error messages.
func TypeName(v Value) string {
	if v == nil {
		return "NoneType"
	}
	return v.Type().Name
}

// toInt converts ints and bools to int64.
func toInt(v Value) (int64, bool) {
	switch n := v.(type) {
	case Int:
		return int64(n), true
	case Bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// toFloat converts any numeric value to float64.
func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case Float:
		return float64(n), true
	case Int:
		return float64(n), true
	case Bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isNumber(v Value) bool {
	switch v.(type) {
	case Int, Float, Bool:
		return true
	}
	return false
}

// FromBool converts a Go bool.
func FromBool(b bool) Value {
	return Bool(b)
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// truthy implements bool(v). Instances consult __bool__ and then __len__.
func (vm *VM) truthy(v Value) (bool, error) {
	switch x := v.(type) {
	case nil, NoneType:
		return false, nil
	case Bool:
		return bool(x), nil
	case Int:
		return x != 0, nil
	case Float:
		return x != 0, nil
	case Str:
		return x != "", nil
	case *List:
		return len(x.Items) > 0, nil
	case *Tuple:
		return len(x.Items) > 0, nil
	case *Dict:
		return x.Len() > 0, nil
	case *Set:
		return x.Len() > 0, nil
	case *Range:
		return x.Len() > 0, nil
	case *Instance:
		if m, ok := x.Class.Lookup("__bool__"); ok {
			r, err := vm.callMethod(x, m)
			if err != nil {
				return false, err
			}
			b, ok := r.(Bool)
			if !ok {
				return false, vm.typeError("__bool__ should return bool, returned %s", TypeName(r))
			}
			return bool(b), nil
		}
		if m, ok := x.Class.Lookup("__len__"); ok {
			r, err := vm.callMethod(x, m)
			if err != nil {
				return false, err
			}
			n, ok := toInt(r)
			if !ok {
				return false, vm.typeError("'%s' object cannot be interpreted as an integer", TypeName(r))
			}
			return n != 0, nil
		}
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// runes returns the code points of s.
func runes(s Str) []rune {
	return []rune(string(s))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// strLen counts code points.
func strLen(s Str) int {
	if isASCII(string(s)) {
		return len(s)
	}
	return utf8.RuneCountInString(string(s))
}
