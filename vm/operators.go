package vm

import (
	"math"
	"math/bits"
	"strings"

	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

// binarySymbols and the dunder tables are indexed by opcode.
var binarySymbols = map[bytecode.Opcode]string{
	bytecode.OpBinaryAdd:      "+",
	bytecode.OpBinarySub:      "-",
	bytecode.OpBinaryMul:      "*",
	bytecode.OpBinaryDiv:      "/",
	bytecode.OpBinaryMod:      "%",
	bytecode.OpBinaryFloorDiv: "//",
	bytecode.OpBinaryPow:      "**",
	bytecode.OpBinaryMatMul:   "@",
	bytecode.OpBinaryBitAnd:   "&",
	bytecode.OpBinaryBitOr:    "|",
	bytecode.OpBinaryBitXor:   "^",
	bytecode.OpBinaryLShift:   "<<",
	bytecode.OpBinaryRShift:   ">>",
}

var binaryDunders = map[bytecode.Opcode][2]string{
	bytecode.OpBinaryAdd:      {"__add__", "__radd__"},
	bytecode.OpBinarySub:      {"__sub__", "__rsub__"},
	bytecode.OpBinaryMul:      {"__mul__", "__rmul__"},
	bytecode.OpBinaryDiv:      {"__truediv__", "__rtruediv__"},
	bytecode.OpBinaryMod:      {"__mod__", "__rmod__"},
	bytecode.OpBinaryFloorDiv: {"__floordiv__", "__rfloordiv__"},
	bytecode.OpBinaryPow:      {"__pow__", "__rpow__"},
	bytecode.OpBinaryMatMul:   {"__matmul__", "__rmatmul__"},
	bytecode.OpBinaryBitAnd:   {"__and__", "__rand__"},
	bytecode.OpBinaryBitOr:    {"__or__", "__ror__"},
	bytecode.OpBinaryBitXor:   {"__xor__", "__rxor__"},
	bytecode.OpBinaryLShift:   {"__lshift__", "__rlshift__"},
	bytecode.OpBinaryRShift:   {"__rshift__", "__rrshift__"},
}

// binary evaluates an arithmetic or bitwise operator.
func (vm *VM) binary(op bytecode.Opcode, a, b Value) (Value, error) {
	if r, ok, err := vm.builtinBinary(op, a, b); ok || err != nil {
		return r, err
	}
	names := binaryDunders[op]
	if r, ok, err := vm.callDunder(a, names[0], b); ok || err != nil {
		return r, err
	}
	if r, ok, err := vm.callDunder(b, names[1], a); ok || err != nil {
		return r, err
	}
	return nil, vm.typeError("unsupported operand type(s) for %s: '%s' and '%s'", binarySymbols[op], TypeName(a), TypeName(b))
}

// builtinBinary handles operands of built-in types, reporting false when it
// does not apply.
func (vm *VM) builtinBinary(op bytecode.Opcode, a, b Value) (Value, bool, error) {
	x, xInt := toInt(a)
	y, yInt := toInt(b)
	if xInt && yInt {
		if _, ok := a.(Bool); ok {
			if _, ok := b.(Bool); ok {
				switch op {
				case bytecode.OpBinaryBitAnd:
					return Bool(x&y != 0), true, nil
				case bytecode.OpBinaryBitOr:
					return Bool(x|y != 0), true, nil
				case bytecode.OpBinaryBitXor:
					return Bool(x^y != 0), true, nil
				}
			}
		}
		r, err := vm.intBinary(op, x, y)
		return r, r != nil || err != nil, err
	}
	if isNumber(a) && isNumber(b) {
		fx, _ := toFloat(a)
		fy, _ := toFloat(b)
		r, err := vm.floatBinary(op, fx, fy)
		return r, r != nil || err != nil, err
	}

	switch x := a.(type) {
	case Str:
		switch op {
		case bytecode.OpBinaryAdd:
			if y, ok := b.(Str); ok {
				return x + y, true, nil
			}
		case bytecode.OpBinaryMul:
			if n, ok := toInt(b); ok {
				return Str(strings.Repeat(string(x), clampCount(n))), true, nil
			}
		case bytecode.OpBinaryMod:
			r, err := vm.percentFormat(string(x), b)
			return r, true, err
		}
	case *List:
		switch op {
		case bytecode.OpBinaryAdd:
			if y, ok := b.(*List); ok {
				return NewList(concat(x.Items, y.Items)), true, nil
			}
		case bytecode.OpBinaryMul:
			if n, ok := toInt(b); ok {
				return NewList(repeat(x.Items, n)), true, nil
			}
		}
	case *Tuple:
		switch op {
		case bytecode.OpBinaryAdd:
			if y, ok := b.(*Tuple); ok {
				return NewTuple(concat(x.Items, y.Items)...), true, nil
			}
		case bytecode.OpBinaryMul:
			if n, ok := toInt(b); ok {
				return NewTuple(repeat(x.Items, n)...), true, nil
			}
		}
	case *Set:
		if y, ok := b.(*Set); ok {
			r, err := vm.setOperator(op, x, y)
			return r, r != nil || err != nil, err
		}
	case *Dict:
		if y, ok := b.(*Dict); ok && op == bytecode.OpBinaryBitOr {
			r := x.Copy()
			y.Range(func(k, v Value) bool {
				r.setKey(staticKey(k), k, v)
				return true
			})
			return r, true, nil
		}
	}
	// int * sequence
	if n, ok := toInt(a); ok && op == bytecode.OpBinaryMul {
		switch y := b.(type) {
		case Str:
			return Str(strings.Repeat(string(y), clampCount(n))), true, nil
		case *List:
			return NewList(repeat(y.Items, n)), true, nil
		case *Tuple:
			return NewTuple(repeat(y.Items, n)...), true, nil
		}
	}
	return nil, false, nil
}

func clampCount(n int64) int {
	if n < 0 {
		return 0
	}
	return int(n)
}

func concat(a, b []Value) []Value {
	r := make([]Value, 0, len(a)+len(b))
	r = append(r, a...)
	return append(r, b...)
}

func repeat(items []Value, n int64) []Value {
	c := clampCount(n)
	r := make([]Value, 0, len(items)*c)
	for i := 0; i < c; i++ {
		r = append(r, items...)
	}
	return r
}

func (vm *VM) overflow() *Exception {
	return vm.newError(OverflowErrorType, "integer overflow")
}

func (vm *VM) intBinary(op bytecode.Opcode, x, y int64) (Value, error) {
	switch op {
	case bytecode.OpBinaryAdd:
		r := x + y
		if (r > x) != (y > 0) {
			return nil, vm.overflow()
		}
		return Int(r), nil
	case bytecode.OpBinarySub:
		r := x - y
		if (r < x) != (y > 0) {
			return nil, vm.overflow()
		}
		return Int(r), nil
	case bytecode.OpBinaryMul:
		r, ok := mulInt(x, y)
		if !ok {
			return nil, vm.overflow()
		}
		return Int(r), nil
	case bytecode.OpBinaryDiv:
		if y == 0 {
			return nil, vm.newError(ZeroDivisionErrorType, "division by zero")
		}
		return Float(float64(x) / float64(y)), nil
	case bytecode.OpBinaryFloorDiv:
		if y == 0 {
			return nil, vm.newError(ZeroDivisionErrorType, "integer division or modulo by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return nil, vm.overflow()
		}
		return Int(floorDiv(x, y)), nil
	case bytecode.OpBinaryMod:
		if y == 0 {
			return nil, vm.newError(ZeroDivisionErrorType, "integer modulo by zero")
		}
		if y == -1 {
			return Int(0), nil
		}
		return Int(floorMod(x, y)), nil
	case bytecode.OpBinaryPow:
		if y < 0 {
			if x == 0 {
				return nil, vm.newError(ZeroDivisionErrorType, "0.0 cannot be raised to a negative power")
			}
			return Float(math.Pow(float64(x), float64(y))), nil
		}
		r, ok := powInt(x, y)
		if !ok {
			return nil, vm.overflow()
		}
		return Int(r), nil
	case bytecode.OpBinaryBitAnd:
		return Int(x & y), nil
	case bytecode.OpBinaryBitOr:
		return Int(x | y), nil
	case bytecode.OpBinaryBitXor:
		return Int(x ^ y), nil
	case bytecode.OpBinaryLShift:
		if y < 0 {
			return nil, vm.valueError("negative shift count")
		}
		if x == 0 {
			return Int(0), nil
		}
		if y >= 63 || (x<<uint(y))>>uint(y) != x {
			return nil, vm.overflow()
		}
		return Int(x << uint(y)), nil
	case bytecode.OpBinaryRShift:
		if y < 0 {
			return nil, vm.valueError("negative shift count")
		}
		if y >= 63 {
			if x < 0 {
				return Int(-1), nil
			}
			return Int(0), nil
		}
		return Int(x >> uint(y)), nil
	}
	return nil, nil
}

func mulInt(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	neg := (x < 0) != (y < 0)
	ux, uy := absU(x), absU(y)
	hi, lo := bits.Mul64(ux, uy)
	if hi != 0 {
		return 0, false
	}
	if neg {
		if lo > 1<<63 {
			return 0, false
		}
		return -int64(lo), true
	}
	if lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

func absU(x int64) uint64 {
	if x < 0 {
		return uint64(-x)
	}
	return uint64(x)
}

func powInt(x, y int64) (int64, bool) {
	r := int64(1)
	for y > 0 {
		if y&1 == 1 {
			var ok bool
			if r, ok = mulInt(r, x); !ok {
				return 0, false
			}
		}
		y >>= 1
		if y > 0 {
			var ok bool
			if x, ok = mulInt(x, x); !ok {
				return 0, false
			}
		}
	}
	return r, true
}

func floorDiv(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func floorMod(x, y int64) int64 {
	m := x % y
	if m != 0 && ((m < 0) != (y < 0)) {
		m += y
	}
	return m
}

func (vm *VM) floatBinary(op bytecode.Opcode, x, y float64) (Value, error) {
	switch op {
	case bytecode.OpBinaryAdd:
		return Float(x + y), nil
	case bytecode.OpBinarySub:
		return Float(x - y), nil
	case bytecode.OpBinaryMul:
		return Float(x * y), nil
	case bytecode.OpBinaryDiv:
		if y == 0 {
			return nil, vm.newError(ZeroDivisionErrorType, "float division by zero")
		}
		return Float(x / y), nil
	case bytecode.OpBinaryFloorDiv:
		if y == 0 {
			return nil, vm.newError(ZeroDivisionErrorType, "float floor division by zero")
		}
		return Float(math.Floor(x / y)), nil
	case bytecode.OpBinaryMod:
		if y == 0 {
			return nil, vm.newError(ZeroDivisionErrorType, "float modulo")
		}
		m := math.Mod(x, y)
		if m != 0 && ((m < 0) != (y < 0)) {
			m += y
		}
		return Float(m), nil
	case bytecode.OpBinaryPow:
		if x == 0 && y < 0 {
			return nil, vm.newError(ZeroDivisionErrorType, "0.0 cannot be raised to a negative power")
		}
		if x < 0 && y != math.Trunc(y) {
			return nil, vm.valueError("math domain error")
		}
		return Float(math.Pow(x, y)), nil
	}
	return nil, nil
}

func (vm *VM) setOperator(op bytecode.Opcode, x, y *Set) (Value, error) {
	r := NewSet()
	switch op {
	case bytecode.OpBinaryBitOr:
		r = x.Copy()
		for _, v := range y.Items() {
			if err := vm.setAdd(r, v); err != nil {
				return nil, err
			}
		}
	case bytecode.OpBinaryBitAnd, bytecode.OpBinarySub:
		keep := op == bytecode.OpBinaryBitAnd
		for _, v := range x.Items() {
			in, err := vm.setHas(y, v)
			if err != nil {
				return nil, err
			}
			if in == keep {
				if err := vm.setAdd(r, v); err != nil {
					return nil, err
				}
			}
		}
	case bytecode.OpBinaryBitXor:
		for _, pair := range [][2]*Set{{x, y}, {y, x}} {
			for _, v := range pair[0].Items() {
				in, err := vm.setHas(pair[1], v)
				if err != nil {
					return nil, err
				}
				if !in {
					if err := vm.setAdd(r, v); err != nil {
						return nil, err
					}
				}
			}
		}
	default:
		return nil, nil
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

func (vm *VM) unary(op bytecode.Opcode, a Value) (Value, error) {
	if op == bytecode.OpUnaryNot {
		t, err := vm.truthy(a)
		return Bool(!t), err
	}
	switch x := a.(type) {
	case Int, Bool:
		n, _ := toInt(x)
		switch op {
		case bytecode.OpUnaryNeg:
			if n == math.MinInt64 {
				return nil, vm.overflow()
			}
			return Int(-n), nil
		case bytecode.OpUnaryPos:
			return Int(n), nil
		case bytecode.OpUnaryInvert:
			return Int(^n), nil
		}
	case Float:
		switch op {
		case bytecode.OpUnaryNeg:
			return -x, nil
		case bytecode.OpUnaryPos:
			return x, nil
		}
	}
	name, sym := "__neg__", "-"
	switch op {
	case bytecode.OpUnaryPos:
		name, sym = "__pos__", "+"
	case bytecode.OpUnaryInvert:
		name, sym = "__invert__", "~"
	}
	if r, ok, err := vm.callDunder(a, name); ok || err != nil {
		return r, err
	}
	return nil, vm.typeError("bad operand type for unary %s: '%s'", sym, TypeName(a))
}

// ---------------------------------------------------------------------------
// Comparisons
// ---------------------------------------------------------------------------

var compareSymbols = map[bytecode.Opcode]string{
	bytecode.OpBinaryLess:         "<",
	bytecode.OpBinaryLessEqual:    "<=",
	bytecode.OpBinaryGreater:      ">",
	bytecode.OpBinaryGreaterEqual: ">=",
}

var compareDunders = map[bytecode.Opcode][2]string{
	bytecode.OpBinaryLess:         {"__lt__", "__gt__"},
	bytecode.OpBinaryLessEqual:    {"__le__", "__ge__"},
	bytecode.OpBinaryGreater:      {"__gt__", "__lt__"},
	bytecode.OpBinaryGreaterEqual: {"__ge__", "__le__"},
}

// compare evaluates a comparison operator.
func (vm *VM) compare(op bytecode.Opcode, a, b Value) (Value, error) {
	switch op {
	case bytecode.OpBinaryEqual:
		eq, err := vm.equal(a, b)
		return Bool(eq), err
	case bytecode.OpBinaryNotEqual:
		if r, ok, err := vm.callDunder(a, "__ne__", b); ok || err != nil {
			return r, err
		}
		eq, err := vm.equal(a, b)
		return Bool(!eq), err
	case bytecode.OpBinaryIs:
		return Bool(identical(a, b)), nil
	case bytecode.OpBinaryIsNot:
		return Bool(!identical(a, b)), nil
	case bytecode.OpBinaryIn, bytecode.OpBinaryNotIn:
		in, err := vm.contains(b, a)
		if op == bytecode.OpBinaryNotIn {
			in = !in
		}
		return Bool(in), err
	}
	r, err := vm.order(op, a, b)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// order evaluates <, <=, > and >=.
func (vm *VM) order(op bytecode.Opcode, a, b Value) (Value, error) {
	if isNumber(a) && isNumber(b) {
		x, xInt := toInt(a)
		y, yInt := toInt(b)
		if xInt && yInt {
			return Bool(orderInts(op, x, y)), nil
		}
		fx, _ := toFloat(a)
		fy, _ := toFloat(b)
		return Bool(orderFloats(op, fx, fy)), nil
	}
	switch x := a.(type) {
	case Str:
		if y, ok := b.(Str); ok {
			return Bool(orderInts(op, int64(strings.Compare(string(x), string(y))), 0)), nil
		}
	case *List:
		if y, ok := b.(*List); ok {
			return vm.orderSeq(op, x.Items, y.Items)
		}
	case *Tuple:
		if y, ok := b.(*Tuple); ok {
			return vm.orderSeq(op, x.Items, y.Items)
		}
	case *Set:
		if y, ok := b.(*Set); ok {
			return vm.orderSets(op, x, y)
		}
	}
	names := compareDunders[op]
	if r, ok, err := vm.callDunder(a, names[0], b); ok || err != nil {
		return r, err
	}
	if r, ok, err := vm.callDunder(b, names[1], a); ok || err != nil {
		return r, err
	}
	return nil, vm.typeError("'%s' not supported between instances of '%s' and '%s'", compareSymbols[op], TypeName(a), TypeName(b))
}

func orderInts(op bytecode.Opcode, x, y int64) bool {
	switch op {
	case bytecode.OpBinaryLess:
		return x < y
	case bytecode.OpBinaryLessEqual:
		return x <= y
	case bytecode.OpBinaryGreater:
		return x > y
	}
	return x >= y
}

func orderFloats(op bytecode.Opcode, x, y float64) bool {
	switch op {
	case bytecode.OpBinaryLess:
		return x < y
	case bytecode.OpBinaryLessEqual:
		return x <= y
	case bytecode.OpBinaryGreater:
		return x > y
	}
	return x >= y
}

// orderSeq compares sequences lexicographically.
func (vm *VM) orderSeq(op bytecode.Opcode, xs, ys []Value) (Value, error) {
	for i := 0; i < len(xs) && i < len(ys); i++ {
		eq, err := vm.equal(xs[i], ys[i])
		if err != nil {
			return nil, err
		}
		if !eq {
			return vm.order(op, xs[i], ys[i])
		}
	}
	return Bool(orderInts(op, int64(len(xs)), int64(len(ys)))), nil
}

// orderSets implements the subset relations.
func (vm *VM) orderSets(op bytecode.Opcode, x, y *Set) (Value, error) {
	subset := func(a, b *Set) (bool, error) {
		for _, v := range a.Items() {
			in, err := vm.setHas(b, v)
			if err != nil || !in {
				return false, err
			}
		}
		return true, nil
	}
	var r bool
	var err error
	switch op {
	case bytecode.OpBinaryLess:
		r, err = subset(x, y)
		r = r && x.Len() < y.Len()
	case bytecode.OpBinaryLessEqual:
		r, err = subset(x, y)
	case bytecode.OpBinaryGreater:
		r, err = subset(y, x)
		r = r && y.Len() < x.Len()
	default:
		r, err = subset(y, x)
	}
	return Bool(r), err
}

// identical implements the is operator.
func identical(a, b Value) bool {
	if IsNone(a) || IsNone(b) {
		return IsNone(a) && IsNone(b)
	}
	return a == b
}

// equal implements ==.
func (vm *VM) equal(a, b Value) (bool, error) {
	if isNumber(a) && isNumber(b) {
		x, xInt := toInt(a)
		y, yInt := toInt(b)
		if xInt && yInt {
			return x == y, nil
		}
		fx, _ := toFloat(a)
		fy, _ := toFloat(b)
		return fx == fy, nil
	}
	switch x := a.(type) {
	case nil, NoneType:
		return IsNone(b), nil
	case Str:
		y, ok := b.(Str)
		return ok && x == y, nil
	case *List:
		if y, ok := b.(*List); ok {
			return vm.equalSeq(x.Items, y.Items)
		}
		return false, nil
	case *Tuple:
		if y, ok := b.(*Tuple); ok {
			return vm.equalSeq(x.Items, y.Items)
		}
		return false, nil
	case *Dict:
		if y, ok := b.(*Dict); ok {
			return vm.equalDicts(x, y)
		}
		return false, nil
	case *Set:
		if y, ok := b.(*Set); ok {
			if x.Len() != y.Len() {
				return false, nil
			}
			r, err := vm.orderSets(bytecode.OpBinaryLessEqual, x, y)
			return r == True, err
		}
		return false, nil
	case *Range:
		if y, ok := b.(*Range); ok {
			return x.Len() == y.Len() && (x.Len() == 0 || x.Start == y.Start && (x.Len() == 1 || x.Step == y.Step)), nil
		}
		return false, nil
	case *Instance:
		if r, ok, err := vm.callDunder(x, "__eq__", b); ok || err != nil {
			if err != nil {
				return false, err
			}
			return vm.truthy(r)
		}
	}
	if y, ok := b.(*Instance); ok {
		if r, ok, err := vm.callDunder(y, "__eq__", a); ok || err != nil {
			if err != nil {
				return false, err
			}
			return vm.truthy(r)
		}
	}
	return a == b, nil
}

func (vm *VM) equalSeq(xs, ys []Value) (bool, error) {
	if len(xs) != len(ys) {
		return false, nil
	}
	for i := range xs {
		if identical(xs[i], ys[i]) {
			continue
		}
		eq, err := vm.equal(xs[i], ys[i])
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

func (vm *VM) equalDicts(x, y *Dict) (bool, error) {
	if x.Len() != y.Len() {
		return false, nil
	}
	result := true
	var err error
	x.Range(func(k, v Value) bool {
		w, ok, e := vm.dictGet(y, k)
		if e != nil || !ok {
			result, err = false, e
			return false
		}
		eq, e := vm.equal(v, w)
		if e != nil || !eq {
			result, err = false, e
			return false
		}
		return true
	})
	return result, err
}

// contains implements `item in container`.
func (vm *VM) contains(container, item Value) (bool, error) {
	switch c := container.(type) {
	case Str:
		s, ok := item.(Str)
		if !ok {
			return false, vm.typeError("'in <string>' requires string as left operand, not %s", TypeName(item))
		}
		return strings.Contains(string(c), string(s)), nil
	case *List:
		return vm.containsItem(c.Items, item)
	case *Tuple:
		return vm.containsItem(c.Items, item)
	case *Dict:
		_, ok, err := vm.dictGet(c, item)
		return ok, err
	case *Set:
		return vm.setHas(c, item)
	case *Range:
		n, ok := toInt(item)
		if !ok {
			if f, isFloat := item.(Float); isFloat && float64(f) == math.Trunc(float64(f)) {
				n, ok = int64(f), true
			}
		}
		if !ok {
			return false, nil
		}
		if c.Step > 0 && (n < c.Start || n >= c.Stop) || c.Step < 0 && (n > c.Start || n <= c.Stop) {
			return false, nil
		}
		return (n-c.Start)%c.Step == 0, nil
	case *Instance:
		if r, ok, err := vm.callDunder(c, "__contains__", item); ok || err != nil {
			if err != nil {
				return false, err
			}
			return vm.truthy(r)
		}
	}
	found := false
	err := vm.iterate(container, func(v Value) (bool, error) {
		eq, err := vm.equal(v, item)
		found = eq
		return !eq, err
	})
	return found, err
}

func (vm *VM) containsItem(items []Value, item Value) (bool, error) {
	for _, v := range items {
		if identical(v, item) {
			return true, nil
		}
		eq, err := vm.equal(v, item)
		if err != nil || eq {
			return eq, err
		}
	}
	return false, nil
}
