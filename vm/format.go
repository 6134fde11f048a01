package vm

import (
	"html"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// str() and repr()
// ---------------------------------------------------------------------------

// str implements str(v).
func (vm *VM) str(v Value) (string, error) {
	switch x := v.(type) {
	case Str:
		return string(x), nil
	case *Instance:
		if m, ok := x.Class.Lookup("__str__"); ok {
			return vm.dunderString(x, m, "__str__")
		}
	case *Element:
		return vm.renderElement(x)
	}
	return vm.repr(v)
}

// repr implements repr(v).
func (vm *VM) repr(v Value) (string, error) {
	var b strings.Builder
	err := vm.writeRepr(&b, v, make(map[Value]bool))
	return b.String(), err
}

func (vm *VM) dunderString(self *Instance, m Value, name string) (string, error) {
	r, err := vm.callMethod(self, m)
	if err != nil {
		return "", err
	}
	s, ok := r.(Str)
	if !ok {
		return "", vm.typeError("%s returned non-string (type %s)", name, TypeName(r))
	}
	return string(s), nil
}

// writeRepr appends repr(v); seen guards against self-referencing
// containers.
func (vm *VM) writeRepr(b *strings.Builder, v Value, seen map[Value]bool) error {
	switch x := v.(type) {
	case nil, NoneType, Int, Float, Bool, Str:
		b.WriteString(plainRepr(x))
		return nil
	case *List:
		return vm.writeSeq(b, x, "[", "]", x.Items, false, seen)
	case *Tuple:
		return vm.writeSeq(b, x, "(", ")", x.Items, len(x.Items) == 1, seen)
	case *Set:
		if x.Len() == 0 {
			b.WriteString("set()")
			return nil
		}
		return vm.writeSeq(b, x, "{", "}", x.Items(), false, seen)
	case *Dict:
		if seen[x] {
			b.WriteString("{...}")
			return nil
		}
		seen[x] = true
		defer delete(seen, x)
		b.WriteByte('{')
		first := true
		var err error
		x.Range(func(k, val Value) bool {
			if !first {
				b.WriteString(", ")
			}
			first = false
			if err = vm.writeRepr(b, k, seen); err != nil {
				return false
			}
			b.WriteString(": ")
			err = vm.writeRepr(b, val, seen)
			return err == nil
		})
		b.WriteByte('}')
		return err
	case *Range:
		if x.Step == 1 {
			b.WriteString("range(" + strconv.FormatInt(x.Start, 10) + ", " + strconv.FormatInt(x.Stop, 10) + ")")
		} else {
			b.WriteString("range(" + strconv.FormatInt(x.Start, 10) + ", " + strconv.FormatInt(x.Stop, 10) + ", " + strconv.FormatInt(x.Step, 10) + ")")
		}
		return nil
	case *Slice:
		b.WriteString("slice(")
		for i, part := range []Value{x.Start, x.Stop, x.Step} {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := vm.writeRepr(b, part, seen); err != nil {
				return err
			}
		}
		b.WriteByte(')')
		return nil
	case *Class:
		if x.builtin {
			b.WriteString("<class '" + x.Name + "'>")
		} else {
			b.WriteString("<class '__main__." + x.Name + "'>")
		}
		return nil
	case *Function:
		b.WriteString("<function " + x.Name + ">")
		return nil
	case *Builtin:
		b.WriteString("<built-in function " + x.Name + ">")
		return nil
	case *BoundMethod:
		b.WriteString("<bound method " + callableName(x.Func) + " of ")
		if err := vm.writeRepr(b, x.Self, seen); err != nil {
			return err
		}
		b.WriteByte('>')
		return nil
	case *Module:
		b.WriteString("<module '" + x.Name + "'>")
		return nil
	case *Element:
		s, err := vm.renderElement(x)
		b.WriteString(s)
		return err
	case *Instance:
		if m, ok := x.Class.Lookup("__repr__"); ok {
			s, err := vm.dunderString(x, m, "__repr__")
			b.WriteString(s)
			return err
		}
		b.WriteString("<" + x.Class.Name + " object>")
		return nil
	case *Generator:
		b.WriteString("<generator object " + x.name + ">")
		return nil
	case *Coroutine:
		b.WriteString("<coroutine object " + x.name + ">")
		return nil
	case *Future:
		if x.Done() {
			b.WriteString("<Future finished>")
		} else {
			b.WriteString("<Future pending>")
		}
		return nil
	}
	b.WriteString("<" + TypeName(v) + " object>")
	return nil
}

func (vm *VM) writeSeq(b *strings.Builder, self Value, open, close string, items []Value, trailingComma bool, seen map[Value]bool) error {
	if seen[self] {
		b.WriteString(open + "..." + close)
		return nil
	}
	seen[self] = true
	defer delete(seen, self)
	b.WriteString(open)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := vm.writeRepr(b, item, seen); err != nil {
			return err
		}
	}
	if trailingComma {
		b.WriteByte(',')
	}
	b.WriteString(close)
	return nil
}

func callableName(v Value) string {
	switch f := v.(type) {
	case *Function:
		if f.Owner != nil {
			return f.Owner.Name + "." + f.Name
		}
		return f.Name
	case *Builtin:
		return f.Name
	}
	return TypeName(v)
}

// plainRepr formats immediate values.
func plainRepr(v Value) string {
	switch x := v.(type) {
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return formatFloat(float64(x))
	case Bool:
		if x {
			return "True"
		}
		return "False"
	case Str:
		return quoteStr(string(x))
	}
	return "None"
}

// formatFloat renders the shortest representation that round-trips,
// switching to exponent notation outside 1e-4 <= |f| < 1e16.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	exp := 0
	if f != 0 {
		e := strconv.FormatFloat(f, 'e', -1, 64)
		exp, _ = strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	}
	if exp < -4 || exp >= 16 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		return s
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// quoteStr quotes s with single quotes unless it contains a single quote
// and no double quote.
func quoteStr(s string) string {
	q := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			b.WriteString(`\x`)
			b.WriteString(strconv.FormatInt(int64(r)|0x100, 16)[1:])
		case !unicode.IsPrint(r):
			if r <= 0xFFFF {
				b.WriteString(`\u`)
				b.WriteString(strconv.FormatInt(int64(r)|0x10000, 16)[1:])
			} else {
				b.WriteString(`\U`)
				b.WriteString(strconv.FormatInt(int64(r)|0x100000000, 16)[1:])
			}
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}

// asciiRepr escapes every non-ASCII code point of a repr.
func asciiRepr(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case r <= 0xFF:
			b.WriteString(`\x` + strconv.FormatInt(int64(r)|0x100, 16)[1:])
		case r <= 0xFFFF:
			b.WriteString(`\u` + strconv.FormatInt(int64(r)|0x10000, 16)[1:])
		default:
			b.WriteString(`\U` + strconv.FormatInt(int64(r)|0x100000000, 16)[1:])
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Elements
// ---------------------------------------------------------------------------

// renderElement renders an element as markup. Props become attributes;
// True renders a bare attribute and False or None omits it.
func (vm *VM) renderElement(e *Element) (string, error) {
	var b strings.Builder
	err := vm.writeElement(&b, e)
	return b.String(), err
}

func (vm *VM) writeElement(b *strings.Builder, e *Element) error {
	tag := ""
	switch t := e.Tag.(type) {
	case Str:
		tag = string(t)
	case NoneType:
	default:
		// component: called with the props as keywords plus children
		kwargs := e.Props.Copy()
		kwargs.SetStr("children", e.Children)
		r, err := vm.call(t, nil, kwargs)
		if err != nil {
			return err
		}
		switch x := r.(type) {
		case *Element:
			return vm.writeElement(b, x)
		case NoneType, Bool:
			return nil
		}
		s, err := vm.str(r)
		if err != nil {
			return err
		}
		b.WriteString(html.EscapeString(s))
		return nil
	}
	if tag != "" {
		b.WriteString("<" + tag)
		var err error
		e.Props.Range(func(k, v Value) bool {
			name, _ := k.(Str)
			switch x := v.(type) {
			case Bool:
				if x {
					b.WriteString(" " + string(name))
				}
				return true
			case NoneType:
				return true
			}
			var s string
			s, err = vm.str(v)
			if err != nil {
				return false
			}
			b.WriteString(" " + string(name) + `="` + html.EscapeString(s) + `"`)
			return true
		})
		if err != nil {
			return err
		}
		if len(e.Children.Items) == 0 {
			b.WriteString(" />")
			return nil
		}
		b.WriteString(">")
	}
	for _, c := range e.Children.Items {
		switch x := c.(type) {
		case *Element:
			if err := vm.writeElement(b, x); err != nil {
				return err
			}
		case NoneType, Bool:
		default:
			s, err := vm.str(c)
			if err != nil {
				return err
			}
			b.WriteString(html.EscapeString(s))
		}
	}
	if tag != "" {
		b.WriteString("</" + tag + ">")
	}
	return nil
}

// ---------------------------------------------------------------------------
// format(): the format specification mini-language
// ---------------------------------------------------------------------------

type formatSpec struct {
	fill      rune
	align     byte // '<', '>', '^', '=' or 0
	sign      byte // '+', '-', ' ' or 0
	alternate bool
	width     int
	grouping  byte // ',' or '_' or 0
	precision int  // -1 when absent
	kind      byte // presentation type or 0
}

func parseFormatSpec(spec string) (formatSpec, bool) {
	fs := formatSpec{fill: ' ', precision: -1}
	rs := []rune(spec)
	i := 0
	isAlign := func(r rune) bool { return r == '<' || r == '>' || r == '^' || r == '=' }
	if len(rs) >= 2 && isAlign(rs[1]) {
		fs.fill, fs.align = rs[0], byte(rs[1])
		i = 2
	} else if len(rs) >= 1 && isAlign(rs[0]) {
		fs.align = byte(rs[0])
		i = 1
	}
	if i < len(rs) && (rs[i] == '+' || rs[i] == '-' || rs[i] == ' ') {
		fs.sign = byte(rs[i])
		i++
	}
	if i < len(rs) && rs[i] == '#' {
		fs.alternate = true
		i++
	}
	if i < len(rs) && rs[i] == '0' {
		if fs.align == 0 {
			fs.fill, fs.align = '0', '='
		}
		i++
	}
	start := i
	for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
		i++
	}
	if i > start {
		fs.width, _ = strconv.Atoi(string(rs[start:i]))
	}
	if i < len(rs) && (rs[i] == ',' || rs[i] == '_') {
		fs.grouping = byte(rs[i])
		i++
	}
	if i < len(rs) && rs[i] == '.' {
		i++
		start = i
		for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
			i++
		}
		if i == start {
			return fs, false
		}
		fs.precision, _ = strconv.Atoi(string(rs[start:i]))
	}
	if i < len(rs) {
		fs.kind = byte(rs[i])
		i++
	}
	return fs, i == len(rs)
}

// format implements format(v, spec).
func (vm *VM) format(v Value, spec string) (string, error) {
	if inst, ok := v.(*Instance); ok {
		if m, ok := inst.Class.Lookup("__format__"); ok {
			r, err := vm.callMethod(inst, m, Str(spec))
			if err != nil {
				return "", err
			}
			s, ok := r.(Str)
			if !ok {
				return "", vm.typeError("__format__ must return a str, not %s", TypeName(r))
			}
			return string(s), nil
		}
	}
	if spec == "" {
		return vm.str(v)
	}
	fs, ok := parseFormatSpec(spec)
	if !ok {
		return "", vm.valueError("Invalid format specifier '%s'", spec)
	}

	switch x := v.(type) {
	case Bool:
		if fs.kind == 0 || fs.kind == 's' {
			return pad(plainRepr(x), fs, '<'), nil
		}
		return vm.formatInt(int64(boolInt(x)), fs, spec)
	case Int:
		return vm.formatInt(int64(x), fs, spec)
	case Float:
		return vm.formatFloatSpec(float64(x), fs, spec)
	}

	s, err := vm.str(v)
	if err != nil {
		return "", err
	}
	if fs.kind != 0 && fs.kind != 's' {
		return "", vm.valueError("Unknown format code '%c' for object of type '%s'", fs.kind, TypeName(v))
	}
	if fs.precision >= 0 {
		if r := []rune(s); len(r) > fs.precision {
			s = string(r[:fs.precision])
		}
	}
	return pad(s, fs, '<'), nil
}

func boolInt(b Bool) int {
	if b {
		return 1
	}
	return 0
}

func (vm *VM) formatInt(n int64, fs formatSpec, spec string) (string, error) {
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-n)
	}
	var digits, prefix string
	switch fs.kind {
	case 0, 'd', 'n':
		digits = strconv.FormatUint(u, 10)
	case 'b':
		digits, prefix = strconv.FormatUint(u, 2), "0b"
	case 'o':
		digits, prefix = strconv.FormatUint(u, 8), "0o"
	case 'x':
		digits, prefix = strconv.FormatUint(u, 16), "0x"
	case 'X':
		digits, prefix = strings.ToUpper(strconv.FormatUint(u, 16)), "0X"
	case 'c':
		return pad(string(rune(n)), fs, '<'), nil
	case 'e', 'E', 'f', 'F', 'g', 'G', '%':
		return vm.formatFloatSpec(float64(n), fs, spec)
	default:
		return "", vm.valueError("Unknown format code '%c' for object of type 'int'", fs.kind)
	}
	if fs.grouping != 0 {
		every := 3
		if fs.kind == 'b' || fs.kind == 'o' || fs.kind == 'x' || fs.kind == 'X' {
			every = 4
		}
		digits = group(digits, every, fs.grouping)
	}
	if !fs.alternate {
		prefix = ""
	}
	return padNumber(signOf(neg, fs.sign), prefix+digits, fs), nil
}

func (vm *VM) formatFloatSpec(f float64, fs formatSpec, spec string) (string, error) {
	neg := math.Signbit(f) && !math.IsNaN(f)
	a := math.Abs(f)
	prec := fs.precision
	var body string
	switch fs.kind {
	case 'f', 'F':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(a, 'f', prec, 64)
	case 'e', 'E':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(a, 'e', prec, 64)
	case 'g', 'G':
		if prec < 0 {
			prec = 6
		}
		if prec == 0 {
			prec = 1
		}
		body = strconv.FormatFloat(a, 'g', prec, 64)
	case '%':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(a*100, 'f', prec, 64) + "%"
	case 0:
		if prec < 0 {
			body = formatFloat(a)
		} else {
			body = strconv.FormatFloat(a, 'g', prec, 64)
		}
	default:
		return "", vm.valueError("Unknown format code '%c' for object of type 'float'", fs.kind)
	}
	if math.IsInf(a, 0) {
		body = "inf"
	} else if math.IsNaN(a) {
		body = "nan"
	}
	if fs.kind == 'E' || fs.kind == 'G' || fs.kind == 'F' {
		body = strings.ToUpper(body)
	}
	if fs.grouping != 0 {
		intPart, rest := body, ""
		if i := strings.IndexAny(body, ".e%"); i >= 0 {
			intPart, rest = body[:i], body[i:]
		}
		body = group(intPart, 3, fs.grouping) + rest
	}
	return padNumber(signOf(neg, fs.sign), body, fs), nil
}

func signOf(neg bool, sign byte) string {
	switch {
	case neg:
		return "-"
	case sign == '+':
		return "+"
	case sign == ' ':
		return " "
	}
	return ""
}

// group inserts sep every n digits from the right.
func group(digits string, n int, sep byte) string {
	if len(digits) <= n {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % n
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += n {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(digits[i : i+n])
	}
	return b.String()
}

// padNumber applies width and alignment to a signed number; '=' pads
// between the sign and the digits.
func padNumber(sign, body string, fs formatSpec) string {
	if fs.align == '=' {
		n := fs.width - utf8.RuneCountInString(sign+body)
		if n > 0 {
			body = strings.Repeat(string(fs.fill), n) + body
		}
		return sign + body
	}
	return pad(sign+body, fs, '>')
}

// pad aligns s within the spec's width; def is the default alignment.
func pad(s string, fs formatSpec, def byte) string {
	n := fs.width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	fill := string(fs.fill)
	align := fs.align
	if align == 0 || align == '=' {
		align = def
	}
	switch align {
	case '<':
		return s + strings.Repeat(fill, n)
	case '^':
		left := n / 2
		return strings.Repeat(fill, left) + s + strings.Repeat(fill, n-left)
	}
	return strings.Repeat(fill, n) + s
}

// ---------------------------------------------------------------------------
// printf-style formatting: str % args
// ---------------------------------------------------------------------------

// percentFormat implements format % args. args is a tuple of values, a
// dict for %(name)s conversions, or a single value.
func (vm *VM) percentFormat(format string, args Value) (Value, error) {
	var items []Value
	mapping, _ := args.(*Dict)
	if t, ok := args.(*Tuple); ok {
		items = t.Items
	} else if mapping == nil {
		items = []Value{args}
	}
	next := 0
	var b strings.Builder
	rs := []rune(format)
	for i := 0; i < len(rs); i++ {
		if rs[i] != '%' {
			b.WriteRune(rs[i])
			continue
		}
		i++
		if i >= len(rs) {
			return nil, vm.valueError("incomplete format")
		}
		if rs[i] == '%' {
			b.WriteByte('%')
			continue
		}

		var arg Value
		if rs[i] == '(' {
			end := i + 1
			for end < len(rs) && rs[end] != ')' {
				end++
			}
			if end >= len(rs) {
				return nil, vm.valueError("incomplete format key")
			}
			if mapping == nil {
				return nil, vm.typeError("format requires a mapping")
			}
			key := Str(rs[i+1 : end])
			v, ok, err := vm.dictGet(mapping, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, vm.keyError(key)
			}
			arg = v
			i = end + 1
		}

		fs := formatSpec{fill: ' ', precision: -1}
	flags:
		for ; i < len(rs); i++ {
			switch rs[i] {
			case '-':
				fs.align = '<'
			case '0':
				if fs.align == 0 {
					fs.fill, fs.align = '0', '='
				}
			case '+', ' ':
				if fs.sign != '+' {
					fs.sign = byte(rs[i])
				}
			case '#':
				fs.alternate = true
			default:
				break flags
			}
		}
		for ; i < len(rs) && rs[i] >= '0' && rs[i] <= '9'; i++ {
			fs.width = fs.width*10 + int(rs[i]-'0')
		}
		if i < len(rs) && rs[i] == '.' {
			fs.precision = 0
			for i++; i < len(rs) && rs[i] >= '0' && rs[i] <= '9'; i++ {
				fs.precision = fs.precision*10 + int(rs[i]-'0')
			}
		}
		if i >= len(rs) {
			return nil, vm.valueError("incomplete format")
		}

		if arg == nil {
			if next >= len(items) {
				return nil, vm.typeError("not enough arguments for format string")
			}
			arg = items[next]
			next++
		}

		kind := rs[i]
		var s string
		var err error
		switch kind {
		case 's', 'r', 'a':
			if kind == 's' {
				s, err = vm.str(arg)
			} else {
				s, err = vm.repr(arg)
				if kind == 'a' {
					s = asciiRepr(s)
				}
			}
			if err == nil && fs.precision >= 0 {
				if r := []rune(s); len(r) > fs.precision {
					s = string(r[:fs.precision])
				}
			}
			if fs.align == '=' {
				fs.fill, fs.align = ' ', 0
			}
			s = pad(s, fs, '>')
		case 'd', 'i', 'u', 'x', 'X', 'o', 'c':
			n, ok := toInt(arg)
			if !ok {
				f, isFloat := arg.(Float)
				if !isFloat || kind == 'c' || kind == 'x' || kind == 'X' || kind == 'o' {
					return nil, vm.typeError("%%%c format: an integer is required, not %s", kind, TypeName(arg))
				}
				n = int64(f)
			}
			fs.kind = byte(kind)
			if kind == 'i' || kind == 'u' {
				fs.kind = 'd'
			}
			fs.precision = -1
			s, err = vm.formatInt(n, fs, string(kind))
		case 'f', 'F', 'e', 'E', 'g', 'G':
			f, ok := toFloat(arg)
			if !ok {
				return nil, vm.typeError("must be real number, not %s", TypeName(arg))
			}
			fs.kind = byte(kind)
			if fs.precision < 0 {
				fs.precision = 6
			}
			s, err = vm.formatFloatSpec(f, fs, string(kind))
		default:
			return nil, vm.valueError("unsupported format character '%c' (0x%x)", kind, kind)
		}
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	if mapping == nil && next < len(items) {
		return nil, vm.typeError("not all arguments converted during string formatting")
	}
	return Str(b.String()), nil
}
