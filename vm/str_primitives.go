package vm

import (
	"strconv"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// str methods
// ---------------------------------------------------------------------------

// strMethod adapts a method over the receiver's Go string.
func strMethod(name string, min, max int, fn func(vm *VM, s string, args []Value) (Value, error)) {
	StrType.method(name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if kwargs != nil {
			return nil, vm.typeError("str.%s() takes no keyword arguments", name)
		}
		if err := vm.arity(name, args[1:], min, max); err != nil {
			return nil, err
		}
		return fn(vm, string(args[0].(Str)), args[1:])
	})
}

func registerStrMethods() {
	strMethod("upper", 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
		return Str(strings.ToUpper(s)), nil
	})
	strMethod("lower", 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
		return Str(strings.ToLower(s)), nil
	})
	strMethod("title", 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
		var b strings.Builder
		prev := false
		for _, r := range s {
			if unicode.IsLetter(r) {
				if prev {
					b.WriteRune(unicode.ToLower(r))
				} else {
					b.WriteRune(unicode.ToTitle(r))
				}
				prev = true
				continue
			}
			prev = false
			b.WriteRune(r)
		}
		return Str(b.String()), nil
	})
	strMethod("capitalize", 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
		rs := []rune(strings.ToLower(s))
		if len(rs) > 0 {
			rs[0] = unicode.ToTitle(rs[0])
		}
		return Str(string(rs)), nil
	})
	strMethod("swapcase", 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
		return Str(strings.Map(func(r rune) rune {
			if unicode.IsUpper(r) {
				return unicode.ToLower(r)
			}
			return unicode.ToUpper(r)
		}, s)), nil
	})

	strip := func(name string, trim func(string, string) string, trimSpace func(string, func(rune) bool) string) {
		strMethod(name, 0, 1, func(vm *VM, s string, args []Value) (Value, error) {
			chars := optArg(args, 0, None)
			if IsNone(chars) {
				return Str(trimSpace(s, unicode.IsSpace)), nil
			}
			cs, err := vm.strArg(name, chars)
			if err != nil {
				return nil, err
			}
			return Str(trim(s, cs)), nil
		})
	}
	strip("strip", strings.Trim, strings.TrimFunc)
	strip("lstrip", strings.TrimLeft, strings.TrimLeftFunc)
	strip("rstrip", strings.TrimRight, strings.TrimRightFunc)

	strMethod("removeprefix", 1, 1, func(vm *VM, s string, args []Value) (Value, error) {
		p, err := vm.strArg("removeprefix", args[0])
		return Str(strings.TrimPrefix(s, p)), err
	})
	strMethod("removesuffix", 1, 1, func(vm *VM, s string, args []Value) (Value, error) {
		p, err := vm.strArg("removesuffix", args[0])
		return Str(strings.TrimSuffix(s, p)), err
	})

	StrType.method("split", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return vm.strSplit("split", args, kwargs, false)
	})
	StrType.method("rsplit", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return vm.strSplit("rsplit", args, kwargs, true)
	})
	strMethod("splitlines", 0, 1, func(vm *VM, s string, args []Value) (Value, error) {
		keep, err := vm.truthy(optArg(args, 0, False))
		if err != nil {
			return nil, err
		}
		var lines []Value
		for s != "" {
			i := strings.IndexAny(s, "\r\n")
			if i < 0 {
				lines = append(lines, Str(s))
				break
			}
			end := i + 1
			if s[i] == '\r' && end < len(s) && s[end] == '\n' {
				end++
			}
			if keep {
				lines = append(lines, Str(s[:end]))
			} else {
				lines = append(lines, Str(s[:i]))
			}
			s = s[end:]
		}
		return NewList(lines), nil
	})
	strMethod("join", 1, 1, func(vm *VM, s string, args []Value) (Value, error) {
		var parts []string
		i := 0
		err := vm.iterate(args[0], func(v Value) (bool, error) {
			p, ok := v.(Str)
			if !ok {
				return false, vm.typeError("sequence item %d: expected str instance, %s found", i, TypeName(v))
			}
			parts = append(parts, string(p))
			i++
			return true, nil
		})
		if err != nil {
			return nil, err
		}
		return Str(strings.Join(parts, s)), nil
	})
	strMethod("replace", 2, 3, func(vm *VM, s string, args []Value) (Value, error) {
		old, err := vm.strArg("replace", args[0])
		if err != nil {
			return nil, err
		}
		repl, err := vm.strArg("replace", args[1])
		if err != nil {
			return nil, err
		}
		n, err := vm.intArg("replace", optArg(args, 2, Int(-1)))
		if err != nil {
			return nil, err
		}
		return Str(strings.Replace(s, old, repl, int(n))), nil
	})

	affix := func(name string, test func(string, string) bool) {
		strMethod(name, 1, 1, func(vm *VM, s string, args []Value) (Value, error) {
			switch x := args[0].(type) {
			case Str:
				return Bool(test(s, string(x))), nil
			case *Tuple:
				for _, item := range x.Items {
					p, ok := item.(Str)
					if !ok {
						return nil, vm.typeError("tuple for %s must only contain str, not %s", name, TypeName(item))
					}
					if test(s, string(p)) {
						return True, nil
					}
				}
				return False, nil
			}
			return nil, vm.typeError("%s first arg must be str or a tuple of str, not %s", name, TypeName(args[0]))
		})
	}
	affix("startswith", strings.HasPrefix)
	affix("endswith", strings.HasSuffix)

	search := func(name string, last, raise bool) {
		strMethod(name, 1, 3, func(vm *VM, s string, args []Value) (Value, error) {
			sub, err := vm.strArg(name, args[0])
			if err != nil {
				return nil, err
			}
			rs := []rune(s)
			start, end, err := vm.strBounds(len(rs), args[1:])
			if err != nil {
				return nil, err
			}
			i := -1
			if start <= end {
				hay := string(rs[start:end])
				var at int
				if last {
					at = strings.LastIndex(hay, sub)
				} else {
					at = strings.Index(hay, sub)
				}
				if at >= 0 {
					i = start + len([]rune(hay[:at]))
				}
			}
			if i < 0 && raise {
				return nil, vm.valueError("substring not found")
			}
			return Int(i), nil
		})
	}
	search("find", false, false)
	search("rfind", true, false)
	search("index", false, true)
	search("rindex", true, true)

	strMethod("count", 1, 3, func(vm *VM, s string, args []Value) (Value, error) {
		sub, err := vm.strArg("count", args[0])
		if err != nil {
			return nil, err
		}
		rs := []rune(s)
		start, end, err := vm.strBounds(len(rs), args[1:])
		if err != nil || start > end {
			return Int(0), err
		}
		return Int(strings.Count(string(rs[start:end]), sub)), nil
	})

	strMethod("partition", 1, 1, func(vm *VM, s string, args []Value) (Value, error) {
		sep, err := vm.strArg("partition", args[0])
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, vm.valueError("empty separator")
		}
		if i := strings.Index(s, sep); i >= 0 {
			return NewTuple(Str(s[:i]), Str(sep), Str(s[i+len(sep):])), nil
		}
		return NewTuple(Str(s), Str(""), Str("")), nil
	})
	strMethod("rpartition", 1, 1, func(vm *VM, s string, args []Value) (Value, error) {
		sep, err := vm.strArg("rpartition", args[0])
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, vm.valueError("empty separator")
		}
		if i := strings.LastIndex(s, sep); i >= 0 {
			return NewTuple(Str(s[:i]), Str(sep), Str(s[i+len(sep):])), nil
		}
		return NewTuple(Str(""), Str(""), Str(s)), nil
	})

	justify := func(name string, align byte) {
		strMethod(name, 1, 2, func(vm *VM, s string, args []Value) (Value, error) {
			width, err := vm.intArg(name, args[0])
			if err != nil {
				return nil, err
			}
			fill := optArg(args, 1, Str(" "))
			fs, ok := fill.(Str)
			if !ok || strLen(fs) != 1 {
				return nil, vm.typeError("The fill character must be exactly one character long")
			}
			spec := formatSpec{fill: runes(fs)[0], align: align, width: int(width), precision: -1}
			return Str(pad(s, spec, align)), nil
		})
	}
	justify("ljust", '<')
	justify("rjust", '>')
	justify("center", '^')

	strMethod("zfill", 1, 1, func(vm *VM, s string, args []Value) (Value, error) {
		width, err := vm.intArg("zfill", args[0])
		if err != nil {
			return nil, err
		}
		sign := ""
		if s != "" && (s[0] == '+' || s[0] == '-') {
			sign, s = s[:1], s[1:]
		}
		if n := int(width) - len(sign) - strLen(Str(s)); n > 0 {
			s = strings.Repeat("0", n) + s
		}
		return Str(sign + s), nil
	})

	predicate := func(name string, test func(rune) bool) {
		strMethod(name, 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
			if s == "" {
				return False, nil
			}
			for _, r := range s {
				if !test(r) {
					return False, nil
				}
			}
			return True, nil
		})
	}
	predicate("isdigit", unicode.IsDigit)
	predicate("isnumeric", unicode.IsNumber)
	predicate("isalpha", unicode.IsLetter)
	predicate("isspace", unicode.IsSpace)
	predicate("isalnum", func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) })
	strMethod("isupper", 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
		return Bool(strings.ToUpper(s) == s && strings.ToLower(s) != s), nil
	})
	strMethod("islower", 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
		return Bool(strings.ToLower(s) == s && strings.ToUpper(s) != s), nil
	})
	strMethod("isidentifier", 0, 0, func(vm *VM, s string, args []Value) (Value, error) {
		for i, r := range s {
			if !(r == '_' || unicode.IsLetter(r) || i > 0 && unicode.IsDigit(r)) {
				return False, nil
			}
		}
		return Bool(s != ""), nil
	})

	StrType.method("format", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		s, err := vm.strFormat(string(args[0].(Str)), args[1:], kwargs)
		return Str(s), err
	})
	strMethod("format_map", 1, 1, func(vm *VM, s string, args []Value) (Value, error) {
		d, ok := args[0].(*Dict)
		if !ok {
			return nil, vm.typeError("format_map() argument must be a dict, not %s", TypeName(args[0]))
		}
		r, err := vm.strFormat(s, nil, d)
		return Str(r), err
	})
}

// strBounds resolves the optional start and end arguments of the search
// methods against a string of n code points.
func (vm *VM) strBounds(n int, args []Value) (int, int, error) {
	bound := func(v Value, def int) (int, error) {
		if IsNone(v) {
			return def, nil
		}
		i, err := vm.intArg("slice index", v)
		if err != nil {
			return 0, err
		}
		if i < 0 {
			i += int64(n)
			if i < 0 {
				i = 0
			}
		}
		if i > int64(n) {
			i = int64(n)
		}
		return int(i), nil
	}
	start, err := bound(optArg(args, 0, None), 0)
	if err != nil {
		return 0, 0, err
	}
	end, err := bound(optArg(args, 1, None), n)
	return start, end, err
}

// strSplit implements split and rsplit.
func (vm *VM) strSplit(name string, args []Value, kwargs *Dict, fromRight bool) (Value, error) {
	kw, err := vm.keywords(name, kwargs, "sep", "maxsplit")
	if err != nil {
		return nil, err
	}
	if err := vm.arity(name, args[1:], 0, 2); err != nil {
		return nil, err
	}
	s := string(args[0].(Str))
	sepVal := optArg(args, 1, orNone(kw["sep"]))
	max, err := vm.intArg(name, optArg(args, 2, orIntDefault(kw["maxsplit"], -1)))
	if err != nil {
		return nil, err
	}

	var parts []string
	if IsNone(sepVal) {
		fields := strings.Fields(s)
		if max >= 0 && int64(len(fields)) > max+1 {
			if fromRight {
				cut := len(fields) - int(max)
				rest := strings.TrimRightFunc(s, unicode.IsSpace)
				for i := len(fields) - 1; i >= cut; i-- {
					rest = strings.TrimRightFunc(strings.TrimSuffix(rest, fields[i]), unicode.IsSpace)
				}
				parts = append([]string{rest}, fields[cut:]...)
			} else {
				rest := strings.TrimLeftFunc(s, unicode.IsSpace)
				for i := 0; i < int(max); i++ {
					rest = strings.TrimLeftFunc(strings.TrimPrefix(rest, fields[i]), unicode.IsSpace)
				}
				parts = append(fields[:max:max], rest)
			}
		} else {
			parts = fields
		}
	} else {
		sep, err := vm.strArg(name, sepVal)
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, vm.valueError("empty separator")
		}
		switch {
		case max < 0:
			parts = strings.Split(s, sep)
		case fromRight:
			for int64(len(parts)) < max {
				i := strings.LastIndex(s, sep)
				if i < 0 {
					break
				}
				parts = append([]string{s[i+len(sep):]}, parts...)
				s = s[:i]
			}
			parts = append([]string{s}, parts...)
		default:
			parts = strings.SplitN(s, sep, int(max)+1)
		}
	}
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = Str(p)
	}
	return NewList(items), nil
}

func orIntDefault(v Value, def int64) Value {
	if v == nil {
		return Int(def)
	}
	return v
}

// ---------------------------------------------------------------------------
// str.format
// ---------------------------------------------------------------------------

// strFormat implements str.format: {field!conv:spec} replacement fields
// with automatic or explicit numbering, keyword names, attribute and index
// access, and nested fields inside the spec.
func (vm *VM) strFormat(format string, args []Value, kwargs *Dict) (string, error) {
	auto := 0
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == '}' {
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", vm.valueError("Single '}' encountered in format string")
		}
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(format) && format[i+1] == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		depth, end := 1, i+1
		for ; end < len(format) && depth > 0; end++ {
			switch format[end] {
			case '{':
				depth++
			case '}':
				depth--
			}
		}
		if depth > 0 {
			return "", vm.valueError("expected '}' before end of string")
		}
		field := format[i+1 : end-1]
		i = end - 1

		spec := ""
		if k := strings.IndexByte(field, ':'); k >= 0 {
			field, spec = field[:k], field[k+1:]
		}
		conv := byte(0)
		if k := strings.IndexByte(field, '!'); k >= 0 {
			if k+2 != len(field) {
				return "", vm.valueError("expected ':' after conversion specifier")
			}
			conv = field[k+1]
			field = field[:k]
		}
		if strings.IndexByte(spec, '{') >= 0 {
			nested, err := vm.strFormatNested(spec, args, kwargs, &auto)
			if err != nil {
				return "", err
			}
			spec = nested
		}

		v, err := vm.formatField(field, args, kwargs, &auto)
		if err != nil {
			return "", err
		}
		switch conv {
		case 0:
		case 's':
			s, err := vm.str(v)
			if err != nil {
				return "", err
			}
			v = Str(s)
		case 'r', 'a':
			s, err := vm.repr(v)
			if err != nil {
				return "", err
			}
			if conv == 'a' {
				s = asciiRepr(s)
			}
			v = Str(s)
		default:
			return "", vm.valueError("Unknown conversion specifier %c", conv)
		}
		s, err := vm.format(v, spec)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// strFormatNested expands the replacement fields of a format spec, sharing
// the automatic field counter with the enclosing string.
func (vm *VM) strFormatNested(spec string, args []Value, kwargs *Dict, auto *int) (string, error) {
	var b strings.Builder
	for spec != "" {
		open := strings.IndexByte(spec, '{')
		if open < 0 {
			b.WriteString(spec)
			break
		}
		end := strings.IndexByte(spec[open:], '}')
		if end < 0 {
			return "", vm.valueError("unmatched '{' in format spec")
		}
		b.WriteString(spec[:open])
		v, err := vm.formatField(spec[open+1:open+end], args, kwargs, auto)
		if err != nil {
			return "", err
		}
		s, err := vm.str(v)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
		spec = spec[open+end+1:]
	}
	return b.String(), nil
}

// formatField resolves a field name such as "", "0", "name", "0.attr" or
// "name[key]".
func (vm *VM) formatField(field string, args []Value, kwargs *Dict, auto *int) (Value, error) {
	head := field
	rest := ""
	if k := strings.IndexAny(field, ".["); k >= 0 {
		head, rest = field[:k], field[k:]
	}

	var v Value
	switch n, err := strconv.Atoi(head); {
	case head == "":
		if *auto < 0 {
			return nil, vm.valueError("cannot switch from manual field specification to automatic field numbering")
		}
		if *auto >= len(args) {
			return nil, vm.indexError("Replacement index %d out of range for positional args tuple", *auto)
		}
		v = args[*auto]
		*auto++
	case err == nil:
		if *auto > 0 {
			return nil, vm.valueError("cannot switch from automatic field numbering to manual field specification")
		}
		*auto = -1
		if n >= len(args) {
			return nil, vm.indexError("Replacement index %d out of range for positional args tuple", n)
		}
		v = args[n]
	default:
		if kwargs == nil {
			return nil, vm.keyError(Str(head))
		}
		val, ok := kwargs.GetStr(head)
		if !ok {
			return nil, vm.keyError(Str(head))
		}
		v = val
	}

	for rest != "" {
		var err error
		if rest[0] == '.' {
			name := rest[1:]
			if k := strings.IndexAny(name, ".["); k >= 0 {
				name, rest = name[:k], name[k:]
			} else {
				rest = ""
			}
			if name == "" {
				return nil, vm.valueError("Empty attribute in format string")
			}
			v, err = vm.getAttr(v, name)
		} else {
			k := strings.IndexByte(rest, ']')
			if k < 0 {
				return nil, vm.valueError("Missing ']' in format string")
			}
			keyText := rest[1:k]
			rest = rest[k+1:]
			var key Value = Str(keyText)
			if n, e := strconv.Atoi(keyText); e == nil {
				key = Int(n)
			}
			v, err = vm.getItem(v, key)
		}
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}
