package vm

import (
	"errors"
	"strings"

	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// execute runs f from its instruction pointer until it returns, suspends
// or raises. A suspended frame returns the yielded value (generators) or
// records the future it waits on (coroutines).
func (vm *VM) execute(f *Frame) (Value, bool, error) {
	if len(vm.frames) >= vm.maxFrames {
		return nil, false, vm.newError(RecursionErrorType, "maximum recursion depth exceeded")
	}
	vm.frames = append(vm.frames, f)
	v, suspended, err := vm.run(f)
	vm.frames = vm.frames[:len(vm.frames)-1]
	if err != nil {
		var exc *Exception
		if errors.As(err, &exc) {
			exc.Trace = append(exc.Trace, f.traceEntry())
		}
	}
	return v, suspended, err
}

// currentFrame returns the innermost executing frame.
func (vm *VM) currentFrame() *Frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}

// run is the fetch-decode-execute loop.
func (vm *VM) run(f *Frame) (Value, bool, error) {
	code := f.code
	names := f.module.Code.Names
	for {
		if f.ip < 0 || f.ip >= len(code) {
			return nil, false, fatalf("instruction pointer %d out of range in %s", f.ip, f.name)
		}
		in := code[f.ip]
		f.ip++

		if err := vm.poll(); err != nil {
			return nil, false, err
		}
		if vm.trace {
			vm.log.Debugf("%s:%d %4d %s", f.name, f.line, f.ip-1, in)
		}

		var err error
		switch in.Op {

		// -------------------------------------------------------------
		// Constants, names and locals
		// -------------------------------------------------------------

		case bytecode.OpLoadConst:
			f.push(f.module.consts[in.Arg])

		case bytecode.OpLoadName:
			var v Value
			if v, err = vm.loadName(f, names[in.Arg]); err == nil {
				f.push(v)
			}

		case bytecode.OpStoreName:
			vm.namespace(f).SetStr(names[in.Arg], f.pop())

		case bytecode.OpDeleteName:
			if !vm.namespace(f).DeleteStr(names[in.Arg]) {
				err = vm.newError(NameErrorType, "name '%s' is not defined", names[in.Arg])
			}

		case bytecode.OpLoadLocal:
			v := f.locals[f.slot(int(in.Arg))]
			if v == nil {
				err = vm.unboundLocal(f, int(in.Arg))
				break
			}
			f.push(v)

		case bytecode.OpStoreLocal:
			f.locals[f.slot(int(in.Arg))] = f.pop()

		case bytecode.OpDeleteLocal:
			i := f.slot(int(in.Arg))
			if i < len(f.cells) && f.cells[i] != nil {
				if f.cells[i].Value == nil {
					err = vm.unboundLocal(f, i)
				}
				f.cells[i].Value = nil
				break
			}
			if f.locals[i] == nil {
				err = vm.unboundLocal(f, i)
			}
			f.locals[i] = nil

		case bytecode.OpLoadCell:
			v := f.cell(int(in.Arg)).Value
			if v == nil {
				err = vm.unboundLocal(f, int(in.Arg))
				break
			}
			f.push(v)

		case bytecode.OpStoreCell:
			f.cell(int(in.Arg)).Value = f.pop()

		case bytecode.OpLoadUpvalue:
			v := f.upvalue(int(in.Arg)).Value
			if v == nil {
				err = vm.newError(NameErrorType, "free variable referenced before assignment in enclosing scope")
				break
			}
			f.push(v)

		case bytecode.OpStoreUpvalue:
			f.upvalue(int(in.Arg)).Value = f.pop()

		// -------------------------------------------------------------
		// Stack
		// -------------------------------------------------------------

		case bytecode.OpNop:

		case bytecode.OpPop:
			f.pop()

		case bytecode.OpDup:
			f.push(f.top())

		case bytecode.OpDup2:
			a, b := f.peek(2), f.peek(1)
			f.push(a)
			f.push(b)

		case bytecode.OpRot2:
			n := len(f.stack)
			f.peek(2)
			f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

		case bytecode.OpRot3:
			n := len(f.stack)
			f.peek(3)
			a, b, c := f.stack[n-3], f.stack[n-2], f.stack[n-1]
			f.stack[n-3], f.stack[n-2], f.stack[n-1] = c, a, b

		case bytecode.OpLine:
			f.line = int(in.Arg)
			if vm.checkStack {
				want := 0
				if len(f.blocks) > 0 {
					want = f.blocks[len(f.blocks)-1].level
				}
				if len(f.stack) != want {
					return nil, false, fatalf("stack depth %d at line %d of %s, want %d", len(f.stack), f.line, f.name, want)
				}
			}

		// -------------------------------------------------------------
		// Operators
		// -------------------------------------------------------------

		case bytecode.OpBinaryAdd, bytecode.OpBinarySub, bytecode.OpBinaryMul,
			bytecode.OpBinaryDiv, bytecode.OpBinaryMod, bytecode.OpBinaryFloorDiv,
			bytecode.OpBinaryPow, bytecode.OpBinaryMatMul, bytecode.OpBinaryBitAnd,
			bytecode.OpBinaryBitOr, bytecode.OpBinaryBitXor, bytecode.OpBinaryLShift,
			bytecode.OpBinaryRShift:
			b := f.pop()
			a := f.pop()
			var r Value
			if r, err = vm.binary(in.Op, a, b); err == nil {
				f.push(r)
			}

		case bytecode.OpBinaryEqual, bytecode.OpBinaryNotEqual, bytecode.OpBinaryLess,
			bytecode.OpBinaryLessEqual, bytecode.OpBinaryGreater, bytecode.OpBinaryGreaterEqual,
			bytecode.OpBinaryIn, bytecode.OpBinaryNotIn, bytecode.OpBinaryIs, bytecode.OpBinaryIsNot:
			b := f.pop()
			a := f.pop()
			var r Value
			if r, err = vm.compare(in.Op, a, b); err == nil {
				f.push(r)
			}

		case bytecode.OpUnaryNeg, bytecode.OpUnaryPos, bytecode.OpUnaryNot, bytecode.OpUnaryInvert:
			var r Value
			if r, err = vm.unary(in.Op, f.pop()); err == nil {
				f.push(r)
			}

		// -------------------------------------------------------------
		// Jumps
		// -------------------------------------------------------------

		case bytecode.OpJump:
			f.jump(in.Arg)

		case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
			var t bool
			if t, err = vm.truthy(f.pop()); err == nil && t == (in.Op == bytecode.OpJumpIfTrue) {
				f.jump(in.Arg)
			}

		case bytecode.OpJumpIfFalseOrPop, bytecode.OpJumpIfTrueOrPop:
			var t bool
			if t, err = vm.truthy(f.top()); err == nil {
				if t == (in.Op == bytecode.OpJumpIfTrueOrPop) {
					f.jump(in.Arg)
				} else {
					f.pop()
				}
			}

		// -------------------------------------------------------------
		// Calls and functions
		// -------------------------------------------------------------

		case bytecode.OpCallFunc:
			args := f.popN(int(in.Arg))
			fn := f.pop()
			var r Value
			if r, err = vm.call(fn, args, nil); err == nil {
				f.push(r)
			}

		case bytecode.OpCallFuncEx:
			var kwargs *Dict
			if in.Arg&bytecode.CallHasKwargs != 0 {
				d, ok := f.pop().(*Dict)
				if !ok {
					return nil, false, fatalf("CALL_FUNC_EX without a kwargs dict in %s", f.name)
				}
				kwargs = d
			}
			var args []Value
			switch a := f.pop().(type) {
			case *Tuple:
				args = a.Items
			case *List:
				args = a.Items
			default:
				return nil, false, fatalf("CALL_FUNC_EX without an argument tuple in %s", f.name)
			}
			fn := f.pop()
			var r Value
			if r, err = vm.call(fn, args, kwargs); err == nil {
				f.push(r)
			}

		case bytecode.OpReturn:
			return f.pop(), false, nil

		case bytecode.OpMakeFunction:
			var fn *Function
			if fn, err = vm.makeFunction(f, int(in.Arg)); err == nil {
				f.push(fn)
			}

		case bytecode.OpFuncEntry, bytecode.OpFuncInfo, bytecode.OpFuncName, bytecode.OpFuncParam,
			bytecode.OpFuncCell, bytecode.OpFuncCapture, bytecode.OpFuncBody:
			return nil, false, fatalf("executed function header at instruction %d in %s", f.ip-1, f.name)

		case bytecode.OpYield:
			return f.pop(), true, nil

		case bytecode.OpAwait:
			var suspend bool
			if suspend, err = vm.await(f); err == nil && suspend {
				return nil, true, nil
			}

		case bytecode.OpPrint:
			args := f.popN(int(in.Arg))
			if err = vm.print(args, " ", "\n"); err == nil {
				f.push(None)
			}

		// -------------------------------------------------------------
		// Attributes and items
		// -------------------------------------------------------------

		case bytecode.OpLoadAttr:
			var v Value
			if v, err = vm.getAttr(f.pop(), names[in.Arg]); err == nil {
				f.push(v)
			}

		case bytecode.OpStoreAttr:
			obj := f.pop()
			err = vm.setAttr(obj, names[in.Arg], f.pop())

		case bytecode.OpDeleteAttr:
			err = vm.delAttr(f.pop(), names[in.Arg])

		case bytecode.OpGetItem:
			key := f.pop()
			obj := f.pop()
			var v Value
			if v, err = vm.getItem(obj, key); err == nil {
				f.push(v)
			}

		case bytecode.OpSetItem:
			key := f.pop()
			obj := f.pop()
			err = vm.setItem(obj, key, f.pop())

		case bytecode.OpDeleteItem:
			key := f.pop()
			err = vm.delItem(f.pop(), key)

		case bytecode.OpBuildSlice:
			parts := f.popN(int(in.Arg))
			s := &Slice{Start: parts[0], Stop: parts[1], Step: None}
			if len(parts) == 3 {
				s.Step = parts[2]
			}
			f.push(s)

		// -------------------------------------------------------------
		// Builders
		// -------------------------------------------------------------

		case bytecode.OpBuildList:
			f.push(NewList(f.popN(int(in.Arg))))

		case bytecode.OpBuildTuple:
			f.push(NewTuple(f.popN(int(in.Arg))...))

		case bytecode.OpBuildSet:
			s := NewSet()
			for _, v := range f.popN(int(in.Arg)) {
				if err = vm.setAdd(s, v); err != nil {
					break
				}
			}
			if err == nil {
				f.push(s)
			}

		case bytecode.OpBuildDict:
			items := f.popN(2 * int(in.Arg))
			d := NewDict()
			for i := 0; i < len(items) && err == nil; i += 2 {
				err = vm.dictSet(d, items[i], items[i+1])
			}
			if err == nil {
				f.push(d)
			}

		case bytecode.OpListAppend:
			v := f.pop()
			l, ok := f.peek(int(in.Arg)).(*List)
			if !ok {
				return nil, false, fatalf("LIST_APPEND target is not a list in %s", f.name)
			}
			l.Items = append(l.Items, v)

		case bytecode.OpListExtend:
			it := f.pop()
			switch target := f.peek(int(in.Arg)).(type) {
			case *List:
				var items []Value
				if items, err = vm.toSlice(it); err == nil {
					target.Items = append(target.Items, items...)
				}
			case *Set:
				err = vm.iterate(it, func(v Value) (bool, error) {
					return true, vm.setAdd(target, v)
				})
			default:
				return nil, false, fatalf("LIST_EXTEND target is not a list in %s", f.name)
			}

		case bytecode.OpListToTuple:
			l, ok := f.pop().(*List)
			if !ok {
				return nil, false, fatalf("LIST_TO_TUPLE operand is not a list in %s", f.name)
			}
			f.push(NewTuple(l.Items...))

		case bytecode.OpSetAdd:
			v := f.pop()
			s, ok := f.peek(int(in.Arg)).(*Set)
			if !ok {
				return nil, false, fatalf("SET_ADD target is not a set in %s", f.name)
			}
			err = vm.setAdd(s, v)

		case bytecode.OpDictInsert:
			v := f.pop()
			k := f.pop()
			d, ok := f.peek(int(in.Arg)).(*Dict)
			if !ok {
				return nil, false, fatalf("DICT_INSERT target is not a dict in %s", f.name)
			}
			err = vm.dictSet(d, k, v)

		case bytecode.OpDictMerge:
			m := f.pop()
			d, ok := f.peek(int(in.Arg)).(*Dict)
			if !ok {
				return nil, false, fatalf("DICT_MERGE target is not a dict in %s", f.name)
			}
			err = vm.dictMerge(d, m)

		case bytecode.OpDictRest:
			keys, ok := f.pop().(*Tuple)
			if !ok {
				return nil, false, fatalf("DICT_REST without a key tuple in %s", f.name)
			}
			var rest *Dict
			if rest, err = vm.dictRest(f.pop(), keys.Items); err == nil {
				f.push(rest)
			}

		case bytecode.OpBuildString:
			parts := f.popN(int(in.Arg))
			var b strings.Builder
			for _, p := range parts {
				s, ok := p.(Str)
				if !ok {
					return nil, false, fatalf("BUILD_STRING operand is not a string in %s", f.name)
				}
				b.WriteString(string(s))
			}
			f.push(Str(b.String()))

		case bytecode.OpFormatValue:
			var s string
			if s, err = vm.formatValue(f, in.Arg); err == nil {
				f.push(Str(s))
			}

		case bytecode.OpBuildElement:
			children := f.popN(int(in.Arg))
			props, ok := f.pop().(*Dict)
			if !ok {
				return nil, false, fatalf("BUILD_ELEMENT without a props dict in %s", f.name)
			}
			tag := f.pop()
			if s, ok := tag.(Str); ok && s == "" {
				tag = None
			}
			f.push(&Element{Tag: tag, Props: props, Children: NewList(flattenChildren(nil, children))})

		// -------------------------------------------------------------
		// Iteration and unpacking
		// -------------------------------------------------------------

		case bytecode.OpGetIter:
			var it Value
			if it, err = vm.iter(f.pop()); err == nil {
				f.push(it)
			}

		case bytecode.OpForIter:
			v, ok, e := vm.next(f.top())
			switch {
			case e != nil:
				f.pop()
				err = e
			case ok:
				f.push(v)
			default:
				f.pop()
				f.jump(in.Arg)
			}

		case bytecode.OpYieldFromIter:
			v, ok, e := vm.next(f.top())
			switch {
			case e != nil:
				f.pop()
				err = e
			case ok:
				f.push(v)
			default:
				f.stack[len(f.stack)-1] = orNone(v)
				f.jump(in.Arg)
			}

		case bytecode.OpUnpackSeq:
			var items []Value
			if items, err = vm.toSlice(f.pop()); err != nil {
				break
			}
			n := int(in.Arg)
			if len(items) != n {
				if len(items) < n {
					err = vm.valueError("not enough values to unpack (expected %d, got %d)", n, len(items))
				} else {
					err = vm.valueError("too many values to unpack (expected %d)", n)
				}
				break
			}
			for i := n - 1; i >= 0; i-- {
				f.push(items[i])
			}

		case bytecode.OpUnpackEx:
			var items []Value
			if items, err = vm.toSlice(f.pop()); err != nil {
				break
			}
			before, after := int(in.Arg&0xFF), int(in.Arg>>8)
			if len(items) < before+after {
				err = vm.valueError("not enough values to unpack (expected at least %d, got %d)", before+after, len(items))
				break
			}
			for i := len(items) - 1; i >= len(items)-after; i-- {
				f.push(items[i])
			}
			f.push(NewList(append([]Value(nil), items[before:len(items)-after]...)))
			for i := before - 1; i >= 0; i-- {
				f.push(items[i])
			}

		// -------------------------------------------------------------
		// Loops and blocks
		// -------------------------------------------------------------

		case bytecode.OpSetupLoop:
			f.pushBlock(blockLoop, in.Arg)

		case bytecode.OpBreakLoop:
			b := f.unwindLoop()
			f.popBlock()
			f.jump(uint32(b.handler))

		case bytecode.OpContinueLoop:
			b := f.unwindLoop()
			f.jump(uint32(b.start))

		case bytecode.OpPopBlock:
			if b := f.popBlock(); b.kind == blockFinally {
				f.excs = append(f.excs, nil)
			}

		case bytecode.OpSetupExcept:
			f.pushBlock(blockExcept, in.Arg)

		case bytecode.OpSetupFinally:
			f.pushBlock(blockFinally, in.Arg)

		// -------------------------------------------------------------
		// Exceptions
		// -------------------------------------------------------------

		case bytecode.OpPopExcept:
			if len(f.excs) == 0 {
				return nil, false, fatalf("POP_EXCEPT without a handled exception in %s", f.name)
			}
			f.excs = f.excs[:len(f.excs)-1]

		case bytecode.OpRaise:
			err = vm.raise(f, in.Arg)

		case bytecode.OpExceptMatch:
			spec := f.pop()
			exc := f.currentException()
			if exc == nil {
				return nil, false, fatalf("EXCEPT_MATCH outside a handler in %s", f.name)
			}
			var ok bool
			if ok, err = vm.exceptionMatches(exc, spec); err == nil {
				f.push(Bool(ok))
			}

		case bytecode.OpLoadExc:
			exc := f.currentException()
			if exc == nil {
				return nil, false, fatalf("LOAD_EXC outside a handler in %s", f.name)
			}
			f.push(exc.Value)

		case bytecode.OpEndFinally:
			if len(f.excs) == 0 {
				return nil, false, fatalf("END_FINALLY without a handler entry in %s", f.name)
			}
			exc := f.excs[len(f.excs)-1]
			f.excs = f.excs[:len(f.excs)-1]
			if exc != nil {
				err = exc
			}

		case bytecode.OpWithExit:
			err = vm.withExit(f)

		// -------------------------------------------------------------
		// Patterns
		// -------------------------------------------------------------

		case bytecode.OpMatchSeq:
			n := int(in.Arg &^ bytecode.MatchAtLeast)
			length, ok := sequenceLength(f.top())
			if ok {
				if in.Arg&bytecode.MatchAtLeast != 0 {
					ok = length >= n
				} else {
					ok = length == n
				}
			}
			f.push(Bool(ok))

		case bytecode.OpMatchMap:
			_, ok := f.top().(*Dict)
			f.push(Bool(ok))

		case bytecode.OpMatchClass:
			cls, ok := f.pop().(*Class)
			if !ok {
				err = vm.typeError("called match pattern must be a class")
				break
			}
			f.push(Bool(isInstance(f.top(), cls)))

		case bytecode.OpGetMatchArg:
			cls := f.pop()
			subject := f.pop()
			var v Value
			var found bool
			if v, found, err = vm.matchArg(subject, cls, in.Arg, names); err == nil {
				f.push(orNone(v))
				f.push(Bool(found))
			}

		// -------------------------------------------------------------
		// Classes and modules
		// -------------------------------------------------------------

		case bytecode.OpBuildClass:
			bases := f.popN(int(in.Arg))
			name, ok := f.pop().(Str)
			if !ok {
				return nil, false, fatalf("BUILD_CLASS without a class name in %s", f.name)
			}
			var cls Value
			if cls, err = vm.runClassBody(f.pop(), string(name), bases); err == nil {
				f.push(cls)
			}

		case bytecode.OpImportName:
			var m *Module
			if m, err = vm.importModule(names[in.Arg]); err == nil {
				f.push(m)
			}

		case bytecode.OpImportFrom:
			var v Value
			if v, err = vm.importFrom(f.top(), names[in.Arg]); err == nil {
				f.push(v)
			}

		case bytecode.OpImportStar:
			err = vm.importStar(f, f.pop())

		case bytecode.OpExport:
			f.module.markExported(names[in.Arg])

		default:
			return nil, false, fatalf("unknown opcode 0x%02X at instruction %d in %s", byte(in.Op), f.ip-1, f.name)
		}

		if err != nil {
			var exc *Exception
			if !errors.As(err, &exc) {
				return nil, false, err
			}
			if !f.handle(exc) {
				return nil, false, exc
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Instruction helpers
// ---------------------------------------------------------------------------

// namespace is where STORE_NAME binds: the class namespace in a class body,
// the module globals otherwise.
func (vm *VM) namespace(f *Frame) *Dict {
	if f.ns != nil {
		return f.ns
	}
	return f.module.Globals
}

// loadName resolves a name through the class namespace, the module globals
// and the builtins.
func (vm *VM) loadName(f *Frame, name string) (Value, error) {
	if f.ns != nil {
		if v, ok := f.ns.GetStr(name); ok {
			return v, nil
		}
	}
	if v, ok := f.module.Globals.GetStr(name); ok {
		return v, nil
	}
	if v, ok := vm.builtins.GetStr(name); ok {
		return v, nil
	}
	return nil, vm.newError(NameErrorType, "name '%s' is not defined", name)
}

func (vm *VM) unboundLocal(f *Frame, slot int) *Exception {
	if f.fn != nil && slot < len(f.fn.Header.Params) {
		return vm.newError(UnboundLocalErrorType, "local variable '%s' referenced before assignment", f.fn.Header.Params[slot].Name)
	}
	return vm.newError(UnboundLocalErrorType, "local variable referenced before assignment")
}

// raise implements RAISE: 0 re-raises the handled exception, 1 raises TOS,
// 2 raises TOS1 with TOS as its cause.
func (vm *VM) raise(f *Frame, mode uint32) error {
	switch mode {
	case 0:
		if exc := f.currentException(); exc != nil {
			return exc
		}
		return vm.newError(RuntimeErrorType, "No active exception to reraise")
	case 2:
		causeVal := f.pop()
		exc, err := vm.raised(f.pop())
		if err != nil {
			return err
		}
		if IsNone(causeVal) {
			exc.Value.Attrs["__cause__"] = None
			return exc
		}
		cause, err := vm.raised(causeVal)
		if err != nil {
			return err
		}
		exc.Value.Attrs["__cause__"] = cause.Value
		return exc
	}
	exc, err := vm.raised(f.pop())
	if err != nil {
		return err
	}
	if ctx := f.currentException(); ctx != nil && ctx.Value != exc.Value {
		exc.Value.Attrs["__context__"] = ctx.Value
	}
	exc.Trace = nil
	return exc
}

// withExit pops __exit__ and calls it with the exception being handled, if
// any. A true result swallows the exception.
func (vm *VM) withExit(f *Frame) error {
	exit := f.pop()
	if len(f.excs) == 0 {
		return fatalf("WITH_EXIT without a handler entry in %s", f.name)
	}
	exc := f.excs[len(f.excs)-1]
	args := []Value{None, None, None}
	if exc != nil {
		args[0], args[1] = exc.Value.Class, exc.Value
	}
	r, err := vm.call(exit, args, nil)
	if err != nil {
		return err
	}
	if exc != nil {
		swallow, err := vm.truthy(r)
		if err != nil {
			return err
		}
		if swallow {
			f.excs[len(f.excs)-1] = nil
		}
	}
	return nil
}

// formatValue implements FORMAT_VALUE for f-strings.
func (vm *VM) formatValue(f *Frame, arg uint32) (string, error) {
	spec := ""
	if arg&bytecode.FormatHasSpec != 0 {
		s, ok := f.pop().(Str)
		if !ok {
			panic(fatalf("FORMAT_VALUE spec is not a string in %s", f.name))
		}
		spec = string(s)
	}
	v := f.pop()
	switch arg & 3 {
	case bytecode.ConvStr:
		s, err := vm.str(v)
		if err != nil {
			return "", err
		}
		v = Str(s)
	case bytecode.ConvRepr, bytecode.ConvASCII:
		s, err := vm.repr(v)
		if err != nil {
			return "", err
		}
		if arg&3 == bytecode.ConvASCII {
			s = asciiRepr(s)
		}
		v = Str(s)
	}
	return vm.format(v, spec)
}

// dictMerge implements DICT_MERGE: m is a dict or an object with keys().
func (vm *VM) dictMerge(d *Dict, m Value) error {
	if src, ok := m.(*Dict); ok {
		src.Range(func(k, v Value) bool {
			d.setKey(staticKey(k), k, v)
			return true
		})
		return nil
	}
	keysFn, ok, err := vm.findAttr(m, "keys")
	if err != nil {
		return err
	}
	if !ok {
		return vm.typeError("'%s' object is not a mapping", TypeName(m))
	}
	keys, err := vm.call(keysFn, nil, nil)
	if err != nil {
		return err
	}
	return vm.iterate(keys, func(k Value) (bool, error) {
		v, err := vm.getItem(m, k)
		if err != nil {
			return false, err
		}
		return true, vm.dictSet(d, k, v)
	})
}

// dictRest copies mapping without keys.
func (vm *VM) dictRest(mapping Value, keys []Value) (*Dict, error) {
	rest := NewDict()
	if err := vm.dictMerge(rest, mapping); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if _, _, err := vm.dictDelete(rest, k); err != nil {
			return nil, err
		}
	}
	return rest, nil
}

// flattenChildren splices list children into the element's child list.
func flattenChildren(out []Value, children []Value) []Value {
	for _, c := range children {
		if l, ok := c.(*List); ok {
			out = flattenChildren(out, l.Items)
			continue
		}
		out = append(out, c)
	}
	return out
}

// sequenceLength reports the length of values that sequence patterns
// match. Strings are not sequences for pattern matching.
func sequenceLength(v Value) (int, bool) {
	switch x := v.(type) {
	case *List:
		return len(x.Items), true
	case *Tuple:
		return len(x.Items), true
	case *Range:
		return x.Len(), true
	}
	return 0, false
}

// matchArgTypes are the built-in classes whose positional sub-pattern
// matches the subject itself.
func selfMatching(c *Class) bool {
	switch c {
	case BoolType, IntType, FloatType, StrType, ListType, TupleType, DictType, SetType:
		return true
	}
	return false
}

// matchArg fetches the sub-pattern value of a class pattern: an attribute
// named by MatchKeyword|name, or the position-th entry of __match_args__.
func (vm *VM) matchArg(subject, clsVal Value, arg uint32, names []string) (Value, bool, error) {
	cls, ok := clsVal.(*Class)
	if !ok {
		return nil, false, vm.typeError("called match pattern must be a class")
	}
	var name string
	if arg&bytecode.MatchKeyword != 0 {
		name = names[arg&^bytecode.MatchKeyword]
	} else {
		i := int(arg)
		if selfMatching(cls) {
			if i == 0 {
				return subject, true, nil
			}
			return nil, false, vm.typeError("%s() accepts 1 positional sub-pattern (%d given)", cls.Name, i+1)
		}
		ma, found := cls.Lookup("__match_args__")
		if !found {
			return nil, false, vm.typeError("%s() accepts 0 positional sub-patterns (%d given)", cls.Name, i+1)
		}
		t, isTuple := ma.(*Tuple)
		if !isTuple {
			return nil, false, vm.typeError("%s.__match_args__ must be a tuple", cls.Name)
		}
		if i >= len(t.Items) {
			return nil, false, vm.typeError("%s() accepts %d positional sub-patterns (%d given)", cls.Name, len(t.Items), i+1)
		}
		s, isStr := t.Items[i].(Str)
		if !isStr {
			return nil, false, vm.typeError("__match_args__ elements must be strings")
		}
		name = string(s)
	}
	return vm.findAttr(subject, name)
}
