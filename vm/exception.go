package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Exception classes
// ---------------------------------------------------------------------------

var (
	BaseExceptionType       *Class
	ExceptionType           *Class
	ArithmeticErrorType     *Class
	ZeroDivisionErrorType   *Class
	OverflowErrorType       *Class
	LookupErrorType         *Class
	IndexErrorType          *Class
	KeyErrorType            *Class
	TypeErrorType           *Class
	ValueErrorType          *Class
	NameErrorType           *Class
	UnboundLocalErrorType   *Class
	AttributeErrorType      *Class
	RuntimeErrorType        *Class
	RecursionErrorType      *Class
	NotImplementedErrorType *Class
	StopIterationType       *Class
	AssertionErrorType      *Class
	ImportErrorType         *Class
	ModuleNotFoundErrorType *Class
	TimeoutErrorType        *Class

	// exceptionClasses lists every built-in exception class for the
	// builtins namespace.
	exceptionClasses []*Class
)

func exceptionClass(name string, base *Class) *Class {
	c := newBuiltinClass(name, base)
	c.subclassable = true
	exceptionClasses = append(exceptionClasses, c)
	return c
}

func bootstrapExceptions() {
	BaseExceptionType = exceptionClass("BaseException", ObjectType)
	ExceptionType = exceptionClass("Exception", BaseExceptionType)
	ArithmeticErrorType = exceptionClass("ArithmeticError", ExceptionType)
	ZeroDivisionErrorType = exceptionClass("ZeroDivisionError", ArithmeticErrorType)
	OverflowErrorType = exceptionClass("OverflowError", ArithmeticErrorType)
	LookupErrorType = exceptionClass("LookupError", ExceptionType)
	IndexErrorType = exceptionClass("IndexError", LookupErrorType)
	KeyErrorType = exceptionClass("KeyError", LookupErrorType)
	TypeErrorType = exceptionClass("TypeError", ExceptionType)
	ValueErrorType = exceptionClass("ValueError", ExceptionType)
	NameErrorType = exceptionClass("NameError", ExceptionType)
	UnboundLocalErrorType = exceptionClass("UnboundLocalError", NameErrorType)
	AttributeErrorType = exceptionClass("AttributeError", ExceptionType)
	RuntimeErrorType = exceptionClass("RuntimeError", ExceptionType)
	RecursionErrorType = exceptionClass("RecursionError", RuntimeErrorType)
	NotImplementedErrorType = exceptionClass("NotImplementedError", RuntimeErrorType)
	StopIterationType = exceptionClass("StopIteration", ExceptionType)
	AssertionErrorType = exceptionClass("AssertionError", ExceptionType)
	ImportErrorType = exceptionClass("ImportError", ExceptionType)
	ModuleNotFoundErrorType = exceptionClass("ModuleNotFoundError", ImportErrorType)
	TimeoutErrorType = exceptionClass("TimeoutError", ExceptionType)

	BaseExceptionType.method("__init__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		self, ok := args[0].(*Instance)
		if !ok {
			return nil, vm.typeError("descriptor '__init__' requires a 'BaseException' object")
		}
		self.Attrs["args"] = NewTuple(append([]Value(nil), args[1:]...)...)
		return None, nil
	})
	BaseExceptionType.method("__str__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		msg, err := vm.exceptionMessage(args[0])
		return Str(msg), err
	})
	BaseExceptionType.method("__repr__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		r, err := vm.repr(exceptionArgs(args[0]))
		if err != nil {
			return nil, err
		}
		if len(exceptionArgs(args[0]).Items) == 1 {
			r = "(" + strings.TrimSuffix(strings.TrimPrefix(r, "("), ",)") + ")"
		}
		return Str(TypeName(args[0]) + r), nil
	})
}

// exceptionArgs returns the args tuple of an exception instance.
func exceptionArgs(v Value) *Tuple {
	if inst, ok := v.(*Instance); ok {
		if t, ok := inst.Attrs["args"].(*Tuple); ok {
			return t
		}
	}
	return NewTuple()
}

// exceptionMessage renders str(exc) from its args. KeyError shows the
// repr of a single key.
func (vm *VM) exceptionMessage(v Value) (string, error) {
	args := exceptionArgs(v).Items
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		if isInstance(v, KeyErrorType) {
			return vm.repr(args[0])
		}
		return vm.str(args[0])
	}
	return vm.repr(NewTuple(args...))
}

// ---------------------------------------------------------------------------
// Raised exceptions
// ---------------------------------------------------------------------------

// TraceEntry is one frame of a traceback.
type TraceEntry struct {
	Module   string
	Function string
	Line     int
}

// Exception is a raised Nagini exception travelling through the
// interpreter as a Go error. Trace grows as it leaves frames, innermost
// first.
type Exception struct {
	Value *Instance
	Trace []TraceEntry
}

func (e *Exception) Error() string {
	msg := describe(exceptionArgs(e.Value))
	if msg == "" {
		return e.Value.Class.Name
	}
	return e.Value.Class.Name + ": " + msg
}

// describe formats exception args without running user code.
func describe(args *Tuple) string {
	parts := make([]string, len(args.Items))
	for i, a := range args.Items {
		switch x := a.(type) {
		case Str:
			parts[i] = string(x)
		case Int, Float, Bool, NoneType:
			parts[i] = plainRepr(x)
		default:
			parts[i] = "<" + TypeName(a) + ">"
		}
	}
	return strings.Join(parts, ", ")
}

// newError creates an exception of class cls with a formatted message.
func (vm *VM) newError(cls *Class, format string, args ...interface{}) *Exception {
	inst := NewInstance(cls)
	inst.Attrs["args"] = NewTuple(Str(fmt.Sprintf(format, args...)))
	return &Exception{Value: inst}
}

func (vm *VM) typeError(format string, args ...interface{}) *Exception {
	return vm.newError(TypeErrorType, format, args...)
}

func (vm *VM) valueError(format string, args ...interface{}) *Exception {
	return vm.newError(ValueErrorType, format, args...)
}

func (vm *VM) indexError(format string, args ...interface{}) *Exception {
	return vm.newError(IndexErrorType, format, args...)
}

func (vm *VM) keyError(key Value) *Exception {
	inst := NewInstance(KeyErrorType)
	inst.Attrs["args"] = NewTuple(key)
	return &Exception{Value: inst}
}

func (vm *VM) stopIteration(value Value) *Exception {
	inst := NewInstance(StopIterationType)
	if value == nil || IsNone(value) {
		inst.Attrs["args"] = NewTuple()
	} else {
		inst.Attrs["args"] = NewTuple(value)
	}
	inst.Attrs["value"] = orNone(value)
	return &Exception{Value: inst}
}

func orNone(v Value) Value {
	if v == nil {
		return None
	}
	return v
}

// raised converts the operand of a raise statement: an exception instance
// or a class to instantiate without arguments.
func (vm *VM) raised(v Value) (*Exception, error) {
	switch x := v.(type) {
	case *Class:
		if x.IsSubclass(BaseExceptionType) {
			inst, err := vm.call(x, nil, nil)
			if err != nil {
				return nil, err
			}
			return vm.raised(inst)
		}
	case *Instance:
		if x.Class.IsSubclass(BaseExceptionType) {
			if _, ok := x.Attrs["args"]; !ok {
				x.Attrs["args"] = NewTuple()
			}
			return &Exception{Value: x}, nil
		}
	}
	return nil, vm.typeError("exceptions must derive from BaseException")
}

// exceptionMatches implements the except clause test: spec is a class or
// a tuple of classes.
func (vm *VM) exceptionMatches(exc *Exception, spec Value) (bool, error) {
	switch s := spec.(type) {
	case *Class:
		if !s.IsSubclass(BaseExceptionType) {
			break
		}
		return exc.Value.Class.IsSubclass(s), nil
	case *Tuple:
		for _, item := range s.Items {
			ok, err := vm.exceptionMatches(exc, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, vm.typeError("catching classes that do not inherit from BaseException is not allowed")
}

// isError reports whether err is a raised exception of class cls.
func isError(err error, cls *Class) bool {
	var exc *Exception
	return errors.As(err, &exc) && exc.Value.Class.IsSubclass(cls)
}

// ---------------------------------------------------------------------------
// Errors returned to the host
// ---------------------------------------------------------------------------

// RuntimeError is an uncaught Nagini exception returned by Run and Call.
type RuntimeError struct {
	Type    string       // exception class name
	Message string       // str() of the exception
	Value   *Instance    // the exception object
	Trace   []TraceEntry // outermost frame first
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString("Traceback (most recent call last):\n")
	for _, t := range e.Trace {
		fmt.Fprintf(&b, "  %s, line %d, in %s\n", t.Module, t.Line, t.Function)
	}
	b.WriteString(e.Type)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// uncaught converts an exception that left the outermost frame.
func (vm *VM) uncaught(exc *Exception) *RuntimeError {
	msg, err := vm.str(exc.Value)
	if err != nil {
		msg = describe(exceptionArgs(exc.Value))
	}
	trace := make([]TraceEntry, len(exc.Trace))
	for i, t := range exc.Trace {
		trace[len(trace)-1-i] = t
	}
	return &RuntimeError{
		Type:    exc.Value.Class.Name,
		Message: msg,
		Value:   exc.Value,
		Trace:   trace,
	}
}

// FatalError is a host-fatal condition: a corrupt module, a compiler/VM
// contract violation or cancellation. User code cannot catch it.
type FatalError struct {
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return "fatal: " + e.Message + ": " + e.Err.Error()
	}
	return "fatal: " + e.Message
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatalf(format string, args ...interface{}) *FatalError {
	return &FatalError{Message: fmt.Sprintf(format, args...)}
}
