package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// DefaultMaxFrames is the call depth at which RecursionError is raised.
const DefaultMaxFrames = 1000

// ---------------------------------------------------------------------------
// VM: The Nagini virtual machine
// ---------------------------------------------------------------------------

// VM executes bytecode modules. Each VM owns its heap, call stack and
// module table; independent VMs may run in parallel, but one VM must not be
// used from more than one goroutine at a time.
type VM struct {
	// ID identifies the instance in logs.
	ID string

	maxFrames  int
	checkStack bool
	trace      bool
	stdout     io.Writer
	importer   Importer
	scheduler  Scheduler
	loop       *Loop
	log        commonlog.Logger

	builtins *Dict
	modules  map[string]*Module
	loading  map[string]bool
	mains    map[*bytecode.Module]*Module

	// Execution state of the current Run or Call.
	ctx    context.Context
	frames []*Frame
	steps  uint64
}

// Option configures a VM.
type Option func(*VM)

// WithMaxFrames sets the maximum call depth.
func WithMaxFrames(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.maxFrames = n
		}
	}
}

// WithStackCheck enables the stack discipline check at every line marker.
func WithStackCheck(on bool) Option {
	return func(vm *VM) { vm.checkStack = on }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(on bool) Option {
	return func(vm *VM) { vm.trace = on }
}

// WithStdout redirects print().
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.stdout = w }
}

// WithImporter sets the resolver for import statements.
func WithImporter(imp Importer) Option {
	return func(vm *VM) { vm.importer = imp }
}

// WithScheduler replaces the event loop that drives top-level awaits.
func WithScheduler(s Scheduler) Option {
	return func(vm *VM) { vm.scheduler = s }
}

// New creates a VM.
func New(opts ...Option) *VM {
	vm := &VM{
		ID:        uuid.New().String(),
		maxFrames: DefaultMaxFrames,
		stdout:    os.Stdout,
		modules:   make(map[string]*Module),
		loading:   make(map[string]bool),
		mains:     make(map[*bytecode.Module]*Module),
		ctx:       context.Background(),
	}
	vm.log = commonlog.GetLogger("nagini.vm")
	vm.loop = NewLoop(vm)
	vm.scheduler = vm.loop
	for _, opt := range opts {
		opt(vm)
	}
	vm.builtins = vm.newBuiltins()
	vm.modules["math"] = vm.mathModule()
	return vm
}

// Builtins returns the builtins namespace. Hosts may add names to it.
func (vm *VM) Builtins() *Dict {
	return vm.builtins
}

// Stdout returns the writer print() uses.
func (vm *VM) Stdout() io.Writer {
	return vm.stdout
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Run executes m as the main module and returns the value of its final
// expression statement, or None.
func (vm *VM) Run(ctx context.Context, m *bytecode.Module) (Value, error) {
	if err := m.Validate(); err != nil {
		return nil, &FatalError{Message: "invalid module", Err: err}
	}
	mod := newModule("__main__", m)
	vm.mains[m] = mod
	vm.log.Debugf("vm %s: running module (%d instructions)", vm.ID, len(m.Instructions))
	return vm.enter(ctx, func() (Value, error) {
		return vm.runModule(mod)
	})
}

// Call runs m if this VM has not run it yet, then calls the global name
// with args. A coroutine result is driven to completion by the scheduler.
func (vm *VM) Call(ctx context.Context, m *bytecode.Module, name string, args ...Value) (Value, error) {
	mod, ok := vm.mains[m]
	if !ok {
		if _, err := vm.Run(ctx, m); err != nil {
			return nil, err
		}
		mod = vm.mains[m]
	}
	fn, ok := mod.Globals.GetStr(name)
	if !ok {
		return nil, fmt.Errorf("call %s: no such global", name)
	}
	vm.log.Debugf("vm %s: calling %s", vm.ID, name)
	return vm.enter(ctx, func() (Value, error) {
		v, err := vm.call(fn, args, nil)
		if err != nil {
			return nil, err
		}
		if c, ok := v.(*Coroutine); ok {
			return vm.scheduler.Await(vm.ctx, c)
		}
		return v, nil
	})
}

// enter installs ctx for the duration of run and converts what escapes
// it into host errors: uncaught exceptions become *RuntimeError, and
// panics carrying a *FatalError are recovered.
func (vm *VM) enter(ctx context.Context, run func() (Value, error)) (result Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	outer, depth := vm.ctx, len(vm.frames)
	vm.ctx = ctx
	defer func() {
		vm.ctx = outer
		vm.frames = vm.frames[:depth]
		if r := recover(); r != nil {
			fe, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			result, err = nil, fe
		}
		if err != nil {
			vm.log.Debugf("vm %s: %s", vm.ID, err)
		}
	}()

	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	result, err = run()
	if err != nil {
		var exc *Exception
		if errors.As(err, &exc) {
			return nil, vm.uncaught(exc)
		}
		return nil, err
	}
	return result, nil
}

// runModule executes a module body in its own globals.
func (vm *VM) runModule(mod *Module) (Value, error) {
	f := &Frame{
		module: mod,
		code:   mod.Code.Instructions,
		name:   "<module>",
	}
	v, _, err := vm.execute(f)
	return v, err
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// print writes values separated by sep and followed by end.
func (vm *VM) print(args []Value, sep, end string) error {
	for i, a := range args {
		if i > 0 {
			if _, err := io.WriteString(vm.stdout, sep); err != nil {
				return vm.newError(RuntimeErrorType, "print: %s", err)
			}
		}
		s, err := vm.str(a)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(vm.stdout, s); err != nil {
			return vm.newError(RuntimeErrorType, "print: %s", err)
		}
	}
	if _, err := io.WriteString(vm.stdout, end); err != nil {
		return vm.newError(RuntimeErrorType, "print: %s", err)
	}
	return nil
}
