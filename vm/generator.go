package vm

import (
	"errors"

	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Generators and coroutines: resumable frames
// ---------------------------------------------------------------------------

// Generator is the iterator returned by calling a generator function.
type Generator struct {
	frame   *Frame
	name    string
	done    bool
	running bool
}

func (g *Generator) Type() *Class { return GeneratorType }

// resumeGenerator runs g to its next yield. It reports false once the
// generator has returned, along with the returned value the first time.
func (vm *VM) resumeGenerator(g *Generator) (Value, bool, error) {
	if g.done {
		return nil, false, nil
	}
	if g.running {
		return nil, false, vm.valueError("generator already executing")
	}
	f := g.frame
	if f.started {
		f.push(None)
	}
	f.started = true

	g.running = true
	v, suspended, err := vm.execute(f)
	g.running = false
	if err != nil {
		g.done = true
		var exc *Exception
		if errors.As(err, &exc) && exc.Value.Class.IsSubclass(StopIterationType) {
			return nil, false, vm.newError(RuntimeErrorType, "generator raised StopIteration")
		}
		return nil, false, err
	}
	if !suspended {
		g.done = true
		g.frame = nil
		return v, false, nil
	}
	return v, true, nil
}

// Coroutine is the awaitable returned by calling an async function.
type Coroutine struct {
	frame *Frame
	name  string

	done   bool
	result Value
	err    error

	// awaiter is the frame or task driving the coroutine. A coroutine can
	// only be awaited by one driver.
	awaiter interface{}
}

func (c *Coroutine) Type() *Class { return CoroutineType }

// Done reports whether the coroutine has returned or raised.
func (c *Coroutine) Done() bool { return c.done }

// claim records driver as the awaiter of c.
func (vm *VM) claim(c *Coroutine, driver interface{}) error {
	switch {
	case c.awaiter == nil:
		c.awaiter = driver
		return nil
	case c.awaiter == driver:
		return nil
	case c.done:
		return vm.newError(RuntimeErrorType, "cannot reuse already awaited coroutine")
	}
	return vm.newError(RuntimeErrorType, "coroutine is being awaited already")
}

// stepCoroutine runs c until it returns or suspends on a future. A
// suspended coroutine reports the future it waits on.
func (vm *VM) stepCoroutine(c *Coroutine) (bool, *Future, error) {
	if c.done {
		return true, nil, c.err
	}
	f := c.frame
	f.started = true
	f.waiting = nil
	v, suspended, err := vm.execute(f)
	if err != nil {
		c.done, c.err, c.frame = true, err, nil
		return true, nil, err
	}
	if suspended {
		if f.waiting == nil {
			panic(fatalf("coroutine %s yielded a value", c.name))
		}
		return false, f.waiting, nil
	}
	c.done, c.result, c.frame = true, v, nil
	return true, nil, nil
}

// await executes the AWAIT instruction on the awaitable at the top of f's
// stack. It reports true when f must suspend; the instruction is then
// re-executed on resumption.
func (vm *VM) await(f *Frame) (bool, error) {
	if f.fn == nil || f.fn.Header.Flags&bytecode.FlagCoroutine == 0 {
		// a frame that cannot suspend blocks on the host scheduler
		v, err := vm.scheduler.Await(vm.ctx, f.pop())
		if err != nil {
			return false, err
		}
		f.push(orNone(v))
		return false, nil
	}
	switch x := f.top().(type) {
	case *Coroutine:
		if err := vm.claim(x, f); err != nil {
			f.pop()
			return false, err
		}
		done, waiting, err := vm.stepCoroutine(x)
		if !done {
			f.waiting = waiting
			f.ip--
			return true, nil
		}
		f.pop()
		if err != nil {
			return false, err
		}
		f.push(orNone(x.result))
		return false, nil

	case *Future:
		if !x.done {
			f.waiting = x
			f.ip--
			return true, nil
		}
		f.pop()
		if x.err != nil {
			return false, x.err
		}
		f.push(orNone(x.value))
		return false, nil

	case *Instance:
		if m, ok := x.Class.Lookup("__await__"); ok {
			r, err := vm.callMethod(x, m)
			if err != nil {
				f.pop()
				return false, err
			}
			f.stack[len(f.stack)-1] = r
			return vm.await(f)
		}
	}
	v := f.pop()
	return false, vm.typeError("object %s can't be used in 'await' expression", TypeName(v))
}
