package vm

import (
	"context"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Futures
// ---------------------------------------------------------------------------

// Future is a value that becomes available later. Futures are resolved on
// the loop that owns them; other goroutines hand results over with
// Loop.Post.
type Future struct {
	done      bool
	value     Value
	err       error
	callbacks []func()
}

// NewFuture creates a pending future.
func NewFuture() *Future {
	return &Future{}
}

func (f *Future) Type() *Class { return FutureType }

// Done reports whether the future is resolved.
func (f *Future) Done() bool { return f.done }

// Result returns the resolved value or error.
func (f *Future) Result() (Value, error) { return f.value, f.err }

// Resolve completes the future with v.
func (f *Future) Resolve(v Value) { f.settle(orNone(v), nil) }

// Reject completes the future with err.
func (f *Future) Reject(err error) { f.settle(nil, err) }

func (f *Future) settle(v Value, err error) {
	if f.done {
		return
	}
	f.done, f.value, f.err = true, v, err
	callbacks := f.callbacks
	f.callbacks = nil
	for _, cb := range callbacks {
		cb()
	}
}

// onDone runs fn once the future is resolved.
func (f *Future) onDone(fn func()) {
	if f.done {
		fn()
		return
	}
	f.callbacks = append(f.callbacks, fn)
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

// Scheduler drives an awaitable to completion for code that is not itself
// a coroutine: Call results, the run() builtin and embedding hosts.
type Scheduler interface {
	Await(ctx context.Context, v Value) (Value, error)
}

// task is a coroutine spawned on the loop.
type task struct {
	coro *Coroutine
	fut  *Future
}

// Loop is the default single-threaded event loop. Ready tasks are stepped
// in FIFO order; timers and host callbacks arrive through Post.
type Loop struct {
	vm    *VM
	ready []*task

	mu      sync.Mutex
	posted  []func()
	wake    chan struct{}
	pending int // timers and host operations that will Post
}

// NewLoop creates an event loop for vm.
func NewLoop(vm *VM) *Loop {
	return &Loop{vm: vm, wake: make(chan struct{}, 1)}
}

// Spawn schedules c as a task and returns the future of its result.
func (l *Loop) Spawn(c *Coroutine) (*Future, error) {
	t := &task{coro: c, fut: NewFuture()}
	if err := l.vm.claim(c, t); err != nil {
		return nil, err
	}
	l.ready = append(l.ready, t)
	return t.fut, nil
}

// Post queues fn to run on the loop. It is safe to call from any
// goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Hold announces an operation that will Post later; the loop does not
// report a stall while operations are held. Release must follow from the
// posted callback.
func (l *Loop) Hold() {
	l.mu.Lock()
	l.pending++
	l.mu.Unlock()
}

// Release ends an operation announced with Hold.
func (l *Loop) Release() {
	l.mu.Lock()
	l.pending--
	l.mu.Unlock()
}

// After runs fn on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) {
	l.Hold()
	time.AfterFunc(d, func() {
		l.Post(func() {
			l.Release()
			fn()
		})
	})
}

// drain runs the posted callbacks, reporting whether there were any.
func (l *Loop) drain() bool {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()
	for _, fn := range posted {
		fn()
	}
	return len(posted) > 0
}

func (l *Loop) held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending > 0
}

// step runs t until it finishes or waits on a future.
func (l *Loop) step(t *task) {
	done, waiting, err := l.vm.stepCoroutine(t.coro)
	switch {
	case done:
		if err != nil {
			l.vm.log.Debugf("vm %s: task %s failed: %s", l.vm.ID, t.coro.name, err)
		}
		t.fut.settle(orNone(t.coro.result), err)
	case waiting != nil:
		waiting.onDone(func() { l.ready = append(l.ready, t) })
	default:
		l.ready = append(l.ready, t)
	}
}

// Await runs the loop until v, a coroutine or a future, is resolved.
func (l *Loop) Await(ctx context.Context, v Value) (Value, error) {
	var target *Future
	switch x := v.(type) {
	case *Coroutine:
		fut, err := l.Spawn(x)
		if err != nil {
			return nil, err
		}
		target = fut
	case *Future:
		target = x
	default:
		return nil, l.vm.typeError("object %s can't be used in 'await' expression", TypeName(v))
	}

	for !target.done {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		if len(l.ready) > 0 {
			t := l.ready[0]
			l.ready[0] = nil
			l.ready = l.ready[1:]
			l.step(t)
			continue
		}
		if l.drain() {
			continue
		}
		if !l.held() {
			return nil, l.vm.newError(RuntimeErrorType, "event loop stalled: awaited future can never complete")
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return nil, cancelled(ctx)
		}
	}
	return target.Result()
}

// ---------------------------------------------------------------------------
// Async builtins
// ---------------------------------------------------------------------------

// sleep returns a future resolved with result after seconds.
func (vm *VM) sleep(seconds float64, result Value) *Future {
	fut := NewFuture()
	vm.loop.After(time.Duration(seconds*float64(time.Second)), func() {
		fut.Resolve(result)
	})
	return fut
}

// awaitable converts a coroutine or future into a future on the loop.
func (vm *VM) awaitable(v Value) (*Future, error) {
	switch x := v.(type) {
	case *Future:
		return x, nil
	case *Coroutine:
		return vm.loop.Spawn(x)
	}
	return nil, vm.typeError("an awaitable is required, not '%s'", TypeName(v))
}

// gather resolves to the list of results of aws, in order, or to the
// first error.
func (vm *VM) gather(aws []Value) (*Future, error) {
	combined := NewFuture()
	if len(aws) == 0 {
		combined.Resolve(NewList(nil))
		return combined, nil
	}
	futs := make([]*Future, len(aws))
	for i, aw := range aws {
		fut, err := vm.awaitable(aw)
		if err != nil {
			return nil, err
		}
		futs[i] = fut
	}
	results := make([]Value, len(futs))
	remaining := len(futs)
	for i, fut := range futs {
		i, fut := i, fut
		fut.onDone(func() {
			if combined.done {
				return
			}
			if fut.err != nil {
				combined.Reject(fut.err)
				return
			}
			results[i] = fut.value
			remaining--
			if remaining == 0 {
				combined.Resolve(NewList(results))
			}
		})
	}
	return combined, nil
}

// waitFor resolves like aw, or raises TimeoutError after seconds.
func (vm *VM) waitFor(aw Value, seconds float64) (*Future, error) {
	inner, err := vm.awaitable(aw)
	if err != nil {
		return nil, err
	}
	outer := NewFuture()
	inner.onDone(func() { outer.settle(inner.value, inner.err) })
	if !outer.done {
		vm.loop.After(time.Duration(seconds*float64(time.Second)), func() {
			outer.settle(nil, vm.newError(TimeoutErrorType, "timed out after %gs", seconds))
		})
	}
	return outer, nil
}

func registerAsyncMethods() {
	FutureType.method("done", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return Bool(args[0].(*Future).done), nil
	})
	FutureType.method("result", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		f := args[0].(*Future)
		if !f.done {
			return nil, vm.newError(RuntimeErrorType, "result is not set")
		}
		return f.Result()
	})
	CoroutineType.method("done", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return Bool(args[0].(*Coroutine).done), nil
	})
	GeneratorType.method("__iter__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return args[0], nil
	})
	GeneratorType.method("__next__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		v, ok, err := vm.resumeGenerator(args[0].(*Generator))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, vm.stopIteration(v)
		}
		return v, nil
	})
	IteratorType.method("__iter__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return args[0], nil
	})
	IteratorType.method("__next__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		v, ok, err := args[0].(*Iterator).Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, vm.stopIteration(nil)
		}
		return v, nil
	})
}
