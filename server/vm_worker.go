package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nagini-lang/nagini/vm"
)

var errWorkerStopped = errors.New("vm worker stopped")

// vmWorker owns a VM and runs every job against it on one goroutine. glsp
// dispatches requests concurrently and a VM is not safe for concurrent use.
type vmWorker struct {
	jobs    chan vmJob
	stopped chan struct{}
	once    sync.Once
}

type vmJob struct {
	run   func(*vm.VM) error
	reply chan error
}

func startWorker(v *vm.VM) *vmWorker {
	w := &vmWorker{
		jobs:    make(chan vmJob),
		stopped: make(chan struct{}),
	}
	go w.serve(v)
	return w
}

func (w *vmWorker) serve(v *vm.VM) {
	for {
		select {
		case j := <-w.jobs:
			j.reply <- runJob(v, j.run)
		case <-w.stopped:
			return
		}
	}
}

// runJob turns a panic in a job into its error so one bad request cannot
// take the server down.
func runJob(v *vm.VM, run func(*vm.VM) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vm worker: %v", r)
		}
	}()
	return run(v)
}

// Do runs fn on the worker goroutine and waits for it. Results travel
// through fn's closure.
func (w *vmWorker) Do(fn func(*vm.VM) error) error {
	select {
	case <-w.stopped:
		return errWorkerStopped
	default:
	}
	j := vmJob{run: fn, reply: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-w.stopped:
		return errWorkerStopped
	}
	// the unbuffered send only completes once serve has taken the job
	return <-j.reply
}

// Stop ends the worker goroutine. Later calls to Do fail.
func (w *vmWorker) Stop() {
	w.once.Do(func() { close(w.stopped) })
}
