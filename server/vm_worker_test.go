package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/nagini-lang/nagini/vm"
)

func TestWorkerSerializesJobs(t *testing.T) {
	w := startWorker(vm.New(vm.WithStdout(io.Discard)))
	defer w.Stop()

	var (
		wg      sync.WaitGroup
		running int
		overlap bool
		total   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(func(*vm.VM) error {
				running++
				if running > 1 {
					overlap = true
				}
				total++
				running--
				return nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()
	if overlap {
		t.Error("jobs ran concurrently")
	}
	if total != 20 {
		t.Errorf("ran %d jobs, want 20", total)
	}
}

func TestWorkerErrors(t *testing.T) {
	w := startWorker(vm.New(vm.WithStdout(io.Discard)))

	sentinel := errors.New("job failed")
	if err := w.Do(func(*vm.VM) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("job error = %v, want %v", err, sentinel)
	}

	err := w.Do(func(*vm.VM) error { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("panic error = %v", err)
	}

	w.Stop()
	w.Stop()
	if err := w.Do(func(*vm.VM) error { return nil }); !errors.Is(err, errWorkerStopped) {
		t.Errorf("Do after Stop = %v, want %v", err, errWorkerStopped)
	}
}
