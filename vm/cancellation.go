package vm

import "context"

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

// cancelCheckInterval is how many instructions run between context polls.
const cancelCheckInterval = 1024

// cancelled reports a done context as a fatal error. Cancellation cannot be
// caught by try/except in the running program.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &FatalError{Message: "cancelled", Err: err}
	}
	return nil
}

// poll checks the context every cancelCheckInterval steps.
func (vm *VM) poll() error {
	vm.steps++
	if vm.steps%cancelCheckInterval != 0 {
		return nil
	}
	return cancelled(vm.ctx)
}
