package vm

import "github.com/scostello/monty/resource"

// Option configures a VirtualMachine at construction time. Grounded on
// risor's vm/options.go functional-options idiom.
type Option func(*VirtualMachine)

// WithTracker installs a resource.Tracker. The default is
// resource.NoLimitTracker{}.
func WithTracker(tracker resource.Tracker) Option {
	return func(vm *VirtualMachine) { vm.tracker = tracker }
}

// WithGCInterval sets how many heap allocations elapse between automatic
// CollectCycles passes. 0 disables automatic collection. Reconfigures the
// Heap the VM was constructed with, since the heap (not the VM) is what
// actually counts allocations between passes.
func WithGCInterval(interval int) Option {
	return func(vm *VirtualMachine) { vm.heap.SetGCInterval(interval) }
}

// WithTickInterval sets how many instructions elapse between
// tracker.OnTick calls. The default is DefaultTickInterval, matching
// risor's DefaultContextCheckInterval cadence.
func WithTickInterval(interval int) Option {
	return func(vm *VirtualMachine) { vm.tickInterval = interval }
}

// WithExternalCallHandler installs the embedder's synchronous external-
// call servicer. If unset, CallExternal instead suspends run loop
// execution by returning an ExternalCall result for the embedder to drive out-of-band.
func WithExternalCallHandler(handler ExternalCallHandler) Option {
	return func(vm *VirtualMachine) { vm.externalCallHandler = handler }
}

// SetExternalCallHandler installs or replaces the external-call handler
// after construction, for a caller (e.g. the embedder façade) whose
// handler needs a reference to the VirtualMachine it will run on -- a
// reference only available once New has already returned.
func (vm *VirtualMachine) SetExternalCallHandler(handler ExternalCallHandler) {
	vm.externalCallHandler = handler
}
