package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/op"
	"github.com/scostello/monty/resource"
	"github.com/scostello/monty/value"
)

const (
	// DefaultStackDepth and DefaultFrameDepth size the VM's fixed operand
	// and frame arrays, grounded on risor's vm.go MaxStackDepth/
	// MaxFrameDepth constants. Exceeding DefaultFrameDepth surfaces as a
	// RecursionError rather than a Go-level panic; a configured
	// resource.Limits.MaxRecursionDepth typically binds well before this
	// ceiling is reached.
	DefaultStackDepth = 4096
	DefaultFrameDepth = 1024

	// noReturnFrame marks the outermost frame's returnFrame: a
	// ReturnValue here ends the eval loop instead of resuming a caller,
	// mirroring risor's StopSignal idiom.
	noReturnFrame = -1

	// DefaultTickInterval matches risor's DefaultContextCheckInterval
	// cadence for calling into the resource tracker's OnTick hook.
	DefaultTickInterval = 1000
)

// ExternalCallHandler synchronously services a CallExternal instruction.
// If installed, the VM never suspends on CallExternal; if nil, Run/Resume
// instead return a Result with Kind == ResultExternalCall for the embedder to drive out-of-band.
type ExternalCallHandler func(ctx context.Context, name string, args []value.Value) (value.Value, *errz.StructuredError)

// VirtualMachine executes one compiled program under a single borrowed
// Heap and Interns table. It is strictly single-threaded: all state is
// owned exclusively while Run/Resume executes.
//
// Grounded structurally on risor's vm.VirtualMachine (fixed-size
// stack/frame arrays, runMutex-guarded entry, a background goroutine plus
// deterministic instruction-count polling for context cancellation), with
// risor's object.Object operand type replaced by value.Value, its
// compiler.Code/object.Closure model replaced by bytecode.Code plus this
// module's own heap-resident closures, and its unconditional panic-based
// error handling replaced by exception-table-driven unwinding.
type VirtualMachine struct {
	heap    *heap.Heap
	interns *intern.Interns

	stack [DefaultStackDepth]value.Value
	sp    int // index of the top of stack; -1 when empty

	frames [DefaultFrameDepth]frame
	fp     int

	// globals is the module-level namespace; Global-scope loads/stores
	// always address this slice regardless of which frame is active --
	// nested functions still reach the one module namespace directly,
	// not through a frame chain.
	globals []value.Value

	currentException    value.Value
	hasCurrentException bool

	tracker      resource.Tracker
	tickInterval int
	tickCount    int

	externalCallHandler ExternalCallHandler

	running  bool
	runMutex sync.Mutex
}

// New creates a VirtualMachine. heap and interns are borrowed for the
// lifetime of the VM.
func New(h *heap.Heap, interns *intern.Interns, options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		heap:         h,
		interns:      interns,
		sp:           -1,
		tracker:      resource.NoLimitTracker{},
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range options {
		opt(vm)
	}
	return vm
}

// Result is the outcome of a Run/Resume call.
type Result struct {
	Kind ResultKind

	// Value is populated when Kind == ResultDone.
	Value value.Value

	// Err is populated when Kind == ResultError.
	Err *errz.StructuredError

	// ExternalCall is populated when Kind == ResultExternalCall.
	ExternalCall *PendingCall
}

// ResultKind discriminates a Result.
type ResultKind int

const (
	ResultDone ResultKind = iota
	ResultError
	ResultExternalCall
)

// PendingCall describes a suspended CallExternal awaiting Resume/
// ResumeException.
type PendingCall struct {
	FunctionID value.ExtFnId
	Name       string
	Args       []value.Value
}

// Globals returns the module-level namespace slice.
func (vm *VirtualMachine) Globals() []value.Value {
	return vm.globals
}

// Run loads module code into frame 0 and evaluates it to completion, a
// suspension, or an error.
func (vm *VirtualMachine) Run(ctx context.Context, module *bytecode.Code) Result {
	if err := vm.start(); err != nil {
		return Result{Kind: ResultError, Err: errz.Newf(errz.RuntimeError, errz.SourceLocation{}, nil, "%s", err)}
	}
	defer vm.stop()

	vm.globals = make([]value.Value, module.NumLocals)
	for i := range vm.globals {
		vm.globals[i] = value.None
	}
	vm.sp = -1
	vm.fp = 0
	vm.frames[0].activate(module, 0, false, 0, 0, noReturnFrame)
	vm.frames[0].namespace = vm.globals

	return vm.eval(ctx)
}

// RunSnippet evaluates one incrementally-compiled snippet against the VM's
// existing global namespace, growing it in place rather than replacing it
// the way Run does. A persistent session (see the repl package) feeds many
// snippets through the same VM and needs bindings from an earlier snippet
// to survive into a later one; Run's unconditional fresh-zeroed globals
// allocation would discard them.
func (vm *VirtualMachine) RunSnippet(ctx context.Context, snippet *bytecode.Code) Result {
	if err := vm.start(); err != nil {
		return Result{Kind: ResultError, Err: errz.Newf(errz.RuntimeError, errz.SourceLocation{}, nil, "%s", err)}
	}
	defer vm.stop()

	if want := int(snippet.NumLocals); want > len(vm.globals) {
		grown := make([]value.Value, want)
		copy(grown, vm.globals)
		for i := len(vm.globals); i < want; i++ {
			grown[i] = value.None
		}
		vm.globals = grown
	}

	vm.sp = -1
	vm.fp = 0
	vm.frames[0].activate(snippet, 0, false, 0, 0, noReturnFrame)
	vm.frames[0].namespace = vm.globals

	return vm.eval(ctx)
}

// Resume re-enters the VM after a CallExternal suspension, pushing value
// (converted by the caller into a value.Value) onto the operand stack at
// the call site before continuing.
func (vm *VirtualMachine) Resume(ctx context.Context, result value.Value) Result {
	if err := vm.start(); err != nil {
		return Result{Kind: ResultError, Err: errz.Newf(errz.RuntimeError, errz.SourceLocation{}, nil, "%s", err)}
	}
	defer vm.stop()
	vm.push(result)
	return vm.eval(ctx)
}

// ResumeException re-enters the VM after a CallExternal suspension,
// raising a synthetic exception at the call site instead of returning a
// value.
func (vm *VirtualMachine) ResumeException(ctx context.Context, kind errz.ErrorKind, message string) Result {
	if err := vm.start(); err != nil {
		return Result{Kind: ResultError, Err: errz.Newf(errz.RuntimeError, errz.SourceLocation{}, nil, "%s", err)}
	}
	defer vm.stop()
	structured := errz.New(kind, message, vm.currentLocation(), nil)
	if !vm.raiseStructured(structured) {
		return Result{Kind: ResultError, Err: structured}
	}
	return vm.eval(ctx)
}

func (vm *VirtualMachine) start() error {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	if vm.running {
		return fmt.Errorf("monty: vm: already running")
	}
	vm.running = true
	return nil
}

func (vm *VirtualMachine) stop() {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	vm.running = false
}

// eval is the fetch/decode/execute loop. Deterministic
// cancellation-polling mirrors risor's eval(): every tickInterval
// instructions, consult the resource tracker (and, through it, any
// context watched via resource.LimitedTracker.WatchContext). Unlike
// risor's vm.go, there is no separate background-goroutine-driven halt
// flag on the VM itself -- the tracker is the single source of truth for
// cancellation, reachable whether it came from ctx, a wall-clock deadline,
// or an explicit resource.LimitedTracker.Halt call.
func (vm *VirtualMachine) eval(ctx context.Context) Result {
	for {
		f := &vm.frames[vm.fp]
		if f.ip >= len(f.code.Bytecode) {
			// A well-formed Code always ends in ReturnValue; falling off
			// the end is a compiler bug, not a guest-triggerable state.
			return Result{Kind: ResultError, Err: errz.Newf(errz.RuntimeError, vm.currentLocation(), nil, "monty: vm: fell off the end of code without ReturnValue")}
		}

		if vm.tickInterval > 0 {
			vm.tickCount++
			if vm.tickCount >= vm.tickInterval {
				vm.tickCount = 0
				if vm.tracker.OnTick(vm.tickInterval) != resource.OK {
					return vm.timeoutResult()
				}
			}
		}

		opcode := op.Code(f.code.Bytecode[f.ip])
		f.ip++

		result, handled, err := vm.dispatch(ctx, opcode)
		if handled {
			return result
		}
		if err != nil {
			if !vm.raiseStructured(err) {
				return Result{Kind: ResultError, Err: err}
			}
			continue
		}
	}
}

func (vm *VirtualMachine) timeoutResult() Result {
	structured := errz.New(errz.TimeoutError, "execution time limit exceeded", vm.currentLocation(), nil)
	if !vm.raiseStructured(structured) {
		return Result{Kind: ResultError, Err: structured}
	}
	return vm.eval(context.Background())
}

// activeFrame returns the currently executing frame.
func (vm *VirtualMachine) activeFrame() *frame { return &vm.frames[vm.fp] }

func (vm *VirtualMachine) push(v value.Value) {
	vm.sp++
	vm.stack[vm.sp] = v
}

func (vm *VirtualMachine) pop() value.Value {
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = value.None
	vm.sp--
	return v
}

func (vm *VirtualMachine) top() value.Value { return vm.stack[vm.sp] }

func (vm *VirtualMachine) popRelease(v value.Value) {
	vm.heap.ReleaseValue(v, vm.tracker)
}

// popArgs pops n operands in call order: the compiler pushed them left to
// right, so the top of stack is the last argument.
func (vm *VirtualMachine) popArgs(n int) []value.Value {
	args := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	return args
}

func (vm *VirtualMachine) fetchU8() uint8 {
	f := vm.activeFrame()
	b := f.code.Bytecode[f.ip]
	f.ip++
	return b
}

func (vm *VirtualMachine) fetchI8() int8 { return int8(vm.fetchU8()) }

func (vm *VirtualMachine) fetchU16() uint16 {
	f := vm.activeFrame()
	lo := uint16(f.code.Bytecode[f.ip])
	hi := uint16(f.code.Bytecode[f.ip+1])
	f.ip += 2
	return lo | hi<<8
}

func (vm *VirtualMachine) fetchI16() int16 { return int16(vm.fetchU16()) }

// currentLocation resolves the active frame's IP to a source location for
// error reporting.
func (vm *VirtualMachine) currentLocation() errz.SourceLocation {
	f := vm.activeFrame()
	loc, ok := f.code.LocationAt(f.ip - 1)
	if !ok {
		return errz.SourceLocation{Filename: f.code.Filename}
	}
	return errz.SourceLocation{
		Filename: f.code.Filename,
		Line:     loc.Range.StartLine,
		Column:   loc.Range.StartColumn,
	}
}

// maybeCollect runs CollectCycles if the heap has signaled that the
// configured allocation interval has elapsed (added to heap.Heap while
// building this package, since only the VM can assemble the live root
// set: the operand stack, every frame's namespace and cells, and the
// current exception).
func (vm *VirtualMachine) maybeCollect() {
	if !vm.heap.CollectDue() {
		return
	}
	vm.heap.CollectCycles(vm.roots())
	vm.heap.ClearCollectDue()
}

func (vm *VirtualMachine) roots() []value.Value {
	var roots []value.Value
	for i := 0; i <= vm.sp; i++ {
		roots = append(roots, vm.stack[i])
	}
	for i := 0; i <= vm.fp; i++ {
		f := &vm.frames[i]
		roots = append(roots, f.namespace...)
		for _, id := range f.cells {
			roots = append(roots, value.Cell(id))
		}
	}
	if vm.hasCurrentException {
		roots = append(roots, vm.currentException)
	}
	return roots
}
