// Package monty is the embedder-facing façade over the compiler, virtual
// machine, heap, snapshot, and repl packages: compile a prepared AST into
// a Program, run it to completion or to a host-serviced external-call
// suspension, and dump/reload either one across a process boundary.
//
// Grounded on risor's top-level risor.go, which plays the same
// role for risor (a thin re-export of parser/compiler/vm behind a small
// functional surface) -- with risor's own source-parsing step removed,
// since preparing the AST (name resolution, slot assignment) is a
// collaborator this module does not implement; callers hand in an
// already-resolved *ast.Module the way risor's compiler.CompileAST does
// once risor's own parser has run.
package monty

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/compiler"
	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/resource"
	"github.com/scostello/monty/snapshot"
	"github.com/scostello/monty/value"
	"github.com/scostello/monty/vm"
)

// Limits is the embedder-configurable resource ceiling for one Run/Start
// call, re-exported from resource.Limits so a caller never has to import
// that package directly for the common case.
type Limits = resource.Limits

// PrintSink is the capability a guest's print built-in writes through.
// It is invoked synchronously and inline, never surfaced as a Suspension,
// since print is a fire-and-forget capability rather than a value-
// returning external call.
type PrintSink interface {
	Write(channel, text string)
}

// ExternalFunc services one named external call with positional
// arguments already reduced to value.Value (this module carries no
// object model to convert a host-native type to a guest one; that
// conversion, if any, is the embedder's own responsibility before
// calling Run/Resume).
type ExternalFunc func(ctx context.Context, args []value.Value) (value.Value, error)

// BoundaryError is the host-visible error shape, matching the {type_name,
// message, traceback} boundary contract: a StructuredError flattened for
// a caller that doesn't want to import errz directly.
type BoundaryError struct {
	TypeName   string
	Message    string
	Traceback  []errz.StackFrame
	Underlying *errz.StructuredError
}

func (e *BoundaryError) Error() string { return e.Underlying.Error() }

func boundaryError(se *errz.StructuredError) *BoundaryError {
	if se == nil {
		return nil
	}
	name := se.Kind.String()
	if se.Kind == errz.UserDefined && se.TypeID != "" {
		name = se.TypeID
	}
	return &BoundaryError{TypeName: name, Message: se.Message, Traceback: se.Stack, Underlying: se}
}

// Program is a compiled, ready-to-run unit: a module Code object plus the
// Interns table it was compiled into. A Program is immutable and may be
// Run or Start many times concurrently from different goroutines, each
// call constructing its own Heap and VirtualMachine.
type Program struct {
	scriptName string
	interns    *intern.Interns
	module     *bytecode.Code
}

// Compile lowers a prepared module (already parsed and name-resolved
// upstream -- see the package doc) into a Program. scriptName anchors
// error locations and is echoed back in a Suspension's script_name field.
func Compile(mod *ast.Module, scriptName string) (*Program, error) {
	interns := intern.New()
	c := compiler.New(interns, scriptName)
	code, err := c.CompileModule(mod)
	if err != nil {
		return nil, err
	}
	return &Program{scriptName: scriptName, interns: interns, module: code}, nil
}

// dispatcher builds the synchronous ExternalCallHandler Run installs:
// print is serviced inline against machine when printSink is non-nil, and
// every other name (print too, when printSink is nil) is looked up in
// callbacks, with an unregistered name raised back into
// the guest as a RuntimeError rather than returned to the caller.
func dispatcher(machine *vm.VirtualMachine, printSink PrintSink, callbacks map[string]ExternalFunc) vm.ExternalCallHandler {
	return func(ctx context.Context, name string, args []value.Value) (value.Value, *errz.StructuredError) {
		if name == "print" && printSink != nil {
			var text string
			if len(args) > 0 {
				text = machine.Display(args[0])
			}
			printSink.Write("stdout", text)
			return value.None, nil
		}
		fn, ok := callbacks[name]
		if !ok {
			return value.None, errz.New(errz.RuntimeError, fmt.Sprintf("no external callback registered for %q", name), errz.SourceLocation{}, nil)
		}
		result, err := fn(ctx, args)
		if err != nil {
			return value.None, errz.New(errz.ExternalError, err.Error(), errz.SourceLocation{}, nil)
		}
		return result, nil
	}
}

// Run executes p to completion, synchronously servicing every external
// call and print through callbacks/printSink. It never suspends: a
// callback map missing a name the guest calls raises a RuntimeError back
// into the guest rather than returning to the caller, matching
// Program.run's "→ Value | RuntimeError" contract.
func (p *Program) Run(ctx context.Context, limits Limits, callbacks map[string]ExternalFunc, printSink PrintSink) (value.Value, *BoundaryError) {
	h := heap.New(limits.GCInterval)
	tracker := resource.NewLimitedTracker(limits, time.Now())
	tracker.WatchContext(ctx)
	machine := vm.New(h, p.interns, vm.WithTracker(tracker))
	machine.SetExternalCallHandler(dispatcher(machine, printSink, callbacks))
	result := machine.Run(ctx, p.module)
	switch result.Kind {
	case vm.ResultDone:
		return result.Value, nil
	default:
		return value.None, boundaryError(result.Err)
	}
}

// Completion is the terminal outcome of a Start/Resume chain: the
// program ran to normal completion with this value.
type Completion struct {
	Value value.Value
}

// Suspension is a paused Program awaiting the host to service one
// external call. CallID is opaque and stable across a dump/load
// round-trip, for an embedder that correlates Suspensions against
// concurrently in-flight host-side futures.
type Suspension struct {
	ScriptName   string
	FunctionName string
	Args         []value.Value
	CallID       string

	program   *Program
	machine   *vm.VirtualMachine
	heap      *heap.Heap
	printSink PrintSink
}

// Start runs p until it either completes or reaches an external call the
// host must service out-of-band. When printSink is non-nil, print is
// still serviced inline via printSink, the same as Run -- only non-print
// external calls suspend, since print is a fire-and-forget capability
// rather than a value the guest is waiting on. With a nil printSink, print
// suspends like any other external call.
func (p *Program) Start(ctx context.Context, limits Limits, printSink PrintSink) (*Suspension, *Completion, *BoundaryError) {
	h := heap.New(limits.GCInterval)
	tracker := resource.NewLimitedTracker(limits, time.Now())
	tracker.WatchContext(ctx)
	machine := vm.New(h, p.interns, vm.WithTracker(tracker))
	return driveToSuspensionOrCompletion(ctx, p, machine, h, printSink, machine.Run(ctx, p.module))
}

// driveToSuspensionOrCompletion loops the VM forward through any number
// of print calls (each serviced inline by re-Resuming with None) until it
// either completes or suspends on a genuine external call.
func driveToSuspensionOrCompletion(ctx context.Context, p *Program, machine *vm.VirtualMachine, h *heap.Heap, printSink PrintSink, result vm.Result) (*Suspension, *Completion, *BoundaryError) {
	for {
		switch result.Kind {
		case vm.ResultDone:
			return nil, &Completion{Value: result.Value}, nil
		case vm.ResultError:
			return nil, nil, boundaryError(result.Err)
		case vm.ResultExternalCall:
			pending := result.ExternalCall
			if pending.Name == "print" && printSink != nil {
				var text string
				if len(pending.Args) > 0 {
					text = machine.Display(pending.Args[0])
				}
				printSink.Write("stdout", text)
				result = machine.Resume(ctx, value.None)
				continue
			}
			return &Suspension{
				ScriptName:   p.scriptName,
				FunctionName: pending.Name,
				Args:         pending.Args,
				CallID:       uuid.NewString(),
				program:      p,
				machine:      machine,
				heap:         h,
				printSink:    printSink,
			}, nil, nil
		default:
			return nil, nil, boundaryError(errz.New(errz.RuntimeError, "monty: embedder: unknown result kind", errz.SourceLocation{}, nil))
		}
	}
}

// Resume answers the suspended external call with returnValue and
// continues execution until the next suspension or completion.
func (s *Suspension) Resume(ctx context.Context, returnValue value.Value) (*Suspension, *Completion, *BoundaryError) {
	return driveToSuspensionOrCompletion(ctx, s.program, s.machine, s.heap, s.printSink, s.machine.Resume(ctx, returnValue))
}

// ResumeException answers the suspended external call by raising an
// ExternalError-kind exception at the call site instead of a value,
// matching resume_exception's host-signaled-failure contract.
func (s *Suspension) ResumeException(ctx context.Context, message string) (*Suspension, *Completion, *BoundaryError) {
	return driveToSuspensionOrCompletion(ctx, s.program, s.machine, s.heap, s.printSink, s.machine.ResumeException(ctx, errz.ExternalError, message))
}

// suspensionEnvelope wraps the snapshot package's VM/heap bytes with the
// identifying fields a Suspension carries that vm.Snapshot itself does
// not: the pending call's name and arguments aren't part of the VM's
// frame/stack state (they only ever existed transiently in a Result's
// ExternalCall field), and CallID is this package's own addition, so
// both travel alongside the snapshot bytes rather than through them.
type suspensionEnvelope struct {
	FunctionName string
	Args         []value.Value
	CallID       string
	VMHeap       []byte
}

// Dump serializes the suspended VM/heap state plus the pending call's
// identity. Load needs the originating Program (recompiled from the same
// source) to reattach Code pointers, matching the "interns/functions...
// loaded by filename or fingerprint" contract.
func (s *Suspension) Dump() ([]byte, error) {
	vmHeap, err := snapshot.Dump(s.machine, s.heap)
	if err != nil {
		return nil, err
	}
	env := suspensionEnvelope{FunctionName: s.FunctionName, Args: s.Args, CallID: s.CallID, VMHeap: vmHeap}
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("monty: embedder: build encoder: %w", err)
	}
	return mode.Marshal(env)
}

// Load reconstructs a Suspension from data produced by Dump, against p
// (the same Program, recompiled from the same source that produced the
// original Suspension) and the same resource Limits/print sink the
// caller wants to govern continued execution with.
func (p *Program) Load(data []byte, limits Limits, printSink PrintSink) (*Suspension, error) {
	var env suspensionEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("monty: embedder: decode: %w", err)
	}
	tracker := resource.NewLimitedTracker(limits, time.Now())
	machine, h, err := snapshot.Load(env.VMHeap, p.module, p.interns, vm.WithTracker(tracker))
	if err != nil {
		return nil, err
	}
	return &Suspension{
		ScriptName:   p.scriptName,
		FunctionName: env.FunctionName,
		Args:         env.Args,
		CallID:       env.CallID,
		program:      p,
		machine:      machine,
		heap:         h,
		printSink:    printSink,
	}, nil
}
