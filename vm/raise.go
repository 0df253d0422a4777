package vm

import (
	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/value"
)

// asException coerces v into a Value guaranteed to be a Ref into a
// KindException heap slot: v already is one, or it is boxed into a fresh
// minimal Exception carrying v's textual form as its message. Guest code
// constructs real exception objects by calling a built-in exception type
// (a concern of the object-model layer this package borrows, not the
// dispatch loop itself); this boundary only needs every raised Value to be
// traceable and matchable by CompareExceptionMatch, regardless of what
// raised it.
func (vm *VirtualMachine) asException(v value.Value) value.Value {
	if v.Tag() == value.TagRef {
		if s := vm.heap.Get(v.AsHeapId()); s.Kind == heap.KindException {
			return v
		}
	}
	msg := v.String()
	if s, ok := vm.stringOf(v); ok {
		msg = s
	}
	vm.heap.ReleaseValue(v, vm.tracker)
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindException, Exception: heap.ExceptionData{
		TypeID:  "Exception",
		Message: msg,
	}}, vm.tracker)
	if err != nil {
		return value.None
	}
	return value.Ref(id)
}

// structuredToException converts a Go-level StructuredError (raised by a
// failing opcode) into a guest-visible exception heap slot.
func (vm *VirtualMachine) structuredToException(e *errz.StructuredError) value.Value {
	typeID := e.Kind.String()
	if e.Kind == errz.UserDefined && e.TypeID != "" {
		typeID = e.TypeID
	}
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindException, Exception: heap.ExceptionData{
		TypeID:  typeID,
		Message: e.Message,
	}}, vm.tracker)
	if err != nil {
		return value.None
	}
	return value.Ref(id)
}

// raiseStructured sets current_exception from a Go-level error and unwinds
// to the nearest handler, exactly like raiseValue. Returns false if no
// handler exists anywhere on the frame stack, in which case the caller
// must surface e (not the boxed exception heap slot, released here since
// nothing else holds a reference to it) as the final Result.
func (vm *VirtualMachine) raiseStructured(e *errz.StructuredError) bool {
	exc := vm.structuredToException(e)
	if vm.raiseValue(exc) {
		return true
	}
	vm.heap.ReleaseValue(exc, vm.tracker)
	return false
}

// raiseValue implements the raise/unwind algorithm: search the
// active frame's exception table for an entry covering the current IP; if
// none, pop the frame (releasing everything it owned) and retry in the
// caller; walking off the outermost frame means the raise is uncaught.
// On a match, the operand stack is released down to the handler's
// recorded StackDepth, and the exception value is pushed for the
// dispatcher to inspect. On failure (no handler anywhere), exc is left
// un-released and returned ownership passes back to the caller, which
// needs it to build the final uncaught-exception Result.
func (vm *VirtualMachine) raiseValue(exc value.Value) bool {
	for {
		f := &vm.frames[vm.fp]
		if handler, ok := f.code.HandlerFor(f.ip - 1); ok {
			for vm.sp >= f.stackBase+int(handler.StackDepth) {
				vm.popRelease(vm.pop())
			}
			f.ip = int(handler.Handler)
			// The dispatcher's except-clause bind/Pop consumes the stack
			// copy; a bare `raise`/Reraise inside the handler body (which
			// touches no stack operand, per compileRaise) needs its own
			// independent reference, released by ClearException once the
			// clause completes.
			if vm.hasCurrentException {
				vm.heap.ReleaseValue(vm.currentException, vm.tracker)
			}
			vm.currentException = exc
			vm.hasCurrentException = true
			vm.push(vm.heap.CloneValue(exc))
			return true
		}

		for vm.sp >= f.stackBase {
			vm.popRelease(vm.pop())
		}
		vm.releaseCells(f)

		if f.returnFrame == noReturnFrame {
			return false
		}
		vm.fp = f.returnFrame
	}
}
