package vm

import (
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/resource"
	"github.com/scostello/monty/value"
)

// kwarg is one keyword argument popped off the operand stack by
// CallFunctionKw. nameValue is the original InternString constant from the
// call site, carried through unmodified so a **kwargs dict can reuse it
// without interning a new string mid-execution.
type kwarg struct {
	name      string
	nameValue value.Value
	value     value.Value
}

// callFunction implements CallFunction/CallFunctionKw/CallMethod's shared
// callee-dispatch logic: a value.Function or a value.Ref
// into a KindClosure slot activates a new frame; anything else (including
// an ExtFunction value, since CallExternal is the only legal way to reach
// one) is a TypeError.
//
// positional/kwargs are already popped from the operand stack by the
// caller and are always released (directly, or by being handed off into
// the new frame) exactly once by the time this returns.
func (vm *VirtualMachine) callFunction(callee value.Value, positional []value.Value, kwargs []kwarg) *errz.StructuredError {
	release := func() {
		for _, a := range positional {
			vm.heap.ReleaseValue(a, vm.tracker)
		}
		for _, kw := range kwargs {
			vm.heap.ReleaseValue(kw.value, vm.tracker)
		}
	}

	fnID, capturedCells, defaults, ok := vm.resolveCallable(callee)
	if !ok {
		release()
		vm.heap.ReleaseValue(callee, vm.tracker)
		return errz.Newf(errz.TypeError, vm.currentLocation(), nil, "object is not callable")
	}
	fn := vm.interns.Function(fnID)

	if vm.fp+1 >= DefaultFrameDepth || vm.tracker.CheckStack(vm.fp+2) != resource.OK {
		release()
		return errz.New(errz.RecursionError, "maximum recursion depth exceeded", vm.currentLocation(), nil)
	}

	namespace, err := vm.bindArgs(fn, positional, kwargs, defaults)
	if err != nil {
		return err
	}

	callerFrame := vm.fp
	calleeFrame := vm.fp + 1
	vm.frames[calleeFrame].activate(fn.Code, fnID, true, vm.sp+1, vm.activeFrame().ip, callerFrame)
	vm.frames[calleeFrame].namespace = namespace
	vm.frames[calleeFrame].cells = vm.bindCells(fn, capturedCells, namespace)
	vm.fp = calleeFrame
	return nil
}

// resolveCallable extracts the FunctionId, captured cells, and captured
// defaults from a callable Value. A bare value.Function carries neither; a
// value.Ref into a KindClosure slot carries whichever of the two the
// closure needed at MakeFunction/MakeClosure time.
func (vm *VirtualMachine) resolveCallable(callee value.Value) (value.FunctionId, []value.Value, []value.Value, bool) {
	switch callee.Tag() {
	case value.TagFunction:
		return callee.AsFunctionId(), nil, nil, true
	case value.TagRef:
		s := vm.heap.Get(callee.AsHeapId())
		if s.Kind != heap.KindClosure {
			return 0, nil, nil, false
		}
		return s.ClosureFunctionID, s.ClosureCells, s.ClosureDefaults, true
	default:
		return 0, nil, nil, false
	}
}

// bindArgs builds the new frame's namespace: positional parameters bound
// by declaration order (overridden by a matching keyword, defaulted where
// neither supplies a value), then zeroed ordinary locals. A parameter
// listed in fn.CellParamIndices still receives its bound value here, in
// its normal namespace slot; bindCells moves that value into a fresh cell
// and clears the namespace slot immediately afterward, so from the
// function body's perspective it was never visible as a plain local.
func (vm *VirtualMachine) bindArgs(fn *bytecode.Function, positional []value.Value, kwargs []kwarg, defaults []value.Value) ([]value.Value, *errz.StructuredError) {
	fail := func(e *errz.StructuredError) ([]value.Value, *errz.StructuredError) {
		for _, a := range positional {
			vm.heap.ReleaseValue(a, vm.tracker)
		}
		for _, kw := range kwargs {
			vm.heap.ReleaseValue(kw.value, vm.tracker)
		}
		return nil, e
	}

	if len(positional) > fn.NumPositional && !fn.HasVararg {
		return fail(errz.Newf(errz.TypeError, vm.currentLocation(), nil,
			"%s() takes at most %d positional arguments (%d given)", vm.interns.String(fn.Name), fn.NumPositional, len(positional)))
	}

	// Vararg/kwarg parameters are not tracked by name in fn.Parameters (the
	// compiler never interns them, since nothing ever looks one up by
	// keyword), so this package owns the slot convention on both sides of
	// the call boundary: *args, if present, occupies the namespace slot
	// immediately after the positional parameters; **kwargs, if present,
	// occupies the slot after that.
	varargSlot := fn.NumPositional
	kwargSlot := fn.NumPositional
	if fn.HasVararg {
		kwargSlot++
	}

	byName := make(map[string]value.Value, len(kwargs))
	byNameKey := make(map[string]value.Value, len(kwargs))
	for _, kw := range kwargs {
		byName[kw.name] = kw.value
		byNameKey[kw.name] = kw.nameValue
	}

	namespace := make([]value.Value, fn.NamespaceSize)
	required := fn.RequiredCount()
	for i := 0; i < fn.NumPositional; i++ {
		name := vm.interns.String(fn.Parameters[i])
		namedValue, hasNamed := byName[name]

		switch {
		case i < len(positional) && hasNamed:
			vm.heap.ReleaseValue(namedValue, vm.tracker)
			delete(byName, name)
			return fail(errz.Newf(errz.TypeError, vm.currentLocation(), nil,
				"%s() got multiple values for argument %q", vm.interns.String(fn.Name), name))
		case i < len(positional):
			namespace[i] = positional[i]
		case hasNamed:
			namespace[i] = namedValue
			delete(byName, name)
		case i < required:
			return fail(errz.Newf(errz.TypeError, vm.currentLocation(), nil,
				"%s() missing required argument %q", vm.interns.String(fn.Name), name))
		default:
			defaultIdx := i - required
			if defaultIdx >= 0 && defaultIdx < len(defaults) {
				namespace[i] = vm.heap.CloneValue(defaults[defaultIdx])
			} else {
				namespace[i] = value.None
			}
		}
	}
	if fn.HasVararg {
		extra := append([]value.Value{}, positional[fn.NumPositional:]...)
		id, allocErr := vm.heap.Alloc(heap.Slot{Kind: heap.KindTuple, Tuple: extra}, vm.tracker)
		if allocErr != nil {
			return fail(errz.New(errz.MemoryError, allocErr.Error(), vm.currentLocation(), nil))
		}
		namespace[varargSlot] = value.Ref(id)
	} else {
		for i := fn.NumPositional; i < len(positional); i++ {
			vm.heap.ReleaseValue(positional[i], vm.tracker)
		}
	}

	if fn.HasKwarg {
		entries := make([]heap.DictEntry, 0, len(byName))
		for name, v := range byName {
			entries = append(entries, heap.DictEntry{Key: byNameKey[name], Value: v})
		}
		id, allocErr := vm.heap.Alloc(heap.Slot{Kind: heap.KindDict, Dict: entries}, vm.tracker)
		if allocErr != nil {
			return fail(errz.New(errz.MemoryError, allocErr.Error(), vm.currentLocation(), nil))
		}
		namespace[kwargSlot] = value.Ref(id)
	} else if len(byName) > 0 {
		for name := range byName {
			v := byName[name]
			vm.heap.ReleaseValue(v, vm.tracker)
			return fail(errz.Newf(errz.TypeError, vm.currentLocation(), nil,
				"%s() got an unexpected keyword argument %q", vm.interns.String(fn.Name), name))
		}
	}
	return namespace, nil
}

// bindCells assembles the callee's frame.cells: captured free-variable
// cells first (in fn.FreeVars order, supplied by the closure object's
// ClosureCells), then the callee's own freshly-allocated cells, one per
// fn.CellParamIndices entry, seeded from the matching namespace slot and
// then clearing that slot.
func (vm *VirtualMachine) bindCells(fn *bytecode.Function, captured []value.Value, namespace []value.Value) []value.HeapId {
	cells := make([]value.HeapId, 0, len(fn.FreeVars)+len(fn.CellParamIndices))
	for _, c := range captured {
		id := c.AsHeapId()
		vm.heap.Incref(id)
		cells = append(cells, id)
	}
	for _, p := range fn.CellParamIndices {
		initial := namespace[p]
		namespace[p] = value.None
		id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindCell, Cell: initial}, vm.tracker)
		if err != nil {
			id, _ = vm.heap.Alloc(heap.Slot{Kind: heap.KindCell, Cell: value.None}, vm.tracker)
			vm.heap.ReleaseValue(initial, vm.tracker)
		}
		cells = append(cells, id)
	}
	return cells
}

// returnValue implements ReturnValue: pop the result, pop
// leftover operand-stack entries down to the frame's stack_base, discard
// the frame, and push the result in the caller. Returning from the
// outermost frame ends evaluation.
func (vm *VirtualMachine) returnValue() (Result, bool) {
	result := vm.pop()
	f := vm.activeFrame()
	for vm.sp >= f.stackBase {
		vm.popRelease(vm.pop())
	}
	vm.releaseCells(f)
	if f.returnFrame == noReturnFrame {
		return Result{Kind: ResultDone, Value: result}, true
	}
	vm.fp = f.returnFrame
	caller := vm.activeFrame()
	caller.ip = f.returnIP
	vm.push(result)
	return Result{}, false
}

// releaseCells decrefs every cell this frame held, mirroring the release
// every other Value the frame owned already receives.
func (vm *VirtualMachine) releaseCells(f *frame) {
	for _, id := range f.cells {
		vm.heap.Decref(id, vm.tracker)
	}
	for _, v := range f.namespace {
		vm.heap.ReleaseValue(v, vm.tracker)
	}
}
