package vm

import (
	"context"

	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/op"
	"github.com/scostello/monty/value"
)

// dispatch executes one already-fetched opcode (eval has already advanced
// f.ip past the opcode byte itself). It returns (result, true, nil) when
// execution should stop and surface result to the caller (ReturnValue from
// the outermost frame, CallExternal suspension, or an uncaught error); any
// other return leaves eval's loop running, either normally or after
// raiseStructured has already redirected the active frame to a handler.
func (vm *VirtualMachine) dispatch(ctx context.Context, opcode op.Code) (Result, bool, *errz.StructuredError) {
	switch opcode {
	case op.Pop:
		vm.popRelease(vm.pop())
	case op.Dup:
		v := vm.top()
		vm.push(vm.heap.CloneValue(v))
	case op.Rot2:
		a, b := vm.pop(), vm.pop()
		vm.push(a)
		vm.push(b)
	case op.Rot3:
		a, b, c := vm.pop(), vm.pop(), vm.pop()
		vm.push(a)
		vm.push(c)
		vm.push(b)

	case op.LoadConst:
		idx := vm.fetchU16()
		v := vm.activeFrame().code.Constants[idx]
		vm.push(vm.heap.CloneValue(v))
	case op.LoadNone:
		vm.push(value.None)
	case op.LoadTrue:
		vm.push(value.True)
	case op.LoadFalse:
		vm.push(value.False)
	case op.LoadSmallInt:
		vm.push(value.Int(int64(vm.fetchI8())))

	case op.LoadLocal0:
		vm.push(vm.heap.CloneValue(vm.activeFrame().namespace[0]))
	case op.LoadLocal1:
		vm.push(vm.heap.CloneValue(vm.activeFrame().namespace[1]))
	case op.LoadLocal2:
		vm.push(vm.heap.CloneValue(vm.activeFrame().namespace[2]))
	case op.LoadLocal3:
		vm.push(vm.heap.CloneValue(vm.activeFrame().namespace[3]))
	case op.LoadLocal:
		slot := vm.fetchU8()
		vm.push(vm.heap.CloneValue(vm.activeFrame().namespace[slot]))
	case op.LoadLocalW:
		slot := vm.fetchU16()
		vm.push(vm.heap.CloneValue(vm.activeFrame().namespace[slot]))
	case op.StoreLocal:
		slot := vm.fetchU8()
		vm.storeLocal(int(slot))
	case op.StoreLocalW:
		slot := vm.fetchU16()
		vm.storeLocal(int(slot))
	case op.DeleteLocal:
		slot := vm.fetchU8()
		f := vm.activeFrame()
		vm.heap.ReleaseValue(f.namespace[slot], vm.tracker)
		f.namespace[slot] = value.None
	case op.LoadGlobal:
		slot := vm.fetchU16()
		vm.push(vm.heap.CloneValue(vm.globals[slot]))
	case op.StoreGlobal:
		slot := vm.fetchU16()
		v := vm.pop()
		vm.heap.ReleaseValue(vm.globals[slot], vm.tracker)
		vm.globals[slot] = v
	case op.LoadCell:
		slot := vm.fetchU16()
		id := vm.activeFrame().cells[slot]
		vm.push(vm.heap.CloneValue(vm.heap.Get(id).Cell))
	case op.StoreCell:
		slot := vm.fetchU16()
		id := vm.activeFrame().cells[slot]
		v := vm.pop()
		cell := vm.heap.GetMut(id)
		vm.heap.ReleaseValue(cell.Cell, vm.tracker)
		cell.Cell = v

	case op.BinaryAdd, op.BinarySub, op.BinaryMul, op.BinaryDiv, op.BinaryFloorDiv,
		op.BinaryMod, op.BinaryPow, op.BinaryAnd, op.BinaryOr, op.BinaryXor,
		op.BinaryLShift, op.BinaryRShift, op.BinaryMatMul,
		op.InplaceAdd, op.InplaceSub, op.InplaceMul, op.InplaceDiv, op.InplaceFloorDiv,
		op.InplaceMod, op.InplacePow, op.InplaceAnd, op.InplaceOr, op.InplaceXor,
		op.InplaceLShift, op.InplaceRShift, op.InplaceMatMul:
		if err := vm.binaryOp(opcode); err != nil {
			return Result{}, false, err
		}

	case op.CompareEq, op.CompareNe, op.CompareLt, op.CompareLe, op.CompareGt, op.CompareGe,
		op.CompareIs, op.CompareIsNot, op.CompareIn, op.CompareNotIn:
		if err := vm.compareOp(opcode); err != nil {
			return Result{}, false, err
		}
	case op.CompareExceptionMatch:
		if err := vm.compareExceptionMatch(); err != nil {
			return Result{}, false, err
		}

	case op.UnaryNot, op.UnaryNeg, op.UnaryPos, op.UnaryInvert:
		if err := vm.unaryOp(opcode); err != nil {
			return Result{}, false, err
		}

	case op.BuildList, op.BuildTuple, op.BuildSet:
		n := vm.fetchU16()
		if err := vm.buildSeq(opcode, int(n)); err != nil {
			return Result{}, false, err
		}
	case op.BuildDict:
		n := vm.fetchU16()
		if err := vm.buildDict(int(n)); err != nil {
			return Result{}, false, err
		}
	case op.BuildFString:
		n := vm.fetchU16()
		if err := vm.buildFString(int(n)); err != nil {
			return Result{}, false, err
		}

	case op.BinarySubscr:
		if err := vm.binarySubscr(); err != nil {
			return Result{}, false, err
		}
	case op.StoreSubscr:
		if err := vm.storeSubscr(); err != nil {
			return Result{}, false, err
		}
	case op.DeleteSubscr:
		if err := vm.deleteSubscr(); err != nil {
			return Result{}, false, err
		}
	case op.LoadAttr:
		idx := vm.fetchU16()
		if err := vm.loadAttr(idx); err != nil {
			return Result{}, false, err
		}
	case op.StoreAttr:
		idx := vm.fetchU16()
		if err := vm.storeAttr(idx); err != nil {
			return Result{}, false, err
		}
	case op.DeleteAttr:
		idx := vm.fetchU16()
		if err := vm.deleteAttr(idx); err != nil {
			return Result{}, false, err
		}

	case op.CallFunction:
		argc := vm.fetchU8()
		args := vm.popArgs(int(argc))
		callee := vm.pop()
		if err := vm.callFunction(callee, args, nil); err != nil {
			return Result{}, false, err
		}
	case op.CallFunctionKw:
		argc, kwargc := vm.fetchU8U8()
		kwargs := vm.popKwargs(int(kwargc))
		args := vm.popArgs(int(argc))
		callee := vm.pop()
		if err := vm.callFunction(callee, args, kwargs); err != nil {
			return Result{}, false, err
		}
	case op.CallMethod:
		nameIdx, argc := vm.fetchU16U8()
		args := vm.popArgs(int(argc))
		obj := vm.pop()
		name := vm.attrName(nameIdx)
		if err := vm.callMethod(obj, name, args); err != nil {
			return Result{}, false, err
		}
	case op.CallExternal:
		fnIdx, argc := vm.fetchU16U8()
		args := vm.popArgs(int(argc))
		res, handled, err := vm.callExternal(ctx, value.ExtFnId(fnIdx), args)
		if handled {
			return res, true, nil
		}
		if err != nil {
			return Result{}, false, err
		}

	case op.Jump:
		delta := vm.fetchI16()
		vm.activeFrame().ip += int(delta)
	case op.JumpIfTrue:
		delta := vm.fetchI16()
		v := vm.pop()
		truthy := vm.heap.IsTruthy(v)
		vm.heap.ReleaseValue(v, vm.tracker)
		if truthy {
			vm.activeFrame().ip += int(delta)
		}
	case op.JumpIfFalse:
		delta := vm.fetchI16()
		v := vm.pop()
		truthy := vm.heap.IsTruthy(v)
		vm.heap.ReleaseValue(v, vm.tracker)
		if !truthy {
			vm.activeFrame().ip += int(delta)
		}
	case op.JumpIfTrueOrPop:
		delta := vm.fetchI16()
		if vm.heap.IsTruthy(vm.top()) {
			vm.activeFrame().ip += int(delta)
		} else {
			vm.popRelease(vm.pop())
		}
	case op.JumpIfFalseOrPop:
		delta := vm.fetchI16()
		if !vm.heap.IsTruthy(vm.top()) {
			vm.activeFrame().ip += int(delta)
		} else {
			vm.popRelease(vm.pop())
		}

	case op.GetIter:
		if err := vm.getIter(); err != nil {
			return Result{}, false, err
		}
	case op.ForIter:
		delta := vm.fetchI16()
		if err := vm.forIter(delta); err != nil {
			return Result{}, false, err
		}

	case op.MakeFunction:
		id := vm.fetchU16()
		if err := vm.makeFunction(value.FunctionId(id)); err != nil {
			return Result{}, false, err
		}
	case op.MakeClosure:
		id, cellCount := vm.fetchU16U8()
		if err := vm.makeClosure(value.FunctionId(id), int(cellCount)); err != nil {
			return Result{}, false, err
		}

	case op.Raise:
		exc := vm.asException(vm.pop())
		if !vm.raiseValue(exc) {
			return vm.uncaught(exc), true, nil
		}
	case op.RaiseFrom:
		cause := vm.pop()
		exc := vm.asException(vm.pop())
		vm.attachCause(exc, cause)
		if !vm.raiseValue(exc) {
			return vm.uncaught(exc), true, nil
		}
	case op.Reraise:
		if !vm.hasCurrentException {
			err := errz.New(errz.RuntimeError, "no active exception to reraise", vm.currentLocation(), nil)
			return Result{}, false, err
		}
		exc := vm.currentException
		vm.hasCurrentException = false
		vm.currentException = value.None
		if !vm.raiseValue(exc) {
			return vm.uncaught(exc), true, nil
		}
	case op.ClearException:
		if vm.hasCurrentException {
			vm.heap.ReleaseValue(vm.currentException, vm.tracker)
			vm.currentException = value.None
			vm.hasCurrentException = false
		}

	case op.ReturnValue:
		result, done := vm.returnValue()
		if done {
			return result, true, nil
		}

	case op.UnpackSequence:
		n := vm.fetchU8()
		if err := vm.unpackSequence(int(n)); err != nil {
			return Result{}, false, err
		}
	case op.UnpackEx:
		before, after := vm.fetchU8U8()
		if err := vm.unpackEx(int(before), int(after)); err != nil {
			return Result{}, false, err
		}

	case op.Nop:
		// no-op

	default:
		return Result{}, false, errz.Newf(errz.RuntimeError, vm.currentLocation(), nil, "unhandled opcode %d", opcode)
	}

	vm.maybeCollect()
	return Result{}, false, nil
}

func (vm *VirtualMachine) storeLocal(slot int) {
	f := vm.activeFrame()
	v := vm.pop()
	vm.heap.ReleaseValue(f.namespace[slot], vm.tracker)
	f.namespace[slot] = v
}

func (vm *VirtualMachine) fetchU8U8() (uint8, uint8) {
	return vm.fetchU8(), vm.fetchU8()
}

func (vm *VirtualMachine) fetchU16U8() (uint16, uint8) {
	return vm.fetchU16(), vm.fetchU8()
}

// popKwargs pops 2*kwargc stack entries (name, value pairs pushed by
// compileCall) in push order and resolves each name constant back to a Go
// string via the same Constants-pool path LoadConst read it from.
func (vm *VirtualMachine) popKwargs(kwargc int) []kwarg {
	raw := vm.popArgs(2 * kwargc)
	kwargs := make([]kwarg, kwargc)
	for i := 0; i < kwargc; i++ {
		nameValue, val := raw[2*i], raw[2*i+1]
		kwargs[i] = kwarg{
			name:      vm.interns.String(nameValue.AsStringId()),
			nameValue: nameValue,
			value:     val,
		}
	}
	return kwargs
}

// callMethod implements CallMethod: resolve obj.name to a callable and
// invoke it with args only, matching compiler/functions.go's
// compileAttrCall contract (object pushed, then args). obj is released,
// not passed as a receiver argument: this VM's object model has no
// implicit self-binding, so a method is just an ordinary function value
// stored as an attribute.
func (vm *VirtualMachine) callMethod(obj value.Value, name string, args []value.Value) *errz.StructuredError {
	if obj.Tag() != value.TagRef {
		for _, a := range args {
			vm.heap.ReleaseValue(a, vm.tracker)
		}
		vm.heap.ReleaseValue(obj, vm.tracker)
		return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", vm.typeName(obj), name)
	}
	s := vm.heap.Get(obj.AsHeapId())
	if s.Kind != heap.KindUserObject {
		for _, a := range args {
			vm.heap.ReleaseValue(a, vm.tracker)
		}
		vm.heap.ReleaseValue(obj, vm.tracker)
		return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", vm.typeName(obj), name)
	}
	id := vm.interns.InternString(name)
	for i, n := range s.UserObjectNames {
		if n == id {
			callee := vm.heap.CloneValue(s.UserObjectFields[i])
			vm.heap.ReleaseValue(obj, vm.tracker)
			return vm.callFunction(callee, args, nil)
		}
	}
	for _, a := range args {
		vm.heap.ReleaseValue(a, vm.tracker)
	}
	vm.heap.ReleaseValue(obj, vm.tracker)
	return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", s.UserObjectTypeID, name)
}

// callExternal implements CallExternal: if an
// ExternalCallHandler is installed, service it synchronously; otherwise
// suspend by returning a ResultExternalCall, leaving the active frame's ip
// already past the CallExternal instruction so Resume continues correctly.
func (vm *VirtualMachine) callExternal(ctx context.Context, fnID value.ExtFnId, args []value.Value) (Result, bool, *errz.StructuredError) {
	name := vm.interns.ExternalFunctionName(fnID)
	if vm.externalCallHandler != nil {
		result, err := vm.externalCallHandler(ctx, name, args)
		for _, a := range args {
			vm.heap.ReleaseValue(a, vm.tracker)
		}
		if err != nil {
			return Result{}, false, err
		}
		vm.push(result)
		return Result{}, false, nil
	}
	return Result{Kind: ResultExternalCall, ExternalCall: &PendingCall{FunctionID: fnID, Name: name, Args: args}}, true, nil
}

// compareExceptionMatch implements the except-clause dispatcher's type
// test (compiler/exceptions.go's compileTry): pops the type operand,
// leaves the exception beneath it on the stack, pushes the match result.
func (vm *VirtualMachine) compareExceptionMatch() *errz.StructuredError {
	typ := vm.pop()
	exc := vm.top()
	matched := vm.exceptionMatches(exc, typ)
	vm.heap.ReleaseValue(typ, vm.tracker)
	vm.push(value.Bool(matched))
	return nil
}

func (vm *VirtualMachine) exceptionMatches(exc, typ value.Value) bool {
	typeName, ok := vm.stringOf(typ)
	if !ok {
		typeName = vm.typeName(typ)
	}
	if exc.Tag() == value.TagRef {
		if s := vm.heap.Get(exc.AsHeapId()); s.Kind == heap.KindException {
			return s.Exception.TypeID == typeName || typeName == "Exception"
		}
	}
	return false
}

// uncaught builds the final Result for a raise that found no handler
// anywhere on the frame stack.
func (vm *VirtualMachine) uncaught(exc value.Value) Result {
	var structured *errz.StructuredError
	if exc.Tag() == value.TagRef {
		if s := vm.heap.Get(exc.AsHeapId()); s.Kind == heap.KindException {
			structured = errz.NewUserDefined(s.Exception.TypeID, s.Exception.Message, vm.currentLocation(), nil)
		}
	}
	if structured == nil {
		structured = errz.New(errz.RuntimeError, vm.display(exc), vm.currentLocation(), nil)
	}
	vm.heap.ReleaseValue(exc, vm.tracker)
	return Result{Kind: ResultError, Err: structured}
}

// attachCause implements RaiseFrom's `raise exc from cause`: cause becomes
// exc's Exception.Cause.
func (vm *VirtualMachine) attachCause(exc, cause value.Value) {
	if exc.Tag() != value.TagRef {
		vm.heap.ReleaseValue(cause, vm.tracker)
		return
	}
	s := vm.heap.GetMut(exc.AsHeapId())
	if s.Kind != heap.KindException {
		vm.heap.ReleaseValue(cause, vm.tracker)
		return
	}
	causeExc := vm.asException(cause)
	if causeExc.Tag() == value.TagRef {
		s.Exception.Cause = causeExc.AsHeapId()
		s.Exception.HasCause = true
	}
}
