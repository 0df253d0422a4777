package vm

import (
	"fmt"

	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/value"
)

// SerializedFrame is one frame's position-independent capture: instead of a
// *bytecode.Code pointer it carries the FunctionId that produced it
// (HasFunction false denotes the module frame), since a FunctionId survives
// a dump/reload round-trip and a bare pointer does not.
type SerializedFrame struct {
	FunctionID  value.FunctionId
	HasFunction bool
	Namespace   []value.Value
	Cells       []value.HeapId
	IP          int
	StackBase   int
	ReturnIP    int
	ReturnFrame int
}

// Snapshot is the position-independent capture of a suspended Run/Resume:
// the operand stack, every live frame (including each frame's own
// namespace and cells), and any exception mid-propagation. It excludes the
// Heap, which the caller dumps/restores separately (see the snapshot
// package) since the VM only borrows it.
type Snapshot struct {
	Stack               []value.Value
	Frames              []SerializedFrame
	CurrentException    value.Value
	HasCurrentException bool
}

// Export captures vm's suspended state. Only meaningful between Run/Resume
// calls -- calling it while eval is on the Go call stack would capture a
// half-updated sp/fp.
func (vm *VirtualMachine) Export() Snapshot {
	stack := make([]value.Value, vm.sp+1)
	copy(stack, vm.stack[:vm.sp+1])

	frames := make([]SerializedFrame, vm.fp+1)
	for i := 0; i <= vm.fp; i++ {
		f := &vm.frames[i]
		frames[i] = SerializedFrame{
			FunctionID:  f.functionID,
			HasFunction: f.hasFunction,
			Namespace:   append([]value.Value{}, f.namespace...),
			Cells:       append([]value.HeapId{}, f.cells...),
			IP:          f.ip,
			StackBase:   f.stackBase,
			ReturnIP:    f.returnIP,
			ReturnFrame: f.returnFrame,
		}
	}

	return Snapshot{
		Stack:               stack,
		Frames:              frames,
		CurrentException:    vm.currentException,
		HasCurrentException: vm.hasCurrentException,
	}
}

// Import rehydrates vm from snap against a freshly recompiled program:
// module supplies the outermost (module) frame's Code directly, and
// lookupCode resolves every other frame's FunctionID to the matching
// *bytecode.Code from that same recompiled program. vm must be freshly
// constructed (never run) before calling Import.
func (vm *VirtualMachine) Import(snap Snapshot, module *bytecode.Code, lookupCode func(value.FunctionId) *bytecode.Code) error {
	vm.sp = len(snap.Stack) - 1
	for i, v := range snap.Stack {
		vm.stack[i] = v
	}

	vm.fp = len(snap.Frames) - 1
	for i, sf := range snap.Frames {
		f := &vm.frames[i]
		if sf.HasFunction {
			code := lookupCode(sf.FunctionID)
			if code == nil {
				return fmt.Errorf("monty: snapshot: unknown function id %d", sf.FunctionID)
			}
			f.code = code
		} else {
			f.code = module
		}
		f.functionID = sf.FunctionID
		f.hasFunction = sf.HasFunction
		f.namespace = sf.Namespace
		f.cells = sf.Cells
		f.ip = sf.IP
		f.stackBase = sf.StackBase
		f.returnIP = sf.ReturnIP
		f.returnFrame = sf.ReturnFrame
	}
	vm.globals = vm.frames[0].namespace

	vm.currentException = snap.CurrentException
	vm.hasCurrentException = snap.HasCurrentException
	return nil
}
