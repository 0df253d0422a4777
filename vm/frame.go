// Package vm implements the fetch/decode/execute loop over compiled Code:
// the operand stack, frame stack, exception unwinding, external-call
// suspension, and resource accounting.
package vm

import (
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/value"
)

// frame is the runtime realization of one CallFrame: one
// activation of either the module or a user function. The instruction
// pointer lives here, never on the VirtualMachine itself, so that
// suspending at a CallExternal and later resuming only needs to restore
// the frame stack.
//
// Grounded on risor's vm/frame.go for the overall shape (a
// fixed-size array of frames, each owning its own locals storage,
// activated in place rather than allocated per call) with risor's
// object.Closure/free-var indirection replaced by this module's own cell
// addressing: namespace holds ordinary locals and parameters, cells holds
// one HeapId per free variable captured from an enclosing frame plus one
// per variable this frame itself shares with a nested closure, addressed by ast.Cell-scope slot numbers in that
// combined order.
type frame struct {
	// namespace is this frame's Local-scope storage, sized by the
	// function's (or module's) NamespaceSize.
	namespace []value.Value

	// cells is this frame's Cell-scope storage: captured free-variable
	// cells first (length equal to the function's FreeVars), then this
	// function's own cell variables (length equal to its CellCount).
	cells []value.HeapId

	// code is the Code object currently executing in this frame.
	code *bytecode.Code

	// functionID and hasFunction identify a function-call frame;
	// hasFunction is false for the module frame, which has no FunctionId.
	functionID  value.FunctionId
	hasFunction bool

	// ip is the instruction pointer within code.Bytecode. It is restored
	// verbatim on resume after a CallExternal suspension or a snapshot
	// reload.
	ip int

	// stackBase is the operand-stack depth at frame entry. ReturnValue
	// and exception unwinding both discard down to this depth before
	// pushing their result.
	stackBase int

	// returnIP and returnFrame identify where control resumes in the
	// caller on ReturnValue. returnFrame is -1 for the outermost frame
	// driven directly by Run/Resume, matching risor's StopSignal
	// idiom for "eval should stop here".
	returnIP    int
	returnFrame int

	// callLine/callColumn are reset to zero by activate; nothing in this
	// package sets them otherwise.
	callLine, callColumn int
}

// activate resets f to begin executing c from ip 0, sized for a fresh
// namespace and cell list. Mirrors risor's ActivateCode: frames are
// reused in place from the VM's fixed frame array rather than allocated
// per call.
func (f *frame) activate(c *bytecode.Code, functionID value.FunctionId, hasFunction bool, stackBase, returnIP, returnFrame int) {
	f.code = c
	f.functionID = functionID
	f.hasFunction = hasFunction
	f.ip = 0
	f.stackBase = stackBase
	f.returnIP = returnIP
	f.returnFrame = returnFrame
	f.callLine, f.callColumn = 0, 0

	numLocals := int(c.NumLocals)
	if cap(f.namespace) >= numLocals {
		f.namespace = f.namespace[:numLocals]
		for i := range f.namespace {
			f.namespace[i] = value.None
		}
	} else {
		f.namespace = make([]value.Value, numLocals)
	}
	f.cells = f.cells[:0]
}
