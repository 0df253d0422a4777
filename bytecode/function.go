package bytecode

import "github.com/scostello/monty/value"

// Function is the compiler's output for one function definition: an
// immutable template from which the VM constructs runtime closures. It is
// interned by the intern package and addressed everywhere else by
// value.FunctionId.
type Function struct {
	Name value.StringId

	// Parameters are the positional parameter names, in declaration order.
	Parameters []value.StringId

	// NumPositional is the count of positional (non-vararg, non-kwarg)
	// parameters, including those with defaults.
	NumPositional int

	// NumDefaults is the count of trailing positional parameters that
	// have a default value. The compiler evaluates each default
	// expression in the *defining* scope and leaves NumDefaults values on
	// the operand stack immediately before emitting MakeFunction/
	// MakeClosure; the instruction pops exactly that many.
	NumDefaults int

	HasVararg bool
	HasKwarg  bool

	// NamespaceSize is the number of local slots the function's frame
	// needs: parameters + explicit locals + cells.
	NamespaceSize uint16

	// FreeVars lists, for each free variable referenced by this
	// function's body, the namespace slot in the *enclosing* frame whose
	// cell should be captured when a closure over this Function is made.
	FreeVars []uint16

	// CellCount is the number of local slots in this function's own
	// namespace that are cells shared with nested closures.
	CellCount uint16

	// CellParamIndices lists, for each of this function's own CellCount
	// cells, the positional-parameter index (into Parameters) whose
	// incoming argument becomes that cell's initial content. A function
	// can only create a cell for one of its own parameters, never for a
	// plain local -- original_source's capture analysis only promotes
	// parameters this way.
	CellParamIndices []uint16

	Code *Code
}

// RequiredCount is the number of positional arguments that must be
// supplied by the caller (no default available).
func (f *Function) RequiredCount() int {
	return f.NumPositional - f.NumDefaults
}
