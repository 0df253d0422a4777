package ast

import "github.com/scostello/monty/bytecode"

// Block is a sequence of statements, compiled in order.
type Block []Stmt

// Pass is a no-op statement, kept for producers that emit one rather than
// omitting empty blocks outright.
type Pass struct {
	Range bytecode.SourceRange
}

func (p *Pass) Pos() bytecode.SourceRange { return p.Range }
func (p *Pass) stmtNode()                 {}

// ExprStmt evaluates an expression and discards its value (Pop).
type ExprStmt struct {
	Range bytecode.SourceRange
	X     Expr
}

func (e *ExprStmt) Pos() bytecode.SourceRange { return e.Range }
func (e *ExprStmt) stmtNode()                 {}

// Return returns a value from the enclosing function. Value is nil for a
// bare `return`, lowered as LoadNone followed by ReturnValue.
type Return struct {
	Range bytecode.SourceRange
	Value Expr
}

func (r *Return) Pos() bytecode.SourceRange { return r.Range }
func (r *Return) stmtNode()                 {}

// Raise raises an exception. Value is nil for a bare `raise` inside an
// except handler, lowered to Reraise. Cause, when non-nil, lowers to
// RaiseFrom instead of Raise.
type Raise struct {
	Range bytecode.SourceRange
	Value Expr
	Cause Expr
}

func (r *Raise) Pos() bytecode.SourceRange { return r.Range }
func (r *Raise) stmtNode()                 {}

// Assert checks Test's truthiness and raises with Msg (if present) when it
// is false.
type Assert struct {
	Range bytecode.SourceRange
	Test  Expr
	Msg   Expr
}

func (a *Assert) Pos() bytecode.SourceRange { return a.Range }
func (a *Assert) stmtNode()                 {}

// Assign is a simple single-target assignment.
type Assign struct {
	Range  bytecode.SourceRange
	Target Identifier
	Value  Expr
}

func (a *Assign) Pos() bytecode.SourceRange { return a.Range }
func (a *Assign) stmtNode()                 {}

// UnpackAssign is `a, b, ... = value`, lowered via UnpackSequence/UnpackEx.
type UnpackAssign struct {
	Range   bytecode.SourceRange
	Targets []Identifier
	// StarIndex is the index within Targets of a starred target (`*rest`),
	// or -1 if there is none. A non-negative StarIndex selects UnpackEx
	// lowering; -1 selects UnpackSequence.
	StarIndex int
	Value     Expr
}

func (u *UnpackAssign) Pos() bytecode.SourceRange { return u.Range }
func (u *UnpackAssign) stmtNode()                 {}

// OpAssign is an augmented assignment, e.g. `x += 1`, lowered to the
// matching Inplace* opcode.
type OpAssign struct {
	Range  bytecode.SourceRange
	Target Identifier
	Op     BinaryOp
	Value  Expr
}

func (o *OpAssign) Pos() bytecode.SourceRange { return o.Range }
func (o *OpAssign) stmtNode()                 {}

// SubscriptAssign is `object[index] = value`.
type SubscriptAssign struct {
	Range  bytecode.SourceRange
	Object Expr
	Index  Expr
	Value  Expr
}

func (s *SubscriptAssign) Pos() bytecode.SourceRange { return s.Range }
func (s *SubscriptAssign) stmtNode()                 {}

// AttrAssign is `object.attr = value`.
type AttrAssign struct {
	Range  bytecode.SourceRange
	Object Expr
	Attr   string
	Value  Expr
}

func (a *AttrAssign) Pos() bytecode.SourceRange { return a.Range }
func (a *AttrAssign) stmtNode()                 {}

// While is a condition-guarded loop. Supplemented relative to
// original_source's Node enum, which has no While variant (the source
// language it models expresses iteration only via `for`); added here in
// risor's statement-node idiom so a `while` surface form has
// somewhere to lower to.
type While struct {
	Range bytecode.SourceRange
	Test  Expr
	Body  Block
}

func (w *While) Pos() bytecode.SourceRange { return w.Range }
func (w *While) stmtNode()                 {}

// For iterates Iter, binding each element to Target in turn.
type For struct {
	Range  bytecode.SourceRange
	Target Identifier
	Iter   Expr
	Body   Block
	OrElse Block // runs if the loop completes without a break
}

func (f *For) Pos() bytecode.SourceRange { return f.Range }
func (f *For) stmtNode()                 {}

// Break and Continue are loop-control statements. Their target loop is
// determined lexically by the compiler, which tracks the innermost
// enclosing loop's break/continue patch lists during the structural walk.
type Break struct {
	Range bytecode.SourceRange
}

func (b *Break) Pos() bytecode.SourceRange { return b.Range }
func (b *Break) stmtNode()                 {}

type Continue struct {
	Range bytecode.SourceRange
}

func (c *Continue) Pos() bytecode.SourceRange { return c.Range }
func (c *Continue) stmtNode()                 {}

// If is a conditional statement.
type If struct {
	Range  bytecode.SourceRange
	Test   Expr
	Body   Block
	OrElse Block
}

func (i *If) Pos() bytecode.SourceRange { return i.Range }
func (i *If) stmtNode()                 {}

// ExceptClause is one `except` handler within a Try.
type ExceptClause struct {
	// Type is the exception type expression tested via
	// CompareExceptionMatch; nil matches any exception (a bare `except:`).
	Type Expr
	// As is the local the matched exception is bound to via StoreLocal;
	// Bound is false for a handler with no `as name` clause.
	As    Identifier
	Bound bool
	Body  Block
}

// Try is a try/except/else/finally block, lowered through the exception
// table rather than a runtime handler stack.
type Try struct {
	Range   bytecode.SourceRange
	Body    Block
	Handlers []ExceptClause
	Else    Block
	Finally Block
}

func (t *Try) Pos() bytecode.SourceRange { return t.Range }
func (t *Try) stmtNode()                 {}

// FunctionDef declares a function, producing a Function constant the
// enclosing Code's MakeFunction/MakeClosure instruction constructs at
// runtime.
type FunctionDef struct {
	Range bytecode.SourceRange

	Name   Identifier // the function's own binding in the enclosing scope
	Params []Param
	// NamespaceSize is the number of local slots the function's frame
	// needs: parameters, then cell variables, then ordinary locals.
	NamespaceSize int
	// FreeVarSlots lists, for each free variable the function closes
	// over, the enclosing frame's namespace slot holding its cell. Its
	// length is the closure's cell_count; non-empty selects MakeClosure
	// lowering over MakeFunction.
	FreeVarSlots []int
	// CellParamIndices maps each of the function's own cell variables to
	// the parameter index it shadows. Every own cell is a parameter; no
	// entry value stands for a cell that is not one.
	CellParamIndices []int
	Body             Block
}

func (f *FunctionDef) Pos() bytecode.SourceRange { return f.Range }
func (f *FunctionDef) stmtNode()                 {}

// Param is one parameter in a function signature.
type Param struct {
	Name    string
	Default Expr // nil if the parameter has no default
	IsVararg bool
	IsKwarg  bool
}

// Module is the top-level compilation unit: a flat statement list compiled
// into the module-level Code, plus the number of global namespace slots
// its names were resolved into.
type Module struct {
	Body          Block
	NamespaceSize int
	Filename      string
}

func (m *Module) Pos() bytecode.SourceRange {
	if len(m.Body) > 0 {
		return m.Body[0].Pos()
	}
	return bytecode.SourceRange{}
}
