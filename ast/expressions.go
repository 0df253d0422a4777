package ast

import "github.com/scostello/monty/bytecode"

// Literal is a constant value produced purely by the producer feeding the
// compiler, kept detached from the runtime heap so parse-time
// transformations never participate in reference-count semantics
// (original_source/crates/monty/src/expressions.rs's rationale for its own
// Literal enum, carried unchanged here).
type Literal struct {
	Range bytecode.SourceRange

	Kind LiteralKind
	Bool bool
	Int  int64
	Float float64
	Str  string // for StrLit; the compiler interns it into the constant pool
	Bytes []byte
}

type LiteralKind int

const (
	NoneLit LiteralKind = iota
	BoolLit
	IntLit
	FloatLit
	StrLit
	BytesLit
	EllipsisLit
)

func (l *Literal) Pos() bytecode.SourceRange { return l.Range }
func (l *Literal) exprNode()                 {}

// Name is a resolved variable reference.
type Name struct {
	Ident Identifier
}

func (n *Name) Pos() bytecode.SourceRange { return n.Ident.Range }
func (n *Name) exprNode()                 {}

// Call is a function-call expression. Callee may itself be any Expr (a
// Name, an AttrGet, etc); the compiler always lowers it to CallFunction,
// or CallFunctionKw when keyword arguments are present. CallMethod is
// emitted only for AttrCall.
type Call struct {
	Range  bytecode.SourceRange
	Callee Expr
	Args   []Expr
	// Kwargs holds keyword arguments in call-site order; empty for a
	// purely positional call, which the compiler lowers to CallFunction
	// instead of CallFunctionKw.
	Kwargs []KwArg
}

type KwArg struct {
	Name  string
	Value Expr
}

func (c *Call) Pos() bytecode.SourceRange { return c.Range }
func (c *Call) exprNode()                 {}

// ExternalCall invokes a host-serviced external function by name, lowered
// to CallExternal rather than CallFunction. Unlike an ordinary Call, the
// target is not looked up through any namespace: the producer emits this
// node directly at every call site it already knows targets a named
// external function (grounded on original_source/crates/monty/src/repl.rs,
// where external function names are a fixed list known before
// compilation, exactly like a global name list). The VM suspends here and
// yields control to the host.
type ExternalCall struct {
	Range bytecode.SourceRange
	Name  string
	Args  []Expr
}

func (e *ExternalCall) Pos() bytecode.SourceRange { return e.Range }
func (e *ExternalCall) exprNode()                 {}

// AttrCall is a method-call expression: `object.attr(args)`, lowered to
// CallMethod rather than a separate AttrGet+CallFunction pair.
type AttrCall struct {
	Range  bytecode.SourceRange
	Object Expr
	Attr   string
	Args   []Expr
}

func (c *AttrCall) Pos() bytecode.SourceRange { return c.Range }
func (c *AttrCall) exprNode()                 {}

// AttrGet is attribute access: `object.attr`.
type AttrGet struct {
	Range  bytecode.SourceRange
	Object Expr
	Attr   string
}

func (a *AttrGet) Pos() bytecode.SourceRange { return a.Range }
func (a *AttrGet) exprNode()                 {}

// BinaryExpr is an arithmetic/bitwise binary operation. OpRange is the
// operator token's own span, narrower than Range; the compiler records it
// as the location table's focus sub-range.
type BinaryExpr struct {
	Range   bytecode.SourceRange
	Left    Expr
	Op      BinaryOp
	OpRange bytecode.SourceRange
	Right   Expr
}

func (b *BinaryExpr) Pos() bytecode.SourceRange { return b.Range }
func (b *BinaryExpr) exprNode()                 {}

// CompareExpr is a comparison operation. See BinaryExpr.OpRange.
type CompareExpr struct {
	Range   bytecode.SourceRange
	Left    Expr
	Op      CmpOp
	OpRange bytecode.SourceRange
	Right   Expr
}

func (c *CompareExpr) Pos() bytecode.SourceRange { return c.Range }
func (c *CompareExpr) exprNode()                 {}

// UnaryExpr is a unary operation.
type UnaryExpr struct {
	Range   bytecode.SourceRange
	Op      UnaryOp
	Operand Expr
}

func (u *UnaryExpr) Pos() bytecode.SourceRange { return u.Range }
func (u *UnaryExpr) exprNode()                 {}

// BoolOp is short-circuiting `and`/`or`, kept distinct from BinaryExpr so
// the compiler can apply JumpIfFalseOrPop/JumpIfTrueOrPop lowering instead
// of eagerly evaluating both operands.
type BoolOp struct {
	Range bytecode.SourceRange
	And   bool // false means Or
	Left  Expr
	Right Expr
}

func (b *BoolOp) Pos() bytecode.SourceRange { return b.Range }
func (b *BoolOp) exprNode()                 {}

// ListExpr is a list literal.
type ListExpr struct {
	Range bytecode.SourceRange
	Elems []Expr
}

func (l *ListExpr) Pos() bytecode.SourceRange { return l.Range }
func (l *ListExpr) exprNode()                 {}

// TupleExpr is a tuple literal.
type TupleExpr struct {
	Range bytecode.SourceRange
	Elems []Expr
}

func (t *TupleExpr) Pos() bytecode.SourceRange { return t.Range }
func (t *TupleExpr) exprNode()                 {}

// SetExpr is a set literal. `{}` is always a DictExpr, never an empty
// SetExpr, matching the source language's own disambiguation.
type SetExpr struct {
	Range bytecode.SourceRange
	Elems []Expr
}

func (s *SetExpr) Pos() bytecode.SourceRange { return s.Range }
func (s *SetExpr) exprNode()                 {}

// DictExpr is a dict literal.
type DictExpr struct {
	Range bytecode.SourceRange
	Keys  []Expr
	Vals  []Expr
}

func (d *DictExpr) Pos() bytecode.SourceRange { return d.Range }
func (d *DictExpr) exprNode()                 {}

// SubscriptExpr is `object[index]`.
type SubscriptExpr struct {
	Range  bytecode.SourceRange
	Object Expr
	Index  Expr
}

func (s *SubscriptExpr) Pos() bytecode.SourceRange { return s.Range }
func (s *SubscriptExpr) exprNode()                 {}

// FStringPart is one piece of an interpolated string: either a literal
// chunk or an expression to be formatted and concatenated in.
type FStringPart struct {
	Literal string // used when Expr == nil
	Expr    Expr
}

// FStringExpr is an interpolated string literal.
type FStringExpr struct {
	Range bytecode.SourceRange
	Parts []FStringPart
}

func (f *FStringExpr) Pos() bytecode.SourceRange { return f.Range }
func (f *FStringExpr) exprNode()                 {}

// CondExpr is the ternary `body if test else orelse`. Exactly one of
// Body/OrElse is evaluated, matching BoolOp's short-circuit discipline.
type CondExpr struct {
	Range  bytecode.SourceRange
	Test   Expr
	Body   Expr
	OrElse Expr
}

func (c *CondExpr) Pos() bytecode.SourceRange { return c.Range }
func (c *CondExpr) exprNode()                 {}
