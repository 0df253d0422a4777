// Package ast defines the scope-resolved abstract syntax tree the compiler
// consumes. Parsing and scope resolution happen entirely
// outside this module's core:
// every Identifier a producer hands the compiler must already carry a
// resolved Scope and slot number.
//
// Shape grounded on original_source/crates/monty/src/expressions.rs's
// generic `Node<F>`/`Expr` enums and on risor's ast package for the
// Node/Stmt/Expr interface idiom, adapted from risor's unresolved,
// parse-time names to this package's pre-resolved Local/Global/Cell slots.
package ast

import "github.com/scostello/monty/bytecode"

// Scope indicates which namespace a resolved name belongs to, matching the
// three namespace kinds the virtual machine implements.
type Scope int

const (
	Local Scope = iota
	Global
	Cell
)

func (s Scope) String() string {
	switch s {
	case Local:
		return "local"
	case Global:
		return "global"
	case Cell:
		return "cell"
	default:
		return "unknown"
	}
}

// Identifier names a variable with its resolved namespace slot. The slot's
// meaning depends on Scope: an index into the current frame's namespace for
// Local, an index into the module namespace for Global, or an index into
// the current frame's cell list for Cell.
type Identifier struct {
	Name  string
	Slot  int
	Scope Scope
	Range bytecode.SourceRange
}

// Node is implemented by every statement and expression.
type Node interface {
	Pos() bytecode.SourceRange
}

// Expr is implemented by expression nodes: those that evaluate to a Value.
type Expr interface {
	Node
	exprNode()
}

// Stmt is implemented by statement nodes: those compiled for side effect.
type Stmt interface {
	Node
	stmtNode()
}

// BinaryOp identifies a binary arithmetic or bitwise operator, mirroring
// op's BinaryAdd..BinaryMatMul family one-for-one.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	FloorDiv
	Mod
	Pow
	BitAnd
	BitOr
	BitXor
	LShift
	RShift
	MatMul
)

// CmpOp identifies a comparison operator, mirroring op's CompareEq..NotIn
// family one-for-one.
type CmpOp int

const (
	Eq CmpOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
	Is
	IsNot
	In
	NotIn
)

// UnaryOp identifies a unary operator.
type UnaryOp int

const (
	Not UnaryOp = iota
	Neg
	Pos
	Invert
)
