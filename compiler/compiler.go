// Package compiler lowers a scope-resolved ast.Module to bytecode.Code.
// Every name the AST hands this package already carries a resolved Scope
// and slot number, so unlike risor's compiler there is no symbol
// table here: the structural walk only has to choose the right
// opcode family for each ast.Identifier.Scope and track operand-stack
// depth.
//
// Grounded on risor's compiler/compiler.go for the overall shape
// (a single Compiler recursively descending the tree, emitting through a
// code-builder, with errors returned rather than panicked past the
// exported entry points) and for the short-circuit and/or, if/else, and
// loop break/continue deferred-patch lowerings, carried over in
// essentially the same terms risor already implements them in.
package compiler

import (
	"fmt"
	"math"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/op"
	"github.com/scostello/monty/value"
)

// Compiler lowers one compilation unit (a module, or incrementally, a
// single REPL snippet sharing a prior Interns table) to bytecode.
type Compiler struct {
	interns  *intern.Interns
	filename string

	b     *bytecode.CodeBuilder
	loops []*loopScope
}

// New creates a Compiler that interns into the given table. Pass a fresh
// intern.New() for a one-shot compile, or the REPL's persistent table to
// extend it across incremental snippets.
func New(interns *intern.Interns, filename string) *Compiler {
	return &Compiler{interns: interns, filename: filename}
}

// Interns returns the table this Compiler interned into.
func (c *Compiler) Interns() *intern.Interns { return c.interns }

// CompileModule lowers a full module to its top-level Code. Every
// FunctionDef encountered along the way is compiled into its own Code and
// registered as a bytecode.Function in the Interns table; the module Code
// itself never contains a FunctionDef's body inline.
func (c *Compiler) CompileModule(mod *ast.Module) (*bytecode.Code, error) {
	c.b = bytecode.NewCodeBuilder("<module>", c.filename)
	c.b.SetNumLocals(uint16(mod.NamespaceSize))

	if err := c.compileBlock(mod.Body); err != nil {
		return nil, err
	}
	// Every top-level expression statement already popped its value inside
	// compileStmt; a module's result is always None. REPL incremental
	// evaluation that needs the last expression's value goes through
	// CompileExprStatement instead, which leaves it on the stack.
	c.emit(op.LoadNone)
	c.emit(op.ReturnValue)

	return c.b.Finish(), nil
}

// CompileExprStatement is the REPL incremental entry point: it compiles
// one top-level statement and, if it was an expression statement, leaves
// its value on the stack instead of popping it, so the driver can report
// "the last top-level expression's value" without
// replaying anything.
func (c *Compiler) CompileExprStatement(stmt ast.Stmt, numLocals int) (*bytecode.Code, error) {
	c.b = bytecode.NewCodeBuilder("<repl>", c.filename)
	c.b.SetNumLocals(uint16(numLocals))

	if expr, ok := stmt.(*ast.ExprStmt); ok {
		if err := c.compileExpr(expr.X); err != nil {
			return nil, err
		}
	} else {
		if err := c.compileStmt(stmt); err != nil {
			return nil, err
		}
		c.emit(op.LoadNone)
	}
	c.emit(op.ReturnValue)
	return c.b.Finish(), nil
}

func (c *Compiler) compileBlock(block ast.Block) error {
	for _, stmt := range block {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(stmt ast.Stmt) error {
	c.b.AddLocation(stmt.Pos(), nil)
	switch s := stmt.(type) {
	case *ast.Pass:
		c.emit(op.Nop)
		return nil
	case *ast.ExprStmt:
		if err := c.compileExpr(s.X); err != nil {
			return err
		}
		c.emit(op.Pop)
		return nil
	case *ast.Return:
		if s.Value == nil {
			c.emit(op.LoadNone)
		} else if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(op.ReturnValue)
		return nil
	case *ast.Raise:
		return c.compileRaise(s)
	case *ast.Assert:
		return c.compileAssert(s)
	case *ast.Assign:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.storeIdent(s.Target)
		return nil
	case *ast.UnpackAssign:
		return c.compileUnpackAssign(s)
	case *ast.OpAssign:
		return c.compileOpAssign(s)
	case *ast.SubscriptAssign:
		if err := c.compileExpr(s.Object); err != nil {
			return err
		}
		if err := c.compileExpr(s.Index); err != nil {
			return err
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(op.StoreSubscr)
		c.track(-3)
		return nil
	case *ast.AttrAssign:
		if err := c.compileExpr(s.Object); err != nil {
			return err
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emitU16(op.StoreAttr, c.internStringConst(s.Attr))
		c.track(-2)
		return nil
	case *ast.While:
		return c.compileWhile(s)
	case *ast.For:
		return c.compileFor(s)
	case *ast.Break:
		return c.compileBreak(s)
	case *ast.Continue:
		return c.compileContinue(s)
	case *ast.If:
		return c.compileIf(s)
	case *ast.Try:
		return c.compileTry(s)
	case *ast.FunctionDef:
		return c.compileFunctionDef(s)
	default:
		return fmt.Errorf("monty: compiler: unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileExpr(expr ast.Expr) error {
	c.b.AddLocation(expr.Pos(), nil)
	switch e := expr.(type) {
	case *ast.Literal:
		return c.compileLiteral(e)
	case *ast.Name:
		c.loadIdent(e.Ident.Range, e.Ident)
		return nil
	case *ast.Call:
		return c.compileCall(e)
	case *ast.ExternalCall:
		return c.compileExternalCall(e)
	case *ast.AttrCall:
		return c.compileAttrCall(e)
	case *ast.AttrGet:
		if err := c.compileExpr(e.Object); err != nil {
			return err
		}
		c.emitU16(op.LoadAttr, c.internStringConst(e.Attr))
		return nil
	case *ast.BinaryExpr:
		return c.compileBinary(e)
	case *ast.CompareExpr:
		return c.compileCompare(e)
	case *ast.UnaryExpr:
		return c.compileUnary(e)
	case *ast.BoolOp:
		return c.compileBoolOp(e)
	case *ast.ListExpr:
		return c.compileSeq(e.Elems, op.BuildList)
	case *ast.TupleExpr:
		return c.compileSeq(e.Elems, op.BuildTuple)
	case *ast.SetExpr:
		return c.compileSeq(e.Elems, op.BuildSet)
	case *ast.DictExpr:
		return c.compileDict(e)
	case *ast.SubscriptExpr:
		if err := c.compileExpr(e.Object); err != nil {
			return err
		}
		if err := c.compileExpr(e.Index); err != nil {
			return err
		}
		c.emit(op.BinarySubscr)
		c.track(-1)
		return nil
	case *ast.FStringExpr:
		return c.compileFString(e)
	case *ast.CondExpr:
		return c.compileCondExpr(e)
	default:
		return fmt.Errorf("monty: compiler: unsupported expression %T", expr)
	}
}

func (c *Compiler) compileLiteral(lit *ast.Literal) error {
	switch lit.Kind {
	case ast.NoneLit:
		c.emit(op.LoadNone)
	case ast.EllipsisLit:
		// value.Value has no Ellipsis tag; the nearest representable literal is None.
		c.emit(op.LoadNone)
	case ast.BoolLit:
		if lit.Bool {
			c.emit(op.LoadTrue)
		} else {
			c.emit(op.LoadFalse)
		}
	case ast.IntLit:
		if lit.Int >= math.MinInt8 && lit.Int <= math.MaxInt8 {
			c.emitI8(op.LoadSmallInt, int8(lit.Int))
		} else {
			c.emitU16(op.LoadConst, c.b.AddConstant(value.Int(lit.Int)))
		}
	case ast.FloatLit:
		c.emitU16(op.LoadConst, c.b.AddConstant(value.Float(lit.Float)))
	case ast.StrLit:
		id := c.interns.InternString(lit.Str)
		c.emitU16(op.LoadConst, c.b.AddConstant(value.InternString(id)))
	case ast.BytesLit:
		id := c.interns.InternBytes(lit.Bytes)
		c.emitU16(op.LoadConst, c.b.AddConstant(value.InternBytes(id)))
	default:
		return fmt.Errorf("monty: compiler: unsupported literal kind %v", lit.Kind)
	}
	c.track(1)
	return nil
}

func (c *Compiler) compileBinary(e *ast.BinaryExpr) error {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	code, err := binaryOpcode(e.Op)
	if err != nil {
		return err
	}
	c.b.AddLocation(e.Range, focusOf(e.OpRange))
	c.emit(code)
	c.track(-1)
	return nil
}

func (c *Compiler) compileCompare(e *ast.CompareExpr) error {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	code, err := compareOpcode(e.Op)
	if err != nil {
		return err
	}
	c.b.AddLocation(e.Range, focusOf(e.OpRange))
	c.emit(code)
	c.track(-1)
	return nil
}

func (c *Compiler) compileUnary(e *ast.UnaryExpr) error {
	if err := c.compileExpr(e.Operand); err != nil {
		return err
	}
	switch e.Op {
	case ast.Not:
		c.emit(op.UnaryNot)
	case ast.Neg:
		c.emit(op.UnaryNeg)
	case ast.Pos:
		c.emit(op.UnaryPos)
	case ast.Invert:
		c.emit(op.UnaryInvert)
	default:
		return fmt.Errorf("monty: compiler: unsupported unary op %v", e.Op)
	}
	return nil
}

// compileBoolOp lowers short-circuit `and`/`or`: evaluate
// left, emit JumpIfFalseOrPop (and) / JumpIfTrueOrPop (or), evaluate
// right, patch the jump to land after it. The *OrPop opcodes don't pop
// when they take the branch, so the short-circuited value itself becomes
// the expression's result with no extra bookkeeping.
func (c *Compiler) compileBoolOp(e *ast.BoolOp) error {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	var skip bytecode.Label
	if e.And {
		skip = c.b.EmitJump(op.JumpIfFalseOrPop)
	} else {
		skip = c.b.EmitJump(op.JumpIfTrueOrPop)
	}
	c.track(-1) // models the fallthrough pop; the taken branch already recorded its max depth above
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	c.b.PatchHere(skip)
	return nil
}

func (c *Compiler) compileCondExpr(e *ast.CondExpr) error {
	if err := c.compileExpr(e.Test); err != nil {
		return err
	}
	elseLabel := c.b.EmitJump(op.JumpIfFalse)
	c.track(-1)
	if err := c.compileExpr(e.Body); err != nil {
		return err
	}
	endLabel := c.b.EmitJump(op.Jump)
	c.b.PatchHere(elseLabel)
	c.track(-1) // body's pushed value is not present on the else path
	if err := c.compileExpr(e.OrElse); err != nil {
		return err
	}
	c.b.PatchHere(endLabel)
	return nil
}

func (c *Compiler) compileSeq(elems []ast.Expr, code op.Code) error {
	for _, el := range elems {
		if err := c.compileExpr(el); err != nil {
			return err
		}
	}
	if len(elems) > math.MaxUint16 {
		return fmt.Errorf("monty: compiler: sequence literal exceeds %d elements", math.MaxUint16)
	}
	c.emitU16(code, uint16(len(elems)))
	c.track(-len(elems) + 1)
	return nil
}

func (c *Compiler) compileDict(e *ast.DictExpr) error {
	for i := range e.Keys {
		if err := c.compileExpr(e.Keys[i]); err != nil {
			return err
		}
		if err := c.compileExpr(e.Vals[i]); err != nil {
			return err
		}
	}
	n := len(e.Keys)
	if n > math.MaxUint16 {
		return fmt.Errorf("monty: compiler: dict literal exceeds %d entries", math.MaxUint16)
	}
	c.emitU16(op.BuildDict, uint16(n))
	c.track(-2*n + 1)
	return nil
}

func (c *Compiler) compileFString(e *ast.FStringExpr) error {
	for _, part := range e.Parts {
		if part.Expr == nil {
			id := c.interns.InternString(part.Literal)
			c.emitU16(op.LoadConst, c.b.AddConstant(value.InternString(id)))
			c.track(1)
			continue
		}
		if err := c.compileExpr(part.Expr); err != nil {
			return err
		}
	}
	if len(e.Parts) > math.MaxUint16 {
		return fmt.Errorf("monty: compiler: f-string exceeds %d parts", math.MaxUint16)
	}
	c.emitU16(op.BuildFString, uint16(len(e.Parts)))
	c.track(-len(e.Parts) + 1)
	return nil
}

func (c *Compiler) compileRaise(s *ast.Raise) error {
	if s.Value == nil {
		c.emit(op.Reraise)
		return nil
	}
	if err := c.compileExpr(s.Value); err != nil {
		return err
	}
	if s.Cause != nil {
		if err := c.compileExpr(s.Cause); err != nil {
			return err
		}
		c.emit(op.RaiseFrom)
		c.track(-2)
		return nil
	}
	c.emit(op.Raise)
	c.track(-1)
	return nil
}

func (c *Compiler) compileAssert(s *ast.Assert) error {
	if err := c.compileExpr(s.Test); err != nil {
		return err
	}
	okLabel := c.b.EmitJump(op.JumpIfTrue)
	c.track(-1)
	if s.Msg != nil {
		if err := c.compileExpr(s.Msg); err != nil {
			return err
		}
	} else {
		c.emit(op.LoadNone)
		c.track(1)
	}
	c.emit(op.Raise)
	c.track(-1)
	c.b.PatchHere(okLabel)
	return nil
}

func (c *Compiler) compileUnpackAssign(s *ast.UnpackAssign) error {
	if err := c.compileExpr(s.Value); err != nil {
		return err
	}
	n := len(s.Targets)
	if s.StarIndex < 0 {
		if n > math.MaxUint8 {
			return fmt.Errorf("monty: compiler: unpack target count exceeds %d", math.MaxUint8)
		}
		c.emitU8(op.UnpackSequence, uint8(n))
		c.track(-1 + n)
		for _, t := range s.Targets {
			c.storeIdent(t)
		}
		return nil
	}
	before := s.StarIndex
	after := n - before - 1
	c.emitU8U8(op.UnpackEx, uint8(before), uint8(after))
	c.track(-1 + n)
	for _, t := range s.Targets {
		c.storeIdent(t)
	}
	return nil
}

func (c *Compiler) compileOpAssign(s *ast.OpAssign) error {
	c.loadIdent(s.Range, s.Target)
	if err := c.compileExpr(s.Value); err != nil {
		return err
	}
	code, err := inplaceOpcode(s.Op)
	if err != nil {
		return err
	}
	c.emit(code)
	c.track(-1)
	c.storeIdent(s.Target)
	return nil
}

// loadIdent emits the load instruction matching ident's resolved scope.
func (c *Compiler) loadIdent(_ bytecode.SourceRange, ident ast.Identifier) {
	switch ident.Scope {
	case ast.Local:
		switch ident.Slot {
		case 0:
			c.emit(op.LoadLocal0)
		case 1:
			c.emit(op.LoadLocal1)
		case 2:
			c.emit(op.LoadLocal2)
		case 3:
			c.emit(op.LoadLocal3)
		default:
			if ident.Slot <= math.MaxUint8 {
				c.emitU8(op.LoadLocal, uint8(ident.Slot))
			} else {
				c.emitU16(op.LoadLocalW, uint16(ident.Slot))
			}
		}
	case ast.Global:
		c.emitU16(op.LoadGlobal, uint16(ident.Slot))
	case ast.Cell:
		c.emitU16(op.LoadCell, uint16(ident.Slot))
	}
	c.track(1)
}

func (c *Compiler) storeIdent(ident ast.Identifier) {
	switch ident.Scope {
	case ast.Local:
		if ident.Slot <= math.MaxUint8 {
			c.emitU8(op.StoreLocal, uint8(ident.Slot))
		} else {
			c.emitU16(op.StoreLocalW, uint16(ident.Slot))
		}
	case ast.Global:
		c.emitU16(op.StoreGlobal, uint16(ident.Slot))
	case ast.Cell:
		c.emitU16(op.StoreCell, uint16(ident.Slot))
	}
	c.track(-1)
}

func (c *Compiler) internStringConst(s string) uint16 {
	id := c.interns.InternString(s)
	return c.b.AddConstant(value.InternString(id))
}

// track adjusts the builder's tracked operand stack depth.
func (c *Compiler) track(delta int) { c.b.TrackStack(delta) }

func (c *Compiler) emit(code op.Code) int            { return c.b.Emit(code) }
func (c *Compiler) emitU8(code op.Code, a uint8) int { return c.b.EmitU8(code, a) }
func (c *Compiler) emitI8(code op.Code, a int8) int  { return c.b.EmitI8(code, a) }
func (c *Compiler) emitU16(code op.Code, a uint16) uint16 {
	c.b.EmitU16(code, a)
	return a
}
func (c *Compiler) emitU8U8(code op.Code, a, b uint8) int { return c.b.EmitU8U8(code, a, b) }
func (c *Compiler) emitU16U8(code op.Code, a uint16, b uint8) int {
	return c.b.EmitU16U8(code, a, b)
}

// focusOf returns r as a location entry's focus sub-range, or nil if r is
// the zero value -- a producer that doesn't distinguish an operator's own
// position from the whole expression's leaves OpRange unset, in which
// case no narrower focus is recorded.
func focusOf(r bytecode.SourceRange) *bytecode.SourceRange {
	if r == (bytecode.SourceRange{}) {
		return nil
	}
	return &r
}

func binaryOpcode(o ast.BinaryOp) (op.Code, error) {
	switch o {
	case ast.Add:
		return op.BinaryAdd, nil
	case ast.Sub:
		return op.BinarySub, nil
	case ast.Mul:
		return op.BinaryMul, nil
	case ast.Div:
		return op.BinaryDiv, nil
	case ast.FloorDiv:
		return op.BinaryFloorDiv, nil
	case ast.Mod:
		return op.BinaryMod, nil
	case ast.Pow:
		return op.BinaryPow, nil
	case ast.BitAnd:
		return op.BinaryAnd, nil
	case ast.BitOr:
		return op.BinaryOr, nil
	case ast.BitXor:
		return op.BinaryXor, nil
	case ast.LShift:
		return op.BinaryLShift, nil
	case ast.RShift:
		return op.BinaryRShift, nil
	case ast.MatMul:
		return op.BinaryMatMul, nil
	default:
		return op.Invalid, fmt.Errorf("monty: compiler: unknown binary op %v", o)
	}
}

func inplaceOpcode(o ast.BinaryOp) (op.Code, error) {
	switch o {
	case ast.Add:
		return op.InplaceAdd, nil
	case ast.Sub:
		return op.InplaceSub, nil
	case ast.Mul:
		return op.InplaceMul, nil
	case ast.Div:
		return op.InplaceDiv, nil
	case ast.FloorDiv:
		return op.InplaceFloorDiv, nil
	case ast.Mod:
		return op.InplaceMod, nil
	case ast.Pow:
		return op.InplacePow, nil
	case ast.BitAnd:
		return op.InplaceAnd, nil
	case ast.BitOr:
		return op.InplaceOr, nil
	case ast.BitXor:
		return op.InplaceXor, nil
	case ast.LShift:
		return op.InplaceLShift, nil
	case ast.RShift:
		return op.InplaceRShift, nil
	case ast.MatMul:
		return op.InplaceMatMul, nil
	default:
		return op.Invalid, fmt.Errorf("monty: compiler: unknown in-place op %v", o)
	}
}

func compareOpcode(o ast.CmpOp) (op.Code, error) {
	switch o {
	case ast.Eq:
		return op.CompareEq, nil
	case ast.Ne:
		return op.CompareNe, nil
	case ast.Lt:
		return op.CompareLt, nil
	case ast.Le:
		return op.CompareLe, nil
	case ast.Gt:
		return op.CompareGt, nil
	case ast.Ge:
		return op.CompareGe, nil
	case ast.Is:
		return op.CompareIs, nil
	case ast.IsNot:
		return op.CompareIsNot, nil
	case ast.In:
		return op.CompareIn, nil
	case ast.NotIn:
		return op.CompareNotIn, nil
	default:
		return op.Invalid, fmt.Errorf("monty: compiler: unknown comparison op %v", o)
	}
}
