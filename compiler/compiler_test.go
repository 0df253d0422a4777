package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/op"
)

func rng() bytecode.SourceRange { return bytecode.SourceRange{StartLine: 1, EndLine: 1} }

func local(slot int) ast.Identifier {
	return ast.Identifier{Name: "x", Slot: slot, Scope: ast.Local, Range: rng()}
}

func intLit(v int64) *ast.Literal {
	return &ast.Literal{Range: rng(), Kind: ast.IntLit, Int: v}
}

func TestCompileModuleReturnsNoneByDefault(t *testing.T) {
	mod := &ast.Module{Body: nil, NamespaceSize: 0, Filename: "t"}
	c := New(intern.New(), "t")
	code, err := c.CompileModule(mod)
	require.NoError(t, err)
	require.NotEmpty(t, code.Bytecode)
	require.Equal(t, byte(op.LoadNone), code.Bytecode[0])
}

func TestCompileModuleAssignAndLoadLocal(t *testing.T) {
	ident := local(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: ident, Value: intLit(41)},
			&ast.ExprStmt{X: &ast.Name{Ident: ident}},
		},
		NamespaceSize: 1,
	}
	c := New(intern.New(), "t")
	code, err := c.CompileModule(mod)
	require.NoError(t, err)
	require.Equal(t, uint16(1), code.NumLocals)
	require.GreaterOrEqual(t, int(code.StackSize), 1)
}

func TestCompileExprStatementLeavesValueUnpopped(t *testing.T) {
	c := New(intern.New(), "repl")
	code, err := c.CompileExprStatement(&ast.ExprStmt{X: intLit(7)}, 0)
	require.NoError(t, err)
	// LoadSmallInt(7) then ReturnValue -- no Pop in between.
	require.NotContains(t, code.Bytecode[:len(code.Bytecode)-1], byte(op.Pop))
}

func TestCompileBoolOpEmitsShortCircuitJump(t *testing.T) {
	expr := &ast.BoolOp{Range: rng(), And: true, Left: intLit(1), Right: intLit(2)}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	err := c.compileExpr(expr)
	require.NoError(t, err)
	require.Contains(t, c.b.Finish().Bytecode, byte(op.JumpIfFalseOrPop))
}

func TestCompileIfEmitsJumpIfFalseAndJump(t *testing.T) {
	ident := local(0)
	stmt := &ast.If{
		Range: rng(),
		Test:  intLit(1),
		Body:  ast.Block{&ast.Assign{Target: ident, Value: intLit(1)}},
		OrElse: ast.Block{
			&ast.Assign{Target: ident, Value: intLit(2)},
		},
	}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	c.b.SetNumLocals(1)
	require.NoError(t, c.compileStmt(stmt))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.JumpIfFalse))
	require.Contains(t, code.Bytecode, byte(op.Jump))
}

func TestCompileTryBuildsExceptionTable(t *testing.T) {
	excType := ast.Identifier{Name: "ValueError", Slot: 0, Scope: ast.Global, Range: rng()}
	bound := local(1)
	stmt := &ast.Try{
		Range: rng(),
		Body:  ast.Block{&ast.ExprStmt{X: intLit(1)}},
		Handlers: []ast.ExceptClause{
			{
				Type:  &ast.Name{Ident: excType},
				As:    bound,
				Bound: true,
				Body:  ast.Block{&ast.ExprStmt{X: intLit(2)}},
			},
		},
	}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	c.b.SetNumLocals(2)
	require.NoError(t, c.compileStmt(stmt))
	code := c.b.Finish()
	require.Len(t, code.ExceptionTable, 1)
	require.Contains(t, code.Bytecode, byte(op.CompareExceptionMatch))
	require.Contains(t, code.Bytecode, byte(op.Reraise))
}

func TestCompileTryWithFinallyAddsSecondExceptionHandler(t *testing.T) {
	stmt := &ast.Try{
		Range:   rng(),
		Body:    ast.Block{&ast.ExprStmt{X: intLit(1)}},
		Finally: ast.Block{&ast.ExprStmt{X: intLit(3)}},
	}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	require.NoError(t, c.compileStmt(stmt))
	code := c.b.Finish()
	require.Len(t, code.ExceptionTable, 2)
}

func TestBreakOutsideLoopIsCompileError(t *testing.T) {
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	err := c.compileStmt(&ast.Break{})
	require.Error(t, err)
}

func TestJumpOffsetOverflowPanics(t *testing.T) {
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	jmp := c.b.EmitJump(op.Jump)
	require.Panics(t, func() { c.b.PatchTo(jmp, 1<<20) })
}
