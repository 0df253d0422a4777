package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/op"
)

func TestCompileWhileLoopsBackToTop(t *testing.T) {
	w := &ast.While{
		Range: rng(),
		Test:  intLit(1),
		Body:  ast.Block{&ast.Break{}},
	}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	require.NoError(t, c.compileStmt(w))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.JumpIfFalse))
	require.Contains(t, code.Bytecode, byte(op.Jump))
}

func TestCompileForUsesGetIterAndForIter(t *testing.T) {
	target := local(0)
	f := &ast.For{
		Range: rng(),
		Target: target,
		Iter:  intLit(1),
		Body:  ast.Block{&ast.ExprStmt{X: &ast.Name{Ident: target}}},
	}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	c.b.SetNumLocals(1)
	require.NoError(t, c.compileStmt(f))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.GetIter))
	require.Contains(t, code.Bytecode, byte(op.ForIter))
}

// TestCompileForBreakMatchesExhaustionStackDepth verifies a mid-body break
// doesn't trip the builder's stack-underflow panic -- it must pop the
// iterator itself, matching ForIter's own exhaustion-path pop, even though
// break and exhaustion now land at different offsets (break skips OrElse).
func TestCompileForBreakMatchesExhaustionStackDepth(t *testing.T) {
	target := local(0)
	f := &ast.For{
		Range:  rng(),
		Target: target,
		Iter:   intLit(1),
		Body:   ast.Block{&ast.Break{}},
	}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	c.b.SetNumLocals(1)
	require.NotPanics(t, func() {
		require.NoError(t, c.compileStmt(f))
	})
}

func TestCompileContinueJumpsToForIterNotIterEvaluation(t *testing.T) {
	target := local(0)
	f := &ast.For{
		Range:  rng(),
		Target: target,
		Iter:   intLit(1),
		Body:   ast.Block{&ast.Continue{}},
	}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	c.b.SetNumLocals(1)
	require.NoError(t, c.compileStmt(f))
	code := c.b.Finish()
	// GetIter appears exactly once: continue must not re-evaluate Iter.
	count := 0
	for _, by := range code.Bytecode {
		if by == byte(op.GetIter) {
			count++
		}
	}
	require.Equal(t, 1, count)
}
