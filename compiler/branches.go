package compiler

import (
	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/op"
)

// compileIf lowers `if test: body else: orelse`: test,
// JumpIfFalse to else, body, Jump to end, patch else, else body, patch end.
func (c *Compiler) compileIf(s *ast.If) error {
	if err := c.compileExpr(s.Test); err != nil {
		return err
	}
	elseLabel := c.b.EmitJump(op.JumpIfFalse)
	c.track(-1)
	depthAtBranch := c.b.StackDepth()

	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	endLabel := c.b.EmitJump(op.Jump)

	c.b.PatchHere(elseLabel)
	c.track(depthAtBranch - c.b.StackDepth())
	if err := c.compileBlock(s.OrElse); err != nil {
		return err
	}

	c.b.PatchHere(endLabel)
	return nil
}
