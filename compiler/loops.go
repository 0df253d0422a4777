package compiler

import (
	"fmt"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/op"
)

// loopScope tracks one enclosing loop's break/continue targets while its
// body is being compiled, mirroring risor's loop/break/continue
// deferred-patch idiom: `break` emits a jump now and records it for
// patching once the loop's end offset is known; `continue` emits a jump
// straight back to the loop's recorded top (the ForIter/test instruction
// itself, not the start of the body).
type loopScope struct {
	top int // offset to jump back to on continue

	// hasIterator is true for a for-loop: its operand stack carries the
	// iterator below the loop body's own values, so a break reaching the
	// loop's exit must pop it first to match the stack depth ForIter's
	// own exhaustion path leaves.
	hasIterator bool
	breaks      []bytecode.Label
}

func (c *Compiler) pushLoop(top int, hasIterator bool) {
	c.loops = append(c.loops, &loopScope{top: top, hasIterator: hasIterator})
}

func (c *Compiler) popLoop() *loopScope {
	n := len(c.loops)
	l := c.loops[n-1]
	c.loops = c.loops[:n-1]
	return l
}

func (c *Compiler) currentLoop() (*loopScope, error) {
	if len(c.loops) == 0 {
		return nil, fmt.Errorf("monty: compiler: break/continue outside a loop")
	}
	return c.loops[len(c.loops)-1], nil
}

// compileWhile lowers `while test: body`: record the loop
// top, test, JumpIfFalse to break-end, body, Jump back to top, patch.
func (c *Compiler) compileWhile(w *ast.While) error {
	top := c.b.Offset()
	c.pushLoop(top, false)

	if err := c.compileExpr(w.Test); err != nil {
		c.popLoop()
		return err
	}
	exit := c.b.EmitJump(op.JumpIfFalse)
	c.track(-1)

	if err := c.compileBlock(w.Body); err != nil {
		c.popLoop()
		return err
	}
	back := c.b.EmitJump(op.Jump)
	c.b.PatchTo(back, top)

	c.b.PatchHere(exit)
	loop := c.popLoop()
	for _, brk := range loop.breaks {
		c.b.PatchHere(brk)
	}
	return nil
}

// compileFor lowers `for target in iter: body`: evaluate
// the iterable, GetIter, record the loop top at the ForIter instruction
// itself (so continue re-polls the iterator instead of re-evaluating
// Iter), then ForIter -- which on exhaustion pops the iterator and jumps
// past the loop, and on success pushes the next element for the body to
// bind.
func (c *Compiler) compileFor(f *ast.For) error {
	if err := c.compileExpr(f.Iter); err != nil {
		return err
	}
	c.emit(op.GetIter)

	top := c.b.Offset()
	c.pushLoop(top, true)

	exit := c.b.EmitJump(op.ForIter)
	c.track(1) // ForIter's success path pushes the next element
	c.storeIdent(f.Target)

	if err := c.compileBlock(f.Body); err != nil {
		c.popLoop()
		return err
	}
	back := c.b.EmitJump(op.Jump)
	c.b.PatchTo(back, top)

	c.b.PatchHere(exit)
	c.track(-1) // ForIter's exhaustion path has already popped the iterator
	loop := c.popLoop()

	// OrElse is reachable only by falling through from ForIter exhaustion
	// (the patch just above); a break must land after it instead, so its
	// jumps are patched separately once OrElse has been emitted.
	if err := c.compileBlock(f.OrElse); err != nil {
		return err
	}

	for _, brk := range loop.breaks {
		c.b.PatchHere(brk)
	}
	return nil
}

func (c *Compiler) compileBreak(b *ast.Break) error {
	loop, err := c.currentLoop()
	if err != nil {
		return err
	}
	if loop.hasIterator {
		c.emit(op.Pop)
		c.track(-1)
	}
	jmp := c.b.EmitJump(op.Jump)
	loop.breaks = append(loop.breaks, jmp)
	if loop.hasIterator {
		c.track(1) // undo the tracker-only pop above: the iterator is still live on every other path through this point
	}
	return nil
}

func (c *Compiler) compileContinue(ct *ast.Continue) error {
	loop, err := c.currentLoop()
	if err != nil {
		return err
	}
	jmp := c.b.EmitJump(op.Jump)
	c.b.PatchTo(jmp, loop.top)
	return nil
}
