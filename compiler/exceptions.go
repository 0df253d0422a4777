package compiler

import (
	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/op"
)

// compileTry lowers try/except/else/finally through the static exception
// table rather than a runtime handler stack: the
// protected body is covered by an exception-table entry pointing at a
// dispatcher that tests the raised value against each except clause in
// turn via `LoadGlobal <ExcType>` + `CompareExceptionMatch`. A `finally`
// clause is compiled twice -- once inlined after the normal/else exit,
// once as the target of a second, wider exception-table entry (covering
// the body, the dispatcher and the else block) that runs it before
// re-raising -- so it runs once when the try statement completes normally
// or exits by an exception, without a runtime unwind-protect mechanism.
// A return, break or continue that leaves the body, a handler or the
// else block jumps past both copies and does not run the finally clause.
func (c *Compiler) compileTry(t *ast.Try) error {
	depth := uint16(c.b.StackDepth())

	start := c.b.Offset()
	if err := c.compileBlock(t.Body); err != nil {
		return err
	}
	toNormal := c.b.EmitJump(op.Jump)

	dispatcherStart := c.b.Offset()
	c.track(1) // the exception value the VM pushes on entry to the handler

	var clauseEnds []bytecode.Label
	for _, h := range t.Handlers {
		var skip bytecode.Label
		matchesAny := h.Type == nil
		if !matchesAny {
			if err := c.compileExpr(h.Type); err != nil {
				return err
			}
			c.emit(op.CompareExceptionMatch) // pops the type operand, pushes a bool; net stack effect zero
			skip = c.b.EmitJump(op.JumpIfFalse)
			c.track(-1)
		}

		if h.Bound {
			c.storeIdent(h.As)
		} else {
			c.emit(op.Pop)
			c.track(-1)
		}
		if err := c.compileBlock(h.Body); err != nil {
			return err
		}
		if h.Bound {
			c.deleteLocalIfNarrow(h.As)
		}
		c.emit(op.ClearException)
		end := c.b.EmitJump(op.Jump)
		clauseEnds = append(clauseEnds, end)

		if !matchesAny {
			c.b.PatchHere(skip)
		}
		// Every path reaching here -- whether this clause's type test
		// failed, or (matchesAny) this was a bare `except:` that was
		// never reached because the loop doesn't fall into it twice --
		// resumes with exactly the exception value on the stack, same
		// as dispatcher entry.
		c.track(int(depth) + 1 - c.b.StackDepth())
	}
	c.track(-1) // Reraise consumes the still-unclaimed exception value
	c.emit(op.Reraise)
	dispatcherEnd := c.b.Offset()

	c.b.AddExceptionHandler(bytecode.ExceptionHandler{
		Start: uint32(start), End: uint32(dispatcherStart), Handler: uint32(dispatcherStart), StackDepth: depth,
	})

	for _, end := range clauseEnds {
		c.b.PatchHere(end)
	}
	c.track(int(depth) - c.b.StackDepth())
	c.b.PatchHere(toNormal)

	if err := c.compileBlock(t.Else); err != nil {
		return err
	}
	elseEnd := c.b.Offset()

	if len(t.Finally) == 0 {
		return nil
	}

	if err := c.compileBlock(t.Finally); err != nil {
		return err
	}
	afterAll := c.b.EmitJump(op.Jump)

	finallyReraise := c.b.Offset()
	c.track(int(depth) + 1 - c.b.StackDepth())
	if err := c.compileBlock(t.Finally); err != nil {
		return err
	}
	c.emit(op.Reraise)

	c.b.AddExceptionHandler(bytecode.ExceptionHandler{
		Start: uint32(start), End: uint32(elseEnd), Handler: uint32(finallyReraise), StackDepth: depth,
	})

	c.b.PatchHere(afterAll)
	c.track(int(depth) - c.b.StackDepth())
	return nil
}

// deleteLocalIfNarrow emits DeleteLocal for the except-clause binding.
// DeleteLocal only has a u8-width encoding; a function with
// more than 256 locals leaves the exception binding's slot un-cleared
// rather than fail compilation over a cosmetic cleanup step.
func (c *Compiler) deleteLocalIfNarrow(ident ast.Identifier) {
	if ident.Scope == ast.Local && ident.Slot <= 255 {
		c.emitU8(op.DeleteLocal, uint8(ident.Slot))
	}
}
