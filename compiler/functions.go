package compiler

import (
	"fmt"
	"math"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/op"
	"github.com/scostello/monty/value"
)

func (c *Compiler) compileCall(e *ast.Call) error {
	if err := c.compileExpr(e.Callee); err != nil {
		return err
	}
	for _, a := range e.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	if len(e.Kwargs) == 0 {
		if len(e.Args) > math.MaxUint8 {
			return fmt.Errorf("monty: compiler: call exceeds %d positional arguments", math.MaxUint8)
		}
		c.emitU8(op.CallFunction, uint8(len(e.Args)))
		c.track(-len(e.Args))
		return nil
	}
	for _, kw := range e.Kwargs {
		c.emitU16(op.LoadConst, c.internStringConst(kw.Name))
		c.track(1)
		if err := c.compileExpr(kw.Value); err != nil {
			return err
		}
	}
	if len(e.Args) > math.MaxUint8 || len(e.Kwargs) > math.MaxUint8 {
		return fmt.Errorf("monty: compiler: call exceeds %d arguments", math.MaxUint8)
	}
	c.emitU8U8(op.CallFunctionKw, uint8(len(e.Args)), uint8(len(e.Kwargs)))
	c.track(-(len(e.Args) + 2*len(e.Kwargs)))
	return nil
}

func (c *Compiler) compileAttrCall(e *ast.AttrCall) error {
	if err := c.compileExpr(e.Object); err != nil {
		return err
	}
	for _, a := range e.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	if len(e.Args) > math.MaxUint8 {
		return fmt.Errorf("monty: compiler: method call exceeds %d arguments", math.MaxUint8)
	}
	c.emitU16U8(op.CallMethod, c.internStringConst(e.Attr), uint8(len(e.Args)))
	c.track(-len(e.Args))
	return nil
}

// compileExternalCall lowers an ast.ExternalCall directly to CallExternal --
// no namespace lookup, just interning the host-known name (DESIGN.md Open
// Question decision #4).
func (c *Compiler) compileExternalCall(e *ast.ExternalCall) error {
	for _, a := range e.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	if len(e.Args) > math.MaxUint8 {
		return fmt.Errorf("monty: compiler: external call exceeds %d arguments", math.MaxUint8)
	}
	id := c.interns.InternExternalFunction(e.Name)
	c.emitU16U8(op.CallExternal, uint16(id), uint8(len(e.Args)))
	c.track(-len(e.Args) + 1)
	return nil
}

// compileFunctionDef lowers a nested function body to its own bytecode.Code
// and registers a bytecode.Function describing how the VM constructs a
// closure/plain function value from it at MakeFunction/MakeClosure time.
// Defaults are evaluated here, in the defining scope, and free-variable
// cells are loaded from the defining scope's namespace slots listed in
// FreeVarSlots -- both
// pushed on the *outer* builder before the nested body is compiled.
func (c *Compiler) compileFunctionDef(f *ast.FunctionDef) error {
	numDefaults := 0
	for _, p := range f.Params {
		if !p.IsVararg && !p.IsKwarg && p.Default != nil {
			if err := c.compileExpr(p.Default); err != nil {
				return err
			}
			numDefaults++
		}
	}
	for _, slot := range f.FreeVarSlots {
		c.loadLocalSlot(slot)
	}

	outer := c.b
	outerLoops := c.loops
	c.loops = nil

	c.b = bytecode.NewCodeBuilder(f.Name.Name, c.filename)
	c.b.SetNumLocals(uint16(f.NamespaceSize))
	if err := c.compileBlock(f.Body); err != nil {
		c.b = outer
		c.loops = outerLoops
		return err
	}
	c.emit(op.LoadNone)
	c.emit(op.ReturnValue)
	body := c.b.Finish()

	c.b = outer
	c.loops = outerLoops
	c.b.AddChild(body)

	var params []value.StringId
	numPositional := 0
	hasVararg, hasKwarg := false, false
	for _, p := range f.Params {
		switch {
		case p.IsVararg:
			hasVararg = true
		case p.IsKwarg:
			hasKwarg = true
		default:
			params = append(params, c.interns.InternString(p.Name))
			numPositional++
		}
	}

	fn := &bytecode.Function{
		Name:             c.interns.InternString(f.Name.Name),
		Parameters:       params,
		NumPositional:    numPositional,
		NumDefaults:      numDefaults,
		HasVararg:        hasVararg,
		HasKwarg:         hasKwarg,
		NamespaceSize:    uint16(f.NamespaceSize),
		FreeVars:         toUint16Slice(f.FreeVarSlots),
		CellCount:        uint16(len(f.CellParamIndices)),
		CellParamIndices: toUint16Slice(f.CellParamIndices),
		Code:             body,
	}
	id := c.interns.InternFunction(fn)

	if len(f.FreeVarSlots) == 0 {
		c.emitU16(op.MakeFunction, uint16(id))
		c.track(-numDefaults + 1)
	} else {
		c.emitU16U8(op.MakeClosure, uint16(id), uint8(len(f.FreeVarSlots)))
		c.track(-(numDefaults + len(f.FreeVarSlots)) + 1)
	}
	c.storeIdent(f.Name)
	return nil
}

// loadLocalSlot pushes the raw namespace slot's value with no cell
// dereferencing, used to capture a cell handle for MakeClosure -- distinct
// from loadIdent's ast.Cell branch, which dereferences through the box for
// ordinary reads.
func (c *Compiler) loadLocalSlot(slot int) {
	switch slot {
	case 0:
		c.emit(op.LoadLocal0)
	case 1:
		c.emit(op.LoadLocal1)
	case 2:
		c.emit(op.LoadLocal2)
	case 3:
		c.emit(op.LoadLocal3)
	default:
		if slot <= math.MaxUint8 {
			c.emitU8(op.LoadLocal, uint8(slot))
		} else {
			c.emitU16(op.LoadLocalW, uint16(slot))
		}
	}
	c.track(1)
}

func toUint16Slice(ints []int) []uint16 {
	out := make([]uint16, len(ints))
	for i, v := range ints {
		out[i] = uint16(v)
	}
	return out
}
