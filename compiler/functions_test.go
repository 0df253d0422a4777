package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/op"
)

func TestCompileFunctionDefRegistersFunctionAndEmitsMakeFunction(t *testing.T) {
	fnName := ast.Identifier{Name: "f", Slot: 0, Scope: ast.Global, Range: rng()}
	fd := &ast.FunctionDef{
		Range:         rng(),
		Name:          fnName,
		Params:        []ast.Param{{Name: "a"}},
		NamespaceSize: 1,
		Body:          ast.Block{&ast.Return{Value: &ast.Name{Ident: local(0)}}},
	}
	interns := intern.New()
	c := New(interns, "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	require.NoError(t, c.compileStmt(fd))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.MakeFunction))
	require.Len(t, code.Children, 1)
	require.Equal(t, 1, interns.FunctionCount())
	fn := interns.Function(0)
	require.Equal(t, 1, fn.NumPositional)
	require.Equal(t, 0, fn.NumDefaults)
}

func TestCompileFunctionDefWithDefaultCountsDefaults(t *testing.T) {
	fnName := ast.Identifier{Name: "g", Slot: 0, Scope: ast.Global, Range: rng()}
	fd := &ast.FunctionDef{
		Range: rng(),
		Name:  fnName,
		Params: []ast.Param{
			{Name: "a"},
			{Name: "b", Default: intLit(9)},
		},
		NamespaceSize: 2,
		Body:          ast.Block{&ast.Pass{}},
	}
	interns := intern.New()
	c := New(interns, "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	require.NoError(t, c.compileStmt(fd))
	fn := interns.Function(0)
	require.Equal(t, 1, fn.NumDefaults)
	require.Equal(t, 1, fn.RequiredCount())
}

func TestCompileFunctionDefWithFreeVarsEmitsMakeClosure(t *testing.T) {
	fnName := ast.Identifier{Name: "h", Slot: 0, Scope: ast.Global, Range: rng()}
	fd := &ast.FunctionDef{
		Range:         rng(),
		Name:          fnName,
		NamespaceSize: 1,
		FreeVarSlots:  []int{0},
		Body:          ast.Block{&ast.Pass{}},
	}
	interns := intern.New()
	c := New(interns, "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	c.b.SetNumLocals(1)
	require.NoError(t, c.compileStmt(fd))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.MakeClosure))
	require.NotContains(t, code.Bytecode, byte(op.MakeFunction))
}

func TestCompileCallEmitsCallFunction(t *testing.T) {
	callee := local(0)
	call := &ast.Call{Range: rng(), Callee: &ast.Name{Ident: callee}, Args: []ast.Expr{intLit(1), intLit(2)}}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	require.NoError(t, c.compileExpr(call))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.CallFunction))
}

func TestCompileCallWithKwargsEmitsCallFunctionKw(t *testing.T) {
	callee := local(0)
	call := &ast.Call{
		Range:  rng(),
		Callee: &ast.Name{Ident: callee},
		Kwargs: []ast.KwArg{{Name: "x", Value: intLit(3)}},
	}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	require.NoError(t, c.compileExpr(call))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.CallFunctionKw))
}

func TestCompileExternalCallInternsNameAndEmitsCallExternal(t *testing.T) {
	call := &ast.ExternalCall{Range: rng(), Name: "host_fetch", Args: []ast.Expr{intLit(1)}}
	interns := intern.New()
	c := New(interns, "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	require.NoError(t, c.compileExpr(call))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.CallExternal))
	require.Equal(t, 1, interns.ExternalFunctionCount())
	require.Equal(t, "host_fetch", interns.ExternalFunctionName(0))
}

func TestCompileAttrCallEmitsCallMethod(t *testing.T) {
	obj := local(0)
	call := &ast.AttrCall{Range: rng(), Object: &ast.Name{Ident: obj}, Attr: "upper"}
	c := New(intern.New(), "t")
	c.b = bytecode.NewCodeBuilder("t", "t")
	require.NoError(t, c.compileExpr(call))
	code := c.b.Finish()
	require.Contains(t, code.Bytecode, byte(op.CallMethod))
}
