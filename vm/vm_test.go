package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/compiler"
	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/value"
)

func rng() bytecode.SourceRange { return bytecode.SourceRange{StartLine: 1, EndLine: 1} }

func localIdent(slot int) ast.Identifier {
	return ast.Identifier{Name: "v", Slot: slot, Scope: ast.Local, Range: rng()}
}

func intLit(v int64) *ast.Literal { return &ast.Literal{Range: rng(), Kind: ast.IntLit, Int: v} }

func strLit(s string) *ast.Literal { return &ast.Literal{Range: rng(), Kind: ast.StrLit, Str: s} }

func name(id ast.Identifier) *ast.Name { return &ast.Name{Ident: id} }

// run compiles mod and executes it to completion against a fresh heap, returning
// both the VirtualMachine (so a test can inspect its globals/heap directly) and
// the Run result.
func run(t *testing.T, mod *ast.Module) (*VirtualMachine, Result) {
	t.Helper()
	c := compiler.New(intern.New(), "t")
	code, err := c.CompileModule(mod)
	require.NoError(t, err)

	h := heap.New(0)
	machine := New(h, c.Interns())
	return machine, machine.Run(context.Background(), code)
}

func TestArithmeticAndLocalAssignment(t *testing.T) {
	x, y, z := localIdent(0), localIdent(1), localIdent(2)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: x, Value: intLit(11)},
			&ast.Assign{Target: y, Value: intLit(31)},
			&ast.Assign{Target: z, Value: &ast.BinaryExpr{
				Range: rng(), Left: name(x), Op: ast.Add, Right: name(y),
			}},
		},
		NamespaceSize: 3,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(42), machine.globals[2])
}

// TestForOrElseRunsOnNormalExhaustion confirms a for loop's OrElse block
// executes once the iterator runs dry without ever hitting a break.
func TestForOrElseRunsOnNormalExhaustion(t *testing.T) {
	out, v := localIdent(0), localIdent(1)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: out, Value: intLit(0)},
			&ast.For{
				Range:  rng(),
				Target: v,
				Iter:   strLit("ab"),
				Body: ast.Block{
					&ast.Assign{Target: out, Value: &ast.BinaryExpr{
						Range: rng(), Left: name(out), Op: ast.Add, Right: intLit(1),
					}},
				},
				OrElse: ast.Block{
					&ast.Assign{Target: out, Value: &ast.BinaryExpr{
						Range: rng(), Left: name(out), Op: ast.Add, Right: intLit(100),
					}},
				},
			},
		},
		NamespaceSize: 2,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(102), machine.globals[0])
}

// TestForOrElseSkippedOnBreak confirms a break out of a for loop's body
// skips its OrElse block entirely, rather than falling through into it.
func TestForOrElseSkippedOnBreak(t *testing.T) {
	out, v := localIdent(0), localIdent(1)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: out, Value: intLit(0)},
			&ast.For{
				Range:  rng(),
				Target: v,
				Iter:   strLit("ab"),
				Body: ast.Block{
					&ast.Assign{Target: out, Value: &ast.BinaryExpr{
						Range: rng(), Left: name(out), Op: ast.Add, Right: intLit(1),
					}},
					&ast.Break{},
				},
				OrElse: ast.Block{
					&ast.Assign{Target: out, Value: &ast.BinaryExpr{
						Range: rng(), Left: name(out), Op: ast.Add, Right: intLit(100),
					}},
				},
			},
		},
		NamespaceSize: 2,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(1), machine.globals[0])
}

func TestIfElseTakesTakenBranch(t *testing.T) {
	out := localIdent(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.If{
				Range: rng(),
				Test:  &ast.Literal{Range: rng(), Kind: ast.BoolLit, Bool: true},
				Body:  ast.Block{&ast.Assign{Target: out, Value: intLit(1)}},
				OrElse: ast.Block{
					&ast.Assign{Target: out, Value: intLit(2)},
				},
			},
		},
		NamespaceSize: 1,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(1), machine.globals[0])
}

func TestWhileLoopAccumulates(t *testing.T) {
	counter := localIdent(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: counter, Value: intLit(0)},
			&ast.While{
				Range: rng(),
				Test: &ast.CompareExpr{
					Range: rng(), Left: name(counter), Op: ast.Lt, Right: intLit(5),
				},
				Body: ast.Block{
					&ast.OpAssign{Target: counter, Op: ast.Add, Value: intLit(1)},
				},
			},
		},
		NamespaceSize: 1,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(5), machine.globals[0])
}

func TestForLoopOverListBindsEachElement(t *testing.T) {
	last := localIdent(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.For{
				Range:  rng(),
				Target: last,
				Iter:   &ast.ListExpr{Range: rng(), Elems: []ast.Expr{intLit(10), intLit(20), intLit(30)}},
				Body:   ast.Block{&ast.Pass{Range: rng()}},
			},
		},
		NamespaceSize: 1,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(30), machine.globals[0])
}

func TestListBuildAndSubscript(t *testing.T) {
	elem := localIdent(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: elem, Value: &ast.SubscriptExpr{
				Range:  rng(),
				Object: &ast.ListExpr{Range: rng(), Elems: []ast.Expr{intLit(7), intLit(8), intLit(9)}},
				Index:  intLit(1),
			}},
		},
		NamespaceSize: 1,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(8), machine.globals[0])
}

func TestDictBuildAndSubscript(t *testing.T) {
	out := localIdent(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: out, Value: &ast.SubscriptExpr{
				Range: rng(),
				Object: &ast.DictExpr{
					Range: rng(),
					Keys:  []ast.Expr{strLit("a"), strLit("b")},
					Vals:  []ast.Expr{intLit(1), intLit(2)},
				},
				Index: strLit("b"),
			}},
		},
		NamespaceSize: 1,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(2), machine.globals[0])
}

// TestFunctionCallUsesDefaultArgument defines a one-parameter-plus-default
// function at module scope and calls it with only the required argument,
// exercising MakeFunction's no-free-variable path and bindArgs' default
// fill-in.
func TestFunctionCallUsesDefaultArgument(t *testing.T) {
	fnName := ast.Identifier{Name: "add", Slot: 0, Scope: ast.Local, Range: rng()}
	a := ast.Identifier{Name: "a", Slot: 0, Scope: ast.Local, Range: rng()}
	b := ast.Identifier{Name: "b", Slot: 1, Scope: ast.Local, Range: rng()}
	out := ast.Identifier{Name: "out", Slot: 1, Scope: ast.Local, Range: rng()}

	fn := &ast.FunctionDef{
		Range: rng(),
		Name:  fnName,
		Params: []ast.Param{
			{Name: "a"},
			{Name: "b", Default: intLit(10)},
		},
		NamespaceSize: 2,
		Body: ast.Block{
			&ast.Return{Range: rng(), Value: &ast.BinaryExpr{
				Range: rng(), Left: name(a), Op: ast.Add, Right: name(b),
			}},
		},
	}

	mod := &ast.Module{
		Body: ast.Block{
			fn,
			&ast.Assign{Target: out, Value: &ast.Call{
				Range: rng(), Callee: name(fnName), Args: []ast.Expr{intLit(5)},
			}},
		},
		NamespaceSize: 2,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(15), machine.globals[1])
}

// TestTryExceptCatchesMatchingRaise raises a bare value inside a try block
// and confirms a bare `except:` clause (no type test) catches it, binds it,
// and the exception is cleared afterward (no residual current exception
// left on the VM).
func TestTryExceptCatchesMatchingRaise(t *testing.T) {
	bound := ast.Identifier{Name: "e", Slot: 0, Scope: ast.Local, Range: rng()}
	caught := ast.Identifier{Name: "caught", Slot: 1, Scope: ast.Local, Range: rng()}

	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: caught, Value: intLit(0)},
			&ast.Try{
				Range: rng(),
				Body: ast.Block{
					&ast.Raise{Range: rng(), Value: strLit("boom")},
				},
				Handlers: []ast.ExceptClause{
					{
						As:    bound,
						Bound: true,
						Body: ast.Block{
							&ast.Assign{Target: caught, Value: intLit(1)},
						},
					},
				},
			},
		},
		NamespaceSize: 2,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(1), machine.globals[1])
	require.False(t, machine.hasCurrentException)
}

// TestTryExceptReraisesOnTypeMismatch confirms a raised exception that
// doesn't match any handler's type propagates past the try block as an
// uncaught error instead of silently vanishing.
func TestTryExceptReraisesOnTypeMismatch(t *testing.T) {
	bound := ast.Identifier{Name: "e", Slot: 0, Scope: ast.Local, Range: rng()}
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Try{
				Range: rng(),
				Body: ast.Block{
					&ast.Raise{Range: rng(), Value: strLit("boom")},
				},
				Handlers: []ast.ExceptClause{
					{
						Type:  strLit("KeyError"),
						As:    bound,
						Bound: true,
						Body:  ast.Block{&ast.Pass{Range: rng()}},
					},
				},
			},
		},
		NamespaceSize: 1,
	}

	_, result := run(t, mod)
	require.Equal(t, ResultError, result.Kind)
	require.Equal(t, errz.UserDefined, result.Err.Kind)
}

// TestExternalCallSuspendsThenResumes exercises CallExternal with no
// handler installed: Run must suspend with a ResultExternalCall describing
// the pending call, and Resume must splice the host's answer back in at the
// call site and let the module run to completion.
func TestExternalCallSuspendsThenResumes(t *testing.T) {
	out := localIdent(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: out, Value: &ast.ExternalCall{
				Range: rng(), Name: "host_double", Args: []ast.Expr{intLit(21)},
			}},
		},
		NamespaceSize: 1,
	}

	c := compiler.New(intern.New(), "t")
	code, err := c.CompileModule(mod)
	require.NoError(t, err)

	h := heap.New(0)
	machine := New(h, c.Interns())

	first := machine.Run(context.Background(), code)
	require.Equal(t, ResultExternalCall, first.Kind)
	require.Equal(t, "host_double", first.ExternalCall.Name)
	require.Equal(t, []value.Value{value.Int(21)}, first.ExternalCall.Args)

	second := machine.Resume(context.Background(), value.Int(42))
	require.Equal(t, ResultDone, second.Kind)
	require.Equal(t, value.Int(42), machine.globals[0])
}

// TestExternalCallHandlerServicesSynchronously confirms that installing
// WithExternalCallHandler short-circuits suspension entirely: the handler's
// return value lands directly on the stack and Run never yields control.
func TestExternalCallHandlerServicesSynchronously(t *testing.T) {
	out := localIdent(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: out, Value: &ast.ExternalCall{
				Range: rng(), Name: "host_double", Args: []ast.Expr{intLit(21)},
			}},
		},
		NamespaceSize: 1,
	}

	c := compiler.New(intern.New(), "t")
	code, err := c.CompileModule(mod)
	require.NoError(t, err)

	h := heap.New(0)
	handler := func(_ context.Context, name string, args []value.Value) (value.Value, *errz.StructuredError) {
		require.Equal(t, "host_double", name)
		return value.Int(args[0].AsInt() * 2), nil
	}
	machine := New(h, c.Interns(), WithExternalCallHandler(handler))

	result := machine.Run(context.Background(), code)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(42), machine.globals[0])
}

// TestDivisionByZeroRaisesZeroDivisionError confirms an uncaught arithmetic
// error surfaces through Run as a structured error of the right kind rather
// than a Go panic.
func TestDivisionByZeroRaisesZeroDivisionError(t *testing.T) {
	out := localIdent(0)
	mod := &ast.Module{
		Body: ast.Block{
			&ast.Assign{Target: out, Value: &ast.BinaryExpr{
				Range: rng(), Left: intLit(1), Op: ast.Div, Right: intLit(0),
			}},
		},
		NamespaceSize: 1,
	}

	_, result := run(t, mod)
	require.Equal(t, ResultError, result.Kind)
	require.Equal(t, errz.ZeroDivisionError, result.Err.Kind)
}

// TestRecursiveFunctionComputesFactorial exercises the call/return frame
// machinery across several nested activations rather than a single call.
func TestRecursiveFunctionComputesFactorial(t *testing.T) {
	fnName := ast.Identifier{Name: "fact", Slot: 0, Scope: ast.Global, Range: rng()}
	n := ast.Identifier{Name: "n", Slot: 0, Scope: ast.Local, Range: rng()}
	out := ast.Identifier{Name: "out", Slot: 1, Scope: ast.Local, Range: rng()}

	fn := &ast.FunctionDef{
		Range:         rng(),
		Name:          fnName,
		Params:        []ast.Param{{Name: "n"}},
		NamespaceSize: 1,
		Body: ast.Block{
			&ast.If{
				Range: rng(),
				Test: &ast.CompareExpr{
					Range: rng(), Left: name(n), Op: ast.Le, Right: intLit(1),
				},
				Body: ast.Block{&ast.Return{Range: rng(), Value: intLit(1)}},
				OrElse: ast.Block{
					&ast.Return{Range: rng(), Value: &ast.BinaryExpr{
						Range: rng(),
						Left:  name(n),
						Op:    ast.Mul,
						Right: &ast.Call{
							Range:  rng(),
							Callee: name(fnName),
							Args: []ast.Expr{&ast.BinaryExpr{
								Range: rng(), Left: name(n), Op: ast.Sub, Right: intLit(1),
							}},
						},
					}},
				},
			},
		},
	}

	mod := &ast.Module{
		Body: ast.Block{
			fn,
			&ast.Assign{Target: out, Value: &ast.Call{
				Range: rng(), Callee: name(fnName), Args: []ast.Expr{intLit(5)},
			}},
		},
		NamespaceSize: 2,
	}

	machine, result := run(t, mod)
	require.Equal(t, ResultDone, result.Kind)
	require.Equal(t, value.Int(120), machine.globals[1])
}
