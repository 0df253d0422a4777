package repl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/value"
)

func rng() bytecode.SourceRange { return bytecode.SourceRange{StartLine: 1, EndLine: 1} }

func globalIdent(slot int, n string) ast.Identifier {
	return ast.Identifier{Name: n, Slot: slot, Scope: ast.Local, Range: rng()}
}

func intLit(v int64) *ast.Literal { return &ast.Literal{Range: rng(), Kind: ast.IntLit, Int: v} }

func strLit(s string) *ast.Literal { return &ast.Literal{Range: rng(), Kind: ast.StrLit, Str: s} }

func nameExpr(id ast.Identifier) *ast.Name { return &ast.Name{Ident: id} }

// TestFeedPersistsBindingsAcrossCalls confirms a name bound by one Feed
// call is still readable (and usable in arithmetic) in a later Feed call
// against the same Session, the whole point of RunSnippet growing globals
// in place instead of starting over each time.
func TestFeedPersistsBindingsAcrossCalls(t *testing.T) {
	s := New("<repl>")
	x := globalIdent(0, "x")

	v, err := s.Feed(context.Background(), &ast.Assign{Target: x, Value: intLit(10)}, 1)
	require.Nil(t, err)
	require.Equal(t, value.None, v)

	v, err = s.Feed(context.Background(), &ast.ExprStmt{X: nameExpr(x)}, 1)
	require.Nil(t, err)
	require.Equal(t, value.Int(10), v)

	y := globalIdent(1, "y")
	v, err = s.Feed(context.Background(), &ast.Assign{
		Target: y,
		Value:  &ast.BinaryExpr{Range: rng(), Left: nameExpr(x), Op: ast.Add, Right: intLit(5)},
	}, 2)
	require.Nil(t, err)
	require.Equal(t, value.None, v)

	v, err = s.Feed(context.Background(), &ast.ExprStmt{X: nameExpr(y)}, 2)
	require.Nil(t, err)
	require.Equal(t, value.Int(15), v)

	require.Equal(t, value.Int(10), s.machine.Globals()[0])
	require.Equal(t, value.Int(15), s.machine.Globals()[1])
}

// TestFeedReportsUncaughtRuntimeError confirms a snippet that raises with
// no handler surfaces through Feed's result.Err passthrough as a
// structured error rather than panicking or silently no-opping.
func TestFeedReportsUncaughtRuntimeError(t *testing.T) {
	s := New("<repl>")

	v, err := s.Feed(context.Background(), &ast.Raise{Range: rng(), Value: strLit("boom")}, 0)
	require.Equal(t, value.None, v)
	require.NotNil(t, err)
	require.Equal(t, errz.UserDefined, err.Kind)
}

// TestFeedRejectsExternalCallSuspension confirms a snippet that reaches an
// external call is reported as an error rather than silently discarded,
// since Feed has no suspend/resume path of its own.
func TestFeedRejectsExternalCallSuspension(t *testing.T) {
	s := New("<repl>")
	out := globalIdent(0, "out")

	v, err := s.Feed(context.Background(), &ast.Assign{
		Target: out,
		Value:  &ast.ExternalCall{Range: rng(), Name: "fetch", Args: []ast.Expr{intLit(1)}},
	}, 1)
	require.Equal(t, value.None, v)
	require.NotNil(t, err)
	require.Equal(t, errz.RuntimeError, err.Kind)
}
