package monty

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/value"
)

// TestCreateFeedsInitialStatementsAndReturnsLastValue confirms Create
// seeds a session with initialStmts in order and reports the last one's
// value, matching a REPL that opens with a few preamble statements already
// typed.
func TestCreateFeedsInitialStatementsAndReturnsLastValue(t *testing.T) {
	x := localIdent(0, "x")
	stmts := []ast.Stmt{
		&ast.Assign{Target: x, Value: intLit(7)},
		&ast.ExprStmt{X: nameExpr(x)},
	}

	r, last, berr := Create(context.Background(), "<repl>", stmts, 1)
	require.Nil(t, berr)
	require.Equal(t, value.Int(7), last)

	out := localIdent(1, "out")
	v, berr := r.Feed(context.Background(), &ast.Assign{
		Target: out,
		Value:  &ast.BinaryExpr{Range: rng(), Left: nameExpr(x), Op: ast.Add, Right: intLit(1)},
	}, 2)
	require.Nil(t, berr)
	require.Equal(t, value.None, v)

	v, berr = r.Feed(context.Background(), &ast.ExprStmt{X: nameExpr(out)}, 2)
	require.Nil(t, berr)
	require.Equal(t, value.Int(8), v)
}

// TestREPLDumpLoadRoundTripsThroughBoundaryWrapper confirms the embedder
// façade's Dump/LoadREPL delegate correctly to the underlying session,
// preserving bindings across the round trip.
func TestREPLDumpLoadRoundTripsThroughBoundaryWrapper(t *testing.T) {
	x := localIdent(0, "x")
	r, _, berr := Create(context.Background(), "<repl>", []ast.Stmt{
		&ast.Assign{Target: x, Value: intLit(3)},
	}, 1)
	require.Nil(t, berr)

	data, err := r.Dump()
	require.NoError(t, err)

	loaded, err := LoadREPL(data)
	require.NoError(t, err)

	v, berr := loaded.Feed(context.Background(), &ast.ExprStmt{X: nameExpr(x)}, 1)
	require.Nil(t, berr)
	require.Equal(t, value.Int(3), v)
}
