package repl

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/value"
)

// TestDumpLoadRoundTripsBindings confirms a Session reloaded from Dump
// output keeps every binding fed before the dump, and can still accept
// further Feed calls that see those bindings.
func TestDumpLoadRoundTripsBindings(t *testing.T) {
	s := New("<repl>")
	x := globalIdent(0, "x")
	y := globalIdent(1, "y")

	_, err := s.Feed(context.Background(), &ast.Assign{Target: x, Value: intLit(10)}, 1)
	require.Nil(t, err)
	_, err = s.Feed(context.Background(), &ast.Assign{
		Target: y,
		Value:  &ast.BinaryExpr{Range: rng(), Left: nameExpr(x), Op: ast.Add, Right: intLit(5)},
	}, 2)
	require.Nil(t, err)

	data, dumpErr := s.Dump()
	require.NoError(t, dumpErr)
	require.NotEmpty(t, data)

	loaded, loadErr := Load(data)
	require.NoError(t, loadErr)
	require.Equal(t, "<repl>", loaded.filename)
	require.Equal(t, 2, loaded.namespaceSize)

	v, err := loaded.Feed(context.Background(), &ast.ExprStmt{X: nameExpr(y)}, 2)
	require.Nil(t, err)
	require.Equal(t, value.Int(15), v)

	z := globalIdent(2, "z")
	_, err = loaded.Feed(context.Background(), &ast.Assign{
		Target: z,
		Value:  &ast.BinaryExpr{Range: rng(), Left: nameExpr(x), Op: ast.Add, Right: nameExpr(y)},
	}, 3)
	require.Nil(t, err)

	v, err = loaded.Feed(context.Background(), &ast.ExprStmt{X: nameExpr(z)}, 3)
	require.Nil(t, err)
	require.Equal(t, value.Int(25), v)
}

// TestLoadRejectsWrongVersion confirms Load refuses a corrupted or
// foreign-version envelope rather than decoding it into a broken Session.
func TestLoadRejectsWrongVersion(t *testing.T) {
	s := New("<repl>")
	data, err := s.Dump()
	require.NoError(t, err)

	var env envelope
	require.NoError(t, cbor.Unmarshal(data, &env))
	env.Version = sessionFormatVersion + 1
	mode, err := cbor.CanonicalEncOptions().EncMode()
	require.NoError(t, err)
	corrupted, err := mode.Marshal(env)
	require.NoError(t, err)

	_, loadErr := Load(corrupted)
	require.Error(t, loadErr)
}
