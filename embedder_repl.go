package monty

import (
	"context"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/repl"
	"github.com/scostello/monty/value"
	"github.com/scostello/monty/vm"
)

// REPL is the embedder-facing wrapper over a persistent repl.Session,
// translating its *errz.StructuredError returns into the same
// BoundaryError shape Program/Suspension use.
type REPL struct {
	session *repl.Session
}

// Create starts a REPL session and feeds it initialStmts in order (each
// growing namespaceSize as the caller's name resolution requires),
// matching REPL.create's "(REPL, initial_value)" contract: the returned
// value is whatever the last of initialStmts evaluated to, or None if
// initialStmts is empty.
func Create(ctx context.Context, filename string, initialStmts []ast.Stmt, namespaceSize int, opts ...vm.Option) (*REPL, value.Value, *BoundaryError) {
	r := &REPL{session: repl.New(filename, opts...)}
	last := value.None
	for _, stmt := range initialStmts {
		v, err := r.session.Feed(ctx, stmt, namespaceSize)
		if err != nil {
			return r, value.None, boundaryError(err)
		}
		last = v
	}
	return r, last, nil
}

// Feed compiles and runs one more statement against the session's
// persistent namespace, returning its value the way a shell echoes
// whatever was typed.
func (r *REPL) Feed(ctx context.Context, stmt ast.Stmt, namespaceSize int) (value.Value, *BoundaryError) {
	v, err := r.session.Feed(ctx, stmt, namespaceSize)
	if err != nil {
		return value.None, boundaryError(err)
	}
	return v, nil
}

// Dump serializes the session's entire accumulated state (Interns table
// included, unlike a Program/Suspension snapshot -- see repl.Session.Dump).
func (r *REPL) Dump() ([]byte, error) {
	return r.session.Dump()
}

// LoadREPL reconstructs a REPL from data produced by Dump.
func LoadREPL(data []byte, opts ...vm.Option) (*REPL, error) {
	session, err := repl.Load(data, opts...)
	if err != nil {
		return nil, err
	}
	return &REPL{session: session}, nil
}
