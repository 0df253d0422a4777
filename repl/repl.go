// Package repl drives a persistent, incrementally-fed execution session:
// one compiler/VM/heap triple that survives across many Feed calls, each
// extending the same global namespace rather than starting fresh the way
// a one-shot Program does.
//
// Grounded on the *logic* of risor's cmd/risor/repl.go newReplVM --
// a persistent compiler.Compiler plus vm.VirtualMachine pair, with every
// line of terminal rendering (the gradient header, history file, TUI
// event loop) stripped, since presenting a REPL UI belongs to a host's
// embedding layer, not this session driver -- and on
// original_source/crates/monty/src/repl.rs for Feed's contract: each
// call returns the fed statement's value directly rather than a
// success/failure flag, mirroring a real interactive shell echoing
// whatever was typed.
package repl

import (
	"context"
	"fmt"

	"github.com/scostello/monty/ast"
	"github.com/scostello/monty/compiler"
	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/value"
	"github.com/scostello/monty/vm"
)

// Session is a persistent incremental-evaluation session: a single
// compiler/heap/VM triple whose global namespace grows across Feed calls
// instead of being discarded between them.
//
// Unlike a one-shot Program, a Session has no "recompile from source"
// fallback once a snippet has been fed: a snippet's names are resolved
// into specific global slots at compile time, and later snippets depend
// on that layout persisting. Dump/Load therefore round-trips the
// session's whole Interns table, not just VM/heap state (see Dump/Load
// below).
type Session struct {
	filename      string
	interns       *intern.Interns
	compiler      *compiler.Compiler
	heap          *heap.Heap
	machine       *vm.VirtualMachine
	namespaceSize int
	opts          []vm.Option
}

// New creates an empty Session. filename is used for error locations
// reported against fed statements, matching CompileExprStatement's
// <repl>-labeled Code objects elsewhere in this package's grounding.
func New(filename string, opts ...vm.Option) *Session {
	interns := intern.New()
	h := heap.New(0)
	return &Session{
		filename: filename,
		interns:  interns,
		compiler: compiler.New(interns, filename),
		heap:     h,
		machine:  vm.New(h, interns, opts...),
		opts:     opts,
	}
}

// Feed compiles stmt against the session's persistent namespace (growing
// it if stmt introduces new names -- the caller is responsible for
// resolving stmt's identifiers against the same scope table used for
// every prior Feed call, since this package carries no name-resolution
// logic of its own) and runs it to completion. namespaceSize is the total
// number of global slots now in use, including every slot from every
// prior Feed call.
//
// Feed does not support external-call suspension: a snippet that invokes
// a host-serviced external function must be fed to a Program (see the
// monty package's embedder façade) instead, where Start/Resume carries
// a Suspension across the call boundary.
func (s *Session) Feed(ctx context.Context, stmt ast.Stmt, namespaceSize int) (value.Value, *errz.StructuredError) {
	code, err := s.compiler.CompileExprStatement(stmt, namespaceSize)
	if err != nil {
		return value.None, errz.New(errz.SyntaxError, err.Error(), errz.SourceLocation{Filename: s.filename}, nil)
	}
	s.namespaceSize = namespaceSize

	result := s.machine.RunSnippet(ctx, code)
	switch result.Kind {
	case vm.ResultDone:
		return result.Value, nil
	case vm.ResultExternalCall:
		return value.None, errz.New(errz.RuntimeError, fmt.Sprintf("monty: repl: snippet suspended on external call %q; feed is synchronous-only", result.ExternalCall.Name), errz.SourceLocation{Filename: s.filename}, nil)
	default:
		return value.None, result.Err
	}
}

// Interns returns the session's dedup table, e.g. for a caller that wants
// to resolve a newly-parsed snippet's string/external-function literals
// into the same table before compiling it.
func (s *Session) Interns() *intern.Interns { return s.interns }
