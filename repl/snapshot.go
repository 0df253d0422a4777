package repl

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/compiler"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/value"
	"github.com/scostello/monty/vm"
)

// sessionFormatVersion guards the envelope schema the same way the
// snapshot package's formatVersion does. It is versioned independently
// of that package's because a Session envelope additionally carries the
// full Interns table, which a one-shot Program snapshot never needs.
const sessionFormatVersion = 1

// Logger receives debug events for Dump/Load, disabled by default,
// mirroring the snapshot package's own opt-in Logger.
var Logger = zerolog.Nop()

// envelope is a whole Session's serialized form. Unlike the snapshot
// package's envelope (which assumes the caller recompiles the same
// source and hands back a matching Interns/module Code), a Session has
// fed statements incrementally with no source left to recompile, so its
// Interns table -- every interned string, byte string, compiled Function
// (and each Function's nested Code), and external-function name -- must
// travel with the dump.
type envelope struct {
	Version       int
	Filename      string
	NamespaceSize int

	Strings           []string
	Bytes             [][]byte
	Functions         []*bytecode.Function
	ExternalFunctions []string

	VM        vm.Snapshot
	HeapSlots []heap.Slot
	HeapFree  []value.HeapId
}

// Dump serializes s's entire state: its Interns table, heap slots, and
// the VM's suspended stack/frames. s must not be mid-Feed.
func (s *Session) Dump() ([]byte, error) {
	strings, bytesList, functions, externalFunctions := s.interns.Export()
	env := envelope{
		Version:           sessionFormatVersion,
		Filename:          s.filename,
		NamespaceSize:     s.namespaceSize,
		Strings:           strings,
		Bytes:             bytesList,
		Functions:         functions,
		ExternalFunctions: externalFunctions,
		VM:                s.machine.Export(),
		HeapSlots:         append([]heap.Slot{}, s.heap.Slots()...),
		HeapFree:          append([]value.HeapId{}, s.heap.FreeList()...),
	}
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("monty: repl: build encoder: %w", err)
	}
	data, err := mode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("monty: repl: encode: %w", err)
	}
	Logger.Debug().Int("bytes", len(data)).Int("strings", len(strings)).Msg("repl session dumped")
	return data, nil
}

// Load reconstructs a Session from data produced by Dump. It needs no
// recompiled source or caller-supplied Interns, unlike snapshot.Load --
// the dump is fully self-contained.
func Load(data []byte, opts ...vm.Option) (*Session, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("monty: repl: decode: %w", err)
	}
	if env.Version != sessionFormatVersion {
		return nil, fmt.Errorf("monty: repl: unsupported format version %d (want %d)", env.Version, sessionFormatVersion)
	}

	interns := intern.Restore(env.Strings, env.Bytes, env.Functions, env.ExternalFunctions)

	h := heap.New(0)
	h.Restore(env.HeapSlots, env.HeapFree)

	machine := vm.New(h, interns, opts...)
	// frame 0's Code is whichever one-off <repl> snippet last ran; Feed
	// always drives a snippet to ResultDone before returning, and the next
	// Feed's RunSnippet re-activates frame 0 with a freshly compiled Code
	// anyway, so an empty placeholder here is never actually executed.
	placeholderModule := &bytecode.Code{}
	if err := machine.Import(env.VM, placeholderModule, func(id value.FunctionId) *bytecode.Code {
		if int(id) >= interns.FunctionCount() {
			return nil
		}
		return interns.Function(id).Code
	}); err != nil {
		return nil, err
	}

	Logger.Debug().Int("bytes", len(data)).Int("strings", len(env.Strings)).Msg("repl session loaded")
	return &Session{
		filename:      env.Filename,
		interns:       interns,
		compiler:      compiler.New(interns, env.Filename),
		heap:          h,
		machine:       machine,
		namespaceSize: env.NamespaceSize,
		opts:          opts,
	}, nil
}
