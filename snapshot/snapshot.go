// Package snapshot serializes a suspended VirtualMachine and its Heap to
// canonical CBOR and reconstructs them later, possibly in a different
// process, against a freshly recompiled program.
//
// Grounded on bytecode.Code's own immutable-after-construction,
// copy-in-constructor idiom for the envelope shape, and on
// chazu-maggie/vm/dist/wire.go for using a canonical CBOR EncMode rather
// than encoding/json: deterministic byte output is required so that dumping
// the same suspended state twice produces byte-identical snapshots.
package snapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/intern"
	"github.com/scostello/monty/value"
	"github.com/scostello/monty/vm"
)

// formatVersion guards against loading a snapshot produced by an
// incompatible encoding of envelope -- Load fails fast on a mismatch
// rather than attempting a best-effort decode.
const formatVersion = 1

// Logger receives debug events for dump/load operations, disabled by
// default. The VM's own per-instruction hot path never logs; snapshotting
// happens outside it, so a caller diagnosing incremental compilation or
// snapshot restore issues can opt in with Logger = zerolog.New(os.Stderr).
var Logger = zerolog.Nop()

// envelope is the on-disk CBOR schema: versioned and self-describing enough
// to fail fast on a schema mismatch, carrying the suspended VM state and the
// heap's slot table. Interns and compiled Function/Code values are
// considered program-identifying and are not included -- Load expects the
// caller to have recompiled the same source and to hand the resulting
// Interns/module Code back in.
type envelope struct {
	Version   int
	VM        vm.Snapshot
	HeapSlots []heap.Slot
	HeapFree  []value.HeapId
}

// Dump serializes machine's suspended state (operand stack, frames,
// current exception) together with h's slot table into canonical CBOR.
// machine must not be mid-eval (i.e. called between Run/Resume/
// ResumeException invocations, typically right after one returns a
// ResultExternalCall).
func Dump(machine *vm.VirtualMachine, h *heap.Heap) ([]byte, error) {
	env := envelope{
		Version:   formatVersion,
		VM:        machine.Export(),
		HeapSlots: append([]heap.Slot{}, h.Slots()...),
		HeapFree:  append([]value.HeapId{}, h.FreeList()...),
	}
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("monty: snapshot: build encoder: %w", err)
	}
	data, err := mode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("monty: snapshot: encode: %w", err)
	}
	Logger.Debug().Int("bytes", len(data)).Int("frames", len(env.VM.Frames)).Msg("snapshot dumped")
	return data, nil
}

// Load decodes data produced by Dump into a fresh VirtualMachine and Heap,
// resolving every suspended frame's Code against module (the module frame)
// and interns (every other frame, by FunctionId) -- both of which the
// caller obtains by recompiling the same source that produced the original
// snapshot. Resuming execution (e.g. via machine.Resume) is the caller's
// responsibility; Load only reconstructs state.
func Load(data []byte, module *bytecode.Code, interns *intern.Interns, opts ...vm.Option) (*vm.VirtualMachine, *heap.Heap, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("monty: snapshot: decode: %w", err)
	}
	if env.Version != formatVersion {
		return nil, nil, fmt.Errorf("monty: snapshot: unsupported format version %d (want %d)", env.Version, formatVersion)
	}

	h := heap.New(0)
	h.Restore(env.HeapSlots, env.HeapFree)

	machine := vm.New(h, interns, opts...)
	lookupCode := func(id value.FunctionId) *bytecode.Code {
		if int(id) >= interns.FunctionCount() {
			return nil
		}
		return interns.Function(id).Code
	}
	if err := machine.Import(env.VM, module, lookupCode); err != nil {
		return nil, nil, err
	}

	Logger.Debug().Int("bytes", len(data)).Int("frames", len(env.VM.Frames)).Msg("snapshot loaded")
	return machine, h, nil
}
