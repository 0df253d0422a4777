// Package intern holds the process-local, read-only-during-execution
// dedup tables for strings, byte strings, compiled function metadata, and
// external-function names. Entries are addressed by small integer ids that
// are embedded directly in bytecode operands.
package intern

import (
	"github.com/scostello/monty/bytecode"
	"github.com/scostello/monty/value"
)

// Interns owns the compiled program's dedup tables. It is built up during
// compilation and is immutable once execution begins.
type Interns struct {
	strings   []string
	stringIdx map[string]value.StringId

	bytes    [][]byte
	bytesIdx map[string]value.BytesId

	functions   []*bytecode.Function
	functionIdx map[*bytecode.Function]value.FunctionId

	externalFunctions   []string
	externalFunctionIdx map[string]value.ExtFnId
}

// New creates an empty Interns table.
func New() *Interns {
	return &Interns{
		stringIdx:           make(map[string]value.StringId),
		bytesIdx:            make(map[string]value.BytesId),
		functionIdx:         make(map[*bytecode.Function]value.FunctionId),
		externalFunctionIdx: make(map[string]value.ExtFnId),
	}
}

// InternString deduplicates s by content and returns its StringId.
func (in *Interns) InternString(s string) value.StringId {
	if id, ok := in.stringIdx[s]; ok {
		return id
	}
	id := value.StringId(len(in.strings))
	in.strings = append(in.strings, s)
	in.stringIdx[s] = id
	return id
}

// String returns the interned string for id.
func (in *Interns) String(id value.StringId) string {
	return in.strings[id]
}

// StringCount returns the number of interned strings.
func (in *Interns) StringCount() int { return len(in.strings) }

// InternBytes deduplicates b by content and returns its BytesId.
func (in *Interns) InternBytes(b []byte) value.BytesId {
	key := string(b)
	if id, ok := in.bytesIdx[key]; ok {
		return id
	}
	id := value.BytesId(len(in.bytes))
	stored := make([]byte, len(b))
	copy(stored, b)
	in.bytes = append(in.bytes, stored)
	in.bytesIdx[key] = id
	return id
}

// Bytes returns the interned byte string for id.
func (in *Interns) Bytes(id value.BytesId) []byte {
	return in.bytes[id]
}

// BytesCount returns the number of interned byte strings.
func (in *Interns) BytesCount() int { return len(in.bytes) }

// InternFunction deduplicates by the Function's identity: the compiler
// produces each *bytecode.Function exactly once, so dedup here only
// guards against a caller re-registering the same function value.
func (in *Interns) InternFunction(fn *bytecode.Function) value.FunctionId {
	if id, ok := in.functionIdx[fn]; ok {
		return id
	}
	id := value.FunctionId(len(in.functions))
	in.functions = append(in.functions, fn)
	in.functionIdx[fn] = id
	return id
}

// Function returns the interned function metadata for id.
func (in *Interns) Function(id value.FunctionId) *bytecode.Function {
	return in.functions[id]
}

// FunctionCount returns the number of interned functions.
func (in *Interns) FunctionCount() int { return len(in.functions) }

// InternExternalFunction deduplicates an external-function name by content.
func (in *Interns) InternExternalFunction(name string) value.ExtFnId {
	if id, ok := in.externalFunctionIdx[name]; ok {
		return id
	}
	id := value.ExtFnId(len(in.externalFunctions))
	in.externalFunctions = append(in.externalFunctions, name)
	in.externalFunctionIdx[name] = id
	return id
}

// ExternalFunctionName returns the interned external-function name for id.
func (in *Interns) ExternalFunctionName(id value.ExtFnId) string {
	return in.externalFunctions[id]
}

// ExternalFunctionCount returns the number of interned external-function names.
func (in *Interns) ExternalFunctionCount() int { return len(in.externalFunctions) }

// Export returns the table's four dedup slices for serialization (the
// repl package's Dump). The dedup index maps themselves are not exported
// -- Restore rebuilds them deterministically from the slices.
func (in *Interns) Export() (strings []string, bytesList [][]byte, functions []*bytecode.Function, externalFunctions []string) {
	return in.strings, in.bytes, in.functions, in.externalFunctions
}

// Restore rebuilds an Interns table from previously-Exported content,
// re-deriving the dedup index maps a sequence of Intern* calls would have
// built incrementally. Slot numbers are preserved exactly (index in each
// slice equals the id a lookup returns), so any value.StringId/BytesId/
// FunctionId/ExtFnId recorded elsewhere in a snapshot stays valid.
func Restore(strings []string, bytesList [][]byte, functions []*bytecode.Function, externalFunctions []string) *Interns {
	in := New()
	in.strings = strings
	for i, s := range strings {
		in.stringIdx[s] = value.StringId(i)
	}
	in.bytes = bytesList
	for i, b := range bytesList {
		in.bytesIdx[string(b)] = value.BytesId(i)
	}
	in.functions = functions
	for i, fn := range functions {
		in.functionIdx[fn] = value.FunctionId(i)
	}
	in.externalFunctions = externalFunctions
	for i, n := range externalFunctions {
		in.externalFunctionIdx[n] = value.ExtFnId(i)
	}
	return in
}
