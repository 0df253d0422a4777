package heap

import "github.com/scostello/monty/value"

// SlotKind identifies which variant of Slot data is populated.
type SlotKind uint8

const (
	KindList SlotKind = iota
	KindDict
	KindSet
	KindTuple
	KindUserObject
	KindIterator
	KindCell
	KindBytes
	KindLongString
	KindException
	KindClosure
)

// DictEntry is one key/value pair of a Dict slot, looked up by a linear
// scan for key equality -- the dict type is an insertion-ordered
// association, not a hash map, and the programs this VM targets use dicts
// small enough that O(n) lookup is not a practical concern.
type DictEntry struct {
	Key   value.Value
	Value value.Value
}

// IteratorState is intentionally minimal: it models the handful of
// iteration sources the VM itself produces (list/tuple/set/dict iteration,
// range-like counting) rather than a fully general user-extensible
// protocol -- a richer object model sits outside this package's scope.
type IteratorState struct {
	// Source is the HeapId of the container being iterated, or 0 if the
	// iterator doesn't own a heap-resident source (e.g. a bare range).
	Source    value.HeapId
	HasSource bool
	Index     int
	RangeCur  int64
	RangeStop int64
	RangeStep int64
	IsRange   bool
}

// TracebackFrame captures one surviving call frame's position at the
// moment an exception propagated through it.
type TracebackFrame struct {
	Filename      string
	Line, Column  int
	EndLine       int
	EndColumn     int
	FunctionName  string
	SourceLine    string
}

// ExceptionData is the payload of an Exception slot.
type ExceptionData struct {
	TypeID     string
	Message    string
	Traceback  []TracebackFrame
	Cause      value.HeapId
	HasCause   bool
	Context    value.HeapId
	HasContext bool
}

// Slot is one heap-resident object. Exactly one of the typed fields
// matching Kind is meaningful.
type Slot struct {
	Kind     SlotKind
	Refcount uint32
	Live     bool

	List  []value.Value
	Dict  []DictEntry
	Set   []value.Value
	Tuple []value.Value

	UserObjectTypeID string
	// UserObjectNames holds one StringId per entry of UserObjectFields, in
	// the same order, since unlike a frame's namespace a user object's
	// attribute names aren't resolved to fixed slots at compile time.
	UserObjectNames  []value.StringId
	UserObjectFields []value.Value

	Iterator IteratorState

	Cell value.Value

	Bytes      []byte
	LongString string

	Exception ExceptionData

	// ClosureFunctionID identifies the Function template a closure wraps.
	// ClosureCells holds one value.Cell(HeapId) per free variable the
	// closure captured at MakeClosure time. A closure needs its own heap
	// slot, unlike a plain function, because two closures made from the
	// same FunctionId in different calls (e.g. two loop iterations)
	// capture different cells.
	ClosureFunctionID value.FunctionId
	ClosureCells      []value.Value
	// ClosureDefaults holds the default-argument values captured at
	// MakeFunction/MakeClosure time. A bytecode.Function template is interned
	// once per textual definition and reused by every execution of its
	// MakeFunction instruction (e.g. one per loop iteration redefining a
	// function), so defaults that differ across those executions cannot
	// live on the shared template -- they travel with this per-instance
	// slot instead, the same way ClosureCells does for captured
	// variables. A function with neither free variables nor defaults
	// needs no heap slot at all; it is pushed as a bare
	// value.Function(id).
	ClosureDefaults []value.Value
}
