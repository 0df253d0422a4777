// Package value defines the tagged Value representation used by the
// compiler, virtual machine, heap, and snapshot packages. A Value is
// plain-old-data: it never auto-releases a refcount it holds on drop.
// Callers that discard a Value which might be heap-backed must route it
// through heap.Heap.ReleaseValue (or an equivalent explicit call) first.
package value

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// HeapId is a stable, dense index into a heap slot. HeapIds are not
// invalidated by garbage collection; only an explicit free reuses one.
type HeapId uint32

// StringId indexes the interned string table.
type StringId uint32

// BytesId indexes the interned byte-string table.
type BytesId uint32

// FunctionId indexes the interned compiled-function table.
type FunctionId uint32

// ExtFnId indexes the interned external-function-name table.
type ExtFnId uint32

// Tag identifies which variant of Value is populated.
type Tag uint8

const (
	TagNone Tag = iota
	TagBool
	TagInt
	TagFloat
	TagInternString
	TagInternBytes
	TagRef
	TagExtFunction
	TagFunction
	TagCell
)

// Value is a 16-byte tagged union. The numeric payload is stored in `num`
// (reinterpreted per Tag); heap-adjacent tags additionally carry a HeapId
// or intern id in `id`.
type Value struct {
	num int64  // Bool/Int/Float (as bits)/unused
	id  uint32 // StringId/BytesId/HeapId/FunctionId/ExtFnId, depending on tag
	tag Tag
}

// cborShape mirrors Value's private fields for the snapshot package's
// benefit: Value keeps tag/num/id unexported so nothing outside this
// package can construct an ill-formed Value by hand, but a snapshot still
// needs to round-trip the exact bits, so Value implements
// cbor.Marshaler/Unmarshaler directly rather than exporting the fields.
type cborShape struct {
	Tag Tag
	Num int64
	ID  uint32
}

func (v Value) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cborShape{Tag: v.tag, Num: v.num, ID: v.id})
}

func (v *Value) UnmarshalCBOR(data []byte) error {
	var s cborShape
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	v.tag, v.num, v.id = s.Tag, s.Num, s.ID
	return nil
}

// None is the singular None value.
var None = Value{tag: TagNone}

// True and False are the boolean values.
var (
	True  = Value{tag: TagBool, num: 1}
	False = Value{tag: TagBool, num: 0}
)

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Int(i int64) Value {
	return Value{tag: TagInt, num: i}
}

func Float(f float64) Value {
	return Value{tag: TagFloat, num: int64(math.Float64bits(f))}
}

func InternString(id StringId) Value {
	return Value{tag: TagInternString, id: uint32(id)}
}

func InternBytes(id BytesId) Value {
	return Value{tag: TagInternBytes, id: uint32(id)}
}

func Ref(id HeapId) Value {
	return Value{tag: TagRef, id: uint32(id)}
}

func ExtFunction(id ExtFnId) Value {
	return Value{tag: TagExtFunction, id: uint32(id)}
}

func Function(id FunctionId) Value {
	return Value{tag: TagFunction, id: uint32(id)}
}

func Cell(id HeapId) Value {
	return Value{tag: TagCell, id: uint32(id)}
}

// Tag returns the Value's variant tag.
func (v Value) Tag() Tag { return v.tag }

func (v Value) IsNone() bool { return v.tag == TagNone }

func (v Value) AsBool() bool { return v.num != 0 }

func (v Value) AsInt() int64 { return v.num }

func (v Value) AsFloat() float64 { return math.Float64frombits(uint64(v.num)) }

func (v Value) AsStringId() StringId { return StringId(v.id) }

func (v Value) AsBytesId() BytesId { return BytesId(v.id) }

func (v Value) AsHeapId() HeapId { return HeapId(v.id) }

func (v Value) AsFunctionId() FunctionId { return FunctionId(v.id) }

func (v Value) AsExtFnId() ExtFnId { return ExtFnId(v.id) }

// IsHeapBacked reports whether releasing this Value requires decrementing a
// heap slot's refcount.
func (v Value) IsHeapBacked() bool {
	return v.tag == TagRef || v.tag == TagCell
}

func (v Value) String() string {
	switch v.tag {
	case TagNone:
		return "None"
	case TagBool:
		if v.AsBool() {
			return "True"
		}
		return "False"
	case TagInt:
		return fmt.Sprintf("%d", v.AsInt())
	case TagFloat:
		return fmt.Sprintf("%g", v.AsFloat())
	case TagInternString:
		return fmt.Sprintf("<str#%d>", v.id)
	case TagInternBytes:
		return fmt.Sprintf("<bytes#%d>", v.id)
	case TagRef:
		return fmt.Sprintf("<ref#%d>", v.id)
	case TagExtFunction:
		return fmt.Sprintf("<extfn#%d>", v.id)
	case TagFunction:
		return fmt.Sprintf("<fn#%d>", v.id)
	case TagCell:
		return fmt.Sprintf("<cell#%d>", v.id)
	default:
		return "<invalid>"
	}
}
