package vm

import (
	"fmt"

	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/value"
)

// typeName returns the guest-visible type name of v, used in TypeError
// messages and as the left-hand operand of CompareExceptionMatch when v is
// an exception instance without a heap.KindException wrapper.
func (vm *VirtualMachine) typeName(v value.Value) string {
	switch v.Tag() {
	case value.TagNone:
		return "NoneType"
	case value.TagBool:
		return "bool"
	case value.TagInt:
		return "int"
	case value.TagFloat:
		return "float"
	case value.TagInternString:
		return "str"
	case value.TagInternBytes:
		return "bytes"
	case value.TagFunction, value.TagExtFunction:
		return "function"
	case value.TagRef, value.TagCell:
		switch vm.heap.Get(v.AsHeapId()).Kind {
		case heap.KindList:
			return "list"
		case heap.KindDict:
			return "dict"
		case heap.KindSet:
			return "set"
		case heap.KindTuple:
			return "tuple"
		case heap.KindBytes:
			return "bytes"
		case heap.KindLongString:
			return "str"
		case heap.KindIterator:
			return "iterator"
		case heap.KindException:
			return vm.heap.Get(v.AsHeapId()).Exception.TypeID
		case heap.KindClosure:
			return "function"
		case heap.KindUserObject:
			return vm.heap.Get(v.AsHeapId()).UserObjectTypeID
		default:
			return "object"
		}
	default:
		return "object"
	}
}

// stringOf returns v's Go string content if v is a string value (either an
// interned short string or a heap-resident long string), and false
// otherwise.
func (vm *VirtualMachine) stringOf(v value.Value) (string, bool) {
	switch v.Tag() {
	case value.TagInternString:
		return vm.interns.String(v.AsStringId()), true
	case value.TagRef:
		s := vm.heap.Get(v.AsHeapId())
		if s.Kind == heap.KindLongString {
			return s.LongString, true
		}
	}
	return "", false
}

// Display renders v the way a guest str()/print call would, resolving
// interned/heap-resident content rather than a bare tag-and-id -- the
// form an embedder's print sink or external-call boundary wants, not
// value.Value.String()'s debug form.
func (vm *VirtualMachine) Display(v value.Value) string { return vm.display(v) }

// display renders v the way str()/f-string interpolation would: strings
// pass through their raw content, everything else uses its literal form.
func (vm *VirtualMachine) display(v value.Value) string {
	if s, ok := vm.stringOf(v); ok {
		return s
	}
	if v.Tag() == value.TagRef {
		s := vm.heap.Get(v.AsHeapId())
		switch s.Kind {
		case heap.KindList:
			return joinDisplay(vm, s.List, "[", "]")
		case heap.KindTuple:
			return joinDisplay(vm, s.Tuple, "(", ")")
		case heap.KindSet:
			return joinDisplay(vm, s.Set, "{", "}")
		case heap.KindDict:
			return vm.displayDict(s.Dict)
		case heap.KindBytes:
			return fmt.Sprintf("%q", s.Bytes)
		case heap.KindException:
			return fmt.Sprintf("%s: %s", s.Exception.TypeID, s.Exception.Message)
		}
	}
	return v.String()
}

func joinDisplay(vm *VirtualMachine, items []value.Value, open, close string) string {
	out := open
	for i, v := range items {
		if i > 0 {
			out += ", "
		}
		out += vm.display(v)
	}
	return out + close
}

func (vm *VirtualMachine) displayDict(entries []heap.DictEntry) string {
	out := "{"
	for i, e := range entries {
		if i > 0 {
			out += ", "
		}
		out += vm.display(e.Key) + ": " + vm.display(e.Value)
	}
	return out + "}"
}

// allocString allocates a heap long string slot. Short-string literals
// never reach this path (the compiler interns them as constants instead);
// it exists for runtime-built strings: concatenation, f-strings, str().
func (vm *VirtualMachine) allocString(s string) (value.Value, error) {
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindLongString, LongString: s}, vm.tracker)
	if err != nil {
		return value.None, err
	}
	return value.Ref(id), nil
}

// valuesEqual implements the equality rule for the built-in value kinds:
// numeric cross-comparison between int/float, content comparison for
// strings/bytes/collections, and identity otherwise.
func (vm *VirtualMachine) valuesEqual(a, b value.Value) bool {
	if a.Tag() == value.TagInt && b.Tag() == value.TagFloat {
		return float64(a.AsInt()) == b.AsFloat()
	}
	if a.Tag() == value.TagFloat && b.Tag() == value.TagInt {
		return a.AsFloat() == float64(b.AsInt())
	}
	if as, ok := vm.stringOf(a); ok {
		bs, ok2 := vm.stringOf(b)
		return ok2 && as == bs
	}
	if a.Tag() != b.Tag() {
		return false
	}
	switch a.Tag() {
	case value.TagNone:
		return true
	case value.TagBool:
		return a.AsBool() == b.AsBool()
	case value.TagInt:
		return a.AsInt() == b.AsInt()
	case value.TagFloat:
		return a.AsFloat() == b.AsFloat()
	case value.TagFunction:
		return a.AsFunctionId() == b.AsFunctionId()
	case value.TagExtFunction:
		return a.AsExtFnId() == b.AsExtFnId()
	case value.TagRef:
		if a.AsHeapId() == b.AsHeapId() {
			return true
		}
		return vm.refsEqual(a.AsHeapId(), b.AsHeapId())
	default:
		return false
	}
}

func (vm *VirtualMachine) refsEqual(aID, bID value.HeapId) bool {
	a, b := vm.heap.Get(aID), vm.heap.Get(bID)
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case heap.KindBytes:
		return string(a.Bytes) == string(b.Bytes)
	case heap.KindList:
		return vm.valueSlicesEqual(a.List, b.List)
	case heap.KindTuple:
		return vm.valueSlicesEqual(a.Tuple, b.Tuple)
	case heap.KindSet:
		return vm.setsEqual(a.Set, b.Set)
	case heap.KindDict:
		return vm.dictsEqual(a.Dict, b.Dict)
	default:
		return false
	}
}

func (vm *VirtualMachine) valueSlicesEqual(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !vm.valuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (vm *VirtualMachine) setsEqual(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !vm.setContains(b, v) {
			return false
		}
	}
	return true
}

func (vm *VirtualMachine) setContains(set []value.Value, v value.Value) bool {
	for _, e := range set {
		if vm.valuesEqual(e, v) {
			return true
		}
	}
	return false
}

func (vm *VirtualMachine) dictsEqual(a, b []heap.DictEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for _, e := range a {
		v, ok := vm.dictLookup(b, e.Key)
		if !ok || !vm.valuesEqual(v, e.Value) {
			return false
		}
	}
	return true
}

// dictLookup linearly scans entries for a key equal to k. Dict keys are
// not hashed in this implementation -- dict is an ordered association
// list by design, and the monty source programs this VM targets use small
// dicts where O(n) lookup is not a bottleneck worth a hash table for.
func (vm *VirtualMachine) dictLookup(entries []heap.DictEntry, k value.Value) (value.Value, bool) {
	for _, e := range entries {
		if vm.valuesEqual(e.Key, k) {
			return e.Value, true
		}
	}
	return value.None, false
}
