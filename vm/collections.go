package vm

import (
	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/op"
	"github.com/scostello/monty/value"
)

// buildSeq implements BuildList/BuildTuple/BuildSet: pop the
// u16 element count in push order and box it into the matching heap kind.
func (vm *VirtualMachine) buildSeq(code op.Code, n int) *errz.StructuredError {
	items := vm.popArgs(n)
	var kind heap.SlotKind
	switch code {
	case op.BuildList:
		kind = heap.KindList
	case op.BuildTuple:
		kind = heap.KindTuple
	default:
		kind = heap.KindSet
	}
	slot := heap.Slot{Kind: kind}
	switch kind {
	case heap.KindList:
		slot.List = items
	case heap.KindTuple:
		slot.Tuple = items
	case heap.KindSet:
		slot.Set = dedupSet(vm, items)
	}
	id, err := vm.heap.Alloc(slot, vm.tracker)
	if err != nil {
		for _, v := range items {
			vm.heap.ReleaseValue(v, vm.tracker)
		}
		return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	vm.push(value.Ref(id))
	return nil
}

// dedupSet drops later duplicates (by value equality), releasing the
// discarded duplicate's reference immediately since it will never be
// stored anywhere.
func dedupSet(vm *VirtualMachine, items []value.Value) []value.Value {
	out := make([]value.Value, 0, len(items))
	for _, v := range items {
		if vm.setContains(out, v) {
			vm.heap.ReleaseValue(v, vm.tracker)
			continue
		}
		out = append(out, v)
	}
	return out
}

// buildDict implements BuildDict: n key/value pairs, pushed key0, val0,
// key1, val1, ... in that order.
func (vm *VirtualMachine) buildDict(n int) *errz.StructuredError {
	items := vm.popArgs(2 * n)
	entries := make([]heap.DictEntry, 0, n)
	for i := 0; i < n; i++ {
		key, val := items[2*i], items[2*i+1]
		if existing, ok := vm.dictIndex(entries, key); ok {
			vm.heap.ReleaseValue(entries[existing].Key, vm.tracker)
			vm.heap.ReleaseValue(entries[existing].Value, vm.tracker)
			entries[existing] = heap.DictEntry{Key: key, Value: val}
			continue
		}
		entries = append(entries, heap.DictEntry{Key: key, Value: val})
	}
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindDict, Dict: entries}, vm.tracker)
	if err != nil {
		for _, e := range entries {
			vm.heap.ReleaseValue(e.Key, vm.tracker)
			vm.heap.ReleaseValue(e.Value, vm.tracker)
		}
		return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	vm.push(value.Ref(id))
	return nil
}

func (vm *VirtualMachine) dictIndex(entries []heap.DictEntry, k value.Value) (int, bool) {
	for i, e := range entries {
		if vm.valuesEqual(e.Key, k) {
			return i, true
		}
	}
	return 0, false
}

// buildFString implements BuildFString: concatenate n already-stringified
// parts (each part is either a string constant or the already-formatted
// result of an interpolated expression -- interpolation's own value-to-
// string conversion happened when each part's expression was compiled, so
// this step only needs display()).
func (vm *VirtualMachine) buildFString(n int) *errz.StructuredError {
	items := vm.popArgs(n)
	out := ""
	for _, v := range items {
		out += vm.display(v)
		vm.heap.ReleaseValue(v, vm.tracker)
	}
	result, err := vm.allocString(out)
	if err != nil {
		return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	vm.push(result)
	return nil
}

// binarySubscr implements BinarySubscr: stack [object, index] -> result.
func (vm *VirtualMachine) binarySubscr() *errz.StructuredError {
	idx := vm.pop()
	obj := vm.pop()
	result, err := vm.subscript(obj, idx)
	vm.heap.ReleaseValue(obj, vm.tracker)
	vm.heap.ReleaseValue(idx, vm.tracker)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

func (vm *VirtualMachine) subscript(obj, idx value.Value) (value.Value, *errz.StructuredError) {
	if s, ok := vm.stringOf(obj); ok {
		if idx.Tag() != value.TagInt {
			return value.None, errz.Newf(errz.TypeError, vm.currentLocation(), nil, "string indices must be integers")
		}
		runes := []rune(s)
		i, ok := normalizeIndex(idx.AsInt(), len(runes))
		if !ok {
			return value.None, errz.New(errz.IndexError, "string index out of range", vm.currentLocation(), nil)
		}
		v, allocErr := vm.allocString(string(runes[i]))
		if allocErr != nil {
			return value.None, errz.New(errz.MemoryError, allocErr.Error(), vm.currentLocation(), nil)
		}
		return v, nil
	}
	if obj.Tag() != value.TagRef {
		return value.None, errz.Newf(errz.TypeError, vm.currentLocation(), nil, "%q object is not subscriptable", vm.typeName(obj))
	}
	s := vm.heap.Get(obj.AsHeapId())
	switch s.Kind {
	case heap.KindList, heap.KindTuple:
		items := s.List
		if s.Kind == heap.KindTuple {
			items = s.Tuple
		}
		if idx.Tag() != value.TagInt {
			return value.None, errz.New(errz.TypeError, "indices must be integers", vm.currentLocation(), nil)
		}
		i, ok := normalizeIndex(idx.AsInt(), len(items))
		if !ok {
			return value.None, errz.New(errz.IndexError, "index out of range", vm.currentLocation(), nil)
		}
		return vm.heap.CloneValue(items[i]), nil
	case heap.KindDict:
		v, ok := vm.dictLookup(s.Dict, idx)
		if !ok {
			return value.None, errz.Newf(errz.KeyError, vm.currentLocation(), nil, "%s", vm.display(idx))
		}
		return vm.heap.CloneValue(v), nil
	case heap.KindBytes:
		if idx.Tag() != value.TagInt {
			return value.None, errz.New(errz.TypeError, "indices must be integers", vm.currentLocation(), nil)
		}
		i, ok := normalizeIndex(idx.AsInt(), len(s.Bytes))
		if !ok {
			return value.None, errz.New(errz.IndexError, "index out of range", vm.currentLocation(), nil)
		}
		return value.Int(int64(s.Bytes[i])), nil
	default:
		return value.None, errz.Newf(errz.TypeError, vm.currentLocation(), nil, "%q object is not subscriptable", vm.typeName(obj))
	}
}

func normalizeIndex(i int64, length int) (int, bool) {
	return normalizeIdx(int(i), length)
}

func normalizeIdx(i, length int) (int, bool) {
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, false
	}
	return i, true
}

// storeSubscr implements StoreSubscr: stack [object, index, value].
func (vm *VirtualMachine) storeSubscr() *errz.StructuredError {
	val := vm.pop()
	idx := vm.pop()
	obj := vm.pop()
	err := vm.assignSubscript(obj, idx, val)
	vm.heap.ReleaseValue(obj, vm.tracker)
	vm.heap.ReleaseValue(idx, vm.tracker)
	if err != nil {
		vm.heap.ReleaseValue(val, vm.tracker)
	}
	return err
}

func (vm *VirtualMachine) assignSubscript(obj, idx, val value.Value) *errz.StructuredError {
	if obj.Tag() != value.TagRef {
		return errz.Newf(errz.TypeError, vm.currentLocation(), nil, "%q object does not support item assignment", vm.typeName(obj))
	}
	s := vm.heap.GetMut(obj.AsHeapId())
	switch s.Kind {
	case heap.KindList:
		if idx.Tag() != value.TagInt {
			return errz.New(errz.TypeError, "indices must be integers", vm.currentLocation(), nil)
		}
		i, ok := normalizeIdx(int(idx.AsInt()), len(s.List))
		if !ok {
			return errz.New(errz.IndexError, "list assignment index out of range", vm.currentLocation(), nil)
		}
		vm.heap.ReleaseValue(s.List[i], vm.tracker)
		s.List[i] = val
		return nil
	case heap.KindDict:
		if i, ok := vm.dictIndex(s.Dict, idx); ok {
			vm.heap.ReleaseValue(s.Dict[i].Value, vm.tracker)
			s.Dict[i].Value = val
			return nil
		}
		s.Dict = append(s.Dict, heap.DictEntry{Key: vm.heap.CloneValue(idx), Value: val})
		return nil
	default:
		return errz.Newf(errz.TypeError, vm.currentLocation(), nil, "%q object does not support item assignment", vm.typeName(obj))
	}
}

// deleteSubscr completes the opcode catalog's DeleteSubscr: no current
// compiler path emits it (the language surface this compiler lowers has
// no `del obj[x]` statement), but a well-formed Code from a future
// front-end still needs defined semantics -- pop object and index,
// remove the entry, push nothing.
func (vm *VirtualMachine) deleteSubscr() *errz.StructuredError {
	idx := vm.pop()
	obj := vm.pop()
	defer func() {
		vm.heap.ReleaseValue(obj, vm.tracker)
		vm.heap.ReleaseValue(idx, vm.tracker)
	}()
	if obj.Tag() != value.TagRef {
		return errz.Newf(errz.TypeError, vm.currentLocation(), nil, "%q object doesn't support item deletion", vm.typeName(obj))
	}
	s := vm.heap.GetMut(obj.AsHeapId())
	switch s.Kind {
	case heap.KindList:
		if idx.Tag() != value.TagInt {
			return errz.New(errz.TypeError, "indices must be integers", vm.currentLocation(), nil)
		}
		i, ok := normalizeIdx(int(idx.AsInt()), len(s.List))
		if !ok {
			return errz.New(errz.IndexError, "list assignment index out of range", vm.currentLocation(), nil)
		}
		vm.heap.ReleaseValue(s.List[i], vm.tracker)
		s.List = append(s.List[:i], s.List[i+1:]...)
		return nil
	case heap.KindDict:
		if i, ok := vm.dictIndex(s.Dict, idx); ok {
			vm.heap.ReleaseValue(s.Dict[i].Key, vm.tracker)
			vm.heap.ReleaseValue(s.Dict[i].Value, vm.tracker)
			s.Dict = append(s.Dict[:i], s.Dict[i+1:]...)
			return nil
		}
		return errz.Newf(errz.KeyError, vm.currentLocation(), nil, "%s", vm.display(idx))
	default:
		return errz.Newf(errz.TypeError, vm.currentLocation(), nil, "%q object doesn't support item deletion", vm.typeName(obj))
	}
}

// attrName resolves LoadAttr/StoreAttr/DeleteAttr's u16 operand: an index
// into Code.Constants holding a value.InternString placed there by
// internStringConst at compile time.
func (vm *VirtualMachine) attrName(constIdx uint16) string {
	f := vm.activeFrame()
	c := f.code.Constants[constIdx]
	return vm.interns.String(c.AsStringId())
}

func (vm *VirtualMachine) loadAttr(constIdx uint16) *errz.StructuredError {
	name := vm.attrName(constIdx)
	obj := vm.pop()
	defer vm.heap.ReleaseValue(obj, vm.tracker)
	if obj.Tag() != value.TagRef {
		return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", vm.typeName(obj), name)
	}
	s := vm.heap.Get(obj.AsHeapId())
	if s.Kind != heap.KindUserObject {
		return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", vm.typeName(obj), name)
	}
	id := vm.interns.InternString(name)
	for i, n := range s.UserObjectNames {
		if n == id {
			vm.push(vm.heap.CloneValue(s.UserObjectFields[i]))
			return nil
		}
	}
	return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", s.UserObjectTypeID, name)
}

func (vm *VirtualMachine) storeAttr(constIdx uint16) *errz.StructuredError {
	name := vm.attrName(constIdx)
	val := vm.pop()
	obj := vm.pop()
	defer vm.heap.ReleaseValue(obj, vm.tracker)
	if obj.Tag() != value.TagRef {
		vm.heap.ReleaseValue(val, vm.tracker)
		return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", vm.typeName(obj), name)
	}
	s := vm.heap.GetMut(obj.AsHeapId())
	if s.Kind != heap.KindUserObject {
		vm.heap.ReleaseValue(val, vm.tracker)
		return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", vm.typeName(obj), name)
	}
	id := vm.interns.InternString(name)
	for i, n := range s.UserObjectNames {
		if n == id {
			vm.heap.ReleaseValue(s.UserObjectFields[i], vm.tracker)
			s.UserObjectFields[i] = val
			return nil
		}
	}
	s.UserObjectNames = append(s.UserObjectNames, id)
	s.UserObjectFields = append(s.UserObjectFields, val)
	return nil
}

func (vm *VirtualMachine) deleteAttr(constIdx uint16) *errz.StructuredError {
	name := vm.attrName(constIdx)
	obj := vm.pop()
	defer vm.heap.ReleaseValue(obj, vm.tracker)
	if obj.Tag() != value.TagRef {
		return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", vm.typeName(obj), name)
	}
	s := vm.heap.GetMut(obj.AsHeapId())
	if s.Kind != heap.KindUserObject {
		return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", vm.typeName(obj), name)
	}
	id := vm.interns.InternString(name)
	for i, n := range s.UserObjectNames {
		if n == id {
			vm.heap.ReleaseValue(s.UserObjectFields[i], vm.tracker)
			s.UserObjectNames = append(s.UserObjectNames[:i], s.UserObjectNames[i+1:]...)
			s.UserObjectFields = append(s.UserObjectFields[:i], s.UserObjectFields[i+1:]...)
			return nil
		}
	}
	return errz.Newf(errz.AttributeError, vm.currentLocation(), nil, "%q object has no attribute %q", s.UserObjectTypeID, name)
}

// getIter implements GetIter: pop an iterable, push a KindIterator Ref. A
// string is iterated by first materializing its runes into a fresh owned
// list the iterator's Source then exclusively holds, matching the
// ownership-transfer convention used for list/tuple/set/dict (the popped
// operand's reference is consumed into the new iterator rather than
// independently released).
func (vm *VirtualMachine) getIter() *errz.StructuredError {
	v := vm.pop()
	if s, ok := vm.stringOf(v); ok {
		runes := []rune(s)
		items := make([]value.Value, len(runes))
		for i, r := range runes {
			sv, err := vm.allocString(string(r))
			if err != nil {
				return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
			}
			items[i] = sv
		}
		vm.heap.ReleaseValue(v, vm.tracker)
		listID, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindList, List: items}, vm.tracker)
		if err != nil {
			return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
		}
		return vm.pushIterator(listID)
	}
	if v.Tag() != value.TagRef {
		vm.heap.ReleaseValue(v, vm.tracker)
		return errz.Newf(errz.TypeError, vm.currentLocation(), nil, "%q object is not iterable", vm.typeName(v))
	}
	switch vm.heap.Get(v.AsHeapId()).Kind {
	case heap.KindList, heap.KindTuple, heap.KindSet, heap.KindDict:
		return vm.pushIterator(v.AsHeapId())
	default:
		vm.heap.ReleaseValue(v, vm.tracker)
		return errz.Newf(errz.TypeError, vm.currentLocation(), nil, "%q object is not iterable", vm.typeName(v))
	}
}

func (vm *VirtualMachine) pushIterator(source value.HeapId) *errz.StructuredError {
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindIterator, Iterator: heap.IteratorState{Source: source, HasSource: true}}, vm.tracker)
	if err != nil {
		vm.heap.Decref(source, vm.tracker)
		return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	vm.push(value.Ref(id))
	return nil
}

// forIter implements ForIter: on exhaustion, pop the iterator and jump by delta (same
// relative-offset convention as Jump); otherwise leave the iterator on the
// stack and push its next element.
func (vm *VirtualMachine) forIter(delta int16) *errz.StructuredError {
	iterVal := vm.top()
	it := vm.heap.GetMut(iterVal.AsHeapId())
	src := vm.heap.Get(it.Iterator.Source)
	var items []value.Value
	switch src.Kind {
	case heap.KindList:
		items = src.List
	case heap.KindTuple:
		items = src.Tuple
	case heap.KindSet:
		items = src.Set
	case heap.KindDict:
		keys := make([]value.Value, len(src.Dict))
		for i, e := range src.Dict {
			keys[i] = e.Key
		}
		items = keys
	}
	if it.Iterator.Index >= len(items) {
		vm.heap.ReleaseValue(vm.pop(), vm.tracker)
		vm.activeFrame().ip += int(delta)
		return nil
	}
	next := items[it.Iterator.Index]
	it.Iterator.Index++
	vm.push(vm.heap.CloneValue(next))
	return nil
}

// unpackTargets pushes targets in reverse so the leftmost logical target
// ends up on top of stack, matching storeIdent's sequential left-to-right
// consumption for UnpackSequence/UnpackEx.
func (vm *VirtualMachine) unpackTargets(targets []value.Value) {
	for i := len(targets) - 1; i >= 0; i-- {
		vm.push(targets[i])
	}
}

func (vm *VirtualMachine) sequenceItems(v value.Value) ([]value.Value, bool) {
	if v.Tag() != value.TagRef {
		return nil, false
	}
	s := vm.heap.Get(v.AsHeapId())
	switch s.Kind {
	case heap.KindList:
		return s.List, true
	case heap.KindTuple:
		return s.Tuple, true
	default:
		return nil, false
	}
}

func (vm *VirtualMachine) unpackSequence(n int) *errz.StructuredError {
	seq := vm.pop()
	items, ok := vm.sequenceItems(seq)
	if !ok || len(items) != n {
		vm.heap.ReleaseValue(seq, vm.tracker)
		return errz.New(errz.ValueError, "wrong number of values to unpack", vm.currentLocation(), nil)
	}
	targets := make([]value.Value, n)
	for i, v := range items {
		targets[i] = vm.heap.CloneValue(v)
	}
	vm.unpackTargets(targets)
	vm.heap.ReleaseValue(seq, vm.tracker)
	return nil
}

func (vm *VirtualMachine) unpackEx(before, after int) *errz.StructuredError {
	seq := vm.pop()
	items, ok := vm.sequenceItems(seq)
	if !ok || len(items) < before+after {
		vm.heap.ReleaseValue(seq, vm.tracker)
		return errz.New(errz.ValueError, "not enough values to unpack", vm.currentLocation(), nil)
	}
	targets := make([]value.Value, 0, before+after+1)
	for i := 0; i < before; i++ {
		targets = append(targets, vm.heap.CloneValue(items[i]))
	}
	rest := make([]value.Value, len(items)-before-after)
	for i := range rest {
		rest[i] = vm.heap.CloneValue(items[before+i])
	}
	restID, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindList, List: rest}, vm.tracker)
	if err != nil {
		for _, v := range targets {
			vm.heap.ReleaseValue(v, vm.tracker)
		}
		for _, v := range rest {
			vm.heap.ReleaseValue(v, vm.tracker)
		}
		vm.heap.ReleaseValue(seq, vm.tracker)
		return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	targets = append(targets, value.Ref(restID))
	for i := 0; i < after; i++ {
		targets = append(targets, vm.heap.CloneValue(items[len(items)-after+i]))
	}
	vm.unpackTargets(targets)
	vm.heap.ReleaseValue(seq, vm.tracker)
	return nil
}

// makeFunction implements MakeFunction: pop numDefaults defaults, push a
// bare value.Function if the function needs no per-instance state, or
// allocate a KindClosure slot when defaults exist.
func (vm *VirtualMachine) makeFunction(fnID value.FunctionId) *errz.StructuredError {
	fn := vm.interns.Function(fnID)
	defaults := vm.popArgs(fn.NumDefaults)
	if fn.NumDefaults == 0 {
		vm.push(value.Function(fnID))
		return nil
	}
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindClosure, ClosureFunctionID: fnID, ClosureDefaults: defaults}, vm.tracker)
	if err != nil {
		for _, v := range defaults {
			vm.heap.ReleaseValue(v, vm.tracker)
		}
		return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	vm.push(value.Ref(id))
	return nil
}

// makeClosure implements MakeClosure: pop cellCount captured cell handles
// (pushed last by compileFunctionDef, so popped first), then the
// function's defaults, and allocate a KindClosure slot carrying both.
func (vm *VirtualMachine) makeClosure(fnID value.FunctionId, cellCount int) *errz.StructuredError {
	fn := vm.interns.Function(fnID)
	cells := vm.popArgs(cellCount)
	defaults := vm.popArgs(fn.NumDefaults)
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindClosure, ClosureFunctionID: fnID, ClosureCells: cells, ClosureDefaults: defaults}, vm.tracker)
	if err != nil {
		for _, v := range cells {
			vm.heap.ReleaseValue(v, vm.tracker)
		}
		for _, v := range defaults {
			vm.heap.ReleaseValue(v, vm.tracker)
		}
		return errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	vm.push(value.Ref(id))
	return nil
}
