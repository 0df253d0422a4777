// Package heap implements the refcounted slab of mutable/large objects.
// HeapIds are stable across the periodic mark-sweep cycle collector; only
// an explicit Alloc reuses a freed slot.
//
// This package has no analog in risor's own object model --
// risor leans on Go's garbage collector for everything heap-resident, but
// a guest program embedding this VM needs deterministic, bounded memory
// behavior rather than host-GC pauses, so the refcount/free-list/
// mark-sweep mechanics here are grounded on original_source/src/heap.rs
// instead.
package heap

import (
	"fmt"

	"github.com/scostello/monty/resource"
	"github.com/scostello/monty/value"
)

// Heap owns every heap-resident slot for one VM instance.
type Heap struct {
	slots    []Slot
	freeList []value.HeapId

	// gcInterval is the number of allocations between automatic
	// collect-cycles passes; 0 disables automatic collection (the
	// embedder or VM can still call CollectCycles explicitly).
	gcInterval    int
	allocsSinceGC int
	collectDue    bool
}

// CollectDue reports whether gcInterval allocations have elapsed since the
// last reset, meaning the caller (the vm package, which alone knows the
// live-root set) should run CollectCycles. ClearCollectDue resets it.
func (h *Heap) CollectDue() bool { return h.collectDue }

// ClearCollectDue resets the due flag, typically right after the caller
// runs CollectCycles.
func (h *Heap) ClearCollectDue() { h.collectDue = false }

// New creates an empty Heap. gcInterval is the embedder-configurable
// number of allocations between automatic collection passes (0 disables
// automatic collection).
func New(gcInterval int) *Heap {
	return &Heap{gcInterval: gcInterval}
}

// SetGCInterval changes the automatic-collection threshold after
// construction, letting a vm.Option reconfigure a Heap it was handed
// rather than requiring the embedder to pass the interval to heap.New
// before the VM exists.
func (h *Heap) SetGCInterval(interval int) { h.gcInterval = interval }

// Alloc reserves a slot for data, reusing a freed slot if the free list is
// non-empty, and returns its HeapId with an initial refcount of 1.
// tracker.OnAlloc is consulted first; a resource.LimitExceeded outcome
// aborts the allocation and returns an error instead of a HeapId, leaving
// the heap unmodified.
func (h *Heap) Alloc(data Slot, tracker resource.Tracker) (value.HeapId, error) {
	if outcome := tracker.OnAlloc(slotSize(data)); outcome != resource.OK {
		return 0, fmt.Errorf("monty: allocation limit exceeded")
	}
	data.Refcount = 1
	data.Live = true

	var id value.HeapId
	if n := len(h.freeList); n > 0 {
		id = h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
		h.slots[id] = data
	} else {
		id = value.HeapId(len(h.slots))
		h.slots = append(h.slots, data)
	}

	h.allocsSinceGC++
	if h.gcInterval > 0 && h.allocsSinceGC >= h.gcInterval {
		h.allocsSinceGC = 0
		h.collectDue = true
	}
	return id, nil
}

// Slots returns the heap's backing slot table for snapshotting. The
// returned slice aliases the heap's own storage; a caller that is not the
// snapshot package's Dump (which serializes it immediately) should copy it.
func (h *Heap) Slots() []Slot { return h.slots }

// FreeList returns the heap's free slot-id list for snapshotting.
func (h *Heap) FreeList() []value.HeapId { return h.freeList }

// Restore replaces the heap's slot table and free list wholesale, for
// reconstructing a Heap from a snapshot. gcInterval/allocsSinceGC/
// collectDue are left at New's zero values -- a reloaded heap starts its
// collection cadence fresh rather than resuming a stale countdown.
func (h *Heap) Restore(slots []Slot, freeList []value.HeapId) {
	h.slots = slots
	h.freeList = freeList
}

// slotSize estimates the byte cost of a slot for accounting purposes.
// This is intentionally approximate -- the resource.Tracker contract only
// requires *some* monotonic notion of allocation size, not an exact one.
func slotSize(s Slot) int {
	const wordSize = 16 // sizeof(value.Value)
	switch s.Kind {
	case KindList:
		return len(s.List) * wordSize
	case KindDict:
		return len(s.Dict) * wordSize * 2
	case KindSet:
		return len(s.Set) * wordSize
	case KindTuple:
		return len(s.Tuple) * wordSize
	case KindUserObject:
		return len(s.UserObjectFields) * wordSize
	case KindBytes:
		return len(s.Bytes)
	case KindLongString:
		return len(s.LongString)
	case KindClosure:
		return (len(s.ClosureCells) + len(s.ClosureDefaults)) * wordSize
	default:
		return wordSize
	}
}

// Get returns a read-only view of slot id. It panics on a dangling
// reference (a decref'd-to-zero-and-freed id reused by Value elsewhere is
// a VM bug, not a guest-triggerable condition) to surface the bug loudly
// rather than return corrupted data.
func (h *Heap) Get(id value.HeapId) *Slot {
	s := &h.slots[id]
	if !s.Live {
		panic(fmt.Sprintf("monty: heap: use of freed slot %d", id))
	}
	return s
}

// GetMut returns a mutable view of slot id. Same liveness contract as Get.
func (h *Heap) GetMut(id value.HeapId) *Slot {
	return h.Get(id)
}

// Incref increments the refcount of slot id. It is invalid to incref a
// slot with refcount 0 (i.e. one already released); callers must not call
// Incref on a HeapId they have not independently kept a live reference
// to.
func (h *Heap) Incref(id value.HeapId) {
	h.slots[id].Refcount++
}

// Decref decrements the refcount of slot id. When it reaches zero, the
// slot's own heap-backed contents are recursively released (so dropping a
// list releases every element it held a refcount on) and the slot is
// freed for reuse. This is the operation that must be called exactly once
// per refcount any live Value contributes.
func (h *Heap) Decref(id value.HeapId, tracker resource.Tracker) {
	s := &h.slots[id]
	if !s.Live {
		panic(fmt.Sprintf("monty: heap: decref of freed slot %d", id))
	}
	if s.Refcount == 0 {
		panic(fmt.Sprintf("monty: heap: refcount underflow on slot %d", id))
	}
	s.Refcount--
	if s.Refcount > 0 {
		return
	}
	h.releaseContents(s, tracker)
	s.Live = false
	*s = Slot{}
	h.freeList = append(h.freeList, id)
}

// releaseContents decrefs every heap-backed Value a slot directly holds.
func (h *Heap) releaseContents(s *Slot, tracker resource.Tracker) {
	release := func(v value.Value) {
		if v.IsHeapBacked() {
			h.Decref(v.AsHeapId(), tracker)
		}
	}
	switch s.Kind {
	case KindList, KindTuple:
		items := s.List
		if s.Kind == KindTuple {
			items = s.Tuple
		}
		for _, v := range items {
			release(v)
		}
	case KindSet:
		for _, v := range s.Set {
			release(v)
		}
	case KindDict:
		for _, e := range s.Dict {
			release(e.Key)
			release(e.Value)
		}
	case KindUserObject:
		for _, v := range s.UserObjectFields {
			release(v)
		}
	case KindCell:
		release(s.Cell)
	case KindException:
		if s.Exception.HasCause {
			h.Decref(s.Exception.Cause, tracker)
		}
		if s.Exception.HasContext {
			h.Decref(s.Exception.Context, tracker)
		}
	case KindIterator:
		if s.Iterator.HasSource {
			h.Decref(s.Iterator.Source, tracker)
		}
	case KindClosure:
		for _, v := range s.ClosureCells {
			release(v)
		}
		for _, v := range s.ClosureDefaults {
			release(v)
		}
	}
}

// CloneValue returns v unchanged, incrementing the target slot's refcount
// first if v is heap-backed. This is the explicit "incref on clone"
// operation this VM uses in place of an implicit Clone/Copy.
func (h *Heap) CloneValue(v value.Value) value.Value {
	if v.IsHeapBacked() {
		h.Incref(v.AsHeapId())
	}
	return v
}

// ReleaseValue decrefs v's target slot if v is heap-backed, otherwise does
// nothing. This is the explicit "decref on drop" operation every fallible
// VM path must call on every operand it consumes before propagating a
// failure.
func (h *Heap) ReleaseValue(v value.Value, tracker resource.Tracker) {
	if v.IsHeapBacked() {
		h.Decref(v.AsHeapId(), tracker)
	}
}

// SlotCount returns the number of slots ever allocated (including freed
// ones still occupying an index). Used by snapshotting and by tests that
// assert on heap shape.
func (h *Heap) SlotCount() int { return len(h.slots) }

// Refcount returns the current refcount of slot id, or 0 if it is not
// live. Exists for tests verifying refcount conservation: every Alloc's
// initial reference is matched by exactly one eventual Decref.
func (h *Heap) Refcount(id value.HeapId) uint32 {
	if int(id) >= len(h.slots) {
		return 0
	}
	s := &h.slots[id]
	if !s.Live {
		return 0
	}
	return s.Refcount
}

// IsLive reports whether slot id currently holds live data.
func (h *Heap) IsLive(id value.HeapId) bool {
	if int(id) >= len(h.slots) {
		return false
	}
	return h.slots[id].Live
}

// IsTruthy implements the is_truthy() rule for a Value that may be
// heap-backed: zero numeric, empty container, None, False are falsy,
// everything else is truthy (this is the Rust original's rule, confirmed
// in original_source/src/value.rs and carried over verbatim).
func (h *Heap) IsTruthy(v value.Value) bool {
	switch v.Tag() {
	case value.TagNone:
		return false
	case value.TagBool:
		return v.AsBool()
	case value.TagInt:
		return v.AsInt() != 0
	case value.TagFloat:
		return v.AsFloat() != 0
	case value.TagRef:
		s := h.Get(v.AsHeapId())
		switch s.Kind {
		case KindList:
			return len(s.List) != 0
		case KindTuple:
			return len(s.Tuple) != 0
		case KindSet:
			return len(s.Set) != 0
		case KindDict:
			return len(s.Dict) != 0
		case KindBytes:
			return len(s.Bytes) != 0
		case KindLongString:
			return s.LongString != ""
		default:
			return true
		}
	default:
		return true
	}
}
