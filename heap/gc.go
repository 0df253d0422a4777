package heap

import "github.com/scostello/monty/value"

// childHeapIds returns every HeapId a slot directly references.
func childHeapIds(s *Slot) []value.HeapId {
	var ids []value.HeapId
	add := func(v value.Value) {
		if v.IsHeapBacked() {
			ids = append(ids, v.AsHeapId())
		}
	}
	switch s.Kind {
	case KindList:
		for _, v := range s.List {
			add(v)
		}
	case KindTuple:
		for _, v := range s.Tuple {
			add(v)
		}
	case KindSet:
		for _, v := range s.Set {
			add(v)
		}
	case KindDict:
		for _, e := range s.Dict {
			add(e.Key)
			add(e.Value)
		}
	case KindUserObject:
		for _, v := range s.UserObjectFields {
			add(v)
		}
	case KindCell:
		add(s.Cell)
	case KindException:
		if s.Exception.HasCause {
			ids = append(ids, s.Exception.Cause)
		}
		if s.Exception.HasContext {
			ids = append(ids, s.Exception.Context)
		}
	case KindIterator:
		if s.Iterator.HasSource {
			ids = append(ids, s.Iterator.Source)
		}
	case KindClosure:
		for _, v := range s.ClosureCells {
			add(v)
		}
		for _, v := range s.ClosureDefaults {
			add(v)
		}
	}
	return ids
}

// CollectCycles runs a mark-sweep pass to reclaim self-referential object
// graphs that refcounting alone cannot free. roots must
// include every live Value outside the heap itself: the operand stack,
// every frame's namespace, every frame's cells, and current_exception
// (the VM assembles this list; this package has no notion of frames).
//
// Refcounts of slots reachable from roots are left untouched. Slots found
// unreachable are freed outright: any reference from one doomed slot to
// another doomed slot is not individually decref'd (both are being
// discarded together), but a reference from a doomed slot to a slot that
// remains reachable is decref'd normally, since that reachable slot's
// other incoming references are unaffected.
func (h *Heap) CollectCycles(roots []value.Value) {
	marked := make([]bool, len(h.slots))
	var stack []value.HeapId

	mark := func(id value.HeapId) {
		if int(id) >= len(marked) || marked[id] {
			return
		}
		marked[id] = true
		stack = append(stack, id)
	}

	for _, r := range roots {
		if r.IsHeapBacked() {
			mark(r.AsHeapId())
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !h.slots[id].Live {
			continue
		}
		for _, child := range childHeapIds(&h.slots[id]) {
			mark(child)
		}
	}

	var doomed []value.HeapId
	for i := range h.slots {
		id := value.HeapId(i)
		if h.slots[id].Live && !marked[id] {
			doomed = append(doomed, id)
		}
	}

	for _, id := range doomed {
		s := &h.slots[id]
		if !s.Live {
			continue // already freed by a cascading release below
		}
		for _, child := range childHeapIds(s) {
			if int(child) < len(marked) && marked[child] {
				// The child remains reachable from roots through some
				// other path; this doomed slot contributed exactly one
				// refcount to it, so release that one normally. A
				// cascading release may itself free further reachable
				// slots whose only remaining reference was this one --
				// that is ordinary refcounting, not cycle collection.
				h.slots[child].Refcount--
				if h.slots[child].Refcount == 0 {
					h.freeUnmarked(child, marked)
				}
			}
			// A reference to another doomed slot needs no action: both
			// are being discarded by this same sweep.
		}
		s.Live = false
		*s = Slot{}
		h.freeList = append(h.freeList, id)
	}
}

// freeUnmarked reclaims a slot whose refcount reached zero as a
// consequence of sweeping a cycle, cascading into anything it alone kept
// alive.
func (h *Heap) freeUnmarked(id value.HeapId, marked []bool) {
	s := &h.slots[id]
	if !s.Live {
		return
	}
	children := childHeapIds(s)
	s.Live = false
	*s = Slot{}
	h.freeList = append(h.freeList, id)
	for _, child := range children {
		if int(child) >= len(h.slots) || !h.slots[child].Live {
			continue
		}
		h.slots[child].Refcount--
		if h.slots[child].Refcount == 0 {
			h.freeUnmarked(child, marked)
		}
	}
}
