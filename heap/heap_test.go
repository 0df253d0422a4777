package heap

import (
	"testing"
	"time"

	"github.com/scostello/monty/resource"
	"github.com/scostello/monty/value"
	"github.com/stretchr/testify/require"
)

func TestAllocIncrefDecref(t *testing.T) {
	h := New(0)
	var tr resource.NoLimitTracker

	id, err := h.Alloc(Slot{Kind: KindList, List: []value.Value{value.Int(1)}}, tr)
	require.NoError(t, err)
	require.Equal(t, uint32(1), h.Refcount(id))

	h.Incref(id)
	require.Equal(t, uint32(2), h.Refcount(id))

	h.Decref(id, tr)
	require.True(t, h.IsLive(id))
	require.Equal(t, uint32(1), h.Refcount(id))

	h.Decref(id, tr)
	require.False(t, h.IsLive(id))
}

func TestDecrefReleasesContainedValues(t *testing.T) {
	h := New(0)
	var tr resource.NoLimitTracker

	inner, err := h.Alloc(Slot{Kind: KindList}, tr)
	require.NoError(t, err)

	outer, err := h.Alloc(Slot{Kind: KindList, List: []value.Value{value.Ref(inner)}}, tr)
	require.NoError(t, err)
	h.Incref(inner) // the list's element contributes a refcount

	require.Equal(t, uint32(2), h.Refcount(inner))
	h.Decref(outer, tr)
	require.False(t, h.IsLive(outer))
	require.Equal(t, uint32(1), h.Refcount(inner))

	h.Decref(inner, tr)
	require.False(t, h.IsLive(inner))
}

func TestFreeSlotReused(t *testing.T) {
	h := New(0)
	var tr resource.NoLimitTracker

	id1, _ := h.Alloc(Slot{Kind: KindList}, tr)
	h.Decref(id1, tr)

	id2, _ := h.Alloc(Slot{Kind: KindTuple}, tr)
	require.Equal(t, id1, id2)
	require.Equal(t, KindTuple, h.Get(id2).Kind)
}

func TestAllocLimitExceeded(t *testing.T) {
	h := New(0)
	tr := resource.NewLimitedTracker(resource.Limits{MaxAllocations: 1}, time.Now())
	_, err := h.Alloc(Slot{Kind: KindList}, tr)
	require.NoError(t, err)
	_, err = h.Alloc(Slot{Kind: KindList}, tr)
	require.Error(t, err)
}

func TestIsTruthy(t *testing.T) {
	h := New(0)
	var tr resource.NoLimitTracker

	require.False(t, h.IsTruthy(value.None))
	require.False(t, h.IsTruthy(value.Int(0)))
	require.True(t, h.IsTruthy(value.Int(1)))
	require.False(t, h.IsTruthy(value.Bool(false)))

	emptyList, _ := h.Alloc(Slot{Kind: KindList}, tr)
	require.False(t, h.IsTruthy(value.Ref(emptyList)))

	nonEmptyList, _ := h.Alloc(Slot{Kind: KindList, List: []value.Value{value.Int(1)}}, tr)
	require.True(t, h.IsTruthy(value.Ref(nonEmptyList)))
}

func TestCollectCyclesReclaimsSelfReference(t *testing.T) {
	h := New(0)
	var tr resource.NoLimitTracker

	a, _ := h.Alloc(Slot{Kind: KindList}, tr)
	// a.list = [Ref(a)] -- a self-referential cycle with no external root.
	h.GetMut(a).List = []value.Value{value.Ref(a)}
	h.Incref(a) // the self-reference contributes a refcount

	require.Equal(t, uint32(2), h.Refcount(a))
	h.CollectCycles(nil)
	require.False(t, h.IsLive(a))
}

func TestCollectCyclesKeepsRootedObjects(t *testing.T) {
	h := New(0)
	var tr resource.NoLimitTracker

	a, _ := h.Alloc(Slot{Kind: KindList}, tr)
	h.CollectCycles([]value.Value{value.Ref(a)})
	require.True(t, h.IsLive(a))
}
