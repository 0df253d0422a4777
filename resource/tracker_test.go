package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoLimitTrackerAlwaysOK(t *testing.T) {
	var tr NoLimitTracker
	require.Equal(t, OK, tr.OnAlloc(1<<30))
	require.Equal(t, OK, tr.OnTick(1<<30))
	require.Equal(t, OK, tr.CheckStack(1<<30))
}

func TestLimitedTrackerAllocationLimit(t *testing.T) {
	tr := NewLimitedTracker(Limits{MaxAllocations: 2}, time.Now())
	require.Equal(t, OK, tr.OnAlloc(1))
	require.Equal(t, OK, tr.OnAlloc(1))
	require.Equal(t, LimitExceeded, tr.OnAlloc(1))
}

func TestLimitedTrackerMemoryLimit(t *testing.T) {
	tr := NewLimitedTracker(Limits{MaxMemoryBytes: 100}, time.Now())
	require.Equal(t, OK, tr.OnAlloc(50))
	require.Equal(t, LimitExceeded, tr.OnAlloc(51))
}

func TestLimitedTrackerRecursionLimit(t *testing.T) {
	tr := NewLimitedTracker(Limits{MaxRecursionDepth: 3}, time.Now())
	require.Equal(t, OK, tr.CheckStack(3))
	require.Equal(t, RecursionLimit, tr.CheckStack(4))
}

func TestLimitedTrackerDeadline(t *testing.T) {
	tr := NewLimitedTracker(Limits{MaxDurationSecs: 0.01}, time.Now())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, Timeout, tr.OnTick(1))
}

func TestLimitedTrackerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := NewLimitedTracker(Limits{}, time.Now())
	tr.WatchContext(ctx)
	cancel()
	require.Eventually(t, func() bool {
		return tr.OnTick(1) == Timeout
	}, time.Second, time.Millisecond)
}
