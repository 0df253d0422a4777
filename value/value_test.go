package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	require.Equal(t, int64(42), Int(42).AsInt())
	require.Equal(t, 3.5, Float(3.5).AsFloat())
	require.True(t, Bool(true).AsBool())
	require.False(t, Bool(false).AsBool())
	require.True(t, None.IsNone())
}

func TestIdRoundTrip(t *testing.T) {
	require.Equal(t, StringId(7), InternString(7).AsStringId())
	require.Equal(t, BytesId(9), InternBytes(9).AsBytesId())
	require.Equal(t, HeapId(3), Ref(3).AsHeapId())
	require.Equal(t, FunctionId(4), Function(4).AsFunctionId())
	require.Equal(t, ExtFnId(5), ExtFunction(5).AsExtFnId())
	require.Equal(t, HeapId(6), Cell(6).AsHeapId())
}

func TestIsHeapBacked(t *testing.T) {
	require.True(t, Ref(1).IsHeapBacked())
	require.True(t, Cell(1).IsHeapBacked())
	require.False(t, Int(1).IsHeapBacked())
	require.False(t, None.IsHeapBacked())
	require.False(t, InternString(1).IsHeapBacked())
}

func TestValueIsPlainOldData(t *testing.T) {
	// Copying a Value must not panic or require any release -- it carries
	// no finalizer and no destructor. This test exists to document that
	// invariant, since Value deliberately has no Drop-like mechanism.
	a := Ref(1)
	b := a
	_ = b
	require.Equal(t, a, b)
}
