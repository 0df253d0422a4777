package bytecode

import (
	"testing"

	"github.com/scostello/monty/op"
	"github.com/scostello/monty/value"
	"github.com/stretchr/testify/require"
)

func TestBuilderEmitsOperands(t *testing.T) {
	b := NewCodeBuilder("test", "test.py")
	b.TrackStack(1)
	b.Emit(op.LoadNone)
	b.TrackStack(1)
	idx := b.AddConstant(value.Int(42))
	b.EmitU16(op.LoadConst, idx)
	code := b.Finish()

	require.Equal(t, []byte{byte(op.LoadNone), byte(op.LoadConst), 42, 0}, code.Bytecode)
	require.Equal(t, uint16(2), code.StackSize)
	require.Equal(t, int64(42), code.Constants[0].AsInt())
}

func TestJumpPatchingForward(t *testing.T) {
	b := NewCodeBuilder("test", "test.py")
	label := b.EmitJump(op.Jump)
	b.Emit(op.Nop)
	target := b.Offset()
	b.PatchTo(label, target)
	code := b.Finish()

	// Jump opcode (1) + i16 operand (2) = 3 bytes, then Nop at offset 3;
	// the target is offset 4, just past the Nop.
	require.Equal(t, byte(op.Jump), code.Bytecode[0])
	rel := int16(uint16(code.Bytecode[1]) | uint16(code.Bytecode[2])<<8)
	require.Equal(t, int16(1), rel) // target (offset 4) - operand base (offset 3)
}

func TestJumpPatchingBackward(t *testing.T) {
	b := NewCodeBuilder("test", "test.py")
	top := b.Offset()
	b.Emit(op.Nop)
	label := b.EmitJump(op.Jump)
	b.PatchTo(label, top)
	code := b.Finish()

	rel := int16(uint16(code.Bytecode[2]) | uint16(code.Bytecode[3])<<8)
	require.Equal(t, int16(-4), rel)
}

func TestJumpOverflowPanics(t *testing.T) {
	b := NewCodeBuilder("test", "test.py")
	label := b.EmitJump(op.Jump)
	require.Panics(t, func() {
		b.PatchTo(label, 1<<17)
	})
}

func TestStackUnderflowPanics(t *testing.T) {
	b := NewCodeBuilder("test", "test.py")
	require.Panics(t, func() {
		b.TrackStack(-1)
	})
}

func TestLocationAtFindsGreatestOffsetAtOrBelow(t *testing.T) {
	b := NewCodeBuilder("test", "test.py")
	b.AddLocation(SourceRange{StartLine: 1}, nil)
	b.Emit(op.LoadNone)
	b.AddLocation(SourceRange{StartLine: 2}, nil)
	b.Emit(op.Pop)
	code := b.Finish()

	loc, ok := code.LocationAt(1)
	require.True(t, ok)
	require.Equal(t, 2, loc.Range.StartLine)

	loc, ok = code.LocationAt(0)
	require.True(t, ok)
	require.Equal(t, 1, loc.Range.StartLine)
}

func TestHandlerForInnermostFirst(t *testing.T) {
	code := &Code{
		ExceptionTable: []ExceptionHandler{
			{Start: 5, End: 10, Handler: 20, StackDepth: 1},
			{Start: 0, End: 15, Handler: 25, StackDepth: 0},
		},
	}
	h, ok := code.HandlerFor(7)
	require.True(t, ok)
	require.Equal(t, uint32(20), h.Handler)

	h, ok = code.HandlerFor(12)
	require.True(t, ok)
	require.Equal(t, uint32(25), h.Handler)

	_, ok = code.HandlerFor(100)
	require.False(t, ok)
}
