package bytecode

import (
	"fmt"
	"math"

	"github.com/scostello/monty/op"
	"github.com/scostello/monty/value"
)

// Label is a forward reference to a bytecode offset that has not been
// emitted yet. EmitJump returns one; Patch fills it in once the target
// offset is known.
type Label struct {
	// operandOffset is the byte offset of the jump's i16 operand.
	operandOffset int
}

// CodeBuilder incrementally assembles a Code object: it owns the growing
// instruction buffer, the constant pool, the location table, the
// exception table, and a running maximum stack depth.
type CodeBuilder struct {
	name     string
	filename string

	buf       []byte
	constants []value.Value
	locations []Location

	exceptionTable []ExceptionHandler

	numLocals uint16

	stackDepth    int
	maxStackDepth int

	children []*Code
}

// NewCodeBuilder creates an empty builder for a function or module body
// named name, compiled from filename.
func NewCodeBuilder(name, filename string) *CodeBuilder {
	return &CodeBuilder{name: name, filename: filename}
}

// Offset returns the current end-of-buffer byte offset: the offset the
// next emitted instruction will start at.
func (b *CodeBuilder) Offset() int { return len(b.buf) }

// SetNumLocals records the namespace size.
func (b *CodeBuilder) SetNumLocals(n uint16) { b.numLocals = n }

// AddChild registers a nested function Code for inclusion in the parent's
// Children slice (used by snapshot/disassembly to walk the whole program).
func (b *CodeBuilder) AddChild(c *Code) { b.children = append(b.children, c) }

// AddConstant appends v to the constant pool and returns its index. Equal
// Values are not deduplicated here: the compiler may intentionally emit
// distinct constant slots for syntactically distinct literals, and
// deduplication of interned content (strings/bytes/functions) already
// happens one layer down in the intern package.
func (b *CodeBuilder) AddConstant(v value.Value) uint16 {
	if len(b.constants) >= math.MaxUint16 {
		panic("monty: constant pool overflow")
	}
	idx := uint16(len(b.constants))
	b.constants = append(b.constants, v)
	return idx
}

// TrackStack adjusts the builder's notion of the current operand stack
// depth by delta and records a new maximum if needed. Every emission
// helper below calls this so StackSize is always an accurate upper bound.
func (b *CodeBuilder) TrackStack(delta int) {
	b.stackDepth += delta
	if b.stackDepth < 0 {
		panic(fmt.Sprintf("monty: stack underflow tracked in compiler for %q", b.name))
	}
	if b.stackDepth > b.maxStackDepth {
		b.maxStackDepth = b.stackDepth
	}
}

// StackDepth returns the builder's current tracked operand stack depth.
func (b *CodeBuilder) StackDepth() int { return b.stackDepth }

// AddLocation appends a location-table entry describing the instruction
// about to be emitted at the builder's current offset.
func (b *CodeBuilder) AddLocation(r SourceRange, focus *SourceRange) {
	b.locations = append(b.locations, Location{Offset: uint32(b.Offset()), Range: r, Focus: focus})
}

func (b *CodeBuilder) emitByte(byt byte) { b.buf = append(b.buf, byt) }

func (b *CodeBuilder) emitU16(v uint16) {
	b.buf = append(b.buf, byte(v), byte(v>>8))
}

func (b *CodeBuilder) emitI16(v int16) { b.emitU16(uint16(v)) }

// Emit writes a no-operand opcode.
func (b *CodeBuilder) Emit(code op.Code) int {
	ip := b.Offset()
	b.emitByte(byte(code))
	return ip
}

// EmitU8 writes an opcode with a single unsigned-byte operand.
func (b *CodeBuilder) EmitU8(code op.Code, operand uint8) int {
	ip := b.Offset()
	b.emitByte(byte(code))
	b.emitByte(operand)
	return ip
}

// EmitI8 writes an opcode with a single signed-byte operand.
func (b *CodeBuilder) EmitI8(code op.Code, operand int8) int {
	ip := b.Offset()
	b.emitByte(byte(code))
	b.emitByte(byte(operand))
	return ip
}

// EmitU16 writes an opcode with a single unsigned 16-bit operand.
func (b *CodeBuilder) EmitU16(code op.Code, operand uint16) int {
	if int(operand) > math.MaxUint16 {
		panic(fmt.Sprintf("monty: operand overflow in %q", b.name))
	}
	ip := b.Offset()
	b.emitByte(byte(code))
	b.emitU16(operand)
	return ip
}

// EmitU16U8 writes an opcode with a u16 operand followed by a u8 operand.
func (b *CodeBuilder) EmitU16U8(code op.Code, a uint16, c uint8) int {
	ip := b.Offset()
	b.emitByte(byte(code))
	b.emitU16(a)
	b.emitByte(c)
	return ip
}

// EmitU8U8 writes an opcode with two unsigned byte operands.
func (b *CodeBuilder) EmitU8U8(code op.Code, a, c uint8) int {
	ip := b.Offset()
	b.emitByte(byte(code))
	b.emitByte(a)
	b.emitByte(c)
	return ip
}

// EmitJump writes a jump opcode with a placeholder i16 offset and returns
// a Label that must later be resolved with Patch or PatchTo.
func (b *CodeBuilder) EmitJump(code op.Code) Label {
	b.emitByte(byte(code))
	operandOffset := b.Offset()
	b.emitI16(0)
	return Label{operandOffset: operandOffset}
}

// PatchTo resolves a Label's jump offset to target, an absolute bytecode
// offset. The offset is encoded relative to the byte immediately after the
// jump instruction's operand. Overflow of the i16
// range is a deterministic compile-time panic rather than a silently
// truncated offset.
func (b *CodeBuilder) PatchTo(l Label, target int) {
	base := l.operandOffset + 2
	delta := target - base
	if delta < math.MinInt16 || delta > math.MaxInt16 {
		panic(fmt.Sprintf("monty: jump offset %d out of i16 range in %q", delta, b.name))
	}
	rel := int16(delta)
	b.buf[l.operandOffset] = byte(uint16(rel))
	b.buf[l.operandOffset+1] = byte(uint16(rel) >> 8)
}

// PatchHere resolves a Label's jump offset to the builder's current
// offset (the next instruction to be emitted).
func (b *CodeBuilder) PatchHere(l Label) { b.PatchTo(l, b.Offset()) }

// AddExceptionHandler appends an entry to the exception table. Entries
// must be appended innermost-first by the caller: the
// compiler emits a try block's handler entry before any handler entry for
// a try block that encloses it, since it finishes compiling the inner
// block first.
func (b *CodeBuilder) AddExceptionHandler(h ExceptionHandler) {
	b.exceptionTable = append(b.exceptionTable, h)
}

// Finish produces the immutable Code object. panic if the instruction
// buffer or any jump target is malformed is deliberately the compiler's
// job to avoid by construction, not this method's job to detect -- by the
// time Finish is called every offset in the buffer has already been
// resolved by Emit*/Patch* calls.
func (b *CodeBuilder) Finish() *Code {
	return &Code{
		Name:           b.name,
		Filename:       b.filename,
		Bytecode:       b.buf,
		Constants:      b.constants,
		Locations:      b.locations,
		ExceptionTable: b.exceptionTable,
		NumLocals:      b.numLocals,
		StackSize:      uint16(b.maxStackDepth),
		Children:       b.children,
	}
}
