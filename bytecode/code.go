// Package bytecode defines the compiled-code object, its constant pool,
// source-location table, and exception-handler table.
// A Code is immutable after construction and safe for concurrent reads.
package bytecode

import (
	"fmt"

	"github.com/scostello/monty/value"
)

// SourceRange is a half-open span of source positions, used both for a
// location-table entry's full expression range and its optional focus
// sub-range.
type SourceRange struct {
	StartLine, StartColumn int
	EndLine, EndColumn     int
}

// Location is one entry of a Code's location table: the bytecode offset it
// describes, the full source range of the expression/statement that
// produced the instructions there, and an optional narrower Focus range
// used for caret-underline captions.
type Location struct {
	Offset uint32
	Range  SourceRange
	Focus  *SourceRange
}

// ExceptionHandler is one entry of a Code's exception table. The table is
// sorted innermost-first: entries covering a narrower try block come
// before entries covering an enclosing one, so a linear scan finds the
// correct handler for a given raise.
type ExceptionHandler struct {
	Start, End uint32 // [Start, End) range of IPs the handler covers
	Handler    uint32 // IP to resume at when this handler catches
	StackDepth uint16 // operand stack depth required at Start..End
}

// Code is an immutable compiled unit: bytecode plus everything needed to
// execute, debug, and snapshot it.
type Code struct {
	Name         string
	Filename     string
	Bytecode     []byte
	Constants    []value.Value
	Locations    []Location
	ExceptionTable []ExceptionHandler
	NumLocals    uint16
	StackSize    uint16

	// Children holds nested function Code objects reachable as constants,
	// kept alongside for convenient whole-program iteration (snapshotting,
	// disassembly) without walking the constant pool.
	Children []*Code
}

// LocationAt returns the Location entry covering ip: the greatest entry
// whose Offset <= ip. ok is false if the table is empty.
func (c *Code) LocationAt(ip int) (Location, bool) {
	if len(c.Locations) == 0 {
		return Location{}, false
	}
	// Locations are appended in ascending offset order by the builder; a
	// linear forward scan that stops at the first entry past ip finds the
	// last entry at or before ip. Code
	// objects are small enough in practice that this avoids a binary
	// search without materially affecting lookup cost.
	best := -1
	for i, loc := range c.Locations {
		if int(loc.Offset) <= ip {
			best = i
		} else {
			break
		}
	}
	if best == -1 {
		return Location{}, false
	}
	return c.Locations[best], true
}

// HandlerFor returns the innermost ExceptionHandler covering ip, if any.
func (c *Code) HandlerFor(ip int) (ExceptionHandler, bool) {
	for _, h := range c.ExceptionTable {
		if uint32(ip) >= h.Start && uint32(ip) < h.End {
			return h, true
		}
	}
	return ExceptionHandler{}, false
}

// String implements a minimal disassembly-free description, useful in
// panics and test failure messages.
func (c *Code) String() string {
	return fmt.Sprintf("Code(name=%q, bytes=%d, consts=%d)", c.Name, len(c.Bytecode), len(c.Constants))
}
