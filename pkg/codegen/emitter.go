package codegen

import (
	"fmt"
	"io"
	"strings"

	"cminus/pkg/tm"
)

// Emitter writes TM instructions at a movable cursor. Forward branches are
// backpatched by reserving slots, rewinding to them once the target is
// known, emitting the branch, and restoring the cursor to the high-water
// mark.
type Emitter struct {
	// Trace enables comments in the listing. BUG diagnostics are always
	// written.
	Trace bool

	loc   int // next slot to write
	high  int // highest slot written or reserved, plus one
	image []tm.Instruction
	lines []string
	bugs  int
}

func NewEmitter(trace bool) *Emitter {
	return &Emitter{Trace: trace}
}

// Loc is the slot the next instruction will be written to.
func (e *Emitter) Loc() int { return e.loc }

// Bugs is the number of BUG diagnostics written so far.
func (e *Emitter) Bugs() int { return e.bugs }

func (e *Emitter) put(in tm.Instruction, comment string) {
	for len(e.image) <= e.loc {
		e.image = append(e.image, tm.RO(tm.HALT, 0, 0, 0))
	}
	e.image[e.loc] = in
	if !e.Trace {
		comment = ""
	}
	e.lines = append(e.lines, tm.FormatLine(e.loc, in, comment))
	e.loc++
	if e.high < e.loc {
		e.high = e.loc
	}
}

// RO emits a register-only instruction.
func (e *Emitter) RO(op tm.Opcode, r, s, t int, comment string) {
	e.put(tm.RO(op, r, s, t), comment)
}

// RM emits a register-memory instruction.
func (e *Emitter) RM(op tm.Opcode, r, d, s int, comment string) {
	e.put(tm.RM(op, r, d, s), comment)
}

// Comment writes a free-standing comment line in trace mode.
func (e *Emitter) Comment(format string, args ...any) {
	if e.Trace {
		e.lines = append(e.lines, tm.FormatComment(fmt.Sprintf(format, args...)))
	}
}

func (e *Emitter) bug(format string, args ...any) {
	e.bugs++
	e.lines = append(e.lines, tm.FormatComment("BUG: "+fmt.Sprintf(format, args...)))
	tracer().Errorf("BUG: "+format, args...)
}

// Reserve skips n slots and returns the first of them.
func (e *Emitter) Reserve(n int) int {
	first := e.loc
	e.loc += n
	if e.high < e.loc {
		e.high = e.loc
	}
	return first
}

// Rewind moves the cursor back to a slot returned by Reserve. Moving past
// the high-water mark is a generator bug; it is reported in the listing
// and not otherwise acted on.
func (e *Emitter) Rewind(loc int) {
	if loc > e.high {
		e.bug("rewind to %d past high-water mark %d", loc, e.high)
	}
	e.loc = loc
}

// Restore returns the cursor to the high-water mark.
func (e *Emitter) Restore() { e.loc = e.high }

// At returns the instruction currently stored at slot.
func (e *Emitter) At(slot int) tm.Instruction {
	if slot < 0 || slot >= len(e.image) {
		return tm.RO(tm.HALT, 0, 0, 0)
	}
	return e.image[slot]
}

// Program returns the slot-indexed instruction image.
func (e *Emitter) Program() *tm.Program {
	ins := make([]tm.Instruction, len(e.image))
	copy(ins, e.image)
	return &tm.Program{Instructions: ins}
}

// Listing returns the instruction stream in emission order.
func (e *Emitter) Listing() string {
	if len(e.lines) == 0 {
		return ""
	}
	return strings.Join(e.lines, "\n") + "\n"
}

func (e *Emitter) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, e.Listing())
	return int64(n), err
}
