// Package tm models the Tiny Machine: its instruction set, the textual
// listing format the code generator writes, a loader for that format and
// a simulator that executes loaded programs.
package tm

import "fmt"

type Opcode int

// Register-only instructions: op r,s,t
const (
	HALT Opcode = iota
	IN
	OUT
	ADD
	SUB
	MUL
	DIV
)

// Register-memory instructions: op r,d(s)
const (
	LD Opcode = iota + 16
	ST
	LDA
	LDC
	JLT
	JLE
	JGT
	JGE
	JEQ
	JNE
)

var opcodeNames = map[Opcode]string{
	HALT: "HALT", IN: "IN", OUT: "OUT",
	ADD: "ADD", SUB: "SUB", MUL: "MUL", DIV: "DIV",
	LD: "LD", ST: "ST", LDA: "LDA", LDC: "LDC",
	JLT: "JLT", JLE: "JLE", JGT: "JGT", JGE: "JGE", JEQ: "JEQ", JNE: "JNE",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// RegisterOnly reports whether op takes three register operands.
func (op Opcode) RegisterOnly() bool { return op <= DIV }

// IsJump reports whether op is a conditional branch.
func (op Opcode) IsJump() bool { return op >= JLT && op <= JNE }

// Registers used by generated code. Register 3 is unused.
const (
	Zero = 0 // always holds 0 by convention, never written
	AX   = 1 // accumulator
	BX   = 2 // address scratch
	SP   = 4 // stack pointer
	BP   = 5 // frame pointer
	GP   = 6 // global pointer
	PC   = 7 // program counter

	NumRegs = 8
)

// Instruction is one TM instruction. Register-only instructions use R, S
// and T; register-memory instructions use R, D and S.
//
//	ADD  1,2,1    Instruction{Op: ADD, R: 1, S: 2, T: 1}
//	LD   1,-3(5)  Instruction{Op: LD, R: 1, D: -3, S: 5}
type Instruction struct {
	Op      Opcode
	R, S, T int
	D       int
}

func RO(op Opcode, r, s, t int) Instruction {
	return Instruction{Op: op, R: r, S: s, T: t}
}

func RM(op Opcode, r, d, s int) Instruction {
	return Instruction{Op: op, R: r, D: d, S: s}
}

// String renders the instruction in listing syntax without a slot number.
func (in Instruction) String() string {
	if in.Op.RegisterOnly() {
		return fmt.Sprintf("%5s  %d,%d,%d ", in.Op, in.R, in.S, in.T)
	}
	return fmt.Sprintf("%5s  %d,%d(%d) ", in.Op, in.R, in.D, in.S)
}
