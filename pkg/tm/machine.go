package tm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

const (
	DefaultIMemSize = 1024
	DefaultDMemSize = 1024
)

var (
	ErrIMemRange      = errors.New("instruction memory fault")
	ErrDMemRange      = errors.New("data memory fault")
	ErrDivideByZero   = errors.New("division by zero")
	ErrInputExhausted = errors.New("no more input")
	ErrBadInput       = errors.New("input is not an integer")
	ErrStepLimit      = errors.New("step limit reached")
	ErrHalted         = errors.New("machine is halted")
)

// Machine executes a loaded program. Registers and data memory are reset
// by Reset; dMem[0] starts out holding the highest data address.
type Machine struct {
	Reg  [NumRegs]int
	IMem []Instruction
	DMem []int

	Halted bool
	Steps  int

	// Output receives one line per OUT instruction. If nil, os.Stdout is used.
	Output io.Writer

	in *bufio.Scanner
}

// NewMachine loads prog into a machine with default memory sizes.
func NewMachine(prog *Program) *Machine {
	m := &Machine{
		IMem: make([]Instruction, max(DefaultIMemSize, len(prog.Instructions))),
		DMem: make([]int, DefaultDMemSize),
	}
	copy(m.IMem, prog.Instructions)
	m.Reset()
	return m
}

// SetInput sets where IN reads whitespace-separated integers from.
func (m *Machine) SetInput(r io.Reader) {
	m.in = bufio.NewScanner(r)
	m.in.Split(bufio.ScanWords)
}

// Reset clears registers and data memory. The loaded program is kept.
func (m *Machine) Reset() {
	m.Reg = [NumRegs]int{}
	for i := range m.DMem {
		m.DMem[i] = 0
	}
	m.DMem[0] = len(m.DMem) - 1
	m.Halted = false
	m.Steps = 0
}

func (m *Machine) outputSink() io.Writer {
	if m.Output != nil {
		return m.Output
	}
	return os.Stdout
}

func (m *Machine) readInt() (int, error) {
	if m.in == nil || !m.in.Scan() {
		return 0, ErrInputExhausted
	}
	v, err := strconv.Atoi(m.in.Text())
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadInput, m.in.Text())
	}
	return v, nil
}

func (m *Machine) fault(pc int, err error) error {
	m.Halted = true
	return fmt.Errorf("pc %d: %w", pc, err)
}

// Step executes the instruction at the program counter.
func (m *Machine) Step() error {
	if m.Halted {
		return ErrHalted
	}
	pc := m.Reg[PC]
	if pc < 0 || pc >= len(m.IMem) {
		return m.fault(pc, ErrIMemRange)
	}
	m.Reg[PC] = pc + 1
	m.Steps++

	in := m.IMem[pc]
	r := &m.Reg[in.R]

	if in.Op.RegisterOnly() {
		s, t := m.Reg[in.S], m.Reg[in.T]
		switch in.Op {
		case HALT:
			m.Halted = true
		case IN:
			v, err := m.readInt()
			if err != nil {
				return m.fault(pc, err)
			}
			*r = v
		case OUT:
			fmt.Fprintln(m.outputSink(), *r)
		case ADD:
			*r = s + t
		case SUB:
			*r = s - t
		case MUL:
			*r = s * t
		case DIV:
			if t == 0 {
				return m.fault(pc, ErrDivideByZero)
			}
			*r = s / t
		}
		return nil
	}

	a := in.D + m.Reg[in.S]
	switch in.Op {
	case LD, ST:
		if a < 0 || a >= len(m.DMem) {
			return m.fault(pc, fmt.Errorf("%w: address %d", ErrDMemRange, a))
		}
		if in.Op == LD {
			*r = m.DMem[a]
		} else {
			m.DMem[a] = *r
		}
	case LDA:
		*r = a
	case LDC:
		*r = in.D
	case JLT:
		if *r < 0 {
			m.Reg[PC] = a
		}
	case JLE:
		if *r <= 0 {
			m.Reg[PC] = a
		}
	case JGT:
		if *r > 0 {
			m.Reg[PC] = a
		}
	case JGE:
		if *r >= 0 {
			m.Reg[PC] = a
		}
	case JEQ:
		if *r == 0 {
			m.Reg[PC] = a
		}
	case JNE:
		if *r != 0 {
			m.Reg[PC] = a
		}
	default:
		return m.fault(pc, fmt.Errorf("unknown opcode %s", in.Op))
	}
	return nil
}

// Run steps until HALT, a fault, or limit steps have executed. A limit of
// zero or less means no limit.
func (m *Machine) Run(limit int) error {
	for !m.Halted {
		if limit > 0 && m.Steps >= limit {
			return ErrStepLimit
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunUntil steps until the program counter equals pc, the machine halts or
// a fault occurs. It reports whether pc was reached.
func (m *Machine) RunUntil(pc, limit int) (bool, error) {
	for !m.Halted {
		if m.Reg[PC] == pc {
			return true, nil
		}
		if limit > 0 && m.Steps >= limit {
			return false, ErrStepLimit
		}
		if err := m.Step(); err != nil {
			return false, err
		}
	}
	return false, nil
}
