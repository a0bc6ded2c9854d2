package tm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FormatLine renders one listing line: slot, instruction and an optional
// comment separated by a tab.
func FormatLine(slot int, in Instruction, comment string) string {
	line := fmt.Sprintf("%3d:  %s", slot, in)
	if comment != "" {
		line += "\t" + comment
	}
	return line
}

// FormatComment renders a free-standing comment line.
func FormatComment(text string) string {
	return "* " + text
}

// Program is a loaded instruction image. Slots not named by the listing
// hold HALT 0,0,0.
type Program struct {
	Instructions []Instruction
}

// Load parses a listing. Instruction lines may appear in any slot order;
// blank lines and lines starting with '*' are skipped.
func Load(r io.Reader) (*Program, error) {
	var (
		prog    = &Program{}
		written = make(map[int]int)
		sc      = bufio.NewScanner(r)
		lineNo  int
	)
	for sc.Scan() {
		lineNo++
		slot, in, ok, err := parseLine(sc.Text(), lineNo)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if prev, dup := written[slot]; dup {
			return nil, fmt.Errorf("slot %d on line %d already defined on line %d", slot, lineNo, prev)
		}
		written[slot] = lineNo
		for len(prog.Instructions) <= slot {
			prog.Instructions = append(prog.Instructions, RO(HALT, 0, 0, 0))
		}
		prog.Instructions[slot] = in
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

// LoadString is Load over a string.
func LoadString(listing string) (*Program, error) {
	return Load(strings.NewReader(listing))
}

func parseLine(raw string, lineNo int) (int, Instruction, bool, error) {
	line := raw
	if tab := strings.IndexByte(line, '\t'); tab >= 0 {
		line = line[:tab]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "*") {
		return 0, Instruction{}, false, nil
	}

	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return 0, Instruction{}, false, fmt.Errorf("missing slot number on line %d", lineNo)
	}
	slot, err := strconv.Atoi(strings.TrimSpace(line[:colon]))
	if err != nil || slot < 0 {
		return 0, Instruction{}, false, fmt.Errorf("invalid slot '%s' on line %d", line[:colon], lineNo)
	}
	if slot >= DefaultIMemSize {
		return 0, Instruction{}, false, fmt.Errorf("slot %d on line %d is outside instruction memory (%d)", slot, lineNo, DefaultIMemSize)
	}

	fields := strings.Fields(line[colon+1:])
	if len(fields) != 2 {
		return 0, Instruction{}, false, fmt.Errorf("expected mnemonic and operands on line %d", lineNo)
	}
	op, ok := opcodesByName[strings.ToUpper(fields[0])]
	if !ok {
		return 0, Instruction{}, false, fmt.Errorf("unknown mnemonic '%s' on line %d", fields[0], lineNo)
	}

	in := Instruction{Op: op}
	if op.RegisterOnly() {
		regs := strings.Split(fields[1], ",")
		if len(regs) != 3 {
			return 0, Instruction{}, false, fmt.Errorf("%s expects r,s,t on line %d", op, lineNo)
		}
		for i, dst := range []*int{&in.R, &in.S, &in.T} {
			if *dst, err = parseRegister(regs[i], lineNo); err != nil {
				return 0, Instruction{}, false, err
			}
		}
		return slot, in, true, nil
	}

	// r,d(s)
	comma := strings.IndexByte(fields[1], ',')
	open := strings.IndexByte(fields[1], '(')
	if comma < 0 || open < comma || !strings.HasSuffix(fields[1], ")") {
		return 0, Instruction{}, false, fmt.Errorf("%s expects r,d(s) on line %d", op, lineNo)
	}
	if in.R, err = parseRegister(fields[1][:comma], lineNo); err != nil {
		return 0, Instruction{}, false, err
	}
	if in.D, err = strconv.Atoi(fields[1][comma+1 : open]); err != nil {
		return 0, Instruction{}, false, fmt.Errorf("invalid displacement '%s' on line %d", fields[1][comma+1:open], lineNo)
	}
	if in.S, err = parseRegister(fields[1][open+1:len(fields[1])-1], lineNo); err != nil {
		return 0, Instruction{}, false, err
	}
	return slot, in, true, nil
}

func parseRegister(token string, lineNo int) (int, error) {
	r, err := strconv.Atoi(token)
	if err != nil || r < 0 || r >= NumRegs {
		return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
	}
	return r, nil
}
