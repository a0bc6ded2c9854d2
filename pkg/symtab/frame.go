package symtab

import (
	"errors"
	"fmt"
	"strings"
)

const (
	bucketCount = 211
	hashShift   = 4
)

// ErrDuplicate is returned when a name is declared twice in the same frame.
var ErrDuplicate = errors.New("duplicate declaration")

func hash(key string) int {
	h := 0
	for i := 0; i < len(key); i++ {
		h = ((h << hashShift) + int(key[i])) % bucketCount
	}
	return h
}

// Frame is one open lexical scope. Offsets are handed out from a running
// cursor, so the frame's size is the next free offset.
type Frame struct {
	Class StorageClass

	size    int
	buckets [bucketCount]*Symbol
	symbols []*Symbol // declaration order, used for positional parameter checks
}

// NewFrame returns an empty frame whose cursor starts at 0.
func NewFrame(class StorageClass) *Frame {
	return &Frame{Class: class}
}

// NewFrameAt returns an empty frame whose cursor starts at start. Nested
// blocks use it to continue allocating after the enclosing block's locals.
func NewFrameAt(class StorageClass, start int) *Frame {
	return &Frame{Class: class, size: start}
}

// Size is the allocation cursor: the offset the next declaration receives.
func (f *Frame) Size() int { return f.size }

// Len is the number of symbols declared in the frame.
func (f *Frame) Len() int { return len(f.symbols) }

// Symbols returns the frame's symbols in declaration order. The slice is
// owned by the frame.
func (f *Frame) Symbols() []*Symbol { return f.symbols }

// Types returns the declared types in declaration order.
func (f *Frame) Types() []Type {
	types := make([]Type, len(f.symbols))
	for i, sym := range f.symbols {
		types[i] = sym.Type
	}
	return types
}

// Lookup finds name in this frame only.
func (f *Frame) Lookup(name string) *Symbol {
	for sym := f.buckets[hash(name)]; sym != nil; sym = sym.next {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

// Declare adds name at the frame's cursor and advances the cursor by the
// number of slots the symbol needs.
func (f *Frame) Declare(name string, class StorageClass, typ Type, length int) (*Symbol, error) {
	if f.Lookup(name) != nil {
		return nil, fmt.Errorf("%w of %q", ErrDuplicate, name)
	}
	h := hash(name)
	sym := &Symbol{
		Name:   name,
		Class:  class,
		Type:   typ,
		Offset: f.size,
		Len:    length,
		next:   f.buckets[h],
	}
	f.buckets[h] = sym
	f.symbols = append(f.symbols, sym)
	f.size += sym.Slots()
	return sym, nil
}

// String returns the frame's contents in declaration order.
func (f *Frame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s frame (size %d)\n", f.Class, f.size)
	if len(f.symbols) == 0 {
		sb.WriteString("  (empty)\n")
		return sb.String()
	}
	sb.WriteString("  Variable Name         Type    Offset\n")
	sb.WriteString("  -------------         ----    ------\n")
	for _, sym := range f.symbols {
		typ := sym.Type.String()
		if sym.Type == Array && sym.Len > 0 {
			typ = fmt.Sprintf("int[%d]", sym.Len)
		}
		fmt.Fprintf(&sb, "  %-20s  %-7s %d\n", sym.Name, typ, sym.Offset)
	}
	return sb.String()
}
