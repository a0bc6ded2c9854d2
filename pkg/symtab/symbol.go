// Package symtab holds the scoped symbol table of the C-minus compiler: the
// frames that assign storage offsets to declared names, the stack that
// resolves names from the innermost frame outwards, and the function table.
package symtab

import "fmt"

// StorageClass tells the code generator which base register an offset is
// relative to.
type StorageClass int

const (
	Global StorageClass = iota // relative to gp, lives for the whole run
	Local                      // relative to bp, below the saved frame pointer
	Param                      // relative to bp, above the return address
)

var classNames = [...]string{
	Global: "global",
	Local:  "local",
	Param:  "param",
}

func (c StorageClass) String() string {
	if int(c) >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("StorageClass(%d)", int(c))
}

// Type is the value type of a symbol or an expression.
type Type int

const (
	Undefined Type = iota
	Integer
	Void
	Array
)

var typeNames = [...]string{
	Undefined: "undefined",
	Integer:   "int",
	Void:      "void",
	Array:     "int[]",
}

func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Symbol is a declared variable, array or parameter.
//
//	int a[10];
//	    ^      Symbol{Name: "a", Class: Global, Type: Array, Offset: 0, Len: 10}
type Symbol struct {
	Name   string
	Class  StorageClass
	Type   Type
	Offset int
	Len    int // element count for arrays; 0 for scalars and array parameters

	next *Symbol // bucket chain, newest first
}

// Slots is the number of storage cells the symbol occupies in its frame.
// An array parameter holds only the caller's base address.
func (s *Symbol) Slots() int {
	if s.Type == Array && s.Len > 0 {
		return s.Len
	}
	return 1
}

func (s *Symbol) String() string {
	if s.Type == Array && s.Len > 0 {
		return fmt.Sprintf("%s %s[%d] @%d", s.Class, s.Name, s.Len, s.Offset)
	}
	return fmt.Sprintf("%s %s %s @%d", s.Class, s.Type, s.Name, s.Offset)
}
