package semantic

import (
	"errors"
	"fmt"
)

// Kinds of semantic error. Match them with errors.Is.
var (
	ErrDuplicateDeclaration = errors.New("duplicate declaration")
	ErrUndefinedName        = errors.New("undefined name")
	ErrNotAnArray           = errors.New("not an array")
	ErrTypeMismatch         = errors.New("type mismatch")
	ErrReturnTypeMismatch   = errors.New("return type mismatch")
	ErrUndefinedFunction    = errors.New("undefined function")
	ErrArgumentMismatch     = errors.New("argument mismatch")
)

// Error is a semantic error in the program being compiled.
type Error struct {
	Kind error
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }
