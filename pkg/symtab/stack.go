package symtab

import "fmt"

// InternalError reports a broken invariant of the compiler itself, never a
// problem with the program being compiled. It is raised with panic.
type InternalError struct {
	Op  string
	Msg string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("symtab: internal error in %s: %s", e.Op, e.Msg)
}

// Stack is the stack of open frames. The bottom frame is the global frame.
// Frames must be popped in exactly the reverse order they were pushed, or
// later lookups bind to the wrong declaration.
type Stack struct {
	frames []*Frame
}

// NewStack returns a stack holding a single, empty global frame.
func NewStack() *Stack {
	return &Stack{frames: []*Frame{NewFrame(Global)}}
}

func (s *Stack) Push(f *Frame) {
	if f == nil {
		panic(&InternalError{Op: "Push", Msg: "nil frame"})
	}
	s.frames = append(s.frames, f)
}

func (s *Stack) Pop() *Frame {
	if len(s.frames) == 0 {
		panic(&InternalError{Op: "Pop", Msg: "pop of an empty frame stack"})
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// Top returns the innermost frame, or nil when the stack is empty.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Global returns the outermost frame.
func (s *Stack) Global() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[0]
}

// Depth is the number of open frames.
func (s *Stack) Depth() int { return len(s.frames) }

// Declare adds name to the top frame. Names bound in outer frames may be
// reused; only a second declaration in the top frame fails.
func (s *Stack) Declare(name string, class StorageClass, typ Type, length int) (*Symbol, error) {
	top := s.Top()
	if top == nil {
		panic(&InternalError{Op: "Declare", Msg: "no open frame"})
	}
	return top.Declare(name, class, typ, length)
}

// ResolveInTop looks name up in the top frame only.
func (s *Stack) ResolveInTop(name string) *Symbol {
	if top := s.Top(); top != nil {
		return top.Lookup(name)
	}
	return nil
}

// Resolve looks name up from the innermost frame outwards; the innermost
// declaration wins.
func (s *Stack) Resolve(name string) *Symbol {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if sym := s.frames[i].Lookup(name); sym != nil {
			return sym
		}
	}
	return nil
}
