package symtab

import (
	"fmt"
	"strings"
)

// Built-in functions registered before any user code is processed.
const (
	InputFunc  = "input"
	OutputFunc = "output"
	MainFunc   = "main"
)

// Function is a declared function. Entry stays -1 until the code generator
// has emitted the function's first instruction.
type Function struct {
	Name      string
	Return    Type
	NumParams int
	Params    *Frame // detached parameter frame
	Locals    *Frame // detached body frame; nil if the body declares nothing
	FrameSize int    // local slots reserved by the prologue
	Entry     int
	Builtin   bool
}

// ParamTypes returns the declared parameter types in declaration order.
func (fn *Function) ParamTypes() []Type {
	if fn.Params == nil {
		return nil
	}
	return fn.Params.Types()
}

func (fn *Function) String() string {
	params := make([]string, 0, fn.NumParams)
	if fn.Params != nil {
		for _, p := range fn.Params.Symbols() {
			params = append(params, p.Type.String()+" "+p.Name)
		}
	}
	return fmt.Sprintf("%s %s(%s)", fn.Return, fn.Name, strings.Join(params, ", "))
}

// FunctionTable is the flat, program-wide list of functions.
type FunctionTable struct {
	funcs  []*Function
	byName map[string]*Function
}

func NewFunctionTable() *FunctionTable {
	return &FunctionTable{byName: make(map[string]*Function)}
}

// Register adds fn. Function names are unique across the program.
func (t *FunctionTable) Register(fn *Function) error {
	if _, ok := t.byName[fn.Name]; ok {
		return fmt.Errorf("%w of function %q", ErrDuplicate, fn.Name)
	}
	fn.Entry = -1
	t.funcs = append(t.funcs, fn)
	t.byName[fn.Name] = fn
	return nil
}

func (t *FunctionTable) Lookup(name string) *Function {
	return t.byName[name]
}

// All returns the functions in registration order.
func (t *FunctionTable) All() []*Function { return t.funcs }

// Table bundles the scope stack and the function table: everything the tree
// builder records and the code generator later consults.
type Table struct {
	Scopes *Stack
	Funcs  *FunctionTable
}

// New returns a table with an empty global frame and the built-in input and
// output functions registered.
func New() *Table {
	t := &Table{
		Scopes: NewStack(),
		Funcs:  NewFunctionTable(),
	}

	input := &Function{Name: InputFunc, Return: Integer, Params: NewFrame(Param), Builtin: true}
	if err := t.Funcs.Register(input); err != nil {
		panic(&InternalError{Op: "New", Msg: err.Error()})
	}

	outParams := NewFrame(Param)
	if _, err := outParams.Declare("i", Param, Integer, 0); err != nil {
		panic(&InternalError{Op: "New", Msg: err.Error()})
	}
	output := &Function{Name: OutputFunc, Return: Void, NumParams: 1, Params: outParams, Builtin: true}
	if err := t.Funcs.Register(output); err != nil {
		panic(&InternalError{Op: "New", Msg: err.Error()})
	}

	return t
}
