// Package semantic builds the syntax tree while checking it. The parser
// calls one Builder operation per recognized construct, bottom-up and left
// to right; each operation validates its inputs against the symbol table,
// records declarations and returns the finished node.
//
// The first error is fatal. Once an operation has failed, every later
// operation returns that same error without doing anything.
package semantic

import (
	"fmt"
	"io"

	"cminus/pkg/ast"
	"cminus/pkg/symtab"
)

// Builder carries the state shared by the tree-building operations of one
// compilation.
type Builder struct {
	tab *symtab.Table

	mode    symtab.StorageClass // Global outside function bodies, Local inside
	pending *symtab.Frame       // parameters of the function being declared
	fn      *symtab.Function    // function whose body is open
	high    int                 // local slots used so far by fn

	err error

	// Listing, when set, receives every frame as it is closed.
	Listing io.Writer
}

// NewBuilder returns a builder over a fresh table with the built-in
// functions registered.
func NewBuilder() *Builder {
	return &Builder{
		tab:     symtab.New(),
		mode:    symtab.Global,
		pending: symtab.NewFrame(symtab.Param),
	}
}

// Table returns the symbol and function tables being filled in.
func (b *Builder) Table() *symtab.Table { return b.tab }

// Err returns the first error reported, if any.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(kind error, line int, format string, args ...any) error {
	b.err = &Error{Kind: kind, Line: line, Msg: fmt.Sprintf(format, args...)}
	tracer().Errorf("%v", b.err)
	return b.err
}

func (b *Builder) printFrame(title string, f *symtab.Frame) {
	if b.Listing == nil {
		return
	}
	fmt.Fprintf(b.Listing, "%s\n%s\n", title, f)
}

//  Declarations

func (b *Builder) declare(name string, size int, line int) (*symtab.Symbol, error) {
	symType := symtab.Integer
	if size > 0 {
		symType = symtab.Array
	}
	sym, err := b.tab.Scopes.Declare(name, b.mode, symType, size)
	if err != nil {
		return nil, b.fail(ErrDuplicateDeclaration, line, "%q is already declared in this scope", name)
	}
	if b.mode == symtab.Local && b.tab.Scopes.Top().Size() > b.high {
		b.high = b.tab.Scopes.Top().Size()
	}
	tracer().Debugf("declare %s", sym)
	return sym, nil
}

// VarDecl declares a scalar in the current scope.
func (b *Builder) VarDecl(typ symtab.Type, name string, line int) (*ast.VarDecl, error) {
	if b.err != nil {
		return nil, b.err
	}
	if typ != symtab.Integer {
		return nil, b.fail(ErrTypeMismatch, line, "variable %q must be declared int, not %s", name, typ)
	}
	sym, err := b.declare(name, 0, line)
	if err != nil {
		return nil, err
	}
	return &ast.VarDecl{Pos: ast.Pos{SrcLine: line, Typ: symtab.Integer}, Sym: sym}, nil
}

// ArrayDecl declares an array of size elements in the current scope.
func (b *Builder) ArrayDecl(typ symtab.Type, name string, size int, line int) (*ast.ArrayDecl, error) {
	if b.err != nil {
		return nil, b.err
	}
	if typ != symtab.Integer {
		return nil, b.fail(ErrTypeMismatch, line, "array %q must be declared int, not %s", name, typ)
	}
	if size <= 0 {
		return nil, b.fail(ErrTypeMismatch, line, "array %q has size %d", name, size)
	}
	sym, err := b.declare(name, size, line)
	if err != nil {
		return nil, err
	}
	return &ast.ArrayDecl{Pos: ast.Pos{SrcLine: line, Typ: symtab.Array}, Sym: sym, Size: size}, nil
}

// Param declares one parameter of the function whose head is being parsed.
func (b *Builder) Param(typ symtab.Type, name string, isArray bool, line int) (*ast.Param, error) {
	if b.err != nil {
		return nil, b.err
	}
	if typ != symtab.Integer {
		return nil, b.fail(ErrTypeMismatch, line, "parameter %q must be declared int, not %s", name, typ)
	}
	symType := symtab.Integer
	if isArray {
		symType = symtab.Array
	}
	sym, err := b.pending.Declare(name, symtab.Param, symType, 0)
	if err != nil {
		return nil, b.fail(ErrDuplicateDeclaration, line, "parameter %q is already declared", name)
	}
	return &ast.Param{Pos: ast.Pos{SrcLine: line, Typ: symType}, Name: name, IsArray: isArray, Sym: sym}, nil
}

// FuncHead registers a function with the parameters declared since the
// previous head and opens its parameter scope. The function is callable
// from its own body.
func (b *Builder) FuncHead(ret symtab.Type, name string, params []*ast.Param, line int) (*ast.FuncHead, error) {
	if b.err != nil {
		return nil, b.err
	}
	fn := &symtab.Function{
		Name:      name,
		Return:    ret,
		NumParams: b.pending.Len(),
		Params:    b.pending,
	}
	if err := b.tab.Funcs.Register(fn); err != nil {
		return nil, b.fail(ErrDuplicateDeclaration, line, "function %q is already declared", name)
	}
	b.tab.Scopes.Push(b.pending)
	b.pending = symtab.NewFrame(symtab.Param)
	b.mode = symtab.Local
	b.fn = fn
	b.high = 0
	tracer().Infof("function %s", fn)
	return &ast.FuncHead{Pos: ast.Pos{SrcLine: line, Typ: ret}, Name: name, Params: params, Fn: fn}, nil
}

// BeginBlock opens the scope of a compound statement. Its locals are
// allocated after those of the enclosing block.
func (b *Builder) BeginBlock() error {
	if b.err != nil {
		return b.err
	}
	start := 0
	if top := b.tab.Scopes.Top(); top.Class == symtab.Local {
		start = top.Size()
	}
	b.tab.Scopes.Push(symtab.NewFrameAt(symtab.Local, start))
	return nil
}

// Compound closes the scope opened by the matching BeginBlock.
func (b *Builder) Compound(decls, stmts []ast.Node, line int) (*ast.Compound, error) {
	if b.err != nil {
		return nil, b.err
	}
	frame := b.tab.Scopes.Pop()
	if frame.Class != symtab.Local {
		panic(&symtab.InternalError{Op: "Compound", Msg: fmt.Sprintf("closing a %s frame", frame.Class)})
	}
	node := &ast.Compound{Pos: ast.Pos{SrcLine: line, Typ: symtab.Void}, Decls: decls, Stmts: stmts}
	if frame.Len() > 0 {
		node.Frame = frame
		b.printFrame(fmt.Sprintf("Block at line %d:", line), frame)
	}
	return node, nil
}

// FuncDecl completes the function opened by head.
func (b *Builder) FuncDecl(head *ast.FuncHead, body *ast.Compound, line int) (*ast.FuncDecl, error) {
	if b.err != nil {
		return nil, b.err
	}
	fn := head.Fn
	fn.Locals = body.Frame
	fn.FrameSize = b.high

	params := b.tab.Scopes.Pop()
	if params != fn.Params {
		panic(&symtab.InternalError{Op: "FuncDecl", Msg: fmt.Sprintf("parameter frame of %s is not on top", fn.Name)})
	}
	b.printFrame(fmt.Sprintf("Parameters of %s:", fn.Name), params)

	b.mode = symtab.Global
	b.fn = nil
	b.high = 0
	tracer().Debugf("function %s: %d params, %d local slots", fn.Name, fn.NumParams, fn.FrameSize)
	return &ast.FuncDecl{Pos: ast.Pos{SrcLine: line, Typ: fn.Return}, Head: head, Body: body}, nil
}

// Program is the root of the tree. The program must define main.
func (b *Builder) Program(decls []ast.Node, line int) (*ast.Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	if mainFn := b.tab.Funcs.Lookup(symtab.MainFunc); mainFn == nil || mainFn.Builtin {
		return nil, b.fail(ErrUndefinedFunction, line, "program does not define %s", symtab.MainFunc)
	}
	b.printFrame("Globals:", b.tab.Scopes.Global())
	return &ast.Program{Pos: ast.Pos{SrcLine: line, Typ: symtab.Void}, Decls: decls}, nil
}

//  Statements

// ExprStmt wraps an expression statement; expr is nil for a lone ';'.
func (b *Builder) ExprStmt(expr ast.Node, line int) (*ast.ExprStmt, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &ast.ExprStmt{Pos: ast.Pos{SrcLine: line, Typ: symtab.Void}, Expr: expr}, nil
}

// If builds a selection statement; els may be nil.
func (b *Builder) If(cond, then, els ast.Node, line int) (*ast.If, error) {
	if b.err != nil {
		return nil, b.err
	}
	if cond.Type() != symtab.Integer {
		return nil, b.fail(ErrTypeMismatch, line, "if condition is %s, want int", cond.Type())
	}
	return &ast.If{Pos: ast.Pos{SrcLine: line, Typ: symtab.Void}, Cond: cond, Then: then, Else: els}, nil
}

func (b *Builder) While(cond, body ast.Node, line int) (*ast.While, error) {
	if b.err != nil {
		return nil, b.err
	}
	if cond.Type() != symtab.Integer {
		return nil, b.fail(ErrTypeMismatch, line, "while condition is %s, want int", cond.Type())
	}
	return &ast.While{Pos: ast.Pos{SrcLine: line, Typ: symtab.Void}, Cond: cond, Body: body}, nil
}

// Return checks expr against the return type of the enclosing function.
// expr is nil for a bare return.
func (b *Builder) Return(expr ast.Node, line int) (*ast.Return, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.fn == nil {
		panic(&symtab.InternalError{Op: "Return", Msg: "return outside a function"})
	}
	got := symtab.Void
	if expr != nil {
		got = expr.Type()
	}
	if got != b.fn.Return {
		return nil, b.fail(ErrReturnTypeMismatch, line, "%s returns %s, got %s", b.fn.Name, b.fn.Return, got)
	}
	return &ast.Return{Pos: ast.Pos{SrcLine: line, Typ: got}, Expr: expr}, nil
}

//  Expressions

// Assign builds target = value. Both sides must be int.
func (b *Builder) Assign(target, value ast.Node, line int) (*ast.Assign, error) {
	if b.err != nil {
		return nil, b.err
	}
	if target.Type() != symtab.Integer || value.Type() != symtab.Integer {
		return nil, b.fail(ErrTypeMismatch, line, "cannot assign %s to %s", value.Type(), target.Type())
	}
	return &ast.Assign{Pos: ast.Pos{SrcLine: line, Typ: symtab.Integer}, Target: target, Value: value}, nil
}

// Binary builds an arithmetic or relational expression over two ints.
func (b *Builder) Binary(op ast.Op, left, right ast.Node, line int) (*ast.Binary, error) {
	if b.err != nil {
		return nil, b.err
	}
	if left.Type() != symtab.Integer || right.Type() != symtab.Integer {
		return nil, b.fail(ErrTypeMismatch, line, "operands of %s are %s and %s, want int", op, left.Type(), right.Type())
	}
	return &ast.Binary{Pos: ast.Pos{SrcLine: line, Typ: symtab.Integer}, Op: op, Left: left, Right: right}, nil
}

// Var resolves a name used as a value. An array name used alone has type
// Array and can only be passed as an argument.
func (b *Builder) Var(name string, line int) (*ast.Var, error) {
	if b.err != nil {
		return nil, b.err
	}
	sym := b.tab.Scopes.Resolve(name)
	if sym == nil {
		return nil, b.fail(ErrUndefinedName, line, "%q is not declared", name)
	}
	return &ast.Var{Pos: ast.Pos{SrcLine: line, Typ: sym.Type}, Name: name, Sym: sym}, nil
}

// Index builds name[index].
func (b *Builder) Index(name string, index ast.Node, line int) (*ast.Index, error) {
	if b.err != nil {
		return nil, b.err
	}
	if index.Type() != symtab.Integer {
		return nil, b.fail(ErrTypeMismatch, line, "index of %q is %s, want int", name, index.Type())
	}
	sym := b.tab.Scopes.Resolve(name)
	if sym == nil {
		return nil, b.fail(ErrUndefinedName, line, "%q is not declared", name)
	}
	if sym.Type != symtab.Array {
		return nil, b.fail(ErrNotAnArray, line, "%q is %s", name, sym.Type)
	}
	return &ast.Index{Pos: ast.Pos{SrcLine: line, Typ: symtab.Integer}, Name: name, Index: index, Sym: sym}, nil
}

func (b *Builder) Num(value int, line int) (*ast.Num, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &ast.Num{Pos: ast.Pos{SrcLine: line, Typ: symtab.Integer}, Value: value}, nil
}

// Call checks args against the callee's parameters, pairwise in
// declaration order, then by count.
func (b *Builder) Call(name string, args []ast.Node, line int) (*ast.Call, error) {
	if b.err != nil {
		return nil, b.err
	}
	fn := b.tab.Funcs.Lookup(name)
	if fn == nil {
		return nil, b.fail(ErrUndefinedFunction, line, "%s is not declared", name)
	}
	want := fn.ParamTypes()
	for i := 0; i < len(want) && i < len(args); i++ {
		if args[i].Type() != want[i] {
			return nil, b.fail(ErrArgumentMismatch, line, "argument %d of %s is %s, want %s", i+1, name, args[i].Type(), want[i])
		}
	}
	if len(args) != len(want) {
		return nil, b.fail(ErrArgumentMismatch, line, "%s takes %d arguments, got %d", name, len(want), len(args))
	}
	return &ast.Call{Pos: ast.Pos{SrcLine: line, Typ: fn.Return}, Name: name, Args: args, Fn: fn}, nil
}
