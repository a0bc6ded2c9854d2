package semantic

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/go-test/deep"
	"github.com/nalgeon/be"

	"cminus/pkg/ast"
	"cminus/pkg/symtab"
)

// ok unwraps a builder result the test expects to succeed.
func ok[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// openFunc drives the builder through `ret name(params) {` the way the
// parser does: parameters first, then the head, then the body's scope.
func openFunc(t *testing.T, b *Builder, ret symtab.Type, name string, params ...string) *ast.FuncHead {
	t.Helper()
	var nodes []*ast.Param
	for _, p := range params {
		isArray := strings.HasSuffix(p, "[]")
		nodes = append(nodes, ok(b.Param(symtab.Integer, strings.TrimSuffix(p, "[]"), isArray, 1)))
	}
	head := ok(b.FuncHead(ret, name, nodes, 1))
	be.Err(t, b.BeginBlock(), nil)
	return head
}

func closeFunc(b *Builder, head *ast.FuncHead, decls, stmts []ast.Node) *ast.FuncDecl {
	body := ok(b.Compound(decls, stmts, 9))
	return ok(b.FuncDecl(head, body, 9))
}

func TestGlobalDeclarations(t *testing.T) {
	b := NewBuilder()
	x := ok(b.VarDecl(symtab.Integer, "x", 1))
	arr := ok(b.ArrayDecl(symtab.Integer, "arr", 5, 2))
	y := ok(b.VarDecl(symtab.Integer, "y", 3))

	be.Equal(t, x.Sym.Offset, 0)
	be.Equal(t, arr.Sym.Offset, 1)
	be.Equal(t, y.Sym.Offset, 6)
	be.Equal(t, x.Sym.Class, symtab.Global)
	be.Equal(t, arr.Type(), symtab.Array)
	be.Equal(t, b.Table().Scopes.Global().Size(), 7)
}

func TestDeclarationErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func(b *Builder) error
		want error
	}{
		{"DuplicateGlobal", func(b *Builder) error {
			_, _ = b.VarDecl(symtab.Integer, "x", 1)
			_, err := b.ArrayDecl(symtab.Integer, "x", 3, 2)
			return err
		}, ErrDuplicateDeclaration},
		{"VoidVariable", func(b *Builder) error {
			_, err := b.VarDecl(symtab.Void, "v", 1)
			return err
		}, ErrTypeMismatch},
		{"ZeroSizedArray", func(b *Builder) error {
			_, err := b.ArrayDecl(symtab.Integer, "a", 0, 1)
			return err
		}, ErrTypeMismatch},
		{"VoidParam", func(b *Builder) error {
			_, err := b.Param(symtab.Void, "p", false, 1)
			return err
		}, ErrTypeMismatch},
		{"DuplicateParam", func(b *Builder) error {
			_, _ = b.Param(symtab.Integer, "p", false, 1)
			_, err := b.Param(symtab.Integer, "p", true, 1)
			return err
		}, ErrDuplicateDeclaration},
		{"DuplicateFunction", func(b *Builder) error {
			_, err := b.FuncHead(symtab.Integer, "output", nil, 1)
			return err
		}, ErrDuplicateDeclaration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(NewBuilder())
			be.Err(t, err, tt.want)
		})
	}
}

func TestFirstErrorIsSticky(t *testing.T) {
	b := NewBuilder()
	_, first := b.Var("missing", 4)
	be.Err(t, first, ErrUndefinedName)

	var semErr *Error
	be.True(t, errors.As(first, &semErr))
	be.Equal(t, semErr.Line, 4)
	be.Equal(t, semErr.Error(), `line 4: undefined name: "missing" is not declared`)

	_, err := b.Num(1, 5)
	be.True(t, err == first)
	_, err = b.VarDecl(symtab.Integer, "fresh", 6)
	be.True(t, err == first)
	be.True(t, b.BeginBlock() == first)
	be.True(t, b.Err() == first)
	be.True(t, b.Table().Scopes.Global().Lookup("fresh") == nil)
}

func TestShadowing(t *testing.T) {
	b := NewBuilder()
	global := ok(b.VarDecl(symtab.Integer, "x", 1))

	head := openFunc(t, b, symtab.Void, "main")
	outer := ok(b.VarDecl(symtab.Integer, "x", 2))
	be.True(t, ok(b.Var("x", 3)).Sym == outer.Sym)

	be.Err(t, b.BeginBlock(), nil)
	inner := ok(b.VarDecl(symtab.Integer, "x", 4))
	be.True(t, ok(b.Var("x", 5)).Sym == inner.Sym)
	block := ok(b.Compound([]ast.Node{}, nil, 6))

	be.True(t, ok(b.Var("x", 7)).Sym == outer.Sym)
	closeFunc(b, head, nil, []ast.Node{block})

	be.Equal(t, inner.Sym.Offset, 1)
	be.Equal(t, outer.Sym.Offset, 0)
	be.Equal(t, inner.Sym.Class, symtab.Local)
	be.True(t, ok(b.Var("x", 10)).Sym == global.Sym)
}

func TestFunctionFrames(t *testing.T) {
	b := NewBuilder()
	head := openFunc(t, b, symtab.Integer, "f", "a", "v[]", "n")
	be.Equal(t, head.Fn.NumParams, 3)

	a := ok(b.VarDecl(symtab.Integer, "a", 2)) // shadows the parameter
	_ = ok(b.ArrayDecl(symtab.Integer, "buf", 3, 2))

	be.Err(t, b.BeginBlock(), nil)
	c := ok(b.VarDecl(symtab.Integer, "c", 3))
	first := ok(b.Compound(nil, nil, 3))

	be.Err(t, b.BeginBlock(), nil)
	_ = ok(b.VarDecl(symtab.Integer, "d", 4))
	e := ok(b.VarDecl(symtab.Integer, "e", 4))
	second := ok(b.Compound(nil, nil, 4))

	be.Err(t, b.BeginBlock(), nil)
	empty := ok(b.Compound(nil, nil, 5))

	ret := ok(b.Return(ok(b.Var("n", 6)), 6))
	fn := closeFunc(b, head, nil, []ast.Node{first, second, empty, ret}).Head.Fn

	be.Equal(t, a.Sym.Offset, 0)
	be.Equal(t, c.Sym.Offset, 4)
	be.Equal(t, e.Sym.Offset, 5)
	be.Equal(t, fn.FrameSize, 6)
	be.Equal(t, fn.Locals.Len(), 2)
	be.True(t, empty.Frame == nil)
	be.True(t, first.Frame != nil)

	if diff := deep.Equal(fn.ParamTypes(), []symtab.Type{symtab.Integer, symtab.Array, symtab.Integer}); diff != nil {
		t.Error(diff)
	}
	be.Equal(t, fn.Params.Lookup("n").Offset, 2)
	be.Equal(t, b.Table().Scopes.Depth(), 1)

	// The next function starts with an empty parameter frame.
	next := openFunc(t, b, symtab.Void, "main")
	be.Equal(t, next.Fn.NumParams, 0)
}

func TestExpressions(t *testing.T) {
	b := NewBuilder()
	_ = ok(b.VarDecl(symtab.Integer, "x", 1))
	_ = ok(b.ArrayDecl(symtab.Integer, "arr", 4, 1))

	sum := ok(b.Binary(ast.Plus, ok(b.Num(2, 2)), ok(b.Num(3, 2)), 2))
	be.Equal(t, sum.Type(), symtab.Integer)

	elem := ok(b.Index("arr", ok(b.Var("x", 3)), 3))
	be.Equal(t, elem.Type(), symtab.Integer)

	whole := ok(b.Var("arr", 4))
	be.Equal(t, whole.Type(), symtab.Array)

	assign := ok(b.Assign(elem, sum, 5))
	be.True(t, assign.Target == ast.Node(elem))

	cmp := ok(b.Binary(ast.Le, ok(b.Var("x", 6)), ok(b.Num(0, 6)), 6))
	loop := ok(b.While(cmp, ok(b.ExprStmt(nil, 6)), 6))
	be.Equal(t, loop.Kind(), ast.KindWhile)
}

func TestExpressionErrors(t *testing.T) {
	setup := func() *Builder {
		b := NewBuilder()
		_, _ = b.VarDecl(symtab.Integer, "x", 1)
		_, _ = b.ArrayDecl(symtab.Integer, "arr", 4, 1)
		return b
	}
	tests := []struct {
		name string
		run  func(b *Builder) error
		want error
	}{
		{"UndefinedDeepInExpression", func(b *Builder) error {
			one, _ := b.Num(1, 2)
			x, _ := b.Var("x", 2)
			inner, _ := b.Binary(ast.Times, x, one, 2)
			outer, _ := b.Binary(ast.Plus, inner, one, 2)
			_ = outer
			_, err := b.Index("nope", one, 2)
			return err
		}, ErrUndefinedName},
		{"IndexOfScalar", func(b *Builder) error {
			one, _ := b.Num(1, 2)
			_, err := b.Index("x", one, 2)
			return err
		}, ErrNotAnArray},
		{"IndexIsArray", func(b *Builder) error {
			arr, _ := b.Var("arr", 2)
			_, err := b.Index("arr", arr, 2)
			return err
		}, ErrTypeMismatch},
		{"AssignToArray", func(b *Builder) error {
			arr, _ := b.Var("arr", 2)
			one, _ := b.Num(1, 2)
			_, err := b.Assign(arr, one, 2)
			return err
		}, ErrTypeMismatch},
		{"ArithmeticOnArray", func(b *Builder) error {
			arr, _ := b.Var("arr", 2)
			one, _ := b.Num(1, 2)
			_, err := b.Binary(ast.Minus, one, arr, 2)
			return err
		}, ErrTypeMismatch},
		{"VoidCondition", func(b *Builder) error {
			one, _ := b.Num(1, 2)
			call, _ := b.Call("output", []ast.Node{one}, 2)
			_, err := b.If(call, nil, nil, 2)
			return err
		}, ErrTypeMismatch},
		{"ArrayWhileCondition", func(b *Builder) error {
			arr, _ := b.Var("arr", 2)
			_, err := b.While(arr, nil, 2)
			return err
		}, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Err(t, tt.run(setup()), tt.want)
		})
	}
}

func TestCall(t *testing.T) {
	b := NewBuilder()
	_ = ok(b.ArrayDecl(symtab.Integer, "arr", 3, 1))
	head := openFunc(t, b, symtab.Integer, "sum", "v[]", "n")

	// Recursive calls resolve while the body is still open.
	recur := ok(b.Call("sum", []ast.Node{ok(b.Var("v", 2)), ok(b.Var("n", 2))}, 2))
	be.Equal(t, recur.Type(), symtab.Integer)
	closeFunc(b, head, nil, []ast.Node{ok(b.Return(recur, 2))})

	t.Run("Builtins", func(t *testing.T) {
		in := ok(b.Call("input", nil, 3))
		be.Equal(t, in.Type(), symtab.Integer)
		out := ok(b.Call("output", []ast.Node{in}, 3))
		be.Equal(t, out.Type(), symtab.Void)
		be.True(t, out.Fn.Builtin)
	})

	t.Run("Mismatches", func(t *testing.T) {
		one := ok(b.Num(1, 4))
		arr := ok(b.Var("arr", 4))
		tests := []struct {
			name string
			fn   string
			args []ast.Node
			want error
		}{
			{"Undeclared", "missing", nil, ErrUndefinedFunction},
			{"TooFew", "sum", []ast.Node{arr}, ErrArgumentMismatch},
			{"TooMany", "output", []ast.Node{one, one}, ErrArgumentMismatch},
			{"ScalarForArray", "sum", []ast.Node{one, one}, ErrArgumentMismatch},
			{"ArrayForScalar", "sum", []ast.Node{arr, arr}, ErrArgumentMismatch},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fresh := *b
				_, err := fresh.Call(tt.fn, tt.args, 4)
				be.Err(t, err, tt.want)
			})
		}
	})
}

func TestReturn(t *testing.T) {
	tests := []struct {
		name string
		ret  symtab.Type
		expr bool
		want error
	}{
		{"IntWithValue", symtab.Integer, true, nil},
		{"VoidBare", symtab.Void, false, nil},
		{"IntBare", symtab.Integer, false, ErrReturnTypeMismatch},
		{"VoidWithValue", symtab.Void, true, ErrReturnTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			openFunc(t, b, tt.ret, "f")
			var expr ast.Node
			if tt.expr {
				expr = ok(b.Num(1, 2))
			}
			_, err := b.Return(expr, 2)
			be.Err(t, err, tt.want)
		})
	}
}

func TestProgram(t *testing.T) {
	t.Run("MissingMain", func(t *testing.T) {
		b := NewBuilder()
		x := ok(b.VarDecl(symtab.Integer, "x", 1))
		_, err := b.Program([]ast.Node{x}, 1)
		be.Err(t, err, ErrUndefinedFunction)
	})

	t.Run("MainBeforeHelpers", func(t *testing.T) {
		b := NewBuilder()
		main := closeFunc(b, openFunc(t, b, symtab.Void, "main"), nil, nil)
		helper := closeFunc(b, openFunc(t, b, symtab.Void, "helper"), nil, nil)
		prog, err := b.Program([]ast.Node{main, helper}, 3)
		be.Err(t, err, nil)
		be.Equal(t, len(prog.Decls), 2)
	})

	t.Run("Listing", func(t *testing.T) {
		var out bytes.Buffer
		b := NewBuilder()
		b.Listing = &out
		g := ok(b.VarDecl(symtab.Integer, "g", 1))
		head := openFunc(t, b, symtab.Void, "main", "p")
		local := ok(b.VarDecl(symtab.Integer, "l", 2))
		fn := closeFunc(b, head, []ast.Node{local}, nil)
		_ = ok(b.Program([]ast.Node{g, fn}, 3))

		text := out.String()
		be.True(t, strings.Contains(text, "Block at line 9:"))
		be.True(t, strings.Contains(text, "Parameters of main:"))
		be.True(t, strings.Contains(text, "Globals:"))
		be.True(t, strings.Index(text, "Block at") < strings.Index(text, "Globals:"))
	})
}
