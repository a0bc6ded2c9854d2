// Package codegen walks a checked syntax tree and emits TM code.
//
// Runtime layout, for a symbol at offset o:
//
//	global  gp-1-o
//	local   bp-1-o
//	param   bp+2+o   (bp+0 saved bp, bp+1 return address)
//
// Arrays grow toward lower addresses: element i of an array whose slot 0
// is at base lives at base-i. An array parameter holds the caller's base.
package codegen

import (
	"errors"
	"fmt"

	"cminus/pkg/ast"
	"cminus/pkg/symtab"
	"cminus/pkg/tm"
)

// ErrInternal marks a failure that semantic analysis should have made
// impossible.
var ErrInternal = errors.New("internal code generator error")

// MainStubSize is the number of slots reserved after the prelude for the
// call to main and the final HALT.
const MainStubSize = 6

type Options struct {
	// Trace writes comments into the listing.
	Trace bool
}

// Generator holds the state of one code generation run.
type Generator struct {
	emit   *Emitter
	tab    *symtab.Table
	scopes *symtab.Stack
	fn     *symtab.Function

	// wantValue is false while computing an address that will be stored
	// through, so variable references leave the address in bx only.
	wantValue bool
}

func newGenerator(tab *symtab.Table, opts Options) *Generator {
	return &Generator{
		emit:      NewEmitter(opts.Trace),
		tab:       tab,
		scopes:    tab.Scopes,
		wantValue: true,
	}
}

// Generate emits the whole program. tab must be the table the tree was
// built against, with only the global frame left open.
func Generate(prog *ast.Program, tab *symtab.Table, opts Options) (*Emitter, error) {
	if depth := tab.Scopes.Depth(); depth != 1 {
		return nil, fmt.Errorf("%w: %d frames open at start of generation", ErrInternal, depth)
	}
	g := newGenerator(tab, opts)
	if err := g.genProgram(prog); err != nil {
		return nil, err
	}
	return g.emit, nil
}

func (g *Generator) internal(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}

func (g *Generator) genProgram(prog *ast.Program) error {
	e := g.emit
	globals := g.scopes.Global().Size()

	e.Comment("C-minus compilation to TM code")
	e.Comment("Standard prelude:")
	e.RM(tm.LD, tm.GP, 0, tm.Zero, "load gp with maxaddress")
	e.RM(tm.ST, tm.Zero, 0, tm.Zero, "clear location 0")
	e.RM(tm.LDA, tm.SP, -globals, tm.GP, "allocate for global variables")
	e.Comment("End of standard prelude.")

	stub := e.Reserve(MainStubSize)
	e.Comment("Jump around i/o routines here")

	if err := g.genBuiltins(); err != nil {
		return err
	}
	if err := g.genSeq(prog.Decls); err != nil {
		return err
	}

	mainFn := g.tab.Funcs.Lookup(symtab.MainFunc)
	if mainFn == nil || mainFn.Entry < 0 {
		return g.internal("%s was never generated", symtab.MainFunc)
	}
	e.Rewind(stub)
	g.emitCall(mainFn)
	e.RO(tm.HALT, 0, 0, 0, "")
	e.Restore()
	e.Comment("End of execution.")
	tracer().Infof("main at %d, %d instructions", mainFn.Entry, e.Loc())
	return nil
}

func (g *Generator) genBuiltins() error {
	e := g.emit

	input := g.tab.Funcs.Lookup(symtab.InputFunc)
	output := g.tab.Funcs.Lookup(symtab.OutputFunc)
	if input == nil || output == nil {
		return g.internal("built-in i/o functions are not registered")
	}

	e.Comment("Begin input()")
	input.Entry = e.Loc()
	e.RO(tm.IN, tm.AX, 0, 0, "read integer value")
	e.RM(tm.LDA, tm.SP, 1, tm.SP, "pop return address")
	e.RM(tm.LD, tm.PC, -1, tm.SP, "return")
	e.Comment("End input()")

	e.Comment("Begin output()")
	output.Entry = e.Loc()
	e.RM(tm.LD, tm.AX, 1, tm.SP, "load arg to ax")
	e.RO(tm.OUT, tm.AX, 0, 0, "print value")
	e.RM(tm.LDA, tm.SP, 1, tm.SP, "pop return address")
	e.RM(tm.LD, tm.PC, -1, tm.SP, "return")
	e.Comment("End output()")
	return nil
}

//  Traversal

// genSeq generates nodes in order.
func (g *Generator) genSeq(nodes []ast.Node) error {
	for _, n := range nodes {
		if err := g.genNode(n); err != nil {
			return err
		}
	}
	return nil
}

// genNode generates one node and its children.
func (g *Generator) genNode(node ast.Node) error {
	if node == nil {
		return nil
	}
	e := g.emit

	switch n := node.(type) {
	case *ast.VarDecl, *ast.ArrayDecl, *ast.Param:
		// Storage is allocated by the prelude and function prologues.

	case *ast.FuncDecl:
		return g.genFunction(n)

	case *ast.Compound:
		if n.Frame != nil {
			g.scopes.Push(n.Frame)
		}
		err := g.genSeq(n.Stmts)
		if n.Frame != nil {
			g.scopes.Pop()
		}
		return err

	case *ast.ExprStmt:
		return g.genValue(n.Expr)

	case *ast.If:
		e.Comment("-> if")
		if err := g.genValue(n.Cond); err != nil {
			return err
		}
		toElse := e.Reserve(1)
		if err := g.genNode(n.Then); err != nil {
			return err
		}
		toEnd := e.Reserve(1)
		g.patch(toElse, tm.JEQ, tm.AX, "if: jump to else")
		if err := g.genNode(n.Else); err != nil {
			return err
		}
		g.patch(toEnd, tm.LDA, tm.PC, "if: jump to end")
		e.Comment("<- if")

	case *ast.While:
		e.Comment("-> while")
		test := e.Loc()
		if err := g.genValue(n.Cond); err != nil {
			return err
		}
		exit := e.Reserve(1)
		if err := g.genNode(n.Body); err != nil {
			return err
		}
		e.RM(tm.LDA, tm.PC, test, tm.Zero, "while: jump back to test")
		g.patch(exit, tm.JEQ, tm.AX, "while: exit loop")
		e.Comment("<- while")

	case *ast.Return:
		if g.fn == nil {
			return g.internal("return outside a function at line %d", n.Line())
		}
		e.Comment("-> return")
		if err := g.genValue(n.Expr); err != nil {
			return err
		}
		g.epilogue()
		e.Comment("<- return")

	case *ast.Num:
		e.RM(tm.LDC, tm.AX, n.Value, tm.Zero, "load const")

	case *ast.Var:
		sym, err := g.resolve(n.Name, n.Sym)
		if err != nil {
			return err
		}
		g.genAddress(sym)
		if g.wantValue {
			if sym.Type == symtab.Array && sym.Class != symtab.Param {
				e.RM(tm.LDA, tm.AX, 0, tm.BX, "array base address")
			} else {
				e.RM(tm.LD, tm.AX, 0, tm.BX, "load "+n.Name)
			}
		}

	case *ast.Index:
		sym, err := g.resolve(n.Name, n.Sym)
		if err != nil {
			return err
		}
		e.Comment("-> %s[]", n.Name)
		g.genAddress(sym)
		if sym.Class == symtab.Param {
			e.RM(tm.LD, tm.BX, 0, tm.BX, "load array base")
		}
		g.push(tm.BX, "protect array base")
		if err := g.genValue(n.Index); err != nil {
			return err
		}
		g.pop(tm.BX, "restore array base")
		e.RO(tm.SUB, tm.BX, tm.BX, tm.AX, "element address")
		if g.wantValue {
			e.RM(tm.LD, tm.AX, 0, tm.BX, "load element")
		}
		e.Comment("<- %s[]", n.Name)

	case *ast.Assign:
		e.Comment("-> assign")
		saved := g.wantValue
		g.wantValue = false
		err := g.genNode(n.Target)
		g.wantValue = saved
		if err != nil {
			return err
		}
		g.push(tm.BX, "protect target address")
		if err := g.genValue(n.Value); err != nil {
			return err
		}
		g.pop(tm.BX, "restore target address")
		e.RM(tm.ST, tm.AX, 0, tm.BX, "assign")
		e.Comment("<- assign")

	case *ast.Binary:
		return g.genBinary(n)

	case *ast.Call:
		return g.genCall(n)

	default:
		return g.internal("cannot generate %T at line %d", node, node.Line())
	}
	return nil
}

// genValue generates node with its value left in ax.
func (g *Generator) genValue(node ast.Node) error {
	saved := g.wantValue
	g.wantValue = true
	err := g.genNode(node)
	g.wantValue = saved
	return err
}

func (g *Generator) genFunction(n *ast.FuncDecl) error {
	e := g.emit
	fn := n.Head.Fn
	if fn == nil || g.tab.Funcs.Lookup(fn.Name) != fn {
		return g.internal("function %s at line %d is not in the function table", n.Head.Name, n.Line())
	}

	e.Comment("-> function %s", fn)
	fn.Entry = e.Loc()
	e.RM(tm.LDA, tm.SP, -1, tm.SP, "push bp")
	e.RM(tm.ST, tm.BP, 0, tm.SP, "")
	e.RM(tm.LDA, tm.BP, 0, tm.SP, "bp = sp")
	e.RM(tm.LDA, tm.SP, -fn.FrameSize, tm.SP, "allocate locals")
	tracer().Debugf("function %s at %d, frame %d", fn.Name, fn.Entry, fn.FrameSize)

	g.scopes.Push(fn.Params)
	g.fn = fn
	err := g.genNode(n.Body)
	if err == nil && fn.Return == symtab.Void {
		g.epilogue()
	}
	g.fn = nil
	g.scopes.Pop()
	e.Comment("<- function %s", fn.Name)
	return err
}

func (g *Generator) genBinary(n *ast.Binary) error {
	e := g.emit
	if err := g.genValue(n.Left); err != nil {
		return err
	}
	g.push(tm.AX, "protect left operand")
	if err := g.genValue(n.Right); err != nil {
		return err
	}
	g.pop(tm.BX, "left operand")

	switch n.Op {
	case ast.Plus:
		e.RO(tm.ADD, tm.AX, tm.BX, tm.AX, "op +")
	case ast.Minus:
		e.RO(tm.SUB, tm.AX, tm.BX, tm.AX, "op -")
	case ast.Times:
		e.RO(tm.MUL, tm.AX, tm.BX, tm.AX, "op *")
	case ast.Over:
		e.RO(tm.DIV, tm.AX, tm.BX, tm.AX, "op /")
	default:
		jump, ok := relationalJumps[n.Op]
		if !ok {
			return g.internal("unknown operator %s at line %d", n.Op, n.Line())
		}
		e.RO(tm.SUB, tm.AX, tm.BX, tm.AX, "op "+n.Op.String())
		e.RM(jump, tm.AX, 2, tm.PC, "br if true")
		e.RM(tm.LDC, tm.AX, 0, tm.Zero, "false case")
		e.RM(tm.LDA, tm.PC, 1, tm.PC, "unconditional jmp")
		e.RM(tm.LDC, tm.AX, 1, tm.Zero, "true case")
	}
	return nil
}

var relationalJumps = map[ast.Op]tm.Opcode{
	ast.Lt: tm.JLT,
	ast.Le: tm.JLE,
	ast.Gt: tm.JGT,
	ast.Ge: tm.JGE,
	ast.Eq: tm.JEQ,
	ast.Ne: tm.JNE,
}

// genCall pushes the arguments last to first, so the first argument ends
// up nearest the callee's frame pointer, then emits the call sequence.
func (g *Generator) genCall(n *ast.Call) error {
	fn := g.tab.Funcs.Lookup(n.Name)
	if fn == nil || fn != n.Fn {
		return g.internal("call to %s at line %d does not match the function table", n.Name, n.Line())
	}
	if fn.Entry < 0 {
		return g.internal("call to %s at line %d before its entry is known", n.Name, n.Line())
	}

	g.emit.Comment("-> call %s", n.Name)
	var pending argStack
	for _, arg := range n.Args {
		pending.push(arg)
	}
	for !pending.empty() {
		if err := g.genValue(pending.pop()); err != nil {
			return err
		}
		g.push(tm.AX, "push argument")
	}
	g.emitCall(fn)
	g.emit.Comment("<- call %s", n.Name)
	return nil
}

type argStack []ast.Node

func (s *argStack) push(n ast.Node) { *s = append(*s, n) }

func (s *argStack) pop() ast.Node {
	n := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return n
}

func (s argStack) empty() bool { return len(s) == 0 }

//  Emission helpers

// emitCall writes the five-instruction call sequence for fn.
func (g *Generator) emitCall(fn *symtab.Function) {
	e := g.emit
	e.RM(tm.LDA, tm.AX, 3, tm.PC, "return address")
	g.push(tm.AX, "push return address")
	e.RM(tm.LDC, tm.PC, fn.Entry, tm.Zero, "jump to "+fn.Name)
	e.RM(tm.LDA, tm.SP, fn.NumParams, tm.SP, "pop arguments")
}

func (g *Generator) epilogue() {
	e := g.emit
	e.RM(tm.LDA, tm.SP, 0, tm.BP, "sp = bp")
	e.RM(tm.LDA, tm.SP, 2, tm.SP, "pop bp and return address")
	e.RM(tm.LD, tm.BP, -2, tm.SP, "restore bp")
	e.RM(tm.LD, tm.PC, -1, tm.SP, "return")
}

func (g *Generator) push(reg int, comment string) {
	g.emit.RM(tm.LDA, tm.SP, -1, tm.SP, comment)
	g.emit.RM(tm.ST, reg, 0, tm.SP, "")
}

func (g *Generator) pop(reg int, comment string) {
	g.emit.RM(tm.LD, reg, 0, tm.SP, comment)
	g.emit.RM(tm.LDA, tm.SP, 1, tm.SP, "")
}

// patch fills the reserved slot with a jump to the current location.
func (g *Generator) patch(slot int, op tm.Opcode, reg int, comment string) {
	e := g.emit
	target := e.Loc()
	e.Rewind(slot)
	e.RM(op, reg, target, tm.Zero, comment)
	e.Restore()
	tracer().Debugf("backpatch %d -> %d", slot, target)
}

// genAddress leaves the address of sym's slot in bx.
func (g *Generator) genAddress(sym *symtab.Symbol) {
	e := g.emit
	switch sym.Class {
	case symtab.Global:
		e.RM(tm.LDA, tm.BX, -1-sym.Offset, tm.GP, "address of global "+sym.Name)
	case symtab.Local:
		e.RM(tm.LDA, tm.BX, -1-sym.Offset, tm.BP, "address of local "+sym.Name)
	case symtab.Param:
		e.RM(tm.LDA, tm.BX, 2+sym.Offset, tm.BP, "address of param "+sym.Name)
	}
}

// resolve looks name up through the open frames and checks it against the
// symbol recorded by the tree builder.
func (g *Generator) resolve(name string, want *symtab.Symbol) (*symtab.Symbol, error) {
	sym := g.scopes.Resolve(name)
	if sym == nil {
		return nil, g.internal("%q does not resolve", name)
	}
	if want != nil && sym != want {
		return nil, g.internal("%q resolves to %s, tree recorded %s", name, sym, want)
	}
	return sym, nil
}
