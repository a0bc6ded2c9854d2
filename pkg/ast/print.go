package ast

import (
	"fmt"
	"io"
	"strings"
)

const indentStep = 2

// Fprint writes an indented rendering of the tree rooted at n, one node per
// line, children indented below their parent.
func Fprint(w io.Writer, n Node) error {
	p := &printer{w: w}
	p.node(n)
	return p.err
}

// Sprint is Fprint into a string.
func Sprint(n Node) string {
	var sb strings.Builder
	_ = Fprint(&sb, n)
	return sb.String()
}

type printer struct {
	w     io.Writer
	depth int
	err   error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	pad := strings.Repeat(" ", (p.depth-1)*indentStep)
	_, p.err = fmt.Fprintf(p.w, pad+format+"\n", args...)
}

func (p *printer) seq(nodes []Node) {
	for _, n := range nodes {
		p.node(n)
	}
}

func (p *printer) node(n Node) {
	if n == nil {
		return
	}
	p.depth++
	defer func() { p.depth-- }()

	switch n := n.(type) {
	case *Program:
		p.line("%s", n.Kind())
		p.seq(n.Decls)
	case *VarDecl:
		p.line("%s: %s (%s, offset %d)", n.Kind(), n.Sym.Name, n.Sym.Class, n.Sym.Offset)
	case *ArrayDecl:
		p.line("%s: %s[%d] (%s, offset %d)", n.Kind(), n.Sym.Name, n.Size, n.Sym.Class, n.Sym.Offset)
	case *Param:
		p.line("%s: %s (offset %d)", n.Kind(), n.Name, n.Sym.Offset)
	case *FuncDecl:
		p.line("%s: %s %s", n.Kind(), n.Head.Typ, n.Head.Name)
		for _, param := range n.Head.Params {
			p.node(param)
		}
		p.node(n.Body)
	case *FuncHead:
		p.line("%s: %s %s", n.Kind(), n.Typ, n.Name)
		for _, param := range n.Params {
			p.node(param)
		}
	case *Compound:
		p.line("%s", n.Kind())
		p.seq(n.Decls)
		p.seq(n.Stmts)
	case *ExprStmt:
		if n.Expr == nil {
			p.line("%s: empty", n.Kind())
			return
		}
		p.line("%s", n.Kind())
		p.node(n.Expr)
	case *If:
		p.line("%s", n.Kind())
		p.node(n.Cond)
		p.node(n.Then)
		if n.Else != nil {
			p.line("Else")
			p.node(n.Else)
		}
	case *While:
		p.line("%s", n.Kind())
		p.node(n.Cond)
		p.node(n.Body)
	case *Return:
		p.line("%s", n.Kind())
		p.node(n.Expr)
	case *Assign:
		p.line("%s", n.Kind())
		p.node(n.Target)
		p.node(n.Value)
	case *Binary:
		p.line("%s: %s", n.Kind(), n.Op)
		p.node(n.Left)
		p.node(n.Right)
	case *Var:
		p.line("%s: %s", n.Kind(), n.Name)
	case *Index:
		p.line("%s: %s", n.Kind(), n.Name)
		p.node(n.Index)
	case *Call:
		p.line("%s: %s", n.Kind(), n.Name)
		p.seq(n.Args)
	case *Num:
		p.line("%s: %d", n.Kind(), n.Value)
	default:
		p.line("unknown node %T", n)
	}
}
