// Package ast defines the syntax tree built by the semantic tree builder.
// Every node carries its source line and resolved value type; references
// point back at the symbol or function they denote.
package ast

import (
	"fmt"

	"cminus/pkg/symtab"
)

// Kind tags the syntactic form of a node.
type Kind int

const (
	KindVarDecl Kind = iota
	KindArrayDecl
	KindFuncDecl
	KindFuncHead
	KindParam
	KindParamArray
	KindCompound
	KindExprStmt
	KindIf
	KindWhile
	KindReturn
	KindAssign
	KindBinary
	KindVar
	KindIndex
	KindCall
	KindNum
	KindProgram
)

var kindNames = [...]string{
	KindVarDecl:    "Var declaration",
	KindArrayDecl:  "Array declaration",
	KindFuncDecl:   "Function declaration",
	KindFuncHead:   "Function head",
	KindParam:      "Param",
	KindParamArray: "Param array",
	KindCompound:   "Compound statement",
	KindExprStmt:   "Expression statement",
	KindIf:         "If statement",
	KindWhile:      "While statement",
	KindReturn:     "Return statement",
	KindAssign:     "Assign",
	KindBinary:     "Op",
	KindVar:        "Var",
	KindIndex:      "Array element",
	KindCall:       "Call",
	KindNum:        "Number",
	KindProgram:    "Program",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op is a binary operator.
type Op int

const (
	Plus Op = iota
	Minus
	Times
	Over
	Lt
	Le
	Gt
	Ge
	Eq
	Ne
)

var opNames = [...]string{
	Plus: "+", Minus: "-", Times: "*", Over: "/",
	Lt: "<", Le: "<=", Gt: ">", Ge: ">=", Eq: "==", Ne: "!=",
}

func (o Op) String() string {
	if int(o) >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Relational reports whether the operator produces a 0/1 truth value.
func (o Op) Relational() bool { return o >= Lt && o <= Ne }

// Node is implemented by every tree node.
type Node interface {
	Kind() Kind
	Line() int
	// Type is the value type the node was resolved to.
	Type() symtab.Type
	String() string
}

// Pos holds the fields shared by every node.
type Pos struct {
	SrcLine int
	Typ     symtab.Type
}

func (p *Pos) Line() int          { return p.SrcLine }
func (p *Pos) Type() symtab.Type { return p.Typ }

//  Declarations

// VarDecl represents  int name;
type VarDecl struct {
	Pos
	Sym *symtab.Symbol
}

func (*VarDecl) Kind() Kind        { return KindVarDecl }
func (d *VarDecl) String() string { return fmt.Sprintf("VarDecl(%s)", d.Sym) }

// ArrayDecl represents  int name[Size];
type ArrayDecl struct {
	Pos
	Sym  *symtab.Symbol
	Size int
}

func (*ArrayDecl) Kind() Kind        { return KindArrayDecl }
func (d *ArrayDecl) String() string { return fmt.Sprintf("ArrayDecl(%s)", d.Sym) }

// Param represents one entry of a parameter list: int name or int name[].
type Param struct {
	Pos
	Name    string
	IsArray bool
	Sym     *symtab.Symbol
}

func (p *Param) Kind() Kind {
	if p.IsArray {
		return KindParamArray
	}
	return KindParam
}
func (p *Param) String() string { return fmt.Sprintf("Param(%s)", p.Sym) }

// FuncHead represents  type name(params)  before the body is seen.
//
//	int gcd(int u, int v)
//	^^^ ^^^ ^^^^^^^^^^^^
//	 |   |   Params
//	 |   Name
//	 Typ
type FuncHead struct {
	Pos
	Name   string
	Params []*Param
	Fn     *symtab.Function
}

func (*FuncHead) Kind() Kind        { return KindFuncHead }
func (h *FuncHead) String() string { return fmt.Sprintf("FuncHead(%s)", h.Fn) }

// FuncDecl is a complete function: head plus body.
type FuncDecl struct {
	Pos
	Head *FuncHead
	Body *Compound
}

func (*FuncDecl) Kind() Kind        { return KindFuncDecl }
func (f *FuncDecl) String() string { return fmt.Sprintf("FuncDecl(%s)", f.Head.Fn) }

// Program is the root: global declarations in source order.
type Program struct {
	Pos
	Decls []Node
}

func (*Program) Kind() Kind        { return KindProgram }
func (p *Program) String() string { return fmt.Sprintf("Program(decls=%d)", len(p.Decls)) }

//  Statements

// Compound represents { local-declarations statement-list }. Frame is set
// only when the block declared locals of its own.
type Compound struct {
	Pos
	Decls []Node
	Stmts []Node
	Frame *symtab.Frame
}

func (*Compound) Kind() Kind { return KindCompound }
func (c *Compound) String() string {
	return fmt.Sprintf("Compound(decls=%d, stmts=%d)", len(c.Decls), len(c.Stmts))
}

// ExprStmt is an expression evaluated for its side effects. Expr is nil for
// the empty statement.
type ExprStmt struct {
	Pos
	Expr Node
}

func (*ExprStmt) Kind() Kind        { return KindExprStmt }
func (e *ExprStmt) String() string { return fmt.Sprintf("ExprStmt(%v)", e.Expr) }

// If represents if (Cond) Then [else Else].
type If struct {
	Pos
	Cond Node
	Then Node
	Else Node // may be nil
}

func (*If) Kind() Kind { return KindIf }
func (i *If) String() string {
	if i.Else != nil {
		return fmt.Sprintf("If(%s then %s else %s)", i.Cond, i.Then, i.Else)
	}
	return fmt.Sprintf("If(%s then %s)", i.Cond, i.Then)
}

// While represents while (Cond) Body.
type While struct {
	Pos
	Cond Node
	Body Node
}

func (*While) Kind() Kind        { return KindWhile }
func (w *While) String() string { return fmt.Sprintf("While(%s do %s)", w.Cond, w.Body) }

// Return represents return [Expr];
type Return struct {
	Pos
	Expr Node // nil for a bare return
}

func (*Return) Kind() Kind        { return KindReturn }
func (r *Return) String() string { return fmt.Sprintf("Return(%v)", r.Expr) }

//  Expressions

// Assign represents Target = Value. Target is a *Var or *Index.
type Assign struct {
	Pos
	Target Node
	Value  Node
}

func (*Assign) Kind() Kind        { return KindAssign }
func (a *Assign) String() string { return fmt.Sprintf("(%s = %s)", a.Target, a.Value) }

// Binary represents Left Op Right for arithmetic and relational operators.
type Binary struct {
	Pos
	Op    Op
	Left  Node
	Right Node
}

func (*Binary) Kind() Kind        { return KindBinary }
func (b *Binary) String() string { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }

// Var is a reference to a variable, parameter or whole array.
type Var struct {
	Pos
	Name string
	Sym  *symtab.Symbol
}

func (*Var) Kind() Kind        { return KindVar }
func (v *Var) String() string { return v.Name }

// Index represents Name[Index].
type Index struct {
	Pos
	Name  string
	Index Node
	Sym   *symtab.Symbol
}

func (*Index) Kind() Kind        { return KindIndex }
func (e *Index) String() string { return fmt.Sprintf("%s[%s]", e.Name, e.Index) }

// Call represents Name(Args...).
type Call struct {
	Pos
	Name string
	Args []Node
	Fn   *symtab.Function
}

func (*Call) Kind() Kind        { return KindCall }
func (c *Call) String() string { return fmt.Sprintf("Call(%s, args=%v)", c.Name, c.Args) }

// Num is an integer literal.
type Num struct {
	Pos
	Value int
}

func (*Num) Kind() Kind        { return KindNum }
func (n *Num) String() string { return fmt.Sprintf("%d", n.Value) }
