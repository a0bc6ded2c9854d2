package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cminus/pkg/ast"
	"cminus/pkg/semantic"
	"cminus/pkg/symtab"
)

// Parser consumes the flat token slice produced by the Lexer and hands each
// recognized construct to a semantic.Builder, which checks it and returns
// the tree node.
//
// Grammar:
//
//	program     = declaration { declaration } EOF
//	declaration = varDecl | funDecl
//	varDecl     = typeSpec IDENTIFIER [ "[" NUMBER "]" ] ";"
//	typeSpec    = "int" | "void"
//	funDecl     = typeSpec IDENTIFIER "(" params ")" compound
//	params      = "void" | param { "," param }
//	param       = typeSpec IDENTIFIER [ "[" "]" ]
//	compound    = "{" { varDecl } { statement } "}"
//	statement   = exprStmt | compound | ifStmt | whileStmt | returnStmt
//	exprStmt    = [ expression ] ";"
//	ifStmt      = "if" "(" expression ")" statement [ "else" statement ]
//	whileStmt   = "while" "(" expression ")" statement
//	returnStmt  = "return" [ expression ] ";"
//	expression  = var "=" expression | simple
//	var         = IDENTIFIER [ "[" expression "]" ]
//	simple      = additive [ relop additive ]
//	additive    = term { ("+" | "-") term }
//	term        = factor { ("*" | "/") factor }
//	factor      = "(" expression ")" | var | call | NUMBER
//	call        = IDENTIFIER "(" [ expression { "," expression } ] ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
	b           *semantic.Builder
}

func NewParser(tokens []Token, rawSource string, b *semantic.Builder) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n"), b: b}
}

// Parse builds and checks the tree of a whole program.
func Parse(tokens []Token, rawSource string, b *semantic.Builder) (*ast.Program, error) {
	return NewParser(tokens, rawSource, b).parseProgram()
}

func (p *Parser) snippet(line int) string {
	lineIdx := line - 1 // Lines are 1-based
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		return strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return "<source unavailable>"
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: line %d: %s\n  |> %s", ErrSyntax, tok.Line, msg, p.snippet(tok.Line))
}

// check decorates a semantic error with its source line. The kind stays
// reachable through errors.Is.
func (p *Parser) check(err error) error {
	var se *semantic.Error
	if errors.As(err, &se) {
		return fmt.Errorf("%w\n  |> %s", err, p.snippet(se.Line))
	}
	return err
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

func isTypeSpec(tt TokenType) bool { return tt == INT || tt == VOID }

func (p *Parser) typeSpec() (symtab.Type, Token, error) {
	tok := p.advance()
	switch tok.Type {
	case INT:
		return symtab.Integer, tok, nil
	case VOID:
		return symtab.Void, tok, nil
	}
	return symtab.Undefined, tok, p.fmtError(tok, "expected type, got %s (%q)", tok.Type, tok.Lexeme)
}

func (p *Parser) number(tok Token) (int, error) {
	v, err := strconv.ParseInt(tok.Lexeme, 10, 32)
	if err != nil {
		return 0, p.fmtError(tok, "number %s out of range", tok.Lexeme)
	}
	return int(v), nil
}

//  Declarations

func (p *Parser) parseProgram() (*ast.Program, error) {
	var decls []ast.Node
	for p.peek().Type != EOF {
		d, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	prog, err := p.b.Program(decls, p.peek().Line)
	if err != nil {
		return nil, p.check(err)
	}
	return prog, nil
}

func (p *Parser) parseDeclaration() (ast.Node, error) {
	if p.peekAt(2).Type == LPAREN {
		return p.parseFunDecl()
	}
	return p.parseVarDecl()
}

func (p *Parser) parseVarDecl() (ast.Node, error) {
	typ, first, err := p.typeSpec()
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if p.peek().Type != LBRACKET {
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		decl, err := p.b.VarDecl(typ, name.Lexeme, first.Line)
		if err != nil {
			return nil, p.check(err)
		}
		return decl, nil
	}

	p.advance() // [
	sizeTok, err := p.expect(NUMBER)
	if err != nil {
		return nil, err
	}
	size, err := p.number(sizeTok)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	decl, err := p.b.ArrayDecl(typ, name.Lexeme, size, first.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return decl, nil
}

func (p *Parser) parseFunDecl() (ast.Node, error) {
	ret, first, err := p.typeSpec()
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	head, err := p.b.FuncHead(ret, name.Lexeme, params, first.Line)
	if err != nil {
		return nil, p.check(err)
	}
	if p.peek().Type != LBRACE {
		tok := p.peek()
		return nil, p.fmtError(tok, "expected function body, got %s (%q)", tok.Type, tok.Lexeme)
	}
	body, err := p.parseCompound()
	if err != nil {
		return nil, err
	}
	fn, err := p.b.FuncDecl(head, body, first.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return fn, nil
}

func (p *Parser) parseParams() ([]*ast.Param, error) {
	if p.peek().Type == VOID && p.peekAt(1).Type == RPAREN {
		p.advance()
		return nil, nil
	}
	var params []*ast.Param
	for {
		typ, first, err := p.typeSpec()
		if err != nil {
			return nil, err
		}
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		isArray := false
		if p.peek().Type == LBRACKET {
			p.advance()
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			isArray = true
		}
		param, err := p.b.Param(typ, name.Lexeme, isArray, first.Line)
		if err != nil {
			return nil, p.check(err)
		}
		params = append(params, param)
		if p.peek().Type != COMMA {
			return params, nil
		}
		p.advance()
	}
}

//  Statements

func (p *Parser) parseCompound() (*ast.Compound, error) {
	open, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	if err := p.b.BeginBlock(); err != nil {
		return nil, p.check(err)
	}
	var decls, stmts []ast.Node
	for isTypeSpec(p.peek().Type) {
		d, err := p.parseVarDecl()
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "unterminated block opened on line %d", open.Line)
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	p.advance() // }
	block, err := p.b.Compound(decls, stmts, open.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return block, nil
}

func (p *Parser) parseStatement() (ast.Node, error) {
	tok := p.peek()
	var (
		node ast.Node
		err  error
	)
	switch tok.Type {
	case LBRACE:
		return p.parseCompound()
	case IF:
		node, err = p.parseIf()
	case WHILE:
		node, err = p.parseWhile()
	case RETURN:
		node, err = p.parseReturn()
	case INT, VOID:
		return nil, p.fmtError(tok, "declaration after statement")
	default:
		node, err = p.parseExprStmt()
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseExprStmt() (ast.Node, error) {
	first := p.peek()
	var expr ast.Node
	if first.Type != SEMICOLON {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		expr = e
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	stmt, err := p.b.ExprStmt(expr, first.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return stmt, nil
}

func (p *Parser) parseCondition() (ast.Node, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return cond, nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	kw := p.advance()
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	var els ast.Node
	if p.peek().Type == ELSE { // dangling else binds to the nearest if
		p.advance()
		if els, err = p.parseStatement(); err != nil {
			return nil, err
		}
	}
	stmt, err := p.b.If(cond, then, els, kw.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (ast.Node, error) {
	kw := p.advance()
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt, err := p.b.While(cond, body, kw.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return stmt, nil
}

func (p *Parser) parseReturn() (ast.Node, error) {
	kw := p.advance()
	var expr ast.Node
	if p.peek().Type != SEMICOLON {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		expr = e
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	stmt, err := p.b.Return(expr, kw.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return stmt, nil
}

//  Expressions

// parseExpression parses an assignment or a simple expression. The target
// of an assignment is parsed like any other operand and must turn out to be
// a variable or an array element.
func (p *Parser) parseExpression() (ast.Node, error) {
	left, err := p.parseSimple()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != ASSIGN {
		return left, nil
	}
	eq := p.advance()
	switch left.(type) {
	case *ast.Var, *ast.Index:
	default:
		return nil, p.fmtError(eq, "left side of assignment is not a variable")
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	assign, err := p.b.Assign(left, value, eq.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return assign, nil
}

var relops = map[TokenType]ast.Op{
	LESS:       ast.Lt,
	LESS_EQ:    ast.Le,
	GREATER:    ast.Gt,
	GREATER_EQ: ast.Ge,
	EQUALS:     ast.Eq,
	NOT_EQ:     ast.Ne,
}

var addops = map[TokenType]ast.Op{PLUS: ast.Plus, MINUS: ast.Minus}

var mulops = map[TokenType]ast.Op{STAR: ast.Times, SLASH: ast.Over}

// parseSimple allows at most one relational operator; comparisons do not
// chain.
func (p *Parser) parseSimple() (ast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := relops[p.peek().Type]
	if !ok {
		return left, nil
	}
	tok := p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	bin, err := p.b.Binary(op, left, right, tok.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return bin, nil
}

func (p *Parser) parseAdditive() (ast.Node, error) {
	return p.parseLeftAssoc(addops, p.parseTerm)
}

func (p *Parser) parseTerm() (ast.Node, error) {
	return p.parseLeftAssoc(mulops, p.parseFactor)
}

func (p *Parser) parseLeftAssoc(ops map[TokenType]ast.Op, operand func() (ast.Node, error)) (ast.Node, error) {
	expr, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.peek().Type]
		if !ok {
			return expr, nil
		}
		tok := p.advance()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		if expr, err = p.b.Binary(op, expr, right, tok.Line); err != nil {
			return nil, p.check(err)
		}
	}
}

func (p *Parser) parseFactor() (ast.Node, error) {
	tok := p.peek()
	switch tok.Type {
	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil

	case NUMBER:
		p.advance()
		v, err := p.number(tok)
		if err != nil {
			return nil, err
		}
		num, err := p.b.Num(v, tok.Line)
		if err != nil {
			return nil, p.check(err)
		}
		return num, nil

	case IDENTIFIER:
		switch p.peekAt(1).Type {
		case LPAREN:
			return p.parseCall()
		case LBRACKET:
			return p.parseIndex()
		}
		p.advance()
		v, err := p.b.Var(tok.Lexeme, tok.Line)
		if err != nil {
			return nil, p.check(err)
		}
		return v, nil
	}
	return nil, p.fmtError(tok, "unexpected %s (%q) in expression", tok.Type, tok.Lexeme)
}

func (p *Parser) parseIndex() (ast.Node, error) {
	name := p.advance()
	p.advance() // [
	index, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	elem, err := p.b.Index(name.Lexeme, index, name.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return elem, nil
}

func (p *Parser) parseCall() (ast.Node, error) {
	name := p.advance()
	p.advance() // (
	var args []ast.Node
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	call, err := p.b.Call(name.Lexeme, args, name.Line)
	if err != nil {
		return nil, p.check(err)
	}
	return call, nil
}
