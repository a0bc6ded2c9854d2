package compiler

import (
	"errors"
	"fmt"
	"io"

	"cminus/pkg/ast"
	"cminus/pkg/codegen"
	"cminus/pkg/semantic"
	"cminus/pkg/symtab"
)

var (
	ErrLex    = errors.New("lex error")
	ErrSyntax = errors.New("syntax error")
)

// Options selects what a compilation produces besides the checked tree.
type Options struct {
	PrintTree   bool // write the syntax tree to Listing
	PrintScopes bool // write every frame to Listing as it is closed
	EmitCode    bool // generate the TM instruction stream

	Trace   bool      // annotate the instruction stream with comments
	Listing io.Writer // destination of PrintTree and PrintScopes; io.Discard if nil
}

// Result holds the products of one compilation.
type Result struct {
	Tree  *ast.Program
	Table *symtab.Table
	Code  *codegen.Emitter // nil unless Options.EmitCode
}

// Compile lexes, parses and checks src and, if requested, generates code
// for it. It stops at the first error.
func Compile(src string, opts Options) (*Result, error) {
	listing := opts.Listing
	if listing == nil {
		listing = io.Discard
	}

	tokens, err := Lex(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLex, err)
	}
	tracer().Debugf("lexed %d tokens", len(tokens))

	b := semantic.NewBuilder()
	if opts.PrintScopes {
		b.Listing = listing
	}
	tree, err := Parse(tokens, src, b)
	if err != nil {
		tracer().Errorf("%v", err)
		return nil, err
	}
	res := &Result{Tree: tree, Table: b.Table()}
	tracer().Infof("checked %d top-level declarations", len(tree.Decls))

	if opts.PrintTree {
		if err := ast.Fprint(listing, tree); err != nil {
			return nil, err
		}
	}

	if opts.EmitCode {
		code, err := codegen.Generate(tree, res.Table, codegen.Options{Trace: opts.Trace})
		if err != nil {
			tracer().Errorf("%v", err)
			return nil, err
		}
		res.Code = code
		tracer().Infof("generated %d instructions", len(code.Program().Instructions))
	}
	return res, nil
}
