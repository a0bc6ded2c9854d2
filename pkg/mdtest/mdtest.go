// Package mdtest reads compiler test cases written as Markdown. Each case
// starts at a heading "Test: name" and is followed by fenced code blocks:
//
//	```cminus         the program (required, exactly one)
//	```input          integers fed to input() (optional)
//	```output         expected program output
//	```tree           expected syntax tree listing
//	```compile-error  text the compile error must contain
//
// A case needs at least one expectation fence.
package mdtest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Fence is the info string of a recognized code block.
type Fence string

const (
	FenceProgram      Fence = "cminus"
	FenceInput        Fence = "input"
	FenceOutput       Fence = "output"
	FenceTree         Fence = "tree"
	FenceCompileError Fence = "compile-error"
)

// Expectation is one assertion fence of a case.
type Expectation struct {
	Kind    Fence
	Content string
	Line    int
}

// Case is one test extracted from a document.
type Case struct {
	Name         string
	Line         int // line of the heading
	Source       string
	Input        string
	Expectations []Expectation
}

// Want returns the content of the first expectation of the given kind.
func (c *Case) Want(kind Fence) (string, bool) {
	for _, e := range c.Expectations {
		if e.Kind == kind {
			return e.Content, true
		}
	}
	return "", false
}

const headingPrefix = "Test: "

// Extract parses a Markdown document and returns its cases in document
// order.
func Extract(markdown []byte) ([]Case, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var (
		cases   []Case
		current *Case
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		current = nil
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			title := headingText(n, markdown)
			if !strings.HasPrefix(title, headingPrefix) {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{
				Name: strings.TrimSpace(strings.TrimPrefix(title, headingPrefix)),
				Line: lineOf(n, markdown),
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			lang := string(n.Language(markdown))
			line := lineOf(n, markdown)
			if current == nil {
				if lang != "" {
					return ast.WalkStop, fmt.Errorf("line %d: %q fence outside of a test case", line, lang)
				}
				return ast.WalkContinue, nil
			}
			if err := current.add(Fence(lang), blockContent(n, markdown), line); err != nil {
				return ast.WalkStop, err
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

func (c *Case) add(kind Fence, content string, line int) error {
	switch kind {
	case FenceProgram:
		if c.Source != "" {
			return fmt.Errorf("line %d: test %q has more than one program", line, c.Name)
		}
		c.Source = content
	case FenceInput:
		if c.Input != "" {
			return fmt.Errorf("line %d: test %q has more than one input", line, c.Name)
		}
		c.Input = content
	case FenceOutput, FenceTree, FenceCompileError:
		if kind != FenceOutput {
			content = strings.TrimRight(content, "\n")
		}
		c.Expectations = append(c.Expectations, Expectation{Kind: kind, Content: content, Line: line})
	case "":
		// untagged blocks are prose
	default:
		return fmt.Errorf("line %d: unknown fence %q in test %q", line, kind, c.Name)
	}
	return nil
}

func validate(c *Case) error {
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("line %d: test %q has no program", c.Line, c.Name)
	}
	if len(c.Expectations) == 0 {
		return fmt.Errorf("line %d: test %q has no expectations", c.Line, c.Name)
	}
	_, wantsErr := c.Want(FenceCompileError)
	_, wantsOut := c.Want(FenceOutput)
	if wantsErr && wantsOut {
		return fmt.Errorf("line %d: test %q expects both output and a compile error", c.Line, c.Name)
	}
	return nil
}

func headingText(h *ast.Heading, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func blockContent(b *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := b.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// lineOf returns the 1-based line of the node's first segment.
func lineOf(n ast.Node, source []byte) int {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return 1
	}
	return bytes.Count(source[:lines.At(0).Start], []byte{'\n'}) + 1
}
