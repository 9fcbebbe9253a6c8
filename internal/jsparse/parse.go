// Package jsparse wraps the tree-sitter JavaScript grammar.
//
// Strict parsing rejects any tree containing ERROR or MISSING nodes.
// Tolerant parsing first neutralizes server-side template tags and then
// accepts the error-recovered tree as is.
package jsparse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Mode selects how syntax errors are handled.
type Mode int

const (
	// Strict fails on any syntax error.
	Strict Mode = iota
	// Tolerant returns a best-effort tree.
	Tolerant
	// Recover returns a best-effort tree of the unmodified source, for
	// callers that edit the source by node offsets.
	Recover
)

func (m Mode) String() string {
	switch m {
	case Tolerant:
		return "tolerant"
	case Recover:
		return "recover"
	}
	return "strict"
}

// SyntaxError reports the first syntax error of a strict parse.
// Line and Column are 1-based.
type SyntaxError struct {
	Line   int
	Column int
	Near   string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error at %d:%d", e.Line, e.Column)
	}
	return fmt.Sprintf("syntax error at %d:%d near %q", e.Line, e.Column, e.Near)
}

// Tree is a parsed JavaScript source. Close releases the native tree.
type Tree struct {
	src  []byte
	tree *sitter.Tree
}

// Parse parses src. In Tolerant mode template tags are replaced before
// parsing, so Source may differ from src.
func Parse(ctx context.Context, src []byte, mode Mode) (*Tree, error) {
	if mode == Tolerant {
		src = StripTemplateTags(src)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing javascript: %w", err)
	}

	t := &Tree{src: src, tree: tree}
	if mode == Strict {
		if bad := FirstError(tree.RootNode()); bad != nil {
			defer t.Close()
			return nil, t.syntaxError(bad)
		}
	}
	return t, nil
}

// Root returns the program node.
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Source returns the bytes the tree was parsed from.
func (t *Tree) Source() []byte {
	return t.src
}

// Text returns the source text of n.
func (t *Tree) Text(n *sitter.Node) string {
	return n.Content(t.src)
}

// Close releases the tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

func (t *Tree) syntaxError(n *sitter.Node) *SyntaxError {
	p := n.StartPoint()
	near := t.Text(n)
	if len(near) > 40 {
		near = near[:40]
	}
	return &SyntaxError{
		Line:   int(p.Row) + 1,
		Column: int(p.Column) + 1,
		Near:   near,
	}
}

// FirstError returns the first ERROR or MISSING node under n in document
// order, or nil.
func FirstError(n *sitter.Node) *sitter.Node {
	if n == nil || !n.HasError() && !n.IsMissing() {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := FirstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	// HasError without an erroneous child means n itself is the culprit.
	return n
}

// Walk visits n and its descendants in document order. Children are skipped
// when fn returns false.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}

// Args returns the named children of an arguments, array or object node,
// skipping comments.
func Args(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// IsFunction reports whether n is a function value.
func IsFunction(n *sitter.Node) bool {
	switch n.Type() {
	case "function", "function_expression", "arrow_function", "generator_function":
		return true
	}
	return false
}

// Unparen strips parenthesized_expression wrappers.
func Unparen(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		inner := Args(n)
		if len(inner) != 1 {
			return n
		}
		n = inner[0]
	}
	return n
}

// CalleeName returns the identifier name of a call's callee, or "" if the
// callee is not a bare identifier.
func (t *Tree) CalleeName(call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return ""
	}
	return t.Text(fn)
}
