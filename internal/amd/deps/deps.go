// Package deps extracts AMD dependency lists from JavaScript sources.
//
// Recognized call forms, with bare define/require callees:
//
//	define(['a', 'b'], factory)
//	define('name', ['a'], factory)
//	define(factory), define('name', factory)
//	require(['a'], callback), require(['a'])
//	require('a')
package deps

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/albertocavalcante/amdpack/internal/jsparse"
)

// Result is the outcome of a dependency extraction.
//
// IncompleteAnalysis is set when at least one dependency slot held a value
// that is not a string literal.
type Result struct {
	Deps               []string `json:"deps"`
	IncompleteAnalysis bool     `json:"incompleteAnalysis"`
}

// Merge appends other's deps to r, dropping duplicates.
func (r *Result) Merge(other Result) {
	seen := make(map[string]bool, len(r.Deps))
	for _, d := range r.Deps {
		seen[d] = true
	}
	for _, d := range other.Deps {
		if !seen[d] {
			seen[d] = true
			r.Deps = append(r.Deps, d)
		}
	}
	r.IncompleteAnalysis = r.IncompleteAnalysis || other.IncompleteAnalysis
}

// Parse extracts dependencies from src.
//
// In tolerant mode template tags are neutralized and an error-recovered
// tree is accepted; otherwise a syntax error returns *jsparse.SyntaxError.
func Parse(ctx context.Context, src []byte, tolerant bool) (Result, error) {
	mode := jsparse.Strict
	if tolerant {
		mode = jsparse.Tolerant
	}
	tree, err := jsparse.Parse(ctx, src, mode)
	if err != nil {
		return Result{}, err
	}
	defer tree.Close()

	res := FromTree(tree)
	if tolerant && brokenCall(tree) {
		res.IncompleteAnalysis = true
	}
	return res, nil
}

// brokenCall reports whether repairing the tree touched a define or require
// call: an error inside one, or an error node standing in for one. Errors
// elsewhere cannot hide dependencies.
func brokenCall(tree *jsparse.Tree) bool {
	broken := false
	jsparse.Walk(tree.Root(), func(n *sitter.Node) bool {
		if broken || !n.HasError() && !n.IsMissing() {
			return false
		}
		switch n.Type() {
		case "call_expression":
			broken = isLoader(tree.CalleeName(n))
		case "ERROR":
			for _, child := range jsparse.Args(n) {
				if child.Type() == "identifier" && isLoader(tree.Text(child)) {
					broken = true
				}
			}
		}
		return !broken
	})
	return broken
}

func isLoader(name string) bool {
	return name == "define" || name == "require"
}

// FromTree extracts dependencies from an already parsed tree. Define deps
// come first, then require deps, each in document order.
func FromTree(tree *jsparse.Tree) Result {
	var defines, requires collector
	jsparse.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != "call_expression" {
			return true
		}
		args := jsparse.Args(n.ChildByFieldName("arguments"))
		switch tree.CalleeName(n) {
		case "define":
			defines.define(tree, args)
		case "require":
			requires.require(tree, args)
		}
		return true
	})

	var out Result
	out.Merge(defines.Result)
	out.Merge(requires.Result)
	if out.Deps == nil {
		out.Deps = []string{}
	}
	return out
}

type collector struct {
	Result
}

func (c *collector) define(tree *jsparse.Tree, args []*sitter.Node) {
	if len(args) == 0 {
		return
	}
	first := args[0]
	switch first.Type() {
	case "array":
		c.array(tree, first)
		return
	case "string", "template_string":
		if _, ok := tree.StringValue(first); !ok {
			c.IncompleteAnalysis = true
		}
	default:
		// define(factory) has no dependency slot; a non-literal followed by
		// more arguments is a computed name or dependency list.
		if len(args) > 1 && !jsparse.IsFunction(first) {
			c.IncompleteAnalysis = true
		}
		return
	}

	if len(args) < 2 {
		return
	}
	second := args[1]
	switch {
	case second.Type() == "array":
		c.array(tree, second)
	case jsparse.IsFunction(second), second.Type() == "object":
	default:
		if len(args) > 2 {
			c.IncompleteAnalysis = true
		}
	}
}

func (c *collector) require(tree *jsparse.Tree, args []*sitter.Node) {
	if len(args) == 0 {
		return
	}
	first := args[0]
	switch first.Type() {
	case "array":
		c.array(tree, first)
	case "string", "template_string":
		if v, ok := tree.StringValue(first); ok {
			c.add(v)
		} else {
			c.IncompleteAnalysis = true
		}
	default:
		c.IncompleteAnalysis = true
	}
}

func (c *collector) array(tree *jsparse.Tree, arr *sitter.Node) {
	for _, el := range jsparse.Args(arr) {
		if v, ok := tree.StringValue(el); ok {
			c.add(v)
			continue
		}
		c.IncompleteAnalysis = true
	}
}

func (c *collector) add(dep string) {
	c.Deps = append(c.Deps, dep)
}
