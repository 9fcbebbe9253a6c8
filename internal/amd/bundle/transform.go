package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
	"github.com/albertocavalcante/amdpack/internal/jsparse"
)

// Kind describes how a module was rewritten for the bundle.
type Kind string

// Module kinds.
const (
	KindText      Kind = "text"
	KindNamed     Kind = "named"
	KindAnonymous Kind = "anonymous"
	KindShimmed   Kind = "shimmed"
	KindNonAMD    Kind = "non-amd"
)

// piece is one transformed module. The original source occupies srcLines
// generated lines of code starting at line srcStart.
type piece struct {
	code     string
	srcStart int
	srcLines int
}

func lineCount(s string) int {
	return strings.Count(s, "\n") + 1
}

// wrapText turns a text resource into a module returning its content.
func wrapText(id, src string) piece {
	return piece{
		code:     "define('" + quote(id) + "', function() {\n    return '" + quote(src) + "';\n});",
		srcStart: 1,
		srcLines: 1,
	}
}

// wrapNonShimmed keeps a non-AMD script in the top-level scope and
// registers an empty module under its id so the loader does not fetch it
// again.
func wrapNonShimmed(id, src string) piece {
	prefix := "define('" + quote(id) + "', function() {\n" +
		"    // stub for non-AMD module (no shim config was found for this module)\n" +
		"});\n" +
		"// Original code for non-AMD module " + id + "\n"
	return piece{code: prefix + src, srcStart: 4, srcLines: lineCount(src)}
}

// wrapShimmed runs a non-AMD script inside a module factory that depends
// on the shim deps and returns the shim's exported global.
func wrapShimmed(id, src string, shim requireconfig.Shim) piece {
	deps := shim.Deps
	if deps == nil {
		deps = []string{}
	}
	depsJSON, _ := json.Marshal(deps) // a []string always encodes

	var b strings.Builder
	b.WriteString("define('" + quote(id) + "', " + string(depsJSON) + ", function() {\n")
	b.WriteString("(function() {\n")
	b.WriteString(src)
	b.WriteString("\n})();\n")
	if shim.Exports != "" {
		b.WriteString("return window['" + quote(shim.Exports) + "'];\n")
	}
	b.WriteString("});")
	return piece{code: b.String(), srcStart: 2, srcLines: lineCount(src)}
}

// rename inserts id as the first argument of the define call whose
// argument list opens at offset at.
func rename(id, src string, at int) piece {
	return piece{
		code:     src[:at] + "'" + quote(id) + "', " + src[at:],
		srcLines: lineCount(src),
	}
}

func passThrough(src string) piece {
	return piece{code: src, srcLines: lineCount(src)}
}

// defineCall describes the first define call of a module.
type defineCall struct {
	found bool
	named bool
	// insertAt is the byte offset just after the call's opening paren.
	insertAt int
}

// findDefine locates the first define(...) call with a bare callee.
func findDefine(ctx context.Context, src []byte) (defineCall, error) {
	tree, err := jsparse.Parse(ctx, src, jsparse.Strict)
	var syntaxErr *jsparse.SyntaxError
	if errors.As(err, &syntaxErr) {
		tree, err = jsparse.Parse(ctx, src, jsparse.Recover)
	}
	if err != nil {
		return defineCall{}, err
	}
	defer tree.Close()

	var call defineCall
	jsparse.Walk(tree.Root(), func(n *sitter.Node) bool {
		if call.found {
			return false
		}
		if n.Type() != "call_expression" || tree.CalleeName(n) != "define" {
			return true
		}
		argsNode := n.ChildByFieldName("arguments")
		if argsNode == nil || argsNode.Type() != "arguments" {
			return true
		}
		call.found = true
		call.insertAt = int(argsNode.StartByte()) + 1
		if args := jsparse.Args(argsNode); len(args) > 0 {
			switch args[0].Type() {
			case "string", "template_string":
				call.named = true
			}
		}
		return false
	})
	return call, nil
}

// transform rewrites one module for inclusion in a bundle.
func transform(ctx context.Context, id string, text bool, src string, cfg *requireconfig.Config) (piece, Kind, error) {
	if text {
		return wrapText(id, src), KindText, nil
	}

	call, err := findDefine(ctx, []byte(src))
	if err != nil {
		return piece{}, "", err
	}
	switch {
	case call.found && call.named:
		return passThrough(src), KindNamed, nil
	case call.found:
		return rename(id, src, call.insertAt), KindAnonymous, nil
	}
	if shim, ok := cfg.ShimFor(id); ok {
		return wrapShimmed(id, src, shim), KindShimmed, nil
	}
	return wrapNonShimmed(id, src), KindNonAMD, nil
}
