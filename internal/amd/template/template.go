// Package template extracts AMD dependencies from server-rendered
// templates (.phtml and .html).
//
// Recognized sources:
//
//	data-mage-init='{"component": {...}}'
//	data-bind="mageInit: {'component': {...}}"
//	<script type="text/x-magento-init">{"selector": {"component": {...}}}</script>
//	<script>require([...])</script>, and define calls in inline scripts
package template

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/net/html"

	"github.com/albertocavalcante/amdpack/internal/amd/deps"
	"github.com/albertocavalcante/amdpack/internal/jsparse"
)

const (
	scriptJS        = "text/javascript"
	scriptMageInit  = "text/x-magento-init"
	attrMageInit    = "data-mage-init"
	attrBind        = "data-bind"
	bindingMageInit = "mageInit"
)

// Parse returns the dependencies declared by a template. Template tags are
// neutralized before the markup is tokenized, so interpolations inside
// attributes and scripts do not break the markup. Anything that cannot be
// analyzed sets IncompleteAnalysis.
func Parse(ctx context.Context, src []byte) deps.Result {
	c := &collector{ctx: ctx}
	c.Deps = []string{}

	z := html.NewTokenizer(bytes.NewReader(jsparse.StripTemplateTags(src)))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if !errors.Is(z.Err(), io.EOF) {
				c.IncompleteAnalysis = true
			}
			// An unterminated script still counts.
			c.closeScript()
			return c.Result
		case html.StartTagToken, html.SelfClosingTagToken:
			c.openTag(z.Token())
		case html.TextToken:
			if c.script != "" {
				c.buf.Write(z.Text())
			}
		case html.EndTagToken:
			c.closeScript()
		}
	}
}

type collector struct {
	deps.Result
	ctx    context.Context
	script string // type of the open script element, or ""
	buf    bytes.Buffer
}

func (c *collector) openTag(tok html.Token) {
	scriptType := scriptJS
	for _, a := range tok.Attr {
		switch a.Key {
		case attrMageInit:
			c.add(mageInitKeys(c.ctx, a.Val))
		case attrBind:
			if strings.Contains(a.Val, bindingMageInit) {
				c.add(bindingKeys(c.ctx, a.Val))
			}
		case "type":
			scriptType = a.Val
		}
	}
	if tok.Data == "script" && tok.Type == html.StartTagToken {
		switch scriptType {
		case scriptJS, scriptMageInit:
			c.script = scriptType
			c.buf.Reset()
		}
	}
}

func (c *collector) closeScript() {
	switch c.script {
	case scriptMageInit:
		c.add(xMagentoInitKeys(c.ctx, c.buf.String()))
	case scriptJS:
		res, err := deps.Parse(c.ctx, c.buf.Bytes(), true)
		if err != nil {
			c.IncompleteAnalysis = true
		} else {
			c.Merge(res)
		}
	}
	c.script = ""
	c.buf.Reset()
}

// add merges keys, rejecting keys that contain a template interpolation.
func (c *collector) add(keys []string, ok bool) {
	if !ok {
		c.IncompleteAnalysis = true
	}
	var res deps.Result
	for _, k := range keys {
		if jsparse.HasPlaceholder(k) {
			c.IncompleteAnalysis = true
			continue
		}
		res.Deps = append(res.Deps, k)
	}
	c.Merge(res)
}

// mageInitKeys returns the components of a data-mage-init value.
func mageInitKeys(ctx context.Context, value string) ([]string, bool) {
	if keys, err := parseObjectKeys(ctx, value, nil); err == nil {
		return keys, true
	}
	return scanKeys(value, 1)
}

// bindingKeys returns the components of the mageInit binding of a
// Knockout data-bind value. Bindings are an object literal without its
// braces.
func bindingKeys(ctx context.Context, value string) ([]string, bool) {
	keys, err := parseObjectKeys(ctx, "{"+value+"}", func(t *jsparse.Tree, obj *sitter.Node) []*sitter.Node {
		for _, p := range jsparse.Args(obj) {
			if p.Type() == "pair" && keyName(t, p.ChildByFieldName("key")) == bindingMageInit {
				return []*sitter.Node{p.ChildByFieldName("value")}
			}
		}
		return nil
	})
	if err == nil && len(keys) > 0 {
		return keys, true
	}

	// Malformed bindings: take the object following "mageInit:" on its own.
	obj, ok := objectAfter(value, reBindingMageInit)
	if !ok {
		return nil, false
	}
	if keys, err := parseObjectKeys(ctx, obj, nil); err == nil {
		return keys, true
	}
	return scanKeys(obj, 1)
}

var reBindingMageInit = regexp.MustCompile(`\bmageInit\s*:\s*\{`)

// xMagentoInitKeys returns the components of an x-magento-init script:
// the keys of every object under a selector.
func xMagentoInitKeys(ctx context.Context, body string) ([]string, bool) {
	keys, err := parseObjectKeys(ctx, body, func(t *jsparse.Tree, obj *sitter.Node) []*sitter.Node {
		var out []*sitter.Node
		for _, p := range jsparse.Args(obj) {
			if p.Type() == "pair" {
				out = append(out, p.ChildByFieldName("value"))
			}
		}
		return out
	})
	if err == nil {
		return keys, true
	}
	return scanKeys(body, 2)
}

var errNotObject = errors.New("not an object expression")

// parseObjectKeys parses src as an object expression. With a nil descend
// it returns the object's own keys; otherwise the keys of the objects
// descend selects.
func parseObjectKeys(ctx context.Context, src string, descend func(*jsparse.Tree, *sitter.Node) []*sitter.Node) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(src), "{") {
		// A leading brace opens a block in statement position.
		src = "(" + src + ")"
	}
	tree, err := jsparse.Parse(ctx, []byte(src), jsparse.Strict)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var obj *sitter.Node
	if stmts := jsparse.Args(tree.Root()); len(stmts) > 0 && stmts[0].Type() == "expression_statement" {
		if e := jsparse.Args(stmts[0]); len(e) > 0 {
			obj = jsparse.Unparen(e[0])
		}
	}
	if obj == nil || obj.Type() != "object" {
		return nil, errNotObject
	}

	objects := []*sitter.Node{obj}
	if descend != nil {
		objects = descend(tree, obj)
	}
	keys := []string{}
	for _, o := range objects {
		if o == nil || o.Type() != "object" {
			continue
		}
		for _, p := range jsparse.Args(o) {
			var name string
			switch p.Type() {
			case "pair":
				name = keyName(tree, p.ChildByFieldName("key"))
			case "shorthand_property_identifier":
				name = tree.Text(p)
			}
			if name != "" {
				keys = append(keys, name)
			}
		}
	}
	return keys, nil
}

// keyName returns a literal property name, or "" for computed keys.
func keyName(t *jsparse.Tree, key *sitter.Node) string {
	if key == nil {
		return ""
	}
	switch key.Type() {
	case "property_identifier":
		return t.Text(key)
	case "string":
		if v, ok := t.StringValue(key); ok {
			return v
		}
		return jsparse.Placeholder
	}
	return ""
}
