package requireconfig

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/albertocavalcante/amdpack/internal/jsparse"
)

// ErrNoConfigCalls is returned when a repaired tree holds no usable
// require.config call.
var ErrNoConfigCalls = errors.New("no require.config calls found")

// ErrSyntax marks a config call whose argument could not be repaired.
var ErrSyntax = errors.New("syntax error")

// maxCallDepth bounds nested function invocation.
const maxCallDepth = 64

// Placeholder globals. Reading any property of them yields undefined.
var placeholderGlobals = []string{"window", "self", "globalThis", "document", "navigator"}

type options struct {
	logger zerolog.Logger
}

// Option configures Evaluate.
type Option func(*options)

// WithLogger sets the logger for evaluation diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Evaluate evaluates a RequireJS configuration source.
//
// Only require.config and requirejs.config calls contribute to the result.
// A failure inside a call's argument is fatal. Failures in other statements
// are logged and skipped, and variables whose initializer failed report
// the failure only when a config call uses them.
//
// If the source has syntax errors, a tolerant parse is attempted. It is
// accepted when at least one config call is found and none of the config
// call arguments contain errors.
func Evaluate(ctx context.Context, src []byte, opts ...Option) (*Config, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := evaluate(ctx, src, jsparse.Strict, o.logger)
	var syntaxErr *jsparse.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return cfg, err
	}

	o.logger.Debug().Err(err).Msg("require config has syntax errors, trying tolerant parse")
	repaired, tolerantErr := evaluate(ctx, src, jsparse.Tolerant, o.logger)
	if tolerantErr != nil {
		o.logger.Debug().Err(tolerantErr).Msg("tolerant evaluation failed")
		return nil, err
	}
	o.logger.Warn().Err(err).Msg("require config evaluated from a repaired syntax tree")
	return repaired, nil
}

func evaluate(ctx context.Context, src []byte, mode jsparse.Mode, logger zerolog.Logger) (*Config, error) {
	tree, err := jsparse.Parse(ctx, src, mode)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	e := &evaluator{
		ctx:      ctx,
		tree:     tree,
		cfg:      New(),
		logger:   logger,
		tolerant: mode == jsparse.Tolerant,
	}
	if _, err := e.execAll(jsparse.Args(tree.Root()), e.globals()); err != nil {
		return nil, unwrapFatal(err)
	}
	if e.tolerant && e.calls == 0 {
		return nil, ErrNoConfigCalls
	}
	return e.cfg, nil
}

type scope struct {
	vars   map[string]any
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]any), parent: parent}
}

func (s *scope) lookup(name string) (any, bool) {
	for ; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) declare(name string, v any) {
	s.vars[name] = v
}

// assign updates the nearest binding, or creates a global one.
func (s *scope) assign(name string, v any) {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return
		}
		if cur.parent == nil {
			cur.vars[name] = v
		}
	}
}

// fatalError marks errors that abort evaluation instead of being skipped.
type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

func fatal(err error) error {
	var f *fatalError
	if errors.As(err, &f) {
		return err
	}
	return &fatalError{err: err}
}

func unwrapFatal(err error) error {
	var f *fatalError
	if errors.As(err, &f) {
		return f.err
	}
	return err
}

func isFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// skippable reports whether err only means the evaluator cannot model an
// expression. Errors the script itself would throw are never skippable.
func skippable(err error) bool {
	return !isFatal(err) && errors.Is(err, ErrUnsupported)
}

type evaluator struct {
	ctx      context.Context
	tree     *jsparse.Tree
	cfg      *Config
	logger   zerolog.Logger
	tolerant bool
	calls    int
	depth    int
}

func (e *evaluator) globals() *scope {
	s := newScope(nil)
	for _, name := range placeholderGlobals {
		s.declare(name, newObject())
	}
	require := &loader{name: "require"}
	s.declare("require", require)
	s.declare("requirejs", require)
	s.declare("define", &loader{name: "define"})
	s.declare("undefined", undefined{})
	return s
}

func (e *evaluator) errorf(n *sitter.Node, kind error, format string, args ...any) *EvalError {
	expr := e.tree.Text(n)
	if len(expr) > 80 {
		expr = expr[:80] + "..."
	}
	return &EvalError{
		Line: int(n.StartPoint().Row) + 1,
		Expr: expr,
		Msg:  fmt.Sprintf(format, args...),
		Kind: kind,
	}
}

type completion struct {
	value    any
	returned bool
}

func (e *evaluator) execAll(stmts []*sitter.Node, s *scope) (completion, error) {
	for _, stmt := range stmts {
		if err := e.ctx.Err(); err != nil {
			return completion{}, err
		}
		c, err := e.exec(stmt, s)
		if err != nil || c.returned {
			return c, err
		}
	}
	return completion{}, nil
}

func (e *evaluator) exec(n *sitter.Node, s *scope) (completion, error) {
	switch n.Type() {
	case "expression_statement":
		for _, expr := range jsparse.Args(n) {
			if err := e.statementExpr(expr, s); err != nil {
				return completion{}, err
			}
		}
	case "variable_declaration", "lexical_declaration":
		for _, decl := range jsparse.Args(n) {
			if decl.Type() != "variable_declarator" {
				continue
			}
			if err := e.declare(decl, s); err != nil {
				return completion{}, err
			}
		}
	case "function_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			s.declare(e.tree.Text(name), e.function(n, s))
		}
	case "statement_block":
		return e.execAll(jsparse.Args(n), s)
	case "if_statement":
		return e.execIf(n, s)
	case "try_statement":
		if body := n.ChildByFieldName("body"); body != nil {
			return e.exec(body, s)
		}
	case "return_statement":
		args := jsparse.Args(n)
		if len(args) == 0 {
			return completion{value: undefined{}, returned: true}, nil
		}
		v, err := e.eval(args[0], s)
		if err != nil {
			return completion{}, err
		}
		return completion{value: v, returned: true}, nil
	case "ERROR":
		// Repaired trees wrap otherwise valid statements in ERROR nodes.
		for _, child := range jsparse.Args(n) {
			if c, err := e.exec(child, s); err != nil || c.returned {
				return c, err
			}
		}
	case "comment", "empty_statement":
	default:
		if e.tolerant && isExpression(n) {
			if err := e.statementExpr(n, s); err != nil {
				return completion{}, err
			}
		}
	}
	return completion{}, nil
}

func (e *evaluator) execIf(n *sitter.Node, s *scope) (completion, error) {
	cond, err := e.eval(n.ChildByFieldName("condition"), s)
	if err != nil {
		if !skippable(err) {
			return completion{}, err
		}
		e.logger.Debug().Err(err).Msg("skipping if statement")
		return completion{}, nil
	}
	if truthy(cond) {
		if body := n.ChildByFieldName("consequence"); body != nil {
			return e.exec(body, s)
		}
		return completion{}, nil
	}
	alt := n.ChildByFieldName("alternative")
	if alt == nil {
		return completion{}, nil
	}
	if alt.Type() == "else_clause" {
		if stmts := jsparse.Args(alt); len(stmts) > 0 {
			return e.exec(stmts[0], s)
		}
		return completion{}, nil
	}
	return e.exec(alt, s)
}

// statementExpr evaluates an expression in statement position. Expressions
// the evaluator cannot model are logged and dropped.
func (e *evaluator) statementExpr(n *sitter.Node, s *scope) error {
	if _, err := e.eval(n, s); err != nil {
		if !skippable(err) {
			return err
		}
		e.logger.Debug().Err(err).Msg("skipping statement")
	}
	return nil
}

func (e *evaluator) declare(decl *sitter.Node, s *scope) error {
	name := decl.ChildByFieldName("name")
	if name == nil || name.Type() != "identifier" {
		return nil
	}
	value := decl.ChildByFieldName("value")
	if value == nil {
		if _, ok := s.vars[e.tree.Text(name)]; !ok {
			s.declare(e.tree.Text(name), undefined{})
		}
		return nil
	}
	v, err := e.eval(value, s)
	if err != nil {
		if !skippable(err) {
			return err
		}
		v = pending{err: err}
	}
	s.declare(e.tree.Text(name), v)
	return nil
}

func isExpression(n *sitter.Node) bool {
	switch n.Type() {
	case "call_expression", "assignment_expression", "parenthesized_expression",
		"unary_expression", "sequence_expression":
		return true
	}
	return false
}

func (e *evaluator) eval(n *sitter.Node, s *scope) (any, error) {
	if n == nil {
		return undefined{}, nil
	}
	switch n.Type() {
	case "string":
		v, ok := e.tree.StringValue(n)
		if !ok {
			return nil, e.errorf(n, ErrUnsupported, "unresolvable string")
		}
		return v, nil
	case "template_string":
		return e.template(n, s)
	case "number":
		return parseNumber(e.tree.Text(n)), nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return null{}, nil
	case "undefined":
		return undefined{}, nil
	case "this":
		return undefined{}, nil
	case "identifier":
		return e.identifier(n, s)
	case "parenthesized_expression", "sequence_expression":
		var last any = undefined{}
		for _, child := range jsparse.Args(n) {
			v, err := e.eval(child, s)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil
	case "object":
		return e.object(n, s)
	case "array":
		return e.array(n, s)
	case "member_expression":
		obj, err := e.eval(n.ChildByFieldName("object"), s)
		if err != nil {
			return nil, err
		}
		return e.property(n, obj, e.tree.Text(n.ChildByFieldName("property")))
	case "subscript_expression":
		obj, err := e.eval(n.ChildByFieldName("object"), s)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(n.ChildByFieldName("index"), s)
		if err != nil {
			return nil, err
		}
		return e.property(n, obj, toString(idx))
	case "binary_expression":
		return e.binary(n, s)
	case "unary_expression":
		return e.unary(n, s)
	case "ternary_expression":
		cond, err := e.eval(n.ChildByFieldName("condition"), s)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return e.eval(n.ChildByFieldName("consequence"), s)
		}
		return e.eval(n.ChildByFieldName("alternative"), s)
	case "assignment_expression":
		return e.assign(n, s)
	case "function", "function_expression", "arrow_function", "generator_function":
		return e.function(n, s), nil
	case "call_expression":
		return e.call(n, s)
	default:
		return nil, e.errorf(n, ErrUnsupported, "cannot evaluate %s", n.Type())
	}
}

func (e *evaluator) identifier(n *sitter.Node, s *scope) (any, error) {
	name := e.tree.Text(n)
	v, ok := s.lookup(name)
	if !ok {
		return nil, e.errorf(n, ErrReference, "%s is not defined", name)
	}
	if p, ok := v.(pending); ok {
		return nil, p.err
	}
	return v, nil
}

func (e *evaluator) template(n *sitter.Node, s *scope) (any, error) {
	src := e.tree.Source()
	var b strings.Builder
	pos := n.StartByte() + 1
	for i := 0; i < int(n.NamedChildCount()); i++ {
		sub := n.NamedChild(i)
		if sub.Type() != "template_substitution" {
			continue
		}
		b.WriteString(jsparse.Unescape(string(src[pos:sub.StartByte()])))
		inner := jsparse.Args(sub)
		if len(inner) > 0 {
			v, err := e.eval(inner[0], s)
			if err != nil {
				return nil, err
			}
			b.WriteString(toString(v))
		}
		pos = sub.EndByte()
	}
	if end := n.EndByte() - 1; end > pos {
		b.WriteString(jsparse.Unescape(string(src[pos:end])))
	}
	return b.String(), nil
}

func (e *evaluator) object(n *sitter.Node, s *scope) (any, error) {
	obj := newObject()
	for _, child := range jsparse.Args(n) {
		switch child.Type() {
		case "pair":
			key, err := e.key(child.ChildByFieldName("key"), s)
			if err != nil {
				return nil, err
			}
			v, err := e.eval(child.ChildByFieldName("value"), s)
			if err != nil {
				return nil, err
			}
			obj.set(key, v)
		case "shorthand_property_identifier":
			v, err := e.identifier(child, s)
			if err != nil {
				return nil, err
			}
			obj.set(e.tree.Text(child), v)
		case "spread_element":
			v, err := e.eval(firstArg(child), s)
			if err != nil {
				return nil, err
			}
			if src, ok := v.(*object); ok {
				for _, k := range src.keys {
					obj.set(k, src.values[k])
				}
			}
		case "method_definition":
			key, err := e.key(child.ChildByFieldName("name"), s)
			if err != nil {
				return nil, err
			}
			obj.set(key, e.function(child, s))
		default:
			return nil, e.errorf(child, ErrUnsupported, "cannot evaluate object member %s", child.Type())
		}
	}
	return obj, nil
}

func (e *evaluator) key(n *sitter.Node, s *scope) (string, error) {
	if n == nil {
		return "", nil
	}
	switch n.Type() {
	case "string":
		if v, ok := e.tree.StringValue(n); ok {
			return v, nil
		}
		return "", e.errorf(n, ErrUnsupported, "unresolvable key")
	case "number":
		return toString(parseNumber(e.tree.Text(n))), nil
	case "computed_property_name":
		v, err := e.eval(firstArg(n), s)
		if err != nil {
			return "", err
		}
		return toString(v), nil
	default:
		return e.tree.Text(n), nil
	}
}

func (e *evaluator) array(n *sitter.Node, s *scope) (any, error) {
	out := []any{}
	for _, el := range jsparse.Args(n) {
		if el.Type() == "spread_element" {
			v, err := e.eval(firstArg(el), s)
			if err != nil {
				return nil, err
			}
			if arr, ok := v.([]any); ok {
				out = append(out, arr...)
			}
			continue
		}
		v, err := e.eval(el, s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *evaluator) property(n *sitter.Node, obj any, key string) (any, error) {
	switch o := obj.(type) {
	case undefined, null:
		if strings.Contains(e.tree.Text(n), "?.") {
			return undefined{}, nil
		}
		return nil, e.errorf(n, ErrType, "cannot read property %q of %s", key, toString(o))
	case *object:
		if v, ok := o.get(key); ok {
			return v, nil
		}
	case []any:
		if key == "length" {
			return float64(len(o)), nil
		}
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(o) {
			return o[i], nil
		}
	case string:
		if key == "length" {
			return float64(len(o)), nil
		}
	}
	return undefined{}, nil
}

func (e *evaluator) binary(n *sitter.Node, s *scope) (any, error) {
	op := n.ChildByFieldName("operator").Type()
	left, err := e.eval(n.ChildByFieldName("left"), s)
	if err != nil {
		return nil, err
	}

	switch op {
	case "||":
		if truthy(left) {
			return left, nil
		}
		return e.eval(n.ChildByFieldName("right"), s)
	case "&&":
		if !truthy(left) {
			return left, nil
		}
		return e.eval(n.ChildByFieldName("right"), s)
	case "??":
		if !isNullish(left) {
			return left, nil
		}
		return e.eval(n.ChildByFieldName("right"), s)
	}

	right, err := e.eval(n.ChildByFieldName("right"), s)
	if err != nil {
		return nil, err
	}
	switch op {
	case "+":
		_, ls := left.(string)
		_, rs := right.(string)
		if ls || rs {
			return toString(left) + toString(right), nil
		}
		return toNumber(left) + toNumber(right), nil
	case "-":
		return toNumber(left) - toNumber(right), nil
	case "*":
		return toNumber(left) * toNumber(right), nil
	case "/":
		return toNumber(left) / toNumber(right), nil
	case "===":
		return strictEqual(left, right), nil
	case "!==":
		return !strictEqual(left, right), nil
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	default:
		return nil, e.errorf(n, ErrUnsupported, "unsupported operator %s", op)
	}
}

func (e *evaluator) unary(n *sitter.Node, s *scope) (any, error) {
	op := n.ChildByFieldName("operator").Type()
	arg := n.ChildByFieldName("argument")
	if op == "typeof" && arg.Type() == "identifier" {
		if _, ok := s.lookup(e.tree.Text(arg)); !ok {
			return "undefined", nil
		}
	}
	v, err := e.eval(arg, s)
	if err != nil {
		return nil, err
	}
	switch op {
	case "!":
		return !truthy(v), nil
	case "-":
		return -toNumber(v), nil
	case "+":
		return toNumber(v), nil
	case "typeof":
		return typeOf(v), nil
	case "void":
		return undefined{}, nil
	default:
		return nil, e.errorf(n, ErrUnsupported, "unsupported operator %s", op)
	}
}

func (e *evaluator) assign(n *sitter.Node, s *scope) (any, error) {
	v, err := e.eval(n.ChildByFieldName("right"), s)
	if err != nil {
		return nil, err
	}
	left := n.ChildByFieldName("left")
	switch left.Type() {
	case "identifier":
		s.assign(e.tree.Text(left), v)
	case "member_expression":
		obj, err := e.eval(left.ChildByFieldName("object"), s)
		if err != nil {
			return nil, err
		}
		if o, ok := obj.(*object); ok {
			o.set(e.tree.Text(left.ChildByFieldName("property")), v)
		}
	case "subscript_expression":
		obj, err := e.eval(left.ChildByFieldName("object"), s)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(left.ChildByFieldName("index"), s)
		if err != nil {
			return nil, err
		}
		if o, ok := obj.(*object); ok {
			o.set(toString(idx), v)
		}
	}
	return v, nil
}

func (e *evaluator) function(n *sitter.Node, s *scope) *function {
	fn := &function{node: n, scope: s}
	if p := n.ChildByFieldName("parameter"); p != nil {
		fn.params = []string{e.tree.Text(p)}
		return fn
	}
	for _, p := range jsparse.Args(n.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "identifier":
			fn.params = append(fn.params, e.tree.Text(p))
		case "assignment_pattern":
			fn.params = append(fn.params, e.tree.Text(p.ChildByFieldName("left")))
		default:
			fn.params = append(fn.params, "")
		}
	}
	return fn
}

func (e *evaluator) call(n *sitter.Node, s *scope) (any, error) {
	callee := n.ChildByFieldName("function")
	argNodes := jsparse.Args(n.ChildByFieldName("arguments"))

	if callee.Type() == "member_expression" {
		obj, err := e.eval(callee.ChildByFieldName("object"), s)
		if err != nil {
			return nil, err
		}
		prop := e.tree.Text(callee.ChildByFieldName("property"))
		switch o := obj.(type) {
		case undefined, null:
			return e.property(callee, o, prop)
		case *loader:
			if prop == "config" && o.name == "require" {
				return e.configCall(n, argNodes, s)
			}
			return undefined{}, nil
		case *function:
			if prop == "call" && len(argNodes) > 0 {
				return e.callFunction(n, o, argNodes[1:], s)
			}
			if prop == "call" {
				return e.callFunction(n, o, nil, s)
			}
		}
		return nil, e.errorf(n, ErrUnsupported, "cannot call %s", e.tree.Text(callee))
	}

	fn, err := e.eval(callee, s)
	if err != nil {
		return nil, err
	}
	switch f := fn.(type) {
	case *loader:
		// require([...]) and define(...) do not change the configuration.
		return undefined{}, nil
	case *function:
		return e.callFunction(n, f, argNodes, s)
	default:
		return nil, e.errorf(n, ErrType, "%s is not a function", e.tree.Text(callee))
	}
}

func (e *evaluator) callFunction(n *sitter.Node, fn *function, argNodes []*sitter.Node, s *scope) (any, error) {
	if e.depth >= maxCallDepth {
		return nil, e.errorf(n, ErrUnsupported, "call depth exceeded")
	}
	args := make([]any, 0, len(argNodes))
	for _, a := range argNodes {
		v, err := e.eval(a, s)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	local := newScope(fn.scope)
	for i, name := range fn.params {
		if name == "" {
			continue
		}
		if i < len(args) {
			local.declare(name, args[i])
		} else {
			local.declare(name, undefined{})
		}
	}

	e.depth++
	defer func() { e.depth-- }()

	body := fn.node.ChildByFieldName("body")
	if body == nil {
		return undefined{}, nil
	}
	if body.Type() != "statement_block" {
		return e.eval(body, local)
	}
	c, err := e.execAll(jsparse.Args(body), local)
	if err != nil {
		return nil, err
	}
	if c.returned {
		return c.value, nil
	}
	return undefined{}, nil
}

func (e *evaluator) configCall(n *sitter.Node, argNodes []*sitter.Node, s *scope) (any, error) {
	if len(argNodes) == 0 {
		return undefined{}, nil
	}
	if e.tolerant && jsparse.FirstError(n) != nil {
		return nil, fatal(e.errorf(n, ErrSyntax, "malformed require.config call"))
	}
	arg := argNodes[0]
	v, err := e.eval(arg, s)
	if err != nil {
		return nil, fatal(err)
	}
	obj, ok := v.(*object)
	if !ok {
		return nil, fatal(e.errorf(arg, ErrType, "require.config expects an object, got %s", typeOf(v)))
	}
	e.calls++
	e.cfg.apply(obj)
	e.logger.Trace().Int("line", int(n.StartPoint().Row)+1).Msg("merged require.config call")
	return undefined{}, nil
}

func firstArg(n *sitter.Node) *sitter.Node {
	args := jsparse.Args(n)
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func parseNumber(text string) float64 {
	clean := strings.ReplaceAll(text, "_", "")
	if i, err := strconv.ParseInt(clean, 0, 64); err == nil {
		return float64(i)
	}
	if f, err := strconv.ParseFloat(clean, 64); err == nil {
		return f
	}
	return 0
}
