package requireconfig

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"
)

// Values produced by the evaluator are one of:
//
//	*object, []any, string, float64, bool, null, undefined, *function, *loader
type (
	null      struct{}
	undefined struct{}

	// function is an opaque function value. Calling one runs its body, which
	// is enough for IIFEs that return a config object.
	function struct {
		node   *sitter.Node
		scope  *scope
		params []string
	}

	// loader stands in for the global require/requirejs/define functions.
	loader struct {
		name string
	}

	// pending is a binding whose initializer failed. The error surfaces
	// only when the binding is used.
	pending struct {
		err error
	}
)

// object keeps keys in insertion order, as JavaScript does for string keys.
type object struct {
	keys   []string
	values map[string]any
}

func newObject() *object {
	return &object{values: make(map[string]any)}
}

func (o *object) get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *object) set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Error kinds wrapped by EvalError.
var (
	ErrReference   = errors.New("reference error")
	ErrType        = errors.New("type error")
	ErrUnsupported = errors.New("unsupported expression")
)

// EvalError describes a failure to evaluate part of a config file.
type EvalError struct {
	Line int    // 1-based
	Expr string // source text of the failing expression
	Msg  string
	Kind error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Msg, e.Expr)
}

func (e *EvalError) Unwrap() error {
	return e.Kind
}

func typeOf(v any) string {
	switch v.(type) {
	case undefined:
		return "undefined"
	case null, *object, []any:
		return "object"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case *function, *loader:
		return "function"
	default:
		return "undefined"
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case undefined, null:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	default:
		return true
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case undefined:
		return "undefined"
	case null:
		return "null"
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e21 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		s := ""
		for i, el := range x {
			if i > 0 {
				s += ","
			}
			switch el.(type) {
			case undefined, null:
			default:
				s += toString(el)
			}
		}
		return s
	case *object:
		return "[object Object]"
	default:
		return "function"
	}
}

func toNumber(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case null:
		return 0
	case string:
		if x == "" {
			return 0
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func strictEqual(a, b any) bool {
	switch x := a.(type) {
	case *object:
		y, ok := b.(*object)
		return ok && x == y
	case []any:
		return false
	case *function:
		y, ok := b.(*function)
		return ok && x == y
	case *loader:
		y, ok := b.(*loader)
		return ok && x == y
	default:
		return a == b
	}
}

func looseEqual(a, b any) bool {
	if isNullish(a) || isNullish(b) {
		return isNullish(a) && isNullish(b)
	}
	if typeOf(a) == typeOf(b) {
		return strictEqual(a, b)
	}
	return toNumber(a) == toNumber(b)
}

func isNullish(v any) bool {
	switch v.(type) {
	case undefined, null:
		return true
	}
	return false
}

// toJSON converts an evaluated value to plain Go values for Config fields.
// Functions become nil.
func toJSON(v any) any {
	switch x := v.(type) {
	case *object:
		m := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			if j := toJSON(x.values[k]); j != nil {
				m[k] = j
			}
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = toJSON(el)
		}
		return out
	case string, float64, bool:
		return x
	default:
		return nil
	}
}
