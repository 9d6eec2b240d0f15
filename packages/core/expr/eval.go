package expr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ddtspec/packages/builtin"
)

// Evaluator interprets the restricted expression language. It is safe for
// concurrent use; parsed expressions are cached by source text.
type Evaluator struct {
	funcs  *builtin.Registry
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]Node
}

type Option func(*Evaluator)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFunctions replaces the builtin registry. Core functions such as
// query() and assert() are registered on top of it.
func WithFunctions(funcs *builtin.Registry) Option {
	return func(e *Evaluator) {
		if funcs != nil {
			e.funcs = funcs
		}
	}
}

func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		funcs:  builtin.NewRegistry(),
		logger: zap.NewNop(),
		cache:  make(map[string]Node),
	}
	for _, opt := range opts {
		opt(e)
	}
	registerCore(e.funcs)
	return e
}

// Functions exposes the registry so callers can add their own helpers.
func (e *Evaluator) Functions() *builtin.Registry {
	return e.funcs
}

func (e *Evaluator) parse(src string) (Node, error) {
	e.mu.RLock()
	node, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return node, nil
	}

	node, err := Parse(src)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[src] = node
	e.mu.Unlock()
	return node, nil
}

// Eval evaluates a bare expression (no ${} delimiters).
func (e *Evaluator) Eval(src string, scope Scope) (any, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	node, err := e.parse(src)
	if err != nil {
		return nil, &Error{Expr: src, Msg: err.Error(), Err: err}
	}
	if scope == nil {
		scope = Vars{}
	}
	v, err := e.eval(node, src, scope)
	if err != nil {
		var exprErr *Error
		if errors.As(err, &exprErr) {
			return nil, err
		}
		return nil, &Error{Expr: src, Pos: node.Pos(), Msg: err.Error(), Err: err}
	}
	return v, nil
}

func (e *Evaluator) eval(node Node, src string, scope Scope) (any, error) {
	switch n := node.(type) {
	case *Literal:
		return n.Value, nil

	case *Ident:
		if v, ok := scope.Lookup(n.Name); ok {
			return v, nil
		}
		e.logger.Warn("undefined variable in expression",
			zap.String("name", n.Name),
			zap.String("expr", src))
		return nil, nil

	case *Member:
		obj, err := e.eval(n.Object, src, scope)
		if err != nil {
			return nil, err
		}
		return property(obj, n.Property)

	case *Index:
		obj, err := e.eval(n.Object, src, scope)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(n.Index, src, scope)
		if err != nil {
			return nil, err
		}
		return index(obj, idx)

	case *Call:
		fn, ok := e.funcs.Lookup(n.Name)
		if !ok {
			return nil, fmt.Errorf("unknown function %s()", n.Name)
		}
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := e.eval(a, src, scope)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fn(args)

	case *Unary:
		v, err := e.eval(n.Operand, src, scope)
		if err != nil {
			return nil, err
		}
		if n.Op == "!" {
			return !Truthy(v), nil
		}
		f, ok := builtin.ToNumber(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %s", describe(v))
		}
		return -f, nil

	case *Binary:
		return e.evalBinary(n, src, scope)

	case *ArrayLit:
		out := make([]any, len(n.Elems))
		for i, el := range n.Elems {
			v, err := e.eval(el, src, scope)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *ObjectLit:
		out := make(map[string]any, len(n.Keys))
		for i, k := range n.Keys {
			v, err := e.eval(n.Values[i], src, scope)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported node %T", node)
}

func (e *Evaluator) evalBinary(n *Binary, src string, scope Scope) (any, error) {
	left, err := e.eval(n.Left, src, scope)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "&&":
		if !Truthy(left) {
			return left, nil
		}
		return e.eval(n.Right, src, scope)
	case "||":
		if Truthy(left) {
			return left, nil
		}
		return e.eval(n.Right, src, scope)
	}

	right, err := e.eval(n.Right, src, scope)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return LooseEqual(left, right), nil
	case "!=":
		return !LooseEqual(left, right), nil
	case "===":
		return StrictEqual(left, right), nil
	case "!==":
		return !StrictEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(n.Op, left, right)
	case "+":
		_, ls := left.(string)
		_, rs := right.(string)
		if ls || rs {
			return builtin.ToString(left) + builtin.ToString(right), nil
		}
		return arithmetic(n.Op, left, right)
	default:
		return arithmetic(n.Op, left, right)
	}
}

func property(obj any, name string) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("cannot read property %q of undefined", name)
	}
	switch v := obj.(type) {
	case map[string]any:
		if val, ok := v[name]; ok {
			return val, nil
		}
		if name == "length" {
			return float64(len(v)), nil
		}
		return nil, nil
	case map[string]string:
		if val, ok := v[name]; ok {
			return val, nil
		}
		return nil, nil
	case string:
		if name == "length" {
			return float64(len([]rune(v))), nil
		}
		return nil, nil
	}

	rv := reflect.ValueOf(obj)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && name == "length" {
		return float64(rv.Len()), nil
	}
	return nil, nil
}

func index(obj, idx any) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("cannot read index %s of undefined", describe(idx))
	}
	if key, ok := idx.(string); ok {
		return property(obj, key)
	}

	f, ok := builtin.ToNumber(idx)
	if !ok {
		return nil, fmt.Errorf("invalid index %s", describe(idx))
	}
	i := int(f)

	switch v := obj.(type) {
	case []any:
		if i < 0 || i >= len(v) {
			return nil, nil
		}
		return v[i], nil
	case string:
		r := []rune(v)
		if i < 0 || i >= len(r) {
			return nil, nil
		}
		return string(r[i]), nil
	case map[string]any:
		return v[builtin.ToString(idx)], nil
	}

	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if i < 0 || i >= rv.Len() {
			return nil, nil
		}
		return rv.Index(i).Interface(), nil
	}
	return nil, nil
}

func compare(op string, left, right any) (any, error) {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		default:
			return ls >= rs, nil
		}
	}

	lf, lok := builtin.ToNumber(left)
	rf, rok := builtin.ToNumber(right)
	if !lok || !rok {
		return nil, fmt.Errorf("cannot compare %s %s %s", describe(left), op, describe(right))
	}
	switch op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	default:
		return lf >= rf, nil
	}
}

func arithmetic(op string, left, right any) (any, error) {
	lf, lok := builtin.ToNumber(left)
	rf, rok := builtin.ToNumber(right)
	if !lok || !rok {
		return nil, fmt.Errorf("cannot apply %s to %s and %s", op, describe(left), describe(right))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		return lf / rf, nil
	case "%":
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

// Truthy follows the usual scripting rules: nil, false, 0, NaN and "" are
// falsy, everything else is truthy.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	}
	if f, ok := builtin.ToNumber(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// LooseEqual compares numbers numerically (numeric strings included) and
// everything else structurally.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := builtin.ToNumber(a)
	bf, bok := builtin.ToNumber(b)
	_, as := a.(string)
	_, bs := b.(string)
	if aok && bok && !(as && bs) {
		return af == bf
	}
	return DeepEqual(a, b)
}

// StrictEqual is LooseEqual without string to number coercion.
func StrictEqual(a, b any) bool {
	_, as := a.(string)
	_, bs := b.(string)
	if as != bs {
		return false
	}
	return DeepEqual(a, b)
}

// DeepEqual compares two decoded values after normalising every numeric kind
// to float64, so that YAML integers equal JSON numbers.
func DeepEqual(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// Normalize converts a decoded document value into the canonical shapes
// used by the evaluator: float64 numbers, []any and map[string]any.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	}
	if f, ok := builtin.ToNumber(v); ok {
		return f
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case string:
		return fmt.Sprintf("%q", v)
	}
	return Format(v)
}
