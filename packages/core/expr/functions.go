package expr

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/ddtspec/packages/builtin"
)

func registerCore(r *builtin.Registry) {
	r.Register("query", fnQuery)
	r.Register("assert", fnAssert)
	r.Register("equal", fnEqual)
	r.Register("contains", fnContains)
	r.Register("matches", fnMatches)
	r.Register("len", fnLen)
	r.Register("keys", fnKeys)
	r.Register("json", fnJSON)
	r.Register("parseJson", fnParseJSON)
	r.Register("string", func(args []any) (any, error) {
		return Stringify(arg(args, 0)), nil
	})
	r.Register("number", func(args []any) (any, error) {
		f, ok := builtin.ToNumber(arg(args, 0))
		if !ok {
			return nil, fmt.Errorf("number(): %s is not numeric", describe(arg(args, 0)))
		}
		return f, nil
	})
	r.Register("env", func(args []any) (any, error) {
		v, ok := os.LookupEnv(builtin.ToString(arg(args, 0)))
		if !ok {
			return nil, nil
		}
		return v, nil
	})
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func fnQuery(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("query() expects (data, path), got %d arguments", len(args))
	}
	path, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("query(): path must be a string")
	}
	return Query(args[0], path)
}

func fnAssert(args []any) (any, error) {
	if Truthy(arg(args, 0)) {
		return true, nil
	}
	msg := "assertion failed"
	if len(args) > 1 {
		msg = builtin.ToString(args[1])
	}
	return nil, &Failure{Message: msg}
}

func fnEqual(args []any) (any, error) {
	actual, expected := arg(args, 0), arg(args, 1)
	if DeepEqual(actual, expected) {
		return true, nil
	}
	msg := fmt.Sprintf("expected %s to deeply equal %s", Format(actual), Format(expected))
	if len(args) > 2 {
		msg = builtin.ToString(args[2]) + ": " + msg
	}
	return nil, &Failure{Message: msg}
}

func fnContains(args []any) (any, error) {
	haystack, needle := arg(args, 0), arg(args, 1)
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, builtin.ToString(needle)), nil
	case []any:
		for _, item := range h {
			if LooseEqual(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := h[builtin.ToString(needle)]
		return ok, nil
	case nil:
		return false, nil
	}
	return nil, fmt.Errorf("contains(): cannot search %s", describe(haystack))
}

func fnMatches(args []any) (any, error) {
	re, err := regexp.Compile(builtin.ToString(arg(args, 1)))
	if err != nil {
		return nil, fmt.Errorf("matches(): %w", err)
	}
	return re.MatchString(Stringify(arg(args, 0))), nil
}

func fnLen(args []any) (any, error) {
	switch v := arg(args, 0).(type) {
	case nil:
		return float64(0), nil
	case string:
		return float64(len([]rune(v))), nil
	case map[string]any:
		return float64(len(v)), nil
	}
	rv := reflect.ValueOf(arg(args, 0))
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return float64(rv.Len()), nil
	}
	return nil, fmt.Errorf("len(): %s has no length", describe(arg(args, 0)))
}

func fnKeys(args []any) (any, error) {
	m, ok := arg(args, 0).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("keys(): %s is not an object", describe(arg(args, 0)))
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, k := range names {
		out[i] = k
	}
	return out, nil
}

func fnJSON(args []any) (any, error) {
	data, err := json.Marshal(arg(args, 0))
	if err != nil {
		return nil, fmt.Errorf("json(): %w", err)
	}
	return string(data), nil
}

func fnParseJSON(args []any) (any, error) {
	var out any
	if err := json.Unmarshal([]byte(builtin.ToString(arg(args, 0))), &out); err != nil {
		return nil, fmt.Errorf("parseJson(): %w", err)
	}
	return out, nil
}

// Format renders a value for messages: JSON where possible.
func Format(v any) string {
	if v == nil {
		return "undefined"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
