package expr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/ddtspec/packages/builtin"
)

type templateSegment struct {
	text   string
	isExpr bool
}

// Resolve interpolates a template. A template made of exactly one ${...}
// segment yields the typed value; anything else yields a string.
func (e *Evaluator) Resolve(template string, scope Scope) (any, error) {
	if !strings.Contains(template, "${") && !strings.Contains(template, "#(") {
		return template, nil
	}

	rewritten, err := RewriteQueries(template)
	if err != nil {
		return nil, &Error{Expr: template, Msg: err.Error(), Err: err}
	}
	segments, err := splitTemplate(rewritten)
	if err != nil {
		return nil, &Error{Expr: template, Msg: err.Error(), Err: err}
	}

	if len(segments) == 1 && segments[0].isExpr {
		return e.Eval(segments[0].text, scope)
	}

	var sb strings.Builder
	for _, seg := range segments {
		if !seg.isExpr {
			sb.WriteString(seg.text)
			continue
		}
		v, err := e.Eval(seg.text, scope)
		if err != nil {
			return nil, err
		}
		sb.WriteString(Stringify(v))
	}
	return sb.String(), nil
}

// Exec runs a script. Text containing ${...} or #(...) is treated as a
// template, anything else as a bare expression.
func (e *Evaluator) Exec(src string, scope Scope) (any, error) {
	if strings.Contains(src, "${") || strings.Contains(src, "#(") {
		return e.Resolve(src, scope)
	}
	return e.Eval(src, scope)
}

// ResolveString is Resolve with the result rendered as text.
func (e *Evaluator) ResolveString(template string, scope Scope) (string, error) {
	v, err := e.Resolve(template, scope)
	if err != nil {
		return "", err
	}
	return Stringify(v), nil
}

// ResolveTree walks maps and slices and resolves every string leaf. The input
// is left untouched; a fresh tree is returned.
func (e *Evaluator) ResolveTree(v any, scope Scope) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Resolve(val, scope)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := e.ResolveTree(item, scope)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := e.Resolve(item, scope)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := e.ResolveTree(item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// RewriteQueries turns the #(args) shorthand into ${query(args)}.
func RewriteQueries(s string) (string, error) {
	if !strings.Contains(s, "#(") {
		return s, nil
	}

	var sb strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '#' && i+1 < len(s) && s[i+1] == '(' {
			end, err := matchClosing(s, i+1, '(', ')')
			if err != nil {
				return "", fmt.Errorf("unterminated #( at position %d", i)
			}
			sb.WriteString("${query(")
			sb.WriteString(s[i+2 : end])
			sb.WriteString(")}")
			i = end + 1
			continue
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String(), nil
}

func splitTemplate(s string) ([]templateSegment, error) {
	var segments []templateSegment
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			segments = append(segments, templateSegment{text: s[i:]})
			break
		}
		start += i
		if start > i {
			segments = append(segments, templateSegment{text: s[i:start]})
		}
		end, err := matchClosing(s, start+1, '{', '}')
		if err != nil {
			return nil, fmt.Errorf("unterminated ${ at position %d", start)
		}
		inner := strings.TrimSpace(s[start+2 : end])
		if inner == "" {
			return nil, fmt.Errorf("empty expression at position %d", start)
		}
		segments = append(segments, templateSegment{text: inner, isExpr: true})
		i = end + 1
	}
	return segments, nil
}

// matchClosing returns the index of the delimiter closing the one at open,
// skipping nested pairs and quoted strings.
func matchClosing(s string, open int, opener, closer byte) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("no closing %q", closer)
}

// Stringify renders a value for interpolation. A list of scalars is joined
// with commas, so a single query match interpolates as the bare value; other
// maps and slices become JSON.
func Stringify(v any) string {
	if list, ok := v.([]any); ok && allScalars(list) {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = builtin.ToString(item)
		}
		return strings.Join(parts, ",")
	}
	switch val := v.(type) {
	case map[string]any, []any, map[string]string, []string:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return builtin.ToString(v)
	}
}

func allScalars(list []any) bool {
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}
