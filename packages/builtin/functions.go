package builtin

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Func is a callable exposed to expressions. Arguments arrive already
// evaluated.
type Func func(args []any) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["now"] = funcNow
	r.funcs["timestamp"] = funcTimestamp
	r.funcs["timestampMs"] = funcTimestampMs
	r.funcs["uuid"] = funcUUID
	r.funcs["random"] = funcRandom
	r.funcs["randomString"] = funcRandomString
	r.funcs["randomEmail"] = funcRandomEmail
	r.funcs["randomAlphanumeric"] = funcRandomAlphanumeric
	r.funcs["base64"] = stringFunc(func(s string) (any, error) {
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	})
	r.funcs["base64Decode"] = stringFunc(funcBase64Decode)
	r.funcs["md5"] = stringFunc(func(s string) (any, error) {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:]), nil
	})
	r.funcs["sha256"] = stringFunc(func(s string) (any, error) {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:]), nil
	})
	r.funcs["urlEncode"] = stringFunc(func(s string) (any, error) {
		return url.QueryEscape(s), nil
	})
	r.funcs["urlDecode"] = stringFunc(funcURLDecode)
	r.funcs["date"] = funcDate
	r.funcs["upper"] = stringFunc(func(s string) (any, error) { return strings.ToUpper(s), nil })
	r.funcs["lower"] = stringFunc(func(s string) (any, error) { return strings.ToLower(s), nil })
	r.funcs["trim"] = stringFunc(func(s string) (any, error) { return strings.TrimSpace(s), nil })
}

// Register adds or replaces a function.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes a registered function by name.
func (r *Registry) Call(name string, args []any) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown function %s()", name)
	}
	return fn(args)
}

func stringFunc(fn func(string) (any, error)) Func {
	return func(args []any) (any, error) {
		if len(args) < 1 {
			return "", nil
		}
		return fn(ToString(args[0]))
	}
}

func funcNow(_ []any) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func funcTimestamp(_ []any) (any, error) {
	return float64(time.Now().Unix()), nil
}

func funcTimestampMs(_ []any) (any, error) {
	return float64(time.Now().UnixMilli()), nil
}

func funcUUID(_ []any) (any, error) {
	return uuid.New().String(), nil
}

func funcRandom(args []any) (any, error) {
	lo, hi := 0, 100
	if len(args) >= 2 {
		var err error
		if lo, err = intArg("random", "min", args[0]); err != nil {
			return nil, err
		}
		if hi, err = intArg("random", "max", args[1]); err != nil {
			return nil, err
		}
	}
	if hi < lo {
		return nil, fmt.Errorf("random(): max %d is less than min %d", hi, lo)
	}
	return float64(rand.Intn(hi-lo+1) + lo), nil
}

func funcRandomString(args []any) (any, error) {
	length, err := lengthArg("randomString", args, 16)
	if err != nil {
		return nil, err
	}
	return randomString(length, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"), nil
}

func funcRandomAlphanumeric(args []any) (any, error) {
	length, err := lengthArg("randomAlphanumeric", args, 8)
	if err != nil {
		return nil, err
	}
	return randomString(length, "abcdefghijklmnopqrstuvwxyz0123456789"), nil
}

func funcRandomEmail(_ []any) (any, error) {
	user := randomString(8, "abcdefghijklmnopqrstuvwxyz")
	domain := randomString(6, "abcdefghijklmnopqrstuvwxyz")
	return fmt.Sprintf("%s@%s.com", user, domain), nil
}

func funcBase64Decode(s string) (any, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64Decode(): %w", err)
	}
	return string(decoded), nil
}

func funcURLDecode(s string) (any, error) {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s, nil
	}
	return decoded, nil
}

func funcDate(args []any) (any, error) {
	layout := "2006-01-02"
	if len(args) >= 1 {
		layout = ToString(args[0])
	}
	return time.Now().UTC().Format(layout), nil
}

func lengthArg(fn string, args []any, def int) (int, error) {
	if len(args) < 1 {
		return def, nil
	}
	n, err := intArg(fn, "length", args[0])
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s(): length must not be negative", fn)
	}
	return n, nil
}

func intArg(fn, name string, v any) (int, error) {
	f, ok := ToNumber(v)
	if !ok || math.IsNaN(f) {
		return 0, fmt.Errorf("%s(): %s argument %v is not a number", fn, name, v)
	}
	return int(f), nil
}

func randomString(length int, charset string) string {
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// ToString renders a value the way interpolation does: nil is empty and
// integral floats lose their fraction.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		if f, ok := ToNumber(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return fmt.Sprintf("%v", v)
	}
}

// ToNumber converts numeric kinds and numeric strings to float64.
func ToNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
