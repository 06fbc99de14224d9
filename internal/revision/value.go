package revision

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Plain is a record reduced to a comparable tree of primitive and nested values.
//
// Values inside a normalized Plain are one of: nil, bool, string, int64, float64,
// []any, or map[string]any.
type Plain map[string]any

// Normalize returns a deep copy of p with every value converted into the closed value set.
func Normalize(p Plain) (Plain, error) {
	if p == nil {
		return nil, nil
	}
	out, err := normalizeValue(map[string]any(p))
	if err != nil {
		return nil, err
	}
	return Plain(out.(map[string]any)), nil
}

// Equal reports whether two plain representations hold the same values.
// Representations that cannot be normalized are never equal.
func Equal(a, b Plain) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == 0 && len(b) == 0
	}
	an, err := Normalize(a)
	if err != nil {
		return false
	}
	bn, err := Normalize(b)
	if err != nil {
		return false
	}
	return valuesEqual(map[string]any(an), map[string]any(bn))
}

// normalizeValue converts one value into the closed value set.
func normalizeValue(v any) (any, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return tv, nil
	case int:
		return int64(tv), nil
	case int8:
		return int64(tv), nil
	case int16:
		return int64(tv), nil
	case int32:
		return int64(tv), nil
	case int64:
		return tv, nil
	case uint8:
		return int64(tv), nil
	case uint16:
		return int64(tv), nil
	case uint32:
		return int64(tv), nil
	case uint:
		if uint64(tv) > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value %d overflows int64", tv)
		}
		return int64(tv), nil
	case uint64:
		if tv > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value %d overflows int64", tv)
		}
		return int64(tv), nil
	case float32:
		return normalizeFloat(float64(tv))
	case float64:
		return normalizeFloat(tv)
	case json.Number:
		return normalizeNumber(tv)
	case Plain:
		return normalizeValue(map[string]any(tv))
	case map[string]any:
		out := make(map[string]any, len(tv))
		for key, item := range tv {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = n
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(tv))
		for key, item := range tv {
			out[key] = item
		}
		return out, nil
	case map[string]float64:
		out := make(map[string]any, len(tv))
		for key, item := range tv {
			n, err := normalizeFloat(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = item
		}
		return out, nil
	case []int64:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = item
		}
		return out, nil
	case []int:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = int64(item)
		}
		return out, nil
	case []float64:
		out := make([]any, len(tv))
		for i, item := range tv {
			n, err := normalizeFloat(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case [][]string:
		out := make([]any, len(tv))
		for i, item := range tv {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported plain value type %T", v)
	}
}

// normalizeFloat rejects values JSON cannot carry.
func normalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	if f == 0 {
		// Negative zero would otherwise encode as "-0" and change the base digest.
		return float64(0), nil
	}
	return f, nil
}

// normalizeNumber keeps integral JSON numbers as int64.
func normalizeNumber(n json.Number) (any, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", n)
	}
	return normalizeFloat(f)
}

// intEqualsFloat compares exactly: f must be integral and within int64 range.
func intEqualsFloat(i int64, f float64) bool {
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return false
	}
	return int64(f) == i
}

// valuesEqual compares two normalized values. Numbers compare numerically.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case float64:
			return intEqualsFloat(av, bv)
		}
		return false
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case int64:
			return intEqualsFloat(bv, av)
		}
		return false
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for key, item := range av {
			other, ok := bv[key]
			if !ok || !valuesEqual(item, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// cloneValue deep-copies one normalized value.
func cloneValue(v any) any {
	switch tv := v.(type) {
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for key, item := range tv {
			out[key] = cloneValue(item)
		}
		return out
	default:
		return tv
	}
}

// sortedKeys returns map keys in byte order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Path addresses one value inside a plain representation.
// Elements are string map keys or int sequence indexes.
type Path []any

// String renders a path as a slash-separated pointer.
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, elem := range p {
		b.WriteByte('/')
		switch e := elem.(type) {
		case string:
			b.WriteString(strings.ReplaceAll(strings.ReplaceAll(e, "~", "~0"), "/", "~1"))
		case int:
			b.WriteString(strconv.Itoa(e))
		default:
			fmt.Fprintf(&b, "%v", e)
		}
	}
	return b.String()
}

// child returns a copy of p extended by elem.
func (p Path) child(elem any) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, elem)
}

// UnmarshalJSON decodes a path of string keys and integer indexes.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("path must be an array: %w", err)
	}
	out := make(Path, 0, len(raw))
	for i, item := range raw {
		var key string
		if err := json.Unmarshal(item, &key); err == nil {
			out = append(out, key)
			continue
		}
		var idx int
		if err := json.Unmarshal(item, &idx); err != nil || idx < 0 {
			return fmt.Errorf("path[%d] must be a string key or non-negative index", i)
		}
		out = append(out, idx)
	}
	*p = out
	return nil
}
