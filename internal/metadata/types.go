package metadata

import (
	"fmt"
	"sort"
)

// Map is a metadata tree keyed by strings.
type Map map[string]any

// Set is an unordered collection of scalar values (string, bool, int64,
// float64).
type Set map[any]struct{}

// NewSet builds a Set from scalar values. Integer and float inputs are
// normalized so that NewSet(1) and NewSet(int64(1)) are equal.
func NewSet(values ...any) Set {
	s := make(Set, len(values))
	for _, v := range values {
		n, err := Normalize(v)
		if err != nil || !isScalar(n) {
			panic(fmt.Sprintf("metadata: set element %v (%T) is not a scalar", v, v))
		}
		s[n] = struct{}{}
	}
	return s
}

// Add inserts a scalar value.
func (s Set) Add(v any) {
	s[v] = struct{}{}
}

// Has reports whether the value is an element.
func (s Set) Has(v any) bool {
	n, err := Normalize(v)
	if err != nil {
		return false
	}
	_, ok := s[n]
	return ok
}

// Union returns a new set containing the elements of both sets.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for v := range s {
		out[v] = struct{}{}
	}
	for v := range other {
		out[v] = struct{}{}
	}
	return out
}

// Values returns the elements in a stable order: booleans, then numbers,
// then strings, each sorted ascending.
func (s Set) Values() []any {
	out := make([]any, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return lessScalar(out[i], out[j]) })
	return out
}

// Strings returns the string elements sorted ascending.
func (s Set) Strings() []string {
	var out []string
	for _, v := range s.Values() {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func scalarRank(v any) int {
	switch v.(type) {
	case bool:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

func lessScalar(a, b any) bool {
	ra, rb := scalarRank(a), scalarRank(b)
	if ra != rb {
		return ra < rb
	}
	switch av := a.(type) {
	case bool:
		return !av && b.(bool)
	case int64:
		return float64(av) < number(b)
	case float64:
		return av < number(b)
	case string:
		return av < b.(string)
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func number(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int64, float64:
		return true
	}
	return false
}

// Keys returns the map's keys sorted ascending.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the map.
func (m Map) Clone() Map {
	if m == nil {
		return Map{}
	}
	return cloneValue(m).(Map)
}

// CloneValue deep-copies a normalized value.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Map:
		out := make(Map, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Set:
		out := make(Set, len(val))
		for item := range val {
			out[item] = struct{}{}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Plain converts a normalized value into one built from maps, slices and
// scalars only, turning Sets into lists in Values order. The result is safe
// to hand to JSON or YAML encoders.
func Plain(v any) any {
	switch val := v.(type) {
	case Map:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Plain(item)
		}
		return out
	case Set:
		return val.Values()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}
