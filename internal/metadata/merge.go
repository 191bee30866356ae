package metadata

import "slices"

// Policy carries repository-wide merge rules.
type Policy struct {
	// Combine lists sequence paths ("users/admins") whose values are unioned
	// across layers instead of overridden.
	Combine []string
}

// IsCombine reports whether the sequence at path is unioned across layers.
func (p Policy) IsCombine(path []string) bool {
	joined := JoinPath(path)
	return slices.Contains(p.Combine, joined)
}

// Overlay merges upper into lower and returns the result. Neither argument
// is modified.
func Overlay(lower, upper Map, p Policy) Map {
	out := lower.Clone()
	overlayInto(out, upper, p, nil)
	return out
}

// Layer merges the given layers from lowest to highest priority.
func Layer(p Policy, layers ...Map) Map {
	out := Map{}
	for _, l := range layers {
		overlayInto(out, l, p, nil)
	}
	return out
}

func overlayInto(dst, src Map, p Policy, path []string) {
	for _, k := range src.Keys() {
		sv := src[k]
		here := append(slices.Clip(path), k)
		dv, exists := dst[k]
		if !exists {
			dst[k] = cloneValue(sv)
			continue
		}
		switch s := sv.(type) {
		case Map:
			if d, ok := dv.(Map); ok {
				overlayInto(d, s, p, here)
				continue
			}
		case Set:
			if d, ok := dv.(Set); ok {
				dst[k] = d.Union(s)
				continue
			}
		case []any:
			if d, ok := dv.([]any); ok && p.IsCombine(here) {
				dst[k] = UnionSequence(d, s)
				continue
			}
		}
		dst[k] = cloneValue(sv)
	}
}

// UnionSequence appends the elements of b that are not already in a.
func UnionSequence(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	for _, v := range a {
		out = append(out, cloneValue(v))
	}
	for _, v := range b {
		if !containsValue(out, v) {
			out = append(out, cloneValue(v))
		}
	}
	return out
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if ValueEqual(item, v) {
			return true
		}
	}
	return false
}
