package metadata

import (
	"fmt"
	"strings"
)

// MissingKeyError reports a lookup of a path that does not exist.
type MissingKeyError struct {
	Path []string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("metadata key %q not found", JoinPath(e.Path))
}

// TypeError reports a value of an unexpected type at a path.
type TypeError struct {
	Path []string
	Want string
	Got  any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("metadata key %q is %s, not %s", JoinPath(e.Path), describe(e.Got), e.Want)
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a bool"
	case int64, float64:
		return "a number"
	case []any:
		return "a sequence"
	case Set:
		return "a set"
	case Map:
		return "a map"
	}
	return fmt.Sprintf("%T", v)
}

// JoinPath renders a path in the "a/b/c" form used in errors and policies.
func JoinPath(path []string) string {
	return strings.Join(path, "/")
}

// SplitPath parses the "a/b/c" form. Empty segments are dropped.
func SplitPath(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
