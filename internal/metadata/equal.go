package metadata

import (
	"slices"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var equalOpts = cmp.Options{cmpopts.EquateEmpty()}

// Equal reports whether two metadata trees hold the same values.
func Equal(a, b Map) bool {
	return cmp.Equal(a, b, equalOpts)
}

// ValueEqual compares two normalized values.
func ValueEqual(a, b any) bool {
	return cmp.Equal(a, b, equalOpts)
}

// Diff renders a human readable difference, for debug logging.
func Diff(a, b Map) string {
	return cmp.Diff(a, b, equalOpts)
}

// ChangedPaths lists the leaf paths whose values differ between a and b,
// sorted ascending.
func ChangedPaths(a, b Map) []string {
	var out []string
	changedPaths(a, b, nil, &out)
	sort.Strings(out)
	return out
}

func changedPaths(a, b Map, path []string, out *[]string) {
	keys := map[string]struct{}{}
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	for k := range keys {
		here := append(slices.Clip(path), k)
		av, aok := a[k]
		bv, bok := b[k]
		am, aIsMap := av.(Map)
		bm, bIsMap := bv.(Map)
		if aok && bok && aIsMap && bIsMap {
			changedPaths(am, bm, here, out)
			continue
		}
		if aok != bok || !ValueEqual(av, bv) {
			*out = append(*out, JoinPath(here))
		}
	}
}
