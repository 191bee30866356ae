package hcl_adapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/tryfunc"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/node"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Variables an item or reactor expression may reference.
const (
	varMetadata = "metadata"
	varNode     = "node"
)

var functions = map[string]function.Function{
	"upper":    stdlib.UpperFunc,
	"lower":    stdlib.LowerFunc,
	"join":     stdlib.JoinFunc,
	"split":    stdlib.SplitFunc,
	"format":   stdlib.FormatFunc,
	"concat":   stdlib.ConcatFunc,
	"merge":    stdlib.MergeFunc,
	"length":   stdlib.LengthFunc,
	"keys":     stdlib.KeysFunc,
	"lookup":   stdlib.LookupFunc,
	"contains": stdlib.ContainsFunc,
	"coalesce": stdlib.CoalesceFunc,
	"sort":     stdlib.SortFunc,
	"toset":    stdlib.MakeToFunc(cty.Set(cty.DynamicPseudoType)),
	"tolist":   stdlib.MakeToFunc(cty.List(cty.DynamicPseudoType)),
	"try":      tryfunc.TryFunc,
	"can":      tryfunc.CanFunc,
}

// staticContext evaluates expressions that may call functions but reference
// no variables.
func staticContext() *hcl.EvalContext {
	return &hcl.EvalContext{Functions: functions}
}

// nodeContext exposes the node and its effective metadata to an expression.
func nodeContext(md metadata.Map, n node.Info) (*hcl.EvalContext, error) {
	mdVal, err := metadata.MapToCty(md)
	if err != nil {
		return nil, fmt.Errorf("metadata of node %q: %w", n.Name, err)
	}
	return &hcl.EvalContext{
		Functions: functions,
		Variables: map[string]cty.Value{
			varMetadata: mdVal,
			varNode:     n.CtyValue(),
		},
	}, nil
}

// isExprDefined reports whether an optional attribute was written in the
// source. gohcl fills omitted optional expressions with a zero-width
// placeholder.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	return rng.End.Byte > rng.Start.Byte
}

// traversalKey renders a traversal in source form, e.g. metadata.nginx.port.
func traversalKey(t hcl.Traversal) string {
	return strings.TrimSpace(string(hclwrite.TokensForTraversal(t).Bytes()))
}

// checkVariables rejects references to anything but metadata and node.
func checkVariables(expr hcl.Expression) hcl.Diagnostics {
	var diags hcl.Diagnostics
	for _, t := range expr.Variables() {
		switch t.RootName() {
		case varMetadata, varNode:
		default:
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unknown variable",
				Detail:   fmt.Sprintf("Only %q and %q may be referenced, not %q.", varMetadata, varNode, traversalKey(t)),
				Subject:  t.SourceRange().Ptr(),
			})
		}
	}
	return diags
}

// staticValue evaluates an expression that must not reference variables.
func staticValue(expr hcl.Expression, what string) (any, hcl.Diagnostics) {
	if vars := expr.Variables(); len(vars) > 0 {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Static value required",
			Detail:   fmt.Sprintf("The %s cannot reference %q; it must be known when the repository is loaded.", what, traversalKey(vars[0])),
			Subject:  vars[0].SourceRange().Ptr(),
		}}
	}
	val, diags := expr.Value(staticContext())
	if diags.HasErrors() {
		return nil, diags
	}
	v, err := metadata.FromCty(val)
	if err != nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported value",
			Detail:   fmt.Sprintf("The %s is invalid: %s.", what, err),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return v, nil
}

// staticMetadata evaluates a metadata object. A missing attribute is empty.
func staticMetadata(expr hcl.Expression, what string) (metadata.Map, hcl.Diagnostics) {
	if !isExprDefined(expr) {
		return nil, nil
	}
	v, diags := staticValue(expr, what)
	if diags.HasErrors() || v == nil {
		return nil, diags
	}
	m, ok := v.(metadata.Map)
	if !ok {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid metadata",
			Detail:   fmt.Sprintf("The %s must be an object.", what),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return m, nil
}

// staticStrings evaluates an expression that must yield a list of strings.
func staticStrings(expr hcl.Expression, what string) ([]string, hcl.Diagnostics) {
	v, diags := staticValue(expr, what)
	if diags.HasErrors() {
		return nil, diags
	}
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if set, isSet := v.(metadata.Set); isSet {
		list, ok = set.Values(), true
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		s, isString := e.(string)
		if !isString {
			ok = false
			break
		}
		out = append(out, s)
	}
	if !ok {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid value",
			Detail:   fmt.Sprintf("The %s must be a list of strings.", what),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return out, nil
}

// itemAttr turns an item attribute into a Literal when it references no
// variables, or into a Resolver evaluated against the node's metadata.
func itemAttr(expr hcl.Expression) (item.Attr, hcl.Diagnostics) {
	vars := expr.Variables()
	if len(vars) == 0 {
		v, diags := staticValue(expr, "attribute")
		if diags.HasErrors() {
			return nil, diags
		}
		return item.Literal{Value: v}, nil
	}
	if diags := checkVariables(expr); diags.HasErrors() {
		return nil, diags
	}

	refs := metadataRefs(vars)
	return item.Resolver{
		Refs: refs,
		Fn: func(md metadata.Accessor, n node.Info) (any, error) {
			ectx, err := nodeContext(md.Map(), n)
			if err != nil {
				return nil, err
			}
			val, diags := expr.Value(ectx)
			if diags.HasErrors() {
				if path, ok := missingKey(diags, refs, md); ok {
					return nil, &metadata.MissingKeyError{Path: path}
				}
				return nil, diags
			}
			return metadata.FromCty(val)
		},
	}, nil
}

// metadataRefs lists the metadata paths read by the given traversals. Index
// steps with string keys extend the path; any other step ends it.
func metadataRefs(vars []hcl.Traversal) [][]string {
	seen := map[string]bool{}
	var out [][]string
	for _, t := range vars {
		if t.RootName() != varMetadata {
			continue
		}
		var path []string
	steps:
		for _, step := range t[1:] {
			switch s := step.(type) {
			case hcl.TraverseAttr:
				path = append(path, s.Name)
			case hcl.TraverseIndex:
				if s.Key.Type() != cty.String || !s.Key.IsKnown() {
					break steps
				}
				path = append(path, s.Key.AsString())
			default:
				break steps
			}
		}
		if len(path) == 0 {
			continue
		}
		key := metadata.JoinPath(path)
		if !seen[key] {
			seen[key] = true
			out = append(out, path)
		}
	}
	sort.Slice(out, func(i, j int) bool { return metadata.JoinPath(out[i]) < metadata.JoinPath(out[j]) })
	return out
}

// missingKey reports whether an evaluation failed only because referenced
// metadata does not exist yet, and names the first absent path.
func missingKey(diags hcl.Diagnostics, refs [][]string, md metadata.Accessor) ([]string, bool) {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		switch d.Summary {
		case "Unsupported attribute", "Invalid index", "Missing map element":
		default:
			return nil, false
		}
	}
	for _, path := range refs {
		for i := 1; i <= len(path); i++ {
			if !md.Has(path[:i]...) {
				return path[:i], true
			}
		}
	}
	return nil, false
}
