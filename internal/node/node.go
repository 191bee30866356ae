// Package node describes the identity of a managed machine as seen by
// expressions and reactors: its name, address, groups and bundles.
package node

import (
	"slices"

	"github.com/zclconf/go-cty/cty"
)

// Info is the immutable identity of one node.
type Info struct {
	Name     string
	Hostname string
	// Groups holds every group the node belongs to, including groups reached
	// through subgroup membership, ordered parents before children.
	Groups []string
	// Bundles is the sorted union of the node's own and its groups' bundles.
	Bundles []string
}

// InGroup reports whether the node is a member of the named group.
func (i Info) InGroup(group string) bool {
	return slices.Contains(i.Groups, group)
}

// HasBundle reports whether the bundle is assigned to the node.
func (i Info) HasBundle(bundle string) bool {
	return slices.Contains(i.Bundles, bundle)
}

// CtyValue exposes the node to HCL expressions as the `node` variable.
func (i Info) CtyValue() cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"name":     cty.StringVal(i.Name),
		"hostname": cty.StringVal(i.Hostname),
		"groups":   stringList(i.Groups),
		"bundles":  stringList(i.Bundles),
	})
}

func stringList(values []string) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	out := make([]cty.Value, len(values))
	for i, v := range values {
		out[i] = cty.StringVal(v)
	}
	return cty.ListVal(out)
}
