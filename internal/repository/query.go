package repository

import (
	"sort"

	"github.com/specialistvlad/convergo/internal/node"
)

// NodeNames returns every node name, sorted.
func (r *Repository) NodeNames() []string {
	names := make([]string, len(r.nodes))
	for i, n := range r.nodes {
		names[i] = n.decl.Name
	}
	sort.Strings(names)
	return names
}

// Nodes returns every node, sorted by name.
func (r *Repository) Nodes() []node.Info {
	out := make([]node.Info, 0, len(r.nodes))
	for _, name := range r.NodeNames() {
		out = append(out, r.nodes[r.nodeIndex[name]].info)
	}
	return out
}

// NodeInfo looks up a node by name.
func (r *Repository) NodeInfo(name string) (node.Info, bool) {
	i, ok := r.nodeIndex[name]
	if !ok {
		return node.Info{}, false
	}
	return r.nodes[i].info, true
}

// GroupNames returns every group name, sorted.
func (r *Repository) GroupNames() []string {
	names := make([]string, len(r.groups))
	for i, g := range r.groups {
		names[i] = g.decl.Name
	}
	sort.Strings(names)
	return names
}

// HasGroup reports whether group is declared.
func (r *Repository) HasGroup(group string) bool {
	_, ok := r.groupIndex[group]
	return ok
}

// BundleNames returns every bundle name, sorted.
func (r *Repository) BundleNames() []string {
	names := make([]string, len(r.bundles))
	for i, b := range r.bundles {
		names[i] = b.Name
	}
	sort.Strings(names)
	return names
}

// NodesInGroup returns the members of group, including members of its
// subgroups, sorted by name. Unknown groups have no members.
func (r *Repository) NodesInGroup(group string) []string {
	gi, ok := r.groupIndex[group]
	if !ok {
		return nil
	}
	out := make([]string, len(r.groups[gi].members))
	for i, ni := range r.groups[gi].members {
		out[i] = r.nodes[ni].decl.Name
	}
	return out
}

// InGroup reports whether the node is a member of group.
func (r *Repository) InGroup(nodeName, group string) bool {
	info, ok := r.NodeInfo(nodeName)
	return ok && info.InGroup(group)
}

// InAnyGroup reports whether the node is a member of at least one of groups.
func (r *Repository) InAnyGroup(nodeName string, groups ...string) bool {
	for _, g := range groups {
		if r.InGroup(nodeName, g) {
			return true
		}
	}
	return false
}

// NodesInAllGroups returns the nodes that are members of every group, sorted.
// With no groups it returns no nodes.
func (r *Repository) NodesInAllGroups(groups ...string) []string {
	if len(groups) == 0 {
		return nil
	}
	var out []string
	for _, name := range r.NodeNames() {
		all := true
		for _, g := range groups {
			if !r.InGroup(name, g) {
				all = false
				break
			}
		}
		if all {
			out = append(out, name)
		}
	}
	return out
}

// NodesInAnyGroup returns the nodes that are members of at least one group,
// sorted.
func (r *Repository) NodesInAnyGroup(groups ...string) []string {
	var out []string
	for _, name := range r.NodeNames() {
		if r.InAnyGroup(name, groups...) {
			out = append(out, name)
		}
	}
	return out
}

// HasBundle reports whether bundle is assigned to the node.
func (r *Repository) HasBundle(nodeName, bundle string) bool {
	info, ok := r.NodeInfo(nodeName)
	return ok && info.HasBundle(bundle)
}

// HasAnyBundle reports whether at least one of bundles is assigned to the
// node.
func (r *Repository) HasAnyBundle(nodeName string, bundles ...string) bool {
	for _, b := range bundles {
		if r.HasBundle(nodeName, b) {
			return true
		}
	}
	return false
}

// SelectNodes expands node and group names into a sorted, de-duplicated
// list of node names. No selectors selects every node.
func (r *Repository) SelectNodes(selectors ...string) ([]string, error) {
	if len(selectors) == 0 {
		return r.NodeNames(), nil
	}
	seen := map[string]bool{}
	for _, sel := range selectors {
		switch {
		case r.nodeIndexHas(sel):
			seen[sel] = true
		case r.HasGroup(sel):
			for _, n := range r.NodesInGroup(sel) {
				seen[n] = true
			}
		default:
			return nil, configErr("selector", sel, "matches no node or group")
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repository) nodeIndexHas(name string) bool {
	_, ok := r.nodeIndex[name]
	return ok
}
