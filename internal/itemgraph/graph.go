package itemgraph

import (
	"github.com/specialistvlad/convergo/internal/item"
)

// Graph is an immutable, acyclic graph of one node's items.
type Graph struct {
	node       string
	precedence int

	items []*item.Item
	index map[item.ID]int

	// preds and succs are ordering edges; both are sorted by item index.
	preds    [][]int
	succs    [][]int
	triggers [][]int

	order []int
}

// Node returns the name of the node the graph belongs to.
func (g *Graph) Node() string { return g.node }

// PrecedenceVersion returns the version of the precedence table used.
func (g *Graph) PrecedenceVersion() int { return g.precedence }

// Len returns the number of items.
func (g *Graph) Len() int { return len(g.items) }

// At returns the item stored at index i.
func (g *Graph) At(i int) *item.Item { return g.items[i] }

// Index returns the arena index of id.
func (g *Graph) Index(id item.ID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Item looks up an item by ID.
func (g *Graph) Item(id item.ID) (*item.Item, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.items[i], true
}

// Order returns item indexes in a topological order. Ties are broken by
// item ID so the order is stable across runs.
func (g *Graph) Order() []int {
	return append([]int(nil), g.order...)
}

// Items returns the items in topological order.
func (g *Graph) Items() []*item.Item {
	out := make([]*item.Item, len(g.order))
	for i, idx := range g.order {
		out[i] = g.items[idx]
	}
	return out
}

// Predecessors returns the indexes of the items that must finish before i.
func (g *Graph) Predecessors(i int) []int { return g.preds[i] }

// Successors returns the indexes of the items that wait for i.
func (g *Graph) Successors(i int) []int { return g.succs[i] }

// Triggers returns the indexes of the items re-applied when i is fixed.
func (g *Graph) Triggers(i int) []int { return g.triggers[i] }

// PredecessorIDs returns the IDs of the items that must finish before id.
func (g *Graph) PredecessorIDs(id item.ID) []item.ID {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]item.ID, len(g.preds[i]))
	for k, p := range g.preds[i] {
		out[k] = g.items[p].ID
	}
	return out
}

// Descendants returns every item reachable from i through ordering edges.
func (g *Graph) Descendants(i int) []int {
	seen := make([]bool, len(g.items))
	var out []int
	stack := append([]int(nil), g.succs[i]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		stack = append(stack, g.succs[n]...)
	}
	return out
}
