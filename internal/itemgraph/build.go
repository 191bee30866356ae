package itemgraph

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/node"
)

// Option configures Build.
type Option func(*builder)

// WithPrecedence replaces the default precedence table.
func WithPrecedence(p Precedence) Option {
	return func(b *builder) {
		b.precedence = p
	}
}

type builder struct {
	node       string
	precedence Precedence

	items []*item.Item
	index map[item.ID]int
	edges map[[2]int]struct{}
	succs [][]int
	trig  [][]int
}

// Build instantiates decls against the node's effective metadata and
// assembles the graph. Attribute resolution failures are recorded on the
// affected items and do not fail the build.
func Build(ctx context.Context, info node.Info, decls []*item.Declaration, md metadata.Map, opts ...Option) (*Graph, error) {
	acc := metadata.NewAccessor(md)
	items := make([]*item.Item, len(decls))
	for i, d := range decls {
		items[i] = d.Instantiate(acc, info)
	}
	return FromItems(ctx, info.Name, items, opts...)
}

// FromItems assembles a graph from already instantiated items.
func FromItems(ctx context.Context, nodeName string, items []*item.Item, opts ...Option) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting item graph construction.", "node", nodeName, "item_count", len(items))

	b := &builder{
		node:       nodeName,
		precedence: PrecedenceV1,
		items:      items,
		index:      make(map[item.ID]int, len(items)),
		edges:      map[[2]int]struct{}{},
		succs:      make([][]int, len(items)),
		trig:       make([][]int, len(items)),
	}
	for _, opt := range opts {
		opt(b)
	}

	for i, it := range items {
		if _, dup := b.index[it.ID]; dup {
			return nil, &GraphError{Node: nodeName, Item: it.ID, Reason: "declared more than once"}
		}
		b.index[it.ID] = i
	}

	if err := b.linkExplicit(); err != nil {
		return nil, err
	}
	logger.Debug("Build: Explicit relations linked.", "edges", len(b.edges))

	b.linkTriggered()
	b.linkPrecedence()
	logger.Debug("Build: Implicit precedence linked.", "edges", len(b.edges), "precedence_version", b.precedence.Version)

	g := b.graph()
	order, err := b.sort(g)
	if err != nil {
		return nil, err
	}
	g.order = order
	logger.Debug("Build: Item graph is acyclic.", "node", nodeName)
	return g, nil
}

func (b *builder) addEdge(from, to int) {
	key := [2]int{from, to}
	if _, ok := b.edges[key]; ok {
		return
	}
	b.edges[key] = struct{}{}
	b.succs[from] = append(b.succs[from], to)
}

// resolve expands a selector into item indexes. Concrete references must
// exist; class selectors that match nothing are dropped.
func (b *builder) resolve(self int, sel item.Selector) ([]int, error) {
	if sel.Kind == item.SelectItem {
		t, ok := b.index[sel.ID]
		if !ok {
			return nil, &GraphError{Node: b.node, Item: b.items[self].ID, Reason: fmt.Sprintf("references unknown item %q", sel.ID)}
		}
		if t == self {
			return nil, &GraphError{Node: b.node, Item: b.items[self].ID, Reason: "depends on itself"}
		}
		return []int{t}, nil
	}
	var out []int
	for i, it := range b.items {
		if i != self && sel.Matches(it) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (b *builder) linkExplicit() error {
	for i, it := range b.items {
		for _, sel := range it.Needs {
			targets, err := b.resolve(i, sel)
			if err != nil {
				return err
			}
			for _, t := range targets {
				b.addEdge(t, i)
			}
		}
		for _, sel := range it.NeededBy {
			targets, err := b.resolve(i, sel)
			if err != nil {
				return err
			}
			for _, t := range targets {
				b.addEdge(i, t)
			}
		}
		for _, sel := range it.Triggers {
			targets, err := b.resolve(i, sel)
			if err != nil {
				return err
			}
			b.trig[i] = append(b.trig[i], targets...)
		}
		for _, sel := range it.TriggeredBy {
			targets, err := b.resolve(i, sel)
			if err != nil {
				return err
			}
			for _, t := range targets {
				b.trig[t] = append(b.trig[t], i)
			}
		}
	}
	for i := range b.trig {
		slices.Sort(b.trig[i])
		b.trig[i] = slices.Compact(b.trig[i])
	}
	return nil
}

// linkTriggered orders triggered-only items after the items that trigger
// them, so they are still pending when the trigger fires.
func (b *builder) linkTriggered() {
	for i, targets := range b.trig {
		for _, t := range targets {
			if b.items[t].Triggered {
				b.addEdge(i, t)
			}
		}
	}
}

func (b *builder) linkPrecedence() {
	byType := map[string][]int{}
	for i, it := range b.items {
		byType[it.ID.Type] = append(byType[it.ID.Type], i)
	}
	for _, list := range byType {
		sort.Slice(list, func(x, y int) bool { return b.items[list[x]].ID.String() < b.items[list[y]].ID.String() })
	}

	for _, rule := range b.precedence.Rules {
		for _, before := range byType[rule.Before] {
			for _, after := range byType[rule.After] {
				if b.reachable(before, after) || b.reachable(after, before) {
					continue
				}
				b.addEdge(before, after)
			}
		}
	}
}

func (b *builder) reachable(from, to int) bool {
	seen := make([]bool, len(b.items))
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, b.succs[n]...)
	}
	return false
}

func (b *builder) graph() *Graph {
	n := len(b.items)
	g := &Graph{
		node:       b.node,
		precedence: b.precedence.Version,
		items:      b.items,
		index:      b.index,
		preds:      make([][]int, n),
		succs:      make([][]int, n),
		triggers:   b.trig,
	}
	for from, list := range b.succs {
		for _, to := range list {
			g.succs[from] = append(g.succs[from], to)
			g.preds[to] = append(g.preds[to], from)
		}
	}
	for i := 0; i < n; i++ {
		slices.Sort(g.succs[i])
		slices.Sort(g.preds[i])
	}
	return g
}

// sort performs Kahn's algorithm, always taking the ready item with the
// smallest ID next.
func (b *builder) sort(g *Graph) ([]int, error) {
	n := len(g.items)
	inDegree := make([]int, n)
	for i := range g.items {
		inDegree[i] = len(g.preds[i])
	}

	var ready []int
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		sort.Slice(ready, func(x, y int) bool { return g.items[ready[x]].ID.String() < g.items[ready[y]].ID.String() })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, s := range g.succs[next] {
			inDegree[s]--
			if inDegree[s] == 0 {
				ready = append(ready, s)
			}
		}
	}

	if len(order) == n {
		return order, nil
	}

	remaining := make([]bool, n)
	for i := range inDegree {
		remaining[i] = inDegree[i] > 0
	}
	return nil, &GraphError{Node: b.node, Cycle: findCycle(g, remaining)}
}

// findCycle returns one cycle among the remaining items, in edge order.
func findCycle(g *Graph, remaining []bool) []item.ID {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.items))
	var stack []int
	var cycle []int

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = grey
		stack = append(stack, n)
		for _, s := range g.succs[n] {
			if !remaining[s] {
				continue
			}
			if color[s] == grey {
				start := slices.Index(stack, s)
				cycle = append(append([]int(nil), stack[start:]...), s)
				return true
			}
			if color[s] == white && visit(s) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	candidates := make([]int, 0)
	for i, r := range remaining {
		if r {
			candidates = append(candidates, i)
		}
	}
	sort.Slice(candidates, func(x, y int) bool { return g.items[candidates[x]].ID.String() < g.items[candidates[y]].ID.String() })
	for _, c := range candidates {
		if color[c] == white && visit(c) {
			break
		}
	}

	out := make([]item.ID, len(cycle))
	for i, idx := range cycle {
		out[i] = g.items[idx].ID
	}
	return out
}
