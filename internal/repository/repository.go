package repository

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"

	"github.com/specialistvlad/convergo/internal/config"
	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/itemgraph"
	"github.com/specialistvlad/convergo/internal/metacache"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/metrics"
	"github.com/specialistvlad/convergo/internal/node"
	"github.com/specialistvlad/convergo/internal/reactor"
	"github.com/specialistvlad/convergo/internal/registry"
	"golang.org/x/sync/singleflight"
)

type nodeEntry struct {
	decl    *config.NodeDecl
	info    node.Info
	groups  []int
	bundles []int
}

type groupEntry struct {
	decl      *config.GroupDecl
	subgroups []int
	patterns  []*regexp.Regexp
	depth     int
	// members holds node indexes, including members of subgroups.
	members []int
}

// Repository is an immutable set of declarations plus a per-node metadata
// cache.
type Repository struct {
	nodes      []*nodeEntry
	nodeIndex  map[string]int
	groups     []*groupEntry
	groupIndex map[string]int
	bundles    []*config.BundleDecl
	bundleIdx  map[string]int
	policy     metadata.Policy

	registry      *registry.Registry
	cache         metacache.Cache
	revision      string
	maxIterations int
	precedence    *itemgraph.Precedence
	metrics       *metrics.Recorder

	mu       sync.Mutex
	computed map[string]metadata.Map
	flight   singleflight.Group

	snapshotOnce sync.Once
	snapshot     string
	snapshotErr  error
}

// Option configures a Repository.
type Option func(*Repository)

// WithRegistry provides the Go reactors bundles may refer to.
func WithRegistry(r *registry.Registry) Option {
	return func(repo *Repository) { repo.registry = r }
}

// WithCache stores computed metadata in c, keyed by revision.
func WithCache(c metacache.Cache, revision string) Option {
	return func(repo *Repository) {
		repo.cache = c
		repo.revision = revision
	}
}

// WithMaxIterations bounds the reactor passes per node.
func WithMaxIterations(n int) Option {
	return func(repo *Repository) { repo.maxIterations = n }
}

// WithPrecedence overrides the type precedence table used for item graphs.
func WithPrecedence(p itemgraph.Precedence) Option {
	return func(repo *Repository) { repo.precedence = &p }
}

// WithMetrics records metadata iteration counts on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(repo *Repository) { repo.metrics = m }
}

// New validates model and builds the repository.
func New(ctx context.Context, model *config.Model, opts ...Option) (*Repository, error) {
	logger := ctxlog.FromContext(ctx)
	r := &Repository{
		nodeIndex:  map[string]int{},
		groupIndex: map[string]int{},
		bundleIdx:  map[string]int{},
		policy:     model.Policy,
		cache:      metacache.Nop{},
		computed:   map[string]metadata.Map{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.index(model); err != nil {
		return nil, err
	}
	if err := r.linkGroups(); err != nil {
		return nil, err
	}
	if err := r.linkNodes(); err != nil {
		return nil, err
	}
	if err := r.checkReactors(); err != nil {
		return nil, err
	}

	logger.Debug("Repository: Declarations validated.", "nodes", len(r.nodes), "groups", len(r.groups), "bundles", len(r.bundles))
	return r, nil
}

func (r *Repository) index(model *config.Model) error {
	for _, b := range model.Bundles {
		if _, dup := r.bundleIdx[b.Name]; dup {
			return configErr("bundle", b.Name, "declared more than once")
		}
		r.bundleIdx[b.Name] = len(r.bundles)
		r.bundles = append(r.bundles, b)
	}
	for _, g := range model.Groups {
		if _, dup := r.groupIndex[g.Name]; dup {
			return configErr("group", g.Name, "declared more than once")
		}
		entry := &groupEntry{decl: g}
		for _, p := range g.MemberPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return configErr("group", g.Name, "invalid member pattern %q: %v", p, err)
			}
			entry.patterns = append(entry.patterns, re)
		}
		r.groupIndex[g.Name] = len(r.groups)
		r.groups = append(r.groups, entry)
	}
	for _, n := range model.Nodes {
		if _, dup := r.nodeIndex[n.Name]; dup {
			return configErr("node", n.Name, "declared more than once")
		}
		if _, clash := r.groupIndex[n.Name]; clash {
			return configErr("node", n.Name, "has the same name as a group")
		}
		r.nodeIndex[n.Name] = len(r.nodes)
		r.nodes = append(r.nodes, &nodeEntry{decl: n})
	}
	return nil
}

// linkGroups resolves subgroup references, rejects cycles and computes each
// group's depth below its parents.
func (r *Repository) linkGroups() error {
	for _, g := range r.groups {
		for _, name := range g.decl.Subgroups {
			sub, ok := r.groupIndex[name]
			if !ok {
				return configErr("group", g.decl.Name, "unknown subgroup %q", name)
			}
			g.subgroups = append(g.subgroups, sub)
		}
		for _, b := range g.decl.Bundles {
			if _, ok := r.bundleIdx[b]; !ok {
				return configErr("group", g.decl.Name, "unknown bundle %q", b)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	color := make([]int, len(r.groups))
	var stack []int
	var visit func(i int) error
	visit = func(i int) error {
		color[i] = visiting
		stack = append(stack, i)
		for _, sub := range r.groups[i].subgroups {
			switch color[sub] {
			case visiting:
				start := slices.Index(stack, sub)
				var cycle []string
				for _, k := range stack[start:] {
					cycle = append(cycle, r.groups[k].decl.Name)
				}
				cycle = append(cycle, r.groups[sub].decl.Name)
				return &ConfigurationError{
					Object: fmt.Sprintf("group %q", r.groups[sub].decl.Name),
					Reason: "subgroup cycle",
					Cycle:  cycle,
				}
			case unvisited:
				if err := visit(sub); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = done
		return nil
	}
	for _, i := range r.sortedGroupIndexes() {
		if color[i] == unvisited {
			if err := visit(i); err != nil {
				return err
			}
		}
	}

	// Parents are always visited before their subgroups in this order, so
	// one pass over a topological order settles every depth.
	for _, i := range r.topoGroups() {
		for _, sub := range r.groups[i].subgroups {
			if d := r.groups[i].depth + 1; d > r.groups[sub].depth {
				r.groups[sub].depth = d
			}
		}
	}
	return nil
}

func (r *Repository) sortedGroupIndexes() []int {
	out := make([]int, len(r.groups))
	for i := range out {
		out[i] = i
	}
	sort.Slice(out, func(a, b int) bool { return r.groups[out[a]].decl.Name < r.groups[out[b]].decl.Name })
	return out
}

// topoGroups orders groups so every parent precedes its subgroups.
func (r *Repository) topoGroups() []int {
	indeg := make([]int, len(r.groups))
	for _, g := range r.groups {
		for _, sub := range g.subgroups {
			indeg[sub]++
		}
	}
	var queue, out []int
	for _, i := range r.sortedGroupIndexes() {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		out = append(out, i)
		for _, sub := range r.groups[i].subgroups {
			indeg[sub]--
			if indeg[sub] == 0 {
				queue = append(queue, sub)
			}
		}
	}
	return out
}

// linkNodes resolves direct memberships, propagates them up through
// subgroups and assigns bundles.
func (r *Repository) linkNodes() error {
	direct := make([]map[int]bool, len(r.groups))
	for gi, g := range r.groups {
		direct[gi] = map[int]bool{}
		for _, name := range g.decl.Members {
			ni, ok := r.nodeIndex[name]
			if !ok {
				return configErr("group", g.decl.Name, "unknown member node %q", name)
			}
			direct[gi][ni] = true
		}
		for ni, n := range r.nodes {
			for _, re := range g.patterns {
				if re.MatchString(n.decl.Name) {
					direct[gi][ni] = true
				}
			}
		}
	}
	for ni, n := range r.nodes {
		for _, name := range n.decl.Groups {
			gi, ok := r.groupIndex[name]
			if !ok {
				return configErr("node", n.decl.Name, "unknown group %q", name)
			}
			direct[gi][ni] = true
		}
		for _, b := range n.decl.Bundles {
			if _, ok := r.bundleIdx[b]; !ok {
				return configErr("node", n.decl.Name, "unknown bundle %q", b)
			}
		}
	}

	// Children before parents, so a parent sees its subgroups' full sets.
	order := r.topoGroups()
	members := make([]map[int]bool, len(r.groups))
	for k := len(order) - 1; k >= 0; k-- {
		gi := order[k]
		members[gi] = direct[gi]
		for _, sub := range r.groups[gi].subgroups {
			for ni := range members[sub] {
				members[gi][ni] = true
			}
		}
	}

	for gi, g := range r.groups {
		for ni := range members[gi] {
			g.members = append(g.members, ni)
			r.nodes[ni].groups = append(r.nodes[ni].groups, gi)
		}
		sort.Slice(g.members, func(a, b int) bool {
			return r.nodes[g.members[a]].decl.Name < r.nodes[g.members[b]].decl.Name
		})
	}

	for _, n := range r.nodes {
		sort.Slice(n.groups, func(a, b int) bool {
			ga, gb := r.groups[n.groups[a]], r.groups[n.groups[b]]
			if ga.depth != gb.depth {
				return ga.depth < gb.depth
			}
			return ga.decl.Name < gb.decl.Name
		})

		bundles := map[int]bool{}
		for _, b := range n.decl.Bundles {
			bundles[r.bundleIdx[b]] = true
		}
		for _, gi := range n.groups {
			for _, b := range r.groups[gi].decl.Bundles {
				bundles[r.bundleIdx[b]] = true
			}
		}
		for bi := range bundles {
			n.bundles = append(n.bundles, bi)
		}
		sort.Slice(n.bundles, func(a, b int) bool {
			return r.bundles[n.bundles[a]].Name < r.bundles[n.bundles[b]].Name
		})

		hostname := n.decl.Hostname
		if hostname == "" {
			hostname = n.decl.Name
		}
		n.info = node.Info{Name: n.decl.Name, Hostname: hostname}
		for _, gi := range n.groups {
			n.info.Groups = append(n.info.Groups, r.groups[gi].decl.Name)
		}
		for _, bi := range n.bundles {
			n.info.Bundles = append(n.info.Bundles, r.bundles[bi].Name)
		}
	}
	return nil
}

func (r *Repository) checkReactors() error {
	for _, b := range r.bundles {
		for _, name := range b.ReactorNames {
			if _, ok := r.registry.Reactor(name); !ok {
				return configErr("bundle", b.Name, "unknown reactor %q", name)
			}
		}
	}
	return nil
}

// reactorsFor returns the node's reactors sorted by name. A registry
// reactor used by several bundles runs once.
func (r *Repository) reactorsFor(n *nodeEntry) ([]reactor.Reactor, []string) {
	byName := map[string]reactor.Reactor{}
	for _, bi := range n.bundles {
		b := r.bundles[bi]
		for _, name := range b.ReactorNames {
			rc, _ := r.registry.Reactor(name)
			byName[name] = rc
		}
		for _, rc := range b.Reactors {
			byName[rc.Name()] = rc
		}
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]reactor.Reactor, len(names))
	for i, name := range names {
		out[i] = byName[name]
	}
	return out, names
}
