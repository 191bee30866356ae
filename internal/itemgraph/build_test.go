package itemgraph

import (
	"context"
	"testing"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, raw string) item.ID {
	t.Helper()
	id, err := item.ParseID(raw)
	require.NoError(t, err)
	return id
}

func sels(t *testing.T, raws ...string) []item.Selector {
	t.Helper()
	out := make([]item.Selector, len(raws))
	for i, raw := range raws {
		sel, err := item.ParseSelector(raw)
		require.NoError(t, err)
		out[i] = sel
	}
	return out
}

func newItem(t *testing.T, raw string, mutate ...func(*item.Item)) *item.Item {
	t.Helper()
	it := &item.Item{ID: mustID(t, raw), Bundle: "b", Attributes: map[string]any{}}
	for _, m := range mutate {
		m(it)
	}
	return it
}

func orderIDs(g *Graph) []string {
	var out []string
	for _, it := range g.Items() {
		out = append(out, it.ID.String())
	}
	return out
}

func before(t *testing.T, g *Graph, a, b string) bool {
	t.Helper()
	order := orderIDs(g)
	ia, ib := -1, -1
	for i, id := range order {
		if id == a {
			ia = i
		}
		if id == b {
			ib = i
		}
	}
	require.NotEqual(t, -1, ia, a)
	require.NotEqual(t, -1, ib, b)
	return ia < ib
}

func TestExplicitRelations(t *testing.T) {
	t.Run("needs and needed_by produce the same edge", func(t *testing.T) {
		viaNeeds := []*item.Item{
			newItem(t, "action:a"),
			newItem(t, "action:b", func(it *item.Item) { it.Needs = sels(t, "action:a") }),
		}
		viaNeededBy := []*item.Item{
			newItem(t, "action:a", func(it *item.Item) { it.NeededBy = sels(t, "action:b") }),
			newItem(t, "action:b"),
		}

		for _, items := range [][]*item.Item{viaNeeds, viaNeededBy} {
			g, err := FromItems(context.Background(), "n", items)
			require.NoError(t, err)
			b, _ := g.Index(mustID(t, "action:b"))
			a, _ := g.Index(mustID(t, "action:a"))
			assert.Equal(t, []int{a}, g.Predecessors(b))
			assert.Equal(t, []int{b}, g.Successors(a))
		}
	})

	t.Run("order respects every edge", func(t *testing.T) {
		items := []*item.Item{
			newItem(t, "action:c", func(it *item.Item) { it.Needs = sels(t, "action:b") }),
			newItem(t, "action:b", func(it *item.Item) { it.Needs = sels(t, "action:a") }),
			newItem(t, "action:a"),
			newItem(t, "action:z"),
		}
		g, err := FromItems(context.Background(), "n", items)
		require.NoError(t, err)
		assert.Equal(t, []string{"action:a", "action:b", "action:c", "action:z"}, orderIDs(g))
	})
}

func TestSelectors(t *testing.T) {
	items := []*item.Item{
		newItem(t, "pkg_apt:nginx", func(it *item.Item) { it.Bundle = "web" }),
		newItem(t, "pkg_apt:curl", func(it *item.Item) { it.Bundle = "base" }),
		newItem(t, "action:tagged", func(it *item.Item) { it.Tags = []string{"setup"} }),
		newItem(t, "action:last", func(it *item.Item) {
			it.Needs = sels(t, "bundle:web", "tag:setup", "pkg_apt:", "tag:nothing", "bundle:nothing")
		}),
	}

	g, err := FromItems(context.Background(), "n", items)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]item.ID{mustID(t, "pkg_apt:nginx"), mustID(t, "pkg_apt:curl"), mustID(t, "action:tagged")},
		g.PredecessorIDs(mustID(t, "action:last")))
}

func TestClassSelectorExcludesSelf(t *testing.T) {
	items := []*item.Item{
		newItem(t, "action:a", func(it *item.Item) { it.Needs = sels(t, "action:") }),
		newItem(t, "action:b"),
	}
	g, err := FromItems(context.Background(), "n", items)
	require.NoError(t, err)
	assert.Equal(t, []item.ID{mustID(t, "action:b")}, g.PredecessorIDs(mustID(t, "action:a")))
}

func TestGraphErrors(t *testing.T) {
	testCases := []struct {
		name    string
		items   func(t *testing.T) []*item.Item
		wantErr string
	}{
		{
			name: "unknown item",
			items: func(t *testing.T) []*item.Item {
				return []*item.Item{newItem(t, "action:a", func(it *item.Item) { it.Needs = sels(t, "action:ghost") })}
			},
			wantErr: `references unknown item "action:ghost"`,
		},
		{
			name: "unknown trigger target",
			items: func(t *testing.T) []*item.Item {
				return []*item.Item{newItem(t, "action:a", func(it *item.Item) { it.Triggers = sels(t, "action:ghost") })}
			},
			wantErr: "unknown item",
		},
		{
			name: "self dependency",
			items: func(t *testing.T) []*item.Item {
				return []*item.Item{newItem(t, "action:a", func(it *item.Item) { it.Needs = sels(t, "action:a") })}
			},
			wantErr: "depends on itself",
		},
		{
			name: "duplicate item",
			items: func(t *testing.T) []*item.Item {
				return []*item.Item{newItem(t, "action:a"), newItem(t, "action:a")}
			},
			wantErr: "declared more than once",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromItems(context.Background(), "n", tc.items(t))
			require.Error(t, err)
			_, ok := AsGraphError(err)
			assert.True(t, ok)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestCycleIsNamed(t *testing.T) {
	items := []*item.Item{
		newItem(t, "action:a", func(it *item.Item) { it.Needs = sels(t, "action:c") }),
		newItem(t, "action:b", func(it *item.Item) { it.Needs = sels(t, "action:a") }),
		newItem(t, "action:c", func(it *item.Item) { it.Needs = sels(t, "action:b") }),
		newItem(t, "action:d", func(it *item.Item) { it.Needs = sels(t, "action:c") }),
		newItem(t, "action:free"),
	}

	_, err := FromItems(context.Background(), "web1", items)
	graphErr, ok := AsGraphError(err)
	require.True(t, ok, "got %v", err)
	require.Len(t, graphErr.Cycle, 4)
	assert.Equal(t, graphErr.Cycle[0], graphErr.Cycle[3])
	assert.Equal(t, mustID(t, "action:a"), graphErr.Cycle[0])
	assert.Equal(t, mustID(t, "action:b"), graphErr.Cycle[1])
	assert.Equal(t, mustID(t, "action:c"), graphErr.Cycle[2])
	assert.EqualError(t, err, `dependency cycle on node "web1": action:a -> action:b -> action:c -> action:a`)
}

func TestPrecedence(t *testing.T) {
	t.Run("adds implicit edges", func(t *testing.T) {
		items := []*item.Item{
			newItem(t, "svc_systemd:nginx"),
			newItem(t, "file:/etc/nginx/nginx.conf"),
			newItem(t, "pkg_apt:nginx"),
			newItem(t, "directory:/etc/nginx"),
		}
		g, err := FromItems(context.Background(), "n", items)
		require.NoError(t, err)
		assert.Equal(t, 1, g.PrecedenceVersion())
		assert.Equal(t, []string{
			"pkg_apt:nginx", "directory:/etc/nginx", "file:/etc/nginx/nginx.conf", "svc_systemd:nginx",
		}, orderIDs(g))
	})

	t.Run("explicit reverse relation wins", func(t *testing.T) {
		items := []*item.Item{
			newItem(t, "file:/etc/x", func(it *item.Item) { it.Needs = sels(t, "svc_systemd:x") }),
			newItem(t, "svc_systemd:x"),
		}
		g, err := FromItems(context.Background(), "n", items)
		require.NoError(t, err)
		assert.True(t, before(t, g, "svc_systemd:x", "file:/etc/x"))
	})

	t.Run("transitive explicit relation suppresses the implicit edge", func(t *testing.T) {
		items := []*item.Item{
			newItem(t, "svc_systemd:x", func(it *item.Item) { it.Needs = sels(t, "action:mid") }),
			newItem(t, "action:mid", func(it *item.Item) { it.Needs = sels(t, "file:/etc/x") }),
			newItem(t, "file:/etc/x"),
		}
		g, err := FromItems(context.Background(), "n", items)
		require.NoError(t, err)
		svc, _ := g.Index(mustID(t, "svc_systemd:x"))
		assert.Equal(t, []item.ID{mustID(t, "action:mid")}, g.PredecessorIDs(g.At(svc).ID))
	})

	t.Run("custom table", func(t *testing.T) {
		items := []*item.Item{newItem(t, "file:/a"), newItem(t, "pkg_apt:a")}
		g, err := FromItems(context.Background(), "n", items, WithPrecedence(Precedence{Version: 2}))
		require.NoError(t, err)
		assert.Equal(t, 2, g.PrecedenceVersion())
		assert.Empty(t, g.PredecessorIDs(mustID(t, "file:/a")))
	})
}

func TestTriggers(t *testing.T) {
	items := []*item.Item{
		newItem(t, "file:/etc/conf", func(it *item.Item) { it.Triggers = sels(t, "action:reload") }),
		newItem(t, "action:reload", func(it *item.Item) { it.Triggered = true }),
		newItem(t, "svc_systemd:app", func(it *item.Item) { it.TriggeredBy = sels(t, "file:/etc/conf") }),
	}
	g, err := FromItems(context.Background(), "n", items)
	require.NoError(t, err)

	file, _ := g.Index(mustID(t, "file:/etc/conf"))
	reload, _ := g.Index(mustID(t, "action:reload"))
	svc, _ := g.Index(mustID(t, "svc_systemd:app"))
	assert.ElementsMatch(t, []int{reload, svc}, g.Triggers(file))
	assert.True(t, before(t, g, "file:/etc/conf", "action:reload"), "triggered-only items run after their trigger")
	assert.Empty(t, g.Triggers(reload))
}

func TestBuildRecordsAttributeErrors(t *testing.T) {
	decls := []*item.Declaration{
		{
			ID: mustID(t, "file:/etc/motd"),
			Attributes: map[string]item.Attr{
				"content": item.Resolver{Fn: func(md metadata.Accessor, _ node.Info) (any, error) {
					return md.GetString("motd")
				}},
			},
		},
		{ID: mustID(t, "action:ok"), Attributes: map[string]item.Attr{"command": item.Static("true")}},
	}

	g, err := Build(context.Background(), node.Info{Name: "n"}, decls, metadata.Map{})
	require.NoError(t, err)

	motd, ok := g.Item(mustID(t, "file:/etc/motd"))
	require.True(t, ok)
	attrErr, ok := item.AsAttributeError(motd.Err)
	require.True(t, ok)
	assert.Equal(t, "motd", attrErr.Key)

	okItem, _ := g.Item(mustID(t, "action:ok"))
	assert.NoError(t, okItem.Err)
	assert.Equal(t, "true", okItem.Attributes["command"])
}

func TestDescendants(t *testing.T) {
	items := []*item.Item{
		newItem(t, "action:a"),
		newItem(t, "action:b", func(it *item.Item) { it.Needs = sels(t, "action:a") }),
		newItem(t, "action:c", func(it *item.Item) { it.Needs = sels(t, "action:b") }),
		newItem(t, "action:d"),
	}
	g, err := FromItems(context.Background(), "n", items)
	require.NoError(t, err)
	a, _ := g.Index(mustID(t, "action:a"))
	b, _ := g.Index(mustID(t, "action:b"))
	c, _ := g.Index(mustID(t, "action:c"))
	assert.ElementsMatch(t, []int{b, c}, g.Descendants(a))
}
