package scheduler

import (
	"context"
	"testing"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/itemgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type itemDef struct {
	id        string
	needs     []string
	triggers  []string
	triggered bool
	mayFail   bool
	cascade   bool
}

func build(t *testing.T, defs ...itemDef) *itemgraph.Graph {
	t.Helper()
	var items []*item.Item
	for _, s := range defs {
		id, err := item.ParseID(s.id)
		require.NoError(t, err)
		it := &item.Item{ID: id, Attributes: map[string]any{}, Triggered: s.triggered, MayFail: s.mayFail, CascadeSkip: s.cascade}
		for _, raw := range s.needs {
			sel, err := item.ParseSelector(raw)
			require.NoError(t, err)
			it.Needs = append(it.Needs, sel)
		}
		for _, raw := range s.triggers {
			sel, err := item.ParseSelector(raw)
			require.NoError(t, err)
			it.Triggers = append(it.Triggers, sel)
		}
		items = append(items, it)
	}
	g, err := itemgraph.FromItems(context.Background(), "node1", items)
	require.NoError(t, err)
	return g
}

func idx(t *testing.T, g *itemgraph.Graph, raw string) int {
	t.Helper()
	id, err := item.ParseID(raw)
	require.NoError(t, err)
	i, ok := g.Index(id)
	require.True(t, ok)
	return i
}

func ids(g *itemgraph.Graph, ds []Dispatch) []string {
	var out []string
	for _, d := range ds {
		out = append(out, g.At(d.Index).ID.String())
	}
	return out
}

func TestReadyFollowsDependencies(t *testing.T) {
	g := build(t,
		itemDef{id: "action:a"},
		itemDef{id: "action:b", needs: []string{"action:a"}},
		itemDef{id: "action:c"},
	)
	s := New(g, nil)

	first := s.Ready(10)
	assert.Equal(t, []string{"action:a", "action:c"}, ids(g, first))
	assert.Empty(t, s.Ready(10))
	assert.Equal(t, 2, s.Inflight())

	s.Finish(first[0], item.Fixed)
	next := s.Ready(10)
	assert.Equal(t, []string{"action:b"}, ids(g, next))

	s.Finish(first[1], item.Correct)
	assert.False(t, s.Done())
	s.Finish(next[0], item.Correct)
	assert.True(t, s.Done())
}

func TestReadyRespectsLimit(t *testing.T) {
	g := build(t, itemDef{id: "action:a"}, itemDef{id: "action:b"}, itemDef{id: "action:c"})
	s := New(g, nil)

	assert.Len(t, s.Ready(2), 2)
	assert.Empty(t, s.Ready(0))
	assert.Len(t, s.Ready(1), 1)
}

func TestFailureAbortsDescendants(t *testing.T) {
	g := build(t,
		itemDef{id: "action:a"},
		itemDef{id: "action:b", needs: []string{"action:a"}},
		itemDef{id: "action:d", needs: []string{"action:b"}},
		itemDef{id: "action:c"},
	)
	s := New(g, nil)
	ds := s.Ready(10)
	require.Equal(t, []string{"action:a", "action:c"}, ids(g, ds))

	changes := s.Finish(ds[0], item.Failed)
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.Equal(t, item.Aborted, c.State)
		assert.Equal(t, idx(t, g, "action:a"), c.Cause)
	}
	assert.Equal(t, item.Aborted, s.State(idx(t, g, "action:d")))
	assert.Empty(t, s.Ready(10))

	s.Finish(ds[1], item.Fixed)
	assert.True(t, s.Done())
}

func TestMayFailDoesNotAbort(t *testing.T) {
	g := build(t,
		itemDef{id: "action:a", mayFail: true},
		itemDef{id: "action:b", needs: []string{"action:a"}},
	)
	s := New(g, nil)
	ds := s.Ready(10)
	assert.Empty(t, s.Finish(ds[0], item.Failed))
	assert.Equal(t, []string{"action:b"}, ids(g, s.Ready(10)))
}

func TestCascadeSkip(t *testing.T) {
	g := build(t,
		itemDef{id: "action:a", cascade: true},
		itemDef{id: "action:b", needs: []string{"action:a"}},
	)
	s := New(g, nil)
	changes := s.Finish(s.Ready(10)[0], item.Skipped)
	require.Len(t, changes, 1)
	assert.Equal(t, item.Skipped, changes[0].State)
	assert.True(t, s.Done())
}

func TestBlockingTypes(t *testing.T) {
	g := build(t,
		itemDef{id: "pkg_apt:curl"},
		itemDef{id: "pkg_apt:nginx"},
		itemDef{id: "action:x"},
	)
	s := New(g, func(typ string) bool { return typ == "pkg_apt" })

	first := s.Ready(10)
	assert.ElementsMatch(t, []string{"action:x", "pkg_apt:curl"}, ids(g, first))

	for _, d := range first {
		if g.At(d.Index).ID.Type == "pkg_apt" {
			s.Finish(d, item.Correct)
		}
	}
	assert.Equal(t, []string{"pkg_apt:nginx"}, ids(g, s.Ready(10)))
}

func TestTriggerReappliesFinishedItemOnce(t *testing.T) {
	g := build(t,
		itemDef{id: "action:a", triggers: []string{"action:b"}},
		itemDef{id: "action:b"},
	)
	a, b := idx(t, g, "action:a"), idx(t, g, "action:b")
	s := New(g, nil)

	for _, d := range s.Ready(10) {
		if d.Index == b {
			s.Finish(d, item.Correct)
		}
	}
	require.True(t, s.Trigger(a, b))
	assert.False(t, s.Trigger(a, b))

	re := s.Ready(10)
	require.Len(t, re, 1)
	assert.Equal(t, Dispatch{Index: b, Triggered: true, Reapply: true}, re[0])
	s.Finish(re[0], item.Fixed)

	assert.False(t, s.Trigger(a, b))
	assert.Empty(t, s.Ready(10))
}

func TestTriggerRunningItemQueuesRerun(t *testing.T) {
	g := build(t, itemDef{id: "action:a"}, itemDef{id: "action:b"})
	a, b := idx(t, g, "action:a"), idx(t, g, "action:b")
	s := New(g, nil)
	ds := s.Ready(10)
	require.Len(t, ds, 2)

	require.True(t, s.Trigger(a, b))
	s.Finish(ds[b], item.Correct)
	re := s.Ready(10)
	require.Len(t, re, 1)
	assert.True(t, re[0].Reapply)
}

func TestTriggeredOnlyItem(t *testing.T) {
	g := build(t,
		itemDef{id: "action:a", triggers: []string{"action:reload"}},
		itemDef{id: "action:reload", triggered: true},
	)
	a, reload := idx(t, g, "action:a"), idx(t, g, "action:reload")
	s := New(g, nil)

	ds := s.Ready(10)
	require.Equal(t, []string{"action:a"}, ids(g, ds))
	require.True(t, s.Trigger(a, reload))
	s.Finish(ds[0], item.Fixed)

	next := s.Ready(10)
	require.Len(t, next, 1)
	assert.Equal(t, Dispatch{Index: reload, Triggered: true}, next[0])
}

func TestTriggerIgnoresFailedItems(t *testing.T) {
	g := build(t, itemDef{id: "action:a"}, itemDef{id: "action:b"})
	a, b := idx(t, g, "action:a"), idx(t, g, "action:b")
	s := New(g, nil)
	ds := s.Ready(10)
	s.Finish(ds[b], item.Failed)
	assert.False(t, s.Trigger(a, b))
}

func TestAbortPending(t *testing.T) {
	g := build(t,
		itemDef{id: "action:a"},
		itemDef{id: "action:b", needs: []string{"action:a"}},
		itemDef{id: "action:c", needs: []string{"action:b"}},
	)
	s := New(g, nil)
	ds := s.Ready(10)

	changes := s.AbortPending()
	assert.Len(t, changes, 2)
	assert.False(t, s.Done())

	s.Finish(ds[0], item.Fixed)
	assert.Empty(t, s.Ready(10))
	assert.True(t, s.Done())
	assert.Equal(t, item.Fixed, s.State(ds[0].Index))
}
