package scheduler

import (
	"sort"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/itemgraph"
)

// Dispatch is one unit of work handed to a worker.
type Dispatch struct {
	Index int
	// Triggered is set when another item's change requested this run.
	Triggered bool
	// Reapply is set when the item had already finished once in this run.
	Reapply bool
}

// Change is a state transition the scheduler applied on its own, as a
// consequence of another item finishing.
type Change struct {
	Index int
	State item.State
	// Cause is the index of the item whose outcome produced the change, or
	// -1 when the run was cancelled.
	Cause int
}

// Scheduler tracks readiness for one node run. It is not safe for
// concurrent use.
type Scheduler struct {
	g        *itemgraph.Graph
	blocking func(itemType string) bool

	state   []item.State
	waiting []int
	rank    []int

	ready   []int
	reapply []int

	// triggered is the per-run marker: an item is triggered at most once.
	triggered []bool
	// rerun is set for a running item that must be re-applied afterwards.
	rerun []bool

	running  map[string]int
	inflight int
}

// New creates a scheduler for g. blocking reports whether items of a type
// must not run concurrently with each other; nil means no type blocks.
func New(g *itemgraph.Graph, blocking func(itemType string) bool) *Scheduler {
	if blocking == nil {
		blocking = func(string) bool { return false }
	}
	n := g.Len()
	s := &Scheduler{
		g:         g,
		blocking:  blocking,
		state:     make([]item.State, n),
		waiting:   make([]int, n),
		rank:      make([]int, n),
		triggered: make([]bool, n),
		rerun:     make([]bool, n),
		running:   map[string]int{},
	}
	for pos, i := range g.Order() {
		s.rank[i] = pos
	}
	for i := 0; i < n; i++ {
		s.waiting[i] = len(g.Predecessors(i))
		if s.waiting[i] == 0 {
			s.ready = append(s.ready, i)
		}
	}
	s.sortReady()
	return s
}

func (s *Scheduler) sortReady() {
	sort.Slice(s.ready, func(a, b int) bool { return s.rank[s.ready[a]] < s.rank[s.ready[b]] })
}

// State returns the scheduler's view of item i.
func (s *Scheduler) State(i int) item.State { return s.state[i] }

// Inflight returns the number of dispatched items that have not finished.
func (s *Scheduler) Inflight() int { return s.inflight }

func (s *Scheduler) blocked(i int) bool {
	typ := s.g.At(i).ID.Type
	return s.blocking(typ) && s.running[typ] > 0
}

func (s *Scheduler) start(i int) {
	s.inflight++
	s.running[s.g.At(i).ID.Type]++
}

// Ready returns up to max items that may start now and marks them Running.
// Queued re-applications come first, then newly released items in
// topological order.
func (s *Scheduler) Ready(max int) []Dispatch {
	var out []Dispatch

	var keep []int
	for _, i := range s.reapply {
		if len(out) >= max || s.blocked(i) {
			keep = append(keep, i)
			continue
		}
		s.start(i)
		s.state[i] = item.Running
		out = append(out, Dispatch{Index: i, Triggered: true, Reapply: true})
	}
	s.reapply = keep

	keep = keep[:0:0]
	for _, i := range s.ready {
		if s.state[i] != item.Pending {
			continue
		}
		if len(out) >= max || s.blocked(i) {
			keep = append(keep, i)
			continue
		}
		s.start(i)
		s.state[i] = item.Running
		out = append(out, Dispatch{Index: i, Triggered: s.triggered[i]})
	}
	s.ready = keep
	return out
}

// Finish records the outcome of a dispatch and returns the transitions it
// caused on other items. A Failed item that may not fail aborts every
// pending descendant; a Skipped item with cascade_skip skips them.
func (s *Scheduler) Finish(d Dispatch, state item.State) []Change {
	i := d.Index
	s.inflight--
	s.running[s.g.At(i).ID.Type]--
	s.state[i] = state

	it := s.g.At(i)
	var changes []Change
	switch {
	case state == item.Failed && (!it.MayFail || it.Err != nil):
		changes = s.markDescendants(i, item.Aborted)
	case state == item.Skipped && it.CascadeSkip:
		changes = s.markDescendants(i, item.Skipped)
	}

	if !d.Reapply {
		for _, succ := range s.g.Successors(i) {
			s.waiting[succ]--
			if s.waiting[succ] == 0 && s.state[succ] == item.Pending {
				s.ready = append(s.ready, succ)
			}
		}
		s.sortReady()
	}

	if s.rerun[i] {
		s.rerun[i] = false
		if s.reapplicable(i, state) {
			s.reapply = append(s.reapply, i)
		}
	}
	return changes
}

func (s *Scheduler) markDescendants(i int, state item.State) []Change {
	var changes []Change
	for _, d := range s.g.Descendants(i) {
		if s.state[d] != item.Pending {
			continue
		}
		s.state[d] = state
		changes = append(changes, Change{Index: d, State: state, Cause: i})
	}
	sort.Slice(changes, func(a, b int) bool { return s.rank[changes[a].Index] < s.rank[changes[b].Index] })
	return changes
}

// Trigger asks for item to be applied because from was fixed. Each item is
// triggered at most once per run; later requests return false. A pending
// item runs as triggered, a running item is re-applied once it finishes,
// and a finished successful item is queued for re-application.
func (s *Scheduler) Trigger(from, to int) bool {
	if s.triggered[to] {
		return false
	}
	switch st := s.state[to]; {
	case st == item.Pending:
	case st == item.Running:
		s.rerun[to] = true
	case s.reapplicable(to, st):
		s.reapply = append(s.reapply, to)
	default:
		return false
	}
	s.triggered[to] = true
	return true
}

// reapplicable reports whether a finished item may run again. Items skipped
// by a predicate stay skipped; triggered-only items skipped for lack of a
// trigger may still run.
func (s *Scheduler) reapplicable(i int, st item.State) bool {
	return st == item.Correct || st == item.Fixed || (st == item.Skipped && s.g.At(i).Triggered && !s.g.At(i).Skip)
}

// AbortPending marks every item that has not been dispatched as Aborted and
// drops queued re-applications.
func (s *Scheduler) AbortPending() []Change {
	var changes []Change
	for _, i := range s.g.Order() {
		if s.state[i] == item.Pending {
			s.state[i] = item.Aborted
			changes = append(changes, Change{Index: i, State: item.Aborted, Cause: -1})
		}
	}
	s.ready = nil
	s.reapply = nil
	for i := range s.rerun {
		s.rerun[i] = false
	}
	return changes
}

// Done reports whether nothing is running and nothing can be dispatched.
func (s *Scheduler) Done() bool {
	if s.inflight > 0 || len(s.reapply) > 0 {
		return false
	}
	for _, i := range s.ready {
		if s.state[i] == item.Pending {
			return false
		}
	}
	return true
}
