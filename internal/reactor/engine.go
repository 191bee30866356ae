package reactor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/metadata"
)

// DefaultMaxIterations bounds the number of reactor passes per node.
const DefaultMaxIterations = 1000

// MaxIterationsEnv overrides the default iteration ceiling.
const MaxIterationsEnv = "CONVERGO_MAX_METADATA_ITERATIONS"

// Engine runs a fixed set of reactors to a fixed point.
type Engine struct {
	reactors      []Reactor
	policy        metadata.Policy
	maxIterations int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIterations sets the iteration ceiling. Values below one are ignored.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithPolicy sets the merge policy used for reactor outputs.
func WithPolicy(p metadata.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// NewEngine creates an engine. Reactor names must be unique; the reactors
// always run sorted by name, whatever order they are passed in.
func NewEngine(reactors []Reactor, opts ...Option) (*Engine, error) {
	sorted := make([]Reactor, len(reactors))
	copy(sorted, reactors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name() == sorted[i-1].Name() {
			return nil, fmt.Errorf("duplicate reactor name %q", sorted[i].Name())
		}
	}

	e := &Engine{
		reactors:      sorted,
		maxIterations: maxIterationsFromEnv(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func maxIterationsFromEnv() int {
	if raw := os.Getenv(MaxIterationsEnv); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMaxIterations
}

// Names returns the reactor names in execution order.
func (e *Engine) Names() []string {
	names := make([]string, len(e.reactors))
	for i, r := range e.reactors {
		names[i] = r.Name()
	}
	return names
}

// Result is the outcome of a successful computation.
type Result struct {
	Metadata   metadata.Map
	Iterations int
}

type reactorState struct {
	reactor  Reactor
	last     metadata.Map
	finished bool
	declined error
	changes  int
}

// Compute runs the reactors for one node until the merged metadata stops
// changing. static is the already-layered static metadata and is not
// modified.
func (e *Engine) Compute(ctx context.Context, in Input, static metadata.Map) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("node", in.Node.Name)
	base := static.Clone()
	current := base

	states := make([]*reactorState, len(e.reactors))
	for i, r := range e.reactors {
		states[i] = &reactorState{reactor: r}
	}

	var changed []string
	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		partials := make([]partial, 0, len(states))
		for _, st := range states {
			st.declined = nil
			if !st.finished {
				if err := e.run(ctx, in, current, st); err != nil {
					return nil, err
				}
			}
			if st.last != nil {
				partials = append(partials, partial{reactor: st.reactor.Name(), out: st.last})
			}
		}

		reacted, err := mergePartials(in.Node.Name, e.policy, partials)
		if err != nil {
			return nil, err
		}
		candidate := metadata.Overlay(base, reacted, e.policy)

		if metadata.Equal(candidate, current) {
			declines := map[string]error{}
			for _, st := range states {
				if st.declined != nil {
					declines[st.reactor.Name()] = st.declined
				}
			}
			if len(declines) > 0 {
				return nil, &PersistentDeclineError{Node: in.Node.Name, Declines: declines}
			}
			logger.Debug("Metadata reached a fixed point.", "iteration", iteration)
			return &Result{Metadata: candidate, Iterations: iteration}, nil
		}

		changed = metadata.ChangedPaths(current, candidate)
		logger.Debug("Metadata changed.", "iteration", iteration, "keys", changed)
		current = candidate
	}

	return nil, &NonconvergenceError{
		Node:       in.Node.Name,
		Iterations: e.maxIterations,
		Keys:       changed,
		Reactors:   mostActive(states),
	}
}

func (e *Engine) run(ctx context.Context, in Input, current metadata.Map, st *reactorState) error {
	logger := ctxlog.FromContext(ctx)
	name := st.reactor.Name()

	view := in
	view.Metadata = metadata.NewAccessor(current.Clone())
	out, err := st.reactor.React(ctx, view)
	switch {
	case err == nil:
	case isDecline(err):
		logger.Debug("Reactor declined.", "reactor", name, "error", err)
		st.declined = err
		return nil
	case errors.Is(err, ErrDoNotRunAgain):
		logger.Debug("Reactor finished.", "reactor", name)
		st.finished = true
		if out == nil {
			st.last = nil
			return nil
		}
	default:
		return &ReactorError{Node: in.Node.Name, Reactor: name, Err: err}
	}

	normalized, err := metadata.NormalizeMap(out)
	if err != nil {
		return &ReactorError{Node: in.Node.Name, Reactor: name, Err: fmt.Errorf("invalid output: %w", err)}
	}
	if st.last != nil && !metadata.Equal(st.last, normalized) {
		st.changes++
	}
	st.last = normalized
	return nil
}

// mostActive lists reactors that changed their output at least once, most
// changes first.
func mostActive(states []*reactorState) []string {
	active := make([]*reactorState, 0, len(states))
	for _, st := range states {
		if st.changes > 0 {
			active = append(active, st)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].changes > active[j].changes })
	names := make([]string, len(active))
	for i, st := range active {
		names[i] = st.reactor.Name()
	}
	return names
}
