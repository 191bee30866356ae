package converge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/inmemorystore"
	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/itemgraph"
	"github.com/specialistvlad/convergo/internal/itemtypes"
	"github.com/specialistvlad/convergo/internal/metrics"
	"github.com/specialistvlad/convergo/internal/report"
	"github.com/specialistvlad/convergo/internal/scheduler"
	"github.com/specialistvlad/convergo/internal/statestore"
	"github.com/specialistvlad/convergo/internal/transport"
)

// DefaultWorkers is the per-node item concurrency limit.
const DefaultWorkers = 4

// Engine converges item graphs.
type Engine struct {
	transport transport.Transport
	catalog   itemtypes.Catalog
	workers   int
	metrics   *metrics.Recorder
	newStore  func() statestore.Store
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many items of one node may run at the same time.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCatalog replaces the built-in item types.
func WithCatalog(c itemtypes.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithMetrics records item outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithStore sets the factory for per-run result stores.
func WithStore(newStore func() statestore.Store) Option {
	return func(e *Engine) { e.newStore = newStore }
}

// New creates an Engine that talks to nodes through tr.
func New(tr transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		transport: tr,
		catalog:   itemtypes.Default(),
		workers:   DefaultWorkers,
		newStore:  inmemorystore.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type job struct {
	dispatch scheduler.Dispatch
	item     *item.Item
}

type outcome struct {
	dispatch scheduler.Dispatch
	state    item.State
	output   string
	err      error
	started  time.Time
	duration time.Duration
}

// Apply converges g on target and returns the node report. If ctx is
// cancelled, dispatched items finish, nothing new starts, the remaining
// items are reported Aborted and ctx.Err() is returned with the report.
func (e *Engine) Apply(ctx context.Context, target transport.Target, g *itemgraph.Graph) (*report.NodeReport, error) {
	ctx = ctxlog.With(ctx, "node", target.Node)
	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Converging node.", "items", g.Len(), "workers", e.workers)

	run := &runState{
		engine: e,
		graph:  g,
		sched:  scheduler.New(g, e.blocking),
		store:  e.newStore(),
	}
	started := time.Now()

	jobs := make(chan job, e.workers)
	results := make(chan outcome, e.workers)
	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < e.workers; i++ {
		go e.worker(ctxlog.With(workCtx, "worker_id", i), target, jobs, results)
	}

	cancelled := ctx.Done()
	var cancelErr error
	for {
		if cancelErr == nil && ctx.Err() != nil {
			cancelErr = ctx.Err()
			cancelled = nil
			logger.Warn("Run cancelled, aborting pending items.", "err", cancelErr)
			run.record(ctx, run.sched.AbortPending(), cancelErr)
		}
		if cancelErr == nil {
			for _, d := range run.sched.Ready(e.workers - run.sched.Inflight()) {
				it := g.At(d.Index)
				logger.Debug("Dispatching item.", "item", it.ID, "triggered", d.Triggered, "reapply", d.Reapply)
				jobs <- job{dispatch: d, item: it}
			}
		}
		if run.sched.Inflight() == 0 {
			break
		}
		select {
		case o := <-results:
			run.finish(ctx, o)
		case <-cancelled:
		}
	}
	close(jobs)

	if cancelErr == nil {
		if leftover := run.sched.AbortPending(); len(leftover) > 0 {
			logger.Error("Items never became ready.", "count", len(leftover))
			run.record(ctx, leftover, errors.New("never became ready"))
		}
	}

	rep, err := run.report(ctx, started)
	if err != nil {
		return nil, err
	}
	rep.Node = target.Node
	if rep.Succeeded() {
		logger.Info("🏁 Node converged.", "duration", rep.Finished.Sub(rep.Started))
	} else {
		logger.Warn("🏁 Node did not converge.", "duration", rep.Finished.Sub(rep.Started))
	}
	return rep, cancelErr
}

func (e *Engine) blocking(itemType string) bool {
	t, ok := e.catalog[itemType]
	return ok && t.BlockConcurrent()
}

func (e *Engine) worker(ctx context.Context, target transport.Target, jobs <-chan job, results chan<- outcome) {
	for j := range jobs {
		results <- e.runItem(ctx, target, j.item, j.dispatch)
	}
}

// runItem probes and fixes one item. It never touches shared run state.
func (e *Engine) runItem(ctx context.Context, target transport.Target, it *item.Item, d scheduler.Dispatch) outcome {
	logger := ctxlog.FromContext(ctx).With("item", it.ID)
	o := outcome{dispatch: d, started: time.Now()}
	ex := itemtypes.NewExec(e.transport, target)

	o.state, o.err = e.converge(ctx, ex, it, d)
	o.output = ex.Output()
	o.duration = time.Since(o.started)
	logger.Debug("Item finished.", "state", o.state, "err", o.err, "duration", o.duration)
	return o
}

func (e *Engine) converge(ctx context.Context, ex *itemtypes.Exec, it *item.Item, d scheduler.Dispatch) (item.State, error) {
	if it.Err != nil {
		return item.Failed, it.Err
	}
	t, err := e.catalog.Lookup(it.ID.Type)
	if err != nil {
		return item.Failed, err
	}
	if err := t.Validate(it); err != nil {
		return item.Failed, err
	}

	if it.Skip {
		return item.Skipped, errors.New("skip is set")
	}
	if it.Triggered && !d.Triggered {
		return item.Skipped, errors.New("not triggered")
	}
	if it.Unless != "" {
		res, err := ex.Run(ctx, it.Unless, transport.MayFail())
		if err != nil {
			return item.Failed, fmt.Errorf("evaluating unless: %w", err)
		}
		if res.ReturnCode == 0 {
			return item.Skipped, errors.New("unless condition is true")
		}
	}

	correct, err := t.Probe(ctx, ex, it)
	if err != nil {
		return item.Failed, fmt.Errorf("probing: %w", err)
	}
	if correct {
		trig, ok := t.(itemtypes.Triggerable)
		if !d.Triggered || !ok {
			return item.Correct, nil
		}
		if err := trig.Trigger(ctx, ex, it); err != nil {
			return item.Failed, fmt.Errorf("triggering: %w", err)
		}
		return item.Fixed, nil
	}
	if err := t.Fix(ctx, ex, it); err != nil {
		return item.Failed, fmt.Errorf("fixing: %w", err)
	}
	return item.Fixed, nil
}
