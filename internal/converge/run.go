package converge

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/itemgraph"
	"github.com/specialistvlad/convergo/internal/report"
	"github.com/specialistvlad/convergo/internal/scheduler"
	"github.com/specialistvlad/convergo/internal/statestore"
)

// runState is the coordinator's bookkeeping for one Apply call.
type runState struct {
	engine *Engine
	graph  *itemgraph.Graph
	sched  *scheduler.Scheduler
	store  statestore.Store
}

func (r *runState) finish(ctx context.Context, o outcome) {
	logger := ctxlog.FromContext(ctx)
	it := r.graph.At(o.dispatch.Index)

	res := statestore.Result{
		State:     o.state,
		Output:    o.output,
		Err:       o.err,
		Started:   o.started,
		Duration:  o.duration,
		Reapplied: o.dispatch.Reapply,
	}
	if o.dispatch.Reapply {
		if prev, err := r.store.Get(ctx, it.ID); err == nil {
			res.Output = prev.Output + o.output
			res.Started = prev.Started
			res.Duration = prev.Duration + o.duration
		}
	}
	r.set(ctx, it, res)

	switch {
	case o.state == item.Failed && it.MayFail:
		logger.Warn("Item failed, continuing because may_fail is set.", "item", it.ID, "err", o.err)
	case o.state == item.Failed:
		logger.Error("Item failed.", "item", it.ID, "err", o.err)
	default:
		logger.Info("Item finished.", "item", it.ID, "state", o.state, "reapply", o.dispatch.Reapply)
	}

	r.record(ctx, r.sched.Finish(o.dispatch, o.state), nil)

	if o.state == item.Fixed {
		for _, t := range r.graph.Triggers(o.dispatch.Index) {
			target := r.graph.At(t)
			if r.sched.Trigger(o.dispatch.Index, t) {
				logger.Debug("Item triggered.", "item", target.ID, "by", it.ID)
			} else {
				logger.Debug("Trigger ignored.", "item", target.ID, "by", it.ID)
			}
		}
	}
}

// record stores transitions made by the scheduler. cause overrides the
// reason derived from the causing item.
func (r *runState) record(ctx context.Context, changes []scheduler.Change, cause error) {
	for _, c := range changes {
		it := r.graph.At(c.Index)
		reason := cause
		if reason == nil && c.Cause >= 0 {
			from := r.graph.At(c.Cause).ID
			switch c.State {
			case item.Aborted:
				reason = fmt.Errorf("dependency %s failed", from)
			case item.Skipped:
				reason = fmt.Errorf("dependency %s was skipped", from)
			}
		}
		ctxlog.FromContext(ctx).Debug("Item state changed.", "item", it.ID, "state", c.State, "reason", reason)
		r.set(ctx, it, statestore.Result{State: c.State, Err: reason})
	}
}

func (r *runState) set(ctx context.Context, it *item.Item, res statestore.Result) {
	if err := r.store.Set(ctx, it.ID, res); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to record item result.", "item", it.ID, "err", err)
	}
	r.engine.metrics.ItemFinished(it.ID.Type, res.State.String(), res.Duration)
}

func (r *runState) report(ctx context.Context, started time.Time) (*report.NodeReport, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading item results: %w", err)
	}
	rep := &report.NodeReport{Node: r.graph.Node(), Started: started, Finished: time.Now()}
	for _, it := range r.graph.Items() {
		res, ok := all[it.ID]
		if !ok {
			res = statestore.Result{State: item.Pending}
		}
		ir := report.ItemResult{
			ID:        it.ID.String(),
			State:     res.State,
			Output:    res.Output,
			Duration:  res.Duration,
			Reapplied: res.Reapplied,
		}
		if res.Err != nil {
			ir.Error = res.Err.Error()
		}
		rep.Items = append(rep.Items, ir)
	}
	return rep, nil
}
