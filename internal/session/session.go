// Package session runs one convergence session over a repository. A session
// carries a run ID shared by every node report it produces and takes care of
// the per-node lifecycle: lock the node, compute its item graph, converge it
// and release the lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/convergo/internal/converge"
	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/lock"
	"github.com/specialistvlad/convergo/internal/metrics"
	"github.com/specialistvlad/convergo/internal/report"
	"github.com/specialistvlad/convergo/internal/repository"
	"github.com/specialistvlad/convergo/internal/transport"
)

// Outcomes recorded per node.
const (
	OutcomeConverged = "converged"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
)

// Session converges nodes of one repository with one engine.
type Session struct {
	ID string

	repo    *repository.Repository
	engine  *converge.Engine
	locker  lock.Locker
	lockTTL time.Duration
	// lockWait bounds how long ApplyNode waits for a node held elsewhere.
	lockWait time.Duration
	metrics  *metrics.Recorder
}

// Option configures a Session.
type Option func(*Session)

// WithLocker makes every node apply hold a lock on the node.
func WithLocker(l lock.Locker, ttl, wait time.Duration) Option {
	return func(s *Session) {
		s.locker = l
		s.lockTTL = ttl
		s.lockWait = wait
	}
}

// WithMetrics records node outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Session) { s.metrics = m }
}

// WithID overrides the generated run ID.
func WithID(id string) Option {
	return func(s *Session) { s.ID = id }
}

// New creates a session with a fresh run ID.
func New(repo *repository.Repository, engine *converge.Engine, opts ...Option) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		repo:    repo,
		engine:  engine,
		locker:  lock.Nop{},
		lockTTL: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyNode converges one node. Failures that happen before or outside item
// convergence, such as configuration or metadata errors or a held lock, are
// reported on NodeReport.Error and never touch the node. The returned error
// is non-nil only when ctx was cancelled; the report is always set.
func (s *Session) ApplyNode(ctx context.Context, name string) (*report.NodeReport, error) {
	ctx = ctxlog.With(ctx, "run_id", s.ID, "node", name)
	logger := ctxlog.FromContext(ctx)

	rep, err := s.applyNode(ctx, name)
	rep.Node = name
	rep.RunID = s.ID

	switch {
	case rep.Error != "":
		logger.Error("Node failed before convergence.", "err", rep.Error)
		s.metrics.NodeFinished(OutcomeError)
	case rep.Succeeded():
		s.metrics.NodeFinished(OutcomeConverged)
	default:
		s.metrics.NodeFinished(OutcomeFailed)
	}
	return rep, err
}

func (s *Session) applyNode(ctx context.Context, name string) (*report.NodeReport, error) {
	logger := ctxlog.FromContext(ctx)
	failed := func(err error) (*report.NodeReport, error) {
		now := time.Now()
		rep := &report.NodeReport{Started: now, Finished: now, Error: err.Error()}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return rep, err
		}
		return rep, nil
	}

	info, ok := s.repo.NodeInfo(name)
	if !ok {
		return failed(fmt.Errorf("node %q is not declared", name))
	}

	unlock, err := s.locker.Lock(ctx, "node:"+name, s.lockTTL, s.lockWait)
	if err != nil {
		return failed(err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to release node lock.", "err", err)
		}
	}()

	g, err := s.repo.ItemGraph(ctx, name)
	if err != nil {
		return failed(err)
	}

	rep, err := s.engine.Apply(ctx, transport.Target{Node: info.Name, Hostname: info.Hostname}, g)
	if rep == nil {
		return failed(err)
	}
	return rep, err
}
