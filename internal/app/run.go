package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/convergo/internal/converge"
	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/report"
	"github.com/specialistvlad/convergo/internal/session"
	"github.com/specialistvlad/convergo/internal/transport"
	"golang.org/x/sync/errgroup"
)

// Apply converges every node matched by selectors (node or group names; all
// nodes when empty) with at most node_workers nodes in flight. Nodes share no
// mutable state. A node failure never stops the others; the error is non-nil
// only for invalid selectors or cancellation.
func (a *App) Apply(ctx context.Context, selectors ...string) (*report.Summary, error) {
	ctx = a.Context(ctx)
	logger := ctxlog.FromContext(ctx)

	names, err := a.repo.SelectNodes(selectors...)
	if err != nil {
		return nil, err
	}

	engine := converge.New(a.transport,
		converge.WithWorkers(a.config.ItemWorkers),
		converge.WithMetrics(a.metrics),
	)
	sess := session.New(a.repo, engine,
		session.WithLocker(a.locker, a.config.Lock.TTL, a.config.Lock.Wait),
		session.WithMetrics(a.metrics),
	)
	logger.Info("🚀 Starting apply.", "run_id", sess.ID, "nodes", len(names), "node_workers", a.config.NodeWorkers)

	reports := make([]*report.NodeReport, len(names))
	var g errgroup.Group
	g.SetLimit(a.config.NodeWorkers)
	for i, name := range names {
		g.Go(func() error {
			rep, err := sess.ApplyNode(ctx, name)
			reports[i] = rep
			return err
		})
	}
	err = g.Wait()

	summary := &report.Summary{Nodes: reports}
	logger.Info("🏁 Apply finished.", "run_id", sess.ID,
		"converged", len(summary.Converged()), "failed", len(summary.Failed()))
	return summary, err
}

// CommandResult is the outcome of an ad-hoc command on one node.
type CommandResult struct {
	Node       string `json:"node" yaml:"node"`
	Stdout     string `json:"stdout" yaml:"stdout"`
	Stderr     string `json:"stderr" yaml:"stderr"`
	ReturnCode int    `json:"return_code" yaml:"return_code"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunCommand runs command on every selected node. Non-zero return codes
// are reported, not treated as errors.
func (a *App) RunCommand(ctx context.Context, command string, selectors ...string) ([]CommandResult, error) {
	ctx = a.Context(ctx)
	names, err := a.repo.SelectNodes(selectors...)
	if err != nil {
		return nil, err
	}

	results := make([]CommandResult, len(names))
	var g errgroup.Group
	g.SetLimit(a.config.NodeWorkers)
	for i, name := range names {
		g.Go(func() error {
			info, _ := a.repo.NodeInfo(name)
			res := CommandResult{Node: name}
			out, err := a.transport.Run(ctx, transport.Target{Node: name, Hostname: info.Hostname}, command, transport.MayFail())
			if out != nil {
				res.Stdout = string(out.Stdout)
				res.Stderr = string(out.Stderr)
				res.ReturnCode = out.ReturnCode
			}
			if err != nil {
				res.Error = err.Error()
			}
			results[i] = res
			return ctx.Err()
		})
	}
	return results, g.Wait()
}

// Download copies remotePath from node to localPath, creating the local
// directory if needed.
func (a *App) Download(ctx context.Context, node, remotePath, localPath string) error {
	ctx = a.Context(ctx)
	info, ok := a.repo.NodeInfo(node)
	if !ok {
		_, err := a.repo.SelectNodes(node)
		if err == nil {
			err = fmt.Errorf("%q is a group, not a node", node)
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create local directory: %w", err)
	}
	ctxlog.FromContext(ctx).Info("Downloading file.", "node", node, "remote", remotePath, "local", localPath)
	return a.transport.Download(ctx, transport.Target{Node: info.Name, Hostname: info.Hostname}, remotePath, localPath)
}
