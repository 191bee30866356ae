package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/metacache"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/reactor"
)

// StaticMetadata returns the node's metadata before reactors run: bundle
// defaults, then its groups parents first, then the node itself.
func (r *Repository) StaticMetadata(name string) (metadata.Map, bool) {
	i, ok := r.nodeIndex[name]
	if !ok {
		return nil, false
	}
	return r.static(r.nodes[i]), true
}

func (r *Repository) static(n *nodeEntry) metadata.Map {
	layers := make([]metadata.Map, 0, len(n.bundles)+len(n.groups)+1)
	for _, bi := range n.bundles {
		layers = append(layers, r.bundles[bi].Defaults)
	}
	for _, gi := range n.groups {
		layers = append(layers, r.groups[gi].decl.Metadata)
	}
	layers = append(layers, n.decl.Metadata)
	return metadata.Layer(r.policy, layers...)
}

// Metadata returns the node's effective metadata. The first call per node
// runs its reactors; concurrent callers share that computation and later
// callers get the cached result until Invalidate.
func (r *Repository) Metadata(ctx context.Context, name string) (metadata.Map, error) {
	i, ok := r.nodeIndex[name]
	if !ok {
		return nil, configErr("node", name, "not declared")
	}

	r.mu.Lock()
	md, ok := r.computed[name]
	r.mu.Unlock()
	if ok {
		return md.Clone(), nil
	}

	v, err, _ := r.flight.Do(name, func() (any, error) {
		md, err := r.compute(ctx, r.nodes[i])
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.computed[name] = md
		r.mu.Unlock()
		return md, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(metadata.Map).Clone(), nil
}

func (r *Repository) compute(ctx context.Context, n *nodeEntry) (metadata.Map, error) {
	logger := ctxlog.FromContext(ctx).With("node", n.decl.Name)
	static := r.static(n)
	reactors, names := r.reactorsFor(n)

	snapshot, err := r.snapshotDigest()
	if err != nil {
		return nil, err
	}
	key, err := metacache.Key(r.revision, snapshot, n.decl.Name, static, names)
	if err != nil {
		return nil, err
	}
	if md, ok, err := r.cache.Get(ctx, key); err != nil {
		logger.Warn("Metadata cache read failed.", "err", err)
	} else if ok {
		logger.Debug("Metadata cache hit.")
		return md, nil
	}

	engine, err := reactor.NewEngine(reactors, reactor.WithPolicy(r.policy), reactor.WithMaxIterations(r.maxIterations))
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", n.decl.Name, err)
	}
	logger.Debug("Computing metadata.", "reactors", names)
	res, err := engine.Compute(ctx, reactor.Input{Node: n.info, Repo: r}, static)
	if err != nil {
		return nil, err
	}
	r.metrics.MetadataComputed(res.Iterations)
	logger.Debug("Metadata computed.", "iteration", res.Iterations)

	if err := r.cache.Set(ctx, key, res.Metadata); err != nil {
		logger.Warn("Metadata cache write failed.", "err", err)
	}
	return res.Metadata, nil
}

// Invalidate drops computed metadata for the named nodes, or for every node
// when called without names.
func (r *Repository) Invalidate(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(names) == 0 {
		r.computed = map[string]metadata.Map{}
		return
	}
	for _, name := range names {
		delete(r.computed, name)
	}
}

// snapshotDigest hashes everything a reactor can observe besides the node's
// own static metadata: every node's identity, membership and static
// metadata, the combine policy, and the definition of inline reactors.
func (r *Repository) snapshotDigest() (string, error) {
	r.snapshotOnce.Do(func() {
		h := sha256.New()
		fmt.Fprintf(h, "policy=%s\x00", strings.Join(r.policy.Combine, ","))
		for _, n := range r.nodes {
			fmt.Fprintf(h, "node=%s\x00%s\x00%s\x00%s\x00",
				n.info.Name, n.info.Hostname, strings.Join(n.info.Groups, ","), strings.Join(n.info.Bundles, ","))
			_, value, err := metadata.Marshal(r.static(n))
			if err != nil {
				r.snapshotErr = fmt.Errorf("encoding static metadata of %s: %w", n.info.Name, err)
				return
			}
			h.Write(value)
		}
		for _, b := range r.bundles {
			fmt.Fprintf(h, "bundle=%s\x00%s\x00", b.Name, strings.Join(b.ReactorNames, ","))
			for _, rc := range b.Reactors {
				fmt.Fprintf(h, "reactor=%s\x00", rc.Name())
				if fp, ok := rc.(reactor.Fingerprinter); ok {
					fmt.Fprintf(h, "%s\x00", fp.Fingerprint())
				}
			}
		}
		r.snapshot = hex.EncodeToString(h.Sum(nil))
	})
	return r.snapshot, r.snapshotErr
}
