package reactor

import (
	"slices"

	"github.com/specialistvlad/convergo/internal/metadata"
)

// partial is one reactor's output for a pass.
type partial struct {
	reactor string
	out     metadata.Map
}

// merger combines reactor partials while remembering which reactor wrote
// each path, so a conflict can name both parties.
type merger struct {
	node   string
	policy metadata.Policy
	owners map[string]string
}

// mergePartials merges partials in the given order. The order only affects
// the element order of combined sequences; callers pass partials sorted by
// reactor name.
func mergePartials(nodeName string, policy metadata.Policy, partials []partial) (metadata.Map, error) {
	m := &merger{node: nodeName, policy: policy, owners: map[string]string{}}
	out := metadata.Map{}
	for _, p := range partials {
		if err := m.merge(out, p.out, p.reactor, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *merger) merge(dst, src metadata.Map, reactor string, path []string) error {
	for _, k := range src.Keys() {
		sv := src[k]
		here := append(slices.Clip(path), k)
		key := metadata.JoinPath(here)
		dv, exists := dst[k]
		if !exists {
			dst[k] = metadata.CloneValue(sv)
			m.owners[key] = reactor
			continue
		}
		switch s := sv.(type) {
		case metadata.Map:
			d, ok := dv.(metadata.Map)
			if !ok {
				return m.conflict(key, reactor)
			}
			if err := m.merge(d, s, reactor, here); err != nil {
				return err
			}
			continue
		case metadata.Set:
			d, ok := dv.(metadata.Set)
			if !ok {
				return m.conflict(key, reactor)
			}
			dst[k] = d.Union(s)
			continue
		case []any:
			if m.policy.IsCombine(here) {
				d, ok := dv.([]any)
				if !ok {
					return m.conflict(key, reactor)
				}
				dst[k] = metadata.UnionSequence(d, s)
				continue
			}
		}
		if !metadata.ValueEqual(dv, sv) {
			return m.conflict(key, reactor)
		}
	}
	return nil
}

func (m *merger) conflict(key, reactor string) error {
	owner := m.owners[key]
	if owner == "" {
		owner = m.ownerOfPrefix(key)
	}
	pair := [2]string{owner, reactor}
	if pair[1] < pair[0] {
		pair[0], pair[1] = pair[1], pair[0]
	}
	return &ConflictError{Node: m.node, Key: key, Reactors: pair}
}

// ownerOfPrefix finds the reactor that created the nearest parent of key.
func (m *merger) ownerOfPrefix(key string) string {
	segs := metadata.SplitPath(key)
	for i := len(segs) - 1; i > 0; i-- {
		if owner, ok := m.owners[metadata.JoinPath(segs[:i])]; ok {
			return owner
		}
	}
	return ""
}
