// Package peers provides the "peers" reactor: given peers/group, it lists
// the hostnames of the other members of that group.
package peers

import (
	"context"

	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/reactor"
	"github.com/specialistvlad/convergo/internal/registry"
)

// Name is the reactor name bundles refer to.
const Name = "peers"

// Module implements the registry.Module interface for this package.
type Module struct{}

// React declines until peers/group is known, then writes peers/hosts.
func React(ctx context.Context, in reactor.Input) (metadata.Map, error) {
	group, err := in.Metadata.GetString("peers", "group")
	if err != nil {
		return nil, err
	}
	if group == "" {
		return nil, reactor.Decline("peers/group is empty")
	}

	hosts := metadata.Set{}
	for _, name := range in.Repo.NodesInGroup(group) {
		if name == in.Node.Name {
			continue
		}
		if info, ok := in.Repo.NodeInfo(name); ok {
			hosts.Add(info.Hostname)
		}
	}
	return metadata.Map{"peers": metadata.Map{"hosts": hosts}}, nil
}

// Register registers the reactor.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterReactor(reactor.NewFunc(Name, React))
}
