// Package hosts provides the "hosts" reactor, which publishes the address of
// every node in the repository so a bundle can render /etc/hosts.
package hosts

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/reactor"
	"github.com/specialistvlad/convergo/internal/registry"
)

// Name is the reactor name bundles refer to.
const Name = "hosts"

// Module implements the registry.Module interface for this package.
type Module struct{}

// React writes hosts/entries (node name to hostname) and hosts/content, the
// entries rendered in hosts(5) format. Nodes listed in hosts/exclude are
// left out.
func React(ctx context.Context, in reactor.Input) (metadata.Map, error) {
	exclude := metadata.Set{}
	if in.Metadata.Has("hosts", "exclude") {
		s, err := in.Metadata.GetSet("hosts", "exclude")
		if err != nil {
			return nil, err
		}
		exclude = s
	}

	entries := metadata.Map{}
	var b strings.Builder
	for _, name := range in.Repo.NodeNames() {
		if exclude.Has(name) {
			continue
		}
		info, ok := in.Repo.NodeInfo(name)
		if !ok {
			continue
		}
		entries[name] = info.Hostname
		fmt.Fprintf(&b, "%s\t%s\n", info.Hostname, name)
	}
	return metadata.Map{
		"hosts": metadata.Map{
			"entries": entries,
			"content": b.String(),
		},
	}, nil
}

// Register registers the reactor.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterReactor(reactor.NewFunc(Name, React))
}
