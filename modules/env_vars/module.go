// Package env_vars provides the "env_vars" reactor, which copies variables
// from the environment of the convergo process into node metadata. Bundles
// list the variables they need in env_vars/names and read them from
// env_vars/values.
package env_vars

import (
	"context"
	"os"

	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/reactor"
	"github.com/specialistvlad/convergo/internal/registry"
)

// Name is the reactor name bundles refer to.
const Name = "env_vars"

// Module implements the registry.Module interface for this package.
// LookupEnv defaults to os.LookupEnv.
type Module struct {
	LookupEnv func(key string) (string, bool)
}

// NewReactor returns the reactor reading variables through lookup.
func NewReactor(lookup func(string) (string, bool)) reactor.Reactor {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return reactor.NewFunc(Name, func(ctx context.Context, in reactor.Input) (metadata.Map, error) {
		names, err := in.Metadata.GetSet("env_vars", "names")
		if err != nil {
			return nil, err
		}

		values := metadata.Map{}
		var missing []any
		for _, name := range names.Strings() {
			if v, ok := lookup(name); ok {
				values[name] = v
			} else {
				missing = append(missing, name)
			}
		}
		out := metadata.Map{"values": values}
		if len(missing) > 0 {
			out["missing"] = metadata.NewSet(missing...)
		}
		return metadata.Map{"env_vars": out}, nil
	})
}

// Register registers the reactor.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterReactor(NewReactor(m.LookupEnv))
}
