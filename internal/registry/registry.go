package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/convergo/internal/reactor"
)

// Module is the interface that all reactor modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry maps reactor names to implementations.
type Registry struct {
	reactors map[string]reactor.Reactor
}

// New creates a registry populated by modules.
func New(modules ...Module) *Registry {
	r := &Registry{reactors: make(map[string]reactor.Reactor)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterReactor adds rc under its name.
func (r *Registry) RegisterReactor(rc reactor.Reactor) {
	if _, exists := r.reactors[rc.Name()]; exists {
		panic(fmt.Sprintf("reactor with name '%s' already registered", rc.Name()))
	}
	slog.Debug("Registering reactor.", "name", rc.Name())
	r.reactors[rc.Name()] = rc
}

// Reactor returns the reactor registered as name.
func (r *Registry) Reactor(name string) (reactor.Reactor, bool) {
	if r == nil {
		return nil, false
	}
	rc, ok := r.reactors[name]
	return rc, ok
}

// Names returns the sorted names of all registered reactors.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.reactors))
	for name := range r.reactors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
