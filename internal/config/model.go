package config

import (
	"context"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/reactor"
)

// Loader is the interface for a format-specific repository loader.
type Loader interface {
	// Load reads declarations from the given paths and translates them into
	// the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Model is the unified, format-agnostic representation of a repository.
type Model struct {
	Nodes   []*NodeDecl
	Groups  []*GroupDecl
	Bundles []*BundleDecl
	Policy  metadata.Policy
}

// NodeDecl is a declared node.
type NodeDecl struct {
	Name string
	// Hostname defaults to Name.
	Hostname string
	Groups   []string
	Bundles  []string
	Metadata metadata.Map
	Source   string
}

// GroupDecl is a declared group.
type GroupDecl struct {
	Name    string
	Members []string
	// MemberPatterns are regular expressions matched against node names.
	MemberPatterns []string
	Subgroups      []string
	Bundles        []string
	Metadata       metadata.Map
	Source         string
}

// BundleDecl is a declared bundle.
type BundleDecl struct {
	Name string
	// Defaults is the lowest-priority metadata layer of every node that has
	// the bundle.
	Defaults metadata.Map
	// ReactorNames refers to reactors compiled into the binary.
	ReactorNames []string
	// Reactors are defined inline by the bundle.
	Reactors []reactor.Reactor
	Items    []*item.Declaration
	Source   string
}
