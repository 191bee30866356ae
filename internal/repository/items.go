package repository

import (
	"context"
	"fmt"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/itemgraph"
	"github.com/specialistvlad/convergo/internal/metadata"
)

// Declarations returns the item declarations of every bundle of the node.
// Two bundles declaring the same item id is a ConfigurationError.
func (r *Repository) Declarations(name string) ([]*item.Declaration, error) {
	i, ok := r.nodeIndex[name]
	if !ok {
		return nil, configErr("node", name, "not declared")
	}
	owner := map[item.ID]string{}
	var out []*item.Declaration
	for _, bi := range r.nodes[i].bundles {
		b := r.bundles[bi]
		for _, d := range b.Items {
			if prev, dup := owner[d.ID]; dup {
				return nil, configErr("node", name, "item %s is declared by bundles %q and %q", d.ID, prev, b.Name)
			}
			owner[d.ID] = b.Name
			out = append(out, d)
		}
	}
	return out, nil
}

// ItemGraph computes the node's metadata and builds its item graph.
func (r *Repository) ItemGraph(ctx context.Context, name string) (*itemgraph.Graph, error) {
	decls, err := r.Declarations(name)
	if err != nil {
		return nil, err
	}
	md, err := r.Metadata(ctx, name)
	if err != nil {
		return nil, err
	}
	info, _ := r.NodeInfo(name)
	var opts []itemgraph.Option
	if r.precedence != nil {
		opts = append(opts, itemgraph.WithPrecedence(*r.precedence))
	}
	return itemgraph.Build(ctx, info, decls, md, opts...)
}

// GetItem returns one item of the node with its attributes resolved.
// Attribute failures are reported on the item's Err field.
func (r *Repository) GetItem(ctx context.Context, nodeName, id string) (*item.Item, error) {
	parsed, err := item.ParseID(id)
	if err != nil {
		return nil, err
	}
	decls, err := r.Declarations(nodeName)
	if err != nil {
		return nil, err
	}
	for _, d := range decls {
		if d.ID != parsed {
			continue
		}
		md, err := r.Metadata(ctx, nodeName)
		if err != nil {
			return nil, err
		}
		info, _ := r.NodeInfo(nodeName)
		return d.Instantiate(metadata.NewAccessor(md), info), nil
	}
	return nil, fmt.Errorf("node %q has no item %s", nodeName, parsed)
}
