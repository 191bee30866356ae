package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/reactor"
	"github.com/zclconf/go-cty/cty"
)

// hclReactor is a reactor declared inline in a bundle. Its metadata
// expression is evaluated against the node's current metadata on every pass.
type hclReactor struct {
	name     string
	when     hcl.Expression
	metadata hcl.Expression
	refs     [][]string
	// source is the text of the expressions, taken from the file.
	source string
}

var _ reactor.Fingerprinter = (*hclReactor)(nil)

func newHCLReactor(bundle, name string, rb *reactorBlock, src []byte) (*hclReactor, hcl.Diagnostics) {
	diags := checkVariables(rb.Metadata)
	r := &hclReactor{
		name:     bundle + "/" + name,
		metadata: rb.Metadata,
		source:   "metadata=" + string(rb.Metadata.Range().SliceBytes(src)),
	}
	exprs := []hcl.Expression{rb.Metadata}
	if isExprDefined(rb.When) {
		diags = append(diags, checkVariables(rb.When)...)
		r.when = rb.When
		r.source += "\x00when=" + string(rb.When.Range().SliceBytes(src))
		exprs = append(exprs, rb.When)
	}
	var vars []hcl.Traversal
	for _, e := range exprs {
		vars = append(vars, e.Variables()...)
	}
	r.refs = metadataRefs(vars)
	return r, diags
}

func (r *hclReactor) Name() string { return r.name }

func (r *hclReactor) Fingerprint() string { return r.source }

func (r *hclReactor) React(ctx context.Context, in reactor.Input) (metadata.Map, error) {
	ectx, err := nodeContext(in.Metadata.Map(), in.Node)
	if err != nil {
		return nil, err
	}

	if r.when != nil {
		val, diags := r.when.Value(ectx)
		if diags.HasErrors() {
			return nil, r.evalError(diags, in.Metadata)
		}
		if val.IsNull() || !val.Type().Equals(cty.Bool) {
			return nil, fmt.Errorf("reactor %s: when must be a bool", r.name)
		}
		if val.False() {
			return metadata.Map{}, nil
		}
	}

	val, diags := r.metadata.Value(ectx)
	if diags.HasErrors() {
		return nil, r.evalError(diags, in.Metadata)
	}
	out, err := metadata.MapFromCty(val)
	if err != nil {
		return nil, fmt.Errorf("reactor %s: %w", r.name, err)
	}
	return out, nil
}

// evalError turns a reference to metadata that is not there yet into a
// decline. Anything else is a real failure.
func (r *hclReactor) evalError(diags hcl.Diagnostics, md metadata.Accessor) error {
	if path, ok := missingKey(diags, r.refs, md); ok {
		return &metadata.MissingKeyError{Path: path}
	}
	return fmt.Errorf("reactor %s: %w", r.name, diags)
}
