package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/convergo/internal/config"
	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/fsutil"
	"github.com/specialistvlad/convergo/internal/item"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL repository loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file below paths and translates the blocks into a
// config.Model. Paths that do not exist are skipped.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	model := &config.Model{}
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		if diags := l.loadFile(f.Body, f.Bytes, model); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
	}

	logger.Debug("HCL loading complete.",
		"nodes", len(model.Nodes),
		"groups", len(model.Groups),
		"bundles", len(model.Bundles),
	)
	return model, nil
}

func (l *Loader) loadFile(body hcl.Body, src []byte, model *config.Model) hcl.Diagnostics {
	content, diags := body.Content(rootSchema)
	if diags.HasErrors() {
		return diags
	}
	for _, block := range content.Blocks {
		switch block.Type {
		case "node":
			n, d := translateNode(block)
			diags = append(diags, d...)
			if n != nil {
				model.Nodes = append(model.Nodes, n)
			}
		case "group":
			g, d := translateGroup(block)
			diags = append(diags, d...)
			if g != nil {
				model.Groups = append(model.Groups, g)
			}
		case "bundle":
			b, d := translateBundle(block, src)
			diags = append(diags, d...)
			if b != nil {
				model.Bundles = append(model.Bundles, b)
			}
		case "metadata_policy":
			var pb policyBlock
			d := gohcl.DecodeBody(block.Body, staticContext(), &pb)
			diags = append(diags, d...)
			for _, path := range pb.Combine {
				if !slices.Contains(model.Policy.Combine, path) {
					model.Policy.Combine = append(model.Policy.Combine, path)
				}
			}
		}
	}
	return diags
}

func source(block *hcl.Block) string {
	return fmt.Sprintf("%s:%d", block.DefRange.Filename, block.DefRange.Start.Line)
}

func translateNode(block *hcl.Block) (*config.NodeDecl, hcl.Diagnostics) {
	var nb nodeBlock
	diags := gohcl.DecodeBody(block.Body, staticContext(), &nb)
	if diags.HasErrors() {
		return nil, diags
	}
	name := block.Labels[0]
	md, d := staticMetadata(nb.Metadata, fmt.Sprintf("metadata of node %q", name))
	diags = append(diags, d...)
	return &config.NodeDecl{
		Name:     name,
		Hostname: nb.Hostname,
		Groups:   nb.Groups,
		Bundles:  nb.Bundles,
		Metadata: md,
		Source:   source(block),
	}, diags
}

func translateGroup(block *hcl.Block) (*config.GroupDecl, hcl.Diagnostics) {
	var gb groupBlock
	diags := gohcl.DecodeBody(block.Body, staticContext(), &gb)
	if diags.HasErrors() {
		return nil, diags
	}
	name := block.Labels[0]
	md, d := staticMetadata(gb.Metadata, fmt.Sprintf("metadata of group %q", name))
	diags = append(diags, d...)
	return &config.GroupDecl{
		Name:           name,
		Members:        gb.Members,
		MemberPatterns: gb.MemberPatterns,
		Subgroups:      gb.Subgroups,
		Bundles:        gb.Bundles,
		Metadata:       md,
		Source:         source(block),
	}, diags
}

func translateBundle(block *hcl.Block, src []byte) (*config.BundleDecl, hcl.Diagnostics) {
	var bb bundleBlock
	diags := gohcl.DecodeBody(block.Body, staticContext(), &bb)
	if diags.HasErrors() {
		return nil, diags
	}
	name := block.Labels[0]
	defaults, d := staticMetadata(bb.Defaults, fmt.Sprintf("defaults of bundle %q", name))
	diags = append(diags, d...)

	b := &config.BundleDecl{
		Name:         name,
		Defaults:     defaults,
		ReactorNames: bb.Reactors,
		Source:       source(block),
	}

	content, d := bb.Remain.Content(bundleBlocksSchema)
	diags = append(diags, d...)
	if content == nil {
		return b, diags
	}
	for _, nested := range content.Blocks {
		switch nested.Type {
		case "reactor":
			var rb reactorBlock
			if d := gohcl.DecodeBody(nested.Body, nil, &rb); d.HasErrors() {
				diags = append(diags, d...)
				continue
			}
			r, d := newHCLReactor(name, nested.Labels[0], &rb, src)
			diags = append(diags, d...)
			b.Reactors = append(b.Reactors, r)
		case "item":
			decl, d := translateItem(name, nested)
			diags = append(diags, d...)
			if decl != nil {
				b.Items = append(b.Items, decl)
			}
		}
	}
	return b, diags
}

func translateItem(bundle string, block *hcl.Block) (*item.Declaration, hcl.Diagnostics) {
	id, err := item.ParseID(block.Labels[0] + ":" + block.Labels[1])
	if err != nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid item identifier",
			Detail:   err.Error(),
			Subject:  block.DefRange.Ptr(),
		}}
	}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	decl := &item.Declaration{
		ID:         id,
		Bundle:     bundle,
		Source:     source(block),
		Attributes: map[string]item.Attr{},
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attr := attrs[name]
		if slices.Contains(staticItemAttrs, name) {
			values, d := staticStrings(attr.Expr, fmt.Sprintf("%q attribute of %s", name, id))
			diags = append(diags, d...)
			if d.HasErrors() {
				continue
			}
			if name == attrTags {
				decl.Tags = values
				continue
			}
			sels, d := selectors(values, attr)
			diags = append(diags, d...)
			switch name {
			case attrNeeds:
				decl.Needs = sels
			case attrNeededBy:
				decl.NeededBy = sels
			case attrTriggers:
				decl.Triggers = sels
			case attrTriggeredBy:
				decl.TriggeredBy = sels
			}
			continue
		}
		a, d := itemAttr(attr.Expr)
		diags = append(diags, d...)
		if a != nil {
			decl.Attributes[name] = a
		}
	}
	return decl, diags
}

func selectors(values []string, attr *hcl.Attribute) ([]item.Selector, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	out := make([]item.Selector, 0, len(values))
	for _, v := range values {
		sel, err := item.ParseSelector(v)
		if err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid selector",
				Detail:   err.Error(),
				Subject:  attr.Expr.Range().Ptr(),
			})
			continue
		}
		out = append(out, sel)
	}
	return out, diags
}

// findHCLFiles returns every .hcl file below the given paths, sorted.
func findHCLFiles(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if fsutil.HasExtension(path, ".hcl") {
				add(path)
			}
			continue
		}
		files, err := fsutil.FindFiles(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error walking %s: %w", path, err)
		}
		for _, f := range files {
			add(f)
		}
	}
	sort.Strings(out)
	return out, nil
}
