package hcl_adapter

import (
	"github.com/hashicorp/hcl/v2"
)

// rootSchema describes the top-level blocks of a repository file.
var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "node", LabelNames: []string{"name"}},
		{Type: "group", LabelNames: []string{"name"}},
		{Type: "bundle", LabelNames: []string{"name"}},
		{Type: "metadata_policy"},
	},
}

// bundleBlocksSchema describes the nested blocks of a bundle.
var bundleBlocksSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "reactor", LabelNames: []string{"name"}},
		{Type: "item", LabelNames: []string{"type", "name"}},
	},
}

type nodeBlock struct {
	Hostname string         `hcl:"hostname,optional"`
	Groups   []string       `hcl:"groups,optional"`
	Bundles  []string       `hcl:"bundles,optional"`
	Metadata hcl.Expression `hcl:"metadata,optional"`
}

type groupBlock struct {
	Members        []string       `hcl:"members,optional"`
	MemberPatterns []string       `hcl:"member_patterns,optional"`
	Subgroups      []string       `hcl:"subgroups,optional"`
	Bundles        []string       `hcl:"bundles,optional"`
	Metadata       hcl.Expression `hcl:"metadata,optional"`
}

type bundleBlock struct {
	Defaults hcl.Expression `hcl:"defaults,optional"`
	Reactors []string       `hcl:"reactors,optional"`
	Remain   hcl.Body       `hcl:",remain"`
}

type reactorBlock struct {
	When     hcl.Expression `hcl:"when,optional"`
	Metadata hcl.Expression `hcl:"metadata"`
}

type policyBlock struct {
	Combine []string `hcl:"combine,optional"`
}

// Item attributes that must be static string lists.
const (
	attrNeeds       = "needs"
	attrNeededBy    = "needed_by"
	attrTriggers    = "triggers"
	attrTriggeredBy = "triggered_by"
	attrTags        = "tags"
)

var staticItemAttrs = []string{attrNeeds, attrNeededBy, attrTriggers, attrTriggeredBy, attrTags}
