package itemgraph

// Rule orders every item of type Before ahead of every item of type After.
type Rule struct {
	Before string
	After  string
}

// Precedence is a versioned table of implicit ordering rules between item
// types.
type Precedence struct {
	Version int
	Rules   []Rule
}

// PrecedenceV1 is the default table.
var PrecedenceV1 = Precedence{
	Version: 1,
	Rules: []Rule{
		{Before: "pkg_apt", After: "directory"},
		{Before: "pkg_apt", After: "file"},
		{Before: "pkg_apt", After: "svc_systemd"},
		{Before: "directory", After: "file"},
		{Before: "file", After: "svc_systemd"},
	},
}
