// Package hcl_adapter loads a repository declared in HCL files into the
// format-agnostic config.Model.
//
// Every *.hcl file below the given paths may contain any mix of top-level
// `node`, `group`, `bundle` and `metadata_policy` blocks. Node, group and
// bundle-default metadata must be static. Item attributes and inline reactors
// may reference the node's effective metadata through the `metadata` and
// `node` variables; such expressions are kept unevaluated and resolved later,
// once the metadata is known.
package hcl_adapter
