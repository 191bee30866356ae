// Package config defines the format-agnostic model of a repository: nodes,
// groups, bundles with their items and reactors, and the metadata merge
// policy. Concrete loaders, such as the HCL one in hcl_adapter, translate
// their source files into this model; the repository package validates it
// and answers queries about it.
package config
