// Package repository is the validated, queryable form of a loaded
// repository.
//
// Nodes, groups and bundles live in index-based arenas; membership and
// bundle assignment are resolved once when the repository is built. Node
// metadata is computed on demand, at most once per node until Invalidate is
// called, and shared between concurrent callers.
package repository
