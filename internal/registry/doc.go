// Package registry holds the metadata reactors compiled into the binary.
//
// Bundles refer to these reactors by name. Modules register themselves at
// startup; a duplicate name is a programming error and panics, so the set a
// repository sees is fixed before any declaration is loaded.
package registry
