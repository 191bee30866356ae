/*
Package metadata holds the value model for node metadata: nested maps of
scalars, sequences and sets, plus the rules used to layer them.

# Value Model

Every value stored in a Map is one of:

  - nil, string, bool, int64, float64
  - []any (an ordered sequence)
  - Set (an unordered collection of scalars)
  - Map (a nested mapping keyed by strings)

Normalize converts arbitrary Go values (typed slices, int, map[string]string,
...) into that model so equality and merging never depend on the concrete Go
type a producer happened to use.

# Layering

Overlay merges one layer into another: maps recurse, sets are unioned, a
sequence is unioned only when its path is declared in Policy.Combine, and
everything else is replaced by the upper layer.

# Access

Accessor gives typed, read-only access by path and returns MissingKeyError for
absent keys. Reactors and attribute resolvers treat that error as "not
available yet" rather than as a failure.
*/
package metadata
