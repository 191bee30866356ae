// Package itemgraph builds the per-node dependency graph of items.
//
// # Why Item Graph Exists
//
// Items must be applied in an order that respects their declared
// relations (a package before its config file, the config file before the
// service). The graph captures those relations, adds the implicit edges of
// the type precedence table, and guarantees acyclicity before anything is
// applied.
//
// # Edges
//
//   - needs: the item runs after every selected item.
//   - needed_by: every selected item runs after this item (the reverse of
//     needs; both forms produce the same edge).
//   - precedence: items of a type listed before another type in the
//     precedence table run first, unless an explicit relation already
//     orders the pair in either direction.
//   - triggered items: an item with `triggered = true` also runs after
//     each item that triggers it.
//
// Triggers themselves are not ordering edges; they are kept alongside the
// graph for the convergence engine.
//
// The graph stores items in an arena and refers to them by index, so the
// relation lists never hold pointers back into the graph.
package itemgraph
