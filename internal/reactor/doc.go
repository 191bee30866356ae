// Package reactor computes a node's effective metadata.
//
// # Why Reactors Exist
//
// Static metadata cannot express values derived from other values (a
// listen address built from a port, a hosts file built from every node's
// address). Reactors are functions from the current metadata of a node to a
// partial metadata tree. The Engine runs all reactors repeatedly, merging
// their partial outputs over the static layers, until a pass changes
// nothing.
//
// # Outcomes of a Reactor Call
//
//   - A Map: the reactor's contribution for this pass.
//   - ErrDecline, or a *metadata.MissingKeyError: the inputs the reactor
//     needs are not available yet. Its previous contribution is kept.
//   - ErrDoNotRunAgain: the reactor is finished for this computation.
//   - Any other error: the computation fails with a *ReactorError.
//
// Two reactors writing different scalar values to the same key in one pass
// is a *ConflictError. Exceeding the iteration ceiling is a
// *NonconvergenceError, and reactors that are still declining once
// everything else has settled produce a *PersistentDeclineError.
package reactor
