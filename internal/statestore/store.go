// Package statestore defines the interface for recording the outcome of each
// item during one convergence run of a node.
//
// # Why State Store Exists
//
// The store separates **mutable run state** (terminal state, captured output,
// errors) from the **immutable item graph** built by itemgraph. The graph is
// shared read-only by the coordinator and its workers; the store is written
// only by the coordinator and read when the report is assembled.
//
// # Lifecycle and Usage
//
// A store is:
//  1. **Created** once per node run (ephemeral, never persisted)
//  2. **Written** by the convergence coordinator whenever an item reaches a
//     terminal state, including collateral Aborted and Skipped items
//  3. **Read** once at the end of the run to build the node report
//  4. **Discarded** with the run
//
// Items without a recorded result are Pending.
package statestore

import (
	"context"
	"time"

	"github.com/specialistvlad/convergo/internal/item"
)

// Result is the recorded outcome of one item.
type Result struct {
	State item.State
	// Output holds the commands run for the item and what they printed.
	Output string
	// Err is the failure or the reason for Skipped and Aborted.
	Err      error
	Started  time.Time
	Duration time.Duration
	// Reapplied is set when a trigger re-applied the item after it had
	// already finished.
	Reapplied bool
}

// Store records item results for one node run.
//
// Implementations MUST be safe for concurrent use: the coordinator writes
// while report rendering or metrics may read.
type Store interface {
	// Set replaces the result of id.
	Set(ctx context.Context, id item.ID, r Result) error
	// Get returns the result of id, or a Pending result if none was set.
	Get(ctx context.Context, id item.ID) (Result, error)
	// All returns a snapshot of every recorded result.
	All(ctx context.Context) (map[item.ID]Result, error)
}
