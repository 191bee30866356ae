// Package scheduler decides which items of a node's graph are ready to run.
//
// A Scheduler is owned by a single coordinating goroutine. It tracks how
// many unfinished predecessors each item still has, which items a trigger
// has marked or queued for re-application, and which concurrency-blocking
// item types are running. It performs no I/O; the convergence engine hands
// its Dispatches to workers and reports back through Finish.
package scheduler
