// Package converge applies a node's item graph through a transport.
//
// One coordinating goroutine owns the scheduler and the result store. Ready
// items are handed to a fixed pool of workers over a buffered channel; the
// workers perform the probe and fix calls and send outcomes back. Only the
// transport calls run outside the coordinator.
package converge
