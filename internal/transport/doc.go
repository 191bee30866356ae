// Package transport runs commands on nodes and moves files to and from
// them.
//
// Two implementations are provided: SSH, which shells out to the system
// ssh and scp binaries, and Local, which runs commands on the current host
// (useful for bootstrapping the machine convergo runs on, and for tests).
// Both sit on top of a CommandRunner so the process boundary can be
// replaced in tests.
package transport
