// Package app wires the repository, the convergence engine and the chosen
// backends into one application, decoupled from any specific entrypoint like
// a CLI or server.
package app
