// Package cli builds the convergo command tree. It turns flags, the settings
// file and the environment into an app.Config, runs one operation against
// the loaded repository, and maps failures onto process exit codes through
// ExitError.
package cli
