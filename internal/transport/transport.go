package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Target identifies the machine a command is sent to.
type Target struct {
	Node     string
	Hostname string
}

// RunResult is the outcome of one remote command.
type RunResult struct {
	Stdout     []byte
	Stderr     []byte
	ReturnCode int
	Duration   time.Duration
}

// Transport runs commands and transfers files on a target.
type Transport interface {
	// Run executes command through a POSIX shell on the target. A non-zero
	// return code is a *RemoteExecutionError unless MayFail is given.
	Run(ctx context.Context, target Target, command string, opts ...RunOption) (*RunResult, error)
	// Upload copies a local file to remotePath and applies mode, owner and
	// group when they are not empty.
	Upload(ctx context.Context, target Target, localPath, remotePath string, attrs FileAttrs) error
	// Download copies remotePath to a local file.
	Download(ctx context.Context, target Target, remotePath, localPath string) error
}

// FileAttrs are optional ownership and permission settings for Upload.
type FileAttrs struct {
	Mode  string
	Owner string
	Group string
}

// RunOptions is the resolved form of a Run call's options.
type RunOptions struct {
	MayFail bool
	Timeout time.Duration
}

// RunOption customizes a single Run call.
type RunOption func(*RunOptions)

// MayFail makes a non-zero return code a normal result instead of an error.
func MayFail() RunOption {
	return func(o *RunOptions) {
		o.MayFail = true
	}
}

// WithTimeout bounds a single command.
func WithTimeout(d time.Duration) RunOption {
	return func(o *RunOptions) {
		o.Timeout = d
	}
}

// CollectOptions applies opts in order. Transport implementations outside
// this package use it to honour the same options.
func CollectOptions(opts ...RunOption) RunOptions {
	var o RunOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RemoteExecutionError reports a command that failed on, or could not
// reach, its target.
type RemoteExecutionError struct {
	Node       string
	Command    string
	ReturnCode int
	Stderr     string
	// Connectivity is set when the target could not be reached at all.
	Connectivity bool
	Err          error
}

func (e *RemoteExecutionError) Error() string {
	var b strings.Builder
	if e.Connectivity {
		fmt.Fprintf(&b, "cannot reach node %q", e.Node)
	} else {
		fmt.Fprintf(&b, "command %q failed on node %q with return code %d", e.Command, e.Node, e.ReturnCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, ": %s", stderr)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteExecutionError) Unwrap() error {
	return e.Err
}

// AsRemoteExecutionError unwraps err into a *RemoteExecutionError.
func AsRemoteExecutionError(err error) (*RemoteExecutionError, bool) {
	var remoteErr *RemoteExecutionError
	if errors.As(err, &remoteErr) {
		return remoteErr, true
	}
	return nil, false
}

// Quote returns s quoted for a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@%+,", r))
	}) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// AttrCommands returns the shell commands applying attrs to path.
func AttrCommands(path string, attrs FileAttrs) []string {
	var cmds []string
	if attrs.Mode != "" {
		cmds = append(cmds, "chmod "+Quote(attrs.Mode)+" "+Quote(path))
	}
	switch {
	case attrs.Owner != "" && attrs.Group != "":
		cmds = append(cmds, "chown "+Quote(attrs.Owner+":"+attrs.Group)+" "+Quote(path))
	case attrs.Owner != "":
		cmds = append(cmds, "chown "+Quote(attrs.Owner)+" "+Quote(path))
	case attrs.Group != "":
		cmds = append(cmds, "chgrp "+Quote(attrs.Group)+" "+Quote(path))
	}
	return cmds
}
