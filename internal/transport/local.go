package transport

import (
	"context"
	"strings"
	"time"
)

// Local is a Transport that runs everything on the current host.
type Local struct {
	runner  CommandRunner
	timeout time.Duration
}

// NewLocal creates a local transport. A nil runner executes real processes.
func NewLocal(runner CommandRunner, commandTimeout time.Duration) *Local {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Local{runner: runner, timeout: commandTimeout}
}

// Run implements Transport.
func (l *Local) Run(ctx context.Context, target Target, command string, opts ...RunOption) (*RunResult, error) {
	o := CollectOptions(opts...)
	if o.Timeout == 0 {
		o.Timeout = l.timeout
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	start := time.Now()
	stdout, stderr, code, err := l.runner.Run(ctx, "sh", "-c", command)
	return finish(target, command, o, start, stdout, stderr, code, err, false)
}

// Upload implements Transport.
func (l *Local) Upload(ctx context.Context, target Target, localPath, remotePath string, attrs FileAttrs) error {
	cmds := append([]string{"cp " + Quote(localPath) + " " + Quote(remotePath)}, AttrCommands(remotePath, attrs)...)
	_, err := l.Run(ctx, target, strings.Join(cmds, " && "))
	return err
}

// Download implements Transport.
func (l *Local) Download(ctx context.Context, target Target, remotePath, localPath string) error {
	_, err := l.Run(ctx, target, "cp "+Quote(remotePath)+" "+Quote(localPath))
	return err
}
