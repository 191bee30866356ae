package transport

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// waitDelay bounds how long a cancelled process may keep its output pipes
// open through orphaned children.
const waitDelay = time.Second

// CommandRunner abstracts local process execution.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, code int, err error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

// Run starts name with args and waits for it. A process that ran and exited
// non-zero returns its exit code and a nil error; err is reserved for
// processes that could not be started or were interrupted.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.Bytes(), stderr.Bytes(), -1, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
	}

	code := 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		code = 127
	}
	return stdout.Bytes(), stderr.Bytes(), code, err
}
