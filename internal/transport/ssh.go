package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/convergo/internal/ctxlog"
)

// sshConnectivityCode is the exit status ssh uses for its own failures.
const sshConnectivityCode = 255

// SSHConfig configures the SSH transport.
type SSHConfig struct {
	User           string
	Port           int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	SSHBinary      string
	SCPBinary      string
	// Sudo wraps every command in `sudo -n sh -c`.
	Sudo bool
	// ExtraArgs are passed to both ssh and scp before the destination.
	ExtraArgs []string
}

// SSH is a Transport that shells out to ssh and scp.
type SSH struct {
	cfg    SSHConfig
	runner CommandRunner
}

// NewSSH creates an SSH transport. A nil runner executes real processes.
func NewSSH(cfg SSHConfig, runner CommandRunner) *SSH {
	if cfg.SSHBinary == "" {
		cfg.SSHBinary = "ssh"
	}
	if cfg.SCPBinary == "" {
		cfg.SCPBinary = "scp"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &SSH{cfg: cfg, runner: runner}
}

func (s *SSH) host(target Target) string {
	host := target.Hostname
	if host == "" {
		host = target.Node
	}
	if s.cfg.User != "" {
		return s.cfg.User + "@" + host
	}
	return host
}

func (s *SSH) commonArgs() []string {
	args := []string{"-o", "BatchMode=yes"}
	if s.cfg.ConnectTimeout > 0 {
		args = append(args, "-o", "ConnectTimeout="+strconv.Itoa(int(s.cfg.ConnectTimeout.Seconds())))
	}
	return append(args, s.cfg.ExtraArgs...)
}

func (s *SSH) wrap(command string) string {
	if s.cfg.Sudo {
		return "sudo -n sh -c " + Quote(command)
	}
	return command
}

// Run implements Transport.
func (s *SSH) Run(ctx context.Context, target Target, command string, opts ...RunOption) (*RunResult, error) {
	o := CollectOptions(opts...)
	if o.Timeout == 0 {
		o.Timeout = s.cfg.CommandTimeout
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	args := s.commonArgs()
	if s.cfg.Port > 0 {
		args = append(args, "-p", strconv.Itoa(s.cfg.Port))
	}
	args = append(args, s.host(target), s.wrap(command))

	ctxlog.FromContext(ctx).Debug("Running remote command.", "node", target.Node, "command", command)
	start := time.Now()
	stdout, stderr, code, err := s.runner.Run(ctx, s.cfg.SSHBinary, args...)
	return finish(target, command, o, start, stdout, stderr, code, err, true)
}

// Upload implements Transport. The file is copied to a temporary path and
// moved into place so a partial transfer never replaces the target.
func (s *SSH) Upload(ctx context.Context, target Target, localPath, remotePath string, attrs FileAttrs) error {
	tmp := "/tmp/convergo-" + uuid.NewString()

	args := s.commonArgs()
	if s.cfg.Port > 0 {
		args = append(args, "-P", strconv.Itoa(s.cfg.Port))
	}
	args = append(args, localPath, s.host(target)+":"+tmp)

	start := time.Now()
	stdout, stderr, code, err := s.runner.Run(ctx, s.cfg.SCPBinary, args...)
	if _, err := finish(target, "scp "+localPath, RunOptions{}, start, stdout, stderr, code, err, true); err != nil {
		return err
	}

	cmds := append([]string{"mv " + Quote(tmp) + " " + Quote(remotePath)}, AttrCommands(remotePath, attrs)...)
	if _, err := s.Run(ctx, target, strings.Join(cmds, " && ")); err != nil {
		_, _ = s.Run(ctx, target, "rm -f "+Quote(tmp), MayFail())
		return err
	}
	return nil
}

// Download implements Transport.
func (s *SSH) Download(ctx context.Context, target Target, remotePath, localPath string) error {
	args := s.commonArgs()
	if s.cfg.Port > 0 {
		args = append(args, "-P", strconv.Itoa(s.cfg.Port))
	}
	args = append(args, s.host(target)+":"+remotePath, localPath)

	start := time.Now()
	stdout, stderr, code, err := s.runner.Run(ctx, s.cfg.SCPBinary, args...)
	_, err = finish(target, "scp "+remotePath, RunOptions{}, start, stdout, stderr, code, err, true)
	return err
}

// finish turns a finished process into a RunResult or RemoteExecutionError.
func finish(target Target, command string, o RunOptions, start time.Time, stdout, stderr []byte, code int, err error, remote bool) (*RunResult, error) {
	res := &RunResult{Stdout: stdout, Stderr: stderr, ReturnCode: code, Duration: time.Since(start)}
	if err != nil {
		return res, &RemoteExecutionError{
			Node: target.Node, Command: command, ReturnCode: code, Stderr: string(stderr),
			Err: fmt.Errorf("running command: %w", err),
		}
	}
	if remote && code == sshConnectivityCode {
		return res, &RemoteExecutionError{
			Node: target.Node, Command: command, ReturnCode: code, Stderr: string(stderr), Connectivity: true,
		}
	}
	if code != 0 && !o.MayFail {
		return res, &RemoteExecutionError{Node: target.Node, Command: command, ReturnCode: code, Stderr: string(stderr)}
	}
	return res, nil
}
