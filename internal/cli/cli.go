package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/specialistvlad/convergo/internal/app"
	"github.com/specialistvlad/convergo/internal/hcl_adapter"
)

// Exit codes used by ExitError.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...any) error {
	return &ExitError{Code: ExitFailure, Message: fmt.Sprintf(format, args...)}
}

// Options carries what the command tree needs from its host process.
type Options struct {
	Stdout io.Writer
	// Stderr receives logs.
	Stderr io.Writer
	// Environ is consulted for CONVERGO_* settings; nil means none.
	Environ []string
	// AppOptions are passed to every app.NewApp call.
	AppOptions []app.Option
}

type globalFlags struct {
	repo      string
	config    string
	logLevel  string
	logFormat string
}

// NewRootCommand builds the convergo command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "convergo",
		Short: "Converge nodes to the state declared in a repository",
		Long: `convergo reads a repository of nodes, groups and bundles, computes each
node's metadata, and converges the node's items over SSH or locally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&g.repo, "repo", "r", "", "Path to the repository (a .hcl file or a directory)")
	pf.StringVarP(&g.config, "config", "c", "", "Path to a settings file (.yaml, .yml or .toml)")
	pf.StringVar(&g.logLevel, "log-level", "", "Logging level: debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log output format: text or json")

	r := &runner{opts: opts, flags: g}
	root.AddCommand(
		r.applyCommand(),
		r.metadataCommand(),
		r.itemsCommand(),
		r.nodesCommand(),
		r.groupsCommand(),
		r.runCommand(),
		r.downloadCommand(),
	)
	return root
}

// Execute runs the command tree with args. Errors that are not already an
// ExitError are reported as failures, except unknown subcommands.
func Execute(ctx context.Context, args []string, opts Options) error {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return &ExitError{Code: ExitFailure, Message: err.Error()}
}

// runner holds the state shared by subcommands.
type runner struct {
	opts  Options
	flags *globalFlags
}

// config resolves settings in increasing priority: defaults, settings file,
// environment, flags. mutate applies command-specific flags.
func (r *runner) config(mutate func(*app.Config)) (*app.Config, error) {
	cfg, err := app.LoadConfig(r.flags.config, r.opts.Environ)
	if err != nil {
		return nil, usageError("%v", err)
	}
	if r.flags.repo != "" {
		cfg.RepoPath = r.flags.repo
	}
	if r.flags.logLevel != "" {
		cfg.LogLevel = r.flags.logLevel
	}
	if r.flags.logFormat != "" {
		cfg.LogFormat = r.flags.logFormat
	}
	if mutate != nil {
		mutate(&cfg)
	}
	valid, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError("%v", err)
	}
	return valid, nil
}

// open loads the repository and returns the application. The caller must
// Close it.
func (r *runner) open(ctx context.Context, mutate func(*app.Config)) (*app.App, error) {
	cfg, err := r.config(mutate)
	if err != nil {
		return nil, err
	}
	a, err := app.NewApp(ctx, r.opts.Stderr, cfg, hcl_adapter.NewLoader(), r.opts.AppOptions...)
	if err != nil {
		return nil, usageError("%v", err)
	}
	return a, nil
}

// withApp opens the application, runs fn and closes it.
func (r *runner) withApp(cmd *cobra.Command, mutate func(*app.Config), fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := r.open(ctx, mutate)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
	return fn(a.Context(ctx), a)
}

// args wraps a positional argument validator so that violations exit with
// the usage code.
func args(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := validate(cmd, a); err != nil {
			return usageError("%s: %v", cmd.CommandPath(), err)
		}
		return nil
	}
}
