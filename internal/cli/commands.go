package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/specialistvlad/convergo/internal/app"
	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/report"
	"gopkg.in/yaml.v3"
)

func (r *runner) applyCommand() *cobra.Command {
	var (
		nodeWorkers int
		itemWorkers int
		format      string
	)
	cmd := &cobra.Command{
		Use:   "apply [SELECTOR...]",
		Short: "Converge the selected nodes",
		Long: `Converge every node matched by the selectors. A selector is a node or a
group name; without selectors every node is converged.`,
		RunE: func(cmd *cobra.Command, selectors []string) error {
			switch format {
			case report.FormatText, report.FormatYAML, report.FormatJSON:
			default:
				return usageError("unknown format %q", format)
			}
			mutate := func(c *app.Config) {
				if cmd.Flags().Changed("node-workers") {
					c.NodeWorkers = nodeWorkers
				}
				if cmd.Flags().Changed("item-workers") {
					c.ItemWorkers = itemWorkers
				}
			}
			return r.withApp(cmd, mutate, func(ctx context.Context, a *app.App) error {
				a.StartHealthCheckServer(ctx)
				summary, err := a.Apply(ctx, selectors...)
				if summary == nil {
					return failure("apply: %v", err)
				}
				if rerr := report.Render(r.opts.Stdout, summary, format); rerr != nil {
					return rerr
				}
				if err != nil {
					return failure("apply interrupted: %v", err)
				}
				if !summary.Succeeded() {
					return failure("apply failed on %s", strings.Join(summary.Failed(), ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&nodeWorkers, "node-workers", 0, "Maximum number of nodes converged at once")
	cmd.Flags().IntVar(&itemWorkers, "item-workers", 0, "Maximum number of items applied at once on one node")
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatText, "Report format: text, yaml or json")
	return cmd
}

func (r *runner) metadataCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "metadata NODE",
		Short: "Print the fully computed metadata of a node",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, ap *app.App) error {
				md, err := ap.Repository().Metadata(ctx, a[0])
				if err != nil {
					return failure("%v", err)
				}
				return encode(r.opts.Stdout, metadata.Plain(md), format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatYAML, "Output format: yaml or json")
	return cmd
}

func (r *runner) itemsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "items NODE",
		Short: "List the items of a node in apply order",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, ap *app.App) error {
				g, err := ap.Repository().ItemGraph(ctx, a[0])
				if err != nil {
					return failure("%v", err)
				}
				tw := tabwriter.NewWriter(r.opts.Stdout, 0, 4, 2, ' ', 0)
				for _, it := range g.Items() {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, it.Bundle, itemNotes(it, g.PredecessorIDs(it.ID)))
				}
				return tw.Flush()
			})
		},
	}
}

func itemNotes(it *item.Item, preds []item.ID) string {
	var notes []string
	if len(preds) > 0 {
		ids := make([]string, len(preds))
		for i, p := range preds {
			ids[i] = p.String()
		}
		notes = append(notes, "after "+strings.Join(ids, ","))
	}
	if it.Triggered {
		notes = append(notes, "triggered")
	}
	if it.Skip {
		notes = append(notes, "skip")
	}
	if it.Err != nil {
		notes = append(notes, "error: "+it.Err.Error())
	}
	return strings.Join(notes, "; ")
}

func (r *runner) nodesCommand() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List nodes with their hostnames and groups",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, nil, func(_ context.Context, ap *app.App) error {
				repo := ap.Repository()
				names := repo.NodeNames()
				if group != "" {
					if !repo.HasGroup(group) {
						return failure("group %q is not declared", group)
					}
					names = repo.NodesInGroup(group)
				}
				tw := tabwriter.NewWriter(r.opts.Stdout, 0, 4, 2, ' ', 0)
				for _, name := range names {
					info, _ := repo.NodeInfo(name)
					fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, info.Hostname, strings.Join(info.Groups, ","))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "Only list members of this group")
	return cmd
}

func (r *runner) groupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List groups with their member count",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, nil, func(_ context.Context, ap *app.App) error {
				repo := ap.Repository()
				tw := tabwriter.NewWriter(r.opts.Stdout, 0, 4, 2, ' ', 0)
				for _, name := range repo.GroupNames() {
					fmt.Fprintf(tw, "%s\t%d\n", name, len(repo.NodesInGroup(name)))
				}
				return tw.Flush()
			})
		},
	}
}

func (r *runner) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run SELECTOR COMMAND",
		Short: "Run a shell command on the selected nodes",
		Long: `Run COMMAND on every node matched by SELECTOR (a node or group name)
and print each node's output. Exits non-zero if any node fails.`,
		Args: args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, a []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, ap *app.App) error {
				results, err := ap.RunCommand(ctx, a[1], a[0])
				if err != nil {
					return failure("%v", err)
				}
				var failed []string
				for _, res := range results {
					fmt.Fprintf(r.opts.Stdout, "%s: exit %d\n", res.Node, res.ReturnCode)
					writeIndented(r.opts.Stdout, res.Stdout)
					writeIndented(r.opts.Stdout, res.Stderr)
					if res.Error != "" {
						fmt.Fprintf(r.opts.Stdout, "  error: %s\n", res.Error)
					}
					if res.Error != "" || res.ReturnCode != 0 {
						failed = append(failed, res.Node)
					}
				}
				if len(failed) > 0 {
					return failure("command failed on %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func (r *runner) downloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download NODE REMOTE_PATH LOCAL_PATH",
		Short: "Copy a file from a node",
		Args:  args(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, a []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, ap *app.App) error {
				if err := ap.Download(ctx, a[0], a[1], a[2]); err != nil {
					return failure("download: %v", err)
				}
				return nil
			})
		},
	}
}

func writeIndented(w io.Writer, s string) {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return
	}
	for _, line := range strings.Split(s, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func encode(w io.Writer, v any, format string) error {
	switch format {
	case report.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case report.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return usageError("unknown format %q", format)
}
