package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/specialistvlad/convergo/internal/item"
	"gopkg.in/yaml.v3"
)

// Formats accepted by Render.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Render writes s to w in format.
func Render(w io.Writer, s *Summary, format string) error {
	switch format {
	case "", FormatText:
		return renderText(w, s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encoding report as yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encoding report as json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown report format %q", format)
}

func renderText(w io.Writer, s *Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range s.Nodes {
		status := "converged"
		if !n.Succeeded() {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "node %s (%s, run %s, %s)\n", n.Node, status, n.RunID, n.Finished.Sub(n.Started).Round(time.Millisecond))
		if n.Error != "" {
			fmt.Fprintf(tw, "  error: %s\n", n.Error)
		}
		for _, it := range n.Items {
			line := fmt.Sprintf("  %s\t%s\t%s", it.ID, it.State, it.Duration.Round(time.Millisecond))
			if it.Reapplied {
				line += "\t(triggered)"
			}
			if it.Error != "" {
				line += "\t" + firstLine(it.Error)
			}
			fmt.Fprintln(tw, line)
		}
		counts := n.Counts()
		var parts []string
		for _, st := range item.States {
			if c := counts[st]; c > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", c, st))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(tw, "  %s\n", strings.Join(parts, ", "))
		}
	}
	fmt.Fprintf(tw, "\n%d of %d nodes converged\n", len(s.Converged()), len(s.Nodes))
	if failed := s.Failed(); len(failed) > 0 {
		fmt.Fprintf(tw, "failed: %s\n", strings.Join(failed, ", "))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
