// Package report describes the outcome of convergence runs and renders it
// for people and machines.
package report

import (
	"time"

	"github.com/specialistvlad/convergo/internal/item"
)

// ItemResult is the terminal state of one item.
type ItemResult struct {
	ID        string        `json:"id" yaml:"id"`
	State     item.State    `json:"state" yaml:"state"`
	Output    string        `json:"output,omitempty" yaml:"output,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Reapplied bool          `json:"reapplied,omitempty" yaml:"reapplied,omitempty"`
}

// NodeReport is the outcome of one node.
type NodeReport struct {
	Node     string       `json:"node" yaml:"node"`
	RunID    string       `json:"run_id" yaml:"run_id"`
	Started  time.Time    `json:"started" yaml:"started"`
	Finished time.Time    `json:"finished" yaml:"finished"`
	Items    []ItemResult `json:"items" yaml:"items"`
	// Error is set when the node failed before or outside item convergence,
	// for example a configuration or metadata error.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Succeeded reports whether the node fully converged: no node-level error
// and no item Failed or Aborted.
func (r *NodeReport) Succeeded() bool {
	if r.Error != "" {
		return false
	}
	for _, it := range r.Items {
		if !it.State.Successful() {
			return false
		}
	}
	return true
}

// Counts returns the number of items per terminal state.
func (r *NodeReport) Counts() map[item.State]int {
	out := make(map[item.State]int)
	for _, it := range r.Items {
		out[it.State]++
	}
	return out
}

// Item returns the result of id.
func (r *NodeReport) Item(id string) (ItemResult, bool) {
	for _, it := range r.Items {
		if it.ID == id {
			return it, true
		}
	}
	return ItemResult{}, false
}

// Summary aggregates the reports of one apply.
type Summary struct {
	Nodes []*NodeReport `json:"nodes" yaml:"nodes"`
}

// Converged returns the names of nodes that fully converged.
func (s *Summary) Converged() []string {
	var out []string
	for _, n := range s.Nodes {
		if n.Succeeded() {
			out = append(out, n.Node)
		}
	}
	return out
}

// Failed returns the names of nodes that did not converge.
func (s *Summary) Failed() []string {
	var out []string
	for _, n := range s.Nodes {
		if !n.Succeeded() {
			out = append(out, n.Node)
		}
	}
	return out
}

// Succeeded reports whether every node converged.
func (s *Summary) Succeeded() bool {
	return len(s.Failed()) == 0
}
