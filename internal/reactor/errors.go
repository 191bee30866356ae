package reactor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ConflictError reports two reactors setting incompatible values at the
// same key during one pass.
type ConflictError struct {
	Node     string
	Key      string
	Reactors [2]string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("metadata conflict on node %q at %q between reactors %q and %q",
		e.Node, e.Key, e.Reactors[0], e.Reactors[1])
}

// NonconvergenceError reports that the iteration ceiling was reached.
type NonconvergenceError struct {
	Node       string
	Iterations int
	// Keys still changed in the final pass.
	Keys []string
	// Reactors whose output changed most often, most frequent first.
	Reactors []string
}

func (e *NonconvergenceError) Error() string {
	msg := fmt.Sprintf("metadata for node %q did not converge after %d iterations; still changing: %s",
		e.Node, e.Iterations, strings.Join(e.Keys, ", "))
	if len(e.Reactors) > 0 {
		msg += "; most active reactors: " + strings.Join(e.Reactors, ", ")
	}
	return msg
}

// PersistentDeclineError reports reactors that still declined after every
// other reactor had settled.
type PersistentDeclineError struct {
	Node     string
	Declines map[string]error
}

func (e *PersistentDeclineError) Error() string {
	names := make([]string, 0, len(e.Declines))
	for name := range e.Declines {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%v)", name, e.Declines[name])
	}
	return fmt.Sprintf("metadata for node %q: reactors never contributed: %s", e.Node, strings.Join(parts, ", "))
}

// ReactorError wraps an unexpected reactor failure.
type ReactorError struct {
	Node    string
	Reactor string
	Err     error
}

func (e *ReactorError) Error() string {
	return fmt.Sprintf("reactor %q failed for node %q: %v", e.Reactor, e.Node, e.Err)
}

func (e *ReactorError) Unwrap() error {
	return e.Err
}

// IsMetadataError reports whether err is one of the errors raised while
// computing metadata.
func IsMetadataError(err error) bool {
	var (
		conflict    *ConflictError
		nonconv     *NonconvergenceError
		persistent  *PersistentDeclineError
		reactorFail *ReactorError
	)
	return errors.As(err, &conflict) || errors.As(err, &nonconv) ||
		errors.As(err, &persistent) || errors.As(err, &reactorFail)
}
