package item

import "fmt"

// State is the convergence state of an item within one run.
type State int

const (
	// Pending items have not been dispatched yet.
	Pending State = iota
	// Running items are being probed or fixed.
	Running
	// Skipped items were excluded by a predicate or were never triggered.
	Skipped
	// Correct items already matched their desired state.
	Correct
	// Fixed items were changed and now match their desired state.
	Fixed
	// Failed items could not be brought into their desired state.
	Failed
	// Aborted items never ran because a dependency failed or the run was
	// cancelled.
	Aborted
)

var stateNames = []string{"pending", "running", "skipped", "correct", "fixed", "failed", "aborted"}

// States lists every terminal state in display order.
var States = []State{Correct, Fixed, Skipped, Failed, Aborted}

func (s State) String() string {
	if int(s) < len(stateNames) && s >= 0 {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition will happen.
func (s State) Terminal() bool {
	return s >= Skipped
}

// Successful reports whether the state does not count against the node.
func (s State) Successful() bool {
	return s == Skipped || s == Correct || s == Fixed
}

// MarshalText renders the state name for yaml and json reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown item state %q", string(b))
}
