package reactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/node"
)

var (
	// ErrDecline signals that a reactor cannot contribute yet.
	ErrDecline = errors.New("reactor declined")
	// ErrDoNotRunAgain signals that a reactor has nothing more to add.
	ErrDoNotRunAgain = errors.New("reactor does not need to run again")
)

// Decline returns an error wrapping ErrDecline with a reason.
func Decline(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecline, fmt.Sprintf(format, args...))
}

// RepoView is the read-only slice of the repository a reactor may consult.
// It exposes static declarations only, so a reactor never depends on another
// node's reactors.
type RepoView interface {
	NodeNames() []string
	NodeInfo(name string) (node.Info, bool)
	StaticMetadata(name string) (metadata.Map, bool)
	NodesInGroup(group string) []string
}

// Input is everything a reactor sees during one pass.
type Input struct {
	Node     node.Info
	Metadata metadata.Accessor
	Repo     RepoView
}

// Reactor derives metadata for a node.
type Reactor interface {
	Name() string
	React(ctx context.Context, in Input) (metadata.Map, error)
}

// Fingerprinter is implemented by reactors defined by repository content.
// Fingerprint changes whenever that content does.
type Fingerprinter interface {
	Fingerprint() string
}

// Func adapts a function to the Reactor interface.
type Func struct {
	name string
	fn   func(ctx context.Context, in Input) (metadata.Map, error)
}

// NewFunc creates a named reactor from fn.
func NewFunc(name string, fn func(ctx context.Context, in Input) (metadata.Map, error)) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) React(ctx context.Context, in Input) (metadata.Map, error) {
	return f.fn(ctx, in)
}

// isDecline reports whether err means "try again next pass".
func isDecline(err error) bool {
	if errors.Is(err, ErrDecline) {
		return true
	}
	var missing *metadata.MissingKeyError
	return errors.As(err, &missing)
}
