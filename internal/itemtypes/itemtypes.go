// Package itemtypes is the fixed catalog of item types convergo knows how to
// probe and fix.
package itemtypes

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/transport"
)

// Type implements one kind of item.
type Type interface {
	Name() string
	// Validate checks the item's resolved attributes before anything runs.
	Validate(it *item.Item) error
	// BlockConcurrent reports whether two items of this type may not run
	// at the same time on one node.
	BlockConcurrent() bool
	// Probe reports whether the node already matches the item.
	Probe(ctx context.Context, ex *Exec, it *item.Item) (bool, error)
	// Fix changes the node to match the item.
	Fix(ctx context.Context, ex *Exec, it *item.Item) error
}

// Triggerable is implemented by types with a dedicated action when
// triggered (a service restart). Types without it are fixed again.
type Triggerable interface {
	Trigger(ctx context.Context, ex *Exec, it *item.Item) error
}

// Catalog maps type names to implementations.
type Catalog map[string]Type

// Default returns the built-in catalog.
func Default() Catalog {
	c := Catalog{}
	for _, t := range []Type{Action{}, File{}, Directory{}, PkgApt{}, SvcSystemd{}} {
		c[t.Name()] = t
	}
	return c
}

// Lookup returns the implementation of name.
func (c Catalog) Lookup(name string) (Type, error) {
	t, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("unknown item type %q", name)
	}
	return t, nil
}

// Names returns the sorted type names.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the item's type exists and its attributes are valid.
func (c Catalog) Validate(it *item.Item) error {
	t, err := c.Lookup(it.ID.Type)
	if err != nil {
		return err
	}
	return t.Validate(it)
}

// Exec runs commands for one item and captures their output.
type Exec struct {
	Transport transport.Transport
	Target    transport.Target

	mu  sync.Mutex
	out bytes.Buffer
}

// NewExec creates an Exec for target.
func NewExec(tr transport.Transport, target transport.Target) *Exec {
	return &Exec{Transport: tr, Target: target}
}

// Run executes command and records its output.
func (e *Exec) Run(ctx context.Context, command string, opts ...transport.RunOption) (*transport.RunResult, error) {
	res, err := e.Transport.Run(ctx, e.Target, command, opts...)
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(&e.out, "$ %s\n", command)
	if res != nil {
		e.out.Write(res.Stdout)
		e.out.Write(res.Stderr)
	}
	return res, err
}

// Upload copies a local file to the node.
func (e *Exec) Upload(ctx context.Context, localPath, remotePath string, attrs transport.FileAttrs) error {
	e.mu.Lock()
	fmt.Fprintf(&e.out, "upload %s\n", remotePath)
	e.mu.Unlock()
	return e.Transport.Upload(ctx, e.Target, localPath, remotePath, attrs)
}

// Output returns everything captured so far.
func (e *Exec) Output() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.String()
}
