package item

import (
	"fmt"
	"slices"
	"sort"

	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/node"
)

// Reserved attribute names that control convergence rather than describe
// desired state.
const (
	AttrTriggered   = "triggered"
	AttrMayFail     = "may_fail"
	AttrSkip        = "skip"
	AttrUnless      = "unless"
	AttrCascadeSkip = "cascade_skip"
	AttrComment     = "comment"
)

var reservedFlags = []string{AttrTriggered, AttrMayFail, AttrSkip, AttrCascadeSkip}

// Declaration is an item as declared by a bundle, before metadata is known.
type Declaration struct {
	ID     ID
	Bundle string
	// Source is the file position of the declaration, if known.
	Source string

	Attributes map[string]Attr

	Needs       []Selector
	NeededBy    []Selector
	Triggers    []Selector
	TriggeredBy []Selector
	Tags        []string
}

// Item is a fully resolved item of one node.
type Item struct {
	ID     ID
	Bundle string
	Source string

	// Attributes holds the desired state, excluding reserved attributes.
	Attributes map[string]any

	Needs       []Selector
	NeededBy    []Selector
	Triggers    []Selector
	TriggeredBy []Selector
	Tags        []string

	Triggered   bool
	MayFail     bool
	Skip        bool
	CascadeSkip bool
	Unless      string
	Comment     string

	// Err holds the first attribute resolution failure. An item with Err
	// set is never applied.
	Err error
}

// Instantiate resolves every attribute of d against md. Resolution errors do
// not stop instantiation; the first one is recorded on Item.Err.
func (d *Declaration) Instantiate(md metadata.Accessor, n node.Info) *Item {
	it := &Item{
		ID:          d.ID,
		Bundle:      d.Bundle,
		Source:      d.Source,
		Attributes:  make(map[string]any, len(d.Attributes)),
		Needs:       slices.Clone(d.Needs),
		NeededBy:    slices.Clone(d.NeededBy),
		Triggers:    slices.Clone(d.Triggers),
		TriggeredBy: slices.Clone(d.TriggeredBy),
		Tags:        slices.Clone(d.Tags),
	}

	names := make([]string, 0, len(d.Attributes))
	for name := range d.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, err := Resolve(d.Attributes[name], md, n)
		if err != nil {
			if it.Err == nil {
				it.Err = newAttributeError(d.ID, name, err)
			}
			continue
		}
		if err := it.setAttribute(name, v); err != nil && it.Err == nil {
			it.Err = newAttributeError(d.ID, name, err)
		}
	}
	return it
}

func (it *Item) setAttribute(name string, v any) error {
	if slices.Contains(reservedFlags, name) {
		b, ok := v.(bool)
		if !ok && v != nil {
			return fmt.Errorf("must be a bool, got %T", v)
		}
		switch name {
		case AttrTriggered:
			it.Triggered = b
		case AttrMayFail:
			it.MayFail = b
		case AttrSkip:
			it.Skip = b
		case AttrCascadeSkip:
			it.CascadeSkip = b
		}
		return nil
	}
	if name == AttrUnless || name == AttrComment {
		s, ok := v.(string)
		if !ok && v != nil {
			return fmt.Errorf("must be a string, got %T", v)
		}
		if name == AttrUnless {
			it.Unless = s
		} else {
			it.Comment = s
		}
		return nil
	}
	it.Attributes[name] = v
	return nil
}

// HasTag reports whether the item carries tag.
func (it *Item) HasTag(tag string) bool {
	return slices.Contains(it.Tags, tag)
}

// Str returns the string attribute name, or def when it is unset.
func (it *Item) Str(name, def string) (string, error) {
	v, ok := it.Attributes[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("item %q attribute %q must be a string, got %T", it.ID, name, v)
	}
	return s, nil
}

// Bool returns the boolean attribute name, or def when it is unset.
func (it *Item) Bool(name string, def bool) (bool, error) {
	v, ok := it.Attributes[name]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("item %q attribute %q must be a bool, got %T", it.ID, name, v)
	}
	return b, nil
}

// Int returns the integer attribute name, or def when it is unset.
func (it *Item) Int(name string, def int64) (int64, error) {
	v, ok := it.Attributes[name]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("item %q attribute %q must be an integer, got %T", it.ID, name, v)
	}
	return n, nil
}

// Has reports whether the attribute is set.
func (it *Item) Has(name string) bool {
	v, ok := it.Attributes[name]
	return ok && v != nil
}
