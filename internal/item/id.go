package item

import (
	"fmt"
	"regexp"
	"strings"
)

// typeRegex validates the type half of an identifier.
var typeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ID is the unique identifier of an item on one node.
type ID struct {
	Type string
	Name string
}

// ParseID parses the canonical "type:name" form. The name may itself
// contain colons.
func ParseID(raw string) (ID, error) {
	if raw == "" {
		return ID{}, fmt.Errorf("item identifier cannot be empty")
	}
	typ, name, ok := strings.Cut(raw, ":")
	if !ok {
		return ID{}, fmt.Errorf("item identifier %q must have the form type:name", raw)
	}
	if !typeRegex.MatchString(typ) {
		return ID{}, fmt.Errorf("invalid item type %q in %q", typ, raw)
	}
	if name == "" {
		return ID{}, fmt.Errorf("item identifier %q has an empty name", raw)
	}
	return ID{Type: typ, Name: name}, nil
}

// String serializes the ID into its canonical form.
func (id ID) String() string {
	return id.Type + ":" + id.Name
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.Type == "" && id.Name == ""
}

// SelectorKind enumerates what a Selector matches.
type SelectorKind int

const (
	// SelectItem matches exactly one item by ID.
	SelectItem SelectorKind = iota
	// SelectBundle matches every item declared by a bundle.
	SelectBundle
	// SelectTag matches every item carrying a tag.
	SelectTag
	// SelectType matches every item of a type.
	SelectType
)

// Selector is a parsed relation target.
type Selector struct {
	Kind  SelectorKind
	ID    ID
	Value string
}

// ParseSelector accepts "type:name", "bundle:<name>", "tag:<name>" and
// "type:" (all items of a type).
func ParseSelector(raw string) (Selector, error) {
	prefix, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return Selector{}, fmt.Errorf("selector %q must have the form type:name", raw)
	}
	switch prefix {
	case "bundle":
		if rest == "" {
			return Selector{}, fmt.Errorf("selector %q has an empty bundle name", raw)
		}
		return Selector{Kind: SelectBundle, Value: rest}, nil
	case "tag":
		if rest == "" {
			return Selector{}, fmt.Errorf("selector %q has an empty tag", raw)
		}
		return Selector{Kind: SelectTag, Value: rest}, nil
	}
	if rest == "" {
		if !typeRegex.MatchString(prefix) {
			return Selector{}, fmt.Errorf("invalid item type %q in %q", prefix, raw)
		}
		return Selector{Kind: SelectType, Value: prefix}, nil
	}
	id, err := ParseID(raw)
	if err != nil {
		return Selector{}, err
	}
	return Selector{Kind: SelectItem, ID: id}, nil
}

// String serializes the selector.
func (s Selector) String() string {
	switch s.Kind {
	case SelectBundle:
		return "bundle:" + s.Value
	case SelectTag:
		return "tag:" + s.Value
	case SelectType:
		return s.Value + ":"
	}
	return s.ID.String()
}

// Matches reports whether the selector selects it.
func (s Selector) Matches(it *Item) bool {
	switch s.Kind {
	case SelectBundle:
		return it.Bundle == s.Value
	case SelectTag:
		return it.HasTag(s.Value)
	case SelectType:
		return it.ID.Type == s.Value
	}
	return it.ID == s.ID
}
