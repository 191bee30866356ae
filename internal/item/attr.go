package item

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/node"
)

// Attr is a declared attribute value: either a Literal or a Resolver.
type Attr interface {
	isAttr()
}

// Literal is an attribute whose value is known at load time.
type Literal struct {
	Value any
}

// Resolver computes an attribute from the node's effective metadata.
type Resolver struct {
	// Refs lists the metadata paths the resolver reads.
	Refs [][]string
	Fn   func(md metadata.Accessor, n node.Info) (any, error)
}

func (Literal) isAttr()  {}
func (Resolver) isAttr() {}

// Static wraps a Go value as a Literal, normalizing it first.
func Static(v any) Attr {
	n, err := metadata.Normalize(v)
	if err != nil {
		panic(err)
	}
	return Literal{Value: n}
}

// Resolve evaluates a once against md.
func Resolve(a Attr, md metadata.Accessor, n node.Info) (any, error) {
	switch attr := a.(type) {
	case Literal:
		return attr.Value, nil
	case Resolver:
		v, err := attr.Fn(md, n)
		if err != nil {
			return nil, err
		}
		return metadata.Normalize(v)
	case nil:
		return nil, errors.New("attribute has no value")
	}
	return nil, fmt.Errorf("unsupported attribute kind %T", a)
}
