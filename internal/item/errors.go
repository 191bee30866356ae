package item

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/convergo/internal/metadata"
)

// AttributeError reports an attribute that could not be resolved. It is
// fatal for the item only.
type AttributeError struct {
	Item      ID
	Attribute string
	// Key is the missing metadata path, if the failure was a missing key.
	Key string
	Err error
}

func (e *AttributeError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("item %q attribute %q: metadata key %q not found", e.Item, e.Attribute, e.Key)
	}
	return fmt.Sprintf("item %q attribute %q: %v", e.Item, e.Attribute, e.Err)
}

func (e *AttributeError) Unwrap() error {
	return e.Err
}

// AsAttributeError unwraps err into an *AttributeError.
func AsAttributeError(err error) (*AttributeError, bool) {
	var attrErr *AttributeError
	if errors.As(err, &attrErr) {
		return attrErr, true
	}
	return nil, false
}

func newAttributeError(id ID, attr string, err error) *AttributeError {
	e := &AttributeError{Item: id, Attribute: attr, Err: err}
	var missing *metadata.MissingKeyError
	if errors.As(err, &missing) {
		e.Key = metadata.JoinPath(missing.Path)
	}
	return e
}
