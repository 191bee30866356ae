package itemgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/convergo/internal/item"
)

// GraphError reports an invalid item graph: an unknown reference, a
// self-dependency, a duplicate item or a cycle.
type GraphError struct {
	Node   string
	Item   item.ID
	Reason string
	// Cycle holds the items of a dependency cycle in order; the first item
	// is repeated at the end.
	Cycle []item.ID
}

func (e *GraphError) Error() string {
	if len(e.Cycle) > 0 {
		parts := make([]string, len(e.Cycle))
		for i, id := range e.Cycle {
			parts[i] = id.String()
		}
		return fmt.Sprintf("dependency cycle on node %q: %s", e.Node, strings.Join(parts, " -> "))
	}
	return fmt.Sprintf("invalid item graph on node %q: item %q: %s", e.Node, e.Item, e.Reason)
}

// AsGraphError unwraps err into a *GraphError.
func AsGraphError(err error) (*GraphError, bool) {
	var graphErr *GraphError
	if errors.As(err, &graphErr) {
		return graphErr, true
	}
	return nil, false
}
