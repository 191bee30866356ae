package itemtypes

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/transport"
)

// Directory manages a directory. The item name is the absolute path.
type Directory struct{}

func (Directory) Name() string          { return "directory" }
func (Directory) BlockConcurrent() bool { return false }

func (Directory) Validate(it *item.Item) error {
	if !strings.HasPrefix(it.ID.Name, "/") {
		return fmt.Errorf("item %q: path must be absolute", it.ID)
	}
	return validateOwnership(it)
}

func (Directory) Probe(ctx context.Context, ex *Exec, it *item.Item) (bool, error) {
	res, err := ex.Run(ctx, "test -d "+transport.Quote(it.ID.Name), transport.MayFail())
	if err != nil {
		return false, err
	}
	if res.ReturnCode != 0 {
		return false, nil
	}
	return probeOwnership(ctx, ex, it)
}

func (Directory) Fix(ctx context.Context, ex *Exec, it *item.Item) error {
	path := it.ID.Name
	cmds := append([]string{"mkdir -p " + transport.Quote(path)}, transport.AttrCommands(path, fileAttrs(it))...)
	_, err := ex.Run(ctx, strings.Join(cmds, " && "))
	return err
}
