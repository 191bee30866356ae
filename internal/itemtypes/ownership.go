package itemtypes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/transport"
)

func fileAttrs(it *item.Item) transport.FileAttrs {
	mode, _ := it.Str("mode", "")
	owner, _ := it.Str("owner", "")
	group, _ := it.Str("group", "")
	return transport.FileAttrs{Mode: mode, Owner: owner, Group: group}
}

func validateOwnership(it *item.Item) error {
	for _, name := range []string{"mode", "owner", "group"} {
		if _, err := it.Str(name, ""); err != nil {
			return err
		}
	}
	mode, _ := it.Str("mode", "")
	if mode != "" {
		if _, err := strconv.ParseUint(mode, 8, 32); err != nil {
			return fmt.Errorf("item %q: mode %q is not an octal number", it.ID, mode)
		}
	}
	return nil
}

// normalizeMode strips leading zeros so "0644" and "644" compare equal.
func normalizeMode(mode string) string {
	trimmed := strings.TrimLeft(mode, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// probeOwnership compares mode, owner and group via stat.
func probeOwnership(ctx context.Context, ex *Exec, it *item.Item) (bool, error) {
	attrs := fileAttrs(it)
	if attrs == (transport.FileAttrs{}) {
		return true, nil
	}
	res, err := ex.Run(ctx, "stat -c '%a %U %G' "+transport.Quote(it.ID.Name))
	if err != nil {
		return false, err
	}
	fields := strings.Fields(string(res.Stdout))
	if len(fields) != 3 {
		return false, fmt.Errorf("item %q: unexpected stat output %q", it.ID, res.Stdout)
	}
	if attrs.Mode != "" && normalizeMode(attrs.Mode) != normalizeMode(fields[0]) {
		return false, nil
	}
	if attrs.Owner != "" && attrs.Owner != fields[1] {
		return false, nil
	}
	if attrs.Group != "" && attrs.Group != fields[2] {
		return false, nil
	}
	return true, nil
}
