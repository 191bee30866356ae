package itemtypes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/transport"
)

// File manages a regular file. The item name is the absolute path.
//
// Attributes: content, mode, owner, group. Unset attributes are not managed.
type File struct{}

func (File) Name() string          { return "file" }
func (File) BlockConcurrent() bool { return false }

func (File) Validate(it *item.Item) error {
	if !strings.HasPrefix(it.ID.Name, "/") {
		return fmt.Errorf("item %q: path must be absolute", it.ID)
	}
	return validateOwnership(it)
}

func (File) Probe(ctx context.Context, ex *Exec, it *item.Item) (bool, error) {
	path := it.ID.Name
	res, err := ex.Run(ctx, "test -f "+transport.Quote(path), transport.MayFail())
	if err != nil {
		return false, err
	}
	if res.ReturnCode != 0 {
		return false, nil
	}

	if it.Has("content") {
		content, _ := it.Str("content", "")
		res, err := ex.Run(ctx, "sha256sum "+transport.Quote(path))
		if err != nil {
			return false, err
		}
		fields := strings.Fields(string(res.Stdout))
		if len(fields) == 0 || fields[0] != sha256Hex(content) {
			return false, nil
		}
	}
	return probeOwnership(ctx, ex, it)
}

func (File) Fix(ctx context.Context, ex *Exec, it *item.Item) error {
	path := it.ID.Name
	attrs := fileAttrs(it)
	if !it.Has("content") {
		cmds := append([]string{"touch " + transport.Quote(path)}, transport.AttrCommands(path, attrs)...)
		_, err := ex.Run(ctx, strings.Join(cmds, " && "))
		return err
	}

	content, _ := it.Str("content", "")
	tmp, err := os.CreateTemp("", "convergo-file-*")
	if err != nil {
		return fmt.Errorf("staging content for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("staging content for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("staging content for %s: %w", path, err)
	}
	return ex.Upload(ctx, tmp.Name(), path, attrs)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
