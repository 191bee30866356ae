package itemtypes

import (
	"context"
	"strings"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/transport"
)

// PkgApt manages a Debian package. The item name is the package name.
//
// Attributes: installed (default true). dpkg holds a global lock, so two
// packages are never handled at once on one node.
type PkgApt struct{}

func (PkgApt) Name() string          { return "pkg_apt" }
func (PkgApt) BlockConcurrent() bool { return true }

func (PkgApt) Validate(it *item.Item) error {
	_, err := it.Bool("installed", true)
	return err
}

func (PkgApt) Probe(ctx context.Context, ex *Exec, it *item.Item) (bool, error) {
	want, _ := it.Bool("installed", true)
	res, err := ex.Run(ctx, "dpkg -s "+transport.Quote(it.ID.Name), transport.MayFail())
	if err != nil {
		return false, err
	}
	installed := res.ReturnCode == 0 && strings.Contains(string(res.Stdout), "Status: install ok installed")
	return installed == want, nil
}

func (PkgApt) Fix(ctx context.Context, ex *Exec, it *item.Item) error {
	want, _ := it.Bool("installed", true)
	name := transport.Quote(it.ID.Name)
	cmd := "DEBIAN_FRONTEND=noninteractive apt-get -qy install " + name
	if !want {
		cmd = "DEBIAN_FRONTEND=noninteractive apt-get -qy purge " + name
	}
	_, err := ex.Run(ctx, cmd)
	return err
}
