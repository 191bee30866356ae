package itemtypes

import (
	"context"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/transport"
)

// SvcSystemd manages a systemd unit. The item name is the unit name.
//
// Attributes: running (default true), enabled (default true). When
// triggered, a running unit is restarted.
type SvcSystemd struct{}

func (SvcSystemd) Name() string          { return "svc_systemd" }
func (SvcSystemd) BlockConcurrent() bool { return false }

func (SvcSystemd) Validate(it *item.Item) error {
	if _, err := it.Bool("running", true); err != nil {
		return err
	}
	_, err := it.Bool("enabled", true)
	return err
}

func (SvcSystemd) Probe(ctx context.Context, ex *Exec, it *item.Item) (bool, error) {
	unit := transport.Quote(it.ID.Name)
	wantRunning, _ := it.Bool("running", true)
	wantEnabled, _ := it.Bool("enabled", true)

	active, err := ex.Run(ctx, "systemctl is-active -- "+unit, transport.MayFail())
	if err != nil {
		return false, err
	}
	enabled, err := ex.Run(ctx, "systemctl is-enabled -- "+unit, transport.MayFail())
	if err != nil {
		return false, err
	}
	return (active.ReturnCode == 0) == wantRunning && (enabled.ReturnCode == 0) == wantEnabled, nil
}

func (SvcSystemd) Fix(ctx context.Context, ex *Exec, it *item.Item) error {
	unit := transport.Quote(it.ID.Name)
	wantRunning, _ := it.Bool("running", true)
	wantEnabled, _ := it.Bool("enabled", true)

	enableCmd := "systemctl enable -- " + unit
	if !wantEnabled {
		enableCmd = "systemctl disable -- " + unit
	}
	if _, err := ex.Run(ctx, enableCmd); err != nil {
		return err
	}
	runCmd := "systemctl start -- " + unit
	if !wantRunning {
		runCmd = "systemctl stop -- " + unit
	}
	_, err := ex.Run(ctx, runCmd)
	return err
}

// Trigger restarts the unit if it is supposed to run.
func (s SvcSystemd) Trigger(ctx context.Context, ex *Exec, it *item.Item) error {
	wantRunning, _ := it.Bool("running", true)
	if !wantRunning {
		return s.Fix(ctx, ex, it)
	}
	_, err := ex.Run(ctx, "systemctl restart -- "+transport.Quote(it.ID.Name))
	return err
}
