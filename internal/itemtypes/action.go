package itemtypes

import (
	"context"
	"fmt"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/transport"
)

// Action runs a command every time it is applied.
//
// Attributes: command (required), expected_return_code (default 0).
type Action struct{}

func (Action) Name() string          { return "action" }
func (Action) BlockConcurrent() bool { return false }

func (Action) Validate(it *item.Item) error {
	cmd, err := it.Str("command", "")
	if err != nil {
		return err
	}
	if cmd == "" {
		return fmt.Errorf("item %q: attribute \"command\" is required", it.ID)
	}
	_, err = it.Int("expected_return_code", 0)
	return err
}

// Probe always reports false: an action has no state to compare.
func (Action) Probe(context.Context, *Exec, *item.Item) (bool, error) {
	return false, nil
}

func (Action) Fix(ctx context.Context, ex *Exec, it *item.Item) error {
	cmd, _ := it.Str("command", "")
	expected, _ := it.Int("expected_return_code", 0)

	res, err := ex.Run(ctx, cmd, transport.MayFail())
	if err != nil {
		return err
	}
	if int64(res.ReturnCode) != expected {
		return &transport.RemoteExecutionError{
			Node:       ex.Target.Node,
			Command:    cmd,
			ReturnCode: res.ReturnCode,
			Stderr:     string(res.Stderr),
		}
	}
	return nil
}
