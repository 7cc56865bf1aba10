package handlers

import (
	"context"
	"encoding/json"
	"fmt"
)

// Status prints the active cluster as the provider sees it.
func Status(ctx context.Context, g Global, jsonOutput bool) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	st, err := a.ctrl.Status(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}
	fmt.Fprint(stdout, renderStatus(st))
	return nil
}
