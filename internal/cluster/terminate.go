package cluster

import (
	"context"
	"fmt"
	"log"

	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/destroy"
)

// Terminate destroys the active cluster and forgets it. The local record is
// only cleared when every resource was deleted, so a failed termination can
// be retried.
func (c *Controller) Terminate(ctx context.Context, opts destroy.Options) error {
	info, err := c.active()
	if err != nil {
		return err
	}

	if t, err := c.tunnels(info); err == nil {
		if err := t.CloseAll(ctx, true); err != nil {
			log.Printf("[Tunnel] Warning: failed to close tunnels: %v", err)
		}
	}

	pctx := c.newContext(ctx, &provisioning.Request{ClusterName: info.ClusterName})
	pctx.Observer.Printf("Terminating cluster %s", info.ClusterName)
	if err := provisioning.RunPhases(pctx, []provisioning.Phase{destroy.NewProvisioner(opts)}); err != nil {
		return err
	}

	if err := c.deps.Session.Clear(); err != nil {
		return fmt.Errorf("cluster terminated but the local record could not be removed: %w", err)
	}
	return nil
}
