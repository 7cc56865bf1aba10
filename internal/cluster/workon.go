package cluster

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning/instances"
	"github.com/imamik/clusterous/internal/session"
	"github.com/imamik/clusterous/internal/util/labels"
	"github.com/imamik/clusterous/internal/util/naming"
)

// Workon makes the live cluster name the active one. The provider is the
// source of truth: the cluster must have a NAT with a public address.
func (c *Controller) Workon(ctx context.Context, name string) error {
	if err := naming.ValidateClusterName(name); err != nil {
		return errdefs.Configf("%v", err)
	}
	nats, err := instances.ListRole(ctx, c.deps.Cloud, name, labels.RoleNAT)
	if err != nil {
		return err
	}
	nat, ok := lo.Find(nats, func(inst *cloud.Instance) bool { return inst.PublicIP != "" })
	if !ok {
		return errdefs.Configf("could not switch to cluster %s: no running cluster of that name", name)
	}

	record := map[string]any{
		session.KeyClusterName:          name,
		session.KeyRunning:              true,
		session.KeyProvider:             c.deps.Cloud.Name(),
		session.KeyNATIP:                nat.PublicIP,
		session.KeyNATSSHPortForwarding: config.TunnelPort,
	}
	controllers, err := instances.ListRole(ctx, c.deps.Cloud, name, labels.RoleController)
	if err != nil {
		return err
	}
	if len(controllers) > 0 {
		record[session.KeyControllerIP] = controllers[0].PrivateIP
		if err := c.recordVolume(ctx, name, controllers[0].ID, record); err != nil {
			return err
		}
	}
	if logging, err := instances.ListRole(ctx, c.deps.Cloud, name, labels.RoleCentralLogging); err == nil && len(logging) > 0 {
		record[session.KeyCentralLoggingIP] = logging[0].PrivateIP
	}

	// Switching clusters replaces the record; keys of the previous cluster
	// must not leak into the new one.
	if err := c.deps.Session.Clear(); err != nil {
		return fmt.Errorf("failed to clear the previous cluster: %w", err)
	}
	if err := c.deps.Session.Merge(record); err != nil {
		return fmt.Errorf("failed to record active cluster: %w", err)
	}
	if err := c.deps.Session.SetController(nat.PublicIP, config.TunnelPort); err != nil {
		return fmt.Errorf("failed to write controller inventory: %w", err)
	}

	if c.deps.Tunnels != nil {
		openSchedulerTunnels(ctx, c.deps.Tunnels(nat.PublicIP))
	}
	return nil
}

// recordVolume adds the shared volume attached to the controller.
func (c *Controller) recordVolume(ctx context.Context, cluster, controllerID string, record map[string]any) error {
	vols, err := c.deps.Cloud.ListVolumes(ctx, nil)
	if err != nil {
		return errdefs.Provider("list volumes", err)
	}
	for _, v := range vols {
		if v.AttachedTo != controllerID {
			continue
		}
		switch {
		case v.Tags[labels.KeyAttached] == cluster:
			record[session.KeyVolumeID] = v.ID
			record[session.KeyBYOVolume] = 1
		case v.Tags[labels.KeyCluster] == cluster:
			record[session.KeyVolumeID] = v.ID
			record[session.KeyBYOVolume] = 0
		}
	}
	return nil
}
