package cluster

import (
	"context"
	"fmt"
	"log"

	"github.com/samber/lo"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/platform/marathon"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/configure"
	"github.com/imamik/clusterous/internal/provisioning/instances"
	"github.com/imamik/clusterous/internal/provisioning/topology"
	"github.com/imamik/clusterous/internal/session"
	"github.com/imamik/clusterous/internal/util/labels"
)

// AddNodes launches count nodes of role, configures them and rescales the
// running components. An empty instanceType reuses the type of the role's
// existing nodes. It returns the number of nodes added.
func (c *Controller) AddNodes(ctx context.Context, count int, role, instanceType string) (int, error) {
	info, err := c.active()
	if err != nil {
		return 0, err
	}
	if err := checkNodeRole(count, role); err != nil {
		return 0, err
	}

	pctx := c.newContext(ctx, &provisioning.Request{ClusterName: info.ClusterName})
	if instanceType == "" {
		existing, err := instances.ListRole(pctx, c.deps.Cloud, info.ClusterName, role)
		if err != nil {
			return 0, err
		}
		if len(existing) == 0 {
			return 0, errdefs.Configf("no %q nodes exist; an instance type is required", role)
		}
		instanceType = existing[0].InstanceType
	}

	// The topology already exists, so this only looks it up.
	t, err := topology.Build(pctx)
	if err != nil {
		return 0, err
	}
	pctx.State.Topology = t

	before := c.snapshot(ctx)

	pctx.Observer.Printf("Creating %d %q nodes", count, role)
	group := instances.NodeGroup(pctx, provisioning.NodeGroup{Role: role, InstanceType: instanceType, Count: count})
	added, err := instances.LaunchAndConverge(pctx, group)
	if err != nil {
		return 0, err
	}

	if pctx.Configurer != nil {
		raw, err := c.deps.Session.Raw()
		if err != nil {
			return len(added), err
		}
		nodes := map[string][]*cloud.Instance{role: added}
		if err := configure.ConfigureNodes(pctx, nodes, NodeVars(raw)); err != nil {
			return len(added), err
		}
	}

	return len(added), c.rescale(ctx, before)
}

// RemoveNodes terminates up to count nodes of role and rescales the
// running components. Victims are taken in provider listing order. When
// fewer nodes exist than requested, all of them are removed and the actual
// number is returned.
func (c *Controller) RemoveNodes(ctx context.Context, count int, role string) (int, error) {
	info, err := c.active()
	if err != nil {
		return 0, err
	}
	if err := checkNodeRole(count, role); err != nil {
		return 0, err
	}

	pctx := c.newContext(ctx, &provisioning.Request{ClusterName: info.ClusterName})
	existing, err := instances.ListRole(pctx, c.deps.Cloud, info.ClusterName, role)
	if err != nil {
		return 0, err
	}
	victims := lo.Map(lo.Slice(existing, 0, count), func(inst *cloud.Instance, _ int) string { return inst.ID })
	if len(victims) == 0 {
		pctx.Observer.Printf("No %q nodes to remove", role)
		return 0, nil
	}
	if len(victims) < count {
		pctx.Observer.Printf("Actual number of %q nodes is %d", role, len(victims))
	}

	before := c.snapshot(ctx)

	pctx.Observer.Printf("Removing %d %q nodes...", len(victims), role)
	if err := instances.Terminate(pctx, victims); err != nil {
		return 0, err
	}
	return len(victims), c.rescale(ctx, before)
}

// NodeVars are the playbook variables of nodes added to a running cluster,
// taken from the session record.
func NodeVars(raw map[string]any) map[string]any {
	return lo.PickByKeys(raw, []string{
		session.KeyCentralLoggingLevel,
		session.KeyCentralLoggingIP,
		session.KeyBYOVolume,
		session.KeyNATSSHPortForwarding,
	})
}

func checkNodeRole(count int, role string) error {
	if count <= 0 {
		return errdefs.Configf("node count must be positive, got %d", count)
	}
	if role == "" {
		return errdefs.Configf("a node role is required")
	}
	if labels.IsReservedRole(role) {
		return errdefs.Configf("%q is not a node role", role)
	}
	return nil
}

// snapshot records the node pool before a resize when components are
// running. It returns nil when there is nothing to rescale.
func (c *Controller) snapshot(ctx context.Context) *marathon.MesosState {
	if c.resizer == nil {
		return nil
	}
	running, err := c.resizer.RunningComponents(ctx)
	if err != nil {
		log.Printf("[scale] Warning: cannot list running components: %v", err)
		return nil
	}
	if len(running) == 0 {
		return nil
	}
	before, err := c.resizer.Snapshot(ctx)
	if err != nil {
		log.Printf("[scale] Warning: cannot read node pool: %v", err)
		return nil
	}
	return before
}

func (c *Controller) rescale(ctx context.Context, before *marathon.MesosState) error {
	if before == nil {
		return nil
	}
	if err := c.resizer.Scale(ctx, before); err != nil {
		return fmt.Errorf("nodes changed but components could not be rescaled: %w", err)
	}
	return nil
}
