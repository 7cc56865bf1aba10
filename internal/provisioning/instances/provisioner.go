package instances

import (
	"context"
	"fmt"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/topology"
	"github.com/imamik/clusterous/internal/session"
	"github.com/imamik/clusterous/internal/util/async"
)

const phase = "instances"

// Provisioner is the instance phase: NAT first, then the controller, the
// node groups and the optional central logging instance.
type Provisioner struct{}

func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

func (p *Provisioner) Name() string {
	return phase
}

func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if ctx.State.Topology == nil {
		return fmt.Errorf("topology is not provisioned")
	}
	if err := p.provisionNAT(ctx); err != nil {
		return err
	}

	pending := []*launch{{group: ControllerGroup(ctx), assign: func(insts []*cloud.Instance) error {
		ctx.State.Controller = insts[0]
		return recordController(ctx)
	}}}
	for _, ng := range ctx.Request.NodeGroups {
		pending = append(pending, &launch{group: NodeGroup(ctx, ng), assign: func(insts []*cloud.Instance) error {
			ctx.State.Nodes[ng.Role] = insts
			return nil
		}})
	}
	if ctx.Request.LoggingLevel > 0 {
		pending = append(pending, &launch{group: LoggingGroup(ctx), assign: func(insts []*cloud.Instance) error {
			ctx.State.Logging = insts[0]
			return nil
		}})
	}

	// Request everything before waiting so the groups boot concurrently.
	for _, l := range pending {
		ids, err := Launch(ctx, l.group)
		if err != nil {
			return err
		}
		l.ids = ids
	}
	tasks := make([]async.Task, 0, len(pending))
	for _, l := range pending {
		tasks = append(tasks, async.Task{Name: l.group.Role, Func: func(context.Context) error {
			insts, err := Converge(ctx, l.group, l.ids)
			l.insts = insts
			return err
		}})
	}
	if err := async.RunParallel(ctx, tasks); err != nil {
		return err
	}
	for _, l := range pending {
		if err := l.assign(l.insts); err != nil {
			return err
		}
	}
	return nil
}

type launch struct {
	group  Group
	ids    []string
	insts  []*cloud.Instance
	assign func([]*cloud.Instance) error
}

// provisionNAT launches the NAT instance and routes the private subnet
// through it.
func (p *Provisioner) provisionNAT(ctx *provisioning.Context) error {
	insts, err := LaunchAndConverge(ctx, NATGroup(ctx))
	if err != nil {
		return err
	}
	nat := insts[0]
	ctx.State.NAT = nat

	if err := ctx.Cloud.SetSourceDestCheck(ctx, nat.ID, false); err != nil {
		return errdefs.Provider("disable source/destination check on "+nat.ID, err)
	}
	return topology.RoutePrivateThroughNAT(ctx, ctx.State.Topology, nat.ID)
}

// recordController persists the addresses every later remote call goes
// through: the NAT's public address and its port forwarded to the controller.
func recordController(ctx *provisioning.Context) error {
	if err := ctx.Session.Merge(map[string]any{
		session.KeyNATIP:        ctx.State.NAT.PublicIP,
		session.KeyControllerIP: ctx.State.Controller.PrivateIP,
	}); err != nil {
		return fmt.Errorf("failed to record controller: %w", err)
	}
	if err := ctx.Session.SetController(ctx.State.NAT.PublicIP, config.TunnelPort); err != nil {
		return fmt.Errorf("failed to write controller inventory: %w", err)
	}
	return nil
}
