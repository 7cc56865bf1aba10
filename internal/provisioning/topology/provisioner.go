package topology

import (
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/util/labels"
)

const phase = "topology"

// Provisioner is the topology phase.
type Provisioner struct{}

func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

func (p *Provisioner) Name() string {
	return phase
}

// Provision finds or creates every topology resource and stores the
// result in ctx.State.Topology.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	t, err := Build(ctx)
	if err != nil {
		return err
	}
	ctx.State.Topology = t
	return nil
}

// Build finds or creates the cluster's network layout. The private route
// table gets its default route later, once the NAT instance exists.
func Build(ctx *provisioning.Context) (*provisioning.Topology, error) {
	ctx.Observer.Printf("[%s] Reconciling network for %s...", phase, ctx.ClusterName())
	t := &provisioning.Topology{Created: map[string]bool{}}

	if err := ensureNetwork(ctx, t); err != nil {
		return nil, err
	}
	if err := ensureSubnets(ctx, t); err != nil {
		return nil, err
	}
	if err := ensureGateway(ctx, t); err != nil {
		return nil, err
	}
	if err := ensureRouteTables(ctx, t); err != nil {
		return nil, err
	}
	if err := ensureSecurityGroups(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// tags returns the lookup and creation tags of a named resource.
func tags(ctx *provisioning.Context, name string) map[string]string {
	return labels.NewTagBuilder(ctx.ClusterName()).WithName(name).Build()
}
