package topology

import (
	"slices"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/util/labels"
	"github.com/imamik/clusterous/internal/util/naming"
)

// DefaultRoute is the destination of both route tables' default routes.
const DefaultRoute = "0.0.0.0/0"

func ensureNetwork(ctx *provisioning.Context, t *provisioning.Topology) error {
	name := naming.Network(ctx.ClusterName())
	op := ensureOperation[cloud.Network]{
		Kind: "network",
		Name: name,
		Find: func() ([]*cloud.Network, error) {
			return ctx.Cloud.ListNetworks(ctx, tags(ctx, name))
		},
		Create: func() (*cloud.Network, error) {
			return ctx.Cloud.CreateNetwork(ctx, cloud.NetworkRequest{CIDR: ctx.Config.VPCCIDR, Tags: tags(ctx, name)})
		},
		ID: func(n *cloud.Network) string { return n.ID },
	}
	network, created, err := op.execute(ctx)
	if err != nil {
		return err
	}
	t.NetworkID = network.ID
	t.CIDR = network.CIDR
	if t.CIDR == "" {
		t.CIDR = ctx.Config.VPCCIDR
	}
	t.Created["network"] = created
	return nil
}

func ensureSubnets(ctx *provisioning.Context, t *provisioning.Topology) error {
	public, created, err := ensureSubnet(ctx, t, naming.SubnetPublic)
	if err != nil {
		return err
	}
	t.PublicSubnet = public
	t.Created["public-subnet"] = created

	private, created, err := ensureSubnet(ctx, t, naming.SubnetPrivate)
	if err != nil {
		return err
	}
	t.PrivateSubnet = private
	t.Created["private-subnet"] = created
	return nil
}

func ensureSubnet(ctx *provisioning.Context, t *provisioning.Topology, kind string) (*cloud.Subnet, bool, error) {
	name := naming.Subnet(ctx.ClusterName(), kind, ctx.Config.Zone)
	op := ensureOperation[cloud.Subnet]{
		Kind: "subnet",
		Name: name,
		Find: func() ([]*cloud.Subnet, error) {
			return ctx.Cloud.ListSubnets(ctx, tags(ctx, name))
		},
		Create: func() (*cloud.Subnet, error) {
			cidr, err := nextSubnetCIDR(ctx, t)
			if err != nil {
				return nil, err
			}
			return ctx.Cloud.CreateSubnet(ctx, cloud.SubnetRequest{
				NetworkID: t.NetworkID,
				CIDR:      cidr,
				Zone:      ctx.Config.Zone,
				Tags:      tags(ctx, name),
			})
		},
		ID: func(s *cloud.Subnet) string { return s.ID },
	}
	return op.execute(ctx)
}

// nextSubnetCIDR picks the /24 after the highest subnet the cluster owns.
func nextSubnetCIDR(ctx *provisioning.Context, t *provisioning.Topology) (string, error) {
	existing, err := ctx.Cloud.ListSubnets(ctx, labels.Owned(ctx.ClusterName()))
	if err != nil {
		return "", err
	}
	cidrs := make([]string, 0, len(existing))
	for _, s := range existing {
		if s.NetworkID == t.NetworkID {
			cidrs = append(cidrs, s.CIDR)
		}
	}
	cidr, err := config.NextSubnetCIDR(t.CIDR, cidrs)
	if err != nil {
		return "", errdefs.Configf("cannot allocate a subnet in %s: %v", t.CIDR, err)
	}
	return cidr, nil
}

func ensureGateway(ctx *provisioning.Context, t *provisioning.Topology) error {
	name := naming.Gateway(ctx.ClusterName())
	op := ensureOperation[cloud.Gateway]{
		Kind: "gateway",
		Name: name,
		Find: func() ([]*cloud.Gateway, error) {
			return ctx.Cloud.ListGateways(ctx, tags(ctx, name))
		},
		Create: func() (*cloud.Gateway, error) {
			return ctx.Cloud.CreateGateway(ctx, cloud.GatewayRequest{NetworkID: t.NetworkID, Tags: tags(ctx, name)})
		},
		ID: func(g *cloud.Gateway) string { return g.ID },
	}
	gw, created, err := op.execute(ctx)
	if err != nil {
		return err
	}
	t.GatewayID = gw.ID
	t.Created["gateway"] = created
	return nil
}

func ensureRouteTables(ctx *provisioning.Context, t *provisioning.Topology) error {
	public, created, err := ensureRouteTable(ctx, t, naming.SubnetPublic)
	if err != nil {
		return err
	}
	t.PublicRouteTableID = public.ID
	t.Created["public-route-table"] = created

	if err := ctx.Cloud.SetRoute(ctx, public.ID, cloud.Route{Destination: DefaultRoute, GatewayID: t.GatewayID}); err != nil {
		return errdefs.Provider("set public default route", err)
	}
	if err := associate(ctx, public, t.PublicSubnet.ID); err != nil {
		return err
	}

	private, created, err := ensureRouteTable(ctx, t, naming.SubnetPrivate)
	if err != nil {
		return err
	}
	t.PrivateRouteTableID = private.ID
	t.Created["private-route-table"] = created
	return nil
}

func ensureRouteTable(ctx *provisioning.Context, t *provisioning.Topology, kind string) (*cloud.RouteTable, bool, error) {
	name := naming.RouteTable(ctx.ClusterName(), kind)
	op := ensureOperation[cloud.RouteTable]{
		Kind: "route table",
		Name: name,
		Find: func() ([]*cloud.RouteTable, error) {
			return ctx.Cloud.ListRouteTables(ctx, tags(ctx, name))
		},
		Create: func() (*cloud.RouteTable, error) {
			return ctx.Cloud.CreateRouteTable(ctx, cloud.RouteTableRequest{NetworkID: t.NetworkID, Tags: tags(ctx, name)})
		},
		ID: func(rt *cloud.RouteTable) string { return rt.ID },
	}
	return op.execute(ctx)
}

func associate(ctx *provisioning.Context, rt *cloud.RouteTable, subnetID string) error {
	if slices.Contains(rt.SubnetIDs, subnetID) {
		return nil
	}
	if err := ctx.Cloud.AssociateRouteTable(ctx, rt.ID, subnetID); err != nil {
		return errdefs.Provider("associate route table "+rt.ID, err)
	}
	return nil
}

// RoutePrivateThroughNAT points the private route table's default route at
// the NAT instance and associates it with the private subnet.
func RoutePrivateThroughNAT(ctx *provisioning.Context, t *provisioning.Topology, natID string) error {
	if err := ctx.Cloud.SetRoute(ctx, t.PrivateRouteTableID, cloud.Route{Destination: DefaultRoute, InstanceID: natID}); err != nil {
		return errdefs.Provider("set private default route", err)
	}
	rt := &cloud.RouteTable{ID: t.PrivateRouteTableID}
	tables, err := ctx.Cloud.ListRouteTables(ctx, tags(ctx, naming.RouteTable(ctx.ClusterName(), naming.SubnetPrivate)))
	if err != nil {
		return errdefs.Provider("find private route table", err)
	}
	for _, candidate := range tables {
		if candidate.ID == t.PrivateRouteTableID {
			rt = candidate
		}
	}
	return associate(ctx, rt, t.PrivateSubnet.ID)
}
