package topology

import (
	"fmt"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/util/naming"
)

// PrivateRules opens every protocol to the cluster network.
func PrivateRules(networkCIDR string) []cloud.Rule {
	return []cloud.Rule{
		{Protocol: cloud.ProtocolAll, FromPort: -1, ToPort: -1, CIDR: networkCIDR},
	}
}

// PublicRules allows SSH and the NAT tunnel port from anywhere and every
// protocol from the private group.
func PublicRules(privateGroupID string) []cloud.Rule {
	return []cloud.Rule{
		{Protocol: "tcp", FromPort: config.SSHPort, ToPort: config.SSHPort, CIDR: DefaultRoute},
		{Protocol: "tcp", FromPort: config.TunnelPort, ToPort: config.TunnelPort, CIDR: DefaultRoute},
		{Protocol: cloud.ProtocolAll, FromPort: -1, ToPort: -1, SourceGroupID: privateGroupID},
	}
}

func ensureSecurityGroups(ctx *provisioning.Context, t *provisioning.Topology) error {
	private, created, err := ensureSecurityGroup(ctx, t,
		naming.PrivateSecurityGroup(ctx.ClusterName()), "private", PrivateRules(t.CIDR))
	if err != nil {
		return err
	}
	t.PrivateSecurityGroupID = private.ID
	t.Created["private-security-group"] = created

	public, created, err := ensureSecurityGroup(ctx, t,
		naming.PublicSecurityGroup(ctx.ClusterName()), "public", PublicRules(private.ID))
	if err != nil {
		return err
	}
	t.PublicSecurityGroupID = public.ID
	t.Created["public-security-group"] = created
	return nil
}

// ensureSecurityGroup authorizes rules only on a group it creates; a found
// group keeps whatever rules it has.
func ensureSecurityGroup(
	ctx *provisioning.Context,
	t *provisioning.Topology,
	name, kind string,
	rules []cloud.Rule,
) (*cloud.SecurityGroup, bool, error) {
	op := ensureOperation[cloud.SecurityGroup]{
		Kind: "security group",
		Name: name,
		Find: func() ([]*cloud.SecurityGroup, error) {
			return ctx.Cloud.ListSecurityGroups(ctx, tags(ctx, name))
		},
		Create: func() (*cloud.SecurityGroup, error) {
			return ctx.Cloud.CreateSecurityGroup(ctx, cloud.SecurityGroupRequest{
				Name:        name,
				Description: fmt.Sprintf("%s security group of cluster %s", kind, ctx.ClusterName()),
				NetworkID:   t.NetworkID,
				Tags:        tags(ctx, name),
			})
		},
		ID: func(g *cloud.SecurityGroup) string { return g.ID },
	}
	group, created, err := op.execute(ctx)
	if err != nil || !created {
		return group, created, err
	}
	if err := ctx.Cloud.AuthorizeIngress(ctx, group.ID, rules); err != nil {
		return nil, true, errdefs.Provider("authorize ingress on "+name, err)
	}
	return group, true, nil
}
