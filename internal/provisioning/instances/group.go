package instances

import (
	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/util/labels"
	"github.com/imamik/clusterous/internal/util/naming"
)

// Group is a set of identical instances sharing a role.
type Group struct {
	Role             string
	Name             string
	InstanceType     string
	Image            string
	Count            int
	SubnetID         string
	SecurityGroupIDs []string
	PublicIP         bool
	RootVolumeGB     int
}

// Tags returns the tags applied to each instance of the group on convergence.
func (g Group) Tags(clusterName string) map[string]string {
	return labels.NewTagBuilder(clusterName).WithName(g.Name).WithRole(g.Role).Build()
}

// NATGroup is the single NAT instance in the public subnet.
func NATGroup(ctx *provisioning.Context) Group {
	t := ctx.State.Topology
	return Group{
		Role:             labels.RoleNAT,
		Name:             naming.NAT(ctx.ClusterName()),
		InstanceType:     config.NATInstanceType,
		Image:            ctx.Config.Images.NAT,
		Count:            1,
		SubnetID:         t.PublicSubnet.ID,
		SecurityGroupIDs: []string{t.PublicSecurityGroupID},
		PublicIP:         true,
	}
}

func ControllerGroup(ctx *provisioning.Context) Group {
	instanceType := config.ControllerInstanceType
	if ctx.Request.ControllerInstanceType != "" {
		instanceType = ctx.Request.ControllerInstanceType
	}
	return privateGroup(ctx, Group{
		Role:         labels.RoleController,
		Name:         naming.Controller(ctx.ClusterName()),
		InstanceType: instanceType,
		Image:        ctx.Config.Images.Controller,
		Count:        1,
		RootVolumeGB: config.ControllerRootVolumeGB,
	})
}

func NodeGroup(ctx *provisioning.Context, ng provisioning.NodeGroup) Group {
	return privateGroup(ctx, Group{
		Role:         ng.Role,
		Name:         naming.Node(ctx.ClusterName(), ng.Role),
		InstanceType: ng.InstanceType,
		Image:        ctx.Config.Images.Node,
		Count:        ng.Count,
	})
}

func LoggingGroup(ctx *provisioning.Context) Group {
	return privateGroup(ctx, Group{
		Role:         labels.RoleCentralLogging,
		Name:         naming.CentralLogging(ctx.ClusterName()),
		InstanceType: config.CentralLoggingInstanceType,
		Image:        ctx.Config.Images.Logging,
		Count:        1,
	})
}

func privateGroup(ctx *provisioning.Context, g Group) Group {
	t := ctx.State.Topology
	g.SubnetID = t.PrivateSubnet.ID
	g.SecurityGroupIDs = []string{t.PrivateSecurityGroupID}
	return g
}
