package cloud

import (
	"context"
	"errors"
)

// ErrNotVisible is wrapped by errors for resources the provider has accepted
// but does not report yet. Callers polling for a fresh resource retry.
var ErrNotVisible = errors.New("resource not visible yet")

// NetworkAPI manages networks and what hangs off them.
type NetworkAPI interface {
	ListNetworks(ctx context.Context, tags map[string]string) ([]*Network, error)
	CreateNetwork(ctx context.Context, req NetworkRequest) (*Network, error)
	DeleteNetwork(ctx context.Context, id string) error

	ListSubnets(ctx context.Context, tags map[string]string) ([]*Subnet, error)
	CreateSubnet(ctx context.Context, req SubnetRequest) (*Subnet, error)
	DeleteSubnet(ctx context.Context, id string) error

	ListGateways(ctx context.Context, tags map[string]string) ([]*Gateway, error)
	// CreateGateway creates a gateway and attaches it to req.NetworkID.
	CreateGateway(ctx context.Context, req GatewayRequest) (*Gateway, error)
	// DeleteGateway detaches the gateway from its network and deletes it.
	DeleteGateway(ctx context.Context, id string) error

	ListRouteTables(ctx context.Context, tags map[string]string) ([]*RouteTable, error)
	CreateRouteTable(ctx context.Context, req RouteTableRequest) (*RouteTable, error)
	// SetRoute creates or replaces the route for route.Destination.
	SetRoute(ctx context.Context, tableID string, route Route) error
	AssociateRouteTable(ctx context.Context, tableID, subnetID string) error
	// DeleteRouteTable removes the table's subnet associations and deletes it.
	DeleteRouteTable(ctx context.Context, id string) error
}

// SecurityAPI manages security groups.
type SecurityAPI interface {
	ListSecurityGroups(ctx context.Context, tags map[string]string) ([]*SecurityGroup, error)
	CreateSecurityGroup(ctx context.Context, req SecurityGroupRequest) (*SecurityGroup, error)
	AuthorizeIngress(ctx context.Context, groupID string, rules []Rule) error
	DeleteSecurityGroup(ctx context.Context, id string) error
}

// InstanceAPI manages instances and resource tags.
type InstanceAPI interface {
	RunInstances(ctx context.Context, req InstanceRequest) ([]*Instance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*Instance, error)
	// TagResources applies tags to instances or volumes.
	TagResources(ctx context.Context, ids []string, tags map[string]string) error
	UntagResources(ctx context.Context, ids []string, keys []string) error
	TerminateInstances(ctx context.Context, ids []string) error
	// SetSourceDestCheck toggles the check that drops packets not addressed to
	// the instance. NAT instances need it off.
	SetSourceDestCheck(ctx context.Context, instanceID string, enabled bool) error
}

// VolumeAPI manages block volumes.
type VolumeAPI interface {
	CreateVolume(ctx context.Context, req VolumeRequest) (*Volume, error)
	// GetVolume returns nil, nil when the volume does not exist.
	GetVolume(ctx context.Context, id string) (*Volume, error)
	ListVolumes(ctx context.Context, tags map[string]string) ([]*Volume, error)
	AttachVolume(ctx context.Context, volumeID, instanceID, device string) error
	DetachVolume(ctx context.Context, volumeID string) error
	DeleteVolume(ctx context.Context, id string) error
}

// Provider is a complete cloud backend.
type Provider interface {
	Name() string
	NetworkAPI
	SecurityAPI
	InstanceAPI
	VolumeAPI
}
