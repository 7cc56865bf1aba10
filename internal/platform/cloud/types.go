package cloud

import (
	"time"

	"github.com/imamik/clusterous/internal/util/labels"
)

// InstanceState is the provider-reported lifecycle state of an instance.
type InstanceState string

const (
	StatePending      InstanceState = "pending"
	StateRunning      InstanceState = "running"
	StateShuttingDown InstanceState = "shutting-down"
	StateTerminated   InstanceState = "terminated"
	StateStopping     InstanceState = "stopping"
	StateStopped      InstanceState = "stopped"
)

// LaunchFailureStates are states that abort a launch when observed while
// waiting for instances to converge.
var LaunchFailureStates = []InstanceState{StateTerminated, StateStopped, StateStopping, StateShuttingDown}

// OwnedStates are the states included when listing the instances a cluster
// owns. Pending is included so instances still booting count as existing.
var OwnedStates = []InstanceState{StateRunning, StatePending, StateStopping, StateShuttingDown}

// VolumeState is the provider-reported state of a block volume.
type VolumeState string

const (
	VolumeCreating  VolumeState = "creating"
	VolumeAvailable VolumeState = "available"
	VolumeInUse     VolumeState = "in-use"
	VolumeDeleting  VolumeState = "deleting"
	VolumeError     VolumeState = "error"
)

type Network struct {
	ID   string
	Name string
	CIDR string
	Tags map[string]string
}

type Subnet struct {
	ID        string
	Name      string
	NetworkID string
	CIDR      string
	Zone      string
	Tags      map[string]string
}

// Gateway connects a network to the internet.
type Gateway struct {
	ID        string
	Name      string
	NetworkID string
	Tags      map[string]string
}

// Route sends Destination either to a gateway or to an instance.
type Route struct {
	Destination string
	GatewayID   string
	InstanceID  string
}

type RouteTable struct {
	ID        string
	Name      string
	NetworkID string
	Routes    []Route
	SubnetIDs []string
	Tags      map[string]string
}

// Protocol "-1" means every protocol.
const ProtocolAll = "-1"

// Rule is one ingress permission. Exactly one of CIDR and SourceGroupID is set.
type Rule struct {
	Protocol      string
	FromPort      int
	ToPort        int
	CIDR          string
	SourceGroupID string
}

type SecurityGroup struct {
	ID        string
	Name      string
	NetworkID string
	Rules     []Rule
	Tags      map[string]string
}

type Instance struct {
	ID           string
	Name         string
	State        InstanceState
	PublicIP     string
	PrivateIP    string
	Zone         string
	SubnetID     string
	InstanceType string
	LaunchTime   time.Time
	Tags         map[string]string
}

// Role returns the role tag, empty while the instance is untagged.
func (i *Instance) Role() string {
	return i.Tags[labels.KeyRole]
}

// Addressable reports whether the instance is running with a private address.
func (i *Instance) Addressable() bool {
	return i.State == StateRunning && i.PrivateIP != ""
}

type Volume struct {
	ID         string
	SizeGB     int
	Zone       string
	State      VolumeState
	AttachedTo string
	Tags       map[string]string
}

// Requests.

type NetworkRequest struct {
	CIDR string
	Tags map[string]string
}

type SubnetRequest struct {
	NetworkID string
	CIDR      string
	Zone      string
	Tags      map[string]string
}

type GatewayRequest struct {
	NetworkID string
	Tags      map[string]string
}

type RouteTableRequest struct {
	NetworkID string
	Tags      map[string]string
}

type SecurityGroupRequest struct {
	Name        string
	Description string
	NetworkID   string
	Tags        map[string]string
}

// InstanceRequest launches Count identical instances. Instances are created
// untagged; callers tag them once they converge. NamePrefix is only used by
// providers that require a name at creation time.
type InstanceRequest struct {
	Count            int
	InstanceType     string
	Image            string
	SubnetID         string
	SecurityGroupIDs []string
	KeyName          string
	PublicIP         bool
	RootVolumeGB     int
	ClientToken      string
	NamePrefix       string
}

type VolumeRequest struct {
	SizeGB int
	Zone   string
	Tags   map[string]string
}

// InstanceFilter selects instances. Empty fields do not filter.
type InstanceFilter struct {
	IDs    []string
	Tags   map[string]string
	States []InstanceState
}
