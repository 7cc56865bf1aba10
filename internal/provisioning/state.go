package provisioning

import (
	"github.com/imamik/clusterous/internal/platform/cloud"
)

// NodeGroup is a group of identical worker instances.
type NodeGroup struct {
	Role         string
	InstanceType string
	Count        int
}

// Request describes the cluster to build. It is not modified once
// provisioning starts.
type Request struct {
	ClusterName string
	NodeGroups  []NodeGroup

	// LoggingLevel above zero adds the central logging instance.
	LoggingLevel int

	// ControllerInstanceType overrides config.ControllerInstanceType.
	ControllerInstanceType string

	// VolumeID borrows an existing volume instead of creating one.
	VolumeID string
	// VolumeSizeGB is the size of a created volume, config.SharedVolumeGB when zero.
	VolumeSizeGB int
}

// Topology is the network layout of a cluster.
type Topology struct {
	NetworkID              string
	CIDR                   string
	PublicSubnet           *cloud.Subnet
	PrivateSubnet          *cloud.Subnet
	GatewayID              string
	PublicRouteTableID     string
	PrivateRouteTableID    string
	PublicSecurityGroupID  string
	PrivateSecurityGroupID string

	// Created lists the resource kinds created by this run rather than found.
	Created map[string]bool
}

// State holds the shared results of provisioning phases.
// It is progressively populated as each phase completes and is passed
// to subsequent phases that need earlier results.
type State struct {
	Topology *Topology

	NAT        *cloud.Instance
	Controller *cloud.Instance
	Logging    *cloud.Instance
	Nodes      map[string][]*cloud.Instance // role -> converged instances

	VolumeID       string
	VolumeBorrowed bool

	// Recorded is set once the cluster is the active one in the session.
	// A failure after that point leaves a partial cluster behind.
	Recorded bool
}

// NewState creates an empty provisioning state.
func NewState() *State {
	return &State{Nodes: make(map[string][]*cloud.Instance)}
}

// NodeIPs returns the private addresses of a role's converged instances.
func (s *State) NodeIPs(role string) []string {
	ips := make([]string, 0, len(s.Nodes[role]))
	for _, inst := range s.Nodes[role] {
		ips = append(ips, inst.PrivateIP)
	}
	return ips
}
