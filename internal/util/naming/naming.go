package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// MaxClusterNameLength bounds cluster names so that every derived name still
// fits the provider's tag value limits.
const MaxClusterNameLength = 64

// DefaultZone is the zone suffix used when the caller does not pick one.
const DefaultZone = "a"

var clusterNamePattern = regexp.MustCompile(`^[\w-]+$`)

// Subnet kinds.
const (
	SubnetPublic  = "public"
	SubnetPrivate = "private"
)

// ValidateClusterName checks that name is non-empty, tag-safe and bounded.
func ValidateClusterName(name string) error {
	if name == "" {
		return fmt.Errorf("cluster name is required")
	}
	if len(name) > MaxClusterNameLength {
		return fmt.Errorf("cluster name %q is longer than %d characters", name, MaxClusterNameLength)
	}
	if !clusterNamePattern.MatchString(name) {
		return fmt.Errorf("cluster name %q may only contain letters, digits, underscores and dashes", name)
	}
	return nil
}

func Network(cluster string) string {
	return fmt.Sprintf("%s-vpc", cluster)
}

func Subnet(cluster, kind, zone string) string {
	if zone == "" {
		zone = DefaultZone
	}
	return fmt.Sprintf("%s-%s-subnet-%s", cluster, kind, zone)
}

func Gateway(cluster string) string {
	return fmt.Sprintf("%s-gateway", cluster)
}

func RouteTable(cluster, kind string) string {
	return fmt.Sprintf("%s-%s-route-table", cluster, kind)
}

func PrivateSecurityGroup(cluster string) string {
	return fmt.Sprintf("%s-private-sg", cluster)
}

func PublicSecurityGroup(cluster string) string {
	return fmt.Sprintf("%s-public-sg", cluster)
}

func NAT(cluster string) string {
	return fmt.Sprintf("%s-nat", cluster)
}

func Controller(cluster string) string {
	return fmt.Sprintf("%s-controller", cluster)
}

func Node(cluster, role string) string {
	return fmt.Sprintf("%s-node-%s", cluster, role)
}

func CentralLogging(cluster string) string {
	return fmt.Sprintf("%s-central-logging", cluster)
}

func SharedVolume(cluster string) string {
	return fmt.Sprintf("%s-shared-volume", cluster)
}

// DefaultTunnelPrefix is used for permanent tunnels when the caller passes none.
const DefaultTunnelPrefix = "clusterous"

// TunnelSocket returns the control socket path of a permanent tunnel. The
// literal %h is expanded by ssh to the remote host.
func TunnelSocket(dir, prefix string, localPort int) string {
	if prefix == "" {
		prefix = DefaultTunnelPrefix
	}
	return filepath.Join(dir, fmt.Sprintf("%s_tunnel_%%h_%d.sock", prefix, localPort))
}

// RemoteTunnelSocket is the control socket used on the controller for
// controller-mediated tunnels.
func RemoteTunnelSocket(remotePort int) string {
	return fmt.Sprintf("/tmp/clusterous_tunnel_%%h_%d.sock", remotePort)
}
