package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamingFunctions(t *testing.T) {
	t.Parallel()

	cluster := "demo"

	assert.Equal(t, "demo-vpc", Network(cluster))
	assert.Equal(t, "demo-public-subnet-a", Subnet(cluster, SubnetPublic, ""))
	assert.Equal(t, "demo-private-subnet-b", Subnet(cluster, SubnetPrivate, "b"))
	assert.Equal(t, "demo-gateway", Gateway(cluster))
	assert.Equal(t, "demo-public-route-table", RouteTable(cluster, SubnetPublic))
	assert.Equal(t, "demo-private-route-table", RouteTable(cluster, SubnetPrivate))
	assert.Equal(t, "demo-private-sg", PrivateSecurityGroup(cluster))
	assert.Equal(t, "demo-public-sg", PublicSecurityGroup(cluster))
	assert.Equal(t, "demo-nat", NAT(cluster))
	assert.Equal(t, "demo-controller", Controller(cluster))
	assert.Equal(t, "demo-node-worker", Node(cluster, "worker"))
	assert.Equal(t, "demo-central-logging", CentralLogging(cluster))
	assert.Equal(t, "demo-shared-volume", SharedVolume(cluster))
}

func TestValidateClusterName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "mycluster", false},
		{"dashes and underscores", "my_cluster-01", false},
		{"empty", "", true},
		{"space", "my cluster", true},
		{"dot", "my.cluster", true},
		{"exactly max length", strings.Repeat("a", MaxClusterNameLength), false},
		{"too long", strings.Repeat("a", MaxClusterNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateClusterName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTunnelSocket(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/tmp/s/clusterous_tunnel_%h_8080.sock", TunnelSocket("/tmp/s", "", 8080))
	assert.Equal(t, "/tmp/s/mine_tunnel_%h_5050.sock", TunnelSocket("/tmp/s", "mine", 5050))
	assert.Equal(t, "/tmp/clusterous_tunnel_%h_8081.sock", RemoteTunnelSocket(8081))
}
