package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	testutil "github.com/imamik/clusterous/internal/testing"
	"github.com/imamik/clusterous/internal/util/labels"
)

func newContext(t *testing.T, fc *testutil.FakeCloud) *provisioning.Context {
	t.Helper()
	cfg := &config.Config{VPCCIDR: "10.2.0.0/16", Zone: "a"}
	ctx := provisioning.NewContext(context.Background(), &provisioning.Request{ClusterName: "demo"}, cfg, fc, nil)
	ctx.Timeouts = config.TestTimeouts()
	return ctx
}

func TestBuild_CreatesEverything(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCloud()
	ctx := newContext(t, fc)

	topo, err := Build(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, topo.NetworkID)
	assert.Equal(t, "10.2.0.0/24", topo.PublicSubnet.CIDR)
	assert.Equal(t, "10.2.1.0/24", topo.PrivateSubnet.CIDR)
	for kind, created := range topo.Created {
		assert.True(t, created, kind)
	}
	assert.Len(t, topo.Created, 8)

	counts := fc.ResourceCounts()
	assert.Equal(t, 1, counts["networks"])
	assert.Equal(t, 2, counts["subnets"])
	assert.Equal(t, 1, counts["gateways"])
	assert.Equal(t, 2, counts["routeTables"])
	assert.Equal(t, 2, counts["securityGroups"])

	public := fc.RouteTable(topo.PublicRouteTableID)
	require.NotNil(t, public)
	assert.Equal(t, []cloud.Route{{Destination: DefaultRoute, GatewayID: topo.GatewayID}}, public.Routes)
	assert.Equal(t, []string{topo.PublicSubnet.ID}, public.SubnetIDs)

	private := fc.RouteTable(topo.PrivateRouteTableID)
	require.NotNil(t, private)
	assert.Empty(t, private.Routes)
}

func TestBuild_Idempotent(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCloud()
	ctx := newContext(t, fc)

	first, err := Build(ctx)
	require.NoError(t, err)
	second, err := Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.NetworkID, second.NetworkID)
	assert.Equal(t, first.PublicSubnet.ID, second.PublicSubnet.ID)
	assert.Equal(t, first.PrivateSecurityGroupID, second.PrivateSecurityGroupID)
	for kind, created := range second.Created {
		assert.False(t, created, kind)
	}

	counts := fc.ResourceCounts()
	assert.Equal(t, 1, counts["networks"])
	assert.Equal(t, 2, counts["subnets"])
	assert.Equal(t, 1, counts["gateways"])
	assert.Equal(t, 2, counts["securityGroups"])
	assert.Equal(t, 2, fc.CallCount("AuthorizeIngress"))
	assert.Equal(t, 1, fc.CallCount("AssociateRouteTable"))
}

func TestBuild_IgnoresOtherClusters(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCloud()
	other := newContext(t, fc)
	other.Request.ClusterName = "other"
	_, err := Build(other)
	require.NoError(t, err)

	topo, err := Build(newContext(t, fc))
	require.NoError(t, err)
	assert.True(t, topo.Created["network"])
	assert.Equal(t, 2, fc.ResourceCounts()["networks"])
}

func TestBuild_ProviderError(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCloud()
	fc.SetError("CreateGateway", errors.New("quota exceeded"))

	_, err := Build(newContext(t, fc))
	require.Error(t, err)
	assert.True(t, errdefs.IsProvider(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestSecurityRules(t *testing.T) {
	t.Parallel()
	private := PrivateRules("10.2.0.0/16")
	require.Len(t, private, 1)
	assert.Equal(t, cloud.ProtocolAll, private[0].Protocol)
	assert.Equal(t, "10.2.0.0/16", private[0].CIDR)

	public := PublicRules("sg-1")
	require.Len(t, public, 3)
	assert.Equal(t, config.SSHPort, public[0].FromPort)
	assert.Equal(t, config.TunnelPort, public[1].FromPort)
	assert.Equal(t, "sg-1", public[2].SourceGroupID)
}

func TestRoutePrivateThroughNAT(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCloud()
	ctx := newContext(t, fc)
	topo, err := Build(ctx)
	require.NoError(t, err)

	nat := fc.AddRunningInstance(labels.OwnedWithRole("demo", labels.RoleNAT), "10.2.0.10", "54.0.0.1")
	require.NoError(t, RoutePrivateThroughNAT(ctx, topo, nat))
	require.NoError(t, RoutePrivateThroughNAT(ctx, topo, nat))

	rt := fc.RouteTable(topo.PrivateRouteTableID)
	assert.Equal(t, []cloud.Route{{Destination: DefaultRoute, InstanceID: nat}}, rt.Routes)
	assert.Equal(t, []string{topo.PrivateSubnet.ID}, rt.SubnetIDs)
}

func TestProvisioner_StoresTopology(t *testing.T) {
	t.Parallel()
	ctx := newContext(t, testutil.NewFakeCloud())
	p := NewProvisioner()
	assert.Equal(t, "topology", p.Name())

	require.NoError(t, p.Provision(ctx))
	require.NotNil(t, ctx.State.Topology)
	assert.NotEmpty(t, ctx.State.Topology.PublicSecurityGroupID)
}
