package instances

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/metrics"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/topology"
	"github.com/imamik/clusterous/internal/session"
	fakes "github.com/imamik/clusterous/internal/testing"
	"github.com/imamik/clusterous/internal/util/labels"
)

func newContext(t *testing.T, fc *fakes.FakeCloud, req *provisioning.Request) *provisioning.Context {
	t.Helper()
	cfg := &config.Config{VPCCIDR: "10.2.0.0/16", Zone: "a", KeyPair: "demo-key"}
	ctx := provisioning.NewContext(context.Background(), req, cfg, fc, session.NewStore(t.TempDir()))
	ctx.Timeouts = config.TestTimeouts()
	ctx.Metrics = metrics.New()
	require.NoError(t, topology.NewProvisioner().Provision(ctx))
	return ctx
}

func demoRequest() *provisioning.Request {
	return &provisioning.Request{
		ClusterName: "demo",
		NodeGroups:  []provisioning.NodeGroup{{Role: "worker", InstanceType: "c4.large", Count: 3}},
	}
}

func TestProvision_LaunchesAndTagsEveryGroup(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	req := demoRequest()
	req.LoggingLevel = 1
	ctx := newContext(t, fc, req)

	require.NoError(t, NewProvisioner().Provision(ctx))

	require.NotNil(t, ctx.State.NAT)
	require.NotNil(t, ctx.State.Controller)
	require.NotNil(t, ctx.State.Logging)
	assert.Len(t, ctx.State.Nodes["worker"], 3)
	assert.NotEmpty(t, ctx.State.NAT.PublicIP)

	owned, err := ListOwned(ctx, fc, "demo")
	require.NoError(t, err)
	assert.Len(t, owned, 6)

	workers, err := ListRole(ctx, fc, "demo", "worker")
	require.NoError(t, err)
	assert.ElementsMatch(t, ctx.State.NodeIPs("worker"), []string{
		workers[0].PrivateIP, workers[1].PrivateIP, workers[2].PrivateIP,
	})
	assert.Equal(t, "demo-node-worker", workers[0].Name)

	assert.False(t, fc.SourceDestCheck(ctx.State.NAT.ID))
	rt := fc.RouteTable(ctx.State.Topology.PrivateRouteTableID)
	assert.Equal(t, []cloud.Route{{Destination: topology.DefaultRoute, InstanceID: ctx.State.NAT.ID}}, rt.Routes)

	info, err := ctx.Session.Raw()
	require.NoError(t, err)
	assert.Equal(t, ctx.State.NAT.PublicIP, info[session.KeyNATIP])
	host, port, err := ctx.Session.Controller()
	require.NoError(t, err)
	assert.Equal(t, ctx.State.NAT.PublicIP, host)
	assert.Equal(t, config.TunnelPort, port)

	assert.InDelta(t, 3, launchedCount(t, ctx.Metrics, "worker"), 0)
	assert.InDelta(t, 1, launchedCount(t, ctx.Metrics, labels.RoleNAT), 0)
}

func TestProvision_NoLoggingInstanceByDefault(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	ctx := newContext(t, fc, demoRequest())

	require.NoError(t, NewProvisioner().Provision(ctx))
	assert.Nil(t, ctx.State.Logging)

	logging, err := ListRole(ctx, fc, "demo", labels.RoleCentralLogging)
	require.NoError(t, err)
	assert.Empty(t, logging)
}

func TestProvision_RequiresTopology(t *testing.T) {
	t.Parallel()
	ctx := newContext(t, fakes.NewFakeCloud(), demoRequest())
	ctx.State.Topology = nil
	assert.Error(t, NewProvisioner().Provision(ctx))
}

func TestConverge_TagsOnlyWhenRunning(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	fc.LaunchStates = func(cloud.InstanceRequest, int) []cloud.InstanceState {
		return []cloud.InstanceState{cloud.StatePending, cloud.StatePending, cloud.StatePending, cloud.StateRunning}
	}
	ctx := newContext(t, fc, demoRequest())
	g := NodeGroup(ctx, ctx.Request.NodeGroups[0])

	ids, err := Launch(ctx, g)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	// Nothing is tagged before convergence, so ownership queries miss it.
	owned, err := ListOwned(ctx, fc, "demo")
	require.NoError(t, err)
	assert.Empty(t, owned)

	insts, err := Converge(ctx, g, ids)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	for i, inst := range insts {
		assert.Equal(t, ids[i], inst.ID)
		assert.Equal(t, "worker", inst.Role())
		assert.Equal(t, "demo", inst.Tags[labels.KeyCluster])
	}

	owned, err = ListOwned(ctx, fc, "demo")
	require.NoError(t, err)
	assert.Len(t, owned, 3)
}

func TestConverge_WaitsForLaggingDescribe(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	ctx := newContext(t, fc, demoRequest())
	g := NodeGroup(ctx, ctx.Request.NodeGroups[0])
	lag := fmt.Errorf("describe instances: %w: InvalidInstanceID.NotFound", cloud.ErrNotVisible)
	fc.FailNext("ListInstances", lag)
	fc.FailNext("TagResources", lag)

	insts, err := LaunchAndConverge(ctx, g)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	assert.GreaterOrEqual(t, fc.CallCount("ListInstances"), 2)

	owned, err := ListOwned(ctx, fc, "demo")
	require.NoError(t, err)
	assert.Len(t, owned, 3)
}

func TestConverge_DescribeErrorIsFatal(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	ctx := newContext(t, fc, demoRequest())
	fc.FailNext("ListInstances", errors.New("UnauthorizedOperation"))

	_, err := LaunchAndConverge(ctx, NodeGroup(ctx, ctx.Request.NodeGroups[0]))
	require.Error(t, err)
	assert.True(t, errdefs.IsProvider(err))
}

func TestConverge_FailureStateIsFatal(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	fc.LaunchStates = func(_ cloud.InstanceRequest, i int) []cloud.InstanceState {
		if i == 1 {
			return []cloud.InstanceState{cloud.StatePending, cloud.StateStopped}
		}
		return []cloud.InstanceState{cloud.StateRunning}
	}
	ctx := newContext(t, fc, demoRequest())

	_, err := LaunchAndConverge(ctx, NodeGroup(ctx, ctx.Request.NodeGroups[0]))
	require.Error(t, err)
	assert.True(t, errdefs.IsInstanceState(err))
	assert.Contains(t, err.Error(), "stopped")
}

func TestConverge_Timeout(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	fc.LaunchStates = func(_ cloud.InstanceRequest, i int) []cloud.InstanceState {
		if i == 0 {
			return []cloud.InstanceState{cloud.StateRunning}
		}
		return []cloud.InstanceState{cloud.StatePending}
	}
	ctx := newContext(t, fc, demoRequest())

	_, err := LaunchAndConverge(ctx, NodeGroup(ctx, ctx.Request.NodeGroups[0]))
	require.Error(t, err)
	assert.True(t, errdefs.IsTimeout(err))
	assert.Contains(t, err.Error(), "1 of 3 worker instance(s) running")
}

func TestLaunch_RetriesWithSameToken(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	ctx := newContext(t, fc, demoRequest())
	fc.SetError("RunInstances", errors.New("RequestLimitExceeded"))

	_, err := Launch(ctx, ControllerGroup(ctx))
	require.Error(t, err)
	assert.True(t, errdefs.IsProvider(err))
	assert.Equal(t, ctx.Timeouts.RetryMaxAttempts+1, fc.CallCount("RunInstances"))
}

func TestGroups(t *testing.T) {
	t.Parallel()
	ctx := newContext(t, fakes.NewFakeCloud(), demoRequest())
	ctx.Config.Images = config.Images{NAT: "ami-nat", Controller: "ami-ctl", Node: "ami-node", Logging: "ami-log"}
	topo := ctx.State.Topology

	nat := NATGroup(ctx)
	assert.True(t, nat.PublicIP)
	assert.Equal(t, topo.PublicSubnet.ID, nat.SubnetID)
	assert.Equal(t, []string{topo.PublicSecurityGroupID}, nat.SecurityGroupIDs)
	assert.Equal(t, "ami-nat", nat.Image)

	ctl := ControllerGroup(ctx)
	assert.Equal(t, config.ControllerRootVolumeGB, ctl.RootVolumeGB)
	assert.Equal(t, config.ControllerInstanceType, ctl.InstanceType)
	assert.Equal(t, topo.PrivateSubnet.ID, ctl.SubnetID)

	ctx.Request.ControllerInstanceType = "m4.xlarge"
	assert.Equal(t, "m4.xlarge", ControllerGroup(ctx).InstanceType)

	logging := LoggingGroup(ctx)
	assert.Equal(t, "demo-central-logging", logging.Name)
	assert.Equal(t, map[string]string{
		labels.KeyCluster: "demo",
		labels.KeyName:    "demo-central-logging",
		labels.KeyRole:    labels.RoleCentralLogging,
	}, logging.Tags("demo"))
}

func TestTerminate(t *testing.T) {
	t.Parallel()
	fc := fakes.NewFakeCloud()
	ctx := newContext(t, fc, demoRequest())
	a := fc.AddRunningInstance(labels.OwnedWithRole("demo", "worker"), "10.2.1.5", "")
	b := fc.AddRunningInstance(labels.OwnedWithRole("demo", "worker"), "10.2.1.6", "")

	require.NoError(t, Terminate(ctx, []string{a, b}))
	require.NoError(t, Terminate(ctx, nil))

	c := fc.AddRunningInstance(labels.OwnedWithRole("demo", "worker"), "10.2.1.7", "")
	fc.FailNext("ListInstances", fmt.Errorf("describe instances: %w", cloud.ErrNotVisible))
	require.NoError(t, Terminate(ctx, []string{c}), "instances gone from listings count as terminated")

	owned, err := ListOwned(ctx, fc, "demo")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func launchedCount(t *testing.T, m *metrics.Metrics, role string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "clusterous_instances_launched_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "role" && l.GetValue() == role {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
