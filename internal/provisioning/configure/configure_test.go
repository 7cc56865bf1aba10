package configure

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/platform/ansible"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/session"
	fakes "github.com/imamik/clusterous/internal/testing"
)

type fixture struct {
	ctx        *provisioning.Context
	remote     *fakes.FakeRemote
	configurer *fakes.MockConfigurer
	dialed     []string
}

func newFixture(t *testing.T, configurer *fakes.MockConfigurer) *fixture {
	t.Helper()
	f := &fixture{remote: fakes.NewFakeRemote(), configurer: configurer}
	cfg := &config.Config{Username: "ubuntu", NATUsername: "ec2-user", S3Bucket: "registry"}
	store := session.NewStore(t.TempDir())
	require.NoError(t, store.Merge(map[string]any{session.KeyClusterName: "demo"}))

	ctx := provisioning.NewContext(context.Background(), &provisioning.Request{ClusterName: "demo", LoggingLevel: 1}, cfg, fakes.NewFakeCloud(), store)
	ctx.Timeouts = config.TestTimeouts()
	ctx.Configurer = configurer
	ctx.Dial = func(host string, port int, user string) (provisioning.RemoteCommand, error) {
		f.dialed = append(f.dialed, user+"@"+host)
		return f.remote, nil
	}
	ctx.State.NAT = &cloud.Instance{ID: "i-nat", PublicIP: "54.0.0.1", PrivateIP: "10.2.0.10"}
	ctx.State.Controller = &cloud.Instance{ID: "i-ctl", PrivateIP: "10.2.1.20"}
	ctx.State.Logging = &cloud.Instance{ID: "i-log", PrivateIP: "10.2.1.30"}
	ctx.State.Nodes["worker"] = []*cloud.Instance{{ID: "i-w1", PrivateIP: "10.2.1.40"}, {ID: "i-w2", PrivateIP: "10.2.1.41"}}
	f.ctx = ctx
	return f
}

func TestProvision_RunsPlaybooksInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakes.NewAcceptingConfigurer())

	require.NoError(t, NewProvisioner().Provision(f.ctx))

	assert.Equal(t, []string{"ec2-user@54.0.0.1"}, f.dialed)
	require.Len(t, f.remote.Commands(), 1)
	assert.Contains(t, f.remote.Commands()[0], "--to-destination 10.2.1.20:22")

	assert.Equal(t, []string{
		config.PlaybookController,
		config.PlaybookCentralLogging,
		config.PlaybookNodes,
	}, f.configurer.Playbooks())
	assert.Equal(t, ansible.Inventory{"central-logging": {"10.2.1.30"}}, f.configurer.HostsFor(config.PlaybookCentralLogging))
	assert.Equal(t, ansible.Inventory{"worker": {"10.2.1.40", "10.2.1.41"}}, f.configurer.HostsFor(config.PlaybookNodes))

	info, err := f.ctx.Session.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, info.CentralLoggingLevel)
	assert.Equal(t, "10.2.1.30", info.CentralLoggingIP)
	assert.Equal(t, config.TunnelPort, info.NATSSHPortForwarding)
	assert.False(t, info.VolumeBorrowed())
}

func TestProvision_ControllerVars(t *testing.T) {
	t.Parallel()
	m := &fakes.MockConfigurer{}
	m.On("Run", mock.Anything, config.PlaybookController, mock.Anything, mock.MatchedBy(func(vars map[string]any) bool {
		return vars["clusterous_s3_bucket"] == "registry" &&
			vars["remote_scripts_dir"] == "/home/ubuntu/clusterous" &&
			vars[session.KeyNATSSHPortForwarding] == config.TunnelPort &&
			vars[session.KeyCentralLoggingIP] == ""
	})).Return(nil).Once()
	m.On("RunOnController", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f := newFixture(t, m)

	require.NoError(t, NewProvisioner().Provision(f.ctx))
	m.AssertExpectations(t)
}

func TestProvision_ControllerPlaybookFails(t *testing.T) {
	t.Parallel()
	m := &fakes.MockConfigurer{}
	m.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&ansible.Error{Playbook: config.PlaybookController, ExitCode: 2, Err: errors.New("unreachable")})
	f := newFixture(t, m)

	err := NewProvisioner().Provision(f.ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to configure controller")
	var ae *ansible.Error
	assert.ErrorAs(t, err, &ae)
	m.AssertNotCalled(t, "RunOnController", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvision_NATForwardingFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakes.NewAcceptingConfigurer())
	f.remote.ExecErr = func(string) error { return errors.New("permission denied") }

	err := NewProvisioner().Provision(f.ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port forwarding on NAT")
	assert.Empty(t, f.configurer.Playbooks())
}

func TestProvision_RequiresInstances(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fakes.NewAcceptingConfigurer())
	f.ctx.State.Controller = nil
	assert.Error(t, NewProvisioner().Provision(f.ctx))
}

func TestConfigureNodes_NoNodes(t *testing.T) {
	t.Parallel()
	m := &fakes.MockConfigurer{}
	f := newFixture(t, m)

	require.NoError(t, ConfigureNodes(f.ctx, nil, nil))
	m.AssertNotCalled(t, "RunOnController", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestForwardCommand(t *testing.T) {
	t.Parallel()
	cmd := ForwardCommand("10.2.1.20")
	assert.Equal(t,
		"sudo iptables -t nat -C PREROUTING -p tcp --dport 22000 -j DNAT --to-destination 10.2.1.20:22 2>/dev/null || "+
			"sudo iptables -t nat -A PREROUTING -p tcp --dport 22000 -j DNAT --to-destination 10.2.1.20:22",
		cmd)
}

func TestExtraVars(t *testing.T) {
	t.Parallel()
	vars := ExtraVars(2, true)
	assert.Equal(t, 2, vars[session.KeyCentralLoggingLevel])
	assert.Equal(t, 1, vars[session.KeyBYOVolume])
	assert.Equal(t, config.TunnelPort, vars[session.KeyNATSSHPortForwarding])
}
