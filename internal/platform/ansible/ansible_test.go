package ansible_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/imamik/clusterous/internal/platform/ansible"
	testutil "github.com/imamik/clusterous/internal/testing"
	"github.com/imamik/clusterous/internal/util/shell"
)

func TestInventoryRender(t *testing.T) {
	t.Parallel()

	inv := ansible.Inventory{
		"worker":          {"10.2.1.11", "10.2.1.12"},
		"central-logging": {"10.2.1.20"},
	}
	assert.Equal(t, "[central-logging]\n10.2.1.20\n[worker]\n10.2.1.11\n10.2.1.12\n", string(inv.Render()))
	assert.Empty(t, ansible.Inventory{}.Render())
}

// varsOf reads the --extra-vars file while the command is running.
func varsOf(t *testing.T, cmd shell.Command) map[string]any {
	t.Helper()
	for _, a := range cmd.Args {
		if strings.HasPrefix(a, "@") {
			data, err := os.ReadFile(strings.TrimPrefix(a, "@"))
			require.NoError(t, err)
			out := map[string]any{}
			require.NoError(t, yaml.Unmarshal(data, &out))
			return out
		}
	}
	t.Fatal("no --extra-vars argument")
	return nil
}

func TestRun(t *testing.T) {
	t.Parallel()

	var vars map[string]any
	runner := &testutil.FakeRunner{Respond: func(cmd shell.Command) ([]byte, error) {
		vars = varsOf(t, cmd)
		return nil, nil
	}}
	e := ansible.NewExecutor(runner, ansible.Options{
		PlaybookDir: "/opt/playbooks",
		KeyFile:     "/keys/id.pem",
		Env:         map[string]string{"AWS_ACCESS_KEY_ID": "AK"},
	})

	err := e.Run(context.Background(), "01_configure_controller.yml", "/state/current_controller", map[string]any{"byo_volume": 1})
	require.NoError(t, err)

	cmds := runner.Commands()
	require.Len(t, cmds, 1)
	cmd := cmds[0]
	assert.Equal(t, "ansible-playbook", cmd.Name)
	assert.Equal(t, []string{"-i", "/state/current_controller", "--private-key", "/keys/id.pem", "-c", "ssh", "--extra-vars"}, cmd.Args[:7])
	assert.Equal(t, "/opt/playbooks/01_configure_controller.yml", cmd.Args[8])
	assert.Equal(t, "False", cmd.Env["ANSIBLE_HOST_KEY_CHECKING"])
	assert.Equal(t, "AK", cmd.Env["AWS_ACCESS_KEY_ID"])
	assert.Equal(t, 1, vars["byo_volume"])

	_, err = os.Stat(strings.TrimPrefix(cmd.Args[7], "@"))
	assert.True(t, os.IsNotExist(err), "vars file should be removed")
}

func TestRunFailure(t *testing.T) {
	t.Parallel()

	runner := &testutil.FakeRunner{Respond: func(shell.Command) ([]byte, error) {
		return []byte("fatal: [10.2.1.10]: UNREACHABLE!\n"), errors.New("exit status 4")
	}}
	e := ansible.NewExecutor(runner, ansible.Options{PlaybookDir: "/opt/playbooks", KeyFile: "k"})

	err := e.Run(context.Background(), "configure_nodes.yml", "hosts", nil)

	var ae *ansible.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "configure_nodes.yml", ae.Playbook)
	assert.Equal(t, -1, ae.ExitCode)
	assert.Contains(t, ae.Output, "UNREACHABLE")
}

func TestRunExitCode(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	t.Parallel()

	exitErr := exec.Command("sh", "-c", "exit 2").Run()
	runner := &testutil.FakeRunner{Respond: func(shell.Command) ([]byte, error) { return nil, exitErr }}
	e := ansible.NewExecutor(runner, ansible.Options{KeyFile: "k"})

	var ae *ansible.Error
	require.ErrorAs(t, e.Run(context.Background(), "/abs/play.yml", "hosts", nil), &ae)
	assert.Equal(t, 2, ae.ExitCode)
	assert.Equal(t, "/abs/play.yml", runner.Commands()[0].Args[8])
}

func TestRunOnController(t *testing.T) {
	t.Parallel()

	var local, remote map[string]any
	var hosts string
	runner := &testutil.FakeRunner{Respond: func(cmd shell.Command) ([]byte, error) {
		local = varsOf(t, cmd)
		data, err := os.ReadFile(local["vars_file_src"].(string))
		require.NoError(t, err)
		require.NoError(t, yaml.Unmarshal(data, &remote))
		h, err := os.ReadFile(local["hosts_file_src"].(string))
		require.NoError(t, err)
		hosts = string(h)
		return nil, nil
	}}
	e := ansible.NewExecutor(runner, ansible.Options{PlaybookDir: "/opt/playbooks", KeyFile: "/keys/id.pem"})

	err := e.RunOnController(context.Background(), "/state/current_controller", "configure_nodes.yml",
		ansible.Inventory{"worker": {"10.2.1.11"}}, map[string]any{"central_logging_level": 2})
	require.NoError(t, err)

	cmd := runner.Commands()[0]
	assert.Equal(t, "/opt/playbooks/run_remote.yml", cmd.Args[8])
	assert.Equal(t, "/state/current_controller", cmd.Args[1])
	assert.Equal(t, "configure_nodes.yml", local["playbook_file"])
	assert.Equal(t, "key.pem", local["key_file_name"])
	assert.Equal(t, "/keys/id.pem", local["key_file_src"])
	assert.Equal(t, "/home/ubuntu/clusterous", local["remote_dir"])
	assert.Equal(t, 2, remote["central_logging_level"])
	assert.Equal(t, "[worker]\n10.2.1.11\n", hosts)
}

func TestRunOnControllerFailureNamesPlaybook(t *testing.T) {
	t.Parallel()

	runner := &testutil.FakeRunner{Respond: func(shell.Command) ([]byte, error) { return nil, errors.New("exit status 2") }}
	e := ansible.NewExecutor(runner, ansible.Options{KeyFile: "k"})

	err := e.RunOnController(context.Background(), "inv", "configure_central_logging.yml", ansible.Inventory{}, nil)
	assert.ErrorContains(t, err, "configure_central_logging.yml")
	var ae *ansible.Error
	assert.ErrorAs(t, err, &ae)
}
