package ansible

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/util/shell"
)

// RunRemotePlaybook relays a playbook to the controller and runs it there.
const RunRemotePlaybook = "run_remote.yml"

// Error is a failed playbook run.
type Error struct {
	Playbook string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ansible-playbook %s exited with code %d", e.Playbook, e.ExitCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Inventory maps a host group to its addresses.
type Inventory map[string][]string

// Render writes the inventory in ansible's INI format, groups sorted.
func (inv Inventory) Render() []byte {
	var b bytes.Buffer
	for _, group := range slices.Sorted(maps.Keys(inv)) {
		fmt.Fprintf(&b, "[%s]\n", group)
		for _, host := range inv[group] {
			b.WriteString(host)
			b.WriteByte('\n')
		}
	}
	return b.Bytes()
}

// Options configures an Executor.
type Options struct {
	PlaybookDir string
	KeyFile     string
	// RemoteUser owns the home directory playbooks are relayed to.
	RemoteUser string
	// Env is added to ansible-playbook's environment, e.g. provider
	// credentials used by the playbooks.
	Env map[string]string
}

// Executor runs playbooks.
type Executor struct {
	opts   Options
	runner shell.Runner
}

func NewExecutor(runner shell.Runner, opts Options) *Executor {
	if opts.RemoteUser == "" {
		opts.RemoteUser = "ubuntu"
	}
	return &Executor{opts: opts, runner: runner}
}

// Run applies playbook to the hosts of the inventory file at inventoryPath.
func (e *Executor) Run(ctx context.Context, playbook, inventoryPath string, vars map[string]any) error {
	varsFile, cleanup, err := writeTemp("vars-*.yml", vars)
	if err != nil {
		return err
	}
	defer cleanup()

	env := map[string]string{"ANSIBLE_HOST_KEY_CHECKING": "False"}
	for k, v := range e.opts.Env {
		env[k] = v
	}
	cmd := shell.Command{
		Name: "ansible-playbook",
		Args: []string{
			"-i", inventoryPath,
			"--private-key", e.opts.KeyFile,
			"-c", "ssh",
			"--extra-vars", "@" + varsFile,
			e.playbookPath(playbook),
		},
		Env: env,
	}
	out, err := e.runner.Run(ctx, cmd)
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		log.Printf("[Ansible] %s failed with code %d", playbook, code)
		return &Error{Playbook: playbook, ExitCode: code, Output: strings.TrimSpace(string(out)), Err: err}
	}
	return nil
}

// RunOnController runs playbook on the controller against hosts. The
// controller is reached through the inventory at controllerInventory.
func (e *Executor) RunOnController(ctx context.Context, controllerInventory, playbook string, hosts Inventory, remoteVars map[string]any) error {
	hostsFile, cleanupHosts, err := writeTempBytes("hosts-*", hosts.Render())
	if err != nil {
		return err
	}
	defer cleanupHosts()

	if remoteVars == nil {
		remoteVars = map[string]any{}
	}
	remoteVarsFile, cleanupVars, err := writeTemp("remote-vars-*.yml", remoteVars)
	if err != nil {
		return err
	}
	defer cleanupVars()

	local := map[string]any{
		"key_file_src":    e.opts.KeyFile,
		"key_file_name":   config.RemoteKeyFile,
		"hosts_file_src":  hostsFile,
		"hosts_file_name": filepath.Base(hostsFile),
		"vars_file_src":   remoteVarsFile,
		"vars_file_name":  filepath.Base(remoteVarsFile),
		"remote_dir":      fmt.Sprintf("/home/%s/%s", e.opts.RemoteUser, config.RemoteScriptsDir),
		"playbook_file":   playbook,
	}
	if err := e.Run(ctx, RunRemotePlaybook, controllerInventory, local); err != nil {
		return fmt.Errorf("failed to run %s on controller: %w", playbook, err)
	}
	return nil
}

func (e *Executor) playbookPath(playbook string) string {
	if filepath.IsAbs(playbook) {
		return playbook
	}
	return filepath.Join(e.opts.PlaybookDir, playbook)
}

func writeTemp(pattern string, vars map[string]any) (string, func(), error) {
	if vars == nil {
		vars = map[string]any{}
	}
	data, err := yaml.Marshal(vars)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode vars: %w", err)
	}
	return writeTempBytes(pattern, data)
}

func writeTempBytes(pattern string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}
