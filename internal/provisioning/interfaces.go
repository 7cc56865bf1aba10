package provisioning

import (
	"context"

	"github.com/imamik/clusterous/internal/platform/ansible"
)

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	Provision(ctx *Context) error
}

// Logger is the minimal logging interface used by provisioning code.
type Logger interface {
	Printf(format string, v ...any)
}

// Configurer applies configuration playbooks.
// Implemented by internal/platform/ansible.Executor.
type Configurer interface {
	// Run applies playbook to the hosts of the inventory file at inventoryPath.
	Run(ctx context.Context, playbook, inventoryPath string, vars map[string]any) error

	// RunOnController applies playbook from the controller to hosts, which
	// are only reachable from inside the cluster network.
	RunOnController(ctx context.Context, controllerInventory, playbook string, hosts ansible.Inventory, vars map[string]any) error
}

// RemoteCommand runs a shell command on one host.
type RemoteCommand interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Dialer connects to a host over SSH.
type Dialer func(host string, port int, user string) (RemoteCommand, error)

// BucketEnsurer creates an object storage bucket if it is missing.
// Implemented by internal/platform/s3.Client.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context, name string) (bool, error)
}
