package configure

import (
	"fmt"
	"maps"
	"net"
	"path"
	"strconv"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/platform/ansible"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/session"
)

const phase = "configure"

// Provisioner is the configure phase.
type Provisioner struct{}

func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

func (p *Provisioner) Name() string {
	return phase
}

func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if ctx.State.NAT == nil || ctx.State.Controller == nil {
		return fmt.Errorf("NAT and controller must be provisioned first")
	}
	if ctx.Configurer == nil || ctx.Dial == nil {
		return fmt.Errorf("configure phase needs a configurer and a dialer")
	}

	ctx.Observer.Printf("[%s] Configuring NAT", phase)
	if err := ForwardTunnelPort(ctx, ctx.State.NAT.PublicIP, ctx.State.Controller.PrivateIP); err != nil {
		return err
	}

	extra := ExtraVars(ctx.Request.LoggingLevel, ctx.State.VolumeBorrowed)

	ctx.Observer.Printf("[%s] Configuring controller instance...", phase)
	vars := ControllerVars(ctx.Config)
	maps.Copy(vars, extra)
	if err := ctx.Configurer.Run(ctx, config.PlaybookController, ctx.Session.InventoryPath(), vars); err != nil {
		return fmt.Errorf("failed to configure controller: %w", err)
	}

	if logging := ctx.State.Logging; logging != nil {
		ctx.Observer.Printf("[%s] Configuring central logging...", phase)
		extra[session.KeyCentralLoggingIP] = logging.PrivateIP
		hosts := ansible.Inventory{"central-logging": {logging.PrivateIP}}
		if err := ctx.Configurer.RunOnController(ctx, ctx.Session.InventoryPath(), config.PlaybookCentralLogging, hosts, nil); err != nil {
			return fmt.Errorf("failed to configure central logging: %w", err)
		}
	}

	if err := ctx.Session.Merge(extra); err != nil {
		return fmt.Errorf("failed to record configuration: %w", err)
	}

	return ConfigureNodes(ctx, ctx.State.Nodes, extra)
}

// ForwardTunnelPort makes the NAT forward config.TunnelPort to the
// controller's SSH port. The rule is only appended when missing.
func ForwardTunnelPort(ctx *provisioning.Context, natIP, controllerIP string) error {
	remote, err := ctx.Dial(natIP, config.SSHPort, ctx.Config.NATUsername)
	if err != nil {
		return fmt.Errorf("failed to connect to NAT %s: %w", natIP, err)
	}
	if out, err := remote.Execute(ctx, ForwardCommand(controllerIP)); err != nil {
		return fmt.Errorf("failed to set up port forwarding on NAT: %w (output: %s)", err, out)
	}
	return nil
}

// ForwardCommand is the iptables invocation run on the NAT.
func ForwardCommand(controllerIP string) string {
	rule := fmt.Sprintf("PREROUTING -p tcp --dport %d -j DNAT --to-destination %s",
		config.TunnelPort, net.JoinHostPort(controllerIP, strconv.Itoa(config.SSHPort)))
	return fmt.Sprintf("sudo iptables -t nat -C %s 2>/dev/null || sudo iptables -t nat -A %s", rule, rule)
}

// ExtraVars are the variables every playbook receives and the session keeps.
func ExtraVars(loggingLevel int, borrowedVolume bool) map[string]any {
	byo := 0
	if borrowedVolume {
		byo = 1
	}
	return map[string]any{
		session.KeyCentralLoggingLevel:  loggingLevel,
		session.KeyCentralLoggingIP:     "",
		session.KeyBYOVolume:            byo,
		session.KeyNATSSHPortForwarding: config.TunnelPort,
	}
}

// ControllerVars are the controller playbook's own variables.
func ControllerVars(cfg *config.Config) map[string]any {
	return map[string]any{
		"AWS_KEY":              cfg.AccessKeyID,
		"AWS_SECRET":           cfg.SecretAccessKey,
		"clusterous_s3_bucket": cfg.S3Bucket,
		"registry_s3_path":     config.RegistryS3Path,
		"remote_scripts_dir":   path.Join("/home", cfg.Username, config.RemoteScriptsDir),
		"shared_volume_path":   config.SharedVolumePath,
		"shared_volume_device": config.SharedVolumeDevice,
	}
}

// ConfigureNodes runs the node playbook from the controller against every
// node, grouped by role.
func ConfigureNodes(ctx *provisioning.Context, nodes map[string][]*cloud.Instance, vars map[string]any) error {
	hosts := ansible.Inventory{}
	for role, insts := range nodes {
		for _, inst := range insts {
			hosts[role] = append(hosts[role], inst.PrivateIP)
		}
	}
	if len(hosts) == 0 {
		return nil
	}
	ctx.Observer.Printf("[%s] Configuring nodes...", phase)
	if err := ctx.Configurer.RunOnController(ctx, ctx.Session.InventoryPath(), config.PlaybookNodes, hosts, vars); err != nil {
		return fmt.Errorf("failed to configure nodes: %w", err)
	}
	return nil
}
