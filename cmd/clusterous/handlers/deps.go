// Package handlers implements the business logic for CLI commands.
//
// Each handler builds its collaborators through package-level factory
// variables so tests can swap in fakes, then drives the cluster controller
// or the environment launcher. This is the only layer that turns errors
// into user-facing messages.
package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/imamik/clusterous/internal/cluster"
	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/environment"
	"github.com/imamik/clusterous/internal/metrics"
	"github.com/imamik/clusterous/internal/platform/ansible"
	"github.com/imamik/clusterous/internal/platform/aws"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/platform/hcloud"
	"github.com/imamik/clusterous/internal/platform/s3"
	"github.com/imamik/clusterous/internal/platform/ssh"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/session"
	"github.com/imamik/clusterous/internal/tunnel"
	"github.com/imamik/clusterous/internal/util/shell"
)

// Global holds the options shared by every command.
type Global struct {
	ConfigPath string
	Flags      *pflag.FlagSet
}

// Factory function variables - can be replaced in tests.
var (
	loadConfig   = config.Load
	loadTimeouts = config.LoadTimeouts

	newRunner = func() shell.Runner { return shell.ExecRunner{} }

	newCloud = func(ctx context.Context, cfg *config.Config, t *config.Timeouts) (cloud.Provider, error) {
		switch cfg.Provider {
		case config.ProviderHCloud:
			return hcloud.NewClient(cfg.HCloudToken, hcloud.WithTimeouts(t), hcloud.WithLocation(cfg.Region)), nil
		default:
			return aws.NewClient(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey, aws.WithTimeouts(t))
		}
	}

	// newRegistry returns nil when no registry bucket is configured.
	newRegistry = func(ctx context.Context, cfg *config.Config) (provisioning.BucketEnsurer, error) {
		if cfg.S3Bucket == "" {
			return nil, nil
		}
		endpoint := ""
		if cfg.Provider == config.ProviderHCloud {
			endpoint = fmt.Sprintf("https://%s.your-objectstorage.com", cfg.Region)
		}
		client, err := s3.NewClient(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey, endpoint)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	newSSHClient = func(host string, port int, user string, key []byte) (*ssh.Client, error) {
		return ssh.NewClient(&ssh.Config{Host: host, Port: port, User: user, PrivateKey: key})
	}

	dialHost = func(host string, port int, user string, key []byte) (provisioning.RemoteCommand, error) {
		c, err := newSSHClient(host, port, user, key)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	// newRemote reaches the controller of the cluster whose NAT is natIP.
	newRemote = func(natIP, user string, key []byte) tunnel.Remote {
		return lazyRemote{host: natIP, user: user, key: key}
	}

	newConfigurer = func(runner shell.Runner, cfg *config.Config) provisioning.Configurer {
		return ansible.NewExecutor(runner, ansible.Options{
			PlaybookDir: cfg.PlaybookDir,
			KeyFile:     cfg.KeyFile,
			RemoteUser:  cfg.Username,
			Env:         providerEnv(cfg),
		})
	}

	isTerminal = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	stdout io.Writer = os.Stdout
)

// app is the wiring of one command invocation.
type app struct {
	cfg      *config.Config
	timeouts *config.Timeouts
	store    *session.Store
	metrics  *metrics.Metrics
	tunnels  cluster.TunnelFactory
	ctrl     *cluster.Controller
}

// newApp loads the profile and builds the controller. observer may be nil
// for plain console output.
func newApp(ctx context.Context, g Global, observer provisioning.Observer) (*app, error) {
	cfg, err := loadConfig(g.ConfigPath, g.Flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	timeouts := loadTimeouts()
	provider, err := newCloud(ctx, cfg, timeouts)
	if err != nil {
		return nil, err
	}
	registry, err := newRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if observer == nil {
		observer = provisioning.NewConsoleObserver()
	}

	runner := newRunner()
	a := &app{
		cfg:      cfg,
		timeouts: timeouts,
		store:    session.NewStore(cfg.StateDir),
		metrics:  metrics.New(),
	}
	a.tunnels = func(natIP string) *tunnel.Manager {
		return tunnel.NewManager(tunnel.Config{
			SessionDir: cfg.SessionDir(),
			KeyFile:    cfg.KeyFile,
			User:       cfg.Username,
			NATHost:    natIP,
			Port:       config.TunnelPort,
		}, runner, newRemote(natIP, cfg.Username, key))
	}

	deps := cluster.Dependencies{
		Config:     cfg,
		Cloud:      provider,
		Session:    a.store,
		Configurer: newConfigurer(runner, cfg),
		Dial: func(host string, port int, user string) (provisioning.RemoteCommand, error) {
			return dialHost(host, port, user, key)
		},
		Registry: registry,
		Tunnels:  a.tunnels,
		Observer: observer,
		Metrics:  a.metrics,
		Timeouts: timeouts,
	}
	a.ctrl = cluster.New(deps)

	// Node changes on a recorded cluster rescale its running components.
	if info, err := a.store.Load(); err == nil && info.NATIP != "" {
		a.ctrl.WithResizer(a.launcher(info.NATIP))
	}
	return a, nil
}

// launcher returns the environment launcher of the cluster behind natIP.
func (a *app) launcher(natIP string) *environment.Launcher {
	return environment.NewLauncher(a.tunnels(natIP),
		environment.WithTimeouts(a.timeouts),
		environment.WithMetrics(a.metrics),
	)
}

// activeLauncher returns the launcher of the recorded cluster.
func (a *app) activeLauncher() (*environment.Launcher, *session.Info, error) {
	info, err := a.store.Load()
	if err != nil {
		return nil, nil, err
	}
	if info.NATIP == "" {
		return nil, nil, fmt.Errorf("cluster %s has no NAT address recorded; run 'clusterous workon %s'", info.ClusterName, info.ClusterName)
	}
	return a.launcher(info.NATIP), info, nil
}

func providerEnv(cfg *config.Config) map[string]string {
	switch cfg.Provider {
	case config.ProviderHCloud:
		return map[string]string{"HCLOUD_TOKEN": cfg.HCloudToken}
	default:
		return map[string]string{
			"AWS_ACCESS_KEY_ID":     cfg.AccessKeyID,
			"AWS_SECRET_ACCESS_KEY": cfg.SecretAccessKey,
			"AWS_REGION":            cfg.Region,
		}
	}
}

// lazyRemote reaches the controller through the NAT tunnel port. The SSH
// client is created per call so building a tunnel manager never fails.
type lazyRemote struct {
	host string
	user string
	key  []byte
}

func (r lazyRemote) client() (*ssh.Client, error) {
	c, err := newSSHClient(r.host, config.TunnelPort, r.user, r.key)
	if err != nil {
		log.Printf("[Tunnel] cannot reach controller via %s: %v", r.host, err)
		return nil, err
	}
	return c, nil
}

func (r lazyRemote) Execute(ctx context.Context, command string) (string, error) {
	c, err := r.client()
	if err != nil {
		return "", err
	}
	return c.Execute(ctx, command)
}

func (r lazyRemote) WriteFile(ctx context.Context, path string, data []byte, mode string) error {
	c, err := r.client()
	if err != nil {
		return err
	}
	return c.WriteFile(ctx, path, data, mode)
}

func (r lazyRemote) Forward(ctx context.Context, remoteAddr string) (tunnel.Local, error) {
	c, err := r.client()
	if err != nil {
		return nil, err
	}
	return tunnel.SSHRemote{Client: c}.Forward(ctx, remoteAddr)
}
