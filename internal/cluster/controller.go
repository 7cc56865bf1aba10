package cluster

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/metrics"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/platform/marathon"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/configure"
	"github.com/imamik/clusterous/internal/provisioning/instances"
	"github.com/imamik/clusterous/internal/provisioning/topology"
	"github.com/imamik/clusterous/internal/provisioning/volume"
	"github.com/imamik/clusterous/internal/session"
	"github.com/imamik/clusterous/internal/tunnel"
)

// TunnelFactory returns the tunnel manager of a cluster whose NAT has the
// public address natIP.
type TunnelFactory func(natIP string) *tunnel.Manager

// Resizer adjusts running components after nodes were added or removed.
// Implemented by environment.Launcher.
type Resizer interface {
	RunningComponents(ctx context.Context) (map[string]int, error)
	Snapshot(ctx context.Context) (*marathon.MesosState, error)
	Scale(ctx context.Context, before *marathon.MesosState) error
}

// Dependencies are the collaborators of a Controller. Config, Cloud and
// Session are required.
type Dependencies struct {
	Config     *config.Config
	Cloud      cloud.Provider
	Session    *session.Store
	Configurer provisioning.Configurer
	Dial       provisioning.Dialer
	Registry   provisioning.BucketEnsurer
	Tunnels    TunnelFactory
	Observer   provisioning.Observer
	Metrics    *metrics.Metrics
	Timeouts   *config.Timeouts
}

// Controller drives one cluster through its lifecycle.
type Controller struct {
	deps    Dependencies
	resizer Resizer

	mu   sync.Mutex
	task *Task
	done chan struct{}
}

func New(deps Dependencies) *Controller {
	return &Controller{deps: deps}
}

// WithResizer makes node changes rescale the running components.
func (c *Controller) WithResizer(r Resizer) *Controller {
	c.resizer = r
	return c
}

func (c *Controller) newContext(ctx context.Context, req *provisioning.Request) *provisioning.Context {
	pctx := provisioning.NewContext(ctx, req, c.deps.Config, c.deps.Cloud, c.deps.Session)
	if c.deps.Observer != nil {
		pctx.Observer = c.deps.Observer
		pctx.Logger = c.deps.Observer
	}
	if c.deps.Timeouts != nil {
		pctx.Timeouts = c.deps.Timeouts
	}
	pctx.Metrics = c.deps.Metrics
	pctx.Configurer = c.deps.Configurer
	pctx.Dial = c.deps.Dial
	pctx.Registry = c.deps.Registry
	return pctx
}

// phases returns the provisioning pipeline.
func (c *Controller) phases() []provisioning.Phase {
	return []provisioning.Phase{
		provisioning.NewPreflightPhase(),
		topology.NewProvisioner(),
		volume.NewCheckPhase(),
		instances.NewProvisioner(),
		volume.NewAttachPhase(),
		configure.NewProvisioner(),
		&finalizePhase{tunnels: c.deps.Tunnels},
	}
}

// Provision creates the cluster described by req. A failure after the
// cluster was recorded as active is tagged errdefs.KindPartial: the
// resources created so far stay and the cluster must be terminated.
func (c *Controller) Provision(ctx context.Context, req *provisioning.Request) error {
	pctx := c.newContext(ctx, req)
	err := provisioning.RunPhases(pctx, c.phases())
	if err != nil && pctx.State.Recorded {
		return errdefs.Partial(req.ClusterName, err)
	}
	return err
}

// active returns the cluster recorded in the session.
func (c *Controller) active() (*session.Info, error) {
	return c.deps.Session.Load()
}

// tunnels returns the tunnel manager of the active cluster.
func (c *Controller) tunnels(info *session.Info) (*tunnel.Manager, error) {
	if c.deps.Tunnels == nil {
		return nil, fmt.Errorf("no tunnel support configured")
	}
	if info.NATIP == "" {
		return nil, errdefs.Configf("cluster %s has no NAT address recorded", info.ClusterName)
	}
	return c.deps.Tunnels(info.NATIP), nil
}

// finalizePhase marks the cluster running and opens the permanent tunnels
// to Marathon and Mesos.
type finalizePhase struct {
	tunnels TunnelFactory
}

func (p *finalizePhase) Name() string {
	return "finalize"
}

func (p *finalizePhase) Provision(ctx *provisioning.Context) error {
	if err := ctx.Session.Merge(map[string]any{session.KeyRunning: true}); err != nil {
		return fmt.Errorf("failed to record running cluster: %w", err)
	}
	if p.tunnels == nil || ctx.State.NAT == nil {
		return nil
	}

	openSchedulerTunnels(ctx, p.tunnels(ctx.State.NAT.PublicIP))
	return nil
}

// openSchedulerTunnels forwards the Marathon and Mesos ports. The cluster
// is usable without them; "workon" reopens them.
func openSchedulerTunnels(ctx context.Context, t *tunnel.Manager) {
	for _, fwd := range []struct {
		prefix string
		port   int
	}{
		{"marathon", config.MarathonPort},
		{"mesos", config.MesosPort},
	} {
		if err := t.OpenPermanent(ctx, fwd.prefix, fwd.port, fwd.port); err != nil {
			log.Printf("[Tunnel] Warning: %v", err)
		}
	}
}
