package environment

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/samber/lo"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/metrics"
	"github.com/imamik/clusterous/internal/platform/marathon"
	"github.com/imamik/clusterous/internal/tunnel"
	"github.com/imamik/clusterous/internal/util/retry"
)

// Launcher runs environments on the scheduler of one cluster. Marathon and
// Mesos are reached through ephemeral tunnels to the controller.
type Launcher struct {
	tunnels  *tunnel.Manager
	logger   logr.Logger
	timeouts *config.Timeouts
	metrics  *metrics.Metrics
}

// Option configures a Launcher.
type Option func(*Launcher)

func WithLogger(l logr.Logger) Option {
	return func(la *Launcher) { la.logger = l }
}

func WithTimeouts(t *config.Timeouts) Option {
	return func(la *Launcher) { la.timeouts = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(la *Launcher) { la.metrics = m }
}

func NewLauncher(tunnels *tunnel.Manager, opts ...Option) *Launcher {
	l := &Launcher{
		tunnels:  tunnels,
		logger:   DefaultLogger(),
		timeouts: config.LoadTimeouts(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultLogger writes through the standard logger with an [Environment] prefix.
func DefaultLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			log.Printf("[Environment] %s: %s", prefix, args)
			return
		}
		log.Printf("[Environment] %s", args)
	}, funcr.Options{})
}

func (l *Launcher) withMarathon(ctx context.Context, fn func(*marathon.Client) error) error {
	return l.tunnels.Ephemeral(ctx, config.MarathonPort, func(addr string) error {
		return fn(marathon.NewClient("http://" + addr))
	})
}

// Snapshot returns the Mesos master's current view of the agents.
func (l *Launcher) Snapshot(ctx context.Context) (*marathon.MesosState, error) {
	var state *marathon.MesosState
	err := l.tunnels.Ephemeral(ctx, config.MesosPort, func(addr string) error {
		var err error
		state, err = marathon.NewMesosClient("http://" + addr).State(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not obtain cluster information from Mesos: %w", err)
	}
	return state, nil
}

// Pool returns the current node pool.
func (l *Launcher) Pool(ctx context.Context) (NodePool, error) {
	state, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return PoolFromState(state), nil
}

// RunningComponents returns the instance count of every app on the scheduler.
func (l *Launcher) RunningComponents(ctx context.Context) (map[string]int, error) {
	var running map[string]int
	err := l.withMarathon(ctx, func(c *marathon.Client) error {
		apps, err := c.ListApps(ctx)
		if err != nil {
			return err
		}
		running = lo.SliceToMap(apps, func(a marathon.App) (string, int) { return a.Name(), a.Instances })
		return nil
	})
	return running, err
}

// waitForMachines polls the node pool until every machine named by comps
// has agents, for at most the scheduler startup wait. Agents of a fresh
// cluster register with Mesos some seconds after it is configured. The last
// pool is returned either way.
func (l *Launcher) waitForMachines(ctx context.Context, comps map[string]Component) (NodePool, error) {
	machines := lo.Uniq(lo.MapToSlice(comps, func(_ string, c Component) string { return c.Machine }))
	var pool NodePool
	err := retry.Until(ctx, l.timeouts.ComponentPoll, l.timeouts.SchedulerStartupWait, func(ctx context.Context) (bool, error) {
		var err error
		pool, err = l.Pool(ctx)
		if err != nil {
			return false, err
		}
		return lo.EveryBy(machines, func(m string) bool { return pool[m].Nodes > 0 }), nil
	})
	if err != nil && !errdefs.IsTimeout(err) {
		return nil, err
	}
	return pool, nil
}

// Launch calculates resources for f's components, submits them and waits
// until every instance has started. It then exposes the file's tunnels and
// returns their messages. Components already started stay running when the
// wait times out.
func (l *Launcher) Launch(ctx context.Context, f *File) (string, error) {
	comps := f.Environment.Components
	if len(comps) == 0 {
		return "", errdefs.Configf("environment %q has no components", f.Name)
	}

	if err := Validate(comps); err != nil {
		return "", err
	}

	l.logger.V(1).Info("preparing to launch", "environment", f.Name)
	pool, err := l.waitForMachines(ctx, comps)
	if err != nil {
		return "", err
	}
	allocs, err := Calculate(pool, comps, l.logger)
	if err != nil {
		return "", err
	}
	apps, err := BuildApps(f, allocs)
	if err != nil {
		return "", err
	}
	if len(f.Environment.Images) > 0 || len(f.Environment.Copy) > 0 {
		l.logger.Info("images and copied files are expected to be present on the cluster already",
			"images", len(f.Environment.Images), "copy", len(f.Environment.Copy))
	}

	err = l.withMarathon(ctx, func(c *marathon.Client) error {
		existing, err := c.ListApps(ctx)
		if err != nil {
			return err
		}
		for _, app := range existing {
			if _, ok := comps[app.Name()]; ok {
				return errdefs.Configf("found a running component named %q. Is an environment already running? Stop it with 'clusterous quit'", app.Name())
			}
		}

		for _, app := range apps {
			l.logger.Info(fmt.Sprintf("Starting %d %s of %s", app.Instances, lo.Ternary(app.Instances == 1, "instance", "instances"), app.Name()))
			if _, err := c.CreateApp(ctx, app); err != nil {
				l.metrics.ComponentsLaunched(metrics.ResultFailed, 1)
				return err
			}
		}
		return l.waitStarted(ctx, c, apps)
	})
	if err != nil {
		return "", err
	}

	var messages []string
	for _, t := range f.Environment.ExposeTunnel {
		msg, err := l.ExposeTunnel(ctx, t, pool, allocs)
		if err != nil {
			return "", err
		}
		if msg != "" {
			messages = append(messages, msg)
		}
	}
	return strings.Join(messages, "\n"), nil
}

// waitStarted polls until every app reports exactly its instance count and
// each of those tasks has a start time.
func (l *Launcher) waitStarted(ctx context.Context, c *marathon.Client, apps []marathon.App) error {
	l.logger.V(1).Info("waiting for components to start up")
	start := time.Now()
	started := map[string]bool{}

	err := retry.Until(ctx, l.timeouts.ComponentPoll, l.timeouts.ComponentLaunch, func(ctx context.Context) (bool, error) {
		for _, want := range apps {
			if started[want.Name()] {
				continue
			}
			app, err := c.GetApp(ctx, want.Name())
			if err != nil {
				return false, err
			}
			if app != nil && converged(app, want.Instances) {
				started[want.Name()] = true
			}
		}
		return len(started) == len(apps), nil
	})
	l.metrics.ObserveWait("components", time.Since(start))

	names := lo.Keys(started)
	slices.Sort(names)
	l.metrics.ComponentsLaunched(metrics.ResultLaunched, len(names))
	l.logger.Info(fmt.Sprintf("Launched %d components: %s", len(names), strings.Join(names, ", ")))

	if err != nil {
		pending := len(apps) - len(names)
		if errdefs.IsTimeout(err) {
			l.metrics.ComponentsLaunched(metrics.ResultTimeout, pending)
			l.logger.Info("timed out waiting for components to launch; one or more are failing or taking very long to start",
				"pending", pending)
			return fmt.Errorf("could not launch all components (%d of %d started): %w", len(names), len(apps), err)
		}
		l.metrics.ComponentsLaunched(metrics.ResultFailed, pending)
		return fmt.Errorf("failed waiting for components: %w", err)
	}
	return nil
}

func converged(app *marathon.App, instances int) bool {
	if len(app.Tasks) != instances {
		return false
	}
	return lo.EveryBy(app.Tasks, func(t marathon.Task) bool { return t.Started() })
}

// BuildApps turns components and their allocations into Marathon apps,
// ordered by name. Unknown dependencies are rejected.
func BuildApps(f *File, allocs map[string]Allocation) ([]marathon.App, error) {
	apps := make([]marathon.App, 0, len(f.Environment.Components))
	for _, name := range f.ComponentNames() {
		c := f.Environment.Components[name]
		alloc, ok := allocs[name]
		if !ok {
			return nil, fmt.Errorf("no allocation for component %q", name)
		}

		deps := make([]string, 0, len(c.Depends))
		for _, d := range c.Depends {
			if _, ok := f.Environment.Components[d]; !ok {
				return nil, errdefs.Configf("could not find dependency %q as specified in component %q", d, name)
			}
			deps = append(deps, marathon.AppID(d))
		}

		docker := &marathon.Docker{
			Image:          c.Image,
			Network:        "BRIDGE",
			Privileged:     true,
			ForcePullImage: true,
			PortMappings: lo.Map(c.Ports, func(p Port, _ int) marathon.PortMapping {
				return marathon.PortMapping{ContainerPort: p.Container, HostPort: p.Host, Protocol: "tcp"}
			}),
		}
		container := &marathon.Container{Type: "DOCKER", Docker: docker}
		if c.AttachVolume {
			container.Volumes = []marathon.Volume{{
				ContainerPath: config.SharedVolumePath,
				HostPath:      config.SharedVolumePath,
				Mode:          "RW",
			}}
		}

		apps = append(apps, marathon.App{
			ID:           name,
			Cmd:          c.Cmd,
			CPUs:         alloc.CPU,
			Mem:          alloc.Mem,
			Instances:    alloc.Instances,
			Container:    container,
			Constraints:  [][]string{{marathon.ConstraintField, marathon.OperatorCluster, alloc.Machine}},
			Dependencies: deps,
		})
	}
	return apps, nil
}

// ExposeTunnel forwards t's remote port from the controller to the node
// running the component, then opens a permanent local tunnel to it.
func (l *Launcher) ExposeTunnel(ctx context.Context, t Tunnel, pool NodePool, allocs map[string]Allocation) (string, error) {
	alloc, ok := allocs[t.Component]
	if !ok {
		return "", errdefs.Configf("no hostname for component %q could be found", t.Component)
	}
	host := pool[alloc.Machine].Hostname
	if host == "" {
		return "", errdefs.Configf("no hostname for component %q could be found", t.Component)
	}

	if err := l.tunnels.OpenOnController(ctx, host, t.RemotePort, t.RemotePort); err != nil {
		return "", err
	}
	if err := l.tunnels.OpenPermanent(ctx, "", t.LocalPort, t.RemotePort); err != nil {
		return "", fmt.Errorf("could not create tunnel: %w", err)
	}
	if t.Message == "" {
		return "", nil
	}
	return fmt.Sprintf("%s http://localhost:%d", t.Message, t.LocalPort), nil
}

// Destroy deletes every app, waits for the scheduler to forget them and
// closes the environment's tunnels. It returns the number of apps deleted.
func (l *Launcher) Destroy(ctx context.Context) (int, error) {
	var deleted int
	err := l.withMarathon(ctx, func(c *marathon.Client) error {
		apps, err := c.ListApps(ctx)
		if err != nil {
			return err
		}
		for _, app := range apps {
			if err := c.DeleteApp(ctx, app.Name()); err != nil {
				return err
			}
			deleted++
		}
		if deleted == 0 {
			return nil
		}
		l.logger.Info(fmt.Sprintf("Stopping %d components", deleted))
		return retry.Until(ctx, l.timeouts.ComponentPoll, l.timeouts.ComponentDestroy, func(ctx context.Context) (bool, error) {
			left, err := c.ListApps(ctx)
			return len(left) == 0, err
		})
	})
	if err != nil {
		return deleted, fmt.Errorf("failed to stop environment: %w", err)
	}
	if err := l.tunnels.CloseAll(ctx, false); err != nil {
		return deleted, fmt.Errorf("failed to close tunnels: %w", err)
	}
	return deleted, nil
}
