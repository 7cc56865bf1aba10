package environment

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/marathon"
	"github.com/imamik/clusterous/internal/util/retry"
)

// HostChanges lists, per machine group, the agents that appeared and the
// agents that went away.
type HostChanges struct {
	Added   map[string][]string
	Removed map[string][]string
}

// Empty reports whether nothing changed.
func (h HostChanges) Empty() bool {
	return len(h.Added) == 0 && len(h.Removed) == 0
}

// DiffPools compares the active hosts of two pools.
func DiffPools(before, after NodePool) HostChanges {
	changes := HostChanges{Added: map[string][]string{}, Removed: map[string][]string{}}
	groups := lo.Uniq(append(lo.Keys(before), lo.Keys(after)...))
	for _, g := range groups {
		added, removed := lo.Difference(after[g].Hostnames, before[g].Hostnames)
		if len(added) > 0 {
			slices.Sort(added)
			changes.Added[g] = added
		}
		if len(removed) > 0 {
			slices.Sort(removed)
			changes.Removed[g] = removed
		}
	}
	return changes
}

// Scale adjusts running apps to the agents that joined or left since before.
// Apps on a group with new hosts grow by their per-host instance count times
// the number of new hosts; tasks on departed hosts are killed and the app's
// instance count reduced accordingly.
func (l *Launcher) Scale(ctx context.Context, before *marathon.MesosState) error {
	old := PoolFromState(before)

	var changes HostChanges
	err := retry.Until(ctx, l.timeouts.ComponentPoll, l.timeouts.SchedulerStartupWait, func(ctx context.Context) (bool, error) {
		pool, err := l.Pool(ctx)
		if err != nil {
			return false, err
		}
		changes = DiffPools(old, pool)
		return !changes.Empty(), nil
	})
	if err != nil && !errdefs.IsTimeout(err) {
		return err
	}
	if changes.Empty() {
		l.logger.Info("Nothing to add or remove")
		return nil
	}

	return l.withMarathon(ctx, func(c *marathon.Client) error {
		apps, err := c.ListApps(ctx)
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			l.logger.Info("No apps, nothing to change")
			return nil
		}
		byGroup := lo.GroupBy(lo.Filter(apps, func(a marathon.App, _ int) bool {
			_, ok := a.Group()
			return ok
		}), func(a marathon.App) string {
			g, _ := a.Group()
			return g
		})

		for group, hosts := range changes.Added {
			oldHosts := len(old[group].Hostnames)
			for _, app := range byGroup[group] {
				if oldHosts == 0 {
					l.logger.Info("group had no hosts before, cannot derive instances per host", "app", app.Name(), "group", group)
					continue
				}
				delta := app.Instances / oldHosts * len(hosts)
				if delta == 0 {
					continue
				}
				if err := c.ScaleApp(ctx, app.Name(), app.Instances+delta); err != nil {
					return err
				}
				l.logger.Info(fmt.Sprintf("scaling up %s by %d", app.Name(), delta))
			}
		}

		for group, hosts := range changes.Removed {
			for _, app := range byGroup[group] {
				for _, host := range hosts {
					if err := c.KillTasks(ctx, app.Name(), host, true); err != nil {
						return err
					}
					l.logger.Info(fmt.Sprintf("killing all %s tasks on host %s", app.Name(), host))
				}
			}
		}
		return nil
	})
}
