package instances

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/util/labels"
	"github.com/imamik/clusterous/internal/util/retry"
)

// ListOwned returns the live instances tagged for cluster. Pending and
// stopping instances are included.
func ListOwned(ctx context.Context, provider cloud.InstanceAPI, cluster string) ([]*cloud.Instance, error) {
	return listTagged(ctx, provider, labels.Owned(cluster))
}

// ListRole returns the live instances of one role.
func ListRole(ctx context.Context, provider cloud.InstanceAPI, cluster, role string) ([]*cloud.Instance, error) {
	return listTagged(ctx, provider, labels.OwnedWithRole(cluster, role))
}

func listTagged(ctx context.Context, provider cloud.InstanceAPI, tags map[string]string) ([]*cloud.Instance, error) {
	insts, err := provider.ListInstances(ctx, cloud.InstanceFilter{Tags: tags, States: cloud.OwnedStates})
	if err != nil {
		return nil, errdefs.Provider("list instances", err)
	}
	return insts, nil
}

// Terminate terminates ids and waits until none of them is alive.
func Terminate(ctx *provisioning.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	if err := ctx.Cloud.TerminateInstances(ctx, ids); err != nil {
		return errdefs.Provider("terminate instances", err)
	}
	ctx.Observer.Printf("[%s] Waiting for %d instance(s) to terminate...", phase, len(ids))

	err := retry.Until(ctx, ctx.Timeouts.TerminatePoll, ctx.Timeouts.Terminate, func(pollCtx context.Context) (bool, error) {
		found, err := ctx.Cloud.ListInstances(pollCtx, cloud.InstanceFilter{IDs: ids})
		if errors.Is(err, cloud.ErrNotVisible) {
			// Terminated instances eventually drop out of listings.
			return true, nil
		}
		if err != nil {
			return false, errdefs.Provider("describe instances", err)
		}
		return !slices.ContainsFunc(found, func(inst *cloud.Instance) bool {
			return inst.State != cloud.StateTerminated
		}), nil
	})
	ctx.Metrics.ObserveWait("terminate", time.Since(start))
	return err
}
