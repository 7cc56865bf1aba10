package instances

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/util/retry"
)

// Launch requests the group's instances and returns their ids. The request
// carries a client token, so retrying a request that reached the provider
// does not launch a second set.
func Launch(ctx *provisioning.Context, g Group) ([]string, error) {
	req := cloud.InstanceRequest{
		Count:            g.Count,
		InstanceType:     g.InstanceType,
		Image:            g.Image,
		SubnetID:         g.SubnetID,
		SecurityGroupIDs: g.SecurityGroupIDs,
		KeyName:          ctx.Config.KeyPair,
		PublicIP:         g.PublicIP,
		RootVolumeGB:     g.RootVolumeGB,
		ClientToken:      uuid.NewString(),
		NamePrefix:       g.Name,
	}

	var launched []*cloud.Instance
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		launched, err = ctx.Cloud.RunInstances(ctx, req)
		return err
	},
		retry.WithMaxRetries(ctx.Timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(ctx.Timeouts.RetryInitialDelay))
	if err != nil {
		return nil, errdefs.Provider(fmt.Sprintf("launch %d %s instance(s)", g.Count, g.Role), err)
	}

	ids := make([]string, 0, len(launched))
	for _, inst := range launched {
		ids = append(ids, inst.ID)
	}
	ctx.Observer.Printf("[%s] Requested %d %s instance(s) of type %s", phase, len(ids), g.Role, g.InstanceType)
	return ids, nil
}

// Converge waits until every instance in ids is running with a private
// address. Each instance is tagged the moment it converges, so an instance
// carrying the cluster tags is always a running member.
func Converge(ctx *provisioning.Context, g Group, ids []string) ([]*cloud.Instance, error) {
	start := time.Now()
	tags := g.Tags(ctx.ClusterName())
	converged := make(map[string]*cloud.Instance, len(ids))

	err := retry.Until(ctx, ctx.Timeouts.InstancePoll, ctx.Timeouts.InstanceConverge, func(pollCtx context.Context) (bool, error) {
		var pending []string
		for _, id := range ids {
			if converged[id] == nil {
				pending = append(pending, id)
			}
		}
		found, err := ctx.Cloud.ListInstances(pollCtx, cloud.InstanceFilter{IDs: pending})
		if errors.Is(err, cloud.ErrNotVisible) {
			return false, nil
		}
		if err != nil {
			return false, errdefs.Provider("describe instances", err)
		}
		for _, inst := range found {
			if cloud.IsLaunchFailure(inst.State) {
				return false, errdefs.InstanceStatef("%s instance %s entered state %q while launching", g.Role, inst.ID, inst.State)
			}
			if !inst.Addressable() {
				continue
			}
			if err := ctx.Cloud.TagResources(pollCtx, []string{inst.ID}, tags); err != nil {
				if errors.Is(err, cloud.ErrNotVisible) {
					continue
				}
				return false, errdefs.Provider("tag instance "+inst.ID, err)
			}
			if inst.Tags == nil {
				inst.Tags = map[string]string{}
			}
			maps.Copy(inst.Tags, tags)
			inst.Name = g.Name
			converged[inst.ID] = inst
		}
		return len(converged) == len(ids), nil
	})
	ctx.Metrics.ObserveWait("instances", time.Since(start))
	if err != nil {
		if errdefs.IsTimeout(err) {
			return nil, fmt.Errorf("%d of %d %s instance(s) running: %w", len(converged), len(ids), g.Role, err)
		}
		return nil, err
	}

	out := make([]*cloud.Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, converged[id])
	}
	provisioning.LogInstancesConverged(ctx.Observer, phase, g.Role, ids)
	ctx.Metrics.InstancesLaunched(g.Role, len(ids))
	return out, nil
}

// LaunchAndConverge launches the group and waits for it.
func LaunchAndConverge(ctx *provisioning.Context, g Group) ([]*cloud.Instance, error) {
	ids, err := Launch(ctx, g)
	if err != nil {
		return nil, err
	}
	return Converge(ctx, g, ids)
}
