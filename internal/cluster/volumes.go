package cluster

import (
	"context"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/labels"
)

// LeftoverVolume is a shared volume kept after its cluster was destroyed.
type LeftoverVolume struct {
	ID      string `json:"id"`
	SizeGB  int    `json:"size_gb"`
	Zone    string `json:"zone"`
	Cluster string `json:"cluster"`
}

// ListVolumes returns the detached shared volumes created by clusterous,
// sorted by id. No active cluster is needed.
func (c *Controller) ListVolumes(ctx context.Context) ([]LeftoverVolume, error) {
	vols, err := c.deps.Cloud.ListVolumes(ctx, nil)
	if err != nil {
		return nil, err
	}
	left := lo.FilterMap(vols, func(v *cloud.Volume, _ int) (LeftoverVolume, bool) {
		cluster, owned := v.Tags[labels.KeyCluster]
		if !owned || v.State != cloud.VolumeAvailable {
			return LeftoverVolume{}, false
		}
		return LeftoverVolume{ID: v.ID, SizeGB: v.SizeGB, Zone: v.Zone, Cluster: cluster}, true
	})
	slices.SortFunc(left, func(a, b LeftoverVolume) int { return strings.Compare(a.ID, b.ID) })
	return left, nil
}

// DeleteVolume deletes a leftover shared volume. Volumes in use or not
// created by clusterous are refused.
func (c *Controller) DeleteVolume(ctx context.Context, id string) error {
	v, err := c.deps.Cloud.GetVolume(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case v == nil:
		return errdefs.Configf("volume %q does not exist", id)
	case v.State != cloud.VolumeAvailable:
		return errdefs.Conflictf("volume %q cannot be deleted because it is currently in use", id)
	}
	if _, owned := v.Tags[labels.KeyCluster]; !owned {
		return errdefs.Configf("volume %q was not created by clusterous", id)
	}
	return c.deps.Cloud.DeleteVolume(ctx, id)
}
