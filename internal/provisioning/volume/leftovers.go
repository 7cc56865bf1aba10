package volume

import (
	"context"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/labels"
)

// ListAvailable returns the unattached volumes some cluster created and
// left behind.
func ListAvailable(ctx context.Context, provider cloud.VolumeAPI) ([]*cloud.Volume, error) {
	vols, err := provider.ListVolumes(ctx, nil)
	if err != nil {
		return nil, errdefs.Provider("list volumes", err)
	}
	var out []*cloud.Volume
	for _, v := range vols {
		if _, owned := v.Tags[labels.KeyCluster]; owned && v.State == cloud.VolumeAvailable {
			out = append(out, v)
		}
	}
	return out, nil
}

// Remove deletes a leftover volume. Volumes that are attached or were not
// created by a cluster are refused.
func Remove(ctx context.Context, provider cloud.VolumeAPI, id string) error {
	vol, err := provider.GetVolume(ctx, id)
	if err != nil {
		return errdefs.Provider("get volume "+id, err)
	}
	switch {
	case vol == nil:
		return errdefs.Configf("volume %s does not exist", id)
	case vol.Tags[labels.KeyCluster] == "":
		return errdefs.Configf("volume %s was not created by clusterous", id)
	case vol.State != cloud.VolumeAvailable:
		return errdefs.Configf("volume %s is %s, only available volumes can be removed", id, vol.State)
	}
	if err := provider.DeleteVolume(ctx, id); err != nil {
		return errdefs.Provider("delete volume "+id, err)
	}
	return nil
}
