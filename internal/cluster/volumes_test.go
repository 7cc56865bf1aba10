package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning/destroy"
	"github.com/imamik/clusterous/internal/util/labels"
)

func TestListVolumes_OnlyDetachedOwned(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.cloud.AddVolume(cloud.Volume{ID: "vol-2", SizeGB: 20, Zone: "a", State: cloud.VolumeAvailable,
		Tags: map[string]string{labels.KeyCluster: "old"}})
	h.cloud.AddVolume(cloud.Volume{ID: "vol-1", SizeGB: 50, Zone: "b", State: cloud.VolumeAvailable,
		Tags: map[string]string{labels.KeyCluster: "older"}})
	h.cloud.AddVolume(cloud.Volume{ID: "vol-3", SizeGB: 20, Zone: "a", State: cloud.VolumeInUse,
		Tags: map[string]string{labels.KeyCluster: "live"}})
	h.cloud.AddVolume(cloud.Volume{ID: "vol-4", SizeGB: 8, Zone: "a", State: cloud.VolumeAvailable})

	vols, err := h.ctrl.ListVolumes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []LeftoverVolume{
		{ID: "vol-1", SizeGB: 50, Zone: "b", Cluster: "older"},
		{ID: "vol-2", SizeGB: 20, Zone: "a", Cluster: "old"},
	}, vols)
}

func TestListVolumes_AfterLeaveVolume(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provision(t)
	info, err := h.store.Load()
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Terminate(context.Background(), destroy.Options{LeaveVolume: true}))

	vols, err := h.ctrl.ListVolumes(context.Background())
	require.NoError(t, err)
	require.Len(t, vols, 1)
	assert.Equal(t, info.VolumeID, vols[0].ID)
	assert.Equal(t, "demo", vols[0].Cluster)

	require.NoError(t, h.ctrl.DeleteVolume(context.Background(), info.VolumeID))
	assert.Nil(t, h.cloud.Volume(info.VolumeID))
}

func TestDeleteVolume_Refusals(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.cloud.AddVolume(cloud.Volume{ID: "vol-used", State: cloud.VolumeInUse, Tags: map[string]string{labels.KeyCluster: "live"}})
	h.cloud.AddVolume(cloud.Volume{ID: "vol-foreign", State: cloud.VolumeAvailable})

	err := h.ctrl.DeleteVolume(context.Background(), "vol-missing")
	assert.True(t, errdefs.IsConfig(err))
	assert.ErrorContains(t, err, "does not exist")

	err = h.ctrl.DeleteVolume(context.Background(), "vol-used")
	assert.True(t, errdefs.IsConflict(err))
	assert.ErrorContains(t, err, "currently in use")

	err = h.ctrl.DeleteVolume(context.Background(), "vol-foreign")
	assert.ErrorContains(t, err, "not created by clusterous")

	assert.Zero(t, h.cloud.CallCount("DeleteVolume"))
}
