package volume

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/session"
	"github.com/imamik/clusterous/internal/util/labels"
	"github.com/imamik/clusterous/internal/util/naming"
	"github.com/imamik/clusterous/internal/util/retry"
)

const phase = "volume"

// CheckPhase validates a borrowed volume. It runs right after topology so
// that a bad volume is rejected before anything is launched.
type CheckPhase struct{}

func NewCheckPhase() *CheckPhase {
	return &CheckPhase{}
}

func (p *CheckPhase) Name() string {
	return "volume-check"
}

func (p *CheckPhase) Provision(ctx *provisioning.Context) error {
	id := ctx.Request.VolumeID
	if id == "" {
		return nil
	}
	if ctx.State.Topology == nil || ctx.State.Topology.PrivateSubnet == nil {
		return fmt.Errorf("topology is not provisioned")
	}

	vol, err := ctx.Cloud.GetVolume(ctx, id)
	if err != nil {
		return errdefs.Provider("get volume "+id, err)
	}
	if err := CheckBorrowable(vol, id, ctx.State.Topology.PrivateSubnet.Zone); err != nil {
		return err
	}
	ctx.State.VolumeID = id
	ctx.State.VolumeBorrowed = true
	ctx.Observer.Printf("[%s] Volume %s is available in %s", phase, id, vol.Zone)
	return nil
}

// CheckBorrowable rejects a volume that is missing, in use or in another zone.
func CheckBorrowable(vol *cloud.Volume, id, zone string) error {
	switch {
	case vol == nil:
		return errdefs.Configf("volume %s does not exist", id)
	case vol.State != cloud.VolumeAvailable:
		return errdefs.Configf("volume %s is %s, it must be available", id, vol.State)
	case vol.Zone != zone:
		return errdefs.Configf("volume %s is in zone %s but the cluster is in zone %s", id, vol.Zone, zone)
	}
	return nil
}

// AttachPhase attaches the borrowed volume, or creates one, to the
// controller and records it in the session.
type AttachPhase struct{}

func NewAttachPhase() *AttachPhase {
	return &AttachPhase{}
}

func (p *AttachPhase) Name() string {
	return phase
}

func (p *AttachPhase) Provision(ctx *provisioning.Context) error {
	controller := ctx.State.Controller
	if controller == nil {
		return fmt.Errorf("controller is not provisioned")
	}

	if !ctx.State.VolumeBorrowed {
		id, err := create(ctx, controller.Zone)
		if err != nil {
			return err
		}
		ctx.State.VolumeID = id
	}

	// Recorded before attaching so that terminate finds a volume whose
	// attachment never completed.
	byo := 0
	if ctx.State.VolumeBorrowed {
		byo = 1
	}
	if err := ctx.Session.Merge(map[string]any{
		session.KeyVolumeID:  ctx.State.VolumeID,
		session.KeyBYOVolume: byo,
	}); err != nil {
		return err
	}

	if err := attach(ctx, ctx.State.VolumeID, controller.ID); err != nil {
		return err
	}
	if ctx.State.VolumeBorrowed {
		if err := ctx.Cloud.TagResources(ctx, []string{ctx.State.VolumeID}, map[string]string{labels.KeyAttached: ctx.ClusterName()}); err != nil {
			return errdefs.Provider("tag volume "+ctx.State.VolumeID, err)
		}
	}
	return nil
}

func create(ctx *provisioning.Context, zone string) (string, error) {
	size := ctx.Request.VolumeSizeGB
	if size == 0 {
		size = config.SharedVolumeGB
	}
	name := naming.SharedVolume(ctx.ClusterName())
	vol, err := ctx.Cloud.CreateVolume(ctx, cloud.VolumeRequest{
		SizeGB: size,
		Zone:   zone,
		Tags:   labels.NewTagBuilder(ctx.ClusterName()).WithName(name).Build(),
	})
	if err != nil {
		return "", errdefs.Provider("create volume", err)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, "volume", name, vol.ID)

	if err := waitFor(ctx, vol.ID, cloud.VolumeAvailable); err != nil {
		return "", err
	}
	return vol.ID, nil
}

func attach(ctx *provisioning.Context, volumeID, instanceID string) error {
	ctx.Observer.Printf("[%s] Attaching volume %s to %s", phase, volumeID, instanceID)
	if err := ctx.Cloud.AttachVolume(ctx, volumeID, instanceID, config.SharedVolumeDevice); err != nil {
		return errdefs.Provider("attach volume "+volumeID, err)
	}
	return waitFor(ctx, volumeID, cloud.VolumeInUse)
}

// waitFor polls the volume until it reaches state.
func waitFor(ctx *provisioning.Context, id string, state cloud.VolumeState) error {
	start := time.Now()
	err := retry.Until(ctx, ctx.Timeouts.VolumePoll, ctx.Timeouts.VolumeWait, func(pollCtx context.Context) (bool, error) {
		vol, err := ctx.Cloud.GetVolume(pollCtx, id)
		if err != nil {
			return false, errdefs.Provider("get volume "+id, err)
		}
		if vol == nil {
			return false, errdefs.Provider("get volume "+id, fmt.Errorf("volume disappeared"))
		}
		if vol.State == cloud.VolumeError {
			return false, errdefs.Provider("volume "+id, fmt.Errorf("volume entered error state"))
		}
		return vol.State == state, nil
	})
	ctx.Metrics.ObserveWait("volume", time.Since(start))
	if err != nil {
		return fmt.Errorf("volume %s did not become %s: %w", id, state, err)
	}
	return nil
}
