package hcloud

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/retry"
)

func toVolume(v *hcloud.Volume) *cloud.Volume {
	vol := &cloud.Volume{
		ID:     formatID(prefixVolume, v.ID),
		SizeGB: v.Size,
		State:  cloud.VolumeState(v.Status),
		Tags:   fromLabels(v.Labels),
	}
	if v.Location != nil {
		vol.Zone = v.Location.Name
	}
	if v.Server != nil {
		vol.AttachedTo = formatID(prefixServer, v.Server.ID)
		if vol.State == cloud.VolumeAvailable {
			vol.State = cloud.VolumeInUse
		}
	}
	return vol
}

// CreateVolume creates an unformatted volume. Volume names must be unique
// per project, so a random suffix is appended.
func (c *Client) CreateVolume(ctx context.Context, req cloud.VolumeRequest) (*cloud.Volume, error) {
	l, err := toLabels(req.Tags)
	if err != nil {
		return nil, err
	}
	res, _, err := c.client.Volume.Create(ctx, hcloud.VolumeCreateOpts{
		Name:     fmt.Sprintf("%s-%s", resourceName(req.Tags), uuid.NewString()[:8]),
		Size:     req.SizeGB,
		Location: &hcloud.Location{Name: c.Zone(req.Zone)},
		Labels:   l,
	})
	if err != nil {
		return nil, providerErr("create volume", err)
	}
	v := toVolume(res.Volume)
	v.Tags = maps.Clone(req.Tags)
	return v, nil
}

func (c *Client) GetVolume(ctx context.Context, id string) (*cloud.Volume, error) {
	volID, err := parseID(prefixVolume, id)
	if err != nil {
		return nil, err
	}
	v, _, err := c.client.Volume.GetByID(ctx, volID)
	if err != nil {
		return nil, providerErr("get volume", err)
	}
	if v == nil {
		return nil, nil
	}
	return toVolume(v), nil
}

func (c *Client) ListVolumes(ctx context.Context, tags map[string]string) ([]*cloud.Volume, error) {
	sel, err := selector(tags)
	if err != nil {
		return nil, err
	}
	vols, err := c.client.Volume.AllWithOpts(ctx, hcloud.VolumeListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: sel},
	})
	if err != nil {
		return nil, providerErr("list volumes", err)
	}
	out := make([]*cloud.Volume, 0, len(vols))
	for _, v := range vols {
		out = append(out, toVolume(v))
	}
	return out, nil
}

// AttachVolume attaches the volume. Hetzner picks the device path itself
// (/dev/disk/by-id/scsi-0HC_Volume_<id>), so device is ignored.
func (c *Client) AttachVolume(ctx context.Context, volumeID, instanceID, _ string) error {
	volID, err := parseID(prefixVolume, volumeID)
	if err != nil {
		return err
	}
	srvID, err := parseID(prefixServer, instanceID)
	if err != nil {
		return err
	}
	err = c.withLockRetry(ctx, func() error {
		action, _, err := c.client.Volume.Attach(ctx, &hcloud.Volume{ID: volID}, &hcloud.Server{ID: srvID})
		if err != nil {
			return err
		}
		return c.waitForActions(ctx, action)
	})
	if err != nil {
		return providerErr(fmt.Sprintf("attach volume %s to %s", volumeID, instanceID), err)
	}
	return nil
}

func (c *Client) DetachVolume(ctx context.Context, volumeID string) error {
	volID, err := parseID(prefixVolume, volumeID)
	if err != nil {
		return err
	}
	err = c.withLockRetry(ctx, func() error {
		action, _, err := c.client.Volume.Detach(ctx, &hcloud.Volume{ID: volID})
		if err != nil {
			return err
		}
		return c.waitForActions(ctx, action)
	})
	if err != nil && !IsNotFound(err) {
		return providerErr("detach volume "+volumeID, err)
	}
	return nil
}

func (c *Client) DeleteVolume(ctx context.Context, id string) error {
	volID, err := parseID(prefixVolume, id)
	if err != nil {
		return err
	}
	return (&deleteOperation[*hcloud.Volume]{
		ID:           volID,
		ResourceType: "volume",
		Get:          c.client.Volume.GetByID,
		Delete: func(ctx context.Context, v *hcloud.Volume) error {
			_, err := c.client.Volume.Delete(ctx, v)
			return err
		},
	}).Execute(ctx, c)
}

func (c *Client) updateVolumeLabels(ctx context.Context, id string, mutate func(map[string]string)) error {
	volID, err := parseID(prefixVolume, id)
	if err != nil {
		return err
	}
	return c.withLockRetry(ctx, func() error {
		v, _, err := c.client.Volume.GetByID(ctx, volID)
		if err != nil {
			return err
		}
		if v == nil {
			return retry.Fatal(fmt.Errorf("volume %s not found", id))
		}
		l := maps.Clone(v.Labels)
		if l == nil {
			l = map[string]string{}
		}
		mutate(l)
		_, _, err = c.client.Volume.Update(ctx, v, hcloud.VolumeUpdateOpts{Labels: l})
		return err
	})
}
