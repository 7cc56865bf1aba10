package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/imamik/clusterous/internal/platform/cloud"
)

func (c *Client) CreateVolume(ctx context.Context, req cloud.VolumeRequest) (*cloud.Volume, error) {
	out, err := c.ec2.CreateVolume(ctx, &ec2.CreateVolumeInput{
		AvailabilityZone:  aws.String(c.Zone(req.Zone)),
		Size:              aws.Int32(int32(req.SizeGB)), // #nosec G115
		VolumeType:        types.VolumeTypeGp2,
		TagSpecifications: tagSpec(types.ResourceTypeVolume, req.Tags),
	})
	if err != nil {
		return nil, providerErr("create volume", err)
	}
	return &cloud.Volume{
		ID:     aws.ToString(out.VolumeId),
		SizeGB: int(aws.ToInt32(out.Size)),
		Zone:   aws.ToString(out.AvailabilityZone),
		State:  cloud.VolumeState(out.State),
		Tags:   fromTags(out.Tags),
	}, nil
}

func toVolume(v types.Volume) *cloud.Volume {
	vol := &cloud.Volume{
		ID:     aws.ToString(v.VolumeId),
		SizeGB: int(aws.ToInt32(v.Size)),
		Zone:   aws.ToString(v.AvailabilityZone),
		State:  cloud.VolumeState(v.State),
		Tags:   fromTags(v.Tags),
	}
	for _, a := range v.Attachments {
		if a.State == types.VolumeAttachmentStateAttached || a.State == types.VolumeAttachmentStateAttaching {
			vol.AttachedTo = aws.ToString(a.InstanceId)
		}
	}
	return vol
}

func (c *Client) GetVolume(ctx context.Context, id string) (*cloud.Volume, error) {
	out, err := c.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{id}})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, providerErr("describe volume "+id, err)
	}
	if len(out.Volumes) == 0 {
		return nil, nil
	}
	return toVolume(out.Volumes[0]), nil
}

func (c *Client) ListVolumes(ctx context.Context, tags map[string]string) ([]*cloud.Volume, error) {
	out, err := c.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{Filters: tagFilters(tags)})
	if err != nil {
		return nil, providerErr("describe volumes", err)
	}
	result := make([]*cloud.Volume, 0, len(out.Volumes))
	for _, v := range out.Volumes {
		result = append(result, toVolume(v))
	}
	return result, nil
}

func (c *Client) AttachVolume(ctx context.Context, volumeID, instanceID, device string) error {
	_, err := c.ec2.AttachVolume(ctx, &ec2.AttachVolumeInput{
		VolumeId:   aws.String(volumeID),
		InstanceId: aws.String(instanceID),
		Device:     aws.String(device),
	})
	if err != nil {
		return providerErr("attach volume "+volumeID, err)
	}
	return nil
}

func (c *Client) DetachVolume(ctx context.Context, volumeID string) error {
	_, err := c.ec2.DetachVolume(ctx, &ec2.DetachVolumeInput{VolumeId: aws.String(volumeID)})
	if err != nil && !IsNotFound(err) && errorCode(err) != "IncorrectState" {
		return providerErr("detach volume "+volumeID, err)
	}
	return nil
}

func (c *Client) DeleteVolume(ctx context.Context, id string) error {
	return c.deleteWithRetry(ctx, "volume", id, func() error {
		_, err := c.ec2.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(id)})
		return err
	})
}
