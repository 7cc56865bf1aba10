package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/labels"
)

const rootDevice = "/dev/sda1"

func (c *Client) RunInstances(ctx context.Context, req cloud.InstanceRequest) ([]*cloud.Instance, error) {
	token := req.ClientToken
	if token == "" {
		token = uuid.NewString()
	}
	count := aws.Int32(int32(req.Count)) // #nosec G115

	in := &ec2.RunInstancesInput{
		ImageId:      aws.String(req.Image),
		InstanceType: types.InstanceType(req.InstanceType),
		MinCount:     count,
		MaxCount:     count,
		ClientToken:  aws.String(token),
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(req.SubnetID),
			Groups:                   req.SecurityGroupIDs,
			AssociatePublicIpAddress: aws.Bool(req.PublicIP),
			DeleteOnTermination:      aws.Bool(true),
		}},
	}
	if req.KeyName != "" {
		in.KeyName = aws.String(req.KeyName)
	}
	if req.RootVolumeGB > 0 {
		in.BlockDeviceMappings = []types.BlockDeviceMapping{{
			DeviceName: aws.String(rootDevice),
			Ebs: &types.EbsBlockDevice{
				VolumeSize:          aws.Int32(int32(req.RootVolumeGB)), // #nosec G115
				DeleteOnTermination: aws.Bool(true),
			},
		}}
	}

	out, err := c.ec2.RunInstances(ctx, in)
	if err != nil {
		return nil, providerErr(fmt.Sprintf("run %d %s instances", req.Count, req.InstanceType), err)
	}
	result := make([]*cloud.Instance, 0, len(out.Instances))
	for _, i := range out.Instances {
		result = append(result, toInstance(i))
	}
	return result, nil
}

func toInstance(i types.Instance) *cloud.Instance {
	tags := fromTags(i.Tags)
	inst := &cloud.Instance{
		ID:           aws.ToString(i.InstanceId),
		Name:         tags[labels.KeyName],
		PublicIP:     aws.ToString(i.PublicIpAddress),
		PrivateIP:    aws.ToString(i.PrivateIpAddress),
		SubnetID:     aws.ToString(i.SubnetId),
		InstanceType: string(i.InstanceType),
		LaunchTime:   aws.ToTime(i.LaunchTime),
		Tags:         tags,
	}
	if i.State != nil {
		inst.State = cloud.InstanceState(i.State.Name)
	}
	if i.Placement != nil {
		inst.Zone = aws.ToString(i.Placement.AvailabilityZone)
	}
	return inst
}

func (c *Client) ListInstances(ctx context.Context, filter cloud.InstanceFilter) ([]*cloud.Instance, error) {
	in := &ec2.DescribeInstancesInput{Filters: tagFilters(filter.Tags)}
	if len(filter.IDs) > 0 {
		in.InstanceIds = filter.IDs
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		in.Filters = append(in.Filters, types.Filter{Name: aws.String("instance-state-name"), Values: states})
	}

	var result []*cloud.Instance
	paginator := ec2.NewDescribeInstancesPaginator(c.ec2, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if len(filter.IDs) > 0 && IsNotFound(err) {
				return nil, notVisible("describe instances", err)
			}
			return nil, providerErr("describe instances", err)
		}
		for _, r := range page.Reservations {
			for _, i := range r.Instances {
				result = append(result, toInstance(i))
			}
		}
	}
	return result, nil
}

func (c *Client) TagResources(ctx context.Context, ids []string, tags map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.ec2.CreateTags(ctx, &ec2.CreateTagsInput{Resources: ids, Tags: toTags(tags)}); err != nil {
		if IsNotFound(err) {
			return notVisible("tag "+strings.Join(ids, ","), err)
		}
		return providerErr("tag "+strings.Join(ids, ","), err)
	}
	return nil
}

func (c *Client) UntagResources(ctx context.Context, ids []string, keys []string) error {
	if len(ids) == 0 {
		return nil
	}
	tags := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: aws.String(k)})
	}
	if _, err := c.ec2.DeleteTags(ctx, &ec2.DeleteTagsInput{Resources: ids, Tags: tags}); err != nil {
		return providerErr("untag "+strings.Join(ids, ","), err)
	}
	return nil
}

func (c *Client) TerminateInstances(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
		return providerErr("terminate "+strings.Join(ids, ","), err)
	}
	return nil
}

func (c *Client) SetSourceDestCheck(ctx context.Context, instanceID string, enabled bool) error {
	_, err := c.ec2.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:      aws.String(instanceID),
		SourceDestCheck: &types.AttributeBooleanValue{Value: aws.Bool(enabled)},
	})
	if err != nil {
		return providerErr("set source/dest check on "+instanceID, err)
	}
	return nil
}
