package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/imamik/clusterous/internal/platform/cloud"
)

func (c *Client) ListSecurityGroups(ctx context.Context, tags map[string]string) ([]*cloud.SecurityGroup, error) {
	out, err := c.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{Filters: tagFilters(tags)})
	if err != nil {
		return nil, providerErr("describe security groups", err)
	}
	result := make([]*cloud.SecurityGroup, 0, len(out.SecurityGroups))
	for _, g := range out.SecurityGroups {
		sg := &cloud.SecurityGroup{
			ID:        aws.ToString(g.GroupId),
			Name:      aws.ToString(g.GroupName),
			NetworkID: aws.ToString(g.VpcId),
			Tags:      fromTags(g.Tags),
		}
		for _, p := range g.IpPermissions {
			sg.Rules = append(sg.Rules, fromPermission(p)...)
		}
		result = append(result, sg)
	}
	return result, nil
}

func fromPermission(p types.IpPermission) []cloud.Rule {
	base := cloud.Rule{
		Protocol: aws.ToString(p.IpProtocol),
		FromPort: int(aws.ToInt32(p.FromPort)),
		ToPort:   int(aws.ToInt32(p.ToPort)),
	}
	var rules []cloud.Rule
	for _, r := range p.IpRanges {
		rule := base
		rule.CIDR = aws.ToString(r.CidrIp)
		rules = append(rules, rule)
	}
	for _, g := range p.UserIdGroupPairs {
		rule := base
		rule.SourceGroupID = aws.ToString(g.GroupId)
		rules = append(rules, rule)
	}
	return rules
}

func toPermission(r cloud.Rule) types.IpPermission {
	p := types.IpPermission{IpProtocol: aws.String(r.Protocol)}
	if r.Protocol != cloud.ProtocolAll {
		p.FromPort = aws.Int32(int32(r.FromPort)) // #nosec G115
		p.ToPort = aws.Int32(int32(r.ToPort))     // #nosec G115
	}
	if r.SourceGroupID != "" {
		p.UserIdGroupPairs = []types.UserIdGroupPair{{GroupId: aws.String(r.SourceGroupID)}}
	} else {
		p.IpRanges = []types.IpRange{{CidrIp: aws.String(r.CIDR)}}
	}
	return p
}

func (c *Client) CreateSecurityGroup(ctx context.Context, req cloud.SecurityGroupRequest) (*cloud.SecurityGroup, error) {
	out, err := c.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(req.Name),
		Description:       aws.String(req.Description),
		VpcId:             aws.String(req.NetworkID),
		TagSpecifications: tagSpec(types.ResourceTypeSecurityGroup, req.Tags),
	})
	if err != nil {
		return nil, providerErr("create security group "+req.Name, err)
	}
	return &cloud.SecurityGroup{
		ID:        aws.ToString(out.GroupId),
		Name:      req.Name,
		NetworkID: req.NetworkID,
		Tags:      req.Tags,
	}, nil
}

// AuthorizeIngress adds rules one by one so that a rule that already exists
// does not prevent the others from being added.
func (c *Client) AuthorizeIngress(ctx context.Context, groupID string, rules []cloud.Rule) error {
	for _, r := range rules {
		_, err := c.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: []types.IpPermission{toPermission(r)},
		})
		if err != nil && !isDuplicatePermission(err) {
			return providerErr("authorize ingress on "+groupID, err)
		}
	}
	return nil
}

func (c *Client) DeleteSecurityGroup(ctx context.Context, id string) error {
	return c.deleteWithRetry(ctx, "security group", id, func() error {
		_, err := c.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)})
		return err
	})
}
