package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/labels"
)

func (c *Client) ListNetworks(ctx context.Context, tags map[string]string) ([]*cloud.Network, error) {
	out, err := c.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: tagFilters(tags)})
	if err != nil {
		return nil, providerErr("describe vpcs", err)
	}
	result := make([]*cloud.Network, 0, len(out.Vpcs))
	for _, v := range out.Vpcs {
		result = append(result, toNetwork(v))
	}
	return result, nil
}

func toNetwork(v types.Vpc) *cloud.Network {
	tags := fromTags(v.Tags)
	return &cloud.Network{
		ID:   aws.ToString(v.VpcId),
		Name: tags[labels.KeyName],
		CIDR: aws.ToString(v.CidrBlock),
		Tags: tags,
	}
}

func (c *Client) CreateNetwork(ctx context.Context, req cloud.NetworkRequest) (*cloud.Network, error) {
	out, err := c.ec2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(req.CIDR),
		TagSpecifications: tagSpec(types.ResourceTypeVpc, req.Tags),
	})
	if err != nil {
		return nil, providerErr("create vpc", err)
	}
	return toNetwork(*out.Vpc), nil
}

func (c *Client) DeleteNetwork(ctx context.Context, id string) error {
	return c.deleteWithRetry(ctx, "vpc", id, func() error {
		_, err := c.ec2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(id)})
		return err
	})
}

func (c *Client) ListSubnets(ctx context.Context, tags map[string]string) ([]*cloud.Subnet, error) {
	out, err := c.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{Filters: tagFilters(tags)})
	if err != nil {
		return nil, providerErr("describe subnets", err)
	}
	result := make([]*cloud.Subnet, 0, len(out.Subnets))
	for _, s := range out.Subnets {
		result = append(result, toSubnet(s))
	}
	return result, nil
}

func toSubnet(s types.Subnet) *cloud.Subnet {
	tags := fromTags(s.Tags)
	return &cloud.Subnet{
		ID:        aws.ToString(s.SubnetId),
		Name:      tags[labels.KeyName],
		NetworkID: aws.ToString(s.VpcId),
		CIDR:      aws.ToString(s.CidrBlock),
		Zone:      aws.ToString(s.AvailabilityZone),
		Tags:      tags,
	}
}

func (c *Client) CreateSubnet(ctx context.Context, req cloud.SubnetRequest) (*cloud.Subnet, error) {
	in := &ec2.CreateSubnetInput{
		VpcId:             aws.String(req.NetworkID),
		CidrBlock:         aws.String(req.CIDR),
		TagSpecifications: tagSpec(types.ResourceTypeSubnet, req.Tags),
	}
	if req.Zone != "" {
		in.AvailabilityZone = aws.String(c.Zone(req.Zone))
	}
	out, err := c.ec2.CreateSubnet(ctx, in)
	if err != nil {
		return nil, providerErr("create subnet", err)
	}
	return toSubnet(*out.Subnet), nil
}

func (c *Client) DeleteSubnet(ctx context.Context, id string) error {
	return c.deleteWithRetry(ctx, "subnet", id, func() error {
		_, err := c.ec2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)})
		return err
	})
}

func (c *Client) ListGateways(ctx context.Context, tags map[string]string) ([]*cloud.Gateway, error) {
	out, err := c.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{Filters: tagFilters(tags)})
	if err != nil {
		return nil, providerErr("describe internet gateways", err)
	}
	result := make([]*cloud.Gateway, 0, len(out.InternetGateways))
	for _, g := range out.InternetGateways {
		result = append(result, toGateway(g))
	}
	return result, nil
}

func toGateway(g types.InternetGateway) *cloud.Gateway {
	tags := fromTags(g.Tags)
	gw := &cloud.Gateway{ID: aws.ToString(g.InternetGatewayId), Name: tags[labels.KeyName], Tags: tags}
	if len(g.Attachments) > 0 {
		gw.NetworkID = aws.ToString(g.Attachments[0].VpcId)
	}
	return gw
}

func (c *Client) CreateGateway(ctx context.Context, req cloud.GatewayRequest) (*cloud.Gateway, error) {
	out, err := c.ec2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpec(types.ResourceTypeInternetGateway, req.Tags),
	})
	if err != nil {
		return nil, providerErr("create internet gateway", err)
	}
	gw := toGateway(*out.InternetGateway)
	if _, err := c.ec2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: aws.String(gw.ID),
		VpcId:             aws.String(req.NetworkID),
	}); err != nil {
		return nil, providerErr(fmt.Sprintf("attach internet gateway %s", gw.ID), err)
	}
	gw.NetworkID = req.NetworkID
	return gw, nil
}

func (c *Client) DeleteGateway(ctx context.Context, id string) error {
	out, err := c.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{InternetGatewayIds: []string{id}})
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return providerErr("describe internet gateway "+id, err)
	}
	for _, g := range out.InternetGateways {
		for _, a := range g.Attachments {
			vpcID := aws.ToString(a.VpcId)
			if err := c.deleteWithRetry(ctx, "gateway attachment", id, func() error {
				_, err := c.ec2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
					InternetGatewayId: aws.String(id),
					VpcId:             aws.String(vpcID),
				})
				return err
			}); err != nil {
				return err
			}
		}
	}
	return c.deleteWithRetry(ctx, "internet gateway", id, func() error {
		_, err := c.ec2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: aws.String(id)})
		return err
	})
}

func (c *Client) ListRouteTables(ctx context.Context, tags map[string]string) ([]*cloud.RouteTable, error) {
	out, err := c.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{Filters: tagFilters(tags)})
	if err != nil {
		return nil, providerErr("describe route tables", err)
	}
	result := make([]*cloud.RouteTable, 0, len(out.RouteTables))
	for _, rt := range out.RouteTables {
		result = append(result, toRouteTable(rt))
	}
	return result, nil
}

func toRouteTable(rt types.RouteTable) *cloud.RouteTable {
	tags := fromTags(rt.Tags)
	table := &cloud.RouteTable{
		ID:        aws.ToString(rt.RouteTableId),
		Name:      tags[labels.KeyName],
		NetworkID: aws.ToString(rt.VpcId),
		Tags:      tags,
	}
	for _, r := range rt.Routes {
		table.Routes = append(table.Routes, cloud.Route{
			Destination: aws.ToString(r.DestinationCidrBlock),
			GatewayID:   aws.ToString(r.GatewayId),
			InstanceID:  aws.ToString(r.InstanceId),
		})
	}
	for _, a := range rt.Associations {
		if a.SubnetId != nil {
			table.SubnetIDs = append(table.SubnetIDs, aws.ToString(a.SubnetId))
		}
	}
	return table
}

func (c *Client) CreateRouteTable(ctx context.Context, req cloud.RouteTableRequest) (*cloud.RouteTable, error) {
	out, err := c.ec2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             aws.String(req.NetworkID),
		TagSpecifications: tagSpec(types.ResourceTypeRouteTable, req.Tags),
	})
	if err != nil {
		return nil, providerErr("create route table", err)
	}
	return toRouteTable(*out.RouteTable), nil
}

func (c *Client) SetRoute(ctx context.Context, tableID string, route cloud.Route) error {
	create := &ec2.CreateRouteInput{
		RouteTableId:         aws.String(tableID),
		DestinationCidrBlock: aws.String(route.Destination),
	}
	replace := &ec2.ReplaceRouteInput{
		RouteTableId:         aws.String(tableID),
		DestinationCidrBlock: aws.String(route.Destination),
	}
	if route.GatewayID != "" {
		create.GatewayId = aws.String(route.GatewayID)
		replace.GatewayId = aws.String(route.GatewayID)
	} else {
		create.InstanceId = aws.String(route.InstanceID)
		replace.InstanceId = aws.String(route.InstanceID)
	}

	_, err := c.ec2.CreateRoute(ctx, create)
	if isRouteAlreadyExists(err) {
		_, err = c.ec2.ReplaceRoute(ctx, replace)
	}
	if err != nil {
		return providerErr(fmt.Sprintf("set route %s in %s", route.Destination, tableID), err)
	}
	return nil
}

func (c *Client) AssociateRouteTable(ctx context.Context, tableID, subnetID string) error {
	_, err := c.ec2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: aws.String(tableID),
		SubnetId:     aws.String(subnetID),
	})
	if err != nil && !isAlreadyAssociated(err) {
		return providerErr(fmt.Sprintf("associate route table %s with %s", tableID, subnetID), err)
	}
	return nil
}

func (c *Client) DeleteRouteTable(ctx context.Context, id string) error {
	out, err := c.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{id}})
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return providerErr("describe route table "+id, err)
	}
	for _, rt := range out.RouteTables {
		for _, a := range rt.Associations {
			if aws.ToBool(a.Main) {
				continue
			}
			if _, err := c.ec2.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
				AssociationId: a.RouteTableAssociationId,
			}); err != nil && !IsNotFound(err) {
				return providerErr("disassociate route table "+id, err)
			}
		}
	}
	return c.deleteWithRetry(ctx, "route table", id, func() error {
		_, err := c.ec2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: aws.String(id)})
		return err
	})
}
