package hcloud

import (
	"context"
	"fmt"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/labels"
)

func (c *Client) ListNetworks(ctx context.Context, tags map[string]string) ([]*cloud.Network, error) {
	nets, err := c.listNetworks(ctx, tags, false)
	if err != nil {
		return nil, err
	}
	out := make([]*cloud.Network, 0, len(nets))
	for _, n := range nets {
		out = append(out, &cloud.Network{
			ID:   formatID(prefixNetwork, n.ID),
			Name: n.Name,
			CIDR: ipNetString(n.IPRange),
			Tags: fromLabels(n.Labels),
		})
	}
	return out, nil
}

// listNetworks lists networks by label. With ownerOnly set only the cluster
// tag is used, for looking up pseudo-resources.
func (c *Client) listNetworks(ctx context.Context, tags map[string]string, ownerOnly bool) ([]*hcloud.Network, error) {
	sel, err := selector(tags)
	if ownerOnly {
		sel, err = ownerSelector(tags)
	}
	if err != nil {
		return nil, err
	}
	nets, err := c.client.Network.AllWithOpts(ctx, hcloud.NetworkListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: sel},
	})
	if err != nil {
		return nil, providerErr("list networks", err)
	}
	return nets, nil
}

func (c *Client) CreateNetwork(ctx context.Context, req cloud.NetworkRequest) (*cloud.Network, error) {
	l, err := toLabels(req.Tags)
	if err != nil {
		return nil, err
	}
	_, ipRange, err := net.ParseCIDR(req.CIDR)
	if err != nil {
		return nil, errdefs.Configf("invalid network CIDR %q: %v", req.CIDR, err)
	}
	n, _, err := c.client.Network.Create(ctx, hcloud.NetworkCreateOpts{
		Name:    resourceName(req.Tags),
		IPRange: ipRange,
		Labels:  l,
	})
	if err != nil {
		return nil, providerErr("create network", err)
	}
	return &cloud.Network{ID: formatID(prefixNetwork, n.ID), Name: n.Name, CIDR: req.CIDR, Tags: maps.Clone(req.Tags)}, nil
}

func (c *Client) DeleteNetwork(ctx context.Context, id string) error {
	netID, err := parseID(prefixNetwork, id)
	if err != nil {
		return err
	}
	return (&deleteOperation[*hcloud.Network]{
		ID:           netID,
		ResourceType: "network",
		Get:          c.client.Network.GetByID,
		Delete: func(ctx context.Context, n *hcloud.Network) error {
			_, err := c.client.Network.Delete(ctx, n)
			return err
		},
	}).Execute(ctx, c)
}

func (c *Client) getNetwork(ctx context.Context, id int64) (*hcloud.Network, error) {
	n, _, err := c.client.Network.GetByID(ctx, id)
	if err != nil {
		return nil, providerErr("get network", err)
	}
	return n, nil
}

// updateNetworkLabels applies mutate to the network's labels. A missing
// network is not an error so pseudo-resource deletes stay idempotent.
func (c *Client) updateNetworkLabels(ctx context.Context, id int64, mutate func(map[string]string)) (*hcloud.Network, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.getNetwork(ctx, id)
	if err != nil || n == nil {
		return nil, err
	}
	l := maps.Clone(n.Labels)
	if l == nil {
		l = map[string]string{}
	}
	mutate(l)
	err = c.withLockRetry(ctx, func() error {
		_, _, err := c.client.Network.Update(ctx, n, hcloud.NetworkUpdateOpts{Labels: l})
		return err
	})
	if err != nil {
		return nil, providerErr("update network labels", err)
	}
	n.Labels = l
	return n, nil
}

// pseudoTags are the tags reported for a pseudo-resource of network n.
func pseudoTags(n *hcloud.Network, name string) map[string]string {
	tags := map[string]string{}
	if owner, ok := n.Labels[keyToLabel[labels.KeyCluster]]; ok {
		tags[labels.KeyCluster] = owner
	}
	if name != "" {
		tags[labels.KeyName] = name
	}
	return tags
}

// Subnets.

func (c *Client) ListSubnets(ctx context.Context, tags map[string]string) ([]*cloud.Subnet, error) {
	nets, err := c.listNetworks(ctx, tags, true)
	if err != nil {
		return nil, err
	}
	var out []*cloud.Subnet
	for _, n := range nets {
		for _, s := range n.Subnets {
			cidr := ipNetString(s.IPRange)
			name := n.Labels[labelSubnetPrefix+cidrKey(cidr)]
			sub := &cloud.Subnet{
				ID:        subnetID(n.ID, cidr),
				Name:      name,
				NetworkID: formatID(prefixNetwork, n.ID),
				CIDR:      cidr,
				Zone:      c.location,
				Tags:      pseudoTags(n, name),
			}
			if labels.Matches(sub.Tags, tags) {
				out = append(out, sub)
			}
		}
	}
	return out, nil
}

func (c *Client) CreateSubnet(ctx context.Context, req cloud.SubnetRequest) (*cloud.Subnet, error) {
	netID, err := parseID(prefixNetwork, req.NetworkID)
	if err != nil {
		return nil, err
	}
	name := req.Tags[labels.KeyName]
	if !labelValueRe.MatchString(name) {
		return nil, errdefs.Configf("subnet name %q is not a valid hcloud label value", name)
	}
	_, ipRange, err := net.ParseCIDR(req.CIDR)
	if err != nil {
		return nil, errdefs.Configf("invalid subnet CIDR %q: %v", req.CIDR, err)
	}
	location := c.Zone(req.Zone)
	loc, _, err := c.client.Location.GetByName(ctx, location)
	if err != nil {
		return nil, providerErr("get location", err)
	}
	if loc == nil {
		return nil, errdefs.Configf("location not found: %s", location)
	}

	n, err := c.getNetwork(ctx, netID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, notFound("network", req.NetworkID)
	}
	err = c.withLockRetry(ctx, func() error {
		action, _, err := c.client.Network.AddSubnet(ctx, n, hcloud.NetworkAddSubnetOpts{
			Subnet: hcloud.NetworkSubnet{
				Type:        hcloud.NetworkSubnetTypeCloud,
				IPRange:     ipRange,
				NetworkZone: loc.NetworkZone,
			},
		})
		if err != nil {
			return err
		}
		return c.waitForActions(ctx, action)
	})
	if err != nil {
		return nil, providerErr("create subnet", err)
	}

	n, err = c.updateNetworkLabels(ctx, netID, func(l map[string]string) {
		l[labelSubnetPrefix+cidrKey(req.CIDR)] = name
	})
	if err != nil {
		return nil, err
	}
	return &cloud.Subnet{
		ID:        subnetID(netID, req.CIDR),
		Name:      name,
		NetworkID: req.NetworkID,
		CIDR:      req.CIDR,
		Zone:      location,
		Tags:      pseudoTags(n, name),
	}, nil
}

func (c *Client) DeleteSubnet(ctx context.Context, id string) error {
	netID, cidr, err := parseSubnetID(id)
	if err != nil {
		return err
	}
	n, err := c.getNetwork(ctx, netID)
	if err != nil || n == nil {
		return err
	}
	for _, s := range n.Subnets {
		if ipNetString(s.IPRange) != cidr {
			continue
		}
		err := c.withLockRetry(ctx, func() error {
			action, _, err := c.client.Network.DeleteSubnet(ctx, n, hcloud.NetworkDeleteSubnetOpts{Subnet: s})
			if err != nil {
				return err
			}
			return c.waitForActions(ctx, action)
		})
		if err != nil && !IsNotFound(err) {
			return providerErr("delete subnet "+id, err)
		}
	}
	_, err = c.updateNetworkLabels(ctx, netID, func(l map[string]string) {
		delete(l, labelSubnetPrefix+cidrKey(cidr))
	})
	return err
}

// Gateways. Hetzner routes public traffic without one, so only the name is kept.

func (c *Client) ListGateways(ctx context.Context, tags map[string]string) ([]*cloud.Gateway, error) {
	nets, err := c.listNetworks(ctx, tags, true)
	if err != nil {
		return nil, err
	}
	var out []*cloud.Gateway
	for _, n := range nets {
		name, ok := n.Labels[labelGateway]
		if !ok {
			continue
		}
		gw := &cloud.Gateway{
			ID:        formatID(prefixGateway, n.ID),
			Name:      name,
			NetworkID: formatID(prefixNetwork, n.ID),
			Tags:      pseudoTags(n, name),
		}
		if labels.Matches(gw.Tags, tags) {
			out = append(out, gw)
		}
	}
	return out, nil
}

func (c *Client) CreateGateway(ctx context.Context, req cloud.GatewayRequest) (*cloud.Gateway, error) {
	netID, err := parseID(prefixNetwork, req.NetworkID)
	if err != nil {
		return nil, err
	}
	name := req.Tags[labels.KeyName]
	if !labelValueRe.MatchString(name) {
		return nil, errdefs.Configf("gateway name %q is not a valid hcloud label value", name)
	}
	n, err := c.updateNetworkLabels(ctx, netID, func(l map[string]string) {
		l[labelGateway] = name
	})
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, notFound("network", req.NetworkID)
	}
	return &cloud.Gateway{ID: formatID(prefixGateway, netID), Name: name, NetworkID: req.NetworkID, Tags: pseudoTags(n, name)}, nil
}

func (c *Client) DeleteGateway(ctx context.Context, id string) error {
	netID, err := parseID(prefixGateway, id)
	if err != nil {
		return err
	}
	_, err = c.updateNetworkLabels(ctx, netID, func(l map[string]string) {
		delete(l, labelGateway)
	})
	return err
}

// Route tables. Each table is a set of labels rtb-<n>, rtb-<n>-assoc and
// rtb-<n>-route-<cidr>. Instance routes are also added as network routes.

type rtbEntry struct {
	name   string
	assoc  []string
	routes []cloud.Route
}

func parseRouteTables(n *hcloud.Network) map[int]*rtbEntry {
	tables := map[int]*rtbEntry{}
	entry := func(i int) *rtbEntry {
		if tables[i] == nil {
			tables[i] = &rtbEntry{}
		}
		return tables[i]
	}
	for k, v := range n.Labels {
		rest, ok := strings.CutPrefix(k, labelRTBPrefix)
		if !ok {
			continue
		}
		idxPart, suffix, _ := strings.Cut(rest, "-")
		idx, err := strconv.Atoi(idxPart)
		if err != nil {
			continue
		}
		switch {
		case suffix == "":
			entry(idx).name = v
		case suffix == strings.TrimPrefix(labelRTBAssoc, "-"):
			for _, key := range strings.Split(v, "_") {
				if key != "" {
					entry(idx).assoc = append(entry(idx).assoc, cidrFromKey(key))
				}
			}
		case strings.HasPrefix(suffix, "route-"):
			r := cloud.Route{Destination: cidrFromKey(strings.TrimPrefix(suffix, "route-"))}
			if strings.HasPrefix(v, prefixServer) {
				r.InstanceID = v
			} else {
				r.GatewayID = v
			}
			entry(idx).routes = append(entry(idx).routes, r)
		}
	}
	for _, t := range tables {
		slices.Sort(t.assoc)
		slices.SortFunc(t.routes, func(a, b cloud.Route) int { return strings.Compare(a.Destination, b.Destination) })
	}
	return tables
}

func rtbKey(idx int) string {
	return labelRTBPrefix + strconv.Itoa(idx)
}

func (c *Client) ListRouteTables(ctx context.Context, tags map[string]string) ([]*cloud.RouteTable, error) {
	nets, err := c.listNetworks(ctx, tags, true)
	if err != nil {
		return nil, err
	}
	var out []*cloud.RouteTable
	for _, n := range nets {
		tables := parseRouteTables(n)
		for _, idx := range slices.Sorted(maps.Keys(tables)) {
			t := tables[idx]
			if t.name == "" {
				continue
			}
			rt := &cloud.RouteTable{
				ID:        rtbID(n.ID, idx),
				Name:      t.name,
				NetworkID: formatID(prefixNetwork, n.ID),
				Routes:    t.routes,
				Tags:      pseudoTags(n, t.name),
			}
			for _, cidr := range t.assoc {
				rt.SubnetIDs = append(rt.SubnetIDs, subnetID(n.ID, cidr))
			}
			if labels.Matches(rt.Tags, tags) {
				out = append(out, rt)
			}
		}
	}
	return out, nil
}

func (c *Client) CreateRouteTable(ctx context.Context, req cloud.RouteTableRequest) (*cloud.RouteTable, error) {
	netID, err := parseID(prefixNetwork, req.NetworkID)
	if err != nil {
		return nil, err
	}
	name := req.Tags[labels.KeyName]
	if name == "" || !labelValueRe.MatchString(name) {
		return nil, errdefs.Configf("route table name %q is not a valid hcloud label value", name)
	}
	idx := 0
	n, err := c.updateNetworkLabels(ctx, netID, func(l map[string]string) {
		for i := range parseRouteTables(&hcloud.Network{Labels: l}) {
			if i >= idx {
				idx = i + 1
			}
		}
		l[rtbKey(idx)] = name
	})
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, notFound("network", req.NetworkID)
	}
	return &cloud.RouteTable{ID: rtbID(netID, idx), Name: name, NetworkID: req.NetworkID, Tags: pseudoTags(n, name)}, nil
}

func (c *Client) SetRoute(ctx context.Context, tableID string, route cloud.Route) error {
	netID, idx, err := parseRTBID(tableID)
	if err != nil {
		return err
	}
	_, dest, err := net.ParseCIDR(route.Destination)
	if err != nil {
		return errdefs.Configf("invalid route destination %q: %v", route.Destination, err)
	}
	target := route.GatewayID
	if route.InstanceID != "" {
		target = route.InstanceID
		if err := c.setNetworkRoute(ctx, netID, dest, route.InstanceID); err != nil {
			return err
		}
	}
	_, err = c.updateNetworkLabels(ctx, netID, func(l map[string]string) {
		l[fmt.Sprintf("%s-route-%s", rtbKey(idx), cidrKey(route.Destination))] = target
	})
	return err
}

// setNetworkRoute points dest at the instance's private address, replacing
// any existing route for dest.
func (c *Client) setNetworkRoute(ctx context.Context, netID int64, dest *net.IPNet, instanceID string) error {
	srvID, err := parseID(prefixServer, instanceID)
	if err != nil {
		return err
	}
	srv, _, err := c.client.Server.GetByID(ctx, srvID)
	if err != nil {
		return providerErr("get server", err)
	}
	if srv == nil {
		return notFound("instance", instanceID)
	}
	var gw net.IP
	for _, pn := range srv.PrivateNet {
		if pn.Network != nil && pn.Network.ID == netID {
			gw = pn.IP
		}
	}
	if gw == nil {
		return errdefs.InstanceStatef("instance %s has no address in network %d", instanceID, netID)
	}

	n, err := c.getNetwork(ctx, netID)
	if err != nil {
		return err
	}
	if n == nil {
		return notFound("network", formatID(prefixNetwork, netID))
	}
	for _, r := range n.Routes {
		if ipNetString(r.Destination) != dest.String() {
			continue
		}
		if r.Gateway.Equal(gw) {
			return nil
		}
		if err := c.deleteNetworkRoute(ctx, n, r); err != nil {
			return err
		}
	}
	err = c.withLockRetry(ctx, func() error {
		action, _, err := c.client.Network.AddRoute(ctx, n, hcloud.NetworkAddRouteOpts{
			Route: hcloud.NetworkRoute{Destination: dest, Gateway: gw},
		})
		if err != nil {
			return err
		}
		return c.waitForActions(ctx, action)
	})
	if err != nil {
		return providerErr("add route", err)
	}
	return nil
}

func (c *Client) deleteNetworkRoute(ctx context.Context, n *hcloud.Network, r hcloud.NetworkRoute) error {
	err := c.withLockRetry(ctx, func() error {
		action, _, err := c.client.Network.DeleteRoute(ctx, n, hcloud.NetworkDeleteRouteOpts{Route: r})
		if err != nil {
			return err
		}
		return c.waitForActions(ctx, action)
	})
	if err != nil && !IsNotFound(err) {
		return providerErr("delete route", err)
	}
	return nil
}

func (c *Client) AssociateRouteTable(ctx context.Context, tableID, subnet string) error {
	netID, idx, err := parseRTBID(tableID)
	if err != nil {
		return err
	}
	_, cidr, err := parseSubnetID(subnet)
	if err != nil {
		return err
	}
	_, err = c.updateNetworkLabels(ctx, netID, func(l map[string]string) {
		key := rtbKey(idx) + labelRTBAssoc
		var assoc []string
		if v := l[key]; v != "" {
			assoc = strings.Split(v, "_")
		}
		if !slices.Contains(assoc, cidrKey(cidr)) {
			assoc = append(assoc, cidrKey(cidr))
		}
		l[key] = strings.Join(assoc, "_")
	})
	return err
}

func (c *Client) DeleteRouteTable(ctx context.Context, id string) error {
	netID, idx, err := parseRTBID(id)
	if err != nil {
		return err
	}
	n, err := c.getNetwork(ctx, netID)
	if err != nil || n == nil {
		return err
	}
	if t, ok := parseRouteTables(n)[idx]; ok {
		for _, r := range t.routes {
			if r.InstanceID == "" {
				continue
			}
			for _, nr := range n.Routes {
				if ipNetString(nr.Destination) == r.Destination {
					if err := c.deleteNetworkRoute(ctx, n, nr); err != nil {
						return err
					}
				}
			}
		}
	}
	_, err = c.updateNetworkLabels(ctx, netID, func(l map[string]string) {
		for k := range l {
			if k == rtbKey(idx) || strings.HasPrefix(k, rtbKey(idx)+"-") {
				delete(l, k)
			}
		}
	})
	return err
}

func ipNetString(n *net.IPNet) string {
	if n == nil {
		return ""
	}
	return n.String()
}

// resourceName picks the Name tag, falling back to the owning cluster.
func resourceName(tags map[string]string) string {
	if name := tags[labels.KeyName]; name != "" {
		return name
	}
	if owner := tags[labels.KeyCluster]; owner != "" {
		return owner
	}
	return "clusterous"
}
