package hcloud

import (
	"context"
	"fmt"
	"maps"
	"net"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
)

func (c *Client) ListSecurityGroups(ctx context.Context, tags map[string]string) ([]*cloud.SecurityGroup, error) {
	sel, err := selector(tags)
	if err != nil {
		return nil, err
	}
	fws, err := c.client.Firewall.AllWithOpts(ctx, hcloud.FirewallListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: sel},
	})
	if err != nil {
		return nil, providerErr("list firewalls", err)
	}
	out := make([]*cloud.SecurityGroup, 0, len(fws))
	for _, fw := range fws {
		out = append(out, toSecurityGroup(fw))
	}
	return out, nil
}

func toSecurityGroup(fw *hcloud.Firewall) *cloud.SecurityGroup {
	sg := &cloud.SecurityGroup{
		ID:        formatID(prefixFirewall, fw.ID),
		Name:      fw.Name,
		NetworkID: fw.Labels[labelNetwork],
		Tags:      fromLabels(fw.Labels),
	}
	for _, r := range fw.Rules {
		if r.Direction != hcloud.FirewallRuleDirectionIn {
			continue
		}
		sg.Rules = append(sg.Rules, fromFirewallRule(r))
	}
	return sg
}

func (c *Client) CreateSecurityGroup(ctx context.Context, req cloud.SecurityGroupRequest) (*cloud.SecurityGroup, error) {
	l, err := toLabels(req.Tags)
	if err != nil {
		return nil, err
	}
	l[labelNetwork] = req.NetworkID
	res, _, err := c.client.Firewall.Create(ctx, hcloud.FirewallCreateOpts{
		Name:   req.Name,
		Labels: l,
	})
	if err != nil {
		return nil, providerErr("create firewall "+req.Name, err)
	}
	if err := c.waitForActions(ctx, res.Actions...); err != nil {
		return nil, providerErr("create firewall "+req.Name, err)
	}
	return &cloud.SecurityGroup{
		ID:        formatID(prefixFirewall, res.Firewall.ID),
		Name:      req.Name,
		NetworkID: req.NetworkID,
		Tags:      maps.Clone(req.Tags),
	}, nil
}

// AuthorizeIngress merges rules into the firewall. Rules naming a source
// group are opened to the whole network range.
func (c *Client) AuthorizeIngress(ctx context.Context, groupID string, rules []cloud.Rule) error {
	id, err := parseID(prefixFirewall, groupID)
	if err != nil {
		return err
	}
	fw, _, err := c.client.Firewall.GetByID(ctx, id)
	if err != nil {
		return providerErr("get firewall", err)
	}
	if fw == nil {
		return notFound("security group", groupID)
	}

	networkCIDR := ""
	if netID, err := parseID(prefixNetwork, fw.Labels[labelNetwork]); err == nil {
		n, err := c.getNetwork(ctx, netID)
		if err != nil {
			return err
		}
		if n != nil {
			networkCIDR = ipNetString(n.IPRange)
		}
	}

	merged := fw.Rules
	seen := map[string]bool{}
	for _, r := range merged {
		seen[ruleKey(r)] = true
	}
	for _, r := range rules {
		converted, err := toFirewallRules(r, networkCIDR)
		if err != nil {
			return err
		}
		for _, fr := range converted {
			if !seen[ruleKey(fr)] {
				seen[ruleKey(fr)] = true
				merged = append(merged, fr)
			}
		}
	}

	err = c.withLockRetry(ctx, func() error {
		actions, _, err := c.client.Firewall.SetRules(ctx, fw, hcloud.FirewallSetRulesOpts{Rules: merged})
		if err != nil {
			return err
		}
		return c.waitForActions(ctx, actions...)
	})
	if err != nil {
		return providerErr("authorize ingress on "+groupID, err)
	}
	return nil
}

func (c *Client) DeleteSecurityGroup(ctx context.Context, id string) error {
	fwID, err := parseID(prefixFirewall, id)
	if err != nil {
		return err
	}
	return (&deleteOperation[*hcloud.Firewall]{
		ID:           fwID,
		ResourceType: "firewall",
		Get:          c.client.Firewall.GetByID,
		Delete: func(ctx context.Context, fw *hcloud.Firewall) error {
			_, err := c.client.Firewall.Delete(ctx, fw)
			return err
		},
	}).Execute(ctx, c)
}

func toFirewallRules(r cloud.Rule, networkCIDR string) ([]hcloud.FirewallRule, error) {
	source := r.CIDR
	if r.SourceGroupID != "" {
		source = networkCIDR
	}
	_, ipNet, err := net.ParseCIDR(source)
	if err != nil {
		return nil, errdefs.Configf("invalid rule source %q: %v", source, err)
	}

	protocols := []hcloud.FirewallRuleProtocol{hcloud.FirewallRuleProtocol(r.Protocol)}
	if r.Protocol == cloud.ProtocolAll {
		protocols = []hcloud.FirewallRuleProtocol{
			hcloud.FirewallRuleProtocolTCP,
			hcloud.FirewallRuleProtocolUDP,
			hcloud.FirewallRuleProtocolICMP,
		}
	}

	out := make([]hcloud.FirewallRule, 0, len(protocols))
	for _, p := range protocols {
		fr := hcloud.FirewallRule{
			Direction: hcloud.FirewallRuleDirectionIn,
			Protocol:  p,
			SourceIPs: []net.IPNet{*ipNet},
		}
		if p == hcloud.FirewallRuleProtocolTCP || p == hcloud.FirewallRuleProtocolUDP {
			fr.Port = hcloud.Ptr(portRange(r, p))
		}
		out = append(out, fr)
	}
	return out, nil
}

func portRange(r cloud.Rule, p hcloud.FirewallRuleProtocol) string {
	switch {
	case string(p) != r.Protocol, r.FromPort <= 0 && r.ToPort <= 0, r.FromPort == 0 && r.ToPort == 65535:
		return "any"
	case r.FromPort == r.ToPort:
		return strconv.Itoa(r.FromPort)
	default:
		return fmt.Sprintf("%d-%d", r.FromPort, r.ToPort)
	}
}

func fromFirewallRule(fr hcloud.FirewallRule) cloud.Rule {
	r := cloud.Rule{Protocol: string(fr.Protocol)}
	if len(fr.SourceIPs) > 0 {
		r.CIDR = fr.SourceIPs[0].String()
	}
	if fr.Port == nil {
		return r
	}
	switch port := *fr.Port; port {
	case "any":
		r.FromPort, r.ToPort = 0, 65535
	default:
		from, to, found := strings.Cut(port, "-")
		r.FromPort, _ = strconv.Atoi(from)
		r.ToPort = r.FromPort
		if found {
			r.ToPort, _ = strconv.Atoi(to)
		}
	}
	return r
}

func ruleKey(fr hcloud.FirewallRule) string {
	port := ""
	if fr.Port != nil {
		port = *fr.Port
	}
	sources := make([]string, 0, len(fr.SourceIPs))
	for _, s := range fr.SourceIPs {
		sources = append(sources, s.String())
	}
	return fmt.Sprintf("%s/%s/%s/%s", fr.Direction, fr.Protocol, port, strings.Join(sources, ","))
}
