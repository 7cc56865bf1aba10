package hcloud

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/labels"
	"github.com/imamik/clusterous/internal/util/retry"
)

var serverStates = map[hcloud.ServerStatus]cloud.InstanceState{
	hcloud.ServerStatusInitializing: cloud.StatePending,
	hcloud.ServerStatusStarting:     cloud.StatePending,
	hcloud.ServerStatusRebuilding:   cloud.StatePending,
	hcloud.ServerStatusMigrating:    cloud.StatePending,
	hcloud.ServerStatusRunning:      cloud.StateRunning,
	hcloud.ServerStatusStopping:     cloud.StateStopping,
	hcloud.ServerStatusOff:          cloud.StateStopped,
	hcloud.ServerStatusDeleting:     cloud.StateShuttingDown,
}

// RunInstances creates req.Count servers attached to the subnet's network.
// Servers are not awaited; callers poll ListInstances until they converge.
// Root disk size is fixed by the server type and RootVolumeGB is ignored.
func (c *Client) RunInstances(ctx context.Context, req cloud.InstanceRequest) ([]*cloud.Instance, error) {
	opts, err := c.buildServerCreateOpts(ctx, req)
	if err != nil {
		return nil, err
	}
	prefix := req.NamePrefix
	if prefix == "" {
		prefix = "clusterous"
	}

	out := make([]*cloud.Instance, 0, req.Count)
	for range req.Count {
		opts.Name = fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
		res, err := c.createServerWithRetry(ctx, opts)
		if err != nil {
			return out, err
		}
		out = append(out, toInstance(res.Server))
	}
	return out, nil
}

func (c *Client) buildServerCreateOpts(ctx context.Context, req cloud.InstanceRequest) (hcloud.ServerCreateOpts, error) {
	netID, _, err := parseSubnetID(req.SubnetID)
	if err != nil {
		return hcloud.ServerCreateOpts{}, err
	}

	serverType, _, err := c.client.ServerType.GetByName(ctx, req.InstanceType)
	if err != nil {
		return hcloud.ServerCreateOpts{}, providerErr("get server type", err)
	}
	if serverType == nil {
		return hcloud.ServerCreateOpts{}, errdefs.Configf("server type not found: %s", req.InstanceType)
	}

	image, _, err := c.client.Image.GetForArchitecture(ctx, req.Image, serverType.Architecture)
	if err != nil {
		return hcloud.ServerCreateOpts{}, providerErr("get image", err)
	}
	if image == nil {
		return hcloud.ServerCreateOpts{}, errdefs.Configf("image not found: %s", req.Image)
	}

	var sshKeys []*hcloud.SSHKey
	if req.KeyName != "" {
		key, _, err := c.client.SSHKey.GetByName(ctx, req.KeyName)
		if err != nil {
			return hcloud.ServerCreateOpts{}, providerErr("get ssh key", err)
		}
		if key == nil {
			return hcloud.ServerCreateOpts{}, errdefs.Configf("ssh key not found: %s", req.KeyName)
		}
		sshKeys = append(sshKeys, key)
	}

	var firewalls []*hcloud.ServerCreateFirewall
	for _, id := range req.SecurityGroupIDs {
		fwID, err := parseID(prefixFirewall, id)
		if err != nil {
			return hcloud.ServerCreateOpts{}, err
		}
		firewalls = append(firewalls, &hcloud.ServerCreateFirewall{Firewall: hcloud.Firewall{ID: fwID}})
	}

	return hcloud.ServerCreateOpts{
		ServerType: serverType,
		Image:      image,
		SSHKeys:    sshKeys,
		Location:   &hcloud.Location{Name: c.location},
		Networks:   []*hcloud.Network{{ID: netID}},
		Firewalls:  firewalls,
		PublicNet: &hcloud.ServerCreatePublicNet{
			EnableIPv4: req.PublicIP,
			EnableIPv6: req.PublicIP,
		},
	}, nil
}

func (c *Client) createServerWithRetry(ctx context.Context, opts hcloud.ServerCreateOpts) (hcloud.ServerCreateResult, error) {
	var result hcloud.ServerCreateResult

	err := retry.WithExponentialBackoff(ctx, func() error {
		res, _, err := c.client.Server.Create(ctx, opts)
		if err != nil {
			if isInvalidParameter(err) {
				return retry.Fatal(err)
			}
			return err
		}
		result = res
		return nil
	}, retry.WithMaxRetries(c.timeouts.RetryMaxAttempts), retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
	if err != nil {
		return result, providerErr("create server", err)
	}
	return result, nil
}

func toInstance(s *hcloud.Server) *cloud.Instance {
	inst := &cloud.Instance{
		ID:         formatID(prefixServer, s.ID),
		Name:       s.Name,
		State:      cloud.StatePending,
		LaunchTime: s.Created,
		Tags:       fromLabels(s.Labels),
	}
	if st, ok := serverStates[s.Status]; ok {
		inst.State = st
	}
	if name := inst.Tags[labels.KeyName]; name != "" {
		inst.Name = name
	}
	if ip := s.PublicNet.IPv4.IP; ip != nil && !ip.IsUnspecified() {
		inst.PublicIP = ip.String()
	}
	if len(s.PrivateNet) > 0 && s.PrivateNet[0].IP != nil {
		inst.PrivateIP = s.PrivateNet[0].IP.String()
	}
	if s.Datacenter != nil && s.Datacenter.Location != nil {
		inst.Zone = s.Datacenter.Location.Name
	}
	if s.ServerType != nil {
		inst.InstanceType = s.ServerType.Name
	}
	return inst
}

// ListInstances lists servers. Deleted servers vanish rather than linger as
// terminated, so an ID filter returns only the ones still present.
func (c *Client) ListInstances(ctx context.Context, filter cloud.InstanceFilter) ([]*cloud.Instance, error) {
	var servers []*hcloud.Server
	if len(filter.IDs) > 0 {
		for _, id := range filter.IDs {
			srvID, err := parseID(prefixServer, id)
			if err != nil {
				return nil, err
			}
			s, _, err := c.client.Server.GetByID(ctx, srvID)
			if err != nil {
				return nil, providerErr("get server", err)
			}
			if s != nil {
				servers = append(servers, s)
			}
		}
	} else {
		sel, err := selector(filter.Tags)
		if err != nil {
			return nil, err
		}
		servers, err = c.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
			ListOpts: hcloud.ListOpts{LabelSelector: sel},
		})
		if err != nil {
			return nil, providerErr("list servers", err)
		}
	}

	var out []*cloud.Instance
	for _, s := range servers {
		inst := toInstance(s)
		if filter.MatchesFilter(inst) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (c *Client) TagResources(ctx context.Context, ids []string, tags map[string]string) error {
	l, err := toLabels(tags)
	if err != nil {
		return err
	}
	return c.updateLabels(ctx, ids, func(existing map[string]string) {
		maps.Copy(existing, l)
	})
}

func (c *Client) UntagResources(ctx context.Context, ids []string, keys []string) error {
	return c.updateLabels(ctx, ids, func(existing map[string]string) {
		for _, k := range keys {
			if l, ok := keyToLabel[k]; ok {
				delete(existing, l)
			} else {
				delete(existing, labelPrefix+sanitizeKey(k))
			}
		}
	})
}

// updateLabels applies mutate to the labels of each server or volume.
func (c *Client) updateLabels(ctx context.Context, ids []string, mutate func(map[string]string)) error {
	for _, id := range ids {
		var err error
		switch {
		case strings.HasPrefix(id, prefixServer):
			err = c.updateServerLabels(ctx, id, mutate)
		case strings.HasPrefix(id, prefixVolume):
			err = c.updateVolumeLabels(ctx, id, mutate)
		default:
			err = fmt.Errorf("cannot tag resource %q", id)
		}
		if err != nil {
			return providerErr("tag "+id, err)
		}
	}
	return nil
}

func (c *Client) updateServerLabels(ctx context.Context, id string, mutate func(map[string]string)) error {
	srvID, err := parseID(prefixServer, id)
	if err != nil {
		return err
	}
	return c.withLockRetry(ctx, func() error {
		s, _, err := c.client.Server.GetByID(ctx, srvID)
		if err != nil {
			return err
		}
		if s == nil {
			return retry.Fatal(fmt.Errorf("server %s not found", id))
		}
		l := maps.Clone(s.Labels)
		if l == nil {
			l = map[string]string{}
		}
		mutate(l)
		_, _, err = c.client.Server.Update(ctx, s, hcloud.ServerUpdateOpts{Labels: l})
		return err
	})
}

func (c *Client) TerminateInstances(ctx context.Context, ids []string) error {
	for _, id := range ids {
		srvID, err := parseID(prefixServer, id)
		if err != nil {
			return err
		}
		err = (&deleteOperation[*hcloud.Server]{
			ID:           srvID,
			ResourceType: "server",
			Get:          c.client.Server.GetByID,
			Delete: func(ctx context.Context, s *hcloud.Server) error {
				_, _, err := c.client.Server.DeleteWithResult(ctx, s)
				return err
			},
		}).Execute(ctx, c)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetSourceDestCheck is a no-op: Hetzner forwards routed traffic to any
// server named as a route gateway.
func (c *Client) SetSourceDestCheck(_ context.Context, _ string, _ bool) error {
	return nil
}
