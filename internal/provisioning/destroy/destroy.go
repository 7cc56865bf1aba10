package destroy

import (
	"fmt"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/instances"
	"github.com/imamik/clusterous/internal/util/labels"
)

const phase = "destroy"

// Options control what happens to the shared volume.
type Options struct {
	// LeaveVolume keeps a volume the cluster created.
	LeaveVolume bool
	// ForceDeleteVolume deletes a borrowed volume instead of returning it.
	ForceDeleteVolume bool
}

// Provisioner handles cluster destruction.
type Provisioner struct {
	opts Options

	// Removed counts the resources deleted by the last Provision call.
	Removed int
}

func NewProvisioner(opts Options) *Provisioner {
	return &Provisioner{opts: opts}
}

func (p *Provisioner) Name() string {
	return phase
}

// Provision destroys every resource tagged for the cluster.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	name := ctx.ClusterName()
	ctx.Observer.Printf("[Destroy] Starting cluster destruction for: %s", name)
	p.Removed = 0
	errs := &CleanupError{}

	owned, err := instances.ListOwned(ctx, ctx.Cloud, name)
	if err != nil {
		// Without the instance list nothing else can be deleted safely.
		return err
	}

	// The volume is found through its attachment before termination
	// detaches it.
	vol, borrowed, err := findVolume(ctx, owned)
	errs.Add(err)

	ids := make([]string, 0, len(owned))
	for _, inst := range owned {
		ids = append(ids, inst.ID)
	}
	if len(ids) > 0 {
		ctx.Observer.Printf("[Destroy] Terminating %d instances", len(ids))
		if err := instances.Terminate(ctx, ids); err != nil {
			// Network resources cannot go while instances still use them.
			errs.Add(fmt.Errorf("instances: %w", err))
			return errs
		}
		p.Removed += len(ids)
	}

	if vol != nil {
		removed, err := p.releaseVolume(ctx, vol, borrowed)
		errs.Add(err)
		p.Removed += removed
	}

	p.deleteNetworkResources(ctx, errs)

	if p.Removed == 0 && !errs.HasErrors() {
		ctx.Observer.Printf("[Destroy] Nothing terminated")
	}
	if errs.HasErrors() {
		ctx.Observer.Printf("[Destroy] Cleanup completed with %d errors", len(errs.Errors))
		return errs
	}
	ctx.Observer.Printf("[Destroy] Cluster %s destroyed successfully", name)
	return nil
}

// findVolume returns the shared volume and whether it was borrowed. A
// volume attached to one of the cluster's instances wins; the session
// record is the fallback for an attachment that is gone or never finished.
func findVolume(ctx *provisioning.Context, owned []*cloud.Instance) (*cloud.Volume, bool, error) {
	name := ctx.ClusterName()
	vols, err := ctx.Cloud.ListVolumes(ctx, nil)
	if err != nil {
		return nil, false, errdefs.Provider("list volumes", err)
	}
	for _, inst := range owned {
		for _, v := range vols {
			if v.AttachedTo != inst.ID {
				continue
			}
			if v.Tags[labels.KeyAttached] == name {
				return v, true, nil
			}
			if v.Tags[labels.KeyCluster] == name {
				return v, false, nil
			}
		}
	}

	if ctx.Session == nil {
		return nil, false, nil
	}
	info, err := ctx.Session.Load()
	if err != nil || info.ClusterName != name || info.VolumeID == "" {
		return nil, false, nil
	}
	for _, v := range vols {
		if v.ID == info.VolumeID && (v.Tags[labels.KeyAttached] == name || v.Tags[labels.KeyCluster] == name) {
			return v, info.VolumeBorrowed(), nil
		}
	}
	return nil, false, nil
}

// releaseVolume deletes or keeps the shared volume. A borrowed volume is
// only deleted when forced; otherwise its Attached tag is removed. A
// created volume is deleted unless the caller asked to leave it.
func (p *Provisioner) releaseVolume(ctx *provisioning.Context, vol *cloud.Volume, borrowed bool) (int, error) {
	del := !p.opts.LeaveVolume
	if borrowed {
		del = p.opts.ForceDeleteVolume
	}

	if !del {
		if borrowed {
			if err := ctx.Cloud.UntagResources(ctx, []string{vol.ID}, []string{labels.KeyAttached}); err != nil {
				return 0, fmt.Errorf("volume %s: %w", vol.ID, errdefs.Provider("untag volume", err))
			}
		}
		ctx.Observer.Printf("[Destroy] Leaving shared volume %q", vol.ID)
		return 0, nil
	}

	provisioning.LogResourceDeleting(ctx.Observer, phase, "volume", vol.ID)
	if err := ctx.Cloud.DeleteVolume(ctx, vol.ID); err != nil {
		return 0, fmt.Errorf("volume %s: %w", vol.ID, errdefs.Provider("delete volume", err))
	}
	provisioning.LogResourceDeleted(ctx.Observer, phase, "volume", vol.ID)
	return 1, nil
}

// deleteNetworkResources removes what the topology builder created, in an
// order where nothing still references a resource being deleted.
func (p *Provisioner) deleteNetworkResources(ctx *provisioning.Context, errs *CleanupError) {
	owned := labels.Owned(ctx.ClusterName())

	steps := []struct {
		kind string
		run  func() (int, error)
	}{
		{"security groups", func() (int, error) {
			groups, err := ctx.Cloud.ListSecurityGroups(ctx, owned)
			if err != nil {
				return 0, fmt.Errorf("failed to list security groups: %w", err)
			}
			// Groups referencing another group go first.
			referencing, referenced := splitSecurityGroups(groups)
			n, err := deleteAll(ctx, "security group",
				func() ([]*cloud.SecurityGroup, error) { return referencing, nil },
				securityGroupID, ctx.Cloud.DeleteSecurityGroup)
			if err != nil {
				return n, err
			}
			m, err := deleteAll(ctx, "security group",
				func() ([]*cloud.SecurityGroup, error) { return referenced, nil },
				securityGroupID, ctx.Cloud.DeleteSecurityGroup)
			return n + m, err
		}},
		{"subnets", func() (int, error) {
			return deleteAll(ctx, "subnet",
				func() ([]*cloud.Subnet, error) { return ctx.Cloud.ListSubnets(ctx, owned) },
				func(s *cloud.Subnet) string { return s.ID }, ctx.Cloud.DeleteSubnet)
		}},
		{"route tables", func() (int, error) {
			return deleteAll(ctx, "route table",
				func() ([]*cloud.RouteTable, error) { return ctx.Cloud.ListRouteTables(ctx, owned) },
				func(rt *cloud.RouteTable) string { return rt.ID }, ctx.Cloud.DeleteRouteTable)
		}},
		{"gateways", func() (int, error) {
			return deleteAll(ctx, "gateway",
				func() ([]*cloud.Gateway, error) { return ctx.Cloud.ListGateways(ctx, owned) },
				func(g *cloud.Gateway) string { return g.ID }, ctx.Cloud.DeleteGateway)
		}},
		{"networks", func() (int, error) {
			return deleteAll(ctx, "network",
				func() ([]*cloud.Network, error) { return ctx.Cloud.ListNetworks(ctx, owned) },
				func(n *cloud.Network) string { return n.ID }, ctx.Cloud.DeleteNetwork)
		}},
	}

	for _, step := range steps {
		n, err := step.run()
		p.Removed += n
		if err != nil {
			errs.Add(fmt.Errorf("%s: %w", step.kind, err))
		}
	}
}

func securityGroupID(g *cloud.SecurityGroup) string { return g.ID }

// splitSecurityGroups separates groups granting access from another group
// from the groups they reference.
func splitSecurityGroups(groups []*cloud.SecurityGroup) (referencing, referenced []*cloud.SecurityGroup) {
	for _, g := range groups {
		refs := false
		for _, r := range g.Rules {
			if r.SourceGroupID != "" {
				refs = true
			}
		}
		if refs {
			referencing = append(referencing, g)
		} else {
			referenced = append(referenced, g)
		}
	}
	return referencing, referenced
}
