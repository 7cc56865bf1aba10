package testing

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/labels"
)

// FakeCloud is an in-memory cloud.Provider. Instances walk through the
// states returned by LaunchStates, one step per ListInstances call, and get
// addresses once running. Volumes become available on the first lookup
// after creation.
type FakeCloud struct {
	mu  sync.Mutex
	seq int

	// Zone is assigned to subnets created without one.
	Zone string
	// LaunchStates returns the state sequence of the index-th instance of
	// req. The default is pending then running.
	LaunchStates func(req cloud.InstanceRequest, index int) []cloud.InstanceState
	// Errors makes the named method fail.
	Errors map[string]error
	// once holds errors returned by the next calls of a method only.
	once map[string][]error

	networks       map[string]*cloud.Network
	subnets        map[string]*cloud.Subnet
	gateways       map[string]*cloud.Gateway
	routeTables    map[string]*cloud.RouteTable
	securityGroups map[string]*cloud.SecurityGroup
	instances      map[string]*cloud.Instance
	instanceOrder  []string
	progress       map[string][]cloud.InstanceState
	volumes        map[string]*cloud.Volume
	sourceDest     map[string]bool
	calls          []string
	ipSeq          int
}

var _ cloud.Provider = (*FakeCloud)(nil)

// NewFakeCloud returns an empty fake.
func NewFakeCloud() *FakeCloud {
	return &FakeCloud{
		Zone:           "ap-southeast-2a",
		Errors:         map[string]error{},
		once:           map[string][]error{},
		networks:       map[string]*cloud.Network{},
		subnets:        map[string]*cloud.Subnet{},
		gateways:       map[string]*cloud.Gateway{},
		routeTables:    map[string]*cloud.RouteTable{},
		securityGroups: map[string]*cloud.SecurityGroup{},
		instances:      map[string]*cloud.Instance{},
		progress:       map[string][]cloud.InstanceState{},
		volumes:        map[string]*cloud.Volume{},
		sourceDest:     map[string]bool{},
	}
}

func (f *FakeCloud) Name() string { return "fake" }

// record logs a call and returns the configured error for it. f.mu must be held.
func (f *FakeCloud) record(method string) error {
	f.calls = append(f.calls, method)
	if queued := f.once[method]; len(queued) > 0 {
		f.once[method] = queued[1:]
		return queued[0]
	}
	return f.Errors[method]
}

func (f *FakeCloud) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%04d", prefix, f.seq)
}

// Calls returns the methods invoked so far, in order.
func (f *FakeCloud) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns how often method was invoked.
func (f *FakeCloud) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// SetError makes method fail with err (nil clears it).
func (f *FakeCloud) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, method)
		return
	}
	f.Errors[method] = err
}

// FailNext makes the next len(errs) calls of method return errs in order.
func (f *FakeCloud) FailNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once[method] = append(f.once[method], errs...)
}

func filterTagged[T any](m map[string]*T, tags map[string]string, tagsOf func(*T) map[string]string) []*T {
	keys := slices.Sorted(maps.Keys(m))
	var out []*T
	for _, k := range keys {
		if labels.Matches(tagsOf(m[k]), tags) {
			c := *m[k]
			out = append(out, &c)
		}
	}
	return out
}

// Networks.

func (f *FakeCloud) ListNetworks(_ context.Context, tags map[string]string) ([]*cloud.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListNetworks"); err != nil {
		return nil, err
	}
	return filterTagged(f.networks, tags, func(n *cloud.Network) map[string]string { return n.Tags }), nil
}

func (f *FakeCloud) CreateNetwork(_ context.Context, req cloud.NetworkRequest) (*cloud.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateNetwork"); err != nil {
		return nil, err
	}
	n := &cloud.Network{ID: f.nextID("vpc"), Name: req.Tags[labels.KeyName], CIDR: req.CIDR, Tags: maps.Clone(req.Tags)}
	f.networks[n.ID] = n
	c := *n
	return &c, nil
}

func (f *FakeCloud) DeleteNetwork(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteNetwork"); err != nil {
		return err
	}
	delete(f.networks, id)
	return nil
}

func (f *FakeCloud) ListSubnets(_ context.Context, tags map[string]string) ([]*cloud.Subnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListSubnets"); err != nil {
		return nil, err
	}
	return filterTagged(f.subnets, tags, func(s *cloud.Subnet) map[string]string { return s.Tags }), nil
}

func (f *FakeCloud) CreateSubnet(_ context.Context, req cloud.SubnetRequest) (*cloud.Subnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateSubnet"); err != nil {
		return nil, err
	}
	zone := req.Zone
	if zone == "" {
		zone = f.Zone
	}
	s := &cloud.Subnet{ID: f.nextID("subnet"), Name: req.Tags[labels.KeyName], NetworkID: req.NetworkID, CIDR: req.CIDR, Zone: zone, Tags: maps.Clone(req.Tags)}
	f.subnets[s.ID] = s
	c := *s
	return &c, nil
}

func (f *FakeCloud) DeleteSubnet(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteSubnet"); err != nil {
		return err
	}
	delete(f.subnets, id)
	return nil
}

func (f *FakeCloud) ListGateways(_ context.Context, tags map[string]string) ([]*cloud.Gateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListGateways"); err != nil {
		return nil, err
	}
	return filterTagged(f.gateways, tags, func(g *cloud.Gateway) map[string]string { return g.Tags }), nil
}

func (f *FakeCloud) CreateGateway(_ context.Context, req cloud.GatewayRequest) (*cloud.Gateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateGateway"); err != nil {
		return nil, err
	}
	g := &cloud.Gateway{ID: f.nextID("igw"), Name: req.Tags[labels.KeyName], NetworkID: req.NetworkID, Tags: maps.Clone(req.Tags)}
	f.gateways[g.ID] = g
	c := *g
	return &c, nil
}

func (f *FakeCloud) DeleteGateway(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteGateway"); err != nil {
		return err
	}
	delete(f.gateways, id)
	return nil
}

func (f *FakeCloud) ListRouteTables(_ context.Context, tags map[string]string) ([]*cloud.RouteTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListRouteTables"); err != nil {
		return nil, err
	}
	return filterTagged(f.routeTables, tags, func(r *cloud.RouteTable) map[string]string { return r.Tags }), nil
}

func (f *FakeCloud) CreateRouteTable(_ context.Context, req cloud.RouteTableRequest) (*cloud.RouteTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRouteTable"); err != nil {
		return nil, err
	}
	rt := &cloud.RouteTable{ID: f.nextID("rtb"), Name: req.Tags[labels.KeyName], NetworkID: req.NetworkID, Tags: maps.Clone(req.Tags)}
	f.routeTables[rt.ID] = rt
	c := *rt
	return &c, nil
}

func (f *FakeCloud) SetRoute(_ context.Context, tableID string, route cloud.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetRoute"); err != nil {
		return err
	}
	rt, ok := f.routeTables[tableID]
	if !ok {
		return fmt.Errorf("route table %s not found", tableID)
	}
	rt.Routes = slices.DeleteFunc(rt.Routes, func(r cloud.Route) bool { return r.Destination == route.Destination })
	rt.Routes = append(rt.Routes, route)
	return nil
}

func (f *FakeCloud) AssociateRouteTable(_ context.Context, tableID, subnetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AssociateRouteTable"); err != nil {
		return err
	}
	rt, ok := f.routeTables[tableID]
	if !ok {
		return fmt.Errorf("route table %s not found", tableID)
	}
	if !slices.Contains(rt.SubnetIDs, subnetID) {
		rt.SubnetIDs = append(rt.SubnetIDs, subnetID)
	}
	return nil
}

func (f *FakeCloud) DeleteRouteTable(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteRouteTable"); err != nil {
		return err
	}
	delete(f.routeTables, id)
	return nil
}

// Security groups.

func (f *FakeCloud) ListSecurityGroups(_ context.Context, tags map[string]string) ([]*cloud.SecurityGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListSecurityGroups"); err != nil {
		return nil, err
	}
	return filterTagged(f.securityGroups, tags, func(g *cloud.SecurityGroup) map[string]string { return g.Tags }), nil
}

func (f *FakeCloud) CreateSecurityGroup(_ context.Context, req cloud.SecurityGroupRequest) (*cloud.SecurityGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateSecurityGroup"); err != nil {
		return nil, err
	}
	g := &cloud.SecurityGroup{ID: f.nextID("sg"), Name: req.Name, NetworkID: req.NetworkID, Tags: maps.Clone(req.Tags)}
	f.securityGroups[g.ID] = g
	c := *g
	return &c, nil
}

func (f *FakeCloud) AuthorizeIngress(_ context.Context, groupID string, rules []cloud.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AuthorizeIngress"); err != nil {
		return err
	}
	g, ok := f.securityGroups[groupID]
	if !ok {
		return fmt.Errorf("security group %s not found", groupID)
	}
	g.Rules = append(g.Rules, rules...)
	return nil
}

func (f *FakeCloud) DeleteSecurityGroup(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteSecurityGroup"); err != nil {
		return err
	}
	delete(f.securityGroups, id)
	return nil
}

// Instances.

func (f *FakeCloud) RunInstances(_ context.Context, req cloud.InstanceRequest) ([]*cloud.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RunInstances"); err != nil {
		return nil, err
	}
	zone := f.Zone
	if s, ok := f.subnets[req.SubnetID]; ok {
		zone = s.Zone
	}
	out := make([]*cloud.Instance, 0, req.Count)
	for i := range req.Count {
		inst := &cloud.Instance{
			ID:           f.nextID("i"),
			State:        cloud.StatePending,
			Zone:         zone,
			SubnetID:     req.SubnetID,
			InstanceType: req.InstanceType,
			LaunchTime:   time.Now(),
			Tags:         map[string]string{},
		}
		states := []cloud.InstanceState{cloud.StateRunning}
		if f.LaunchStates != nil {
			states = f.LaunchStates(req, i)
		}
		if len(states) > 0 && states[0] == cloud.StatePending {
			states = states[1:]
		}
		f.progress[inst.ID] = states
		if req.PublicIP {
			inst.Tags["fake:public"] = "true"
		}
		f.instances[inst.ID] = inst
		f.instanceOrder = append(f.instanceOrder, inst.ID)
		c := *inst
		c.Tags = maps.Clone(inst.Tags)
		out = append(out, &c)
	}
	return out, nil
}

// advance applies the next scripted state of inst. f.mu must be held.
func (f *FakeCloud) advance(inst *cloud.Instance) {
	states := f.progress[inst.ID]
	if len(states) == 0 {
		return
	}
	inst.State = states[0]
	f.progress[inst.ID] = states[1:]
	if inst.State == cloud.StateRunning && inst.PrivateIP == "" {
		f.ipSeq++
		inst.PrivateIP = fmt.Sprintf("10.2.1.%d", f.ipSeq+10)
		if inst.Tags["fake:public"] == "true" {
			inst.PublicIP = fmt.Sprintf("54.0.0.%d", f.ipSeq+10)
			delete(inst.Tags, "fake:public")
		}
	}
}

func (f *FakeCloud) ListInstances(_ context.Context, filter cloud.InstanceFilter) ([]*cloud.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListInstances"); err != nil {
		return nil, err
	}
	var out []*cloud.Instance
	for _, id := range f.instanceOrder {
		inst := f.instances[id]
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, id) {
			continue
		}
		f.advance(inst)
		if !filter.MatchesFilter(inst) {
			continue
		}
		c := *inst
		c.Tags = maps.Clone(inst.Tags)
		delete(c.Tags, "fake:public")
		out = append(out, &c)
	}
	return out, nil
}

func (f *FakeCloud) TagResources(_ context.Context, ids []string, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("TagResources"); err != nil {
		return err
	}
	for _, id := range ids {
		switch {
		case f.instances[id] != nil:
			maps.Copy(f.instances[id].Tags, tags)
			if name, ok := tags[labels.KeyName]; ok {
				f.instances[id].Name = name
			}
		case f.volumes[id] != nil:
			if f.volumes[id].Tags == nil {
				f.volumes[id].Tags = map[string]string{}
			}
			maps.Copy(f.volumes[id].Tags, tags)
		default:
			return fmt.Errorf("resource %s not found", id)
		}
	}
	return nil
}

func (f *FakeCloud) UntagResources(_ context.Context, ids []string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UntagResources"); err != nil {
		return err
	}
	for _, id := range ids {
		var tags map[string]string
		switch {
		case f.instances[id] != nil:
			tags = f.instances[id].Tags
		case f.volumes[id] != nil:
			tags = f.volumes[id].Tags
		default:
			return fmt.Errorf("resource %s not found", id)
		}
		for _, k := range keys {
			delete(tags, k)
		}
	}
	return nil
}

func (f *FakeCloud) TerminateInstances(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("TerminateInstances"); err != nil {
		return err
	}
	for _, id := range ids {
		inst, ok := f.instances[id]
		if !ok {
			return fmt.Errorf("instance %s not found", id)
		}
		inst.State = cloud.StateShuttingDown
		f.progress[id] = []cloud.InstanceState{cloud.StateTerminated}
		for _, v := range f.volumes {
			if v.AttachedTo == id {
				v.AttachedTo = ""
				v.State = cloud.VolumeAvailable
			}
		}
	}
	return nil
}

func (f *FakeCloud) SetSourceDestCheck(_ context.Context, instanceID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetSourceDestCheck"); err != nil {
		return err
	}
	f.sourceDest[instanceID] = enabled
	return nil
}

// SourceDestCheck reports the last value set for instanceID (true by default).
func (f *FakeCloud) SourceDestCheck(instanceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sourceDest[instanceID]
	return !ok || v
}

// Volumes.

func (f *FakeCloud) CreateVolume(_ context.Context, req cloud.VolumeRequest) (*cloud.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateVolume"); err != nil {
		return nil, err
	}
	v := &cloud.Volume{ID: f.nextID("vol"), SizeGB: req.SizeGB, Zone: req.Zone, State: cloud.VolumeCreating, Tags: maps.Clone(req.Tags)}
	f.volumes[v.ID] = v
	c := *v
	return &c, nil
}

// AddVolume registers a pre-existing volume.
func (f *FakeCloud) AddVolume(v cloud.Volume) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.Tags == nil {
		v.Tags = map[string]string{}
	}
	f.volumes[v.ID] = &v
}

func (f *FakeCloud) GetVolume(_ context.Context, id string) (*cloud.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetVolume"); err != nil {
		return nil, err
	}
	v, ok := f.volumes[id]
	if !ok {
		return nil, nil
	}
	if v.State == cloud.VolumeCreating {
		v.State = cloud.VolumeAvailable
	}
	c := *v
	c.Tags = maps.Clone(v.Tags)
	return &c, nil
}

func (f *FakeCloud) ListVolumes(_ context.Context, tags map[string]string) ([]*cloud.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListVolumes"); err != nil {
		return nil, err
	}
	return filterTagged(f.volumes, tags, func(v *cloud.Volume) map[string]string { return v.Tags }), nil
}

func (f *FakeCloud) AttachVolume(_ context.Context, volumeID, instanceID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AttachVolume"); err != nil {
		return err
	}
	v, ok := f.volumes[volumeID]
	if !ok {
		return fmt.Errorf("volume %s not found", volumeID)
	}
	if v.State != cloud.VolumeAvailable {
		return fmt.Errorf("volume %s is %s", volumeID, v.State)
	}
	v.State = cloud.VolumeInUse
	v.AttachedTo = instanceID
	return nil
}

func (f *FakeCloud) DetachVolume(_ context.Context, volumeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DetachVolume"); err != nil {
		return err
	}
	v, ok := f.volumes[volumeID]
	if !ok {
		return fmt.Errorf("volume %s not found", volumeID)
	}
	v.State = cloud.VolumeAvailable
	v.AttachedTo = ""
	return nil
}

func (f *FakeCloud) DeleteVolume(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteVolume"); err != nil {
		return err
	}
	delete(f.volumes, id)
	return nil
}

// Inspection helpers for assertions.

// ResourceCounts returns how many resources of each kind exist.
func (f *FakeCloud) ResourceCounts() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := 0
	for _, inst := range f.instances {
		if inst.State != cloud.StateTerminated {
			live++
		}
	}
	return map[string]int{
		"networks":       len(f.networks),
		"subnets":        len(f.subnets),
		"gateways":       len(f.gateways),
		"routeTables":    len(f.routeTables),
		"securityGroups": len(f.securityGroups),
		"instances":      live,
		"volumes":        len(f.volumes),
	}
}

// Volume returns a copy of a stored volume, or nil.
func (f *FakeCloud) Volume(id string) *cloud.Volume {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[id]
	if !ok {
		return nil
	}
	c := *v
	c.Tags = maps.Clone(v.Tags)
	return &c
}

// RouteTable returns a copy of a stored route table, or nil.
func (f *FakeCloud) RouteTable(id string) *cloud.RouteTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.routeTables[id]
	if !ok {
		return nil
	}
	c := *rt
	return &c
}

// AddRunningInstance registers an already running, tagged instance.
func (f *FakeCloud) AddRunningInstance(tags map[string]string, privateIP, publicIP string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst := &cloud.Instance{
		ID:         f.nextID("i"),
		Name:       tags[labels.KeyName],
		State:      cloud.StateRunning,
		PrivateIP:  privateIP,
		PublicIP:   publicIP,
		Zone:       f.Zone,
		LaunchTime: time.Now(),
		Tags:       map[string]string{},
	}
	maps.Copy(inst.Tags, tags)
	f.instances[inst.ID] = inst
	f.instanceOrder = append(f.instanceOrder, inst.ID)
	return inst.ID
}
