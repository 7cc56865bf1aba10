package environment

import (
	"math"
	"slices"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/marathon"
)

// wasteTolerance is the unused cpu per node above which an auto-count
// allocation is reported as wasteful.
const wasteTolerance = 0.05

// NodeGroup is the observed shape of one machine group.
type NodeGroup struct {
	Nodes      int
	CPUPerNode float64
	MemPerNode float64
	// Hostname is the first agent of the group, used to reach its components.
	Hostname  string
	Hostnames []string
}

// NodePool is the scheduler's view of the cluster, keyed by machine group.
type NodePool map[string]NodeGroup

// PoolFromState groups the active Mesos agents by their name attribute.
// Agents without the attribute are skipped.
func PoolFromState(state *marathon.MesosState) NodePool {
	active := lo.Filter(state.Slaves, func(s marathon.Slave, _ int) bool {
		return s.Active && s.Group() != ""
	})
	pool := NodePool{}
	for group, slaves := range lo.GroupBy(active, func(s marathon.Slave) string { return s.Group() }) {
		first := slaves[0]
		hosts := lo.Map(slaves, func(s marathon.Slave, _ int) string { return s.Hostname })
		slices.Sort(hosts)
		pool[group] = NodeGroup{
			Nodes:      len(slaves),
			CPUPerNode: first.Resources.CPUs,
			MemPerNode: first.Resources.Mem,
			Hostname:   first.Hostname,
			Hostnames:  hosts,
		}
	}
	return pool
}

// Allocation is the resolved resource request of one component.
type Allocation struct {
	Machine   string
	CPU       float64
	Mem       float64
	Instances int
}

type mode int

const (
	modeAutoCPU mode = iota + 1
	modeAutoCount
)

// Validate checks what can be decided without the node pool: each component
// has exactly one automatic value, and components sharing a machine agree on
// which one.
func Validate(components map[string]Component) error {
	_, err := machineModes(components)
	return err
}

func machineModes(components map[string]Component) (map[string]mode, error) {
	names := lo.Keys(components)
	slices.Sort(names)

	modes := map[string]mode{}
	for _, name := range names {
		c := components[name]
		var m mode
		switch {
		case c.CPU.Auto && c.Count.Auto:
			return nil, errdefs.Configf("for component %q, both cpu and count are %q, which is an invalid combination", name, Auto)
		case c.CPU.Auto:
			m = modeAutoCPU
		case c.Count.Auto:
			m = modeAutoCount
		default:
			return nil, errdefs.Configf("for component %q, cpu is explicitly set to %s and count to %s, which is an invalid combination", name, c.CPU, c.Count)
		}

		if prev, ok := modes[c.Machine]; ok && prev != m {
			return nil, errdefs.Configf("cannot mix components with automatic cpu and automatic count running on the same machine: %s", c.Machine)
		}
		modes[c.Machine] = m
	}
	return modes, nil
}

// Calculate resolves every "auto" value of components against pool. All
// validation happens before anything is computed.
func Calculate(pool NodePool, components map[string]Component, logger logr.Logger) (map[string]Allocation, error) {
	modes, err := machineModes(components)
	if err != nil {
		return nil, err
	}

	names := lo.Keys(components)
	slices.Sort(names)
	byMachine := map[string][]Component{}
	for _, name := range names {
		c := components[name]
		if _, ok := pool[c.Machine]; !ok {
			return nil, errdefs.Configf("in component %q, machine %q does not match any in cluster", name, c.Machine)
		}
		byMachine[c.Machine] = append(byMachine[c.Machine], c)
	}

	for machine, comps := range byMachine {
		if modes[machine] != modeAutoCount {
			continue
		}
		for _, c := range comps {
			if c.CPU.Value > pool[machine].CPUPerNode {
				return nil, errdefs.Configf("component %q is requesting cpu of %s, but machine type %q only has cpu of %g",
					c.Name, c.CPU, machine, pool[machine].CPUPerNode)
			}
		}
	}

	allocs := make(map[string]Allocation, len(components))
	for machine, comps := range byMachine {
		group := pool[machine]
		switch modes[machine] {
		case modeAutoCPU:
			n := float64(len(comps))
			for _, c := range comps {
				allocs[c.Name] = Allocation{
					Machine:   machine,
					CPU:       group.CPUPerNode / n,
					Mem:       group.MemPerNode / n,
					Instances: int(c.Count.Value),
				}
			}
		case modeAutoCount:
			memPerCPU := group.MemPerNode / group.CPUPerNode
			for _, c := range comps {
				perNode := int(math.Floor(group.CPUPerNode/c.CPU.Value + 1e-9))
				if unused := group.CPUPerNode - float64(perNode)*c.CPU.Value; unused > wasteTolerance {
					logger.Info("cpu request leaves node resources unused",
						"component", c.Name, "cpu", c.CPU.Value, "machine", machine, "unusedCPUPerNode", unused)
				}
				allocs[c.Name] = Allocation{
					Machine:   machine,
					CPU:       c.CPU.Value,
					Mem:       memPerCPU * c.CPU.Value,
					Instances: group.Nodes * perNode,
				}
			}
		}
	}
	return allocs, nil
}
