package cluster

import (
	"context"
	"log"
	"time"

	"github.com/samber/lo"

	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning/instances"
	"github.com/imamik/clusterous/internal/util/labels"
)

// Lifecycle states reported by Status.
const (
	StateProvisioning = "provisioning"
	StateRunning      = "running"
	StateTerminating  = "terminating"
	// StatePartial is a recorded cluster that is neither running nor being
	// worked on. Only termination is safe.
	StatePartial = "partial"
)

// Status describes the active cluster.
type Status struct {
	Name          string              `json:"name"`
	State         string              `json:"state"`
	Provider      string              `json:"provider,omitempty"`
	InstanceCount int                 `json:"instance_count"`
	Controller    *ControllerStatus   `json:"controller,omitempty"`
	NAT           *NATStatus          `json:"nat,omitempty"`
	Logging       *LoggingStatus      `json:"central_logging,omitempty"`
	Nodes         map[string]NodePool `json:"nodes"`
	Volume        *VolumeStatus       `json:"volume,omitempty"`
	Components    map[string]int      `json:"components,omitempty"`
}

type ControllerStatus struct {
	Type   string        `json:"type"`
	Uptime time.Duration `json:"uptime"`
}

type NATStatus struct {
	IP   string `json:"ip"`
	Type string `json:"type"`
}

type LoggingStatus struct {
	Type string `json:"type"`
	IP   string `json:"ip"`
}

// NodePool is the instance type and count of one node role.
type NodePool struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type VolumeStatus struct {
	ID       string `json:"id"`
	Borrowed bool   `json:"borrowed"`
}

// Status reports the active cluster as the provider sees it.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	info, err := c.active()
	if err != nil {
		return nil, err
	}
	owned, err := instances.ListOwned(ctx, c.deps.Cloud, info.ClusterName)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Name:          info.ClusterName,
		State:         c.lifecycleState(info.Running),
		Provider:      info.Provider,
		InstanceCount: len(owned),
		Nodes:         map[string]NodePool{},
	}
	if info.VolumeID != "" {
		st.Volume = &VolumeStatus{ID: info.VolumeID, Borrowed: info.VolumeBorrowed()}
	}

	byRole := lo.GroupBy(owned, func(inst *cloud.Instance) string { return inst.Role() })
	for role, insts := range byRole {
		first := insts[0]
		switch role {
		case labels.RoleController:
			if len(insts) > 1 {
				log.Printf("[status] Warning: %d controllers are running", len(insts))
			}
			st.Controller = &ControllerStatus{
				Type:   first.InstanceType,
				Uptime: time.Since(first.LaunchTime).Truncate(time.Second),
			}
		case labels.RoleNAT:
			st.NAT = &NATStatus{IP: first.PublicIP, Type: first.InstanceType}
		case labels.RoleCentralLogging:
			st.Logging = &LoggingStatus{Type: first.InstanceType, IP: first.PrivateIP}
		case "":
			// Still converging, not tagged with a role yet.
		default:
			st.Nodes[role] = NodePool{Type: first.InstanceType, Count: len(insts)}
		}
	}

	if c.resizer != nil && info.Running {
		running, err := c.resizer.RunningComponents(ctx)
		if err != nil {
			log.Printf("[status] Warning: cannot list running components: %v", err)
		} else {
			st.Components = running
		}
	}
	return st, nil
}

func (c *Controller) lifecycleState(running bool) string {
	if t := c.Task(); t != nil && t.State == TaskRunning {
		if t.Name == TaskTerminate {
			return StateTerminating
		}
		return StateProvisioning
	}
	if running {
		return StateRunning
	}
	return StatePartial
}
