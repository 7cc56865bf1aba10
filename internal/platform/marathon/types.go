package marathon

import "strings"

// Constraint operators.
const (
	OperatorCluster = "CLUSTER"
	// ConstraintField is the agent attribute naming its node group.
	ConstraintField = "name"
)

type App struct {
	ID           string     `json:"id"`
	Cmd          string     `json:"cmd,omitempty"`
	CPUs         float64    `json:"cpus"`
	Mem          float64    `json:"mem"`
	Instances    int        `json:"instances"`
	Container    *Container `json:"container,omitempty"`
	Constraints  [][]string `json:"constraints,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Tasks        []Task     `json:"tasks,omitempty"`
}

// Name returns the app id without its leading slash.
func (a *App) Name() string {
	return AppName(a.ID)
}

// Group returns the value of the node group constraint, if any.
func (a *App) Group() (string, bool) {
	for _, c := range a.Constraints {
		if len(c) == 3 && c[0] == ConstraintField && c[1] == OperatorCluster {
			return c[2], true
		}
	}
	return "", false
}

// AppName strips the leading slash of an app id.
func AppName(id string) string {
	return strings.TrimPrefix(id, "/")
}

// AppID is the absolute id Marathon uses for name.
func AppID(name string) string {
	return "/" + AppName(name)
}

type Container struct {
	Type    string   `json:"type"`
	Docker  *Docker  `json:"docker,omitempty"`
	Volumes []Volume `json:"volumes,omitempty"`
}

type Docker struct {
	Image          string        `json:"image"`
	Network        string        `json:"network,omitempty"`
	PortMappings   []PortMapping `json:"portMappings,omitempty"`
	Privileged     bool          `json:"privileged"`
	ForcePullImage bool          `json:"forcePullImage"`
}

type PortMapping struct {
	ContainerPort int    `json:"containerPort"`
	HostPort      int    `json:"hostPort"`
	Protocol      string `json:"protocol"`
}

type Volume struct {
	ContainerPath string `json:"containerPath"`
	HostPath      string `json:"hostPath"`
	Mode          string `json:"mode"`
}

// Task is one running instance of an app.
type Task struct {
	ID        string `json:"id"`
	AppID     string `json:"appId"`
	Host      string `json:"host"`
	StartedAt string `json:"startedAt,omitempty"`
}

// Started reports whether the task has a recorded start time.
func (t Task) Started() bool {
	return t.StartedAt != ""
}

// MesosState is the subset of the Mesos master's state.json used here.
type MesosState struct {
	Slaves []Slave `json:"slaves"`
}

// Slave is a Mesos agent.
type Slave struct {
	ID         string         `json:"id"`
	Hostname   string         `json:"hostname"`
	Active     bool           `json:"active"`
	Resources  Resources      `json:"resources"`
	Attributes map[string]any `json:"attributes"`
}

// Group returns the agent's node group attribute, empty when unset.
func (s Slave) Group() string {
	name, _ := s.Attributes[ConstraintField].(string)
	return name
}

type Resources struct {
	CPUs float64 `json:"cpus"`
	Mem  float64 `json:"mem"`
}
