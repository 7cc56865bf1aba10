package environment

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/util/naming"
)

// Auto is the value asking the calculator to pick cpu or count.
const Auto = "auto"

// File is a parsed environment file.
type File struct {
	Name        string
	Environment Environment
	// Cluster is the node layout the environment expects, keyed by machine.
	Cluster map[string]Machine
	// BaseDir is the directory of the file; relative paths resolve against it.
	BaseDir string
}

// Environment is the "environment" section.
type Environment struct {
	Copy         []string
	Images       []Image
	Components   map[string]Component
	ExposeTunnel []Tunnel
}

// Image is an image the environment expects in the cluster registry.
type Image struct {
	Dockerfile string `yaml:"dockerfile"`
	ImageName  string `yaml:"image_name"`
}

// Machine is one entry of the "cluster" section.
type Machine struct {
	Type  string
	Count int
	// Scalable is set when the count came from a profile parameter.
	Scalable bool
}

// Amount is a cpu or count value: a positive number or "auto".
type Amount struct {
	Auto  bool
	Value float64
}

func (a Amount) String() string {
	if a.Auto {
		return Auto
	}
	return strconv.FormatFloat(a.Value, 'f', -1, 64)
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number or %q", node.Line, Auto)
	}
	if node.Value == Auto {
		*a = Amount{Auto: true}
		return nil
	}
	v, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return fmt.Errorf("line %d: expected a number or %q, got %q", node.Line, Auto, node.Value)
	}
	*a = Amount{Value: v}
	return nil
}

// Component is one application component.
type Component struct {
	Name         string
	Machine      string
	CPU          Amount
	Count        Amount
	Image        string
	Cmd          string
	Ports        []Port
	Depends      []string
	AttachVolume bool
}

// Port maps a host port to a container port.
type Port struct {
	Host      int
	Container int
}

// Tunnel exposes a component port on this machine.
type Tunnel struct {
	LocalPort  int
	Component  string
	RemotePort int
	Message    string
}

type rawFile struct {
	Name        string                    `yaml:"name"`
	Environment *rawEnvironment           `yaml:"environment"`
	Cluster     map[string]map[string]any `yaml:"cluster"`
}

type rawEnvironment struct {
	Copy         []string                `yaml:"copy"`
	Image        []Image                 `yaml:"image"`
	Components   map[string]rawComponent `yaml:"components"`
	ExposeTunnel yaml.Node               `yaml:"expose_tunnel"`
}

type rawComponent struct {
	Machine      *string `yaml:"machine"`
	CPU          *Amount `yaml:"cpu"`
	Count        *Amount `yaml:"count"`
	Image        *string `yaml:"image"`
	Cmd          *string `yaml:"cmd"`
	Ports        string  `yaml:"ports"`
	Depends      string  `yaml:"depends"`
	AttachVolume *bool   `yaml:"attach_volume"`
}

type rawTunnel struct {
	Service string `yaml:"service"`
	Message string `yaml:"message"`
}

// Load reads and parses an environment file, substituting params into its
// cluster section.
func Load(path string, params map[string]any) (*File, error) {
	return load(path, params, true)
}

// LoadEnvironment reads an environment file for a cluster that already
// exists. The cluster section is not parsed, so its parameters need no
// values.
func LoadEnvironment(path string) (*File, error) {
	return load(path, nil, false)
}

func load(path string, params map[string]any, withCluster bool) (*File, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errdefs.Configf("cannot open environment file %s: %v", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	f, err := parse(data, params, withCluster)
	if err != nil {
		return nil, err
	}
	f.BaseDir = filepath.Dir(abs)
	return f, nil
}

// Parse parses environment file contents.
func Parse(data []byte, params map[string]any) (*File, error) {
	return parse(data, params, true)
}

func parse(data []byte, params map[string]any, withCluster bool) (*File, error) {
	var raw rawFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, errdefs.Configf("invalid environment file: %v", err)
	}

	if raw.Name == "" {
		return nil, errdefs.Configf("environment file has no \"name\"")
	}
	if err := naming.ValidateClusterName(raw.Name); err != nil {
		return nil, errdefs.Configf("invalid environment name: %v", err)
	}
	f := &File{Name: raw.Name}

	if raw.Environment != nil {
		env, err := parseEnvironment(raw.Environment)
		if err != nil {
			return nil, err
		}
		f.Environment = *env
	}
	if !withCluster {
		return f, nil
	}

	cluster, err := parseCluster(raw.Cluster, params)
	if err != nil {
		return nil, err
	}
	f.Cluster = cluster
	return f, nil
}

// ComponentNames returns the component names in sorted order.
func (f *File) ComponentNames() []string {
	names := lo.Keys(f.Environment.Components)
	slices.Sort(names)
	return names
}

// NodeGroups turns the cluster section into provisioning node groups,
// ordered by machine name.
func (f *File) NodeGroups() []provisioning.NodeGroup {
	names := lo.Keys(f.Cluster)
	slices.Sort(names)
	return lo.Map(names, func(name string, _ int) provisioning.NodeGroup {
		m := f.Cluster[name]
		return provisioning.NodeGroup{Role: name, InstanceType: m.Type, Count: m.Count}
	})
}

func parseEnvironment(raw *rawEnvironment) (*Environment, error) {
	if len(raw.Components) == 0 {
		return nil, errdefs.Configf("environment section has no components")
	}
	env := &Environment{
		Copy:       raw.Copy,
		Images:     raw.Image,
		Components: make(map[string]Component, len(raw.Components)),
	}
	for name, rc := range raw.Components {
		c, err := parseComponent(name, rc)
		if err != nil {
			return nil, err
		}
		env.Components[name] = c
	}

	tunnels, err := parseTunnels(&raw.ExposeTunnel)
	if err != nil {
		return nil, err
	}
	for _, t := range tunnels {
		if _, ok := env.Components[t.Component]; !ok {
			return nil, errdefs.Configf("expose_tunnel refers to unknown component %q", t.Component)
		}
	}
	env.ExposeTunnel = tunnels
	return env, nil
}

func parseComponent(name string, rc rawComponent) (Component, error) {
	missing := lo.Compact([]string{
		lo.Ternary(rc.Machine == nil, "machine", ""),
		lo.Ternary(rc.CPU == nil, "cpu", ""),
		lo.Ternary(rc.Image == nil, "image", ""),
		lo.Ternary(rc.Cmd == nil, "cmd", ""),
	})
	if len(missing) > 0 {
		return Component{}, errdefs.Configf("component %q is missing %s", name, strings.Join(missing, ", "))
	}

	c := Component{
		Name:         name,
		Machine:      *rc.Machine,
		CPU:          *rc.CPU,
		Count:        Amount{Value: 1},
		Image:        *rc.Image,
		Cmd:          *rc.Cmd,
		AttachVolume: true,
	}
	if rc.Count != nil {
		c.Count = *rc.Count
	}
	if rc.AttachVolume != nil {
		c.AttachVolume = *rc.AttachVolume
	}
	if !c.CPU.Auto && c.CPU.Value <= 0 {
		return Component{}, errdefs.Configf("in %q, \"cpu\" must be positive", name)
	}
	if !c.Count.Auto && (c.Count.Value < 1 || c.Count.Value != float64(int(c.Count.Value))) {
		return Component{}, errdefs.Configf("in %q, \"count\" must be a positive integer", name)
	}

	ports, err := parsePorts(name, rc.Ports)
	if err != nil {
		return Component{}, err
	}
	c.Ports = ports
	c.Depends = splitList(rc.Depends)
	return c, nil
}

// parsePorts parses "host:container" or "port" entries separated by commas.
func parsePorts(component, s string) ([]Port, error) {
	var ports []Port
	for _, entry := range splitList(s) {
		parts := strings.Split(entry, ":")
		if len(parts) > 2 {
			return nil, errdefs.Configf("in %q, malformed port value %q", component, entry)
		}
		nums := make([]int, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n <= 0 || n > 65535 {
				return nil, errdefs.Configf("in %q, malformed port value %q", component, entry)
			}
			nums[i] = n
		}
		ports = append(ports, Port{Host: nums[0], Container: nums[len(nums)-1]})
	}
	return ports, nil
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}

// parseTunnels accepts a single tunnel mapping or a list of them.
func parseTunnels(node *yaml.Node) ([]Tunnel, error) {
	var raws []rawTunnel
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.MappingNode:
		var rt rawTunnel
		if err := node.Decode(&rt); err != nil {
			return nil, errdefs.Configf("invalid expose_tunnel: %v", err)
		}
		raws = append(raws, rt)
	case yaml.SequenceNode:
		if err := node.Decode(&raws); err != nil {
			return nil, errdefs.Configf("invalid expose_tunnel: %v", err)
		}
	default:
		return nil, errdefs.Configf("expose_tunnel must be either a list or a mapping")
	}

	tunnels := make([]Tunnel, 0, len(raws))
	for _, rt := range raws {
		t, err := parseService(rt.Service)
		if err != nil {
			return nil, err
		}
		t.Message = rt.Message
		tunnels = append(tunnels, t)
	}
	return tunnels, nil
}

func parseService(service string) (Tunnel, error) {
	invalid := errdefs.Configf("invalid tunnel service %q: must be in the format \"localport:component:remoteport\"", service)
	parts := strings.Split(service, ":")
	if len(parts) != 3 {
		return Tunnel{}, invalid
	}
	local, err := strconv.Atoi(parts[0])
	if err != nil || local <= 0 {
		return Tunnel{}, invalid
	}
	remote, err := strconv.Atoi(parts[2])
	if err != nil || remote <= 0 {
		return Tunnel{}, invalid
	}
	return Tunnel{LocalPort: local, Component: parts[1], RemotePort: remote}, nil
}

// parseCluster substitutes "$param" and "$param-N" values. Every supplied
// parameter must be used, unless the file has no cluster section; the
// parameters then go to the default cluster layout.
func parseCluster(raw map[string]map[string]any, params map[string]any) (map[string]Machine, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	cluster := make(map[string]Machine, len(raw))
	used := map[string]bool{}

	for machine, fields := range raw {
		if _, ok := fields["type"]; !ok {
			return nil, errdefs.Configf("machine %q has no \"type\"", machine)
		}
		if _, ok := fields["count"]; !ok {
			return nil, errdefs.Configf("machine %q has no \"count\"", machine)
		}
		if extra := lo.Without(lo.Keys(fields), "type", "count"); len(extra) > 0 {
			return nil, errdefs.Configf("invalid fields for machine %q: %s", machine, strings.Join(extra, ", "))
		}

		var m Machine
		typ, param, err := substitute(fields["type"], params, true)
		if err != nil {
			return nil, fmt.Errorf("machine %q: %w", machine, err)
		}
		if param != "" {
			used[param] = true
		}
		s, ok := typ.(string)
		if !ok || s == "" {
			return nil, errdefs.Configf("machine %q: \"type\" must be an instance type name", machine)
		}
		m.Type = s

		count, param, err := substitute(fields["count"], params, false)
		if err != nil {
			return nil, fmt.Errorf("machine %q: %w", machine, err)
		}
		if param != "" {
			used[param] = true
			m.Scalable = true
		}
		n, ok := count.(int)
		if !ok || n <= 0 {
			return nil, errdefs.Configf("machine %q: \"count\" must be a positive integer", machine)
		}
		m.Count = n
		cluster[machine] = m
	}

	unused := lo.Filter(lo.Keys(params), func(k string, _ int) bool { return !used[k] })
	if len(unused) > 0 {
		slices.Sort(unused)
		noun := lo.Ternary(len(unused) > 1, "parameters were", "parameter was")
		return nil, errdefs.Configf("the following %s supplied but not recognised: %s", noun, strings.Join(unused, ", "))
	}
	return cluster, nil
}

// substitute resolves one cluster field. It returns the value and the name
// of the parameter it came from, if any. Literal strings are only accepted
// when allowLiteral is set.
func substitute(field any, params map[string]any, allowLiteral bool) (any, string, error) {
	switch v := field.(type) {
	case int:
		return v, "", nil
	case string:
		expr := strings.TrimSpace(v)
		if !strings.HasPrefix(expr, "$") {
			if allowLiteral {
				return expr, "", nil
			}
			return nil, "", errdefs.Configf("unrecognised value %q", v)
		}

		name, offset, hasOffset := strings.Cut(expr[1:], "-")
		name = strings.TrimSpace(name)
		val, ok := params[name]
		if !ok {
			return nil, "", errdefs.Configf("the following parameter was expected but not supplied: %q", name)
		}
		if !hasOffset {
			return val, name, nil
		}

		base, ok := val.(int)
		if !ok {
			return nil, "", errdefs.Configf("expected integer value for %q", name)
		}
		if base <= 0 {
			return nil, "", errdefs.Configf("expected positive value for %q", name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(offset))
		if err != nil || n < 0 {
			return nil, "", errdefs.Configf("right hand value must be an integer: %q", v)
		}
		return base - n, name, nil
	default:
		return nil, "", errdefs.Configf("unknown field value type: %v", field)
	}
}
