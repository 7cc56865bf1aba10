// Package session persists the local record of the active cluster.
//
// Two files live in the state directory: cluster_info.yml, a flat key/value
// document that is only ever merged into, and current_controller, an
// inventory naming the address through which the controller is reached.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
)

// Record keys.
const (
	KeyClusterName          = "cluster_name"
	KeyRunning              = "running"
	KeyProvider             = "provider"
	KeyNATIP                = "nat_ip"
	KeyControllerIP         = "controller_ip"
	KeyVolumeID             = "volume_id"
	KeyBYOVolume            = "byo_volume"
	KeyCentralLoggingLevel  = "central_logging_level"
	KeyCentralLoggingIP     = "central_logging_ip"
	KeyNATSSHPortForwarding = "nat_ssh_port_forwarding"
)

// Info is the typed view of the record.
type Info struct {
	ClusterName          string `yaml:"cluster_name"`
	Running              bool   `yaml:"running"`
	Provider             string `yaml:"provider"`
	NATIP                string `yaml:"nat_ip"`
	ControllerIP         string `yaml:"controller_ip"`
	VolumeID             string `yaml:"volume_id"`
	BYOVolume            int    `yaml:"byo_volume"`
	CentralLoggingLevel  int    `yaml:"central_logging_level"`
	CentralLoggingIP     string `yaml:"central_logging_ip"`
	NATSSHPortForwarding int    `yaml:"nat_ssh_port_forwarding"`
}

// VolumeBorrowed reports whether the shared volume existed before the cluster.
func (i *Info) VolumeBorrowed() bool {
	return i.BYOVolume != 0
}

// Store reads and writes the record files in one directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) infoPath() string {
	return filepath.Join(s.dir, config.ClusterInfoFile)
}

// InventoryPath is the controller inventory file, usable with ansible -i.
func (s *Store) InventoryPath() string {
	return filepath.Join(s.dir, config.CurrentControllerFile)
}

// Load returns the active cluster, or errdefs.ErrNoActiveCluster.
func (s *Store) Load() (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if err != nil {
		return nil, err
	}
	if name, _ := raw[KeyClusterName].(string); name == "" {
		return nil, errdefs.ErrNoActiveCluster
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.infoPath(), err)
	}
	return &info, nil
}

// Raw returns every key of the record, including ones Info does not model.
func (s *Store) Raw() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Merge adds or overwrites values. Keys not in values are kept.
func (s *Store) Merge(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		existing[k] = v
	}
	data, err := yaml.Marshal(existing)
	if err != nil {
		return err
	}
	return writeAtomic(s.infoPath(), data, 0o600)
}

// Clear forgets the active cluster.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, p := range []string{s.infoPath(), s.InventoryPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetController records host:port as the controller's SSH endpoint.
func (s *Store) SetController(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b bytes.Buffer
	fmt.Fprintf(&b, "[controller]\n%s\n", net.JoinHostPort(host, strconv.Itoa(port)))
	return writeAtomic(s.InventoryPath(), b.Bytes(), 0o600)
}

// Controller returns the controller's SSH endpoint.
func (s *Store) Controller() (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.InventoryPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", 0, errdefs.ErrNoActiveCluster
	}
	if err != nil {
		return "", 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		host, portStr, err := net.SplitHostPort(line)
		if err != nil {
			return line, config.SSHPort, nil
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, fmt.Errorf("invalid controller port in %s: %w", s.InventoryPath(), err)
		}
		return host, port, nil
	}
	return "", 0, errdefs.ErrNoActiveCluster
}

func (s *Store) read() (map[string]any, error) {
	data, err := os.ReadFile(s.infoPath())
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.infoPath(), err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func writeAtomic(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
