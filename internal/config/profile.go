package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/util/naming"
)

// ClusterProfile is the file passed to "create": which cluster to build and
// which environment to launch on it.
type ClusterProfile struct {
	ClusterName         string         `yaml:"cluster_name"`
	SharedVolumeID      string         `yaml:"shared_volume_id"`
	CentralLoggingLevel int            `yaml:"central_logging_level"`
	Parameters          map[string]any `yaml:"parameters"`
	EnvironmentFile     string         `yaml:"environment_file"`
}

// LoadClusterProfile reads a cluster profile. Unknown fields are rejected and
// EnvironmentFile is resolved relative to the profile's directory.
func LoadClusterProfile(path string) (*ClusterProfile, error) {
	path = ExpandHome(path)
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errdefs.Configf("cannot open profile %s: %v", path, err)
	}

	var p ClusterProfile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, errdefs.Configf("invalid profile %s: %v", path, err)
	}

	if p.ClusterName == "" {
		return nil, errdefs.Configf("no \"cluster_name\" field in %s", path)
	}
	if err := naming.ValidateClusterName(p.ClusterName); err != nil {
		return nil, errdefs.Configf("%v", err)
	}
	if p.CentralLoggingLevel < 0 || p.CentralLoggingLevel > 3 {
		return nil, errdefs.Configf("central_logging_level must be between 0 and 3, got %d", p.CentralLoggingLevel)
	}
	if p.EnvironmentFile != "" && !filepath.IsAbs(p.EnvironmentFile) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		p.EnvironmentFile = filepath.Join(filepath.Dir(abs), p.EnvironmentFile)
	}
	if p.Parameters == nil {
		p.Parameters = map[string]any{}
	}
	return &p, nil
}
