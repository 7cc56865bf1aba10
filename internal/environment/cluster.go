package environment

import (
	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/provisioning"
)

// defaultCluster is the layout used when the profile's environment file has
// no cluster section, or when there is no environment file.
const defaultCluster = `name: default
cluster:
  master:
    type: $master_instance_type
    count: 1
  worker:
    type: $worker_instance_type
    count: $num_instances
`

// Request builds the provisioning request for profile. The environment file
// named by the profile is returned as well, nil when there is none.
func Request(profile *config.ClusterProfile) (*provisioning.Request, *File, error) {
	var env *File
	if profile.EnvironmentFile != "" {
		f, err := Load(profile.EnvironmentFile, profile.Parameters)
		if err != nil {
			return nil, nil, err
		}
		env = f
	}

	layout := env
	if layout == nil || len(layout.Cluster) == 0 {
		f, err := Parse([]byte(defaultCluster), profile.Parameters)
		if err != nil {
			return nil, nil, err
		}
		layout = f
	}

	return &provisioning.Request{
		ClusterName:  profile.ClusterName,
		VolumeID:     profile.SharedVolumeID,
		NodeGroups:   layout.NodeGroups(),
		LoggingLevel: profile.CentralLoggingLevel,
	}, env, nil
}
