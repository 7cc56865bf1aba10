package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/provisioning"
)

func TestRequest_FromEnvironmentFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ipython.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	req, env, err := Request(&config.ClusterProfile{
		ClusterName:         "demo",
		CentralLoggingLevel: 2,
		Parameters:          sampleParams(),
		EnvironmentFile:     path,
	})
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "ipython", env.Name)
	assert.Equal(t, "demo", req.ClusterName)
	assert.Equal(t, 2, req.LoggingLevel)
	assert.Equal(t, []provisioning.NodeGroup{
		{Role: "master", InstanceType: "c4.xlarge", Count: 1},
		{Role: "worker", InstanceType: "c4.2xlarge", Count: 3},
	}, req.NodeGroups)
}

func TestRequest_DefaultLayout(t *testing.T) {
	t.Parallel()
	req, env, err := Request(&config.ClusterProfile{
		ClusterName:    "bare",
		SharedVolumeID: "vol-0a1b2c",
		Parameters: map[string]any{
			"master_instance_type": "t2.small",
			"worker_instance_type": "t2.medium",
			"num_instances":        2,
		},
	})
	require.NoError(t, err)
	assert.Nil(t, env)
	assert.Equal(t, "vol-0a1b2c", req.VolumeID)
	assert.Equal(t, []provisioning.NodeGroup{
		{Role: "master", InstanceType: "t2.small", Count: 1},
		{Role: "worker", InstanceType: "t2.medium", Count: 2},
	}, req.NodeGroups)
}

func TestRequest_EnvironmentWithoutCluster(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "web.yml")
	data := "name: web\nenvironment:\n  components:\n    web:\n      machine: worker\n      cpu: auto\n      image: nginx\n      cmd: nginx\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	req, env, err := Request(&config.ClusterProfile{
		ClusterName:     "web",
		EnvironmentFile: path,
		Parameters: map[string]any{
			"master_instance_type": "t2.small",
			"worker_instance_type": "t2.small",
			"num_instances":        1,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, []string{"web"}, env.ComponentNames())
	assert.Len(t, req.NodeGroups, 2)
}

func TestRequest_MissingDefaultParameters(t *testing.T) {
	t.Parallel()
	_, _, err := Request(&config.ClusterProfile{ClusterName: "bare", Parameters: map[string]any{}})
	assert.True(t, errdefs.IsConfig(err))
	assert.ErrorContains(t, err, "expected but not supplied")
}
