package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterous/internal/errdefs"
)

func TestLoad_NoActiveCluster(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.Load()
	assert.True(t, errdefs.IsNoActiveCluster(err))

	_, _, err = s.Controller()
	assert.True(t, errdefs.IsNoActiveCluster(err))
}

func TestMerge_KeepsExistingKeys(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.Merge(map[string]any{KeyClusterName: "demo", KeyRunning: false, "custom": "kept"}))
	require.NoError(t, s.Merge(map[string]any{KeyRunning: true, KeyBYOVolume: 1, KeyVolumeID: "vol-1"}))

	info, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "demo", info.ClusterName)
	assert.True(t, info.Running)
	assert.True(t, info.VolumeBorrowed())
	assert.Equal(t, "vol-1", info.VolumeID)

	raw, err := s.Raw()
	require.NoError(t, err)
	assert.Equal(t, "kept", raw["custom"])
}

func TestMerge_FileIsPrivate(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "nested"))
	require.NoError(t, s.Merge(map[string]any{KeyClusterName: "demo"}))

	st, err := os.Stat(filepath.Join(dir, "nested", "cluster_info.yml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestController_RoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.SetController("203.0.113.5", 22000))

	data, err := os.ReadFile(s.InventoryPath())
	require.NoError(t, err)
	assert.Equal(t, "[controller]\n203.0.113.5:22000\n", string(data))

	host, port, err := s.Controller()
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5", host)
	assert.Equal(t, 22000, port)
}

func TestClear(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Merge(map[string]any{KeyClusterName: "demo"}))
	require.NoError(t, s.SetController("1.2.3.4", 22000))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear(), "clearing twice is fine")

	_, err := s.Load()
	assert.True(t, errdefs.IsNoActiveCluster(err))
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cluster_info.yml"), []byte("::: not yaml"), 0o600))

	_, err := NewStore(dir).Load()
	require.Error(t, err)
	assert.False(t, errdefs.IsNoActiveCluster(err))
}
