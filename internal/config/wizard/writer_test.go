package wizard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/imamik/clusterous/internal/config"
)

func awsProfile() *config.Config {
	cfg := config.Default()
	cfg.AccessKeyID = "AKIAEXAMPLE"
	cfg.SecretAccessKey = "secret"
	cfg.KeyPair = "my-key"
	cfg.KeyFile = "/home/me/.ssh/my-key.pem"
	return cfg
}

func TestWriteConfig_MinimalOutput(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), ".clusterous.yml")

	require.NoError(t, WriteConfig(awsProfile(), outputPath, false))

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)

	assert.Contains(t, string(content), "# clusterous profile")
	assert.Contains(t, string(content), "Output mode: minimal")
	assert.Contains(t, string(content), "provider: aws")
	assert.Contains(t, string(content), "key_pair: my-key")
	assert.NotContains(t, string(content), "vpc_cidr", "defaults are omitted")
	assert.NotContains(t, string(content), "images")
	assert.NotContains(t, string(content), "hcloud_token")
}

func TestWriteConfig_FullOutput(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), ".clusterous.yml")

	require.NoError(t, WriteConfig(awsProfile(), outputPath, true))

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Output mode: full")
	assert.Contains(t, string(content), "vpc_cidr: 10.2.0.0/16")
	assert.Contains(t, string(content), "images:")
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), ".clusterous.yml")
	cfg := awsProfile()
	cfg.Zone = "b"
	cfg.S3Bucket = "my-registry"

	require.NoError(t, WriteConfig(cfg, outputPath, false))

	loaded, err := config.Load(outputPath, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWriteConfig_FilePermissions(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "nested", ".clusterous.yml")

	require.NoError(t, WriteConfig(awsProfile(), outputPath, false))

	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteConfig_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	err := WriteConfig(awsProfile(), filepath.Join(file, "profile.yml"), false)
	require.Error(t, err)
}

func TestBuildProfileFile(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = config.ProviderHCloud
	cfg.Region = "fsn1"
	cfg.HCloudToken = "token"
	cfg.Username = "root"
	cfg.Images.Node = "ubuntu-24.04"

	out := buildProfileFile(cfg, false)
	assert.Equal(t, "root", out.Username)
	assert.Empty(t, out.NATUsername)
	assert.Empty(t, out.VPCCIDR)
	require.NotNil(t, out.Images)
	assert.Equal(t, "ubuntu-24.04", out.Images.Node)

	data, err := yaml.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "access_key_id")
}

func TestGenerateHeader(t *testing.T) {
	header := generateHeader(false)

	assert.Contains(t, header, "# clusterous profile")
	assert.Contains(t, header, "Generated by: clusterous setup")
	assert.Contains(t, header, "Output mode: minimal")
	assert.Contains(t, header, "CLUSTEROUS_REGION")
	assert.Contains(t, header, "Generated at:")
}

func TestGenerateHeader_FullMode(t *testing.T) {
	header := generateHeader(true)

	assert.Contains(t, header, "Output mode: full")
	assert.NotContains(t, header, "Values equal to the defaults are omitted")
}

func TestConfirmOverwrite(t *testing.T) {
	orig := confirmOverwrite
	defer func() { confirmOverwrite = orig }()

	var asked string
	confirmOverwrite = func(path string) (bool, error) {
		asked = path
		return true, nil
	}

	ok, err := ConfirmOverwrite("/tmp/profile.yml")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/tmp/profile.yml", asked)
}
