package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/imamik/clusterous/internal/errdefs"
)

// Supported providers.
const (
	ProviderAWS    = "aws"
	ProviderHCloud = "hcloud"
)

// Images holds the machine image per infrastructure role.
type Images struct {
	NAT        string `mapstructure:"nat"`
	Controller string `mapstructure:"controller"`
	Node       string `mapstructure:"node"`
	Logging    string `mapstructure:"logging"`
}

// Config is the provider profile.
type Config struct {
	Provider        string `mapstructure:"provider"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	HCloudToken     string `mapstructure:"hcloud_token"`
	KeyPair         string `mapstructure:"key_pair"`
	KeyFile         string `mapstructure:"key_file"`
	Username        string `mapstructure:"username"`
	NATUsername     string `mapstructure:"nat_username"`
	VPCCIDR         string `mapstructure:"vpc_cidr"`
	Zone            string `mapstructure:"zone"`
	S3Bucket        string `mapstructure:"s3_bucket"`
	Images          Images `mapstructure:"images"`
	PlaybookDir     string `mapstructure:"playbook_dir"`
	StateDir        string `mapstructure:"state_dir"`
}

var defaults = map[string]any{
	"provider":          ProviderAWS,
	"region":            "ap-southeast-2",
	"access_key_id":     "",
	"secret_access_key": "",
	"hcloud_token":      "",
	"key_pair":          "",
	"key_file":          "",
	"username":          "ubuntu",
	"nat_username":      "ec2-user",
	"vpc_cidr":          "10.2.0.0/16",
	"zone":              "a",
	"s3_bucket":         "",
	"images.nat":        "ami-e7ee9edd",
	"images.controller": "ami-fd4708c7",
	"images.node":       "ami-47eaad7d",
	"images.logging":    "ami-45eaad7f",
	"playbook_dir":      "/usr/share/clusterous/ansible",
	"state_dir":         DefaultStateDir,
}

// Default returns the profile used when no file sets anything.
func Default() *Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	cfg.StateDir = ExpandHome(cfg.StateDir)
	return &cfg
}

// Load reads the profile at path (DefaultConfigFile when empty), applies
// CLUSTEROUS_* environment overrides and any changed flags in flags.
// A missing file is not an error when path is the default.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("clusterous")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	v.SetConfigFile(ExpandHome(path))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, errdefs.Configf("failed to read config %s: %v", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errdefs.Configf("failed to decode config: %v", err)
	}
	cfg.KeyFile = ExpandHome(cfg.KeyFile)
	cfg.StateDir = ExpandHome(cfg.StateDir)
	cfg.PlaybookDir = ExpandHome(cfg.PlaybookDir)
	return &cfg, nil
}

// Validate checks the fields every cloud operation depends on.
func (c *Config) Validate() error {
	var errs []string
	switch c.Provider {
	case ProviderAWS:
		if c.AccessKeyID == "" || c.SecretAccessKey == "" {
			errs = append(errs, "access_key_id and secret_access_key are required for aws")
		}
		if c.KeyPair == "" {
			errs = append(errs, "key_pair is required for aws")
		}
	case ProviderHCloud:
		if c.HCloudToken == "" {
			errs = append(errs, "hcloud_token is required for hcloud")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown provider %q", c.Provider))
	}
	if c.KeyFile == "" {
		errs = append(errs, "key_file is required")
	} else if _, err := os.Stat(c.KeyFile); err != nil {
		errs = append(errs, fmt.Sprintf("key_file %s is not readable", c.KeyFile))
	}
	if _, err := SubnetCIDR(c.VPCCIDR, 0); err != nil {
		errs = append(errs, fmt.Sprintf("vpc_cidr: %v", err))
	}
	if len(errs) > 0 {
		return errdefs.Configf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SessionDir is where permanent tunnel sockets live.
func (c *Config) SessionDir() string {
	return filepath.Join(c.StateDir, SessionDir)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
