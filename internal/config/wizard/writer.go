package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imamik/clusterous/internal/config"
)

// Function variable for dependency injection in tests.
var confirmOverwrite = defaultConfirmOverwrite

// ProfileFile is the YAML layout of the provider profile. Only the fields
// of the chosen provider are written.
type ProfileFile struct {
	Provider        string         `yaml:"provider"`
	Region          string         `yaml:"region"`
	AccessKeyID     string         `yaml:"access_key_id,omitempty"`
	SecretAccessKey string         `yaml:"secret_access_key,omitempty"`
	HCloudToken     string         `yaml:"hcloud_token,omitempty"`
	KeyPair         string         `yaml:"key_pair"`
	KeyFile         string         `yaml:"key_file"`
	Username        string         `yaml:"username,omitempty"`
	NATUsername     string         `yaml:"nat_username,omitempty"`
	VPCCIDR         string         `yaml:"vpc_cidr,omitempty"`
	Zone            string         `yaml:"zone,omitempty"`
	S3Bucket        string         `yaml:"s3_bucket,omitempty"`
	Images          *config.Images `yaml:"images,omitempty"`
	PlaybookDir     string         `yaml:"playbook_dir,omitempty"`
}

// buildProfileFile drops the values that equal the defaults unless full is set.
func buildProfileFile(cfg *config.Config, full bool) ProfileFile {
	def := config.Default()
	pick := func(v, d string) string {
		if full || v != d {
			return v
		}
		return ""
	}
	out := ProfileFile{
		Provider:        cfg.Provider,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		HCloudToken:     cfg.HCloudToken,
		KeyPair:         cfg.KeyPair,
		KeyFile:         cfg.KeyFile,
		Username:        pick(cfg.Username, def.Username),
		NATUsername:     pick(cfg.NATUsername, def.NATUsername),
		VPCCIDR:         pick(cfg.VPCCIDR, def.VPCCIDR),
		Zone:            pick(cfg.Zone, def.Zone),
		S3Bucket:        cfg.S3Bucket,
		PlaybookDir:     pick(cfg.PlaybookDir, def.PlaybookDir),
	}
	if full || cfg.Images != def.Images {
		images := cfg.Images
		out.Images = &images
	}
	return out
}

// WriteConfig writes the profile to a YAML file with a descriptive header.
// If fullOutput is false, values equal to the defaults are left out.
func WriteConfig(cfg *config.Config, outputPath string, fullOutput bool) error {
	yamlBytes, err := yaml.Marshal(buildProfileFile(cfg, fullOutput))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(generateHeader(fullOutput))
	sb.WriteString("\n")
	sb.Write(yamlBytes)

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	// The profile holds credentials.
	if err := os.WriteFile(outputPath, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// generateHeader creates the YAML file header comment.
func generateHeader(fullOutput bool) string {
	mode := "minimal"
	note := "\n# Note: Values equal to the defaults are omitted. Use --full to write them all."
	if fullOutput {
		mode = "full"
		note = ""
	}
	return fmt.Sprintf(`# clusterous profile
# Generated by: clusterous setup
# Generated at: %s
# Output mode: %s%s
#
# Any value can be overridden with a CLUSTEROUS_<KEY> environment variable,
# e.g. CLUSTEROUS_REGION=us-east-1.
`, time.Now().Format(time.RFC3339), mode, note)
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ConfirmOverwrite prompts the user to confirm overwriting an existing file.
func ConfirmOverwrite(path string) (bool, error) {
	return confirmOverwrite(path)
}

// defaultConfirmOverwrite is the default implementation that prompts via stdin.
func defaultConfirmOverwrite(path string) (bool, error) {
	fmt.Printf("\nFile already exists: %s\n", path)
	fmt.Print("Overwrite? (y/n): ")

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false, err
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}
