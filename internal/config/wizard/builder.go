package wizard

import (
	"fmt"
	"strings"

	"github.com/imamik/clusterous/internal/config"
)

// BuildConfig creates a Config from the wizard result. Fields the wizard
// does not ask about keep the defaults of config.Default.
func BuildConfig(result *WizardResult) (*config.Config, error) {
	cfg := config.Default()

	switch result.Provider {
	case config.ProviderAWS:
		cfg.AccessKeyID = strings.TrimSpace(result.AccessKeyID)
		cfg.SecretAccessKey = strings.TrimSpace(result.SecretAccessKey)
	case config.ProviderHCloud:
		cfg.HCloudToken = strings.TrimSpace(result.HCloudToken)
		// Hetzner images run as root.
		cfg.Username = "root"
		cfg.NATUsername = "root"
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownProvider, result.Provider)
	}
	cfg.Provider = result.Provider
	cfg.Region = result.Region
	cfg.KeyPair = strings.TrimSpace(result.KeyPair)
	cfg.KeyFile = strings.TrimSpace(result.KeyFile)
	cfg.S3Bucket = strings.TrimSpace(result.S3Bucket)

	if adv := result.AdvancedOptions; adv != nil {
		cfg.VPCCIDR = adv.VPCCIDR
		cfg.Zone = adv.Zone
		cfg.PlaybookDir = adv.PlaybookDir
	}
	return cfg, nil
}
