package wizard

import (
	"context"
	"fmt"
)

// WizardResult holds all the answers from the interactive wizard.
type WizardResult struct {
	Provider string
	Region   string

	// Credentials; only those of Provider are asked for.
	AccessKeyID     string
	SecretAccessKey string
	HCloudToken     string

	// SSH access
	KeyPair string
	KeyFile string

	// Docker registry storage (optional)
	S3Bucket string

	// Advanced options (only set in advanced mode)
	AdvancedOptions *AdvancedOptions
}

// AdvancedOptions holds advanced configuration options.
type AdvancedOptions struct {
	VPCCIDR     string
	Zone        string
	PlaybookDir string
}

// RunWizard runs the interactive setup wizard.
// If advanced is true, additional configuration options are shown.
// The context is used for cancellation support (e.g., Ctrl+C).
func RunWizard(ctx context.Context, advanced bool) (*WizardResult, error) {
	result := &WizardResult{}

	if err := runProviderGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}

	if err := runCredentialsGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	if err := runSSHAccessGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("ssh access: %w", err)
	}

	if err := runRegistryGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	if advanced {
		advOpts := &AdvancedOptions{}
		if err := runNetworkGroup(ctx, advOpts); err != nil {
			return nil, fmt.Errorf("network: %w", err)
		}
		result.AdvancedOptions = advOpts
	}

	return result, nil
}
