package wizard

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/imamik/clusterous/internal/config"
)

// bucketNameRegex follows the S3 bucket naming rules.
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// runProviderGroup prompts for the cloud provider and its region.
func runProviderGroup(ctx context.Context, result *WizardResult) error {
	result.Provider = config.ProviderAWS // default

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Cloud Provider").
				Description("Where the cluster instances run").
				Options(ProviderOptions...).
				Value(&result.Provider),
		).Title("Provider"),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Region").
				Description("Every cluster of this profile is created here").
				Options(RegionsToOptions(RegionsFor(result.Provider))...).
				Value(&result.Region),
		).Title("Region"),
	).RunWithContext(ctx)
}

// runCredentialsGroup prompts for the provider's API credentials.
func runCredentialsGroup(ctx context.Context, result *WizardResult) error {
	if result.Provider == config.ProviderHCloud {
		return huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("API Token").
					Description("Read & write token of your Hetzner Cloud project").
					EchoMode(huh.EchoModePassword).
					Value(&result.HCloudToken).
					Validate(validateRequired),
			).Title("Credentials"),
		).RunWithContext(ctx)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Access Key ID").
				Value(&result.AccessKeyID).
				Validate(validateRequired),
			huh.NewInput().
				Title("Secret Access Key").
				EchoMode(huh.EchoModePassword).
				Value(&result.SecretAccessKey).
				Validate(validateRequired),
		).Title("Credentials"),
	).RunWithContext(ctx)
}

// runSSHAccessGroup prompts for the key pair and its private key file.
func runSSHAccessGroup(ctx context.Context, result *WizardResult) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Key Pair Name").
				Description("Name of the SSH key registered with the provider").
				Placeholder("my-key").
				Value(&result.KeyPair).
				Validate(validateRequired),
			huh.NewInput().
				Title("Private Key File").
				Description("Local path of the key pair's private key").
				Placeholder("~/.ssh/my-key.pem").
				Value(&result.KeyFile).
				Validate(validateKeyFile),
		).Title("SSH Access"),
	).RunWithContext(ctx)
}

// runRegistryGroup prompts for the bucket backing the Docker registry.
func runRegistryGroup(ctx context.Context, result *WizardResult) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Registry Bucket (Optional)").
				Description("Object storage bucket for the cluster's Docker registry. Leave empty to skip.").
				Placeholder("my-clusterous-registry").
				Value(&result.S3Bucket).
				Validate(validateBucket),
		).Title("Docker Registry"),
	).RunWithContext(ctx)
}

// runNetworkGroup prompts for the network layout.
func runNetworkGroup(ctx context.Context, opts *AdvancedOptions) error {
	opts.VPCCIDR = "10.2.0.0/16"
	opts.Zone = "a"
	opts.PlaybookDir = "/usr/share/clusterous/ansible"

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("VPC CIDR").
				Description("A /16 network; the cluster subnet is carved from it").
				Value(&opts.VPCCIDR).
				Validate(validateCIDR),
			huh.NewSelect[string]().
				Title("Availability Zone").
				Options(ZoneOptions...).
				Value(&opts.Zone),
			huh.NewInput().
				Title("Playbook Directory").
				Value(&opts.PlaybookDir).
				Validate(validateRequired),
		).Title("Advanced"),
	).RunWithContext(ctx)
}

func validateRequired(s string) error {
	if strings.TrimSpace(s) == "" {
		return errValueRequired
	}
	return nil
}

func validateKeyFile(s string) error {
	if err := validateRequired(s); err != nil {
		return err
	}
	if _, err := os.Stat(config.ExpandHome(strings.TrimSpace(s))); err != nil {
		return errKeyFileMissing
	}
	return nil
}

func validateBucket(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !bucketNameRegex.MatchString(s) {
		return errBucketInvalid
	}
	return nil
}

func validateCIDR(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errCIDRRequired
	}
	if _, err := config.SubnetCIDR(s, 0); err != nil {
		return errCIDRInvalid
	}
	return nil
}
