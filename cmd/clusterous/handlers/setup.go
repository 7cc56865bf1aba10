package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/config/wizard"
)

// Factory function variables for setup - can be replaced in tests.
var (
	wizardFileExists       = wizard.FileExists
	wizardConfirmOverwrite = wizard.ConfirmOverwrite
	wizardRunWizard        = wizard.RunWizard
	wizardBuildConfig      = wizard.BuildConfig
	wizardWriteConfig      = wizard.WriteConfig
)

// Setup runs the setup wizard and writes the provider profile.
func Setup(ctx context.Context, outputPath string, advanced, fullOutput bool) error {
	if outputPath == "" {
		outputPath = config.DefaultConfigFile
	}
	outputPath = config.ExpandHome(outputPath)

	if wizardFileExists(outputPath) {
		ok, err := wizardConfirmOverwrite(outputPath)
		if err != nil {
			return fmt.Errorf("failed to confirm overwrite: %w", err)
		}
		if !ok {
			fmt.Fprintln(stdout, "Setup canceled.")
			return nil
		}
	}

	printWelcome(advanced)

	result, err := wizardRunWizard(ctx, advanced)
	if err != nil {
		return fmt.Errorf("wizard canceled: %w", err)
	}
	cfg, err := wizardBuildConfig(result)
	if err != nil {
		return err
	}
	if err := wizardWriteConfig(cfg, outputPath, fullOutput); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printSetupSuccess(outputPath, cfg)
	return nil
}

func printWelcome(advanced bool) {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "clusterous setup")
	fmt.Fprintln(stdout, "================")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "This wizard creates the profile clusterous uses to reach your cloud account.")
	if advanced {
		fmt.Fprintln(stdout, "Running in advanced mode.")
	}
	fmt.Fprintln(stdout)
}

func printSetupSuccess(outputPath string, cfg *config.Config) {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Profile saved!")
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  File:     %s\n", outputPath)
	fmt.Fprintf(stdout, "  Provider: %s\n", cfg.Provider)
	fmt.Fprintf(stdout, "  Region:   %s\n", cfg.Region)
	fmt.Fprintf(stdout, "  Key pair: %s\n", cfg.KeyPair)
	if cfg.S3Bucket != "" {
		fmt.Fprintf(stdout, "  Registry: %s\n", cfg.S3Bucket)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Next steps:")
	fmt.Fprintln(stdout, "  clusterous create <cluster-profile.yml>")
	fmt.Fprintln(stdout)
}
