package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/clusterous/cmd/clusterous/handlers"
)

// Setup returns the command for interactively creating the provider profile.
//
// Flags:
//
//	--output, -o: Path to output file (default ~/.clusterous.yml)
//	--advanced, -a: Show advanced configuration options
//	--full, -f: Write every value, including defaults
func Setup() *cobra.Command {
	var (
		outputPath string
		advanced   bool
		fullOutput bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively create the provider profile",
		Long: `Interactively create the provider profile.

This command asks for everything clusterous needs to reach your cloud
account:

  - Cloud provider and region
  - API credentials
  - SSH key pair and private key file
  - Bucket for the Docker registry (optional)

Use --advanced for the network range, availability zone and
playbook directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Setup(cmd.Context(), outputPath, advanced, fullOutput)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default ~/.clusterous.yml)")
	cmd.Flags().BoolVarP(&advanced, "advanced", "a", false, "Show advanced configuration options")
	cmd.Flags().BoolVarP(&fullOutput, "full", "f", false, "Write every value, including defaults")

	return cmd
}
