// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/imamik/clusterous/cmd/clusterous/handlers"
)

// Root returns the root command for the clusterous CLI.
//
// The root command carries the profile flags shared by every subcommand.
// Any profile key can also be set with a CLUSTEROUS_<KEY> environment
// variable; flags win over both.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "clusterous",
		Short:         "Create compute clusters in the cloud and run Docker environments on them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to the provider profile (default ~/.clusterous.yml)")
	flags.String("provider", "", "Cloud provider: aws or hcloud")
	flags.String("region", "", "Region to create clusters in")
	flags.String("state_dir", "", "Directory holding the local cluster record")

	// Cluster lifecycle
	cmd.AddCommand(Setup())
	cmd.AddCommand(Create())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Status())
	cmd.AddCommand(Workon())
	cmd.AddCommand(AddNodes())
	cmd.AddCommand(RemoveNodes())
	cmd.AddCommand(Logging())

	// Environments
	cmd.AddCommand(Run())
	cmd.AddCommand(Quit())

	// Shared volumes
	cmd.AddCommand(ListVolumes())
	cmd.AddCommand(RemoveVolume())

	// Utility
	cmd.AddCommand(Serve())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// global collects the root flags for a handler. The profile keys are passed
// on as a flag set for the config layer to bind; --config is not one of them.
func global(cmd *cobra.Command) handlers.Global {
	root := cmd.Root().PersistentFlags()
	path, _ := root.GetString("config")

	profile := pflag.NewFlagSet("profile", pflag.ContinueOnError)
	root.VisitAll(func(f *pflag.Flag) {
		if f.Name != "config" {
			profile.AddFlag(f)
		}
	})
	return handlers.Global{ConfigPath: path, Flags: profile}
}
