package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/clusterous/cmd/clusterous/handlers"
)

// Create returns the create command.
func Create() *cobra.Command {
	var noRun bool

	cmd := &cobra.Command{
		Use:   "create <profile>",
		Short: "Create a new cluster from a cluster profile",
		Long: `Create starts a new cluster as described by the cluster profile.

The profile names the cluster and, optionally, an environment file.
The cluster's machines come from the environment file's cluster section,
or from the default master/worker layout filled in from the profile's
parameters. Once the cluster is up, the environment is launched on it
unless --no-run is given.

Example:
  clusterous create mycluster.yml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Create(cmd.Context(), global(cmd), args[0], !noRun)
		},
	}

	cmd.Flags().BoolVar(&noRun, "no-run", false, "Do not launch the environment after the cluster is created")

	return cmd
}
