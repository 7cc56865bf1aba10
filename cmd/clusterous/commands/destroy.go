package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/clusterous/cmd/clusterous/handlers"
)

// Destroy returns the destroy command.
//
// The destroy command terminates every instance of the active cluster and
// removes its network. The shared volume is deleted unless it existed
// before the cluster or --leave-shared-volume is given.
func Destroy() *cobra.Command {
	var opts handlers.DestroyOptions

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy the active cluster and all associated resources",
		Long: `Destroy removes the active cluster from the cloud provider.

This command deletes, in dependency order:
  - Node, controller, logging and NAT instances
  - Security groups
  - Route tables and the internet gateway
  - Subnet and VPC
  - The shared volume, when it was created with the cluster

Use --leave-shared-volume to keep the shared volume, or
--force-delete-shared-volume to delete one that existed before.

WARNING: This operation is irreversible. All data on the cluster will be lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), global(cmd), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Confirmed, "confirm", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&opts.LeaveVolume, "leave-shared-volume", false, "Keep the shared volume")
	cmd.Flags().BoolVar(&opts.ForceDeleteVolume, "force-delete-shared-volume", false, "Delete the shared volume even if it existed before the cluster")
	cmd.MarkFlagsMutuallyExclusive("leave-shared-volume", "force-delete-shared-volume")

	return cmd
}
