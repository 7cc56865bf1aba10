package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/clusterous/cmd/clusterous/handlers"
)

// ListVolumes returns the ls-volumes command.
func ListVolumes() *cobra.Command {
	return &cobra.Command{
		Use:   "ls-volumes",
		Short: "List shared volumes left behind by destroyed clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.ListVolumes(cmd.Context(), global(cmd))
		},
	}
}

// RemoveVolume returns the rm-volume command.
func RemoveVolume() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "rm-volume <volume-id>",
		Short: "Delete a shared volume left behind by a destroyed cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.RemoveVolume(cmd.Context(), global(cmd), args[0], confirmed)
		},
	}

	cmd.Flags().BoolVar(&confirmed, "confirm", false, "Do not ask for confirmation")

	return cmd
}
