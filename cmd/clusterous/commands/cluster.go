package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/imamik/clusterous/cmd/clusterous/handlers"
	"github.com/imamik/clusterous/internal/errdefs"
)

// defaultRole is the node role used when none is given.
const defaultRole = "worker"

// Workon returns the workon command.
func Workon() *cobra.Command {
	return &cobra.Command{
		Use:   "workon <cluster-name>",
		Short: "Make a running cluster the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Workon(cmd.Context(), global(cmd), args[0])
		},
	}
}

// AddNodes returns the add-nodes command.
func AddNodes() *cobra.Command {
	var instanceType string

	cmd := &cobra.Command{
		Use:   "add-nodes <count> [role]",
		Short: "Add nodes to the active cluster",
		Long: `Add nodes of a role (default "worker") to the active cluster.

The new nodes get the instance type of the role's existing nodes unless
--type is given. Running components constrained to the role are scaled
up to use them.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, role, err := nodeArgs(args)
			if err != nil {
				return err
			}
			return handlers.AddNodes(cmd.Context(), global(cmd), count, role, instanceType)
		},
	}

	cmd.Flags().StringVar(&instanceType, "type", "", "Instance type of the new nodes")

	return cmd
}

// RemoveNodes returns the rm-nodes command.
func RemoveNodes() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-nodes <count> [role]",
		Short: "Remove nodes from the active cluster",
		Long: `Remove nodes of a role (default "worker") from the active cluster.

Tasks on the removed nodes are killed and their components scaled down.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, role, err := nodeArgs(args)
			if err != nil {
				return err
			}
			return handlers.RemoveNodes(cmd.Context(), global(cmd), count, role)
		},
	}
}

// Logging returns the logging command.
func Logging() *cobra.Command {
	return &cobra.Command{
		Use:   "logging",
		Short: "Open a tunnel to the central logging dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Logging(cmd.Context(), global(cmd))
		},
	}
}

func nodeArgs(args []string) (int, string, error) {
	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		return 0, "", errdefs.Configf("number of nodes must be a positive integer, got %q", args[0])
	}
	role := defaultRole
	if len(args) > 1 {
		role = args[1]
	}
	return count, role, nil
}
