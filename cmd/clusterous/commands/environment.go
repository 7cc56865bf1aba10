package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/clusterous/cmd/clusterous/handlers"
)

// Run returns the run command.
func Run() *cobra.Command {
	return &cobra.Command{
		Use:   "run <environment-file>",
		Short: "Launch an environment on the active cluster",
		Long: `Run starts the components of an environment file on the active cluster.

CPU and instance counts set to "auto" are computed from the cluster's
machines. When the environment exposes a tunnel, it is opened on this
machine and its message is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Run(cmd.Context(), global(cmd), args[0])
		},
	}
}

// Quit returns the quit command.
func Quit() *cobra.Command {
	var opts handlers.QuitOptions

	cmd := &cobra.Command{
		Use:   "quit",
		Short: "Stop the running environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Quit(cmd.Context(), global(cmd), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.TunnelOnly, "tunnel-only", false, "Only close the local tunnels, leave components running")
	cmd.Flags().BoolVar(&opts.Confirmed, "confirm", false, "Do not ask for confirmation")

	return cmd
}
