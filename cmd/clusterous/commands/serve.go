package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/imamik/clusterous/cmd/clusterous/handlers"
)

// DefaultServeAddr stays clear of the ports tunneled to the controller.
const DefaultServeAddr = "127.0.0.1:7070"

// Serve returns the serve command.
func Serve() *cobra.Command {
	var opts handlers.ServeOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cluster lifecycle over HTTP",
		Long: `Serve exposes the active cluster over a small HTTP API:

  GET    /v1/cluster   status of the active cluster
  POST   /v1/cluster   start provisioning in the background
  DELETE /v1/cluster   start termination in the background
  GET    /v1/task      progress of the background task
  GET    /metrics      Prometheus metrics

Only one provisioning or termination runs at a time. With --token (or
CLUSTEROUS_API_TOKEN) every /v1 request needs "Authorization: Bearer <token>".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Token == "" {
				opts.Token = os.Getenv("CLUSTEROUS_API_TOKEN")
			}
			return handlers.Serve(cmd.Context(), global(cmd), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", DefaultServeAddr, "Address to listen on")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Bearer token required on API requests")
	cmd.Flags().StringSliceVar(&opts.CORSOrigins, "cors-origin", nil, "Browser origins allowed to call the API")

	return cmd
}
