// Package main is the entry point for the clusterous CLI.
//
// clusterous creates compute clusters on a cloud provider and runs
// Docker-based environments on them, sizing each component to the
// machines it lands on.
//
// Commands: setup, create, destroy, status, workon, add-nodes, rm-nodes,
// logging, run, quit, ls-volumes, rm-volume, serve.
//
// For detailed usage information, run:
//
//	clusterous --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/clusterous/cmd/clusterous/commands"
	"github.com/imamik/clusterous/internal/errdefs"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := errdefs.Remediation(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		stop()
		os.Exit(1)
	}
}
