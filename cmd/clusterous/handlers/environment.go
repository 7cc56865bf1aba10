package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/imamik/clusterous/internal/environment"
)

var loadEnvironment = environment.LoadEnvironment

// Run launches the environment described by envFile on the active cluster.
// The file's cluster section only matters at creation time and is skipped.
func Run(ctx context.Context, g Global, envFile string) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	env, err := loadEnvironment(envFile)
	if err != nil {
		return err
	}
	launcher, info, err := a.activeLauncher()
	if err != nil {
		return err
	}

	log.Printf("Launching environment %q on cluster %s", env.Name, info.ClusterName)
	msg, err := launcher.Launch(ctx, env)
	if err != nil {
		return err
	}
	printUserMessage(msg)
	return nil
}

// QuitOptions are the flags of the quit command.
type QuitOptions struct {
	TunnelOnly bool
	Confirmed  bool
}

// Quit stops every running component, or with TunnelOnly only closes the
// component tunnels.
func Quit(ctx context.Context, g Global, opts QuitOptions) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	launcher, info, err := a.activeLauncher()
	if err != nil {
		return err
	}

	if opts.TunnelOnly {
		if err := a.tunnels(info.NATIP).CloseAll(ctx, false); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Tunnels closed")
		return nil
	}

	err = confirmOrSkip(opts.Confirmed,
		fmt.Sprintf("This will stop every component running on %s.", info.ClusterName),
		"Any unsaved work will be lost. Continue?")
	if err != nil {
		return err
	}
	n, err := launcher.Destroy(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(stdout, "No running environment")
		return nil
	}
	fmt.Fprintf(stdout, "Stopped %d components\n", n)
	return nil
}
