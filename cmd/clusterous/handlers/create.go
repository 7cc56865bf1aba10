package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/environment"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/ui/benchmarks"
	"github.com/imamik/clusterous/internal/ui/tui"
)

var (
	loadProfile = config.LoadClusterProfile
	runTUI      = tui.Run
)

// Create provisions the cluster described by the profile at profilePath.
// When run is set and the profile names an environment file, the
// environment is launched on the new cluster.
func Create(ctx context.Context, g Global, profilePath string, run bool) error {
	profile, err := loadProfile(profilePath)
	if err != nil {
		return err
	}
	req, env, err := environment.Request(profile)
	if err != nil {
		return err
	}

	var a *app
	provision := func(ctx context.Context, observer provisioning.Observer) error {
		var err error
		a, err = newApp(ctx, g, observer)
		if err != nil {
			return err
		}
		return a.ctrl.Provision(ctx, req)
	}

	if isTerminal() {
		err = runTUI(ctx, req.ClusterName, "create", benchmarks.PhaseOrder, provision)
	} else {
		err = provision(ctx, nil)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Cluster %q started\n", req.ClusterName)

	if !run || env == nil || len(env.Environment.Components) == 0 {
		return nil
	}

	log.Printf("Launching environment %q", env.Name)
	launcher, _, err := a.activeLauncher()
	if err != nil {
		return err
	}
	msg, err := launcher.Launch(ctx, env)
	if err != nil {
		return fmt.Errorf("failed to launch environment: %w", err)
	}
	printUserMessage(msg)
	return nil
}

func printUserMessage(msg string) {
	if msg == "" {
		return
	}
	fmt.Fprintf(stdout, "\nMessage for user:\n%s\n", msg)
}
