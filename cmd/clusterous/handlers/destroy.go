package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/destroy"
)

// DestroyOptions are the flags of the destroy command.
type DestroyOptions struct {
	Confirmed         bool
	LeaveVolume       bool
	ForceDeleteVolume bool
}

// Destroy terminates the active cluster and removes its resources.
func Destroy(ctx context.Context, g Global, opts DestroyOptions) error {
	if opts.LeaveVolume && opts.ForceDeleteVolume {
		return errdefs.Configf("use --leave-shared-volume or --force-delete-shared-volume but not both at the same time")
	}

	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	info, err := a.store.Load()
	if err != nil {
		return err
	}

	err = confirmOrSkip(opts.Confirmed,
		fmt.Sprintf("This will destroy the cluster %s.", info.ClusterName),
		"All data on the cluster will be deleted. Continue?")
	if err != nil {
		return err
	}

	dopts := destroy.Options{LeaveVolume: opts.LeaveVolume, ForceDeleteVolume: opts.ForceDeleteVolume}
	if isTerminal() {
		err = runTUI(ctx, info.ClusterName, "destroy", []string{"destroy"}, func(ctx context.Context, observer provisioning.Observer) error {
			b, err := newApp(ctx, g, observer)
			if err != nil {
				return err
			}
			return b.ctrl.Terminate(ctx, dopts)
		})
	} else {
		err = a.ctrl.Terminate(ctx, dopts)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Cluster %q destroyed\n", info.ClusterName)
	return nil
}
