package handlers

import (
	"context"
	"fmt"
)

// Workon switches the local record to the live cluster name.
func Workon(ctx context.Context, g Global, name string) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	if err := a.ctrl.Workon(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Switched to %s\n", name)
	return nil
}

// AddNodes starts count nodes of role. instanceType overrides the type of
// the role's existing nodes.
func AddNodes(ctx context.Context, g Global, count int, role, instanceType string) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	n, err := a.ctrl.AddNodes(ctx, count, role, instanceType)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Added %d nodes\n", n)
	return nil
}

// RemoveNodes terminates count nodes of role.
func RemoveNodes(ctx context.Context, g Global, count int, role string) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	n, err := a.ctrl.RemoveNodes(ctx, count, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Removed %d nodes\n", n)
	return nil
}

// Logging opens the tunnel to the central logging dashboard.
func Logging(ctx context.Context, g Global) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	msg, err := a.ctrl.ConnectLogging(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, msg)
	return nil
}
