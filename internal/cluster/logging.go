package cluster

import (
	"context"
	"fmt"

	"github.com/imamik/clusterous/internal/config"
)

// ConnectLogging opens a tunnel from this machine to the central logging
// instance through the controller and returns a message for the user.
func (c *Controller) ConnectLogging(ctx context.Context) (string, error) {
	info, err := c.active()
	if err != nil {
		return "", err
	}
	if info.CentralLoggingIP == "" {
		return "No logging system exists", nil
	}
	t, err := c.tunnels(info)
	if err != nil {
		return "", err
	}

	port := config.CentralLoggingPort
	if err := t.OpenOnController(ctx, info.CentralLoggingIP, port, port); err != nil {
		return "", err
	}
	if err := t.OpenPermanent(ctx, "", port, port); err != nil {
		return "", fmt.Errorf("failed to create tunnel to central logging system: %w", err)
	}
	return fmt.Sprintf("The logging system is available at this URL:\nhttp://localhost:%d", port), nil
}
