package hcloud

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/clusterous/internal/util/retry"
)

// deleteOperation encapsulates deletion logic for any hcloud resource.
// It succeeds if the resource is already gone and retries while it is locked.
type deleteOperation[T any] struct {
	ID           int64
	ResourceType string

	Get    func(ctx context.Context, id int64) (T, *hcloud.Response, error)
	Delete func(ctx context.Context, resource T) error
}

func (op *deleteOperation[T]) Execute(ctx context.Context, c *Client) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Terminate)
	defer cancel()

	err := retry.WithExponentialBackoff(ctx, func() error {
		resource, _, err := op.Get(ctx, op.ID)
		if err != nil {
			return retry.Fatal(fmt.Errorf("failed to get %s: %w", op.ResourceType, err))
		}
		if reflect.ValueOf(resource).IsNil() {
			return nil
		}

		err = op.Delete(ctx, resource)
		switch {
		case err == nil, IsNotFound(err):
			return nil
		case isResourceLocked(err), isResourceInUse(err):
			return err
		default:
			return retry.Fatal(err)
		}
	},
		retry.WithMaxRetries(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
	if err != nil {
		return providerErr(fmt.Sprintf("delete %s %d", op.ResourceType, op.ID), err)
	}
	return nil
}

// withLockRetry retries fn while the target resource is locked.
func (c *Client) withLockRetry(ctx context.Context, fn func() error) error {
	return retry.WithExponentialBackoff(ctx, func() error {
		err := fn()
		if err != nil && !isResourceLocked(err) {
			return retry.Fatal(err)
		}
		return err
	},
		retry.WithMaxRetries(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
}

// waitForActions waits for one or more actions to complete.
func (c *Client) waitForActions(ctx context.Context, actions ...*hcloud.Action) error {
	var pending []*hcloud.Action
	for _, a := range actions {
		if a != nil {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	return c.client.Action.WaitFor(ctx, pending...)
}
