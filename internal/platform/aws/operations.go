package aws

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/util/retry"
)

// deleteWithRetry runs del until it succeeds or the resource is gone.
// Dependency violations are retried with backoff, anything else is fatal.
func (c *Client) deleteWithRetry(ctx context.Context, kind, id string, del func() error) error {
	err := retry.WithExponentialBackoff(ctx, func() error {
		err := del()
		switch {
		case err == nil, IsNotFound(err):
			return nil
		case isDependencyViolation(err):
			return err
		default:
			return retry.Fatal(err)
		}
	},
		retry.WithMaxRetries(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay),
		retry.WithOnRetry(func(attempt int, _ error, delay time.Duration) {
			log.Printf("[AWS] %s %s still has dependents, retrying in %s (attempt %d)", kind, id, delay, attempt)
		}))
	if err != nil {
		return errdefs.Provider(fmt.Sprintf("delete %s %s", kind, id), err)
	}
	return nil
}

func providerErr(op string, err error) error {
	return errdefs.Provider(op, err)
}
