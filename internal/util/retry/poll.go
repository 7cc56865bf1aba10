package retry

import (
	"context"
	"errors"
	"time"

	"github.com/imamik/clusterous/internal/errdefs"
)

// ErrTimeout is wrapped by the error Until returns when time runs out.
var ErrTimeout = errors.New("timed out waiting for condition")

// Condition reports whether the awaited state has been reached. A non-nil
// error stops polling and is returned unchanged.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it reports
// true, returns an error, the timeout elapses or ctx is cancelled.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errdefs.New(errdefs.KindTimeout, "", errors.Join(ErrTimeout, errors.New("waited "+timeout.String())))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
