package destroy

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/clusterous/internal/provisioning"
)

// CleanupError represents accumulated errors from cleanup operations.
type CleanupError struct {
	Errors []error
}

func (e *CleanupError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("cleanup encountered %d errors: %v", len(e.Errors), e.Errors)
}

func (e *CleanupError) Unwrap() error {
	if len(e.Errors) == 1 {
		return e.Errors[0]
	}
	return errors.Join(e.Errors...)
}

func (e *CleanupError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *CleanupError) HasErrors() bool {
	return len(e.Errors) > 0
}

// deleteAll lists resources of one kind and deletes each of them. It
// returns how many were deleted and the joined deletion errors.
func deleteAll[T any](
	ctx *provisioning.Context,
	kind string,
	list func() ([]*T, error),
	id func(*T) string,
	del func(context.Context, string) error,
) (int, error) {
	items, err := list()
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	deleted := 0
	var errs []error
	for _, item := range items {
		rid := id(item)
		provisioning.LogResourceDeleting(ctx.Observer, phase, kind, rid)
		if err := del(ctx, rid); err != nil {
			ctx.Observer.Printf("[Cleanup] Warning: Failed to delete %s %s: %v", kind, rid, err)
			errs = append(errs, fmt.Errorf("%s %q: %w", kind, rid, err))
			continue
		}
		provisioning.LogResourceDeleted(ctx.Observer, phase, kind, rid)
		deleted++
	}
	return deleted, errors.Join(errs...)
}
