package topology

import (
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/provisioning"
)

// ensureOperation finds a resource by tag and creates it on a miss.
type ensureOperation[T any] struct {
	Kind   string
	Name   string
	Find   func() ([]*T, error)
	Create func() (*T, error)
	ID     func(*T) string
}

// execute returns the resource and whether it was created by this call.
func (op *ensureOperation[T]) execute(ctx *provisioning.Context) (*T, bool, error) {
	existing, err := cloud.First(op.Find())
	if err != nil {
		return nil, false, errdefs.Provider("find "+op.Kind+" "+op.Name, err)
	}
	if existing != nil {
		provisioning.LogResourceExists(ctx.Observer, phase, op.Kind, op.Name, op.ID(existing))
		return existing, false, nil
	}

	created, err := op.Create()
	if err != nil {
		return nil, false, errdefs.Provider("create "+op.Kind+" "+op.Name, err)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, op.Kind, op.Name, op.ID(created))
	return created, true, nil
}
