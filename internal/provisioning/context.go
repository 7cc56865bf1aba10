package provisioning

import (
	"context"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/metrics"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/session"
)

// Context wraps all dependencies and state needed for a provisioning phase.
type Context struct {
	context.Context
	Request  *Request
	Config   *config.Config
	State    *State
	Cloud    cloud.Provider
	Session  *session.Store
	Observer Observer
	Logger   Logger
	Timeouts *config.Timeouts
	Metrics  *metrics.Metrics

	// Configurer, Dial and Registry are only needed by the phases that
	// configure hosts and prepare the registry bucket.
	Configurer Configurer
	Dial       Dialer
	Registry   BucketEnsurer
}

// NewContext creates a new provisioning context with a console observer
// and timeouts read from the environment.
func NewContext(
	ctx context.Context,
	req *Request,
	cfg *config.Config,
	provider cloud.Provider,
	store *session.Store,
) *Context {
	observer := NewConsoleObserver()
	return &Context{
		Context:  ctx,
		Request:  req,
		Config:   cfg,
		State:    NewState(),
		Cloud:    provider,
		Session:  store,
		Observer: observer,
		Logger:   observer,
		Timeouts: config.LoadTimeouts(),
	}
}

// ClusterName is the name of the cluster being provisioned.
func (c *Context) ClusterName() string {
	if c.Request == nil {
		return ""
	}
	return c.Request.ClusterName
}
