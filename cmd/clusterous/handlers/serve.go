package handlers

import (
	"context"

	"github.com/imamik/clusterous/internal/api"
)

// ServeOptions configures the HTTP front-end.
type ServeOptions struct {
	Addr        string
	Token       string
	CORSOrigins []string
}

// Serve exposes the cluster lifecycle over HTTP until ctx is cancelled.
func Serve(ctx context.Context, g Global, opts ServeOptions) error {
	a, err := newApp(ctx, g, nil)
	if err != nil {
		return err
	}
	var serverOpts []api.Option
	if opts.Token != "" {
		serverOpts = append(serverOpts, api.WithToken(opts.Token))
	}
	if len(opts.CORSOrigins) > 0 {
		serverOpts = append(serverOpts, api.WithCORS(opts.CORSOrigins...))
	}
	return api.NewServer(a.ctrl, a.metrics, serverOpts...).ListenAndServe(ctx, opts.Addr)
}
