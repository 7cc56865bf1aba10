package hcloud

import (
	"fmt"
	"sync"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
)

// DefaultLocation is used when a zone is given only as a suffix such as "a".
const DefaultLocation = "nbg1"

// Client implements cloud.Provider on Hetzner Cloud.
type Client struct {
	client   *hcloud.Client
	timeouts *config.Timeouts
	location string

	// mu serialises read-modify-write of network labels.
	mu sync.Mutex
}

var _ cloud.Provider = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeouts sets custom timeouts for the client.
func WithTimeouts(t *config.Timeouts) ClientOption {
	return func(c *Client) {
		c.timeouts = t
	}
}

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithLocation sets the location used for short zone names.
func WithLocation(location string) ClientOption {
	return func(c *Client) {
		if location != "" {
			c.location = location
		}
	}
}

// NewClient creates a new Client with optional configuration.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		client:   hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("clusterous", "")),
		timeouts: config.LoadTimeouts(),
		location: DefaultLocation,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return config.ProviderHCloud }

// Zone maps an availability zone suffix to a location name.
func (c *Client) Zone(zone string) string {
	if len(zone) > 1 {
		return zone
	}
	return c.location
}

func providerErr(op string, err error) error {
	return errdefs.Provider(op, err)
}

func notFound(kind, id string) error {
	return errdefs.Provider("lookup "+kind, fmt.Errorf("%s %s not found", kind, id))
}
