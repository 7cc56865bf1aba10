package marathon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("scheduler API returned status %d", e.Status)
	}
	return fmt.Sprintf("scheduler API returned status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Option configures a client.
type Option func(*base)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) { b.httpClient = c }
}

type base struct {
	endpoint   string
	httpClient *http.Client
}

func newBase(endpoint string, opts []Option) base {
	b := base{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := b.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &msg)
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response of %s %s: %w", method, path, err)
	}
	return nil
}

// Client talks to the Marathon REST API.
type Client struct {
	base
}

// NewClient creates a Marathon client for endpoint, e.g. http://127.0.0.1:8080.
func NewClient(endpoint string, opts ...Option) *Client {
	return &Client{base: newBase(endpoint, opts)}
}

// ListApps returns every app.
func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	var resp struct {
		Apps []App `json:"apps"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/apps", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Apps, nil
}

// GetApp returns an app with its tasks, or nil when it does not exist.
func (c *Client) GetApp(ctx context.Context, name string) (*App, error) {
	var resp struct {
		App App `json:"app"`
	}
	err := c.do(ctx, http.MethodGet, "/v2/apps"+AppID(name), url.Values{"embed": {"app.tasks"}}, nil, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp.App, nil
}

// CreateApp submits a new app.
func (c *Client) CreateApp(ctx context.Context, app App) (*App, error) {
	app.ID = AppID(app.ID)
	var created App
	if err := c.do(ctx, http.MethodPost, "/v2/apps", nil, app, &created); err != nil {
		return nil, fmt.Errorf("failed to create app %s: %w", app.Name(), err)
	}
	return &created, nil
}

// ScaleApp sets the instance count of an app, overriding running deployments.
func (c *Client) ScaleApp(ctx context.Context, name string, instances int) error {
	body := map[string]int{"instances": instances}
	if err := c.do(ctx, http.MethodPut, "/v2/apps"+AppID(name), url.Values{"force": {"true"}}, body, nil); err != nil {
		return fmt.Errorf("failed to scale app %s: %w", AppName(name), err)
	}
	return nil
}

// KillTasks kills the app's tasks on host. With scale the app's instance
// count is reduced so the tasks are not restarted elsewhere.
func (c *Client) KillTasks(ctx context.Context, name, host string, scale bool) error {
	q := url.Values{"host": {host}, "scale": {strconv.FormatBool(scale)}}
	if err := c.do(ctx, http.MethodDelete, "/v2/apps"+AppID(name)+"/tasks", q, nil, nil); err != nil {
		return fmt.Errorf("failed to kill tasks of %s on %s: %w", AppName(name), host, err)
	}
	return nil
}

// DeleteApp destroys an app. Deleting a missing app is not an error.
func (c *Client) DeleteApp(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/v2/apps"+AppID(name), url.Values{"force": {"true"}}, nil, nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete app %s: %w", AppName(name), err)
	}
	return nil
}

// MesosClient talks to the Mesos master.
type MesosClient struct {
	base
}

// NewMesosClient creates a client for endpoint, e.g. http://127.0.0.1:5050.
func NewMesosClient(endpoint string, opts ...Option) *MesosClient {
	return &MesosClient{base: newBase(endpoint, opts)}
}

// State returns the master's view of the cluster.
func (c *MesosClient) State(ctx context.Context) (*MesosState, error) {
	var raw struct {
		Slaves *[]Slave `json:"slaves"`
	}
	if err := c.do(ctx, http.MethodGet, "/master/state.json", nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to query mesos state: %w", err)
	}
	if raw.Slaves == nil {
		return nil, errors.New("mesos state has no slaves field")
	}
	return &MesosState{Slaves: *raw.Slaves}, nil
}
