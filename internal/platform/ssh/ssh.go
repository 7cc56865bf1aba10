package ssh

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/clusterous/internal/util/retry"
	"github.com/imamik/clusterous/internal/util/shell"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 20
	defaultRetryDelay  = 5 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout is the timeout for establishing the TCP connection.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection attempts.
	MaxRetries int

	// RetryDelay is the initial delay between attempts.
	RetryDelay time.Duration

	// HostKeyCallback defaults to ssh.InsecureIgnoreHostKey.
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on a remote server via SSH. The key is parsed once;
// connections are made per call.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // hosts are freshly launched
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{
		config: &configCopy,
		signer: signer,
	}, nil
}

// Addr is the host:port the client connects to.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Execute runs a command on the remote host and returns its combined output.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(ctx, client, command, nil)
}

// WriteFile writes data to path on the remote host with the given mode.
func (c *Client) WriteFile(ctx context.Context, path string, data []byte, mode string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	cmd := fmt.Sprintf("cat > %s && chmod %s %s", shell.Quote(path), shell.Quote(mode), shell.Quote(path))
	_, err = c.runCommand(ctx, client, cmd, data)
	return err
}

func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User: c.config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(c.signer),
		},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := c.Addr()
	var client *ssh.Client
	err := retry.WithExponentialBackoff(ctx, func() error {
		var dialErr error
		client, dialErr = dial(ctx, addr, config)
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s after %d attempts: %w",
			addr, c.config.MaxRetries, err)
	}
	return client, nil
}

// dial is ssh.Dial with a context-aware TCP dial.
func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *Client) runCommand(ctx context.Context, client *ssh.Client, command string, stdin []byte) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}
	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return out.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			return out.String(), fmt.Errorf("command failed on %s: %w\nCommand: %s\nOutput: %s",
				c.config.Host, err, command, out.String())
		}
		return out.String(), nil
	}
}
