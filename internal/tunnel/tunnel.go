// Package tunnel manages SSH port forwards into a cluster.
//
// The controller has no public address. It is reached through the NAT, whose
// tunnel port is forwarded to the controller's SSH port. Three kinds of
// tunnel exist:
//
//   - ephemeral: an in-process forward living for one call
//   - permanent: a background ssh master process on this machine, keyed by a
//     control socket in the session directory
//   - controller-mediated: a background ssh process on the controller that
//     forwards a controller port to a private node
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/platform/ssh"
	"github.com/imamik/clusterous/internal/util/naming"
	"github.com/imamik/clusterous/internal/util/shell"
)

// Local is an open ephemeral forward.
type Local interface {
	Addr() string
	Close() error
}

// Remote runs commands on the controller.
type Remote interface {
	Execute(ctx context.Context, command string) (string, error)
	WriteFile(ctx context.Context, path string, data []byte, mode string) error
	Forward(ctx context.Context, remoteAddr string) (Local, error)
}

// SSHRemote adapts an ssh.Client to Remote.
type SSHRemote struct {
	*ssh.Client
}

func (r SSHRemote) Forward(ctx context.Context, remoteAddr string) (Local, error) {
	return r.Client.Forward(ctx, remoteAddr)
}

// Config describes how the controller is reached.
type Config struct {
	SessionDir string
	KeyFile    string
	User       string
	NATHost    string
	// Port is the NAT port forwarded to the controller, config.TunnelPort.
	Port int
}

// Manager opens and closes tunnels for one cluster.
type Manager struct {
	cfg    Config
	runner shell.Runner
	remote Remote
}

func NewManager(cfg Config, runner shell.Runner, remote Remote) *Manager {
	if cfg.Port == 0 {
		cfg.Port = config.TunnelPort
	}
	return &Manager{cfg: cfg, runner: runner, remote: remote}
}

// Ephemeral forwards a local port to remotePort on the controller for the
// duration of fn. The forward is closed when fn returns.
func (m *Manager) Ephemeral(ctx context.Context, remotePort int, fn func(addr string) error) (err error) {
	f, err := m.remote.Forward(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(remotePort)))
	if err != nil {
		return fmt.Errorf("failed to open tunnel to controller port %d: %w", remotePort, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return fn(f.Addr())
}

// OpenPermanent starts a background forward from localPort to remotePort on
// the controller. An existing tunnel with the same prefix and local port is
// closed first.
func (m *Manager) OpenPermanent(ctx context.Context, prefix string, localPort, remotePort int) error {
	if err := os.MkdirAll(m.cfg.SessionDir, 0o700); err != nil {
		return err
	}
	sock := naming.TunnelSocket(m.cfg.SessionDir, prefix, localPort)
	m.exit(ctx, sock)

	cmd := shell.Command{
		Name: "ssh",
		Args: []string{
			"-p", strconv.Itoa(m.cfg.Port),
			"-i", m.cfg.KeyFile,
			"-N", "-f", "-M",
			"-S", sock,
			"-o", "ExitOnForwardFailure=yes",
			"-o", "StrictHostKeyChecking=no",
			m.cfg.User + "@" + m.cfg.NATHost,
			"-L", fmt.Sprintf("%d:127.0.0.1:%d", localPort, remotePort),
		},
	}
	if out, err := m.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to open tunnel on local port %d: %w: %s", localPort, err, strings.TrimSpace(string(out)))
	}
	log.Printf("[Tunnel] localhost:%d -> controller:%d", localPort, remotePort)
	return nil
}

// ClosePermanent closes one permanent tunnel. Closing a missing tunnel is a no-op.
func (m *Manager) ClosePermanent(ctx context.Context, prefix string, localPort int) {
	m.exit(ctx, naming.TunnelSocket(m.cfg.SessionDir, prefix, localPort))
}

// CloseAll closes every permanent tunnel in the session directory, of any
// prefix. The central logging tunnel is kept unless includeLogging is set.
func (m *Manager) CloseAll(ctx context.Context, includeLogging bool) error {
	entries, err := os.ReadDir(m.cfg.SessionDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		host, port, ok := parseSocketName(e.Name())
		if !ok {
			continue
		}
		if port == config.CentralLoggingPort && !includeLogging {
			continue
		}
		path := filepath.Join(m.cfg.SessionDir, e.Name())
		_, _ = m.runner.Run(ctx, shell.Command{Name: "ssh", Args: []string{"-S", path, "-O", "exit", host}})
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[Tunnel] could not remove %s: %v", path, err)
		}
	}
	return nil
}

// OpenOnController forwards port on the controller to remotePort on a
// private host, so a permanent tunnel to the controller reaches that host.
func (m *Manager) OpenOnController(ctx context.Context, host string, port, remotePort int) error {
	key, err := os.ReadFile(m.cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}
	if err := m.remote.WriteFile(ctx, config.RemoteKeyFile, key, "600"); err != nil {
		return fmt.Errorf("failed to copy key to controller: %w", err)
	}

	sock := naming.RemoteTunnelSocket(port)
	_, _ = m.remote.Execute(ctx, shell.Quote("ssh", "-S", sock, "-O", "exit", host))

	create := shell.Quote(
		"ssh", "-4", "-i", config.RemoteKeyFile,
		"-f", "-N", "-M",
		"-S", sock,
		"-o", "ExitOnForwardFailure=yes",
		"-o", "StrictHostKeyChecking=no",
		m.cfg.User+"@"+host,
		"-L", fmt.Sprintf("%d:127.0.0.1:%d", port, remotePort),
	)
	if out, err := m.remote.Execute(ctx, create); err != nil {
		return fmt.Errorf("failed to open tunnel from controller to %s: %w: %s", host, err, strings.TrimSpace(out))
	}
	log.Printf("[Tunnel] controller:%d -> %s:%d", port, host, remotePort)
	return nil
}

// exit asks the ssh master behind sock to quit. Errors mean nothing was running.
func (m *Manager) exit(ctx context.Context, sock string) {
	_, _ = m.runner.Run(ctx, shell.Command{Name: "ssh", Args: []string{"-S", sock, "-O", "exit", m.cfg.NATHost}})
	if err := os.Remove(m.expand(sock)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[Tunnel] could not remove %s: %v", sock, err)
	}
}

// expand substitutes %h the way ssh does for control paths.
func (m *Manager) expand(sock string) string {
	return strings.ReplaceAll(sock, "%h", m.cfg.NATHost)
}

// parseSocketName splits {prefix}_tunnel_{host}_{port}.sock.
func parseSocketName(name string) (string, int, bool) {
	base, ok := strings.CutSuffix(name, ".sock")
	if !ok {
		return "", 0, false
	}
	_, rest, ok := strings.Cut(base, "_tunnel_")
	if !ok {
		return "", 0, false
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 {
		return "", 0, false
	}
	port, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, false
	}
	return rest[:i], port, true
}
