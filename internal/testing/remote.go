package testing

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/imamik/clusterous/internal/tunnel"
)

// FakeRemote stands in for the controller. Forwards resolve through Targets,
// so an ephemeral tunnel to a remote port reaches a local test server.
type FakeRemote struct {
	mu       sync.Mutex
	commands []string
	files    map[string][]byte
	open     int

	// Targets maps a controller port to a local address.
	Targets map[int]string
	// ExecErr, when set, fails matching commands.
	ExecErr func(cmd string) error
}

var _ tunnel.Remote = (*FakeRemote)(nil)

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{files: map[string][]byte{}, Targets: map[int]string{}}
}

func (r *FakeRemote) Execute(_ context.Context, cmd string) (string, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	execErr := r.ExecErr
	r.mu.Unlock()

	if execErr != nil {
		if err := execErr(cmd); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (r *FakeRemote) WriteFile(_ context.Context, path string, data []byte, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = append([]byte(nil), data...)
	return nil
}

func (r *FakeRemote) Forward(_ context.Context, remoteAddr string) (tunnel.Local, error) {
	_, portStr, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)

	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.Targets[port]
	if !ok {
		return nil, fmt.Errorf("nothing listening on controller port %d", port)
	}
	r.open++
	return &fakeLocal{addr: addr, remote: r}, nil
}

// Commands returns every executed command.
func (r *FakeRemote) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

// Matching returns executed commands containing substr.
func (r *FakeRemote) Matching(substr string) []string {
	var out []string
	for _, c := range r.Commands() {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

// File returns a written file.
func (r *FakeRemote) File(path string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[path]
}

// OpenForwards counts forwards not yet closed.
func (r *FakeRemote) OpenForwards() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

type fakeLocal struct {
	addr   string
	remote *FakeRemote
	once   sync.Once
}

func (l *fakeLocal) Addr() string { return l.addr }

func (l *fakeLocal) Close() error {
	l.once.Do(func() {
		l.remote.mu.Lock()
		l.remote.open--
		l.remote.mu.Unlock()
	})
	return nil
}
