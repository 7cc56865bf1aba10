package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Forward is an in-process local port forward. It lives until Close.
type Forward struct {
	addr     string
	listener net.Listener
	client   *ssh.Client
	remote   string
	wg       sync.WaitGroup
	once     sync.Once
}

// Forward listens on an ephemeral local port and forwards every connection to
// remoteAddr as seen from the SSH host.
func (c *Client) Forward(ctx context.Context, remoteAddr string) (*Forward, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to listen for forward: %w", err)
	}

	f := &Forward{addr: l.Addr().String(), listener: l, client: client, remote: remoteAddr}
	f.wg.Add(1)
	go f.serve()
	return f, nil
}

// Addr is the local listen address, 127.0.0.1:<port>.
func (f *Forward) Addr() string { return f.addr }

func (f *Forward) serve() {
	defer f.wg.Done()
	for {
		local, err := f.listener.Accept()
		if err != nil {
			return
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.pipe(local)
		}()
	}
}

func (f *Forward) pipe(local net.Conn) {
	defer func() { _ = local.Close() }()
	remote, err := f.client.Dial("tcp", f.remote)
	if err != nil {
		log.Printf("[SSH] forward to %s failed: %v", f.remote, err)
		return
	}
	defer func() { _ = remote.Close() }()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}

// Close stops listening and tears down the SSH connection. Safe to call twice.
func (f *Forward) Close() error {
	var err error
	f.once.Do(func() {
		err = errors.Join(f.listener.Close(), f.client.Close())
		f.wg.Wait()
	})
	return err
}
