// Package shell runs local commands and quotes command lines for remote shells.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/alessio/shellescape"
)

// Command is a local process invocation.
type Command struct {
	Name string
	Args []string
	// Env is added to the current environment.
	Env map[string]string
}

// String renders the command as a quoted shell line, for logs and errors.
func (c Command) String() string {
	return shellescape.QuoteCommand(append([]string{c.Name}, c.Args...))
}

// Runner runs local commands and returns their combined output.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // callers build argv, no shell is involved
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s: %w", c.Name, err)
	}
	return out.Bytes(), nil
}

// Quote joins args into a single command line safe for a POSIX shell.
func Quote(args ...string) string {
	return shellescape.QuoteCommand(args)
}
