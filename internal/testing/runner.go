package testing

import (
	"context"
	"strings"
	"sync"

	"github.com/imamik/clusterous/internal/util/shell"
)

// FakeRunner records local commands instead of running them.
type FakeRunner struct {
	mu       sync.Mutex
	commands []shell.Command

	// Respond, when set, decides the output of each command.
	Respond func(cmd shell.Command) ([]byte, error)
}

var _ shell.Runner = (*FakeRunner)(nil)

func (r *FakeRunner) Run(_ context.Context, cmd shell.Command) ([]byte, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	respond := r.Respond
	r.mu.Unlock()

	if respond != nil {
		return respond(cmd)
	}
	return nil, nil
}

// Commands returns every recorded command.
func (r *FakeRunner) Commands() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shell.Command(nil), r.commands...)
}

// Lines returns the recorded commands rendered as shell lines.
func (r *FakeRunner) Lines() []string {
	var out []string
	for _, c := range r.Commands() {
		out = append(out, c.String())
	}
	return out
}

// Matching returns the recorded lines containing substr.
func (r *FakeRunner) Matching(substr string) []string {
	var out []string
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			out = append(out, l)
		}
	}
	return out
}
