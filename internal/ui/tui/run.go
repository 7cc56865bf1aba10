package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/clusterous/internal/provisioning"
)

// ErrDetached is returned when the user leaves the dashboard before the
// operation finished.
var ErrDetached = errors.New("dashboard closed before the operation finished")

// Run shows the dashboard while fn runs. fn receives an observer that feeds
// the dashboard and a context cancelled when the user quits.
func Run(
	ctx context.Context,
	clusterName, action string,
	phases []string,
	fn func(ctx context.Context, observer provisioning.Observer) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(clusterName, action, phases)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		if err := fn(ctx, NewObserver(p.Send)); err != nil {
			p.Send(ErrMsg{Err: err})
			return
		}
		p.Send(DoneMsg{})
	}()

	finalModel, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}

	fm, ok := finalModel.(Model)
	if !ok {
		return ctx.Err()
	}
	if fm.Err != nil {
		return fm.Err
	}
	if !fm.Done {
		return ErrDetached
	}
	return nil
}
