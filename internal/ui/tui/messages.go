// Package tui provides a Bubble Tea-based terminal UI for cluster provisioning.
package tui

// PhaseMsg reports that a provisioning phase started, finished or failed.
type PhaseMsg struct {
	Phase string
	Done  bool
	Err   error
}

// LogMsg carries one line of provisioning output.
type LogMsg struct {
	Line string
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }

// DoneMsg signals that the operation is complete.
type DoneMsg struct{}
