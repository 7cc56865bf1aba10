package tui

import (
	"errors"
	"fmt"
	"maps"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/clusterous/internal/provisioning"
)

// Observer forwards provisioning events to a running program as messages.
type Observer struct {
	send   func(tea.Msg)
	fields map[string]string
}

// NewObserver returns an observer delivering messages through send,
// usually (*tea.Program).Send.
func NewObserver(send func(tea.Msg)) *Observer {
	return &Observer{send: send, fields: map[string]string{}}
}

func (o *Observer) Printf(format string, v ...any) {
	o.send(LogMsg{Line: fmt.Sprintf(format, v...)})
}

func (o *Observer) Event(event provisioning.Event) {
	switch event.Type {
	case provisioning.EventPhaseStarted:
		o.send(PhaseMsg{Phase: event.Phase})
	case provisioning.EventPhaseCompleted:
		o.send(PhaseMsg{Phase: event.Phase, Done: true})
	case provisioning.EventPhaseFailed:
		o.send(PhaseMsg{Phase: event.Phase, Err: errors.New(event.Message)})
	default:
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
		if len(o.fields) > 0 {
			merged := maps.Clone(o.fields)
			maps.Copy(merged, event.Fields)
			event.Fields = merged
		}
		o.send(LogMsg{Line: provisioning.FormatEvent(event)})
	}
}

// Progress is shown through phase messages already.
func (o *Observer) Progress(string, int, int) {}

func (o *Observer) WithFields(fields map[string]string) provisioning.Observer {
	merged := maps.Clone(o.fields)
	maps.Copy(merged, fields)
	return &Observer{send: o.send, fields: merged}
}
