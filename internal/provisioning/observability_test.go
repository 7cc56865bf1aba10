package provisioning

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockObserver is a test implementation of Observer that records events.
type MockObserver struct {
	events   []Event
	messages []string
	fields   map[string]string
}

func NewMockObserver() *MockObserver {
	return &MockObserver{
		events:   make([]Event, 0),
		messages: make([]string, 0),
		fields:   make(map[string]string),
	}
}

func (m *MockObserver) Printf(format string, v ...any) {
	m.messages = append(m.messages, fmt.Sprintf(format, v...))
}

func (m *MockObserver) Event(event Event) {
	m.events = append(m.events, event)
}

func (m *MockObserver) Progress(phase string, current, total int) {
	m.Event(Event{
		Type:    EventProgress,
		Phase:   phase,
		Message: "progress",
		Fields: map[string]string{
			"current": fmt.Sprint(current),
			"total":   fmt.Sprint(total),
		},
	})
}

func (m *MockObserver) WithFields(fields map[string]string) Observer {
	newObserver := NewMockObserver()
	newObserver.fields = make(map[string]string)
	for k, v := range m.fields {
		newObserver.fields[k] = v
	}
	for k, v := range fields {
		newObserver.fields[k] = v
	}
	return newObserver
}

// captureLog redirects the standard logger for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	flags, out := log.Flags(), log.Writer()
	log.SetFlags(0)
	log.SetOutput(&buf)
	t.Cleanup(func() {
		log.SetFlags(flags)
		log.SetOutput(out)
	})
	return &buf
}

func TestConsoleObserver(t *testing.T) {
	buf := captureLog(t)
	observer := NewConsoleObserver().WithFields(map[string]string{"cluster": "demo"})

	LogResourceCreated(observer, "topology", "subnet", "demo-private-subnet-a", "subnet-0001")
	observer.Progress("instances", 1, 4)
	observer.Progress("finalize", 0, 0)
	observer.Printf("[volume] attaching %s", "vol-0001")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "[topology] subnet created resource=demo-private-subnet-a (cluster=demo, id=subnet-0001, type=subnet)", lines[0])
	assert.Equal(t, "[instances] Progress: 1/4 (25%)", lines[1])
	assert.Equal(t, "[finalize] Progress: 0/0", lines[2])
	assert.Equal(t, "[volume] attaching vol-0001", lines[3])
}

func TestConsoleObserver_EventFieldsWin(t *testing.T) {
	buf := captureLog(t)
	observer := NewConsoleObserver().WithFields(map[string]string{"type": "context"})

	LogResourceDeleted(observer, "destroy", "volume", "demo-shared-volume")
	assert.Contains(t, buf.String(), "(type=volume)")
}

func TestMockObserver_Events(t *testing.T) {
	observer := NewMockObserver()

	LogPhaseStart(observer, "destroy")
	LogResourceDeleting(observer, "destroy", "network", "demo-vpc")
	LogResourceExists(observer, "topology", "network", "demo-vpc", "vpc-0001")
	LogPhaseComplete(observer, "destroy", 2*time.Second)

	require.Len(t, observer.events, 4)
	assert.Equal(t, EventPhaseStarted, observer.events[0].Type)
	assert.Equal(t, "destroy", observer.events[0].Phase)
	assert.Equal(t, EventResourceDeleting, observer.events[1].Type)
	assert.Equal(t, "demo-vpc", observer.events[1].Resource)
	assert.Equal(t, "vpc-0001", observer.events[2].Fields["id"])
	assert.Equal(t, "completed in 2s", observer.events[3].Message)
}

func TestObserver_ImplementsLogger(t *testing.T) {
	var logger Logger = NewConsoleObserver()
	assert.NotNil(t, logger)
}

func TestLogHelpers(t *testing.T) {
	observer := NewMockObserver()

	// Test all log helpers
	LogPhaseStart(observer, "phase1")
	LogPhaseComplete(observer, "phase1", time.Second)
	LogPhaseFailed(observer, "phase2", assert.AnError)
	LogResourceCreated(observer, "instances", "instance", "nat", "i-123")
	LogResourceExists(observer, "topology", "network", "vpc", "net-1")
	LogResourceDeleted(observer, "destroy", "volume", "vol-1")
	LogInstancesConverged(observer, "instances", "worker", []string{"i-1", "i-2"})

	require.Len(t, observer.events, 7)
	last := observer.events[6]
	assert.Equal(t, EventInstancesConverged, last.Type)
	assert.Equal(t, "worker", last.Resource)
}

func TestFormatEvent_SortsFields(t *testing.T) {
	msg := FormatEvent(Event{
		Type:    EventResourceCreated,
		Phase:   "topology",
		Message: "created subnet",
		Fields:  map[string]string{"zone": "a", "cidr": "10.0.1.0/24"},
	})
	assert.Contains(t, msg, "[topology] created subnet")
	assert.Less(t, strings.Index(msg, "cidr="), strings.Index(msg, "zone="))
}
