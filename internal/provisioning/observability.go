package provisioning

import (
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"
)

// Observer defines the interface for structured observability during provisioning.
type Observer interface {
	Logger

	// Event emits a structured event
	Event(event Event)

	// Progress reports progress for a phase
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType
	Phase     string // e.g. "topology", "instances"
	Message   string
	Resource  string // resource name or id if applicable
	Timestamp time.Time
	Fields    map[string]string
}

// EventType represents the type of provisioning event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventResourceCreating EventType = "resource.creating"
	EventResourceCreated  EventType = "resource.created"
	EventResourceExists   EventType = "resource.exists"
	EventResourceFailed   EventType = "resource.failed"
	EventResourceDeleting EventType = "resource.deleting"
	EventResourceDeleted  EventType = "resource.deleted"

	// EventInstancesConverged is emitted when a launched group is running and tagged.
	EventInstancesConverged EventType = "instances.converged"

	EventValidationWarning EventType = "validation.warning"

	EventProgress EventType = "progress"
)

// ConsoleObserver implements Observer using the standard log package.
type ConsoleObserver struct {
	contextFields map[string]string
}

// NewConsoleObserver creates a new console-based observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{contextFields: make(map[string]string)}
}

func (o *ConsoleObserver) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Fields == nil {
		event.Fields = make(map[string]string)
	}
	for k, v := range o.contextFields {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}
	log.Print(FormatEvent(event))
}

func (o *ConsoleObserver) Progress(phase string, current, total int) {
	if total == 0 {
		log.Printf("[%s] Progress: %d/%d", phase, current, total)
		return
	}
	log.Printf("[%s] Progress: %d/%d (%d%%)", phase, current, total, current*100/total)
}

func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	merged := maps.Clone(o.contextFields)
	maps.Copy(merged, fields)
	return &ConsoleObserver{contextFields: merged}
}

// FormatEvent renders an event as one log line: "[phase] message resource=x (k=v, ...)".
func FormatEvent(event Event) string {
	var parts []string
	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}
	parts = append(parts, event.Message)
	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", event.Resource))
	}
	if len(event.Fields) > 0 {
		var fieldParts []string
		for _, k := range slices.Sorted(maps.Keys(event.Fields)) {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, event.Fields[k]))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}
	return strings.Join(parts, " ")
}

// Helper functions for common events

func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{Type: EventPhaseStarted, Phase: phase, Message: "starting"})
}

func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{Type: EventPhaseFailed, Phase: phase, Message: fmt.Sprintf("failed: %v", err)})
}

// LogResourceCreated logs a resource that was created by this run.
func LogResourceCreated(observer Observer, phase, resourceType, resourceName, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceCreated,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s created", resourceType),
		Fields:   map[string]string{"type": resourceType, "id": resourceID},
	})
}

// LogResourceExists logs a resource found from an earlier run.
func LogResourceExists(observer Observer, phase, resourceType, resourceName, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceExists,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s already exists", resourceType),
		Fields:   map[string]string{"type": resourceType, "id": resourceID},
	})
}

func LogResourceDeleting(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleting,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("deleting %s", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

func LogResourceDeleted(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleted,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s deleted", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogInstancesConverged logs a group of instances that reached running and was tagged.
func LogInstancesConverged(observer Observer, phase, role string, ids []string) {
	observer.Event(Event{
		Type:     EventInstancesConverged,
		Phase:    phase,
		Resource: role,
		Message:  fmt.Sprintf("%d %s instance(s) running", len(ids), role),
		Fields:   map[string]string{"ids": strings.Join(ids, ",")},
	})
}
