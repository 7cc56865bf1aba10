package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/clusterous/internal/ui/benchmarks"
)

const maxLogLines = 6

// phaseTitles are the display names of the provisioning phases.
var phaseTitles = map[string]string{
	"preflight":    "Preflight checks",
	"topology":     "Network topology",
	"volume-check": "Shared volume check",
	"instances":    "Instances",
	"volume":       "Shared volume",
	"configure":    "Configure nodes",
	"finalize":     "Finalize",
	"destroy":      "Destroy resources",
}

// Phase is one pipeline phase as displayed.
type Phase struct {
	Name   string
	Key    string
	Done   bool
	Active bool
	Err    error
}

// Model is the Bubble Tea model for the provisioning dashboard.
type Model struct {
	ClusterName string
	Action      string

	Phases  []Phase
	History []benchmarks.PhaseRecord
	Logs    []string

	// ETA
	EstimatedRemaining time.Duration
	PerformanceScale   float64
	StartTime          time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool
	Quit   bool

	now func() time.Time
}

// NewModel creates a dashboard for the given action ("create", "destroy")
// running the phases keyed by phases, in order.
func NewModel(clusterName, action string, phases []string) Model {
	m := Model{
		ClusterName:      clusterName,
		Action:           action,
		StartTime:        time.Now(),
		PerformanceScale: 1.0,
		now:              time.Now,
	}
	for _, key := range phases {
		m.Phases = append(m.Phases, Phase{Name: phaseTitle(key), Key: key})
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case PhaseMsg:
		m.updatePhase(msg)

	case LogMsg:
		m.Logs = append(m.Logs, msg.Line)
		if len(m.Logs) > maxLogLines {
			m.Logs = m.Logs[len(m.Logs)-maxLogLines:]
		}

	case TickMsg:
		m.SpinnerFrame++
		m.updateETA()
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		m.EstimatedRemaining = 0
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) updatePhase(msg PhaseMsg) {
	idx := -1
	for i, phase := range m.Phases {
		if phase.Key == msg.Phase {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	for i := 0; i < idx; i++ {
		m.Phases[i].Done = true
		m.Phases[i].Active = false
	}

	now := m.now()
	switch {
	case msg.Err != nil:
		m.Phases[idx].Err = msg.Err
		m.Phases[idx].Active = false
		m.endRecord(msg.Phase, now, msg.Err)
	case msg.Done:
		m.Phases[idx].Done = true
		m.Phases[idx].Active = false
		m.endRecord(msg.Phase, now, nil)
	default:
		m.Phases[idx].Active = true
		m.History = append(m.History, benchmarks.PhaseRecord{Phase: msg.Phase, StartedAt: now})
	}
}

func (m *Model) endRecord(phase string, at time.Time, err error) {
	for i := len(m.History) - 1; i >= 0; i-- {
		if m.History[i].Phase == phase && !m.History[i].Done() {
			m.History[i].EndedAt = at
			m.History[i].Err = err
			return
		}
	}
	m.History = append(m.History, benchmarks.PhaseRecord{Phase: phase, StartedAt: at, EndedAt: at, Err: err})
}

// current returns the running phase record, if any.
func (m Model) current() (benchmarks.PhaseRecord, bool) {
	for i := len(m.History) - 1; i >= 0; i-- {
		if !m.History[i].Done() {
			return m.History[i], true
		}
	}
	return benchmarks.PhaseRecord{}, false
}

func (m *Model) updateETA() {
	rec, ok := m.current()
	if !ok || m.Done {
		m.EstimatedRemaining = 0
		return
	}
	elapsed := rec.Duration(m.now())
	m.PerformanceScale = benchmarks.PerformanceScale(rec.Phase, elapsed, m.History)
	m.EstimatedRemaining = benchmarks.EstimateRemainingWithScale(rec.Phase, elapsed, m.History, m.PerformanceScale)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
