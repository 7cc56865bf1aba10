package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/clusterous/internal/ui/benchmarks"
)

const (
	defaultBarWidth = 40
	phaseColumn     = 22
)

func renderView(m Model) string {
	sections := []string{
		header(m),
		progressLine(m),
		phaseList(m),
	}
	if len(m.Logs) > 0 {
		sections = append(sections, logTail(m))
	}
	sections = append(sections, footer(m))
	return strings.Join(sections, "\n") + "\n"
}

func header(m Model) string {
	title := titleStyle.Render(fmt.Sprintf("clusterous %s: %s", m.Action, m.ClusterName))

	var status string
	switch rec, running := m.current(); {
	case m.Err != nil:
		status = failedStyle.Render("Error: " + m.Err.Error())
	case m.Done:
		status = readyStyle.Render("Done")
	case running:
		status = activeStyle.Render(currentSpinner(m.SpinnerFrame)) + " " + warningStyle.Render(phaseTitle(rec.Phase))
	default:
		status = dimStyle.Render("Starting...")
	}
	return title + " " + status
}

func progressLine(m Model) string {
	width := defaultBarWidth
	if m.Width > 0 && m.Width < 2*defaultBarWidth {
		width = max(m.Width-30, 10)
	}
	progress := calculateProgress(m)
	filled := min(int(float64(width)*progress), width)
	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", width-filled))

	line := fmt.Sprintf("  %s %3d%%", bar, int(progress*100))
	if m.EstimatedRemaining > 0 {
		line += " ETA " + formatDuration(m.EstimatedRemaining)
	}
	if m.PerformanceScale != 0 && m.PerformanceScale != 1.0 {
		line += fmt.Sprintf("  speed x%.2f", m.PerformanceScale)
	}
	return line
}

func phaseList(m Model) string {
	rows := []string{sectionStyle.Render("  Phases")}
	now := m.now()
	name := lipgloss.NewStyle().Width(phaseColumn)
	for _, p := range m.Phases {
		marker, style := phaseMarker(p, m.SpinnerFrame)
		took := ""
		if rec, ok := m.record(p.Key); ok {
			took = formatDuration(rec.Duration(now))
		}
		rows = append(rows, "    "+style.Render(marker)+" "+style.Inherit(name).Render(p.Name)+" "+dimStyle.Render(took))
	}
	return strings.Join(rows, "\n")
}

func phaseMarker(p Phase, frame int) (string, lipgloss.Style) {
	switch {
	case p.Err != nil:
		return crossMark, failedStyle
	case p.Done:
		return checkMark, readyStyle
	case p.Active:
		return currentSpinner(frame), activeStyle
	}
	return pending, dimStyle
}

func logTail(m Model) string {
	limit := 100
	if m.Width > 10 {
		limit = m.Width - 6
	}
	rows := []string{sectionStyle.Render("  Recent Output")}
	for _, line := range m.Logs {
		if r := []rune(line); len(r) > limit {
			line = string(r[:limit-3]) + "..."
		}
		rows = append(rows, "    "+dimStyle.Render(line))
	}
	return strings.Join(rows, "\n")
}

func footer(m Model) string {
	return footerStyle.Render(fmt.Sprintf("  elapsed: %s  |  q: quit", formatDuration(m.now().Sub(m.StartTime))))
}

func phaseTitle(key string) string {
	if title, ok := phaseTitles[key]; ok {
		return title
	}
	return key
}

// record returns the latest run of phase key.
func (m Model) record(key string) (benchmarks.PhaseRecord, bool) {
	for i := len(m.History) - 1; i >= 0; i-- {
		if m.History[i].Phase == key {
			return m.History[i], true
		}
	}
	return benchmarks.PhaseRecord{}, false
}

func currentSpinner(frame int) string {
	if len(spinnerFrames) == 0 {
		return spinner
	}
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

func calculateProgress(m Model) float64 {
	switch {
	case m.Done:
		return 1
	case len(m.Phases) == 0:
		return 0
	}
	var done int
	for _, p := range m.Phases {
		if p.Done {
			done++
		}
	}
	return float64(done) / float64(len(m.Phases))
}

// formatDuration renders d as "42s", "3m7s" or "1h5m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
