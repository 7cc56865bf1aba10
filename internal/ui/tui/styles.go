package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorOK      = lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#22c55e"}
	colorFailed  = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#ef4444"}
	colorRunning = lipgloss.AdaptiveColor{Light: "#a16207", Dark: "#eab308"}
	colorSection = lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#3b82f6"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"}

	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSection).MarginTop(1)
	readyStyle   = lipgloss.NewStyle().Foreground(colorOK)
	failedStyle  = lipgloss.NewStyle().Foreground(colorFailed)
	warningStyle = lipgloss.NewStyle().Foreground(colorRunning)
	dimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	activeStyle  = lipgloss.NewStyle().Bold(true)
	footerStyle  = dimStyle.MarginTop(1)

	progressBarFull  = readyStyle
	progressBarEmpty = dimStyle
)

// Phase markers. A running phase cycles through spinnerFrames.
const (
	checkMark = "[OK]"
	crossMark = "[!!]"
	spinner   = "[..]"
	pending   = "[  ]"
)

var spinnerFrames = []string{"[⠋ ]", "[⠙ ]", "[⠹ ]", "[⠸ ]", "[⠼ ]", "[⠴ ]", "[⠦ ]", "[⠧ ]", "[⠇ ]", "[⠏ ]"}
