package handlers

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/imamik/clusterous/internal/cluster"
)

// Colors matching internal/ui/tui/styles.go palette.
var (
	statusColorGreen  = lipgloss.Color("#22c55e")
	statusColorYellow = lipgloss.Color("#eab308")
	statusColorBlue   = lipgloss.Color("#3b82f6")
	statusColorDim    = lipgloss.Color("#6b7280")
	statusColorWhite  = lipgloss.Color("#f9fafb")
)

var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(statusColorWhite)

	statusSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(statusColorBlue)

	statusDimStyle = lipgloss.NewStyle().
			Foreground(statusColorDim)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(statusColorGreen)

	statusPendingStyle = lipgloss.NewStyle().
				Foreground(statusColorYellow)
)

// renderStatus produces the human readable status block.
func renderStatus(st *cluster.Status) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(statusTitleStyle.Render(fmt.Sprintf("  %s", st.Name)))
	b.WriteString("  ")
	b.WriteString(renderState(st.State))
	b.WriteString("\n")
	b.WriteString(statusDimStyle.Render("  " + strings.Repeat("═", 30)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "    %d instances running\n", st.InstanceCount)

	b.WriteString("\n")
	b.WriteString(statusSectionStyle.Render("  Instances"))
	b.WriteString("\n")
	if st.Controller != nil {
		fmt.Fprintf(&b, "    %-16s %-14s up %s\n", "controller", st.Controller.Type, formatUptime(st.Controller.Uptime))
	}
	if st.NAT != nil {
		fmt.Fprintf(&b, "    %-16s %-14s %s\n", "nat", st.NAT.Type, st.NAT.IP)
	}
	if st.Logging != nil {
		fmt.Fprintf(&b, "    %-16s %-14s %s\n", "central logging", st.Logging.Type, st.Logging.IP)
	}
	roles := lo.Keys(st.Nodes)
	slices.Sort(roles)
	for _, role := range roles {
		pool := st.Nodes[role]
		fmt.Fprintf(&b, "    %-16s %-14s x%d\n", role, pool.Type, pool.Count)
	}

	if st.Volume != nil {
		b.WriteString("\n")
		b.WriteString(statusSectionStyle.Render("  Shared volume"))
		b.WriteString("\n")
		owner := "created with the cluster"
		if st.Volume.Borrowed {
			owner = "existed before the cluster"
		}
		fmt.Fprintf(&b, "    %s (%s)\n", st.Volume.ID, owner)
	}

	b.WriteString("\n")
	b.WriteString(statusSectionStyle.Render("  Components"))
	b.WriteString("\n")
	if len(st.Components) == 0 {
		b.WriteString(statusDimStyle.Render("    No components running"))
		b.WriteString("\n")
	} else {
		names := lo.Keys(st.Components)
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(&b, "    %-16s %d instances\n", name, st.Components[name])
		}
	}
	return b.String()
}

func renderState(state string) string {
	if state == cluster.StateRunning {
		return statusRunningStyle.Render(state)
	}
	return statusPendingStyle.Render(state)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	d -= time.Duration(days) * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, d.Truncate(time.Minute))
	}
	return d.Truncate(time.Second).String()
}
