package tui

import (
	"fmt"
	"strings"
	"time"
)

// DashboardData holds everything the dashboard view renders, fetched fresh
// from core.Core on every tick.
type DashboardData struct {
	Running            bool
	Uptime             time.Duration
	ActiveConnections  int64
	TotalConnections   uint64
	TotalBytesSent     uint64
	TotalBytesReceived uint64
	RoutingMode        string

	Runways []RunwayInfo
	Targets []TargetRow
}

// RunwayInfo is one row of the runway table.
type RunwayInfo struct {
	ID       string
	IsDirect bool
}

// TargetRow is one row of the target-accessibility table.
type TargetRow struct {
	Target      string
	RunwayID    string
	State       string
	SuccessRate float64
	AvgLatency  float64
}

// Dashboard renders a DashboardData snapshot.
type Dashboard struct {
	data   *DashboardData
	width  int
	height int
}

// NewDashboard creates a dashboard sized to the current terminal.
func NewDashboard(msg dataMsg, width, height int) *Dashboard {
	return &Dashboard{data: msg.Data, width: width, height: height}
}

// SetSize updates the dashboard's render width/height.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// View renders the full dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	header := HeaderStyle.Width(d.width).Render("multipathproxy dashboard")
	sb.WriteString(header)
	sb.WriteString("\n\n")

	sb.WriteString(d.renderStatusSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderRunwaysSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderTargetsSection())
	sb.WriteString("\n")

	sb.WriteString(HelpStyle.Render("Press 'r' to refresh • 'q' to quit"))

	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	w := d.width - 4
	if w < 40 {
		w = 40
	}
	return w
}

func (d *Dashboard) renderStatusSection() string {
	content := fmt.Sprintf(
		"%s %s\n%s %s\n%s %s\n%s %s\n%s %s\n%s %s",
		LabelStyle.Render("Daemon:"), ValueStyle.Render(RenderStatus(d.data.Running, "running", "stopped")),
		LabelStyle.Render("Uptime:"), ValueStyle.Render(d.data.Uptime.Round(time.Second).String()),
		LabelStyle.Render("Routing mode:"), ValueStyle.Render(d.data.RoutingMode),
		LabelStyle.Render("Active conns:"), ValueStyle.Render(fmt.Sprintf("%d", d.data.ActiveConnections)),
		LabelStyle.Render("Total conns:"), ValueStyle.Render(fmt.Sprintf("%d", d.data.TotalConnections)),
		LabelStyle.Render("Bytes sent/recv:"), ValueStyle.Render(fmt.Sprintf("%d / %d", d.data.TotalBytesSent, d.data.TotalBytesReceived)),
	)
	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Status") + "\n" + content)
}

func (d *Dashboard) renderRunwaysSection() string {
	if len(d.data.Runways) == 0 {
		return SectionStyle.Width(d.sectionWidth()).Render(
			SectionTitleStyle.Render("Runways") + "\n" + DimStyle.Render("No runways discovered yet"))
	}

	var rows []string
	rows = append(rows, fmt.Sprintf("%-32s %s", "ID", "Kind"))
	rows = append(rows, strings.Repeat("-", 50))
	for _, rw := range d.data.Runways {
		kind := "proxy"
		if rw.IsDirect {
			kind = "direct"
		}
		rows = append(rows, fmt.Sprintf("%-32s %s", rw.ID, kind))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Runways") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderTargetsSection() string {
	if len(d.data.Targets) == 0 {
		return SectionStyle.Width(d.sectionWidth()).Render(
			SectionTitleStyle.Render("Target accessibility") + "\n" + DimStyle.Render("No targets probed yet"))
	}

	var rows []string
	rows = append(rows, fmt.Sprintf("%-24s %-24s %-20s %-10s %s", "Target", "Runway", "State", "Success", "Latency"))
	rows = append(rows, strings.Repeat("-", 90))

	maxRows := 15
	for i, t := range d.data.Targets {
		if i >= maxRows {
			rows = append(rows, DimStyle.Render(fmt.Sprintf("... and %d more", len(d.data.Targets)-maxRows)))
			break
		}
		rows = append(rows, fmt.Sprintf("%-24s %-24s %-20s %-10s %.3fs",
			truncate(t.Target, 24), truncate(t.RunwayID, 24), t.State,
			fmt.Sprintf("%.0f%%", t.SuccessRate*100), t.AvgLatency))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Target accessibility") + "\n" + strings.Join(rows, "\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
