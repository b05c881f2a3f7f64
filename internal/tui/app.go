// Package tui provides a terminal dashboard over a running core.Core's
// read-only snapshot API.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/runwayproxy/multipath/internal/core"
)

// App is the dashboard application.
type App struct {
	core *core.Core
}

// NewApp creates a TUI backed by a running Core.
func NewApp(c *core.Core) *App {
	return &App{core: c}
}

// Run starts the dashboard and blocks until the user quits.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.core), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type model struct {
	core      *core.Core
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	err       error
}

func newModel(c *core.Core) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{core: c, spinner: s}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadData(m.core), tickEvery())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadData(m.core)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case dataMsg:
		m.ready = true
		m.dashboard = NewDashboard(msg, m.width, m.height)

	case errMsg:
		m.err = msg.err

	case tickMsg:
		return m, tea.Batch(loadData(m.core), tickEvery())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.err != nil {
		return ErrorStyle.Render("Error: " + m.err.Error())
	}
	if !m.ready {
		return LoadingStyle.Render(m.spinner.View() + " Loading...")
	}
	return m.dashboard.View()
}

type dataMsg struct {
	Data *DashboardData
}

type errMsg struct{ err error }

type tickMsg struct{}

func tickEvery() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

func loadData(c *core.Core) tea.Cmd {
	return func() tea.Msg {
		return dataMsg{Data: fetchDashboardData(c)}
	}
}

func fetchDashboardData(c *core.Core) *DashboardData {
	status := c.GetStatus()

	data := &DashboardData{
		Running:            status.Running,
		Uptime:             status.Uptime,
		ActiveConnections:  status.ActiveConnections,
		TotalConnections:   status.TotalConnections,
		TotalBytesSent:     status.TotalBytesSent,
		TotalBytesReceived: status.TotalBytesReceived,
		RoutingMode:        string(status.RoutingMode),
	}

	for _, rw := range c.ListRunways() {
		data.Runways = append(data.Runways, RunwayInfo{
			ID:       rw.ID,
			IsDirect: rw.IsDirect,
		})
	}

	for _, target := range c.GetAllTargets() {
		for runwayID, tm := range c.GetTargetMetrics(target) {
			data.Targets = append(data.Targets, TargetRow{
				Target:      target,
				RunwayID:    runwayID,
				State:       tm.State.String(),
				SuccessRate: tm.SuccessRate,
				AvgLatency:  tm.AvgResponseTime,
			})
		}
	}

	return data
}
