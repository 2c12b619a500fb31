package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/kalk/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive planned vs actual overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		if os.Getenv("KALK_SKIP_DASHBOARD_RUN") == "true" {
			return nil
		}
		p := tea.NewProgram(newDashboardModel(cmd.Context(), services))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("dashboard run failed: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(dashboardCmd)
}

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	PaddingLeft(1).
	PaddingRight(1)

// dashboardRow is one project line of the dashboard.
type dashboardRow struct {
	ID          string
	Name        string
	Planned     string
	Actual      string
	Percent     string
	Status      calculation.Status
	HoursDelta  string
	RevenueNote string
}

type rowsMsg struct {
	rows []dashboardRow
	err  error
}

type dashboardModel struct {
	ctx      context.Context
	services *wiring.AppServices
	table    table.Model
	rows     []dashboardRow
	notice   string
	err      error
}

func newDashboardModel(ctx context.Context, services *wiring.AppServices) dashboardModel {
	columns := []table.Column{
		{Title: "Project", Width: 12},
		{Title: "Name", Width: 24},
		{Title: "Planned h", Width: 10},
		{Title: "Actual h", Width: 10},
		{Title: "% of plan", Width: 10},
		{Title: "Status", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229"))
	t.SetStyles(s)

	m := dashboardModel{ctx: ctx, services: services, table: t}
	return m.apply(loadDashboardRows(ctx, services))
}

func loadDashboardRows(ctx context.Context, services *wiring.AppServices) rowsMsg {
	projects, err := services.Calculation.Projects(ctx)
	if err != nil {
		return rowsMsg{err: err}
	}
	rows := make([]dashboardRow, 0, len(projects))
	for _, p := range projects {
		c, err := services.Calculation.ClassifyProject(ctx, p.ID)
		if err != nil {
			return rowsMsg{err: fmt.Errorf("%s: %w", p.ID, err)}
		}
		rows = append(rows, dashboardRow{
			ID:          p.ID,
			Name:        p.Name,
			Planned:     hours(c.Hours.Planned),
			Actual:      hours(c.Hours.Actual),
			Percent:     percent(c.DeviationPercent),
			Status:      c.Status,
			HoursDelta:  c.Hours.Summary("h"),
			RevenueNote: c.Revenue.Summary("EUR"),
		})
	}
	return rowsMsg{rows: rows}
}

func (m dashboardModel) apply(msg rowsMsg) dashboardModel {
	m.err = msg.err
	if msg.err != nil {
		return m
	}
	m.rows = msg.rows
	tableRows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		tableRows = append(tableRows, table.Row{r.ID, r.Name, r.Planned, r.Actual, r.Percent, string(r.Status)})
	}
	m.table.SetRows(tableRows)
	return m
}

func (m dashboardModel) selected() (dashboardRow, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.rows) {
		return dashboardRow{}, false
	}
	return m.rows[c], true
}

func (m dashboardModel) recomputeSelected() tea.Cmd {
	row, ok := m.selected()
	if !ok {
		return nil
	}
	id := row.ID
	return func() tea.Msg {
		if _, err := m.services.Calculation.RecomputePostCalculation(m.ctx, id, currentActor()); err != nil {
			return rowsMsg{err: err}
		}
		return loadDashboardRows(m.ctx, m.services)
	}
}

func (m dashboardModel) Init() tea.Cmd { return nil }

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case rowsMsg:
		m = m.apply(msg)
		m.notice = "refreshed"
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.notice = "recomputing..."
			return m, m.recomputeSelected()
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m dashboardModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error loading dashboard: %v\nPress q to quit.", m.err)
	}

	header := headerStyle.Render(fmt.Sprintf("kalk: %d projects", len(m.rows)))

	var green, yellow, red int
	for _, r := range m.rows {
		switch r.Status {
		case calculation.StatusGreen:
			green++
		case calculation.StatusYellow:
			yellow++
		case calculation.StatusRed:
			red++
		}
	}
	counts := fmt.Sprintf("%s  %s  %s",
		statusGreen.Render(fmt.Sprintf("%d green", green)),
		statusYellow.Render(fmt.Sprintf("%d yellow", yellow)),
		statusRed.Render(fmt.Sprintf("%d red", red)))

	detail := ""
	if r, ok := m.selected(); ok {
		detail = fmt.Sprintf("\n%s %s: %s, %s", r.ID, colorStatus(string(r.Status)), r.HoursDelta, r.RevenueNote)
	}

	footer := "\n[q] Quit  [r] Recompute  [Up/Down] Navigate"
	if m.notice != "" {
		footer += "  " + m.notice
	}

	return baseStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			counts,
			m.table.View(),
			detail,
			footer,
		),
	) + "\n"
}
