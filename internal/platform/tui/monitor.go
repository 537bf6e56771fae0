package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/scriptworld/internal/engine"
	"github.com/vovakirdan/scriptworld/internal/runner"
	"github.com/vovakirdan/scriptworld/internal/storage"
	"github.com/vovakirdan/scriptworld/internal/world"
)

// Monitor layout constants
const (
	minWidthForMap = 100 // Minimum width to show the map beside the table
	maxRuns        = 8   // Runs shown in the history panel
)

// MonitorOptions configures a monitor model.
type MonitorOptions struct {
	// TickRate is how many times per second the model refreshes.
	TickRate int

	// Drive makes the model call Manager.Step on every tick. Exactly one
	// model (or a headless loop) should drive a manager.
	Drive bool
}

// controlResultMsg reports the outcome of a signal sent from the monitor.
type controlResultMsg struct {
	group  string
	signal runner.ControlSignal
	err    error
}

// MonitorModel is the Bubble Tea model for the worker monitor.
type MonitorModel struct {
	manager  *engine.Manager
	world    *world.TileMap
	store    *storage.Store
	opts     MonitorOptions
	groups   []engine.GroupStatus
	runs     []storage.Run
	ticks    int
	table    table.Model
	help     help.Model
	keys     MonitorKeyMap
	width    int
	height   int
	showRuns bool
	showMap  bool
	notice   string
	quitting bool
}

// NewMonitorModel creates a new monitor model. The store may be nil.
func NewMonitorModel(mgr *engine.Manager, m *world.TileMap, store *storage.Store, opts MonitorOptions, width, height int) MonitorModel {
	if opts.TickRate <= 0 {
		opts.TickRate = 30
	}
	h := help.New()
	h.ShowAll = false

	model := MonitorModel{
		manager: mgr,
		world:   m,
		store:   store,
		opts:    opts,
		keys:    DefaultMonitorKeyMap(),
		help:    h,
		width:   width,
		height:  height,
		showMap: width >= minWidthForMap,
	}
	model.table = model.createTable()
	model.refresh()
	return model
}

// createTable creates the group table sized to the window.
func (m *MonitorModel) createTable() table.Model {
	columns := []table.Column{
		{Title: "Group", Width: 12},
		{Title: "Status", Width: 8},
		{Title: "State", Width: 10},
		{Title: "Wait", Width: 5},
		{Title: "Iter", Width: 8},
		{Title: "Tries", Width: 5},
		{Title: "Run", Width: 8},
	}

	height := m.height - 14
	if m.showRuns {
		height -= maxRuns + 3
	}
	if height < 3 {
		height = 3
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

// refresh takes a fresh snapshot of the manager.
func (m *MonitorModel) refresh() {
	if m.manager == nil {
		return
	}
	m.groups = m.manager.Snapshot()
	m.updateTableRows()
}

func (m *MonitorModel) updateTableRows() {
	rows := make([]table.Row, len(m.groups))
	for i, g := range m.groups {
		wait := ""
		if g.Waiting {
			wait = "yes"
		}
		rows[i] = table.Row{
			g.ID,
			string(g.Status),
			g.State.String(),
			wait,
			fmt.Sprintf("%d", g.Iterations),
			fmt.Sprintf("%d", g.Attempts),
			g.RunID,
		}
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// loadRuns reloads the history panel from the store.
func (m *MonitorModel) loadRuns() {
	if m.store == nil {
		m.runs = nil
		return
	}
	runs, err := m.store.RecentRuns(maxRuns)
	if err != nil {
		m.notice = fmt.Sprintf("cannot load runs: %v", err)
		return
	}
	m.runs = runs
}

// Selected returns the group under the cursor.
func (m MonitorModel) Selected() (engine.GroupStatus, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.groups) {
		return engine.GroupStatus{}, false
	}
	return m.groups[c], true
}

// control sends sig to the selected group off the UI goroutine.
func (m MonitorModel) control(sig runner.ControlSignal) tea.Cmd {
	g, ok := m.Selected()
	if !ok || m.manager == nil {
		return nil
	}
	mgr := m.manager
	return func() tea.Msg {
		return controlResultMsg{group: g.ID, signal: sig, err: mgr.Control(g.ID, sig)}
	}
}

// Init starts the refresh ticker.
func (m MonitorModel) Init() tea.Cmd {
	return tickCmd(m.opts.TickRate)
}

// Update handles messages for the monitor.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Restart):
			return m, m.control(runner.SignalRestart)

		case key.Matches(msg, m.keys.Stop):
			return m, m.control(runner.SignalStop)

		case key.Matches(msg, m.keys.Kill):
			return m, m.control(runner.SignalKill)

		case key.Matches(msg, m.keys.ToggleRuns):
			m.showRuns = !m.showRuns
			if m.showRuns {
				m.loadRuns()
			}
			m.table = m.createTable()
			m.updateTableRows()
			return m, nil

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil

		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}

	case TickMsg:
		if m.opts.Drive && m.manager != nil {
			m.manager.Step()
		}
		m.refresh()
		m.ticks++
		if m.showRuns && m.ticks%m.opts.TickRate == 0 {
			m.loadRuns()
		}
		return m, tickCmd(m.opts.TickRate)

	case controlResultMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s %s: %v", msg.signal, msg.group, msg.err)
		} else {
			m.notice = fmt.Sprintf("sent %s to %s", msg.signal, msg.group)
		}
		m.refresh()
		if m.showRuns {
			m.loadRuns()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.showMap = m.width >= minWidthForMap
		m.table = m.createTable()
		m.updateTableRows()
		m.help.Width = msg.Width
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the monitor.
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		MarginBottom(1)

	title := fmt.Sprintf("SCRIPTWORLD - %d groups", len(m.groups))
	b.WriteString(titleStyle.Render(centerText(title, m.width)))
	b.WriteString("\n\n")

	panelStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	tablePanel := panelStyle.Render(m.renderTableContent())
	if m.showMap && m.world != nil {
		mapPanel := panelStyle.Render(RenderMap(m.world, m.groups))
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tablePanel, "  ", mapPanel))
	} else {
		b.WriteString(tablePanel)
	}
	b.WriteString("\n")

	b.WriteString(m.renderDetails())

	if m.showRuns {
		b.WriteString("\n")
		b.WriteString(panelStyle.Render(m.renderRuns()))
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render(m.notice))
	}

	b.WriteString("\n")
	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

// renderTableContent renders the table or empty message.
func (m MonitorModel) renderTableContent() string {
	if len(m.groups) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true).
			Padding(2, 4)
		return emptyStyle.Render("No entity groups loaded.\nAdd groups to the level file.")
	}
	return m.table.View()
}

// renderDetails describes the entities of the selected group.
func (m MonitorModel) renderDetails() string {
	g, ok := m.Selected()
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString(statusStyle(g.Status).Bold(true).Render(g.ID))
	b.WriteString(fmt.Sprintf("  %s\n", g.Status))
	for _, e := range g.Entities {
		line := fmt.Sprintf("  %c %-10s (%d,%d) %-5s %s", entityGlyph(e.Name), e.Name, e.X, e.Y, e.Facing, e.Sprite)
		if e.Busy {
			line += " busy"
		}
		if e.Text != "" {
			line += fmt.Sprintf("  %q", e.Text)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if g.Error != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		b.WriteString(errStyle.Render("  error: " + g.Error))
		b.WriteString("\n")
	}
	return b.String()
}

// renderRuns renders the recent run history.
func (m MonitorModel) renderRuns() string {
	if m.store == nil {
		return "Run history disabled (no database)."
	}
	if len(m.runs) == 0 {
		return "No finished runs yet."
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-9s %-12s %-8s %8s %9s  %s", "Run", "Group", "Status", "Iter", "Duration", "Started"))
	for _, r := range m.runs {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%-9s %-12s %-8s %8d %9s  %s",
			r.RunID, r.GroupID, r.Status, r.Iterations,
			r.Duration().Truncate(10*time.Millisecond).String(), r.StartedAt.Format("Jan 02 15:04:05")))
	}
	return b.String()
}

// IsQuitting returns true if the user asked to leave the monitor.
func (m MonitorModel) IsQuitting() bool {
	return m.quitting
}

// RunMonitor runs the monitor in the local terminal. It drives the manager
// until the user quits.
func RunMonitor(mgr *engine.Manager, m *world.TileMap, store *storage.Store, tickRate, width, height int) error {
	model := NewMonitorModel(mgr, m, store, MonitorOptions{TickRate: tickRate, Drive: true}, width, height)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
