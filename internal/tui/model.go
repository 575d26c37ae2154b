// Package tui implements the live scan monitor.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/jarscout/internal/events"
)

const (
	maxRows      = 500
	maxEventLog  = 50
	healthPeriod = 5 * time.Second
	retryDelay   = 3 * time.Second
)

// Pipeline states shown in the header.
const (
	stateWaiting  = "waiting"
	stateScanning = "scanning"
	stateDrained  = "drained"
	stateStopped  = "stopped"
)

type (
	eventMsg      events.Event
	healthMsg     Health
	errMsg        error
	reconnectMsg  struct{}
	sourceDoneMsg struct{ err error }
)

type stats struct {
	roots           int
	scanFailures    int
	archives        int
	archiveFailures int
	classes         int
	standalone      int
	itemFailures    int
}

type row struct {
	status  string
	path    string
	classes int
	detail  string
}

// Model is the BubbleTea model for the scan monitor.
type Model struct {
	ctx       context.Context
	source    Source
	checker   HealthChecker
	hubEvents chan events.Event

	width  int
	height int

	state     string
	stats     stats
	rows      []row
	eventLog  []events.Event
	lastID    int64
	connected bool
	health    Health
	lastError string

	table   table.Model
	spinner spinner.Model
	colors  palette
}

// New creates a monitor reading from source. Sources that implement
// HealthChecker are polled for health too.
func New(ctx context.Context, source Source) Model {
	colors := newPalette()

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(colors.column.GetForeground()).Bold(true)
	styles.Selected = styles.Selected.Foreground(colors.cursor.GetForeground()).Bold(false)

	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(styles),
	)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(colors.working))

	m := Model{
		ctx:       ctx,
		source:    source,
		hubEvents: make(chan events.Event, 100),
		state:     stateWaiting,
		table:     t,
		spinner:   sp,
		colors:    colors,
	}
	if hc, ok := source.(HealthChecker); ok {
		m.checker = hc
	}
	return m
}

// Run shows the monitor until the user quits or ctx is cancelled.
func Run(ctx context.Context, source Source) error {
	p := tea.NewProgram(New(ctx, source), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.stream(0),
		receiveNextEvent(m.hubEvents),
		m.spinner.Tick,
	}
	if m.checker != nil {
		cmds = append(cmds, m.fetchHealth)
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.handleEvent(events.Event(msg))
		m.connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = Health(msg)
		m.connected = true
		return m, tea.Tick(healthPeriod, func(time.Time) tea.Msg { return m.fetchHealth() })

	case sourceDoneMsg:
		m.connected = false
		if msg.err == nil {
			return m, nil
		}
		m.lastError = msg.err.Error() + ", reconnecting..."
		return m, tea.Tick(retryDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.stream(m.lastID)

	case errMsg:
		m.lastError = msg.Error()
		if m.checker != nil {
			return m, tea.Tick(healthPeriod, func(time.Time) tea.Msg { return m.fetchHealth() })
		}
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing monitor..."
	}
	return m.render()
}

// handleEvent folds one event into the counters and the archive table.
// Events replayed after a reconnect are ignored.
func (m *Model) handleEvent(e events.Event) {
	if e.ID != 0 {
		if e.ID <= m.lastID {
			return
		}
		m.lastID = e.ID
	}

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}

	switch e.Type {
	case events.TypeScanRequested:
		m.stats.roots++
		m.state = stateScanning
	case events.TypeScanFailed:
		m.stats.scanFailures++
	case events.TypeArchiveListed:
		var d events.ArchiveData
		_ = json.Unmarshal(e.Data, &d)
		m.stats.archives++
		m.stats.classes += d.Classes
		m.addRow(row{status: "✓", path: d.Path, classes: d.Classes})
	case events.TypeArchiveFailed:
		var d events.ArchiveData
		_ = json.Unmarshal(e.Data, &d)
		m.stats.archiveFailures++
		m.addRow(row{status: "✗", path: d.Path, detail: d.Error})
	case events.TypeStandalone:
		var d events.ClassData
		_ = json.Unmarshal(e.Data, &d)
		m.stats.standalone++
		m.stats.classes++
		m.addRow(row{status: "•", path: d.File, classes: 1})
	case events.TypeItemFailed:
		m.stats.itemFailures++
	case events.TypePipelineDrained:
		if m.state != stateStopped {
			m.state = stateDrained
		}
	case events.TypePipelineStopped:
		m.state = stateStopped
	}
}

func (m *Model) addRow(r row) {
	if m.state != stateStopped {
		m.state = stateScanning
	}
	m.rows = append([]row{r}, m.rows...)
	if len(m.rows) > maxRows {
		m.rows = m.rows[:maxRows]
	}
	m.table.SetRows(tableRows(m.rows))
}

func (m *Model) resize() {
	inner := m.width - 8
	m.table.SetColumns(columns(inner))
	m.table.SetWidth(inner)
	// header, stream box, help and margins
	m.table.SetHeight(max(5, m.height-24))
}

func (m Model) stream(since int64) tea.Cmd {
	return func() tea.Msg {
		return sourceDoneMsg{err: m.source.Stream(m.ctx, since, m.hubEvents)}
	}
}

func (m Model) fetchHealth() tea.Msg {
	h, err := m.checker.Health(m.ctx)
	if err != nil {
		return errMsg(err)
	}
	return healthMsg(h)
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}
