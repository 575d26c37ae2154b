package tui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/jarscout/internal/events"
)

const visibleEvents = 10

func columns(width int) []table.Column {
	path := max(20, width-2-8-6)
	return []table.Column{
		{Title: " ", Width: 2},
		{Title: "Location", Width: path},
		{Title: "Classes", Width: 8},
	}
}

func tableRows(rows []row) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		classes := strconv.Itoa(r.classes)
		if r.status == "✗" {
			classes = "-"
		}
		out = append(out, table.Row{r.status, r.path, classes})
	}
	return out
}

func (m Model) render() string {
	innerWidth := m.width - 4

	parts := []string{
		m.renderHeader(innerWidth),
		m.renderArchives(innerWidth),
		m.renderEventStream(innerWidth),
	}
	if m.lastError != "" {
		parts = append(parts, m.colors.failed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, m.colors.muted.Render(" [q] Quit • [↑/↓] Scroll"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader(width int) string {
	state := m.colors.badge(m.state)
	if m.state == stateScanning {
		state = m.spinner.View() + state
	}

	conn := m.colors.listed.Render("connected")
	if !m.connected {
		conn = m.colors.failed.Render("disconnected")
	}
	title := fmt.Sprintf("%s  %s  %s", m.colors.label.Render("JARSCOUT"), state, conn)
	if m.health.Status != "" {
		title += m.colors.muted.Render(fmt.Sprintf("  server %s, up %ds", m.health.Status, m.health.UptimeSeconds))
	}

	s := m.stats
	counts := fmt.Sprintf("Roots: %d  Archives: %d  Classes: %d  Stand-alone: %d  ",
		s.roots, s.archives, s.classes, s.standalone)
	failures := fmt.Sprintf("Failures: %d", s.archiveFailures+s.scanFailures+s.itemFailures)
	if s.archiveFailures+s.scanFailures+s.itemFailures > 0 {
		failures = m.colors.failed.Render(failures)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, " "+counts+failures)
	return m.colors.panel.Width(width).Render(content)
}

func (m Model) renderArchives(width int) string {
	body := m.colors.muted.Render("  No archives listed yet...")
	if len(m.rows) > 0 {
		body = m.table.View()
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		m.colors.label.Render("ARCHIVES"),
		body,
	)
	return m.colors.panel.Width(width).Render(content)
}

func (m Model) renderEventStream(width int) string {
	if len(m.eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			m.colors.label.Render("EVENT STREAM"),
			m.colors.muted.Render("  Waiting for events..."),
		)
		return m.colors.panel.Width(width).Render(content)
	}

	var lines []string
	for i, e := range m.eventLog {
		if i >= visibleEvents {
			break
		}
		lines = append(lines, m.formatEvent(e))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.colors.label.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return m.colors.panel.Width(width).Render(content)
}

func (m Model) formatEvent(e events.Event) string {
	ts := m.colors.muted.Render(e.At.Format("15:04:05"))

	kind := m.colors.event(e.Type).Render(fmt.Sprintf("%-20s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, kind, describe(e))
}

// describe extracts a short summary from an event payload.
func describe(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	for _, key := range []string{"root", "path", "file", "kind"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if n, ok := data["classes"].(float64); ok && e.Type == events.TypeArchiveListed {
		parts = append(parts, fmt.Sprintf("(%d classes)", int(n)))
	}
	if v, ok := data["error"].(string); ok && v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}
