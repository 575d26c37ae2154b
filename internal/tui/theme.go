package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/jarscout/internal/events"
)

// palette maps monitor states and event categories to styles.
type palette struct {
	states map[string]lipgloss.Style
	marks  map[string]string

	listed  lipgloss.Style
	failed  lipgloss.Style
	scan    lipgloss.Style
	muted   lipgloss.Style
	label   lipgloss.Style
	column  lipgloss.Style
	cursor  lipgloss.Style
	panel   lipgloss.Style
	working lipgloss.Style
}

func newPalette() palette {
	var (
		teal  = lipgloss.AdaptiveColor{Light: "#00796B", Dark: "#4DB6AC"}
		amber = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB74D"}
		rust  = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"}
		slate = lipgloss.AdaptiveColor{Light: "#607D8B", Dark: "#90A4AE"}
		umber = lipgloss.Color("#8D6E63")
	)
	fg := func(c lipgloss.TerminalColor) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

	return palette{
		states: map[string]lipgloss.Style{
			stateWaiting:  fg(slate),
			stateScanning: fg(amber),
			stateDrained:  fg(teal),
			stateStopped:  fg(slate).Faint(true),
		},
		marks: map[string]string{
			stateWaiting: "○",
			stateDrained: "●",
			stateStopped: "■",
		},

		listed:  fg(teal),
		failed:  fg(rust).Bold(true),
		scan:    fg(amber),
		muted:   fg(slate),
		label:   lipgloss.NewStyle().Bold(true).Foreground(umber).Padding(0, 1),
		column:  fg(umber).Bold(true),
		cursor:  fg(amber),
		panel:   lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(umber),
		working: fg(amber),
	}
}

// badge renders a pipeline state for the header. Scanning has no mark
// because the spinner stands in for it.
func (p palette) badge(state string) string {
	style, ok := p.states[state]
	if !ok {
		state = stateWaiting
		style = p.states[stateWaiting]
	}
	if mark, ok := p.marks[state]; ok {
		return style.Render(mark + " " + state)
	}
	return style.Render(state)
}

// event picks the style for an event type column.
func (p palette) event(eventType string) lipgloss.Style {
	switch {
	case strings.HasSuffix(eventType, ".failed"), strings.HasSuffix(eventType, ".item_failed"):
		return p.failed
	case eventType == events.TypeArchiveListed, eventType == events.TypeStandalone:
		return p.listed
	case strings.HasPrefix(eventType, "scan."):
		return p.scan
	default:
		return p.muted
	}
}
