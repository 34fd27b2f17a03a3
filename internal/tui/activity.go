package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	str "github.com/joss/fedcli/internal/strings"
)

// ActivityKind classifies an entry of the activity panel.
type ActivityKind int

const (
	ActivityFeed ActivityKind = iota
	ActivityAction
	ActivityConnection
	ActivityMessage
	ActivityError
)

var activityKindNames = map[ActivityKind]string{
	ActivityFeed:       "feed",
	ActivityAction:     "action",
	ActivityConnection: "connection",
	ActivityMessage:    "message",
	ActivityError:      "error",
}

func (k ActivityKind) String() string {
	if n, ok := activityKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Activity is one line of the panel, with optional detail shown when
// expanded.
type Activity struct {
	Kind      ActivityKind
	Timestamp time.Time
	Title     string
	Detail    string
	Collapsed bool
}

// ActivityPanel keeps the most recent inbox events: polls, assignment
// outcomes, connection changes. Toggled with "d".
type ActivityPanel struct {
	entries []Activity
	max     int
	enabled bool
	width   int
	scroll  int
	now     func() time.Time
}

var (
	activityHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	activityKindStyles = map[ActivityKind]lipgloss.Style{
		ActivityFeed:       lipgloss.NewStyle().Foreground(lipgloss.Color("247")).Italic(true),
		ActivityAction:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		ActivityConnection: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		ActivityMessage:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		ActivityError:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}

	activityDetailStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250")).
				PaddingLeft(2)

	activityBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("238"))
)

// NewActivityPanel creates a hidden panel holding up to max entries.
func NewActivityPanel(max int) *ActivityPanel {
	return &ActivityPanel{
		entries: make([]Activity, 0, max),
		max:     max,
		width:   80,
		now:     time.Now,
	}
}

func (p *ActivityPanel) Toggle()       { p.enabled = !p.enabled }
func (p *ActivityPanel) Enabled() bool { return p.enabled }
func (p *ActivityPanel) SetWidth(w int) {
	p.width = w
}

// Entries returns a copy of the retained entries, oldest first.
func (p *ActivityPanel) Entries() []Activity {
	return append([]Activity(nil), p.entries...)
}

// Add appends an entry, dropping the oldest past capacity.
func (p *ActivityPanel) Add(kind ActivityKind, title, detail string) {
	p.entries = append(p.entries, Activity{
		Kind:      kind,
		Timestamp: p.now(),
		Title:     title,
		Detail:    detail,
		Collapsed: true,
	})
	if len(p.entries) > p.max {
		p.entries = p.entries[len(p.entries)-p.max:]
		if p.scroll > len(p.entries)-1 {
			p.scroll = len(p.entries) - 1
		}
	}
}

// AddError records a failure from source.
func (p *ActivityPanel) AddError(source string, err error) {
	p.Add(ActivityError, source, err.Error())
}

// ToggleAll expands every entry, or collapses them if any is expanded.
func (p *ActivityPanel) ToggleAll() {
	anyExpanded := false
	for _, e := range p.entries {
		if !e.Collapsed {
			anyExpanded = true
			break
		}
	}
	for i := range p.entries {
		p.entries[i].Collapsed = anyExpanded
	}
}

func (p *ActivityPanel) ScrollUp() {
	if p.scroll > 0 {
		p.scroll--
	}
}

func (p *ActivityPanel) ScrollDown() {
	if p.scroll < len(p.entries)-1 {
		p.scroll++
	}
}

// Clear drops every entry.
func (p *ActivityPanel) Clear() {
	p.entries = p.entries[:0]
	p.scroll = 0
}

// Stats counts entries per kind.
func (p *ActivityPanel) Stats() map[string]int {
	stats := map[string]int{"total": len(p.entries)}
	for _, e := range p.entries {
		stats[e.Kind.String()]++
	}
	return stats
}

// View renders at most height lines; "" when hidden.
func (p *ActivityPanel) View(height int) string {
	if !p.enabled {
		return ""
	}

	var b strings.Builder
	b.WriteString(activityHeaderStyle.Width(p.width).Render(
		fmt.Sprintf("ACTIVITY [%d] │ d: hide │ e: expand │ [ ]: scroll │ x: clear", len(p.entries))) + "\n")

	if len(p.entries) == 0 {
		b.WriteString(infoStyle.Render("  Nothing yet"))
		return activityBorderStyle.Width(p.width).Render(b.String())
	}

	visible := height - 3
	if visible < 1 {
		visible = 1
	}
	lines := 0
	for i := p.scroll; i < len(p.entries) && lines < visible; i++ {
		entry := p.render(p.entries[i])
		n := strings.Count(entry, "\n")
		if lines+n > visible && lines > 0 {
			break
		}
		b.WriteString(entry)
		lines += n
	}
	return activityBorderStyle.Width(p.width).Render(strings.TrimRight(b.String(), "\n"))
}

func (p *ActivityPanel) render(e Activity) string {
	icon := "▶"
	if !e.Collapsed {
		icon = "▼"
	}
	style, ok := activityKindStyles[e.Kind]
	if !ok {
		style = infoStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s\n", icon, e.Timestamp.Format("15:04:05"), style.Render(e.Title))
	if !e.Collapsed && e.Detail != "" {
		for _, line := range strings.Split(str.WordWrap(e.Detail, p.width-6), "\n") {
			b.WriteString(activityDetailStyle.Render(line) + "\n")
		}
	}
	return b.String()
}
