package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joss/fedcli/internal/chat"
	"github.com/joss/fedcli/internal/domain"
	str "github.com/joss/fedcli/internal/strings"
)

const listWidth = 40

// InboxConfig wires the inbox to the chat core.
type InboxConfig struct {
	UserID    string
	Snapshots <-chan chat.Snapshot
	Actions   AssignmentActions
	Window    ChatWindow
}

// Inbox is the federation manager dashboard: the summary list on the left,
// the selected conversation on the right. The list is whatever the last
// applied snapshot says; take-charge and release never edit it locally.
type Inbox struct {
	ctx     context.Context
	snaps   <-chan chat.Snapshot
	actions AssignmentActions
	window  ChatWindow

	state     chat.ViewState
	cursor    int
	cursorID  string
	loaded    bool
	fetchErr  error
	busy      bool
	status    string
	statusErr bool
	conn      chat.State
	win       chat.WindowView

	spinner  spinner.Model
	input    textinput.Model
	viewport viewport.Model
	activity *ActivityPanel
	width    int
	height   int
	ready    bool
	quitting bool
}

// NewInbox creates the dashboard. Actions run under ctx.
func NewInbox(ctx context.Context, cfg InboxConfig) Inbox {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "Select a conversation"
	ti.CharLimit = 1000
	ti.Width = 60

	return Inbox{
		ctx:      ctx,
		snaps:    cfg.Snapshots,
		actions:  cfg.Actions,
		window:   cfg.Window,
		state:    chat.ViewState{CurrentUserID: cfg.UserID},
		spinner:  s,
		input:    ti,
		viewport: viewport.New(60, 10),
		activity: NewActivityPanel(100),
	}
}

func (m Inbox) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitSnapshot(m.snaps),
		waitWindow(m.window.Updates()),
	)
}

// State returns the view state the screen is derived from.
func (m Inbox) State() chat.ViewState { return m.state }

func (m Inbox) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case snapshotMsg:
		m.applySnapshot(chat.Snapshot(msg))
		return m, waitSnapshot(m.snaps)

	case feedClosedMsg:
		m.activity.Add(ActivityFeed, "feed stopped", "")
		return m, nil

	case windowMsg:
		m.refreshWindow()
		return m, waitWindow(m.window.Updates())

	case windowGoneMsg:
		return m, nil

	case actionMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(reason(msg.err), true)
			m.activity.AddError(msg.op+" "+str.ShortID(msg.id), msg.err)
		} else {
			m.setStatus(msg.message, false)
			m.activity.Add(ActivityAction, msg.op+" "+str.ShortID(msg.id), msg.message)
		}
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.setStatus(reason(msg.err), true)
			return m, nil
		}
		// Only clear what was sent; text typed meanwhile stays.
		if msg.ok && m.input.Value() == msg.text {
			m.input.SetValue("")
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Inbox) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.input.Focused() {
		switch msg.String() {
		case "esc":
			m.input.Blur()
			return m, nil
		case "enter":
			text := m.input.Value()
			if strings.TrimSpace(text) == "" || m.state.SelectedID == "" {
				return m, nil
			}
			// The input is cleared when the send completes, not here: a send
			// refused as read-only or while reconnecting keeps the text.
			return m, sendCmd(m.window, text)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "enter", "o":
		m.openCursor()
	case "t":
		return m.runAction("take_charge")
	case "r":
		return m.runAction("release")
	case "tab", "i":
		if m.state.SelectedID != "" {
			return m, m.input.Focus()
		}
	case "d":
		m.activity.Toggle()
		m.resize()
	case "e":
		m.activity.ToggleAll()
	case "[":
		m.activity.ScrollUp()
	case "]":
		m.activity.ScrollDown()
	case "x":
		m.activity.Clear()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Inbox) runAction(op string) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	if m.state.SelectedID == "" {
		m.setStatus(chat.ErrNoSelection.Error(), true)
		return m, nil
	}
	m.busy = true
	m.setStatus("", false)
	return m, actionCmd(m.ctx, m.actions, op, m.state.SelectedID)
}

func (m *Inbox) setStatus(s string, isErr bool) {
	m.status, m.statusErr = s, isErr
}

func (m *Inbox) applySnapshot(snap chat.Snapshot) {
	next, applied := m.state.Apply(snap)
	if !applied {
		return
	}
	m.state = next
	m.loaded = true
	if snap.Err != nil {
		if m.fetchErr == nil {
			m.activity.AddError("summaries", snap.Err)
		}
	} else {
		m.activity.Add(ActivityFeed, fmt.Sprintf("%d conversations", len(snap.Summaries)), "")
	}
	m.fetchErr = snap.Err
	m.syncCursor()
	m.syncReadOnly()
}

// syncCursor keeps the highlighted row on the same conversation across
// re-ordering snapshots.
func (m *Inbox) syncCursor() {
	n := len(m.state.Summaries)
	for i, s := range m.state.Summaries {
		if s.ConversationID == m.cursorID {
			m.cursor = i
			return
		}
	}
	switch {
	case n == 0:
		m.cursor, m.cursorID = 0, ""
		return
	case m.cursor >= n:
		m.cursor = n - 1
	case m.cursor < 0:
		m.cursor = 0
	}
	m.cursorID = m.state.Summaries[m.cursor].ConversationID
}

func (m *Inbox) moveCursor(delta int) {
	n := len(m.state.Summaries)
	if n == 0 {
		return
	}
	c := m.cursor + delta
	if c < 0 || c >= n {
		return
	}
	m.cursor = c
	m.cursorID = m.state.Summaries[c].ConversationID
}

func (m *Inbox) openCursor() {
	if m.cursorID == "" || m.cursorID == m.state.SelectedID {
		return
	}
	m.state = m.state.Select(m.cursorID)
	m.syncReadOnly()
	if err := m.window.Open(m.cursorID); err != nil {
		m.setStatus(err.Error(), true)
		m.activity.AddError("open", err)
		return
	}
	m.setStatus("", false)
	m.input.SetValue("")
	m.refreshWindow()
}

func (m *Inbox) syncReadOnly() {
	if m.state.SelectedID == "" {
		return
	}
	canWrite := m.state.CanWrite()
	m.window.SetReadOnly(!canWrite)
	if canWrite {
		m.input.Placeholder = "Type a reply"
	} else {
		m.input.Placeholder = "Read-only: press t to take charge"
		m.input.Blur()
	}
}

func (m *Inbox) refreshWindow() {
	v := m.window.View()
	if v.State != m.conn && v.ConversationID != "" {
		m.activity.Add(ActivityConnection, v.State.String(), v.ConversationID)
	}
	if len(v.Messages) > len(m.win.Messages) && v.ConversationID == m.win.ConversationID {
		m.activity.Add(ActivityMessage, fmt.Sprintf("%d new", len(v.Messages)-len(m.win.Messages)), "")
	}
	m.conn = v.State
	m.win = v
	m.viewport.SetContent(transcript(v, m.state.CurrentUserID, m.counterparty(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Inbox) counterparty() string {
	if s, ok := m.state.Selected(); ok && s.CounterpartyName != "" {
		return s.CounterpartyName
	}
	return domain.RoleClubManager.Label()
}

func (m *Inbox) resize() {
	chatWidth := m.width - listWidth - 6
	if chatWidth < 20 {
		chatWidth = 20
	}
	m.activity.SetWidth(m.width - 2)
	height := m.height - 10
	if m.activity.Enabled() {
		height -= 10
	}
	if height < 3 {
		height = 3
	}
	m.viewport.Width = chatWidth
	m.viewport.Height = height
	m.input.Width = chatWidth - 4
	m.viewport.SetContent(transcript(m.win, m.state.CurrentUserID, m.counterparty(), chatWidth))
}

func (m Inbox) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready || !m.loaded {
		return fmt.Sprintf("\n  %s Loading conversations...", m.spinner.View())
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Support inbox") + "\n\n")
	b.WriteString(m.renderStatusBar() + "\n")

	list := boxStyle.Width(listWidth).Height(m.viewport.Height + 3).Render(m.renderList())
	pane := boxStyle.Width(m.viewport.Width + 2).Render(m.renderChat())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, list, pane) + "\n")

	if m.status != "" {
		style := activeStyle
		if m.statusErr {
			style = errorStyle
		}
		b.WriteString("  " + style.Render(m.status) + "\n")
	}
	if m.activity.Enabled() {
		b.WriteString(m.activity.View(10) + "\n")
	}

	help := "j/k: move │ enter: open │ t: take charge │ r: release │ tab: reply │ d: activity │ q: quit"
	if m.input.Focused() {
		help = "enter: send │ esc: back to list │ pgup/pgdown: scroll"
	}
	b.WriteString(helpStyle.Render("  " + help))
	return b.String()
}

func (m Inbox) renderStatusBar() string {
	waiting := 0
	for _, s := range m.state.Summaries {
		if s.WaitingForReply {
			waiting++
		}
	}
	parts := []string{
		fmt.Sprintf("%d conversations", len(m.state.Summaries)),
		fmt.Sprintf("%d waiting", waiting),
	}
	if m.busy {
		parts = append(parts, m.spinner.View()+" working")
	}
	if m.fetchErr != nil {
		parts = append(parts, errorStyle.Render("refresh failed"))
	}
	return statusBarStyle.Render(strings.Join(parts, " │ "))
}

func (m Inbox) renderList() string {
	if len(m.state.Summaries) == 0 {
		return infoStyle.Render("No conversations")
	}
	var b strings.Builder
	for i, s := range m.state.Summaries {
		cursor := "  "
		if i == m.cursor {
			cursor = "▶ "
		}
		name := str.Pad(s.CounterpartyName, 15)
		label := chat.AssignmentLabel(s, m.state.CurrentUserID)
		switch {
		case s.ConversationID == m.state.SelectedID:
			name = activeStyle.Render(name)
		case s.WaitingForReply:
			name = waitingStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s%s %s\n", cursor, name, infoStyle.Render(str.Truncate(label, listWidth-20)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Inbox) renderChat() string {
	s, ok := m.state.Selected()
	if m.state.SelectedID == "" {
		return infoStyle.Render("Open a conversation with enter")
	}

	var b strings.Builder
	name := m.state.SelectedID
	if ok {
		name = s.CounterpartyName
	}
	fmt.Fprintf(&b, "%s  %s  %s\n", activeStyle.Render(name), infoStyle.Render(m.state.AssignmentLabel()), connectionBadge(m.win.State))
	b.WriteString(m.viewport.View() + "\n")
	b.WriteString(m.input.View())
	return b.String()
}
