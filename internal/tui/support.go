package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joss/fedcli/internal/chat"
)

// SupportLabel names the federation side of a club manager's conversation.
const SupportLabel = "Support"

// SupportConfig wires the club manager chat. The window must already be
// open on the manager's own conversation.
type SupportConfig struct {
	UserID string
	Window ChatWindow
}

// Support is the club manager's chat with the federation. It is always
// writable: the conversation is theirs.
type Support struct {
	userID string
	window ChatWindow

	win       chat.WindowView
	status    string
	statusErr bool

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	quitting bool
}

func NewSupport(cfg SupportConfig) Support {
	ti := textinput.New()
	ti.Placeholder = "Write to the federation"
	ti.CharLimit = 1000
	ti.Width = 60
	ti.Focus()

	return Support{
		userID:   cfg.UserID,
		window:   cfg.Window,
		win:      cfg.Window.View(),
		input:    ti,
		viewport: viewport.New(60, 10),
	}
}

func (m Support) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitWindow(m.window.Updates()))
}

func (m Support) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			// Cleared on sentMsg so a failed send keeps the text.
			return m, sendCmd(m.window, text)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 8
		if m.viewport.Height < 3 {
			m.viewport.Height = 3
		}
		m.input.Width = msg.Width - 8
		m.refresh()
		return m, nil

	case windowMsg:
		m.refresh()
		return m, waitWindow(m.window.Updates())

	case windowGoneMsg:
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.status, m.statusErr = reason(msg.err), true
			return m, nil
		}
		m.status, m.statusErr = "", false
		if msg.ok && m.input.Value() == msg.text {
			m.input.SetValue("")
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Support) refresh() {
	m.win = m.window.View()
	m.viewport.SetContent(transcript(m.win, m.userID, SupportLabel, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Support) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n\n", titleStyle.Render(SupportLabel), connectionBadge(m.win.State))
	b.WriteString(boxStyle.Width(m.viewport.Width + 2).Render(m.viewport.View()) + "\n")
	b.WriteString("  " + m.input.View() + "\n")
	if m.status != "" {
		style := infoStyle
		if m.statusErr {
			style = errorStyle
		}
		b.WriteString("  " + style.Render(m.status) + "\n")
	}
	b.WriteString(helpStyle.Render("  enter: send │ pgup/pgdown: scroll │ esc: quit"))
	return b.String()
}
