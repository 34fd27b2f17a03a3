package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joss/fedcli/internal/chat"
	str "github.com/joss/fedcli/internal/strings"
)

// ChatWindow is the part of *chat.Window the screens drive.
type ChatWindow interface {
	Open(conversationID string) error
	Send(text string) (bool, error)
	View() chat.WindowView
	Updates() <-chan struct{}
	SetReadOnly(ro bool)
}

// AssignmentActions is the part of *chat.Actions the inbox drives.
type AssignmentActions interface {
	TakeCharge(ctx context.Context, conversationID string) (string, error)
	Release(ctx context.Context, conversationID string) (string, error)
}

type (
	snapshotMsg   chat.Snapshot
	feedClosedMsg struct{}
	windowMsg     struct{}
	windowGoneMsg struct{}
	actionMsg     struct {
		op      string
		id      string
		message string
		err     error
	}
	sentMsg struct {
		text string
		ok   bool
		err  error
	}
)

func waitSnapshot(ch <-chan chat.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func waitWindow(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return windowGoneMsg{}
		}
		return windowMsg{}
	}
}

func sendCmd(w ChatWindow, text string) tea.Cmd {
	return func() tea.Msg {
		ok, err := w.Send(text)
		return sentMsg{text: text, ok: ok, err: err}
	}
}

func actionCmd(ctx context.Context, a AssignmentActions, op, id string) tea.Cmd {
	call := a.TakeCharge
	if op == "release" {
		call = a.Release
	}
	return func() tea.Msg {
		msg, err := call(ctx, id)
		return actionMsg{op: op, id: id, message: msg, err: err}
	}
}

// reason extracts what the user should read from an action or send error.
func reason(err error) string {
	var ae *chat.ActionError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	switch {
	case errors.Is(err, chat.ErrReadOnly):
		return "Take charge of the conversation to reply"
	case errors.Is(err, chat.ErrNotConnected):
		return "Not connected, retrying"
	}
	return err.Error()
}

func connectionBadge(s chat.State) string {
	switch s {
	case chat.Connected:
		return activeStyle.Render("● live")
	case chat.Connecting:
		return waitingStyle.Render("◌ connecting")
	default:
		return errorStyle.Render("○ offline")
	}
}

// transcript renders the window's messages wrapped to width. Messages from
// userID show as "You"; everything else carries the counterparty label.
func transcript(v chat.WindowView, userID, counterparty string, width int) string {
	var b strings.Builder
	switch {
	case v.HistoryError != nil:
		b.WriteString(errorStyle.Render("History unavailable: "+v.HistoryError.Error()) + "\n")
	case !v.HistoryLoaded && v.ConversationID != "":
		b.WriteString(infoStyle.Render("Loading history...") + "\n")
	}
	if len(v.Messages) == 0 && v.HistoryLoaded {
		b.WriteString(infoStyle.Render("No messages yet") + "\n")
	}

	for _, m := range v.Messages {
		who := otherMessageStyle.Render(counterparty)
		if chat.IsMe(m, userID) {
			who = ownMessageStyle.Render("You")
		}
		line := fmt.Sprintf("%s %s: %s", infoStyle.Render(m.Timestamp.Format("15:04")), who, m.Content)
		b.WriteString(str.WordWrap(line, width) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
