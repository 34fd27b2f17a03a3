package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joss/fedcli/internal/domain"
)

func TestCanWrite(t *testing.T) {
	tests := []struct {
		name     string
		summary  domain.ChatSummary
		user     string
		expected bool
	}{
		{"assigned to me", domain.ChatSummary{Status: domain.StatusAssigned, AssignedAgentID: strptr("A1")}, "A1", true},
		{"assigned to someone else", domain.ChatSummary{Status: domain.StatusAssigned, AssignedAgentID: strptr("A2")}, "A1", false},
		{"assigned with null holder", domain.ChatSummary{Status: domain.StatusAssigned}, "A1", false},
		{"free with my id left over", domain.ChatSummary{Status: domain.StatusFree, AssignedAgentID: strptr("A1")}, "A1", false},
		{"free", domain.ChatSummary{Status: domain.StatusFree}, "A1", false},
		{"no current user", domain.ChatSummary{Status: domain.StatusAssigned, AssignedAgentID: strptr("")}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanWrite(tt.summary, tt.user))
		})
	}
}

func TestAssignmentLabel(t *testing.T) {
	tests := []struct {
		name     string
		summary  domain.ChatSummary
		expected string
	}{
		{"free and waiting", domain.ChatSummary{Status: domain.StatusFree, WaitingForReply: true}, "WAITING FOR REPLY"},
		{"mine", domain.ChatSummary{Status: domain.StatusAssigned, AssignedAgentID: strptr("A1")}, "HANDLED BY YOU"},
		{"mine and waiting", domain.ChatSummary{Status: domain.StatusAssigned, AssignedAgentID: strptr("A1"), WaitingForReply: true}, "HANDLED BY YOU"},
		{"someone else", domain.ChatSummary{Status: domain.StatusAssigned, AssignedAgentID: strptr("A2")}, "HANDLED BY: A2"},
		{"free, not waiting", domain.ChatSummary{Status: domain.StatusFree}, "HANDLED BY: none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AssignmentLabel(tt.summary, "A1"))
		})
	}
}

func TestViewState_Selection(t *testing.T) {
	v := ViewState{CurrentUserID: "A1"}
	v, _ = v.Apply(Snapshot{Seq: 1, Summaries: []domain.ChatSummary{
		{ConversationID: "c1", Status: domain.StatusFree, WaitingForReply: true},
	}})

	_, ok := v.Selected()
	assert.False(t, ok)
	assert.Equal(t, "", v.AssignmentLabel())
	assert.False(t, v.CanWrite())

	v = v.Select("c1")
	s, ok := v.Selected()
	assert.True(t, ok)
	assert.Equal(t, "c1", s.ConversationID)
	assert.Equal(t, "WAITING FOR REPLY", v.AssignmentLabel())
	assert.False(t, v.CanWrite())

	v = v.Select("gone")
	_, ok = v.Selected()
	assert.False(t, ok)
}

func TestViewState_ApplyRejectsOlderSnapshots(t *testing.T) {
	v := ViewState{CurrentUserID: "A1", SelectedID: "c1"}

	newer := Snapshot{Seq: 5, Summaries: []domain.ChatSummary{
		{ConversationID: "c1", Status: domain.StatusAssigned, AssignedAgentID: strptr("A1")},
	}}
	older := Snapshot{Seq: 4, Summaries: []domain.ChatSummary{
		{ConversationID: "c1", Status: domain.StatusFree, WaitingForReply: true},
	}}

	v, applied := v.Apply(newer)
	assert.True(t, applied)
	v, applied = v.Apply(older)
	assert.False(t, applied)
	assert.Equal(t, "HANDLED BY YOU", v.AssignmentLabel())

	_, applied = v.Apply(newer)
	assert.False(t, applied, "the same snapshot twice is not newer")
}

func TestIsMe(t *testing.T) {
	m := msg("m1", "c1", "A1", "hi")
	assert.True(t, IsMe(m, "A1"))
	assert.False(t, IsMe(m, "C1"))
	assert.False(t, IsMe(domain.ChatMessage{}, ""))
}
