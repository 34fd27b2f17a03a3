// Package relay publishes chat assignment changes to an AMQP topic exchange
// so that other services can follow who handles which conversation.
package relay

import (
	"time"

	"github.com/google/uuid"

	"github.com/joss/fedcli/internal/domain"
)

// EventAssignment is the type and routing key of assignment change events.
const EventAssignment = "chat.assignment.v1"

// DefaultProducer identifies this process in envelope metadata.
const DefaultProducer = "fedcli"

// Meta describes an envelope.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope wraps an event payload.
type Envelope[T any] struct {
	Meta Meta `json:"meta"`
	Data T    `json:"data"`
}

// AssignmentChange is the payload of EventAssignment.
type AssignmentChange struct {
	ConversationID  string                  `json:"conversationId"`
	Status          domain.AssignmentStatus `json:"status"`
	AssignedAgentID *string                 `json:"assignedAgentId"`
	WaitingForReply bool                    `json:"waitingForReply"`
}

func changeOf(s domain.ChatSummary) AssignmentChange {
	c := AssignmentChange{
		ConversationID:  s.ConversationID,
		Status:          s.Status,
		WaitingForReply: s.WaitingForReply,
	}
	if s.AssignedAgentID != nil {
		id := *s.AssignedAgentID
		c.AssignedAgentID = &id
	}
	return c
}

func (c AssignmentChange) equal(o AssignmentChange) bool {
	if c.Status != o.Status || c.WaitingForReply != o.WaitingForReply {
		return false
	}
	if (c.AssignedAgentID == nil) != (o.AssignedAgentID == nil) {
		return false
	}
	return c.AssignedAgentID == nil || *c.AssignedAgentID == *o.AssignedAgentID
}

// NewEnvelope stamps a change with a fresh id and the current time.
func NewEnvelope(producer string, change AssignmentChange, now time.Time) Envelope[AssignmentChange] {
	var p *string
	if producer != "" {
		p = &producer
	}
	return Envelope[AssignmentChange]{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: p,
			Time:     now.UTC(),
			Type:     EventAssignment,
		},
		Data: change,
	}
}

// Diff returns the changes between the last published state and the given
// summaries. Conversations absent from summaries are left untouched.
func Diff(last map[string]AssignmentChange, summaries []domain.ChatSummary) []AssignmentChange {
	var out []AssignmentChange
	for _, s := range summaries {
		c := changeOf(s)
		if prev, ok := last[s.ConversationID]; ok && prev.equal(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}
