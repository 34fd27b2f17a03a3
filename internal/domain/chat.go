package domain

import "sort"

// AssignmentStatus tells whether a federation manager holds a conversation.
type AssignmentStatus string

const (
	StatusFree     AssignmentStatus = "FREE"
	StatusAssigned AssignmentStatus = "ASSIGNED"
)

// ChatSummary is one row of the support inbox: a conversation with a club manager.
// The conversation id is the club manager's user id.
type ChatSummary struct {
	ConversationID   string           `json:"chatUserId"`
	CounterpartyName string           `json:"clubManagerName"`
	LastMessageTime  LocalTime        `json:"lastMessageTime"`
	Status           AssignmentStatus `json:"status"`
	AssignedAgentID  *string          `json:"assignedAdminId"`
	WaitingForReply  bool             `json:"waitingForReply"`
}

// AssignedTo returns the holder of the conversation, or "" when nobody holds it.
func (s ChatSummary) AssignedTo() string {
	if s.AssignedAgentID == nil {
		return ""
	}
	return *s.AssignedAgentID
}

// ChatMessage is a message as delivered by history and by the live topic.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"chatUserId"`
	SenderID       string    `json:"senderId"`
	SenderRole     Role      `json:"senderRole"`
	Content        string    `json:"content"`
	Timestamp      LocalTime `json:"timestamp"`
}

// OutgoingMessage is the payload published to the send destination.
type OutgoingMessage struct {
	ConversationID string `json:"chatUserId"`
	Message        string `json:"message"`
}

// SortSummaries orders summaries the way the inbox shows them: conversations
// waiting for a reply first, then most recent activity, never-active last.
func SortSummaries(s []ChatSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.WaitingForReply != b.WaitingForReply {
			return a.WaitingForReply
		}
		if a.LastMessageTime.IsZero() != b.LastMessageTime.IsZero() {
			return !a.LastMessageTime.IsZero()
		}
		return a.LastMessageTime.After(b.LastMessageTime.Time)
	})
}

// SortMessages orders messages by timestamp ascending, keeping arrival order for ties.
func SortMessages(m []ChatMessage) {
	sort.SliceStable(m, func(i, j int) bool {
		return m[i].Timestamp.Before(m[j].Timestamp.Time)
	})
}
