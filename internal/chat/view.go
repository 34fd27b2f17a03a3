package chat

import "github.com/joss/fedcli/internal/domain"

// Assignment labels shown next to the selected conversation.
const (
	LabelWaiting = "WAITING FOR REPLY"
	LabelYours   = "HANDLED BY YOU"
	labelHandler = "HANDLED BY: "
	labelNobody  = "none"
)

// ViewState is everything the inbox derives its display from. Derived values
// are pure functions of it; nothing is cached.
type ViewState struct {
	Summaries     []domain.ChatSummary
	SelectedID    string
	CurrentUserID string

	seq int64
}

// Apply replaces the summaries with snap unless snap is older than what is
// already shown. It reports whether snap was applied.
func (v ViewState) Apply(snap Snapshot) (ViewState, bool) {
	if snap.Seq <= v.seq {
		return v, false
	}
	v.Summaries = snap.Summaries
	v.seq = snap.Seq
	return v, true
}

// Select returns v with id selected.
func (v ViewState) Select(id string) ViewState {
	v.SelectedID = id
	return v
}

// Selected is the summary of the selected conversation, if it is listed.
func (v ViewState) Selected() (domain.ChatSummary, bool) {
	if v.SelectedID == "" {
		return domain.ChatSummary{}, false
	}
	for _, s := range v.Summaries {
		if s.ConversationID == v.SelectedID {
			return s, true
		}
	}
	return domain.ChatSummary{}, false
}

// CanWrite reports whether the current user may compose in the selected
// conversation.
func (v ViewState) CanWrite() bool {
	s, ok := v.Selected()
	return ok && CanWrite(s, v.CurrentUserID)
}

// AssignmentLabel describes who handles the selected conversation; "" when
// nothing is selected.
func (v ViewState) AssignmentLabel() string {
	s, ok := v.Selected()
	if !ok {
		return ""
	}
	return AssignmentLabel(s, v.CurrentUserID)
}

// CanWrite is true iff s is ASSIGNED to userID.
func CanWrite(s domain.ChatSummary, userID string) bool {
	return s.Status == domain.StatusAssigned &&
		s.AssignedAgentID != nil &&
		userID != "" &&
		*s.AssignedAgentID == userID
}

// AssignmentLabel derives the assignment text of s for userID.
func AssignmentLabel(s domain.ChatSummary, userID string) string {
	if s.Status == domain.StatusFree && s.WaitingForReply {
		return LabelWaiting
	}
	holder := s.AssignedTo()
	if holder != "" && holder == userID {
		return LabelYours
	}
	if holder == "" {
		holder = labelNobody
	}
	return labelHandler + holder
}

// IsMe reports whether a message was sent by userID.
func IsMe(m domain.ChatMessage, userID string) bool {
	return userID != "" && m.SenderID == userID
}
