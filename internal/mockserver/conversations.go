package mockserver

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/joss/fedcli/internal/domain"
)

// Responses of the assignment endpoints.
const (
	MsgAssigned = "Chat taken in charge successfully."
	MsgReleased = "Chat released successfully."
)

func sortUsers(u []domain.User) {
	sort.Slice(u, func(i, j int) bool {
		a, b := u[i].Base(), u[j].Base()
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.FirstName < b.FirstName
	})
}

func (s *State) activeSessionLocked(match func(*chatSession) bool) *chatSession {
	for _, cs := range s.sessions {
		if cs.active && match(cs) {
			return cs
		}
	}
	return nil
}

func (s *State) clubManagerLocked(id string) (domain.User, error) {
	a, ok := s.accounts[id]
	if !ok || a.user.Base().Role != domain.RoleClubManager {
		return nil, notFound("Club manager with id %s not found", id)
	}
	return a.user, nil
}

// Assign makes adminID the handler of a conversation. An admin handles at
// most one conversation at a time and a conversation has at most one handler.
// Assigning a conversation the admin already holds succeeds.
func (s *State) Assign(conversationID, adminID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.clubManagerLocked(conversationID); err != nil {
		return err
	}

	if cs := s.activeSessionLocked(func(cs *chatSession) bool { return cs.conversationID == conversationID }); cs != nil {
		if cs.adminID == adminID {
			return nil
		}
		return conflict("This conversation is already handled by another admin!")
	}
	if s.activeSessionLocked(func(cs *chatSession) bool { return cs.adminID == adminID }) != nil {
		return conflict("This admin is already handling another conversation!")
	}

	s.sessions = append(s.sessions, &chatSession{
		conversationID: conversationID,
		adminID:        adminID,
		active:         true,
		startedAt:      s.now(),
	})
	return nil
}

// Release ends the active session of a conversation. Releasing a
// conversation nobody holds succeeds.
func (s *State) Release(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.clubManagerLocked(conversationID); err != nil {
		return err
	}
	if cs := s.activeSessionLocked(func(cs *chatSession) bool { return cs.conversationID == conversationID }); cs != nil {
		cs.active = false
		cs.endedAt = s.now()
	}
	return nil
}

// Holder returns the admin handling a conversation, or "".
func (s *State) Holder(conversationID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cs := s.activeSessionLocked(func(cs *chatSession) bool { return cs.conversationID == conversationID }); cs != nil {
		return cs.adminID
	}
	return ""
}

// RouteMessage checks that sender may write into the conversation and stores
// the message. Club managers write only to their own conversation, athletes
// never write, and federation managers only to the conversation they hold.
func (s *State) RouteMessage(senderID string, in domain.OutgoingMessage) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[senderID]
	if !ok {
		return domain.ChatMessage{}, notFound("User with id %s not found", senderID)
	}
	sender := a.user.Base()

	switch sender.Role {
	case domain.RoleAthlete:
		return domain.ChatMessage{}, notAllowed("You are not allowed to write in this chat!")
	case domain.RoleClubManager:
		if in.ConversationID != sender.ID {
			return domain.ChatMessage{}, notAllowed("You are not allowed to write in this chat!")
		}
	case domain.RoleFederationManager:
		cs := s.activeSessionLocked(func(cs *chatSession) bool { return cs.conversationID == in.ConversationID })
		if cs == nil || cs.adminID != sender.ID {
			return domain.ChatMessage{}, notAllowed("take charge of this chat before writing in it")
		}
	}
	if _, err := s.clubManagerLocked(in.ConversationID); err != nil {
		return domain.ChatMessage{}, err
	}
	if strings.TrimSpace(in.Message) == "" {
		return domain.ChatMessage{}, badRequest("The message must not be empty.")
	}

	msg := domain.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       sender.ID,
		SenderRole:     sender.Role,
		Content:        in.Message,
		Timestamp:      domain.LocalTime{Time: s.now()},
	}
	s.messages[in.ConversationID] = append(s.messages[in.ConversationID], msg)
	return msg, nil
}

// History returns a conversation oldest first. A club manager reads only
// their own conversation.
func (s *State) History(caller domain.UserBase, conversationID string) ([]domain.ChatMessage, error) {
	if caller.Role == domain.RoleClubManager && caller.ID != conversationID {
		return nil, forbidden("You cannot view the message history of other club managers.")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.ChatMessage{}, s.messages[conversationID]...)
	domain.SortMessages(out)
	return out, nil
}

// Summaries returns one row per club manager, waiting conversations first,
// then by last activity with never-active conversations last.
func (s *State) Summaries() []domain.ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	managers := s.usersByRoleLocked(domain.RoleClubManager)
	out := make([]domain.ChatSummary, 0, len(managers))
	for _, m := range managers {
		base := m.Base()
		sum := domain.ChatSummary{
			ConversationID:   base.ID,
			CounterpartyName: base.FirstName + " " + base.LastName,
			Status:           domain.StatusFree,
		}
		if cs := s.activeSessionLocked(func(cs *chatSession) bool { return cs.conversationID == base.ID }); cs != nil {
			admin := cs.adminID
			sum.Status = domain.StatusAssigned
			sum.AssignedAgentID = &admin
		}
		if msgs := s.messages[base.ID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			sum.LastMessageTime = last.Timestamp
			sum.WaitingForReply = last.SenderID == base.ID
		}
		out = append(out, sum)
	}
	domain.SortSummaries(out)
	return out
}
