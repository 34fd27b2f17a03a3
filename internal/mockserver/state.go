package mockserver

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joss/fedcli/internal/domain"
)

type account struct {
	user     domain.User
	password string
}

// chatSession records a federation manager handling a conversation.
type chatSession struct {
	conversationID string
	adminID        string
	active         bool
	startedAt      time.Time
	endedAt        time.Time
}

// State is the whole in-memory backend. All methods are safe for concurrent use.
type State struct {
	mu  sync.RWMutex
	now func() time.Time

	accounts map[string]*account
	emails   map[string]string

	clubs       map[string]*domain.Club
	events      map[string]*domain.Event
	enrollments map[string]*enrollmentRecord

	messages map[string][]domain.ChatMessage
	sessions []*chatSession
}

// NewState returns an empty backend.
func NewState() *State {
	return &State{
		now:         time.Now,
		accounts:    make(map[string]*account),
		emails:      make(map[string]string),
		clubs:       make(map[string]*domain.Club),
		events:      make(map[string]*domain.Event),
		enrollments: make(map[string]*enrollmentRecord),
		messages:    make(map[string][]domain.ChatMessage),
	}
}

func (s *State) today() domain.Date {
	y, m, d := s.now().Date()
	return domain.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.Local)}
}

// Authenticate checks credentials. Unknown e-mail and wrong password are
// indistinguishable.
func (s *State) Authenticate(email, password string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok || s.accounts[id].password != password {
		return nil, errBadCredentials
	}
	return s.accounts[id].user, nil
}

// User returns the user with id.
func (s *State) User(id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, notFound("User with id %s not found", id)
	}
	return a.user, nil
}

// UserByEmail returns the user registered with email.
func (s *State) UserByEmail(email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, notFound("User with email %s not found", email)
	}
	return s.accounts[id].user, nil
}

// UsersByRole lists users of role ordered by last then first name.
func (s *State) UsersByRole(role domain.Role) []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usersByRoleLocked(role)
}

func (s *State) usersByRoleLocked(role domain.Role) []domain.User {
	var out []domain.User
	for _, a := range s.accounts {
		if a.user.Base().Role == role {
			out = append(out, a.user)
		}
	}
	sortUsers(out)
	return out
}

// CreateUser registers a user. The e-mail must be unused.
func (s *State) CreateUser(in domain.CreateUser) (domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, badRequest("%s", err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(in)
}

func (s *State) createUserLocked(in domain.CreateUser) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, taken := s.emails[email]; taken {
		return nil, conflict("Email %s is already registered", in.Email)
	}
	base := domain.UserBase{
		ID:        uuid.NewString(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     email,
		Role:      in.Role,
	}

	var u domain.User
	switch in.Role {
	case domain.RoleFederationManager:
		u = domain.FederationManager{UserBase: base}
	case domain.RoleClubManager:
		u = domain.ClubManager{UserBase: base, ClubID: in.ClubID}
	case domain.RoleAthlete:
		if _, ok := s.clubs[in.ClubID]; !ok {
			return nil, notFound("Club with id %s not found", in.ClubID)
		}
		a := domain.Athlete{
			UserBase:                 base,
			ClubID:                   in.ClubID,
			Weight:                   in.Weight,
			Height:                   in.Height,
			Gender:                   in.Gender,
			AffiliationStatus:        domain.AffiliationSubmitted,
			MedicalCertificateNumber: in.MedicalCertificateNumber,
		}
		if in.BirthDate != nil {
			a.BirthDate = *in.BirthDate
		}
		if in.MedicalCertificateExpireDate != nil {
			a.MedicalCertificateExpireDate = *in.MedicalCertificateExpireDate
		}
		s.clubs[in.ClubID].Athletes = append(s.clubs[in.ClubID].Athletes, base.ID)
		u = a
	}

	s.accounts[base.ID] = &account{user: u, password: in.Password}
	s.emails[email] = base.ID
	return u, nil
}

// UpdateUser replaces the editable fields of user id. Only the user or a
// federation manager may do so; role and e-mail never change.
func (s *State) UpdateUser(caller domain.UserBase, id string, patch domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, notFound("User with id %s not found", id)
	}
	if caller.ID != id && caller.Role != domain.RoleFederationManager {
		return nil, forbidden("You cannot modify another user.")
	}
	old := a.user.Base()
	if patch.Base().Role != old.Role {
		return nil, notAllowed("the role of a user cannot change")
	}

	p := patch.Base()
	merged := old
	if p.FirstName != "" {
		merged.FirstName = p.FirstName
	}
	if p.LastName != "" {
		merged.LastName = p.LastName
	}

	switch cur := a.user.(type) {
	case domain.FederationManager:
		cur.UserBase = merged
		a.user = cur
	case domain.ClubManager:
		cur.UserBase = merged
		a.user = cur
	case domain.Athlete:
		in := patch.(domain.Athlete)
		cur.UserBase = merged
		if in.Weight > 0 {
			cur.Weight = in.Weight
		}
		if in.Height > 0 {
			cur.Height = in.Height
		}
		if in.MedicalCertificateNumber != "" {
			cur.MedicalCertificateNumber = in.MedicalCertificateNumber
		}
		if !in.MedicalCertificateExpireDate.IsZero() {
			cur.MedicalCertificateExpireDate = in.MedicalCertificateExpireDate
		}
		a.user = cur
	}
	return a.user, nil
}

// ChangePassword replaces the password of user id after checking the old one.
func (s *State) ChangePassword(caller domain.UserBase, id string, in domain.ChangePassword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return notFound("User with id %s not found", id)
	}
	if caller.ID != id {
		return forbidden("You can only change your own password.")
	}
	if a.password != in.OldPassword {
		return badRequest("The current password is wrong.")
	}
	if strings.TrimSpace(in.NewPassword) == "" {
		return badRequest("The new password must not be empty.")
	}
	a.password = in.NewPassword
	return nil
}
