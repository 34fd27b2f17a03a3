package mockserver

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/joss/fedcli/internal/domain"
)

type enrollmentRecord struct {
	domain.Enrollment
	athleteID string
	eventID   string
	clubID    string
}

// CreateClub registers a club together with its first manager.
func (s *State) CreateClub(in domain.CreateClub) (*domain.Club, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.FiscalCode) == "" {
		return nil, badRequest("Club name and fiscal code are required.")
	}
	in.Manager.Role = domain.RoleClubManager
	if err := in.Manager.Validate(); err != nil {
		return nil, badRequest("%s", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clubs {
		if strings.EqualFold(c.FiscalCode, in.FiscalCode) {
			return nil, conflict("A club with fiscal code %s already exists", in.FiscalCode)
		}
	}

	status := in.AffiliationStatus
	if status == "" {
		status = domain.AffiliationSubmitted
	}
	club := &domain.Club{
		ID:                uuid.NewString(),
		Name:              in.Name,
		FiscalCode:        in.FiscalCode,
		LegalAddress:      in.LegalAddress,
		AffiliationStatus: status,
		Managers:          []string{},
		Athletes:          []string{},
	}
	if status == domain.AffiliationAccepted {
		club.AffiliationDate = s.today()
		club.FirstAffiliationDate = club.AffiliationDate
	}
	s.clubs[club.ID] = club

	in.Manager.ClubID = club.ID
	manager, err := s.createUserLocked(in.Manager)
	if err != nil {
		delete(s.clubs, club.ID)
		return nil, err
	}
	club.Managers = append(club.Managers, manager.Base().ID)

	out := *club
	return &out, nil
}

// Club returns a club by id.
func (s *State) Club(id string) (*domain.Club, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clubs[id]
	if !ok {
		return nil, notFound("Club with id %s not found", id)
	}
	out := *c
	return &out, nil
}

// ApproveClub accepts a pending affiliation request.
func (s *State) ApproveClub(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clubs[id]
	if !ok {
		return notFound("Club with id %s not found", id)
	}
	if c.AffiliationStatus != domain.AffiliationSubmitted {
		return notAllowed("club %s has no pending request", c.Name)
	}
	c.AffiliationStatus = domain.AffiliationAccepted
	c.AffiliationDate = s.today()
	if c.FirstAffiliationDate.IsZero() {
		c.FirstAffiliationDate = c.AffiliationDate
	}
	return nil
}

// ClubsToApprove lists clubs with a pending request, by name.
func (s *State) ClubsToApprove() []domain.Club {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Club{}
	for _, c := range s.clubs {
		if c.AffiliationStatus == domain.AffiliationSubmitted {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *State) eventStatus(e *domain.Event) domain.EventStatus {
	if e.Status == domain.EventCancelled {
		return e.Status
	}
	today := s.today()
	switch {
	case today.After(e.Date.Time):
		return domain.EventCompleted
	case today.Before(e.RegistrationOpenDate.Time):
		return domain.EventScheduled
	case today.After(e.RegistrationCloseDate.Time):
		return domain.EventRegistrationClosed
	default:
		return domain.EventRegistrationOpen
	}
}

// CreateEvent schedules a competition. The registration window must close
// before the event takes place.
func (s *State) CreateEvent(in domain.CreateEvent) (*domain.Event, error) {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return nil, badRequest("Event name is required.")
	case in.Date.IsZero() || in.RegistrationOpenDate.IsZero() || in.RegistrationCloseDate.IsZero():
		return nil, badRequest("Event and registration dates are required.")
	case in.RegistrationCloseDate.Before(in.RegistrationOpenDate.Time):
		return nil, badRequest("Registration cannot close before it opens.")
	case in.Date.Before(in.RegistrationCloseDate.Time):
		return nil, badRequest("Registration must close before the event date.")
	case len(in.Disciplines) == 0:
		return nil, badRequest("At least one discipline is required.")
	}
	for _, d := range in.Disciplines {
		if !d.Valid() {
			return nil, badRequest("Unknown discipline %s", d)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := &domain.Event{
		ID:                    uuid.NewString(),
		Name:                  in.Name,
		Description:           in.Description,
		Location:              in.Location,
		Date:                  in.Date,
		RegistrationOpenDate:  in.RegistrationOpenDate,
		RegistrationCloseDate: in.RegistrationCloseDate,
		Disciplines:           append([]domain.CompetitionType{}, in.Disciplines...),
	}
	e.Status = s.eventStatus(e)
	s.events[e.ID] = e
	out := *e
	return &out, nil
}

// Events lists every event by date with its current status and enrollment count.
func (s *State) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		ev := *e
		ev.Status = s.eventStatus(e)
		for _, r := range s.enrollments {
			if r.eventID == e.ID && r.Status != domain.EnrollmentRetired {
				ev.EnrolledCount++
			}
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// ageCategory derives the enrollment category from the age at the event date.
func ageCategory(birth, at domain.Date) string {
	age := at.Year() - birth.Year()
	if at.YearDay() < birth.YearDay() {
		age--
	}
	switch {
	case age < 18:
		return "Junior"
	case age >= 35:
		return "Master"
	default:
		return "Senior"
	}
}

// Enroll registers an affiliated athlete of a club into an open event.
// Club managers enroll only athletes of their own club.
func (s *State) Enroll(caller domain.User, in domain.CreateEnrollment) (*domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cm, ok := caller.(domain.ClubManager); ok && cm.ClubID != in.ClubID {
		return nil, forbidden("You can only enroll athletes of your own club.")
	}
	club, ok := s.clubs[in.ClubID]
	if !ok {
		return nil, notFound("Club with id %s not found", in.ClubID)
	}
	ev, ok := s.events[in.EventID]
	if !ok {
		return nil, notFound("Event with id %s not found", in.EventID)
	}
	acc, ok := s.accounts[in.AthleteID]
	if !ok {
		return nil, notFound("Athlete with id %s not found", in.AthleteID)
	}
	athlete, ok := acc.user.(domain.Athlete)
	if !ok {
		return nil, notFound("Athlete with id %s not found", in.AthleteID)
	}

	switch {
	case athlete.ClubID != club.ID:
		return nil, notAllowed("the athlete does not belong to club %s", club.Name)
	case !athlete.Affiliated():
		return nil, notAllowed("the athlete affiliation is not active")
	case !athlete.MedicalCertificateValid(ev.Date.Time):
		return nil, notAllowed("the medical certificate expires before the event")
	case !ev.HostsDiscipline(in.CompetitionType):
		return nil, notAllowed("the event does not host %s", in.CompetitionType.Label())
	case s.eventStatus(ev) != domain.EventRegistrationOpen:
		return nil, notAllowed("registrations for %s are not open", ev.Name)
	}
	for _, r := range s.enrollments {
		if r.athleteID == in.AthleteID && r.eventID == in.EventID && r.Discipline == in.CompetitionType {
			return nil, conflict("The athlete is already enrolled in this discipline")
		}
	}

	r := &enrollmentRecord{
		Enrollment: domain.Enrollment{
			ID:             uuid.NewString(),
			EventName:      ev.Name,
			EventDate:      ev.Date,
			AthleteName:    athlete.FirstName,
			AthleteSurname: athlete.LastName,
			ClubName:       club.Name,
			Discipline:     in.CompetitionType,
			Category:       ageCategory(athlete.BirthDate, ev.Date),
			Status:         domain.EnrollmentSubmitted,
		},
		athleteID: in.AthleteID,
		eventID:   in.EventID,
		clubID:    in.ClubID,
	}
	s.enrollments[r.ID] = r
	out := r.Enrollment
	return &out, nil
}

// ApproveAthlete accepts a pending athlete affiliation.
func (s *State) ApproveAthlete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return notFound("Athlete with id %s not found", id)
	}
	a, ok := acc.user.(domain.Athlete)
	if !ok {
		return notFound("Athlete with id %s not found", id)
	}
	if a.AffiliationStatus != domain.AffiliationSubmitted {
		return notAllowed("athlete %s has no pending request", a.FullName())
	}
	a.AffiliationStatus = domain.AffiliationAccepted
	a.AffiliationDate = s.today()
	if a.FirstAffiliationDate.IsZero() {
		a.FirstAffiliationDate = a.AffiliationDate
	}
	acc.user = a
	return nil
}

// AthletesToApprove lists athletes with a pending affiliation.
func (s *State) AthletesToApprove() []domain.Athlete {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Athlete{}
	for _, u := range s.usersByRoleLocked(domain.RoleAthlete) {
		if a := u.(domain.Athlete); a.AffiliationStatus == domain.AffiliationSubmitted {
			out = append(out, a)
		}
	}
	return out
}
