package domain

// Club is an affiliated sports club.
type Club struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	FiscalCode           string            `json:"fiscalCode"`
	LegalAddress         string            `json:"legalAddress"`
	AffiliationStatus    AffiliationStatus `json:"affiliationStatus"`
	AffiliationDate      Date              `json:"affiliationDate"`
	FirstAffiliationDate Date              `json:"firstAffiliationDate"`
	Managers             []string          `json:"managers"`
	Athletes             []string          `json:"athletes"`
}

// Confirmed reports whether the club affiliation was accepted.
func (c Club) Confirmed() bool {
	return c.AffiliationStatus == AffiliationAccepted
}

// CreateClub registers a club together with its first manager.
type CreateClub struct {
	Name              string            `json:"name"`
	FiscalCode        string            `json:"fiscalCode"`
	LegalAddress      string            `json:"legalAddress"`
	AffiliationStatus AffiliationStatus `json:"affiliationStatus"`
	Manager           CreateUser        `json:"manager"`
}

// Event is a competition with a registration window.
type Event struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Description           string            `json:"description,omitempty"`
	Location              string            `json:"location"`
	Date                  Date              `json:"date"`
	RegistrationOpenDate  Date              `json:"registrationOpenDate"`
	RegistrationCloseDate Date              `json:"registrationCloseDate"`
	Status                EventStatus       `json:"status"`
	Disciplines           []CompetitionType `json:"disciplines"`
	EnrolledCount         int64             `json:"enrolledCount,omitempty"`
}

// HostsDiscipline reports whether the event runs competitions of type c.
func (e Event) HostsDiscipline(c CompetitionType) bool {
	for _, d := range e.Disciplines {
		if d == c {
			return true
		}
	}
	return false
}

// CreateEvent is the payload of event/create.
type CreateEvent struct {
	Name                  string            `json:"name"`
	Location              string            `json:"location"`
	Description           string            `json:"description,omitempty"`
	Date                  Date              `json:"date"`
	RegistrationOpenDate  Date              `json:"registrationOpenDate"`
	RegistrationCloseDate Date              `json:"registrationCloseDate"`
	Disciplines           []CompetitionType `json:"disciplines"`
}

// CreateEnrollment enrolls an athlete of a club into an event discipline.
type CreateEnrollment struct {
	ClubID          string          `json:"clubId"`
	AthleteID       string          `json:"athleteId"`
	EventID         string          `json:"eventId"`
	CompetitionType CompetitionType `json:"competitionType"`
}

// Enrollment is an athlete registration to an event.
type Enrollment struct {
	ID             string           `json:"id"`
	EventName      string           `json:"eventName"`
	EventDate      Date             `json:"eventDate"`
	AthleteName    string           `json:"athleteName"`
	AthleteSurname string           `json:"athleteSurname"`
	ClubName       string           `json:"clubName"`
	Discipline     CompetitionType  `json:"discipline"`
	Category       string           `json:"category"`
	Status         EnrollmentStatus `json:"status"`
}

// Confirmed reports whether the enrollment was approved.
func (e Enrollment) Confirmed() bool {
	return e.Status == EnrollmentApproved
}
