// Package domain defines the federation entities exchanged with the backend.
package domain

// Role is the discriminant of every user record.
type Role string

const (
	RoleAthlete           Role = "ATHLETE"
	RoleClubManager       Role = "CLUB_MANAGER"
	RoleFederationManager Role = "FEDERATION_MANAGER"
)

// AffiliationStatus tracks a club or athlete affiliation request.
type AffiliationStatus string

const (
	AffiliationSubmitted AffiliationStatus = "SUBMITTED"
	AffiliationAccepted  AffiliationStatus = "ACCEPTED"
	AffiliationRejected  AffiliationStatus = "REJECTED"
	AffiliationExpired   AffiliationStatus = "EXPIRED"
)

// EventStatus is the lifecycle of a competition event.
type EventStatus string

const (
	EventScheduled          EventStatus = "SCHEDULED"
	EventRegistrationOpen   EventStatus = "REGISTRATION_OPEN"
	EventRegistrationClosed EventStatus = "REGISTRATION_CLOSED"
	EventCompleted          EventStatus = "COMPLETED"
	EventCancelled          EventStatus = "CANCELLED"
)

// EnrollmentStatus is the lifecycle of an athlete enrollment.
type EnrollmentStatus string

const (
	EnrollmentDraft     EnrollmentStatus = "DRAFT"
	EnrollmentSubmitted EnrollmentStatus = "SUBMITTED"
	EnrollmentApproved  EnrollmentStatus = "APPROVED"
	EnrollmentRejected  EnrollmentStatus = "REJECTED"
	EnrollmentRetired   EnrollmentStatus = "RETIRED"
)

// CompetitionType is a discipline an event can host.
type CompetitionType string

const (
	CompetitionKickBoxing CompetitionType = "KICK_BOXING"
	CompetitionK1         CompetitionType = "K1"
	CompetitionBoxe       CompetitionType = "BOXE"
	CompetitionMMA        CompetitionType = "MMA"
	CompetitionGrappling  CompetitionType = "GRAPPLING"
)

// Gender of an athlete.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// labels maps enum values to display labels (extend via map, not switch).
var labels = map[string]string{
	string(RoleAthlete):           "Athlete",
	string(RoleClubManager):       "Club manager",
	string(RoleFederationManager): "Federation manager",

	string(AffiliationSubmitted): "Request sent",
	string(AffiliationAccepted):  "Active",
	string(AffiliationRejected):  "Request rejected",
	string(AffiliationExpired):   "Expired",

	string(EventScheduled):          "Scheduled",
	string(EventRegistrationOpen):   "Registration open",
	string(EventRegistrationClosed): "Registration closed",
	string(EventCompleted):          "Completed",
	string(EventCancelled):          "Cancelled",

	"enrollment:" + string(EnrollmentDraft):     "Draft",
	"enrollment:" + string(EnrollmentSubmitted): "Sent",
	"enrollment:" + string(EnrollmentApproved):  "Accepted",
	"enrollment:" + string(EnrollmentRejected):  "Rejected",
	"enrollment:" + string(EnrollmentRetired):   "Withdrawn",

	string(CompetitionKickBoxing): "Kick boxing",
	string(CompetitionK1):         "K1",
	string(CompetitionBoxe):       "Boxe",
	string(CompetitionMMA):        "Mixed martial arts",
	string(CompetitionGrappling):  "Grappling",
}

func label(key, fallback string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	return fallback
}

func (r Role) Valid() bool {
	switch r {
	case RoleAthlete, RoleClubManager, RoleFederationManager:
		return true
	}
	return false
}

func (r Role) Label() string { return label(string(r), "User") }

func (s AffiliationStatus) Valid() bool {
	switch s {
	case AffiliationSubmitted, AffiliationAccepted, AffiliationRejected, AffiliationExpired:
		return true
	}
	return false
}

func (s AffiliationStatus) Label() string { return label(string(s), "Unknown") }

func (s EventStatus) Valid() bool {
	switch s {
	case EventScheduled, EventRegistrationOpen, EventRegistrationClosed, EventCompleted, EventCancelled:
		return true
	}
	return false
}

func (s EventStatus) Label() string { return label(string(s), "Unknown") }

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentDraft, EnrollmentSubmitted, EnrollmentApproved, EnrollmentRejected, EnrollmentRetired:
		return true
	}
	return false
}

// Label uses a prefixed key since SUBMITTED and REJECTED collide with affiliation values.
func (s EnrollmentStatus) Label() string { return label("enrollment:"+string(s), "Unknown") }

func (c CompetitionType) Valid() bool {
	switch c {
	case CompetitionKickBoxing, CompetitionK1, CompetitionBoxe, CompetitionMMA, CompetitionGrappling:
		return true
	}
	return false
}

func (c CompetitionType) Label() string { return label(string(c), "Unknown") }

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}
