package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is the closed set of user variants, selected by the role field.
// Implementations: FederationManager, ClubManager, Athlete.
type User interface {
	Base() UserBase
	isUser()
}

// UserBase holds the fields shared by every role.
type UserBase struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
}

// FullName returns "First Last".
func (b UserBase) FullName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}

// FederationManager administers the federation and handles support chats.
type FederationManager struct {
	UserBase
}

// ClubManager runs one club and owns one support conversation.
type ClubManager struct {
	UserBase
	ClubID string `json:"clubId,omitempty"`
}

// Athlete is a registered competitor.
type Athlete struct {
	UserBase
	ClubID                       string            `json:"clubId,omitempty"`
	BirthDate                    Date              `json:"birthDate"`
	Weight                       float64           `json:"weight,omitempty"`
	Height                       float64           `json:"height,omitempty"`
	Gender                       Gender            `json:"gender,omitempty"`
	AffiliationStatus            AffiliationStatus `json:"affiliationStatus,omitempty"`
	AffiliationDate              Date              `json:"affiliationDate"`
	FirstAffiliationDate         Date              `json:"firstAffiliationDate"`
	MedicalCertificateNumber     string            `json:"medicalCertificateNumber,omitempty"`
	MedicalCertificateExpireDate Date              `json:"medicalCertificateExpireDate"`
}

func (u FederationManager) Base() UserBase { return u.UserBase }
func (u ClubManager) Base() UserBase       { return u.UserBase }
func (u Athlete) Base() UserBase           { return u.UserBase }

func (FederationManager) isUser() {}
func (ClubManager) isUser()       {}
func (Athlete) isUser()           {}

// MedicalCertificateValid reports whether the certificate has not expired at now.
// A missing expiry date counts as invalid.
func (a Athlete) MedicalCertificateValid(now time.Time) bool {
	if a.MedicalCertificateExpireDate.IsZero() {
		return false
	}
	return a.MedicalCertificateExpireDate.OnOrAfter(now)
}

// Affiliated reports whether the athlete affiliation has been accepted.
func (a Athlete) Affiliated() bool {
	return a.AffiliationStatus == AffiliationAccepted
}

// ErrUnknownRole is returned when a user payload carries an unexpected role.
var ErrUnknownRole = errors.New("unknown role")

// UnmarshalUser decodes a user payload into the variant named by its role.
func UnmarshalUser(data []byte) (User, error) {
	var probe struct {
		Role Role `json:"role"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode user role: %w", err)
	}

	switch probe.Role {
	case RoleFederationManager:
		var u FederationManager
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, fmt.Errorf("decode federation manager: %w", err)
		}
		return u, nil
	case RoleClubManager:
		var u ClubManager
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, fmt.Errorf("decode club manager: %w", err)
		}
		return u, nil
	case RoleAthlete:
		var u Athlete
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, fmt.Errorf("decode athlete: %w", err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, probe.Role)
	}
}

// UnmarshalUsers decodes a JSON array of user payloads.
func UnmarshalUsers(data []byte) ([]User, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]User, 0, len(raw))
	for _, r := range raw {
		u, err := UnmarshalUser(r)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// MarshalUser encodes a variant, forcing the discriminant to match its type.
func MarshalUser(u User) ([]byte, error) {
	switch v := u.(type) {
	case FederationManager:
		v.Role = RoleFederationManager
		return json.Marshal(v)
	case ClubManager:
		v.Role = RoleClubManager
		return json.Marshal(v)
	case Athlete:
		v.Role = RoleAthlete
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown user type: %T", u)
	}
}

// UserRecord wraps a User so it can sit inside other JSON documents.
type UserRecord struct {
	User User
}

func (r UserRecord) MarshalJSON() ([]byte, error) {
	if r.User == nil {
		return []byte("null"), nil
	}
	return MarshalUser(r.User)
}

func (r *UserRecord) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		r.User = nil
		return nil
	}
	u, err := UnmarshalUser(data)
	if err != nil {
		return err
	}
	r.User = u
	return nil
}

// CreateUser is the payload of user/create and the nested manager of a new club.
// Role-specific fields are omitted for roles that do not use them.
type CreateUser struct {
	FirstName                    string  `json:"firstName"`
	LastName                     string  `json:"lastName"`
	Email                        string  `json:"email"`
	Password                     string  `json:"password"`
	Role                         Role    `json:"role"`
	ClubID                       string  `json:"clubId,omitempty"`
	BirthDate                    *Date   `json:"birthDate,omitempty"`
	Weight                       float64 `json:"weight,omitempty"`
	Height                       float64 `json:"height,omitempty"`
	Gender                       Gender  `json:"gender,omitempty"`
	MedicalCertificateNumber     string  `json:"medicalCertificateNumber,omitempty"`
	MedicalCertificateExpireDate *Date   `json:"medicalCertificateExpireDate,omitempty"`
}

// Validate checks the fields each role requires.
func (c CreateUser) Validate() error {
	if !c.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, c.Role)
	}
	if c.Email == "" || c.Password == "" {
		return errors.New("email and password are required")
	}
	if c.Role != RoleAthlete {
		return nil
	}
	switch {
	case c.ClubID == "":
		return errors.New("athlete requires a club")
	case c.BirthDate == nil:
		return errors.New("athlete requires a birth date")
	case c.MedicalCertificateExpireDate == nil:
		return errors.New("athlete requires a medical certificate expiry date")
	case c.Weight < 0 || c.Height < 0:
		return errors.New("weight and height must not be negative")
	case c.Gender != "" && !c.Gender.Valid():
		return fmt.Errorf("unknown gender %q", c.Gender)
	}
	return nil
}

// ChangePassword is the payload of user/change-password.
type ChangePassword struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}
