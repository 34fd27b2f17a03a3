package mockserver

import (
	"fmt"
	"time"

	"github.com/joss/fedcli/internal/domain"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password"

// Demo holds the ids of seeded records.
type Demo struct {
	Admins   []string
	Managers []string
	Clubs    []string
	Athletes []string
	Events   []string
}

// Seed fills st with two federation managers, three clubs with their
// managers and athletes, an open event, and a few conversations, one of them
// waiting for a reply.
func Seed(st *State) (*Demo, error) {
	demo := &Demo{}

	admins := []domain.CreateUser{
		{FirstName: "Anna", LastName: "Bianchi", Email: "admin@fedcli.dev"},
		{FirstName: "Marco", LastName: "Neri", Email: "admin2@fedcli.dev"},
	}
	for _, a := range admins {
		a.Password, a.Role = DemoPassword, domain.RoleFederationManager
		u, err := st.CreateUser(a)
		if err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
		demo.Admins = append(demo.Admins, u.Base().ID)
	}

	clubs := []struct{ name, code, first, last string }{
		{"Fight Club Roma", "FCR001", "Luca", "Rossi"},
		{"Palestra Milano", "PMI002", "Giulia", "Verdi"},
		{"Dojo Torino", "DTO003", "Paolo", "Gallo"},
	}
	for i, c := range clubs {
		club, err := st.CreateClub(domain.CreateClub{
			Name:              c.name,
			FiscalCode:        c.code,
			LegalAddress:      "Via Roma " + fmt.Sprint(i+1),
			AffiliationStatus: domain.AffiliationAccepted,
			Manager: domain.CreateUser{
				FirstName: c.first,
				LastName:  c.last,
				Email:     fmt.Sprintf("manager%d@fedcli.dev", i+1),
				Password:  DemoPassword,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("seed club: %w", err)
		}
		demo.Clubs = append(demo.Clubs, club.ID)
		demo.Managers = append(demo.Managers, club.Managers[0])
	}

	today := st.today()
	birth := domain.Date{Time: today.AddDate(-24, 0, 0)}
	expiry := domain.Date{Time: today.AddDate(1, 0, 0)}
	u, err := st.CreateUser(domain.CreateUser{
		FirstName:                    "Sara",
		LastName:                     "Conti",
		Email:                        "athlete1@fedcli.dev",
		Password:                     DemoPassword,
		Role:                         domain.RoleAthlete,
		ClubID:                       demo.Clubs[0],
		BirthDate:                    &birth,
		Weight:                       61,
		Height:                       168,
		Gender:                       domain.GenderFemale,
		MedicalCertificateNumber:     "MC-0001",
		MedicalCertificateExpireDate: &expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("seed athlete: %w", err)
	}
	demo.Athletes = append(demo.Athletes, u.Base().ID)
	if err := st.ApproveAthlete(u.Base().ID); err != nil {
		return nil, err
	}

	ev, err := st.CreateEvent(domain.CreateEvent{
		Name:                  "Regional Championship",
		Location:              "Bologna",
		Date:                  domain.Date{Time: today.AddDate(0, 1, 0)},
		RegistrationOpenDate:  domain.Date{Time: today.AddDate(0, 0, -7)},
		RegistrationCloseDate: domain.Date{Time: today.AddDate(0, 0, 14)},
		Disciplines:           []domain.CompetitionType{domain.CompetitionKickBoxing, domain.CompetitionK1},
	})
	if err != nil {
		return nil, fmt.Errorf("seed event: %w", err)
	}
	demo.Events = append(demo.Events, ev.ID)

	// Conversation 1 waits for a reply; conversation 2 was answered.
	if err := seedMessage(st, demo.Managers[0], demo.Managers[0], "Hello, our affiliation renewal is stuck."); err != nil {
		return nil, err
	}
	if err := seedMessage(st, demo.Managers[1], demo.Managers[1], "Can we enroll two athletes late?"); err != nil {
		return nil, err
	}
	if err := st.Assign(demo.Managers[1], demo.Admins[1]); err != nil {
		return nil, err
	}
	if err := seedMessage(st, demo.Admins[1], demo.Managers[1], "Yes, until Friday."); err != nil {
		return nil, err
	}
	return demo, st.Release(demo.Managers[1])
}

func seedMessage(st *State, sender, conversation, text string) error {
	_, err := st.RouteMessage(sender, domain.OutgoingMessage{ConversationID: conversation, Message: text})
	if err != nil {
		return fmt.Errorf("seed message: %w", err)
	}
	// Keep seeded timestamps distinct.
	time.Sleep(time.Millisecond)
	return nil
}
