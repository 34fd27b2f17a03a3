package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/fedcli/internal/chat"
	"github.com/joss/fedcli/internal/domain"
	str "github.com/joss/fedcli/internal/strings"
)

const timeLayout = "2006-01-02 15:04"

// Renderer formats domain values as text. Pretty output adds color and
// headers; plain output is one record per line for grep and awk.
type Renderer struct {
	pretty bool
}

// New creates a renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

func (r *Renderer) header(sb *strings.Builder, title string, width int) {
	if !r.pretty {
		return
	}
	sb.WriteString(color.CyanString(title) + "\n")
	sb.WriteString(strings.Repeat("─", width) + "\n")
}

func formatTime(t domain.LocalTime) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// Summaries formats the support inbox as seen by userID.
func (r *Renderer) Summaries(list []domain.ChatSummary, userID string) string {
	if len(list) == 0 {
		return "No conversations"
	}

	var sb strings.Builder
	r.header(&sb, fmt.Sprintf("Support inbox (%d)", len(list)), 72)

	for _, s := range list {
		label := chat.AssignmentLabel(s, userID)
		if !r.pretty {
			fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\t%s\n",
				s.ConversationID, s.Status, formatTime(s.LastMessageTime), label, s.CounterpartyName)
			continue
		}

		marker := "  "
		if s.WaitingForReply {
			marker = color.YellowString("● ")
		}
		switch {
		case s.Status == domain.StatusAssigned && s.AssignedTo() == userID:
			label = color.GreenString(label)
		case s.Status == domain.StatusAssigned:
			label = color.HiBlackString(label)
		case s.WaitingForReply:
			label = color.YellowString(label)
		}
		fmt.Fprintf(&sb, "%s%s %s %s  %s\n",
			marker,
			str.Pad(s.CounterpartyName, 24),
			color.HiBlackString(str.ShortID(s.ConversationID)),
			color.HiBlackString(formatTime(s.LastMessageTime)),
			label,
		)
	}
	return sb.String()
}

// Messages formats a conversation transcript as seen by userID.
func (r *Renderer) Messages(msgs []domain.ChatMessage, userID string) string {
	if len(msgs) == 0 {
		return "No messages"
	}

	var sb strings.Builder
	for _, m := range msgs {
		ts := m.Timestamp.Format("15:04")
		if !r.pretty {
			fmt.Fprintf(&sb, "[%s] %s %s: %s\n", m.Timestamp.Format(timeLayout), m.SenderID, m.SenderRole, m.Content)
			continue
		}
		who := m.SenderRole.Label()
		if chat.IsMe(m, userID) {
			who = color.GreenString("You")
		} else {
			who = color.CyanString(who)
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", color.HiBlackString(ts), who, m.Content)
	}
	return sb.String()
}

// Users formats users of any role.
func (r *Renderer) Users(users []domain.User) string {
	if len(users) == 0 {
		return "No users found"
	}

	var sb strings.Builder
	r.header(&sb, fmt.Sprintf("Users (%d)", len(users)), 60)
	for _, u := range users {
		b := u.Base()
		if r.pretty {
			fmt.Fprintf(&sb, "%s %s %s\n", str.Pad(b.FullName(), 24), str.Pad(b.Email, 28), color.HiBlackString(b.Role.Label()))
		} else {
			fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\n", b.ID, b.Role, b.Email, b.FullName())
		}
	}
	return sb.String()
}

// User formats one user with the fields of its role.
func (r *Renderer) User(u domain.User) string {
	var sb strings.Builder
	b := u.Base()
	r.header(&sb, b.FullName(), 40)
	fmt.Fprintf(&sb, "  ID:     %s\n", b.ID)
	fmt.Fprintf(&sb, "  Email:  %s\n", b.Email)
	fmt.Fprintf(&sb, "  Role:   %s\n", b.Role.Label())

	switch v := u.(type) {
	case domain.ClubManager:
		fmt.Fprintf(&sb, "  Club:   %s\n", v.ClubID)
	case domain.Athlete:
		fmt.Fprintf(&sb, "  Club:   %s\n", v.ClubID)
		fmt.Fprintf(&sb, "  Born:   %s\n", v.BirthDate)
		fmt.Fprintf(&sb, "  Status: %s\n", r.affiliation(v.AffiliationStatus))
		cert := fmt.Sprintf("%s (expires %s)", v.MedicalCertificateNumber, v.MedicalCertificateExpireDate)
		if r.pretty && !v.MedicalCertificateValid(time.Now()) {
			cert = color.RedString(cert)
		}
		fmt.Fprintf(&sb, "  Cert:   %s\n", cert)
	}
	return sb.String()
}

func (r *Renderer) affiliation(s domain.AffiliationStatus) string {
	if !r.pretty {
		return string(s)
	}
	switch s {
	case domain.AffiliationAccepted:
		return color.GreenString(s.Label())
	case domain.AffiliationSubmitted:
		return color.YellowString(s.Label())
	default:
		return color.RedString(s.Label())
	}
}

// Clubs formats clubs.
func (r *Renderer) Clubs(clubs []domain.Club) string {
	if len(clubs) == 0 {
		return "No clubs found"
	}

	var sb strings.Builder
	r.header(&sb, fmt.Sprintf("Clubs (%d)", len(clubs)), 60)
	for _, c := range clubs {
		if r.pretty {
			fmt.Fprintf(&sb, "%s %s %s\n", str.Pad(c.Name, 28), str.Pad(c.FiscalCode, 12), r.affiliation(c.AffiliationStatus))
		} else {
			fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\n", c.ID, c.AffiliationStatus, c.FiscalCode, c.Name)
		}
	}
	return sb.String()
}

// Events formats competition events.
func (r *Renderer) Events(events []domain.Event) string {
	if len(events) == 0 {
		return "No events found"
	}

	var sb strings.Builder
	r.header(&sb, fmt.Sprintf("Events (%d)", len(events)), 72)
	for _, e := range events {
		disciplines := make([]string, 0, len(e.Disciplines))
		for _, d := range e.Disciplines {
			disciplines = append(disciplines, d.Label())
		}
		if !r.pretty {
			fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Status, e.Name, strings.Join(disciplines, ","))
			continue
		}
		status := e.Status.Label()
		if e.Status == domain.EventRegistrationOpen {
			status = color.GreenString(status)
		}
		fmt.Fprintf(&sb, "%s %s %s %s\n", e.Date, str.Pad(e.Name, 28), str.Pad(e.Location, 14), status)
		fmt.Fprintf(&sb, "    └─ %s, %d enrolled\n", strings.Join(disciplines, ", "), e.EnrolledCount)
	}
	return sb.String()
}

// Athletes formats athletes awaiting or holding affiliation.
func (r *Renderer) Athletes(athletes []domain.Athlete) string {
	if len(athletes) == 0 {
		return "No athletes found"
	}

	var sb strings.Builder
	r.header(&sb, fmt.Sprintf("Athletes (%d)", len(athletes)), 60)
	for _, a := range athletes {
		if r.pretty {
			fmt.Fprintf(&sb, "%s %s %s\n", str.Pad(a.FullName(), 24), a.BirthDate, r.affiliation(a.AffiliationStatus))
		} else {
			fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\n", a.ID, a.AffiliationStatus, a.BirthDate, a.FullName())
		}
	}
	return sb.String()
}

// Enrollment formats one enrollment.
func (r *Renderer) Enrollment(e domain.Enrollment) string {
	line := fmt.Sprintf("%s %s → %s %s (%s, %s): %s",
		e.AthleteName, e.AthleteSurname, e.EventName, e.EventDate, e.Discipline.Label(), e.Category, e.Status.Label())
	if r.pretty && e.Confirmed() {
		return color.GreenString(line)
	}
	return line
}

// Session formats the logged-in identity.
func (r *Renderer) Session(email, userID string, role domain.Role, expires time.Time) string {
	if !r.pretty {
		return fmt.Sprintf("%s\t%s\t%s\t%s", userID, role, email, expires.Format(time.RFC3339))
	}
	left := time.Until(expires).Round(time.Minute)
	return fmt.Sprintf("%s %s (%s)\n  id: %s\n  expires in %s",
		color.GreenString("●"), email, role.Label(), userID, FormatDuration(left))
}

// Failure formats an error for stderr.
func (r *Renderer) Failure(err error) string {
	if r.pretty {
		return color.RedString("✗ ") + err.Error()
	}
	return "Error: " + err.Error()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
