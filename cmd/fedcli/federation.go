package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/fedcli/internal/audit"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/render"
)

var (
	anyRole       = []domain.Role{}
	adminOnly     = []domain.Role{domain.RoleFederationManager}
	adminOrClub   = []domain.Role{domain.RoleFederationManager, domain.RoleClubManager}
	errNoPassword = errors.New("password required")
)

// userFlags collects the fields of a new user or athlete.
type userFlags struct {
	first, last, email, password string
	role                         string
	club                         string
	birth, certExpire            string
	cert                         string
	gender                       string
	weight, height               float64
}

func (f *userFlags) bind(cmd *cobra.Command, withRole bool) {
	cmd.Flags().StringVar(&f.first, "first", "", "First name")
	cmd.Flags().StringVar(&f.last, "last", "", "Last name")
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "Email")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "Password (prompted when empty)")
	if withRole {
		cmd.Flags().StringVar(&f.role, "role", string(domain.RoleClubManager), "ATHLETE, CLUB_MANAGER or FEDERATION_MANAGER")
	}
	cmd.Flags().StringVar(&f.club, "club", "", "Club id")
	cmd.Flags().StringVar(&f.birth, "birth", "", "Birth date (YYYY-MM-DD, athletes)")
	cmd.Flags().Float64Var(&f.weight, "weight", 0, "Weight in kg (athletes)")
	cmd.Flags().Float64Var(&f.height, "height", 0, "Height in cm (athletes)")
	cmd.Flags().StringVar(&f.gender, "gender", "", "MALE or FEMALE (athletes)")
	cmd.Flags().StringVar(&f.cert, "cert", "", "Medical certificate number (athletes)")
	cmd.Flags().StringVar(&f.certExpire, "cert-expire", "", "Medical certificate expiry (YYYY-MM-DD, athletes)")
}

func (f *userFlags) build(role domain.Role) (domain.CreateUser, error) {
	in := domain.CreateUser{
		FirstName:                f.first,
		LastName:                 f.last,
		Email:                    f.email,
		Password:                 f.password,
		Role:                     role,
		ClubID:                   f.club,
		Weight:                   f.weight,
		Height:                   f.height,
		Gender:                   domain.Gender(f.gender),
		MedicalCertificateNumber: f.cert,
	}
	if in.Password == "" {
		pw, err := promptPassword("Password for " + f.email + ": ")
		if err != nil {
			return in, err
		}
		if pw == "" {
			return in, errNoPassword
		}
		in.Password = pw
	}
	for _, d := range []struct {
		raw string
		dst **domain.Date
	}{{f.birth, &in.BirthDate}, {f.certExpire, &in.MedicalCertificateExpireDate}} {
		if d.raw == "" {
			continue
		}
		parsed, err := domain.ParseDate(d.raw)
		if err != nil {
			return in, err
		}
		*d.dst = &parsed
	}
	return in, in.Validate()
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User accounts",
	}
	cmd.AddCommand(userGetCmd(), userEmailCmd(), userRoleCmd(), userCreateCmd(), userUpdateCmd(), userPasswordCmd())
	return cmd
}

func userGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show a user (yourself when no id)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "user_get", commandLine(cmd, args))
			mgr, sess := requireSession(event, anyRole...)
			id := sess.UserID()
			if len(args) == 1 {
				id = args[0]
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			u, err := client(mgr).User(ctx, id)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(domain.UserRecord{User: u}, func(r *render.Renderer) string { return r.User(u) })
		},
	}
}

func userEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "email <email>",
		Short: "Find a user by email",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "user_email", commandLine(cmd, args))
			mgr, _ := requireSession(event, anyRole...)

			ctx, cancel := timeoutCtx()
			defer cancel()
			u, err := client(mgr).UserByEmail(ctx, args[0])
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(domain.UserRecord{User: u}, func(r *render.Renderer) string { return r.User(u) })
		},
	}
}

func userRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <ROLE>",
		Short: "List users with a role",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "users_by_role", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOnly...)

			role := domain.Role(args[0])
			if !role.Valid() {
				exitOnError(event, fmt.Errorf("%w: %q", domain.ErrUnknownRole, args[0]))
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			users, err := client(mgr).UsersByRole(ctx, role)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)

			records := make([]domain.UserRecord, len(users))
			for i, u := range users {
				records[i] = domain.UserRecord{User: u}
			}
			emit(records, func(r *render.Renderer) string { return r.Users(users) })
		},
	}
}

func userCreateCmd() *cobra.Command {
	var f userFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Long: `Create a user account.

Examples:
  fedcli user create --first Sara --last Neri -e sara@club.it --role CLUB_MANAGER --club <id>
  fedcli user create --role ATHLETE --club <id> --birth 2001-03-04 --cert-expire 2026-12-31 ...`,
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "user_create", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOrClub...)

			in, err := f.build(domain.Role(f.role))
			if err != nil {
				exitOnError(event, err)
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			u, err := client(mgr).CreateUser(ctx, in)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(domain.UserRecord{User: u}, func(r *render.Renderer) string { return r.User(u) })
		},
	}
	f.bind(cmd, true)
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var first, last, email string

	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Update name or email (yourself when no id)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "user_update", commandLine(cmd, args))
			mgr, sess := requireSession(event, anyRole...)
			id := sess.UserID()
			if len(args) == 1 {
				id = args[0]
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			api := client(mgr)
			u, err := api.User(ctx, id)
			if err != nil {
				exitOnError(event, err)
			}

			u = withBase(u, func(b *domain.UserBase) {
				if first != "" {
					b.FirstName = first
				}
				if last != "" {
					b.LastName = last
				}
				if email != "" {
					b.Email = email
				}
			})
			updated, err := api.UpdateUser(ctx, u)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(domain.UserRecord{User: updated}, func(r *render.Renderer) string { return r.User(updated) })
		},
	}
	cmd.Flags().StringVar(&first, "first", "", "New first name")
	cmd.Flags().StringVar(&last, "last", "", "New last name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "New email")
	return cmd
}

// withBase applies fn to the shared fields of any user variant.
func withBase(u domain.User, fn func(*domain.UserBase)) domain.User {
	switch v := u.(type) {
	case domain.FederationManager:
		fn(&v.UserBase)
		return v
	case domain.ClubManager:
		fn(&v.UserBase)
		return v
	case domain.Athlete:
		fn(&v.UserBase)
		return v
	}
	return u
}

func userPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "password",
		Short: "Change your password",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryAuth, "change_password", commandLine(cmd, args))
			mgr, sess := requireSession(event, anyRole...)

			oldPw, err := promptPassword("Current password: ")
			if err != nil {
				exitOnError(event, err)
			}
			newPw, err := promptPassword("New password: ")
			if err != nil {
				exitOnError(event, err)
			}
			if newPw == "" {
				exitOnError(event, errNoPassword)
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			if err := client(mgr).ChangePassword(ctx, sess.UserID(), domain.ChangePassword{OldPassword: oldPw, NewPassword: newPw}); err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			fmt.Println("Password changed")
		},
	}
}

func clubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "club",
		Short: "Clubs and affiliation requests",
	}
	cmd.AddCommand(clubCreateCmd(), clubGetCmd(), clubApproveCmd(), clubPendingCmd())
	return cmd
}

func clubCreateCmd() *cobra.Command {
	var name, fiscal, address, status string
	var manager userFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a club with its first manager",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "club_create", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOnly...)

			m, err := manager.build(domain.RoleClubManager)
			if err != nil {
				exitOnError(event, err)
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			club, err := client(mgr).CreateClub(ctx, domain.CreateClub{
				Name:              name,
				FiscalCode:        fiscal,
				LegalAddress:      address,
				AffiliationStatus: domain.AffiliationStatus(status),
				Manager:           m,
			})
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(club, func(r *render.Renderer) string { return r.Clubs([]domain.Club{*club}) })
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Club name")
	cmd.Flags().StringVar(&fiscal, "fiscal-code", "", "Fiscal code")
	cmd.Flags().StringVar(&address, "address", "", "Legal address")
	cmd.Flags().StringVar(&status, "status", "", "Initial affiliation status (default SUBMITTED)")
	cmd.Flags().StringVar(&manager.first, "manager-first", "", "Manager first name")
	cmd.Flags().StringVar(&manager.last, "manager-last", "", "Manager last name")
	cmd.Flags().StringVar(&manager.email, "manager-email", "", "Manager email")
	cmd.Flags().StringVar(&manager.password, "manager-password", "", "Manager password (prompted when empty)")
	return cmd
}

func clubGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a club",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "club_get", commandLine(cmd, args))
			mgr, _ := requireSession(event, anyRole...)

			ctx, cancel := timeoutCtx()
			defer cancel()
			club, err := client(mgr).Club(ctx, args[0])
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(club, func(r *render.Renderer) string { return r.Clubs([]domain.Club{*club}) })
		},
	}
}

func clubApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Accept a club affiliation request",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "club_approve", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOnly...)

			ctx, cancel := timeoutCtx()
			defer cancel()
			if err := client(mgr).ApproveClub(ctx, args[0]); err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			fmt.Println("Club approved")
		},
	}
}

func clubPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List clubs waiting for approval",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "clubs_to_approve", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOnly...)

			ctx, cancel := timeoutCtx()
			defer cancel()
			clubs, err := client(mgr).ClubsToApprove(ctx)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(clubs, func(r *render.Renderer) string { return r.Clubs(clubs) })
		},
	}
}

func eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Competition events and enrollments",
	}
	cmd.AddCommand(eventListCmd(), eventCreateCmd(), eventEnrollCmd())
	return cmd
}

func eventListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List events",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "events", commandLine(cmd, args))
			mgr, _ := requireSession(event, anyRole...)

			ctx, cancel := timeoutCtx()
			defer cancel()
			events, err := client(mgr).Events(ctx)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(events, func(r *render.Renderer) string { return r.Events(events) })
		},
	}
}

func eventCreateCmd() *cobra.Command {
	var name, location, description, date, opens, closes string
	var disciplines []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule an event",
		Long: `Schedule a competition event.

Example:
  fedcli event create --name "Regional Championship" --location Roma \
    --date 2026-06-01 --opens 2026-04-01 --closes 2026-05-15 -d KICK_BOXING -d K1`,
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "event_create", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOnly...)

			in := domain.CreateEvent{Name: name, Location: location, Description: description}
			for _, d := range []struct {
				raw string
				dst *domain.Date
			}{{date, &in.Date}, {opens, &in.RegistrationOpenDate}, {closes, &in.RegistrationCloseDate}} {
				parsed, err := domain.ParseDate(d.raw)
				if err != nil {
					exitOnError(event, err)
				}
				*d.dst = parsed
			}
			for _, d := range disciplines {
				c := domain.CompetitionType(d)
				if !c.Valid() {
					exitOnError(event, fmt.Errorf("unknown discipline %q", d))
				}
				in.Disciplines = append(in.Disciplines, c)
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			created, err := client(mgr).CreateEvent(ctx, in)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(created, func(r *render.Renderer) string { return r.Events([]domain.Event{*created}) })
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Event name")
	cmd.Flags().StringVar(&location, "location", "", "Location")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&date, "date", "", "Event date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opens, "opens", "", "Registration opening date")
	cmd.Flags().StringVar(&closes, "closes", "", "Registration closing date")
	cmd.Flags().StringSliceVarP(&disciplines, "discipline", "d", nil, "Hosted discipline (repeatable)")
	return cmd
}

func eventEnrollCmd() *cobra.Command {
	var in domain.CreateEnrollment
	var discipline string

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll an athlete into an event discipline",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "enroll", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOrClub...)

			in.CompetitionType = domain.CompetitionType(discipline)
			if !in.CompetitionType.Valid() {
				exitOnError(event, fmt.Errorf("unknown discipline %q", discipline))
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			enrollment, err := client(mgr).Enroll(ctx, in)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(enrollment, func(r *render.Renderer) string { return r.Enrollment(*enrollment) })
		},
	}
	cmd.Flags().StringVar(&in.ClubID, "club", "", "Club id")
	cmd.Flags().StringVar(&in.AthleteID, "athlete", "", "Athlete id")
	cmd.Flags().StringVar(&in.EventID, "event", "", "Event id")
	cmd.Flags().StringVarP(&discipline, "discipline", "d", "", "Discipline")
	return cmd
}

func athleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "athlete",
		Short: "Athletes and affiliation requests",
	}
	cmd.AddCommand(athleteCreateCmd(), athleteApproveCmd(), athletePendingCmd())
	return cmd
}

func athleteCreateCmd() *cobra.Command {
	var f userFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an athlete",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "athlete_create", commandLine(cmd, args))
			mgr, sess := requireSession(event, adminOrClub...)

			if f.club == "" && sess.Role() == domain.RoleClubManager {
				ctx, cancel := timeoutCtx()
				me, err := client(mgr).User(ctx, sess.UserID())
				cancel()
				if err != nil {
					exitOnError(event, err)
				}
				if cm, ok := me.(domain.ClubManager); ok {
					f.club = cm.ClubID
				}
			}
			in, err := f.build(domain.RoleAthlete)
			if err != nil {
				exitOnError(event, err)
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			a, err := client(mgr).CreateAthlete(ctx, in)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(domain.UserRecord{User: *a}, func(r *render.Renderer) string { return r.User(*a) })
		},
	}
	f.bind(cmd, false)
	return cmd
}

func athleteApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Accept an athlete affiliation",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "athlete_approve", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOnly...)

			ctx, cancel := timeoutCtx()
			defer cancel()
			if err := client(mgr).ApproveAthlete(ctx, args[0]); err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			fmt.Println("Athlete approved")
		},
	}
}

func athletePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List athletes waiting for approval",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.StartWithCommand(audit.CategoryFederation, "athletes_to_approve", commandLine(cmd, args))
			mgr, _ := requireSession(event, adminOnly...)

			ctx, cancel := timeoutCtx()
			defer cancel()
			athletes, err := client(mgr).AthletesToApprove(ctx)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			emit(athletes, func(r *render.Renderer) string { return r.Athletes(athletes) })
		},
	}
}
