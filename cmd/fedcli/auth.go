package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/fedcli/internal/audit"
	"github.com/joss/fedcli/internal/render"
)

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the federation backend",
		Long: `Log in and store the session token under ~/.fedcli.

The password is prompted without echo when --password is not given.

Examples:
  fedcli login --email admin@fedcli.dev
  FED_API_URL=http://localhost:8080/api fedcli login -e manager1@fedcli.dev`,
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.Start(audit.CategoryAuth, "login")

			var err error
			if email == "" {
				if email, err = prompt("Email: "); err != nil {
					exitOnError(event, err)
				}
			}
			if password == "" {
				if password, err = promptPassword("Password: "); err != nil {
					exitOnError(event, err)
				}
			}

			ctx, cancel := timeoutCtx()
			defer cancel()
			sess, err := sessionManager().Login(ctx, email, password)
			if err != nil {
				exitOnError(event, err)
			}
			auditLogger.SetUser(sess.UserID(), string(sess.Role()))
			event.UserID, event.Role = sess.UserID(), string(sess.Role())
			auditLogger.LogSuccess(event)

			emit(map[string]any{
				"id":        sess.UserID(),
				"email":     sess.Email(),
				"role":      sess.Role(),
				"expiresAt": sess.ExpiresAt(),
			}, func(r *render.Renderer) string {
				return r.Session(sess.Email(), sess.UserID(), sess.Role(), sess.ExpiresAt())
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when empty)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.Start(audit.CategoryAuth, "logout")
			if err := sessionManager().Logout(); err != nil {
				exitOnError(event, err)
			}
			auditLogger.LogSuccess(event)
			fmt.Println("Logged out")
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in identity",
		Run: func(cmd *cobra.Command, args []string) {
			event := auditLogger.Start(audit.CategoryAuth, "whoami")
			_, sess := requireSession(event)
			auditLogger.LogSuccess(event)

			emit(sess.Claims, func(r *render.Renderer) string {
				return r.Session(sess.Email(), sess.UserID(), sess.Role(), sess.ExpiresAt())
			})
		},
	}
}

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo on a terminal, plainly otherwise so
// scripts can pipe the password in.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
