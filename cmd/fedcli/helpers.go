package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joss/fedcli/internal/api"
	"github.com/joss/fedcli/internal/audit"
	"github.com/joss/fedcli/internal/config"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/render"
	"github.com/joss/fedcli/internal/session"
)

// sessionManager reads the stored token and logs in through the backend.
func sessionManager() *session.Manager {
	env := config.Env()
	login := api.New(env.APIURL, nil, api.WithTimeout(env.HTTPTimeout))
	return session.NewManager(session.NewFileStore(config.GetPaths().Session), login)
}

// client returns an authenticated REST client for mgr's session.
func client(mgr *session.Manager) *api.Client {
	env := config.Env()
	return api.New(env.APIURL, mgr, api.WithTimeout(env.HTTPTimeout))
}

// requireSession exits unless logged in with one of roles.
func requireSession(event *audit.AuditEvent, roles ...domain.Role) (*session.Manager, *session.Session) {
	mgr := sessionManager()
	sess, err := mgr.Guard(roles...)
	switch {
	case errors.Is(err, session.ErrNotLoggedIn), errors.Is(err, session.ErrExpired):
		exitOnError(event, fmt.Errorf("%w: run 'fedcli login'", err))
	case errors.Is(err, session.ErrForbiddenRole):
		exitOnError(event, fmt.Errorf("access denied: %w", err))
	case err != nil:
		exitOnError(event, err)
	}
	auditLogger.SetUser(sess.UserID(), string(sess.Role()))
	event.UserID, event.Role = sess.UserID(), string(sess.Role())
	return mgr, sess
}

// exitOnError logs err to audit and stderr, then exits.
func exitOnError(event *audit.AuditEvent, err error) {
	auditLogger.LogError(event, err)
	fmt.Fprintln(os.Stderr, render.New(pretty).Failure(errors.New(api.Reason(err))))
	closeCache()
	os.Exit(1)
}

// fatalError handles errors of commands that are not audited.
func fatalError(err error) {
	fmt.Fprintln(os.Stderr, render.New(pretty).Failure(err))
	closeCache()
	os.Exit(1)
}

func closeCache() {
	if cache != nil {
		cache.Close()
	}
}

// emit prints v as JSON with --json, text otherwise.
func emit(v any, text func(r *render.Renderer) string) {
	if jsonOut {
		if err := render.Stdout().JSON(v); err != nil {
			fatalError(err)
		}
		return
	}
	fmt.Println(text(render.New(pretty)))
}

func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), config.Env().HTTPTimeout)
}
