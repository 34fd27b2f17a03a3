package selftest

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/joss/fedcli/internal/config"
)

// Environment describes the local setup: configuration and session, not
// remote services.
type Environment struct {
	HasTTY       bool
	Home         string
	APIURL       string
	WebSocketURL string
	AMQP         bool
	LoggedIn     bool
	Role         string
	Warnings     []string
	Errors       []string
}

// SessionInfo is what Inspect needs to know about the stored session.
// Err is non-nil when no usable session exists.
type SessionInfo struct {
	Role string
	Err  error
}

// Inspect validates env and paths and records the session state.
func Inspect(env *config.FedEnv, paths *config.Paths, sess SessionInfo) *Environment {
	e := &Environment{
		HasTTY:       term.IsTerminal(int(os.Stdin.Fd())),
		Home:         paths.Home,
		APIURL:       env.APIURL,
		WebSocketURL: env.WebSocketURL(),
		AMQP:         env.AMQPURL != "",
	}

	if !strings.HasPrefix(env.BaseURL, "http://") && !strings.HasPrefix(env.BaseURL, "https://") {
		e.Errors = append(e.Errors, fmt.Sprintf("FED_BASE_URL %q is not an http(s) URL", env.BaseURL))
	}
	if env.PollInterval <= 0 {
		e.Errors = append(e.Errors, "FED_POLL_INTERVAL must be positive")
	}
	if !e.HasTTY {
		e.Warnings = append(e.Warnings, "stdin is not a terminal: inbox and support need one")
	}
	if !e.AMQP {
		e.Warnings = append(e.Warnings, "FED_AMQP_URL not set: relay disabled")
	}

	if sess.Err == nil {
		e.LoggedIn, e.Role = true, sess.Role
	} else {
		e.Warnings = append(e.Warnings, "no session: "+sess.Err.Error())
	}
	return e
}

// IsHealthy reports whether no errors were found.
func (e *Environment) IsHealthy() bool {
	return len(e.Errors) == 0
}

// CanUseInbox reports whether the inbox screen can start.
func (e *Environment) CanUseInbox() bool {
	return e.IsHealthy() && e.HasTTY && e.LoggedIn && e.Role == "FEDERATION_MANAGER"
}

// CanRelay reports whether the relay can start.
func (e *Environment) CanRelay() bool {
	return e.IsHealthy() && e.AMQP && e.LoggedIn && e.Role == "FEDERATION_MANAGER"
}

// Summary returns a human-readable report.
func (e *Environment) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Home:      %s\n", e.Home)
	fmt.Fprintf(&sb, "API:       %s\n", e.APIURL)
	fmt.Fprintf(&sb, "Broker:    %s\n", e.WebSocketURL)
	if e.LoggedIn {
		fmt.Fprintf(&sb, "Session:   %s\n", e.Role)
	} else {
		sb.WriteString("Session:   none\n")
	}
	for _, w := range e.Warnings {
		fmt.Fprintf(&sb, "! %s\n", w)
	}
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "✗ %s\n", err)
	}
	return strings.TrimRight(sb.String(), "\n")
}
