// Package mockserver is an in-memory federation backend for local
// development and end-to-end tests. It speaks the same REST and STOMP
// protocol as the production backend, including chat assignment
// arbitration.
package mockserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/logging"
)

// Server serves the REST API under /api and the chat broker at
// /ws-chat/websocket.
type Server struct {
	state  *State
	issuer *issuer
	broker *broker
	router chi.Router
	log    *logging.Logger

	mu   sync.Mutex
	http *http.Server
	ln   net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the HS256 signing key.
func WithSecret(secret string) Option {
	return func(s *Server) { s.issuer.secret = []byte(secret) }
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.issuer.ttl = d }
}

// WithClock sets the time source of tokens, messages and dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.issuer.now = now
		s.state.now = now
	}
}

// WithState serves an existing state instead of an empty one.
func WithState(st *State) Option {
	return func(s *Server) {
		st.now = s.state.now
		s.state = st
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		state:  NewState(),
		issuer: &issuer{secret: []byte("dev-secret-change-me"), ttl: DefaultTokenTTL, now: time.Now},
		log:    logging.New("mockserver"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.broker = newBroker(s.state, s.issuer)
	s.router = s.routes()
	return s
}

// State exposes the backend data, mostly for seeding.
func (s *Server) State() *State {
	return s.state
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/ws-chat/websocket", s.broker.handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"https://*", "http://*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(s.issuer, s.state))

			r.Get("/chat/history/{id}", s.handleHistory)
			r.Group(func(r chi.Router) {
				r.Use(roleMiddleware(domain.RoleFederationManager))
				r.Get("/chat/summaries", s.handleSummaries)
				r.Post("/chat/assign/{id}", s.handleAssign)
				r.Post("/chat/release/{id}", s.handleRelease)
			})

			r.Route("/user", func(r chi.Router) {
				r.Get("/email/{email}", s.handleUserByEmail)
				r.Get("/{id}", s.handleUser)
				r.Patch("/update/{id}", s.handleUpdateUser)
				r.Post("/change-password/{id}", s.handleChangePassword)
				r.With(roleMiddleware(domain.RoleFederationManager, domain.RoleClubManager)).
					Post("/create", s.handleCreateUser)
				r.With(roleMiddleware(domain.RoleFederationManager)).
					Get("/find-by-role/{role}", s.handleUsersByRole)
			})

			r.Route("/club", func(r chi.Router) {
				r.Get("/{id}", s.handleClub)
				r.Group(func(r chi.Router) {
					r.Use(roleMiddleware(domain.RoleFederationManager))
					r.Post("/create", s.handleCreateClub)
					r.Post("/approve/{id}", s.handleApproveClub)
					r.Get("/to-approve", s.handleClubsToApprove)
				})
			})

			r.Route("/event", func(r chi.Router) {
				r.Get("/all", s.handleEvents)
				r.With(roleMiddleware(domain.RoleFederationManager)).
					Post("/create", s.handleCreateEvent)
				r.With(roleMiddleware(domain.RoleFederationManager, domain.RoleClubManager)).
					Post("/enroll", s.handleEnroll)
			})

			r.Route("/athlete", func(r chi.Router) {
				r.With(roleMiddleware(domain.RoleFederationManager, domain.RoleClubManager)).
					Post("/create", s.handleCreateAthlete)
				r.Group(func(r chi.Router) {
					r.Use(roleMiddleware(domain.RoleFederationManager))
					r.Post("/approve/{id}", s.handleApproveAthlete)
					r.Get("/to-approve", s.handleAthletesToApprove)
				})
			})
		})
	})
	return r
}

// Start listens on addr (":0" picks a free port) and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.ln, s.http = ln, srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve_failed", nil, err)
		}
	}()
	s.log.Info("listening", map[string]interface{}{"addr": ln.Addr().String()})
	return nil
}

// Addr returns the listen address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// BaseURL is the server root, for FED_BASE_URL.
func (s *Server) BaseURL() string {
	return "http://" + s.Addr()
}

// APIURL is the REST root, for FED_API_URL.
func (s *Server) APIURL() string {
	return s.BaseURL() + "/api"
}

// Shutdown drops broker connections and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broker.Close()
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
