// Package metrics exposes chat client counters in Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joss/fedcli/internal/logging"
)

// Metrics holds process-wide counters.
type Metrics struct {
	// Summary feed
	SummaryPolls        atomic.Int64
	SummaryPollFailures atomic.Int64
	StaleSnapshots      atomic.Int64
	LastPollDurationMs  atomic.Int64

	// Assignment actions
	Assignments         atomic.Int64
	Releases            atomic.Int64
	AssignmentConflicts atomic.Int64

	// Live channel
	MessagesReceived atomic.Int64
	MessagesSent     atomic.Int64
	Reconnects       atomic.Int64
	OpenWindows      atomic.Int64

	// Relay
	RelayPublished atomic.Int64
	RelayFailures  atomic.Int64

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Global returns the process-wide instance.
func Global() *Metrics {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// New returns a zeroed instance, for tests and embedded use.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordPoll records one summary fetch.
func (m *Metrics) RecordPoll(success bool, durationMs int64) {
	m.SummaryPolls.Add(1)
	if !success {
		m.SummaryPollFailures.Add(1)
	}
	m.LastPollDurationMs.Store(durationMs)
}

// RecordAssignment records a take-charge or release attempt.
func (m *Metrics) RecordAssignment(release, conflict bool) {
	if release {
		m.Releases.Add(1)
	} else {
		m.Assignments.Add(1)
	}
	if conflict {
		m.AssignmentConflicts.Add(1)
	}
}

// RecordRelay records one publish attempt.
func (m *Metrics) RecordRelay(success bool) {
	if success {
		m.RelayPublished.Add(1)
	} else {
		m.RelayFailures.Add(1)
	}
}

type series struct {
	name, help, kind string
	value            func(*Metrics) string
}

func counter(name, help string, v func(*Metrics) *atomic.Int64) series {
	return series{name, help, "counter", func(m *Metrics) string { return fmt.Sprint(v(m).Load()) }}
}

func gauge(name, help string, v func(*Metrics) *atomic.Int64) series {
	return series{name, help, "gauge", func(m *Metrics) string { return fmt.Sprint(v(m).Load()) }}
}

// exposition lists every series in output order. Extend here.
var exposition = []series{
	{"fedcli_uptime_seconds", "Time since the process started", "gauge",
		func(m *Metrics) string { return fmt.Sprintf("%.2f", time.Since(m.startTime).Seconds()) }},
	counter("fedcli_summary_polls_total", "Summary fetches", func(m *Metrics) *atomic.Int64 { return &m.SummaryPolls }),
	counter("fedcli_summary_poll_failures_total", "Summary fetches that failed", func(m *Metrics) *atomic.Int64 { return &m.SummaryPollFailures }),
	counter("fedcli_stale_snapshots_total", "Summary responses dropped as out of order", func(m *Metrics) *atomic.Int64 { return &m.StaleSnapshots }),
	gauge("fedcli_last_poll_duration_ms", "Duration of the last summary fetch", func(m *Metrics) *atomic.Int64 { return &m.LastPollDurationMs }),
	counter("fedcli_assignments_total", "Take-charge attempts", func(m *Metrics) *atomic.Int64 { return &m.Assignments }),
	counter("fedcli_releases_total", "Release attempts", func(m *Metrics) *atomic.Int64 { return &m.Releases }),
	counter("fedcli_assignment_conflicts_total", "Assignment attempts rejected with 409", func(m *Metrics) *atomic.Int64 { return &m.AssignmentConflicts }),
	counter("fedcli_messages_received_total", "Live messages received", func(m *Metrics) *atomic.Int64 { return &m.MessagesReceived }),
	counter("fedcli_messages_sent_total", "Live messages sent", func(m *Metrics) *atomic.Int64 { return &m.MessagesSent }),
	counter("fedcli_reconnects_total", "Live channel reconnect attempts", func(m *Metrics) *atomic.Int64 { return &m.Reconnects }),
	gauge("fedcli_open_windows", "Conversation windows currently open", func(m *Metrics) *atomic.Int64 { return &m.OpenWindows }),
	counter("fedcli_relay_published_total", "Assignment events published", func(m *Metrics) *atomic.Int64 { return &m.RelayPublished }),
	counter("fedcli_relay_failures_total", "Assignment events that failed to publish", func(m *Metrics) *atomic.Int64 { return &m.RelayFailures }),
}

// Handler serves the text exposition format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		for i, s := range exposition {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "# HELP %s %s\n", s.name, s.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", s.name, s.kind)
			fmt.Fprintf(w, "%s %s\n", s.name, s.value(m))
		}
	}
}

// Server serves /metrics and /health.
type Server struct {
	srv *http.Server
	mux *http.ServeMux
	ln  net.Listener
}

// NewServer creates a server for m on addr (":9464", "127.0.0.1:0").
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{mux: mux, srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}

// Handle mounts h on pattern. Call before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start binds the listener and serves in the background. Bind errors are
// returned immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.New("metrics").Error("serve_failed", map[string]interface{}{"addr": s.Addr()}, err)
		}
	}()
	return nil
}

// Addr is the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
