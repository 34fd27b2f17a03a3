// Package selftest checks that the services fedcli talks to are reachable.
package selftest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/net/websocket"
)

// Component and overall statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
	StatusSkipped  = "skipped"

	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
)

// DefaultSlow is the latency above which a reachable component is degraded.
const DefaultSlow = 500 * time.Millisecond

// ComponentStatus is the result of one check.
type ComponentStatus struct {
	Status  string `json:"status"`
	Latency int64  `json:"latency_ms,omitempty"`
	Target  string `json:"target,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthStatus is the combined result of every check.
type HealthStatus struct {
	Status     string                     `json:"status"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentStatus `json:"components"`
	LastError  string                     `json:"last_error,omitempty"`
	Timestamp  string                     `json:"timestamp"`
}

// Names returns the component names sorted.
func (h *HealthStatus) Names() []string {
	names := make([]string, 0, len(h.Components))
	for n := range h.Components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Probe reaches one dependency. A nil Probe marks the component skipped.
type Probe func(ctx context.Context) error

type check struct {
	name   string
	target string
	probe  Probe
}

// Checker runs probes concurrently.
type Checker struct {
	checks  []check
	slow    time.Duration
	timeout time.Duration
	started time.Time
	now     func() time.Time
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{
		slow:    DefaultSlow,
		timeout: 5 * time.Second,
		started: time.Now(),
		now:     time.Now,
	}
}

// Add registers a probe under name. target is shown to the user.
func (c *Checker) Add(name, target string, p Probe) *Checker {
	c.checks = append(c.checks, check{name: name, target: target, probe: p})
	return c
}

// WithSlow sets the degraded threshold.
func (c *Checker) WithSlow(d time.Duration) *Checker {
	c.slow = d
	return c
}

var (
	lastError string
	errorMu   sync.RWMutex
)

// SetLastError records the most recent runtime error for health reporting.
func SetLastError(err error) {
	if err == nil {
		return
	}
	errorMu.Lock()
	defer errorMu.Unlock()
	lastError = err.Error()
}

// GetLastError returns the most recent runtime error.
func GetLastError() string {
	errorMu.RLock()
	defer errorMu.RUnlock()
	return lastError
}

// ClearLastError forgets the last runtime error.
func ClearLastError() {
	errorMu.Lock()
	defer errorMu.Unlock()
	lastError = ""
}

// CheckHealth runs every probe and folds the results: any error makes the
// whole unhealthy, any slow component makes it degraded.
func (c *Checker) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     Healthy,
		Uptime:     formatUptime(c.now().Sub(c.started)),
		Components: make(map[string]ComponentStatus, len(c.checks)),
		Timestamp:  c.now().UTC().Format(time.RFC3339),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, ch := range c.checks {
		wg.Add(1)
		go func(ch check) {
			defer wg.Done()
			result := c.run(ctx, ch)
			mu.Lock()
			defer mu.Unlock()
			status.Components[ch.name] = result
			switch {
			case result.Status == StatusError:
				status.Status = Unhealthy
			case result.Status == StatusDegraded && status.Status == Healthy:
				status.Status = Degraded
			}
		}(ch)
	}
	wg.Wait()

	status.LastError = GetLastError()
	return status
}

func (c *Checker) run(ctx context.Context, ch check) ComponentStatus {
	if ch.probe == nil {
		return ComponentStatus{Status: StatusSkipped, Target: ch.target}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	err := ch.probe(ctx)
	latency := c.now().Sub(start)

	res := ComponentStatus{Status: StatusOK, Latency: latency.Milliseconds(), Target: ch.target}
	switch {
	case err != nil:
		res.Status, res.Error = StatusError, err.Error()
	case latency > c.slow:
		res.Status = StatusDegraded
	}
	return res
}

// HTTPProbe succeeds when rawURL answers with anything below 500. The REST
// root answers 401 or 404 without a token, which still proves it is up.
func HTTPProbe(client *http.Client, rawURL string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return nil
	}
}

// WebSocketProbe opens and closes a websocket to rawURL.
func WebSocketProbe(rawURL string) Probe {
	return func(ctx context.Context) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return err
		}
		origin := "http://" + u.Host
		if u.Scheme == "wss" {
			origin = "https://" + u.Host
		}
		cfg, err := websocket.NewConfig(rawURL, origin)
		if err != nil {
			return err
		}
		ws, err := cfg.DialContext(ctx)
		if err != nil {
			return err
		}
		return ws.Close()
	}
}

// AMQPProbe connects to the broker and closes the connection. An empty URL
// yields a nil probe, which reports the component as skipped.
func AMQPProbe(rawURL string) Probe {
	if rawURL == "" {
		return nil
	}
	return func(ctx context.Context) error {
		timeout := 5 * time.Second
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		conn, err := amqp.DialConfig(rawURL, amqp.Config{Dial: amqp.DefaultDial(timeout)})
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// Pinger is anything with a context-aware liveness check, like the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

var errNotOpen = errors.New("not open")

// PingProbe wraps p. A nil p fails with "not open".
func PingProbe(p Pinger) Probe {
	return func(ctx context.Context) error {
		if p == nil {
			return errNotOpen
		}
		return p.Ping(ctx)
	}
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh%dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// HealthHandler serves the checker's result as JSON: 200 when healthy or
// degraded, 503 otherwise.
func HealthHandler(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		status := c.CheckHealth(ctx)
		w.Header().Set("Content-Type", "application/json")
		if status.Status == Unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	}
}
