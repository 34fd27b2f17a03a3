// Package config provides centralized configuration management.
// All FED_* variables are read here and nowhere else.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// FedEnv holds all fedcli environment variables.
type FedEnv struct {
	// APIURL is the REST root, including the /api prefix (FED_API_URL)
	APIURL string

	// BaseURL is the server root hosting the /ws-chat endpoint (FED_BASE_URL)
	BaseURL string

	// PollInterval is the summary refresh period (FED_POLL_INTERVAL)
	PollInterval time.Duration

	// HTTPTimeout bounds every REST call (FED_HTTP_TIMEOUT)
	HTTPTimeout time.Duration

	// AMQPURL enables the assignment relay when set (FED_AMQP_URL)
	AMQPURL string

	// AMQPExchange is the topic exchange the relay publishes to (FED_AMQP_EXCHANGE)
	AMQPExchange string

	// LogLevel is the minimum level written by loggers (FED_LOG_LEVEL)
	LogLevel string

	// MockSecret signs tokens issued by the dev backend (FED_MOCK_SECRET)
	MockSecret string
}

const (
	DefaultAPIURL       = "http://localhost:8080/api"
	DefaultBaseURL      = "http://localhost:8080"
	DefaultPollInterval = 10 * time.Second
	DefaultHTTPTimeout  = 15 * time.Second
	DefaultExchange     = "federation.chat"
)

var (
	env     *FedEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// .env files are loaded first and never override variables already set.
func Env() *FedEnv {
	envOnce.Do(func() {
		loadDotEnv()
		env = &FedEnv{
			APIURL:       strings.TrimRight(getEnvDefault("FED_API_URL", DefaultAPIURL), "/"),
			BaseURL:      strings.TrimRight(getEnvDefault("FED_BASE_URL", DefaultBaseURL), "/"),
			PollInterval: getDurationDefault("FED_POLL_INTERVAL", DefaultPollInterval),
			HTTPTimeout:  getDurationDefault("FED_HTTP_TIMEOUT", DefaultHTTPTimeout),
			AMQPURL:      os.Getenv("FED_AMQP_URL"),
			AMQPExchange: getEnvDefault("FED_AMQP_EXCHANGE", DefaultExchange),
			LogLevel:     strings.ToLower(getEnvDefault("FED_LOG_LEVEL", "info")),
			MockSecret:   getEnvDefault("FED_MOCK_SECRET", "dev-secret-change-me"),
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

// WebSocketURL returns the raw websocket path of the SockJS chat endpoint.
func (e *FedEnv) WebSocketURL() string {
	u := e.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws-chat/websocket"
}

func loadDotEnv() {
	files := []string{".env", GetPaths().EnvFile}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			// Missing or malformed files are not fatal; real env still applies.
			_ = godotenv.Load(f)
		}
	}
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Paths holds standard fedcli file locations.
type Paths struct {
	// Home is the fedcli home directory (~/.fedcli)
	Home string

	// Session is the stored login token (~/.fedcli/session.json)
	Session string

	// Cache is the sqlite cache (~/.fedcli/cache.db)
	Cache string

	// Log is where interactive screens send log events (~/.fedcli/fedcli.log)
	Log string

	// EnvFile is the .env file path (~/.fedcli/.env)
	EnvFile string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
// FEDCLI_HOME overrides the home directory.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		fedHome := os.Getenv("FEDCLI_HOME")
		if fedHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				home = "."
			}
			fedHome = filepath.Join(home, ".fedcli")
		}

		paths = &Paths{
			Home:    fedHome,
			Session: filepath.Join(fedHome, "session.json"),
			Cache:   filepath.Join(fedHome, "cache.db"),
			Log:     filepath.Join(fedHome, "fedcli.log"),
			EnvFile: filepath.Join(fedHome, ".env"),
		}
	})
	return paths
}

// ResetPaths resets the cached paths (for testing).
func ResetPaths() {
	pathsOnce = sync.Once{}
	paths = nil
}

// Path returns a path under the fedcli home directory.
func Path(parts ...string) string {
	p := GetPaths()
	allParts := append([]string{p.Home}, parts...)
	return filepath.Join(allParts...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
