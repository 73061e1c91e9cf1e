package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over the dashboard summary:
	// "q_ratio > 0.25", "dh_mean < -0.5", "active_nodes < 1",
	// "alert_level == warning".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort         = 8080
	DefaultStoreCapacity    = 2000
	DefaultHistory          = 50
	DefaultQueryWindow      = 10 * time.Minute
	DefaultStreamInterval   = 5 * time.Second
	DefaultReportIntervalMs = 5000
	DefaultModeHint         = "auto"
	DefaultVersion          = "1.5.0"
	DefaultKeyHeader        = "X-TCDS-KEY"
	DefaultEntropyOK        = -0.2
	DefaultLockingOK        = 0.9
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the ingest endpoint, REST API and WebSocket hub
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates write requests.
	Auth AuthConfig `yaml:"auth"`

	// CORS lists the browser origins allowed to call the API.
	CORS CORSConfig `yaml:"cors"`

	// Store controls the in-memory report buffer.
	Store StoreConfig `yaml:"store"`

	// Runtime seeds the settings served on /api/config.
	Runtime RuntimeConfig `yaml:"runtime"`

	// Query holds the "ok" cut-offs used by /api/query ratios.
	Query QueryConfig `yaml:"query"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// StreamInterval is how often the dashboard payload is pushed to
	// WebSocket clients.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to X-TCDS-KEY.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultKeyHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultKeyHeader
}

// CORSConfig lists allowed browser origins. An empty list disables CORS headers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StoreConfig controls in-memory report retention.
type StoreConfig struct {
	// Capacity is the maximum number of reports kept; the oldest is evicted first.
	Capacity int `yaml:"capacity"`

	// History is how many of the newest reports the dashboard lists.
	History int `yaml:"history"`

	// QueryWindow is the look-back span of /api/query.
	QueryWindow time.Duration `yaml:"query_window"`
}

// RuntimeConfig seeds the mutable runtime settings.
type RuntimeConfig struct {
	ReportIntervalMs int64  `yaml:"report_interval_ms"`
	ModeHint         string `yaml:"mode_hint"`
	AlertsEnabled    bool   `yaml:"alerts_enabled"`
	Version          string `yaml:"version"`
}

// QueryConfig holds the cut-offs for the entropy and locking "ok" ratios.
type QueryConfig struct {
	EntropyOK float64 `yaml:"entropy_ok"`
	LockingOK float64 `yaml:"locking_ok"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Store: StoreConfig{
				Capacity:    DefaultStoreCapacity,
				History:     DefaultHistory,
				QueryWindow: DefaultQueryWindow,
			},
			Runtime: RuntimeConfig{
				ReportIntervalMs: DefaultReportIntervalMs,
				ModeHint:         DefaultModeHint,
				AlertsEnabled:    true,
				Version:          DefaultVersion,
			},
			Query: QueryConfig{
				EntropyOK: DefaultEntropyOK,
				LockingOK: DefaultLockingOK,
			},
			StreamInterval: DefaultStreamInterval,
		},
	}
}

// ValidModeHint reports whether m is a known runtime mode hint.
func ValidModeHint(m string) bool {
	switch m {
	case "auto", "force_scientific", "force_demo":
		return true
	}
	return false
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Store.Capacity <= 0 {
		return fmt.Errorf("server.store.capacity must be positive")
	}
	if s.Store.History <= 0 || s.Store.History > s.Store.Capacity {
		return fmt.Errorf("server.store.history must be in [1, capacity]")
	}
	if s.Store.QueryWindow <= 0 {
		return fmt.Errorf("server.store.query_window must be positive")
	}
	if s.Runtime.ReportIntervalMs <= 500 {
		return fmt.Errorf("server.runtime.report_interval_ms must be greater than 500")
	}
	if !ValidModeHint(s.Runtime.ModeHint) {
		return fmt.Errorf("server.runtime.mode_hint %q unknown: want auto|force_scientific|force_demo", s.Runtime.ModeHint)
	}
	if math.IsNaN(s.Query.EntropyOK) || math.IsNaN(s.Query.LockingOK) {
		return fmt.Errorf("server.query thresholds must be numbers")
	}
	if s.StreamInterval <= 0 {
		return fmt.Errorf("server.stream_interval must be positive")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}
