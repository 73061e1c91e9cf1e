package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultIntervalMs         = compute.DefaultIntervalMs
	DefaultWindowCapacity     = compute.DefaultWindowCapacity
	DefaultBufferSize         = 100
	DefaultSendTimeout        = 10 * time.Second
	DefaultRemotePollInterval = 30 * time.Second
	DefaultPollInterval       = 100 * time.Millisecond
	DefaultRegion             = "unknown"
)

// Config is the top-level agent configuration. Fields map 1:1 to
// config.example.yaml; the `server:` section of a shared file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// NodeID identifies this collector in every report. Defaults to the hostname.
	NodeID string `yaml:"node_id"`

	// Region is a free-form location tag attached to reports.
	Region string `yaml:"region"`

	// CollectorEndpoint is the base URL of the ingestion server,
	// e.g. http://localhost:8080.
	CollectorEndpoint string `yaml:"collector_endpoint"`

	// IntervalMs is the window length in milliseconds of sample time.
	IntervalMs int64 `yaml:"interval_ms"`

	// WindowCapacity bounds the number of samples held in one window.
	WindowCapacity int `yaml:"window_capacity"`

	// BufferSize is the maximum number of reports held in memory while the
	// collector is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// SendTimeout bounds a single report delivery.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// RemoteConfig enables pulling report_interval_ms from the collector's
	// /api/config endpoint every RemotePollInterval.
	RemoteConfig       bool          `yaml:"remote_config"`
	RemotePollInterval time.Duration `yaml:"remote_poll_interval"`

	// CollectorAuth configures how the agent authenticates to the collector.
	// Supports apikey | none.
	CollectorAuth AuthConfig `yaml:"collector_auth"`

	// Sensor selects and configures the raw sample source.
	Sensor SensorConfig `yaml:"sensor"`

	// Thresholds are the E-Veto classifier thresholds.
	Thresholds compute.Thresholds `yaml:"thresholds"`
}

// SensorConfig describes where raw accelerometer samples come from.
type SensorConfig struct {
	// Type is one of: jsonl | prometheus | mqtt.
	Type string `yaml:"type"`

	// Path is the JSONL file to read; "-" reads stdin. Used when Type == "jsonl".
	Path string `yaml:"path"`

	// Endpoint is the device exporter's metrics URL. Used when Type == "prometheus".
	Endpoint string `yaml:"endpoint"`

	// PollInterval controls how often the exporter is polled.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MQTT fields, used when Type == "mqtt".
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`

	// Auth configures how the agent authenticates to the sensor endpoint.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies an authentication mode.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header name the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds a bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username; PasswordEnv names the
	// environment variable holding the password.
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// DefaultKeyHeader is the API key header the collector expects.
const DefaultKeyHeader = "X-TCDS-KEY"

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// EffectiveHeader returns the configured header name, or DefaultKeyHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultKeyHeader
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	node, err := os.Hostname()
	if err != nil || node == "" {
		node = "anon"
	}
	return &Config{
		Agent: AgentConfig{
			NodeID:             node,
			Region:             DefaultRegion,
			IntervalMs:         DefaultIntervalMs,
			WindowCapacity:     DefaultWindowCapacity,
			BufferSize:         DefaultBufferSize,
			SendTimeout:        DefaultSendTimeout,
			RemotePollInterval: DefaultRemotePollInterval,
			Sensor: SensorConfig{
				Type:         "jsonl",
				Path:         "-",
				PollInterval: DefaultPollInterval,
			},
			Thresholds: compute.DefaultThresholds(),
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.CollectorEndpoint == "" {
		return fmt.Errorf("agent.collector_endpoint is required")
	}
	u, err := url.Parse(a.CollectorEndpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.collector_endpoint %q must be an http(s) URL", a.CollectorEndpoint)
	}
	if a.NodeID == "" {
		return fmt.Errorf("agent.node_id must not be empty")
	}
	if a.IntervalMs <= 0 {
		return fmt.Errorf("agent.interval_ms must be positive")
	}
	if a.WindowCapacity <= 0 {
		return fmt.Errorf("agent.window_capacity must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.SendTimeout <= 0 {
		return fmt.Errorf("agent.send_timeout must be positive")
	}
	if a.RemoteConfig && a.RemotePollInterval <= 0 {
		return fmt.Errorf("agent.remote_poll_interval must be positive when remote_config is on")
	}
	switch a.CollectorAuth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("agent.collector_auth.mode %q unknown: want apikey|none", a.CollectorAuth.Mode)
	}
	if err := validateSensor(a.Sensor); err != nil {
		return err
	}
	if err := a.Thresholds.Validate(); err != nil {
		return fmt.Errorf("agent.%w", err)
	}
	return nil
}

func validateSensor(s SensorConfig) error {
	switch s.Type {
	case "jsonl":
		if s.Path == "" {
			return fmt.Errorf("agent.sensor.path is required for jsonl")
		}
	case "prometheus":
		if s.Endpoint == "" {
			return fmt.Errorf("agent.sensor.endpoint is required for prometheus")
		}
		if s.PollInterval <= 0 {
			return fmt.Errorf("agent.sensor.poll_interval must be positive")
		}
	case "mqtt":
		if s.Broker == "" || s.Topic == "" {
			return fmt.Errorf("agent.sensor.broker and agent.sensor.topic are required for mqtt")
		}
		if s.QoS > 2 {
			return fmt.Errorf("agent.sensor.qos %d out of range [0, 2]", s.QoS)
		}
	default:
		return fmt.Errorf("agent.sensor.type %q unknown: want jsonl|prometheus|mqtt", s.Type)
	}
	switch s.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("agent.sensor.auth.mode %q unknown", s.Auth.Mode)
	}
	return nil
}
