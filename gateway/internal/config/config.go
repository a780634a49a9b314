package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBaudRate       = 115200
	DefaultReadTimeout    = 2 * time.Second
	DefaultReopenBackoff  = 3 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultQueueTimeout   = 5 * time.Second
	DefaultHTTPPort       = 8080
	DefaultBackendTimeout = 10 * time.Second
	DefaultLoginRetry     = 5 * time.Second
	DefaultBufferSize     = 16
	DefaultAlertCooldown  = 15 * time.Minute
	DefaultMQTTPrefix     = "stationlink"
	DefaultMQTTQoS        = 1
	DefaultStreamEvery    = 5 * time.Second
)

// Config is the complete gateway configuration.
type Config struct {
	// WorkstationName tags every metrics batch sent to the backend.
	WorkstationName string `yaml:"workstation_name"`

	// LogLevel is one of debug | info | warn | error. Hot-reloadable.
	LogLevel string `yaml:"log_level"`

	// PollInterval controls how often the writer asks the device for a
	// full status dump. Hot-reloadable.
	PollInterval time.Duration `yaml:"poll_interval"`

	// QueueTimeout bounds how long the writer waits for a queued command
	// before re-checking the poll interval.
	QueueTimeout time.Duration `yaml:"queue_timeout"`

	Serial  SerialConfig  `yaml:"serial"`
	HTTP    HTTPConfig    `yaml:"http"`
	Backend BackendConfig `yaml:"backend"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// SerialConfig describes how to reach the station controller.
type SerialConfig struct {
	// Port is the device path. Empty means discover by USB VID/PID.
	Port string `yaml:"port"`

	BaudRate int `yaml:"baud_rate"`

	// ReadTimeout bounds a single read so the reader loop can observe
	// shutdown.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ReopenBackoff is how long the reader sleeps while the port is not open.
	ReopenBackoff time.Duration `yaml:"reopen_backoff"`

	// USBIDs extends the built-in table of compatible USB adapters.
	USBIDs []USBID `yaml:"usb_ids"`
}

// USBID is a USB vendor/product pair in hex, e.g. {vid: "1A86", pid: "7523"}.
type USBID struct {
	VID string `yaml:"vid"`
	PID string `yaml:"pid"`
}

// HTTPConfig configures the control-plane HTTP endpoint.
type HTTPConfig struct {
	Port int        `yaml:"port"`
	Auth AuthConfig `yaml:"auth"`

	// StreamInterval controls how often the websocket hub re-broadcasts the
	// current report.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// AuthConfig configures request authentication on the HTTP endpoint.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the API key. Defaults to X-API-Key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// AllowedHosts restricts the Host header. Empty allows any host.
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns Header, or X-API-Key when unset.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return "X-API-Key"
	}
	return a.Header
}

// BackendConfig configures the metrics backend.
type BackendConfig struct {
	// Endpoint is the base URL of the backend, e.g. http://backend:8000.
	Endpoint string `yaml:"endpoint"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`

	// Timeout bounds every backend request.
	Timeout time.Duration `yaml:"timeout"`

	// LoginRetry is the fixed delay between login attempts.
	LoginRetry time.Duration `yaml:"login_retry"`

	// BufferSize is the number of batches held while a push is in flight.
	// When full, the oldest batch is dropped.
	BufferSize int `yaml:"buffer_size"`
}

// Password returns the backend password resolved from the environment.
func (b BackendConfig) Password() string {
	if b.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(b.PasswordEnv)
}

// MQTTConfig configures the optional MQTT bridge.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883. Empty disables MQTT.
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// AlertsConfig holds webhook targets notified on health faults.
type AlertsConfig struct {
	// Cooldown suppresses repeated firing notifications.
	Cooldown time.Duration   `yaml:"cooldown"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Level maps LogLevel to a slog.Level. Unknown values map to Info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel:     "info",
		PollInterval: DefaultPollInterval,
		QueueTimeout: DefaultQueueTimeout,
		Serial: SerialConfig{
			BaudRate:      DefaultBaudRate,
			ReadTimeout:   DefaultReadTimeout,
			ReopenBackoff: DefaultReopenBackoff,
		},
		HTTP: HTTPConfig{
			Port:           DefaultHTTPPort,
			StreamInterval: DefaultStreamEvery,
		},
		Backend: BackendConfig{
			Timeout:    DefaultBackendTimeout,
			LoginRetry: DefaultLoginRetry,
			BufferSize: DefaultBufferSize,
		},
		MQTT: MQTTConfig{
			TopicPrefix: DefaultMQTTPrefix,
			QoS:         DefaultMQTTQoS,
		},
		Alerts: AlertsConfig{
			Cooldown: DefaultAlertCooldown,
		},
	}
}

var hexID = regexp.MustCompile(`^[0-9A-Fa-f]{4}$`)

// Validate checks required fields and structural constraints. main calls it
// again after applying command-line overrides.
func Validate(cfg *Config) error {
	if cfg.WorkstationName == "" {
		return fmt.Errorf("workstation_name is required")
	}
	if cfg.Backend.Endpoint == "" {
		return fmt.Errorf("backend.endpoint is required")
	}
	if !strings.HasPrefix(cfg.Backend.Endpoint, "http://") && !strings.HasPrefix(cfg.Backend.Endpoint, "https://") {
		return fmt.Errorf("backend.endpoint must be an http(s) URL, got %q", cfg.Backend.Endpoint)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if cfg.QueueTimeout <= 0 {
		return fmt.Errorf("queue_timeout must be positive")
	}
	if cfg.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if cfg.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("serial.read_timeout must be positive")
	}
	if cfg.Serial.ReopenBackoff <= 0 {
		return fmt.Errorf("serial.reopen_backoff must be positive")
	}
	for i, id := range cfg.Serial.USBIDs {
		if !hexID.MatchString(id.VID) || !hexID.MatchString(id.PID) {
			return fmt.Errorf("serial.usb_ids[%d]: vid/pid must be 4 hex digits, got %q:%q", i, id.VID, id.PID)
		}
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", cfg.HTTP.Port)
	}
	switch cfg.HTTP.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("http.auth: unknown mode %q", cfg.HTTP.Auth.Mode)
	}
	if cfg.Backend.LoginRetry <= 0 {
		return fmt.Errorf("backend.login_retry must be positive")
	}
	if cfg.Backend.BufferSize <= 0 {
		return fmt.Errorf("backend.buffer_size must be positive")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	for i, wh := range cfg.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}
