// ABOUTME: Configuration loading and parsing for parleyd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultInstanceID is used when neither config nor SERVER_ID provide one.
const DefaultInstanceID = "server-1"

// Config represents the complete parleyd configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Instance     InstanceConfig     `yaml:"instance"`
	Store        StoreConfig        `yaml:"store"`
	MessageStore MessageStoreConfig `yaml:"message_store"`
	Ephemeral    EphemeralConfig    `yaml:"ephemeral"`
	Token        TokenConfig        `yaml:"token"`
	Realtime     RealtimeConfig     `yaml:"realtime"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Cleanup      CleanupConfig      `yaml:"cleanup"`
	Reset        ResetConfig        `yaml:"reset"`
	Email        EmailConfig        `yaml:"email"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// InstanceConfig identifies this server instance in a multi-instance deployment
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StoreConfig holds the relational (SQLite) store configuration
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MessageStoreConfig holds the document (MongoDB) store configuration
type MessageStoreConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// EphemeralConfig holds the key/value (Redis) store configuration
type EphemeralConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TokenConfig holds bearer token signing configuration
type TokenConfig struct {
	Secret      string        `yaml:"secret"`
	TTL         time.Duration `yaml:"-"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	AllowLegacy bool          `yaml:"allow_legacy"`

	TTLRaw string `yaml:"ttl"`
}

// RealtimeConfig holds long-lived connection configuration
type RealtimeConfig struct {
	IdleTimeout time.Duration `yaml:"-"`
	SendBuffer  int           `yaml:"send_buffer"`

	IdleTimeoutRaw string `yaml:"idle_timeout"`
}

// PipelineConfig holds message pipeline queue configuration
type PipelineConfig struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	DrainTimeout  time.Duration `yaml:"-"`

	DrainTimeoutRaw string `yaml:"drain_timeout"`
}

// CleanupConfig holds reconciler scheduling configuration
type CleanupConfig struct {
	Interval      time.Duration `yaml:"-"`
	RetentionDays int           `yaml:"retention_days"`

	IntervalRaw string `yaml:"interval"`
}

// ResetConfig holds password-reset token and rate-limit configuration
type ResetConfig struct {
	TokenTTL   time.Duration `yaml:"-"`
	RateWindow time.Duration `yaml:"-"`
	RateLimit  int           `yaml:"rate_limit"`

	TokenTTLRaw   string `yaml:"token_ttl"`
	RateWindowRaw string `yaml:"rate_window"`
}

// EmailConfig holds outbound SMTP configuration.
// An empty Host disables SMTP; reset emails are logged instead.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} or ${VAR_NAME:-default} are expanded.
// Duration strings are parsed into time.Duration values and defaults are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. The ${VAR_NAME:-default} form falls back to the default when
// the variable is unset or empty.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} and ${VAR_NAME:-default} patterns
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		expr := re.FindStringSubmatch(match)[1]
		name, fallback, hasFallback := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasFallback {
			return fallback
		}
		return val
	})
}

// applyDefaults fills zero values with documented defaults.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Instance.ID == "" {
		c.Instance.ID = os.Getenv("SERVER_ID")
	}
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}
	if c.Token.TTL == 0 {
		c.Token.TTL = 24 * time.Hour
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = "parley"
	}
	if c.Token.Audience == "" {
		c.Token.Audience = "parley-clients"
	}
	if c.Realtime.IdleTimeout == 0 {
		c.Realtime.IdleTimeout = 60 * time.Second
	}
	if c.Realtime.SendBuffer == 0 {
		c.Realtime.SendBuffer = 64
	}
	if c.Pipeline.QueueCapacity == 0 {
		c.Pipeline.QueueCapacity = 10_000
	}
	if c.Pipeline.DrainTimeout == 0 {
		c.Pipeline.DrainTimeout = 10 * time.Second
	}
	if c.Cleanup.Interval == 0 {
		c.Cleanup.Interval = time.Hour
	}
	if c.Cleanup.RetentionDays == 0 {
		c.Cleanup.RetentionDays = 30
	}
	if c.Reset.TokenTTL == 0 {
		c.Reset.TokenTTL = 30 * time.Minute
	}
	if c.Reset.RateWindow == 0 {
		c.Reset.RateWindow = time.Hour
	}
	if c.Reset.RateLimit == 0 {
		c.Reset.RateLimit = 5
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
	if c.Email.From == "" {
		c.Email.From = "no-reply@parley.local"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return fmt.Errorf("token.secret is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.MessageStore.URI == "" {
		return fmt.Errorf("message_store.uri is required")
	}
	if c.MessageStore.Database == "" {
		return fmt.Errorf("message_store.database is required")
	}
	if c.Ephemeral.Addr == "" {
		return fmt.Errorf("ephemeral.addr is required")
	}
	if c.Cleanup.RetentionDays < 0 {
		return fmt.Errorf("cleanup.retention_days must not be negative")
	}
	if c.Reset.RateLimit < 1 {
		return fmt.Errorf("reset.rate_limit must be at least 1")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Token.TTLRaw, &cfg.Token.TTL, "token.ttl"},
		{cfg.Realtime.IdleTimeoutRaw, &cfg.Realtime.IdleTimeout, "realtime.idle_timeout"},
		{cfg.Pipeline.DrainTimeoutRaw, &cfg.Pipeline.DrainTimeout, "pipeline.drain_timeout"},
		{cfg.Cleanup.IntervalRaw, &cfg.Cleanup.Interval, "cleanup.interval"},
		{cfg.Reset.TokenTTLRaw, &cfg.Reset.TokenTTL, "reset.token_ttl"},
		{cfg.Reset.RateWindowRaw, &cfg.Reset.RateWindow, "reset.rate_window"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
