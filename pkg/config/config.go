// Package config loads wsrooms server configuration.
//
// Values are resolved in order: Default, then an optional YAML file, then
// WSROOMS_* environment variables. Command-line flags are applied last by
// the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"wsrooms/pkg/logging"
)

// Configuration errors.
var (
	ErrFileNotFound = errors.New("configuration file not found")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
	ErrInvalid      = errors.New("invalid configuration")
)

// Environment variables read by ApplyEnv.
const (
	EnvAddr      = "WSROOMS_ADDR"
	EnvAdminAddr = "WSROOMS_ADMIN_ADDR"
	EnvLogLevel  = "WSROOMS_LOG_LEVEL"
	EnvLogFormat = "WSROOMS_LOG_FORMAT"
)

// Config is the complete server configuration.
type Config struct {
	Addr      string `yaml:"addr"`
	AdminAddr string `yaml:"admin_addr"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// IdleTimeout closes connections that send nothing for this long.
	// Zero never times out.
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	MaxConnections      int `yaml:"max_connections"`
	MaxConnectionsPerIP int `yaml:"max_connections_per_ip"`

	Rooms RoomsConfig `yaml:"rooms"`

	AnnounceRegistration bool `yaml:"announce_registration"`
	AcknowledgeMessages  bool `yaml:"acknowledge_messages"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// RoomsConfig configures the room manager.
type RoomsConfig struct {
	Capacity int `yaml:"capacity"`
	// PurgeOnDisconnect removes a closed connection from every room.
	PurgeOnDisconnect bool `yaml:"purge_on_disconnect"`
}

// RateLimitConfig limits envelopes per connection.
type RateLimitConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:                 ":3000",
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxConnections:       10000,
		MaxConnectionsPerIP:  100,
		Rooms:                RoomsConfig{Capacity: 2},
		AnnounceRegistration: true,
		RateLimit:            RateLimitConfig{Burst: 1},
		Log:                  LogConfig{Level: "info", Format: "text"},
	}
}

// Load returns Default overlaid with the YAML file at path (if path is not
// empty) and the environment, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.Overlay(data); err != nil {
			return cfg, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Overlay decodes YAML data onto c. Keys absent from data keep their
// current values.
func (c *Config) Overlay(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

// ApplyEnv overrides fields from the WSROOMS_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup(EnvAdminAddr); ok {
		c.AdminAddr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.Log.Format = v
	}
}

// Validate reports every problem in c joined into one error.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Addr == "" {
		add("addr is required")
	}
	if c.Rooms.Capacity <= 0 {
		add("rooms.capacity must be positive, got %d", c.Rooms.Capacity)
	}
	if c.HandshakeTimeout < 0 {
		add("handshake_timeout must not be negative")
	}
	if c.IdleTimeout < 0 {
		add("idle_timeout must not be negative")
	}
	if c.WriteTimeout < 0 {
		add("write_timeout must not be negative")
	}
	if c.MaxConnections < 0 || c.MaxConnectionsPerIP < 0 {
		add("connection limits must not be negative")
	}
	if c.RateLimit.MessagesPerSecond < 0 {
		add("rate_limit.messages_per_second must not be negative")
	}
	if c.RateLimit.MessagesPerSecond > 0 && c.RateLimit.Burst < 1 {
		add("rate_limit.burst must be at least 1, got %d", c.RateLimit.Burst)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		add("log.format: %v", err)
	}

	return errors.Join(errs...)
}

// Logging converts the log section into a logging.Config writing to
// stderr. It assumes c has been validated.
func (c Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level, _ = logging.ParseLevel(c.Log.Level)
	lc.Format, _ = logging.ParseFormat(c.Log.Format)
	return lc
}
