package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, 2, cfg.Rooms.Capacity)
	assert.Zero(t, cfg.IdleTimeout)
	assert.True(t, cfg.AnnounceRegistration)
	assert.False(t, cfg.AcknowledgeMessages)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsrooms.yaml")
	data := []byte(`
addr: ":4000"
admin_addr: "127.0.0.1:4001"
idle_timeout: 90s
rooms:
  capacity: 3
  purge_on_disconnect: true
rate_limit:
  messages_per_second: 5
  burst: 10
log:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Addr)
	assert.Equal(t, "127.0.0.1:4001", cfg.AdminAddr)
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Rooms.Capacity)
	assert.True(t, cfg.Rooms.PurgeOnDisconnect)
	assert.Equal(t, 5.0, cfg.RateLimit.MessagesPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("addr: [unterminated"), 0o600))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidYAML)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("rooms:\n  capacity: 0\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAddr:      ":5000",
		EnvAdminAddr: ":5001",
		EnvLogLevel:  "warn",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, ":5001", cfg.AdminAddr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv(EnvAddr, "127.0.0.1:6000")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"zero capacity", func(c *Config) { c.Rooms.Capacity = 0 }},
		{"negative handshake timeout", func(c *Config) { c.HandshakeTimeout = -time.Second }},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -time.Second }},
		{"negative write timeout", func(c *Config) { c.WriteTimeout = -time.Second }},
		{"negative limits", func(c *Config) { c.MaxConnectionsPerIP = -1 }},
		{"rate without burst", func(c *Config) {
			c.RateLimit.MessagesPerSecond = 1
			c.RateLimit.Burst = 0
		}},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLogging(t *testing.T) {
	cfg := Default()
	cfg.Log = LogConfig{Level: "error", Format: "json"}
	lc := cfg.Logging()
	assert.Equal(t, "json", string(lc.Format))
	assert.Equal(t, "ERROR", lc.Level.String())
}
