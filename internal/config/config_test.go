package config

import (
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "chrome", cfg.Browser.Name)
	assert.Equal(t, "extensions/buster.crx", cfg.Browser.Extension)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 20*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Solver.ChallengeTimeout)
	assert.Equal(t, 2*time.Second, cfg.Solver.SolvedCheckTimeout)
	assert.Equal(t, 5*time.Second, cfg.Solver.SettleDelay)
	assert.Equal(t, 2*time.Second, cfg.Solver.RetryDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.Solver.PollInterval)
	assert.Equal(t, 3, cfg.Solver.MaxAttempts)
	assert.Empty(t, cfg.LiveView.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
browser:
  name: edge
  extension: /opt/buster
  headless: true
solver:
  settle_delay: 3s
  max_attempts: 5
live_view:
  addr: ":9221"
`), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.Browser.Name)
	assert.Equal(t, "/opt/buster", cfg.Browser.Extension)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 3*time.Second, cfg.Solver.SettleDelay)
	assert.Equal(t, 5, cfg.Solver.MaxAttempts)
	assert.Equal(t, ":9221", cfg.LiveView.Addr)
	// untouched keys keep their defaults
	assert.Equal(t, 20*time.Second, cfg.Solver.Timeout)
}

func TestNewConfigFromViperEnv(t *testing.T) {
	t.Setenv("RECAPTCHABUSTER_SOLVER_MAX_ATTEMPTS", "7")
	t.Setenv("RECAPTCHABUSTER_BROWSER_EXTENSION", "/srv/buster.crx")

	v := viper.New()
	SetDefaults(v)
	BindEnv(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Solver.MaxAttempts)
	assert.Equal(t, "/srv/buster.crx", cfg.Browser.Extension)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown browser", func(c *Config) { c.Browser.Name = "firefox" }, "browser.name"},
		{"missing extension", func(c *Config) { c.Browser.Extension = "" }, "browser.extension"},
		{"zero attempts", func(c *Config) { c.Solver.MaxAttempts = 0 }, "solver.max_attempts"},
		{"negative settle delay", func(c *Config) { c.Solver.SettleDelay = -time.Second }, "solver.settle_delay"},
		{"zero poll interval", func(c *Config) { c.Solver.PollInterval = 0 }, "solver.poll_interval"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
