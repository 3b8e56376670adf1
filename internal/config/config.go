// File: internal/config/config.go
package config

import (
	"fmt"
	"github.com/spf13/viper"
	"strings"
	"time"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. RECAPTCHABUSTER_BROWSER_EXTENSION for browser.extension.
const EnvPrefix = "RECAPTCHABUSTER"

// Config holds the CLI configuration assembled from defaults, the config file, env and flags.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Solver   SolverConfig   `mapstructure:"solver" yaml:"solver"`
	LiveView LiveViewConfig `mapstructure:"live_view" yaml:"live_view"`
}

// LoggerConfig controls the zap logger built by the observability package.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig selects and launches the browser.
type BrowserConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Extension   string `mapstructure:"extension" yaml:"extension"`
	Headless    bool   `mapstructure:"headless" yaml:"headless"`
	Stealth     bool   `mapstructure:"stealth" yaml:"stealth"`
	ExecPath    string `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	NoSandbox   bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
}

// SolverConfig maps onto the solver options.
type SolverConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ChallengeTimeout   time.Duration `mapstructure:"challenge_timeout" yaml:"challenge_timeout"`
	SolvedCheckTimeout time.Duration `mapstructure:"solved_check_timeout" yaml:"solved_check_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxAttempts        int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	PageDelay          time.Duration `mapstructure:"page_delay" yaml:"page_delay"`
	Debug              bool          `mapstructure:"debug" yaml:"debug"`
}

// LiveViewConfig enables the live view server. An empty Addr disables it.
type LiveViewConfig struct {
	Addr          string        `mapstructure:"addr" yaml:"addr"`
	DebuggingAddr string        `mapstructure:"debugging_addr" yaml:"debugging_addr"`
	Hold          time.Duration `mapstructure:"hold" yaml:"hold"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "recaptchabuster")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.name", "chrome")
	v.SetDefault("browser.extension", "extensions/buster.crx")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.stealth", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.no_sandbox", false)

	// -- Solver --
	v.SetDefault("solver.timeout", "20s")
	v.SetDefault("solver.challenge_timeout", "30s")
	v.SetDefault("solver.solved_check_timeout", "2s")
	v.SetDefault("solver.settle_delay", "5s")
	v.SetDefault("solver.retry_delay", "2s")
	v.SetDefault("solver.poll_interval", "250ms")
	v.SetDefault("solver.max_attempts", 3)
	v.SetDefault("solver.page_delay", "1s")
	v.SetDefault("solver.debug", false)

	// -- Live view --
	v.SetDefault("live_view.addr", "")
	v.SetDefault("live_view.debugging_addr", "127.0.0.1:9222")
	v.SetDefault("live_view.hold", "0s")
}

// BindEnv makes every key overridable through RECAPTCHABUSTER_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Browser.Name {
	case "chrome", "edge":
	default:
		return fmt.Errorf("browser.name must be chrome or edge, got %q", c.Browser.Name)
	}
	if c.Browser.Extension == "" {
		return fmt.Errorf("browser.extension is a required configuration field")
	}
	if c.Solver.MaxAttempts <= 0 {
		return fmt.Errorf("solver.max_attempts must be a positive integer")
	}
	for key, d := range map[string]time.Duration{
		"solver.timeout":              c.Solver.Timeout,
		"solver.challenge_timeout":    c.Solver.ChallengeTimeout,
		"solver.solved_check_timeout": c.Solver.SolvedCheckTimeout,
		"solver.settle_delay":         c.Solver.SettleDelay,
		"solver.retry_delay":          c.Solver.RetryDelay,
		"solver.page_delay":           c.Solver.PageDelay,
		"live_view.hold":              c.LiveView.Hold,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	if c.Solver.PollInterval <= 0 {
		return fmt.Errorf("solver.poll_interval must be positive")
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	return nil
}
