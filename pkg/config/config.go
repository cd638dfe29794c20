// Package config provides YAML-based configuration loading for the
// websocket session service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the service instance
	AppName string `mapstructure:"app_name"`

	// Server holds the session service options
	Server ServerConfig `mapstructure:"server"`

	// Health holds the liveness endpoint options
	Health HealthConfig `mapstructure:"health"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`
}

// ServerConfig defines the session service listener and limits.
type ServerConfig struct {
	// Listen address for the websocket listener, host:port
	Listen string `mapstructure:"listen"`

	// MaxSessions caps concurrently admitted sessions
	MaxSessions int `mapstructure:"max_sessions"`

	// KeepaliveIntervalS period between liveness probes per session, seconds
	KeepaliveIntervalS int `mapstructure:"keepalive_interval_s"`

	// CountLogIntervalS period of the active-session count log line, seconds
	CountLogIntervalS int `mapstructure:"count_log_interval_s"`

	// ShutdownGraceS bound on waiting for open sessions at shutdown, seconds
	ShutdownGraceS int `mapstructure:"shutdown_grace_s"`
}

// HealthConfig defines the plaintext liveness responder.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// KeepaliveInterval returns the per-session probe period.
func (s ServerConfig) KeepaliveInterval() time.Duration {
	return time.Duration(s.KeepaliveIntervalS) * time.Second
}

// CountLogInterval returns the active-count log period.
func (s ServerConfig) CountLogInterval() time.Duration {
	return time.Duration(s.CountLogIntervalS) * time.Second
}

// ShutdownGrace returns the shutdown wait bound.
func (s ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceS) * time.Second
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "ws-server",
		Server: ServerConfig{
			Listen:             "0.0.0.0:8080",
			MaxSessions:        10,
			KeepaliveIntervalS: 30,
			CountLogIntervalS:  5,
			ShutdownGraceS:     10,
		},
		Health: HealthConfig{
			Enabled: true,
			Listen:  "0.0.0.0:8081",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/ws-server.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix WSAPP and `.`/`-` are replaced with `_`.
// Example: WSAPP_SERVER_MAX_SESSIONS=50
//
// The bare BIND_ADDR variable is also honored as an override of
// server.listen, for compatibility with existing container deployments.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WSAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.max_sessions", cfg.Server.MaxSessions)
	v.SetDefault("server.keepalive_interval_s", cfg.Server.KeepaliveIntervalS)
	v.SetDefault("server.count_log_interval_s", cfg.Server.CountLogIntervalS)
	v.SetDefault("server.shutdown_grace_s", cfg.Server.ShutdownGraceS)
	v.SetDefault("health.enabled", cfg.Health.Enabled)
	v.SetDefault("health.listen", cfg.Health.Listen)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	// Choose config file
	if path == "" {
		// Allow override via env var
		if envPath := os.Getenv("WSAPP_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `ws-server`
		v.SetConfigName("ws-server")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ws-server"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Legacy container deployments set BIND_ADDR only.
	if addr := strings.TrimSpace(os.Getenv("BIND_ADDR")); addr != "" {
		cfg.Server.Listen = addr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server.listen must not be empty")
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("server.max_sessions must be >= 0, got %d", c.Server.MaxSessions)
	}
	if c.Server.KeepaliveIntervalS <= 0 {
		return fmt.Errorf("server.keepalive_interval_s must be > 0, got %d", c.Server.KeepaliveIntervalS)
	}
	if c.Server.CountLogIntervalS <= 0 {
		c.Server.CountLogIntervalS = 5
	}
	if c.Server.ShutdownGraceS <= 0 {
		c.Server.ShutdownGraceS = 10
	}
	if c.Health.Enabled && strings.TrimSpace(c.Health.Listen) == "" {
		return errors.New("health.listen must not be empty when health.enabled")
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
