// Package config
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Machine  MachineConfig  `yaml:"machine"`
	Watchers WatchersConfig `yaml:"watchers"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type AuthConfig struct {
	AdminUsername  string `yaml:"admin_username"`
	AdminPassword  string `yaml:"admin_password"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`
}

type MachineConfig struct {
	// Simulate runs against in-memory channels instead of a live
	// controller session.
	Simulate  bool   `yaml:"simulate"`
	Component string `yaml:"component"`
	Prefix    string `yaml:"prefix"`
}

type WatchersConfig struct {
	StatusIntervalMS  int `yaml:"status_interval_ms"`
	MessageIntervalMS int `yaml:"message_interval_ms"`
	HalIntervalMS     int `yaml:"hal_interval_ms"`
}

type HistoryConfig struct {
	Enabled         bool           `yaml:"enabled"`
	Database        DatabaseConfig `yaml:"database"`
	BatchSize       int            `yaml:"batch_size"`
	FlushIntervalMS int            `yaml:"flush_interval_ms"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"ssl_mode"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from file and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("CNC_AUTH_JWT_SECRET is required (minimum 32 characters)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters")
	}
	if c.Auth.AdminPassword == "" || c.Auth.AdminPassword == "changeme" {
		return fmt.Errorf("CNC_AUTH_ADMIN_PASSWORD must be set to a strong password")
	}

	if c.History.Enabled {
		if c.History.Database.Host == "" || c.History.Database.DBName == "" {
			return fmt.Errorf("history database host and dbname are required")
		}
	}

	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}

	return nil
}

// applyDefaults fills unset values with working defaults
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 15000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 15000
	}
	if cfg.Auth.AdminUsername == "" {
		cfg.Auth.AdminUsername = "admin"
	}
	if cfg.Auth.JWTExpiryHours == 0 {
		cfg.Auth.JWTExpiryHours = 24
	}
	if cfg.Machine.Component == "" {
		cfg.Machine.Component = "cnc-sub"
	}
	if cfg.History.BatchSize == 0 {
		cfg.History.BatchSize = 100
	}
	if cfg.History.FlushIntervalMS == 0 {
		cfg.History.FlushIntervalMS = 1000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnvOverrides checks for environment variables with CNC_ prefix
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CNC_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CNC_SERVER_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Server.Port)
	}

	if v := os.Getenv("CNC_AUTH_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("CNC_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("CNC_MACHINE_SIMULATE"); v != "" {
		cfg.Machine.Simulate = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("CNC_HISTORY_DATABASE_HOST"); v != "" {
		cfg.History.Database.Host = v
	}
	if v := os.Getenv("CNC_HISTORY_DATABASE_PASSWORD"); v != "" {
		cfg.History.Database.Password = v
	}
}

// GetReadTimeout returns the read timeout as a duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// GetWriteTimeout returns the write timeout as a duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// GetJWTExpiry returns JWT expiry as duration
func (a *AuthConfig) GetJWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// GetDSN returns the PostgreSQL connection string
func (d *DatabaseConfig) GetDSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, sslMode,
	)
}

// StatusInterval returns the status watcher poll interval; zero means the
// watcher default.
func (w *WatchersConfig) StatusInterval() time.Duration {
	return time.Duration(w.StatusIntervalMS) * time.Millisecond
}

// MessageInterval returns the message watcher poll interval.
func (w *WatchersConfig) MessageInterval() time.Duration {
	return time.Duration(w.MessageIntervalMS) * time.Millisecond
}

// HalInterval returns the HAL watcher poll interval.
func (w *WatchersConfig) HalInterval() time.Duration {
	return time.Duration(w.HalIntervalMS) * time.Millisecond
}

// FlushInterval returns the history batch flush interval as a duration
func (h *HistoryConfig) FlushInterval() time.Duration {
	return time.Duration(h.FlushIntervalMS) * time.Millisecond
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}
