package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultLogLevel     = "warn"
	DefaultEndpoint     = "https://report.crisp.watch/v1"
	DefaultInterval     = 120 * time.Second
	DefaultHold         = 2 * time.Second
	DefaultRestartDelay = 5 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server ServerConfig `yaml:"server"`
	Report ReportConfig `yaml:"report"`
	Probe  ProbeConfig  `yaml:"probe"`
}

// ServerConfig holds logging and status server settings.
type ServerConfig struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
	Port     int    `yaml:"port"`      // 0 = status server disabled
}

// ReportConfig holds the status service endpoint and credentials.
type ReportConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// ProbeConfig holds probing and cycle settings.
type ProbeConfig struct {
	ICMPPrivileged bool          `yaml:"icmp_privileged"`
	Interval       time.Duration `yaml:"interval"`
	Hold           time.Duration `yaml:"hold"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
}

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Report.Endpoint == "" {
		c.Report.Endpoint = DefaultEndpoint
	}
	if c.Probe.Interval == 0 {
		c.Probe.Interval = DefaultInterval
	}
	if c.Probe.Hold == 0 {
		c.Probe.Hold = DefaultHold
	}
	if c.Probe.RestartDelay == 0 {
		c.Probe.RestartDelay = DefaultRestartDelay
	}
}

// Validate checks the fields the agent cannot run without.
func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.Report.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: report.endpoint %q must be an absolute http(s) url", ErrInvalidConfig, c.Report.Endpoint)
	}
	if c.Report.Token == "" {
		return fmt.Errorf("%w: report.token is required", ErrInvalidConfig)
	}
	if _, err := ParseLevel(c.Server.LogLevel); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Probe.Interval < 0 || c.Probe.Hold < 0 || c.Probe.RestartDelay < 0 {
		return fmt.Errorf("%w: probe durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
	}
}
