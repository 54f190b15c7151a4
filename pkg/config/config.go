// Package config holds the application configuration shared by the CLI and
// the platform adapters.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Zero values are filled in from the
// default tags by New and Load.
type Config struct {
	// LogLevel is a logrus level name ("debug", "info", ...).
	LogLevel string `yaml:"log_level" default:"info"`
	// ConnectTimeout bounds platform connection establishment.
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	// OperationTimeout bounds each correlated GATT operation.
	OperationTimeout time.Duration `yaml:"operation_timeout" default:"5s"`
	// NotifyBuffer is the per-subscriber notification buffer depth.
	NotifyBuffer int `yaml:"notify_buffer" default:"16"`
}

// New returns a Config populated with default values.
func New() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// UnmarshalYAML accepts durations in time.ParseDuration notation ("5s",
// "1m30s") rather than raw nanosecond integers.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		LogLevel         string `yaml:"log_level"`
		ConnectTimeout   string `yaml:"connect_timeout"`
		OperationTimeout string `yaml:"operation_timeout"`
		NotifyBuffer     int    `yaml:"notify_buffer"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.LogLevel = raw.LogLevel
	c.NotifyBuffer = raw.NotifyBuffer

	var err error
	if c.ConnectTimeout, err = parseDuration(raw.ConnectTimeout); err != nil {
		return fmt.Errorf("connect_timeout: %w", err)
	}
	if c.OperationTimeout, err = parseDuration(raw.OperationTimeout); err != nil {
		return fmt.Errorf("operation_timeout: %w", err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// applyDefaults fills only the fields the file left unset.
func applyDefaults(cfg *Config) {
	base := New()
	if cfg.LogLevel == "" {
		cfg.LogLevel = base.LogLevel
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = base.ConnectTimeout
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = base.OperationTimeout
	}
	if cfg.NotifyBuffer == 0 {
		cfg.NotifyBuffer = base.NotifyBuffer
	}
}

// Level parses the configured log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
