package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/gattlink/pkg/config"
)

// loadConfig builds the effective configuration: defaults, then the
// --config file if given, then the --log-level flag on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.New()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if levelStr, _ := cmd.Flags().GetString("log-level"); levelStr != "" {
		if _, err := logrus.ParseLevel(levelStr); err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
		}
		cfg.LogLevel = levelStr
	}

	return cfg, nil
}

// configureLogger creates a logger from flags and an optional config file.
// Without --log-level or a config file the logger is essentially silent.
func configureLogger(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger()
	if levelStr, _ := cmd.Flags().GetString("log-level"); levelStr == "" {
		if path, _ := cmd.Flags().GetString("config"); path == "" {
			// Silent unless the user asked for logs
			logger.SetLevel(logrus.PanicLevel)
		}
	}
	return cfg, logger, nil
}
