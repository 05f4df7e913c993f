package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("STATION_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: STATION_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("STATION_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: STATION_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("STATION_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: STATION_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("STATION_LOG_FORMAT", "json"),
		"Log format: json, text (env: STATION_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("STATION_DEBUG", false),
		"Enable debug logging (env: STATION_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("STATION_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: STATION_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - charging station simulation participant

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Station settings come from the configuration file and environment:
  SIMULATION_ID, COMPONENT_NAME, STATION_ID, MAX_POWER,
  STATION_STATE_TOPIC, POWER_OUTPUT_TOPIC, POWER_REQUIREMENT_TOPIC,
  NATS_URL, NATS_USERNAME, NATS_PASSWORD, NATS_TOKEN,
  NATS_TLS_CA_FILE, NATS_TLS_CERT_FILE, NATS_TLS_KEY_FILE,
  POLL_INTERVAL, METRICS_PORT, STRICT_MESSAGES

Examples:
  # Run from environment only
  STATION_ID=XYZ MAX_POWER=1000 NATS_URL=nats://broker:4222 %s

  # Run with a config file and text logs
  %s --config=station.yaml --log-format=text

  # Validate configuration only
  %s --config=station.yaml --validate

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
