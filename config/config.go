package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/pkg/security"
	"github.com/c360/simstation/station"
)

// Defaults applied before any file or environment layer.
const (
	DefaultNATSURL      = "nats://localhost:4222"
	DefaultPollInterval = time.Second
	DefaultMetricsPort  = 9090
	DefaultMetricsPath  = "/metrics"
)

// Config is the complete configuration of a station process.
type Config struct {
	SimulationID   string         `json:"simulation_id"   yaml:"simulation_id"`
	ComponentName  string         `json:"component_name"  yaml:"component_name"`
	Station        station.Config `json:"station"         yaml:"station"`
	NATS           NATSConfig     `json:"nats"            yaml:"nats"`
	Metrics        MetricsConfig  `json:"metrics"         yaml:"metrics"`
	Status         StatusConfig   `json:"status"          yaml:"status"`
	PollInterval   time.Duration  `json:"poll_interval"   yaml:"poll_interval"`
	StrictMessages bool           `json:"strict_messages" yaml:"strict_messages"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URL           string             `json:"url"                     yaml:"url"`
	MaxReconnects int                `json:"max_reconnects"          yaml:"max_reconnects"`
	ReconnectWait time.Duration      `json:"reconnect_wait"          yaml:"reconnect_wait"`
	Timeout       time.Duration      `json:"timeout"                 yaml:"timeout"`
	Username      string             `json:"username,omitempty"      yaml:"username,omitempty"`
	Password      string             `json:"password,omitempty"      yaml:"password,omitempty"`
	Token         string             `json:"token,omitempty"         yaml:"token,omitempty"`
	ConnectRetry  int                `json:"connect_retry,omitempty" yaml:"connect_retry,omitempty"`
	TLS           security.TLSConfig `json:"tls"                     yaml:"tls"`
}

// MetricsConfig is the Prometheus and health endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"`
}

// StatusConfig controls retries of the ready status publication.
type StatusConfig struct {
	MaxAttempts  int           `json:"max_attempts"  yaml:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"     yaml:"max_delay"`
}

// Default returns the configuration every load starts from.
func Default() *Config {
	return &Config{
		Station: station.DefaultConfig(),
		NATS: NATSConfig{
			URL:           DefaultNATSURL,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
			ConnectRetry:  5,
		},
		Metrics: MetricsConfig{
			Port: DefaultMetricsPort,
			Path: DefaultMetricsPath,
		},
		Status: StatusConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		PollInterval:   DefaultPollInterval,
		StrictMessages: true,
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.SimulationID) == "" {
		problems = append(problems, "simulation_id is required")
	}
	if strings.TrimSpace(c.ComponentName) == "" {
		problems = append(problems, "component_name is required")
	}
	if err := c.Station.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		problems = append(problems, err.Error())
	}
	if tls := c.NATS.TLS; tls.MTLS() && (tls.CertFile == "" || tls.KeyFile == "") {
		problems = append(problems, "nats.tls needs both cert_file and key_file for a client certificate")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, fmt.Sprintf("poll_interval must be positive, got %v", c.PollInterval))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		problems = append(problems, fmt.Sprintf("metrics.port out of range: %d", c.Metrics.Port))
	}
	if c.Metrics.Port > 0 && !strings.HasPrefix(c.Metrics.Path, "/") {
		problems = append(problems, fmt.Sprintf("metrics.path must start with /, got %q", c.Metrics.Path))
	}
	if c.Status.MaxAttempts < 1 {
		problems = append(problems, "status.max_attempts must be at least 1")
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "validate configuration")
	}
	return nil
}

func validateNATSURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("nats.url is required")
	}
	for _, part := range strings.Split(raw, ",") {
		u, err := url.Parse(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("nats.url %q: %v", part, err)
		}
		switch u.Scheme {
		case "nats", "tls", "ws", "wss":
		default:
			return fmt.Errorf("nats.url %q: unsupported scheme %q", part, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("nats.url %q: missing host", part)
		}
	}
	return nil
}

// String returns a JSON representation with credentials masked.
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
