package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/station"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// newTestLoader reads environment variables from env instead of the process.
func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(key string) string { return env[key] }
	return l
}

func validConfig() *Config {
	cfg := Default()
	cfg.SimulationID = "2026-10-14T08:00:00.000Z"
	cfg.ComponentName = "station-xyz"
	cfg.Station.StationID = "XYZ"
	cfg.Station.MaxPower = 1000
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultNATSURL, cfg.NATS.URL)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.True(t, cfg.StrictMessages)
	assert.Equal(t, station.DefaultStationStateTopic, cfg.Station.StationStateTopic)
	assert.Equal(t, station.DefaultPowerOutputTopic, cfg.Station.PowerOutputTopic)
	assert.Equal(t, station.DefaultPowerRequirementTopic, cfg.Station.PowerRequirementTopic)

	err := cfg.Validate()
	require.Error(t, err, "identity has no default")
	assert.Contains(t, err.Error(), "simulation_id is required")
	assert.Contains(t, err.Error(), "station id is required")
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"no component name", func(c *Config) { c.ComponentName = "" }, "component_name is required"},
		{"negative max power", func(c *Config) { c.Station.MaxPower = -1 }, "max power must be non-negative"},
		{"empty topic", func(c *Config) { c.Station.PowerOutputTopic = "" }, "power output topic is required"},
		{"no nats url", func(c *Config) { c.NATS.URL = "" }, "nats.url is required"},
		{"bad scheme", func(c *Config) { c.NATS.URL = "http://localhost:4222" }, "unsupported scheme"},
		{"bad url in list", func(c *Config) { c.NATS.URL = "nats://a:4222,nats://" }, "missing host"},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "poll_interval must be positive"},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }, "metrics.port out of range"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path must start with /"},
		{"status attempts", func(c *Config) { c.Status.MaxAttempts = 0 }, "status.max_attempts"},
		{"half client certificate", func(c *Config) { c.NATS.TLS.CertFile = "client.pem" }, "nats.tls needs both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_ValidateMetricsDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Port = 0
	cfg.Metrics.Path = ""
	assert.NoError(t, cfg.Validate())
}

func TestConfig_StringMasksCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.NATS.Password = "hunter2"
	cfg.NATS.Token = "s3cr3t"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "s3cr3t")
	assert.Contains(t, s, `"station_id": "XYZ"`)
	assert.Equal(t, "hunter2", cfg.NATS.Password, "original untouched")
}

func TestLoader_DefaultsOnly(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_JSONLayer(t *testing.T) {
	path := writeFile(t, "station.json", `{
		"simulation_id": "sim-1",
		"component_name": "station-xyz",
		"station": {"station_id": "XYZ", "max_power": 1000},
		"nats": {"url": "nats://broker:4222", "reconnect_wait": "5s"},
		"poll_interval": "250ms"
	}`)

	l := newTestLoader(nil)
	l.AddLayer(path)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "sim-1", cfg.SimulationID)
	assert.Equal(t, "XYZ", cfg.Station.StationID)
	assert.Equal(t, 1000, cfg.Station.MaxPower)
	assert.Equal(t, station.DefaultStationStateTopic, cfg.Station.StationStateTopic, "defaults survive partial sections")
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, 5*time.Second, cfg.NATS.Timeout)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
}

func TestLoader_YAMLLayerOverridesJSON(t *testing.T) {
	base := writeFile(t, "base.json", `{"station": {"station_id": "ABC", "max_power": 10}, "poll_interval": 3}`)
	override := writeFile(t, "override.yaml", `
station:
  station_id: XYZ
  power_output_topic: Station.Output
metrics:
  port: 0
status:
  initial_delay: 50ms
strict_messages: false
`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "XYZ", cfg.Station.StationID)
	assert.Equal(t, 10, cfg.Station.MaxPower)
	assert.Equal(t, "Station.Output", cfg.Station.PowerOutputTopic)
	assert.Equal(t, station.DefaultPowerRequirementTopic, cfg.Station.PowerRequirementTopic)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 0, cfg.Metrics.Port)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
	assert.Equal(t, 50*time.Millisecond, cfg.Status.InitialDelay)
	assert.False(t, cfg.StrictMessages)
}

func TestLoader_FileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown key", "a.json", `{"station": {"stationid": "XYZ"}}`},
		{"bad duration", "b.yaml", "poll_interval: soon\n"},
		{"max power as string", "c.json", `{"station": {"max_power": "1000"}}`},
		{"malformed json", "d.json", `{"station": `},
		{"malformed yaml", "e.yaml", "station: [\n"},
		{"unsupported extension", "f.toml", `station_id = "XYZ"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoader(nil)
			l.AddLayer(writeFile(t, tt.file, tt.content))
			_, err := l.Load()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	l := newTestLoader(nil)
	l.AddLayer(filepath.Join(t.TempDir(), "missing.json"))
	_, err := l.Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeFile(t, "station.yaml", "station:\n  station_id: FROM_FILE\n  max_power: 5\n")
	env := map[string]string{
		EnvSimulationID:          "sim-env",
		EnvComponentName:         "station-env",
		EnvStationID:             "XYZ",
		EnvMaxPower:              " 1000 ",
		EnvStationStateTopic:     "S",
		EnvPowerOutputTopic:      "O",
		EnvPowerRequirementTopic: "R",
		EnvNATSURL:               "nats://n1:4222,nats://n2:4222",
		EnvPollInterval:          "2",
		EnvMetricsPort:           "9100",
		EnvStrictMessages:        "false",
	}

	l := newTestLoader(env)
	l.AddLayer(path)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "sim-env", cfg.SimulationID)
	assert.Equal(t, "station-env", cfg.ComponentName)
	assert.Equal(t, station.Config{
		StationID:             "XYZ",
		MaxPower:              1000,
		StationStateTopic:     "S",
		PowerOutputTopic:      "O",
		PowerRequirementTopic: "R",
	}, cfg.Station)
	assert.Equal(t, "nats://n1:4222,nats://n2:4222", cfg.NATS.URL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.False(t, cfg.StrictMessages)
}

func TestLoader_EnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"max power not a number", map[string]string{EnvMaxPower: "lots"}, "MAX_POWER must be an integer"},
		{"max power float", map[string]string{EnvMaxPower: "10.5"}, "MAX_POWER must be an integer"},
		{"max power negative", map[string]string{EnvMaxPower: "-3"}, "MAX_POWER must be non-negative"},
		{"poll interval", map[string]string{EnvPollInterval: "often"}, "POLL_INTERVAL"},
		{"metrics port", map[string]string{EnvMetricsPort: "http"}, "METRICS_PORT must be an integer"},
		{"strict", map[string]string{EnvStrictMessages: "maybe"}, "STRICT_MESSAGES must be a boolean"},
		{"null byte", map[string]string{EnvStationID: "X\x00Y"}, "null byte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(tt.env).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestLoader_ProcessEnvironment(t *testing.T) {
	t.Setenv(EnvStationID, "ENV")
	t.Setenv(EnvMaxPower, "42")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "ENV", cfg.Station.StationID)
	assert.Equal(t, 42, cfg.Station.MaxPower)
}

func TestLoader_TLSEnvironment(t *testing.T) {
	path := writeFile(t, "station.yaml", `
nats:
  url: tls://broker:4222
  tls:
    ca_files: [/etc/ssl/nats-ca.pem]
    min_version: "1.3"
`)
	l := newTestLoader(map[string]string{
		EnvNATSTLSCAFile:   "/etc/ssl/extra-ca.pem",
		EnvNATSTLSCertFile: "/etc/ssl/station.pem",
		EnvNATSTLSKeyFile:  "/etc/ssl/station.key",
	})
	l.AddLayer(path)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.True(t, cfg.NATS.TLS.Enabled, "CA files enable TLS")
	assert.Equal(t, []string{"/etc/ssl/nats-ca.pem", "/etc/ssl/extra-ca.pem"}, cfg.NATS.TLS.CAFiles)
	assert.Equal(t, "1.3", cfg.NATS.TLS.MinVersion)
	assert.Equal(t, "/etc/ssl/station.pem", cfg.NATS.TLS.CertFile)
	assert.Equal(t, "/etc/ssl/station.key", cfg.NATS.TLS.KeyFile)
	assert.True(t, cfg.NATS.TLS.MTLS())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1", time.Second},
		{"0.5", 500 * time.Millisecond},
		{"250ms", 250 * time.Millisecond},
		{" 2m ", 2 * time.Minute},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := parseDuration("later")
	assert.Error(t, err)
}

func TestDeepMergeMaps(t *testing.T) {
	base := map[string]any{"a": 1, "nested": map[string]any{"x": 1, "y": 2}}
	override := map[string]any{"nested": map[string]any{"y": 3}, "b": nil, "c": "new"}

	merged := deepMergeMaps(base, override)
	assert.Equal(t, map[string]any{"a": 1, "nested": map[string]any{"x": 1, "y": 3}, "c": "new"}, merged)
	assert.Equal(t, 2, base["nested"].(map[string]any)["y"], "base untouched")
}

func TestDocumentDepth(t *testing.T) {
	depth, err := jsonDepth([]byte(`{"a": {"b": [1, 2, "}"]}}`))
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	_, err = jsonDepth([]byte(`{"a": {`))
	assert.Error(t, err)
	_, err = jsonDepth([]byte(`}`))
	assert.Error(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("nats:\n  tls:\n    ca_files: [a, b]\n"), &doc))
	assert.Equal(t, 4, yamlDepth(&doc))
}

func TestLoader_DeepDocuments(t *testing.T) {
	deepJSON := strings.Repeat("[", maxDocDepth+1) + strings.Repeat("]", maxDocDepth+1)
	deepYAML := ""
	for i := 0; i <= maxDocDepth; i++ {
		deepYAML += strings.Repeat("  ", i) + fmt.Sprintf("k%d:\n", i)
	}
	deepYAML += strings.Repeat("  ", maxDocDepth+1) + "leaf: 1\n"

	for name, content := range map[string]string{"deep.json": deepJSON, "deep.yaml": deepYAML} {
		t.Run(name, func(t *testing.T) {
			l := newTestLoader(nil)
			l.AddLayer(writeFile(t, name, content))
			_, err := l.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "nesting too deep")
		})
	}
}

func TestValidateConfigPath(t *testing.T) {
	assert.NoError(t, validateConfigPath("configs/station.yaml"))
	assert.NoError(t, validateConfigPath("/etc/simstation/station.json"))
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath("../station.yaml"))
	assert.Error(t, validateConfigPath("configs/../../station.yaml"))
	assert.Error(t, validateConfigPath("station.toml"))
}

func TestValidateEnvVar(t *testing.T) {
	tests := []struct {
		key, value string
		want       string
	}{
		{EnvStationID, "XYZ-1", ""},
		{EnvStationID, "X\nY", "control character"},
		{EnvSimulationID, "2026-10-14T08:00:00.000Z", ""},
		{EnvComponentName, "st\xff", "UTF-8"},
		{EnvPowerOutputTopic, "station.power.output", ""},
		{EnvPowerOutputTopic, "station.*", "wildcard"},
		{EnvStationStateTopic, "station..state", "empty token"},
		{EnvPowerRequirementTopic, "power requirement", "whitespace"},
		{EnvNATSURL, "nats://n1:4222, tls://n2:4222", ""},
		{EnvNATSURL, "localhost:4222", ""},
		{EnvNATSURL, "http://n1:4222", "unsupported server scheme"},
		{EnvNATSURL, "nats://n1:4222,,", "empty server"},
		{EnvNATSToken, strings.Repeat("t", maxEnvVarLen+1), "too long"},
		{EnvNATSPassword, "p\x00w", "null byte"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := validateEnvVar(tt.key, tt.value)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
