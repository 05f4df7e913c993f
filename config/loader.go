package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/simstation/errors"
)

// Environment variables read by the loader.
const (
	EnvSimulationID          = "SIMULATION_ID"
	EnvComponentName         = "COMPONENT_NAME"
	EnvStationID             = "STATION_ID"
	EnvMaxPower              = "MAX_POWER"
	EnvStationStateTopic     = "STATION_STATE_TOPIC"
	EnvPowerOutputTopic      = "POWER_OUTPUT_TOPIC"
	EnvPowerRequirementTopic = "POWER_REQUIREMENT_TOPIC"
	EnvNATSURL               = "NATS_URL"
	EnvNATSUsername          = "NATS_USERNAME"
	EnvNATSPassword          = "NATS_PASSWORD"
	EnvNATSToken             = "NATS_TOKEN"
	EnvNATSTLSCAFile         = "NATS_TLS_CA_FILE"
	EnvNATSTLSCertFile       = "NATS_TLS_CERT_FILE"
	EnvNATSTLSKeyFile        = "NATS_TLS_KEY_FILE"
	EnvPollInterval          = "POLL_INTERVAL"
	EnvMetricsPort           = "METRICS_PORT"
	EnvStrictMessages        = "STRICT_MESSAGES"
)

// durationKeys are the paths of duration values in a config document. A string is
// parsed with time.ParseDuration, a bare number is seconds.
var durationKeys = [][]string{
	{"poll_interval"},
	{"nats", "reconnect_wait"},
	{"nats", "timeout"},
	{"status", "initial_delay"},
	{"status", "max_delay"},
}

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatJSON
	formatYAML
)

func formatOf(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatUnknown
	}
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{getenv: os.Getenv}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation makes Load return the Validate error of the result.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load starts from Default, merges each file layer in order and applies the
// environment overrides.
func (l *Loader) Load() (*Config, error) {
	base, err := toMap(Default())
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		base = deepMergeMaps(base, layer)
	}

	cfg, err := fromMap(base)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged configuration")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads a JSON or YAML document as a generic map with durations normalized.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch formatOf(path) {
	case formatJSON:
		depth, err := jsonDepth(data)
		if err == nil {
			err = checkDepth(depth)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case formatYAML:
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if err := checkDepth(yamlDepth(&doc)); err != nil {
			return nil, fmt.Errorf("invalid YAML structure: %w", err)
		}
		if doc.Kind != 0 {
			if err := doc.Decode(&raw); err != nil {
				return nil, err
			}
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func parseDurations(data map[string]any) error {
	for _, keys := range durationKeys {
		parent := data
		for _, k := range keys[:len(keys)-1] {
			next, ok := parent[k].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}
		last := keys[len(keys)-1]
		value, ok := parent[last]
		if !ok || value == nil {
			continue
		}
		d, err := durationValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.Join(keys, "."), err)
		}
		parent[last] = d.Nanoseconds()
	}
	return nil
}

func durationValue(value any) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		return parseDuration(v)
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", value)
	}
}

// parseDuration accepts Go durations ("500ms", "2s") and bare seconds ("1.5").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fromMap decodes a merged document. Unknown keys are an error.
func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Numeric and boolean
// variables that do not parse are configuration errors.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	var problems []string
	lookup := func(key string) (string, bool) {
		val := l.getenv(key)
		if val == "" {
			return "", false
		}
		if err := validateEnvVar(key, val); err != nil {
			problems = append(problems, err.Error())
			return "", false
		}
		return val, true
	}

	strs := []struct {
		key    string
		target *string
	}{
		{EnvSimulationID, &cfg.SimulationID},
		{EnvComponentName, &cfg.ComponentName},
		{EnvStationID, &cfg.Station.StationID},
		{EnvStationStateTopic, &cfg.Station.StationStateTopic},
		{EnvPowerOutputTopic, &cfg.Station.PowerOutputTopic},
		{EnvPowerRequirementTopic, &cfg.Station.PowerRequirementTopic},
		{EnvNATSURL, &cfg.NATS.URL},
		{EnvNATSUsername, &cfg.NATS.Username},
		{EnvNATSPassword, &cfg.NATS.Password},
		{EnvNATSToken, &cfg.NATS.Token},
		{EnvNATSTLSCertFile, &cfg.NATS.TLS.CertFile},
		{EnvNATSTLSKeyFile, &cfg.NATS.TLS.KeyFile},
	}
	for _, s := range strs {
		if val, ok := lookup(s.key); ok {
			*s.target = val
		}
	}

	if val, ok := lookup(EnvNATSTLSCAFile); ok {
		cfg.NATS.TLS.CAFiles = append(cfg.NATS.TLS.CAFiles, val)
	}
	if len(cfg.NATS.TLS.CAFiles) > 0 || cfg.NATS.TLS.MTLS() {
		cfg.NATS.TLS.Enabled = true
	}

	if val, ok := lookup(EnvMaxPower); ok {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s must be an integer, got %q", EnvMaxPower, val))
		case n < 0:
			problems = append(problems, fmt.Sprintf("%s must be non-negative, got %d", EnvMaxPower, n))
		default:
			cfg.Station.MaxPower = n
		}
	}
	if val, ok := lookup(EnvPollInterval); ok {
		if d, err := parseDuration(val); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", EnvPollInterval, err))
		} else {
			cfg.PollInterval = d
		}
	}
	if val, ok := lookup(EnvMetricsPort); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err != nil {
			problems = append(problems, fmt.Sprintf("%s must be an integer, got %q", EnvMetricsPort, val))
		} else {
			cfg.Metrics.Port = n
		}
	}
	if val, ok := lookup(EnvStrictMessages); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err != nil {
			problems = append(problems, fmt.Sprintf("%s must be a boolean, got %q", EnvStrictMessages, val))
		} else {
			cfg.StrictMessages = b
		}
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Loader", "applyEnvOverrides", "apply environment")
	}
	return nil
}
