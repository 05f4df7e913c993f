package station

import (
	"fmt"
	"strings"

	"github.com/c360/simstation/errors"
)

// Default topic names.
const (
	DefaultStationStateTopic     = "StationStateTopic"
	DefaultPowerOutputTopic      = "PowerOutputTopic"
	DefaultPowerRequirementTopic = "PowerRequirementTopic"
)

// Config identifies the station and the topics it talks on.
type Config struct {
	StationID             string `json:"station_id"              yaml:"station_id"`
	MaxPower              int    `json:"max_power"               yaml:"max_power"`
	StationStateTopic     string `json:"station_state_topic"     yaml:"station_state_topic"`
	PowerOutputTopic      string `json:"power_output_topic"      yaml:"power_output_topic"`
	PowerRequirementTopic string `json:"power_requirement_topic" yaml:"power_requirement_topic"`
}

// DefaultConfig returns a config with the default topics and no identity.
func DefaultConfig() Config {
	return Config{
		StationStateTopic:     DefaultStationStateTopic,
		PowerOutputTopic:      DefaultPowerOutputTopic,
		PowerRequirementTopic: DefaultPowerRequirementTopic,
	}
}

// Validate checks the station identity, capacity and topics.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.StationID) == "" {
		problems = append(problems, "station id is required")
	}
	if c.MaxPower < 0 {
		problems = append(problems, fmt.Sprintf("max power must be non-negative, got %d", c.MaxPower))
	}
	topics := map[string]string{
		"station state topic":     c.StationStateTopic,
		"power output topic":      c.PowerOutputTopic,
		"power requirement topic": c.PowerRequirementTopic,
	}
	for _, name := range []string{"station state topic", "power output topic", "power requirement topic"} {
		if strings.TrimSpace(topics[name]) == "" {
			problems = append(problems, name+" is required")
		}
	}
	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"StationConfig", "Validate", "validate station config")
	}
	return nil
}
