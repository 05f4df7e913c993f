// Package config loads the configuration of a station process.
//
// Loading is layered: Default values first, then each file added with AddLayer (JSON
// or YAML, chosen by extension), then environment variables. Later layers only
// override the keys they name.
//
//	loader := config.NewLoader()
//	loader.AddLayer("station.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//	    return err
//	}
//
// # Environment Variables
//
//	SIMULATION_ID            simulation identifier shared by all participants
//	COMPONENT_NAME           SourceProcessId of this process
//	STATION_ID               station identity
//	MAX_POWER                station capacity, non-negative integer
//	STATION_STATE_TOPIC      default StationStateTopic
//	POWER_OUTPUT_TOPIC       default PowerOutputTopic
//	POWER_REQUIREMENT_TOPIC  default PowerRequirementTopic
//	NATS_URL                 comma separated server URLs
//	NATS_USERNAME, NATS_PASSWORD, NATS_TOKEN
//	NATS_TLS_CA_FILE         extra trusted CA, enables TLS
//	NATS_TLS_CERT_FILE, NATS_TLS_KEY_FILE  client certificate for mTLS
//	POLL_INTERVAL            Go duration or seconds
//	METRICS_PORT             0 disables the metrics and health endpoint
//	STRICT_MESSAGES          strict message validation, boolean
//
// Numeric and boolean variables that do not parse make Load fail; they are never
// passed on as strings.
//
// # Durations
//
// Duration keys in files accept Go duration strings ("500ms") or bare numbers of
// seconds.
package config
