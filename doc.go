// Package simstation is a charging station participant for epoch-based co-simulations.
//
// A simulation manager drives every participant through discrete epochs over a message
// bus. In each epoch the station announces its state, waits for the power requirement
// addressed to it and answers with the power it delivers, then reports itself ready.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          cmd/station                │  Config, logging, metrics server,
//	│   (flags, config, signal handling)  │  health endpoint, shutdown
//	└─────────────────────────────────────┘
//	           ↓ wires
//	┌─────────────────────────────────────┐
//	│   simulation.Driver + station       │  SimState, Epoch, Status ready;
//	│   (epoch loop + state machine)      │  StationState → PowerOutput
//	└─────────────────────────────────────┘
//	           ↓ encodes with
//	┌─────────────────────────────────────┐
//	│         message.Registry            │  Schemas, validation, strict mode,
//	│     (wire format + JSON Schema)     │  structured blocks
//	└─────────────────────────────────────┘
//	           ↓ travels over
//	┌─────────────────────────────────────┐
//	│         natsclient.Client           │  Pub/sub, reconnects,
//	│        (NATS transport)             │  circuit breaker, TLS
//	└─────────────────────────────────────┘
//
// # Packages
//
//   - message: message schema registry, envelope and codec
//   - simulation: core simulation messages, epoch driver, status reporting, in-memory broker
//   - station: station messages and the epoch interaction state machine
//   - natsclient: NATS connection management
//   - config: layered configuration from defaults, files and environment
//   - errors: classified errors (transient, invalid, fatal)
//   - metric, health: Prometheus metrics and health reporting
//   - pkg/retry, pkg/security, pkg/tlsutil: backoff and TLS helpers
//
// # Running
//
//	STATION_ID=XYZ MAX_POWER=1000 SIMULATION_ID=2026-10-14T08:00:00.000Z \
//	  NATS_URL=nats://broker:4222 station
//
// The schema-exporter command writes the JSON Schema of every message kind:
//
//	schema-exporter -out ./schemas
package simstation
