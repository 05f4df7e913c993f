// Package simulation runs a participant through the epochs of a simulation.
//
// The simulation manager announces a run with a SimState message and opens each step
// with an Epoch message. A participant answers every step with a ready Status once
// its work for the epoch is done, or with an error Status when something went wrong.
//
// # Components
//
//   - RegisterCore adds the SimState, Epoch and Status schemas to a message.Registry.
//   - Generator stamps outbound envelopes with "<source>-<n>" message ids.
//   - Broker is the transport boundary; natsclient.Client and MemoryBroker implement it.
//   - StatusReporter publishes ready and error Status messages and is the ErrorReporter
//     handed to participants.
//   - Driver subscribes to the control topics and the participant's own topics, and
//     calls Participant.ProcessEpoch until the epoch is complete.
//
// # Driving an epoch
//
// When an Epoch message arrives the driver calls OnEpochBegin with the epoch number
// and the Epoch message id, then ProcessEpoch. ProcessEpoch runs again on every poll
// interval and immediately whenever HandleMessage returns true. Once it reports
// completion the driver publishes a ready Status, retrying transient publish failures
// with pkg/retry. A stopped SimState ends the run loop and closes Done.
//
//	reg := message.NewRegistry()
//	_ = simulation.RegisterCore(reg)
//	ids := simulation.NewGenerator(simulationID, "station-1")
//	status := simulation.NewStatusReporter(reg, broker, ids, metrics, logger)
//	driver, err := simulation.NewDriver(simulation.Config{}, participant, simulation.Dependencies{
//	    Registry: reg, Broker: broker, Status: status, Metrics: metrics, Logger: logger,
//	})
package simulation
