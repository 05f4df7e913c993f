package simulation

import (
	"context"

	"github.com/c360/simstation/message"
)

// Participant is the per-epoch logic a Driver runs.
//
// OnEpochBegin and ProcessEpoch are called from the driver's run goroutine.
// HandleMessage is called from broker delivery goroutines and may run concurrently
// with them, so implementations guard their own state.
type Participant interface {
	// Topics lists the topics the participant consumes besides SimState and Epoch.
	Topics() []string

	// OnEpochBegin resets per-epoch state. triggeringIDs are the ids of the messages
	// that opened the epoch.
	OnEpochBegin(epoch int, triggeringIDs []string)

	// ProcessEpoch advances the epoch and reports whether it is complete. It is
	// called repeatedly until it returns true. An error leaves the epoch open.
	ProcessEpoch(ctx context.Context) (bool, error)

	// HandleMessage consumes a decoded message from one of Topics. Returning true
	// asks the driver to call ProcessEpoch without waiting for the next poll.
	HandleMessage(ctx context.Context, topic string, msg *message.Message) bool
}
