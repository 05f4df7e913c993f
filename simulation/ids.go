package simulation

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/c360/simstation/message"
)

// Generator stamps outbound envelopes for one participant. Message ids are
// "<source>-<n>" with n counting from 1.
type Generator struct {
	simulationID string
	source       string
	counter      atomic.Uint64
	now          func() time.Time
}

// NewGenerator creates a generator for the given simulation and source process.
func NewGenerator(simulationID, source string) *Generator {
	return &Generator{
		simulationID: simulationID,
		source:       source,
		now:          time.Now,
	}
}

// SimulationID returns the simulation the generator stamps.
func (g *Generator) SimulationID() string { return g.simulationID }

// Source returns the source process id.
func (g *Generator) Source() string { return g.source }

// NextID returns the next message id.
func (g *Generator) NextID() string {
	return g.source + "-" + strconv.FormatUint(g.counter.Add(1), 10)
}

// Envelope returns a complete envelope with a fresh message id and the current time.
// The message type is filled in by the registry.
func (g *Generator) Envelope(epoch int, triggeringIDs []string) message.Envelope {
	return message.Envelope{
		SimulationID:         g.simulationID,
		SourceProcessID:      g.source,
		MessageID:            g.NextID(),
		Timestamp:            g.now(),
		EpochNumber:          epoch,
		TriggeringMessageIDs: append([]string{}, triggeringIDs...),
	}
}
