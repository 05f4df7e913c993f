package simulation

import (
	"time"

	"github.com/c360/simstation/message"
)

// Core message kinds published by the simulation manager and by every participant.
const (
	TypeSimState = "SimState"
	TypeEpoch    = "Epoch"
	TypeStatus   = "Status"
)

// Default topics of the core message kinds.
const (
	TopicSimState    = "SimState"
	TopicEpoch       = "Epoch"
	TopicStatusReady = "Status.Ready"
	TopicStatusError = "Status.Error"
)

// Values of the SimulationState attribute.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Values of the Status message Value attribute.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// Payload attribute names of the core message kinds.
const (
	AttrSimulationState = "SimulationState"
	AttrStartTime       = "StartTime"
	AttrEndTime         = "EndTime"
	AttrValue           = "Value"
	AttrDescription     = "Description"
)

// SimStateSchema describes the message that starts and stops a simulation run.
func SimStateSchema() message.Schema {
	return message.Schema{
		Type:        TypeSimState,
		Description: "Simulation run state announced by the simulation manager",
		Fields: []message.Field{
			message.Required(AttrSimulationState, "simulation_state", message.KindString,
				message.OneOf(StateRunning, StateStopped)),
		},
	}
}

// EpochSchema describes the message that opens an epoch.
func EpochSchema() message.Schema {
	return message.Schema{
		Type:        TypeEpoch,
		Description: "Start of a simulation epoch and the simulated interval it covers",
		Fields: []message.Field{
			message.Required(AttrStartTime, "start_time", message.KindString, isTimestamp),
			message.Required(AttrEndTime, "end_time", message.KindString, isTimestamp),
		},
	}
}

// StatusSchema describes the ready and error reports of a participant.
func StatusSchema() message.Schema {
	return message.Schema{
		Type:        TypeStatus,
		Description: "Participant readiness or error report for an epoch",
		Fields: []message.Field{
			message.Required(AttrValue, "value", message.KindString, message.OneOf(StatusReady, StatusError)),
			message.Optional(AttrDescription, "description", message.KindString, nil),
		},
	}
}

// RegisterCore adds the SimState, Epoch and Status schemas to reg.
func RegisterCore(reg *message.Registry) error {
	for _, schema := range []message.Schema{SimStateSchema(), EpochSchema(), StatusSchema()} {
		if err := reg.Register(schema); err != nil {
			return err
		}
	}
	return nil
}

func isTimestamp(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	_, err := message.ParseTimestamp(s)
	return err == nil
}

// EpochInterval is the simulated time span carried by an Epoch message.
type EpochInterval struct {
	Number int
	Start  time.Time
	End    time.Time
}

// ParseEpoch extracts the epoch number and interval from an Epoch message.
func ParseEpoch(m *message.Message) (EpochInterval, bool) {
	if m == nil || m.Type() != TypeEpoch {
		return EpochInterval{}, false
	}
	start, _ := m.String(AttrStartTime)
	end, _ := m.String(AttrEndTime)

	interval := EpochInterval{Number: m.EpochNumber()}
	interval.Start, _ = message.ParseTimestamp(start)
	interval.End, _ = message.ParseTimestamp(end)
	return interval, true
}

// SimulationState returns the SimulationState value of a SimState message.
func SimulationState(m *message.Message) (string, bool) {
	if m == nil || m.Type() != TypeSimState {
		return "", false
	}
	return m.String(AttrSimulationState)
}
