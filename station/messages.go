package station

import (
	"github.com/c360/simstation/message"
)

// Station message kinds.
const (
	TypeStationState     = "StationState"
	TypePowerRequirement = "PowerRequirement"
	TypePowerOutput      = "PowerOutput"
)

// Payload attribute names.
const (
	AttrStationID   = "StationID"
	AttrMaxPower    = "MaxPower"
	AttrPower       = "Power"
	AttrPowerOutput = "PowerOutput"
)

// StationStateSchema describes the status a station publishes at the start of every epoch.
func StationStateSchema() message.Schema {
	return message.Schema{
		Type:        TypeStationState,
		Description: "Identity and capacity of a charging station for the current epoch",
		Fields: []message.Field{
			message.Required(AttrStationID, "station_id", message.KindString, message.NonEmptyString),
			message.Required(AttrMaxPower, "max_power", message.KindInt, message.NonNegativeInt),
		},
	}
}

// PowerRequirementSchema describes the request addressed to one station.
func PowerRequirementSchema() message.Schema {
	return message.Schema{
		Type:        TypePowerRequirement,
		Description: "Power the controller requires from the addressed station",
		Fields: []message.Field{
			message.Required(AttrStationID, "station_id", message.KindString, message.NonEmptyString),
			message.Required(AttrPower, "power", message.KindInt, message.NonNegativeInt),
		},
	}
}

// PowerOutputSchema describes the station's answer to a power requirement.
func PowerOutputSchema() message.Schema {
	return message.Schema{
		Type:        TypePowerOutput,
		Description: "Power delivered by the station in the current epoch",
		Fields: []message.Field{
			message.Optional(AttrStationID, "station_id", message.KindString, message.NonEmptyString),
			message.Required(AttrPowerOutput, "power_output", message.KindInt, message.NonNegativeInt),
		},
	}
}

// RegisterMessages adds the station message kinds to reg.
func RegisterMessages(reg *message.Registry) error {
	for _, schema := range []message.Schema{StationStateSchema(), PowerRequirementSchema(), PowerOutputSchema()} {
		if err := reg.Register(schema); err != nil {
			return err
		}
	}
	return nil
}

// InboundKind is the closed set of inbound messages the station reacts to.
type InboundKind int

const (
	InboundUnknown InboundKind = iota
	InboundRequest
)

func (k InboundKind) String() string {
	if k == InboundRequest {
		return "request"
	}
	return "unknown"
}

// PowerRequirement is the decoded content of a request.
type PowerRequirement struct {
	MessageID       string
	SourceProcessID string
	EpochNumber     int
	StationID       string
	Power           int
}

// Inbound is a classified inbound message. Request is set only for InboundRequest.
type Inbound struct {
	Kind    InboundKind
	Request PowerRequirement
}

// Classify maps a decoded message onto the inbound kinds.
func Classify(msg *message.Message) Inbound {
	if msg == nil || msg.Type() != TypePowerRequirement {
		return Inbound{Kind: InboundUnknown}
	}
	stationID, ok := msg.String(AttrStationID)
	if !ok {
		return Inbound{Kind: InboundUnknown}
	}
	power, ok := msg.Int(AttrPower)
	if !ok {
		return Inbound{Kind: InboundUnknown}
	}
	return Inbound{
		Kind: InboundRequest,
		Request: PowerRequirement{
			MessageID:       msg.MessageID(),
			SourceProcessID: msg.SourceProcessID(),
			EpochNumber:     msg.EpochNumber(),
			StationID:       stationID,
			Power:           power,
		},
	}
}
