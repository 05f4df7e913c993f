package message

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Envelope attribute names shared by every message kind.
const (
	AttrType                 = "Type"
	AttrSimulationID         = "SimulationId"
	AttrSourceProcessID      = "SourceProcessId"
	AttrMessageID            = "MessageId"
	AttrTimestamp            = "Timestamp"
	AttrEpochNumber          = "EpochNumber"
	AttrTriggeringMessageIDs = "TriggeringMessageIds"
	AttrWarnings             = "Warnings"
)

var envelopeAttributes = []string{
	AttrType,
	AttrSimulationID,
	AttrSourceProcessID,
	AttrMessageID,
	AttrTimestamp,
	AttrEpochNumber,
	AttrTriggeringMessageIDs,
	AttrWarnings,
}

func isEnvelopeAttribute(name string) bool {
	return contains(envelopeAttributes, name)
}

// TimestampLayout is the wire format of every timestamp: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return NormalizeTime(t).Format(TimestampLayout)
}

// ParseTimestamp accepts TimestampLayout and any RFC 3339 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	return NormalizeTime(t), nil
}

// NormalizeTime converts t to UTC and truncates it to the millisecond precision the
// wire format carries.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Envelope carries the attributes common to all messages.
type Envelope struct {
	Type                 string
	SimulationID         string
	SourceProcessID      string
	MessageID            string
	Timestamp            time.Time
	EpochNumber          int
	TriggeringMessageIDs []string
	Warnings             []string
}

// normalized returns a deep copy with the timestamp truncated and triggering ids
// deduplicated in first-seen order.
func (e Envelope) normalized() Envelope {
	out := e
	out.Timestamp = NormalizeTime(e.Timestamp)
	out.TriggeringMessageIDs = UniqueIDs(e.TriggeringMessageIDs)
	if len(e.Warnings) > 0 {
		out.Warnings = append([]string{}, e.Warnings...)
	} else {
		out.Warnings = nil
	}
	return out
}

func (e Envelope) clone() Envelope {
	out := e
	out.TriggeringMessageIDs = append([]string{}, e.TriggeringMessageIDs...)
	if len(e.Warnings) > 0 {
		out.Warnings = append([]string{}, e.Warnings...)
	}
	return out
}

func (e Envelope) validate() *ValidationError {
	invalid := func(attribute, reason string) *ValidationError {
		return &ValidationError{Type: e.Type, Attribute: attribute, Reason: reason}
	}

	switch {
	case strings.TrimSpace(e.Type) == "":
		return invalid(AttrType, "is required")
	case strings.TrimSpace(e.SimulationID) == "":
		return invalid(AttrSimulationID, "is required")
	case strings.TrimSpace(e.SourceProcessID) == "":
		return invalid(AttrSourceProcessID, "is required")
	case strings.TrimSpace(e.MessageID) == "":
		return invalid(AttrMessageID, "is required")
	case e.Timestamp.IsZero():
		return invalid(AttrTimestamp, "is required")
	case e.EpochNumber < 0:
		return invalid(AttrEpochNumber, fmt.Sprintf("must be non-negative, got %d", e.EpochNumber))
	}
	for _, attr := range [...]struct{ name, value string }{
		{AttrType, e.Type},
		{AttrSimulationID, e.SimulationID},
		{AttrSourceProcessID, e.SourceProcessID},
		{AttrMessageID, e.MessageID},
	} {
		if !utf8.ValidString(attr.value) {
			return invalid(attr.name, "is not valid UTF-8")
		}
	}
	if !validUTF8(e.TriggeringMessageIDs) {
		return invalid(AttrTriggeringMessageIDs, "contains an id that is not valid UTF-8")
	}
	if !validUTF8(e.Warnings) {
		return invalid(AttrWarnings, "contains a warning that is not valid UTF-8")
	}
	if !NonEmptyStrings(e.TriggeringMessageIDs) {
		return invalid(AttrTriggeringMessageIDs, "contains an empty id")
	}
	if !NonEmptyStrings(e.Warnings) {
		return invalid(AttrWarnings, "contains an empty warning")
	}
	return nil
}

func validUTF8(list []string) bool {
	for _, s := range list {
		if !utf8.ValidString(s) {
			return false
		}
	}
	return true
}

// Equal compares two envelopes attribute by attribute.
func (e Envelope) Equal(other Envelope) bool {
	return e.Type == other.Type &&
		e.SimulationID == other.SimulationID &&
		e.SourceProcessID == other.SourceProcessID &&
		e.MessageID == other.MessageID &&
		e.Timestamp.Equal(other.Timestamp) &&
		e.EpochNumber == other.EpochNumber &&
		equalStrings(e.TriggeringMessageIDs, other.TriggeringMessageIDs) &&
		equalStrings(e.Warnings, other.Warnings)
}

// UniqueIDs returns ids without duplicates, keeping the first occurrence of each.
func UniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
