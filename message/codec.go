package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/c360/simstation/errors"
)

// Encode validates m against the schema registered for its type and serializes it as
// a JSON object. Envelope attributes come first, then payload fields in schema order,
// so equal messages always produce identical bytes.
func (r *Registry) Encode(m *Message) ([]byte, error) {
	if m == nil || m.env.Type == "" {
		return nil, &UnknownTypeError{}
	}
	schema, ok := r.Lookup(m.env.Type)
	if !ok {
		return nil, &UnknownTypeError{Type: m.env.Type}
	}

	// Revalidate against this registry's schema; m may come from another registry.
	checked, err := build(schema, r.strict, m.env, m.Values())
	if err != nil {
		return nil, err
	}
	return marshalMessage(schema, checked)
}

// EncodeValues builds and encodes a message in one step.
func (r *Registry) EncodeValues(messageType string, env Envelope, values Values) ([]byte, error) {
	m, err := r.New(messageType, env, values)
	if err != nil {
		return nil, err
	}
	return r.Encode(m)
}

type member struct {
	name  string
	value any
}

func marshalMessage(schema Schema, m *Message) ([]byte, error) {
	members := []member{
		{AttrType, m.env.Type},
		{AttrSimulationID, m.env.SimulationID},
		{AttrSourceProcessID, m.env.SourceProcessID},
		{AttrMessageID, m.env.MessageID},
		{AttrTimestamp, FormatTimestamp(m.env.Timestamp)},
		{AttrEpochNumber, m.env.EpochNumber},
		{AttrTriggeringMessageIDs, m.env.TriggeringMessageIDs},
	}
	if len(m.env.Warnings) > 0 {
		members = append(members, member{AttrWarnings, m.env.Warnings})
	}
	for _, f := range schema.Fields {
		if v, ok := m.values[f.Attribute]; ok {
			members = append(members, member{f.Attribute, v})
		}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, mem := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(mem.name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(mem.value)
		if err != nil {
			return nil, errors.Wrap(err, "Registry", "Encode", fmt.Sprintf("marshal %s", mem.name))
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses data, finds the schema named by its Type attribute and rebuilds the
// validated message. Every error is a *DecodeFailure wrapping the cause.
func (r *Registry) Decode(data []byte) (*Message, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, &DecodeFailure{Err: fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)}
	}

	rawType, ok := members[AttrType]
	if !ok || isNull(rawType) {
		return nil, &DecodeFailure{Err: &ValidationError{Attribute: AttrType, Reason: "is required"}}
	}
	var messageType string
	if err := json.Unmarshal(rawType, &messageType); err != nil {
		return nil, &DecodeFailure{Err: &ValidationError{Attribute: AttrType, Reason: "must be a string"}}
	}

	schema, ok := r.Lookup(messageType)
	if !ok {
		return nil, &DecodeFailure{Type: messageType, Err: &UnknownTypeError{Type: messageType}}
	}

	fail := func(err error) (*Message, error) {
		return nil, &DecodeFailure{Type: messageType, Err: err}
	}

	env, verr := decodeEnvelope(messageType, members, r.strict)
	if verr != nil {
		return fail(verr)
	}

	values := make(Values, len(schema.Fields))
	for _, f := range schema.Fields {
		raw, present := members[f.Attribute]
		if !present || isNull(raw) {
			continue
		}
		var (
			v   any
			err error
		)
		if f.Kind.IsBlock() {
			v, err = decodeBlock(f.Kind, raw, r.strict)
		} else {
			v, err = decodeAny(raw)
		}
		if err != nil {
			return fail(rejected(messageType, f, err.Error()))
		}
		values[f.Attribute] = v
	}

	if r.strict {
		if name := firstUnknown(schema, members); name != "" {
			return fail(&ValidationError{Type: messageType, Attribute: name, Reason: "is not defined by the schema"})
		}
	}

	m, err := build(schema, r.strict, env, values)
	if err != nil {
		return fail(err)
	}
	return m, nil
}

func decodeEnvelope(messageType string, members map[string]json.RawMessage, strict bool) (Envelope, *ValidationError) {
	env := Envelope{Type: messageType}
	invalid := func(attribute, reason string) *ValidationError {
		return &ValidationError{Type: messageType, Attribute: attribute, Reason: reason}
	}

	for _, attr := range envelopeAttributes {
		raw, present := members[attr]
		if !present || isNull(raw) {
			if attr == AttrWarnings {
				continue
			}
			return env, invalid(attr, "is required")
		}

		switch attr {
		case AttrType:
		case AttrSimulationID, AttrSourceProcessID, AttrMessageID, AttrTimestamp:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return env, invalid(attr, "must be a string")
			}
			switch attr {
			case AttrSimulationID:
				env.SimulationID = s
			case AttrSourceProcessID:
				env.SourceProcessID = s
			case AttrMessageID:
				env.MessageID = s
			case AttrTimestamp:
				t, err := ParseTimestamp(s)
				if err != nil {
					return env, invalid(attr, err.Error())
				}
				env.Timestamp = t
			}
		case AttrEpochNumber:
			v, err := decodeAny(raw)
			if err == nil {
				v, err = coerceInt(v, strict)
			}
			if err != nil {
				return env, invalid(attr, err.Error())
			}
			env.EpochNumber = v.(int)
		case AttrTriggeringMessageIDs, AttrWarnings:
			v, err := decodeAny(raw)
			if err == nil {
				v, err = coerceStringList(v)
			}
			if err != nil {
				return env, invalid(attr, err.Error())
			}
			if attr == AttrWarnings {
				env.Warnings = v.([]string)
			} else {
				env.TriggeringMessageIDs = v.([]string)
			}
		}
	}
	return env, nil
}

func firstUnknown(schema Schema, members map[string]json.RawMessage) string {
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if isEnvelopeAttribute(name) {
			continue
		}
		known := false
		for _, f := range schema.Fields {
			if f.Attribute == name {
				known = true
				break
			}
		}
		if !known {
			return name
		}
	}
	return ""
}

func decodeAny(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
