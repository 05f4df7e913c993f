package message

import (
	"fmt"
	"sort"
	"time"
)

// Values maps attribute or property names to field values.
type Values map[string]any

// Message is an immutable, validated instance of a registered message kind.
// Use With to derive a modified copy.
type Message struct {
	schema Schema
	strict bool
	env    Envelope
	values map[string]any
}

func build(schema Schema, strict bool, env Envelope, values Values) (*Message, error) {
	if env.Type == "" {
		env.Type = schema.Type
	}
	if env.Type != schema.Type {
		return nil, &ValidationError{
			Type:      schema.Type,
			Attribute: AttrType,
			Reason:    fmt.Sprintf("is %q, expected %q", env.Type, schema.Type),
		}
	}
	env = env.normalized()
	if verr := env.validate(); verr != nil {
		return nil, verr
	}

	resolved, err := resolve(schema, strict, values)
	if err != nil {
		return nil, err
	}

	checked := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		raw, present := resolved[f.Attribute]
		if !present || raw == nil {
			if !f.Optional {
				return nil, missing(schema.Type, f)
			}
			continue
		}
		value, reason := f.check(raw, strict)
		if reason != "" {
			return nil, rejected(schema.Type, f, reason)
		}
		checked[f.Attribute] = value
	}

	return &Message{schema: schema, strict: strict, env: env, values: checked}, nil
}

// resolve keys values by attribute. Names the schema does not define are an error in
// strict mode and dropped otherwise.
func resolve(schema Schema, strict bool, values Values) (map[string]any, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	resolved := make(map[string]any, len(values))
	for _, name := range names {
		f, ok := schema.Field(name)
		if !ok {
			if strict {
				return nil, &ValidationError{Type: schema.Type, Attribute: name, Reason: "is not defined by the schema"}
			}
			continue
		}
		if _, dup := resolved[f.Attribute]; dup {
			return nil, &ValidationError{
				Type:      schema.Type,
				Attribute: f.Attribute,
				Property:  f.Property,
				Reason:    "is given under both its attribute and property name",
			}
		}
		resolved[f.Attribute] = values[name]
	}
	return resolved, nil
}

// Type returns the message type tag.
func (m *Message) Type() string { return m.env.Type }

// Envelope returns a copy of the common attributes.
func (m *Message) Envelope() Envelope { return m.env.clone() }

// SimulationID returns the simulation run identifier.
func (m *Message) SimulationID() string { return m.env.SimulationID }

// SourceProcessID returns the identifier of the publishing participant.
func (m *Message) SourceProcessID() string { return m.env.SourceProcessID }

// MessageID returns the message identifier.
func (m *Message) MessageID() string { return m.env.MessageID }

// Timestamp returns the creation time, truncated to milliseconds.
func (m *Message) Timestamp() time.Time { return m.env.Timestamp }

// EpochNumber returns the epoch the message belongs to.
func (m *Message) EpochNumber() int { return m.env.EpochNumber }

// TriggeringMessageIDs returns the ids of the messages that caused this one.
func (m *Message) TriggeringMessageIDs() []string {
	return append([]string{}, m.env.TriggeringMessageIDs...)
}

// Warnings returns the optional warning list.
func (m *Message) Warnings() []string {
	return append([]string{}, m.env.Warnings...)
}

// Has reports whether the field is set.
func (m *Message) Has(name string) bool {
	_, ok := m.Value(name)
	return ok
}

// Value returns a field value by attribute or property name. The value has the
// canonical type of the field's Kind.
func (m *Message) Value(name string) (any, bool) {
	f, ok := m.schema.Field(name)
	if !ok {
		return nil, false
	}
	v, ok := m.values[f.Attribute]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// String returns a KindString field.
func (m *Message) String(name string) (string, bool) {
	v, ok := m.Value(name)
	s, isString := v.(string)
	return s, ok && isString
}

// Int returns a KindInt field.
func (m *Message) Int(name string) (int, bool) {
	v, ok := m.Value(name)
	i, isInt := v.(int)
	return i, ok && isInt
}

// Float returns a KindFloat field.
func (m *Message) Float(name string) (float64, bool) {
	v, ok := m.Value(name)
	f, isFloat := v.(float64)
	return f, ok && isFloat
}

// Bool returns a KindBool field.
func (m *Message) Bool(name string) (bool, bool) {
	v, ok := m.Value(name)
	b, isBool := v.(bool)
	return b, ok && isBool
}

// Strings returns a KindStringList field.
func (m *Message) Strings(name string) ([]string, bool) {
	v, ok := m.Value(name)
	s, isList := v.([]string)
	return s, ok && isList
}

// Quantity returns a KindQuantity field.
func (m *Message) Quantity(name string) (QuantityBlock, bool) {
	v, ok := m.Value(name)
	q, isBlock := v.(QuantityBlock)
	return q, ok && isBlock
}

// QuantityArray returns a KindQuantityArray field.
func (m *Message) QuantityArray(name string) (QuantityArrayBlock, bool) {
	v, ok := m.Value(name)
	q, isBlock := v.(QuantityArrayBlock)
	return q, ok && isBlock
}

// TimeSeries returns a KindTimeSeries field.
func (m *Message) TimeSeries(name string) (TimeSeriesBlock, bool) {
	v, ok := m.Value(name)
	ts, isBlock := v.(TimeSeriesBlock)
	return ts, ok && isBlock
}

// Values returns a copy of all set fields keyed by attribute name.
func (m *Message) Values() Values {
	out := make(Values, len(m.values))
	for k, v := range m.values {
		out[k] = cloneValue(v)
	}
	return out
}

// With returns a copy of the message with one field replaced. A nil value clears an
// optional field. The copy is validated like a new message.
func (m *Message) With(name string, value any) (*Message, error) {
	f, ok := m.schema.Field(name)
	if !ok {
		return nil, &ValidationError{Type: m.schema.Type, Attribute: name, Reason: "is not defined by the schema"}
	}
	values := m.Values()
	values[f.Attribute] = value
	return build(m.schema, m.strict, m.env, values)
}

// WithEnvelope returns a copy of the message with a new envelope. The type tag is
// kept when env.Type is empty.
func (m *Message) WithEnvelope(env Envelope) (*Message, error) {
	return build(m.schema, m.strict, env, m.Values())
}

// Equal reports whether both messages have the same envelope and field values.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	if !m.env.Equal(other.env) || len(m.values) != len(other.values) {
		return false
	}
	for attr, v := range m.values {
		o, ok := other.values[attr]
		if !ok || !valueEqual(v, o) {
			return false
		}
	}
	return true
}

// GoString formats the message identity for logs.
func (m *Message) GoString() string {
	return fmt.Sprintf("%s{id=%s epoch=%d source=%s}", m.env.Type, m.env.MessageID, m.env.EpochNumber, m.env.SourceProcessID)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string{}, t...)
	case QuantityArrayBlock:
		return t.clone()
	case TimeSeriesBlock:
		return t.clone()
	}
	return v
}

func valueEqual(a, b any) bool {
	switch x := a.(type) {
	case []string:
		y, ok := b.([]string)
		return ok && equalStrings(x, y)
	case QuantityArrayBlock:
		y, ok := b.(QuantityArrayBlock)
		return ok && x.Equal(y)
	case TimeSeriesBlock:
		y, ok := b.(TimeSeriesBlock)
		return ok && x.Equal(y)
	}
	return a == b
}
