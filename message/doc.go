// Package message provides the schema registry and wire codec for simulation messages.
//
// Every message is a flat JSON object. The envelope attributes (Type, SimulationId,
// SourceProcessId, MessageId, Timestamp, EpochNumber, TriggeringMessageIds and the
// optional Warnings) are shared by all kinds; the remaining attributes are declared
// per kind by a Schema.
//
// # Schemas
//
// A Schema names a type tag and lists its payload fields. Each Field has a wire
// attribute name, a local property name, a Kind, an optional flag and an optional
// pure Validator:
//
//	reg := message.NewRegistry()
//	reg.MustRegister(message.Schema{
//	    Type: "StationState",
//	    Fields: []message.Field{
//	        message.Required("StationId", "station_id", message.KindString, message.NonEmptyString),
//	        message.Required("MaxPower", "max_power", message.KindInt, message.NonNegativeInt),
//	    },
//	})
//
// Registering the same type tag twice fails with *DuplicateSchemaError.
//
// # Messages
//
// Registry.New builds an immutable *Message after checking the envelope and every
// field. A required field that is absent, a value of the wrong kind and a value
// refused by its validator all fail with *ValidationError naming the attribute.
// Message.With returns a validated copy with one field changed.
//
// # Wire format
//
// Registry.Encode revalidates and writes envelope attributes first, then payload
// fields in schema order. Registry.Decode reads the Type attribute, selects the
// schema and rebuilds the message; all decode errors are *DecodeFailure, wrapping a
// syntax error, *UnknownTypeError or *ValidationError. For every valid message m,
// Decode(Encode(m)) equals m. Timestamps are UTC with millisecond precision.
//
// # Strictness
//
// Registries are strict by default: JSON values must match the field kind exactly and
// attributes outside the schema are refused. WithStrict(false) accepts numeric strings
// and integral floats for integer fields and ignores unknown attributes.
//
// # Blocks
//
// QuantityBlock, QuantityArrayBlock and TimeSeriesBlock are structured values with
// their own well-formedness rules. A field can pin the unit of measure a block
// must use with Field.WithUnit.
//
// # JSON Schema
//
// Registry.JSONSchema exports a draft-07 document per kind, and ValidateDocument
// checks encoded bytes against it.
package message
