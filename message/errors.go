package message

import (
	"fmt"

	"github.com/c360/simstation/errors"
)

// DuplicateSchemaError is returned when a type tag is registered twice.
// It is a startup configuration fault.
type DuplicateSchemaError struct {
	Type string
}

func (e *DuplicateSchemaError) Error() string {
	return fmt.Sprintf("message schema %q is already registered", e.Type)
}

func (e *DuplicateSchemaError) Unwrap() error {
	return errors.ErrInvalidConfig
}

// UnknownTypeError is returned when no schema is registered for a type tag.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no schema registered for message type %q", e.Type)
}

func (e *UnknownTypeError) Unwrap() error {
	return errors.ErrUnknownType
}

// ValidationError names the field that failed its presence, kind, unit or validator check.
type ValidationError struct {
	Type      string
	Attribute string
	Property  string
	Reason    string
}

func (e *ValidationError) Error() string {
	name := e.Attribute
	if e.Property != "" && e.Property != e.Attribute {
		name = fmt.Sprintf("%s (%s)", e.Attribute, e.Property)
	}
	return fmt.Sprintf("%s message: field %s %s", e.Type, name, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return errors.ErrInvalidData
}

// DecodeFailure is the only error kind Decode returns. Err holds the cause: a syntax
// error, an *UnknownTypeError or a *ValidationError.
type DecodeFailure struct {
	Type string
	Err  error
}

func (e *DecodeFailure) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s message: %v", e.Type, e.Err)
}

func (e *DecodeFailure) Unwrap() error {
	return e.Err
}

func missing(schemaType string, f Field) *ValidationError {
	return &ValidationError{Type: schemaType, Attribute: f.Attribute, Property: f.Property, Reason: "is required"}
}

func rejected(schemaType string, f Field, reason string) *ValidationError {
	return &ValidationError{Type: schemaType, Attribute: f.Attribute, Property: f.Property, Reason: "is invalid: " + reason}
}
