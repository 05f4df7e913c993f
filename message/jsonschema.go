package message

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/simstation/errors"
)

// JSONSchemaDraft is the draft the exported documents declare.
const JSONSchemaDraft = "http://json-schema.org/draft-07/schema#"

// JSONSchema is an exported JSON Schema document for one message kind.
// Field validators are Go predicates and are not represented.
type JSONSchema struct {
	Schema               string                     `json:"$schema"`
	ID                   string                     `json:"$id"`
	Title                string                     `json:"title"`
	Description          string                     `json:"description,omitempty"`
	Type                 string                     `json:"type"`
	Properties           map[string]*PropertySchema `json:"properties"`
	Required             []string                   `json:"required"`
	AdditionalProperties *bool                      `json:"additionalProperties,omitempty"`
}

// PropertySchema represents a JSON Schema property definition
type PropertySchema struct {
	Type                 string                     `json:"type,omitempty"`
	Description          string                     `json:"description,omitempty"`
	Format               string                     `json:"format,omitempty"`
	Const                any                        `json:"const,omitempty"`
	Minimum              *float64                   `json:"minimum,omitempty"`
	MinLength            *int                       `json:"minLength,omitempty"`
	MinItems             *int                       `json:"minItems,omitempty"`
	Items                *PropertySchema            `json:"items,omitempty"`
	Properties           map[string]*PropertySchema `json:"properties,omitempty"`
	AdditionalProperties any                        `json:"additionalProperties,omitempty"`
	Required             []string                   `json:"required,omitempty"`
}

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }

// JSONSchema exports the schema of a registered type.
func (r *Registry) JSONSchema(messageType string) (*JSONSchema, error) {
	s, ok := r.Lookup(messageType)
	if !ok {
		return nil, &UnknownTypeError{Type: messageType}
	}
	return s.JSONSchema(r.strict), nil
}

// JSONSchema describes the wire form of the kind. Strict documents refuse attributes
// the schema does not define.
func (s Schema) JSONSchema(strict bool) *JSONSchema {
	doc := &JSONSchema{
		Schema:      JSONSchemaDraft,
		ID:          fmt.Sprintf("urn:simstation:message:%s:v1", s.Type),
		Title:       s.Type,
		Description: s.Description,
		Type:        "object",
		Properties: map[string]*PropertySchema{
			AttrType:            {Type: "string", Const: s.Type},
			AttrSimulationID:    {Type: "string", MinLength: intPtr(1)},
			AttrSourceProcessID: {Type: "string", MinLength: intPtr(1)},
			AttrMessageID:       {Type: "string", MinLength: intPtr(1)},
			AttrTimestamp:       {Type: "string", Format: "date-time"},
			AttrEpochNumber:     {Type: "integer", Minimum: floatPtr(0)},
			AttrTriggeringMessageIDs: {
				Type:  "array",
				Items: &PropertySchema{Type: "string", MinLength: intPtr(1)},
			},
			AttrWarnings: {
				Type:  "array",
				Items: &PropertySchema{Type: "string", MinLength: intPtr(1)},
			},
		},
		Required: []string{
			AttrType, AttrSimulationID, AttrSourceProcessID, AttrMessageID,
			AttrTimestamp, AttrEpochNumber, AttrTriggeringMessageIDs,
		},
	}
	if strict {
		doc.AdditionalProperties = boolPtr(false)
	}

	for _, f := range s.Fields {
		doc.Properties[f.Attribute] = fieldSchema(f, strict)
		if !f.Optional {
			doc.Required = append(doc.Required, f.Attribute)
		}
	}
	return doc
}

func fieldSchema(f Field, strict bool) *PropertySchema {
	var closed any
	if strict {
		closed = false
	}
	unit := &PropertySchema{Type: "string"}
	if f.Unit != "" {
		unit.Const = f.Unit
	} else {
		unit.MinLength = intPtr(1)
	}
	numbers := &PropertySchema{Type: "array", MinItems: intPtr(1), Items: &PropertySchema{Type: "number"}}

	var p *PropertySchema
	switch f.Kind {
	case KindString:
		p = &PropertySchema{Type: "string"}
	case KindInt:
		p = &PropertySchema{Type: "integer"}
	case KindFloat:
		p = &PropertySchema{Type: "number"}
	case KindBool:
		p = &PropertySchema{Type: "boolean"}
	case KindStringList:
		p = &PropertySchema{Type: "array", Items: &PropertySchema{Type: "string"}}
	case KindQuantity:
		p = &PropertySchema{
			Type:                 "object",
			Properties:           map[string]*PropertySchema{"Value": {Type: "number"}, "UnitOfMeasure": unit},
			Required:             []string{"Value", "UnitOfMeasure"},
			AdditionalProperties: closed,
		}
	case KindQuantityArray:
		p = &PropertySchema{
			Type:                 "object",
			Properties:           map[string]*PropertySchema{"Values": numbers, "UnitOfMeasure": unit},
			Required:             []string{"Values", "UnitOfMeasure"},
			AdditionalProperties: closed,
		}
	case KindTimeSeries:
		series := &PropertySchema{
			Type:       "object",
			Properties: map[string]*PropertySchema{"Values": numbers, "UnitOfMeasure": unit},
			Required:   []string{"Values", "UnitOfMeasure"},
		}
		p = &PropertySchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"TimeIndex": {Type: "array", MinItems: intPtr(1), Items: &PropertySchema{Type: "string", Format: "date-time"}},
				"Series":    {Type: "object", AdditionalProperties: series},
			},
			Required:             []string{"TimeIndex", "Series"},
			AdditionalProperties: closed,
		}
	default:
		p = &PropertySchema{}
	}
	if f.Property != "" && f.Property != f.Attribute {
		p.Description = f.Property
	}
	return p
}

// ValidateDocument checks an encoded message against an exported schema.
// A document that does not conform yields an error wrapping ErrInvalidData.
func ValidateDocument(schema *JSONSchema, document []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(document))
	if err != nil {
		return errors.Wrap(err, "JSONSchema", "ValidateDocument", "schema validation")
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("%w: %s does not conform: %s", errors.ErrInvalidData, schema.Title, strings.Join(problems, "; "))
}
