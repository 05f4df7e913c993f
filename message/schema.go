package message

import (
	"fmt"
	"strings"
)

// Schema declares one message kind: its type tag and the payload fields that follow
// the common envelope.
type Schema struct {
	Type        string
	Description string
	Fields      []Field
}

// Field returns the field with the given attribute or property name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Attribute == name || (f.Property != "" && f.Property == name) {
			return f, true
		}
	}
	return Field{}, false
}

// RequiredAttributes lists the attributes of the mandatory payload fields.
func (s Schema) RequiredAttributes() []string {
	var out []string
	for _, f := range s.Fields {
		if !f.Optional {
			out = append(out, f.Attribute)
		}
	}
	return out
}

func (s Schema) clone() Schema {
	out := s
	out.Fields = append([]Field{}, s.Fields...)
	return out
}

func (s Schema) check() error {
	if strings.TrimSpace(s.Type) == "" {
		return fmt.Errorf("schema type tag is empty")
	}

	names := make(map[string]string, 2*len(s.Fields))
	claim := func(name, owner string) error {
		if prev, taken := names[name]; taken {
			return fmt.Errorf("schema %s: name %q used by both %s and %s", s.Type, name, prev, owner)
		}
		names[name] = owner
		return nil
	}

	for _, f := range s.Fields {
		if strings.TrimSpace(f.Attribute) == "" {
			return fmt.Errorf("schema %s: field with empty attribute name", s.Type)
		}
		if isEnvelopeAttribute(f.Attribute) || isEnvelopeAttribute(f.Property) {
			return fmt.Errorf("schema %s: field %s shadows an envelope attribute", s.Type, f.Attribute)
		}
		if !f.Kind.valid() {
			return fmt.Errorf("schema %s: field %s has unknown kind %d", s.Type, f.Attribute, f.Kind)
		}
		if f.Unit != "" && !f.Kind.IsBlock() {
			return fmt.Errorf("schema %s: field %s pins a unit on a %s field", s.Type, f.Attribute, f.Kind)
		}
		if err := claim(f.Attribute, f.Attribute); err != nil {
			return err
		}
		if f.Property != "" && f.Property != f.Attribute {
			if err := claim(f.Property, f.Attribute); err != nil {
				return err
			}
		}
	}
	return nil
}
