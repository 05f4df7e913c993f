package message

import (
	"sort"
	"sync"

	"github.com/c360/simstation/errors"
)

// Registry maps type tags to schemas and builds, encodes and decodes messages of the
// registered kinds. Registration normally happens once at startup; lookups are safe
// for concurrent use.
type Registry struct {
	schemas map[string]Schema
	strict  bool
	mu      sync.RWMutex
}

// Option configures a Registry
type Option func(*Registry)

// WithStrict selects strict (the default) or lenient value checking. Strict refuses
// values whose JSON shape differs from the field kind and attributes the schema does
// not define. Lenient parses numeric strings and integral floats and ignores unknown
// attributes.
func WithStrict(strict bool) Option {
	return func(r *Registry) {
		r.strict = strict
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		schemas: make(map[string]Schema),
		strict:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strict reports whether the registry checks values strictly.
func (r *Registry) Strict() bool {
	return r.strict
}

// Register adds a schema. A second schema for the same type tag is refused with
// *DuplicateSchemaError.
func (r *Registry) Register(schema Schema) error {
	if err := schema.check(); err != nil {
		return errors.WrapFatal(err, "Registry", "Register", "schema check")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[schema.Type]; exists {
		return &DuplicateSchemaError{Type: schema.Type}
	}
	r.schemas[schema.Type] = schema.clone()
	return nil
}

// MustRegister registers schemas and panics on the first error.
// Intended for package-level setup where a bad schema is a programming error.
func (r *Registry) MustRegister(schemas ...Schema) {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Lookup returns a copy of the schema for a type tag.
func (r *Registry) Lookup(messageType string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[messageType]
	if !ok {
		return Schema{}, false
	}
	return s.clone(), true
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New builds a validated message of a registered kind. env.Type may be left empty.
// Errors are *UnknownTypeError or *ValidationError.
func (r *Registry) New(messageType string, env Envelope, values Values) (*Message, error) {
	schema, ok := r.Lookup(messageType)
	if !ok {
		return nil, &UnknownTypeError{Type: messageType}
	}
	return build(schema, r.strict, env, values)
}
