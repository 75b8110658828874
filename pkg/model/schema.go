package model

import (
	"context"
	"fmt"
)

// Kind encodes and compares values for one attribute kind. Implementations
// live outside the engine (see pkg/attr); the engine only relies on this
// contract.
type Kind interface {
	// Coerce normalizes a raw value before it is stored.
	Coerce(v Value) (Value, error)
	// Equal reports type-appropriate equality between two stored values.
	Equal(a, b Value) bool
}

// CalculateFunc recomputes a derived attribute. It is invoked once per
// settlement round and may block; the result is fed back through set.
type CalculateFunc func(ctx context.Context, m *Model) (Value, error)

// AmendFunc reacts to a change on the model's change branch with side
// effects, e.g. triggering a nested fetch. It may block.
type AmendFunc func(ctx context.Context, m *Model) error

// ValidateFunc checks one attribute value. A non-nil error becomes a
// Violation entry in the aggregated validation result.
type ValidateFunc func(ctx context.Context, m *Model, v Value) error

// Field declares one named attribute in a schema. Declaration order is
// significant: it fixes iteration and serialization order.
type Field struct {
	Name     string
	Kind     Kind  // optional; nil accepts any value as-is
	Default  Value // seed value before initial data is applied
	Identity bool  // marks the persistence identity attribute
	Internal bool  // excluded from JSON serialization

	// Equal overrides the kind's equality, e.g. for embedded objects.
	Equal func(a, b Value) bool

	Calculate CalculateFunc
	Amend     AmendFunc
	Validate  ValidateFunc
}

// Schema is the resolved, immutable attribute layout shared by all models
// of one type. The name doubles as the persistence bucket.
type Schema struct {
	name     string
	fields   []Field
	index    map[string]int
	identity string
}

// NewSchema resolves field declarations into a fixed ordered schema. It
// rejects duplicate names and more than one identity attribute.
func NewSchema(name string, fields ...Field) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("schema name required")
	}
	s := &Schema{
		name:   name,
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)
	for i, f := range s.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema %s: field %d has no name", name, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate attribute %s", name, f.Name)
		}
		s.index[f.Name] = i
		if f.Identity {
			if s.identity != "" {
				return nil, fmt.Errorf("schema %s: identity already declared on %s", name, s.identity)
			}
			s.identity = f.Name
		}
	}
	return s, nil
}

// MustSchema is NewSchema for package-level declarations.
func MustSchema(name string, fields ...Field) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name used as the persistence bucket.
func (s *Schema) Name() string { return s.name }

// Identity returns the declared identity attribute name, or "" when the
// schema has none (such models cannot be saved, fetched or removed).
func (s *Schema) Identity() string { return s.identity }

// Fields returns the resolved declarations in schema order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}
