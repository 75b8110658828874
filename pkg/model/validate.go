package model

import (
	"context"
	"fmt"
	"strings"
)

// Violation reports one invalid attribute.
type Violation struct {
	Attribute string `json:"attribute"`
	Message   string `json:"message"`
	Detail    error  `json:"-"`
}

// ValidationError aggregates one violation per invalid attribute. It is
// always returned, never panicked.
type ValidationError struct {
	Schema     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		names[i] = v.Attribute
	}
	return fmt.Sprintf("model: %s validation failed (%s)", e.Schema, strings.Join(names, ", "))
}

// Merge appends violations from another aggregate.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil || len(other.Violations) == 0 {
		return
	}
	e.Violations = append(e.Violations, other.Violations...)
}

// Validate runs every declared attribute validator in schema order and
// aggregates failures. A nil return means the model is valid. Aggregates
// are also announced through EventInvalid so observers can react.
func (m *Model) Validate(ctx context.Context) error {
	var agg *ValidationError
	for _, a := range m.attrs {
		if a.field.Validate == nil {
			continue
		}
		if err := a.field.Validate(ctx, m, a.Get()); err != nil {
			if agg == nil {
				agg = &ValidationError{Schema: m.schema.name}
			}
			agg.Violations = append(agg.Violations, Violation{
				Attribute: a.field.Name,
				Message:   err.Error(),
				Detail:    err,
			})
		}
	}
	if agg == nil {
		return nil
	}
	m.notifier.emit(Event{Kind: EventInvalid, Model: m})
	return agg
}
