package model

import (
	"errors"
	"fmt"
	"strings"
)

// Misuse errors are fatal, surfaced synchronously and never retried.
var (
	// ErrNoIdentity rejects persistence verbs on schemas without a
	// declared identity attribute.
	ErrNoIdentity = errors.New("model: schema declares no identity attribute")
	// ErrDestructed rejects persistence verbs on destructed models
	// without contacting storage.
	ErrDestructed = errors.New("model: model is destructed")
	// ErrNoStorage rejects persistence verbs when no storage collaborator
	// is configured.
	ErrNoStorage = errors.New("model: no storage configured")
)

// UnknownAttributeError reports access to an attribute name the schema does
// not declare. It is raised as a panic: the caller holds a schema, so the
// name set is known at development time.
type UnknownAttributeError struct {
	Schema string
	Name   string
}

func (e UnknownAttributeError) Error() string {
	return fmt.Sprintf("model: schema %s has no attribute %s", e.Schema, e.Name)
}

// ConvergenceError reports a settlement run that exceeded the calculation
// ceiling. The model is left ready so callers may inspect and retry.
type ConvergenceError struct {
	Schema string
	Limit  int
	Attrs  []string // attributes still changing when the ceiling was hit
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("model: %s did not settle after %d calculation rounds (still changing: %s)",
		e.Schema, e.Limit, strings.Join(e.Attrs, ", "))
}

// NotFoundError is returned by storage backends when the identified record
// does not exist.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("storage: %s %s not found", e.Collection, e.ID)
}

// IsNotFound reports whether err wraps a storage NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
