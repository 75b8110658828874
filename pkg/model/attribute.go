package model

import (
	"context"
	"fmt"
)

// Attribute is a single named, typed slot on a model. The owning model
// holds the attribute; the back-reference is not ownership.
type Attribute struct {
	field Field
	owner *Model
	store *branchStore
}

func newAttribute(owner *Model, field Field) *Attribute {
	equal := field.Equal
	if equal == nil && field.Kind != nil {
		equal = field.Kind.Equal
	}
	return &Attribute{
		field: field,
		owner: owner,
		store: newBranchStore(field.Default, equal),
	}
}

// Name returns the attribute name, unique within the owning model.
func (a *Attribute) Name() string { return a.field.Name }

// Model returns the owning model.
func (a *Attribute) Model() *Model { return a.owner }

// coerce applies the kind's normalization, if any.
func (a *Attribute) coerce(v Value) (Value, error) {
	if a.field.Kind == nil {
		return v, nil
	}
	cv, err := a.field.Kind.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.field.Name, err)
	}
	return cv, nil
}

// setRaw coerces and stores the value, reporting whether it differed from
// the current one under the attribute's equality. Unchanged writes must not
// re-trigger settlement or an amend hook writing its own attribute would
// never converge.
func (a *Attribute) setRaw(v Value) (bool, error) {
	cv, err := a.coerce(v)
	if err != nil {
		return false, err
	}
	changed := !a.store.equal(a.store.get(), cv)
	a.store.set(cv)
	return changed, nil
}

// Get returns the current value.
func (a *Attribute) Get() Value {
	a.owner.mu.Lock()
	defer a.owner.mu.Unlock()
	return a.store.get()
}

// Set mutates the current value and triggers settlement on the owner when
// the value actually changed.
func (a *Attribute) Set(v Value) error {
	a.owner.mu.Lock()
	changed, err := a.setRaw(v)
	a.owner.mu.Unlock()
	if err != nil {
		return err
	}
	if changed {
		a.owner.trigger()
	}
	return nil
}

// Commit copies the current value into the branch and reports whether the
// stored value actually differed.
func (a *Attribute) Commit(b Branch) bool {
	a.owner.mu.Lock()
	defer a.owner.mu.Unlock()
	return a.store.commit(b)
}

// Revert restores the current value from the branch, discarding
// uncommitted edits.
func (a *Attribute) Revert(b Branch) {
	a.owner.mu.Lock()
	a.store.revert(b)
	a.owner.mu.Unlock()
	a.owner.trigger()
}

// Previous reads the branch value without mutating the current one.
func (a *Attribute) Previous(b Branch) Value {
	a.owner.mu.Lock()
	defer a.owner.mu.Unlock()
	return a.store.previous(b)
}

// IsChanged reports whether the current value differs from the branch under
// the attribute's equality.
func (a *Attribute) IsChanged(b Branch) bool {
	a.owner.mu.Lock()
	defer a.owner.mu.Unlock()
	return a.store.isChanged(b)
}

// Readier is implemented by attribute values whose own readiness depends on
// an asynchronous sub-computation, such as nested models and collections.
// Settlement rounds wait for every ready hook to resolve.
type Readier interface {
	Ready(ctx context.Context) error
}

// Destructible is implemented by attribute values that can cascade
// destruction, such as nested models and collections.
type Destructible interface {
	IsNested() bool
	Destruct()
}
