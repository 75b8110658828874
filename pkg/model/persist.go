package model

import (
	"context"
	"fmt"
)

// Storage is the persistence collaborator consumed by the model verbs. The
// engine is agnostic to the backend; see internal/infra/storage for the
// provided implementations.
type Storage interface {
	// Insert persists a new record and returns identity-bearing data.
	Insert(ctx context.Context, m *Model) (map[string]Value, error)
	// Update persists an existing record and returns the stored data.
	Update(ctx context.Context, m *Model) (map[string]Value, error)
	// Find loads the record identified by the model's identity attribute.
	Find(ctx context.Context, m *Model) (map[string]Value, error)
	// Remove deletes the identified record.
	Remove(ctx context.Context, m *Model) error
}

// checkPersistable rejects verbs on destructed models without contacting
// storage, and verbs on schemas without a persistence identity.
func (m *Model) checkPersistable() error {
	if m.IsDestructed() {
		return ErrDestructed
	}
	if m.schema.identity == "" {
		return ErrNoIdentity
	}
	if m.opts.storage == nil {
		return ErrNoStorage
	}
	return nil
}

// Save waits for settlement and persists the model: an insert that adopts
// the returned identity when the model is new, an update otherwise. Both
// paths commit the default branch; an insert re-triggers settlement because
// server-assigned fields may need recomputation.
func (m *Model) Save(ctx context.Context) (err error) {
	start := m.opts.clock()
	defer func() {
		m.opts.metrics.ObserveDuration(OpSave, m.opts.clock().Sub(start))
		m.opts.metrics.RecordResult(OpSave, statusOf(err))
	}()
	if err = m.checkPersistable(); err != nil {
		return err
	}
	if err = m.Ready(ctx); err != nil {
		return err
	}
	if m.IsNew() {
		data, insErr := m.opts.storage.Insert(ctx, m)
		if insErr != nil {
			return fmt.Errorf("insert %s: %w", m.schema.name, insErr)
		}
		if err = m.applyData(data); err != nil {
			return err
		}
		m.Commit(DefaultBranch)
		m.trigger()
		return nil
	}
	data, updErr := m.opts.storage.Update(ctx, m)
	if updErr != nil {
		return fmt.Errorf("update %s: %w", m.schema.name, updErr)
	}
	if err = m.applyData(data); err != nil {
		return err
	}
	m.Commit(DefaultBranch)
	return nil
}

// Fetch loads the identified record, applies the returned data, waits for
// settlement and commits the default branch.
func (m *Model) Fetch(ctx context.Context) (err error) {
	start := m.opts.clock()
	defer func() {
		m.opts.metrics.ObserveDuration(OpFetch, m.opts.clock().Sub(start))
		m.opts.metrics.RecordResult(OpFetch, statusOf(err))
	}()
	if err = m.checkPersistable(); err != nil {
		return err
	}
	data, findErr := m.opts.storage.Find(ctx, m)
	if findErr != nil {
		return fmt.Errorf("find %s: %w", m.schema.name, findErr)
	}
	if err = m.applyData(data); err != nil {
		return err
	}
	if err = m.Ready(ctx); err != nil {
		return err
	}
	m.Commit(DefaultBranch)
	return nil
}

// Remove deletes the record and destructs the model. A new model destructs
// locally with no storage call.
func (m *Model) Remove(ctx context.Context) (err error) {
	start := m.opts.clock()
	defer func() {
		m.opts.metrics.ObserveDuration(OpRemove, m.opts.clock().Sub(start))
		m.opts.metrics.RecordResult(OpRemove, statusOf(err))
	}()
	if err = m.checkPersistable(); err != nil {
		return err
	}
	if !m.IsNew() {
		if rmErr := m.opts.storage.Remove(ctx, m); rmErr != nil {
			return fmt.Errorf("remove %s: %w", m.schema.name, rmErr)
		}
	}
	m.Destruct()
	return nil
}

// applyData feeds storage-returned data back through set, skipping unknown
// keys so backends may carry metadata the schema does not declare.
func (m *Model) applyData(data map[string]Value) error {
	if len(data) == 0 {
		return nil
	}
	m.mu.Lock()
	anyChanged := false
	for name, v := range data {
		a, ok := m.byName[name]
		if !ok {
			continue
		}
		changed, err := a.setRaw(v)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		anyChanged = anyChanged || changed
	}
	m.mu.Unlock()
	if anyChanged {
		m.trigger()
	}
	return nil
}
