// Package memory provides an in-memory implementation of the model storage
// contract used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"modelcore/pkg/model"
)

// Compile-time contract assertion ensuring memory.Store satisfies the
// storage interface consumed by models.
var _ model.Storage = (*Store)(nil)

// Store keeps one bucket of JSON-like documents per schema name.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]map[string]model.Value
	nowFn   func() time.Time
	newID   func() string
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		buckets: make(map[string]map[string]map[string]model.Value),
		nowFn:   func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Snapshot captures a point-in-time clone of every bucket.
type Snapshot map[string]map[string]map[string]model.Value

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.buckets))
	for bucket, docs := range s.buckets {
		cloned := make(map[string]map[string]model.Value, len(docs))
		for id, doc := range docs {
			cloned[id] = cloneDoc(doc)
		}
		out[bucket] = cloned
	}
	return out
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]map[string]map[string]model.Value, len(snapshot))
	for bucket, docs := range snapshot {
		cloned := make(map[string]map[string]model.Value, len(docs))
		for id, doc := range docs {
			cloned[id] = cloneDoc(doc)
		}
		s.buckets[bucket] = cloned
	}
}

func (s *Store) bucketLocked(name string) map[string]map[string]model.Value {
	b, ok := s.buckets[name]
	if !ok {
		b = make(map[string]map[string]model.Value)
		s.buckets[name] = b
	}
	return b
}

// Insert stores a new document under a generated identity and returns the
// identity-bearing data.
func (s *Store) Insert(_ context.Context, m *model.Model) (map[string]model.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := cloneDoc(m.Document())
	id := s.newID()
	doc[m.Schema().Identity()] = id
	doc["updated_at"] = s.nowFn().Format(time.RFC3339Nano)
	s.bucketLocked(m.Schema().Name())[id] = doc
	return cloneDoc(doc), nil
}

// Update replaces the identified document and returns the stored data.
func (s *Store) Update(_ context.Context, m *model.Model) (map[string]model.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucketLocked(m.Schema().Name())
	id := identityOf(m)
	if _, ok := bucket[id]; !ok {
		return nil, model.NotFoundError{Collection: m.Schema().Name(), ID: id}
	}
	doc := cloneDoc(m.Document())
	doc["updated_at"] = s.nowFn().Format(time.RFC3339Nano)
	bucket[id] = doc
	return cloneDoc(doc), nil
}

// Find loads the identified document.
func (s *Store) Find(_ context.Context, m *model.Model) (map[string]model.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.buckets[m.Schema().Name()]
	if !ok {
		return nil, model.NotFoundError{Collection: m.Schema().Name(), ID: identityOf(m)}
	}
	id := identityOf(m)
	doc, ok := bucket[id]
	if !ok {
		return nil, model.NotFoundError{Collection: m.Schema().Name(), ID: id}
	}
	return cloneDoc(doc), nil
}

// Remove deletes the identified document.
func (s *Store) Remove(_ context.Context, m *model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucketLocked(m.Schema().Name())
	id := identityOf(m)
	if _, ok := bucket[id]; !ok {
		return model.NotFoundError{Collection: m.Schema().Name(), ID: id}
	}
	delete(bucket, id)
	return nil
}

// List returns every document in the named bucket, for tests and debugging.
func (s *Store) List(bucket string) []map[string]model.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.buckets[bucket]
	out := make([]map[string]model.Value, 0, len(docs))
	for _, doc := range docs {
		out = append(out, cloneDoc(doc))
	}
	return out
}

// SetNowFunc overrides the timestamp source, for tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

// SetIDFunc overrides identity generation, for tests.
func (s *Store) SetIDFunc(newID func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newID != nil {
		s.newID = newID
	}
}

func identityOf(m *model.Model) string {
	id, _ := m.ID()
	switch t := id.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func cloneDoc(doc map[string]model.Value) map[string]model.Value {
	out := make(map[string]model.Value, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v model.Value) model.Value {
	switch t := v.(type) {
	case map[string]model.Value:
		return cloneDoc(t)
	case []model.Value:
		out := make([]model.Value, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
