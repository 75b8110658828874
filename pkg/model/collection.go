package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Collection is an ordered, identity-indexed set of models. It relays every
// member's events, maintains branch snapshots of membership (orthogonal to
// the members' own attribute branches) and deduplicates persisted records by
// identity.
type Collection struct {
	schema   *Schema
	notifier notifier
	opts     options
	optFns   []Option

	mu         sync.Mutex
	models     []*Model
	byID       map[string]*Model
	idKeys     map[*Model]string
	branches   map[Branch][]*Model
	relays     map[*Model]func()
	destructed bool
}

// NewCollection constructs an empty collection. The options are forwarded
// to models the collection builds from raw data.
func NewCollection(schema *Schema, opts ...Option) *Collection {
	c := &Collection{
		schema:   schema,
		opts:     newOptions(opts),
		optFns:   opts,
		byID:     make(map[string]*Model),
		idKeys:   make(map[*Model]string),
		branches: make(map[Branch][]*Model),
		relays:   make(map[*Model]func()),
	}
	c.branches[DefaultBranch] = nil
	c.branches[PreviousBranch] = nil
	return c
}

// Schema returns the member schema.
func (c *Collection) Schema() *Schema { return c.schema }

// IsNested reports whether the collection is owned by a parent entity.
func (c *Collection) IsNested() bool { return c.opts.nested }

// Len returns the membership size.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}

// At returns the member at index i.
func (c *Collection) At(i int) (*Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.models) {
		return nil, false
	}
	return c.models[i], true
}

// Get resolves a member by identity value. Models without an identity value
// are never indexed.
func (c *Collection) Get(id Value) (*Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byID[idKey(id)]
	return m, ok
}

// Index returns the position of the member, or -1 when absent.
func (c *Collection) Index(m *Model) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(m)
}

// Models returns the ordered membership.
func (c *Collection) Models() []*Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Model, len(c.models))
	copy(out, c.models)
	return out
}

// Subscribe registers a listener for one event kind, or every kind when
// EventAny is given.
func (c *Collection) Subscribe(kind EventKind, fn Listener) func() {
	return c.notifier.subscribe(kind, "", fn)
}

func idKey(v Value) string {
	if isEmptyID(v) {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (c *Collection) indexLocked(m *Model) int {
	for i, cur := range c.models {
		if cur == m {
			return i
		}
	}
	return -1
}

// prepare passes a member through as-is when it is already a model, and
// constructs a nested, collection-owned model from raw data otherwise.
func (c *Collection) prepare(entry any) (*Model, error) {
	switch v := entry.(type) {
	case *Model:
		return v, nil
	case map[string]Value:
		return New(c.schema, v, append(c.optFns, AsNested())...)
	default:
		return nil, fmt.Errorf("collection %s: cannot prepare %T as member", c.schema.name, entry)
	}
}

// Set replaces the membership wholesale: snapshot onto the previous branch,
// drop relays and identity index for the outgoing set, rebuild from the
// input and emit one reset event. Outgoing collection-owned members are
// destructed.
func (c *Collection) Set(entries ...any) error {
	incoming := make([]*Model, 0, len(entries))
	for _, e := range entries {
		m, err := c.prepare(e)
		if err != nil {
			return err
		}
		incoming = append(incoming, m)
	}

	c.mu.Lock()
	c.commitLocked(PreviousBranch)
	outgoing := c.models
	c.teardownLocked()
	keep := make(map[*Model]bool, len(incoming))
	c.models = make([]*Model, 0, len(incoming))
	for _, m := range incoming {
		if keep[m] {
			continue
		}
		keep[m] = true
		c.models = append(c.models, m)
		c.attachLocked(m)
	}
	var orphans []*Model
	for _, m := range outgoing {
		if !keep[m] && m.IsNested() {
			orphans = append(orphans, m)
		}
	}
	c.mu.Unlock()

	for _, m := range orphans {
		m.Destruct()
	}
	c.notifier.emit(Event{Kind: EventReset})
	return nil
}

// Add appends members, skipping entries already present by reference or by
// identity match for non-new models, and emits one add event per inserted
// member with its resolved index.
func (c *Collection) Add(entries ...any) error {
	return c.AddAt(-1, entries...)
}

// AddAt inserts members at the given index, shifting subsequent entries. A
// negative index appends.
func (c *Collection) AddAt(at int, entries ...any) error {
	incoming := make([]*Model, 0, len(entries))
	for _, e := range entries {
		m, err := c.prepare(e)
		if err != nil {
			return err
		}
		incoming = append(incoming, m)
	}

	c.mu.Lock()
	c.commitLocked(PreviousBranch)
	if at < 0 || at > len(c.models) {
		at = len(c.models)
	}
	var inserted []*Model
	for _, m := range incoming {
		if c.indexLocked(m) >= 0 {
			continue
		}
		// The same persisted record must not appear twice under a
		// different object identity.
		if !m.IsNew() {
			if id, ok := m.ID(); ok {
				if _, dup := c.byID[idKey(id)]; dup {
					continue
				}
			}
		}
		c.models = append(c.models, nil)
		copy(c.models[at+1:], c.models[at:])
		c.models[at] = m
		c.attachLocked(m)
		inserted = append(inserted, m)
		at++
	}
	indices := make([]int, len(inserted))
	for i, m := range inserted {
		indices[i] = c.indexLocked(m)
	}
	c.mu.Unlock()

	for i, m := range inserted {
		c.notifier.emit(Event{Kind: EventAdd, Model: m, Index: indices[i]})
	}
	return nil
}

// Remove drops the given members, emitting one remove event per member with
// its former index. Collection-owned members are destructed.
func (c *Collection) Remove(models ...*Model) {
	type removal struct {
		m   *Model
		idx int
	}
	c.mu.Lock()
	c.commitLocked(PreviousBranch)
	var removed []removal
	for _, m := range models {
		idx := c.indexLocked(m)
		if idx < 0 {
			continue
		}
		c.detachLocked(m)
		c.models = append(c.models[:idx], c.models[idx+1:]...)
		removed = append(removed, removal{m: m, idx: idx})
	}
	c.mu.Unlock()

	for _, r := range removed {
		c.notifier.emit(Event{Kind: EventRemove, Model: r.m, Index: r.idx})
		if r.m.IsNested() {
			r.m.Destruct()
		}
	}
}

// Commit snapshots the ordered membership onto the branch.
func (c *Collection) Commit(b Branch) {
	c.mu.Lock()
	c.commitLocked(b)
	c.mu.Unlock()
	c.notifier.emit(Event{Kind: EventCommit, Branch: b})
}

func (c *Collection) commitLocked(b Branch) {
	snapshot := make([]*Model, len(c.models))
	copy(snapshot, c.models)
	c.branches[b] = snapshot
}

// Previous returns the membership recorded on the branch without mutating
// the current sequence.
func (c *Collection) Previous(b Branch) []*Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.previousLocked(b)
	out := make([]*Model, len(snapshot))
	copy(out, snapshot)
	return out
}

func (c *Collection) previousLocked(b Branch) []*Model {
	if s, ok := c.branches[b]; ok {
		return s
	}
	return c.branches[DefaultBranch]
}

// IsChanged reports whether the current membership differs from the branch
// snapshot in content or order.
func (c *Collection) IsChanged(b Branch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.previousLocked(b)
	if len(snapshot) != len(c.models) {
		return true
	}
	for i, m := range c.models {
		if snapshot[i] != m {
			return true
		}
	}
	return false
}

// Revert restores the membership recorded on the branch exactly, rebuilding
// relays and the identity index, and emits one reset event. Members are
// never destructed by a revert.
func (c *Collection) Revert(b Branch) {
	c.mu.Lock()
	snapshot := c.previousLocked(b)
	c.teardownLocked()
	c.models = make([]*Model, len(snapshot))
	copy(c.models, snapshot)
	for _, m := range c.models {
		c.attachLocked(m)
	}
	c.mu.Unlock()
	c.notifier.emit(Event{Kind: EventReset})
}

// Ready blocks until every member's settlement finishes.
func (c *Collection) Ready(ctx context.Context) error {
	members := c.Models()
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range members {
		m := m
		g.Go(func() error { return m.Ready(gctx) })
	}
	return g.Wait()
}

// IsDestructed reports the terminal one-way destruction flag.
func (c *Collection) IsDestructed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destructed
}

// Destruct tears down relays, destructs collection-owned members, emits
// EventDestruct and drops all listeners. Idempotent.
func (c *Collection) Destruct() {
	c.mu.Lock()
	if c.destructed {
		c.mu.Unlock()
		return
	}
	c.destructed = true
	members := c.models
	c.teardownLocked()
	c.models = nil
	c.mu.Unlock()

	for _, m := range members {
		if m.IsNested() {
			m.Destruct()
		}
	}
	c.notifier.emit(Event{Kind: EventDestruct})
	c.notifier.close()
}

// MarshalJSON serializes the ordered membership.
func (c *Collection) MarshalJSON() ([]byte, error) {
	members := c.Models()
	docs := make([]json.RawMessage, 0, len(members))
	for _, m := range members {
		b, err := m.MarshalJSON()
		if err != nil {
			return nil, err
		}
		docs = append(docs, b)
	}
	return json.Marshal(docs)
}

// attachLocked wires the event relay and identity index for one member.
func (c *Collection) attachLocked(m *Model) {
	if _, ok := c.relays[m]; ok {
		return
	}
	c.indexMemberLocked(m)
	c.relays[m] = m.Subscribe(EventAny, func(e Event) {
		c.onMemberEvent(m, e)
	})
}

// detachLocked drops the relay and identity index entry for one member.
func (c *Collection) detachLocked(m *Model) {
	if cancel, ok := c.relays[m]; ok {
		cancel()
		delete(c.relays, m)
	}
	if key, ok := c.idKeys[m]; ok {
		if c.byID[key] == m {
			delete(c.byID, key)
		}
		delete(c.idKeys, m)
	}
}

func (c *Collection) teardownLocked() {
	for _, m := range c.models {
		c.detachLocked(m)
	}
}

// indexMemberLocked moves the member's identity entry to its current
// identity value. Models without an identity value stay unindexed.
func (c *Collection) indexMemberLocked(m *Model) {
	if old, ok := c.idKeys[m]; ok {
		if c.byID[old] == m {
			delete(c.byID, old)
		}
		delete(c.idKeys, m)
	}
	id, ok := m.ID()
	if !ok {
		return
	}
	key := idKey(id)
	if key == "" {
		return
	}
	if other, clash := c.byID[key]; clash && other != m {
		c.opts.logger.Warn("identity collision in collection",
			"schema", c.schema.name, "id", key)
		return
	}
	c.byID[key] = m
	c.idKeys[m] = key
}

// onMemberEvent is the relay: member events pass through synchronously,
// identity changes move the index entry, and a destructed member removes
// itself from the collection.
func (c *Collection) onMemberEvent(m *Model, e Event) {
	switch {
	case e.Kind == EventDestruct:
		c.mu.Lock()
		idx := c.indexLocked(m)
		if idx >= 0 {
			c.commitLocked(PreviousBranch)
			c.detachLocked(m)
			c.models = append(c.models[:idx], c.models[idx+1:]...)
		}
		c.mu.Unlock()
		if idx >= 0 {
			c.notifier.emit(Event{Kind: EventRemove, Model: m, Index: idx})
		}
	case e.Kind == EventChangeAttr && e.Attr == c.schema.identity:
		c.mu.Lock()
		c.indexMemberLocked(m)
		c.mu.Unlock()
	}
	c.notifier.emit(e)
}
