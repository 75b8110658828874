package model

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

// DefaultMaxCalculations bounds the settlement convergence loop.
const DefaultMaxCalculations = 100

// Option configures a model or collection at construction.
type Option func(*options)

type options struct {
	storage Storage
	logger  Logger
	metrics MetricsRecorder
	clock   func() time.Time
	maxCalc int
	nested  bool
}

func newOptions(opts []Option) options {
	o := options{
		logger:  noopLogger{},
		metrics: noopMetrics{},
		clock:   time.Now,
		maxCalc: DefaultMaxCalculations,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithStorage attaches the persistence collaborator used by Save, Fetch and
// Remove.
func WithStorage(s Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithLogger overrides the no-op default logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock overrides the time source used for duration metrics.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithMaxCalculations overrides the settlement round ceiling.
func WithMaxCalculations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxCalc = n
		}
	}
}

// AsNested marks the entity as owned by its parent: it is destructed when
// the parent removes or discards it.
func AsNested() Option {
	return func(o *options) { o.nested = true }
}

type settleState uint8

const (
	stateReady settleState = iota
	stateSettling
)

// Model owns a fixed set of named attributes, runs the settlement loop,
// exposes branch operations across all attributes atomically, relays
// attribute state into events, and delegates persistence verbs to a Storage
// collaborator.
type Model struct {
	schema   *Schema
	attrs    []*Attribute
	byName   map[string]*Attribute
	notifier notifier
	opts     options

	mu         sync.Mutex
	state      settleState
	moreWork   bool
	waiters    []chan error
	destructed bool
}

// New constructs a model from its schema: attributes are seeded with
// defaults, the change branch is committed, initial data is applied, and
// the first settlement is kicked off asynchronously. Unknown data keys and
// coercion failures are reported as errors.
func New(schema *Schema, data map[string]Value, opts ...Option) (*Model, error) {
	m := &Model{
		schema: schema,
		attrs:  make([]*Attribute, 0, len(schema.fields)),
		byName: make(map[string]*Attribute, len(schema.fields)),
		opts:   newOptions(opts),
	}
	for _, f := range schema.fields {
		a := newAttribute(m, f)
		m.attrs = append(m.attrs, a)
		m.byName[f.Name] = a
	}
	// Defaults are the externally observed baseline: the first settlement
	// reports exactly the attributes whose input differed from them.
	for _, a := range m.attrs {
		a.store.commit(changeBranch)
	}
	for name, v := range data {
		a, ok := m.byName[name]
		if !ok {
			return nil, UnknownAttributeError{Schema: schema.name, Name: name}
		}
		if _, err := a.setRaw(v); err != nil {
			return nil, err
		}
	}
	m.trigger()
	return m, nil
}

// Schema returns the model's resolved schema.
func (m *Model) Schema() *Schema { return m.schema }

// ChangeBranch returns the branch tracking externally visible change since
// the last settled state.
func (m *Model) ChangeBranch() Branch { return changeBranch }

// Attribute returns the named attribute.
func (m *Model) Attribute(name string) (*Attribute, bool) {
	a, ok := m.byName[name]
	return a, ok
}

func (m *Model) attr(name string) *Attribute {
	a, ok := m.byName[name]
	if !ok {
		panic(UnknownAttributeError{Schema: m.schema.name, Name: name})
	}
	return a
}

// Get returns the current value of the named attribute. Unknown names are
// a fatal misuse and panic.
func (m *Model) Get(name string) Value {
	return m.attr(name).Get()
}

// Set mutates one attribute and triggers settlement.
func (m *Model) Set(name string, v Value) error {
	return m.attr(name).Set(v)
}

// SetMany applies several attribute values before triggering a single
// settlement.
func (m *Model) SetMany(data map[string]Value) error {
	m.mu.Lock()
	anyChanged := false
	for name, v := range data {
		a, ok := m.byName[name]
		if !ok {
			m.mu.Unlock()
			panic(UnknownAttributeError{Schema: m.schema.name, Name: name})
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

// Commit snapshots every attribute onto the branch atomically and reports
// whether any stored value differed. An EventCommit is emitted.
func (m *Model) Commit(b Branch) bool {
	m.mu.Lock()
	changed := false
	for _, a := range m.attrs {
		if a.store.commit(b) {
			changed = true
		}
	}
	m.mu.Unlock()
	m.notifier.emit(Event{Kind: EventCommit, Model: m, Branch: b})
	return changed
}

// Revert restores every attribute from the branch, discarding uncommitted
// edits, and triggers settlement.
func (m *Model) Revert(b Branch) {
	m.mu.Lock()
	for _, a := range m.attrs {
		a.store.revert(b)
	}
	m.mu.Unlock()
	m.trigger()
}

// Previous reads the named attribute's branch value without mutating it.
func (m *Model) Previous(name string, b Branch) Value {
	return m.attr(name).Previous(b)
}

// IsChanged reports whether any attribute differs from the branch.
func (m *Model) IsChanged(b Branch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anyChangedLocked(b)
}

// Changed returns the names of attributes differing from the branch, in
// schema order.
func (m *Model) Changed(b Branch) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changedLocked(b)
}

func (m *Model) anyChangedLocked(b Branch) bool {
	for _, a := range m.attrs {
		if a.store.isChanged(b) {
			return true
		}
	}
	return false
}

func (m *Model) changedLocked(b Branch) []string {
	var names []string
	for _, a := range m.attrs {
		if a.store.isChanged(b) {
			names = append(names, a.field.Name)
		}
	}
	return names
}

// Subscribe registers a listener for one event kind, or every kind when
// EventAny is given. The returned function removes the listener.
func (m *Model) Subscribe(kind EventKind, fn Listener) func() {
	return m.notifier.subscribe(kind, "", fn)
}

// SubscribeAttr registers a listener for EventChangeAttr on one attribute.
func (m *Model) SubscribeAttr(attr string, fn Listener) func() {
	return m.notifier.subscribe(EventChangeAttr, attr, fn)
}

// ID returns the identity attribute value. ok is false when the schema
// declares no identity attribute.
func (m *Model) ID() (Value, bool) {
	if m.schema.identity == "" {
		return nil, false
	}
	return m.attr(m.schema.identity).Get(), true
}

// IsNew reports whether the model has no identity value yet and therefore
// has never been persisted.
func (m *Model) IsNew() bool {
	id, ok := m.ID()
	return !ok || isEmptyID(id)
}

func isEmptyID(v Value) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// IsNested reports whether the model is owned by a parent entity.
func (m *Model) IsNested() bool { return m.opts.nested }

// IsDestructed reports the terminal one-way destruction flag.
func (m *Model) IsDestructed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destructed
}

// Destruct marks the model terminally dead, cascades to nested attribute
// values, emits EventDestruct and drops all listeners. Idempotent.
func (m *Model) Destruct() {
	m.mu.Lock()
	if m.destructed {
		m.mu.Unlock()
		return
	}
	m.destructed = true
	var nested []Destructible
	for _, a := range m.attrs {
		if d, ok := a.store.get().(Destructible); ok && d.IsNested() {
			nested = append(nested, d)
		}
	}
	m.mu.Unlock()
	for _, d := range nested {
		d.Destruct()
	}
	m.notifier.emit(Event{Kind: EventDestruct, Model: m})
	m.notifier.close()
}

// Document returns the non-internal attribute values keyed by name. Storage
// backends persist this mapping.
func (m *Model) Document() map[string]Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := make(map[string]Value, len(m.attrs))
	for _, a := range m.attrs {
		if a.field.Internal {
			continue
		}
		doc[a.field.Name] = a.store.get()
	}
	return doc
}

// MarshalJSON serializes non-internal attributes in schema order. Nested
// models and collections serialize through their own MarshalJSON.
func (m *Model) MarshalJSON() ([]byte, error) {
	m.mu.Lock()
	type pair struct {
		name string
		v    Value
	}
	pairs := make([]pair, 0, len(m.attrs))
	for _, a := range m.attrs {
		if a.field.Internal {
			continue
		}
		pairs = append(pairs, pair{name: a.field.Name, v: a.store.get()})
	}
	m.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.v)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
