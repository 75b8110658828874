package model

import "sync"

// EventKind discriminates the notification variants emitted by models and
// collections.
type EventKind uint8

// Notification variants. EventAny subscribes to every variant and is what
// collection relays use.
const (
	EventAny EventKind = iota
	// EventChange is emitted exactly once per settled change, after the
	// per-attribute EventChangeAttr events.
	EventChange
	// EventChangeAttr is emitted once per attribute whose settled value
	// differs from the last externally observed state.
	EventChangeAttr
	// EventAdd reports a model inserted into a collection.
	EventAdd
	// EventRemove reports a model removed from a collection.
	EventRemove
	// EventReset reports wholesale membership replacement.
	EventReset
	// EventCommit reports an explicit branch commit.
	EventCommit
	// EventDestruct reports terminal destruction.
	EventDestruct
	// EventInvalid reports an aggregated validation failure.
	EventInvalid
)

// Event is one typed notification.
type Event struct {
	Kind   EventKind
	Model  *Model // subject; the member for collection Add/Remove
	Attr   string // attribute name for EventChangeAttr
	Index  int    // resolved index for EventAdd/EventRemove
	Branch Branch // branch for EventCommit
}

// Listener receives events synchronously, in registration order.
type Listener func(Event)

type subscription struct {
	id   uint64
	kind EventKind
	attr string
	fn   Listener
}

// notifier is the explicit listener registry shared by Model and
// Collection. Dispatch is synchronous and depth-first: a listener may emit
// further events, which are fully processed before the original emit
// returns.
type notifier struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
	closed bool
}

func (n *notifier) subscribe(kind EventKind, attr string, fn Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || fn == nil {
		return func() {}
	}
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, kind: kind, attr: attr, fn: fn})
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

func (n *notifier) emit(e Event) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	snapshot := make([]subscription, len(n.subs))
	copy(snapshot, n.subs)
	n.mu.Unlock()
	for _, s := range snapshot {
		if s.kind != EventAny && s.kind != e.Kind {
			continue
		}
		if s.attr != "" && s.attr != e.Attr {
			continue
		}
		s.fn(e)
	}
}

// close drops every listener. Part of destruction; idempotent.
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = nil
	n.closed = true
}
