package model

import (
	"reflect"
	"testing"
)

func TestNotifierDispatchOrderAndFilters(t *testing.T) {
	var n notifier
	var order []string

	n.subscribe(EventChange, "", func(Event) { order = append(order, "change-1") })
	n.subscribe(EventAny, "", func(Event) { order = append(order, "any") })
	n.subscribe(EventChange, "", func(Event) { order = append(order, "change-2") })
	n.subscribe(EventAdd, "", func(Event) { order = append(order, "add") })

	n.emit(Event{Kind: EventChange})

	want := []string{"change-1", "any", "change-2"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected dispatch %v, got %v", want, order)
	}
}

func TestNotifierAttrFilter(t *testing.T) {
	var n notifier
	var got []string
	n.subscribe(EventChangeAttr, "name", func(e Event) { got = append(got, e.Attr) })

	n.emit(Event{Kind: EventChangeAttr, Attr: "age"})
	n.emit(Event{Kind: EventChangeAttr, Attr: "name"})

	if !reflect.DeepEqual(got, []string{"name"}) {
		t.Fatalf("expected only the subscribed attribute, got %v", got)
	}
}

func TestNotifierDepthFirstDispatch(t *testing.T) {
	var n notifier
	var order []string

	n.subscribe(EventChange, "", func(Event) {
		order = append(order, "outer")
		// Nested emits must be processed before the original emit returns.
		n.emit(Event{Kind: EventAdd})
		order = append(order, "outer-done")
	})
	n.subscribe(EventAdd, "", func(Event) { order = append(order, "inner") })

	n.emit(Event{Kind: EventChange})

	want := []string{"outer", "inner", "outer-done"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected depth-first order %v, got %v", want, order)
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	var n notifier
	calls := 0
	cancel := n.subscribe(EventChange, "", func(Event) { calls++ })

	n.emit(Event{Kind: EventChange})
	cancel()
	cancel() // second cancel is a no-op
	n.emit(Event{Kind: EventChange})

	if calls != 1 {
		t.Fatalf("expected exactly one delivery, got %d", calls)
	}
}

func TestNotifierCloseDropsListeners(t *testing.T) {
	var n notifier
	calls := 0
	n.subscribe(EventAny, "", func(Event) { calls++ })

	n.close()
	n.close() // idempotent
	n.emit(Event{Kind: EventChange})
	if cancel := n.subscribe(EventAny, "", func(Event) { calls++ }); cancel == nil {
		t.Fatalf("subscribe after close must still return a cancel func")
	}
	n.emit(Event{Kind: EventChange})

	if calls != 0 {
		t.Fatalf("closed notifier must not deliver events, got %d calls", calls)
	}
}
