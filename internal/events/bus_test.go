package events

import (
	"sync/atomic"
	"testing"
)

func TestPublishCallsMatchingSubscriber(t *testing.T) {
	bus := NewBus()
	var called atomic.Bool

	bus.Subscribe(func(e Event) {
		if e.Type != UpdateAvailable {
			t.Errorf("expected UpdateAvailable, got %s", e.Type)
		}
		called.Store(true)
	}, UpdateAvailable)

	bus.Publish(Event{Type: UpdateAvailable, AddonName: "Cinemeta", Message: "1.2.0 -> 1.3.0"})

	if !called.Load() {
		t.Error("subscriber was not called")
	}
}

func TestSubscriberIgnoresUnmatchedTypes(t *testing.T) {
	bus := NewBus()
	var called atomic.Bool

	bus.Subscribe(func(e Event) {
		called.Store(true)
	}, UpdateAvailable)

	bus.Publish(Event{Type: AddonOffline, Message: "down"})

	if called.Load() {
		t.Error("subscriber should not have been called for AddonOffline")
	}
}

func TestWildcardSubscriberReceivesAll(t *testing.T) {
	bus := NewBus()
	var count atomic.Int32

	bus.Subscribe(func(e Event) { count.Add(1) })

	bus.Publish(Event{Type: AddonInstalled})
	bus.Publish(Event{Type: AddonRemoved})
	bus.Publish(Event{Type: CollectionPushed})

	if count.Load() != 3 {
		t.Errorf("wildcard subscriber saw %d events, want 3", count.Load())
	}
}

func TestSeverityFloorFiltersDelivery(t *testing.T) {
	bus := NewBus()
	var count atomic.Int32

	bus.SubscribeSeverity(SeverityWarning, func(e Event) { count.Add(1) })

	bus.Publish(Event{Type: AddonInstalled, Severity: SeverityInfo})
	bus.Publish(Event{Type: AddonOffline, Severity: SeverityWarning})
	bus.Publish(Event{Type: ReinstallFailed, Severity: SeverityError})

	if count.Load() != 2 {
		t.Errorf("delivered %d events, want 2 (info suppressed)", count.Load())
	}
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()
	var called atomic.Bool

	bus.Subscribe(func(e Event) { panic("bad handler") })
	bus.Subscribe(func(e Event) { called.Store(true) })

	bus.Publish(Event{Type: ReinstallFailed, Message: "x"})

	if !called.Load() {
		t.Error("later subscriber should still run after a panic")
	}
}

func TestPublishSetsTimestamp(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(func(e Event) {
		if e.Timestamp.IsZero() {
			t.Error("timestamp should be set on publish")
		}
	})
	bus.Publish(Event{Type: AddonInstalled})
}
