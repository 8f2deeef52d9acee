package events

import (
	"log"
	"sync"
	"time"
)

// Handler receives published addon lifecycle events.
type Handler func(Event)

// subscription routes events to one handler. A nil type set means every
// event type; minSeverity suppresses events below it.
type subscription struct {
	minSeverity Severity
	types       map[EventType]struct{}
	handler     Handler
}

// Bus fans addon lifecycle events out to in-process subscribers. The
// update checker and the collection reconciler publish; the notify
// dispatcher and tests subscribe. Delivery is synchronous in the
// publisher's goroutine, so slow consumers buffer on their own side.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscription
}

// NewBus creates a ready-to-use event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for the given event types at any
// severity. With no types the handler receives every event.
func (b *Bus) Subscribe(handler Handler, types ...EventType) {
	b.SubscribeSeverity(SeverityInfo, handler, types...)
}

// SubscribeSeverity is Subscribe with a severity floor: events below min
// never reach this handler.
func (b *Bus) SubscribeSeverity(min Severity, handler Handler, types ...EventType) {
	sub := subscription{minSeverity: min, handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()
}

// Publish delivers e to every matching subscriber, stamping the
// timestamp if the publisher left it zero. A panicking handler is
// logged and skipped; it can never break delivery to the remaining
// subscribers or abort the check run that published the event.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		if e.Severity < sub.minSeverity {
			continue
		}
		if sub.types != nil {
			if _, ok := sub.types[e.Type]; !ok {
				continue
			}
		}
		deliver(sub, e)
	}
}

func deliver(sub subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Events] Subscriber panic on %s (%s): %v", e.Type, e.TransportURL, r)
		}
	}()
	sub.handler(e)
}
