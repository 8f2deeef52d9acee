// Package notify forwards addon lifecycle events to Shoutrrr
// destinations: update announcements, offline warnings, failed
// reinstalls.
package notify

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"

	"addonsync/internal/events"
)

// Sender abstracts message dispatch so the dispatcher can be tested
// without hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// Options configures the dispatcher from the environment; there is no
// persistent rule store.
type Options struct {
	// URLs are Shoutrrr destination URLs; every event that clears the
	// severity floor and cooldown goes to all of them.
	URLs []string

	// MinSeverity suppresses events below this level, enforced at the
	// bus subscription.
	MinSeverity events.Severity

	// Cooldown is the minimum interval between repeated notifications
	// for the same (event type, transport URL) pair. Zero disables it.
	Cooldown time.Duration
}

// Dispatcher subscribes to the event bus and dispatches via Shoutrrr.
type Dispatcher struct {
	opts   Options
	bus    *events.Bus
	sender Sender

	// cooldowns tracks the last dispatch time per (event type, addon).
	mu        sync.Mutex
	cooldowns map[string]time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher wired to the given bus.
func NewDispatcher(bus *events.Bus, sender Sender, opts Options) *Dispatcher {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	return &Dispatcher{
		opts:      opts,
		bus:       bus,
		sender:    sender,
		cooldowns: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// Start subscribes to all events and begins dispatching.
func (d *Dispatcher) Start() {
	ch := make(chan events.Event, 256)

	d.bus.SubscribeSeverity(d.opts.MinSeverity, func(e events.Event) {
		select {
		case ch <- e:
		default:
			log.Printf("[Notify] Event queue full, dropping %s event", e.Type)
		}
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-ch:
				d.handle(e)
			case <-d.stopCh:
				// Drain remaining events
				for {
					select {
					case e := <-ch:
						d.handle(e)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop signals the dispatcher goroutine to finish and waits for it.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// handle evaluates one event against the cooldowns, then dispatches to
// every configured destination.
func (d *Dispatcher) handle(e events.Event) {
	if len(d.opts.URLs) == 0 {
		return
	}
	if !d.cooldownElapsed(e) {
		return
	}

	msg := formatMessage(e)
	for _, url := range d.opts.URLs {
		if err := d.sender.Send(url, msg); err != nil {
			log.Printf("[Notify] Send failed: %v", err)
		}
	}
}

// cooldownElapsed enforces the per-(event type, addon) cooldown and
// records the dispatch time when it passes.
func (d *Dispatcher) cooldownElapsed(e events.Event) bool {
	if d.opts.Cooldown <= 0 {
		return true
	}
	key := fmt.Sprintf("%s:%s", e.Type, e.TransportURL)

	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if last, ok := d.cooldowns[key]; ok && now.Sub(last) < d.opts.Cooldown {
		return false
	}
	d.cooldowns[key] = now
	return true
}

// formatMessage builds a human-readable notification string.
func formatMessage(e events.Event) string {
	if e.AddonName != "" {
		return fmt.Sprintf("[%s] [%s] %s", e.Severity, e.AddonName, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
}
