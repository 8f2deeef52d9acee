// Package coalesce collapses bursts of identical asynchronous requests
// into a single underlying call and briefly caches successful results.
//
// The engine runs two independent groups: one keyed by origin for health
// probes, one keyed by full manifest URL for fetches. Two addons on the
// same domain share a health check but never a manifest.
package coalesce

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[T any] struct {
	val T
	at  time.Time
}

// Group deduplicates calls by key. While a call for a key is in flight,
// every concurrent caller waits on it and observes the same result.
// Successful results stay cached for the TTL (checked lazily on access);
// failures are never cached, so the next caller gets a fresh attempt.
type Group[T any] struct {
	ttl time.Duration
	sf  singleflight.Group

	mu      sync.Mutex
	results map[string]entry[T]
}

// NewGroup creates a Group with the given success-result TTL.
func NewGroup[T any](ttl time.Duration) *Group[T] {
	return &Group[T]{
		ttl:     ttl,
		results: make(map[string]entry[T]),
	}
}

// Do returns the cached result for key when still fresh; otherwise it
// runs fn, sharing one invocation among all concurrent callers of the
// same key. The check-and-create is atomic: no two callers can both
// decide to start an underlying call for the same key.
func (g *Group[T]) Do(key string, fn func() (T, error)) (T, error) {
	g.mu.Lock()
	if e, ok := g.results[key]; ok {
		if time.Since(e.at) < g.ttl {
			g.mu.Unlock()
			return e.val, nil
		}
		delete(g.results, key) // expired
	}
	g.mu.Unlock()

	v, err, _ := g.sf.Do(key, func() (any, error) {
		val, err := fn()
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.results[key] = entry[T]{val: val, at: time.Now()}
		g.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Forget drops any cached result for key. The next Do starts fresh.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	delete(g.results, key)
	g.mu.Unlock()
	g.sf.Forget(key)
}

// Len reports the number of cached (possibly expired) results.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.results)
}
