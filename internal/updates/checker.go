// Package updates checks collections of addons for newer versions in
// bounded-concurrency batches, gated on origin reachability.
package updates

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"addonsync/internal/addons"
	"addonsync/internal/coalesce"
	"addonsync/internal/events"
	"addonsync/internal/health"
	"addonsync/internal/vercmp"
)

// Prober reports whether a URL's origin is reachable.
type Prober interface {
	Check(ctx context.Context, rawURL string) addons.Health
}

// ManifestFetcher retrieves the live manifest behind a transport URL.
type ManifestFetcher interface {
	Fetch(ctx context.Context, transportURL string) (addons.Addon, error)
}

// Options tunes the checker. Zero values use the relay-friendly defaults.
type Options struct {
	// BatchSize bounds how many addons are checked concurrently. Batch
	// N+1 is not issued until batch N has fully settled.
	BatchSize int

	// CoalesceTTL is how long shared health/fetch results stay valid, so
	// a burst across several accounts performs one round trip per key.
	CoalesceTTL time.Duration
}

const (
	defaultBatchSize   = 10
	defaultCoalesceTTL = 5 * time.Second
)

// Checker orchestrates update checks. Health probes are coalesced per
// origin, manifest fetches per full transport URL: two addons on the
// same domain share a probe but never a manifest.
type Checker struct {
	probe     Prober
	fetcher   ManifestFetcher
	bus       *events.Bus
	batchSize int

	healthOps   *coalesce.Group[addons.Health]
	manifestOps *coalesce.Group[addons.Addon]
}

// NewChecker wires a checker from its collaborators.
func NewChecker(probe Prober, fetcher ManifestFetcher, bus *events.Bus, opts Options) *Checker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.CoalesceTTL <= 0 {
		opts.CoalesceTTL = defaultCoalesceTTL
	}
	return &Checker{
		probe:       probe,
		fetcher:     fetcher,
		bus:         bus,
		batchSize:   opts.BatchSize,
		healthOps:   coalesce.NewGroup[addons.Health](opts.CoalesceTTL),
		manifestOps: coalesce.NewGroup[addons.Addon](opts.CoalesceTTL),
	}
}

// CheckUpdates checks every non-official addon in list. Offline addons
// are reported with their health status and no fetch is attempted; other
// per-addon failures are logged and excluded. A single addon can never
// abort the remaining batches.
func (c *Checker) CheckUpdates(ctx context.Context, list []addons.Addon) []addons.UpdateCheckResult {
	checkable := make([]addons.Addon, 0, len(list))
	for _, a := range list {
		if a.Flags.Official {
			continue
		}
		checkable = append(checkable, a)
	}

	run := &runState{online: make(map[string]bool)}
	var results []addons.UpdateCheckResult

	for start := 0; start < len(checkable); start += c.batchSize {
		end := start + c.batchSize
		if end > len(checkable) {
			end = len(checkable)
		}
		batch := checkable[start:end]

		batchResults := make([]*addons.UpdateCheckResult, len(batch))
		var g errgroup.Group
		for i, a := range batch {
			g.Go(func() error {
				res, err := c.checkOne(ctx, a, run)
				if err != nil {
					return fmt.Errorf("%s: %w", a.TransportURL, err)
				}
				batchResults[i] = &res
				return nil
			})
		}
		// Failed addons left a nil slot and are excluded; the batch as a
		// whole still settles.
		if err := g.Wait(); err != nil {
			log.Printf("[Updates] %v", err)
		}

		for _, r := range batchResults {
			if r != nil {
				results = append(results, *r)
			}
		}
	}

	return results
}

// runState caches origins already confirmed online during this run, so
// many addons on one domain cost a single probe even when the coalescer
// TTL has lapsed mid-run.
type runState struct {
	mu     sync.Mutex
	online map[string]bool
}

func (r *runState) isOnline(origin string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[origin]
}

func (r *runState) markOnline(origin string) {
	r.mu.Lock()
	r.online[origin] = true
	r.mu.Unlock()
}

func (c *Checker) checkOne(ctx context.Context, a addons.Addon, run *runState) (addons.UpdateCheckResult, error) {
	origin, err := health.Origin(a.TransportURL)
	if err != nil {
		return addons.UpdateCheckResult{}, fmt.Errorf("derive origin: %w", err)
	}

	if !run.isOnline(origin) {
		_, err := c.healthOps.Do(origin, func() (addons.Health, error) {
			h := c.probe.Check(ctx, origin)
			if !h.IsOnline {
				// Surfacing an error keeps negative results out of the
				// shared cache; failing origins are re-probed promptly.
				return h, fmt.Errorf("%w: %s", addons.ErrAddonOffline, h.Error)
			}
			return h, nil
		})
		if err != nil {
			c.publish(events.Event{
				Type:         events.AddonOffline,
				Severity:     events.SeverityWarning,
				AddonName:    a.Manifest.Name,
				TransportURL: a.TransportURL,
				Message:      fmt.Sprintf("Add-on %q is offline, skipping manifest fetch", a.Manifest.Name),
			})
			// Health gate failed: report offline, never fetch.
			return addons.UpdateCheckResult{
				AddonID:          a.Manifest.ID,
				Name:             a.Manifest.Name,
				TransportURL:     a.TransportURL,
				InstalledVersion: a.Manifest.Version,
				Health:           addons.Health{IsOnline: false, Error: addons.ErrAddonOffline.Error()},
			}, nil
		}
		run.markOnline(origin)
	}

	fresh, err := c.manifestOps.Do(a.TransportURL, func() (addons.Addon, error) {
		return c.fetcher.Fetch(ctx, a.TransportURL)
	})
	if err != nil {
		c.publish(events.Event{
			Type:         events.CheckFailed,
			Severity:     events.SeverityWarning,
			AddonName:    a.Manifest.Name,
			TransportURL: a.TransportURL,
			Message:      fmt.Sprintf("Update check for %q failed: %v", a.Manifest.Name, err),
		})
		return addons.UpdateCheckResult{}, fmt.Errorf("fetch manifest: %w", err)
	}

	res := addons.UpdateCheckResult{
		AddonID:          a.Manifest.ID,
		Name:             a.Manifest.Name,
		TransportURL:     a.TransportURL,
		InstalledVersion: a.Manifest.Version,
		LatestVersion:    fresh.Manifest.Version,
		HasUpdate:        vercmp.HasUpdate(a.Manifest.Version, fresh.Manifest.Version),
		Health:           addons.Health{IsOnline: true},
	}

	if res.HasUpdate {
		c.publish(events.Event{
			Type:         events.UpdateAvailable,
			Severity:     events.SeverityInfo,
			AddonName:    a.Manifest.Name,
			TransportURL: a.TransportURL,
			Message:      fmt.Sprintf("Add-on %q has an update: %s -> %s", a.Manifest.Name, res.InstalledVersion, res.LatestVersion),
			Metadata: map[string]string{
				"installed": res.InstalledVersion,
				"latest":    res.LatestVersion,
			},
		})
	}

	return res, nil
}

func (c *Checker) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
