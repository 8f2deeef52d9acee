// Package collection applies install, reinstall and remove mutations to
// a remote addon collection with failure-safe ordering.
package collection

import (
	"context"
	"fmt"
	"log"
	"strings"

	"addonsync/internal/addons"
	"addonsync/internal/events"
)

// Store is the external collection store, supplied as a collaborator.
// Errors from Get and Set propagate to the caller untouched; the engine
// never retries them, so the caller can react (e.g. reauthenticate).
type Store interface {
	Get(ctx context.Context, authKey string) ([]addons.Addon, error)
	Set(ctx context.Context, authKey string, list []addons.Addon) error
}

// ManifestFetcher retrieves the live manifest behind a transport URL.
type ManifestFetcher interface {
	Fetch(ctx context.Context, transportURL string) (addons.Addon, error)
}

// Reconciler mediates between local addon state and the external store.
type Reconciler struct {
	store   Store
	fetcher ManifestFetcher
	bus     *events.Bus
}

// NewReconciler wires a reconciler from its collaborators.
func NewReconciler(store Store, fetcher ManifestFetcher, bus *events.Bus) *Reconciler {
	return &Reconciler{store: store, fetcher: fetcher, bus: bus}
}

// GetAddons reads the remote collection and sanitizes every manifest so
// callers can rely on Types and Resources being present.
func (r *Reconciler) GetAddons(ctx context.Context, authKey string) ([]addons.Addon, error) {
	list, err := r.store.Get(ctx, authKey)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Manifest = addons.SanitizeManifest(list[i].Manifest)
	}
	return list, nil
}

// UpdateAddons pushes the local collection upstream: addons with an
// explicit enabled=false are dropped, and the customization overlay is
// folded into each remaining manifest.
func (r *Reconciler) UpdateAddons(ctx context.Context, authKey string, list []addons.Addon) error {
	push := make([]addons.Addon, 0, len(list))
	for _, a := range list {
		if a.Hidden() {
			continue
		}
		a.Manifest = ApplyOverlay(a.Manifest, a.Metadata)
		push = append(push, a)
	}

	if err := r.store.Set(ctx, authKey, push); err != nil {
		return err
	}

	r.publish(events.Event{
		Type:     events.CollectionPushed,
		Severity: events.SeverityInfo,
		Message:  fmt.Sprintf("Pushed %d add-ons to the collection store", len(push)),
	})
	return nil
}

// InstallAddon fetches the manifest at url and adds it to the remote
// collection. An existing entry with the same transport URL is replaced
// in place, keeping its flags and metadata; otherwise the addon is
// appended.
func (r *Reconciler) InstallAddon(ctx context.Context, authKey, url string) (addons.Addon, error) {
	fresh, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return addons.Addon{}, fmt.Errorf("install %s: %w", url, err)
	}

	list, err := r.store.Get(ctx, authKey)
	if err != nil {
		return addons.Addon{}, err
	}

	replaced := false
	for i, a := range list {
		if a.TransportURL == fresh.TransportURL {
			fresh.Flags = mergeFlags(a.Flags, fresh.Flags)
			fresh.Metadata = a.Metadata
			list[i] = fresh
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, fresh)
	}

	if err := r.store.Set(ctx, authKey, list); err != nil {
		return addons.Addon{}, err
	}

	log.Printf("[Collection] Installed %q v%s (%s)", fresh.Manifest.Name, fresh.Manifest.Version, fresh.TransportURL)
	r.publish(events.Event{
		Type:         events.AddonInstalled,
		Severity:     events.SeverityInfo,
		AddonName:    fresh.Manifest.Name,
		TransportURL: fresh.TransportURL,
		Message:      fmt.Sprintf("Installed add-on %q v%s", fresh.Manifest.Name, fresh.Manifest.Version),
	})
	return fresh, nil
}

// RemoveAddon filters the addon out of the remote collection. Removing
// a protected addon fails with ErrProtectedAddon and mutates nothing.
// Removing an addon that is not present is a no-op.
func (r *Reconciler) RemoveAddon(ctx context.Context, authKey, transportURL string) error {
	list, err := r.store.Get(ctx, authKey)
	if err != nil {
		return err
	}

	idx := -1
	for i, a := range list {
		if a.TransportURL == transportURL {
			idx = i
			break
		}
	}
	if idx < 0 {
		log.Printf("[Collection] Remove: %s not in collection, nothing to do", transportURL)
		return nil
	}
	if list[idx].Flags.Protected {
		return fmt.Errorf("remove %q: %w", list[idx].Manifest.Name, addons.ErrProtectedAddon)
	}

	name := list[idx].Manifest.Name
	list = append(list[:idx], list[idx+1:]...)
	if err := r.store.Set(ctx, authKey, list); err != nil {
		return err
	}

	log.Printf("[Collection] Removed %q (%s)", name, transportURL)
	r.publish(events.Event{
		Type:         events.AddonRemoved,
		Severity:     events.SeverityInfo,
		AddonName:    name,
		TransportURL: transportURL,
		Message:      fmt.Sprintf("Removed add-on %q", name),
	})
	return nil
}

// ReinstallAddon refreshes an installed addon from its live manifest.
//
// Ordering invariant: the replacement manifest is fetched and validated
// BEFORE the existing entry is touched. If the fetch fails the stored
// collection is left byte-identical; an addon is never uninstalled while
// its replacement is unconfirmed.
func (r *Reconciler) ReinstallAddon(ctx context.Context, authKey, transportURL string) (addons.Addon, error) {
	fresh, err := r.fetcher.Fetch(ctx, transportURL)
	if err != nil {
		r.publish(events.Event{
			Type:         events.ReinstallFailed,
			Severity:     events.SeverityError,
			TransportURL: transportURL,
			Message:      fmt.Sprintf("Reinstall of %s aborted: %v", transportURL, err),
		})
		return addons.Addon{}, fmt.Errorf("%w: %v", addons.ErrReinstallAborted, err)
	}

	list, err := r.store.Get(ctx, authKey)
	if err != nil {
		return addons.Addon{}, err
	}

	// Accounts may have stored a slightly different literal string than
	// the caller supplies now, so matching is normalized.
	want := NormalizeURL(transportURL)
	idx := -1
	for i, a := range list {
		if NormalizeURL(a.TransportURL) == want {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Library-only or not-yet-installed record: nothing to update
		// remotely, but the fresh manifest is still useful to the caller.
		log.Printf("[Collection] Reinstall: %s not in collection, returning fresh manifest only", transportURL)
		return fresh, nil
	}

	existing := list[idx]
	fresh.Flags = mergeFlags(existing.Flags, fresh.Flags)
	fresh.Metadata = existing.Metadata
	list[idx] = fresh // position preserved

	if err := r.store.Set(ctx, authKey, list); err != nil {
		return addons.Addon{}, err
	}

	log.Printf("[Collection] Reinstalled %q v%s (%s)", fresh.Manifest.Name, fresh.Manifest.Version, fresh.TransportURL)
	r.publish(events.Event{
		Type:         events.AddonReinstalled,
		Severity:     events.SeverityInfo,
		AddonName:    fresh.Manifest.Name,
		TransportURL: fresh.TransportURL,
		Message:      fmt.Sprintf("Reinstalled add-on %q v%s", fresh.Manifest.Name, fresh.Manifest.Version),
	})
	return fresh, nil
}

// NormalizeURL lowercases a transport URL and strips trailing slashes
// so literal variants of the same endpoint compare equal.
func NormalizeURL(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

// mergeFlags keeps the existing installation's flags, letting freshly
// fetched values win only where the fetch actually set one.
func mergeFlags(existing, fresh addons.Flags) addons.Flags {
	merged := existing
	if fresh.Enabled != nil {
		merged.Enabled = fresh.Enabled
	}
	if fresh.Protected {
		merged.Protected = true
	}
	if fresh.Official {
		merged.Official = true
	}
	return merged
}

func (r *Reconciler) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}
