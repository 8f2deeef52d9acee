package addons

import "errors"

// Typed failures surfaced by the sync engine. Callers match them with
// errors.Is; wrapped variants carry the addon or URL that failed.
var (
	// ErrManifestNotFound is terminal: the endpoint answered 404 and the
	// fetch is not retried.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrManifestInvalid means the payload parsed but is missing required
	// fields. The transport worked, so this is terminal too.
	ErrManifestInvalid = errors.New("manifest invalid")

	// ErrManifestUnreachable is a transient transport failure, surfaced
	// only after the retry budget is exhausted.
	ErrManifestUnreachable = errors.New("manifest unreachable")

	// ErrAddonOffline means the origin health gate failed and the manifest
	// fetch was skipped entirely.
	ErrAddonOffline = errors.New("addon is offline")

	// ErrProtectedAddon blocks removal of a protected addon.
	ErrProtectedAddon = errors.New("addon is protected")

	// ErrReinstallAborted means the replacement manifest could not be
	// fetched; the stored collection is guaranteed unmodified.
	ErrReinstallAborted = errors.New("reinstall aborted")
)
