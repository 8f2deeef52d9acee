package addons

import (
	"encoding/json"
	"fmt"
)

const (
	// ManifestFile is the well-known filename an addon serves its
	// descriptor under.
	ManifestFile = "manifest.json"

	maxManifestSize = 256 * 1024 // 256 KiB raw JSON
	maxNameLen      = 256
)

// ParseManifest decodes raw JSON into a Manifest, checks the required
// fields and sanitizes the result. A decode failure is reported as a
// plain error so the caller can treat it as transient; a structurally
// valid payload with missing fields wraps ErrManifestInvalid.
func ParseManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if len(raw) > maxManifestSize {
		return m, fmt.Errorf("manifest exceeds %d byte limit", maxManifestSize)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	if err := ValidateManifest(m); err != nil {
		return m, err
	}
	return SanitizeManifest(m), nil
}

// ValidateManifest checks the fields every caller depends on.
func ValidateManifest(m Manifest) error {
	if m.ID == "" {
		return fmt.Errorf("%w: id is required", ErrManifestInvalid)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrManifestInvalid)
	}
	if len(m.Name) > maxNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrManifestInvalid, maxNameLen)
	}
	if m.Version == "" {
		return fmt.Errorf("%w: version is required", ErrManifestInvalid)
	}
	return nil
}

// SanitizeManifest defaults Types and Resources to empty slices.
// Older addons omit both fields; every consumer assumes they exist.
func SanitizeManifest(m Manifest) Manifest {
	if m.Types == nil {
		m.Types = []string{}
	}
	if m.Resources == nil {
		m.Resources = []string{}
	}
	return m
}
