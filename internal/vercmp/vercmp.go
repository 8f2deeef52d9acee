// Package vercmp defines the version ordering used by update checking.
package vercmp

import (
	"strings"

	semver "github.com/Masterminds/semver/v3"
)

// HasUpdate reports whether latest is strictly newer than installed under
// semver ordering. Equal versions in different formats ("1.2" vs "1.2.0")
// are not updates, and downgrades are never reported. Either side failing
// to parse means "no update" rather than a guess.
func HasUpdate(installed, latest string) bool {
	cur, err := parse(installed)
	if err != nil {
		return false
	}
	next, err := parse(latest)
	if err != nil {
		return false
	}
	return next.GreaterThan(cur)
}

func parse(s string) (*semver.Version, error) {
	// NewVersion is lenient: accepts "v" prefixes and short forms like "1.2".
	return semver.NewVersion(strings.TrimSpace(s))
}
