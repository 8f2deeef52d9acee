// Package version checks GitHub for newer releases of the addonsync
// tool itself and compares them against the running build.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"addonsync/internal/vercmp"
)

// GitHubRelease represents the relevant fields from GitHub's releases API.
type GitHubRelease struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	HTMLURL     string    `json:"html_url"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
}

// ReleaseInfo contains version comparison results.
type ReleaseInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

const (
	defaultCacheTTL    = 1 * time.Hour
	defaultHTTPTimeout = 10 * time.Second
	githubAPIURL       = "https://api.github.com/repos/%s/%s/releases/latest"
)

// Checker handles release checking with a short-lived cache so repeated
// lookups within a session cost one API call.
type Checker struct {
	currentVersion string
	owner          string
	repo           string
	httpClient     *http.Client

	mu          sync.RWMutex
	cachedInfo  *ReleaseInfo
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// NewChecker creates a release checker for owner/repo.
func NewChecker(currentVersion, owner, repo string) *Checker {
	return &Checker{
		currentVersion: strings.TrimPrefix(currentVersion, "v"),
		owner:          owner,
		repo:           repo,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
		cacheTTL:       defaultCacheTTL,
	}
}

// Check fetches the latest release info, serving from cache when fresh.
// A failed fetch falls back to stale cache if one exists.
func (c *Checker) Check() (*ReleaseInfo, error) {
	c.mu.RLock()
	if c.cachedInfo != nil && time.Now().Before(c.cacheExpiry) {
		info := *c.cachedInfo
		c.mu.RUnlock()
		return &info, nil
	}
	c.mu.RUnlock()

	info, err := c.fetchLatestRelease()
	if err != nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.cachedInfo != nil {
			stale := *c.cachedInfo
			stale.CheckedAt = time.Now()
			return &stale, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cachedInfo = info
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
	c.mu.Unlock()

	return info, nil
}

func (c *Checker) fetchLatestRelease() (*ReleaseInfo, error) {
	url := fmt.Sprintf(githubAPIURL, c.owner, c.repo)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "addonsync/"+c.currentVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch release info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No releases yet - not an error
		return c.noUpdate(), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release info: %w", err)
	}

	// Skip prereleases and drafts
	if release.Draft || release.Prerelease {
		return c.noUpdate(), nil
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	return &ReleaseInfo{
		CurrentVersion:  c.currentVersion,
		LatestVersion:   latest,
		UpdateAvailable: vercmp.HasUpdate(c.currentVersion, latest),
		ReleaseURL:      release.HTMLURL,
		CheckedAt:       time.Now(),
	}, nil
}

func (c *Checker) noUpdate() *ReleaseInfo {
	return &ReleaseInfo{
		CurrentVersion: c.currentVersion,
		LatestVersion:  c.currentVersion,
		CheckedAt:      time.Now(),
	}
}
