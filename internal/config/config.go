// Package config loads engine settings from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the sync engine configuration. The policy constants
// (batch size, coalescing TTL, cache-buster window) are tunable because
// the right values depend on the relay operator's rate limits.
type Config struct {
	// APIBase is the account provider endpoint.
	APIBase string

	// RelayURL forwards manifest fetches for origins without direct
	// cross-origin access. Empty means every fetch goes direct.
	RelayURL string

	// DirectOrigins lists origins allowed to bypass the relay.
	DirectOrigins []string

	// Source identifies this installation in relay and provider audit
	// logs. Empty generates a per-process identity.
	Source string

	BatchSize      int
	CoalesceTTL    time.Duration
	CacheWindow    time.Duration
	FetchRetries   int
	FetchTimeout   time.Duration
	ProbeTimeout   time.Duration
	NotifyURLs     []string
	NotifyCooldown time.Duration
}

// Load returns the engine configuration from environment variables.
func Load() Config {
	return Config{
		APIBase:        getEnv("API_BASE", "https://api.strem.io"),
		RelayURL:       getEnv("RELAY_URL", ""),
		DirectOrigins:  getEnvList("DIRECT_ORIGINS", nil),
		Source:         getEnv("REQUEST_SOURCE", ""),
		BatchSize:      getEnvInt("BATCH_SIZE", 10),
		CoalesceTTL:    getEnvDuration("COALESCE_TTL", 5*time.Second),
		CacheWindow:    getEnvDuration("CACHE_BUSTER_WINDOW", 30*time.Minute),
		FetchRetries:   getEnvInt("FETCH_RETRIES", 2),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		ProbeTimeout:   getEnvDuration("PROBE_TIMEOUT", 10*time.Second),
		NotifyURLs:     getEnvList("NOTIFY_URLS", nil),
		NotifyCooldown: getEnvDuration("NOTIFY_COOLDOWN", 10*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
