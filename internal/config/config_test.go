package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.CoalesceTTL != 5*time.Second {
		t.Errorf("CoalesceTTL = %s, want 5s", cfg.CoalesceTTL)
	}
	if cfg.CacheWindow != 30*time.Minute {
		t.Errorf("CacheWindow = %s, want 30m", cfg.CacheWindow)
	}
	if cfg.FetchRetries != 2 {
		t.Errorf("FetchRetries = %d, want 2", cfg.FetchRetries)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("COALESCE_TTL", "2s")
	t.Setenv("DIRECT_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("NOTIFY_URLS", "telegram://token@telegram?chats=1")

	cfg := Load()
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
	}
	if cfg.CoalesceTTL != 2*time.Second {
		t.Errorf("CoalesceTTL = %s, want 2s", cfg.CoalesceTTL)
	}
	if len(cfg.DirectOrigins) != 2 || cfg.DirectOrigins[1] != "https://b.test" {
		t.Errorf("DirectOrigins = %v", cfg.DirectOrigins)
	}
	if len(cfg.NotifyURLs) != 1 {
		t.Errorf("NotifyURLs = %v", cfg.NotifyURLs)
	}
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")
	t.Setenv("COALESCE_TTL", "soon")

	cfg := Load()
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want fallback 10", cfg.BatchSize)
	}
	if cfg.CoalesceTTL != 5*time.Second {
		t.Errorf("CoalesceTTL = %s, want fallback 5s", cfg.CoalesceTTL)
	}
}
