package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"addonsync/internal/addons"
)

const validManifest = `{"id":"org.test.addon","name":"Test Addon","version":"1.4.0"}`

// newTestFetcher disables retry sleeps and the relay unless configured.
func newTestFetcher(opts Options) *Fetcher {
	f := New(opts)
	f.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func TestResolveManifestURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://x.test/manifest.json", "https://x.test/manifest.json"},
		{"https://x.test/manifest.json?flags=1", "https://x.test/manifest.json?flags=1"},
		{"https://x.test/addon", "https://x.test/addon/manifest.json"},
		{"https://x.test/addon/", "https://x.test/addon/manifest.json"},
		{"https://x.test", "https://x.test/manifest.json"},
		{"https://x.test/addon?cfg=abc", "https://x.test/addon/manifest.json?cfg=abc"},
		{"https://x.test/addon/?cfg=abc", "https://x.test/addon/manifest.json?cfg=abc"},
	}
	for _, c := range cases {
		if got := ResolveManifestURL(c.in); got != c.want {
			t.Errorf("ResolveManifestURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFetchValidManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("b") == "" {
			t.Error("expected cache-buster query parameter")
		}
		w.Write([]byte(validManifest))
	}))
	defer srv.Close()

	transportURL := srv.URL + "/addon"
	a, err := newTestFetcher(Options{}).Fetch(context.Background(), transportURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TransportURL != transportURL {
		t.Errorf("transportUrl = %q, want the caller's original %q", a.TransportURL, transportURL)
	}
	if a.Manifest.ID != "org.test.addon" || a.Manifest.Version != "1.4.0" {
		t.Errorf("manifest = %+v", a.Manifest)
	}
	if a.Manifest.Types == nil || a.Manifest.Resources == nil {
		t.Error("manifest must be sanitized before being returned")
	}
}

func TestFetchNotFoundIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestFetcher(Options{}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, addons.ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, saw %d requests", calls.Load())
	}
}

func TestFetchInvalidManifestIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"name":"no id or version"}`))
	}))
	defer srv.Close()

	_, err := newTestFetcher(Options{}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, addons.ErrManifestInvalid) {
		t.Fatalf("expected ErrManifestInvalid, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("invalid content must not be retried, saw %d requests", calls.Load())
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(validManifest))
	}))
	defer srv.Close()

	a, err := newTestFetcher(Options{Retries: 2}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Manifest.Name != "Test Addon" {
		t.Errorf("manifest = %+v", a.Manifest)
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 3", calls.Load())
	}
}

func TestFetchExhaustedRetriesSurfaceUnreachable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(Options{Retries: 2}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, addons.ErrManifestUnreachable) {
		t.Fatalf("expected ErrManifestUnreachable, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want initial + 2 retries", calls.Load())
	}
}

func TestFetchMalformedBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"truncated":`))
			return
		}
		w.Write([]byte(validManifest))
	}))
	defer srv.Close()

	_, err := newTestFetcher(Options{Retries: 2}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("requests = %d, want 2", calls.Load())
	}
}

func TestFetchUsesRelayForUnknownOrigins(t *testing.T) {
	addonSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("addon origin must not be contacted directly")
	}))
	defer addonSrv.Close()

	var relayHits atomic.Int32
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayHits.Add(1)
		target := r.URL.Query().Get("url")
		if target == "" {
			t.Error("relay expected a url query parameter")
		}
		if r.Header.Get("X-Request-Source") == "" {
			t.Error("relay expected the caller-identifying header")
		}
		w.Write([]byte(validManifest))
	}))
	defer relay.Close()

	f := newTestFetcher(Options{RelayURL: relay.URL + "/relay"})
	if _, err := f.Fetch(context.Background(), addonSrv.URL+"/addon"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if relayHits.Load() != 1 {
		t.Errorf("relay hits = %d, want 1", relayHits.Load())
	}
}

func TestFetchAllowListedOriginGoesDirect(t *testing.T) {
	var directHits atomic.Int32
	addonSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		directHits.Add(1)
		if r.Header.Get("X-Request-Source") != "" {
			t.Error("direct fetches must not carry the relay audit header")
		}
		w.Write([]byte(validManifest))
	}))
	defer addonSrv.Close()

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("allow-listed origin must bypass the relay")
	}))
	defer relay.Close()

	f := newTestFetcher(Options{
		RelayURL:      relay.URL,
		DirectOrigins: []string{addonSrv.URL},
	})
	if _, err := f.Fetch(context.Background(), addonSrv.URL+"/addon"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if directHits.Load() != 1 {
		t.Errorf("direct hits = %d, want 1", directHits.Load())
	}
}

func TestCacheBustStableWithinWindow(t *testing.T) {
	f := newTestFetcher(Options{CacheWindow: 30 * time.Minute})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return base }
	first := f.cacheBust("https://x.test/manifest.json")

	f.now = func() time.Time { return base.Add(29 * time.Minute) }
	if got := f.cacheBust("https://x.test/manifest.json"); got != first {
		t.Errorf("bucket changed within the window: %q vs %q", first, got)
	}

	f.now = func() time.Time { return base.Add(31 * time.Minute) }
	if got := f.cacheBust("https://x.test/manifest.json"); got == first {
		t.Error("bucket should change after the window elapses")
	}
}

func TestCacheBustAppendsToExistingQuery(t *testing.T) {
	f := newTestFetcher(Options{})
	got := f.cacheBust("https://x.test/manifest.json?cfg=abc")
	if want := "?cfg=abc&b="; !strings.Contains(got, want) {
		t.Errorf("cacheBust = %q, want %q joined with &", got, want)
	}
}

func TestCacheBustSubSecondWindowClamped(t *testing.T) {
	f := newTestFetcher(Options{CacheWindow: 500 * time.Millisecond})
	got := f.cacheBust("https://x.test/manifest.json")
	if !strings.Contains(got, "?b=") {
		t.Errorf("cacheBust = %q, want a cache-buster parameter", got)
	}
	if f.window != time.Second {
		t.Errorf("window = %s, want clamp to 1s", f.window)
	}
}
