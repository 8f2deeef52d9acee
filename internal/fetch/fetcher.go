// Package fetch retrieves and validates remote addon manifests.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"addonsync/internal/addons"
	"addonsync/internal/health"
)

// Options configures a Fetcher. Zero values fall back to the defaults
// the relay operator expects.
type Options struct {
	// RelayURL is the forwarding endpoint used for origins that do not
	// allow direct cross-origin access. Empty disables the relay and
	// every fetch goes direct.
	RelayURL string

	// DirectOrigins lists origins (scheme://host, lowercase) known to
	// support direct access, bypassing the relay.
	DirectOrigins []string

	// Retries is the number of extra attempts after a transient failure.
	Retries int

	// CacheWindow is the coarse cache-buster bucket size. Intermediate
	// caches serve a stable response within one window; a refresh is
	// guaranteed at most every window.
	CacheWindow time.Duration

	// Source identifies this caller to the relay for server-side audit
	// logging. Generated when empty.
	Source string

	Timeout time.Duration
}

const (
	defaultRetries     = 2
	defaultCacheWindow = 30 * time.Minute
	defaultTimeout     = 30 * time.Second
)

// Fetcher resolves manifest URLs, picks direct or relayed transport,
// applies the cache-buster and retry policy, and validates payloads.
type Fetcher struct {
	client  *http.Client
	relay   string
	direct  map[string]struct{}
	retries int
	window  time.Duration
	source  string

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = defaultRetries
	}
	if opts.CacheWindow <= 0 {
		opts.CacheWindow = defaultCacheWindow
	} else if opts.CacheWindow < time.Second {
		// Bucket arithmetic works in whole seconds.
		opts.CacheWindow = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Source == "" {
		opts.Source = "addonsync/" + uuid.NewString()
	}

	direct := make(map[string]struct{}, len(opts.DirectOrigins))
	for _, o := range opts.DirectOrigins {
		direct[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &Fetcher{
		client:  &http.Client{Transport: tr, Timeout: opts.Timeout},
		relay:   strings.TrimRight(opts.RelayURL, "/"),
		direct:  direct,
		retries: opts.Retries,
		window:  opts.CacheWindow,
		source:  opts.Source,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Source returns the caller-identifying audit string sent to the relay.
func (f *Fetcher) Source() string { return f.source }

// Fetch retrieves, validates and sanitizes the manifest behind
// transportURL. The returned Addon echoes the caller's transportURL
// unchanged, preserving duplicate-instance identity even when the
// resolved manifest URL differs.
//
// A 404 and an invalid payload are terminal; every other failure is
// retried with a linearly increasing delay until the budget runs out.
func (f *Fetcher) Fetch(ctx context.Context, transportURL string) (addons.Addon, error) {
	manifestURL := ResolveManifestURL(transportURL)

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			if err := f.sleep(ctx, time.Duration(attempt)*time.Second); err != nil {
				return addons.Addon{}, err
			}
		}

		m, err := f.attempt(ctx, manifestURL)
		if err == nil {
			return addons.Addon{TransportURL: transportURL, Manifest: m}, nil
		}
		if isTerminal(err) {
			return addons.Addon{}, err
		}
		lastErr = err
	}

	return addons.Addon{}, fmt.Errorf("%w: %v", addons.ErrManifestUnreachable, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, manifestURL string) (addons.Manifest, error) {
	req, err := f.buildRequest(ctx, manifestURL)
	if err != nil {
		return addons.Manifest{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return addons.Manifest{}, fmt.Errorf("request manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return addons.Manifest{}, fmt.Errorf("%w: %s", addons.ErrManifestNotFound, manifestURL)
	}
	if resp.StatusCode != http.StatusOK {
		return addons.Manifest{}, fmt.Errorf("manifest request returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return addons.Manifest{}, fmt.Errorf("read manifest body: %w", err)
	}

	return addons.ParseManifest(body)
}

// buildRequest applies the cache-buster and chooses direct vs relayed
// transport for the resolved manifest URL.
func (f *Fetcher) buildRequest(ctx context.Context, manifestURL string) (*http.Request, error) {
	busted := f.cacheBust(manifestURL)

	target := busted
	viaRelay := false
	if f.relay != "" {
		origin, err := health.Origin(manifestURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", addons.ErrManifestUnreachable, err)
		}
		if _, ok := f.direct[origin]; !ok {
			target = f.relay + "?url=" + url.QueryEscape(busted)
			viaRelay = true
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if viaRelay {
		// Audit identity only; the relay does not authorize on it.
		req.Header.Set("X-Request-Source", f.source)
	}
	return req, nil
}

// cacheBust appends the coarse time bucket so intermediate caches serve
// a stable response within a window yet refresh at most every window.
func (f *Fetcher) cacheBust(manifestURL string) string {
	bucket := f.now().Unix() / int64(f.window/time.Second)
	sep := "?"
	if strings.Contains(manifestURL, "?") {
		sep = "&"
	}
	return manifestURL + sep + "b=" + strconv.FormatInt(bucket, 10)
}

// ResolveManifestURL turns a transport URL into the URL of its manifest:
// used as-is when the path already ends in the manifest filename,
// otherwise the filename joins the path, ahead of any query string.
func ResolveManifestURL(transportURL string) string {
	base, query := transportURL, ""
	if i := strings.IndexByte(transportURL, '?'); i >= 0 {
		base, query = transportURL[:i], transportURL[i:]
	}
	if strings.HasSuffix(base, addons.ManifestFile) {
		return transportURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + addons.ManifestFile + query
}

func isTerminal(err error) bool {
	return errors.Is(err, addons.ErrManifestNotFound) || errors.Is(err, addons.ErrManifestInvalid)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
