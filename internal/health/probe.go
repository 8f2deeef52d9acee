// Package health answers "is this origin currently reachable".
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"addonsync/internal/addons"
)

// Probe performs lightweight reachability checks against URL origins.
// Check never returns an error: a failing origin is reported as
// {IsOnline: false} with a description so batch callers can record the
// outcome per addon instead of aborting.
type Probe struct {
	client *http.Client
}

// NewProbe creates a probe with its own short-timeout HTTP client.
func NewProbe(timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &Probe{client: &http.Client{Transport: tr, Timeout: timeout}}
}

// Check probes the origin of rawURL. Any HTTP response counts as online,
// whatever the status code: the gate asks about reachability, not
// correctness of a particular path.
func (p *Probe) Check(ctx context.Context, rawURL string) addons.Health {
	origin, err := Origin(rawURL)
	if err != nil {
		return addons.Health{IsOnline: false, Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, origin+"/", http.NoBody)
	if err != nil {
		return addons.Health{IsOnline: false, Error: err.Error()}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return addons.Health{IsOnline: false, Error: err.Error()}
	}
	resp.Body.Close()

	return addons.Health{IsOnline: true}
}

// Origin extracts "scheme://host" from a URL, lowercased. Used both for
// probing and as the coalescing key shared by addons on the same domain.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawURL)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}
