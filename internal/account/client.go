// Package account talks to the remote account provider: login and the
// addon-collection storage endpoints.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"addonsync/internal/addons"
)

// Typed failures for the account provider.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNetwork            = errors.New("network error")
)

// User is the provider-side account identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the result of a successful login.
type Session struct {
	AuthKey string `json:"authKey"`
	User    User   `json:"user"`
}

// Client is an HTTP client for the account provider API. It implements
// the collection.Store contract.
type Client struct {
	base   string
	client *http.Client
	source string // opaque caller identity for server-side audit logs
}

// NewClient creates a client for the provider at baseURL. source
// identifies this caller in the provider's logs; it carries no
// authorization weight.
func NewClient(baseURL, source string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Transport: tr, Timeout: timeout},
		source: source,
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

// Login authenticates with email and password. A provider-side
// rejection maps to ErrInvalidCredentials; transport failures wrap
// ErrNetwork.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var out struct {
		AuthKey string `json:"authKey"`
		User    User   `json:"user"`
	}
	err := c.post(ctx, "/api/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return Session{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
		}
		return Session{}, err
	}
	return Session{AuthKey: out.AuthKey, User: out.User}, nil
}

// Get reads the addon collection stored for authKey. Errors propagate
// untouched so the caller can decide to reauthenticate; the engine never
// retries collection-store calls.
func (c *Client) Get(ctx context.Context, authKey string) ([]addons.Addon, error) {
	var out struct {
		Addons []addons.Addon `json:"addons"`
	}
	err := c.post(ctx, "/api/addonCollectionGet", map[string]any{
		"authKey": authKey,
		"update":  true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("get addon collection: %w", err)
	}
	return out.Addons, nil
}

// Set replaces the addon collection stored for authKey.
func (c *Client) Set(ctx context.Context, authKey string, list []addons.Addon) error {
	var out struct {
		Success bool `json:"success"`
	}
	err := c.post(ctx, "/api/addonCollectionSet", map[string]any{
		"authKey": authKey,
		"addons":  list,
	}, &out)
	if err != nil {
		return fmt.Errorf("set addon collection: %w", err)
	}
	return nil
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.source != "" {
		req.Header.Set("X-Request-Source", c.source)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrNetwork, path, resp.Status)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%w: decode result: %v", ErrNetwork, err)
		}
	}
	return nil
}
