// ABOUTME: HTTP client core for the admin-dashboard backend
// ABOUTME: Request helpers, bearer auth, CSRF cookie handling, JSON decoding

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// TokenSource supplies the bearer token for each request. It is consulted
// per call so a re-login mid-session takes effect without rebuilding the
// client. Return empty for unauthenticated calls.
type TokenSource func() string

// Client is a typed REST client for the backend. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token source.
func WithToken(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests and by
// callers that need custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. Pass nil for the default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a backend client rooted at baseURL. The client keeps a
// cookie jar because the login flow is cookie-based (CSRF preflight).
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		token:  func() string { return "" },
		logger: slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newRequest builds a request with the standard headers applied.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do executes the request and maps non-2xx responses into the error
// taxonomy. On success the response body is decoded into out when out is
// non-nil, then closed.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := decodeError(resp)
		c.logger.Debug("backend call failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err)
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// getJSON issues a GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// sendJSON issues a request with a JSON body and decodes the response into
// out when out is non-nil.
func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// delete issues a DELETE expecting a status-only response.
func (c *Client) delete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// queryValues renders non-zero query parameters.
func queryValues(pairs map[string]string) string {
	q := url.Values{}
	for k, v := range pairs {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
