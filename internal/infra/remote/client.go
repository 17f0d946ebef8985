// Package remote holds the HTTP client shared by the map synchronizer and the
// reporter. It owns the endpoint, credentials, user agent and timeouts.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds connect and the whole request.
const DefaultTimeout = 20 * time.Second

var ErrInvalidEndpoint = errors.New("invalid remote endpoint")

// Client issues authenticated requests against the status service.
type Client struct {
	base       string
	token      string
	userAgent  string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient validates endpoint as an absolute http(s) URL.
func NewClient(endpoint, token, userAgent string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q must be an absolute http(s) url", ErrInvalidEndpoint, endpoint)
	}

	c := &Client{
		base:      strings.TrimRight(endpoint, "/"),
		token:     token,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: NewWireTransport(DefaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the base URL without a trailing slash.
func (c *Client) Endpoint() string {
	return c.base
}

// URL joins path segments onto the endpoint, escaping each segment.
func (c *Client) URL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.base)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// NewRequest builds a request carrying basic auth and the agent user agent.
func (c *Client) NewRequest(ctx context.Context, method, rawURL string, query url.Values, body io.Reader) (*http.Request, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth("", c.token)
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// Do sends req. The caller closes the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}
