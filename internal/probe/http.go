package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vietddude/localprobe/internal/codec/chunked"
)

// HTTPProber checks http and https replicas against the node's status code
// window and optional body match.
type HTTPProber struct {
	client    *http.Client
	userAgent string
}

// NewHTTPProber uses client when non-nil. Otherwise every probe gets its own
// client that never follows redirects, verifies certificates and applies the
// target's dead timeout to each network operation.
func NewHTTPProber(client *http.Client, userAgent string) *HTTPProber {
	return &HTTPProber{client: client, userAgent: userAgent}
}

func newProbeClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: -1}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := dialer.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				return &deadlineConn{Conn: conn, timeout: timeout}, nil
			},
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			DisableKeepAlives:     true,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// deadlineConn renews the read or write deadline before every operation, so
// timeout bounds each socket call rather than the whole exchange.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// Probe issues a GET when a body match is configured, a HEAD otherwise. The
// dead timeout bounds connect, handshake and response headers, and every
// later read of the body.
func (p *HTTPProber) Probe(ctx context.Context, target Target) Result {
	url := target.Replica.URL()
	match := target.HTTP.BodyMatch()
	above, below := target.HTTP.HealthyWindow()

	client := p.client
	if client == nil {
		client = newProbeClient(target.DeadTimeout)
	}

	method := http.MethodHead
	if match != "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		slog.Debug("http probe could not build request", "url", url, "error", err)
		return Result{}
	}
	req.Header.Set("User-Agent", p.userAgent)

	slog.Debug("http probe will fire", "url", url, "method", method)

	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("http probe result was not received", "url", url, "error", err)
		return Result{}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	code := resp.StatusCode
	slog.Debug("http probe result received", "url", url, "status", code)

	if code < int(above) || code >= int(below) {
		return Result{}
	}
	if match == "" {
		return Result{Reachable: true}
	}

	body, err := chunked.ReadBody(resp)
	if len(body) == 0 {
		slog.Debug("http probe could not read response body", "url", url, "error", err)
		return Result{}
	}
	if err != nil {
		slog.Debug("http probe body partially read", "url", url, "bytes", len(body), "error", err)
	}

	if !bytes.Contains(body, []byte(match)) {
		slog.Debug("http probe body did not match", "url", url)
		return Result{}
	}
	return Result{Reachable: true}
}
