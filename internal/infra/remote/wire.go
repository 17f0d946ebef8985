package remote

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

var ErrMalformedResponse = errors.New("malformed http response")

// WireTransport sends one request per connection and reads the response
// itself. Unlike http.Transport it hands back the body with its transfer
// coding intact: Transfer-Encoding stays in the header and a chunked body is
// left framed for the caller to decode. Identity and unknown codings are
// passed through so the caller can accept or reject them.
type WireTransport struct {
	DialTimeout time.Duration
	TLSConfig   *tls.Config
}

// NewWireTransport dials with timeout and requires TLS 1.2 for https.
func NewWireTransport(timeout time.Duration) *WireTransport {
	return &WireTransport{
		DialTimeout: timeout,
		TLSConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *WireTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	conn, err := t.dial(ctx, req)
	if err != nil {
		return nil, err
	}
	// Cancelling ctx unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	fail := func(err error) (*http.Response, error) {
		stop()
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	out := req.Clone(ctx)
	out.Close = true
	if err := out.Write(conn); err != nil {
		return fail(fmt.Errorf("write request: %w", err))
	}

	br := bufio.NewReader(conn)
	resp, err := readResponse(br, req)
	if err != nil {
		return fail(err)
	}
	resp.Body = &wireBody{r: bodyReader(br, resp), conn: conn, stop: stop}
	return resp, nil
}

func (t *WireTransport) dial(ctx context.Context, req *http.Request) (net.Conn, error) {
	host := req.URL.Hostname()
	port := req.URL.Port()
	dialer := &net.Dialer{Timeout: t.DialTimeout}

	switch req.URL.Scheme {
	case "http":
		if port == "" {
			port = "80"
		}
		return dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	case "https":
		if port == "" {
			port = "443"
		}
		cfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if t.TLSConfig != nil {
			cfg = t.TLSConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		td := &tls.Dialer{NetDialer: dialer, Config: cfg}
		return td.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	default:
		return nil, fmt.Errorf("unsupported scheme %q", req.URL.Scheme)
	}
}

// readResponse parses the status line and headers, skipping interim 1xx
// responses.
func readResponse(br *bufio.Reader, req *http.Request) (*http.Response, error) {
	tp := textproto.NewReader(br)
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("read status line: %w", err)
		}
		proto, rest, ok := strings.Cut(line, " ")
		if !ok || !strings.HasPrefix(proto, "HTTP/") {
			return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, line)
		}
		codeText, reason, _ := strings.Cut(rest, " ")
		code, err := strconv.Atoi(codeText)
		if err != nil || code < 100 || code > 999 {
			return nil, fmt.Errorf("%w: status code %q", ErrMalformedResponse, codeText)
		}
		major, minor, ok := http.ParseHTTPVersion(proto)
		if !ok {
			return nil, fmt.Errorf("%w: protocol %q", ErrMalformedResponse, proto)
		}

		hdr, err := tp.ReadMIMEHeader()
		if err != nil {
			return nil, fmt.Errorf("read headers: %w", err)
		}
		if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
			continue
		}

		resp := &http.Response{
			Status:        codeText + " " + reason,
			StatusCode:    code,
			Proto:         proto,
			ProtoMajor:    major,
			ProtoMinor:    minor,
			Header:        http.Header(hdr),
			ContentLength: -1,
			Close:         true,
			Request:       req,
		}
		te := hdr.Get("Transfer-Encoding")
		if cl := hdr.Get("Content-Length"); cl != "" && (te == "" || strings.EqualFold(te, "identity")) {
			n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: content length %q", ErrMalformedResponse, cl)
			}
			resp.ContentLength = n
		}
		return resp, nil
	}
}

// bodyReader bounds the body by the request method, status and framing. A
// body carrying a transfer coding is returned raw up to connection close.
func bodyReader(br *bufio.Reader, resp *http.Response) io.Reader {
	code := resp.StatusCode
	if resp.Request.Method == http.MethodHead || code == http.StatusNoContent || code == http.StatusNotModified {
		resp.ContentLength = 0
		return strings.NewReader("")
	}
	if resp.ContentLength >= 0 {
		return io.LimitReader(br, resp.ContentLength)
	}
	return br
}

type wireBody struct {
	r    io.Reader
	conn net.Conn
	stop func() bool
}

func (b *wireBody) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

func (b *wireBody) Close() error {
	b.stop()
	return b.conn.Close()
}
