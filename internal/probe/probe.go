// Package probe implements per-transport reachability checks and the health
// classification of their outcome.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vietddude/localprobe/internal/core/domain"
)

var ErrUnsupportedScheme = errors.New("no prober for replica scheme")

// Target is one replica to probe, with the node rules that apply to it.
type Target struct {
	Replica     domain.ReplicaURL
	HTTP        *domain.NodeHTTP
	DeadTimeout time.Duration
}

// Result is the raw outcome of a probe. Ordinary network failures are
// reported as Reachable=false, never as errors.
type Result struct {
	Reachable bool
	// Latency is only meaningful when Measured is true; otherwise the caller
	// uses the wall-clock time spent in Probe.
	Latency  time.Duration
	Measured bool
}

// Prober checks reachability of a single replica.
type Prober interface {
	Probe(ctx context.Context, target Target) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, target Target) Result

func (f ProberFunc) Probe(ctx context.Context, target Target) Result {
	return f(ctx, target)
}

// Resolver is the subset of *net.Resolver used by the probers.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Table dispatches a target to the prober registered for its scheme.
type Table map[domain.Scheme]Prober

// Options configures the default probers.
type Options struct {
	UserAgent      string
	ICMPPrivileged bool
}

// NewTable returns a table with the ICMP, TCP, HTTP and HTTPS probers.
func NewTable(opts Options) Table {
	httpProber := NewHTTPProber(nil, opts.UserAgent)
	return Table{
		domain.SchemeICMP:  NewICMPProber(net.DefaultResolver, opts.ICMPPrivileged),
		domain.SchemeTCP:   NewTCPProber(net.DefaultResolver),
		domain.SchemeHTTP:  httpProber,
		domain.SchemeHTTPS: httpProber,
	}
}

// Check probes the target once and classifies the outcome.
func (t Table) Check(ctx context.Context, target Target, sick *time.Duration) (domain.Status, error) {
	p, ok := t[target.Replica.Scheme()]
	if !ok {
		return domain.StatusDead, fmt.Errorf("%w: %s", ErrUnsupportedScheme, target.Replica.Scheme())
	}

	start := time.Now()
	res := p.Probe(ctx, target)
	latency := time.Since(start)
	if res.Measured {
		latency = res.Latency
	}

	return Classify(res.Reachable, latency, sick), nil
}
