package probe

import (
	"context"
	"log/slog"
	"net"
	"strconv"
)

// TCPProber checks that a TCP connection can be opened to the replica.
type TCPProber struct {
	resolver Resolver
	dialer   net.Dialer
}

func NewTCPProber(resolver Resolver) *TCPProber {
	return &TCPProber{resolver: resolver}
}

// Probe resolves host:port, connects to the first address and closes the
// connection immediately. The dead timeout bounds resolution and connect.
func (p *TCPProber) Probe(ctx context.Context, target Target) Result {
	ctx, cancel := context.WithTimeout(ctx, target.DeadTimeout)
	defer cancel()

	addrs, err := p.resolver.LookupIPAddr(ctx, target.Replica.Host())
	if err != nil || len(addrs) == 0 {
		slog.Debug("tcp probe could not resolve host", "replica", target.Replica.Raw(), "error", err)
		return Result{}
	}

	address := net.JoinHostPort(addrs[0].String(), strconv.Itoa(int(target.Replica.Port())))
	slog.Debug("tcp probe will fire", "replica", target.Replica.Raw(), "address", address)

	conn, err := p.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		slog.Debug("tcp probe failed", "replica", target.Replica.Raw(), "error", err)
		return Result{}
	}
	_ = conn.Close()

	return Result{Reachable: true}
}
