package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sync/errgroup"
)

// MaxICMPTimeout caps the wait for a single echo reply.
const MaxICMPTimeout = time.Second

const (
	protocolICMP     = 1
	protocolICMPv6   = 58
	icmpPayload      = "localprobe"
	icmpReadBufBytes = 1500
)

var errEchoMismatch = errors.New("icmp reply does not match request")

// EchoFunc sends one echo request to ip and returns the round-trip time.
type EchoFunc func(ctx context.Context, ip net.IP, timeout time.Duration) (time.Duration, error)

// ICMPProber pings every address a host resolves to. The host is reachable
// only when all of them answer.
type ICMPProber struct {
	resolver Resolver
	echo     EchoFunc
}

// NewICMPProber opens raw sockets when privileged is set and ICMP datagram
// sockets otherwise.
func NewICMPProber(resolver Resolver, privileged bool) *ICMPProber {
	pinger := &pinger{privileged: privileged, id: os.Getpid() & 0xffff}
	return &ICMPProber{resolver: resolver, echo: pinger.echo}
}

// NewICMPProberWithEcho replaces the socket layer, mainly for tests.
func NewICMPProberWithEcho(resolver Resolver, echo EchoFunc) *ICMPProber {
	return &ICMPProber{resolver: resolver, echo: echo}
}

// Probe reports the largest round-trip time among all addresses.
func (p *ICMPProber) Probe(ctx context.Context, target Target) Result {
	host := target.Replica.Host()
	timeout := min(MaxICMPTimeout, target.DeadTimeout)

	addrs, err := p.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		slog.Debug("icmp probe could not resolve host", "host", host, "error", err)
		return Result{}
	}

	rtts := make([]time.Duration, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		g.Go(func() error {
			rtt, err := p.echo(gctx, addr.IP, timeout)
			if err != nil {
				return fmt.Errorf("echo %s: %w", addr.IP, err)
			}
			rtts[i] = rtt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Debug("icmp probe failed", "host", host, "error", err)
		return Result{}
	}

	var worst time.Duration
	for _, rtt := range rtts {
		worst = max(worst, rtt)
	}
	slog.Debug("icmp probe succeeded", "host", host, "addresses", len(addrs), "rtt", worst)

	return Result{Reachable: true, Latency: worst, Measured: true}
}

type pinger struct {
	privileged bool
	id         int
	seq        atomic.Uint32
}

func (p *pinger) echo(ctx context.Context, ip net.IP, timeout time.Duration) (time.Duration, error) {
	v4 := ip.To4() != nil

	network, listen := "udp6", "::"
	var reqType, replyType icmp.Type = ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
	proto := protocolICMPv6
	if v4 {
		network, listen = "udp4", "0.0.0.0"
		reqType, replyType = ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
		proto = protocolICMP
	}
	if p.privileged {
		network = "ip6:ipv6-icmp"
		if v4 {
			network = "ip4:icmp"
		}
	}

	conn, err := icmp.ListenPacket(network, listen)
	if err != nil {
		return 0, fmt.Errorf("listen %s: %w", network, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if p.privileged {
		dst = &net.IPAddr{IP: ip}
	}

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: reqType,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: []byte(icmpPayload)},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshal echo: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return 0, fmt.Errorf("write echo: %w", err)
	}

	buf := make([]byte, icmpReadBufBytes)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, fmt.Errorf("read reply: %w", err)
		}
		if err := p.matchReply(buf[:n], peer, ip, proto, replyType, seq); err != nil {
			continue
		}
		return time.Since(start), nil
	}
}

func (p *pinger) matchReply(b []byte, peer net.Addr, ip net.IP, proto int, replyType icmp.Type, seq int) error {
	reply, err := icmp.ParseMessage(proto, b)
	if err != nil {
		return err
	}
	if reply.Type != replyType {
		return errEchoMismatch
	}
	echo, ok := reply.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return errEchoMismatch
	}
	// Datagram sockets rewrite the identifier, so it only binds raw sockets.
	if p.privileged && echo.ID != p.id {
		return errEchoMismatch
	}
	if !peerIP(peer).Equal(ip) {
		return errEchoMismatch
	}
	return nil
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}
