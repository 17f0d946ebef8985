package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Scheme identifies the transport used to probe a replica.
type Scheme string

const (
	SchemeICMP  Scheme = "icmp"
	SchemeTCP   Scheme = "tcp"
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

var ErrInvalidReplica = errors.New("invalid replica url")

// ReplicaURL is a parsed replica address. The raw string is kept verbatim so
// reports identify the replica exactly as the remote map named it.
type ReplicaURL struct {
	raw    string
	scheme Scheme
	host   string
	port   uint16
	url    string
}

// ParseReplicaURL parses icmp://host, tcp://host:port, http://... and https://... URLs.
func ParseReplicaURL(raw string) (ReplicaURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ReplicaURL{}, fmt.Errorf("%w: %q: %v", ErrInvalidReplica, raw, err)
	}

	switch Scheme(u.Scheme) {
	case SchemeICMP:
		if u.Hostname() == "" {
			return ReplicaURL{}, fmt.Errorf("%w: %q: missing host", ErrInvalidReplica, raw)
		}
		return ReplicaURL{raw: raw, scheme: SchemeICMP, host: u.Hostname()}, nil

	case SchemeTCP:
		if u.Hostname() == "" || u.Port() == "" {
			return ReplicaURL{}, fmt.Errorf("%w: %q: tcp requires host and port", ErrInvalidReplica, raw)
		}
		port, err := strconv.ParseUint(u.Port(), 10, 16)
		if err != nil || port == 0 {
			return ReplicaURL{}, fmt.Errorf("%w: %q: bad port", ErrInvalidReplica, raw)
		}
		return ReplicaURL{raw: raw, scheme: SchemeTCP, host: u.Hostname(), port: uint16(port)}, nil

	case SchemeHTTP, SchemeHTTPS:
		if u.Host == "" {
			return ReplicaURL{}, fmt.Errorf("%w: %q: missing host", ErrInvalidReplica, raw)
		}
		return ReplicaURL{raw: raw, scheme: Scheme(u.Scheme), host: u.Hostname(), url: u.String()}, nil

	default:
		return ReplicaURL{}, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidReplica, raw, u.Scheme)
	}
}

// MustParseReplicaURL is ParseReplicaURL for literals known to be valid.
func MustParseReplicaURL(raw string) ReplicaURL {
	r, err := ParseReplicaURL(raw)
	if err != nil {
		panic(err)
	}
	return r
}

func (r ReplicaURL) Raw() string    { return r.raw }
func (r ReplicaURL) Scheme() Scheme { return r.scheme }
func (r ReplicaURL) Host() string   { return r.host }

// Port is only set for tcp replicas.
func (r ReplicaURL) Port() uint16 { return r.port }

// URL is the normalised request URL of http and https replicas.
func (r ReplicaURL) URL() string { return r.url }

// Address returns host:port for tcp replicas.
func (r ReplicaURL) Address() string {
	return net.JoinHostPort(r.host, strconv.Itoa(int(r.port)))
}

func (r ReplicaURL) String() string { return r.raw }

// UnmarshalJSON parses the replica while the probe map is being decoded, so a
// malformed replica rejects the whole payload.
func (r *ReplicaURL) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: expected string", ErrInvalidReplica)
	}
	parsed, err := ParseReplicaURL(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalJSON writes the raw replica string.
func (r ReplicaURL) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.raw)
}
