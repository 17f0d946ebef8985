package domain

// Status is the health classification of a single replica poll.
type Status int

const (
	StatusHealthy Status = iota
	StatusSick
	StatusDead
)

// String returns the wire representation used in status reports.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusSick:
		return "sick"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
