package domain

import "time"

const (
	DefaultRetry     = 2
	DefaultDelayDead = 20 * time.Second

	DefaultHealthyAbove uint16 = 200
	DefaultHealthyBelow uint16 = 400
)

// ProbeMap is the in-memory copy of the remote probe map. It is owned by a
// single cycle loop and only ever replaced wholesale by a successful sync.
type ProbeMap struct {
	Date     *uint64   `json:"date"`
	Metrics  *Metrics  `json:"metrics"`
	Services []Service `json:"services"`
}

// NewProbeMap returns an empty map with no sync cursor.
func NewProbeMap() *ProbeMap {
	return &ProbeMap{Services: []Service{}}
}

// ReplicaCount returns the number of replicas that will be polled.
func (m *ProbeMap) ReplicaCount() int {
	n := 0
	for _, s := range m.Services {
		for _, node := range s.Nodes {
			n += len(node.Replicas)
		}
	}
	return n
}

type Service struct {
	ID    string `json:"id"`
	Nodes []Node `json:"nodes"`
}

// Node groups replicas. A nil Replicas slice means the node has nothing to
// poll locally.
type Node struct {
	ID       string       `json:"id"`
	Replicas []ReplicaURL `json:"replicas"`
	HTTP     *NodeHTTP    `json:"http"`
}

type NodeHTTP struct {
	Status *NodeHTTPStatus `json:"status"`
	Body   *NodeHTTPBody   `json:"body"`
}

type NodeHTTPStatus struct {
	HealthyAbove *uint16 `json:"healthy_above"`
	HealthyBelow *uint16 `json:"healthy_below"`
}

type NodeHTTPBody struct {
	HealthyMatch *string `json:"healthy_match"`
}

// HealthyWindow returns the [above, below) status code window for the node.
func (n *NodeHTTP) HealthyWindow() (above, below uint16) {
	above, below = DefaultHealthyAbove, DefaultHealthyBelow
	if n == nil || n.Status == nil {
		return above, below
	}
	if n.Status.HealthyAbove != nil {
		above = *n.Status.HealthyAbove
	}
	if n.Status.HealthyBelow != nil {
		below = *n.Status.HealthyBelow
	}
	return above, below
}

// BodyMatch returns the configured body substring, or "" when none is set.
func (n *NodeHTTP) BodyMatch() string {
	if n == nil || n.Body == nil || n.Body.HealthyMatch == nil {
		return ""
	}
	return *n.Body.HealthyMatch
}

// Metrics carries the thresholds pushed by the remote service. Only the local
// subtree drives this agent.
type Metrics struct {
	Poll  *MetricsPoll  `json:"poll"`
	Push  *MetricsPush  `json:"push"`
	Local *MetricsLocal `json:"local"`
}

type MetricsPoll struct {
	Retry     uint8  `json:"retry"`
	DelayDead uint64 `json:"delay_dead"`
	DelaySick uint64 `json:"delay_sick"`
}

type MetricsPush struct {
	DelayDead          uint64  `json:"delay_dead"`
	SystemCPUSickAbove float32 `json:"system_cpu_sick_above"`
	SystemRAMSickAbove float32 `json:"system_ram_sick_above"`
}

type MetricsLocal struct {
	Retry     *uint8 `json:"retry"`
	DelayDead uint64 `json:"delay_dead"`
	DelaySick uint64 `json:"delay_sick"`
}

// Thresholds are the effective local probing parameters.
type Thresholds struct {
	Retry     int
	DelayDead time.Duration
	// DelaySick is nil when no sick escalation applies.
	DelaySick *time.Duration
}

// Thresholds resolves the local thresholds, falling back to defaults when
// the map carries no metrics.
func (m *Metrics) Thresholds() Thresholds {
	t := Thresholds{Retry: DefaultRetry, DelayDead: DefaultDelayDead}
	if m == nil || m.Local == nil {
		return t
	}

	if m.Local.Retry != nil {
		t.Retry = int(*m.Local.Retry)
	}
	// A zero dead timeout would fail every probe at once; keep the default.
	if m.Local.DelayDead > 0 {
		t.DelayDead = time.Duration(m.Local.DelayDead) * time.Second
	}
	// delay_sick of 0 would mark every reachable replica sick; treat it as unset.
	if m.Local.DelaySick > 0 {
		sick := time.Duration(m.Local.DelaySick) * time.Second
		t.DelaySick = &sick
	}
	return t
}

// SyncEnvelope is the payload of a probes/local response.
type SyncEnvelope struct {
	Data ProbeMap `json:"data"`
}
