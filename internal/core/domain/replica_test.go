package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplicaURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		scheme  Scheme
		host    string
		port    uint16
		wantErr bool
	}{
		{"tcp with port", "tcp://db.local:5432", SchemeTCP, "db.local", 5432, false},
		{"tcp ipv6", "tcp://[::1]:22", SchemeTCP, "::1", 22, false},
		{"tcp missing port", "tcp://db.local", "", "", 0, true},
		{"tcp empty port", "tcp://db.local:", "", "", 0, true},
		{"tcp missing host", "tcp://:5432", "", "", 0, true},
		{"tcp port out of range", "tcp://db.local:70000", "", "", 0, true},
		{"http", "http://x/", SchemeHTTP, "x", 0, false},
		{"https with path", "https://api.example.com/health?deep=1", SchemeHTTPS, "api.example.com", 0, false},
		{"icmp", "icmp://gateway.local", SchemeICMP, "gateway.local", 0, false},
		{"icmp missing host", "icmp://", "", "", 0, true},
		{"unsupported scheme", "udp://x:53", "", "", 0, true},
		{"garbage", "://", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseReplicaURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidReplica))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.raw, r.Raw())
			assert.Equal(t, tt.scheme, r.Scheme())
			assert.Equal(t, tt.host, r.Host())
			assert.Equal(t, tt.port, r.Port())
		})
	}
}

func TestParseReplicaURL_TCPWithoutPortAlwaysFails(t *testing.T) {
	for _, host := range []string{"a", "localhost", "10.0.0.1", "[::1]", "node-1.svc.cluster.local"} {
		_, err := ParseReplicaURL("tcp://" + host)
		assert.Error(t, err, host)
	}
}

func TestReplicaURL_Address(t *testing.T) {
	assert.Equal(t, "db.local:5432", MustParseReplicaURL("tcp://db.local:5432").Address())
	assert.Equal(t, "[::1]:22", MustParseReplicaURL("tcp://[::1]:22").Address())
}

func TestSyncEnvelope_Decode(t *testing.T) {
	payload := `{"data":{"date":1700000000,"metrics":{"local":{"retry":3,"delay_dead":5,"delay_sick":2}},
		"services":[{"id":"web","nodes":[
			{"id":"n1","replicas":["http://x/","tcp://db:5432"],"http":{"status":{"healthy_above":200,"healthy_below":300},"body":{"healthy_match":"OK"}}},
			{"id":"n2","replicas":null,"http":null}
		]}]}}`

	var env SyncEnvelope
	require.NoError(t, json.Unmarshal([]byte(payload), &env))

	m := env.Data
	require.NotNil(t, m.Date)
	assert.Equal(t, uint64(1700000000), *m.Date)
	require.Len(t, m.Services, 1)
	assert.Equal(t, 2, m.ReplicaCount())

	n1 := m.Services[0].Nodes[0]
	assert.Equal(t, "http://x/", n1.Replicas[0].Raw())
	assert.Equal(t, SchemeTCP, n1.Replicas[1].Scheme())
	above, below := n1.HTTP.HealthyWindow()
	assert.Equal(t, uint16(200), above)
	assert.Equal(t, uint16(300), below)
	assert.Equal(t, "OK", n1.HTTP.BodyMatch())

	assert.Nil(t, m.Services[0].Nodes[1].Replicas)

	th := m.Metrics.Thresholds()
	assert.Equal(t, 3, th.Retry)
	assert.Equal(t, 5*time.Second, th.DelayDead)
	require.NotNil(t, th.DelaySick)
	assert.Equal(t, 2*time.Second, *th.DelaySick)
}

func TestSyncEnvelope_DecodeRejectsBadReplica(t *testing.T) {
	payload := `{"data":{"date":null,"metrics":null,"services":[{"id":"web","nodes":[{"id":"n1","replicas":["tcp://db"]}]}]}}`

	var env SyncEnvelope
	err := json.Unmarshal([]byte(payload), &env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidReplica))
}

func TestThresholds_Defaults(t *testing.T) {
	var m *Metrics
	th := m.Thresholds()
	assert.Equal(t, DefaultRetry, th.Retry)
	assert.Equal(t, DefaultDelayDead, th.DelayDead)
	assert.Nil(t, th.DelaySick)

	var h *NodeHTTP
	above, below := h.HealthyWindow()
	assert.Equal(t, DefaultHealthyAbove, above)
	assert.Equal(t, DefaultHealthyBelow, below)
	assert.Equal(t, "", h.BodyMatch())
}

func TestThresholds_ZeroDelaysFallBack(t *testing.T) {
	retry := uint8(0)
	m := &Metrics{Local: &MetricsLocal{Retry: &retry, DelayDead: 0, DelaySick: 0}}
	th := m.Thresholds()
	assert.Equal(t, 0, th.Retry)
	assert.Equal(t, DefaultDelayDead, th.DelayDead)
	assert.Nil(t, th.DelaySick)

	m.Local.DelayDead = 3
	assert.Equal(t, 3*time.Second, m.Thresholds().DelayDead)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "healthy", StatusHealthy.String())
	assert.Equal(t, "sick", StatusSick.String())
	assert.Equal(t, "dead", StatusDead.String())
}
