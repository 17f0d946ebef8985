package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/localprobe/internal/core/domain"
	"github.com/vietddude/localprobe/internal/infra/remote"
	"github.com/vietddude/localprobe/internal/probe"
	"github.com/vietddude/localprobe/internal/report"
)

type scriptedChecker struct {
	mu       sync.Mutex
	statuses []domain.Status
	calls    int
	sick     *time.Duration
	timeouts []time.Duration
}

func (c *scriptedChecker) Check(_ context.Context, target probe.Target, sick *time.Duration) (domain.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sick = sick
	c.timeouts = append(c.timeouts, target.DeadTimeout)
	s := c.statuses[min(c.calls, len(c.statuses)-1)]
	c.calls++
	return s, nil
}

type reportCall struct {
	service, node, replica string
	status                 domain.Status
	interval               time.Duration
}

type recordingReporter struct {
	mu    sync.Mutex
	calls []reportCall
	err   error
}

func (r *recordingReporter) Report(_ context.Context, service, node string, replica domain.ReplicaURL, status domain.Status, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reportCall{service, node, replica.Raw(), status, interval})
	return r.err
}

type waitCounter struct {
	waits []time.Duration
}

func (w *waitCounter) wait(_ context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return nil
}

func singleReplicaMap(replica string, metrics *domain.Metrics) *domain.ProbeMap {
	return &domain.ProbeMap{
		Metrics: metrics,
		Services: []domain.Service{{
			ID:    "web",
			Nodes: []domain.Node{{ID: "n1", Replicas: []domain.ReplicaURL{domain.MustParseReplicaURL(replica)}}},
		}},
	}
}

func localMetrics(retry uint8, dead, sick uint64) *domain.Metrics {
	return &domain.Metrics{Local: &domain.MetricsLocal{Retry: &retry, DelayDead: dead, DelaySick: sick}}
}

func TestDispatcher_RetryCounts(t *testing.T) {
	D, S, H := domain.StatusDead, domain.StatusSick, domain.StatusHealthy
	tests := []struct {
		name      string
		metrics   *domain.Metrics
		statuses  []domain.Status
		wantCalls int
		wantWaits int
		want      domain.Status
	}{
		{"always dead default retry", nil, []domain.Status{D}, 3, 2, D},
		{"always dead retry 0", localMetrics(0, 20, 0), []domain.Status{D}, 1, 0, D},
		{"always dead retry 4", localMetrics(4, 20, 0), []domain.Status{D}, 5, 4, D},
		{"dead then healthy", nil, []domain.Status{D, H}, 2, 1, H},
		{"sick is never retried", nil, []domain.Status{S}, 1, 0, S},
		{"healthy first try", nil, []domain.Status{H}, 1, 0, H},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &scriptedChecker{statuses: tt.statuses}
			reporter := &recordingReporter{}
			waits := &waitCounter{}

			d := New(checker, reporter, WithWait(waits.wait))
			summary := d.Dispatch(context.Background(), singleReplicaMap("tcp://db:5432", tt.metrics), 120*time.Second)

			assert.Equal(t, tt.wantCalls, checker.calls)
			assert.Len(t, waits.waits, tt.wantWaits)
			for _, w := range waits.waits {
				assert.Equal(t, RetryDelay, w)
			}
			require.Len(t, reporter.calls, 1)
			assert.Equal(t, tt.want, reporter.calls[0].status)
			assert.Equal(t, 1, summary.Probed)
			assert.Equal(t, 1, summary.Statuses[tt.want])
		})
	}
}

func TestDispatcher_PassesThresholds(t *testing.T) {
	checker := &scriptedChecker{statuses: []domain.Status{domain.StatusHealthy}}
	d := New(checker, &recordingReporter{}, WithWait((&waitCounter{}).wait))

	d.Dispatch(context.Background(), singleReplicaMap("tcp://db:5432", localMetrics(1, 7, 3)), time.Minute)
	require.NotNil(t, checker.sick)
	assert.Equal(t, 3*time.Second, *checker.sick)
	assert.Equal(t, []time.Duration{7 * time.Second}, checker.timeouts)

	checker = &scriptedChecker{statuses: []domain.Status{domain.StatusHealthy}}
	d = New(checker, &recordingReporter{}, WithWait((&waitCounter{}).wait))
	d.Dispatch(context.Background(), singleReplicaMap("tcp://db:5432", nil), time.Minute)
	assert.Nil(t, checker.sick)
	assert.Equal(t, []time.Duration{domain.DefaultDelayDead}, checker.timeouts)
}

func TestDispatcher_WalksMapInOrderAndSkipsEmptyNodes(t *testing.T) {
	m := &domain.ProbeMap{Services: []domain.Service{
		{ID: "api", Nodes: []domain.Node{
			{ID: "a", Replicas: []domain.ReplicaURL{domain.MustParseReplicaURL("tcp://a1:1"), domain.MustParseReplicaURL("tcp://a2:1")}},
			{ID: "push-only"},
		}},
		{ID: "db", Nodes: []domain.Node{
			{ID: "b", Replicas: []domain.ReplicaURL{domain.MustParseReplicaURL("icmp://b1")}},
		}},
	}}

	reporter := &recordingReporter{}
	d := New(&scriptedChecker{statuses: []domain.Status{domain.StatusHealthy}}, reporter)
	summary := d.Dispatch(context.Background(), m, 120*time.Second)

	assert.Equal(t, 3, summary.Probed)
	require.Len(t, reporter.calls, 3)
	assert.Equal(t, reportCall{"api", "a", "tcp://a1:1", domain.StatusHealthy, 120 * time.Second}, reporter.calls[0])
	assert.Equal(t, reportCall{"api", "a", "tcp://a2:1", domain.StatusHealthy, 120 * time.Second}, reporter.calls[1])
	assert.Equal(t, reportCall{"db", "b", "icmp://b1", domain.StatusHealthy, 120 * time.Second}, reporter.calls[2])
}

func TestDispatcher_ReportFailureDoesNotStopPass(t *testing.T) {
	m := singleReplicaMap("tcp://db:5432", nil)
	m.Services = append(m.Services, domain.Service{ID: "cache", Nodes: []domain.Node{
		{ID: "n2", Replicas: []domain.ReplicaURL{domain.MustParseReplicaURL("tcp://redis:6379")}},
	}})

	reporter := &recordingReporter{err: errors.New("status service down")}
	d := New(&scriptedChecker{statuses: []domain.Status{domain.StatusHealthy}}, reporter)
	summary := d.Dispatch(context.Background(), m, time.Minute)

	assert.Len(t, reporter.calls, 2)
	assert.Equal(t, 2, summary.ReportFailures)
}

func TestDispatcher_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reporter := &recordingReporter{}
	summary := New(&scriptedChecker{statuses: []domain.Status{domain.StatusHealthy}}, reporter).
		Dispatch(ctx, singleReplicaMap("tcp://db:5432", nil), time.Minute)

	assert.Zero(t, summary.Probed)
	assert.Empty(t, reporter.calls)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

type okTransport struct{}

func (okTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func TestDispatch_EndToEndHealthyHTTPReplica(t *testing.T) {
	var (
		mu       sync.Mutex
		paths    []string
		payloads []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := remote.NewClient(srv.URL, "tok", "localprobe/test")
	require.NoError(t, err)
	reporter := report.New(client, report.WithRetry(report.DefaultRetries, time.Millisecond))

	httpProber := probe.NewHTTPProber(&http.Client{Transport: okTransport{}}, "localprobe/test")
	table := probe.Table{domain.SchemeHTTP: httpProber}

	d := New(table, reporter)
	summary := d.Dispatch(context.Background(), singleReplicaMap("http://x/", nil), 120*time.Second)

	assert.Equal(t, 1, summary.Probed)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	assert.Equal(t, "/report/web/n1", paths[0])
	assert.Equal(t, map[string]any{
		"replica_id": "http://x/",
		"health":     "healthy",
		"interval":   float64(120),
	}, payloads[0])
}
