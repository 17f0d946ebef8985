package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestMonitor() (*Monitor, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newMonitor(time.Minute, clock.now), clock
}

func TestMonitor_Healthy(t *testing.T) {
	monitor, clock := newTestMonitor()
	clock.t = clock.t.Add(90 * time.Second)
	monitor.RecordCycle(CycleReport{CycleID: "c1", FinishedAt: clock.t, SyncOutcome: "updated", Probed: 3})

	report := monitor.CheckHealth()
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s (%s)", report.SystemStatus, report.Reason)
	}
	if report.LastCycle == nil || report.LastCycle.Probed != 3 {
		t.Errorf("expected last cycle with 3 probes, got %+v", report.LastCycle)
	}
}

func TestMonitor_HealthyBeforeFirstCycle(t *testing.T) {
	monitor, clock := newTestMonitor()
	clock.t = clock.t.Add(time.Minute)

	if status := monitor.CheckHealth().SystemStatus; status != StatusHealthy {
		t.Errorf("expected healthy, got %s", status)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	for _, outcome := range []string{"unauthorized", "exhausted", "invalid_data"} {
		monitor, clock := newTestMonitor()
		monitor.RecordCycle(CycleReport{FinishedAt: clock.t, SyncOutcome: outcome})

		if status := monitor.CheckHealth().SystemStatus; status != StatusDegraded {
			t.Errorf("%s: expected degraded, got %s", outcome, status)
		}
	}
}

func TestMonitor_Critical(t *testing.T) {
	monitor, clock := newTestMonitor()
	monitor.RecordCycle(CycleReport{FinishedAt: clock.t, SyncOutcome: "not_modified"})
	clock.t = clock.t.Add(4 * time.Minute)

	report := monitor.CheckHealth()
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
}

func TestMonitor_Restarts(t *testing.T) {
	monitor, _ := newTestMonitor()
	monitor.RecordRestart()
	monitor.RecordRestart()

	if got := monitor.CheckHealth().WorkerRestarts; got != 2 {
		t.Errorf("expected 2 restarts, got %d", got)
	}
}

func TestServer_Endpoints(t *testing.T) {
	monitor, clock := newTestMonitor()
	srv := httptest.NewServer(NewServer(monitor, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected 200 healthy, got %d %v", resp.StatusCode, body)
	}

	clock.t = clock.t.Add(time.Hour)
	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when critical, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatal(err)
	}
	var detailed HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&detailed); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if detailed.SystemStatus != StatusCritical || detailed.Interval != "1m0s" {
		t.Errorf("unexpected detailed report %+v", detailed)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected metrics 200, got %d", resp.StatusCode)
	}
}
