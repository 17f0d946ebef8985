package health

import (
	"sync"
	"time"
)

// staleCycles is how many intervals may pass without a finished cycle before
// the agent is reported critical.
const staleCycles = 3

// Monitor aggregates cycle loop state for the status server. It is written by
// the worker and read by HTTP handlers.
type Monitor struct {
	interval  time.Duration
	startedAt time.Time
	now       func() time.Time

	mu       sync.RWMutex
	last     *CycleReport
	restarts int
}

// NewMonitor creates a monitor for a loop cycling every interval.
func NewMonitor(interval time.Duration) *Monitor {
	return newMonitor(interval, time.Now)
}

func newMonitor(interval time.Duration, now func() time.Time) *Monitor {
	return &Monitor{interval: interval, startedAt: now(), now: now}
}

// RecordCycle stores the latest finished cycle.
func (m *Monitor) RecordCycle(report CycleReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &report
}

// RecordRestart counts a supervisor restart.
func (m *Monitor) RecordRestart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
}

// CheckHealth evaluates the current state. The agent is critical when no
// cycle finished for several intervals and degraded when the last sync could
// not reach a usable map.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := HealthReport{
		SystemStatus:   StatusHealthy,
		StartedAt:      m.startedAt,
		Interval:       m.interval.String(),
		WorkerRestarts: m.restarts,
	}

	lastProgress := m.startedAt
	if m.last != nil {
		last := *m.last
		report.LastCycle = &last
		lastProgress = last.FinishedAt
	}

	if m.now().Sub(lastProgress) > staleCycles*m.interval {
		report.SystemStatus = StatusCritical
		report.Reason = "no cycle finished recently"
		return report
	}

	if m.last != nil {
		switch m.last.SyncOutcome {
		case "unauthorized":
			report.SystemStatus = StatusDegraded
			report.Reason = "reporter token rejected"
		case "exhausted", "invalid_data":
			report.SystemStatus = StatusDegraded
			report.Reason = "probe map could not be synced"
		}
	}
	return report
}
