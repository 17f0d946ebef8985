// Package health tracks cycle loop progress and serves it over HTTP.
package health

import "time"

// SystemStatus represents the overall health state of the agent.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// CycleReport summarises one sync and dispatch cycle.
type CycleReport struct {
	CycleID        string         `json:"cycle_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	SyncOutcome    string         `json:"sync_outcome"`
	Services       int            `json:"services"`
	Replicas       int            `json:"replicas"`
	Probed         int            `json:"probed"`
	ReportFailures int            `json:"report_failures"`
	Statuses       map[string]int `json:"statuses"`
}

// HealthReport contains the full agent health report.
type HealthReport struct {
	SystemStatus   SystemStatus `json:"system_status"`
	Reason         string       `json:"reason,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	Interval       string       `json:"interval"`
	WorkerRestarts int          `json:"worker_restarts"`
	LastCycle      *CycleReport `json:"last_cycle"`
}
