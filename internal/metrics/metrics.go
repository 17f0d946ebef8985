package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbeResults tracks final classifications per service and status
	ProbeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localprobe_probe_results_total",
			Help: "Total number of replica classifications",
		},
		[]string{"service", "status"},
	)

	// ProbeAttempts tracks individual probe attempts per scheme, retries included
	ProbeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localprobe_probe_attempts_total",
			Help: "Total number of probe attempts",
		},
		[]string{"scheme"},
	)

	// ProbeLatency tracks time spent probing a replica, retries included
	ProbeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localprobe_probe_latency_seconds",
			Help:    "Replica probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	// SyncOutcomes tracks map synchronization results
	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localprobe_sync_outcomes_total",
			Help: "Total number of probe map synchronizations by outcome",
		},
		[]string{"outcome"},
	)

	// ReportFailures tracks reports dropped after retries
	ReportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localprobe_report_failures_total",
			Help: "Total number of reports that could not be delivered",
		},
		[]string{"service"},
	)

	// CycleDuration tracks the time from sync start to the last report
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "localprobe_cycle_duration_seconds",
			Help:    "Duration of a sync and dispatch cycle in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// MapReplicas tracks the replica count of the current probe map
	MapReplicas = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "localprobe_map_replicas",
			Help: "Number of replicas in the current probe map",
		},
	)

	// WorkerRestarts tracks abnormal worker exits handled by the supervisor
	WorkerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "localprobe_worker_restarts_total",
			Help: "Total number of cycle loop restarts after an abnormal exit",
		},
	)
)
