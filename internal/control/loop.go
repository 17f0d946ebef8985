package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/localprobe/internal/core/domain"
	"github.com/vietddude/localprobe/internal/dispatch"
	"github.com/vietddude/localprobe/internal/health"
	"github.com/vietddude/localprobe/internal/metrics"
)

// Loop runs sync and dispatch cycles on a fixed interval.
type Loop struct {
	syncer     Syncer
	dispatcher Dispatcher
	recorder   HealthRecorder
	hold       time.Duration
	interval   time.Duration
	wait       dispatch.WaitFunc
	log        *slog.Logger
}

// NewLoop creates a loop that holds for hold before its first cycle and for
// interval between cycles. recorder may be nil.
func NewLoop(syncer Syncer, dispatcher Dispatcher, recorder HealthRecorder, hold, interval time.Duration) *Loop {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Loop{
		syncer:     syncer,
		dispatcher: dispatcher,
		recorder:   recorder,
		hold:       hold,
		interval:   interval,
		wait:       dispatch.Sleep,
		log:        slog.Default().With("component", "loop"),
	}
}

// Run cycles until ctx is cancelled. Every call starts from an empty map, so
// a restarted loop fetches the full map again.
func (l *Loop) Run(ctx context.Context) error {
	m := domain.NewProbeMap()

	if err := l.wait(ctx, l.hold); err != nil {
		return err
	}
	l.log.Debug("will run first probe cycle")

	for {
		l.Cycle(ctx, m)

		l.log.Info("done cycling probe, holding for next cycle", "interval", l.interval)
		if err := l.wait(ctx, l.interval); err != nil {
			return err
		}
	}
}

// Cycle syncs m and dispatches it. Dispatch runs whatever the sync outcome,
// probing the previous map when the sync failed.
func (l *Loop) Cycle(ctx context.Context, m *domain.ProbeMap) health.CycleReport {
	cycleID := uuid.NewString()
	log := l.log.With("cycle", cycleID)
	start := time.Now()

	outcome, err := l.syncer.Sync(ctx, m)
	metrics.SyncOutcomes.WithLabelValues(outcome.String()).Inc()
	if err != nil {
		log.Warn("probe cycle error in map sync, probing last known map", "outcome", outcome, "error", err)
	} else {
		log.Debug("acquired map for probe cycle", "outcome", outcome)
	}
	metrics.MapReplicas.Set(float64(m.ReplicaCount()))

	summary := l.dispatcher.Dispatch(ctx, m, l.interval)

	report := health.CycleReport{
		CycleID:        cycleID,
		StartedAt:      start,
		FinishedAt:     time.Now(),
		SyncOutcome:    outcome.String(),
		Services:       len(m.Services),
		Replicas:       m.ReplicaCount(),
		Probed:         summary.Probed,
		ReportFailures: summary.ReportFailures,
		Statuses:       make(map[string]int, len(summary.Statuses)),
	}
	for status, n := range summary.Statuses {
		report.Statuses[status.String()] = n
	}

	metrics.CycleDuration.Observe(report.FinishedAt.Sub(start).Seconds())
	l.recorder.RecordCycle(report)
	return report
}
