package control

import (
	"context"
	"time"

	"github.com/vietddude/localprobe/internal/core/domain"
	"github.com/vietddude/localprobe/internal/dispatch"
	"github.com/vietddude/localprobe/internal/health"
	"github.com/vietddude/localprobe/internal/mapsync"
)

// Syncer refreshes the probe map from the status service.
type Syncer interface {
	Sync(ctx context.Context, m *domain.ProbeMap) (mapsync.Outcome, error)
}

// Dispatcher probes and reports every replica of the map.
type Dispatcher interface {
	Dispatch(ctx context.Context, m *domain.ProbeMap, interval time.Duration) dispatch.Summary
}

// HealthRecorder receives cycle summaries and restart notices.
type HealthRecorder interface {
	RecordCycle(report health.CycleReport)
	RecordRestart()
}

type noopRecorder struct{}

func (noopRecorder) RecordCycle(health.CycleReport) {}
func (noopRecorder) RecordRestart()                 {}
