package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/localprobe/internal/dispatch"
	"github.com/vietddude/localprobe/internal/metrics"
)

var (
	ErrWorkerPanic  = errors.New("probe worker panicked")
	ErrWorkerExited = errors.New("probe worker exited")
)

// Worker is the long-running unit a Supervisor keeps alive.
type Worker func(ctx context.Context) error

// Supervisor runs a worker in its own goroutine and restarts it after every
// abnormal exit, panics included.
type Supervisor struct {
	worker       Worker
	restartDelay time.Duration
	recorder     HealthRecorder
	wait         dispatch.WaitFunc
	log          *slog.Logger
}

// NewSupervisor creates a supervisor. recorder may be nil.
func NewSupervisor(worker Worker, restartDelay time.Duration, recorder HealthRecorder) *Supervisor {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Supervisor{
		worker:       worker,
		restartDelay: restartDelay,
		recorder:     recorder,
		wait:         dispatch.Sleep,
		log:          slog.Default().With("component", "supervisor"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.runWorker(ctx)
		if ctx.Err() != nil {
			s.log.Info("probe worker stopped")
			return nil
		}

		s.log.Error("probe worker exited abnormally, restarting", "error", err, "delay", s.restartDelay)
		metrics.WorkerRestarts.Inc()
		s.recorder.RecordRestart()

		if err := s.wait(ctx, s.restartDelay); err != nil {
			return nil
		}
	}
}

func (s *Supervisor) runWorker(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			}
		}()
		err := s.worker(ctx)
		if err == nil {
			err = ErrWorkerExited
		}
		done <- err
	}()
	return <-done
}
