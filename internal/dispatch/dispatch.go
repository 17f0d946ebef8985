// Package dispatch walks the probe map, probes every replica with retry and
// reports each classification.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/localprobe/internal/core/domain"
	"github.com/vietddude/localprobe/internal/metrics"
	"github.com/vietddude/localprobe/internal/probe"
)

// RetryDelay separates attempts on a dead replica.
const RetryDelay = 200 * time.Millisecond

// Checker probes a target once and classifies it. probe.Table satisfies it.
type Checker interface {
	Check(ctx context.Context, target probe.Target, sick *time.Duration) (domain.Status, error)
}

// Reporter delivers a classification. *report.Reporter satisfies it.
type Reporter interface {
	Report(ctx context.Context, service, node string, replica domain.ReplicaURL, status domain.Status, interval time.Duration) error
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Summary counts what a dispatch pass did.
type Summary struct {
	Probed         int
	ReportFailures int
	Statuses       map[domain.Status]int
}

type Dispatcher struct {
	checker  Checker
	reporter Reporter
	wait     WaitFunc
	logger   *slog.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithWait replaces the delay between attempts.
func WithWait(wait WaitFunc) Option {
	return func(d *Dispatcher) {
		d.wait = wait
	}
}

func New(checker Checker, reporter Reporter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		checker:  checker,
		reporter: reporter,
		wait:     Sleep,
		logger:   slog.Default().With("component", "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch probes and reports every replica of m in map order. Nodes without
// replicas are skipped. A failed report never stops the pass; a cancelled ctx
// does.
func (d *Dispatcher) Dispatch(ctx context.Context, m *domain.ProbeMap, interval time.Duration) Summary {
	thresholds := m.Metrics.Thresholds()
	summary := Summary{Statuses: make(map[domain.Status]int)}

	d.logger.Debug("will dispatch polls", "services", len(m.Services))

	for _, service := range m.Services {
		for _, node := range service.Nodes {
			if node.Replicas == nil {
				continue
			}
			for _, replica := range node.Replicas {
				if ctx.Err() != nil {
					d.logger.Warn("dispatch interrupted", "probed", summary.Probed, "error", ctx.Err())
					return summary
				}

				target := probe.Target{Replica: replica, HTTP: node.HTTP, DeadTimeout: thresholds.DelayDead}
				status := d.Probe(ctx, service.ID, node.ID, target, thresholds)
				summary.Probed++
				summary.Statuses[status]++
				metrics.ProbeResults.WithLabelValues(service.ID, status.String()).Inc()

				if err := d.reporter.Report(ctx, service.ID, node.ID, replica, status, interval); err != nil {
					summary.ReportFailures++
					metrics.ReportFailures.WithLabelValues(service.ID).Inc()
					d.logger.Warn("failed reporting replica status",
						"service", service.ID, "node", node.ID, "replica", replica.Raw(), "status", status, "error", err)
					continue
				}
				d.logger.Info("reported replica status",
					"service", service.ID, "node", node.ID, "replica", replica.Raw(), "status", status)
			}
		}
	}

	d.logger.Info("dispatched polls", "probed", summary.Probed, "report_failures", summary.ReportFailures)
	return summary
}

// Probe checks target up to 1+thresholds.Retry times. Only Dead is retried;
// the last Dead is accepted.
func (d *Dispatcher) Probe(ctx context.Context, serviceID, nodeID string, target probe.Target, thresholds domain.Thresholds) domain.Status {
	scheme := string(target.Replica.Scheme())
	start := time.Now()
	defer func() {
		metrics.ProbeLatency.WithLabelValues(scheme).Observe(time.Since(start).Seconds())
	}()

	status := domain.StatusDead
	for attempt := 0; attempt <= thresholds.Retry; attempt++ {
		d.logger.Debug("running replica scan attempt",
			"attempt", attempt, "service", serviceID, "node", nodeID, "replica", target.Replica.Raw())
		metrics.ProbeAttempts.WithLabelValues(scheme).Inc()

		var err error
		status, err = d.checker.Check(ctx, target, thresholds.DelaySick)
		if err != nil {
			d.logger.Error("replica cannot be probed", "replica", target.Replica.Raw(), "error", err)
			return domain.StatusDead
		}
		if status != domain.StatusDead || attempt == thresholds.Retry {
			return status
		}

		d.logger.Warn("replica scan attempt failed, will retry after delay",
			"attempt", attempt, "service", serviceID, "node", nodeID, "replica", target.Replica.Raw())
		if err := d.wait(ctx, RetryDelay); err != nil {
			return domain.StatusDead
		}
	}
	return status
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
