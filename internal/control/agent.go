package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/localprobe/internal/core/config"
	"github.com/vietddude/localprobe/internal/dispatch"
	"github.com/vietddude/localprobe/internal/health"
	"github.com/vietddude/localprobe/internal/infra/remote"
	"github.com/vietddude/localprobe/internal/mapsync"
	"github.com/vietddude/localprobe/internal/probe"
	"github.com/vietddude/localprobe/internal/report"
	"github.com/vietddude/localprobe/internal/version"
)

// Agent is the main application struct that wires the probe pipeline and
// manages its lifecycle.
type Agent struct {
	cfg          *config.AppConfig
	supervisor   *Supervisor
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// NewAgent creates a new Agent with all dependencies initialized.
func NewAgent(cfg *config.AppConfig) (*Agent, error) {
	// 1. Remote status service
	client, err := remote.NewClient(cfg.Report.Endpoint, cfg.Report.Token, version.UserAgent())
	if err != nil {
		return nil, fmt.Errorf("failed to init remote client: %w", err)
	}

	// 2. Probe pipeline
	table := probe.NewTable(probe.Options{
		UserAgent:      version.UserAgent(),
		ICMPPrivileged: cfg.Probe.ICMPPrivileged,
	})
	dispatcher := dispatch.New(table, report.New(client))

	// 3. Health
	healthMon := health.NewMonitor(cfg.Probe.Interval)
	var healthServer *health.Server
	if cfg.Server.Port > 0 {
		healthServer = health.NewServer(healthMon, cfg.Server.Port)
	}

	// 4. Cycle loop under supervision
	loop := NewLoop(mapsync.New(client), dispatcher, healthMon, cfg.Probe.Hold, cfg.Probe.Interval)
	supervisor := NewSupervisor(loop.Run, cfg.Probe.RestartDelay, healthMon)

	return &Agent{
		cfg:          cfg,
		supervisor:   supervisor,
		healthMon:    healthMon,
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

// Run starts the status server, if enabled, and blocks in the supervisor
// until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("Health server failed", "error", err)
			}
		}()
		a.log.Info("Health server listening", "port", a.cfg.Server.Port)
	}

	a.log.Info("Starting probe agent",
		"endpoint", a.cfg.Report.Endpoint,
		"interval", a.cfg.Probe.Interval,
		"icmp_privileged", a.cfg.Probe.ICMPPrivileged,
	)
	err := a.supervisor.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := a.Stop(stopCtx); stopErr != nil {
		a.log.Warn("Failed to stop health server", "error", stopErr)
	}
	return err
}

// Stop stops the status server.
func (a *Agent) Stop(ctx context.Context) error {
	a.log.Info("Stopping probe agent...")
	if a.healthServer == nil {
		return nil
	}
	return a.healthServer.Stop(ctx)
}

// Health returns the monitor backing the status server.
func (a *Agent) Health() *health.Monitor {
	return a.healthMon
}
