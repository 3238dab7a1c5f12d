// =============================================================================
// FILE: internal/cli/app.go
// PURPOSE: Builds a fully wired Orchestrator from an AppConfig: every
//          component from internal/hdm assembled the way main() wires a
//          service in the teacher's cmd/ entrypoint.
// =============================================================================

package cli

import (
	"context"
	"fmt"
	"time"

	"harmonydl/internal/config"
	"harmonydl/internal/hdm/aggregator"
	"harmonydl/internal/hdm/completion"
	"harmonydl/internal/hdm/dedupe"
	"harmonydl/internal/hdm/idempotency"
	"harmonydl/internal/hdm/orchestrator"
	"harmonydl/internal/hdm/pipeline"
	"harmonydl/internal/hdm/recovery"
	"harmonydl/internal/hdm/remote"
	"harmonydl/internal/hdm/move"
	"harmonydl/internal/hdm/sidecar"
	"harmonydl/internal/hdm/tagging"
	"harmonydl/internal/logging"
	"harmonydl/internal/metrics"
)

// app bundles every long-lived component the CLI commands need, plus the
// resources Close/Shutdown must release.
type app struct {
	cfg          *config.AppConfig
	orchestrator *orchestrator.Orchestrator
	idempotency  idempotency.Store
	metrics      *metrics.Registry
}

// buildApp loads configuration, wires every internal/hdm component, runs
// crash recovery, and starts the orchestrator's worker pool.
func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	config.SetGlobal(cfg)

	stateDir := cfg.StateDirOrDefault()

	idemStore, err := idempotency.NewSQLiteStore(stateDir + "/idempotency.db")
	if err != nil {
		return nil, fmt.Errorf("failed to open idempotency store: %w", err)
	}

	dedupeMgr, err := dedupe.NewManager(stateDir, cfg.MusicDir, cfg.MoveTemplate)
	if err != nil {
		idemStore.Close()
		return nil, fmt.Errorf("failed to open dedupe manager: %w", err)
	}

	sidecarStore := sidecar.NewStore(stateDir)
	bus := completion.NewBus()
	pollInterval := time.Duration(cfg.PollIntervalSec * float64(time.Second))
	sizeStableWindow := time.Duration(cfg.SizeStableSeconds) * time.Second
	monitor := completion.NewMonitor(bus, cfg.DownloadsDir, pollInterval, sizeStableWindow)

	rec := &recovery.Recovery{
		Sidecars:    sidecarStore,
		Dedupe:      dedupeMgr,
		Monitor:     monitor,
		Bus:         bus,
		Concurrency: cfg.WorkerConcurrency,
	}
	if err := rec.Scan(context.Background()); err != nil {
		logging.CLI().Warn("crash recovery scan failed", "error", err)
	}

	remoteClient := remote.NewSlskdClient(remote.SlskdClientConfig{
		BaseURL:       cfg.Remote.BaseURL,
		APIKey:        cfg.Remote.APIKey,
		TimeoutMS:     cfg.Remote.TimeoutMS,
		MaxAttempts:   cfg.Remote.MaxAttempts,
		BackoffBaseMS: cfg.Remote.BackoffBaseMS,
	})

	pl := &pipeline.DefaultPipeline{
		Dedupe:       dedupeMgr,
		Remote:       remoteClient,
		Bus:          bus,
		Monitor:      monitor,
		Tagger:       tagging.NewID3Tagger(),
		Mover:        move.NewMover(),
		Sidecars:     sidecarStore,
		PollInterval: cfg.PollIntervalSec,
	}

	reg := metrics.Default()
	agg := aggregator.New(reg)
	orch := orchestrator.New(cfg, idemStore, agg, pl)
	orch.Start()

	return &app{cfg: cfg, orchestrator: orch, idempotency: idemStore, metrics: reg}, nil
}

// shutdown stops the orchestrator and releases the idempotency store.
func (a *app) shutdown() {
	a.orchestrator.Shutdown()
	if err := a.idempotency.Close(); err != nil {
		logging.CLI().Warn("failed to close idempotency store", "error", err)
	}
}
