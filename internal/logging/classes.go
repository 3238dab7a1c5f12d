// =============================================================================
// FILE: internal/logging/classes.go
// PURPOSE: Log class definitions and named logger registry. Provides
//          pre-configured loggers for each subsystem (scheduler, pipeline,
//          remote, db, etc.) with consistent attribute tagging.
// =============================================================================

package logging

import (
	"log/slog"
	"sync"
)

// ---------------------------------------------------------------------------
// Named logger registry
// ---------------------------------------------------------------------------

var (
	// namedLoggers caches subsystem loggers keyed by component name.
	namedLoggers sync.Map
)

// Named returns (or creates) a logger tagged with the given component name.
// The logger is cached so subsequent calls with the same name are cheap.
//
// Parameters:
//   - component: Subsystem identifier (e.g. "scheduler", "pipeline", "remote").
//
// Returns:
//   - A *slog.Logger with the "component" attribute set.
func Named(component string) *slog.Logger {
	if cached, ok := namedLoggers.Load(component); ok {
		return cached.(*slog.Logger)
	}

	l := Logger().With(slog.String("component", component))
	namedLoggers.Store(component, l)
	return l
}

// ---------------------------------------------------------------------------
// Well-known component loggers
// ---------------------------------------------------------------------------

// Pre-defined component names for consistent use across the codebase.
const (
	ComponentScheduler    = "scheduler"
	ComponentWorker       = "worker"
	ComponentPipeline     = "pipeline"
	ComponentAggregator   = "aggregator"
	ComponentDedupe       = "dedupe"
	ComponentRemote       = "remote"
	ComponentDB           = "database"
	ComponentRecovery     = "recovery"
	ComponentCLI          = "cli"
	ComponentCompletion   = "completion"
	ComponentTagging      = "tagging"
	ComponentMove         = "move"
	ComponentOrchestrator = "orchestrator"
	ComponentConfig       = "config"
)

// Convenience functions that return pre-tagged loggers for each subsystem.

// Scheduler returns the scheduler subsystem logger.
func Scheduler() *slog.Logger { return Named(ComponentScheduler) }

// Worker returns the worker pool subsystem logger.
func Worker() *slog.Logger { return Named(ComponentWorker) }

// Pipeline returns the per-item pipeline subsystem logger.
func Pipeline() *slog.Logger { return Named(ComponentPipeline) }

// Aggregator returns the batch aggregator subsystem logger.
func Aggregator() *slog.Logger { return Named(ComponentAggregator) }

// Dedupe returns the dedupe manager subsystem logger.
func Dedupe() *slog.Logger { return Named(ComponentDedupe) }

// Remote returns the remote transfer client subsystem logger.
func Remote() *slog.Logger { return Named(ComponentRemote) }

// DB returns the database subsystem logger.
func DB() *slog.Logger { return Named(ComponentDB) }

// Recovery returns the crash-recovery subsystem logger.
func Recovery() *slog.Logger { return Named(ComponentRecovery) }

// CLI returns the CLI subsystem logger.
func CLI() *slog.Logger { return Named(ComponentCLI) }

// Completion returns the completion monitor / event bus subsystem logger.
func Completion() *slog.Logger { return Named(ComponentCompletion) }

// Tagging returns the tagger subsystem logger.
func Tagging() *slog.Logger { return Named(ComponentTagging) }

// Move returns the atomic mover subsystem logger.
func Move() *slog.Logger { return Named(ComponentMove) }

// Orchestrator returns the orchestrator lifecycle subsystem logger.
func Orchestrator() *slog.Logger { return Named(ComponentOrchestrator) }

// Config returns the configuration subsystem logger.
func Config() *slog.Logger { return Named(ComponentConfig) }
