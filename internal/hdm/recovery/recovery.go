// =============================================================================
// FILE: internal/hdm/recovery/recovery.go
// PURPOSE: Crash recovery: at process start, scan the sidecar directory and
//          re-arm completion detection for anything still in flight, per
//          spec.md §4.8. Bounded concurrency via golang.org/x/sync/errgroup,
//          the way the rest of the pack caps fan-out work.
// =============================================================================

package recovery

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"harmonydl/internal/hdm/completion"
	"harmonydl/internal/hdm/dedupe"
	"harmonydl/internal/hdm/model"
	"harmonydl/internal/hdm/sidecar"
	"harmonydl/internal/logging"
)

// Recovery re-arms completion detection for sidecars left behind by a prior
// process that did not reach the "moved" stage.
type Recovery struct {
	Sidecars *sidecar.Store
	Dedupe   *dedupe.Manager
	Monitor  *completion.Monitor
	Bus      *completion.Bus

	// Concurrency bounds how many sidecars are stabilized at once.
	Concurrency int
}

// Scan walks the sidecar directory once. For each sidecar not in status
// "moved": if the dedupe index already lists a final path that exists, the
// stale sidecar is deleted; otherwise, if source_path names an existing
// file, it is size-stabilized and a completion event is published on the
// bus so an in-flight (or freshly resubmitted) pipeline picks it up. Any
// per-sidecar error is logged; the scan continues.
func (r *Recovery) Scan(ctx context.Context) error {
	sidecars, badPaths, err := r.Sidecars.List()
	if err != nil {
		return err
	}
	for _, path := range badPaths {
		logging.Recovery().Warn("skipping unparseable sidecar", "path", path)
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, sc := range sidecars {
		sc := sc
		if sc.Status == model.SidecarMoved {
			continue
		}
		g.Go(func() error {
			r.recoverOne(gctx, sc)
			return nil
		})
	}

	return g.Wait()
}

func (r *Recovery) recoverOne(ctx context.Context, sc *model.Sidecar) {
	if finalPath, ok := r.Dedupe.Lookup(sc.DedupeKey); ok {
		if info, err := os.Stat(finalPath); err == nil && info.Mode().IsRegular() {
			if err := r.Sidecars.Delete(sc.ItemID); err != nil {
				logging.Recovery().Warn("failed to delete stale sidecar", "item_id", sc.ItemID, "error", err)
			}
			return
		}
	}

	if sc.SourcePath == "" {
		return
	}
	info, err := os.Stat(sc.SourcePath)
	if err != nil || !info.Mode().IsRegular() {
		logging.Recovery().Debug("sidecar source_path missing, leaving for a fresh pipeline run", "item_id", sc.ItemID, "source_path", sc.SourcePath)
		return
	}

	size, err := r.Monitor.EnsureStable(ctx, sc.SourcePath)
	if err != nil {
		logging.Recovery().Warn("failed to stabilize recovered file", "item_id", sc.ItemID, "path", sc.SourcePath, "error", err)
		return
	}

	r.Bus.PublishEvent(sc.DedupeKey, sc.SourcePath, size)
	logging.Recovery().Info("republished completion event for recovered sidecar", "item_id", sc.ItemID, "dedupe_key", sc.DedupeKey)
}
