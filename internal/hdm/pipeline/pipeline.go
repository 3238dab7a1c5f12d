// =============================================================================
// FILE: internal/hdm/pipeline/pipeline.go
// PURPOSE: DefaultPipeline: the per-item stage sequence (fast-path dedupe,
//          remote transfer follow, completion detection, tagging, atomic
//          move, register completion), serialized under the Dedupe
//          Manager's per-key lock per spec.md §4.3.
// =============================================================================

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"harmonydl/internal/hash"
	"harmonydl/internal/hdm/completion"
	"harmonydl/internal/hdm/dedupe"
	"harmonydl/internal/hdm/model"
	"harmonydl/internal/hdm/remote"
	"harmonydl/internal/hdm/sidecar"
	"harmonydl/internal/hdm/tagging"
	"harmonydl/internal/logging"
)

// Pipeline processes one item to completion or a classified error.
type Pipeline interface {
	Execute(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error)
}

// Mover is the narrow interface DefaultPipeline needs from internal/hdm/move.
type Mover interface {
	Move(src, dst string) error
}

// DefaultPipeline is the spec-compliant Pipeline implementation.
type DefaultPipeline struct {
	Dedupe       *dedupe.Manager
	Remote       remote.TransferClient
	Bus          *completion.Bus
	Monitor      *completion.Monitor
	Tagger       tagging.Tagger
	Mover        Mover
	Sidecars     *sidecar.Store
	PollInterval float64
}

// Execute runs stages (a)-(g) for item under its dedupe key's exclusive
// lock. attempt is recorded in the sidecar for diagnostics; retry counting
// itself is the worker loop's responsibility.
func (p *DefaultPipeline) Execute(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
	lock, err := p.Dedupe.AcquireLock(ctx, item.DedupeKey)
	if err != nil {
		if ctx.Err() != nil {
			return model.DownloadOutcome{}, &model.CancellationError{Reason: "cancelled while waiting for dedupe lock"}
		}
		return model.DownloadOutcome{}, &model.PipelineError{Stage: "lock", Err: err}
	}
	defer lock.Release()

	var events []model.ItemEvent
	emit := func(name string, meta map[string]any) {
		events = append(events, model.ItemEvent{Name: name, Timestamp: time.Now(), Meta: meta})
	}

	// (a) Fast-path dedupe.
	if finalPath, ok := p.Dedupe.Lookup(item.DedupeKey); ok && fileExists(finalPath) {
		emit(model.EventDedupeSkip, map[string]any{"final_path": finalPath})
		return model.DownloadOutcome{FinalPath: finalPath, Events: events}, nil
	}

	sc := &model.Sidecar{
		BatchID:   item.BatchID,
		ItemID:    item.ItemID,
		DedupeKey: item.DedupeKey,
		Attempt:   attempt,
		Status:    model.SidecarReserved,
	}
	if err := p.Sidecars.Save(sc); err != nil {
		logging.Pipeline().Warn("failed to write initial sidecar", "item_id", item.ItemID, "error", err)
	}

	// (b) Remote transfer follow.
	expectedPath, bytesWritten, err := p.followRemote(ctx, item, sc, emit)
	if err != nil {
		return model.DownloadOutcome{}, err
	}

	// (c) Completion detection.
	path, detectedBytes, err := p.Monitor.AwaitCompletion(ctx, item.DedupeKey, item.Artist, item.Title, expectedPath)
	if err != nil {
		if ctx.Err() != nil {
			return model.DownloadOutcome{}, &model.CancellationError{Reason: "cancelled during completion detection"}
		}
		return model.DownloadOutcome{}, &model.PipelineError{Stage: "completion", Err: err, Retryable: true}
	}
	if bytesWritten == 0 {
		bytesWritten = detectedBytes
	}
	emit(model.EventDownloadDetected, map[string]any{"path": path})

	sc.Status = model.SidecarDownloaded
	sc.SourcePath = path
	sc.BytesWritten = bytesWritten
	if err := p.Sidecars.Save(sc); err != nil {
		logging.Pipeline().Warn("failed to update sidecar after completion detection", "item_id", item.ItemID, "error", err)
	}

	// (d) Tagging.
	tagResult, quality := p.applyTags(path, item, emit)

	// (e) Atomic move.
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		ext = "bin"
	}
	dest, err := p.Dedupe.Destination(item, ext)
	if err != nil {
		return model.DownloadOutcome{}, &model.PipelineError{Stage: "move", Err: err}
	}
	if err := p.Mover.Move(path, dest); err != nil {
		return model.DownloadOutcome{}, &model.PipelineError{Stage: "move", Err: err}
	}
	emit(model.EventFileMoved, map[string]any{"final_path": dest})

	contentHash, err := hash.File(dest)
	if err != nil {
		logging.Pipeline().Warn("failed to hash moved file", "path", dest, "error", err)
	}

	// (f) Register completion.
	if err := p.Dedupe.Register(item.DedupeKey, dest); err != nil {
		logging.Pipeline().Warn("failed to register dedupe index entry", "dedupe_key", item.DedupeKey, "error", err)
	}
	sc.Status = model.SidecarMoved
	sc.FinalPath = dest
	sc.ContentHash = contentHash
	if err := p.Sidecars.Save(sc); err != nil {
		logging.Pipeline().Warn("failed to write final sidecar", "item_id", item.ItemID, "error", err)
	}

	// (g) Return.
	outcome := model.DownloadOutcome{
		FinalPath:    dest,
		TagsWritten:  tagResult.Applied,
		BytesWritten: bytesWritten,
		Quality:      quality,
		ContentHash:  contentHash,
		Events:       events,
	}
	if tagResult.DurationSeconds != nil {
		outcome.Duration = *tagResult.DurationSeconds
	}
	return outcome, nil
}

// followRemote drives stage (b): stream the remote transfer's status
// events until completed (returns the reported path, if any) or a
// classified error.
func (p *DefaultPipeline) followRemote(ctx context.Context, item *model.DownloadItem, sc *model.Sidecar, emit func(string, map[string]any)) (string, int64, error) {
	events, err := p.Remote.StreamDownloadEvents(ctx, item.DedupeKey, p.PollInterval)
	if err != nil {
		return "", 0, &model.RetryableDownloadError{Reason: "failed to start transfer event stream", Err: err}
	}

	var path string
	var bytesWritten int64
	var sawCompleted bool

	for {
		select {
		case <-ctx.Done():
			return "", 0, &model.CancellationError{Reason: "cancelled while following remote transfer"}
		case evt, ok := <-events:
			if !ok {
				if sawCompleted {
					return path, bytesWritten, nil
				}
				return "", 0, &model.FatalDownloadError{Reason: "stream terminated unexpectedly"}
			}

			switch evt.Status {
			case remote.StatusAccepted:
				emit(model.EventDownloadAccepted, map[string]any{"download_id": evt.DownloadID})
				sc.DownloadID = evt.DownloadID
				sc.Status = model.SidecarDownloading
				if err := p.Sidecars.Save(sc); err != nil {
					logging.Pipeline().Warn("failed to update sidecar on accepted", "item_id", item.ItemID, "error", err)
				}
			case remote.StatusInProgress:
				emit(model.EventDownloadInProgress, map[string]any{"bytes_written": evt.BytesWritten})
			case remote.StatusCompleted:
				emit(model.EventDownloadCompleted, map[string]any{"path": evt.Path, "bytes_written": evt.BytesWritten})
				path = evt.Path
				bytesWritten = evt.BytesWritten
				sawCompleted = true
				if path != "" {
					p.Bus.PublishEvent(item.DedupeKey, path, bytesWritten)
				}
				return path, bytesWritten, nil
			case remote.StatusFailed:
				reason := fmt.Sprintf("remote transfer failed for %s", item.DedupeKey)
				if msg, ok := evt.Payload["error"].(string); ok && msg != "" {
					reason = msg
				}
				if evt.Retryable {
					return "", 0, &model.RetryableDownloadError{Reason: reason, RetryAfterSeconds: evt.RetryAfter}
				}
				return "", 0, &model.FatalDownloadError{Reason: reason}
			}
		}
	}
}

// applyTags runs stage (d), emitting tagging.completed/tagging.skipped and
// deriving the human-readable "quality" string (codec + bitrate) for the
// outcome.
func (p *DefaultPipeline) applyTags(path string, item *model.DownloadItem, emit func(string, map[string]any)) (tagging.Result, string) {
	result, err := p.Tagger.ApplyTags(path, item)
	if err != nil {
		logging.Pipeline().Warn("tagging failed", "path", path, "error", err)
		emit(model.EventTaggingSkipped, map[string]any{"error": err.Error()})
		return tagging.Result{}, ""
	}

	if !result.Applied {
		emit(model.EventTaggingSkipped, map[string]any{"codec": result.Codec})
		return result, qualityString(result)
	}

	emit(model.EventTaggingCompleted, map[string]any{"codec": result.Codec})
	return result, qualityString(result)
}

func qualityString(r tagging.Result) string {
	if r.Codec == "" {
		return ""
	}
	if r.BitrateKbps != nil {
		return fmt.Sprintf("%s/%d", r.Codec, *r.BitrateKbps)
	}
	return r.Codec
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
