// =============================================================================
// FILE: internal/hdm/aggregator/aggregator.go
// PURPOSE: BatchAggregator: per-batch state under a mutex, item-result
//          bookkeeping, duration/phase-metric computation, completion-future
//          resolution. Per spec.md §4.7.
// =============================================================================

package aggregator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"harmonydl/internal/hdm/model"
	"harmonydl/internal/metrics"
)

// batchState is the mutable per-batch record the Aggregator owns.
type batchState struct {
	mu          sync.Mutex
	batchID     string
	requestedBy string
	total       int
	totals      model.BatchTotals
	items       map[string]*model.ItemResult
	order       []string
	done        chan struct{}
	resolved    bool
	summary     model.BatchSummary
}

// Aggregator owns every in-flight batch's state.
type Aggregator struct {
	mu      sync.Mutex
	batches map[string]*batchState
	metrics *metrics.Registry
}

// New creates an Aggregator emitting into reg. Pass metrics.Default() for
// process-wide metrics, or a fresh metrics.New() for an isolated test.
func New(reg *metrics.Registry) *Aggregator {
	return &Aggregator{batches: make(map[string]*batchState), metrics: reg}
}

// CreateBatch registers a new batch with totalItems items expected.
func (a *Aggregator) CreateBatch(batchID, requestedBy string, totalItems int) {
	bs := &batchState{
		batchID:     batchID,
		requestedBy: requestedBy,
		total:       totalItems,
		items:       make(map[string]*model.ItemResult, totalItems),
		done:        make(chan struct{}),
	}
	a.mu.Lock()
	a.batches[batchID] = bs
	a.mu.Unlock()
}

func (a *Aggregator) get(batchID string) *batchState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.batches[batchID]
}

// RecordQueued marks itemID queued within batchID.
func (a *Aggregator) RecordQueued(batchID, itemID string) {
	bs := a.get(batchID)
	if bs == nil {
		return
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	a.ensureItemLocked(bs, itemID)
	bs.totals.Queued++
}

func (a *Aggregator) ensureItemLocked(bs *batchState, itemID string) *model.ItemResult {
	r, ok := bs.items[itemID]
	if !ok {
		r = &model.ItemResult{ItemID: itemID, State: model.StateQueued}
		bs.items[itemID] = r
		bs.order = append(bs.order, itemID)
	}
	return r
}

// RecordSuccess finalizes itemID as done.
func (a *Aggregator) RecordSuccess(batchID, itemID string, outcome model.DownloadOutcome, attempts int, processingSeconds float64) {
	bs := a.get(batchID)
	if bs == nil {
		return
	}
	bs.mu.Lock()
	r := a.ensureItemLocked(bs, itemID)
	if r.State == model.StateQueued {
		bs.totals.Queued--
	} else {
		bs.totals.Running--
	}
	r.State = model.StateDone
	r.Attempts = attempts
	r.FinalPath = outcome.FinalPath
	r.TagsWritten = outcome.TagsWritten
	r.BytesWritten = outcome.BytesWritten
	d := processingSeconds
	r.Duration = &d
	r.Quality = outcome.Quality
	r.ContentHash = outcome.ContentHash
	r.Events = outcome.Events
	bs.totals.Succeeded++
	bs.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ItemOutcomesTotal.Inc(string(model.StateDone))
		a.metrics.ProcessingSeconds.Observe("", processingSeconds)
		for phase, seconds := range phaseDurations(outcome.Events) {
			a.metrics.PhaseDurationSeconds.Observe(phase, seconds)
		}
	}

	a.maybeResolve(bs)
}

// RecordFailure finalizes itemID as failed.
func (a *Aggregator) RecordFailure(batchID, itemID string, attempts int, cause error, processingSeconds float64) {
	bs := a.get(batchID)
	if bs == nil {
		return
	}
	bs.mu.Lock()
	r := a.ensureItemLocked(bs, itemID)
	if r.State == model.StateQueued {
		bs.totals.Queued--
	} else {
		bs.totals.Running--
	}
	r.State = model.StateFailed
	r.Attempts = attempts
	if cause != nil {
		r.Error = cause.Error()
	}
	d := processingSeconds
	r.Duration = &d
	bs.totals.Failed++
	bs.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ItemOutcomesTotal.Inc(string(model.StateFailed))
		a.metrics.ItemFailuresTotal.Inc(errorType(cause))
		a.metrics.ProcessingSeconds.Observe("", processingSeconds)
	}

	a.maybeResolve(bs)
}

// RecordRetry records one retry attempt for itemID; the item stays running.
func (a *Aggregator) RecordRetry(batchID, itemID string, attempt int, cause error, retryAfter *float64) {
	bs := a.get(batchID)
	if bs == nil {
		return
	}
	bs.mu.Lock()
	r := a.ensureItemLocked(bs, itemID)
	if r.State == model.StateQueued {
		bs.totals.Queued--
		bs.totals.Running++
	}
	r.State = model.StateRunning
	r.Attempts = attempt
	bs.totals.Retries++
	bs.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ItemRetriesTotal.Inc(errorType(cause))
	}
}

// RecordDuplicate finalizes itemID as a duplicate. alreadyProcessed
// distinguishes an "already_completed" duplicate from an "in_progress" one.
func (a *Aggregator) RecordDuplicate(batchID, itemID, reason string, alreadyProcessed bool) {
	bs := a.get(batchID)
	if bs == nil {
		return
	}
	bs.mu.Lock()
	r := a.ensureItemLocked(bs, itemID)
	if r.State == model.StateQueued {
		bs.totals.Queued--
	} else {
		bs.totals.Running--
	}
	r.State = model.StateDuplicate
	r.Error = reason
	bs.totals.Duplicates++
	bs.totals.DedupeHits++
	bs.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ItemOutcomesTotal.Inc(string(model.StateDuplicate))
		a.metrics.DuplicatesTotal.Inc(boolLabel(alreadyProcessed))
		a.metrics.DedupeHitsTotal.Inc("")
	}

	a.maybeResolve(bs)
}

// MarkRunning transitions itemID from queued to running, called when a
// worker picks it up (after a successful idempotency reservation).
func (a *Aggregator) MarkRunning(batchID, itemID string) {
	bs := a.get(batchID)
	if bs == nil {
		return
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	r := a.ensureItemLocked(bs, itemID)
	if r.State == model.StateQueued {
		bs.totals.Queued--
		bs.totals.Running++
		r.State = model.StateRunning
	}
}

// maybeResolve closes bs.done and computes the final BatchSummary once
// queued+running both reach zero.
func (a *Aggregator) maybeResolve(bs *batchState) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.resolved {
		return
	}
	if bs.totals.Queued+bs.totals.Running > 0 {
		return
	}
	bs.resolved = true
	bs.summary = buildSummaryLocked(bs)
	close(bs.done)
}

func buildSummaryLocked(bs *batchState) model.BatchSummary {
	items := make([]model.ItemResult, 0, len(bs.order))
	var samples []float64
	for _, id := range bs.order {
		r := bs.items[id]
		items = append(items, *r)
		if r.Duration != nil {
			samples = append(samples, *r.Duration)
		}
	}

	status := model.BatchPartial
	switch {
	case bs.totals.Failed == 0:
		status = model.BatchSuccess
	case bs.totals.Succeeded == 0:
		status = model.BatchFailure
	}

	return model.BatchSummary{
		BatchID:     bs.batchID,
		Status:      status,
		RequestedBy: bs.requestedBy,
		Totals:      bs.totals,
		Items:       items,
		Duration:    computeDurationStats(samples),
	}
}

// Wait blocks until batchID's totals reach queued+running == 0 and returns
// its final summary.
func (a *Aggregator) Wait(batchID string) (model.BatchSummary, error) {
	bs := a.get(batchID)
	if bs == nil {
		return model.BatchSummary{}, fmt.Errorf("unknown batch %q", batchID)
	}
	<-bs.done
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.summary, nil
}

// computeDurationStats computes min/max/mean/p50/p95/p99 over samples using
// nearest-rank on a sorted copy.
func computeDurationStats(samples []float64) model.DurationStats {
	if len(samples) == 0 {
		return model.DurationStats{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	return model.DurationStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: sum / float64(len(sorted)),
		P50:  nearestRank(sorted, 0.50),
		P95:  nearestRank(sorted, 0.95),
		P99:  nearestRank(sorted, 0.99),
	}
}

// nearestRank returns the value at the nearest-rank percentile p (0..1) of a
// pre-sorted, non-empty slice.
func nearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	rank := int(math.Ceil(p * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// phaseDurations computes the download/tagging/moving phase durations from
// an ordered event list, per spec.md §4.7: download spans
// accepted->completed|detected, tagging spans the previous event to
// tagging.completed|skipped, moving spans the previous event to file.moved.
func phaseDurations(events []model.ItemEvent) map[string]float64 {
	out := make(map[string]float64)
	var downloadStart, prev *model.ItemEvent

	for i := range events {
		evt := &events[i]
		switch evt.Name {
		case model.EventDownloadAccepted:
			downloadStart = evt
		case model.EventDownloadCompleted, model.EventDownloadDetected:
			if downloadStart != nil {
				out["download"] = evt.Timestamp.Sub(downloadStart.Timestamp).Seconds()
			}
		case model.EventTaggingCompleted, model.EventTaggingSkipped:
			if prev != nil {
				out["tagging"] = evt.Timestamp.Sub(prev.Timestamp).Seconds()
			}
		case model.EventFileMoved:
			if prev != nil {
				out["moving"] = evt.Timestamp.Sub(prev.Timestamp).Seconds()
			}
		}
		prev = evt
	}
	return out
}

// errorType derives a coarse error_type label from cause, for the
// item_failures_total / item_retries_total counters.
func errorType(cause error) string {
	if cause == nil {
		return "unknown"
	}
	var retryable *model.RetryableDownloadError
	var fatal *model.FatalDownloadError
	var pipelineErr *model.PipelineError
	var cancellation *model.CancellationError
	switch {
	case errors.As(cause, &retryable):
		return "retryable_download"
	case errors.As(cause, &fatal):
		return "fatal_download"
	case errors.As(cause, &pipelineErr):
		return "pipeline:" + pipelineErr.Stage
	case errors.As(cause, &cancellation):
		return "cancelled"
	default:
		return "unknown"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
