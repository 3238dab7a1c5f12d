// =============================================================================
// FILE: internal/hdm/orchestrator/orchestrator.go
// PURPOSE: Orchestrator: submit/start/shutdown lifecycle, the worker pool,
//          and the per-item retry/backoff loop. Ties scheduler + idempotency
//          + aggregator + pipeline together per spec.md §4.2/§4.9.
// =============================================================================

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"harmonydl/internal/config"
	"harmonydl/internal/hdm/aggregator"
	"harmonydl/internal/hdm/idempotency"
	"harmonydl/internal/hdm/model"
	"harmonydl/internal/hdm/pipeline"
	"harmonydl/internal/hdm/scheduler"
	"harmonydl/internal/logging"
)

// BatchHandle is returned by SubmitBatch/SubmitSingle: a receipt plus a
// blocking Wait() for the final BatchSummary.
type BatchHandle struct {
	BatchID     string
	ItemsTotal  int
	RequestedBy string

	agg *aggregator.Aggregator
}

// Wait blocks until every item in the batch resolves (success, failure, or
// duplicate) and returns the aggregated summary.
func (h *BatchHandle) Wait() (model.BatchSummary, error) {
	return h.agg.Wait(h.BatchID)
}

// Orchestrator owns the scheduler queue, the worker pool, and per-item
// retry policy.
type Orchestrator struct {
	cfg      *config.AppConfig
	queue    *scheduler.Queue
	idem     idempotency.Store
	agg      *aggregator.Aggregator
	pipeline pipeline.Pipeline

	mu       sync.Mutex
	started  bool
	stopping bool
	cancel   context.CancelFunc
	runCtx   context.Context
	wg       sync.WaitGroup
}

// New builds an Orchestrator. Start must be called before submitting work.
func New(cfg *config.AppConfig, idem idempotency.Store, agg *aggregator.Aggregator, pl pipeline.Pipeline) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		queue:    scheduler.New(),
		idem:     idem,
		agg:      agg,
		pipeline: pl,
	}
}

// Start lazily spawns worker_concurrency workers exactly once.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true

	ctx, cancel := context.WithCancel(context.Background())
	o.runCtx = ctx
	o.cancel = cancel

	for i := 0; i < o.cfg.WorkerConcurrency; i++ {
		o.wg.Add(1)
		go o.workerLoop(i)
	}
	logging.Orchestrator().Info("started worker pool", "worker_concurrency", o.cfg.WorkerConcurrency)
}

// Shutdown stops accepting new progress: it marks stopping, closes the
// scheduler (waking blocked workers), cancels the run context (so an
// in-flight pipeline execution aborts cooperatively), and waits for every
// worker to exit. In-flight idempotency reservations are released with
// success=false as each worker unwinds.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if !o.started || o.stopping {
		o.mu.Unlock()
		return
	}
	o.stopping = true
	o.mu.Unlock()

	o.queue.Stop()
	o.cancel()
	o.wg.Wait()
	logging.Orchestrator().Info("worker pool stopped")
}

// SubmitBatch validates and normalizes req, registers it with the
// Aggregator, enqueues every item, and returns a handle to await the
// result.
func (o *Orchestrator) SubmitBatch(req model.BatchRequest) (*BatchHandle, error) {
	if len(req.Items) == 0 {
		return nil, &model.ValidationError{Reason: "batch must contain at least one item"}
	}
	if len(req.Items) > o.cfg.BatchMaxItems {
		return nil, &model.ValidationError{Reason: fmt.Sprintf("batch has %d items, exceeds batch_max_items=%d", len(req.Items), o.cfg.BatchMaxItems)}
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	items := make([]*model.DownloadItem, 0, len(req.Items))
	for i, ir := range req.Items {
		if ir.Artist == "" || ir.Title == "" {
			return nil, &model.ValidationError{Reason: fmt.Sprintf("item %d missing artist/title", i)}
		}
		priority := ir.Priority
		if priority == 0 {
			priority = req.DefaultPriority
		}
		items = append(items, &model.DownloadItem{
			BatchID:         batchID,
			ItemID:          uuid.NewString(),
			Artist:          ir.Artist,
			Title:           ir.Title,
			Album:           ir.Album,
			ISRC:            ir.ISRC,
			RequestedBy:     req.RequestedBy,
			Priority:        priority,
			DedupeKey:       model.DeriveDedupeKey(ir, req.DedupeKeyPrefix),
			DurationSeconds: ir.DurationSeconds,
			Bitrate:         ir.Bitrate,
			Index:           i,
		})
	}

	o.agg.CreateBatch(batchID, req.RequestedBy, len(items))
	for _, item := range items {
		o.agg.RecordQueued(batchID, item.ItemID)
	}
	for _, item := range items {
		o.queue.Put(item)
	}

	return &BatchHandle{BatchID: batchID, ItemsTotal: len(items), RequestedBy: req.RequestedBy, agg: o.agg}, nil
}

// SubmitSingle is sugar over SubmitBatch with a single-item batch request.
func (o *Orchestrator) SubmitSingle(item model.ItemRequest, requestedBy string) (*BatchHandle, error) {
	return o.SubmitBatch(model.BatchRequest{RequestedBy: requestedBy, Items: []model.ItemRequest{item}})
}

// workerLoop pulls items off the scheduler queue until it is stopped and
// drained, processing each to completion.
func (o *Orchestrator) workerLoop(workerID int) {
	defer o.wg.Done()
	for {
		item, ok := o.queue.Take()
		if !ok {
			return
		}
		o.processItem(item)
	}
}

// processItem implements spec.md §4.2's per-item worker policy: idempotency
// reserve, attempt loop with backoff, always release.
func (o *Orchestrator) processItem(item *model.DownloadItem) {
	ctx := o.runCtx

	res, err := o.idem.Reserve(ctx, item.DedupeKey)
	if err != nil {
		o.agg.RecordFailure(item.BatchID, item.ItemID, 0, err, 0)
		return
	}
	if !res.Acquired {
		o.agg.RecordDuplicate(item.BatchID, item.ItemID, res.Reason, res.AlreadyProcessed)
		return
	}

	o.agg.MarkRunning(item.BatchID, item.ItemID)

	success, _, _ := o.runAttempts(ctx, item)

	if relErr := o.idem.Release(context.Background(), item.DedupeKey, success); relErr != nil {
		logging.Orchestrator().Warn("failed to release idempotency reservation", "item_id", item.ItemID, "dedupe_key", item.DedupeKey, "error", relErr)
	}
}

// runAttempts executes the retry loop and records the outcome with the
// Aggregator, returning whether the item ultimately succeeded.
func (o *Orchestrator) runAttempts(ctx context.Context, item *model.DownloadItem) (success bool, attempts int, finalErr error) {
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		attempts = attempt
		start := time.Now()
		outcome, err := o.pipeline.Execute(ctx, item, attempt)
		elapsed := time.Since(start).Seconds()

		if err == nil {
			o.agg.RecordSuccess(item.BatchID, item.ItemID, outcome, attempts, elapsed)
			return true, attempts, nil
		}

		var cancellation *model.CancellationError
		if errors.As(err, &cancellation) {
			o.agg.RecordFailure(item.BatchID, item.ItemID, attempts, err, elapsed)
			return false, attempts, err
		}

		if !model.IsRetryable(err) {
			o.agg.RecordFailure(item.BatchID, item.ItemID, attempts, err, elapsed)
			return false, attempts, err
		}

		retryAfter := model.RetryAfterHint(err)
		o.agg.RecordRetry(item.BatchID, item.ItemID, attempt, err, retryAfter)

		if attempt == o.cfg.MaxRetries {
			o.agg.RecordFailure(item.BatchID, item.ItemID, attempts, err, elapsed)
			return false, attempts, err
		}

		delay := backoffDelay(attempt, o.cfg.RetryBaseSeconds, o.cfg.RetryJitterPct, retryAfter)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			cancelErr := &model.CancellationError{Reason: "cancelled during retry backoff"}
			o.agg.RecordFailure(item.BatchID, item.ItemID, attempts, cancelErr, elapsed)
			return false, attempts, cancelErr
		}
	}
	// Unreachable: the loop above always returns by its last iteration.
	return false, attempts, finalErr
}

// backoffDelay implements spec.md §4.2's formula:
//
//	delay = retry_base * 2^(attempt-1) * (1 + U(-jitter_pct, +jitter_pct))
//
// clamped to >=0, raised to retryAfter when that hint exceeds it.
func backoffDelay(attempt int, retryBase, jitterPct float64, retryAfter *float64) time.Duration {
	jitter := 1.0
	if jitterPct > 0 {
		jitter += (rand.Float64()*2 - 1) * jitterPct
	}
	delay := retryBase * pow2(attempt-1) * jitter
	if delay < 0 {
		delay = 0
	}
	if retryAfter != nil && *retryAfter > delay {
		delay = *retryAfter
	}
	return time.Duration(delay * float64(time.Second))
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}
