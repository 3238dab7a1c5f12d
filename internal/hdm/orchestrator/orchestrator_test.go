package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonydl/internal/config"
	"harmonydl/internal/hdm/aggregator"
	"harmonydl/internal/hdm/idempotency"
	"harmonydl/internal/hdm/model"
	"harmonydl/internal/metrics"
)

type fakePipeline struct {
	execute func(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error)
	calls   int32
}

func (f *fakePipeline) Execute(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.execute(ctx, item, attempt)
}

func testConfig() *config.AppConfig {
	cfg := config.DefaultConfig()
	cfg.WorkerConcurrency = 2
	cfg.MaxRetries = 3
	cfg.RetryBaseSeconds = 0.01
	cfg.RetryJitterPct = 0
	return &cfg
}

func TestOrchestrator_SingleItemSuccess(t *testing.T) {
	pl := &fakePipeline{execute: func(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
		return model.DownloadOutcome{FinalPath: "/music/a.flac"}, nil
	}}
	agg := aggregator.New(metrics.New())
	o := New(testConfig(), idempotency.NewInMemoryStore(), agg, pl)
	o.Start()
	defer o.Shutdown()

	handle, err := o.SubmitSingle(model.ItemRequest{Artist: "A", Title: "T"}, "tester")
	require.NoError(t, err)

	summary, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, model.BatchSuccess, summary.Status)
	assert.Equal(t, 1, summary.Totals.Succeeded)
}

func TestOrchestrator_RetriesThenSucceeds(t *testing.T) {
	var attemptCount int32
	pl := &fakePipeline{execute: func(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
		n := atomic.AddInt32(&attemptCount, 1)
		if n < 3 {
			return model.DownloadOutcome{}, &model.RetryableDownloadError{Reason: "transient"}
		}
		return model.DownloadOutcome{FinalPath: "/music/b.flac"}, nil
	}}
	agg := aggregator.New(metrics.New())
	o := New(testConfig(), idempotency.NewInMemoryStore(), agg, pl)
	o.Start()
	defer o.Shutdown()

	handle, err := o.SubmitSingle(model.ItemRequest{Artist: "A", Title: "T2"}, "tester")
	require.NoError(t, err)

	summary, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, model.BatchSuccess, summary.Status)
	assert.Equal(t, 2, summary.Totals.Retries)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, 3, summary.Items[0].Attempts)
}

func TestOrchestrator_FatalErrorFailsImmediately(t *testing.T) {
	pl := &fakePipeline{execute: func(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
		return model.DownloadOutcome{}, &model.FatalDownloadError{Reason: "peer rejected"}
	}}
	agg := aggregator.New(metrics.New())
	o := New(testConfig(), idempotency.NewInMemoryStore(), agg, pl)
	o.Start()
	defer o.Shutdown()

	handle, err := o.SubmitSingle(model.ItemRequest{Artist: "A", Title: "T3"}, "tester")
	require.NoError(t, err)

	summary, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, model.BatchFailure, summary.Status)
	assert.Equal(t, 1, summary.Totals.Failed)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, 1, summary.Items[0].Attempts)
}

func TestOrchestrator_DuplicateAlreadyCompletedSkipsPipeline(t *testing.T) {
	store := idempotency.NewInMemoryStore()
	res, err := store.Reserve(t.Context(), "artist|title")
	require.NoError(t, err)
	require.True(t, res.Acquired)
	require.NoError(t, store.Release(t.Context(), "artist|title", true))

	pl := &fakePipeline{execute: func(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
		t.Fatal("pipeline should not run for an already-completed dedupe key")
		return model.DownloadOutcome{}, nil
	}}
	agg := aggregator.New(metrics.New())
	o := New(testConfig(), store, agg, pl)
	o.Start()
	defer o.Shutdown()

	handle, err := o.SubmitSingle(model.ItemRequest{Artist: "artist", Title: "title"}, "tester")
	require.NoError(t, err)

	summary, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Totals.Duplicates)
	assert.Equal(t, 1, summary.Totals.DedupeHits)
}

func TestOrchestrator_BatchMaxItemsRejectsOversizedBatch(t *testing.T) {
	cfg := testConfig()
	cfg.BatchMaxItems = 1
	agg := aggregator.New(metrics.New())
	o := New(cfg, idempotency.NewInMemoryStore(), agg, &fakePipeline{execute: func(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
		return model.DownloadOutcome{}, nil
	}})
	o.Start()
	defer o.Shutdown()

	_, err := o.SubmitBatch(model.BatchRequest{
		RequestedBy: "tester",
		Items: []model.ItemRequest{
			{Artist: "A", Title: "T1"},
			{Artist: "B", Title: "T2"},
		},
	})
	require.Error(t, err)

	var valErr *model.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestOrchestrator_ShutdownCancelsInFlightWork(t *testing.T) {
	started := make(chan struct{})
	pl := &fakePipeline{execute: func(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
		close(started)
		<-ctx.Done()
		return model.DownloadOutcome{}, &model.CancellationError{Reason: "cancelled while following remote transfer"}
	}}
	agg := aggregator.New(metrics.New())
	store := idempotency.NewInMemoryStore()
	o := New(testConfig(), store, agg, pl)
	o.Start()

	handle, err := o.SubmitSingle(model.ItemRequest{Artist: "A", Title: "Shutdown"}, "tester")
	require.NoError(t, err)

	<-started
	o.Shutdown()

	summary, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Totals.Failed)

	res, err := store.Reserve(context.Background(), "a|shutdown")
	require.NoError(t, err)
	assert.True(t, res.Acquired, "the reservation must have been released on shutdown")
}

func TestOrchestrator_ValidationRejectsMissingArtistOrTitle(t *testing.T) {
	agg := aggregator.New(metrics.New())
	o := New(testConfig(), idempotency.NewInMemoryStore(), agg, &fakePipeline{execute: func(ctx context.Context, item *model.DownloadItem, attempt int) (model.DownloadOutcome, error) {
		return model.DownloadOutcome{}, nil
	}})
	o.Start()
	defer o.Shutdown()

	_, err := o.SubmitSingle(model.ItemRequest{Artist: "", Title: ""}, "tester")
	require.Error(t, err)
	var valErr *model.ValidationError
	require.ErrorAs(t, err, &valErr)
}
