package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonydl/internal/hdm/completion"
	"harmonydl/internal/hdm/dedupe"
	"harmonydl/internal/hdm/model"
	"harmonydl/internal/hdm/remote"
	"harmonydl/internal/hdm/sidecar"
	"harmonydl/internal/hdm/tagging"
)

type fakeRemoteClient struct {
	events []remote.TransferEvent
	err    error
}

func (f *fakeRemoteClient) Enqueue(ctx context.Context, username string, files []remote.RemoteFile) error {
	return nil
}
func (f *fakeRemoteClient) Cancel(ctx context.Context, transferID string) error { return nil }
func (f *fakeRemoteClient) StreamDownloadEvents(ctx context.Context, idempotencyKey string, pollInterval float64) (<-chan remote.TransferEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan remote.TransferEvent, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

type fakeTagger struct {
	result tagging.Result
	err    error
}

func (f *fakeTagger) ApplyTags(path string, item *model.DownloadItem) (tagging.Result, error) {
	return f.result, f.err
}

type fakeMover struct {
	moved map[string]string
}

func (f *fakeMover) Move(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return err
	}
	if f.moved != nil {
		f.moved[src] = dst
	}
	return os.Remove(src)
}

func newTestPipeline(t *testing.T, remoteClient remote.TransferClient, tagger tagging.Tagger, mover Mover) (*DefaultPipeline, string) {
	t.Helper()
	dir := t.TempDir()
	mgr, err := dedupe.NewManager(dir, filepath.Join(dir, "music"), "{artist}/{title}.{extension}")
	require.NoError(t, err)

	bus := completion.NewBus()
	monitor := completion.NewMonitor(bus, filepath.Join(dir, "downloads"), 5*time.Millisecond, 15*time.Millisecond)

	return &DefaultPipeline{
		Dedupe:       mgr,
		Remote:       remoteClient,
		Bus:          bus,
		Monitor:      monitor,
		Tagger:       tagger,
		Mover:        mover,
		Sidecars:     sidecar.NewStore(dir),
		PollInterval: 0.005,
	}, dir
}

func TestPipeline_FastPathDedupe_SkipsWhenFinalPathExists(t *testing.T) {
	p, dir := newTestPipeline(t, &fakeRemoteClient{}, &fakeTagger{}, &fakeMover{})

	finalPath := filepath.Join(dir, "existing.flac")
	require.NoError(t, os.WriteFile(finalPath, []byte("data"), 0644))
	require.NoError(t, p.Dedupe.Register("dk1", finalPath))

	item := &model.DownloadItem{ItemID: "i1", DedupeKey: "dk1", Artist: "A", Title: "T"}
	outcome, err := p.Execute(t.Context(), item, 1)
	require.NoError(t, err)
	assert.Equal(t, finalPath, outcome.FinalPath)
	assert.Len(t, outcome.Events, 1)
	assert.Equal(t, model.EventDedupeSkip, outcome.Events[0].Name)
}

func TestPipeline_HappyPath_MovesAndTagsFile(t *testing.T) {
	downloadsDir := t.TempDir()
	srcPath := filepath.Join(downloadsDir, "downloaded.mp3")
	require.NoError(t, os.WriteFile(srcPath, []byte("audio-bytes"), 0644))

	remoteClient := &fakeRemoteClient{events: []remote.TransferEvent{
		{Status: remote.StatusAccepted, DownloadID: "d1"},
		{Status: remote.StatusInProgress, BytesWritten: 5},
		{Status: remote.StatusCompleted, Path: srcPath, BytesWritten: 11},
	}}
	bitrate := 320
	tagger := &fakeTagger{result: tagging.Result{Applied: true, Codec: "mp3", BitrateKbps: &bitrate}}
	mover := &fakeMover{moved: map[string]string{}}

	p, _ := newTestPipeline(t, remoteClient, tagger, mover)
	p.Monitor = completion.NewMonitor(p.Bus, downloadsDir, 5*time.Millisecond, 10*time.Millisecond)

	item := &model.DownloadItem{
		BatchID: "b1", ItemID: "i1", DedupeKey: "dk-happy", Artist: "Artist", Title: "Title",
	}

	outcome, err := p.Execute(t.Context(), item, 1)
	require.NoError(t, err)
	assert.True(t, outcome.TagsWritten)
	assert.Equal(t, int64(11), outcome.BytesWritten)
	assert.Equal(t, "mp3/320", outcome.Quality)
	assert.NotEmpty(t, outcome.ContentHash)
	assert.FileExists(t, outcome.FinalPath)

	registered, ok := p.Dedupe.Lookup("dk-happy")
	require.True(t, ok)
	assert.Equal(t, outcome.FinalPath, registered)
}

func TestPipeline_RemoteFailedRetryable_ReturnsRetryableError(t *testing.T) {
	retryAfter := 2.5
	remoteClient := &fakeRemoteClient{events: []remote.TransferEvent{
		{Status: remote.StatusFailed, Retryable: true, RetryAfter: &retryAfter},
	}}
	p, _ := newTestPipeline(t, remoteClient, &fakeTagger{}, &fakeMover{})

	item := &model.DownloadItem{ItemID: "i1", DedupeKey: "dk-fail", Artist: "A", Title: "T"}
	_, err := p.Execute(t.Context(), item, 1)
	require.Error(t, err)

	var retryable *model.RetryableDownloadError
	require.ErrorAs(t, err, &retryable)
	require.NotNil(t, retryable.RetryAfterSeconds)
	assert.Equal(t, 2.5, *retryable.RetryAfterSeconds)
}

func TestPipeline_RemoteFailedFatal_ReturnsFatalError(t *testing.T) {
	remoteClient := &fakeRemoteClient{events: []remote.TransferEvent{
		{Status: remote.StatusFailed, Retryable: false},
	}}
	p, _ := newTestPipeline(t, remoteClient, &fakeTagger{}, &fakeMover{})

	item := &model.DownloadItem{ItemID: "i1", DedupeKey: "dk-fatal", Artist: "A", Title: "T"}
	_, err := p.Execute(t.Context(), item, 1)
	require.Error(t, err)

	var fatal *model.FatalDownloadError
	require.ErrorAs(t, err, &fatal)
}

func TestPipeline_StreamClosesWithoutCompleted_IsFatal(t *testing.T) {
	remoteClient := &fakeRemoteClient{events: []remote.TransferEvent{
		{Status: remote.StatusAccepted},
		{Status: remote.StatusInProgress},
	}}
	p, _ := newTestPipeline(t, remoteClient, &fakeTagger{}, &fakeMover{})

	item := &model.DownloadItem{ItemID: "i1", DedupeKey: "dk-stream", Artist: "A", Title: "T"}
	_, err := p.Execute(t.Context(), item, 1)
	require.Error(t, err)

	var fatal *model.FatalDownloadError
	require.ErrorAs(t, err, &fatal)
}
