package recovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonydl/internal/hdm/completion"
	"harmonydl/internal/hdm/dedupe"
	"harmonydl/internal/hdm/model"
	"harmonydl/internal/hdm/sidecar"
)

func newTestRecovery(t *testing.T) (*Recovery, string) {
	t.Helper()
	dir := t.TempDir()
	mgr, err := dedupe.NewManager(dir, filepath.Join(dir, "music"), "{artist}/{title}.{extension}")
	require.NoError(t, err)

	bus := completion.NewBus()
	monitor := completion.NewMonitor(bus, dir, 5*time.Millisecond, 10*time.Millisecond)

	return &Recovery{
		Sidecars:    sidecar.NewStore(dir),
		Dedupe:      mgr,
		Monitor:     monitor,
		Bus:         bus,
		Concurrency: 2,
	}, dir
}

func TestRecovery_StaleSidecarWithRegisteredFinalPathIsDeleted(t *testing.T) {
	r, dir := newTestRecovery(t)

	finalPath := filepath.Join(dir, "final.flac")
	require.NoError(t, os.WriteFile(finalPath, []byte("done"), 0644))
	require.NoError(t, r.Dedupe.Register("dk1", finalPath))

	sc := &model.Sidecar{ItemID: "i1", DedupeKey: "dk1", Status: model.SidecarDownloaded, SourcePath: finalPath}
	require.NoError(t, r.Sidecars.Save(sc))

	require.NoError(t, r.Scan(t.Context()))

	_, err := r.Sidecars.Load("i1")
	assert.True(t, os.IsNotExist(err))
}

func TestRecovery_InFlightSidecarRepublishesCompletionEvent(t *testing.T) {
	r, dir := newTestRecovery(t)

	srcPath := filepath.Join(dir, "in-flight.flac")
	require.NoError(t, os.WriteFile(srcPath, []byte("payload"), 0644))

	sc := &model.Sidecar{ItemID: "i2", DedupeKey: "dk2", Status: model.SidecarDownloaded, SourcePath: srcPath}
	require.NoError(t, r.Sidecars.Save(sc))

	ch := r.Bus.Subscribe("dk2")
	defer r.Bus.Unsubscribe("dk2", ch)

	done := make(chan error, 1)
	go func() { done <- r.Scan(t.Context()) }()

	select {
	case evt := <-ch:
		assert.Equal(t, srcPath, evt.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a republished completion event")
	}
	require.NoError(t, <-done)
}

func TestRecovery_MovedSidecarsAreSkipped(t *testing.T) {
	r, _ := newTestRecovery(t)

	sc := &model.Sidecar{ItemID: "i3", DedupeKey: "dk3", Status: model.SidecarMoved, FinalPath: "/does/not/matter"}
	require.NoError(t, r.Sidecars.Save(sc))

	require.NoError(t, r.Scan(t.Context()))

	loaded, err := r.Sidecars.Load("i3")
	require.NoError(t, err)
	assert.Equal(t, model.SidecarMoved, loaded.Status)
}
