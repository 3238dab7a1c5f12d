package dedupe

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonydl/internal/hdm/model"
)

func TestRender_SubstitutesAndSanitizes(t *testing.T) {
	out, err := Render("{artist}/{album}/{artist} - {title}.{extension}", TemplateVars{
		Artist:    "AC/DC",
		Album:     "Back in Black",
		Title:     "Hells Bells",
		Extension: "FLAC",
	})
	require.NoError(t, err)
	assert.Equal(t, "ACDC/Back in Black/ACDC - Hells Bells.flac", out)
}

func TestRender_UnknownPlaceholderIsConfigError(t *testing.T) {
	_, err := Render("{artist}/{bogus}.mp3", TemplateVars{Artist: "A"})
	require.Error(t, err)
	var cfgErr *model.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRender_MissingFieldsFallBack(t *testing.T) {
	out, err := Render("{artist}/{album}/{title}.{extension}", TemplateVars{})
	require.NoError(t, err)
	assert.Equal(t, "Unknown Artist/Unknown Album/Track.bin", out)
}

func TestManager_DestinationAndIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "state"), filepath.Join(dir, "music"), "{artist}/{title}.{extension}")
	require.NoError(t, err)

	item := &model.DownloadItem{Artist: "Artist", Title: "Track", DedupeKey: "artist|track", BatchID: "b1", ItemID: "i1"}
	dest, err := m.Destination(item, "mp3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "music", "Artist", "Track.mp3"), dest)

	require.NoError(t, m.Register(item.DedupeKey, dest))
	got, ok := m.Lookup(item.DedupeKey)
	require.True(t, ok)
	assert.Equal(t, dest, got)

	// A freshly reopened manager must see the persisted index.
	m2, err := NewManager(filepath.Join(dir, "state"), filepath.Join(dir, "music"), "{artist}/{title}.{extension}")
	require.NoError(t, err)
	got2, ok := m2.Lookup(item.DedupeKey)
	require.True(t, ok)
	assert.Equal(t, dest, got2)
}

func TestManager_LockExcludesConcurrentHolders(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "state"), filepath.Join(dir, "music"), "{title}.{extension}")
	require.NoError(t, err)

	ctx := context.Background()
	lock, err := m.AcquireLock(ctx, "key-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		l2, err := m.AcquireLock(context.Background(), "key-1")
		require.NoError(t, err)
		close(acquired)
		l2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}
