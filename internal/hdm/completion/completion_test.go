package completion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("key-1")
	defer bus.Unsubscribe("key-1", ch)

	bus.PublishEvent("key-1", "/tmp/file.flac", 1024)

	select {
	case evt := <-ch:
		assert.Equal(t, "/tmp/file.flac", evt.Path)
		assert.Equal(t, int64(1024), evt.BytesWritten)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("key-1")
	bus.Unsubscribe("key-1", ch)
	assert.NotPanics(t, func() { bus.Unsubscribe("key-1", ch) })
}

func TestMonitor_EnsureStable_WaitsForStableSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	m := NewMonitor(NewBus(), dir, 10*time.Millisecond, 30*time.Millisecond)
	size, err := m.EnsureStable(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestMonitor_EnsureStable_ResetsOnShrinkToZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	m := NewMonitor(NewBus(), dir, 10*time.Millisecond, 30*time.Millisecond)

	go func() {
		time.Sleep(15 * time.Millisecond)
		_ = os.WriteFile(path, []byte{}, 0644)
		time.Sleep(15 * time.Millisecond)
		_ = os.WriteFile(path, []byte("hello world"), 0644)
	}()

	start := time.Now()
	size, err := m.EnsureStable(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMonitor_AwaitCompletion_FallsBackToFilenameScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artist - track.flac")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	m := NewMonitor(NewBus(), dir, 10*time.Millisecond, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	found, bytesWritten, err := m.AwaitCompletion(ctx, "nomatch-key", "Artist", "Track", "")
	require.NoError(t, err)
	assert.Equal(t, path, found)
	assert.Equal(t, int64(4), bytesWritten)
}

func TestMonitor_AwaitCompletion_UsesBusEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.flac")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	bus := NewBus()
	m := NewMonitor(bus, dir, 40*time.Millisecond, 20*time.Millisecond)

	go func() {
		time.Sleep(5 * time.Millisecond)
		bus.PublishEvent("key-2", path, 4)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	found, _, err := m.AwaitCompletion(ctx, "key-2", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, path, found)
}
