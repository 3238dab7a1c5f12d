package idempotency

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "idempotency.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStore_ReserveReleaseLifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			r, err := store.Reserve(ctx, "key-1")
			require.NoError(t, err)
			assert.True(t, r.Acquired)

			r2, err := store.Reserve(ctx, "key-1")
			require.NoError(t, err)
			assert.False(t, r2.Acquired)
			assert.Equal(t, "in_progress", r2.Reason)

			require.NoError(t, store.Release(ctx, "key-1", true))

			r3, err := store.Reserve(ctx, "key-1")
			require.NoError(t, err)
			assert.False(t, r3.Acquired)
			assert.True(t, r3.AlreadyProcessed)
			assert.Equal(t, "already_completed", r3.Reason)
		})
	}
}

func TestStore_ReleaseFailureReturnsToAbsent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Reserve(ctx, "key-2")
			require.NoError(t, err)
			require.NoError(t, store.Release(ctx, "key-2", false))

			r, err := store.Reserve(ctx, "key-2")
			require.NoError(t, err)
			assert.True(t, r.Acquired)
		})
	}
}

func TestStore_ConcurrentReserveExactlyOneWinner(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const n = 16

			var wg sync.WaitGroup
			acquired := make([]bool, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					r, err := store.Reserve(ctx, "contended")
					require.NoError(t, err)
					acquired[idx] = r.Acquired
				}(i)
			}
			wg.Wait()

			wins := 0
			for _, a := range acquired {
				if a {
					wins++
				}
			}
			assert.Equal(t, 1, wins)
		})
	}
}
