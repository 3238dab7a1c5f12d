// =============================================================================
// FILE: internal/hdm/dedupe/lock.go
// PURPOSE: Per-dedupe-key exclusive locking. Combines an in-process
//          map[string]*sync.Mutex (fast path, fair within one process) with a
//          gofrs/flock advisory OS file lock on
//          <state_dir>/locks/<dedupe_key>.lock (cross-process safety),
//          acquired in that order and released in reverse.
// =============================================================================

package dedupe

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// flockPollInterval is how often TryLockContext re-attempts the OS advisory
// lock while waiting for another process to release it.
const flockPollInterval = 25 * time.Millisecond

// Lock represents a held exclusive claim on a dedupe key. Release must be
// called exactly once, typically via defer.
type Lock struct {
	dedupeKey string
	mu        *sync.Mutex
	flock     *flock.Flock
}

// Release unlocks the OS advisory lock, then the in-process mutex, in the
// reverse of acquisition order.
func (l *Lock) Release() {
	if l.flock != nil {
		_ = l.flock.Unlock()
	}
	if l.mu != nil {
		l.mu.Unlock()
	}
}

// lockTable holds the in-process mutexes, one per dedupe key, created
// lazily and never removed (a dedupe key may be revisited across retries
// and across the process's lifetime).
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) get(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	return m
}

// AcquireLock blocks until the in-process mutex and the OS advisory lock for
// dedupeKey are both held, or ctx is done. lockDir is normally
// <state_dir>/locks.
func AcquireLock(ctx context.Context, lockDir, dedupeKey string, table *lockTable) (*Lock, error) {
	mu := table.get(dedupeKey)

	if err := lockMutexCtx(ctx, mu); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(lockDir, 0755); err != nil {
		mu.Unlock()
		return nil, err
	}

	lockPath := filepath.Join(lockDir, sanitizeLockFilename(dedupeKey)+".lock")
	fl := flock.New(lockPath)

	locked, err := fl.TryLockContext(ctx, flockPollInterval)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if !locked {
		mu.Unlock()
		return nil, ctx.Err()
	}

	return &Lock{dedupeKey: dedupeKey, mu: mu, flock: fl}, nil
}

// lockMutexCtx locks mu, honoring ctx cancellation while waiting.
func lockMutexCtx(ctx context.Context, mu *sync.Mutex) error {
	done := make(chan struct{})
	go func() {
		mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// The goroutine above may still acquire mu after we return; the
		// goroutine below waits for that acquisition and unlocks mu again,
		// so a cancelled caller never ends up holding it.
		go func() {
			<-done
			mu.Unlock()
		}()
		return ctx.Err()
	}
}

func sanitizeLockFilename(dedupeKey string) string {
	return SanitizeComponent(dedupeKey)
}
