// =============================================================================
// FILE: internal/hdm/idempotency/sqlite_store.go
// PURPOSE: Durable Store implementation backed by modernc.org/sqlite (pure
//          Go, no cgo). Opened WAL-mode with a busy timeout, single
//          connection, and a retry-on-busy wrapper around every statement —
//          folded from the teacher's internal/db/db.go + wrapper.go pattern
//          into this package's own connection, since the teacher's
//          multi-model connection pool has no analogue here (one store per
//          process).
// =============================================================================

package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"harmonydl/internal/logging"
)

// SQLiteStore is a durable, cross-process-safe idempotency store.
type SQLiteStore struct {
	db             *sql.DB
	maxAttempts    int
	retryBase      time.Duration
	retryMultiplier float64
}

// SQLiteStoreOption configures retry behavior for transient SQLITE_BUSY /
// SQLITE_LOCKED errors.
type SQLiteStoreOption func(*SQLiteStore)

// WithMaxAttempts overrides the default of 3 retry attempts.
func WithMaxAttempts(n int) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBase overrides the default 100ms initial backoff.
func WithRetryBase(d time.Duration) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.retryBase = d
		}
	}
}

// WithRetryMultiplier overrides the default 2x backoff multiplier.
func WithRetryMultiplier(m float64) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		if m > 1 {
			s.retryMultiplier = m
		}
	}
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed idempotency
// store at path, with WAL journaling and a 5s busy timeout, mirroring the
// teacher's internal/db/db.go connection settings.
func NewSQLiteStore(path string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create idempotency store directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open idempotency store %s: %w", path, err)
	}

	// SQLite handles exactly one writer; keep the pool to a single
	// connection so our own retry wrapper is the only contention point.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open idempotency store %s: %w", path, err)
	}

	s := &SQLiteStore{
		db:              sqlDB,
		maxAttempts:     3,
		retryBase:       100 * time.Millisecond,
		retryMultiplier: 2,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate idempotency store %s: %w", path, err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS idempotency (
			dedupe_key TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			attempts   INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

func (s *SQLiteStore) Reserve(ctx context.Context, dedupeKey string) (Reservation, error) {
	var result Reservation

	err := s.withRetry(ctx, "reserve", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var status string
		err = tx.QueryRowContext(ctx,
			`SELECT status FROM idempotency WHERE dedupe_key = ?`, dedupeKey,
		).Scan(&status)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO idempotency (dedupe_key, status, attempts, updated_at) VALUES (?, 'in_progress', 1, ?)`,
				dedupeKey, time.Now().UTC(),
			); err != nil {
				return err
			}
			result = Reservation{Acquired: true}
		case err != nil:
			return err
		case status == "completed":
			result = Reservation{Acquired: false, AlreadyProcessed: true, Reason: reasonAlreadyCompleted}
		default: // in_progress
			result = Reservation{Acquired: false, Reason: reasonInProgress}
		}

		return tx.Commit()
	})

	return result, err
}

func (s *SQLiteStore) Release(ctx context.Context, dedupeKey string, success bool) error {
	return s.withRetry(ctx, "release", func() error {
		if success {
			_, err := s.db.ExecContext(ctx,
				`UPDATE idempotency SET status = 'completed', updated_at = ? WHERE dedupe_key = ?`,
				time.Now().UTC(), dedupeKey,
			)
			return err
		}
		_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency WHERE dedupe_key = ?`, dedupeKey)
		return err
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Retry wrapper (folded from the teacher's internal/db/wrapper.go)
// ---------------------------------------------------------------------------

func (s *SQLiteStore) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	delay := s.retryBase

	for attempt := 0; attempt <= s.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return fmt.Errorf("idempotency %s: %w", operation, lastErr)
		}

		logging.DB().Debug("retrying idempotency operation",
			"operation", operation, "attempt", attempt+1, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * s.retryMultiplier)
		}
	}

	return fmt.Errorf("idempotency %s: max retries exceeded: %w", operation, lastErr)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
