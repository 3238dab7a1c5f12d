// =============================================================================
// FILE: internal/hdm/idempotency/store.go
// PURPOSE: Idempotency Store interface and reservation result types. The
//          trio reserve/release(success) plus the absent -> in_progress ->
//          {absent, completed} transition rule are the contract both
//          implementations (InMemoryStore, SQLiteStore) must uphold.
// =============================================================================

package idempotency

import "context"

// Reservation is the result of attempting to reserve a dedupe key.
type Reservation struct {
	Acquired        bool
	AlreadyProcessed bool
	Reason          string // "in_progress" | "already_completed" | ""
}

// Store reserves and releases dedupe-key claims so at most one pipeline is
// ever in_progress for a given key across the process (and, for durable
// implementations, across processes).
type Store interface {
	// Reserve attempts to claim dedupeKey for processing.
	//   - absent    -> inserted in_progress, Reservation{Acquired: true}
	//   - in_progress -> Reservation{Acquired: false, Reason: "in_progress"}
	//   - completed -> Reservation{Acquired: false, AlreadyProcessed: true, Reason: "already_completed"}
	Reserve(ctx context.Context, dedupeKey string) (Reservation, error)

	// Release transitions dedupeKey out of in_progress: to completed when
	// success is true, or removes the row (back to absent) when false.
	Release(ctx context.Context, dedupeKey string, success bool) error

	// Close releases any resources held by the store (e.g. DB handle).
	Close() error
}

const (
	reasonInProgress      = "in_progress"
	reasonAlreadyCompleted = "already_completed"
)
