// =============================================================================
// FILE: internal/hdm/idempotency/memory_store.go
// PURPOSE: In-memory Store implementation for tests and single-process runs
//          without durability requirements. Uses a single mutex guarding two
//          sets, matching spec.md §4.6's in-memory variant exactly.
// =============================================================================

package idempotency

import (
	"context"
	"sync"
)

// InMemoryStore implements Store with a single lock guarding two sets.
type InMemoryStore struct {
	mu         sync.Mutex
	inProgress map[string]struct{}
	completed  map[string]struct{}
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		inProgress: make(map[string]struct{}),
		completed:  make(map[string]struct{}),
	}
}

func (s *InMemoryStore) Reserve(_ context.Context, dedupeKey string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.completed[dedupeKey]; done {
		return Reservation{Acquired: false, AlreadyProcessed: true, Reason: reasonAlreadyCompleted}, nil
	}
	if _, inflight := s.inProgress[dedupeKey]; inflight {
		return Reservation{Acquired: false, Reason: reasonInProgress}, nil
	}
	s.inProgress[dedupeKey] = struct{}{}
	return Reservation{Acquired: true}, nil
}

func (s *InMemoryStore) Release(_ context.Context, dedupeKey string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inProgress, dedupeKey)
	if success {
		s.completed[dedupeKey] = struct{}{}
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
