package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It backs tests and single-node
// deployments that do not need attempt history to survive restarts.
type MemoryStore struct {
	mu       sync.Mutex
	attempts []Attempt
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends one attempt.
func (s *MemoryStore) Insert(_ context.Context, attempt Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.OccurredAt.IsZero() {
		attempt.OccurredAt = time.Now().UTC()
	}
	if len(attempt.Context) > 0 {
		clone := make(map[string]string, len(attempt.Context))
		for k, v := range attempt.Context {
			clone[k] = v
		}
		attempt.Context = clone
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

// Query returns matching attempts, newest first.
func (s *MemoryStore) Query(_ context.Context, filter Filter) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []Attempt
	// Stored in insertion order; walk backwards so newer inserts win ties.
	for i := len(s.attempts) - 1; i >= 0; i-- {
		if matchesFilter(s.attempts[i], filter) {
			matches = append(matches, s.attempts[i])
		}
	}

	// Insertion order is not guaranteed to be time order once tests inject
	// clocks, so sort explicitly.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].OccurredAt.After(matches[j-1].OccurredAt); j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}

	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

// Prune deletes attempts older than the cutoff.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.attempts[:0]
	var removed int64
	for _, attempt := range s.attempts {
		if attempt.OccurredAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, attempt)
	}
	s.attempts = kept
	return removed, nil
}

func matchesFilter(attempt Attempt, filter Filter) bool {
	if filter.Email != "" && attempt.Email != filter.Email {
		return false
	}
	if filter.Kind != "" && attempt.Kind != filter.Kind {
		return false
	}
	if filter.Outcome != "" && attempt.Outcome != filter.Outcome {
		return false
	}
	if !filter.Since.IsZero() && attempt.OccurredAt.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && attempt.OccurredAt.After(filter.Until) {
		return false
	}
	return true
}
