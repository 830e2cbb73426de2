package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps rate records in process memory. Suitable for a single instance only.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]RateRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]RateRecord),
	}
}

// Update applies fn to the record for id under the store lock.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(rec *RateRecord) *RateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *RateRecord
	if rec, ok := s.records[id]; ok {
		current = &rec
	}
	if next := fn(current); next != nil {
		s.records[id] = *next
	}
	return nil
}

// Sweep deletes records whose window ended before cutoff and returns how many were removed.
func (s *MemoryStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if rec.WindowResetAt.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
