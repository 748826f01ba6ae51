// Package store implements persistence adapters for the ledger: in-memory,
// JSON-lines file, SQLite, Postgres and Pebble. Every adapter is append-only
// and reports a taken index as ledger.ErrConcurrentAppend.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

// MemoryStore keeps records in process memory. Suitable for tests and demos.
type MemoryStore struct {
	mu      sync.RWMutex
	records []ledger.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make([]ledger.Record, 0)}
}

// Save appends rec if its index is the next one.
func (s *MemoryStore) Save(_ context.Context, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next := int64(len(s.records)); rec.Index != next {
		return fmt.Errorf("index %d, next is %d: %w", rec.Index, next, ledger.ErrConcurrentAppend)
	}
	s.records = append(s.records, rec.Clone())
	return nil
}

// LoadAll returns a copy of every record in index order.
func (s *MemoryStore) LoadAll(_ context.Context) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out, nil
}

// Tail returns the last record.
func (s *MemoryStore) Tail(_ context.Context) (ledger.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return ledger.Record{}, false, nil
	}
	return s.records[len(s.records)-1].Clone(), true, nil
}

// Reset drops every record.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]ledger.Record, 0)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Overwrite replaces the stored record at position i without rehashing.
// It exists to simulate storage-level tampering in integrity tests.
func (s *MemoryStore) Overwrite(i int, fn func(*ledger.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.records[i])
}
