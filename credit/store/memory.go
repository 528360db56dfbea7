// Package store provides snapshot stores for credit records.
package store

import (
	"context"
	"sync"

	"github.com/fishlinghu/magma/credit"
)

// MemoryStore is an in-memory snapshot store. Useful for tests and for
// single-process deployments that only need snapshots across manager
// restarts within the same process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memKey]credit.RecordSnapshot
}

type memKey struct {
	sessionID   string
	chargingKey uint32
}

var _ credit.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memKey]credit.RecordSnapshot)}
}

// Save upserts the given snapshots.
func (s *MemoryStore) Save(_ context.Context, records []credit.RecordSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.records[memKey{r.SessionID, r.ChargingKey}] = r
	}
	return nil
}

// Load returns all persisted snapshots.
func (s *MemoryStore) Load(_ context.Context) ([]credit.RecordSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]credit.RecordSnapshot, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

// Delete removes the snapshot for one record.
func (s *MemoryStore) Delete(_ context.Context, sessionID string, chargingKey uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, memKey{sessionID, chargingKey})
	return nil
}
