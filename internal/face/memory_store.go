package face

import (
	"context"
	"sync"
)

// MemoryStore keeps face records in process. Used when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]FaceRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]FaceRecord)}
}

func (s *MemoryStore) Save(ctx context.Context, rec FaceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Get returns a stored record.
func (s *MemoryStore) Get(id string) (FaceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}
