package history

import (
	"context"
	"sync"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	versions []model.ConflictResolutionHistory
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, h model.ConflictResolutionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions = append(s.versions, h)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]model.ConflictResolutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Latest(s.versions, q), nil
}

func (s *MemoryStore) Close() error { return nil }
