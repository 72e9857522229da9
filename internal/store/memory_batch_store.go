package store

import (
	"context"
	"sync"
	"time"

	"github.com/gbmarques/dicomflow/internal/domain"
)

type MemoryBatchStore struct {
	mu      sync.RWMutex
	batches map[string]domain.Batch
	usage   []domain.UsageLog
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{
		batches: make(map[string]domain.Batch),
	}
}

func (s *MemoryBatchStore) Create(_ context.Context, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = batch
	return nil
}

func (s *MemoryBatchStore) Get(_ context.Context, id string) (domain.Batch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	return batch, ok, nil
}

func (s *MemoryBatchStore) UpdateStatus(_ context.Context, id, status string) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}

	batch.Status = status
	batch.UpdatedAt = time.Now().UTC()
	s.batches[id] = batch
	return batch, nil
}

func (s *MemoryBatchStore) SetResults(_ context.Context, id, status string, results []domain.Result) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}

	batch.Status = status
	batch.Results = results
	batch.UpdatedAt = time.Now().UTC()
	s.batches[id] = batch
	return batch, nil
}

func (s *MemoryBatchStore) RecordUsage(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

// Usage returns a copy of the recorded usage entries, oldest first.
func (s *MemoryBatchStore) Usage() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UsageLog, len(s.usage))
	copy(out, s.usage)
	return out
}
