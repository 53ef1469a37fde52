package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu        sync.RWMutex
	byAddress map[string]Record
	accounts  map[string]struct{}
}

// NewMemoryRepository builds an in-memory credential store.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byAddress: make(map[string]Record),
		accounts:  make(map[string]struct{}),
	}
}

func (r *memoryRepository) Create(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddress[rec.Address]; exists {
		return ErrAlreadyEnrolled
	}
	if _, exists := r.accounts[rec.AccountID]; exists {
		return ErrAlreadyEnrolled
	}
	r.byAddress[rec.Address] = rec
	r.accounts[rec.AccountID] = struct{}{}
	return nil
}

func (r *memoryRepository) FindByAddress(_ context.Context, address string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byAddress[address]
	if !ok {
		return Record{}, errRecordNotFound
	}
	return rec, nil
}
