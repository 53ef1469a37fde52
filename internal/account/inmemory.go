package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*Account
	byAddress map[string]string
	order     []string
}

// NewMemoryStore constructs a concurrency-safe in-memory account store.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts:  make(map[string]*Account),
		byAddress: make(map[string]string),
	}
}

func (s *memoryStore) Register(_ context.Context, address, displayName string) (Account, error) {
	address = NormalizeAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byAddress[address]; exists {
		return Account{}, ErrAddressTaken
	}

	acct := &Account{
		ID:          uuid.NewString(),
		Address:     address,
		DisplayName: displayName,
		Balance:     decimal.Zero,
		CreatedAt:   time.Now().UTC(),
	}
	s.accounts[acct.ID] = acct
	s.byAddress[address] = acct.ID
	s.order = append(s.order, acct.ID)
	return *acct, nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acct, nil
}

func (s *memoryStore) FindByAddress(_ context.Context, address string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAddress[NormalizeAddress(address)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *s.accounts[id], nil
}

func (s *memoryStore) ApplyDelta(_ context.Context, id string, delta decimal.Decimal) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	next := acct.Balance.Add(delta)
	if next.IsNegative() {
		return Account{}, ErrWouldGoNegative
	}
	acct.Balance = next
	return *acct, nil
}

func (s *memoryStore) List(_ context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.accounts[id])
	}
	return out, nil
}
