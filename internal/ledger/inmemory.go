package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/account"
)

type inMemoryLog struct {
	mu        sync.RWMutex
	entries   []Entry
	byAccount map[string][]int
}

// NewInMemoryLog creates a concurrency-safe in-memory transaction log.
func NewInMemoryLog() Log {
	return &inMemoryLog{byAccount: make(map[string][]int)}
}

func (l *inMemoryLog) Append(_ context.Context, entries ...Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		e.Sequence = int64(len(l.entries) + 1)
		l.byAccount[e.AccountID] = append(l.byAccount[e.AccountID], len(l.entries))
		l.entries = append(l.entries, e)
	}
	return nil
}

func (l *inMemoryLog) History(_ context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	l.mu.RLock()
	out := l.collect(accountID)
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Sequence > out[j].Sequence
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *inMemoryLog) Entries(_ context.Context, accountID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(accountID), nil
}

// collect copies the account's entries in insertion order. Callers hold mu.
func (l *inMemoryLog) collect(accountID string) []Entry {
	idx := l.byAccount[accountID]
	out := make([]Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, l.entries[i])
	}
	return out
}

// memoryBook gates visibility of a store and a log with one RWMutex: reads
// share it, units of work hold it exclusively while they publish.
type memoryBook struct {
	gate     sync.RWMutex
	accounts account.Store
	log      Log
}

// NewInMemory builds a Book over a fresh in-memory account store and log.
func NewInMemory() Book {
	return NewMemoryBook(account.NewMemoryStore(), NewInMemoryLog())
}

// NewMemoryBook builds a Book over existing in-memory components. The
// components must not be written to except through the returned Book.
func NewMemoryBook(accounts account.Store, log Log) Book {
	return &memoryBook{accounts: accounts, log: log}
}

func (b *memoryBook) Accounts() account.Store { return gatedAccounts{b} }

func (b *memoryBook) Log() Log { return gatedLog{b} }

func (b *memoryBook) Atomically(ctx context.Context, fn func(ctx context.Context, u Unit) error) error {
	b.gate.Lock()
	defer b.gate.Unlock()

	u := &memoryUnit{book: b, pending: make(map[string]decimal.Decimal)}
	if err := fn(ctx, u); err != nil {
		return err
	}
	return u.publish(ctx)
}

type gatedAccounts struct{ b *memoryBook }

func (g gatedAccounts) Register(ctx context.Context, address, displayName string) (account.Account, error) {
	g.b.gate.RLock()
	defer g.b.gate.RUnlock()
	return g.b.accounts.Register(ctx, address, displayName)
}

func (g gatedAccounts) FindByID(ctx context.Context, id string) (account.Account, error) {
	g.b.gate.RLock()
	defer g.b.gate.RUnlock()
	return g.b.accounts.FindByID(ctx, id)
}

func (g gatedAccounts) FindByAddress(ctx context.Context, address string) (account.Account, error) {
	g.b.gate.RLock()
	defer g.b.gate.RUnlock()
	return g.b.accounts.FindByAddress(ctx, address)
}

func (g gatedAccounts) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (account.Account, error) {
	g.b.gate.Lock()
	defer g.b.gate.Unlock()
	return g.b.accounts.ApplyDelta(ctx, id, delta)
}

func (g gatedAccounts) List(ctx context.Context) ([]account.Account, error) {
	g.b.gate.RLock()
	defer g.b.gate.RUnlock()
	return g.b.accounts.List(ctx)
}

type gatedLog struct{ b *memoryBook }

func (g gatedLog) Append(ctx context.Context, entries ...Entry) error {
	g.b.gate.Lock()
	defer g.b.gate.Unlock()
	return g.b.log.Append(ctx, entries...)
}

func (g gatedLog) History(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	g.b.gate.RLock()
	defer g.b.gate.RUnlock()
	return g.b.log.History(ctx, accountID, limit)
}

func (g gatedLog) Entries(ctx context.Context, accountID string) ([]Entry, error) {
	g.b.gate.RLock()
	defer g.b.gate.RUnlock()
	return g.b.log.Entries(ctx, accountID)
}

var errRegisterInUnit = errors.New("ledger: registration is not part of a unit of work")

// memoryUnit stages deltas and entries; nothing reaches the underlying store
// or log until publish. The owning book's gate is held for its lifetime.
type memoryUnit struct {
	book    *memoryBook
	pending map[string]decimal.Decimal
	order   []string
	staged  []Entry
}

func (u *memoryUnit) Accounts() account.Store { return stagedAccounts{u} }

func (u *memoryUnit) Log() Log { return stagedLog{u} }

func (u *memoryUnit) view(acct account.Account) account.Account {
	if delta, ok := u.pending[acct.ID]; ok {
		acct.Balance = acct.Balance.Add(delta)
	}
	return acct
}

func (u *memoryUnit) publish(ctx context.Context) error {
	applied := make([]string, 0, len(u.order))
	for _, id := range u.order {
		if _, err := u.book.accounts.ApplyDelta(ctx, id, u.pending[id]); err != nil {
			u.revert(ctx, applied)
			return err
		}
		applied = append(applied, id)
	}
	if len(u.staged) > 0 {
		if err := u.book.log.Append(ctx, u.staged...); err != nil {
			u.revert(ctx, applied)
			return err
		}
	}
	return nil
}

func (u *memoryUnit) revert(ctx context.Context, applied []string) {
	for i := len(applied) - 1; i >= 0; i-- {
		id := applied[i]
		_, _ = u.book.accounts.ApplyDelta(ctx, id, u.pending[id].Neg())
	}
}

type stagedAccounts struct{ u *memoryUnit }

func (s stagedAccounts) Register(context.Context, string, string) (account.Account, error) {
	return account.Account{}, errRegisterInUnit
}

func (s stagedAccounts) FindByID(ctx context.Context, id string) (account.Account, error) {
	acct, err := s.u.book.accounts.FindByID(ctx, id)
	if err != nil {
		return account.Account{}, err
	}
	return s.u.view(acct), nil
}

func (s stagedAccounts) FindByAddress(ctx context.Context, address string) (account.Account, error) {
	acct, err := s.u.book.accounts.FindByAddress(ctx, address)
	if err != nil {
		return account.Account{}, err
	}
	return s.u.view(acct), nil
}

func (s stagedAccounts) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (account.Account, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return account.Account{}, err
	}
	next := current.Balance.Add(delta)
	if next.IsNegative() {
		return account.Account{}, account.ErrWouldGoNegative
	}
	if _, seen := s.u.pending[id]; !seen {
		s.u.order = append(s.u.order, id)
	}
	s.u.pending[id] = s.u.pending[id].Add(delta)
	current.Balance = next
	return current, nil
}

func (s stagedAccounts) List(ctx context.Context) ([]account.Account, error) {
	all, err := s.u.book.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		all[i] = s.u.view(all[i])
	}
	return all, nil
}

type stagedLog struct{ u *memoryUnit }

func (s stagedLog) Append(_ context.Context, entries ...Entry) error {
	s.u.staged = append(s.u.staged, entries...)
	return nil
}

func (s stagedLog) History(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	return s.u.book.log.History(ctx, accountID, limit)
}

func (s stagedLog) Entries(ctx context.Context, accountID string) ([]Entry, error) {
	return s.u.book.log.Entries(ctx, accountID)
}
