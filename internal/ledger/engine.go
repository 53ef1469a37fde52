package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/account"
	"github.com/congo-pay/walletledger/internal/money"
)

const (
	// DefaultLockTimeout bounds how long an operation waits for account locks.
	DefaultLockTimeout = 5 * time.Second

	// DefaultCreditDescription labels a plain top-up.
	DefaultCreditDescription = "Added money to wallet"
)

// Engine is the sole writer of balances. It validates each operation, locks
// the accounts it touches and commits balance changes together with their
// entries through the Book.
type Engine struct {
	book        Book
	locks       *lockTable
	lockTimeout time.Duration
	logger      *slog.Logger

	clockMu sync.Mutex
	now     func() time.Time
	last    time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine over book.
func NewEngine(book Book, opts ...Option) *Engine {
	e := &Engine{
		book:        book,
		locks:       newLockTable(),
		lockTimeout: DefaultLockTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Book returns the book the engine writes to.
func (e *Engine) Book() Book { return e.book }

// timestamp never goes backwards within the process, even if the wall clock does.
func (e *Engine) timestamp() time.Time {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	t := e.now().UTC()
	if t.Before(e.last) {
		t = e.last
	}
	e.last = t
	return t
}

func (e *Engine) lock(ctx context.Context, ids ...string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	return e.locks.acquire(lockCtx, ids...)
}

// Credit adds amount to the account and records one credit entry.
func (e *Engine) Credit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (decimal.Decimal, Entry, error) {
	if err := money.Validate(amount); err != nil {
		return decimal.Zero, Entry{}, err
	}
	if description == "" {
		description = DefaultCreditDescription
	}

	if _, err := e.book.Accounts().FindByID(ctx, accountID); err != nil {
		return decimal.Zero, Entry{}, notFound(err, ErrAccountNotFound)
	}

	release, err := e.lock(ctx, accountID)
	if err != nil {
		return decimal.Zero, Entry{}, err
	}
	defer release()

	var entry Entry
	err = e.book.Atomically(context.WithoutCancel(ctx), func(ctx context.Context, u Unit) error {
		acct, err := u.Accounts().ApplyDelta(ctx, accountID, amount)
		if err != nil {
			return notFound(err, ErrAccountNotFound)
		}
		entry = Entry{
			ID:           uuid.NewString(),
			AccountID:    acct.ID,
			Kind:         KindCredit,
			Amount:       amount,
			Description:  description,
			Timestamp:    e.timestamp(),
			BalanceAfter: acct.Balance,
		}
		return u.Log().Append(ctx, entry)
	})
	if err != nil {
		return decimal.Zero, Entry{}, err
	}

	e.logger.Debug("ledger.credit",
		slog.String("account_id", accountID),
		slog.String("amount", money.Format(amount)),
		slog.String("balance_after", money.Format(entry.BalanceAfter)),
	)
	return entry.BalanceAfter, entry, nil
}

// Transfer moves amount from the sender to the account registered under
// recipientAddress. Preconditions are checked in a fixed order and the first
// failure wins with no effect. On success both balance changes and both
// entries are committed as one unit; the sender's new balance and entry are
// returned.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientAddress string, amount decimal.Decimal, description string) (decimal.Decimal, Entry, error) {
	legs, err := e.TransferLegs(ctx, senderID, recipientAddress, amount, description)
	if err != nil {
		return decimal.Zero, Entry{}, err
	}
	return legs.Debit.BalanceAfter, legs.Debit, nil
}

// Legs holds both entries committed by one transfer.
type Legs struct {
	Debit  Entry
	Credit Entry
}

// TransferLegs is Transfer returning both committed entries.
func (e *Engine) TransferLegs(ctx context.Context, senderID, recipientAddress string, amount decimal.Decimal, description string) (Legs, error) {
	if err := money.Validate(amount); err != nil {
		return Legs{}, err
	}

	accounts := e.book.Accounts()
	sender, err := accounts.FindByID(ctx, senderID)
	if err != nil {
		return Legs{}, notFound(err, ErrSenderNotFound)
	}
	recipient, err := accounts.FindByAddress(ctx, recipientAddress)
	if err != nil {
		return Legs{}, notFound(err, ErrRecipientNotFound)
	}
	if sender.Address == recipient.Address {
		return Legs{}, ErrSelfTransfer
	}

	release, err := e.lock(ctx, sender.ID, recipient.ID)
	if err != nil {
		return Legs{}, err
	}
	defer release()

	// Re-read under the lock; no other writer can touch the sender now.
	sender, err = accounts.FindByID(ctx, sender.ID)
	if err != nil {
		return Legs{}, notFound(err, ErrSenderNotFound)
	}
	if sender.Balance.LessThan(amount) {
		return Legs{}, ErrInsufficientBalance
	}

	if description == "" {
		description = "Sent to " + recipient.Address
	}

	var debit, credit Entry
	err = e.book.Atomically(context.WithoutCancel(ctx), func(ctx context.Context, u Unit) error {
		balances, err := applyOrdered(ctx, u.Accounts(), map[string]decimal.Decimal{
			sender.ID:    amount.Neg(),
			recipient.ID: amount,
		})
		if err != nil {
			return err
		}

		ts := e.timestamp()
		debit = Entry{
			ID:                  uuid.NewString(),
			AccountID:           sender.ID,
			Kind:                KindTransferDebit,
			Amount:              amount,
			CounterpartyAddress: recipient.Address,
			Description:         description,
			Timestamp:           ts,
			BalanceAfter:        balances[sender.ID],
		}
		credit = Entry{
			ID:                  uuid.NewString(),
			AccountID:           recipient.ID,
			Kind:                KindTransferCredit,
			Amount:              amount,
			CounterpartyAddress: sender.Address,
			Description:         "Received from " + sender.Address,
			Timestamp:           ts,
			BalanceAfter:        balances[recipient.ID],
		}
		return u.Log().Append(ctx, debit, credit)
	})
	if err != nil {
		return Legs{}, err
	}

	e.logger.Debug("ledger.transfer",
		slog.String("sender_id", sender.ID),
		slog.String("recipient_id", recipient.ID),
		slog.String("amount", money.Format(amount)),
	)
	return Legs{Debit: debit, Credit: credit}, nil
}

// applyOrdered applies deltas in ascending account id order so database row
// locks are taken in the same order as the engine's own locks.
func applyOrdered(ctx context.Context, store account.Store, deltas map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	balances := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		acct, err := store.ApplyDelta(ctx, id, deltas[id])
		switch {
		case errors.Is(err, account.ErrWouldGoNegative):
			return nil, ErrInsufficientBalance
		case errors.Is(err, account.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		case err != nil:
			return nil, err
		}
		balances[id] = acct.Balance
	}
	return balances, nil
}

// notFound translates the store's not-found into the caller-specific sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, account.ErrNotFound) {
		return sentinel
	}
	return err
}
