// Package ledger applies credits and transfers against the account store and
// records every balance change in an append-only transaction log.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/account"
	"github.com/congo-pay/walletledger/internal/money"
)

var (
	// ErrInvalidAmount occurs when an amount is not strictly positive or is
	// finer than one cent.
	ErrInvalidAmount = money.ErrInvalidAmount

	// ErrSelfTransfer occurs when sender and recipient resolve to the same address.
	ErrSelfTransfer = errors.New("cannot transfer to yourself")

	// ErrAccountNotFound occurs when a credit targets an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSenderNotFound occurs when the transfer sender is unknown.
	ErrSenderNotFound = errors.New("sender not found")

	// ErrRecipientNotFound occurs when the recipient address is unknown.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrInsufficientBalance occurs when the sender cannot cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrLockTimeout occurs when account locks cannot be acquired in time.
	// Nothing has been applied when it is returned.
	ErrLockTimeout = errors.New("timed out waiting for account lock")
)

// IsValidation reports caller-input problems rejected before any mutation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrSelfTransfer)
}

// IsNotFound reports identity resolution failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrSenderNotFound) ||
		errors.Is(err, ErrRecipientNotFound) ||
		errors.Is(err, account.ErrNotFound)
}

// IsConflict reports state-dependent rejections.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) || errors.Is(err, account.ErrAddressTaken)
}

// Kind classifies an entry. Direction is carried by the kind, never by the
// sign of the amount.
type Kind string

const (
	KindCredit         Kind = "credit"
	KindTransferDebit  Kind = "transfer_debit"
	KindTransferCredit Kind = "transfer_credit"
)

// IsTransfer reports whether the kind belongs to one side of a transfer.
func (k Kind) IsTransfer() bool {
	return k == KindTransferDebit || k == KindTransferCredit
}

// IsDebit reports whether the kind reduces the balance.
func (k Kind) IsDebit() bool {
	return k == KindTransferDebit
}

// Entry is one immutable record of a balance-changing event.
type Entry struct {
	ID                  string          `json:"id"`
	AccountID           string          `json:"account_id"`
	Kind                Kind            `json:"kind"`
	Amount              decimal.Decimal `json:"amount"`
	CounterpartyAddress string          `json:"counterparty_address,omitempty"`
	Description         string          `json:"description"`
	Timestamp           time.Time       `json:"timestamp"`
	BalanceAfter        decimal.Decimal `json:"balance_after"`

	// Sequence is the insertion order assigned by the log. It is zero on
	// entries that have not been read back from a log.
	Sequence int64 `json:"-"`
}

// SignedAmount returns the effect of the entry on its account's balance.
func (e Entry) SignedAmount() decimal.Decimal {
	if e.Kind.IsDebit() {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Log is the append-only transaction log.
type Log interface {
	// Append records entries atomically; either all are visible or none.
	Append(ctx context.Context, entries ...Entry) error
	// History returns the account's entries newest first, ties broken by
	// later insertion first, truncated to limit (DefaultHistoryLimit when
	// limit <= 0).
	History(ctx context.Context, accountID string, limit int) ([]Entry, error)
	// Entries returns the account's full history oldest first.
	Entries(ctx context.Context, accountID string) ([]Entry, error)
}

// DefaultHistoryLimit bounds History when the caller passes no limit.
const DefaultHistoryLimit = 10

// Unit exposes the account store and log to a unit of work.
type Unit interface {
	Accounts() account.Store
	Log() Log
}

// Book is the transactional boundary spanning the account store and the log.
type Book interface {
	Unit
	// Atomically runs fn so that every balance change and append it makes
	// becomes visible together, or not at all when fn returns an error.
	Atomically(ctx context.Context, fn func(ctx context.Context, u Unit) error) error
}
