package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// AuditReport compares an account's stored balance with the balance obtained
// by replaying its log.
type AuditReport struct {
	AccountID     string
	Stored        decimal.Decimal
	Replayed      decimal.Decimal
	Entries       int
	Consistent    bool
	FirstMismatch *Entry
}

// Audit replays the account's entries in order and checks every
// balance_after checkpoint along the way. The account is locked for the
// duration so no commit can land between the two reads.
func (e *Engine) Audit(ctx context.Context, accountID string) (AuditReport, error) {
	if _, err := e.book.Accounts().FindByID(ctx, accountID); err != nil {
		return AuditReport{}, notFound(err, ErrAccountNotFound)
	}

	release, err := e.lock(ctx, accountID)
	if err != nil {
		return AuditReport{}, err
	}
	defer release()

	acct, err := e.book.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return AuditReport{}, notFound(err, ErrAccountNotFound)
	}
	entries, err := e.book.Log().Entries(ctx, accountID)
	if err != nil {
		return AuditReport{}, err
	}

	report := Replay(entries)
	report.AccountID = accountID
	report.Stored = acct.Balance
	report.Consistent = report.FirstMismatch == nil && report.Replayed.Equal(acct.Balance)
	return report, nil
}

// Replay sums the signed amounts of entries given oldest first and records
// the first entry whose balance_after disagrees with the running total.
func Replay(entries []Entry) AuditReport {
	report := AuditReport{Replayed: decimal.Zero, Entries: len(entries)}
	for i := range entries {
		report.Replayed = report.Replayed.Add(entries[i].SignedAmount())
		if report.FirstMismatch == nil && !report.Replayed.Equal(entries[i].BalanceAfter) {
			mismatch := entries[i]
			report.FirstMismatch = &mismatch
		}
	}
	return report
}
