package wallet

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/account"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/notification"
)

// Service is the wallet façade. It forwards to the ledger engine, maps
// failures to stable codes and emits notifications once changes commit.
type Service struct {
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
	limits   Limits
}

// NewService builds a wallet service instance. A nil notifier disables
// notifications and a nil logger discards output.
func NewService(engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger, limits Limits) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	defaults := DefaultLimits()
	if limits.HistoryDefault <= 0 {
		limits.HistoryDefault = defaults.HistoryDefault
	}
	if limits.HistoryMax <= 0 {
		limits.HistoryMax = defaults.HistoryMax
	}
	if limits.HistoryDefault > limits.HistoryMax {
		limits.HistoryDefault = limits.HistoryMax
	}
	return &Service{engine: engine, notifier: notifier, logger: logger, limits: limits}
}

// RegisterAccount creates an account with a zero balance.
func (s *Service) RegisterAccount(ctx context.Context, address, displayName string) (account.Account, error) {
	if account.NormalizeAddress(address) == "" {
		return account.Account{}, wrap(ErrInvalidAddress)
	}
	acct, err := s.engine.Book().Accounts().Register(ctx, address, strings.TrimSpace(displayName))
	if err != nil {
		return account.Account{}, wrap(err)
	}
	s.logger.Info("wallet.account_registered", slog.String("account_id", acct.ID), slog.String("address", acct.Address))
	return acct, nil
}

// Provision registers an account and credits it with an opening balance.
// A zero opening balance only registers.
func (s *Service) Provision(ctx context.Context, address, displayName string, opening decimal.Decimal) (account.Account, error) {
	if opening.IsNegative() {
		return account.Account{}, wrap(money.ErrInvalidAmount)
	}
	if !opening.IsZero() {
		if err := money.Validate(opening); err != nil {
			return account.Account{}, wrap(err)
		}
	}

	acct, err := s.RegisterAccount(ctx, address, displayName)
	if err != nil {
		return account.Account{}, err
	}
	if opening.IsZero() {
		return acct, nil
	}

	balance, _, err := s.engine.Credit(ctx, acct.ID, opening, ProvisionDescription)
	if err != nil {
		return account.Account{}, wrap(err)
	}
	acct.Balance = balance
	return acct, nil
}

// CompleteProvision finishes a Provision that stopped after registration:
// an account with an empty history receives its opening credit. Accounts
// with any history are returned as they are. Meant for start-up seeding,
// before the account takes traffic.
func (s *Service) CompleteProvision(ctx context.Context, address string, opening decimal.Decimal) (account.Account, error) {
	acct, err := s.engine.Book().Accounts().FindByAddress(ctx, address)
	if err != nil {
		return account.Account{}, wrap(err)
	}
	if opening.IsZero() {
		return acct, nil
	}
	history, err := s.engine.Book().Log().History(ctx, acct.ID, 1)
	if err != nil {
		return account.Account{}, wrap(err)
	}
	if len(history) > 0 {
		return acct, nil
	}

	balance, _, err := s.engine.Credit(ctx, acct.ID, opening, ProvisionDescription)
	if err != nil {
		return account.Account{}, wrap(err)
	}
	s.logger.Info("wallet.provision_completed", slog.String("account_id", acct.ID))
	acct.Balance = balance
	return acct, nil
}

// Account returns the account and its current balance.
func (s *Service) Account(ctx context.Context, accountID string) (account.Account, error) {
	acct, err := s.engine.Book().Accounts().FindByID(ctx, accountID)
	if err != nil {
		return account.Account{}, wrap(err)
	}
	return acct, nil
}

// Deposit credits the account with amount.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (Receipt, error) {
	balance, entry, err := s.engine.Credit(ctx, accountID, amount, "")
	if err != nil {
		return Receipt{}, wrap(err)
	}

	s.notify(ctx, notification.Message{
		Kind:        notification.KindDeposit,
		Destination: accountID,
		Body:        entry.Description,
		EntryID:     entry.ID,
		Amount:      money.Format(amount),
		OccurredAt:  entry.Timestamp,
	})
	return Receipt{Balance: balance, Entry: entry}, nil
}

// Send transfers amount from the sender to recipientAddress.
func (s *Service) Send(ctx context.Context, senderID, recipientAddress string, amount decimal.Decimal, description string) (Receipt, error) {
	legs, err := s.engine.TransferLegs(ctx, senderID, recipientAddress, amount, strings.TrimSpace(description))
	if err != nil {
		return Receipt{}, wrap(err)
	}

	for _, n := range []struct {
		kind  string
		entry ledger.Entry
	}{
		{notification.KindTransferSent, legs.Debit},
		{notification.KindTransferReceived, legs.Credit},
	} {
		s.notify(ctx, notification.Message{
			Kind:        n.kind,
			Destination: n.entry.AccountID,
			Body:        n.entry.Description,
			EntryID:     n.entry.ID,
			Amount:      money.Format(amount),
			OccurredAt:  n.entry.Timestamp,
		})
	}
	return Receipt{Balance: legs.Debit.BalanceAfter, Entry: legs.Debit}, nil
}

// RecentActivity returns the account's entries, newest first. A limit of
// zero or less selects the configured default; larger limits are capped.
func (s *Service) RecentActivity(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	if _, err := s.engine.Book().Accounts().FindByID(ctx, accountID); err != nil {
		return nil, wrap(err)
	}
	if limit <= 0 {
		limit = s.limits.HistoryDefault
	}
	if limit > s.limits.HistoryMax {
		limit = s.limits.HistoryMax
	}
	entries, err := s.engine.Book().Log().History(ctx, accountID, limit)
	if err != nil {
		return nil, wrap(err)
	}
	return entries, nil
}

// Audit replays the account's log against its stored balance.
func (s *Service) Audit(ctx context.Context, accountID string) (ledger.AuditReport, error) {
	report, err := s.engine.Audit(ctx, accountID)
	if err != nil {
		return ledger.AuditReport{}, wrap(err)
	}
	if !report.Consistent {
		s.logger.Error("wallet.audit_mismatch",
			slog.String("account_id", accountID),
			slog.String("stored", money.Format(report.Stored)),
			slog.String("replayed", money.Format(report.Replayed)),
		)
	}
	return report, nil
}

// notify delivers msg after the ledger change has committed. Failures are
// logged only.
func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Warn("wallet.notification_failed",
			slog.String("kind", msg.Kind),
			slog.String("destination", msg.Destination),
			slog.String("error", err.Error()),
		)
	}
}
