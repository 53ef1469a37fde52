package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/account"
	"github.com/congo-pay/walletledger/internal/infra"
)

// PostgresLog persists entries in PostgreSQL.
type PostgresLog struct {
	db infra.Querier
}

// NewPostgresLog constructs a Postgres-backed transaction log.
func NewPostgresLog(db infra.Querier) *PostgresLog {
	return &PostgresLog{db: db}
}

// Append inserts all entries in one statement, so the call is atomic even
// outside a unit of work.
func (l *PostgresLog) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(entries)*8)
	)
	sb.WriteString(`INSERT INTO ledger_entries
        (id, account_id, kind, amount, counterparty_address, description, created_at, balance_after) VALUES `)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d::numeric, NULLIF($%d, ''), $%d, $%d, $%d::numeric)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8)
		args = append(args, e.ID, e.AccountID, string(e.Kind), e.Amount.String(),
			e.CounterpartyAddress, e.Description, e.Timestamp.UTC(), e.BalanceAfter.String())
	}

	_, err := l.db.Exec(ctx, sb.String(), args...)
	return err
}

const selectEntries = `SELECT seq, id, account_id, kind, amount::text, COALESCE(counterparty_address, ''),
        description, created_at, balance_after::text
    FROM ledger_entries WHERE account_id = $1`

// History returns the newest entries for an account.
func (l *PostgresLog) History(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if _, err := uuid.Parse(accountID); err != nil {
		return []Entry{}, nil
	}
	return l.query(ctx, selectEntries+` ORDER BY created_at DESC, seq DESC LIMIT $2`, accountID, limit)
}

// Entries returns an account's full history oldest first.
func (l *PostgresLog) Entries(ctx context.Context, accountID string) ([]Entry, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return []Entry{}, nil
	}
	return l.query(ctx, selectEntries+` ORDER BY created_at, seq`, accountID)
}

func (l *PostgresLog) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := l.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e                     Entry
			id, accountID         uuid.UUID
			kind, amount, balance string
		)
		if err := rows.Scan(&e.Sequence, &id, &accountID, &kind, &amount,
			&e.CounterpartyAddress, &e.Description, &e.Timestamp, &balance); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode amount: %w", err)
		}
		if e.BalanceAfter, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("decode balance_after: %w", err)
		}
		e.ID = id.String()
		e.AccountID = accountID.String()
		e.Kind = Kind(kind)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// PostgresBook runs units of work inside a single PostgreSQL transaction.
type PostgresBook struct {
	db       *pgxpool.Pool
	accounts *account.PostgresStore
	log      *PostgresLog
}

// NewPostgresBook constructs a Book over the given pool.
func NewPostgresBook(db *pgxpool.Pool) *PostgresBook {
	return &PostgresBook{
		db:       db,
		accounts: account.NewPostgresStore(db),
		log:      NewPostgresLog(db),
	}
}

// Accounts returns the pool-backed account store.
func (b *PostgresBook) Accounts() account.Store { return b.accounts }

// Log returns the pool-backed transaction log.
func (b *PostgresBook) Log() Log { return b.log }

// Atomically runs fn in a transaction and commits only if fn succeeds.
func (b *PostgresBook) Atomically(ctx context.Context, fn func(ctx context.Context, u Unit) error) error {
	tx, err := b.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	u := postgresUnit{accounts: account.NewPostgresStore(tx), log: NewPostgresLog(tx)}
	if err := fn(ctx, u); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type postgresUnit struct {
	accounts *account.PostgresStore
	log      *PostgresLog
}

func (u postgresUnit) Accounts() account.Store { return u.accounts }

func (u postgresUnit) Log() Log { return u.log }
