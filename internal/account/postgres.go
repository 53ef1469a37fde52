package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/infra"
)

const uniqueViolation = "23505"

// PostgresStore persists accounts in PostgreSQL. It runs against a pool or,
// inside a unit of work, against a pgx.Tx.
type PostgresStore struct {
	db infra.Querier
}

// NewPostgresStore constructs a Postgres-backed account store.
func NewPostgresStore(db infra.Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectAccount = `SELECT id, address, display_name, balance::text, created_at FROM accounts`

// Register inserts a new account with a zero balance.
func (s *PostgresStore) Register(ctx context.Context, address, displayName string) (Account, error) {
	acct := Account{
		ID:          uuid.NewString(),
		Address:     NormalizeAddress(address),
		DisplayName: displayName,
		Balance:     decimal.Zero,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (id, address, display_name, balance, created_at)
        VALUES ($1, $2, $3, 0, $4)`, acct.ID, acct.Address, acct.DisplayName, acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Account{}, ErrAddressTaken
		}
		return Account{}, err
	}
	return acct, nil
}

// FindByID fetches an account by identifier.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(s.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
}

// FindByAddress fetches an account by its unique address.
func (s *PostgresStore) FindByAddress(ctx context.Context, address string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, selectAccount+` WHERE address = $1`, NormalizeAddress(address)))
}

// ApplyDelta adjusts the balance in a single conditional statement so the
// row lock and the non-negativity check cannot be separated.
func (s *PostgresStore) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Account{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2::numeric
        WHERE id = $1 AND balance + $2::numeric >= 0
        RETURNING id, address, display_name, balance::text, created_at`, id, delta.String())
	acct, err := scanAccount(row)
	if !errors.Is(err, ErrNotFound) {
		return acct, err
	}

	if _, err := s.FindByID(ctx, id); err != nil {
		return Account{}, err
	}
	return Account{}, ErrWouldGoNegative
}

// List returns every account in registration order.
func (s *PostgresStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.Query(ctx, selectAccount+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct    Account
		id      uuid.UUID
		balance string
	)
	if err := row.Scan(&id, &acct.Address, &acct.DisplayName, &balance, &acct.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("decode balance: %w", err)
	}
	acct.ID = id.String()
	acct.Balance = bal
	acct.CreatedAt = acct.CreatedAt.UTC()
	return acct, nil
}
