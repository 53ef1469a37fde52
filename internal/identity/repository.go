package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists credentials.
type Repository interface {
	Create(ctx context.Context, rec Record) error
	FindByAddress(ctx context.Context, address string) (Record, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed credential repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a credential record.
func (r *PostgresRepository) Create(ctx context.Context, rec Record) error {
	accountID, err := uuid.Parse(rec.AccountID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO credentials (account_id, address, secret_hash, created_at)
        VALUES ($1, $2, $3, $4)`, accountID, rec.Address, rec.SecretHash, rec.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyEnrolled
	}
	return err
}

// FindByAddress fetches a credential by address.
func (r *PostgresRepository) FindByAddress(ctx context.Context, address string) (Record, error) {
	row := r.db.QueryRow(ctx, `SELECT account_id, address, secret_hash, created_at
        FROM credentials WHERE address = $1`, address)
	var (
		id        uuid.UUID
		createdAt time.Time
		rec       Record
	)
	if err := row.Scan(&id, &rec.Address, &rec.SecretHash, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, errRecordNotFound
		}
		return Record{}, err
	}
	rec.AccountID = id.String()
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}
