// Package account owns account identity and balance storage.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates no account matches the identifier or address.
	ErrNotFound = errors.New("account not found")

	// ErrAddressTaken indicates the address is already registered.
	ErrAddressTaken = errors.New("address already registered")

	// ErrWouldGoNegative indicates a delta would leave the balance below zero.
	ErrWouldGoNegative = errors.New("balance would go negative")
)

// Account is a uniquely identified holder of a balance.
type Account struct {
	ID          string          `json:"id"`
	Address     string          `json:"address"`
	DisplayName string          `json:"display_name"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Store persists accounts. ApplyDelta is the only way a balance changes.
type Store interface {
	Register(ctx context.Context, address, displayName string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	FindByAddress(ctx context.Context, address string) (Account, error)
	ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (Account, error)
	List(ctx context.Context) ([]Account, error)
}

// NormalizeAddress canonicalises a contact address so lookups are case and
// whitespace insensitive.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
