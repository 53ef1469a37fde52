package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredential indicates the address/secret pair does not resolve to an account.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrWeakSecret indicates the secret is shorter than MinSecretLength.
	ErrWeakSecret = errors.New("secret must be at least 6 characters")

	// ErrAlreadyEnrolled indicates a credential already exists for the account or address.
	ErrAlreadyEnrolled = errors.New("credential already enrolled")

	errRecordNotFound = errors.New("credential not found")
)

// MinSecretLength is the shortest accepted secret.
const MinSecretLength = 6

// Credential is what a caller presents to prove who they are.
type Credential struct {
	Address string
	Secret  string
}

// Record is a stored credential. Only the bcrypt hash of the secret is kept.
type Record struct {
	AccountID  string
	Address    string
	SecretHash []byte
	CreatedAt  time.Time
}

// Resolver maps a credential to the ledger account it authenticates.
type Resolver interface {
	ResolveIdentity(ctx context.Context, cred Credential) (string, error)
}
