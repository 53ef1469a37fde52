package identity

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/walletledger/internal/account"
)

// Service enrols secrets for ledger accounts and resolves credentials back to
// account identifiers. The ledger itself never sees secrets.
type Service struct {
	repo Repository
	cost int
}

// Option customises a Service.
type Option func(*Service)

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a new identity service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enroll stores a hashed secret for accountID under address.
func (s *Service) Enroll(ctx context.Context, accountID, address, secret string) error {
	if len(secret) < MinSecretLength {
		return ErrWeakSecret
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return err
	}

	return s.repo.Create(ctx, Record{
		AccountID:  accountID,
		Address:    account.NormalizeAddress(address),
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	})
}

// ResolveIdentity returns the account id the credential authenticates.
func (s *Service) ResolveIdentity(ctx context.Context, cred Credential) (string, error) {
	rec, err := s.repo.FindByAddress(ctx, account.NormalizeAddress(cred.Address))
	if err != nil {
		if errors.Is(err, errRecordNotFound) {
			return "", ErrInvalidCredential
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword(rec.SecretHash, []byte(cred.Secret)); err != nil {
		return "", ErrInvalidCredential
	}
	return rec.AccountID, nil
}
