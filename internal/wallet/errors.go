package wallet

import (
	"errors"

	"github.com/congo-pay/walletledger/internal/account"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/money"
)

// Code is a stable, externally visible error identifier.
type Code string

const (
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeInvalidAddress      Code = "INVALID_ADDRESS"
	CodeSelfTransfer        Code = "SELF_TRANSFER"
	CodeAccountNotFound     Code = "ACCOUNT_NOT_FOUND"
	CodeSenderNotFound      Code = "SENDER_NOT_FOUND"
	CodeRecipientNotFound   Code = "RECIPIENT_NOT_FOUND"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeAddressTaken        Code = "ADDRESS_TAKEN"
	CodeInvalidSecret       Code = "INVALID_SECRET"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInternal            Code = "INTERNAL"
)

// Category groups codes the way callers usually react to them.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryInternal   Category = "internal"
)

// ErrInvalidAddress is returned when an account is registered without an address.
var ErrInvalidAddress = errors.New("address is required")

// Error is the only error type the service returns.
type Error struct {
	Code     Code
	Category Category
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the stable code from err, or CodeInternal.
func CodeOf(err error) Code {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return CodeInternal
}

// CategoryOf extracts the category from err, or CategoryInternal.
func CategoryOf(err error) Category {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Category
	}
	return CategoryInternal
}

var codes = []struct {
	target error
	code   Code
}{
	{money.ErrInvalidAmount, CodeInvalidAmount},
	{ErrInvalidAddress, CodeInvalidAddress},
	{ledger.ErrSelfTransfer, CodeSelfTransfer},
	{ledger.ErrSenderNotFound, CodeSenderNotFound},
	{ledger.ErrRecipientNotFound, CodeRecipientNotFound},
	{ledger.ErrAccountNotFound, CodeAccountNotFound},
	{account.ErrNotFound, CodeAccountNotFound},
	{ledger.ErrInsufficientBalance, CodeInsufficientBalance},
	{account.ErrAddressTaken, CodeAddressTaken},
}

func categorize(err error) Category {
	switch {
	case ledger.IsValidation(err), errors.Is(err, ErrInvalidAddress):
		return CategoryValidation
	case ledger.IsNotFound(err):
		return CategoryNotFound
	case ledger.IsConflict(err):
		return CategoryConflict
	default:
		return CategoryInternal
	}
}

// wrap maps err onto the stable taxonomy. Unknown errors, lock timeouts
// included, become CodeInternal.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var werr *Error
	if errors.As(err, &werr) {
		return err
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return &Error{Code: c.code, Category: categorize(err), Err: err}
		}
	}
	return &Error{Code: CodeInternal, Category: CategoryInternal, Err: err}
}
