// Package money provides exact fixed-point amounts for ledger postings.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every amount.
const Scale = 2

// ErrInvalidAmount is returned for amounts that are not strictly positive or
// carry more than Scale fractional digits.
var ErrInvalidAmount = errors.New("amount must be positive with at most 2 decimal places")

// Zero is the zero amount.
var Zero = decimal.Zero

// Parse reads a decimal string such as "1050.00". It never goes through
// floating point.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Validate checks that amount can be posted: strictly positive and no finer
// than one cent.
func Validate(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return ErrInvalidAmount
	}
	return nil
}

// Format renders amount with exactly Scale fractional digits.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Scale)
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
