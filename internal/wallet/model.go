package wallet

import (
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Receipt is the outcome of a committed deposit or transfer: the caller's
// new balance and the entry recorded on the caller's account.
type Receipt struct {
	Balance decimal.Decimal
	Entry   ledger.Entry
}

// Limits bounds history queries.
type Limits struct {
	HistoryDefault int
	HistoryMax     int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{HistoryDefault: ledger.DefaultHistoryLimit, HistoryMax: 100}
}

// ProvisionDescription labels the opening credit of a provisioned account.
const ProvisionDescription = "Opening balance"
