package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindDeposit indicates a wallet top-up was committed.
	KindDeposit = "wallet.deposit"
	// KindTransferSent indicates the sender side of a committed transfer.
	KindTransferSent = "wallet.transfer_sent"
	// KindTransferReceived indicates the recipient side of a committed transfer.
	KindTransferReceived = "wallet.transfer_received"
)

// Message describes a notification payload.
type Message struct {
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	EntryID     string    `json:"entry_id,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"body", message.Body,
		"entry_id", message.EntryID,
		"amount", message.Amount,
	)
	return nil
}
