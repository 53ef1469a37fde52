package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/wallet"
)

// Audit emits one structured log record per request, tagged with the request
// id and, once authentication has run, the account that made it. Errors are
// logged with their stable wallet code.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		// ErrorHandler has not run yet, so a failed request still carries the
		// default status.
		status := c.Response().StatusCode()
		if err != nil {
			status = wallet.StatusOf(err)
		}
		duration := time.Since(start)
		requestID, _ := c.Locals(RequestIDHeader).(string)
		accountID, _ := c.Locals(wallet.AccountIDKey).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", duration),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if accountID != "" {
			attrs = append(attrs, slog.String("account_id", accountID))
		}
		if err != nil {
			var werr *wallet.Error
			if errors.As(err, &werr) {
				attrs = append(attrs, slog.String("code", string(werr.Code)))
			}
			attrs = append(attrs, slog.Any("error", err))
			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed", attrs...)
			} else {
				logger.Warn("request rejected", attrs...)
			}
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
