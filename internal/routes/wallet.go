package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet endpoints for the authenticated account.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("", h.Me)
	r.Post("/deposit", h.Deposit)
	r.Post("/transfer", h.Transfer)
	r.Get("/activity", h.Activity)
	r.Get("/audit", h.Audit)
}
