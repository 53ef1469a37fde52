package middleware

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Authenticate resolves HTTP Basic credentials (address:secret) to an
// account id and stores it under wallet.AccountIDKey.
func Authenticate(resolver identity.Resolver, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cred, ok := basicCredential(c.Get(fiber.HeaderAuthorization))
		if !ok {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="wallet"`)
			return fiber.NewError(http.StatusUnauthorized, "missing credentials")
		}

		accountID, err := resolver.ResolveIdentity(c.UserContext(), cred)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredential) {
				return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
			}
			logger.Error("identity resolution failed", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, "identity store failure")
		}

		c.Locals(wallet.AccountIDKey, accountID)
		return c.Next()
	}
}

// basicCredential decodes an "Authorization: Basic ..." header value.
func basicCredential(header string) (identity.Credential, bool) {
	const prefix = "basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return identity.Credential{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return identity.Credential{}, false
	}
	address, secret, ok := strings.Cut(string(raw), ":")
	if !ok || address == "" {
		return identity.Credential{}, false
	}
	return identity.Credential{Address: address, Secret: secret}, true
}
