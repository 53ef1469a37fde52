package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletledger/internal/account"
)

// CredentialRateLimit blocks an address (or client IP when no credential is
// presented) after maxPerMin failed authentications within a minute.
func CredentialRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}

		subject := c.IP()
		if cred, ok := basicCredential(c.Get(fiber.HeaderAuthorization)); ok {
			subject = account.NormalizeAddress(cred.Address)
		}
		key := "rl:auth:" + strings.TrimSpace(subject)

		cnt, err := cache.Get(c.UserContext(), key).Int64()
		if err == nil && cnt >= int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many failed attempts, try again later")
		}

		err = c.Next()
		if !isUnauthorized(c, err) {
			return err
		}

		n, incrErr := cache.Incr(c.UserContext(), key).Result()
		if incrErr == nil && n == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		return err // fail-open on cache errors
	}
}

func isUnauthorized(c *fiber.Ctx, err error) bool {
	if ferr, ok := err.(*fiber.Error); ok {
		return ferr.Code == http.StatusUnauthorized
	}
	return err == nil && c.Response().StatusCode() == http.StatusUnauthorized
}
