// middleware/moderator.go
package middleware

import (
	"crypto/subtle"

	"proof-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const ModeratorKeyHeader = "X-Moderator-Key"

// ModeratorGate admits requests carrying the shared moderator key. With no key configured
// every moderation request fails as a server configuration error, never as open access.
func ModeratorGate(expectedKey string, log *zap.Logger) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	expected := []byte(expectedKey)

	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			log.Error("moderation request rejected: moderator key not configured", zap.String("path", c.Path()))
			return services.ErrModerationNotConfigured
		}

		provided := []byte(c.Get(ModeratorKeyHeader))
		if len(provided) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			log.Warn("moderation request with invalid key",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return services.ErrUnauthorized
		}

		return c.Next()
	}
}
