// handlers/errors.go
package handlers

import (
	"errors"

	"proof-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// writeError renders err as {message, code}. Internal causes are logged, never sent.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	e := services.AsError(err)
	if e.Kind == services.KindInternal {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(e.HTTPStatus).JSON(fiber.Map{
		"message": e.Message,
		"code":    e.Code,
	})
}

// ErrorHandler renders errors returned by middleware and unmatched routes
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}
		return writeError(c, log, err)
	}
}
