// handlers/app.go
package handlers

import (
	"strings"

	"proof-reward-system/middleware"
	"proof-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

type AppConfig struct {
	AllowedOrigins []string
}

// NewApp builds the fiber app with the shared middleware stack; routes are added by the Setup* functions
func NewApp(cfg AppConfig, metrics *services.Metrics, log *zap.Logger) *fiber.App {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "proof-reward-system",
		BodyLimit:             64 * 1024,
		UnescapePath:          true,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(log),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(log, metrics))

	origins := strings.Join(cfg.AllowedOrigins, ",")
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-Request-ID, " + middleware.ModeratorKeyHeader,
		MaxAge:       86400,
	}))

	return app
}
