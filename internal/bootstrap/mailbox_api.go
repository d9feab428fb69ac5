package bootstrap

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	httpapi "smart_mailbox/adapter/in/http"
	"smart_mailbox/infra/middleware"
)

// NewAPI builds the host API over deps. The runner must be started by the caller.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		AppName:               "smart-mailbox",

		// go-json: 표준 encoding/json 대비 빠른 직렬화
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" || allowOrigins == "*" {
		allowOrigins = "http://localhost:3000,http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders: "X-Request-ID",
		MaxAge:        86400,
	}))

	// Health check (no auth required)
	httpapi.NewHealthHandler(deps.HealthChecks()).Register(app)

	api := app.Group("/api")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))

	httpapi.NewEmailHandler(deps.Pipeline).Register(api)
	httpapi.NewBatchHandler(deps.Runner).Register(api)
	httpapi.NewSSEHandler(deps.Hub, deps.log).Register(api)
	httpapi.NewSettingsHandler(deps.Settings, deps.ApplySettings).Register(api)

	return app
}
