package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	apihttp "github.com/Tanay2104/Smart-Email/adapter/in/http"
	"github.com/Tanay2104/Smart-Email/infra/middleware"
)

// NewAPI builds the fiber app serving health, scoring and results.
// scorer may be nil when no catalog is available; /score then answers 503.
func NewAPI(deps *Dependencies, scorer apihttp.Scorer) *fiber.App {
	log := deps.Log.With().Str("component", "api").Logger()

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(log),
		DisableStartupMessage: !deps.Config.IsDevelopment(),

		// go-json for request and response bodies
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 4 * 1024 * 1024,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover(log))
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger(log))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	apihttp.NewHealthHandler(deps.HealthChecks()).Register(app)
	apihttp.NewTriageHandler(scorer, deps.Results).Register(app)

	return app
}
