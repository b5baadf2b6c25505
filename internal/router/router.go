package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exercise-api/internal/config"
	"github.com/noah-isme/gema-exercise-api/internal/handler"
	"github.com/noah-isme/gema-exercise-api/internal/middleware"
	"github.com/noah-isme/gema-exercise-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ExerciseHandler      *handler.ExerciseHandler
	ExerciseAdminHandler *handler.ExerciseAdminHandler
	AsyncHandler         *handler.AsyncHandler
	SubmitLimiter        fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	staff := middleware.RequireRole("admin", "teacher")

	// Exercise pages resolve the viewer when a token is sent. Anonymous visitors may
	// only load pages.
	exercises := app.Group("/api/v2/exercises", middleware.JWTOptional(cfg.JWTSecret))
	if deps.ExerciseAdminHandler != nil {
		deps.ExerciseAdminHandler.Register(exercises, staff)
	}
	if deps.ExerciseHandler != nil {
		submitLimiter := deps.SubmitLimiter
		if submitLimiter == nil {
			submitLimiter = middleware.RateLimit("submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow)
		}
		deps.ExerciseHandler.Register(exercises, handler.ExerciseGuards{
			Authenticated: middleware.RequireAuthenticated(),
			Staff:         staff,
			SubmitLimit:   submitLimiter,
		})

		instances := app.Group("/api/v2/course-instances", middleware.JWTOptional(cfg.JWTSecret))
		deps.ExerciseHandler.RegisterCourseInstances(instances)
	}

	// Grader callbacks carry their own token in the path.
	if deps.AsyncHandler != nil {
		deps.AsyncHandler.Register(app.Group("/api/v2/async"))
	}
}
