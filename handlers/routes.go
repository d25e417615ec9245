// handlers/routes.go
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"engagement-engine/middleware"
	"engagement-engine/services"

	"github.com/gofiber/fiber/v2"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Engine        *services.Engine
	Seasons       *services.SeasonManager
	Streaks       *services.StreakTracker
	Badges        *services.BadgeEngine
	Roles         *services.RoleEvaluator
	Policy        *services.PolicyStore
	Digests       *services.DigestService
	Reminders     *services.ReminderService
	Notifications *services.NotificationService

	// Lifetime is cancelled when the server stops; open event streams end
	// with it. Nil means streams only end when the client goes away.
	Lifetime context.Context
}

// SetupRoutes mounts the bridge-facing API. The bridge calls the top-level
// routes on behalf of any user; /s routes act as the forwarded user and
// /s/admin additionally needs the admin role.
func SetupRoutes(app *fiber.App, svc Services) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	setupEngagementRoutes(app, svc)

	secured := app.Group("/s", middleware.UserContextMiddleware())
	setupUserRoutes(secured, svc)

	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	setupAdminRoutes(admin, svc)
}

// fail maps engine errors to HTTP responses.
func fail(c *fiber.Ctx, msg string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrUnknownActionType),
		errors.Is(err, services.ErrInvalidUser),
		errors.Is(err, services.ErrPolicyKeyRequired):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrReminderNotFound):
		status = fiber.StatusNotFound
	}
	if status == fiber.StatusInternalServerError {
		slog.Error(msg, "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
