// handlers/user_routes.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"engagement-engine/middleware"

	"github.com/gofiber/fiber/v2"
)

// StreamPollInterval is how often the SSE stream checks the outbox.
var StreamPollInterval = 2 * time.Second

type scheduleReminderRequest struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	DueAt   time.Time `json:"due_at"`
}

func setupUserRoutes(r fiber.Router, svc Services) {
	r.Get("/me/stats", func(c *fiber.Ctx) error {
		stats, err := svc.Engine.GetUserStats(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fail(c, "failed to get stats", err)
		}
		return c.JSON(stats)
	})

	r.Get("/me/notifications", func(c *fiber.Ctx) error {
		since := time.Time{}
		if raw := c.Query("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return badRequest(c, "since must be RFC3339")
			}
			since = t
		}
		items, err := svc.Notifications.Since(c.UserContext(), middleware.UserID(c), since, c.QueryInt("limit", 50))
		if err != nil {
			return fail(c, "failed to get notifications", err)
		}
		return c.JSON(items)
	})

	r.Get("/me/notifications/stream", func(c *fiber.Ctx) error {
		return streamNotifications(c, svc)
	})

	r.Get("/me/reminders", func(c *fiber.Ctx) error {
		items, err := svc.Reminders.Pending(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fail(c, "failed to list reminders", err)
		}
		return c.JSON(items)
	})

	r.Post("/reminders", func(c *fiber.Ctx) error {
		var req scheduleReminderRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		if req.DueAt.IsZero() {
			return badRequest(c, "due_at is required")
		}
		rem, err := svc.Reminders.Schedule(c.UserContext(), middleware.UserID(c), req.Kind, req.Message, req.DueAt)
		if err != nil {
			return fail(c, "failed to schedule reminder", err)
		}
		return c.Status(fiber.StatusCreated).JSON(rem)
	})

	r.Delete("/reminders/:id", func(c *fiber.Ctx) error {
		if err := svc.Reminders.Cancel(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
			return fail(c, "failed to cancel reminder", err)
		}
		return c.JSON(fiber.Map{"message": "reminder cancelled", "id": c.Params("id")})
	})
}

// streamNotifications streams the user's outbox as server-sent events.
func streamNotifications(c *fiber.Ctx, svc Services) error {
	userID := middleware.UserID(c)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	cursor := time.Now().UTC()
	lifetime := svc.Lifetime
	if lifetime == nil {
		lifetime = context.Background()
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(StreamPollInterval)
		defer ticker.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-lifetime.Done():
				slog.Debug("SSE stream closed by shutdown", "user_id", userID)
				return
			case <-ticker.C:
			}

			items, err := svc.Notifications.Since(lifetime, userID, cursor, 100)
			if err != nil {
				slog.Warn("SSE query failed", "user_id", userID, "error", err)
				continue
			}
			if len(items) == 0 {
				// keepalive so dead clients surface as write errors
				w.WriteString(":\n\n")
			}
			for _, n := range items {
				payload, _ := json.Marshal(n)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, payload)
				cursor = n.CreatedAt
			}
			if err := w.Flush(); err != nil {
				// Client disconnected
				return
			}
		}
	})
	return nil
}
