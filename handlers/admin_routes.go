// handlers/admin_routes.go
package handlers

import (
	"engagement-engine/services"

	"github.com/gofiber/fiber/v2"
)

func setupAdminRoutes(r fiber.Router, svc Services) {
	r.Post("/season/rollover", func(c *fiber.Ctx) error {
		out, err := svc.Seasons.EndCurrentSeason(c.UserContext())
		if err != nil {
			return fail(c, "season rollover failed", err)
		}
		if out == nil {
			return c.JSON(fiber.Map{"message": "no active season"})
		}
		return c.JSON(out)
	})

	r.Post("/streaks/rollup", func(c *fiber.Ctx) error {
		var (
			summary *services.RollupSummary
			err     error
		)
		if week := c.Query("week"); week != "" {
			start, perr := services.ParseWeekKey(week, svc.Streaks.Location)
			if perr != nil {
				return badRequest(c, perr.Error())
			}
			summary, err = svc.Streaks.RollupWeek(c.UserContext(), start)
		} else {
			summary, err = svc.Streaks.RollupPreviousWeek(c.UserContext())
		}
		if err != nil {
			return fail(c, "streak rollup failed", err)
		}
		return c.JSON(summary)
	})

	r.Post("/digest", func(c *fiber.Ctx) error {
		digest, err := svc.Digests.PublishWeekly(c.UserContext())
		if err != nil {
			return fail(c, "digest failed", err)
		}
		return c.JSON(digest)
	})

	r.Get("/policies", func(c *fiber.Ctx) error {
		all, err := svc.Policy.All(c.UserContext())
		if err != nil {
			return fail(c, "failed to load policies", err)
		}
		return c.JSON(all)
	})

	r.Put("/policies/:key", func(c *fiber.Ctx) error {
		var req struct {
			Value string `json:"value"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		key := c.Params("key")
		if err := svc.Policy.Set(c.UserContext(), key, req.Value); err != nil {
			return fail(c, "failed to set policy", err)
		}
		return c.JSON(fiber.Map{"key": key, "value": req.Value})
	})

	r.Post("/policies/reload", func(c *fiber.Ctx) error {
		if err := svc.Policy.Reload(c.UserContext()); err != nil {
			return fail(c, "failed to reload policies", err)
		}
		return c.JSON(fiber.Map{"message": "policies reloaded"})
	})
}
