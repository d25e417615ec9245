// handlers/engagement_routes.go
package handlers

import (
	"engagement-engine/models"
	"engagement-engine/services"

	"github.com/gofiber/fiber/v2"
)

type logActionRequest struct {
	UserID string  `json:"user_id"`
	Type   string  `json:"type"`
	Ref    *string `json:"ref"`
}

func setupEngagementRoutes(app fiber.Router, svc Services) {
	app.Post("/actions", func(c *fiber.Ctx) error {
		var req logActionRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		actionType := models.ActionType(req.Type)

		// One check-in per user per community day; the engine itself
		// only enforces the weekly cap.
		if actionType == models.ActionCheckIn && req.UserID != "" {
			dup, err := svc.Engine.HasActionOnDay(c.UserContext(), req.UserID, actionType, svc.Engine.Now())
			if err != nil {
				return fail(c, "failed to check existing check-in", err)
			}
			if dup {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "already checked in today",
				})
			}
		}

		credited, err := svc.Engine.LogAction(c.UserContext(), req.UserID, actionType, req.Ref)
		if err != nil {
			return fail(c, "failed to log action", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"user_id":         req.UserID,
			"type":            actionType,
			"credited_points": credited,
		})
	})

	app.Get("/users/:user_id/stats", func(c *fiber.Ctx) error {
		stats, err := svc.Engine.GetUserStats(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return fail(c, "failed to get stats", err)
		}
		return c.JSON(stats)
	})

	app.Get("/users/:user_id/progress", func(c *fiber.Ctx) error {
		userID := c.Params("user_id")
		st, err := svc.Roles.Stats(c.UserContext(), userID)
		if err != nil {
			return fail(c, "failed to get progress", err)
		}
		var eligible []string
		for _, tier := range services.EligibleTiers(*st) {
			eligible = append(eligible, svc.Roles.RoleName(tier))
		}
		return c.JSON(fiber.Map{
			"user_id":        userID,
			"stats":          st,
			"eligible_roles": eligible,
		})
	})

	app.Get("/season/current", func(c *fiber.Ctx) error {
		season, err := svc.Engine.GetCurrentSeason(c.UserContext())
		if err != nil {
			return fail(c, "failed to resolve season", err)
		}
		return c.JSON(season)
	})

	app.Get("/seasons", func(c *fiber.Ctx) error {
		seasons, err := svc.Seasons.ListSeasons(c.UserContext())
		if err != nil {
			return fail(c, "failed to list seasons", err)
		}
		return c.JSON(seasons)
	})

	app.Get("/seasons/:id/leaderboard", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 10)
		if limit < 1 || limit > 100 {
			limit = 10
		}
		board, err := svc.Seasons.Leaderboard(c.UserContext(), c.Params("id"), limit)
		if err != nil {
			return fail(c, "failed to get leaderboard", err)
		}
		return c.JSON(fiber.Map{
			"season_id": c.Params("id"),
			"entries":   board,
		})
	})

	app.Get("/badges", func(c *fiber.Ctx) error {
		badges, err := svc.Badges.Catalog(c.UserContext())
		if err != nil {
			return fail(c, "failed to get badges", err)
		}
		return c.JSON(badges)
	})
}
