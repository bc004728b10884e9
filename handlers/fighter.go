package handlers

import (
	"duel-arena/middleware"
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupFighterRoutes(app *fiber.App, secured fiber.Router, fighters *services.FighterService) {
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		list, err := fighters.Leaderboard(c.UserContext(), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"fighters": list})
	})

	app.Get("/fighters/:address", func(c *fiber.Ctx) error {
		f, err := fighters.GetFighter(c.UserContext(), c.Params("address"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(f)
	})

	secured.Get("/fighters/me", func(c *fiber.Ctx) error {
		f, err := fighters.EnsureFighter(c.UserContext(), middleware.PlayerAddress(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(f)
	})

	secured.Put("/fighters/me/name", func(c *fiber.Ctx) error {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if _, err := fighters.EnsureFighter(c.UserContext(), middleware.PlayerAddress(c)); err != nil {
			return respondError(c, err)
		}
		f, err := fighters.RenameFighter(c.UserContext(), middleware.PlayerAddress(c), req.Name)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(f)
	})
}
