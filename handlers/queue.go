package handlers

import (
	"duel-arena/middleware"
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

func SetupQueueRoutes(app *fiber.App, secured fiber.Router, queue *services.MatchmakingService, bus services.EventBus) {
	app.Get("/queue/stats", func(c *fiber.Ctx) error {
		n, err := queue.WaitingCount(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"waiting": n})
	})

	secured.Post("/queue", func(c *fiber.Ctx) error {
		var req struct {
			EntryFee *decimal.Decimal `json:"entry_fee"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "Invalid request body")
			}
		}
		status, err := queue.JoinQueue(c.UserContext(), middleware.PlayerAddress(c), req.EntryFee)
		if err != nil {
			return respondError(c, err)
		}
		code := fiber.StatusAccepted
		if status.Status == services.QueueMatched {
			code = fiber.StatusCreated
		}
		return c.Status(code).JSON(status)
	})

	secured.Delete("/queue", func(c *fiber.Ctx) error {
		left, err := queue.LeaveQueue(c.UserContext(), middleware.PlayerAddress(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"left": left})
	})

	secured.Get("/queue/status", func(c *fiber.Ctx) error {
		status, err := queue.QueueStatusFor(c.UserContext(), middleware.PlayerAddress(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(status)
	})

	secured.Get("/queue/events", func(c *fiber.Ctx) error {
		if err := services.StreamPlayerEvents(c, bus, middleware.PlayerAddress(c)); err != nil {
			return respondError(c, err)
		}
		return nil
	})
}
