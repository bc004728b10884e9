package handlers

import (
	"duel-arena/middleware"
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

func SetupMatchRoutes(app *fiber.App, secured fiber.Router, matches *services.MatchService, settlement *services.SettlementService) {
	// 🔓 Public routes: spectators and history
	app.Get("/matches", func(c *fiber.Ctx) error {
		list, err := matches.ListRecentMatches(c.UserContext(), c.Query("player"), c.QueryInt("limit", 20))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"matches": list, "count": len(list)})
	})

	app.Get("/matches/:id", func(c *fiber.Ctx) error {
		m, err := matches.GetMatch(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(m)
	})

	app.Get("/matches/:id/payouts", func(c *fiber.Ctx) error {
		if _, err := matches.GetMatch(c.UserContext(), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		payouts, err := settlement.ListPayouts(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"payouts": payouts})
	})

	app.Get("/matches/:id/events", func(c *fiber.Ctx) error {
		if err := matches.StreamMatchEvents(c); err != nil {
			return respondError(c, err)
		}
		return nil
	})

	// 🔐 Secured routes: the gateway resolved the caller's wallet
	secured.Post("/matches", func(c *fiber.Ctx) error {
		var req struct {
			Opponent    string           `json:"opponent"`
			EntryFee    *decimal.Decimal `json:"entry_fee"`
			TotalRounds int              `json:"total_rounds"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		fee := decimal.Zero
		if req.EntryFee != nil {
			fee = *req.EntryFee
		}
		m, err := matches.CreateMatch(c.UserContext(), middleware.PlayerAddress(c), req.Opponent, fee, req.TotalRounds)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	})

	secured.Post("/matches/practice", func(c *fiber.Ctx) error {
		var req struct {
			TotalRounds int `json:"total_rounds"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "Invalid request body")
			}
		}
		m, err := matches.CreatePracticeMatch(c.UserContext(), middleware.PlayerAddress(c), req.TotalRounds)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	})

	secured.Post("/matches/:id/entry", func(c *fiber.Ctx) error {
		var req struct {
			TxRef string `json:"tx_ref"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		m, err := matches.ConfirmEntry(c.UserContext(), c.Params("id"), middleware.PlayerAddress(c), req.TxRef)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(m)
	})

	secured.Post("/matches/:id/rounds/:round/commit", func(c *fiber.Ctx) error {
		round, err := c.ParamsInt("round")
		if err != nil || round < 1 {
			return badRequest(c, "round must be a positive integer")
		}
		var req struct {
			Commitment string `json:"commitment"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		m, err := matches.SubmitCommitment(c.UserContext(), c.Params("id"), middleware.PlayerAddress(c), round, req.Commitment)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(m)
	})

	secured.Post("/matches/:id/rounds/:round/reveal", func(c *fiber.Ctx) error {
		round, err := c.ParamsInt("round")
		if err != nil || round < 1 {
			return badRequest(c, "round must be a positive integer")
		}
		var req struct {
			Move   string `json:"move"`
			Secret string `json:"secret"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		res, err := matches.RevealMove(c.UserContext(), c.Params("id"), middleware.PlayerAddress(c), round, req.Move, req.Secret)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	secured.Post("/matches/:id/settle", func(c *fiber.Ctx) error {
		m, err := matches.GetMatch(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if _, ok := m.SlotOf(middleware.PlayerAddress(c)); !ok {
			return respondError(c, services.ErrUnknownPlayer)
		}
		if !m.IsFinished() {
			return respondError(c, services.NewError(services.CodeInvalidState, "match is %s", m.Status))
		}
		if err := settlement.SettleMatch(c.UserContext(), m.ID); err != nil {
			return respondError(c, err)
		}
		m, err = matches.GetMatch(c.UserContext(), m.ID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(m)
	})
}
