package handlers

import (
	"errors"
	"log"

	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
)

func statusFor(code services.Code) int {
	switch code {
	case services.CodeNotFound:
		return fiber.StatusNotFound
	case services.CodeInvalidParticipant:
		return fiber.StatusForbidden
	case services.CodeInvalidState, services.CodeConcurrencyConflict:
		return fiber.StatusConflict
	case services.CodeCommitmentMismatch:
		return fiber.StatusUnprocessableEntity
	case services.CodeInvalidArgument:
		return fiber.StatusBadRequest
	case services.CodePaymentFailed:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// respondError renders err as {"error","code","details"}.
func respondError(c *fiber.Ctx, err error) error {
	var e *services.Error
	if !errors.As(err, &e) {
		log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"code":  services.CodeInternal,
		})
	}
	body := fiber.Map{"error": e.Message, "code": e.Code}
	if len(e.Metadata) > 0 {
		body["details"] = e.Metadata
	}
	status := statusFor(e.Code)
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  services.CodeInvalidArgument,
	})
}
