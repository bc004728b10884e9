package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PlayerAddressKey is the c.Locals key holding the caller's wallet address.
const PlayerAddressKey = "player_address"

// PlayerContextMiddleware extracts the player address the Gateway resolved
// from the caller's wallet session. Routes behind it always have a player.
func PlayerContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		address := strings.TrimSpace(c.Get("X-Player-Address"))
		if address == "" {
			address = strings.TrimSpace(c.Get("X-User-ID"))
		}
		if address == "" {
			log.Printf("❌ [PLAYER_CTX] X-Player-Address required but missing: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Player-Address: request must come through gateway with a wallet session",
			})
		}
		c.Locals(PlayerAddressKey, address)
		return c.Next()
	}
}

// PlayerAddress returns the address set by PlayerContextMiddleware.
func PlayerAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals(PlayerAddressKey).(string)
	return addr
}
