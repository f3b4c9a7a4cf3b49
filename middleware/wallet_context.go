// middleware/wallet_context.go
package middleware

import (
	"log"

	"bounty-settlement-system/models"

	"github.com/gofiber/fiber/v2"
)

// WalletContextMiddleware extracts the authenticated wallet identity set by
// the Gateway. Every secured operation takes its caller from here — there is
// no process-wide "connected wallet" session.
func WalletContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		address := models.NormalizeAddress(c.Get("X-Wallet-Address"))
		if address == "" {
			log.Printf("❌ [WALLET_CTX] X-Wallet-Address missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Wallet-Address — request must come through gateway with wallet auth",
			})
		}

		c.Locals("wallet_address", address)
		return c.Next()
	}
}
