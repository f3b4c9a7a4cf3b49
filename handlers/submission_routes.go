// handlers/submission_routes.go
package handlers

import (
	"bounty-settlement-system/middleware"
	"bounty-settlement-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSubmissionRoutes(app *fiber.App, submissions *services.SubmissionService) {
	// Per-route wallet middleware, same reason as the bounty routes.
	walletCtx := middleware.WalletContextMiddleware()

	app.Post("/bounties/:id/submissions", walletCtx, func(c *fiber.Ctx) error {
		caller := c.Locals("wallet_address").(string)

		var req struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			PRUrl       string `json:"pr_url"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		sub, err := submissions.Submit(c.Params("id"), caller, services.SubmitInput{
			Title:       req.Title,
			Description: req.Description,
			PRUrl:       req.PRUrl,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(sub)
	})

	// Manual review path for the bounty creator. Approvals normally arrive via
	// the merge-event gateway; this covers rejects and the creator-confirms
	// fallback.
	app.Post("/submissions/:id/review", walletCtx, func(c *fiber.Ctx) error {
		caller := c.Locals("wallet_address").(string)

		var req struct {
			Outcome string `json:"outcome"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		sub, err := submissions.Review(c.Params("id"), services.ReviewOutcome(req.Outcome), caller)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(sub)
	})
}
