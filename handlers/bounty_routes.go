// handlers/bounty_routes.go
package handlers

import (
	"errors"
	"log"

	"bounty-settlement-system/middleware"
	"bounty-settlement-system/models"
	"bounty-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// errStatus maps the typed service failures onto HTTP statuses.
func errStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrBountyNotFound),
		errors.Is(err, services.ErrSubmissionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrAuthorization):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrAlreadyAssigned),
		errors.Is(err, services.ErrAlreadyReviewed),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrEscrowNotHeld),
		errors.Is(err, services.ErrDuplicateEscrow):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	status := errStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [BOUNTY] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func SetupBountyRoutes(app *fiber.App, bounties *services.BountyService, ledger *services.LedgerService, submissions *services.SubmissionService) {
	// 🔓 Public read model — lock-free snapshot reads
	app.Get("/bounties", func(c *fiber.Ctx) error {
		filter := services.BountyFilter{
			Status: models.BountyStatus(c.Query("status")),
			Tag:    c.Query("tag"),
			Search: c.Query("search"),
			Sort:   services.SortOption(c.Query("sort")),
			Limit:  c.QueryInt("limit"),
		}
		out, err := bounties.List(filter)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(out)
	})

	app.Get("/bounties/:id", func(c *fiber.Ctx) error {
		bounty, err := bounties.Get(c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		subs, err := submissions.ListByBounty(bounty.ID)
		if err != nil {
			return fail(c, err)
		}
		escrow, err := ledger.GetEscrow(bounty.ID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"bounty":      bounty,
			"submissions": subs,
			"escrow":      escrow,
		})
	})

	app.Get("/identities/:address/bounties", func(c *fiber.Ctx) error {
		summary, err := bounties.SummarizeIdentity(c.Params("address"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(summary)
	})

	// 🔐 Secured routes — wallet identity from gateway headers. The middleware
	// is attached per route: a Group("/") registers it as a global Use and it
	// would also match the webhook endpoint, whose caller has no wallet.
	walletCtx := middleware.WalletContextMiddleware()

	app.Post("/bounties", walletCtx, func(c *fiber.Ctx) error {
		caller := c.Locals("wallet_address").(string)

		var req struct {
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Amount      string   `json:"amount"`
			Token       string   `json:"token"`
			Repository  string   `json:"repository"`
			IssueNumber *int     `json:"issue_number"`
			Tags        []string `json:"tags"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid amount"})
		}

		bounty, err := bounties.Create(caller, services.CreateBountyInput{
			Title:       req.Title,
			Description: req.Description,
			Amount:      amount,
			Token:       models.RewardToken(req.Token),
			Repository:  req.Repository,
			IssueNumber: req.IssueNumber,
			Tags:        req.Tags,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(bounty)
	})

	app.Post("/bounties/:id/assign", walletCtx, func(c *fiber.Ctx) error {
		caller := c.Locals("wallet_address").(string)
		bounty, err := bounties.Assign(c.Params("id"), caller)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(bounty)
	})

	app.Post("/bounties/:id/cancel", walletCtx, func(c *fiber.Ctx) error {
		caller := c.Locals("wallet_address").(string)
		bounty, err := bounties.Cancel(c.Params("id"), caller)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(bounty)
	})
}
