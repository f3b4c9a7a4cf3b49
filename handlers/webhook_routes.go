// handlers/webhook_routes.go
package handlers

import (
	"errors"
	"log"
	"time"

	"bounty-settlement-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupWebhookRoutes exposes the single notification endpoint for the external
// source-control gateway. The global gateway auth middleware already vouches
// for the sender; replayed or unrecognized notifications answer 200 and
// change nothing.
func SetupWebhookRoutes(app *fiber.App, submissions *services.SubmissionService) {
	app.Post("/events/merge", func(c *fiber.Ctx) error {
		var req struct {
			BountyID     string    `json:"bounty_id"`
			SubmissionID string    `json:"submission_id"`
			MergedBy     string    `json:"merged_by"`
			MergedAt     time.Time `json:"merged_at"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event body"})
		}
		if req.BountyID == "" || req.SubmissionID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bounty_id and submission_id are required"})
		}
		if req.MergedAt.IsZero() {
			req.MergedAt = time.Now().UTC()
		}

		sub, err := submissions.ApproveFromMergeEvent(req.BountyID, req.SubmissionID, req.MergedBy, req.MergedAt)
		if err != nil {
			if errors.Is(err, services.ErrAlreadyReviewed) {
				return c.JSON(fiber.Map{
					"message":       "already processed",
					"submission_id": req.SubmissionID,
				})
			}
			// The gateway fans out events for repos we never listed; an
			// unknown submission id is not the gateway's problem.
			if errors.Is(err, services.ErrSubmissionNotFound) {
				log.Printf("⚠️ [WEBHOOK] Ignoring merge event for unknown submission %s (bounty %s)", req.SubmissionID, req.BountyID)
				return c.JSON(fiber.Map{
					"message":       "ignored",
					"submission_id": req.SubmissionID,
				})
			}
			return fail(c, err)
		}

		return c.JSON(fiber.Map{
			"message":       "settled",
			"submission_id": sub.ID,
			"bounty_id":     sub.BountyID,
			"status":        sub.Status,
		})
	})
}
