// handlers/submission_routes.go
package handlers

import (
	"context"
	"time"

	"proof-reward-system/middleware"
	"proof-reward-system/models"
	"proof-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Claimer is the part of the claim coordinator the routes need
type Claimer interface {
	Claim(ctx context.Context, wallet string) (*services.ClaimResult, error)
}

type SubmissionRoutesConfig struct {
	ModeratorKey string
	// ClaimTimeout is how long a claim request waits before answering 202
	ClaimTimeout time.Duration
}

type submissionHandler struct {
	submissions  *services.SubmissionService
	claims       Claimer
	claimTimeout time.Duration
	log          *zap.Logger
}

func SetupSubmissionRoutes(app *fiber.App, submissions *services.SubmissionService, claims Claimer, cfg SubmissionRoutesConfig, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 90 * time.Second
	}
	h := &submissionHandler{
		submissions:  submissions,
		claims:       claims,
		claimTimeout: cfg.ClaimTimeout,
		log:          log.Named("submissions_http"),
	}
	moderator := middleware.ModeratorGate(cfg.ModeratorKey, log)

	api := app.Group("/api/submissions")

	api.Post("/", h.submit)
	api.Get("/", h.list)
	// registered before /:walletAddress so it is not read as a wallet
	api.Get("/approved", h.listApproved)
	api.Get("/:walletAddress", h.status)

	api.Put("/:walletAddress/approve", moderator, h.decideFromBody)
	api.Post("/:walletAddress/approve", moderator, h.decide(true))
	api.Post("/:walletAddress/reject", moderator, h.decide(false))

	api.Post("/:walletAddress/claim", h.claim)
}

func (h *submissionHandler) submit(c *fiber.Ctx) error {
	var req services.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return h.writeError(c, services.ErrInvalidBody)
	}

	sub, err := h.submissions.Submit(c.UserContext(), req)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":       "Submission received successfully",
		"walletAddress": sub.WalletAddress,
	})
}

func (h *submissionHandler) status(c *fiber.Ctx) error {
	sub, err := h.submissions.Status(c.UserContext(), c.Params("walletAddress"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(statusView(sub))
}

func (h *submissionHandler) list(c *fiber.Ctx) error {
	subs, err := h.submissions.List(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}

	out := make([]fiber.Map, 0, len(subs))
	for i := range subs {
		view := statusView(&subs[i])
		view["id"] = subs[i].ID
		out = append(out, view)
	}
	return c.JSON(out)
}

func (h *submissionHandler) listApproved(c *fiber.Ctx) error {
	subs, err := h.submissions.ListApproved(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}

	out := make([]fiber.Map, 0, len(subs))
	for _, sub := range subs {
		out = append(out, fiber.Map{
			"walletAddress": sub.WalletAddress,
			"name":          sub.Name,
			"proofLink":     sub.ProofLink,
			"status":        sub.Status,
		})
	}
	return c.JSON(out)
}

// decideFromBody serves PUT .../approve {approved, moderatorNotes}
func (h *submissionHandler) decideFromBody(c *fiber.Ctx) error {
	var req struct {
		Approved       *bool  `json:"approved"`
		ModeratorNotes string `json:"moderatorNotes"`
	}
	if err := c.BodyParser(&req); err != nil || req.Approved == nil {
		return h.writeError(c, services.ErrInvalidBody.WithMessage("Request body must include approved"))
	}
	return h.applyDecision(c, *req.Approved, req.ModeratorNotes)
}

// decide serves the dashboard's POST .../approve and POST .../reject
func (h *submissionHandler) decide(approved bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			ModeratorNotes string `json:"moderatorNotes"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return h.writeError(c, services.ErrInvalidBody)
			}
		}
		return h.applyDecision(c, approved, req.ModeratorNotes)
	}
}

func (h *submissionHandler) applyDecision(c *fiber.Ctx, approved bool, notes string) error {
	sub, err := h.submissions.Decide(c.UserContext(), c.Params("walletAddress"), approved, notes)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":    "Submission updated successfully",
		"approved":   approved,
		"submission": statusView(sub),
	})
}

func (h *submissionHandler) claim(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.claimTimeout)
	defer cancel()

	wallet := c.Params("walletAddress")
	res, err := h.claims.Claim(ctx, wallet)
	if err != nil {
		if services.AsError(err).Kind == services.KindPending {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"message": services.ErrClaimPending.Message,
				"code":    services.ErrClaimPending.Code,
				"pending": true,
			})
		}
		return h.writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Reward successfully claimed! Tokens have been distributed.",
		"txId":    res.TxID,
		"success": true,
	})
}

func (h *submissionHandler) writeError(c *fiber.Ctx, err error) error {
	return writeError(c, h.log, err)
}

// statusView mirrors the record for clients; flags are derived from status
func statusView(sub *models.Submission) fiber.Map {
	return fiber.Map{
		"walletAddress":   sub.WalletAddress,
		"submitted":       true,
		"status":          sub.Status,
		"approved":        sub.Status == models.SubmissionStatusApproved || sub.Status == models.SubmissionStatusClaimed,
		"rejected":        sub.Status == models.SubmissionStatusRejected,
		"claimed":         sub.IsClaimed(),
		"submittedAt":     sub.SubmittedAt,
		"approvedAt":      sub.ApprovedAt,
		"claimedAt":       sub.ClaimedAt,
		"transactionHash": sub.TransactionHash,
		"name":            sub.Name,
		"proofLink":       sub.ProofLink,
		"moderatorNotes":  sub.ModeratorNotes,
	}
}
