package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/middleware"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/store"
	"github.com/storyforge/api/pkg/response"
)

// CreditsHandler exposes the caller's credit balance. The first read
// provisions the initial grant, so new users see a non-zero balance without
// a separate signup hook.
type CreditsHandler struct {
	credits store.CreditStore
	cfg     config.CreditsConfig
}

func NewCreditsHandler(credits store.CreditStore, cfg config.CreditsConfig) *CreditsHandler {
	return &CreditsHandler{
		credits: credits,
		cfg:     cfg,
	}
}

// Balance handles GET /api/credits
func (h *CreditsHandler) Balance(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return response.Unauthorized(c, "Not authenticated")
	}

	if err := h.credits.Provision(c.Context(), userID, h.cfg.InitialGrant); err != nil {
		return response.ServiceError(c, err.Error())
	}

	balance, err := h.credits.Balance(c.Context(), userID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, model.CreditBalanceResponse{Remaining: balance})
}
