package handlers

import (
	"strconv"

	"github.com/escrowdesk/backend/internal/http/dto"
	"github.com/escrowdesk/backend/internal/middleware"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// FeeSettingsHandler manages versioned fee configuration. Routes are
// resolver-gated: the same operators who arbitrate disputes own pricing.
type FeeSettingsHandler struct {
	feeSettingsRepo *repositories.FeeSettingsRepo
	log             *zap.Logger
}

func NewFeeSettingsHandler(feeSettingsRepo *repositories.FeeSettingsRepo, log *zap.Logger) *FeeSettingsHandler {
	return &FeeSettingsHandler{feeSettingsRepo: feeSettingsRepo, log: log}
}

func (h *FeeSettingsHandler) GetActive(c *fiber.Ctx) error {
	tier := c.Query("tier", models.TierStandard)
	if !models.IsValidTier(tier) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unknown tier"})
	}

	settings, err := h.feeSettingsRepo.GetActive(c.Context(), tier)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: settings})
}

func (h *FeeSettingsHandler) Publish(c *fiber.Ctx) error {
	var req dto.PublishFeeSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if !models.IsValidTier(req.Tier) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unknown tier"})
	}
	if req.FeeBPS < 0 || req.MaxFeeBPS < 0 || req.MinFee < 0 || req.BuyerShareBPS < 0 || req.BuyerShareBPS > 10000 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "fee settings out of range"})
	}

	actorID := middleware.GetUserID(c)
	settings := &models.FeeSettings{
		Tier:          req.Tier,
		FeeBPS:        req.FeeBPS,
		MinFee:        req.MinFee,
		MaxFeeBPS:     req.MaxFeeBPS,
		BuyerShareBPS: req.BuyerShareBPS,
		CreatedBy:     &actorID,
	}
	if err := h.feeSettingsRepo.Publish(c.Context(), settings); err != nil {
		h.log.Error("publish fee settings failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: settings})
}

func (h *FeeSettingsHandler) History(c *fiber.Ctx) error {
	tier := c.Query("tier", models.TierStandard)
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	history, err := h.feeSettingsRepo.History(c.Context(), tier, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: history})
}
