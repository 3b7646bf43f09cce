package handlers

import (
	"github.com/escrowdesk/backend/internal/http/dto"
	"github.com/escrowdesk/backend/internal/middleware"
	"github.com/escrowdesk/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
	log            *zap.Logger
}

func NewDisputeHandler(disputeService *services.DisputeService, log *zap.Logger) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService, log: log}
}

func (h *DisputeHandler) Open(c *fiber.Ctx) error {
	var req dto.OpenDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	dispute, err := h.disputeService.Open(c.Context(), c.Params("reference"), middleware.GetUserID(c), req.Reason, req.Evidence)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dispute})
}

func (h *DisputeHandler) Get(c *fiber.Ctx) error {
	disputeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}

	dispute, err := h.disputeService.Get(c.Context(), disputeID, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dispute})
}

func (h *DisputeHandler) MarkUnderReview(c *fiber.Ctx) error {
	disputeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}

	if err := h.disputeService.MarkUnderReview(c.Context(), disputeID, middleware.GetUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *DisputeHandler) Resolve(c *fiber.Ctx) error {
	disputeID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	dispute, err := h.disputeService.Resolve(c.Context(), disputeID, middleware.GetUserID(c), services.ResolveInput{
		Winner:       req.Winner,
		Resolution:   req.Resolution,
		RefundAmount: req.RefundAmount,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dispute})
}
