package handlers

import (
	"strconv"

	"github.com/escrowdesk/backend/internal/http/dto"
	"github.com/escrowdesk/backend/internal/middleware"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/money"
	"github.com/escrowdesk/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewEscrowHandler(escrowService *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService, log: log}
}

func (h *EscrowHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	escrow, err := h.escrowService.Create(c.Context(), services.CreateEscrowInput{
		BuyerID:       middleware.GetUserID(c),
		SellerEmail:   req.SellerEmail,
		Title:         req.Title,
		Description:   req.Description,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) Get(c *fiber.Ctx) error {
	escrow, err := h.escrowService.Get(c.Context(), c.Params("reference"), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) List(c *fiber.Ctx) error {
	limit, offset := 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	escrows, err := h.escrowService.List(c.Context(),
		middleware.GetUserID(c), c.Query("role"), c.Query("status"), limit, offset)
	if err != nil {
		h.log.Error("list escrows failed", zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: escrows})
}

func (h *EscrowHandler) SubmitDelivery(c *fiber.Ctx) error {
	var req dto.SubmitDeliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	escrow, err := h.escrowService.SubmitDelivery(c.Context(), c.Params("reference"), middleware.GetUserID(c),
		services.SubmitDeliveryInput{
			TrackingCarrier:     req.TrackingCarrier,
			TrackingNumber:      req.TrackingNumber,
			DeliveryProofURL:    req.DeliveryProofURL,
			EstimatedDeliveryAt: req.EstimatedDeliveryAt,
		})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) ConfirmRelease(c *fiber.Ctx) error {
	escrow, err := h.escrowService.ConfirmRelease(c.Context(), c.Params("reference"), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) Cancel(c *fiber.Ctx) error {
	var req dto.CancelEscrowRequest
	_ = c.BodyParser(&req)

	escrow, err := h.escrowService.Cancel(c.Context(), c.Params("reference"), middleware.GetUserID(c), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) GetEvents(c *fiber.Ctx) error {
	events, err := h.escrowService.GetEvents(c.Context(), c.Params("reference"), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: events})
}

// QuoteFee is public: buyers want a price before signing up.
func (h *EscrowHandler) QuoteFee(c *fiber.Ctx) error {
	amount := c.Query("amount")
	currency := c.Query("currency", "NGN")
	tier := c.Query("tier", models.TierStandard)
	if amount == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "amount is required"})
	}

	b, err := h.escrowService.QuoteFee(c.Context(), amount, currency, tier)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.FeeQuoteResponse{
		Amount:    b.Amount,
		Currency:  currency,
		TotalFee:  b.TotalFee,
		BuyerFee:  b.BuyerFee,
		SellerFee: b.SellerFee,
		BuyerPays: b.BuyerPays,
		SellerGet: b.SellerReceives,
		Formatted: map[string]string{
			"total_fee":       money.Format(b.TotalFee, currency),
			"buyer_pays":      money.Format(b.BuyerPays, currency),
			"seller_receives": money.Format(b.SellerReceives, currency),
		},
	}})
}
