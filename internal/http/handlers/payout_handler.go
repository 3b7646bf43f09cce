package handlers

import (
	"github.com/escrowdesk/backend/internal/http/dto"
	"github.com/escrowdesk/backend/internal/middleware"
	"github.com/escrowdesk/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PayoutHandler struct {
	payoutService *services.PayoutService
	log           *zap.Logger
}

func NewPayoutHandler(payoutService *services.PayoutService, log *zap.Logger) *PayoutHandler {
	return &PayoutHandler{payoutService: payoutService, log: log}
}

func (h *PayoutHandler) Send(c *fiber.Ctx) error {
	var req dto.PayoutRequest
	_ = c.BodyParser(&req)

	var accountID *uuid.UUID
	if req.BankAccountID != nil {
		id, err := uuid.Parse(*req.BankAccountID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid bank_account_id"})
		}
		accountID = &id
	}

	escrow, err := h.payoutService.Send(c.Context(), c.Params("reference"), middleware.GetUserID(c), accountID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *PayoutHandler) AddBankAccount(c *fiber.Ctx) error {
	var req dto.AddBankAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	account, err := h.payoutService.AddBankAccount(c.Context(), middleware.GetUserID(c), services.AddBankAccountInput{
		BankName:      req.BankName,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Currency:      req.Currency,
		Primary:       req.Primary,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: account})
}

func (h *PayoutHandler) ListBankAccounts(c *fiber.Ctx) error {
	accounts, err := h.payoutService.ListBankAccounts(c.Context(), middleware.GetUserID(c))
	if err != nil {
		h.log.Error("list bank accounts failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: accounts})
}

func (h *PayoutHandler) SetPrimaryAccount(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid account id"})
	}

	if err := h.payoutService.SetPrimaryAccount(c.Context(), middleware.GetUserID(c), accountID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
