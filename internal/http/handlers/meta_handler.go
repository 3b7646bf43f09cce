package handlers

import (
	"github.com/escrowdesk/backend/internal/http/dto"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/money"
	"github.com/gofiber/fiber/v2"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

var paymentMethods = []string{
	models.PaymentMethodCard,
	models.PaymentMethodBankTransfer,
	models.PaymentMethodCrypto,
}

func (h *MetaHandler) GetCurrencies(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: money.SupportedCurrencies()})
}

func (h *MetaHandler) GetPaymentMethods(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: paymentMethods})
}

func (h *MetaHandler) GetTiers(c *fiber.Ctx) error {
	tiers := map[string]models.TierLimits{
		models.TierStandard: models.LimitsForTier(models.TierStandard),
		models.TierPro:      models.LimitsForTier(models.TierPro),
		models.TierBusiness: models.LimitsForTier(models.TierBusiness),
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: tiers})
}
