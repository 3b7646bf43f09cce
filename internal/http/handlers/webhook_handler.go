package handlers

import (
	"github.com/escrowdesk/backend/internal/http/dto"
	"github.com/escrowdesk/backend/internal/providers"
	"github.com/escrowdesk/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WebhookHandler terminates provider payment webhooks. Each endpoint
// verifies the provider's signature over the raw body before anything is
// parsed; once a delivery is authenticated it is always acknowledged with
// 200 so the provider stops redelivering, whatever the reconciler decided.
type WebhookHandler struct {
	paystack   *providers.Paystack
	monnify    *providers.Monnify
	cryptopay  *providers.CryptoPay
	reconciler *services.Reconciler
	log        *zap.Logger
}

func NewWebhookHandler(
	paystack *providers.Paystack,
	monnify *providers.Monnify,
	cryptopay *providers.CryptoPay,
	reconciler *services.Reconciler,
	log *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		paystack:   paystack,
		monnify:    monnify,
		cryptopay:  cryptopay,
		reconciler: reconciler,
		log:        log,
	}
}

func (h *WebhookHandler) Paystack(c *fiber.Ctx) error {
	body := c.Body()
	if !h.paystack.VerifyWebhook(body, c.Get(providers.PaystackSignatureHeader)) {
		h.log.Warn("paystack webhook signature rejected", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}
	ev, err := h.paystack.ParseEvent(body)
	if err != nil {
		return h.ackMalformed(c, providers.NamePaystack, err)
	}
	return h.apply(c, ev)
}

func (h *WebhookHandler) Monnify(c *fiber.Ctx) error {
	body := c.Body()
	if !h.monnify.VerifyWebhook(body, c.Get(providers.MonnifySignatureHeader)) {
		h.log.Warn("monnify webhook signature rejected", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}
	ev, err := h.monnify.ParseEvent(body)
	if err != nil {
		return h.ackMalformed(c, providers.NameMonnify, err)
	}
	return h.apply(c, ev)
}

func (h *WebhookHandler) CryptoPay(c *fiber.Ctx) error {
	body := c.Body()
	if !h.cryptopay.VerifyWebhook(body, c.Get(providers.CryptoPaySignatureHeader)) {
		h.log.Warn("cryptopay webhook token rejected", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid token"})
	}
	ev, err := h.cryptopay.ParseEvent(body)
	if err != nil {
		return h.ackMalformed(c, providers.NameCryptoPay, err)
	}
	return h.apply(c, ev)
}

// ackMalformed acknowledges an authenticated delivery whose body could not
// be parsed. Redelivery of the same bytes can never succeed, so a non-2xx
// would only make the provider retry it forever.
func (h *WebhookHandler) ackMalformed(c *fiber.Ctx, provider string, err error) error {
	h.log.Warn("webhook payload unparseable",
		zap.String("provider", provider),
		zap.Error(err),
	)
	return c.JSON(dto.WebhookResponse{Status: "ok", Action: services.ReconcileMalformed})
}

func (h *WebhookHandler) apply(c *fiber.Ctx, ev providers.PaymentEvent) error {
	res, err := h.reconciler.Process(c.Context(), ev)
	if err != nil {
		// Infrastructure failure: a non-2xx makes the provider redeliver,
		// which is exactly what we want here.
		h.log.Error("reconciliation failed",
			zap.String("provider", ev.Provider),
			zap.String("reference", ev.Reference),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "reconciliation failed"})
	}

	h.log.Info("webhook reconciled",
		zap.String("provider", ev.Provider),
		zap.String("reference", ev.Reference),
		zap.String("action", res.Action),
	)
	return c.JSON(dto.WebhookResponse{Status: "ok", Action: res.Action})
}
