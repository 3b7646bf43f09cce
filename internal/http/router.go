package http

import (
	"time"

	"github.com/escrowdesk/backend/internal/config"
	"github.com/escrowdesk/backend/internal/http/handlers"
	"github.com/escrowdesk/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	escrowHandler *handlers.EscrowHandler,
	webhookHandler *handlers.WebhookHandler,
	disputeHandler *handlers.DisputeHandler,
	payoutHandler *handlers.PayoutHandler,
	feeSettingsHandler *handlers.FeeSettingsHandler,
	userHandler *handlers.UserHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Provider webhooks: no auth, no rate limit (registered before the
	// limiter). Authentication is the signature over the raw body.
	webhooks := api.Group("/webhooks")
	webhooks.Post("/paystack", webhookHandler.Paystack)
	webhooks.Post("/monnify", webhookHandler.Monnify)
	webhooks.Post("/cryptopay", webhookHandler.CryptoPay)

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Meta (public, no auth required)
	metaHandler := handlers.NewMetaHandler()
	api.Get("/meta/currencies", metaHandler.GetCurrencies)
	api.Get("/meta/payment-methods", metaHandler.GetPaymentMethods)
	api.Get("/meta/tiers", metaHandler.GetTiers)

	// Fee preview (public)
	api.Get("/fees/quote", escrowHandler.QuoteFee)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Post("/me/ping", userHandler.Ping)

	// Bank accounts
	protected.Post("/bank-accounts", payoutHandler.AddBankAccount)
	protected.Get("/bank-accounts", payoutHandler.ListBankAccounts)
	protected.Post("/bank-accounts/:id/primary", payoutHandler.SetPrimaryAccount)

	// Escrows
	protected.Post("/escrows", escrowHandler.Create)
	protected.Get("/escrows", escrowHandler.List)
	protected.Get("/escrows/:reference", escrowHandler.Get)
	protected.Post("/escrows/:reference/delivery", escrowHandler.SubmitDelivery)
	protected.Post("/escrows/:reference/release", escrowHandler.ConfirmRelease)
	protected.Post("/escrows/:reference/cancel", escrowHandler.Cancel)
	protected.Get("/escrows/:reference/events", escrowHandler.GetEvents)
	protected.Post("/escrows/:reference/payout", payoutHandler.Send)
	protected.Post("/escrows/:reference/dispute", disputeHandler.Open)

	// Disputes
	protected.Get("/disputes/:id", disputeHandler.Get)

	// Resolver-only
	resolver := protected.Group("", middleware.ResolverMiddleware(cfg))
	resolver.Post("/disputes/:id/review", disputeHandler.MarkUnderReview)
	resolver.Post("/disputes/:id/resolve", disputeHandler.Resolve)
	resolver.Get("/fee-settings", feeSettingsHandler.GetActive)
	resolver.Post("/fee-settings", feeSettingsHandler.Publish)
	resolver.Get("/fee-settings/history", feeSettingsHandler.History)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
