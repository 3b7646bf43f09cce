package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/escrowdesk/backend/internal/config"
	"github.com/escrowdesk/backend/internal/db"
	"github.com/escrowdesk/backend/internal/events"
	apphttp "github.com/escrowdesk/backend/internal/http"
	"github.com/escrowdesk/backend/internal/http/handlers"
	"github.com/escrowdesk/backend/internal/providers"
	"github.com/escrowdesk/backend/internal/repositories"
	"github.com/escrowdesk/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	disputeRepo := repositories.NewDisputeRepo(pool)
	feeSettingsRepo := repositories.NewFeeSettingsRepo(pool)
	bankAccountRepo := repositories.NewBankAccountRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Payment providers
	paystack := providers.NewPaystack(cfg.PaystackSecretKey, log)
	monnify := providers.NewMonnify(cfg.MonnifyClientSecret)
	cryptopay := providers.NewCryptoPay(cfg.CryptoPayIPNSecret)
	flutterwave := providers.NewFlutterwave(cfg.FlutterwaveSecretKey, log)

	// Services
	escrowService := services.NewEscrowService(escrowRepo, userRepo, disputeRepo, feeSettingsRepo, auditRepo, publisher, cfg, log)
	disputeService := services.NewDisputeService(disputeRepo, escrowRepo, auditRepo, publisher, cfg, log)
	payoutService := services.NewPayoutService(escrowRepo, bankAccountRepo, auditRepo, publisher, paystack, flutterwave, log)
	reconciler := services.NewReconciler(escrowRepo, auditRepo, publisher, log)

	// Handlers
	userHandler := handlers.NewUserHandler(userRepo, log)
	escrowHandler := handlers.NewEscrowHandler(escrowService, log)
	webhookHandler := handlers.NewWebhookHandler(paystack, monnify, cryptopay, reconciler, log)
	disputeHandler := handlers.NewDisputeHandler(disputeService, log)
	payoutHandler := handlers.NewPayoutHandler(payoutService, log)
	feeSettingsHandler := handlers.NewFeeSettingsHandler(feeSettingsRepo, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, escrowHandler, webhookHandler, disputeHandler, payoutHandler, feeSettingsHandler, userHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
