package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/escrowdesk/backend/internal/config"
	"github.com/escrowdesk/backend/internal/db"
	"github.com/escrowdesk/backend/internal/events"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/repositories"
	"github.com/escrowdesk/backend/internal/services"
	"go.uber.org/zap"
)

const sweepBatchSize = 100

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	userRepo := repositories.NewUserRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	disputeRepo := repositories.NewDisputeRepo(pool)
	feeSettingsRepo := repositories.NewFeeSettingsRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	escrowService := services.NewEscrowService(escrowRepo, userRepo, disputeRepo, feeSettingsRepo, auditRepo, publisher, cfg, log)

	log.Info("worker started")

	// Run jobs on tickers
	releaseTicker := time.NewTicker(cfg.AutoReleaseInterval)
	sweepTicker := time.NewTicker(cfg.PaymentSweepInterval)
	defer releaseTicker.Stop()
	defer sweepTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-releaseTicker.C:
			runAutoRelease(ctx, escrowRepo, escrowService, log)
		case <-sweepTicker.C:
			runPaymentSweep(ctx, escrowRepo, escrowService, cfg, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runAutoRelease completes deliveries whose release deadline has passed
// with no buyer confirmation and no open dispute. Version conflicts mean
// someone else moved the escrow first; the row is simply skipped.
func runAutoRelease(ctx context.Context, escrowRepo *repositories.EscrowRepo, escrowService *services.EscrowService, log *zap.Logger) {
	escrows, err := escrowRepo.ListAutoReleasable(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		log.Error("failed to list auto-releasable escrows", zap.Error(err))
		return
	}

	for i := range escrows {
		escrow := &escrows[i]
		log.Info("auto-releasing escrow",
			zap.String("reference", escrow.Reference),
			zap.Timep("deadline", escrow.AutoReleaseAt),
		)
		if _, err := escrowService.AutoRelease(ctx, escrow); err != nil {
			if errors.Is(err, models.ErrVersionConflict) || errors.Is(err, models.ErrPrecondition) {
				continue
			}
			log.Error("auto-release failed", zap.String("reference", escrow.Reference), zap.Error(err))
		}
	}
}

// runPaymentSweep cancels escrows that sat in pending_payment past the
// payment timeout without a successful provider webhook.
func runPaymentSweep(ctx context.Context, escrowRepo *repositories.EscrowRepo, escrowService *services.EscrowService, cfg *config.Config, log *zap.Logger) {
	cutoff := time.Now().Add(-cfg.PaymentTimeout)
	escrows, err := escrowRepo.ListPendingOlderThan(ctx, cutoff, sweepBatchSize)
	if err != nil {
		log.Error("failed to list expired pending escrows", zap.Error(err))
		return
	}

	for i := range escrows {
		escrow := &escrows[i]
		log.Info("cancelling expired escrow", zap.String("reference", escrow.Reference))
		if err := escrowService.CancelExpired(ctx, escrow); err != nil {
			if errors.Is(err, models.ErrVersionConflict) || errors.Is(err, models.ErrPrecondition) {
				continue
			}
			log.Error("expired cancel failed", zap.String("reference", escrow.Reference), zap.Error(err))
		}
	}
}
