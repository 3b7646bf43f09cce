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
	"github.com/escrowdesk/backend/internal/services"
	"go.uber.org/zap"
)

// Notify Bridge — small service that subscribes to Redis escrow events
// and forwards per-party notifications to the internal notification
// service (which owns email and push delivery).

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	notify := services.NewNotifyClient(cfg.NotifyInternalURL, log)

	log.Info("notify-bridge started")

	_ = subscriber.Subscribe(ctx, events.StreamEscrow, func(event events.Event) {
		forward(ctx, notify, event, log)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}

// forward delivers one notification per interested party. Payout events
// only carry a seller; everything else goes to both sides of the escrow.
func forward(ctx context.Context, notify *services.NotifyClient, event events.Event, log *zap.Logger) {
	reference, _ := event.Payload["reference"].(string)
	subject := subjectFor(event, reference)

	for _, key := range []string{"buyer_id", "seller_id"} {
		userID, ok := event.Payload[key].(string)
		if !ok || userID == "" {
			continue
		}
		n := services.Notification{
			UserID:  userID,
			Kind:    event.Type,
			Subject: subject,
			Meta:    event.Payload,
		}
		if err := notify.Send(ctx, n); err != nil {
			log.Warn("failed to forward notification",
				zap.String("type", event.Type),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
}

func subjectFor(event events.Event, reference string) string {
	switch event.Type {
	case events.EventEscrowStatusChanged:
		status, _ := event.Payload["new_status"].(string)
		return fmt.Sprintf("Escrow %s is now %s", reference, status)
	case events.EventDisputeOpened:
		return fmt.Sprintf("A dispute was opened on escrow %s", reference)
	case events.EventDisputeResolved:
		winner, _ := event.Payload["winner"].(string)
		return fmt.Sprintf("Dispute on escrow %s resolved in favour of the %s", reference, winner)
	case events.EventPayoutSent:
		return fmt.Sprintf("Payout sent for escrow %s", reference)
	default:
		return fmt.Sprintf("Update on escrow %s", reference)
	}
}
