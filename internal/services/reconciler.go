package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/escrowdesk/backend/internal/events"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/providers"
	"github.com/escrowdesk/backend/internal/repositories"
	"go.uber.org/zap"
)

// Reconciler applies verified provider payment events to escrows. It is
// the only path that moves pending_payment -> funded, and it is built to
// be replayed: providers redeliver webhooks, and every redelivery must
// land on the same final state.
type Reconciler struct {
	escrows   EscrowStore
	audit     AuditStore
	publisher events.Publisher
	log       *zap.Logger
}

func NewReconciler(escrows EscrowStore, audit AuditStore, publisher events.Publisher, log *zap.Logger) *Reconciler {
	return &Reconciler{escrows: escrows, audit: audit, publisher: publisher, log: log}
}

// Reconciliation actions, reported back to the webhook handler for logging.
const (
	ReconcileFunded    = "funded"
	ReconcileCancelled = "cancelled"
	ReconcileReplay    = "replay"
	ReconcileUnmatched = "unmatched"
	ReconcileIgnored   = "ignored"
	ReconcileMalformed = "malformed"
)

type ReconcileResult struct {
	Action string
	Escrow *models.Escrow
}

// Process applies one payment event. It returns an error only for
// infrastructure failures; every domain outcome, including events for
// references we have never issued, resolves to a result so the handler
// can acknowledge the delivery and stop the provider from retrying.
func (r *Reconciler) Process(ctx context.Context, ev providers.PaymentEvent) (ReconcileResult, error) {
	if ev.Outcome == providers.OutcomeIgnored {
		return ReconcileResult{Action: ReconcileIgnored}, nil
	}

	escrow, err := r.escrows.GetByReference(ctx, ev.Reference)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			r.log.Warn("payment event for unknown reference",
				zap.String("provider", ev.Provider),
				zap.String("reference", ev.Reference),
			)
			return ReconcileResult{Action: ReconcileUnmatched}, nil
		}
		return ReconcileResult{}, err
	}

	// Anything but pending_payment means this delivery already played out,
	// or the escrow moved on without the money. Either way: no-op.
	if escrow.Status != models.EscrowStatusPendingPayment {
		return ReconcileResult{Action: ReconcileReplay, Escrow: escrow}, nil
	}

	switch ev.Outcome {
	case providers.OutcomeSuccess:
		return r.fund(ctx, escrow, ev)
	case providers.OutcomeFailed, providers.OutcomeExpired:
		return r.cancel(ctx, escrow, ev)
	default:
		return ReconcileResult{}, fmt.Errorf("%w: unknown payment outcome %q", models.ErrValidation, ev.Outcome)
	}
}

func (r *Reconciler) fund(ctx context.Context, escrow *models.Escrow, ev providers.PaymentEvent) (ReconcileResult, error) {
	p := repositories.FundParams{
		ID:                escrow.ID,
		Version:           escrow.Version,
		Provider:          ev.Provider,
		ProviderReference: ev.ProviderPaymentID,
		BuyerID:           escrow.BuyerID,
		BuyerSpent:        escrow.BuyerPays(),
	}
	if ev.Provider == providers.NameCryptoPay {
		p.ProviderPaymentID = &ev.ProviderPaymentID
	}

	if err := r.escrows.Fund(ctx, p); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			// A concurrent delivery of the same event got there first.
			return ReconcileResult{Action: ReconcileReplay, Escrow: escrow}, nil
		}
		return ReconcileResult{}, err
	}

	oldStatus := escrow.Status
	escrow.Status = models.EscrowStatusFunded
	escrow.Version++
	escrow.Provider = &ev.Provider

	_ = r.audit.Log(ctx, models.AuditLog{
		ActorType:  "provider",
		Action:     "escrow_funded",
		EntityType: "escrow",
		EntityID:   &escrow.ID,
		Meta: map[string]any{
			"provider":            ev.Provider,
			"provider_payment_id": ev.ProviderPaymentID,
			"reference":           escrow.Reference,
		},
	})
	r.publishStatus(ctx, escrow, oldStatus)

	return ReconcileResult{Action: ReconcileFunded, Escrow: escrow}, nil
}

func (r *Reconciler) cancel(ctx context.Context, escrow *models.Escrow, ev providers.PaymentEvent) (ReconcileResult, error) {
	reason := "payment failed"
	if ev.Outcome == providers.OutcomeExpired {
		reason = "payment expired"
	}
	if ev.Reason != "" {
		reason = fmt.Sprintf("%s: %s", reason, ev.Reason)
	}

	if err := r.escrows.Cancel(ctx, escrow.ID, escrow.Version, reason); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return ReconcileResult{Action: ReconcileReplay, Escrow: escrow}, nil
		}
		return ReconcileResult{}, err
	}

	oldStatus := escrow.Status
	escrow.Status = models.EscrowStatusCancelled
	escrow.Version++
	escrow.CancelReason = &reason

	_ = r.audit.Log(ctx, models.AuditLog{
		ActorType:  "provider",
		Action:     "escrow_payment_failed",
		EntityType: "escrow",
		EntityID:   &escrow.ID,
		Meta: map[string]any{
			"provider":  ev.Provider,
			"reference": escrow.Reference,
			"reason":    reason,
		},
	})
	r.publishStatus(ctx, escrow, oldStatus)

	return ReconcileResult{Action: ReconcileCancelled, Escrow: escrow}, nil
}

func (r *Reconciler) publishStatus(ctx context.Context, e *models.Escrow, oldStatus string) {
	_ = r.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventEscrowStatusChanged,
		Payload: map[string]any{
			"escrow_id":  e.ID.String(),
			"reference":  e.Reference,
			"old_status": oldStatus,
			"new_status": e.Status,
			"buyer_id":   e.BuyerID.String(),
			"seller_id":  e.SellerID.String(),
		},
	})
}
