package services

import (
	"context"
	"fmt"

	"github.com/escrowdesk/backend/internal/config"
	"github.com/escrowdesk/backend/internal/events"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/rbac"
	"github.com/escrowdesk/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DisputeService struct {
	disputes  DisputeStore
	escrows   EscrowStore
	audit     AuditStore
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewDisputeService(
	disputes DisputeStore,
	escrows EscrowStore,
	audit AuditStore,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DisputeService {
	return &DisputeService{
		disputes:  disputes,
		escrows:   escrows,
		audit:     audit,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// Open freezes the escrow under a new dispute. Either party can open one
// while money is in play (funded, delivery_pending) or during the refund
// window after completion. The escrow transition and the dispute insert
// commit together.
func (s *DisputeService) Open(ctx context.Context, reference string, actorID uuid.UUID, reason string, evidence *string) (*models.Dispute, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: a dispute reason is required", models.ErrValidation)
	}

	escrow, err := s.escrows.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	role := rbac.PartyRole(escrow.BuyerID, escrow.SellerID, actorID, s.cfg.IsResolver)
	if !rbac.HasPermission(role, rbac.PermOpenDispute) {
		return nil, fmt.Errorf("%w: not a party to this escrow", models.ErrUnauthorized)
	}
	if !models.IsValidTransition(escrow.Status, models.EscrowStatusDisputed) {
		return nil, fmt.Errorf("%w: escrow is %s and cannot be disputed", models.ErrPrecondition, escrow.Status)
	}

	dispute, err := s.disputes.Open(ctx, repositories.OpenDisputeParams{
		EscrowID:      escrow.ID,
		EscrowVersion: escrow.Version,
		FromStatus:    escrow.Status,
		InitiatorID:   actorID,
		Reason:        reason,
		Evidence:      evidence,
	})
	if err != nil {
		return nil, err
	}

	oldStatus := escrow.Status
	escrow.Status = models.EscrowStatusDisputed
	escrow.Version++
	escrow.DisputeID = &dispute.ID

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      "dispute_opened",
		EntityType:  "dispute",
		EntityID:    &dispute.ID,
		Meta:        map[string]any{"escrow_id": escrow.ID.String(), "reason": reason},
	})
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventDisputeOpened,
		Payload: map[string]any{
			"dispute_id": dispute.ID.String(),
			"escrow_id":  escrow.ID.String(),
			"reference":  escrow.Reference,
			"old_status": oldStatus,
			"buyer_id":   escrow.BuyerID.String(),
			"seller_id":  escrow.SellerID.String(),
		},
	})

	return dispute, nil
}

// Get returns the dispute to a party or a resolver.
func (s *DisputeService) Get(ctx context.Context, disputeID uuid.UUID, actorID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	escrow, err := s.escrows.GetByID(ctx, dispute.EscrowID)
	if err != nil {
		return nil, err
	}
	role := rbac.PartyRole(escrow.BuyerID, escrow.SellerID, actorID, s.cfg.IsResolver)
	if !rbac.HasPermission(role, rbac.PermView) {
		return nil, fmt.Errorf("%w: not a party to this dispute", models.ErrUnauthorized)
	}
	return dispute, nil
}

// MarkUnderReview assigns a resolver to an open dispute.
func (s *DisputeService) MarkUnderReview(ctx context.Context, disputeID uuid.UUID, resolverID uuid.UUID) error {
	if !s.cfg.IsResolver(resolverID) {
		return fmt.Errorf("%w: not a dispute resolver", models.ErrUnauthorized)
	}
	if err := s.disputes.MarkUnderReview(ctx, disputeID, resolverID); err != nil {
		return err
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &resolverID,
		ActorType:   "resolver",
		Action:      "dispute_under_review",
		EntityType:  "dispute",
		EntityID:    &disputeID,
	})
	return nil
}

type ResolveInput struct {
	Winner       string
	Resolution   string
	RefundAmount *int64 // minor units; defaults to the buyer's full outlay
}

// Resolve closes the dispute and drives the escrow to its terminal state:
// completed when the seller wins, refunded when the buyer does.
func (s *DisputeService) Resolve(ctx context.Context, disputeID uuid.UUID, resolverID uuid.UUID, input ResolveInput) (*models.Dispute, error) {
	if !s.cfg.IsResolver(resolverID) {
		return nil, fmt.Errorf("%w: not a dispute resolver", models.ErrUnauthorized)
	}
	if input.Winner != models.DisputeWinnerBuyer && input.Winner != models.DisputeWinnerSeller {
		return nil, fmt.Errorf("%w: winner must be buyer or seller", models.ErrValidation)
	}
	if input.Resolution == "" {
		return nil, fmt.Errorf("%w: a resolution note is required", models.ErrValidation)
	}

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !dispute.IsOpen() {
		return nil, fmt.Errorf("%w: dispute is already resolved", models.ErrPrecondition)
	}

	escrow, err := s.escrows.GetByID(ctx, dispute.EscrowID)
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowStatusDisputed {
		return nil, fmt.Errorf("%w: escrow is %s, expected disputed", models.ErrPrecondition, escrow.Status)
	}

	p := repositories.ResolveParams{
		DisputeID:     dispute.ID,
		ResolverID:    resolverID,
		Winner:        input.Winner,
		Resolution:    input.Resolution,
		EscrowID:      escrow.ID,
		EscrowVersion: escrow.Version,
		SellerID:      escrow.SellerID,
	}
	switch input.Winner {
	case models.DisputeWinnerSeller:
		p.EscrowStatus = models.EscrowStatusCompleted
		// A refund-window dispute interrupts an escrow that already paid the
		// seller at release; crediting again would double total_earned.
		if dispute.FromStatus != models.EscrowStatusCompleted {
			p.SellerEarned = escrow.SellerReceives()
		}
	case models.DisputeWinnerBuyer:
		p.EscrowStatus = models.EscrowStatusRefunded
		refund := escrow.BuyerPays()
		if input.RefundAmount != nil {
			if *input.RefundAmount <= 0 || *input.RefundAmount > refund {
				return nil, fmt.Errorf("%w: refund amount out of range", models.ErrValidation)
			}
			refund = *input.RefundAmount
		}
		p.RefundAmount = &refund
	}

	if err := s.disputes.Resolve(ctx, p); err != nil {
		return nil, err
	}

	dispute.Status = models.DisputeStatusResolved
	dispute.Winner = &p.Winner
	dispute.Resolution = &p.Resolution
	dispute.ResolverID = &resolverID
	dispute.RefundAmount = p.RefundAmount

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &resolverID,
		ActorType:   "resolver",
		Action:      "dispute_resolved",
		EntityType:  "dispute",
		EntityID:    &dispute.ID,
		Meta: map[string]any{
			"escrow_id": escrow.ID.String(),
			"winner":    input.Winner,
			"outcome":   p.EscrowStatus,
		},
	})
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventDisputeResolved,
		Payload: map[string]any{
			"dispute_id": dispute.ID.String(),
			"escrow_id":  escrow.ID.String(),
			"reference":  escrow.Reference,
			"winner":     input.Winner,
			"new_status": p.EscrowStatus,
			"buyer_id":   escrow.BuyerID.String(),
			"seller_id":  escrow.SellerID.String(),
		},
	})

	return dispute, nil
}
