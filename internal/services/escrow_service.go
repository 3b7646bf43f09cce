package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/escrowdesk/backend/internal/config"
	"github.com/escrowdesk/backend/internal/events"
	"github.com/escrowdesk/backend/internal/fees"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/money"
	"github.com/escrowdesk/backend/internal/rbac"
	"github.com/escrowdesk/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EscrowStore is the slice of the escrow repository the services need.
// Declared here so tests can substitute an in-memory implementation that
// still honors the version guard.
type EscrowStore interface {
	Create(ctx context.Context, e *models.Escrow) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetByReference(ctx context.Context, reference string) (*models.Escrow, error)
	Fund(ctx context.Context, p repositories.FundParams) error
	MarkDelivery(ctx context.Context, p repositories.DeliveryParams) error
	Complete(ctx context.Context, p repositories.CompleteParams) error
	Cancel(ctx context.Context, id uuid.UUID, version int, reason string) error
	RecordPayout(ctx context.Context, p repositories.PayoutParams) error
	ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Escrow, error)
	CountCreatedSince(ctx context.Context, buyerID uuid.UUID, since time.Time) (int, error)
	List(ctx context.Context, f repositories.EscrowFilter) ([]models.Escrow, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type DisputeStore interface {
	Open(ctx context.Context, p repositories.OpenDisputeParams) (*models.Dispute, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByEscrowID(ctx context.Context, escrowID uuid.UUID) (*models.Dispute, error)
	MarkUnderReview(ctx context.Context, id, resolverID uuid.UUID) error
	Resolve(ctx context.Context, p repositories.ResolveParams) error
}

type FeeSettingsStore interface {
	GetActive(ctx context.Context, tier string) (*models.FeeSettings, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

type EscrowService struct {
	escrows     EscrowStore
	users       UserStore
	disputes    DisputeStore
	feeSettings FeeSettingsStore
	audit       AuditStore
	publisher   events.Publisher
	cfg         *config.Config
	log         *zap.Logger
}

func NewEscrowService(
	escrows EscrowStore,
	users UserStore,
	disputes DisputeStore,
	feeSettings FeeSettingsStore,
	audit AuditStore,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *EscrowService {
	return &EscrowService{
		escrows:     escrows,
		users:       users,
		disputes:    disputes,
		feeSettings: feeSettings,
		audit:       audit,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
	}
}

// newReference returns an opaque payment reference like ESC-3f9a01c2b4.
// Quoted to providers at checkout; webhooks are matched back by it.
func newReference() (string, error) {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return "ESC-" + hex.EncodeToString(b[:]), nil
}

// record writes the audit entry and publishes the status event. Both are
// best-effort: the state change has already committed.
func (s *EscrowService) record(ctx context.Context, e *models.Escrow, oldStatus string, actorID *uuid.UUID, actorType string) {
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      fmt.Sprintf("escrow_status_%s_to_%s", oldStatus, e.Status),
		EntityType:  "escrow",
		EntityID:    &e.ID,
		Meta:        map[string]any{"old_status": oldStatus, "new_status": e.Status, "reference": e.Reference},
	})

	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
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

type CreateEscrowInput struct {
	BuyerID       uuid.UUID
	SellerEmail   string
	Title         string
	Description   *string
	Amount        string // major units, e.g. "1000.00"
	Currency      string
	PaymentMethod string
}

func (s *EscrowService) Create(ctx context.Context, input CreateEscrowInput) (*models.Escrow, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if !money.IsSupportedCurrency(input.Currency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", models.ErrValidation, input.Currency)
	}
	if !models.IsValidPaymentMethod(input.PaymentMethod) {
		return nil, fmt.Errorf("%w: invalid payment method %q", models.ErrValidation, input.PaymentMethod)
	}

	amount, err := money.Parse(input.Amount, input.Currency)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}

	buyer, err := s.users.GetByID(ctx, input.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("buyer: %w", err)
	}
	seller, err := s.users.GetByEmail(ctx, input.SellerEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: no seller with that email", models.ErrValidation)
	}
	if buyer.ID == seller.ID {
		return nil, fmt.Errorf("%w: buyer and seller must be different users", models.ErrValidation)
	}

	limits := models.LimitsForTier(buyer.Tier)
	if amount > limits.MaxAmount {
		return nil, fmt.Errorf("%w: amount exceeds the %s tier limit of %s %s",
			models.ErrPrecondition, buyer.Tier, money.Format(limits.MaxAmount, input.Currency), input.Currency)
	}
	monthStart := startOfMonth(time.Now().UTC())
	created, err := s.escrows.CountCreatedSince(ctx, buyer.ID, monthStart)
	if err != nil {
		return nil, err
	}
	if created >= limits.MonthlyEscrows {
		return nil, fmt.Errorf("%w: monthly escrow limit of %d reached for the %s tier",
			models.ErrPrecondition, limits.MonthlyEscrows, buyer.Tier)
	}

	// Fees are computed from the settings active right now and frozen onto
	// the escrow. Later settings changes never touch it.
	settings, err := s.feeSettings.GetActive(ctx, buyer.Tier)
	if err != nil {
		return nil, fmt.Errorf("fee settings for tier %s: %w", buyer.Tier, err)
	}
	breakdown, err := fees.Calculate(amount, *settings)
	if err != nil {
		return nil, err
	}

	reference, err := newReference()
	if err != nil {
		return nil, err
	}

	escrow := &models.Escrow{
		Reference:     reference,
		BuyerID:       buyer.ID,
		SellerID:      seller.ID,
		Title:         input.Title,
		Description:   input.Description,
		Amount:        amount,
		Currency:      input.Currency,
		BuyerFee:      breakdown.BuyerFee,
		SellerFee:     breakdown.SellerFee,
		TotalFee:      breakdown.TotalFee,
		PaymentMethod: input.PaymentMethod,
		Status:        models.EscrowStatusPendingPayment,
	}
	if err := s.escrows.Create(ctx, escrow); err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &buyer.ID,
		ActorType:   "user",
		Action:      "escrow_created",
		EntityType:  "escrow",
		EntityID:    &escrow.ID,
		Meta: map[string]any{
			"reference": escrow.Reference,
			"amount":    amount,
			"currency":  escrow.Currency,
			"total_fee": breakdown.TotalFee,
		},
	})

	return escrow, nil
}

// QuoteFee prices an escrow without creating one.
func (s *EscrowService) QuoteFee(ctx context.Context, amountStr, currency, tier string) (*fees.Breakdown, error) {
	if !money.IsSupportedCurrency(currency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", models.ErrValidation, currency)
	}
	amount, err := money.Parse(amountStr, currency)
	if err != nil {
		return nil, err
	}
	if !models.IsValidTier(tier) {
		tier = models.TierStandard
	}
	settings, err := s.feeSettings.GetActive(ctx, tier)
	if err != nil {
		return nil, err
	}
	breakdown, err := fees.Calculate(amount, *settings)
	if err != nil {
		return nil, err
	}
	return &breakdown, nil
}

// Get returns the escrow if the actor is a party to it or a resolver.
func (s *EscrowService) Get(ctx context.Context, reference string, actorID uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.escrows.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	role := rbac.PartyRole(escrow.BuyerID, escrow.SellerID, actorID, s.cfg.IsResolver)
	if !rbac.HasPermission(role, rbac.PermView) {
		return nil, fmt.Errorf("%w: not a party to this escrow", models.ErrUnauthorized)
	}
	return escrow, nil
}

// List returns the actor's escrows on either side of the table.
func (s *EscrowService) List(ctx context.Context, actorID uuid.UUID, role, status string, limit, offset int) ([]models.Escrow, error) {
	f := repositories.EscrowFilter{Limit: limit, Offset: offset}
	switch role {
	case "buyer":
		f.BuyerID = &actorID
	case "seller":
		f.SellerID = &actorID
	default:
		f.BuyerID = &actorID
		f.SellerID = &actorID
	}
	if status != "" {
		f.Status = &status
	}
	return s.escrows.List(ctx, f)
}

func (s *EscrowService) GetEvents(ctx context.Context, reference string, actorID uuid.UUID) ([]models.AuditLog, error) {
	escrow, err := s.Get(ctx, reference, actorID)
	if err != nil {
		return nil, err
	}
	return s.audit.GetByEntity(ctx, "escrow", escrow.ID, 100, 0)
}

type SubmitDeliveryInput struct {
	TrackingCarrier     *string
	TrackingNumber      *string
	DeliveryProofURL    *string
	EstimatedDeliveryAt *time.Time
}

// SubmitDelivery moves funded -> delivery_pending and arms the release
// deadline: the later of estimate+grace and submission+minimum, so the
// clock never expires before the seller has shipped.
func (s *EscrowService) SubmitDelivery(ctx context.Context, reference string, actorID uuid.UUID, input SubmitDeliveryInput) (*models.Escrow, error) {
	escrow, err := s.escrows.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	role := rbac.PartyRole(escrow.BuyerID, escrow.SellerID, actorID, s.cfg.IsResolver)
	if !rbac.HasPermission(role, rbac.PermSubmitDelivery) {
		return nil, fmt.Errorf("%w: only the seller can submit delivery", models.ErrUnauthorized)
	}
	if escrow.Status != models.EscrowStatusFunded {
		return nil, fmt.Errorf("%w: escrow is %s, delivery requires funded", models.ErrPrecondition, escrow.Status)
	}
	if input.TrackingNumber == nil && input.DeliveryProofURL == nil {
		return nil, fmt.Errorf("%w: tracking number or proof of delivery is required", models.ErrValidation)
	}

	now := time.Now().UTC()
	autoReleaseAt := s.releaseDeadline(now, input.EstimatedDeliveryAt)

	err = s.escrows.MarkDelivery(ctx, repositories.DeliveryParams{
		ID:                  escrow.ID,
		Version:             escrow.Version,
		TrackingCarrier:     input.TrackingCarrier,
		TrackingNumber:      input.TrackingNumber,
		DeliveryProofURL:    input.DeliveryProofURL,
		EstimatedDeliveryAt: input.EstimatedDeliveryAt,
		DeliveredAt:         now,
		AutoReleaseAt:       autoReleaseAt,
	})
	if err != nil {
		return nil, err
	}

	oldStatus := escrow.Status
	escrow.Status = models.EscrowStatusDeliveryPending
	escrow.Version++
	escrow.TrackingCarrier = input.TrackingCarrier
	escrow.TrackingNumber = input.TrackingNumber
	escrow.DeliveryProofURL = input.DeliveryProofURL
	escrow.EstimatedDeliveryAt = input.EstimatedDeliveryAt
	escrow.DeliveredAt = &now
	escrow.AutoReleaseAt = &autoReleaseAt

	s.record(ctx, escrow, oldStatus, &actorID, "user")
	return escrow, nil
}

func (s *EscrowService) releaseDeadline(submittedAt time.Time, estimate *time.Time) time.Time {
	deadline := submittedAt.AddDate(0, 0, s.cfg.AutoReleaseMinDays)
	if estimate != nil {
		if est := estimate.AddDate(0, 0, s.cfg.DeliveryGraceDays); est.After(deadline) {
			deadline = est
		}
	}
	return deadline
}

// ConfirmRelease is the buyer accepting delivery. Funds become payable to
// the seller; total_earned is credited in the same transaction as the
// status change.
func (s *EscrowService) ConfirmRelease(ctx context.Context, reference string, actorID uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.escrows.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	role := rbac.PartyRole(escrow.BuyerID, escrow.SellerID, actorID, s.cfg.IsResolver)
	if !rbac.HasPermission(role, rbac.PermConfirmRelease) {
		return nil, fmt.Errorf("%w: only the buyer can release funds", models.ErrUnauthorized)
	}
	return s.release(ctx, escrow, &actorID, "user")
}

// AutoRelease is the scheduler path past the deadline. A version conflict
// means someone else (buyer confirm, dispute) won the race; the caller
// treats it as a skip.
func (s *EscrowService) AutoRelease(ctx context.Context, escrow *models.Escrow) (*models.Escrow, error) {
	return s.release(ctx, escrow, nil, "system")
}

func (s *EscrowService) release(ctx context.Context, escrow *models.Escrow, actorID *uuid.UUID, actorType string) (*models.Escrow, error) {
	if escrow.Status != models.EscrowStatusDeliveryPending {
		return nil, fmt.Errorf("%w: escrow is %s, release requires delivery_pending", models.ErrPrecondition, escrow.Status)
	}
	if dispute, err := s.disputes.GetByEscrowID(ctx, escrow.ID); err == nil && dispute.IsOpen() {
		return nil, fmt.Errorf("%w: escrow has an open dispute", models.ErrPrecondition)
	}

	err := s.escrows.Complete(ctx, repositories.CompleteParams{
		ID:           escrow.ID,
		Version:      escrow.Version,
		SellerID:     escrow.SellerID,
		SellerEarned: escrow.SellerReceives(),
	})
	if err != nil {
		return nil, err
	}

	oldStatus := escrow.Status
	escrow.Status = models.EscrowStatusCompleted
	escrow.Version++
	s.record(ctx, escrow, oldStatus, actorID, actorType)
	return escrow, nil
}

// Cancel aborts an unfunded escrow. Once money has moved only the dispute
// path can unwind it.
func (s *EscrowService) Cancel(ctx context.Context, reference string, actorID uuid.UUID, reason string) (*models.Escrow, error) {
	escrow, err := s.escrows.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	role := rbac.PartyRole(escrow.BuyerID, escrow.SellerID, actorID, s.cfg.IsResolver)
	if !rbac.HasPermission(role, rbac.PermCancel) {
		return nil, fmt.Errorf("%w: only the buyer can cancel", models.ErrUnauthorized)
	}
	if escrow.Status != models.EscrowStatusPendingPayment {
		return nil, fmt.Errorf("%w: escrow is %s, only pending_payment can be cancelled", models.ErrPrecondition, escrow.Status)
	}
	if reason == "" {
		reason = "cancelled by buyer"
	}

	if err := s.escrows.Cancel(ctx, escrow.ID, escrow.Version, reason); err != nil {
		return nil, err
	}

	oldStatus := escrow.Status
	escrow.Status = models.EscrowStatusCancelled
	escrow.Version++
	escrow.CancelReason = &reason
	s.record(ctx, escrow, oldStatus, &actorID, "user")
	return escrow, nil
}

// CancelExpired is the worker sweep over stale pending_payment escrows.
func (s *EscrowService) CancelExpired(ctx context.Context, escrow *models.Escrow) error {
	if escrow.Status != models.EscrowStatusPendingPayment {
		return fmt.Errorf("%w: escrow is %s", models.ErrPrecondition, escrow.Status)
	}
	reason := "payment window expired"
	if err := s.escrows.Cancel(ctx, escrow.ID, escrow.Version, reason); err != nil {
		return err
	}

	oldStatus := escrow.Status
	escrow.Status = models.EscrowStatusCancelled
	escrow.Version++
	escrow.CancelReason = &reason
	s.record(ctx, escrow, oldStatus, nil, "system")
	return nil
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
