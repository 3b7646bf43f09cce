package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/escrowdesk/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeColumns = `
	id, escrow_id, initiator_id, reason, evidence, status, from_status,
	winner, refund_amount, resolver_id, resolution, resolved_at,
	created_at, updated_at`

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(
		&d.ID, &d.EscrowID, &d.InitiatorID, &d.Reason, &d.Evidence, &d.Status, &d.FromStatus,
		&d.Winner, &d.RefundAmount, &d.ResolverID, &d.Resolution, &d.ResolvedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// OpenDisputeParams creates a dispute and freezes its escrow in one
// transaction.
type OpenDisputeParams struct {
	EscrowID      uuid.UUID
	EscrowVersion int
	FromStatus    string // escrow status the dispute interrupts
	InitiatorID   uuid.UUID
	Reason        string
	Evidence      *string
}

// disputableStatuses are the escrow states a dispute may be opened from.
// completed is included for the post-release refund window.
var disputableStatuses = []string{
	models.EscrowStatusFunded,
	models.EscrowStatusDeliveryPending,
	models.EscrowStatusCompleted,
}

// Open inserts the dispute and moves the escrow to disputed atomically, so
// a lost version race never leaves an orphan dispute row behind. The
// escrow_id unique constraint enforces the 1:1 invariant at the data layer;
// a second open attempt surfaces as a precondition failure, not a
// duplicate row.
func (r *DisputeRepo) Open(ctx context.Context, p OpenDisputeParams) (*models.Dispute, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d := &models.Dispute{
		EscrowID:    p.EscrowID,
		InitiatorID: p.InitiatorID,
		Reason:      p.Reason,
		Evidence:    p.Evidence,
		Status:      models.DisputeStatusOpen,
		FromStatus:  p.FromStatus,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO disputes (escrow_id, initiator_id, reason, evidence, status, from_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, d.EscrowID, d.InitiatorID, d.Reason, d.Evidence, d.Status, d.FromStatus,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: escrow already has a dispute", models.ErrPrecondition)
		}
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE escrows
		SET status = $1, version = version + 1, dispute_id = $2, updated_at = now()
		WHERE id = $3 AND version = $4 AND status = ANY($5)
	`, models.EscrowStatusDisputed, d.ID, p.EscrowID, p.EscrowVersion, disputableStatuses)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

func (r *DisputeRepo) GetByEscrowID(ctx context.Context, escrowID uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE escrow_id = $1`, escrowID))
}

// MarkUnderReview moves open -> under_review when a resolver picks it up.
func (r *DisputeRepo) MarkUnderReview(ctx context.Context, id uuid.UUID, resolverID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE disputes SET status = $1, resolver_id = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.DisputeStatusUnderReview, resolverID, id, models.DisputeStatusOpen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dispute is not open", models.ErrPrecondition)
	}
	return nil
}

// ResolveParams closes a dispute and finalizes its escrow in one
// transaction.
type ResolveParams struct {
	DisputeID     uuid.UUID
	ResolverID    uuid.UUID
	Winner        string
	Resolution    string
	RefundAmount  *int64
	EscrowID      uuid.UUID
	EscrowVersion int
	EscrowStatus  string // terminal outcome: completed or refunded
	SellerID      uuid.UUID
	SellerEarned  int64 // credited only when the seller wins
}

// Resolve atomically closes the dispute and drives the escrow to its
// terminal state. The escrow write is still version-guarded so a resolution
// racing anything else loses cleanly and changes nothing.
func (r *DisputeRepo) Resolve(ctx context.Context, p ResolveParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE escrows SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3 AND status = $4
	`, p.EscrowStatus, p.EscrowID, p.EscrowVersion, models.EscrowStatusDisputed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}

	tag, err = tx.Exec(ctx, `
		UPDATE disputes
		SET status = $1, winner = $2, resolution = $3, refund_amount = $4,
		    resolver_id = $5, resolved_at = $6, updated_at = now()
		WHERE id = $7 AND status != $1
	`, models.DisputeStatusResolved, p.Winner, p.Resolution, p.RefundAmount,
		p.ResolverID, time.Now().UTC(), p.DisputeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dispute already resolved", models.ErrPrecondition)
	}

	if p.Winner == models.DisputeWinnerSeller && p.SellerEarned > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE users SET total_earned = total_earned + $1 WHERE id = $2
		`, p.SellerEarned, p.SellerID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
