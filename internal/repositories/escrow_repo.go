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

// EscrowRepo owns the escrows table. Every status mutation is a conditional
// write on (id, version): the row is only touched when the version the
// caller read is still current, and a matched row also bumps the version.
// Zero rows affected means the transition was superseded.
type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `
	id, reference, buyer_id, seller_id, title, description,
	amount, currency, buyer_fee, seller_fee, total_fee, payment_method,
	status, version,
	provider, provider_reference, provider_payment_id,
	tracking_carrier, tracking_number, delivery_proof_url,
	estimated_delivery_at, delivered_at, auto_release_at,
	dispute_id, bank_account_id, payout_provider, payout_transfer_id,
	paid_out, paid_out_at, cancel_reason, created_at, updated_at`

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(
		&e.ID, &e.Reference, &e.BuyerID, &e.SellerID, &e.Title, &e.Description,
		&e.Amount, &e.Currency, &e.BuyerFee, &e.SellerFee, &e.TotalFee, &e.PaymentMethod,
		&e.Status, &e.Version,
		&e.Provider, &e.ProviderReference, &e.ProviderPaymentID,
		&e.TrackingCarrier, &e.TrackingNumber, &e.DeliveryProofURL,
		&e.EstimatedDeliveryAt, &e.DeliveredAt, &e.AutoReleaseAt,
		&e.DisputeID, &e.BankAccountID, &e.PayoutProvider, &e.PayoutTransferID,
		&e.PaidOut, &e.PaidOutAt, &e.CancelReason, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) Create(ctx context.Context, e *models.Escrow) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO escrows (reference, buyer_id, seller_id, title, description,
			amount, currency, buyer_fee, seller_fee, total_fee, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, version, created_at, updated_at
	`, e.Reference, e.BuyerID, e.SellerID, e.Title, e.Description,
		e.Amount, e.Currency, e.BuyerFee, e.SellerFee, e.TotalFee, e.PaymentMethod, e.Status,
	).Scan(&e.ID, &e.Version, &e.CreatedAt, &e.UpdatedAt)
}

func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(r.pool.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
}

func (r *EscrowRepo) GetByReference(ctx context.Context, reference string) (*models.Escrow, error) {
	return scanEscrow(r.pool.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE reference = $1`, reference))
}

// FundParams applies the reconciler's funding transition.
type FundParams struct {
	ID                uuid.UUID
	Version           int
	Provider          string
	ProviderReference string
	ProviderPaymentID *string
	BuyerID           uuid.UUID
	BuyerSpent        int64 // buyer pays: amount + buyer fee
}

// Fund moves pending_payment -> funded and increments the buyer's lifetime
// spend in the same transaction, so a replayed webhook can never double
// count: the version guard fails on the second attempt before the counter
// update is reached.
func (r *EscrowRepo) Fund(ctx context.Context, p FundParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE escrows
		SET status = $1, version = version + 1,
		    provider = $2, provider_reference = $3, provider_payment_id = $4,
		    updated_at = now()
		WHERE id = $5 AND version = $6 AND status = $7
	`, models.EscrowStatusFunded, p.Provider, p.ProviderReference, p.ProviderPaymentID,
		p.ID, p.Version, models.EscrowStatusPendingPayment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET total_spent = total_spent + $1 WHERE id = $2
	`, p.BuyerSpent, p.BuyerID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeliveryParams applies the seller's delivery-proof transition.
type DeliveryParams struct {
	ID                  uuid.UUID
	Version             int
	TrackingCarrier     *string
	TrackingNumber      *string
	DeliveryProofURL    *string
	EstimatedDeliveryAt *time.Time
	DeliveredAt         time.Time
	AutoReleaseAt       time.Time
}

// MarkDelivery moves funded -> delivery_pending and stamps the
// auto-release deadline.
func (r *EscrowRepo) MarkDelivery(ctx context.Context, p DeliveryParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows
		SET status = $1, version = version + 1,
		    tracking_carrier = $2, tracking_number = $3, delivery_proof_url = $4,
		    estimated_delivery_at = $5, delivered_at = $6, auto_release_at = $7,
		    updated_at = now()
		WHERE id = $8 AND version = $9 AND status = $10
	`, models.EscrowStatusDeliveryPending,
		p.TrackingCarrier, p.TrackingNumber, p.DeliveryProofURL,
		p.EstimatedDeliveryAt, p.DeliveredAt, p.AutoReleaseAt,
		p.ID, p.Version, models.EscrowStatusFunded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

// CompleteParams applies a release transition (buyer confirmation or
// scheduler auto-release).
type CompleteParams struct {
	ID           uuid.UUID
	Version      int
	SellerID     uuid.UUID
	SellerEarned int64 // seller receives: amount - seller fee
}

// Complete moves delivery_pending -> completed and credits the seller's
// lifetime earnings in the same transaction. Exactly one of the racing
// release paths can match the version.
func (r *EscrowRepo) Complete(ctx context.Context, p CompleteParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE escrows
		SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3 AND status = $4
	`, models.EscrowStatusCompleted, p.ID, p.Version, models.EscrowStatusDeliveryPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET total_earned = total_earned + $1 WHERE id = $2
	`, p.SellerEarned, p.SellerID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Cancel moves pending_payment -> cancelled with a recorded reason.
func (r *EscrowRepo) Cancel(ctx context.Context, id uuid.UUID, version int, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows
		SET status = $1, version = version + 1, cancel_reason = $2, updated_at = now()
		WHERE id = $3 AND version = $4 AND status = $5
	`, models.EscrowStatusCancelled, reason, id, version, models.EscrowStatusPendingPayment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

// PayoutParams records a successful transfer.
type PayoutParams struct {
	ID            uuid.UUID
	BankAccountID uuid.UUID
	Provider      string
	TransferID    string
}

// RecordPayout marks the escrow paid. The paid_out predicate makes payout
// single-shot per escrow regardless of how many callers race the retry
// endpoint.
func (r *EscrowRepo) RecordPayout(ctx context.Context, p PayoutParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows
		SET bank_account_id = $1, payout_provider = $2, payout_transfer_id = $3,
		    paid_out = TRUE, paid_out_at = now(), updated_at = now()
		WHERE id = $4 AND status = $5 AND paid_out = FALSE
	`, p.BankAccountID, p.Provider, p.TransferID, p.ID, models.EscrowStatusCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: escrow is not completed-and-unpaid", models.ErrPrecondition)
	}
	return nil
}

// ListAutoReleasable returns delivery_pending escrows whose auto-release
// deadline has passed. The scan is stateless: a record that loses its race
// this tick simply stops matching on the next one.
func (r *EscrowRepo) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE status = $1 AND auto_release_at IS NOT NULL AND auto_release_at <= $2
		ORDER BY auto_release_at ASC LIMIT $3
	`, models.EscrowStatusDeliveryPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEscrows(rows)
}

// ListPendingOlderThan returns pending_payment escrows created before the
// cutoff, for the payment-timeout sweep.
func (r *EscrowRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC LIMIT $3
	`, models.EscrowStatusPendingPayment, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEscrows(rows)
}

// CountCreatedSince counts escrows this buyer opened since the given time,
// for monthly tier limits.
func (r *EscrowRepo) CountCreatedSince(ctx context.Context, buyerID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM escrows WHERE buyer_id = $1 AND created_at >= $2
	`, buyerID, since).Scan(&n)
	return n, err
}

type EscrowFilter struct {
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
	Status   *string
	Limit    int
	Offset   int
}

func (r *EscrowRepo) List(ctx context.Context, f EscrowFilter) ([]models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.BuyerID != nil && f.SellerID != nil {
		where = append(where, fmt.Sprintf("(buyer_id = $%d OR seller_id = $%d)", argIdx, argIdx+1))
		args = append(args, *f.BuyerID, *f.SellerID)
		argIdx += 2
	} else if f.BuyerID != nil {
		where = append(where, fmt.Sprintf("buyer_id = $%d", argIdx))
		args = append(args, *f.BuyerID)
		argIdx++
	} else if f.SellerID != nil {
		where = append(where, fmt.Sprintf("seller_id = $%d", argIdx))
		args = append(args, *f.SellerID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEscrows(rows)
}

func collectEscrows(rows pgx.Rows) ([]models.Escrow, error) {
	var escrows []models.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}
