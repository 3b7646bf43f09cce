package repositories

import (
	"context"
	"errors"

	"github.com/escrowdesk/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FeeSettingsRepo owns the append-only fee configuration. At most one row
// per tier is active; publishing a new version deactivates the old one in
// the same transaction, keeping the full history queryable.
type FeeSettingsRepo struct {
	pool *pgxpool.Pool
}

func NewFeeSettingsRepo(pool *pgxpool.Pool) *FeeSettingsRepo {
	return &FeeSettingsRepo{pool: pool}
}

const feeSettingsColumns = `
	id, tier, version, fee_bps, min_fee, max_fee_bps, buyer_share_bps,
	active, created_by, created_at`

func scanFeeSettings(row pgx.Row) (*models.FeeSettings, error) {
	var s models.FeeSettings
	err := row.Scan(
		&s.ID, &s.Tier, &s.Version, &s.FeeBPS, &s.MinFee, &s.MaxFeeBPS, &s.BuyerShareBPS,
		&s.Active, &s.CreatedBy, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetActive returns the single active settings version for a tier.
func (r *FeeSettingsRepo) GetActive(ctx context.Context, tier string) (*models.FeeSettings, error) {
	return scanFeeSettings(r.pool.QueryRow(ctx,
		`SELECT `+feeSettingsColumns+` FROM fee_settings WHERE tier = $1 AND active`, tier))
}

// Publish inserts a new version for the tier and deactivates the previous
// active one atomically.
func (r *FeeSettingsRepo) Publish(ctx context.Context, s *models.FeeSettings) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE fee_settings SET active = FALSE WHERE tier = $1 AND active
	`, s.Tier); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO fee_settings (tier, version, fee_bps, min_fee, max_fee_bps, buyer_share_bps, active, created_by)
		VALUES ($1,
			COALESCE((SELECT max(version) FROM fee_settings WHERE tier = $1), 0) + 1,
			$2, $3, $4, $5, TRUE, $6)
		RETURNING id, version, created_at
	`, s.Tier, s.FeeBPS, s.MinFee, s.MaxFeeBPS, s.BuyerShareBPS, s.CreatedBy,
	).Scan(&s.ID, &s.Version, &s.CreatedAt)
	if err != nil {
		return err
	}
	s.Active = true

	return tx.Commit(ctx)
}

// History lists all versions for a tier, newest first.
func (r *FeeSettingsRepo) History(ctx context.Context, tier string, limit int) ([]models.FeeSettings, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+feeSettingsColumns+` FROM fee_settings
		WHERE tier = $1 ORDER BY version DESC LIMIT $2
	`, tier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FeeSettings
	for rows.Next() {
		s, err := scanFeeSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
