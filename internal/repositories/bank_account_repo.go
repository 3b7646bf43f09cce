package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/escrowdesk/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BankAccountRepo struct {
	pool *pgxpool.Pool
}

func NewBankAccountRepo(pool *pgxpool.Pool) *BankAccountRepo {
	return &BankAccountRepo{pool: pool}
}

const bankAccountColumns = `
	id, user_id, bank_name, bank_code, account_number, account_name,
	currency, verified, is_primary, created_at, updated_at`

func scanBankAccount(row pgx.Row) (*models.BankAccount, error) {
	var a models.BankAccount
	err := row.Scan(
		&a.ID, &a.UserID, &a.BankName, &a.BankCode, &a.AccountNumber, &a.AccountName,
		&a.Currency, &a.Verified, &a.Primary, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *BankAccountRepo) Create(ctx context.Context, a *models.BankAccount) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bank_accounts (user_id, bank_name, bank_code, account_number, account_name, currency, verified, is_primary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, a.UserID, a.BankName, a.BankCode, a.AccountNumber, a.AccountName, a.Currency, a.Verified, a.Primary,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: account already exists", models.ErrPrecondition)
	}
	return err
}

func (r *BankAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	return scanBankAccount(r.pool.QueryRow(ctx,
		`SELECT `+bankAccountColumns+` FROM bank_accounts WHERE id = $1`, id))
}

func (r *BankAccountRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.BankAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bankAccountColumns+` FROM bank_accounts
		WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// GetPrimary returns the user's primary verified account in a currency.
func (r *BankAccountRepo) GetPrimary(ctx context.Context, userID uuid.UUID, currency string) (*models.BankAccount, error) {
	return scanBankAccount(r.pool.QueryRow(ctx, `
		SELECT `+bankAccountColumns+` FROM bank_accounts
		WHERE user_id = $1 AND currency = $2 AND is_primary AND verified
	`, userID, currency))
}

// SetPrimary promotes one account and demotes every other account of the
// same user+currency in a single transaction — the one multi-row atomic
// update the system needs, preserving the at-most-one-primary invariant
// under concurrent calls.
func (r *BankAccountRepo) SetPrimary(ctx context.Context, userID, accountID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var currency string
	err = tx.QueryRow(ctx, `
		SELECT currency FROM bank_accounts
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, accountID, userID).Scan(&currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bank_accounts SET is_primary = FALSE, updated_at = now()
		WHERE user_id = $1 AND currency = $2 AND id != $3 AND is_primary
	`, userID, currency, accountID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bank_accounts SET is_primary = TRUE, updated_at = now()
		WHERE id = $1
	`, accountID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetVerified flips the verification flag after the external account-name
// check passes.
func (r *BankAccountRepo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bank_accounts SET verified = $1, updated_at = now() WHERE id = $2
	`, verified, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
