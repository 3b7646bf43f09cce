package models

import (
	"time"

	"github.com/google/uuid"
)

// BankAccount is a payout destination owned by a user. At most one account
// per user+currency may be primary; the repository enforces that
// transactionally on SetPrimary.
type BankAccount struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	BankName      string    `json:"bank_name"`
	BankCode      string    `json:"bank_code"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	Currency      string    `json:"currency"`
	Verified      bool      `json:"verified"`
	Primary       bool      `json:"primary"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
