package models

import (
	"time"

	"github.com/google/uuid"
)

// FeeSettings is one version of the tier-keyed fee configuration.
// Rows are append-only: writing a new version for a tier deactivates the
// previous one, so the audit trail of past economics is preserved. A
// created escrow snapshots its fee breakdown and is never affected by
// later versions.
type FeeSettings struct {
	ID      uuid.UUID `json:"id"`
	Tier    string    `json:"tier"`
	Version int       `json:"version"`

	FeeBPS        int   `json:"fee_bps"`         // percentage of amount, basis points
	MinFee        int64 `json:"min_fee"`         // floor, minor units
	MaxFeeBPS     int   `json:"max_fee_bps"`     // cap as share of amount, basis points
	BuyerShareBPS int   `json:"buyer_share_bps"` // buyer's share of the total fee

	Active    bool       `json:"active"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
