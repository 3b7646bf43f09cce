package models

import (
	"time"

	"github.com/google/uuid"
)

// User tiers
const (
	TierStandard = "standard"
	TierPro      = "pro"
	TierBusiness = "business"
)

// TierLimits caps what a buyer on a given tier may open.
// MaxAmount is in minor units of the escrow currency; MonthlyEscrows counts
// escrows created in the current calendar month.
type TierLimits struct {
	MaxAmount      int64
	MonthlyEscrows int
}

var tierLimits = map[string]TierLimits{
	TierStandard: {MaxAmount: 50_000_00, MonthlyEscrows: 10},
	TierPro:      {MaxAmount: 500_000_00, MonthlyEscrows: 100},
	TierBusiness: {MaxAmount: 5_000_000_00, MonthlyEscrows: 1000},
}

// LimitsForTier returns the caps for a tier, falling back to standard.
func LimitsForTier(tier string) TierLimits {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits[TierStandard]
}

func IsValidTier(tier string) bool {
	_, ok := tierLimits[tier]
	return ok
}

// User is the slice of the identity service's record this core needs:
// who someone is, their fee tier, and their lifetime escrow totals.
// TotalSpent/TotalEarned are minor units and are only ever incremented
// inside the same transaction as the escrow transition that earns them.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  *string   `json:"display_name,omitempty"`
	Tier         string    `json:"tier"`
	TotalSpent   int64     `json:"total_spent"`
	TotalEarned  int64     `json:"total_earned"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}
