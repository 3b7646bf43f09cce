// Package fees computes the escrow fee breakdown. Calculation is pure: the
// same amount and settings always produce the same breakdown, whether the
// caller is previewing a quote or binding fees at escrow creation. A created
// escrow persists its breakdown once and never recomputes it, so later fee
// settings versions cannot change a historical escrow's economics.
package fees

import (
	"fmt"

	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/money"
)

// Breakdown is the computed fee split for one escrow amount.
// All values are integer minor units.
type Breakdown struct {
	Amount         int64 `json:"amount"`
	TotalFee       int64 `json:"total_fee"`
	BuyerFee       int64 `json:"buyer_fee"`
	SellerFee      int64 `json:"seller_fee"`
	BuyerPays      int64 `json:"buyer_pays"`
	SellerReceives int64 `json:"seller_receives"`
}

// Calculate applies the tier settings to an amount:
//
//  1. rawFee = amount * FeeBPS
//  2. clamped up to MinFee
//  3. clamped down to amount * MaxFeeBPS
//  4. buyerFee = total * BuyerShareBPS (half-up); sellerFee is the
//     remainder, so the two shares always sum exactly to the total.
//
// Amount must be positive; boundary validation rejects zero and negative
// amounts before fee computation is reached.
func Calculate(amount int64, s models.FeeSettings) (Breakdown, error) {
	if amount <= 0 {
		return Breakdown{}, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if s.FeeBPS < 0 || s.MaxFeeBPS < 0 || s.MinFee < 0 {
		return Breakdown{}, fmt.Errorf("%w: negative fee settings", models.ErrValidation)
	}
	if s.BuyerShareBPS < 0 || s.BuyerShareBPS > 10000 {
		return Breakdown{}, fmt.Errorf("%w: buyer share must be within 0..10000 bps", models.ErrValidation)
	}

	total := money.ApplyBPS(amount, s.FeeBPS)
	if total < s.MinFee {
		total = s.MinFee
	}
	// The percentage cap never undercuts the minimum fee: on tiny amounts
	// the floor wins (5.00 at min 0.50 stays 0.50 even under a 2.5% cap).
	if maxFee := money.ApplyBPS(amount, s.MaxFeeBPS); total > maxFee && maxFee >= s.MinFee {
		total = maxFee
	}
	if total > amount {
		return Breakdown{}, fmt.Errorf("%w: fee exceeds amount", models.ErrValidation)
	}

	buyerFee := money.ApplyBPS(total, s.BuyerShareBPS)
	sellerFee := total - buyerFee

	return Breakdown{
		Amount:         amount,
		TotalFee:       total,
		BuyerFee:       buyerFee,
		SellerFee:      sellerFee,
		BuyerPays:      amount + buyerFee,
		SellerReceives: amount - sellerFee,
	}, nil
}
