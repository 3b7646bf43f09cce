package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute statuses
const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
)

// Dispute winners
const (
	DisputeWinnerBuyer  = "buyer"
	DisputeWinnerSeller = "seller"
)

// Dispute is the 1:1 arbitration record for an escrow. While a dispute is
// open or under review the escrow cannot move forward. FromStatus records
// the escrow status at the moment the dispute was opened; resolution uses
// it to tell a pre-release dispute from a refund-window one.
type Dispute struct {
	ID          uuid.UUID `json:"id"`
	EscrowID    uuid.UUID `json:"escrow_id"`
	InitiatorID uuid.UUID `json:"initiator_id"`
	Reason      string    `json:"reason"`
	Evidence    *string   `json:"evidence,omitempty"`
	Status      string    `json:"status"`
	FromStatus  string    `json:"from_status"`

	Winner       *string    `json:"winner,omitempty"`
	RefundAmount *int64     `json:"refund_amount,omitempty"`
	ResolverID   *uuid.UUID `json:"resolver_id,omitempty"`
	Resolution   *string    `json:"resolution,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the dispute still blocks escrow progress.
func (d *Dispute) IsOpen() bool {
	return d.Status == DisputeStatusOpen || d.Status == DisputeStatusUnderReview
}
